package sweep

import (
	"math"

	"github.com/mockbroker/research-engine/internal/domain"
)

// MergeSignals combines signal inputs from multiple bot results. When
// several bots emit the same key the merged value is the
// confidence-weighted mean; at zero total confidence the first emitter
// wins. Values are rounded to 3 decimals.
func MergeSignals(results []domain.BotResult) map[string]float64 {
	type accumulator struct {
		weighted   float64
		confidence float64
		first      float64
	}

	order := make([]string, 0, 8)
	acc := make(map[string]*accumulator)

	for _, result := range results {
		if result.Failed() {
			continue
		}
		for key, value := range result.SignalInputs {
			a, ok := acc[key]
			if !ok {
				a = &accumulator{first: value}
				acc[key] = a
				order = append(order, key)
			}
			a.weighted += value * result.Confidence
			a.confidence += result.Confidence
		}
	}

	merged := make(map[string]float64, len(order))
	for _, key := range order {
		a := acc[key]
		value := a.first
		if a.confidence > 0 {
			value = a.weighted / a.confidence
		}
		merged[key] = round3(value)
	}
	return merged
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
