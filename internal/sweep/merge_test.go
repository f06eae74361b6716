package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mockbroker/research-engine/internal/domain"
)

func TestMergeSignalsConfidenceWeighted(t *testing.T) {
	results := []domain.BotResult{
		{
			BotName:      "news",
			Confidence:   0.9,
			SignalInputs: map[string]float64{domain.SignalSentiment: 0.8},
		},
		{
			BotName:      "analyst",
			Confidence:   0.3,
			SignalInputs: map[string]float64{domain.SignalSentiment: -0.4},
		},
	}

	merged := MergeSignals(results)

	// (0.8*0.9 + -0.4*0.3) / 1.2 = 0.5
	assert.InDelta(t, 0.5, merged[domain.SignalSentiment], 0.0001)
}

func TestMergeSignalsZeroConfidenceTakesFirst(t *testing.T) {
	results := []domain.BotResult{
		{BotName: "news", Confidence: 0, SignalInputs: map[string]float64{domain.SignalSentiment: 0.25}},
		{BotName: "analyst", Confidence: 0, SignalInputs: map[string]float64{domain.SignalSentiment: -0.9}},
	}

	merged := MergeSignals(results)
	assert.Equal(t, 0.25, merged[domain.SignalSentiment])
}

func TestMergeSignalsSkipsFailedResults(t *testing.T) {
	results := []domain.BotResult{
		{BotName: "news", Err: "boom", SignalInputs: map[string]float64{domain.SignalSentiment: 1}},
		{BotName: "analyst", Confidence: 0.5, SignalInputs: map[string]float64{domain.SignalSentiment: 0.2}},
	}

	merged := MergeSignals(results)
	assert.Equal(t, 0.2, merged[domain.SignalSentiment])
}

func TestMergeSignalsRoundsToThreeDecimals(t *testing.T) {
	results := []domain.BotResult{
		{BotName: "news", Confidence: 0.3, SignalInputs: map[string]float64{domain.SignalSentiment: 1.0 / 3.0}},
	}

	merged := MergeSignals(results)
	assert.Equal(t, 0.333, merged[domain.SignalSentiment])
}

func TestMergeSignalsDisjointKeys(t *testing.T) {
	results := []domain.BotResult{
		{BotName: "fundamentals", Confidence: 0.85, SignalInputs: map[string]float64{domain.SignalRevGrowth: 12.5}},
		{BotName: "earnings", Confidence: 0.65, SignalInputs: map[string]float64{domain.SignalDaysToEarnings: 14}},
	}

	merged := MergeSignals(results)
	assert.Len(t, merged, 2)
	assert.Equal(t, 12.5, merged[domain.SignalRevGrowth])
	assert.Equal(t, 14.0, merged[domain.SignalDaysToEarnings])
}
