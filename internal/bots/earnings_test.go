package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummariseSurprises(t *testing.T) {
	tests := []struct {
		name       string
		surprises  []float64
		wantMean   float64
		wantBeats  int
		wantMisses int
	}{
		{"empty history", nil, 0, 0, 0},
		{"four straight beats", []float64{5, 3, 8, 2}, 4.5, 4, 0},
		{"beat streak broken by miss", []float64{4, 6, -2, 3}, 2.75, 2, 0},
		{"miss streak", []float64{-3, -1, 5, 2}, 0.75, 0, 2},
		{"flat quarter ends both streaks", []float64{0, 4, -2}, 2.0 / 3.0, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mean, beats, misses := summariseSurprises(tc.surprises)
			assert.InDelta(t, tc.wantMean, mean, 0.001)
			assert.Equal(t, tc.wantBeats, beats)
			assert.Equal(t, tc.wantMisses, misses)
		})
	}
}
