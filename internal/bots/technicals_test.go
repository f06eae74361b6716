package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatBars builds n identical bars around the given close.
func flatBars(n int, close float64) []ohlcv {
	bars := make([]ohlcv, n)
	for i := range bars {
		bars[i] = ohlcv{High: close + 1, Low: close - 1, Close: close}
	}
	return bars
}

func TestComputeTechnicalsGoldenCross(t *testing.T) {
	// 250 flat bars leave MA50 and MA200 equal; a final jump lifts MA50
	// above MA200 on the last bar only.
	bars := flatBars(250, 100)
	bars = append(bars, ohlcv{High: 111, Low: 109, Close: 110})

	tech := computeTechnicals(bars)

	assert.True(t, tech.GoldenCross)
	assert.False(t, tech.DeathCross)
	assert.Equal(t, 110.0, tech.Close)
	assert.InDelta(t, 1.0, tech.YearPosition, 0.001)
	assert.Greater(t, tech.MA50, tech.MA200)
}

func TestComputeTechnicalsDeathCross(t *testing.T) {
	bars := flatBars(250, 100)
	bars = append(bars, ohlcv{High: 91, Low: 89, Close: 90})

	tech := computeTechnicals(bars)

	assert.True(t, tech.DeathCross)
	assert.False(t, tech.GoldenCross)
	assert.Less(t, tech.MA50, tech.MA200)
}

func TestComputeTechnicalsNoCrossOnSteadyTrend(t *testing.T) {
	// A monotone uptrend keeps MA50 above MA200 throughout, so no cross
	// fires on the final bar.
	bars := make([]ohlcv, 250)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = ohlcv{High: price + 1, Low: price - 1, Close: price}
	}

	tech := computeTechnicals(bars)

	assert.False(t, tech.GoldenCross)
	assert.False(t, tech.DeathCross)
	assert.InDelta(t, 1.0, tech.YearPosition, 0.01)
	assert.Greater(t, tech.Close, tech.MA20)
	assert.Greater(t, tech.MA20, tech.MA50)
	assert.Greater(t, tech.MA50, tech.MA200)
}

func TestComputeTechnicalsShortHistorySkipsLongAverages(t *testing.T) {
	tech := computeTechnicals(flatBars(60, 50))

	assert.InDelta(t, 50.0, tech.MA20, 0.001)
	assert.InDelta(t, 50.0, tech.MA50, 0.001)
	assert.Zero(t, tech.MA200)
	assert.False(t, tech.GoldenCross)
	assert.False(t, tech.DeathCross)
}

func TestPivotLevels(t *testing.T) {
	// A valley at index 5 and a peak at index 12, each dominating its
	// two neighbours on both sides.
	closes := []float64{100, 100, 100, 98, 96, 94, 96, 98, 100, 102, 104, 106, 108, 106, 104, 102, 100, 100, 100, 100}
	bars := make([]ohlcv, len(closes))
	for i, c := range closes {
		bars[i] = ohlcv{High: c + 1, Low: c - 1, Close: c}
	}

	supports, resistances := pivotLevels(bars)

	require.NotEmpty(t, supports)
	require.NotEmpty(t, resistances)
	assert.Contains(t, supports, 93.0)     // low of the valley bar
	assert.Contains(t, resistances, 109.0) // high of the peak bar
}

func TestYearPercentile(t *testing.T) {
	closes := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 55}

	// 55 sits above five of the ten closes.
	assert.InDelta(t, 0.6, yearPercentile(closes), 0.001)
}

func TestRangeOf(t *testing.T) {
	bars := []ohlcv{
		{High: 105, Low: 95, Close: 100},
		{High: 120, Low: 98, Close: 110},
		{High: 112, Low: 90, Close: 95},
	}

	high, low := rangeOf(bars)
	assert.Equal(t, 120.0, high)
	assert.Equal(t, 90.0, low)
}
