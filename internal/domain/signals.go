package domain

import "math"

// Signal-input keys form a closed set. Bots must not emit keys outside
// this registry; values are clamped to the declared range on write so the
// ranges are a post-clamp contract for downstream scoring.
const (
	SignalSentiment      = "sentiment"      // [-1, 1] news/analyst tone
	SignalCatalystNews   = "catalystNews"   // [-1, 1] catalyst-phrase direction
	SignalSectorFlow     = "sectorFlow"     // [-1, 1] macro tailwind for the sector
	SignalRevGrowth      = "revGrowth"      // percent
	SignalDaysToEarnings = "daysToEarnings" // [0, 90]
	SignalInsiderBuy     = "insiderBuy"     // [0, 1] buy share of insider flow
	SignalShortInt       = "shortInt"       // percent of float
	SignalEarningsBeat   = "earningsBeat"   // [-25, 40] mean EPS surprise %
	SignalDebtRatio      = "debtRatio"      // >= 0
)

type signalRange struct {
	min float64
	max float64
}

var signalRanges = map[string]signalRange{
	SignalSentiment:      {-1, 1},
	SignalCatalystNews:   {-1, 1},
	SignalSectorFlow:     {-1, 1},
	SignalRevGrowth:      {-1000, 1000},
	SignalDaysToEarnings: {0, 90},
	SignalInsiderBuy:     {0, 1},
	SignalShortInt:       {0, 100},
	SignalEarningsBeat:   {-25, 40},
	SignalDebtRatio:      {0, math.MaxFloat64},
}

// KnownSignal reports whether key belongs to the closed signal-input set.
func KnownSignal(key string) bool {
	_, ok := signalRanges[key]
	return ok
}

// ClampSignal clamps value into the declared range for key. Unknown keys
// return (0, false) so callers can drop them before they reach the cache.
func ClampSignal(key string, value float64) (float64, bool) {
	r, ok := signalRanges[key]
	if !ok {
		return 0, false
	}
	if math.IsNaN(value) {
		return 0, false
	}
	return math.Min(math.Max(value, r.min), r.max), true
}

// SignalInRange reports whether value already sits inside the declared
// range for key. Used by invariant tests.
func SignalInRange(key string, value float64) bool {
	r, ok := signalRanges[key]
	if !ok {
		return false
	}
	return value >= r.min && value <= r.max
}
