package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mockbroker/research-engine/internal/domain"
)

func section(kv map[string]any) domain.Section { return domain.Section(kv) }

func TestDataChangedReflexive(t *testing.T) {
	data := map[string]domain.Section{
		"news": section(map[string]any{"sentiment": 0.42, "headlines": []any{"a", "b"}}),
		"technicals": section(map[string]any{
			"ma50":   101.5,
			"levels": map[string]any{"support": 99.0},
		}),
	}

	assert.False(t, DataChanged(data, data))
}

func TestDataChangedNumericThreshold(t *testing.T) {
	old := map[string]domain.Section{"price": section(map[string]any{"close": 100.0})}

	// Under 2% relative change: not significant.
	assert.False(t, DataChanged(old, map[string]domain.Section{
		"price": section(map[string]any{"close": 101.0}),
	}))

	// At/over 2%: significant.
	assert.True(t, DataChanged(old, map[string]domain.Section{
		"price": section(map[string]any{"close": 103.0}),
	}))
}

func TestDataChangedZeroTransition(t *testing.T) {
	before := map[string]domain.Section{"fundamentals": section(map[string]any{"short_int_pct": 0.0})}
	after := map[string]domain.Section{"fundamentals": section(map[string]any{"short_int_pct": 0.1})}

	assert.True(t, DataChanged(before, after))
	assert.True(t, DataChanged(after, before))
}

func TestDataChangedStringListSetEquality(t *testing.T) {
	old := map[string]domain.Section{"news": section(map[string]any{"topics": []any{"fed", "earnings"}})}

	// Same set, different order: no change.
	assert.False(t, DataChanged(old, map[string]domain.Section{
		"news": section(map[string]any{"topics": []any{"earnings", "fed"}}),
	}))

	// Different membership: change.
	assert.True(t, DataChanged(old, map[string]domain.Section{
		"news": section(map[string]any{"topics": []any{"fed", "cpi"}}),
	}))
}

func TestDataChangedRecursesIntoDicts(t *testing.T) {
	old := map[string]domain.Section{
		"fundamentals": section(map[string]any{
			"insider": map[string]any{"buys": 3.0, "_note": "x"},
		}),
	}

	// Nested numeric change above threshold.
	assert.True(t, DataChanged(old, map[string]domain.Section{
		"fundamentals": section(map[string]any{
			"insider": map[string]any{"buys": 5.0, "_note": "x"},
		}),
	}))

	// Only the underscore key differs: ignored.
	assert.False(t, DataChanged(old, map[string]domain.Section{
		"fundamentals": section(map[string]any{
			"insider": map[string]any{"buys": 3.0, "_note": "y"},
		}),
	}))
}

func TestDataChangedAlwaysSignificant(t *testing.T) {
	before := map[string]domain.Section{"earnings": section(map[string]any{"earnings_date": "2026-09-01"})}
	after := map[string]domain.Section{"earnings": section(map[string]any{"earnings_date": "2026-09-02"})}

	assert.True(t, DataChanged(before, after))

	// golden_cross flipping is always significant even though bools have
	// no numeric magnitude.
	assert.True(t, DataChanged(
		map[string]domain.Section{"technicals": section(map[string]any{"golden_cross": false})},
		map[string]domain.Section{"technicals": section(map[string]any{"golden_cross": true})},
	))
}

func TestDataChangedIgnoresBookkeeping(t *testing.T) {
	old := map[string]domain.Section{
		"news": section(map[string]any{
			"sentiment":   0.3,
			"_fetched_at": "2026-08-26T10:00:00Z",
			"_source":     "gnews",
			"data_age_s":  120.0,
		}),
	}
	after := map[string]domain.Section{
		"news": section(map[string]any{
			"sentiment":   0.3,
			"_fetched_at": "2026-08-26T12:00:00Z",
			"_source":     "fmp",
			"data_age_s":  4000.0,
		}),
	}

	assert.False(t, DataChanged(old, after))
}

func TestDataChangedNewAndRemovedSections(t *testing.T) {
	old := map[string]domain.Section{"news": section(map[string]any{"sentiment": 0.1})}
	withMacro := map[string]domain.Section{
		"news":  section(map[string]any{"sentiment": 0.1}),
		"macro": section(map[string]any{"sector_flow": 0.4}),
	}

	assert.True(t, DataChanged(old, withMacro))
	assert.True(t, DataChanged(withMacro, old))

	// A new section holding only bookkeeping keys does not count.
	withEmpty := map[string]domain.Section{
		"news":  section(map[string]any{"sentiment": 0.1}),
		"macro": section(map[string]any{"_fetched_at": "2026-08-26T10:00:00Z"}),
	}
	assert.False(t, DataChanged(old, withEmpty))
}

func TestNumericChanged(t *testing.T) {
	assert.False(t, numericChanged(100, 100))
	assert.False(t, numericChanged(100, 101.9))
	assert.True(t, numericChanged(100, 102))
	// The base is the previous value, not the larger magnitude.
	assert.False(t, numericChanged(102, 100.1))
	assert.True(t, numericChanged(0, 0.0001))
	assert.True(t, numericChanged(-5, 5))
}

func TestStringSetEqual(t *testing.T) {
	assert.True(t, stringSetEqual([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, stringSetEqual([]string{"a", "a"}, []string{"a", "b"}))
	assert.False(t, stringSetEqual([]string{"a"}, []string{"a", "b"}))
	assert.True(t, stringSetEqual(nil, nil))
}
