package sweep

import (
	"strings"

	"github.com/mockbroker/research-engine/internal/domain"
)

// alwaysSignificant fields count as changed on any difference at all,
// regardless of magnitude.
var alwaysSignificant = map[string]struct{}{
	"earnings_date": {},
	"consensus":     {},
	"golden_cross":  {},
	"death_cross":   {},
}

// ignoredFields never count towards a delta. Underscore-prefixed
// bookkeeping keys are ignored wholesale in addition to this set.
var ignoredFields = map[string]struct{}{
	"data_age_s": {},
}

const relativeThreshold = 0.02

// DataChanged reports whether the new data block differs materially from
// the old one. Purely observational: the envelope is written either way.
func DataChanged(prev, next map[string]domain.Section) bool {
	for name, nextSection := range next {
		prevSection, ok := prev[name]
		if !ok {
			if hasSignificantContent(nextSection) {
				return true
			}
			continue
		}
		if blockChanged(map[string]any(prevSection), map[string]any(nextSection)) {
			return true
		}
	}
	for name, prevSection := range prev {
		if _, ok := next[name]; !ok && hasSignificantContent(prevSection) {
			return true
		}
	}
	return false
}

// hasSignificantContent reports whether a block carries anything beyond
// bookkeeping keys.
func hasSignificantContent(block map[string]any) bool {
	for key := range block {
		if !ignoredKey(key) {
			return true
		}
	}
	return false
}

func ignoredKey(key string) bool {
	if strings.HasPrefix(key, "_") {
		return true
	}
	_, ok := ignoredFields[key]
	return ok
}

func blockChanged(prev, next map[string]any) bool {
	for key, nextVal := range next {
		if ignoredKey(key) {
			continue
		}
		prevVal, ok := prev[key]
		if !ok {
			return true
		}
		if _, always := alwaysSignificant[key]; always {
			if !strictEqual(prevVal, nextVal) {
				return true
			}
			continue
		}
		if valueChanged(prevVal, nextVal) {
			return true
		}
	}
	for key := range prev {
		if ignoredKey(key) {
			continue
		}
		if _, ok := next[key]; !ok {
			return true
		}
	}
	return false
}

// valueChanged applies the per-type significance rules.
func valueChanged(prev, next any) bool {
	if prevNum, ok := asFloat(prev); ok {
		nextNum, ok := asFloat(next)
		if !ok {
			return true
		}
		return numericChanged(prevNum, nextNum)
	}

	if prevList, ok := asStringSlice(prev); ok {
		nextList, ok := asStringSlice(next)
		if !ok {
			return true
		}
		return !stringSetEqual(prevList, nextList)
	}

	if prevMap, ok := asMap(prev); ok {
		nextMap, ok := asMap(next)
		if !ok {
			return true
		}
		return blockChanged(prevMap, nextMap)
	}

	return !strictEqual(prev, next)
}

// numericChanged applies the 2% relative-change rule, with zero to
// non-zero transitions always significant.
func numericChanged(prev, next float64) bool {
	if prev == next {
		return false
	}
	if prev == 0 || next == 0 {
		return true
	}
	// Relative to the previous value: 100 to 102 is exactly 2% and counts.
	return abs(next-prev)/abs(prev) >= relativeThreshold
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s]++
	}
	for _, s := range b {
		if set[s] == 0 {
			return false
		}
		set[s]--
	}
	return true
}

// strictEqual compares scalars and recursively compares maps and slices.
// Numbers of different Go types compare by value.
func strictEqual(a, b any) bool {
	if aNum, ok := asFloat(a); ok {
		bNum, ok := asFloat(b)
		return ok && aNum == bNum
	}
	if aMap, ok := asMap(a); ok {
		bMap, ok := asMap(b)
		if !ok || len(aMap) != len(bMap) {
			return false
		}
		for key, av := range aMap {
			bv, present := bMap[key]
			if !present || !strictEqual(av, bv) {
				return false
			}
		}
		return true
	}
	if aSlice, ok := a.([]any); ok {
		bSlice, ok := b.([]any)
		if !ok || len(aSlice) != len(bSlice) {
			return false
		}
		for i := range aSlice {
			if !strictEqual(aSlice[i], bSlice[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// asFloat widens any JSON-decodable number to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asStringSlice accepts []string directly and []any holding only strings
// (the shape JSON decoding produces).
func asStringSlice(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Section:
		return map[string]any(m), true
	}
	return nil, false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
