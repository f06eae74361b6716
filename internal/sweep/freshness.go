package sweep

import (
	"fmt"
	"sort"
	"time"

	"github.com/mockbroker/research-engine/internal/domain"
)

// sectionTTL is the per-section freshness budget. A section older than
// its budget is reported in meta.stale_fields at read time.
var sectionTTL = map[string]time.Duration{
	domain.SectionNews:         2 * time.Hour,
	domain.SectionPrice:        time.Hour,
	domain.SectionTechnicals:   time.Hour,
	domain.SectionFundamentals: 4 * time.Hour,
	domain.SectionAnalyst:      4 * time.Hour,
	domain.SectionEarnings:     4 * time.Hour,
	domain.SectionMacro:        30 * 24 * time.Hour,
}

// StaleFields returns the names of sections whose _fetched_at stamp has
// outlived the section's freshness budget, sorted for stable output.
// Sections without a parseable stamp are treated as stale.
func StaleFields(data map[string]domain.Section, now time.Time) []string {
	var stale []string
	for name, section := range data {
		ttl, ok := sectionTTL[name]
		if !ok {
			continue
		}
		fetched := section.FetchedAt()
		if fetched.IsZero() || now.Sub(fetched) > ttl {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale
}

// FreshnessLabels renders a human-readable age per section for the
// envelope meta.
func FreshnessLabels(data map[string]domain.Section, now time.Time) map[string]string {
	labels := make(map[string]string, len(data))
	for name, section := range data {
		fetched := section.FetchedAt()
		if fetched.IsZero() {
			labels[name] = "unknown"
			continue
		}
		labels[name] = AgeLabel(now.Sub(fetched))
	}
	return labels
}

// AgeLabel formats a duration as a compact age string: 45s, 12m, 3h, 2d.
func AgeLabel(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
