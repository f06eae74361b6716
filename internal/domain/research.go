package domain

import (
	"strings"
	"time"
	"unicode"
)

// Section names form the closed set of envelope data sections.
const (
	SectionNews         = "news"
	SectionPrice        = "price"
	SectionTechnicals   = "technicals"
	SectionFundamentals = "fundamentals"
	SectionAnalyst      = "analyst"
	SectionEarnings     = "earnings"
	SectionMacro        = "macro"
)

// Bookkeeping keys stamped into every section on assembly.
const (
	KeyFetchedAt = "_fetched_at"
	KeySource    = "_source"
)

// Bot status values recorded in ResearchMeta.Bots.
const (
	BotStatusSuccess = "success"
	BotStatusCached  = "cached"
	BotStatusFailed  = "failed"
	BotStatusSkipped = "skipped"
)

// MaxFactors caps the bull/bear factor lists on the envelope.
const MaxFactors = 6

// factorDedupPrefix is the case-folded prefix length used to consider two
// factor strings duplicates.
const factorDedupPrefix = 40

// BotResult is the transient output of one bot invocation. A non-nil Err
// marks the result as a failure; all other fields are then empty.
type BotResult struct {
	BotName      string             `json:"bot_name"`
	Ticker       string             `json:"ticker"`
	SignalInputs map[string]float64 `json:"signal_inputs,omitempty"`
	BullFactors  []string           `json:"bull_factors,omitempty"`
	BearFactors  []string           `json:"bear_factors,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Confidence   float64            `json:"confidence"`
	Source       string             `json:"source,omitempty"`
	// Raw holds the source-specific detail block keyed by section name.
	// The sweeper copies it into the envelope verbatim; the delta detector
	// diffs it semantically.
	Raw map[string]map[string]any `json:"raw,omitempty"`
	Err string                    `json:"error,omitempty"`
}

// Failed reports whether the result represents a bot failure.
func (r BotResult) Failed() bool { return r.Err != "" }

// Section is one envelope data section: the bot's raw block plus the
// _fetched_at / _source stamps.
type Section map[string]any

// FetchedAt parses the section's _fetched_at stamp. Zero time when absent
// or malformed.
func (s Section) FetchedAt() time.Time {
	raw, ok := s[KeyFetchedAt].(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// ResearchMeta carries freshness and provenance bookkeeping for one
// envelope.
type ResearchMeta struct {
	Symbol        string            `json:"symbol"`
	LastUpdated   time.Time         `json:"last_updated"`
	SweepCycle    string            `json:"sweep_cycle"`
	Freshness     map[string]string `json:"freshness,omitempty"`
	Bots          map[string]string `json:"bots"`
	DeltaDetected bool              `json:"delta_detected"`
	StaleFields   []string          `json:"stale_fields,omitempty"`
	DataPoints    int               `json:"data_points"`
	BotsRun       int               `json:"bots_run"`
	SweepDuration float64           `json:"sweep_duration_s"`
}

// ResearchPayload is the canonical cache record served by the read
// endpoint, stored under research:<SYMBOL>.
type ResearchPayload struct {
	Symbol       string             `json:"symbol"`
	Data         map[string]Section `json:"data"`
	BullFactors  []string           `json:"bull_factors"`
	BearFactors  []string           `json:"bear_factors"`
	SignalInputs map[string]float64 `json:"signal_inputs"`
	Meta         ResearchMeta       `json:"meta"`
}

// DedupeFactors removes near-duplicate factor strings (matching on the
// first 40 lowercased characters) preserving order, and caps the list at
// MaxFactors entries.
func DedupeFactors(factors []string) []string {
	seen := make(map[string]struct{}, len(factors))
	out := make([]string, 0, MaxFactors)
	for _, f := range factors {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := factorKey(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
		if len(out) == MaxFactors {
			break
		}
	}
	return out
}

func factorKey(f string) string {
	folded := strings.Map(unicode.ToLower, f)
	runes := []rune(folded)
	if len(runes) > factorDedupPrefix {
		runes = runes[:factorDedupPrefix]
	}
	return string(runes)
}
