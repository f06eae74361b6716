// Package priority assigns every universe symbol to one of three sweep
// tiers. Tier 1 is swept on every scheduled cycle, tier 2 on full
// cycles, tier 3 weekly. Watchlisted and frequently viewed symbols move
// up; everything else from the universe feed lands in tier 3.
package priority

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/cache"
)

// Tier is a sweep priority band.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// viewsForTier1 and viewsForTier2 are the promotion thresholds applied by
// RecordView.
const (
	viewsForTier1 = 3
	viewsForTier2 = 1
)

// Manager holds the tier assignment, view counts and the persisted
// watchlist. All methods are safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	tiers     map[string]Tier
	order     map[Tier][]string
	views     map[string]int
	watchlist map[string]struct{}
	cache     *cache.Client
	log       zerolog.Logger
}

// New creates a manager seeded with the static tier 1 and tier 2 lists.
func New(c *cache.Client, log zerolog.Logger) *Manager {
	m := &Manager{
		tiers:     make(map[string]Tier, 256),
		order:     map[Tier][]string{},
		views:     make(map[string]int),
		watchlist: make(map[string]struct{}),
		cache:     c,
		log:       log.With().Str("component", "priority").Logger(),
	}
	for _, symbol := range tier1Seeds {
		m.assignLocked(symbol, Tier1)
	}
	for _, symbol := range tier2Seeds {
		m.assignLocked(symbol, Tier2)
	}
	return m
}

// RestoreWatchlist loads the persisted watchlist from the cache. Called
// once at startup; a missing key is not an error.
func (m *Manager) RestoreWatchlist(ctx context.Context) error {
	var symbols []string
	found, err := m.cache.Get(ctx, cache.KeyWatchlist, &symbols)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	m.applyWatchlist(symbols)
	m.log.Info().Int("symbols", len(symbols)).Msg("Watchlist restored")
	return nil
}

// SetWatchlist replaces the watchlist, promotes its symbols to tier 1 and
// persists the new list. Symbols leaving the watchlist keep tier 1 until
// demoted explicitly.
func (m *Manager) SetWatchlist(ctx context.Context, symbols []string) error {
	m.applyWatchlist(symbols)

	m.mu.Lock()
	persisted := make([]string, 0, len(m.watchlist))
	for symbol := range m.watchlist {
		persisted = append(persisted, symbol)
	}
	m.mu.Unlock()
	sort.Strings(persisted)

	if err := m.cache.Set(ctx, cache.KeyWatchlist, persisted, 0); err != nil {
		m.log.Warn().Err(err).Msg("Watchlist persist failed")
		return err
	}
	return nil
}

func (m *Manager) applyWatchlist(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlist = make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		symbol := normalize(raw)
		if symbol == "" {
			continue
		}
		m.watchlist[symbol] = struct{}{}
		m.assignLocked(symbol, Tier1)
	}
}

// RecordView bumps a symbol's view count and promotes it when the count
// crosses a threshold. Views never demote.
func (m *Manager) RecordView(symbol string) {
	symbol = normalize(symbol)
	if symbol == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[symbol]++
	count := m.views[symbol]

	switch {
	case count >= viewsForTier1:
		m.assignLocked(symbol, Tier1)
	case count >= viewsForTier2:
		if m.tiers[symbol] != Tier1 {
			m.assignLocked(symbol, Tier2)
		}
	}
}

// Promote moves a symbol to an explicit tier. Watchlisted symbols never
// leave tier 1.
func (m *Manager) Promote(symbol string, tier Tier) {
	symbol = normalize(symbol)
	if symbol == "" || tier < Tier1 || tier > Tier3 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, watched := m.watchlist[symbol]; watched && tier != Tier1 {
		return
	}
	m.assignLocked(symbol, tier)
}

// LoadUniverse registers the universe symbol set: anything not already in
// tier 1 or 2 becomes tier 3.
func (m *Manager) LoadUniverse(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range symbols {
		symbol := normalize(raw)
		if symbol == "" {
			continue
		}
		if _, known := m.tiers[symbol]; !known {
			m.assignLocked(symbol, Tier3)
		}
	}
}

// TierOf reports the symbol's current tier; unknown symbols are tier 3.
func (m *Manager) TierOf(symbol string) Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tier, ok := m.tiers[normalize(symbol)]; ok {
		return tier
	}
	return Tier3
}

// Symbols returns the ordered member list of a tier.
func (m *Manager) Symbols(tier Tier) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order[tier]...)
}

// Counts reports the membership size per tier, for the health endpoint.
func (m *Manager) Counts() map[Tier]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Tier]int, 3)
	for tier, list := range m.order {
		counts[tier] = len(list)
	}
	return counts
}

// assignLocked moves a symbol between tier member lists. Caller holds mu.
func (m *Manager) assignLocked(symbol string, tier Tier) {
	current, known := m.tiers[symbol]
	if known && current == tier {
		return
	}
	if known {
		m.order[current] = removeSymbol(m.order[current], symbol)
	}
	m.tiers[symbol] = tier
	m.order[tier] = append(m.order[tier], symbol)
}

func removeSymbol(list []string, symbol string) []string {
	for i, s := range list {
		if s == symbol {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
