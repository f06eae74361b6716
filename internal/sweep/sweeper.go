// Package sweep assembles research envelopes. A sweep selects the bot
// set for an asset, reuses still-fresh per-bot results, fans the rest out
// concurrently, merges signals and factors, and writes the envelope to
// the cache whether or not anything changed.
package sweep

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/bots"
	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/metrics"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// fallbackFactor is served when a first sweep produces no data at all, so
// consumers see an explanation instead of an empty card.
const fallbackFactor = "Research bots loading — signals stabilising"

// Request describes one asset sweep.
type Request struct {
	Meta domain.AssetMeta
	// Force bypasses per-bot caches and reruns every selected bot.
	Force bool
	// Cycle labels the scheduler run this sweep belongs to. Empty means
	// ad-hoc; a label is generated.
	Cycle string
	// PriorityBots run first when no override is set.
	PriorityBots []string
	// BotsOverride restricts the sweep to these bots (intersected with
	// the asset type's allowed set). Override sweeps always refetch:
	// per-bot caches are bypassed as if Force were set.
	BotsOverride []string
}

// Config holds Sweeper dependencies.
type Config struct {
	Registry  *bots.Registry
	Runner    *bots.Runner
	Cache     *cache.Client
	Gate      *ratelimit.SweepGate
	ResultTTL time.Duration
	Log       zerolog.Logger
}

// Sweeper runs asset sweeps under the concurrency gate.
type Sweeper struct {
	registry  *bots.Registry
	runner    *bots.Runner
	cache     *cache.Client
	gate      *ratelimit.SweepGate
	resultTTL time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a sweeper.
func New(cfg Config) *Sweeper {
	return &Sweeper{
		registry:  cfg.Registry,
		runner:    cfg.Runner,
		cache:     cfg.Cache,
		gate:      cfg.Gate,
		resultTTL: cfg.ResultTTL,
		now:       time.Now,
		log:       cfg.Log.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep produces and stores the research envelope for one asset. The only
// error returned is gate/context cancellation; bot failures degrade into
// the envelope instead.
func (s *Sweeper) Sweep(ctx context.Context, req Request) (*domain.ResearchPayload, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	start := s.now()
	symbol := strings.ToUpper(req.Meta.Ticker)
	cycle := req.Cycle
	if cycle == "" {
		cycle = "adhoc-" + uuid.NewString()[:8]
	}

	selected, skipped := s.selectBots(req)
	statuses := make(map[string]string, len(selected)+len(skipped))
	for _, name := range skipped {
		statuses[name] = domain.BotStatusSkipped
	}

	var prev domain.ResearchPayload
	prevFound, err := s.cache.Get(ctx, cache.ResearchKey(symbol), &prev)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Previous envelope read failed")
		prevFound = false
	}

	// Override sweeps exist to refresh their bots right now, so they take
	// the force path even when Force was not set explicitly.
	force := req.Force || len(req.BotsOverride) > 0

	results := make([]domain.BotResult, len(selected))
	var toRun []int
	for i, bot := range selected {
		if !force {
			if cached, ok := s.runner.Cached(ctx, bot, symbol); ok {
				results[i] = cached
				statuses[bot.Name()] = domain.BotStatusCached
				metrics.BotRuns.WithLabelValues(bot.Name(), domain.BotStatusCached).Inc()
				continue
			}
		}
		toRun = append(toRun, i)
	}

	var wg sync.WaitGroup
	for _, i := range toRun {
		wg.Add(1)
		go func(i int, bot bots.Bot) {
			defer wg.Done()
			result := s.runner.Run(ctx, bot, req.Meta)
			if !result.Failed() {
				s.stampSections(&result, bot.Name())
				s.runner.StoreResult(ctx, bot, result)
			}
			results[i] = result
		}(i, selected[i])
	}
	wg.Wait()

	data := make(map[string]domain.Section)
	var bullRaw, bearRaw []string
	for i, bot := range selected {
		result := results[i]
		if result.Failed() {
			statuses[bot.Name()] = domain.BotStatusFailed
			metrics.BotRuns.WithLabelValues(bot.Name(), domain.BotStatusFailed).Inc()
			continue
		}
		if statuses[bot.Name()] != domain.BotStatusCached {
			statuses[bot.Name()] = domain.BotStatusSuccess
			metrics.BotRuns.WithLabelValues(bot.Name(), domain.BotStatusSuccess).Inc()
		}
		for sectionName, block := range result.Raw {
			section, ok := data[sectionName]
			if !ok {
				section = domain.Section{}
				data[sectionName] = section
			}
			for key, value := range block {
				section[key] = value
			}
		}
		bullRaw = append(bullRaw, result.BullFactors...)
		bearRaw = append(bearRaw, result.BearFactors...)
	}

	now := s.now().UTC()
	payload := &domain.ResearchPayload{
		Symbol:       symbol,
		Data:         data,
		BullFactors:  domain.DedupeFactors(bullRaw),
		BearFactors:  domain.DedupeFactors(bearRaw),
		SignalInputs: MergeSignals(results),
		Meta: domain.ResearchMeta{
			Symbol:        symbol,
			LastUpdated:   now,
			SweepCycle:    cycle,
			Freshness:     FreshnessLabels(data, now),
			Bots:          statuses,
			DataPoints:    countDataPoints(data),
			BotsRun:       len(toRun),
			SweepDuration: round3(s.now().Sub(start).Seconds()),
		},
	}
	if len(data) == 0 && len(payload.BullFactors) == 0 {
		payload.BullFactors = []string{fallbackFactor}
	}

	delta := len(data) > 0
	if prevFound {
		delta = DataChanged(prev.Data, data)
	}
	payload.Meta.DeltaDetected = delta
	if delta {
		metrics.DeltasDetected.Inc()
	}

	if err := s.cache.Set(ctx, cache.ResearchKey(symbol), payload, s.resultTTL); err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Envelope write failed")
	}

	outcome := "ok"
	if len(data) == 0 {
		outcome = "empty"
	}
	metrics.SweepsTotal.WithLabelValues(outcome).Inc()
	metrics.SweepDuration.Observe(payload.Meta.SweepDuration)

	s.log.Info().
		Str("symbol", symbol).
		Str("cycle", cycle).
		Int("bots_run", len(toRun)).
		Int("sections", len(data)).
		Bool("delta", delta).
		Float64("duration_s", payload.Meta.SweepDuration).
		Msg("Sweep complete")
	return payload, nil
}

// selectBots resolves the bot list for the request: the asset type's
// allowed set, restricted by an override or reordered by priority.
// Returns the selected bots plus the names excluded by an override.
func (s *Sweeper) selectBots(req Request) ([]bots.Bot, []string) {
	allowed := bots.BotsForAssetType(req.Meta.AssetType())

	names := allowed
	var skipped []string
	if len(req.BotsOverride) > 0 {
		allowedSet := make(map[string]struct{}, len(allowed))
		for _, name := range allowed {
			allowedSet[name] = struct{}{}
		}
		names = names[:0:0]
		chosen := make(map[string]struct{}, len(req.BotsOverride))
		for _, name := range req.BotsOverride {
			if _, ok := allowedSet[name]; ok {
				names = append(names, name)
				chosen[name] = struct{}{}
			}
		}
		for _, name := range allowed {
			if _, ok := chosen[name]; !ok {
				skipped = append(skipped, name)
			}
		}
	} else if len(req.PriorityBots) > 0 {
		names = orderByPriority(allowed, req.PriorityBots)
	}

	selected := make([]bots.Bot, 0, len(names))
	for _, name := range names {
		if bot, ok := s.registry.Get(name); ok {
			selected = append(selected, bot)
		}
	}
	return selected, skipped
}

// orderByPriority moves the priority names to the front, preserving the
// base order within each group.
func orderByPriority(base, priority []string) []string {
	prioritySet := make(map[string]struct{}, len(priority))
	for _, name := range priority {
		prioritySet[name] = struct{}{}
	}
	out := make([]string, 0, len(base))
	for _, name := range base {
		if _, ok := prioritySet[name]; ok {
			out = append(out, name)
		}
	}
	for _, name := range base {
		if _, ok := prioritySet[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// stampSections writes the _fetched_at/_source bookkeeping keys into each
// raw section so both the per-bot cache and the envelope carry them.
func (s *Sweeper) stampSections(result *domain.BotResult, botName string) {
	stamp := s.now().UTC().Format(time.RFC3339)
	source := result.Source
	if source == "" {
		source = botName
	}
	for _, block := range result.Raw {
		block[domain.KeyFetchedAt] = stamp
		block[domain.KeySource] = source
	}
}

// countDataPoints tallies the substantive keys across all sections.
func countDataPoints(data map[string]domain.Section) int {
	count := 0
	for _, section := range data {
		for key := range section {
			if !ignoredKey(key) {
				count++
			}
		}
	}
	return count
}
