// Package bots contains the data-source adapters that assemble research
// payloads. Each bot fetches one slice of research from one or more
// external providers and normalises it into a BotResult; the Runner wraps
// every invocation with per-bot caching, rate-limiter acquisition and
// error capture.
package bots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// Canonical bot names. These appear in cache keys and envelope meta, so
// they are contracts.
const (
	NameNews         = "news"
	NameEarnings     = "earnings"
	NameMacro        = "macro"
	NameInsider      = "insider"
	NameFundamentals = "fundamentals"
	NameTechnicals   = "technicals"
	NameAnalyst      = "analyst"
)

// Bot is the uniform adapter contract.
type Bot interface {
	// Name identifies the bot in cache keys and envelope meta.
	Name() string
	// CacheTTL bounds how long a cached result may be reused.
	CacheTTL() time.Duration
	// Providers lists the providers the bot will hit first for this
	// asset; the runner acquires one rate-limit token per entry before
	// Fetch runs. Fallback providers are acquired inside the adapter.
	Providers(meta domain.AssetMeta) []string
	// Fetch produces the bot's research slice for the asset.
	Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error)
}

// Registry is the fixed name-keyed bot set.
type Registry struct {
	bots  map[string]Bot
	order []string
}

// NewRegistry builds a registry preserving registration order.
func NewRegistry(all ...Bot) *Registry {
	r := &Registry{bots: make(map[string]Bot, len(all))}
	for _, b := range all {
		r.bots[b.Name()] = b
		r.order = append(r.order, b.Name())
	}
	return r
}

// Get returns the bot registered under name.
func (r *Registry) Get(name string) (Bot, bool) {
	b, ok := r.bots[name]
	return b, ok
}

// Names returns all registered bot names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// assetTypePolicy maps asset type to the bot subset that applies.
var assetTypePolicy = map[domain.AssetType][]string{
	domain.AssetStock:     {NameNews, NameEarnings, NameMacro, NameInsider, NameFundamentals, NameTechnicals, NameAnalyst},
	domain.AssetETF:       {NameMacro, NameNews, NameTechnicals},
	domain.AssetCrypto:    {NameMacro, NameNews, NameTechnicals},
	domain.AssetForex:     {NameMacro, NameTechnicals},
	domain.AssetCommodity: {NameMacro, NameTechnicals},
}

// BotsForAssetType returns the bot names that apply to the asset type.
func BotsForAssetType(at domain.AssetType) []string {
	names, ok := assetTypePolicy[at]
	if !ok {
		names = assetTypePolicy[domain.AssetStock]
	}
	return append([]string(nil), names...)
}

// Runner executes bots with the framework behaviour wrapped around the
// adapter code.
type Runner struct {
	cache   *cache.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// NewRunner creates a bot runner.
func NewRunner(c *cache.Client, limiter *ratelimit.Limiter, log zerolog.Logger) *Runner {
	return &Runner{
		cache:   c,
		limiter: limiter,
		log:     log.With().Str("component", "bot_runner").Logger(),
	}
}

// Cached returns the still-fresh cached result for the bot, when one
// exists. Used by the sweeper to partition bots before fan-out.
func (r *Runner) Cached(ctx context.Context, bot Bot, symbol string) (domain.BotResult, bool) {
	var result domain.BotResult
	found, err := r.cache.Get(ctx, cache.BotKey(symbol, bot.Name()), &result)
	if err != nil {
		r.log.Warn().Err(err).Str("bot", bot.Name()).Str("symbol", symbol).Msg("Per-bot cache read failed")
		return domain.BotResult{}, false
	}
	if !found || result.Failed() {
		return domain.BotResult{}, false
	}
	return result, true
}

// Run executes one bot for one asset: rate-limiter acquisition for the
// bot's providers, then the adapter, with panics and errors captured into
// a failed BotResult so a single bot can never abort a sweep.
func (r *Runner) Run(ctx context.Context, bot Bot, meta domain.AssetMeta) domain.BotResult {
	for _, provider := range bot.Providers(meta) {
		if err := r.limiter.Acquire(ctx, provider, 1); err != nil {
			return failedResult(bot, meta, fmt.Errorf("rate limiter: %w", err))
		}
	}

	result, err := r.runAdapter(ctx, bot, meta)
	if err != nil {
		r.log.Warn().Err(err).Str("bot", bot.Name()).Str("symbol", meta.Ticker).Msg("Bot fetch failed")
		return failedResult(bot, meta, err)
	}

	result.BotName = bot.Name()
	result.Ticker = meta.Ticker
	sanitizeSignals(&result)
	return result
}

func (r *Runner) runAdapter(ctx context.Context, bot Bot, meta domain.AssetMeta) (result domain.BotResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bot %s panicked: %v", bot.Name(), rec)
		}
	}()
	return bot.Fetch(ctx, meta)
}

// StoreResult writes a successful result to the per-bot cache with the
// bot's TTL. Write failures are logged and swallowed — the next sweep
// retries.
func (r *Runner) StoreResult(ctx context.Context, bot Bot, result domain.BotResult) {
	if result.Failed() {
		return
	}
	// The sweeper reads with the uppercased symbol; key the write the
	// same way regardless of how the ticker arrived.
	key := cache.BotKey(strings.ToUpper(result.Ticker), bot.Name())
	if err := r.cache.Set(ctx, key, result, bot.CacheTTL()); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Per-bot cache write failed")
	}
}

// sanitizeSignals drops unknown signal keys and clamps known ones to the
// declared ranges, and bounds confidence to [0,1].
func sanitizeSignals(result *domain.BotResult) {
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	for key, value := range result.SignalInputs {
		clamped, ok := domain.ClampSignal(key, value)
		if !ok {
			delete(result.SignalInputs, key)
			continue
		}
		result.SignalInputs[key] = clamped
	}
}

func failedResult(bot Bot, meta domain.AssetMeta, err error) domain.BotResult {
	return domain.BotResult{
		BotName: bot.Name(),
		Ticker:  meta.Ticker,
		Err:     err.Error(),
	}
}
