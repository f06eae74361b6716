package sweep

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockbroker/research-engine/internal/bots"
	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

type fakeBot struct {
	name    string
	ttl     time.Duration
	result  domain.BotResult
	err     error
	fetches int32
}

func (f *fakeBot) Name() string                        { return f.name }
func (f *fakeBot) CacheTTL() time.Duration             { return f.ttl }
func (f *fakeBot) Providers(domain.AssetMeta) []string { return nil }
func (f *fakeBot) Fetch(context.Context, domain.AssetMeta) (domain.BotResult, error) {
	atomic.AddInt32(&f.fetches, 1)
	return f.result, f.err
}

func newTestSweeper(t *testing.T, registry *bots.Registry) (*Sweeper, redismock.ClientMock) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	// Bot fan-out is concurrent, so per-bot cache writes arrive in
	// nondeterministic order.
	mock.MatchExpectationsInOrder(false)
	cacheClient := cache.NewFromRedis(db, zerolog.Nop())
	limiter := ratelimit.NewLimiter(ratelimit.DefaultBuckets, zerolog.Nop())

	sweeper := New(Config{
		Registry:  registry,
		Runner:    bots.NewRunner(cacheClient, limiter, zerolog.Nop()),
		Cache:     cacheClient,
		Gate:      ratelimit.NewSweepGate(1),
		ResultTTL: 2 * time.Hour,
		Log:       zerolog.Nop(),
	})
	return sweeper, mock
}

// cryptoMeta selects the three-bot subset so tests only need to mock a
// small bot set.
func cryptoMeta() domain.AssetMeta {
	return domain.AssetMeta{Ticker: "BTC-USD", Name: "Bitcoin", QuoteType: domain.QuoteCrypto}
}

func cryptoRegistry(macro, news, technicals *fakeBot) *bots.Registry {
	return bots.NewRegistry(macro, news, technicals)
}

func expectColdCache(mock redismock.ClientMock, symbol string, botNames ...string) {
	mock.ExpectGet(cache.ResearchKey(symbol)).RedisNil()
	for _, name := range botNames {
		mock.ExpectGet(cache.BotKey(symbol, name)).RedisNil()
	}
}

func TestSweepAssemblesEnvelope(t *testing.T) {
	macro := &fakeBot{name: bots.NameMacro, ttl: time.Hour, result: domain.BotResult{
		SignalInputs: map[string]float64{domain.SignalSectorFlow: 0.4},
		BullFactors:  []string{"Macro backdrop supportive"},
		Confidence:   0.75,
		Source:       "fred",
		Raw:          map[string]map[string]any{domain.SectionMacro: {"sector_flow": 0.4}},
	}}
	news := &fakeBot{name: bots.NameNews, ttl: time.Hour, result: domain.BotResult{
		SignalInputs: map[string]float64{domain.SignalSentiment: 0.6},
		BullFactors:  []string{"News flow positive"},
		Confidence:   0.6,
		Source:       "gnews",
		Raw:          map[string]map[string]any{domain.SectionNews: {"sentiment": 0.6}},
	}}
	technicals := &fakeBot{name: bots.NameTechnicals, ttl: time.Hour, result: domain.BotResult{
		Confidence: 0.9,
		Source:     "yahoo",
		Raw: map[string]map[string]any{
			domain.SectionPrice:      {"close": 64000.0},
			domain.SectionTechnicals: {"golden_cross": false},
		},
	}}

	sweeper, mock := newTestSweeper(t, cryptoRegistry(macro, news, technicals))
	expectColdCache(mock, "BTC-USD", bots.NameMacro, bots.NameNews, bots.NameTechnicals)
	// Per-bot writes plus the envelope write; values carry timestamps, so
	// match loosely.
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameMacro), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameNews), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameTechnicals), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{Meta: cryptoMeta(), Cycle: "test-cycle"})
	require.NoError(t, err)

	assert.Equal(t, "BTC-USD", payload.Symbol)
	assert.Equal(t, "test-cycle", payload.Meta.SweepCycle)
	assert.True(t, payload.Meta.DeltaDetected)
	assert.Equal(t, 3, payload.Meta.BotsRun)

	require.Contains(t, payload.Data, domain.SectionMacro)
	require.Contains(t, payload.Data, domain.SectionNews)
	require.Contains(t, payload.Data, domain.SectionPrice)
	require.Contains(t, payload.Data, domain.SectionTechnicals)

	// Sections carry bookkeeping stamps.
	newsSection := payload.Data[domain.SectionNews]
	assert.Equal(t, "gnews", newsSection[domain.KeySource])
	assert.False(t, newsSection.FetchedAt().IsZero())

	assert.Equal(t, 0.4, payload.SignalInputs[domain.SignalSectorFlow])
	assert.Equal(t, 0.6, payload.SignalInputs[domain.SignalSentiment])
	assert.Contains(t, payload.BullFactors, "Macro backdrop supportive")

	for _, name := range []string{bots.NameMacro, bots.NameNews, bots.NameTechnicals} {
		assert.Equal(t, domain.BotStatusSuccess, payload.Meta.Bots[name])
	}
}

func TestSweepAllBotsFailedStillWritesEnvelope(t *testing.T) {
	failing := func(name string) *fakeBot {
		return &fakeBot{name: name, ttl: time.Hour, err: assert.AnError}
	}
	sweeper, mock := newTestSweeper(t, cryptoRegistry(
		failing(bots.NameMacro), failing(bots.NameNews), failing(bots.NameTechnicals)))

	expectColdCache(mock, "BTC-USD", bots.NameMacro, bots.NameNews, bots.NameTechnicals)
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{Meta: cryptoMeta()})
	require.NoError(t, err)

	assert.Empty(t, payload.Data)
	assert.Equal(t, []string{"Research bots loading — signals stabilising"}, payload.BullFactors)
	assert.False(t, payload.Meta.DeltaDetected)
	for _, name := range []string{bots.NameMacro, bots.NameNews, bots.NameTechnicals} {
		assert.Equal(t, domain.BotStatusFailed, payload.Meta.Bots[name])
	}
}

func TestSweepReusesFreshBotCache(t *testing.T) {
	fresh := domain.BotResult{
		BotName:    bots.NameMacro,
		Ticker:     "BTC-USD",
		Confidence: 0.75,
		Source:     "fred",
		Raw: map[string]map[string]any{domain.SectionMacro: {
			"sector_flow":       0.4,
			domain.KeyFetchedAt: "2026-08-26T10:00:00Z",
			domain.KeySource:    "fred",
		}},
	}
	cachedJSON, err := json.Marshal(fresh)
	require.NoError(t, err)

	macro := &fakeBot{name: bots.NameMacro, ttl: time.Hour, err: assert.AnError} // must not run
	news := &fakeBot{name: bots.NameNews, ttl: time.Hour, result: domain.BotResult{
		Confidence: 0.5,
		Source:     "gnews",
		Raw:        map[string]map[string]any{domain.SectionNews: {"sentiment": 0.1}},
	}}
	technicals := &fakeBot{name: bots.NameTechnicals, ttl: time.Hour, err: assert.AnError}

	sweeper, mock := newTestSweeper(t, cryptoRegistry(macro, news, technicals))
	mock.ExpectGet(cache.ResearchKey("BTC-USD")).RedisNil()
	mock.ExpectGet(cache.BotKey("BTC-USD", bots.NameMacro)).SetVal(string(cachedJSON))
	mock.ExpectGet(cache.BotKey("BTC-USD", bots.NameNews)).RedisNil()
	mock.ExpectGet(cache.BotKey("BTC-USD", bots.NameTechnicals)).RedisNil()
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameNews), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{Meta: cryptoMeta()})
	require.NoError(t, err)

	assert.Equal(t, domain.BotStatusCached, payload.Meta.Bots[bots.NameMacro])
	assert.Equal(t, domain.BotStatusSuccess, payload.Meta.Bots[bots.NameNews])
	assert.Equal(t, domain.BotStatusFailed, payload.Meta.Bots[bots.NameTechnicals])
	assert.Equal(t, 2, payload.Meta.BotsRun)
	assert.Contains(t, payload.Data, domain.SectionMacro)
}

func TestSweepBotsOverrideRestrictsAndMarksSkipped(t *testing.T) {
	macro := &fakeBot{name: bots.NameMacro, ttl: time.Hour, result: domain.BotResult{
		Confidence: 0.7,
		Raw:        map[string]map[string]any{domain.SectionMacro: {"sector_flow": 0.2}},
	}}
	news := &fakeBot{name: bots.NameNews, ttl: time.Hour, err: assert.AnError} // must not run
	technicals := &fakeBot{name: bots.NameTechnicals, ttl: time.Hour, err: assert.AnError}

	sweeper, mock := newTestSweeper(t, cryptoRegistry(macro, news, technicals))
	mock.ExpectGet(cache.ResearchKey("BTC-USD")).RedisNil()
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameMacro), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{
		Meta:         cryptoMeta(),
		BotsOverride: []string{bots.NameMacro, bots.NameEarnings}, // earnings not allowed for crypto
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BotStatusSuccess, payload.Meta.Bots[bots.NameMacro])
	assert.Equal(t, domain.BotStatusSkipped, payload.Meta.Bots[bots.NameNews])
	assert.Equal(t, domain.BotStatusSkipped, payload.Meta.Bots[bots.NameTechnicals])
	assert.NotContains(t, payload.Meta.Bots, bots.NameEarnings)
	assert.EqualValues(t, 1, atomic.LoadInt32(&macro.fetches))
}

func TestSweepBotsOverrideBypassesBotCache(t *testing.T) {
	cached := domain.BotResult{
		BotName:    bots.NameMacro,
		Ticker:     "BTC-USD",
		Confidence: 0.75,
		Source:     "fred",
		Raw: map[string]map[string]any{domain.SectionMacro: {
			"sector_flow":       0.4,
			domain.KeyFetchedAt: "2026-08-26T10:00:00Z",
			domain.KeySource:    "fred",
		}},
	}
	cachedJSON, err := json.Marshal(cached)
	require.NoError(t, err)

	macro := &fakeBot{name: bots.NameMacro, ttl: time.Hour, result: domain.BotResult{
		Confidence: 0.8,
		Source:     "fred",
		Raw:        map[string]map[string]any{domain.SectionMacro: {"sector_flow": 0.6}},
	}}

	sweeper, mock := newTestSweeper(t, bots.NewRegistry(macro))
	mock.ExpectGet(cache.ResearchKey("BTC-USD")).RedisNil()
	// A fresh cached result is available; override sweeps must refetch
	// anyway, so this expectation stays unconsumed.
	mock.ExpectGet(cache.BotKey("BTC-USD", bots.NameMacro)).SetVal(string(cachedJSON))
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameMacro), `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{
		Meta:         cryptoMeta(),
		BotsOverride: []string{bots.NameMacro},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&macro.fetches))
	assert.Equal(t, domain.BotStatusSuccess, payload.Meta.Bots[bots.NameMacro])
	assert.Equal(t, 1, payload.Meta.BotsRun)

	// The refetched value, not the cached one, lands in the envelope.
	assert.Equal(t, 0.6, payload.Data[domain.SectionMacro]["sector_flow"])
}

func TestSweepNoDeltaWhenUnchangedButStillWrites(t *testing.T) {
	raw := map[string]any{"sector_flow": 0.4}
	macro := &fakeBot{name: bots.NameMacro, ttl: time.Hour, result: domain.BotResult{
		Confidence: 0.75,
		Raw:        map[string]map[string]any{domain.SectionMacro: raw},
	}}

	prev := domain.ResearchPayload{
		Symbol: "BTC-USD",
		Data: map[string]domain.Section{
			domain.SectionMacro: {"sector_flow": 0.4, domain.KeyFetchedAt: "2026-08-26T08:00:00Z"},
		},
	}
	prevJSON, err := json.Marshal(prev)
	require.NoError(t, err)

	sweeper, mock := newTestSweeper(t, bots.NewRegistry(macro))
	mock.ExpectGet(cache.ResearchKey("BTC-USD")).SetVal(string(prevJSON))
	mock.Regexp().ExpectSet(cache.BotKey("BTC-USD", bots.NameMacro), `.*`, time.Hour).SetVal("OK")
	// The envelope write happens despite no delta.
	mock.Regexp().ExpectSet(cache.ResearchKey("BTC-USD"), `.*`, 2*time.Hour).SetVal("OK")

	payload, err := sweeper.Sweep(context.Background(), Request{
		Meta:         cryptoMeta(),
		BotsOverride: []string{bots.NameMacro},
	})
	require.NoError(t, err)

	assert.False(t, payload.Meta.DeltaDetected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderByPriority(t *testing.T) {
	base := []string{"news", "earnings", "macro", "technicals"}
	got := orderByPriority(base, []string{"technicals", "macro"})
	assert.Equal(t, []string{"macro", "technicals", "news", "earnings"}, got)
}
