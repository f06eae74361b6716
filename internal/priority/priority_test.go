package priority

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockbroker/research-engine/internal/cache"
)

func newTestManager(t *testing.T) (*Manager, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return New(cache.NewFromRedis(db, zerolog.Nop()), zerolog.Nop()), mock
}

func TestSeedsAssignTiers(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Equal(t, Tier1, m.TierOf("AAPL"))
	assert.Equal(t, Tier1, m.TierOf("BTC-USD"))
	assert.Equal(t, Tier2, m.TierOf("BABA"))
	assert.Equal(t, Tier2, m.TierOf("GC=F"))
	assert.Equal(t, Tier3, m.TierOf("OBSCURE"))

	counts := m.Counts()
	assert.GreaterOrEqual(t, counts[Tier1], 55)
	assert.GreaterOrEqual(t, counts[Tier2], 85)
}

func TestSeedListsDisjoint(t *testing.T) {
	seen := make(map[string]struct{}, len(tier1Seeds))
	for _, s := range tier1Seeds {
		_, dup := seen[s]
		require.False(t, dup, "duplicate tier1 seed %s", s)
		seen[s] = struct{}{}
	}
	for _, s := range tier2Seeds {
		_, overlap := seen[s]
		require.False(t, overlap, "tier2 seed %s overlaps tier1", s)
		seen[s] = struct{}{}
	}
}

func TestRecordViewPromotes(t *testing.T) {
	m, _ := newTestManager(t)

	m.RecordView("zzzz")
	assert.Equal(t, Tier2, m.TierOf("ZZZZ"))

	m.RecordView("ZZZZ")
	assert.Equal(t, Tier2, m.TierOf("ZZZZ"))

	m.RecordView("ZZZZ")
	assert.Equal(t, Tier1, m.TierOf("ZZZZ"))
}

func TestRecordViewNeverDemotesTier1(t *testing.T) {
	m, _ := newTestManager(t)

	m.RecordView("AAPL")
	assert.Equal(t, Tier1, m.TierOf("AAPL"))
}

func TestSetWatchlistPromotesAndPersists(t *testing.T) {
	m, mock := newTestManager(t)

	persisted, err := json.Marshal([]string{"NEWCO", "TSLA"})
	require.NoError(t, err)
	mock.ExpectSet(cache.KeyWatchlist, persisted, 0).SetVal("OK")

	require.NoError(t, m.SetWatchlist(context.Background(), []string{"tsla", "NEWCO"}))

	assert.Equal(t, Tier1, m.TierOf("NEWCO"))
	assert.Equal(t, Tier1, m.TierOf("TSLA"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchlistedSymbolResistsDemotion(t *testing.T) {
	m, mock := newTestManager(t)
	mock.Regexp().ExpectSet(cache.KeyWatchlist, `.*`, 0).SetVal("OK")

	require.NoError(t, m.SetWatchlist(context.Background(), []string{"NEWCO"}))

	m.Promote("NEWCO", Tier3)
	assert.Equal(t, Tier1, m.TierOf("NEWCO"))

	m.Promote("AAPL", Tier3) // not watchlisted: demotion allowed
	assert.Equal(t, Tier3, m.TierOf("AAPL"))
}

func TestLoadUniverse(t *testing.T) {
	m, _ := newTestManager(t)

	m.LoadUniverse([]string{"AAPL", "BABA", "NEWONE", "ANOTHER"})

	// Existing assignments untouched.
	assert.Equal(t, Tier1, m.TierOf("AAPL"))
	assert.Equal(t, Tier2, m.TierOf("BABA"))
	// New symbols become tier 3.
	assert.Equal(t, Tier3, m.TierOf("NEWONE"))
	assert.Contains(t, m.Symbols(Tier3), "ANOTHER")
}

func TestSymbolMembershipIsExclusive(t *testing.T) {
	m, _ := newTestManager(t)

	m.LoadUniverse([]string{"MOVER"})
	require.Equal(t, Tier3, m.TierOf("MOVER"))

	m.Promote("MOVER", Tier1)
	assert.Equal(t, Tier1, m.TierOf("MOVER"))
	assert.Contains(t, m.Symbols(Tier1), "MOVER")
	assert.NotContains(t, m.Symbols(Tier3), "MOVER")
}

func TestRestoreWatchlist(t *testing.T) {
	m, mock := newTestManager(t)

	stored, err := json.Marshal([]string{"HOOD", "COIN"})
	require.NoError(t, err)
	mock.ExpectGet(cache.KeyWatchlist).SetVal(string(stored))

	require.NoError(t, m.RestoreWatchlist(context.Background()))
	assert.Equal(t, Tier1, m.TierOf("HOOD"))
	assert.Equal(t, Tier1, m.TierOf("COIN"))
}

func TestRestoreWatchlistMissingKey(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectGet(cache.KeyWatchlist).RedisNil()

	assert.NoError(t, m.RestoreWatchlist(context.Background()))
}
