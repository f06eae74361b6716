package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/priority"
	"github.com/mockbroker/research-engine/internal/universe"
)

func newTestScheduler(t *testing.T, assets ...domain.AssetMeta) *Scheduler {
	t.Helper()

	rdb, mock := redismock.NewClientMock()
	c := cache.NewFromRedis(rdb, zerolog.Nop())

	payload, err := json.Marshal(assets)
	require.NoError(t, err)
	mock.ExpectGet(cache.KeyUniverseAssets).SetVal(string(payload))

	catalogue := universe.New(universe.Config{Cache: c, Log: zerolog.Nop()})
	if len(assets) > 0 {
		_, err = catalogue.Reload(context.Background())
		require.NoError(t, err)
	}

	s, err := New(Config{
		Catalogue: catalogue,
		Tiers:     priority.New(c, zerolog.Nop()),
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestLoadJobsTable(t *testing.T) {
	jobs, err := loadJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 11)

	names := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		names[job.Name] = struct{}{}
		assert.NotEmpty(t, job.Select, "job %s has no selectors", job.Name)
		if len(job.Override) > 0 {
			assert.Empty(t, job.Priority, "job %s mixes override and priority", job.Name)
		}
	}
	// The history-maintenance hook keys off this job.
	assert.Contains(t, names, maintenanceJob)
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		name string
		job  jobSpec
		want string
	}{
		{
			name: "daily",
			job:  jobSpec{Name: "a", Time: "02:00", Days: []string{"daily"}},
			want: "00 02 * * *",
		},
		{
			name: "weekdays",
			job:  jobSpec{Name: "b", Time: "08:15", Days: []string{"mon", "tue", "wed", "thu", "fri"}},
			want: "15 08 * * MON,TUE,WED,THU,FRI",
		},
		{
			name: "sunday",
			job:  jobSpec{Name: "c", Time: "23:30", Days: []string{"sun"}},
			want: "30 23 * * SUN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := tt.job.cronExpr()
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr)
		})
	}

	_, err := jobSpec{Name: "bad", Time: "0800"}.cronExpr()
	assert.Error(t, err)
}

// London clocks jump from 01:00 GMT to 02:00 BST on the last Sunday of
// March. Jobs keep their wall-clock firing time across the transition,
// so the UTC instant shifts by an hour and the short night fires only
// 23 hours after the previous run.
func TestJobScheduleAcrossSpringForward(t *testing.T) {
	loc, err := time.LoadLocation(schedulerTimezone)
	require.NoError(t, err)

	jobs, err := loadJobs()
	require.NoError(t, err)
	var daily jobSpec
	for _, job := range jobs {
		if job.Name == "asian_crypto_daily" {
			daily = job
		}
	}
	require.Equal(t, "asian_crypto_daily", daily.Name)

	expr, err := daily.cronExpr()
	require.NoError(t, err)
	schedule, err := cron.ParseStandard(expr)
	require.NoError(t, err)

	// 2026-03-28 is the Saturday before the transition.
	saturday := time.Date(2026, time.March, 28, 0, 0, 0, 0, loc)
	beforeChange := schedule.Next(saturday)
	afterChange := schedule.Next(beforeChange)
	followingDay := schedule.Next(afterChange)

	// Saturday's run fires at 02:00 GMT.
	assert.Equal(t, time.Date(2026, time.March, 28, 2, 0, 0, 0, time.UTC), beforeChange.UTC())
	// Sunday's run fires at 02:00 BST, which is 01:00 UTC.
	assert.Equal(t, time.Date(2026, time.March, 29, 1, 0, 0, 0, time.UTC), afterChange.UTC())
	assert.Equal(t, 23*time.Hour, afterChange.Sub(beforeChange))
	// After the transition the 24-hour cadence resumes.
	assert.Equal(t, 24*time.Hour, followingDay.Sub(afterChange))

	// The wall-clock reading in London is 02:00 on both sides.
	for _, fire := range []time.Time{beforeChange, afterChange, followingDay} {
		assert.Equal(t, 2, fire.In(loc).Hour())
		assert.Equal(t, 0, fire.In(loc).Minute())
	}
}

func TestSymbolLimit(t *testing.T) {
	assert.Equal(t, defaultSymbolLimit, jobSpec{}.symbolLimit())
	assert.Equal(t, 400, jobSpec{Limit: 400}.symbolLimit())
}

func TestRegionOf(t *testing.T) {
	s := newTestScheduler(t,
		domain.AssetMeta{Ticker: "BABA", Country: "China", QuoteType: domain.QuoteEquity},
		domain.AssetMeta{Ticker: "TSM", Country: "Taiwan", QuoteType: domain.QuoteEquity},
	)

	tests := []struct {
		symbol string
		want   string
	}{
		{"AAPL", RegionUS},
		{"SPY", RegionUS},
		{"SHEL.L", RegionUKEU},
		{"MC.PA", RegionUKEU},
		{"SAP.DE", RegionUKEU},
		{"ASML.AS", RegionUKEU},
		{"BTC-USD", RegionCrypto},
		{"EURUSD=X", RegionCommodityFX},
		{"GC=F", RegionCommodityFX},
		{"7203.T", RegionAsianADR},
		{"0700.HK", RegionAsianADR},
		// ADRs trade on US exchanges; home country decides the region.
		{"BABA", RegionAsianADR},
		{"TSM", RegionAsianADR},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, s.regionOf(tt.symbol))
		})
	}
}

func TestSelectSymbolsFiltersByRegionAndTier(t *testing.T) {
	s := newTestScheduler(t)

	job := jobSpec{
		Name:   "crypto_only",
		Select: []selector{{Region: RegionCrypto, Tiers: []int{1}}},
	}
	symbols := s.selectSymbols(job)
	require.NotEmpty(t, symbols)
	for _, symbol := range symbols {
		assert.Equal(t, RegionCrypto, s.regionOf(symbol), "symbol %s", symbol)
	}
	assert.Contains(t, symbols, "BTC-USD")
	assert.NotContains(t, symbols, "AAPL")
}

func TestSelectSymbolsDeduplicates(t *testing.T) {
	s := newTestScheduler(t)

	job := jobSpec{
		Name: "overlap",
		Select: []selector{
			{Region: RegionUS, Tiers: []int{1}},
			{Region: RegionUS, Tiers: []int{1, 2}},
		},
	}
	symbols := s.selectSymbols(job)
	seen := make(map[string]int)
	for _, symbol := range symbols {
		seen[symbol]++
	}
	for symbol, n := range seen {
		assert.Equal(t, 1, n, "symbol %s selected %d times", symbol, n)
	}
}

func TestSelectSymbolsEmptySelectorMatchesAllRegions(t *testing.T) {
	s := newTestScheduler(t)

	job := jobSpec{
		Name:   "weekly",
		Select: []selector{{Tiers: []int{1, 2}}},
	}
	symbols := s.selectSymbols(job)
	assert.Contains(t, symbols, "AAPL")
	assert.Contains(t, symbols, "BTC-USD")
	assert.Contains(t, symbols, "SHEL.L")
}

func TestSchedulerStatusReportsNextRuns(t *testing.T) {
	s := newTestScheduler(t)

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 11, status.JobCount)
	require.Len(t, status.Jobs, 11)
	for _, job := range status.Jobs {
		assert.False(t, job.NextRun.IsZero(), "job %s has no next run", job.Name)
		assert.True(t, job.NextRun.After(time.Now().Add(-time.Minute)), "job %s next run in the past", job.Name)
	}
}

func TestTriggerSweepNowRejectsBadTier(t *testing.T) {
	s := newTestScheduler(t)

	_, _, err := s.TriggerSweepNow(0, "")
	assert.Error(t, err)
	_, _, err = s.TriggerSweepNow(4, "")
	assert.Error(t, err)
}
