// Package scheduler drives the recurring sweep jobs. A single cron
// timeline in Europe/London dispatches each job; jobs walk their symbol
// list sequentially with a gentle pause, leaving burst control to the
// rate limiter and the sweep gate.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/database"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/metrics"
	"github.com/mockbroker/research-engine/internal/priority"
	"github.com/mockbroker/research-engine/internal/sweep"
	"github.com/mockbroker/research-engine/internal/universe"
)

const schedulerTimezone = "Europe/London"

// maintenanceJob names the weekly job that also trims the job-history
// store after its sweep.
const maintenanceJob = "tier3_weekly"

// Config holds Scheduler dependencies.
type Config struct {
	Sweeper   *sweep.Sweeper
	Catalogue *universe.Catalogue
	Tiers     *priority.Manager
	// History is optional; nil disables job-run persistence.
	History *database.JobHistory
	// InterAssetPause spaces consecutive symbol sweeps within a job.
	InterAssetPause time.Duration
	Log             zerolog.Logger
}

// Scheduler owns the cron timeline and the job table.
type Scheduler struct {
	cron      *cron.Cron
	jobs      []jobSpec
	entries   map[string]cron.EntryID
	sweeper   *sweep.Sweeper
	catalogue *universe.Catalogue
	tiers     *priority.Manager
	history   *database.JobHistory
	pause     time.Duration
	running   atomic.Bool
	log       zerolog.Logger
}

// New builds the scheduler and registers every job from the embedded
// table. Jobs do not run until Start.
func New(cfg Config) (*Scheduler, error) {
	loc, err := time.LoadLocation(schedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	jobs, err := loadJobs()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		jobs:      jobs,
		entries:   make(map[string]cron.EntryID, len(jobs)),
		sweeper:   cfg.Sweeper,
		catalogue: cfg.Catalogue,
		tiers:     cfg.Tiers,
		history:   cfg.History,
		pause:     cfg.InterAssetPause,
		log:       cfg.Log.With().Str("component", "scheduler").Logger(),
	}

	cronLog := &cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	for _, job := range jobs {
		job := job
		expr, err := job.cronExpr()
		if err != nil {
			return nil, err
		}
		id, err := s.cron.AddFunc(expr, func() { s.runJob(job) })
		if err != nil {
			return nil, fmt.Errorf("register job %s (%s): %w", job.Name, expr, err)
		}
		s.entries[job.Name] = id
	}
	return s, nil
}

// Start begins dispatching jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.running.Store(true)
	s.log.Info().Int("jobs", len(s.jobs)).Str("timezone", schedulerTimezone).Msg("Scheduler started")
}

// Stop halts dispatch and waits for running jobs up to the context
// deadline. Running jobs past the deadline are abandoned, not cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	s.running.Store(false)
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop grace period expired")
	}
}

// runJob executes one scheduled job over its selected symbols.
func (s *Scheduler) runJob(job jobSpec) {
	cycle := fmt.Sprintf("%s-%s", job.Name, uuid.NewString()[:8])
	started := time.Now().UTC()

	symbols := s.selectSymbols(job)
	if limit := job.symbolLimit(); len(symbols) > limit {
		s.log.Warn().Str("job", job.Name).Int("selected", len(symbols)).Int("limit", limit).
			Msg("Job symbol budget exceeded, truncating")
		symbols = symbols[:limit]
	}

	s.log.Info().Str("job", job.Name).Str("cycle", cycle).Int("symbols", len(symbols)).Msg("Job started")

	succeeded, failed := s.sweepSequentially(symbols, cycle, job.Priority, job.Override)

	outcome := "ok"
	if failed > 0 && succeeded == 0 {
		outcome = "failed"
	}
	metrics.ScheduledJobs.WithLabelValues(job.Name, outcome).Inc()

	finished := time.Now().UTC()
	s.log.Info().Str("job", job.Name).Str("cycle", cycle).
		Int("succeeded", succeeded).Int("failed", failed).
		Dur("took", finished.Sub(started)).Msg("Job finished")

	if s.history != nil {
		rec := database.JobRecord{
			ID:         uuid.NewString(),
			JobName:    job.Name,
			Cycle:      cycle,
			StartedAt:  started,
			FinishedAt: finished,
			Assets:     len(symbols),
			Succeeded:  succeeded,
			Failed:     failed,
		}
		if err := s.history.Record(context.Background(), rec); err != nil {
			s.log.Warn().Err(err).Str("job", job.Name).Msg("Job history write failed")
		}
		if job.Name == maintenanceJob {
			if err := s.history.Maintain(context.Background()); err != nil {
				s.log.Warn().Err(err).Str("job", job.Name).Msg("Job history maintenance failed")
			}
		}
	}
}

// sweepSequentially runs the symbols one at a time with the inter-asset
// pause between them.
func (s *Scheduler) sweepSequentially(symbols []string, cycle string, priorityBots, override []string) (succeeded, failed int) {
	for i, symbol := range symbols {
		if i > 0 && s.pause > 0 {
			time.Sleep(s.pause)
		}

		meta, ok := s.catalogue.Lookup(symbol)
		if !ok {
			// Sweep on ticker conventions alone; the universe feed may
			// lag behind tier promotions.
			meta = domain.AssetMeta{Ticker: symbol}
		}

		_, err := s.sweeper.Sweep(context.Background(), sweep.Request{
			Meta:         meta,
			Cycle:        cycle,
			PriorityBots: priorityBots,
			BotsOverride: override,
		})
		if err != nil {
			failed++
			s.log.Warn().Err(err).Str("symbol", symbol).Str("cycle", cycle).Msg("Sweep aborted")
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

// selectSymbols resolves the job's selectors against the tier lists,
// preserving tier order and deduplicating.
func (s *Scheduler) selectSymbols(job jobSpec) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sel := range job.Select {
		tiers := sel.Tiers
		if len(tiers) == 0 {
			tiers = []int{1, 2, 3}
		}
		for _, tier := range tiers {
			for _, symbol := range s.tiers.Symbols(priority.Tier(tier)) {
				if _, dup := seen[symbol]; dup {
					continue
				}
				if sel.Region != "" && s.regionOf(symbol) != sel.Region {
					continue
				}
				seen[symbol] = struct{}{}
				out = append(out, symbol)
			}
		}
	}
	return out
}

// asianCountries marks ADR home countries for the asian_adr filter.
var asianCountries = map[string]struct{}{
	"China": {}, "Japan": {}, "Taiwan": {}, "South Korea": {},
	"Hong Kong": {}, "India": {}, "Singapore": {},
}

var ukEUSuffixes = []string{".L", ".IL", ".PA", ".DE", ".AS"}
var asianSuffixes = []string{".T", ".HK", ".KS", ".AX"}

// regionOf classifies a symbol for job filtering.
func (s *Scheduler) regionOf(symbol string) string {
	meta, ok := s.catalogue.Lookup(symbol)
	if !ok {
		meta = domain.AssetMeta{Ticker: symbol}
	}

	switch meta.AssetType() {
	case domain.AssetCrypto:
		return RegionCrypto
	case domain.AssetForex, domain.AssetCommodity:
		return RegionCommodityFX
	}

	ticker := strings.ToUpper(meta.Ticker)
	for _, suffix := range ukEUSuffixes {
		if strings.HasSuffix(ticker, suffix) {
			return RegionUKEU
		}
	}
	for _, suffix := range asianSuffixes {
		if strings.HasSuffix(ticker, suffix) {
			return RegionAsianADR
		}
	}
	if _, ok := asianCountries[meta.Country]; ok {
		return RegionAsianADR
	}
	return RegionUS
}

// TriggerSweepNow schedules an out-of-band sweep of a tier without
// blocking the caller. Returns the symbol count and the cycle label.
func (s *Scheduler) TriggerSweepNow(tier int, cycle string) (int, string, error) {
	if tier < 1 || tier > 3 {
		return 0, "", fmt.Errorf("tier %d out of range", tier)
	}
	if cycle == "" {
		cycle = fmt.Sprintf("manual-t%d-%s", tier, uuid.NewString()[:8])
	}

	symbols := s.tiers.Symbols(priority.Tier(tier))
	go func() {
		succeeded, failed := s.sweepSequentially(symbols, cycle, nil, nil)
		s.log.Info().Str("cycle", cycle).Int("succeeded", succeeded).Int("failed", failed).
			Msg("Manual sweep finished")
	}()

	s.log.Info().Str("cycle", cycle).Int("tier", tier).Int("symbols", len(symbols)).
		Msg("Manual sweep triggered")
	return len(symbols), cycle, nil
}

// JobStatus is one job's scheduling state.
type JobStatus struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// Status describes the scheduler for the admin endpoint.
type Status struct {
	Running  bool        `json:"running"`
	JobCount int         `json:"job_count"`
	Jobs     []JobStatus `json:"jobs"`
}

// Status reports running state and per-job next-run times in table
// order.
func (s *Scheduler) Status() Status {
	status := Status{
		Running:  s.running.Load(),
		JobCount: len(s.jobs),
		Jobs:     make([]JobStatus, 0, len(s.jobs)),
	}
	for _, job := range s.jobs {
		id := s.entries[job.Name]
		entry := s.cron.Entry(id)
		status.Jobs = append(status.Jobs, JobStatus{
			ID:      int(id),
			Name:    job.Name,
			NextRun: entry.Next,
		})
	}
	return status
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
