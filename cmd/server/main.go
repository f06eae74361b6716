// Package main is the entry point for the market research engine. The
// process owns all outbound provider traffic: a cron scheduler sweeps the
// asset universe on a market-aware timetable, specialised bots normalise
// each data source, and the HTTP surface serves only from the cache.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mockbroker/research-engine/internal/bots"
	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/clients/alphavantage"
	"github.com/mockbroker/research-engine/internal/clients/edgar"
	"github.com/mockbroker/research-engine/internal/clients/fmp"
	"github.com/mockbroker/research-engine/internal/clients/fred"
	"github.com/mockbroker/research-engine/internal/clients/gnews"
	"github.com/mockbroker/research-engine/internal/clients/polygon"
	"github.com/mockbroker/research-engine/internal/clients/yahoo"
	"github.com/mockbroker/research-engine/internal/config"
	"github.com/mockbroker/research-engine/internal/database"
	"github.com/mockbroker/research-engine/internal/priority"
	"github.com/mockbroker/research-engine/internal/ratelimit"
	"github.com/mockbroker/research-engine/internal/scheduler"
	"github.com/mockbroker/research-engine/internal/server"
	"github.com/mockbroker/research-engine/internal/sweep"
	"github.com/mockbroker/research-engine/internal/universe"
	"github.com/mockbroker/research-engine/pkg/logger"
)

// shutdownGrace bounds how long running jobs and in-flight requests may
// take during shutdown before the process exits anyway.
const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Int("port", cfg.Port).Bool("dev_mode", cfg.DevMode).Msg("Research engine starting")

	cacheClient, err := cache.New(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer cacheClient.Close()

	limiter := ratelimit.NewLimiter(ratelimit.DefaultBuckets, log)
	gate := ratelimit.NewSweepGate(cfg.MaxConcurrentSweeps)

	gnewsClient := gnews.New(cfg.Keys.GNews, log)
	fmpClient := fmp.New(cfg.Keys.FMP, log)
	avClient := alphavantage.New(cfg.Keys.AlphaVantage, log)
	polygonClient := polygon.New(cfg.Keys.Polygon, log)
	fredClient := fred.New(cfg.Keys.FRED, log)
	yahooClient := yahoo.New(log)
	edgarClient := edgar.New(log)

	registry := bots.NewRegistry(
		bots.NewNewsBot(bots.NewsBotConfig{Client: gnewsClient, Limiter: limiter, Log: log}),
		bots.NewEarningsBot(bots.EarningsBotConfig{FMP: fmpClient, Yahoo: yahooClient, AV: avClient, Limiter: limiter, Log: log}),
		bots.NewMacroBot(bots.MacroBotConfig{FRED: fredClient, Yahoo: yahooClient, Limiter: limiter, Log: log}),
		bots.NewInsiderBot(bots.InsiderBotConfig{Edgar: edgarClient, Limiter: limiter, Log: log}),
		bots.NewFundamentalsBot(bots.FundamentalsBotConfig{FMP: fmpClient, Yahoo: yahooClient, Limiter: limiter, Log: log}),
		bots.NewTechnicalLevelsBot(bots.TechnicalLevelsBotConfig{Polygon: polygonClient, Yahoo: yahooClient, Limiter: limiter, Log: log}),
		bots.NewAnalystBot(bots.AnalystBotConfig{FMP: fmpClient, Yahoo: yahooClient, Limiter: limiter, Log: log}),
	)
	runner := bots.NewRunner(cacheClient, limiter, log)

	sweeper := sweep.New(sweep.Config{
		Registry:  registry,
		Runner:    runner,
		Cache:     cacheClient,
		Gate:      gate,
		ResultTTL: cfg.ResultTTL,
		Log:       log,
	})

	tiers := priority.New(cacheClient, log)
	catalogue := universe.New(universe.Config{
		Cache:  cacheClient,
		APIURL: cfg.MBAPIURL,
		Log:    log,
	})

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := catalogue.Reload(startupCtx); err != nil {
		// Non-fatal: scheduled jobs sweep on ticker conventions until the
		// universe feed appears.
		log.Warn().Err(err).Msg("Universe load failed, starting with seed tiers only")
	} else {
		tiers.LoadUniverse(catalogue.Tickers())
		log.Info().Int("assets", n).Msg("Universe loaded into tiers")
	}
	if err := tiers.RestoreWatchlist(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Watchlist restore failed")
	}
	cancelStartup()

	var history *database.JobHistory
	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "research.db"),
		Name: "research",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Job history database unavailable, runs will not be persisted")
	} else {
		defer historyDB.Close()
		if history, err = database.NewJobHistory(historyDB, log); err != nil {
			log.Warn().Err(err).Msg("Job history schema failed, runs will not be persisted")
			history = nil
		}
	}

	sched, err := scheduler.New(scheduler.Config{
		Sweeper:         sweeper,
		Catalogue:       catalogue,
		Tiers:           tiers,
		History:         history,
		InterAssetPause: cfg.InterAssetPause,
		Log:             log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Scheduler init failed")
	}
	sched.Start()

	srv := server.New(server.Config{
		Cache:     cacheClient,
		Sweeper:   sweeper,
		Scheduler: sched,
		Tiers:     tiers,
		Catalogue: catalogue,
		Limiter:   limiter,
		History:   history,
		DB:        historyDB,
		ResultTTL: cfg.ResultTTL,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	sched.Stop(shutdownCtx)
	log.Info().Msg("Research engine stopped")
}
