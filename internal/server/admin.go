package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mockbroker/research-engine/internal/ratelimit"
	"github.com/mockbroker/research-engine/internal/scheduler"
)

// handleAdminSweep triggers an out-of-band sweep of one tier.
// POST /admin/sweep?tier=N
func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.Atoi(r.URL.Query().Get("tier"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tier query parameter must be 1, 2 or 3"})
		return
	}

	assets, cycle, err := s.scheduler.TriggerSweepNow(tier, r.URL.Query().Get("cycle"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"triggered": true,
		"assets":    assets,
		"cycle":     cycle,
	})
}

// jobRunView is one job-history row in the admin scheduler response.
type jobRunView struct {
	JobName   string  `json:"job_name"`
	Cycle     string  `json:"cycle"`
	StartedAt string  `json:"started_at"`
	DurationS float64 `json:"duration_s"`
	Assets    int     `json:"assets"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Err       string  `json:"error,omitempty"`
}

// handleAdminScheduler reports the cron timeline plus recent job runs.
// GET /admin/scheduler
func (s *Server) handleAdminScheduler(w http.ResponseWriter, r *http.Request) {
	status := s.scheduler.Status()

	resp := struct {
		scheduler.Status
		RecentRuns []jobRunView `json:"recent_runs,omitempty"`
	}{Status: status}

	if s.history != nil {
		runs, err := s.history.Recent(r.Context(), 20)
		if err != nil {
			s.log.Warn().Err(err).Msg("Job history read failed")
		}
		for _, run := range runs {
			resp.RecentRuns = append(resp.RecentRuns, jobRunView{
				JobName:   run.JobName,
				Cycle:     run.Cycle,
				StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
				DurationS: run.Duration().Seconds(),
				Assets:    run.Assets,
				Succeeded: run.Succeeded,
				Failed:    run.Failed,
				Err:       run.Err,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// healthResponse is the admin health report.
type healthResponse struct {
	Status        string             `json:"status"`
	UptimeHours   float64            `json:"uptime_hours"`
	CPUPercent    float64            `json:"cpu_percent"`
	RAMPercent    float64            `json:"ram_percent"`
	Cache         string             `json:"cache"`
	Database      string             `json:"database"`
	UniverseSize  int                `json:"universe_size"`
	TierCounts    map[string]int     `json:"tier_counts"`
	LimiterTokens map[string]float64 `json:"limiter_tokens"`
}

// handleAdminHealth reports process, dependency and quota health.
// GET /admin/health
func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		UptimeHours:   time.Since(s.startedAt).Hours(),
		Cache:         "ok",
		Database:      "ok",
		UniverseSize:  s.catalogue.Size(),
		TierCounts:    make(map[string]int, 3),
		LimiterTokens: make(map[string]float64, 6),
	}

	cpuPercent, ramPercent := s.systemStats()
	resp.CPUPercent = cpuPercent
	resp.RAMPercent = ramPercent

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.cache.Ping(ctx); err != nil {
		resp.Cache = err.Error()
		resp.Status = "degraded"
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			resp.Database = err.Error()
			resp.Status = "degraded"
		}
	} else {
		resp.Database = "disabled"
	}

	for tier, count := range s.tiers.Counts() {
		resp.TierCounts["tier"+strconv.Itoa(int(tier))] = count
	}
	for _, provider := range []string{
		ratelimit.ProviderGNews, ratelimit.ProviderFMP, ratelimit.ProviderAlphaVantage,
		ratelimit.ProviderPolygon, ratelimit.ProviderFRED, ratelimit.ProviderYahoo,
	} {
		resp.LimiterTokens[provider] = s.limiter.Tokens(provider)
	}

	writeJSON(w, http.StatusOK, resp)
}

// systemStats samples CPU and RAM usage. The 100ms CPU window keeps the
// handler fast enough for dashboard polling.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("CPU stats unavailable")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Memory stats unavailable")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
