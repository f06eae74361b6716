package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/metrics"
	"github.com/mockbroker/research-engine/internal/sweep"
)

// refreshFraction of the result TTL after which a served envelope also
// enqueues a background refresh.
const refreshFraction = 0.75

// sweepTimeout bounds a read-triggered background sweep. Generous: the
// sweep itself may block on rate-limiter waits.
const sweepTimeout = 2 * time.Minute

const pendingMessage = "No research available yet — a sweep has been triggered, retry shortly"

// researchResponse is the envelope plus the read-path stamps. The
// underscore-prefixed fields are advisory and ignored by the delta
// detector.
type researchResponse struct {
	domain.ResearchPayload
	ServedFrom string  `json:"_served_from"`
	Refreshing bool    `json:"_refreshing,omitempty"`
	AgeSeconds float64 `json:"_age_s,omitempty"`
	Message    string  `json:"_message,omitempty"`
}

// handleResearch serves the cached envelope for a symbol. Reads never
// touch external providers and never return 5xx: a missing envelope (or
// a cache error) degrades to a pending sentinel plus an async sweep.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol query parameter is required"})
		return
	}

	s.tiers.RecordView(symbol)

	var payload domain.ResearchPayload
	found, err := s.cache.Get(r.Context(), cache.ResearchKey(symbol), &payload)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Envelope read failed, serving pending")
		found = false
	}

	if !found {
		s.triggerSweep(symbol)
		metrics.ReadRequests.WithLabelValues("pending").Inc()
		writeJSON(w, http.StatusOK, researchResponse{
			ResearchPayload: domain.ResearchPayload{Symbol: symbol},
			ServedFrom:      "pending",
			Message:         pendingMessage,
		})
		return
	}

	now := s.now().UTC()
	payload.Meta.StaleFields = sweep.StaleFields(payload.Data, now)

	resp := researchResponse{
		ResearchPayload: payload,
		ServedFrom:      "cache",
		AgeSeconds:      now.Sub(payload.Meta.LastUpdated).Seconds(),
	}
	if resp.AgeSeconds < 0 {
		resp.AgeSeconds = 0
	}
	if resp.AgeSeconds > refreshFraction*s.resultTTL.Seconds() {
		resp.Refreshing = s.triggerSweep(symbol)
	}

	metrics.ReadRequests.WithLabelValues("cache").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// triggerSweep starts a background one-shot sweep unless one is already
// running for the symbol. Reports whether a sweep is now in flight.
func (s *Server) triggerSweep(symbol string) bool {
	s.inFlightMu.Lock()
	if _, running := s.inFlight[symbol]; running {
		s.inFlightMu.Unlock()
		return true
	}
	s.inFlight[symbol] = struct{}{}
	s.inFlightMu.Unlock()

	go func() {
		defer func() {
			s.inFlightMu.Lock()
			delete(s.inFlight, symbol)
			s.inFlightMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		meta, ok := s.catalogue.Lookup(symbol)
		if !ok {
			meta = domain.AssetMeta{Ticker: symbol}
		}
		if _, err := s.sweeper.Sweep(ctx, sweep.Request{Meta: meta, Cycle: "read-" + symbol}); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Read-triggered sweep failed")
		}
	}()
	return true
}
