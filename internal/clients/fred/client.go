// Package fred is a thin client for FRED series observations.
package fred

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://api.stlouisfed.org/fred"

// ErrNoAPIKey is returned when the client is constructed without a key.
var ErrNoAPIKey = fmt.Errorf("fred: FRED_KEY not configured")

// Series IDs the macro bot tracks.
const (
	SeriesFedFunds     = "FEDFUNDS"
	SeriesCPI          = "CPIAUCSL"
	SeriesGDP          = "GDP"
	SeriesUnemployment = "UNRATE"
	SeriesTenYear      = "DGS10"
)

// Observation is one (date, value) point of a series.
type Observation struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Client queries FRED observations.
type Client struct {
	apiKey string
	doer   *httpx.Doer
	log    zerolog.Logger
}

// New creates a FRED client.
func New(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		doer:   httpx.New("fred", 0, log),
		log:    log.With().Str("client", "fred").Logger(),
	}
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Observations returns the latest limit observations of seriesID, newest
// first. Missing values (FRED publishes ".") are skipped.
func (c *Client) Observations(ctx context.Context, seriesID string, limit int) ([]Observation, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if limit <= 0 {
		limit = 13
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", strconv.Itoa(limit))

	var resp observationsResponse
	if err := c.doer.GetJSON(ctx, baseURL+"/series/observations?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("fred observations %s: %w", seriesID, err)
	}

	out := make([]Observation, 0, len(resp.Observations))
	for _, o := range resp.Observations {
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		out = append(out, Observation{Date: o.Date, Value: v})
	}
	return out, nil
}
