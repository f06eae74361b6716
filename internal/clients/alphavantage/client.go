// Package alphavantage is a thin client for the Alpha Vantage EARNINGS
// endpoint, used as the earnings provider of last resort (25 requests a
// day on the free tier).
package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://www.alphavantage.co/query"

// ErrNoAPIKey is returned when the client is constructed without a key.
var ErrNoAPIKey = fmt.Errorf("alphavantage: ALPHA_VANTAGE_KEY not configured")

// QuarterlyEarning is one reported quarter with its EPS surprise.
type QuarterlyEarning struct {
	FiscalDateEnding   string
	ReportedDate       string
	ReportedEPS        float64
	EstimatedEPS       float64
	SurprisePercentage float64
}

// Client queries the Alpha Vantage EARNINGS function.
type Client struct {
	apiKey string
	base   string
	doer   *httpx.Doer
	log    zerolog.Logger
}

// New creates an Alpha Vantage client.
func New(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		base:   baseURL,
		doer:   httpx.New("alpha_vantage", 0, log),
		log:    log.With().Str("client", "alphavantage").Logger(),
	}
}

type earningsResponse struct {
	Symbol            string `json:"symbol"`
	QuarterlyEarnings []struct {
		FiscalDateEnding   string `json:"fiscalDateEnding"`
		ReportedDate       string `json:"reportedDate"`
		ReportedEPS        string `json:"reportedEPS"`
		EstimatedEPS       string `json:"estimatedEPS"`
		SurprisePercentage string `json:"surprisePercentage"`
	} `json:"quarterlyEarnings"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// QuarterlyEarnings returns the reported quarters for symbol, newest
// first. Alpha Vantage signals quota exhaustion with a 200 + Note body,
// which is surfaced as an error.
func (c *Client) QuarterlyEarnings(ctx context.Context, symbol string) ([]QuarterlyEarning, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	params := url.Values{}
	params.Set("function", "EARNINGS")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	var resp earningsResponse
	if err := c.doer.GetJSON(ctx, c.base+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("alphavantage earnings %s: %w", symbol, err)
	}
	if resp.Note != "" || resp.Information != "" {
		return nil, fmt.Errorf("alphavantage earnings %s: quota exhausted", symbol)
	}

	out := make([]QuarterlyEarning, 0, len(resp.QuarterlyEarnings))
	for _, q := range resp.QuarterlyEarnings {
		out = append(out, QuarterlyEarning{
			FiscalDateEnding:   q.FiscalDateEnding,
			ReportedDate:       q.ReportedDate,
			ReportedEPS:        parseFloat(q.ReportedEPS),
			EstimatedEPS:       parseFloat(q.EstimatedEPS),
			SurprisePercentage: parseFloat(q.SurprisePercentage),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
