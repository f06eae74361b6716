// Package polygon is a thin client for Polygon daily aggregates, the
// preferred OHLCV source for US tickers.
package polygon

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://api.polygon.io"

// ErrNoAPIKey is returned when the client is constructed without a key.
var ErrNoAPIKey = fmt.Errorf("polygon: POLYGON_KEY not configured")

// Bar is one daily OHLCV bar.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Client queries the Polygon aggregates API.
type Client struct {
	apiKey string
	doer   *httpx.Doer
	log    zerolog.Logger
}

// New creates a Polygon client.
func New(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		doer:   httpx.New("polygon", 0, log),
		log:    log.With().Str("client", "polygon").Logger(),
	}
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		T int64   `json:"t"` // epoch millis
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
}

// DailyBars returns daily bars for ticker between from and to inclusive,
// oldest first.
func (c *Client) DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		baseURL,
		url.PathEscape(ticker),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)
	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "366")
	params.Set("apiKey", c.apiKey)

	var resp aggsResponse
	if err := c.doer.GetJSON(ctx, endpoint+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("polygon aggs %s: %w", ticker, err)
	}

	bars := make([]Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(r.T).UTC(),
			Open:      r.O,
			High:      r.H,
			Low:       r.L,
			Close:     r.C,
			Volume:    r.V,
		})
	}
	return bars, nil
}
