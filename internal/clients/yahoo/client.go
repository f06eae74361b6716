// Package yahoo is a client for the unofficial Yahoo Finance v8 chart and
// v10 quoteSummary APIs. It is the fallback provider for most bots and
// the primary one for non-US tickers.
package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const (
	chartBaseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	summaryBaseURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary"
)

// Bar is one daily OHLCV bar.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// FundamentalData is the field map extracted from quoteSummary for the
// fundamentals bot. A provider swap must preserve these fields.
type FundamentalData struct {
	PERatio         float64
	ForwardPE       float64
	RevenueGrowth   float64 // fraction, e.g. 0.24 = 24%
	ProfitMargin    float64
	OperatingMargin float64
	ROE             float64
	DebtToEquity    float64
	CurrentRatio    float64
	ShortPctFloat   float64 // fraction of float held short
	MarketCap       float64
}

// AnalystData is the field map extracted from quoteSummary for the
// analyst bot.
type AnalystData struct {
	RecommendationKey  string
	RecommendationMean float64
	AnalystCount       int
	TargetMeanPrice    float64
	CurrentPrice       float64
}

// EarningsDates carries the next scheduled earnings date when Yahoo
// publishes one.
type EarningsDates struct {
	NextEarnings time.Time
}

// Client queries Yahoo Finance.
type Client struct {
	doer *httpx.Doer
	log  zerolog.Logger
}

// New creates a Yahoo Finance client. No API key: the endpoints are
// unofficial, which is why the yahoo rate bucket is deliberately gentle.
func New(log zerolog.Logger) *Client {
	return &Client{
		doer: httpx.New("yahoo", 0, log),
		log:  log.With().Str("client", "yahoo").Logger(),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

// DailyBars returns up to one year of daily bars for symbol, oldest
// first.
func (c *Client) DailyBars(ctx context.Context, symbol string) ([]Bar, error) {
	params := url.Values{}
	params.Set("range", "1y")
	params.Set("interval", "1d")

	endpoint := fmt.Sprintf("%s/%s?%s", chartBaseURL, url.PathEscape(symbol), params.Encode())

	var resp chartResponse
	if err := c.doer.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: empty result", symbol)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		bars = append(bars, Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     quote.Close[i],
			Volume:    at(quote.Volume, i),
		})
	}
	return bars, nil
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []map[string]map[string]any `json:"result"`
		Error  any                         `json:"error"`
	} `json:"quoteSummary"`
}

func (c *Client) quoteSummary(ctx context.Context, symbol string, modules ...string) (map[string]map[string]any, error) {
	params := url.Values{}
	params.Set("modules", strings.Join(modules, ","))

	endpoint := fmt.Sprintf("%s/%s?%s", summaryBaseURL, url.PathEscape(symbol), params.Encode())

	var resp summaryResponse
	if err := c.doer.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("yahoo quoteSummary %s: %w", symbol, err)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("yahoo quoteSummary %s: empty result", symbol)
	}
	return resp.QuoteSummary.Result[0], nil
}

// GetFundamentalData fetches the fundamentals field map.
func (c *Client) GetFundamentalData(ctx context.Context, symbol string) (*FundamentalData, error) {
	info, err := c.quoteSummary(ctx, symbol, "financialData", "defaultKeyStatistics", "summaryDetail")
	if err != nil {
		return nil, err
	}

	financial := info["financialData"]
	stats := info["defaultKeyStatistics"]
	detail := info["summaryDetail"]

	return &FundamentalData{
		PERatio:         rawFloat(detail, "trailingPE"),
		ForwardPE:       rawFloat(stats, "forwardPE"),
		RevenueGrowth:   rawFloat(financial, "revenueGrowth"),
		ProfitMargin:    rawFloat(financial, "profitMargins"),
		OperatingMargin: rawFloat(financial, "operatingMargins"),
		ROE:             rawFloat(financial, "returnOnEquity"),
		DebtToEquity:    rawFloat(financial, "debtToEquity"),
		CurrentRatio:    rawFloat(financial, "currentRatio"),
		ShortPctFloat:   rawFloat(stats, "shortPercentOfFloat"),
		MarketCap:       rawFloat(detail, "marketCap"),
	}, nil
}

// GetAnalystData fetches the analyst consensus field map.
func (c *Client) GetAnalystData(ctx context.Context, symbol string) (*AnalystData, error) {
	info, err := c.quoteSummary(ctx, symbol, "financialData")
	if err != nil {
		return nil, err
	}

	financial := info["financialData"]

	return &AnalystData{
		RecommendationKey:  rawString(financial, "recommendationKey"),
		RecommendationMean: rawFloat(financial, "recommendationMean"),
		AnalystCount:       int(rawFloat(financial, "numberOfAnalystOpinions")),
		TargetMeanPrice:    rawFloat(financial, "targetMeanPrice"),
		CurrentPrice:       rawFloat(financial, "currentPrice"),
	}, nil
}

// GetEarningsDates fetches the next scheduled earnings date from the
// calendarEvents module.
func (c *Client) GetEarningsDates(ctx context.Context, symbol string) (*EarningsDates, error) {
	info, err := c.quoteSummary(ctx, symbol, "calendarEvents")
	if err != nil {
		return nil, err
	}

	calendar := info["calendarEvents"]
	earnings, ok := calendar["earnings"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("yahoo calendarEvents %s: no earnings block", symbol)
	}

	dates, ok := earnings["earningsDate"].([]any)
	if !ok || len(dates) == 0 {
		return &EarningsDates{}, nil
	}
	// Yahoo wraps epoch seconds as {"raw": N, "fmt": "..."}.
	first, ok := dates[0].(map[string]any)
	if !ok {
		return &EarningsDates{}, nil
	}
	raw, ok := first["raw"].(float64)
	if !ok {
		return &EarningsDates{}, nil
	}
	return &EarningsDates{NextEarnings: time.Unix(int64(raw), 0).UTC()}, nil
}

// rawFloat unwraps Yahoo's {"raw": N, "fmt": "..."} number envelope, also
// accepting plain numbers.
func rawFloat(block map[string]any, key string) float64 {
	if block == nil {
		return 0
	}
	switch v := block[key].(type) {
	case float64:
		return v
	case map[string]any:
		if raw, ok := v["raw"].(float64); ok {
			return raw
		}
	}
	return 0
}

func rawString(block map[string]any, key string) string {
	if block == nil {
		return ""
	}
	if s, ok := block[key].(string); ok {
		return s
	}
	return ""
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
