// Package fmp is a client for Financial Modeling Prep, the preferred
// provider for earnings, fundamentals and analyst coverage.
package fmp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://financialmodelingprep.com/api/v3"

// ErrNoAPIKey is returned when the client is constructed without a key.
var ErrNoAPIKey = fmt.Errorf("fmp: FMP_KEY not configured")

// EarningsEvent is one row of the earnings calendar.
type EarningsEvent struct {
	Symbol string
	Date   time.Time
}

// EarningsSurprise is one reported quarter with actual vs estimated EPS.
type EarningsSurprise struct {
	Date         string  `json:"date"`
	ActualEPS    float64 `json:"actualEarningResult"`
	EstimatedEPS float64 `json:"estimatedEarning"`
}

// SurprisePct returns the EPS surprise as a percentage of the estimate.
func (s EarningsSurprise) SurprisePct() float64 {
	if s.EstimatedEPS == 0 {
		return 0
	}
	return (s.ActualEPS - s.EstimatedEPS) / abs(s.EstimatedEPS) * 100
}

// KeyMetrics is the TTM metrics field map used by the fundamentals bot.
type KeyMetrics struct {
	PERatio        float64 `json:"peRatioTTM"`
	DebtToEquity   float64 `json:"debtToEquityTTM"`
	CurrentRatio   float64 `json:"currentRatioTTM"`
	ROE            float64 `json:"roeTTM"`
	NetProfitMargin float64 `json:"netProfitMarginTTM"`
}

// FinancialGrowth is the growth field map used by the fundamentals bot.
type FinancialGrowth struct {
	RevenueGrowth    float64 `json:"revenueGrowth"`
	NetIncomeGrowth  float64 `json:"netIncomeGrowth"`
	EPSGrowth        float64 `json:"epsgrowth"`
}

// Recommendation is one month of analyst recommendation counts.
type Recommendation struct {
	Date       string `json:"date"`
	StrongBuy  int    `json:"analystRatingsStrongBuy"`
	Buy        int    `json:"analystRatingsbuy"`
	Hold       int    `json:"analystRatingsHold"`
	Sell       int    `json:"analystRatingsSell"`
	StrongSell int    `json:"analystRatingsStrongSell"`
}

// PriceTarget is the consensus price target summary.
type PriceTarget struct {
	TargetConsensus float64 `json:"targetConsensus"`
	TargetHigh      float64 `json:"targetHigh"`
	TargetLow       float64 `json:"targetLow"`
}

// GradeChange is one analyst upgrade/downgrade event.
type GradeChange struct {
	Date      string `json:"publishedDate"`
	Company   string `json:"gradingCompany"`
	PrevGrade string `json:"previousGrade"`
	NewGrade  string `json:"newGrade"`
	Action    string `json:"action"` // upgrade, downgrade, hold
}

// Client queries Financial Modeling Prep.
type Client struct {
	apiKey string
	doer   *httpx.Doer
	log    zerolog.Logger
	now    func() time.Time
}

// New creates an FMP client.
func New(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		doer:   httpx.New("fmp", 0, log),
		log:    log.With().Str("client", "fmp").Logger(),
		now:    time.Now,
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	return c.doer.GetJSON(ctx, baseURL+path+"?"+params.Encode(), nil, dest)
}

// NextEarningsDate returns the next scheduled earnings date for symbol
// within the coming 90 days, or the zero time when none is scheduled.
func (c *Client) NextEarningsDate(ctx context.Context, symbol string) (time.Time, error) {
	now := c.now().UTC()
	params := url.Values{}
	params.Set("from", now.Format("2006-01-02"))
	params.Set("to", now.AddDate(0, 0, 90).Format("2006-01-02"))
	params.Set("symbol", symbol)

	var rows []struct {
		Date   string `json:"date"`
		Symbol string `json:"symbol"`
	}
	if err := c.get(ctx, "/earning_calendar", params, &rows); err != nil {
		return time.Time{}, fmt.Errorf("fmp earning_calendar %s: %w", symbol, err)
	}

	var next time.Time
	for _, row := range rows {
		if row.Symbol != symbol {
			continue
		}
		d, err := time.Parse("2006-01-02", row.Date)
		if err != nil || d.Before(now.Truncate(24*time.Hour)) {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	return next, nil
}

// EarningsSurprises returns the reported EPS surprises for symbol, newest
// first.
func (c *Client) EarningsSurprises(ctx context.Context, symbol string) ([]EarningsSurprise, error) {
	var rows []EarningsSurprise
	if err := c.get(ctx, "/earnings-surprises/"+url.PathEscape(symbol), nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp earnings-surprises %s: %w", symbol, err)
	}
	return rows, nil
}

// KeyMetricsTTM returns trailing-twelve-month key metrics for symbol.
func (c *Client) KeyMetricsTTM(ctx context.Context, symbol string) (*KeyMetrics, error) {
	var rows []KeyMetrics
	if err := c.get(ctx, "/key-metrics-ttm/"+url.PathEscape(symbol), nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp key-metrics-ttm %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fmp key-metrics-ttm %s: empty result", symbol)
	}
	return &rows[0], nil
}

// FinancialGrowth returns the latest annual growth rates for symbol.
func (c *Client) FinancialGrowth(ctx context.Context, symbol string) (*FinancialGrowth, error) {
	params := url.Values{}
	params.Set("limit", "1")
	var rows []FinancialGrowth
	if err := c.get(ctx, "/financial-growth/"+url.PathEscape(symbol), params, &rows); err != nil {
		return nil, fmt.Errorf("fmp financial-growth %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fmp financial-growth %s: empty result", symbol)
	}
	return &rows[0], nil
}

// Recommendations returns monthly analyst recommendation counts, newest
// first.
func (c *Client) Recommendations(ctx context.Context, symbol string) ([]Recommendation, error) {
	var rows []Recommendation
	if err := c.get(ctx, "/analyst-stock-recommendations/"+url.PathEscape(symbol), nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp recommendations %s: %w", symbol, err)
	}
	return rows, nil
}

// PriceTarget returns the consensus price target for symbol.
func (c *Client) PriceTarget(ctx context.Context, symbol string) (*PriceTarget, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var rows []PriceTarget
	if err := c.get(ctx, "/price-target-consensus", params, &rows); err != nil {
		return nil, fmt.Errorf("fmp price-target %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fmp price-target %s: empty result", symbol)
	}
	return &rows[0], nil
}

// UpgradesDowngrades returns recent analyst grade changes, newest first.
func (c *Client) UpgradesDowngrades(ctx context.Context, symbol string) ([]GradeChange, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var rows []GradeChange
	if err := c.get(ctx, "/upgrades-downgrades", params, &rows); err != nil {
		return nil, fmt.Errorf("fmp upgrades-downgrades %s: %w", symbol, err)
	}
	return rows, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
