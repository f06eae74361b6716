package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("test-key", zerolog.Nop())
	c.base = srv.URL
	return c
}

func TestQuarterlyEarnings(t *testing.T) {
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"function": r.URL.Query().Get("function"),
			"symbol":   r.URL.Query().Get("symbol"),
			"apikey":   r.URL.Query().Get("apikey"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"symbol": "AAPL",
			"quarterlyEarnings": [
				{
					"fiscalDateEnding": "2024-12-31",
					"reportedDate": "2025-01-30",
					"reportedEPS": "2.40",
					"estimatedEPS": "2.35",
					"surprisePercentage": "2.13"
				},
				{
					"fiscalDateEnding": "2024-09-30",
					"reportedDate": "2024-10-31",
					"reportedEPS": "1.64",
					"estimatedEPS": "None",
					"surprisePercentage": ""
				}
			]
		}`))
	})

	quarters, err := c.QuarterlyEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, quarters, 2)

	assert.Equal(t, "EARNINGS", gotQuery["function"])
	assert.Equal(t, "AAPL", gotQuery["symbol"])
	assert.Equal(t, "test-key", gotQuery["apikey"])

	assert.Equal(t, "2024-12-31", quarters[0].FiscalDateEnding)
	assert.Equal(t, "2025-01-30", quarters[0].ReportedDate)
	assert.InDelta(t, 2.40, quarters[0].ReportedEPS, 0.001)
	assert.InDelta(t, 2.35, quarters[0].EstimatedEPS, 0.001)
	assert.InDelta(t, 2.13, quarters[0].SurprisePercentage, 0.001)

	// Unparseable EPS strings fall back to zero.
	assert.Zero(t, quarters[1].EstimatedEPS)
	assert.Zero(t, quarters[1].SurprisePercentage)
}

func TestQuarterlyEarningsQuotaNote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})

	_, err := c.QuarterlyEarnings(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestQuarterlyEarningsInformationField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Information": "premium endpoint"}`))
	})

	_, err := c.QuarterlyEarnings(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestQuarterlyEarningsNoAPIKey(t *testing.T) {
	c := New("", zerolog.Nop())

	_, err := c.QuarterlyEarnings(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestQuarterlyEarningsEmptyPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol": "AAPL", "quarterlyEarnings": []}`))
	})

	quarters, err := c.QuarterlyEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, quarters)
}

func TestParseFloat(t *testing.T) {
	assert.InDelta(t, 1.23, parseFloat("1.23"), 0.001)
	assert.InDelta(t, -0.5, parseFloat("-0.5"), 0.001)
	assert.Zero(t, parseFloat("None"))
	assert.Zero(t, parseFloat(""))
}
