// Package domain holds the core data model for the research engine:
// asset metadata, bot results, research payloads and the signal-input
// registry. The package is pure — no infrastructure dependencies — so it
// can be imported from every layer.
package domain

import "strings"

// QuoteType is the instrument classification published by the universe
// ingestion pipeline (Yahoo-style quote types).
type QuoteType string

const (
	QuoteEquity    QuoteType = "EQUITY"
	QuoteETF       QuoteType = "ETF"
	QuoteCrypto    QuoteType = "CRYPTOCURRENCY"
	QuoteForex     QuoteType = "FOREX"
	QuoteCommodity QuoteType = "COMMODITY"
	QuoteFuture    QuoteType = "FUTURE"
	QuoteIndex     QuoteType = "INDEX"
)

// AssetType drives bot selection during a sweep. It is derived on the fly
// from quote type and ticker conventions, never stored.
type AssetType string

const (
	AssetStock     AssetType = "stock"
	AssetETF       AssetType = "etf"
	AssetCrypto    AssetType = "crypto"
	AssetForex     AssetType = "forex"
	AssetCommodity AssetType = "commodity"
)

// AssetMeta is the per-instrument metadata record published by the
// universe ingestion pipeline under the universe:assets cache key.
type AssetMeta struct {
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector"`
	Industry  string    `json:"industry"`
	Exchange  string    `json:"exchange"`
	Country   string    `json:"country"`
	Currency  string    `json:"currency"`
	QuoteType QuoteType `json:"quote_type"`
}

// AssetType derives the sweep-time asset classification. Rules are
// evaluated top to bottom; the first match wins.
func (a AssetMeta) AssetType() AssetType {
	ticker := strings.ToUpper(a.Ticker)

	switch {
	case a.QuoteType == QuoteCrypto || strings.Contains(ticker, "-USD"):
		return AssetCrypto
	case a.QuoteType == QuoteForex || strings.Contains(ticker, "=X"):
		return AssetForex
	case a.QuoteType == QuoteETF:
		return AssetETF
	case a.QuoteType == QuoteFuture || a.QuoteType == QuoteCommodity || strings.Contains(ticker, "=F"):
		return AssetCommodity
	}

	switch strings.ToLower(a.Sector) {
	case "cryptocurrency", "crypto":
		return AssetCrypto
	case "forex", "currency":
		return AssetForex
	}

	return AssetStock
}

// nonUSSuffixes mark tickers that trade outside US exchanges. Used for
// provider routing (EDGAR filings and Polygon aggregates are US-only).
var nonUSSuffixes = []string{".L", ".PA", ".DE", ".AS", ".TO", ".AX", "=X", "-USD"}

// IsNonUS reports whether the ticker carries a non-US exchange suffix.
func (a AssetMeta) IsNonUS() bool {
	ticker := strings.ToUpper(a.Ticker)
	for _, suffix := range nonUSSuffixes {
		if strings.HasSuffix(ticker, suffix) {
			return true
		}
	}
	return false
}

// IsUKListed reports whether the ticker trades on the London Stock
// Exchange. EarningsBot prefers FMP for these (Yahoo earnings coverage of
// LSE listings is patchy).
func (a AssetMeta) IsUKListed() bool {
	ticker := strings.ToUpper(a.Ticker)
	return strings.HasSuffix(ticker, ".L") || strings.HasSuffix(ticker, ".IL")
}
