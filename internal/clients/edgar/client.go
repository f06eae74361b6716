// Package edgar queries SEC EDGAR full-text search for Form 4 insider
// filings. EDGAR needs no API key but requires a descriptive User-Agent.
package edgar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://efts.sec.gov/LATEST/search-index"

// Form4Filing is one insider filing extracted from a search hit. Role and
// side are inferred from the filer display text; EDGAR's search index
// does not expose structured transaction rows.
type Form4Filing struct {
	Filer   string
	Role    string // CEO, CFO, Director, VP, or empty when unknown
	Side    string // "buy" or "sell"
	FiledAt time.Time
}

// Client queries EDGAR full-text search.
type Client struct {
	doer *httpx.Doer
	log  zerolog.Logger
}

// New creates an EDGAR client.
func New(log zerolog.Logger) *Client {
	return &Client{
		doer: httpx.New("edgar", 0, log),
		log:  log.With().Str("client", "edgar").Logger(),
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source struct {
				DisplayNames []string `json:"display_names"`
				FileDate     string   `json:"file_date"`
				FileType     string   `json:"file_type"`
				Abstract     string   `json:"abstract"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Form4Filings returns Form 4 filings mentioning the ticker filed since
// the given date.
func (c *Client) Form4Filings(ctx context.Context, ticker string, since time.Time) ([]Form4Filing, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q", ticker))
	params.Set("forms", "4")
	params.Set("dateRange", "custom")
	params.Set("startdt", since.Format("2006-01-02"))
	params.Set("enddt", time.Now().UTC().Format("2006-01-02"))

	headers := map[string]string{
		// SEC fair-access policy requires a contact in the UA.
		"User-Agent": "mockbroker-research-engine admin@mockbroker.app",
	}

	var resp searchResponse
	if err := c.doer.GetJSON(ctx, baseURL+"?"+params.Encode(), headers, &resp); err != nil {
		return nil, fmt.Errorf("edgar form4 %s: %w", ticker, err)
	}

	filings := make([]Form4Filing, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		src := hit.Source
		filedAt, err := time.Parse("2006-01-02", src.FileDate)
		if err != nil {
			continue
		}
		filer := ""
		if len(src.DisplayNames) > 0 {
			filer = src.DisplayNames[0]
		}
		filings = append(filings, Form4Filing{
			Filer:   filer,
			Role:    inferRole(filer + " " + src.Abstract),
			Side:    inferSide(src.Abstract),
			FiledAt: filedAt,
		})
	}
	return filings, nil
}

// inferRole extracts the filer's role from display/abstract text.
func inferRole(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "chief executive") || strings.Contains(t, "(ceo"):
		return "CEO"
	case strings.Contains(t, "chief financial") || strings.Contains(t, "(cfo"):
		return "CFO"
	case strings.Contains(t, "director"):
		return "Director"
	case strings.Contains(t, "vice president") || strings.Contains(t, "(vp"):
		return "VP"
	}
	return ""
}

// inferSide classifies the filing as a purchase or a sale; EDGAR abstract
// text mentions the transaction code wording. Dispositions dominate Form
// 4 volume, so sale is the default when the text is ambiguous.
func inferSide(text string) string {
	t := strings.ToLower(text)
	if strings.Contains(t, "purchase") || strings.Contains(t, "acquisition") || strings.Contains(t, "acquired") {
		return "buy"
	}
	return "sell"
}
