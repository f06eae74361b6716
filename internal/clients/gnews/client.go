// Package gnews is a thin client for the GNews search API.
package gnews

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/httpx"
)

const baseURL = "https://gnews.io/api/v4"

// ErrNoAPIKey is returned when the client is constructed without a key.
var ErrNoAPIKey = fmt.Errorf("gnews: GNEWS_KEY not configured")

// Headline is one article from a search response.
type Headline struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Client queries the GNews search API.
type Client struct {
	apiKey string
	doer   *httpx.Doer
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a GNews client. An empty apiKey is allowed; calls then fail
// with ErrNoAPIKey so the owning bot degrades gracefully.
func New(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		doer:   httpx.New("gnews", 0, log),
		log:    log.With().Str("client", "gnews").Logger(),
		now:    time.Now,
	}
}

type searchResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Search returns up to max headlines matching query from the last 24
// hours, newest first.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Headline, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if max <= 0 {
		max = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", "en")
	params.Set("max", fmt.Sprintf("%d", max))
	params.Set("sortby", "publishedAt")
	params.Set("from", c.now().Add(-24*time.Hour).UTC().Format(time.RFC3339))
	params.Set("token", c.apiKey)

	var resp searchResponse
	if err := c.doer.GetJSON(ctx, baseURL+"/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("gnews search: %w", err)
	}

	headlines := make([]Headline, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		ts, _ := time.Parse(time.RFC3339, a.PublishedAt)
		headlines = append(headlines, Headline{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: ts,
		})
	}
	return headlines, nil
}
