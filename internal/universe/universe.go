// Package universe provides the asset metadata catalogue the sweeps
// operate over. The external ingestion pipeline publishes the catalogue
// at universe:assets; when that key is absent (fresh Redis, dev
// environment) the catalogue is fetched from the platform API instead.
package universe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/cache"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/httpx"
)

// Catalogue is the in-memory symbol index. Reload swaps the whole map
// under the lock; lookups are cheap.
type Catalogue struct {
	mu     sync.RWMutex
	assets map[string]domain.AssetMeta
	cache  *cache.Client
	api    *httpx.Doer
	apiURL string
	log    zerolog.Logger
}

// Config holds Catalogue dependencies.
type Config struct {
	Cache  *cache.Client
	APIURL string
	Log    zerolog.Logger
}

// New creates an empty catalogue. Call Reload before first use.
func New(cfg Config) *Catalogue {
	return &Catalogue{
		assets: make(map[string]domain.AssetMeta),
		cache:  cfg.Cache,
		api:    httpx.New("universe", 0, cfg.Log),
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		log:    cfg.Log.With().Str("component", "universe").Logger(),
	}
}

// Reload refreshes the catalogue from Redis, falling back to the
// platform API when the cache key is missing. Returns the number of
// assets loaded.
func (c *Catalogue) Reload(ctx context.Context) (int, error) {
	assets, err := c.fromCache(ctx)
	if err != nil {
		return 0, err
	}
	source := "cache"
	if assets == nil {
		assets, err = c.fromAPI(ctx)
		if err != nil {
			return 0, err
		}
		source = "api"
	}

	index := make(map[string]domain.AssetMeta, len(assets))
	for _, asset := range assets {
		ticker := strings.ToUpper(strings.TrimSpace(asset.Ticker))
		if ticker == "" {
			continue
		}
		asset.Ticker = ticker
		index[ticker] = asset
	}

	c.mu.Lock()
	c.assets = index
	c.mu.Unlock()

	c.log.Info().Int("assets", len(index)).Str("source", source).Msg("Universe loaded")
	return len(index), nil
}

func (c *Catalogue) fromCache(ctx context.Context) ([]domain.AssetMeta, error) {
	var assets []domain.AssetMeta
	found, err := c.cache.Get(ctx, cache.KeyUniverseAssets, &assets)
	if err != nil {
		return nil, fmt.Errorf("universe cache read: %w", err)
	}
	if !found {
		return nil, nil
	}
	return assets, nil
}

func (c *Catalogue) fromAPI(ctx context.Context) ([]domain.AssetMeta, error) {
	if c.apiURL == "" {
		return nil, fmt.Errorf("universe: cache key absent and MB_API_URL not configured")
	}
	var assets []domain.AssetMeta
	if err := c.api.GetJSON(ctx, c.apiURL+"/api/assets", nil, &assets); err != nil {
		return nil, fmt.Errorf("universe api fetch: %w", err)
	}
	return assets, nil
}

// Lookup returns the metadata for a ticker. The bool reports presence.
func (c *Catalogue) Lookup(ticker string) (domain.AssetMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.assets[strings.ToUpper(strings.TrimSpace(ticker))]
	return meta, ok
}

// Tickers returns every known ticker. Order is unspecified.
func (c *Catalogue) Tickers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.assets))
	for ticker := range c.assets {
		out = append(out, ticker)
	}
	return out
}

// Size reports the catalogue size, for the health endpoint.
func (c *Catalogue) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}
