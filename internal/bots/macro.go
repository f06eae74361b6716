package bots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/clients/fred"
	"github.com/mockbroker/research-engine/internal/clients/yahoo"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// Macro signal axes, in matrix column order: rates, inflation, growth,
// unemployment, long yields.
var macroSeries = []string{
	fred.SeriesFedFunds,
	fred.SeriesCPI,
	fred.SeriesGDP,
	fred.SeriesUnemployment,
	fred.SeriesTenYear,
}

// sectorSensitivity maps a sector to its weight on each macro axis.
// Positive weight means the sector benefits when the axis rises. Values
// stay in [-1, 1].
var sectorSensitivity = map[string][5]float64{
	"technology":             {-0.8, -0.5, 0.7, -0.3, -0.7},
	"financial services":     {0.7, 0.2, 0.5, -0.4, 0.8},
	"healthcare":             {-0.2, -0.1, 0.2, 0.1, -0.2},
	"consumer cyclical":      {-0.6, -0.7, 0.8, -0.8, -0.4},
	"consumer defensive":     {0.1, -0.3, 0.1, 0.3, 0.1},
	"energy":                 {0.2, 0.8, 0.6, -0.2, 0.4},
	"utilities":              {-0.7, -0.4, 0.1, 0.2, -0.8},
	"real estate":            {-0.9, -0.3, 0.4, -0.3, -0.9},
	"industrials":            {-0.3, -0.2, 0.8, -0.5, -0.1},
	"basic materials":        {-0.2, 0.6, 0.7, -0.3, 0.2},
	"communication services": {-0.5, -0.3, 0.6, -0.3, -0.5},
}

// sectorETFs maps a sector to its SPDR sector fund; SPY is the risk
// baseline for anything unmapped (including crypto and commodities).
var sectorETFs = map[string]string{
	"technology":             "XLK",
	"financial services":     "XLF",
	"healthcare":             "XLV",
	"consumer cyclical":      "XLY",
	"consumer defensive":     "XLP",
	"energy":                 "XLE",
	"utilities":              "XLU",
	"real estate":            "XLRE",
	"industrials":            "XLI",
	"basic materials":        "XLB",
	"communication services": "XLC",
}

const etfBaseline = "SPY"

// MacroBot derives a sector tailwind score from FRED macro series blended
// with sector-ETF momentum. When FRED is unavailable the ETF momentum
// carries the whole signal.
type MacroBot struct {
	fred    *fred.Client
	yahoo   *yahoo.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// MacroBotConfig holds MacroBot dependencies.
type MacroBotConfig struct {
	FRED    *fred.Client
	Yahoo   *yahoo.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewMacroBot creates the macro context bot.
func NewMacroBot(cfg MacroBotConfig) *MacroBot {
	return &MacroBot{
		fred:    cfg.FRED,
		yahoo:   cfg.Yahoo,
		limiter: cfg.Limiter,
		log:     cfg.Log.With().Str("bot", NameMacro).Logger(),
	}
}

func (b *MacroBot) Name() string { return NameMacro }

// CacheTTL is long: macro series update monthly at best.
func (b *MacroBot) CacheTTL() time.Duration { return 30 * 24 * time.Hour }

func (b *MacroBot) Providers(domain.AssetMeta) []string {
	return []string{ratelimit.ProviderFRED, ratelimit.ProviderYahoo}
}

// Fetch computes sectorFlow in [-1, 1].
func (b *MacroBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	sector := strings.ToLower(meta.Sector)

	axes, fredOK := b.macroAxes(ctx)
	momentum, momentumOK := b.etfMomentum(ctx, sector)

	if !fredOK && !momentumOK {
		return domain.BotResult{}, fmt.Errorf("macro context unavailable for %s: fred and yahoo both failed", meta.Ticker)
	}

	matrixScore := 0.0
	weights, hasSector := sectorSensitivity[sector]
	if fredOK && hasSector {
		var sum, norm float64
		for i, w := range weights {
			sum += w * axes[i]
			norm += abs(w)
		}
		if norm > 0 {
			matrixScore = sum / norm
		}
	}

	var sectorFlow float64
	source := "fred+yahoo"
	switch {
	case fredOK && hasSector && momentumOK:
		sectorFlow = 0.6*matrixScore + 0.4*momentum
	case fredOK && hasSector:
		sectorFlow = matrixScore
		source = "fred"
	default:
		sectorFlow = momentum
		source = "yahoo"
	}
	sectorFlow = clamp(sectorFlow, -1, 1)

	var bull, bear []string
	if sectorFlow > 0.3 {
		bull = append(bull, fmt.Sprintf("Macro backdrop supportive for %s (flow %.2f)", displaySector(meta.Sector), sectorFlow))
	} else if sectorFlow < -0.3 {
		bear = append(bear, fmt.Sprintf("Macro headwinds for %s (flow %.2f)", displaySector(meta.Sector), sectorFlow))
	}

	raw := map[string]any{
		"sector_flow":  round3(sectorFlow),
		"etf_momentum": round3(momentum),
		"fred_ok":      fredOK,
	}
	if fredOK {
		raw["axes"] = map[string]float64{
			"rates":        round3(axes[0]),
			"inflation":    round3(axes[1]),
			"growth":       round3(axes[2]),
			"unemployment": round3(axes[3]),
			"long_yields":  round3(axes[4]),
		}
	}

	confidence := 0.5
	if fredOK && momentumOK {
		confidence = 0.75
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{
			domain.SignalSectorFlow: sectorFlow,
		},
		BullFactors: bull,
		BearFactors: bear,
		Summary:     fmt.Sprintf("sector flow %.2f (%s)", sectorFlow, source),
		Confidence:  confidence,
		Source:      source,
		Raw: map[string]map[string]any{
			domain.SectionMacro: raw,
		},
	}, nil
}

// macroAxes fetches the five FRED series and converts each into a
// direction in [-1, 1] from its recent trend.
func (b *MacroBot) macroAxes(ctx context.Context) ([5]float64, bool) {
	var axes [5]float64
	for i, series := range macroSeries {
		// The runner acquired one fred token; the remaining series pay
		// their own way.
		if i > 0 {
			if err := b.limiter.Acquire(ctx, ratelimit.ProviderFRED, 1); err != nil {
				return axes, false
			}
		}
		obs, err := b.fred.Observations(ctx, series, 13)
		if err != nil || len(obs) < 2 {
			return axes, false
		}
		axes[i] = trendDirection(obs)
	}
	return axes, true
}

// trendDirection scores the latest observation against the period mean:
// +1 when well above, -1 when well below. Observations arrive newest
// first.
func trendDirection(obs []fred.Observation) float64 {
	latest := obs[0].Value
	var sum float64
	for _, o := range obs {
		sum += o.Value
	}
	mean := sum / float64(len(obs))
	if mean == 0 {
		return 0
	}
	return clamp((latest-mean)/abs(mean)*10, -1, 1)
}

// etfMomentum computes 20-day momentum of the sector ETF relative to the
// SPY baseline, scaled into [-1, 1].
func (b *MacroBot) etfMomentum(ctx context.Context, sector string) (float64, bool) {
	symbol, ok := sectorETFs[sector]
	if !ok {
		symbol = etfBaseline
	}

	bars, err := b.yahoo.DailyBars(ctx, symbol)
	if err != nil || len(bars) < 21 {
		return 0, false
	}

	latest := bars[len(bars)-1].Close
	prior := bars[len(bars)-21].Close
	if prior == 0 {
		return 0, false
	}
	// ±10% over 20 sessions saturates the score.
	return clamp((latest-prior)/prior*10, -1, 1), true
}

func displaySector(sector string) string {
	if sector == "" {
		return "broad market"
	}
	return sector
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
