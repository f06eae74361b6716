package bots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/clients/fmp"
	"github.com/mockbroker/research-engine/internal/clients/yahoo"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// sectorAvgPE anchors P/E judgement; a tech stock at 25x is cheap, a
// utility at 25x is not.
var sectorAvgPE = map[string]float64{
	"technology":             28,
	"financial services":     13,
	"healthcare":             22,
	"consumer cyclical":      20,
	"consumer defensive":     21,
	"energy":                 11,
	"utilities":              17,
	"real estate":            30,
	"industrials":            19,
	"basic materials":        14,
	"communication services": 18,
}

const defaultAvgPE = 18.0

// FundamentalsBot assembles valuation and balance-sheet research. FMP is
// preferred; Yahoo fills whatever FMP leaves at zero.
type FundamentalsBot struct {
	fmp     *fmp.Client
	yahoo   *yahoo.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// FundamentalsBotConfig holds FundamentalsBot dependencies.
type FundamentalsBotConfig struct {
	FMP     *fmp.Client
	Yahoo   *yahoo.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewFundamentalsBot creates the fundamentals bot.
func NewFundamentalsBot(cfg FundamentalsBotConfig) *FundamentalsBot {
	return &FundamentalsBot{
		fmp:     cfg.FMP,
		yahoo:   cfg.Yahoo,
		limiter: cfg.Limiter,
		log:     cfg.Log.With().Str("bot", NameFundamentals).Logger(),
	}
}

func (b *FundamentalsBot) Name() string { return NameFundamentals }

func (b *FundamentalsBot) CacheTTL() time.Duration { return 4 * time.Hour }

func (b *FundamentalsBot) Providers(domain.AssetMeta) []string {
	return []string{ratelimit.ProviderFMP}
}

// fundamentalsView is the merged field map after gap-filling.
type fundamentalsView struct {
	PERatio        float64
	RevGrowthPct   float64
	ProfitMargin   float64
	ROE            float64
	DebtRatio      float64
	CurrentRatio   float64
	ShortIntPct    float64
	revGrowthKnown bool
}

// Fetch merges FMP and Yahoo fundamentals and derives the valuation
// factors.
func (b *FundamentalsBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	view, sources, err := b.collect(ctx, meta)
	if err != nil {
		return domain.BotResult{}, err
	}

	sector := strings.ToLower(meta.Sector)
	avgPE := sectorAvgPE[sector]
	if avgPE == 0 {
		avgPE = defaultAvgPE
	}

	var bull, bear []string
	if view.revGrowthKnown {
		if view.RevGrowthPct > 15 {
			bull = append(bull, fmt.Sprintf("Revenue growing %.1f%% YoY", view.RevGrowthPct))
		} else if view.RevGrowthPct < 0 {
			bear = append(bear, fmt.Sprintf("Revenue shrinking %.1f%% YoY", view.RevGrowthPct))
		}
	}
	if view.PERatio > 0 {
		switch {
		case view.PERatio < avgPE*0.7:
			bull = append(bull, fmt.Sprintf("P/E %.1f well below sector average %.0f", view.PERatio, avgPE))
		case view.PERatio > avgPE*1.6:
			bear = append(bear, fmt.Sprintf("P/E %.1f rich vs sector average %.0f", view.PERatio, avgPE))
		}
	}
	if view.ProfitMargin > 0.2 {
		bull = append(bull, fmt.Sprintf("Profit margin %.0f%%", view.ProfitMargin*100))
	} else if view.ProfitMargin < 0 {
		bear = append(bear, "Unprofitable on a trailing basis")
	}
	if view.ROE > 0.2 {
		bull = append(bull, fmt.Sprintf("ROE %.0f%%", view.ROE*100))
	}
	if view.CurrentRatio > 0 && view.CurrentRatio < 1 {
		bear = append(bear, fmt.Sprintf("Current ratio %.2f — tight liquidity", view.CurrentRatio))
	}
	if view.ShortIntPct > 10 {
		bear = append(bear, fmt.Sprintf("Short interest %.1f%% of float", view.ShortIntPct))
	}
	if view.DebtRatio > 2 {
		bear = append(bear, fmt.Sprintf("Leverage high: debt/equity %.1f", view.DebtRatio))
	}

	confidence := 0.5
	if view.revGrowthKnown {
		confidence = 0.85
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{
			domain.SignalRevGrowth: view.RevGrowthPct,
			domain.SignalDebtRatio: view.DebtRatio,
			domain.SignalShortInt:  view.ShortIntPct,
		},
		BullFactors: bull,
		BearFactors: bear,
		Summary:     fmt.Sprintf("P/E %.1f, rev growth %.1f%%, short interest %.1f%%", view.PERatio, view.RevGrowthPct, view.ShortIntPct),
		Confidence:  confidence,
		Source:      sources,
		Raw: map[string]map[string]any{
			domain.SectionFundamentals: {
				"pe_ratio":       round3(view.PERatio),
				"sector_avg_pe":  avgPE,
				"rev_growth_pct": round3(view.RevGrowthPct),
				"profit_margin":  round3(view.ProfitMargin),
				"roe":            round3(view.ROE),
				"debt_ratio":     round3(view.DebtRatio),
				"current_ratio":  round3(view.CurrentRatio),
				"short_int_pct":  round3(view.ShortIntPct),
			},
		},
	}, nil
}

// collect fetches FMP metrics and fills the gaps from Yahoo. FMP failing
// entirely is fine as long as Yahoo answers.
func (b *FundamentalsBot) collect(ctx context.Context, meta domain.AssetMeta) (fundamentalsView, string, error) {
	var view fundamentalsView
	var sources []string

	if metrics, err := b.fmp.KeyMetricsTTM(ctx, meta.Ticker); err == nil {
		view.PERatio = metrics.PERatio
		view.DebtRatio = metrics.DebtToEquity
		view.CurrentRatio = metrics.CurrentRatio
		view.ROE = metrics.ROE
		view.ProfitMargin = metrics.NetProfitMargin
		sources = append(sources, "fmp")

		if err := b.limiter.Acquire(ctx, ratelimit.ProviderFMP, 1); err == nil {
			if growth, err := b.fmp.FinancialGrowth(ctx, meta.Ticker); err == nil {
				view.RevGrowthPct = growth.RevenueGrowth * 100
				view.revGrowthKnown = true
			}
		}
	}

	needsYahoo := !view.revGrowthKnown || view.PERatio == 0 || view.ShortIntPct == 0
	if needsYahoo {
		if err := b.limiter.Acquire(ctx, ratelimit.ProviderYahoo, 1); err != nil {
			return view, strings.Join(sources, "+"), err
		}
		if data, err := b.yahoo.GetFundamentalData(ctx, meta.Ticker); err == nil {
			if view.PERatio == 0 {
				view.PERatio = data.PERatio
			}
			if !view.revGrowthKnown && data.RevenueGrowth != 0 {
				view.RevGrowthPct = data.RevenueGrowth * 100
				view.revGrowthKnown = true
			}
			if view.ProfitMargin == 0 {
				view.ProfitMargin = data.ProfitMargin
			}
			if view.ROE == 0 {
				view.ROE = data.ROE
			}
			if view.DebtRatio == 0 && data.DebtToEquity > 0 {
				// Yahoo reports debt/equity as a percentage.
				view.DebtRatio = data.DebtToEquity / 100
			}
			if view.CurrentRatio == 0 {
				view.CurrentRatio = data.CurrentRatio
			}
			view.ShortIntPct = data.ShortPctFloat * 100
			sources = append(sources, "yahoo")
		}
	}

	if len(sources) == 0 {
		return view, "", fmt.Errorf("fundamentals unavailable for %s from fmp and yahoo", meta.Ticker)
	}
	if view.DebtRatio < 0 {
		view.DebtRatio = 0
	}
	return view, strings.Join(sources, "+"), nil
}
