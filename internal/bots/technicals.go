package bots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/mockbroker/research-engine/internal/clients/polygon"
	"github.com/mockbroker/research-engine/internal/clients/yahoo"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

const pivotWindow = 5 // bars per side considered for pivot highs/lows

// ohlcv is the provider-neutral daily bar.
type ohlcv struct {
	High  float64
	Low   float64
	Close float64
}

// TechnicalLevelsBot computes moving averages, Bollinger bands, 52-week
// position, pivot levels and MA crosses from up to a year of daily bars.
// Polygon serves US tickers, Yahoo everything else. Purely
// factor-producing: no signal inputs.
type TechnicalLevelsBot struct {
	polygon *polygon.Client
	yahoo   *yahoo.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// TechnicalLevelsBotConfig holds TechnicalLevelsBot dependencies.
type TechnicalLevelsBotConfig struct {
	Polygon *polygon.Client
	Yahoo   *yahoo.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewTechnicalLevelsBot creates the technical levels bot.
func NewTechnicalLevelsBot(cfg TechnicalLevelsBotConfig) *TechnicalLevelsBot {
	return &TechnicalLevelsBot{
		polygon: cfg.Polygon,
		yahoo:   cfg.Yahoo,
		limiter: cfg.Limiter,
		now:     time.Now,
		log:     cfg.Log.With().Str("bot", NameTechnicals).Logger(),
	}
}

func (b *TechnicalLevelsBot) Name() string { return NameTechnicals }

func (b *TechnicalLevelsBot) CacheTTL() time.Duration { return time.Hour }

func (b *TechnicalLevelsBot) Providers(meta domain.AssetMeta) []string {
	if meta.IsNonUS() {
		return []string{ratelimit.ProviderYahoo}
	}
	return []string{ratelimit.ProviderPolygon}
}

// Fetch loads daily bars and derives the technical picture.
func (b *TechnicalLevelsBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	bars, source, err := b.loadBars(ctx, meta)
	if err != nil {
		return domain.BotResult{}, err
	}
	if len(bars) < 30 {
		return domain.BotResult{}, fmt.Errorf("technicals %s: only %d bars available", meta.Ticker, len(bars))
	}

	tech := computeTechnicals(bars)

	var bull, bear []string
	if tech.GoldenCross {
		bull = append(bull, "Golden cross: MA50 crossed above MA200")
	}
	if tech.DeathCross {
		bear = append(bear, "Death cross: MA50 crossed below MA200")
	}
	if tech.YearPosition >= 0.9 {
		bull = append(bull, fmt.Sprintf("Trading in top decile of 52-week range (%.0f%%)", tech.YearPosition*100))
	} else if tech.YearPosition <= 0.1 {
		bear = append(bear, fmt.Sprintf("Near 52-week lows (%.0f%% of range)", tech.YearPosition*100))
	}
	if tech.MA20 > 0 && tech.MA50 > 0 && tech.Close > tech.MA20 && tech.MA20 > tech.MA50 {
		bull = append(bull, "Uptrend intact: price above MA20 above MA50")
	}
	if tech.MA50 > 0 && tech.Close < tech.MA50 {
		bear = append(bear, "Price below MA50")
	}
	if tech.Close >= tech.BollingerUpper && tech.BollingerUpper > 0 {
		bear = append(bear, "Stretched above upper Bollinger band")
	}

	priceSection := map[string]any{
		"close":         round3(tech.Close),
		"year_high":     round3(tech.YearHigh),
		"year_low":      round3(tech.YearLow),
		"year_position": round3(tech.YearPosition),
		"bars":          len(bars),
	}
	techSection := map[string]any{
		"ma20":            round3(tech.MA20),
		"ma50":            round3(tech.MA50),
		"ma200":           round3(tech.MA200),
		"bollinger_upper": round3(tech.BollingerUpper),
		"bollinger_lower": round3(tech.BollingerLower),
		"supports":        tech.Supports,
		"resistances":     tech.Resistances,
		"golden_cross":    tech.GoldenCross,
		"death_cross":     tech.DeathCross,
	}

	return domain.BotResult{
		BullFactors: bull,
		BearFactors: bear,
		Summary:     fmt.Sprintf("close %.2f, 52wk position %.0f%%", tech.Close, tech.YearPosition*100),
		Confidence:  0.9,
		Source:      source,
		Raw: map[string]map[string]any{
			domain.SectionPrice:      priceSection,
			domain.SectionTechnicals: techSection,
		},
	}, nil
}

func (b *TechnicalLevelsBot) loadBars(ctx context.Context, meta domain.AssetMeta) ([]ohlcv, string, error) {
	if !meta.IsNonUS() {
		to := b.now().UTC()
		from := to.AddDate(-1, 0, 0)
		pbars, err := b.polygon.DailyBars(ctx, meta.Ticker, from, to)
		if err == nil && len(pbars) > 0 {
			out := make([]ohlcv, len(pbars))
			for i, bar := range pbars {
				out[i] = ohlcv{High: bar.High, Low: bar.Low, Close: bar.Close}
			}
			return out, "polygon", nil
		}
		if err := b.limiter.Acquire(ctx, ratelimit.ProviderYahoo, 1); err != nil {
			return nil, "", err
		}
	}

	ybars, err := b.yahoo.DailyBars(ctx, meta.Ticker)
	if err != nil {
		return nil, "", err
	}
	out := make([]ohlcv, len(ybars))
	for i, bar := range ybars {
		out[i] = ohlcv{High: bar.High, Low: bar.Low, Close: bar.Close}
	}
	return out, "yahoo", nil
}

// technicalLevels is the computed technical picture of one symbol.
type technicalLevels struct {
	Close          float64
	MA20           float64
	MA50           float64
	MA200          float64
	BollingerUpper float64
	BollingerLower float64
	YearHigh       float64
	YearLow        float64
	YearPosition   float64
	Supports       []float64
	Resistances    []float64
	GoldenCross    bool
	DeathCross     bool
}

// computeTechnicals derives all levels from daily bars (oldest first).
func computeTechnicals(bars []ohlcv) technicalLevels {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := len(closes) - 1

	out := technicalLevels{Close: closes[last]}

	out.MA20 = lastValue(talib.Sma(closes, 20))
	out.MA50 = lastValue(talib.Sma(closes, 50))
	if len(closes) >= 200 {
		out.MA200 = lastValue(talib.Sma(closes, 200))
	}

	if len(closes) >= 20 {
		upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		out.BollingerUpper = lastValue(upper)
		out.BollingerLower = lastValue(lower)
	}

	out.YearHigh, out.YearLow = rangeOf(bars)
	out.YearPosition = yearPercentile(closes)

	out.Supports, out.Resistances = pivotLevels(bars)

	// A cross fires only when it happened between the last two bars.
	if len(closes) >= 201 {
		ma50 := talib.Sma(closes, 50)
		ma200 := talib.Sma(closes, 200)
		prev50, cur50 := ma50[last-1], ma50[last]
		prev200, cur200 := ma200[last-1], ma200[last]
		out.GoldenCross = prev50 <= prev200 && cur50 > cur200
		out.DeathCross = prev50 >= prev200 && cur50 < cur200
	}

	return out
}

// yearPercentile places the latest close within the distribution of the
// period's closes.
func yearPercentile(closes []float64) float64 {
	sorted := append([]float64(nil), closes...)
	sort.Float64s(sorted)
	return stat.CDF(closes[len(closes)-1], stat.Empirical, sorted, nil)
}

// pivotLevels finds swing lows (supports) and swing highs (resistances)
// over a centered 5-bar window, most recent first, capped at three each.
func pivotLevels(bars []ohlcv) (supports, resistances []float64) {
	half := pivotWindow / 2
	for i := len(bars) - 1 - half; i >= half; i-- {
		isLow, isHigh := true, true
		for j := i - half; j <= i+half; j++ {
			if j == i {
				continue
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
			if bars[j].High > bars[i].High {
				isHigh = false
			}
		}
		if isLow && len(supports) < 3 {
			supports = append(supports, round3(bars[i].Low))
		}
		if isHigh && len(resistances) < 3 {
			resistances = append(resistances, round3(bars[i].High))
		}
		if len(supports) == 3 && len(resistances) == 3 {
			break
		}
	}
	return supports, resistances
}

func rangeOf(bars []ohlcv) (high, low float64) {
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low && b.Low > 0 {
			low = b.Low
		}
	}
	return high, low
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
