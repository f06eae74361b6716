package bots

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/clients/alphavantage"
	"github.com/mockbroker/research-engine/internal/clients/fmp"
	"github.com/mockbroker/research-engine/internal/clients/yahoo"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// EarningsBot tracks the earnings calendar and recent EPS surprises.
// Provider routing: FMP first for UK listings (Yahoo's LSE earnings
// coverage is unreliable), Yahoo first for everything else, Alpha
// Vantage as last resort (25 requests/day).
type EarningsBot struct {
	fmp     *fmp.Client
	yahoo   *yahoo.Client
	av      *alphavantage.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// EarningsBotConfig holds EarningsBot dependencies.
type EarningsBotConfig struct {
	FMP     *fmp.Client
	Yahoo   *yahoo.Client
	AV      *alphavantage.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewEarningsBot creates the earnings calendar bot.
func NewEarningsBot(cfg EarningsBotConfig) *EarningsBot {
	return &EarningsBot{
		fmp:     cfg.FMP,
		yahoo:   cfg.Yahoo,
		av:      cfg.AV,
		limiter: cfg.Limiter,
		now:     time.Now,
		log:     cfg.Log.With().Str("bot", NameEarnings).Logger(),
	}
}

func (b *EarningsBot) Name() string { return NameEarnings }

func (b *EarningsBot) CacheTTL() time.Duration { return 4 * time.Hour }

func (b *EarningsBot) Providers(meta domain.AssetMeta) []string {
	if meta.IsUKListed() {
		return []string{ratelimit.ProviderFMP}
	}
	return []string{ratelimit.ProviderYahoo}
}

// Fetch resolves the next earnings date and the mean EPS surprise of the
// last four reported quarters.
func (b *EarningsBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	nextDate, source, err := b.nextEarningsDate(ctx, meta)
	if err != nil {
		return domain.BotResult{}, err
	}

	surprises, surpriseSource := b.recentSurprises(ctx, meta)

	now := b.now().UTC()
	daysToEarnings := 90.0
	if !nextDate.IsZero() {
		daysToEarnings = nextDate.Sub(now).Hours() / 24
		daysToEarnings = clamp(daysToEarnings, 0, 90)
	}

	meanBeat, beatStreak, missStreak := summariseSurprises(surprises)

	var bull, bear []string
	if beatStreak >= 3 {
		bull = append(bull, fmt.Sprintf("Beat EPS estimates %d quarters running", beatStreak))
	}
	if missStreak >= 2 {
		bear = append(bear, fmt.Sprintf("Missed EPS estimates %d quarters running", missStreak))
	}
	if meanBeat > 5 {
		bull = append(bull, fmt.Sprintf("Average EPS surprise +%.1f%% over last %d quarters", meanBeat, len(surprises)))
	} else if meanBeat < -5 {
		bear = append(bear, fmt.Sprintf("Average EPS surprise %.1f%% over last %d quarters", meanBeat, len(surprises)))
	}
	if !nextDate.IsZero() && daysToEarnings <= 7 {
		bull = append(bull, fmt.Sprintf("Earnings due %s — volatility catalyst ahead", nextDate.Format("Jan 2")))
	}

	raw := map[string]any{
		"days_to_earnings": round3(daysToEarnings),
		"surprise_mean":    round3(meanBeat),
		"beat_streak":      beatStreak,
		"miss_streak":      missStreak,
		"quarters":         len(surprises),
	}
	if !nextDate.IsZero() {
		raw["earnings_date"] = nextDate.Format("2006-01-02")
	}

	confidence := 0.5
	if len(surprises) >= 4 {
		confidence = 0.85
	} else if len(surprises) > 0 {
		confidence = 0.65
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{
			domain.SignalDaysToEarnings: daysToEarnings,
			domain.SignalEarningsBeat:   clamp(meanBeat, -25, 40),
		},
		BullFactors: bull,
		BearFactors: bear,
		Summary:     fmt.Sprintf("next earnings in %.0f days, mean surprise %.1f%%", daysToEarnings, meanBeat),
		Confidence:  confidence,
		Source:      source + "+" + surpriseSource,
		Raw: map[string]map[string]any{
			domain.SectionEarnings: raw,
		},
	}, nil
}

// nextEarningsDate applies the provider routing for the calendar lookup.
// The primary provider's token was acquired by the runner; fallback
// providers acquire their own here.
func (b *EarningsBot) nextEarningsDate(ctx context.Context, meta domain.AssetMeta) (time.Time, string, error) {
	if meta.IsUKListed() {
		if date, err := b.fmp.NextEarningsDate(ctx, meta.Ticker); err == nil {
			return date, "fmp", nil
		}
		if err := b.limiter.Acquire(ctx, ratelimit.ProviderYahoo, 1); err != nil {
			return time.Time{}, "", err
		}
		if dates, err := b.yahoo.GetEarningsDates(ctx, meta.Ticker); err == nil {
			return dates.NextEarnings, "yahoo", nil
		}
	} else {
		if dates, err := b.yahoo.GetEarningsDates(ctx, meta.Ticker); err == nil {
			return dates.NextEarnings, "yahoo", nil
		}
		if err := b.limiter.Acquire(ctx, ratelimit.ProviderFMP, 1); err != nil {
			return time.Time{}, "", err
		}
		if date, err := b.fmp.NextEarningsDate(ctx, meta.Ticker); err == nil {
			return date, "fmp", nil
		}
	}

	// Last resort: Alpha Vantage only reports past quarters, so the next
	// date stays unknown but the surprise history is still usable.
	if err := b.limiter.Acquire(ctx, ratelimit.ProviderAlphaVantage, 1); err != nil {
		return time.Time{}, "", err
	}
	if _, err := b.av.QuarterlyEarnings(ctx, meta.Ticker); err == nil {
		return time.Time{}, "alpha_vantage", nil
	}
	return time.Time{}, "", fmt.Errorf("earnings date unavailable for %s from all providers", meta.Ticker)
}

// recentSurprises fetches up to the last four quarterly EPS surprises.
// Failures degrade to an empty history rather than failing the bot.
func (b *EarningsBot) recentSurprises(ctx context.Context, meta domain.AssetMeta) ([]float64, string) {
	if err := b.limiter.Acquire(ctx, ratelimit.ProviderFMP, 1); err != nil {
		return nil, "none"
	}
	if rows, err := b.fmp.EarningsSurprises(ctx, meta.Ticker); err == nil && len(rows) > 0 {
		out := make([]float64, 0, 4)
		for _, row := range rows {
			out = append(out, row.SurprisePct())
			if len(out) == 4 {
				break
			}
		}
		return out, "fmp"
	}

	if err := b.limiter.Acquire(ctx, ratelimit.ProviderAlphaVantage, 1); err != nil {
		return nil, "none"
	}
	if quarters, err := b.av.QuarterlyEarnings(ctx, meta.Ticker); err == nil && len(quarters) > 0 {
		out := make([]float64, 0, 4)
		for _, q := range quarters {
			out = append(out, q.SurprisePercentage)
			if len(out) == 4 {
				break
			}
		}
		return out, "alpha_vantage"
	}
	return nil, "none"
}

// summariseSurprises returns the mean surprise plus the current beat and
// miss streaks, counting from the most recent quarter backwards.
func summariseSurprises(surprises []float64) (mean float64, beatStreak, missStreak int) {
	if len(surprises) == 0 {
		return 0, 0, 0
	}
	sum := 0.0
	for _, s := range surprises {
		sum += s
	}
	mean = sum / float64(len(surprises))

	for _, s := range surprises {
		if s > 0 {
			beatStreak++
		} else {
			break
		}
	}
	for _, s := range surprises {
		if s < 0 {
			missStreak++
		} else {
			break
		}
	}
	return mean, beatStreak, missStreak
}
