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

// minAnalysts is the coverage floor below which consensus carries no
// sentiment weight at all.
const minAnalysts = 3

// AnalystBot aggregates recommendation counts, the consensus price
// target and recent grade changes. FMP first, Yahoo's quoteSummary
// consensus as fallback.
type AnalystBot struct {
	fmp     *fmp.Client
	yahoo   *yahoo.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// AnalystBotConfig holds AnalystBot dependencies.
type AnalystBotConfig struct {
	FMP     *fmp.Client
	Yahoo   *yahoo.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewAnalystBot creates the analyst consensus bot.
func NewAnalystBot(cfg AnalystBotConfig) *AnalystBot {
	return &AnalystBot{
		fmp:     cfg.FMP,
		yahoo:   cfg.Yahoo,
		limiter: cfg.Limiter,
		log:     cfg.Log.With().Str("bot", NameAnalyst).Logger(),
	}
}

func (b *AnalystBot) Name() string { return NameAnalyst }

func (b *AnalystBot) CacheTTL() time.Duration { return 4 * time.Hour }

func (b *AnalystBot) Providers(domain.AssetMeta) []string {
	return []string{ratelimit.ProviderFMP}
}

// analystView is the provider-neutral consensus picture.
type analystView struct {
	Consensus    string
	Score        float64 // 1.0 strong buy .. 0.0 sell
	AnalystCount int
	TargetPrice  float64
	Upgrades     int
	Downgrades   int
}

// Fetch derives the consensus label, target and recent grade momentum.
func (b *AnalystBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	view, source, err := b.collect(ctx, meta)
	if err != nil {
		return domain.BotResult{}, err
	}

	sentiment := 0.0
	if view.AnalystCount >= minAnalysts {
		// Score 0.5 is Hold; full-scale consensus moves sentiment ±0.3.
		sentiment = clamp((view.Score-0.5)*0.6, -0.3, 0.3)
	}

	var bull, bear []string
	if view.AnalystCount >= minAnalysts {
		switch view.Consensus {
		case "Strong Buy", "Buy":
			bull = append(bull, fmt.Sprintf("Analyst consensus %s across %d analysts", view.Consensus, view.AnalystCount))
		case "Sell", "Strong Sell":
			bear = append(bear, fmt.Sprintf("Analyst consensus %s across %d analysts", view.Consensus, view.AnalystCount))
		}
	}
	if view.Upgrades > view.Downgrades && view.Upgrades >= 2 {
		bull = append(bull, fmt.Sprintf("%d analyst upgrades in the last quarter", view.Upgrades))
	} else if view.Downgrades > view.Upgrades && view.Downgrades >= 2 {
		bear = append(bear, fmt.Sprintf("%d analyst downgrades in the last quarter", view.Downgrades))
	}

	confidence := 0.4
	if view.AnalystCount >= minAnalysts {
		confidence = clamp(0.5+float64(view.AnalystCount)*0.02, 0, 0.85)
	}

	raw := map[string]any{
		"consensus":     view.Consensus,
		"score":         round3(view.Score),
		"analyst_count": view.AnalystCount,
		"upgrades":      view.Upgrades,
		"downgrades":    view.Downgrades,
	}
	if view.TargetPrice > 0 {
		raw["target_price"] = round3(view.TargetPrice)
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{
			domain.SignalSentiment: sentiment,
		},
		BullFactors: bull,
		BearFactors: bear,
		Summary:     fmt.Sprintf("consensus %s (%d analysts)", view.Consensus, view.AnalystCount),
		Confidence:  confidence,
		Source:      source,
		Raw: map[string]map[string]any{
			domain.SectionAnalyst: raw,
		},
	}, nil
}

// collect tries FMP for counts, target and grade changes; Yahoo's
// financialData consensus fills in when FMP has nothing.
func (b *AnalystBot) collect(ctx context.Context, meta domain.AssetMeta) (analystView, string, error) {
	var view analystView

	recs, recErr := b.fmp.Recommendations(ctx, meta.Ticker)
	if recErr == nil && len(recs) > 0 {
		latest := recs[0]
		view.Score, view.AnalystCount = consensusScore(latest)
		view.Consensus = consensusLabel(view.Score, view.AnalystCount)

		if err := b.limiter.Acquire(ctx, ratelimit.ProviderFMP, 1); err == nil {
			if target, err := b.fmp.PriceTarget(ctx, meta.Ticker); err == nil {
				view.TargetPrice = target.TargetConsensus
			}
		}
		if err := b.limiter.Acquire(ctx, ratelimit.ProviderFMP, 1); err == nil {
			if changes, err := b.fmp.UpgradesDowngrades(ctx, meta.Ticker); err == nil {
				view.Upgrades, view.Downgrades = countGradeChanges(changes)
			}
		}
		return view, "fmp", nil
	}

	if err := b.limiter.Acquire(ctx, ratelimit.ProviderYahoo, 1); err != nil {
		return view, "", err
	}
	data, err := b.yahoo.GetAnalystData(ctx, meta.Ticker)
	if err != nil {
		return view, "", fmt.Errorf("analyst data unavailable for %s from fmp and yahoo", meta.Ticker)
	}

	view.AnalystCount = data.AnalystCount
	view.TargetPrice = data.TargetMeanPrice
	// Yahoo's recommendationMean runs 1 (strong buy) to 5 (sell); map onto
	// the same 1..0 scale as FMP counts.
	if data.RecommendationMean > 0 {
		view.Score = clamp((5-data.RecommendationMean)/4, 0, 1)
	}
	view.Consensus = consensusLabel(view.Score, view.AnalystCount)
	if view.Consensus == "No Coverage" && data.RecommendationKey != "" {
		view.Consensus = titleCase(data.RecommendationKey)
	}
	return view, "yahoo", nil
}

// consensusScore collapses one month of recommendation counts into a
// score: Strong Buy 1.0, Buy 0.75, Hold 0.5, Sell 0.25, Strong Sell 0.0.
func consensusScore(rec fmp.Recommendation) (score float64, total int) {
	total = rec.StrongBuy + rec.Buy + rec.Hold + rec.Sell + rec.StrongSell
	if total == 0 {
		return 0, 0
	}
	weighted := float64(rec.StrongBuy)*1.0 +
		float64(rec.Buy)*0.75 +
		float64(rec.Hold)*0.5 +
		float64(rec.Sell)*0.25
	return weighted / float64(total), total
}

// consensusLabel maps a score to the display label.
func consensusLabel(score float64, count int) string {
	if count == 0 {
		return "No Coverage"
	}
	switch {
	case score >= 0.85:
		return "Strong Buy"
	case score >= 0.65:
		return "Buy"
	case score >= 0.45:
		return "Hold"
	case score >= 0.25:
		return "Sell"
	default:
		return "Strong Sell"
	}
}

// countGradeChanges tallies upgrades and downgrades within the last 90
// days.
func countGradeChanges(changes []fmp.GradeChange) (upgrades, downgrades int) {
	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	for _, ch := range changes {
		d, err := time.Parse("2006-01-02", firstN(ch.Date, 10))
		if err != nil || d.Before(cutoff) {
			continue
		}
		switch strings.ToLower(ch.Action) {
		case "upgrade":
			upgrades++
		case "downgrade":
			downgrades++
		}
	}
	return upgrades, downgrades
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func titleCase(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
