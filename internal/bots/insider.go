package bots

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/clients/edgar"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// roleWeights rank insider conviction: a CEO buy says more than a VP buy.
var roleWeights = map[string]float64{
	"CEO":      2.0,
	"CFO":      1.8,
	"Director": 1.4,
	"VP":       1.0,
}

const (
	insiderLookback   = 90 * 24 * time.Hour
	clusterBuyers     = 3
	clusterBuyBonus   = 0.15
	defaultRoleWeight = 1.0
)

// InsiderBot scores SEC Form 4 insider activity over the last 90 days.
// EDGAR only covers US issuers, so non-US tickers return a neutral score
// without any outbound call.
type InsiderBot struct {
	edgar   *edgar.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// InsiderBotConfig holds InsiderBot dependencies.
type InsiderBotConfig struct {
	Edgar   *edgar.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewInsiderBot creates the insider activity bot.
func NewInsiderBot(cfg InsiderBotConfig) *InsiderBot {
	return &InsiderBot{
		edgar:   cfg.Edgar,
		limiter: cfg.Limiter,
		now:     time.Now,
		log:     cfg.Log.With().Str("bot", NameInsider).Logger(),
	}
}

func (b *InsiderBot) Name() string { return NameInsider }

func (b *InsiderBot) CacheTTL() time.Duration { return 6 * time.Hour }

// Providers is empty: EDGAR has no API-key quota, only a fair-access
// policy, which the sweep pacing and the shared HTTP retry discipline
// already satisfy.
func (b *InsiderBot) Providers(domain.AssetMeta) []string { return nil }

// Fetch weighs the last 90 days of Form 4 filings by role and recency.
func (b *InsiderBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	if meta.IsNonUS() {
		return domain.BotResult{
			SignalInputs: map[string]float64{domain.SignalInsiderBuy: 0.5},
			Summary:      "non-US listing, no EDGAR coverage",
			Confidence:   0.4,
			Source:       "none",
			Raw: map[string]map[string]any{
				domain.SectionFundamentals: {
					"insider": map[string]any{"covered": false},
				},
			},
		}, nil
	}

	now := b.now().UTC()
	filings, err := b.edgar.Form4Filings(ctx, meta.Ticker, now.Add(-insiderLookback))
	if err != nil {
		return domain.BotResult{}, err
	}

	var (
		buyScore, sellScore float64
		buyers              = map[string]struct{}{}
		buys, sells         int
	)
	for _, f := range filings {
		weight := roleWeight(f.Role) * recencyWeight(now.Sub(f.FiledAt))
		if f.Side == "buy" {
			buyScore += weight
			buyers[f.Filer] = struct{}{}
			buys++
		} else {
			sellScore += weight
			sells++
		}
	}

	insiderBuy := 0.5
	confidence := 0.4
	if buyScore+sellScore > 0 {
		insiderBuy = buyScore / (buyScore + sellScore)
		confidence = 0.8
	}
	if len(buyers) >= clusterBuyers {
		insiderBuy = clamp(insiderBuy+clusterBuyBonus, 0, 1)
	}

	var bull, bear []string
	if len(buyers) >= clusterBuyers {
		bull = append(bull, fmt.Sprintf("Insider cluster: %d distinct buyers in 90 days", len(buyers)))
	} else if insiderBuy > 0.7 && buys > 0 {
		bull = append(bull, fmt.Sprintf("Insider buying outweighs selling (%d buys)", buys))
	}
	if insiderBuy < 0.3 && sells > 0 {
		bear = append(bear, fmt.Sprintf("Insider selling dominates (%d sells in 90 days)", sells))
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{domain.SignalInsiderBuy: insiderBuy},
		BullFactors:  bull,
		BearFactors:  bear,
		Summary:      fmt.Sprintf("%d filings, buy share %.2f", len(filings), insiderBuy),
		Confidence:   confidence,
		Source:       "sec_edgar",
		Raw: map[string]map[string]any{
			domain.SectionFundamentals: {
				"insider": map[string]any{
					"covered":         true,
					"filings":         len(filings),
					"buys":            buys,
					"sells":           sells,
					"distinct_buyers": len(buyers),
					"buy_share":       round3(insiderBuy),
				},
			},
		},
	}, nil
}

func roleWeight(role string) float64 {
	if w, ok := roleWeights[role]; ok {
		return w
	}
	return defaultRoleWeight
}

// recencyWeight discounts older filings: full weight inside 30 days,
// 0.7 to 60 days, 0.4 to 90.
func recencyWeight(age time.Duration) float64 {
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 60*24*time.Hour:
		return 0.7
	default:
		return 0.4
	}
}
