package bots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockbroker/research-engine/internal/clients/gnews"
	"github.com/mockbroker/research-engine/internal/domain"
	"github.com/mockbroker/research-engine/internal/ratelimit"
)

// Headline tone lexicons. Deliberately small: the aim is direction, not
// NLP accuracy, and the catalyst overlay handles the phrases that move
// prices.
var positiveWords = []string{
	"beat", "beats", "surge", "surges", "soar", "soars", "rally", "rallies",
	"jump", "jumps", "gain", "gains", "record", "upgrade", "upgraded",
	"strong", "growth", "profit", "bullish", "outperform", "raise", "raises",
	"expand", "expands", "wins", "approval", "breakthrough", "exceed", "exceeds",
}

var negativeWords = []string{
	"miss", "misses", "plunge", "plunges", "fall", "falls", "drop", "drops",
	"slump", "slumps", "decline", "declines", "loss", "losses", "downgrade",
	"downgraded", "weak", "lawsuit", "probe", "investigation", "recall",
	"bearish", "underperform", "cut", "cuts", "layoff", "layoffs", "warns",
	"bankruptcy", "fraud", "halt", "halts",
}

// Catalyst phrases carry more weight than word tone: they name events
// that reprice an asset on their own.
var bullishCatalysts = []string{
	"earnings beat", "beats estimates", "fda approval", "buyback",
	"raises guidance", "dividend increase", "acquisition", "merger",
	"contract win", "patent granted",
}

var bearishCatalysts = []string{
	"earnings miss", "misses estimates", "sec investigation", "lawsuit",
	"cuts guidance", "dividend cut", "data breach", "product recall",
	"ceo resigns", "accounting issues",
}

// NewsBot scores recent headlines from GNews.
type NewsBot struct {
	client  *gnews.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// NewsBotConfig holds NewsBot dependencies.
type NewsBotConfig struct {
	Client  *gnews.Client
	Limiter *ratelimit.Limiter
	Log     zerolog.Logger
}

// NewNewsBot creates the news sentiment bot.
func NewNewsBot(cfg NewsBotConfig) *NewsBot {
	return &NewsBot{
		client:  cfg.Client,
		limiter: cfg.Limiter,
		log:     cfg.Log.With().Str("bot", NameNews).Logger(),
	}
}

func (b *NewsBot) Name() string { return NameNews }

func (b *NewsBot) CacheTTL() time.Duration { return 2 * time.Hour }

func (b *NewsBot) Providers(domain.AssetMeta) []string {
	return []string{ratelimit.ProviderGNews}
}

// Fetch queries the last 24h of headlines (company name first, ticker as
// fallback query) and derives sentiment and catalystNews signals.
func (b *NewsBot) Fetch(ctx context.Context, meta domain.AssetMeta) (domain.BotResult, error) {
	query := meta.Name
	if query == "" {
		query = meta.Ticker
	}

	headlines, err := b.client.Search(ctx, query, 10)
	if err != nil {
		return domain.BotResult{}, err
	}

	var (
		toneSum      float64
		catalystSum  float64
		catalystHits int
		scored       []map[string]any
		bull, bear   []string
	)

	for _, h := range headlines {
		text := strings.ToLower(h.Title + " " + h.Description)
		tone := headlineTone(text)
		toneSum += tone

		if dir, hit := catalystDirection(text); hit {
			catalystHits++
			catalystSum += dir
			if dir > 0 {
				bull = append(bull, "Catalyst: "+h.Title)
			} else {
				bear = append(bear, "Risk: "+h.Title)
			}
		}

		scored = append(scored, map[string]any{
			"title":     h.Title,
			"source":    h.Source,
			"published": h.PublishedAt.UTC().Format(time.RFC3339),
			"score":     tone,
		})
	}

	sentiment := 0.0
	if len(headlines) > 0 {
		sentiment = clamp(toneSum/float64(len(headlines)), -1, 1)
	}
	catalyst := sentiment * 0.5
	if catalystHits > 0 {
		catalyst = clamp(catalystSum/float64(catalystHits), -1, 1)
	}

	// Confidence grows with coverage: 0.3 floor for thin tape, 0.9 cap.
	confidence := 0.3 + 0.06*float64(len(headlines))
	if confidence > 0.9 {
		confidence = 0.9
	}

	summary := fmt.Sprintf("%d headlines in last 24h, sentiment %.2f", len(headlines), sentiment)
	if sentiment > 0.25 {
		bull = append(bull, fmt.Sprintf("News flow positive (%d headlines)", len(headlines)))
	} else if sentiment < -0.25 {
		bear = append(bear, fmt.Sprintf("News flow negative (%d headlines)", len(headlines)))
	}

	return domain.BotResult{
		SignalInputs: map[string]float64{
			domain.SignalSentiment:    sentiment,
			domain.SignalCatalystNews: catalyst,
		},
		BullFactors: bull,
		BearFactors: bear,
		Summary:     summary,
		Confidence:  confidence,
		Source:      "gnews",
		Raw: map[string]map[string]any{
			domain.SectionNews: {
				"headline_count": len(headlines),
				"catalyst_hits":  catalystHits,
				"sentiment":      round3(sentiment),
				"headlines":      scored,
			},
		},
	}, nil
}

// headlineTone scores one headline text in [-1, 1] from the lexicons.
func headlineTone(text string) float64 {
	score := 0.0
	for _, w := range positiveWords {
		if containsWord(text, w) {
			score += 0.25
		}
	}
	for _, w := range negativeWords {
		if containsWord(text, w) {
			score -= 0.25
		}
	}
	return clamp(score, -1, 1)
}

// catalystDirection returns the net catalyst direction for the text and
// whether any catalyst phrase matched.
func catalystDirection(text string) (float64, bool) {
	dir := 0.0
	hit := false
	for _, p := range bullishCatalysts {
		if strings.Contains(text, p) {
			dir += 1
			hit = true
		}
	}
	for _, p := range bearishCatalysts {
		if strings.Contains(text, p) {
			dir -= 1
			hit = true
		}
	}
	return clamp(dir, -1, 1), hit
}

// containsWord matches w as a whole word inside text.
func containsWord(text, w string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isLetter(text[start-1])
		afterOK := end == len(text) || !isLetter(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
