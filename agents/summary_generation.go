package agents

import (
	"context"
	"sort"
	"time"

	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

// DefaultMaxBullets is the default cap on market summary bullets when a
// request does not override it.
const DefaultMaxBullets = 3

// trendingNowSize is the fixed count of top news items surfaced mid-session.
const trendingNowSize = 5

// maxKeyTakeaways bounds the executive key-takeaways list.
const maxKeyTakeaways = 4

// SummaryGenerationInput is the input contract for the Summary Generation
// agent.
type SummaryGenerationInput struct {
	MarketPhase     domain.MarketPhase          `json:"market_phase"`
	NewsWithImpacts []domain.NewsWithImpact     `json:"news_with_impacts"`
	RefinedThemes   []domain.ThemeGroup         `json:"refined_themes"`
	MarketOutlook   *domain.MarketOutlook       `json:"market_outlook,omitempty"`
	PortfolioImpact *domain.PortfolioImpact     `json:"portfolio_impact,omitempty"`
	IndicesData     map[string]domain.IndexData `json:"indices_data"`
	NewsItems       []domain.NewsItem           `json:"news_items"`
	MaxBullets      int                         `json:"max_bullets"`
}

// GenerationMetadata carries diagnostic information about how the summary
// was produced, surfaced on the envelope as generation_metadata.
type GenerationMetadata struct {
	BulletsRequested int `json:"bullets_requested"`
	BulletsReturned  int `json:"bullets_returned"`
	BulletsDiscarded int `json:"bullets_discarded"`
}

// SummaryGenerationOutput is the output contract for the Summary Generation
// agent.
type SummaryGenerationOutput struct {
	MarketSummaryBullets []domain.MarketSummaryBullet `json:"market_summary_bullets"`
	TrendingNowSection   []domain.NewsItem            `json:"trending_now_section"`
	ExecutiveSummary     string                       `json:"executive_summary"`
	KeyTakeaways         []string                     `json:"key_takeaways"`
	GenerationMetadata   GenerationMetadata           `json:"generation_metadata"`
}

// TrendingNowFor returns the top trendingNowSize news items sorted by
// PublishedAt descending, used for the mid-session trending feed.
func TrendingNowFor(items []domain.NewsItem) []domain.NewsItem {
	sorted := make([]domain.NewsItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if len(sorted) > trendingNowSize {
		sorted = sorted[:trendingNowSize]
	}
	return sorted
}

// themeDerivedBullet synthesizes a causal-language bullet from a theme group,
// used to backfill a model-produced bullet that fails the causal check.
func themeDerivedBullet(theme domain.ThemeGroup) (domain.MarketSummaryBullet, bool) {
	if theme.Reason == "" {
		return domain.MarketSummaryBullet{}, false
	}
	text := theme.ThemeName + " moved due to " + theme.Reason
	if !HasCausalLanguage(text) {
		return domain.MarketSummaryBullet{}, false
	}
	supportingIDs := make([]string, 0, len(theme.NewsItems))
	for _, n := range theme.NewsItems {
		supportingIDs = append(supportingIDs, n.ID)
	}
	sentiment := domain.SentimentNeutral
	switch theme.OverallSentiment {
	case domain.MixedBullish:
		sentiment = domain.SentimentBullish
	case domain.MixedBearish:
		sentiment = domain.SentimentBearish
	}
	return domain.MarketSummaryBullet{
		Text:              text,
		SupportingNewsIDs: supportingIDs,
		Confidence:        0.5,
		Sentiment:         sentiment,
	}, true
}

// EnforceCausalBullets filters bullets failing the causal-language check,
// backfills from theme-derived bullets, and orders the survivors by
// descending confidence (tie-broken by the best supporting news item's
// impact confidence).
func EnforceCausalBullets(bullets []domain.MarketSummaryBullet, themeGroups []domain.ThemeGroup, impactConfidenceByNewsID map[string]float64, maxBullets int) ([]domain.MarketSummaryBullet, int) {
	kept := make([]domain.MarketSummaryBullet, 0, len(bullets))
	discarded := 0
	for _, b := range bullets {
		if HasCausalLanguage(b.Text) {
			kept = append(kept, b)
		} else {
			discarded++
		}
	}
	for _, theme := range themeGroups {
		if len(kept) >= maxBullets {
			break
		}
		if b, ok := themeDerivedBullet(theme); ok {
			kept = append(kept, b)
		}
	}

	bestImpactConfidence := func(b domain.MarketSummaryBullet) float64 {
		var best float64
		for _, id := range b.SupportingNewsIDs {
			if c := impactConfidenceByNewsID[id]; c > best {
				best = c
			}
		}
		return best
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return bestImpactConfidence(kept[i]) > bestImpactConfidence(kept[j])
	})

	if len(kept) > maxBullets {
		kept = kept[:maxBullets]
	}
	return kept, discarded
}

func CapKeyTakeaways(takeaways []string) []string {
	if len(takeaways) > maxKeyTakeaways {
		return takeaways[:maxKeyTakeaways]
	}
	return takeaways
}

// PostProcessSummaryGeneration enforces the phase branching, causal-language
// filtering with theme-derived backfill, and the key-takeaways cap.
func PostProcessSummaryGeneration(input SummaryGenerationInput) agentruntime.PostProcessFunc {
	return func(_ context.Context, output any) error {
		out, ok := output.(*SummaryGenerationOutput)
		if !ok {
			return nil
		}
		maxBullets := input.MaxBullets
		if maxBullets <= 0 {
			maxBullets = DefaultMaxBullets
		}

		impactConfidenceByNewsID := make(map[string]float64, len(input.NewsWithImpacts))
		for _, impact := range input.NewsWithImpacts {
			impactConfidenceByNewsID[impact.NewsID] = impact.ImpactConfidence
		}

		if input.MarketPhase == domain.PhaseMid {
			out.MarketSummaryBullets = nil
			out.TrendingNowSection = TrendingNowFor(input.NewsItems)
			out.GenerationMetadata = GenerationMetadata{}
		} else {
			requested := len(out.MarketSummaryBullets)
			kept, discarded := EnforceCausalBullets(out.MarketSummaryBullets, input.RefinedThemes, impactConfidenceByNewsID, maxBullets)
			out.MarketSummaryBullets = kept
			out.TrendingNowSection = nil
			out.GenerationMetadata = GenerationMetadata{
				BulletsRequested: requested,
				BulletsReturned:  len(kept),
				BulletsDiscarded: discarded,
			}
		}
		out.KeyTakeaways = CapKeyTakeaways(out.KeyTakeaways)
		return nil
	}
}

var summaryGenerationInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"market_phase":      map[string]any{"type": "string"},
		"news_with_impacts": map[string]any{"type": []any{"array", "null"}},
		"refined_themes":    map[string]any{"type": []any{"array", "null"}},
		"market_outlook":    map[string]any{"type": []any{"object", "null"}},
		"portfolio_impact":  map[string]any{"type": []any{"object", "null"}},
		"indices_data":      map[string]any{"type": []any{"object", "null"}},
		"news_items":        map[string]any{"type": []any{"array", "null"}},
		"max_bullets":       map[string]any{"type": "integer"},
	},
	"required": []any{"market_phase"},
}

var summaryGenerationOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"market_summary_bullets": map[string]any{"type": []any{"array", "null"}},
		"trending_now_section":   map[string]any{"type": []any{"array", "null"}},
		"executive_summary":      map[string]any{"type": "string"},
		"key_takeaways":          map[string]any{"type": []any{"array", "null"}},
	},
	"required": []any{"executive_summary"},
}

// NewSummaryGenerationSpec builds the agentruntime.Spec for the Summary
// Generation agent.
func NewSummaryGenerationSpec(reg *toolregistry.Registry, input SummaryGenerationInput, timeout time.Duration, retryAttempts int, cacheable bool, cacheTTL time.Duration) agentruntime.Spec {
	return agentruntime.Spec{
		Name:            "summary_generation",
		SystemPrompt:    SummaryGenerationSystemPrompt,
		ModelClass:      modelgateway.ModelClassDefault,
		Tools:           reg,
		ToolNames:       []string{"rank_news_by_importance"},
		Temperature:     0.6,
		MaxOutputTokens: 1536,
		Timeout:         timeout,
		RetryAttempts:   retryAttempts,
		Cacheable:       cacheable,
		CacheTTL:        cacheTTL,
		NewOutput:       func() any { return &SummaryGenerationOutput{} },
		PostProcess:     PostProcessSummaryGeneration(input),
		InputSchema:     summaryGenerationInputSchema,
		OutputSchema:    summaryGenerationOutputSchema,
	}
}

// DegradedSummaryGeneration returns the empty-summary placeholder used when
// the Summary Generation agent fails independently of Portfolio Insight:
// phase-appropriate shape, but no bullets or executive text fabricated.
func DegradedSummaryGeneration(input SummaryGenerationInput) SummaryGenerationOutput {
	out := SummaryGenerationOutput{}
	if input.MarketPhase == domain.PhaseMid {
		out.TrendingNowSection = TrendingNowFor(input.NewsItems)
	}
	return out
}
