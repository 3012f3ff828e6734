package agents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sharingan/marketpulse/agents"
	"github.com/sharingan/marketpulse/domain"
)

func TestTrendingNowForReturnsTop5NewestFirst(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	items := make([]domain.NewsItem, 0, 7)
	for i := 0; i < 7; i++ {
		items = append(items, domain.NewsItem{
			ID:          string(rune('a' + i)),
			PublishedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	trending := agents.TrendingNowFor(items)
	assert.Len(t, trending, 5)
	assert.Equal(t, "g", trending[0].ID) // newest: i=6
	assert.Equal(t, "c", trending[4].ID) // 5th newest: i=2
}

func TestEnforceCausalBulletsDropsNonCausalAndBackfillsFromThemes(t *testing.T) {
	bullets := []domain.MarketSummaryBullet{
		{Text: "Nifty rose sharply in early trade.", Confidence: 0.9}, // no causal keyword -> dropped
		{Text: "Banking stocks rallied following RBI's rate commentary.", Confidence: 0.7},
	}
	themeGroups := []domain.ThemeGroup{
		{ThemeName: "Oil, Gas & Energy", Reason: "crude prices falling on oversupply concerns", OverallSentiment: domain.MixedBearish},
	}
	impactConfidence := map[string]float64{}

	kept, discarded := agents.EnforceCausalBullets(bullets, themeGroups, impactConfidence, 3)
	assert.Equal(t, 1, discarded)
	if assert.Len(t, kept, 2) {
		assert.Contains(t, kept[0].Text, "following")
	}
}

func TestCapKeyTakeawaysLimitsToFour(t *testing.T) {
	out := agents.CapKeyTakeaways([]string{"a", "b", "c", "d", "e"})
	assert.Len(t, out, 4)
}

func TestPostProcessSummaryGenerationMidPhaseNullsBullets(t *testing.T) {
	input := agents.SummaryGenerationInput{
		MarketPhase: domain.PhaseMid,
		NewsItems: []domain.NewsItem{
			{ID: "n1", PublishedAt: time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)},
		},
	}
	out := &agents.SummaryGenerationOutput{
		MarketSummaryBullets: []domain.MarketSummaryBullet{{Text: "should be dropped"}},
	}
	err := agents.PostProcessSummaryGeneration(input)(context.Background(), out)
	assert := assert.New(t)
	assert.NoError(err)
	assert.Nil(out.MarketSummaryBullets)
	assert.Len(out.TrendingNowSection, 1)
}

func TestDegradedSummaryGenerationMidPhasePopulatesTrending(t *testing.T) {
	input := agents.SummaryGenerationInput{
		MarketPhase: domain.PhaseMid,
		NewsItems:   []domain.NewsItem{{ID: "n1"}},
	}
	out := agents.DegradedSummaryGeneration(input)
	assert.Len(t, out.TrendingNowSection, 1)
	assert.Nil(t, out.MarketSummaryBullets)
}
