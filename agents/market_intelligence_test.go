package agents_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sharingan/marketpulse/agents"
	"github.com/sharingan/marketpulse/domain"
)

func istTime(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04 -0700", "2026-07-31 "+hhmm+" +0530")
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return parsed
}

func TestMarketPhaseForBoundaries(t *testing.T) {
	cases := []struct {
		clock string
		want  domain.MarketPhase
	}{
		{"08:00", domain.PhasePre},
		{"09:14", domain.PhasePre},
		{"09:15", domain.PhaseMid},
		{"12:00", domain.PhaseMid},
		{"15:29", domain.PhaseMid},
		{"15:30", domain.PhasePost},
		{"23:59", domain.PhasePost},
		{"00:00", domain.PhasePost},
		{"07:59", domain.PhasePost},
	}
	for _, c := range cases {
		got := agents.MarketPhaseFor(istTime(t, c.clock))
		assert.Equalf(t, c.want, got, "clock=%s", c.clock)
	}
}

func TestOutlookForScenario1(t *testing.T) {
	outlook := agents.OutlookFor(domain.PhasePre, 0.85, []string{"global cues positive"})
	assert := assert.New(t)
	assert.NotNil(outlook)
	assert.Equal(domain.SentimentBullish, outlook.Sentiment)
	assert.InDelta(0.425, outlook.Confidence, 1e-9)
}

func TestOutlookForNilDuringMid(t *testing.T) {
	outlook := agents.OutlookFor(domain.PhaseMid, 2.0, nil)
	assert.Nil(t, outlook)
}

func TestOutlookForNeutralBand(t *testing.T) {
	outlook := agents.OutlookFor(domain.PhasePost, 0.2, nil)
	assert.Equal(t, domain.SentimentNeutral, outlook.Sentiment)
}

func TestOutlookForConfidenceCapsAtOne(t *testing.T) {
	outlook := agents.OutlookFor(domain.PhasePre, -5.0, nil)
	assert.Equal(t, domain.SentimentBearish, outlook.Sentiment)
	assert.Equal(t, 1.0, outlook.Confidence)
}

func TestDedupNewsByIDKeepsFirstOccurrence(t *testing.T) {
	items := []domain.NewsItem{
		{ID: "n1", Headline: "first"},
		{ID: "n2", Headline: "other"},
		{ID: "n1", Headline: "duplicate"},
	}
	deduped := agents.DedupNewsByID(items)
	assert.Len(t, deduped, 2)
	assert.Equal(t, "first", deduped[0].Headline)
}

func TestDegradedMarketIntelligenceHasNoOutlookOrNews(t *testing.T) {
	out := agents.DegradedMarketIntelligence(istTime(t, "10:00"))
	assert.Equal(t, domain.PhaseMid, out.MarketPhase)
	assert.Nil(t, out.MarketOutlook)
	assert.Empty(t, out.NewsItems)
	assert.Empty(t, out.PreliminaryThemes)
}
