package agents_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/agents"
	"github.com/sharingan/marketpulse/domain"
)

func TestSectorExposureForAggregatesWeightBySector(t *testing.T) {
	exposure := agents.SectorExposureFor([]domain.PortfolioHolding{
		{Ticker: "HDFC", Sector: "Banking & Financials", Weight: 0.3},
		{Ticker: "ICICI", Sector: "Banking & Financials", Weight: 0.2},
		{Ticker: "TCS", Sector: "Information Technology (IT)", Weight: 0.5},
	})
	assert.InDelta(t, 0.5, exposure["Banking & Financials"], 1e-9)
	assert.InDelta(t, 0.5, exposure["Information Technology (IT)"], 1e-9)
}

func TestGenerateWatchlistAlertsCoversEveryTicker(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{
			NewsID: "n1",
			ImpactedStocks: []domain.ImpactedStock{
				{Ticker: "TCS", Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh, CausalChain: "rupee depreciation boosts export margins"},
			},
		},
		{
			NewsID: "n2",
			ImpactedStocks: []domain.ImpactedStock{
				{Ticker: "TATASTEEL", Impact: domain.ImpactNegative, Magnitude: domain.MagnitudeMedium, CausalChain: "falling global steel prices"},
			},
		},
	}
	alerts := agents.GenerateWatchlistAlerts([]string{"TCS", "TATASTEEL", "INFY"}, impacts)
	assert.Len(t, alerts, 3)

	byTicker := make(map[string]domain.WatchlistAlert, len(alerts))
	for _, a := range alerts {
		byTicker[a.Ticker] = a
	}
	assert.Equal(t, domain.AlertOpportunity, byTicker["TCS"].Kind)
	assert.Equal(t, domain.AlertRisk, byTicker["TATASTEEL"].Kind)
	assert.Equal(t, domain.AlertInformational, byTicker["INFY"].Kind)
}

func TestOverallPortfolioSentimentBullishWhenMinorityJustUnder20Percent(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{ImpactedStocks: []domain.ImpactedStock{
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh}, // weight 3
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh}, // weight 3
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh}, // weight 3
			{Impact: domain.ImpactNegative, Magnitude: domain.MagnitudeMedium}, // weight 2
		}},
	}
	// bullish=9, bearish=2, total=11, minority ratio = 2/11 ~= 0.1818 < 0.2 -> not mixed
	sentiment := agents.OverallPortfolioSentiment(impacts)
	assert.Equal(t, domain.MixedBullish, sentiment)
}

func TestOverallPortfolioSentimentBullishWhenMinorityBelow20Percent(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{ImpactedStocks: []domain.ImpactedStock{
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh},
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh},
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh},
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh},
			{Impact: domain.ImpactNegative, Magnitude: domain.MagnitudeLow},
		}},
	}
	// bullish=12, bearish=1, total=13, ratio ~= 0.077 < 0.2 -> bullish
	sentiment := agents.OverallPortfolioSentiment(impacts)
	assert.Equal(t, domain.MixedBullish, sentiment)
}

func TestOverallPortfolioSentimentMixedWhenMinorityAtLeast20Percent(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{ImpactedStocks: []domain.ImpactedStock{
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh}, // weight 3
			{Impact: domain.ImpactPositive, Magnitude: domain.MagnitudeHigh}, // weight 3
			{Impact: domain.ImpactNegative, Magnitude: domain.MagnitudeHigh}, // weight 3
		}},
	}
	// bullish=6, bearish=3, total=9, ratio = 3/9 ~= 0.33 >= 0.2 -> mixed
	sentiment := agents.OverallPortfolioSentiment(impacts)
	assert.Equal(t, domain.MixedMixed, sentiment)
}

func TestEnforceCausalChainsDropsEmpty(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{NewsID: "n1", CausalChain: "driven by strong quarterly results"},
		{NewsID: "n2", CausalChain: ""},
	}
	kept, warnings := agents.EnforceCausalChains(impacts)
	assert.Len(t, kept, 1)
	assert.Equal(t, "n1", kept[0].NewsID)
	assert.Len(t, warnings, 1)
}

func TestEnforceCausalChainsSynthesizesFallbackFromImpactedStocks(t *testing.T) {
	impacts := []domain.NewsWithImpact{
		{
			NewsID: "n3",
			ImpactedStocks: []domain.ImpactedStock{
				{Ticker: "TCS"}, {Ticker: "INFY"},
			},
			SectorImpacts: map[string]domain.ImpactDirection{
				"Information Technology (IT)": domain.ImpactPositive,
			},
		},
	}
	kept, warnings := agents.EnforceCausalChains(impacts)
	require.Len(t, kept, 1)
	assert.Contains(t, kept[0].CausalChain, "TCS")
	assert.Contains(t, kept[0].CausalChain, "Information Technology (IT)")
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "synthesized")
}

func TestDegradedPortfolioInsightPreservesGroundTruthHoldings(t *testing.T) {
	input := agents.PortfolioInsightInput{
		Watchlist: []string{"TCS"},
		Portfolio: []domain.PortfolioHolding{{Ticker: "TCS", Sector: "Information Technology (IT)", Weight: 1.0}},
	}
	out := agents.DegradedPortfolioInsight(input)
	assert.Equal(t, input.Portfolio, out.PortfolioHoldings)
	assert.Equal(t, domain.MixedNeutral, out.PortfolioImpact.OverallSentiment)
	assert.Len(t, out.WatchlistAlerts, 1)
}
