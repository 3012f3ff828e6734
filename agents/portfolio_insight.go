package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/themes"
	"github.com/sharingan/marketpulse/toolregistry"
)

// maxRefinedThemes caps the refined, catalog-normalized theme list surfaced
// by the Portfolio Insight agent, matching themes.MaxThemedNewsItems.
const maxRefinedThemes = themes.MaxThemedNewsItems

// mixedSentimentMinorityRatio is the "at least 20% of the magnitude"
// threshold for calling an aggregate sentiment "mixed" rather than
// collapsing to the majority direction.
const mixedSentimentMinorityRatio = 0.2

// PortfolioInsightInput is the input contract for the Portfolio Insight
// agent.
type PortfolioInsightInput struct {
	UserID            string                    `json:"user_id"`
	Watchlist         []string                  `json:"watchlist"`
	Portfolio         []domain.PortfolioHolding `json:"portfolio"`
	PreliminaryThemes []domain.ThemeGroup       `json:"preliminary_themes"`
	NewsItems         []domain.NewsItem         `json:"news_items"`
}

// PortfolioInsightOutput is the output contract for the Portfolio Insight
// agent.
type PortfolioInsightOutput struct {
	Watchlist        []string                  `json:"watchlist"`
	PortfolioHoldings []domain.PortfolioHolding `json:"portfolio_holdings"`
	SectorExposure   map[string]float64        `json:"sector_exposure"`
	NewsWithImpacts  []domain.NewsWithImpact   `json:"news_with_impacts"`
	RefinedThemes    []domain.ThemeGroup       `json:"refined_themes"`
	PortfolioImpact  domain.PortfolioImpact    `json:"portfolio_impact"`
	WatchlistAlerts  []domain.WatchlistAlert   `json:"watchlist_alerts"`

	// Warnings collects non-fatal post-processing notices (synthesized
	// causal chains, dropped unmappable themes) for the orchestrator to fold
	// into domain.Report.Warnings. It never crosses the model-facing
	// envelope.
	Warnings []string `json:"-"`
}

// SectorExposureFor computes each sector's fraction of total portfolio
// weight from a holdings list.
func SectorExposureFor(holdings []domain.PortfolioHolding) map[string]float64 {
	exposure := make(map[string]float64)
	for _, h := range holdings {
		if h.Sector == "" {
			continue
		}
		exposure[h.Sector] += h.Weight
	}
	return exposure
}

// normalizeRefinedThemes maps every refined theme name onto the allowed
// catalog, dropping (with a warning) any theme Normalize cannot resolve -
// the model's free-form clustering is never trusted to emit catalog names
// directly.
func normalizeRefinedThemes(groups []domain.ThemeGroup) ([]domain.ThemeGroup, []string) {
	out := make([]domain.ThemeGroup, 0, len(groups))
	var warnings []string
	for _, g := range groups {
		normalized, ok := themes.Normalize(g.ThemeName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropped unmappable theme %q", g.ThemeName))
			continue
		}
		g.ThemeName = normalized
		out = append(out, g)
	}
	return out, warnings
}

// rankRefinedThemes orders themes by impacted-holdings count (descending),
// tie-broken by aggregate impact confidence, and caps the result at
// maxRefinedThemes.
func rankRefinedThemes(groups []domain.ThemeGroup, impactConfidenceByStock map[string]float64, holdings []domain.PortfolioHolding) []domain.ThemeGroup {
	ranked := make([]domain.ThemeGroup, len(groups))
	copy(ranked, groups)
	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[h.Ticker] = true
	}
	heldCount := func(g domain.ThemeGroup) int {
		n := 0
		for _, ticker := range g.ImpactedStocks {
			if held[ticker] {
				n++
			}
		}
		return n
	}
	aggregateConfidence := func(g domain.ThemeGroup) float64 {
		var sum float64
		for _, ticker := range g.ImpactedStocks {
			sum += impactConfidenceByStock[ticker]
		}
		return sum
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ci, cj := heldCount(ranked[i]), heldCount(ranked[j]); ci != cj {
			return ci > cj
		}
		return aggregateConfidence(ranked[i]) > aggregateConfidence(ranked[j])
	})
	if len(ranked) > maxRefinedThemes {
		ranked = ranked[:maxRefinedThemes]
	}
	return ranked
}

// EnforceCausalChains requires a non-empty causal explanation on every
// impact. An impact with an empty CausalChain is not dropped: a fallback
// sentence is synthesized from its impacted tickers and
// sector impacts ("affects <tickers> via <sectors>") and a warning is
// recorded. Only an impact with neither tickers nor sector impacts to draw
// on - nothing to synthesize a sentence from - is dropped, also with a
// warning.
func EnforceCausalChains(impacts []domain.NewsWithImpact) ([]domain.NewsWithImpact, []string) {
	out := make([]domain.NewsWithImpact, 0, len(impacts))
	var warnings []string
	for _, impact := range impacts {
		if strings.TrimSpace(impact.CausalChain) != "" {
			out = append(out, impact)
			continue
		}
		fallback, ok := synthesizeCausalChain(impact)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropped impact for news %q: empty causal chain and nothing to synthesize one from", impact.NewsID))
			continue
		}
		impact.CausalChain = fallback
		warnings = append(warnings, fmt.Sprintf("synthesized fallback causal chain for news %q", impact.NewsID))
		out = append(out, impact)
	}
	return out, warnings
}

// synthesizeCausalChain builds "affects <tickers> via <sectors>" from an
// impact's impacted stocks and sector impacts, for use when the model leaves
// CausalChain empty. ok is false when there are no tickers and no sectors to
// report.
func synthesizeCausalChain(impact domain.NewsWithImpact) (string, bool) {
	tickers := make([]string, 0, len(impact.ImpactedStocks))
	for _, s := range impact.ImpactedStocks {
		tickers = append(tickers, s.Ticker)
	}
	sectors := make([]string, 0, len(impact.SectorImpacts))
	for sector := range impact.SectorImpacts {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	if len(tickers) == 0 && len(sectors) == 0 {
		return "", false
	}
	switch {
	case len(tickers) > 0 && len(sectors) > 0:
		return fmt.Sprintf("affects %s via %s", strings.Join(tickers, ", "), strings.Join(sectors, ", ")), true
	case len(tickers) > 0:
		return fmt.Sprintf("affects %s", strings.Join(tickers, ", ")), true
	default:
		return fmt.Sprintf("affects sectors via %s", strings.Join(sectors, ", ")), true
	}
}

// OverallPortfolioSentiment applies the mixed-sentiment rule: if the
// minority direction's magnitude is at least mixedSentimentMinorityRatio of
// the total magnitude, the aggregate is "mixed" rather than the majority
// direction.
func OverallPortfolioSentiment(impacts []domain.NewsWithImpact) domain.MixedSentiment {
	var bullishMagnitude, bearishMagnitude float64
	for _, impact := range impacts {
		for _, stock := range impact.ImpactedStocks {
			weight := magnitudeWeight(stock.Magnitude)
			switch stock.Impact {
			case domain.ImpactPositive:
				bullishMagnitude += weight
			case domain.ImpactNegative:
				bearishMagnitude += weight
			}
		}
	}
	total := bullishMagnitude + bearishMagnitude
	if total == 0 {
		return domain.MixedNeutral
	}
	minority := bullishMagnitude
	if bearishMagnitude < minority {
		minority = bearishMagnitude
	}
	if minority/total >= mixedSentimentMinorityRatio {
		return domain.MixedMixed
	}
	if bullishMagnitude > bearishMagnitude {
		return domain.MixedBullish
	}
	return domain.MixedBearish
}

func magnitudeWeight(m domain.ImpactMagnitude) float64 {
	switch m {
	case domain.MagnitudeHigh:
		return 3
	case domain.MagnitudeMedium:
		return 2
	case domain.MagnitudeLow:
		return 1
	default:
		return 0
	}
}

// GenerateWatchlistAlerts builds a WatchlistAlert for every watchlist ticker
// referenced directly or indirectly (via SupplyChain-derived impact) by the
// computed impacts. Direction maps opportunity/risk; tickers with no impact
// at all get an informational alert.
func GenerateWatchlistAlerts(watchlist []string, impacts []domain.NewsWithImpact) []domain.WatchlistAlert {
	byTicker := make(map[string][]domain.ImpactedStock)
	newsIDsByTicker := make(map[string][]string)
	for _, impact := range impacts {
		for _, stock := range impact.ImpactedStocks {
			byTicker[stock.Ticker] = append(byTicker[stock.Ticker], stock)
			newsIDsByTicker[stock.Ticker] = append(newsIDsByTicker[stock.Ticker], impact.NewsID)
		}
	}

	alerts := make([]domain.WatchlistAlert, 0, len(watchlist))
	for _, ticker := range watchlist {
		stocks, ok := byTicker[ticker]
		if !ok {
			alerts = append(alerts, domain.WatchlistAlert{
				Ticker: ticker,
				Kind:   domain.AlertInformational,
				Reason: "no current news impact identified",
			})
			continue
		}
		kind := domain.AlertInformational
		var reasonParts []string
		for _, s := range stocks {
			switch s.Impact {
			case domain.ImpactPositive:
				kind = domain.AlertOpportunity
			case domain.ImpactNegative:
				if kind != domain.AlertOpportunity {
					kind = domain.AlertRisk
				}
			}
			if s.CausalChain != "" {
				reasonParts = append(reasonParts, s.CausalChain)
			}
		}
		alerts = append(alerts, domain.WatchlistAlert{
			Ticker:            ticker,
			Kind:              kind,
			Reason:            strings.Join(reasonParts, "; "),
			ReferencedNewsIDs: newsIDsByTicker[ticker],
		})
	}
	return alerts
}

// postProcessPortfolioInsight enforces the deterministic rules: causal-chain
// non-emptiness, theme catalog normalization and ranking, sector exposure
// recomputation from ground-truth holdings, the mixed-sentiment rule, and
// watchlist alert coverage for every ticker.
func postProcessPortfolioInsight(input PortfolioInsightInput) agentruntime.PostProcessFunc {
	return func(_ context.Context, output any) error {
		out, ok := output.(*PortfolioInsightOutput)
		if !ok {
			return nil
		}
		out.PortfolioHoldings = input.Portfolio
		out.SectorExposure = SectorExposureFor(input.Portfolio)
		out.Watchlist = input.Watchlist

		var causalWarnings, themeWarnings []string
		out.NewsWithImpacts, causalWarnings = EnforceCausalChains(out.NewsWithImpacts)

		impactConfidenceByStock := make(map[string]float64)
		for _, impact := range out.NewsWithImpacts {
			for _, stock := range impact.ImpactedStocks {
				impactConfidenceByStock[stock.Ticker] += impact.ImpactConfidence
			}
		}

		var normalized []domain.ThemeGroup
		normalized, themeWarnings = normalizeRefinedThemes(out.RefinedThemes)
		out.RefinedThemes = rankRefinedThemes(normalized, impactConfidenceByStock, input.Portfolio)
		out.Warnings = append(causalWarnings, themeWarnings...)

		out.PortfolioImpact.OverallSentiment = OverallPortfolioSentiment(out.NewsWithImpacts)
		out.WatchlistAlerts = GenerateWatchlistAlerts(input.Watchlist, out.NewsWithImpacts)
		return nil
	}
}

var portfolioInsightInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_id":            map[string]any{"type": "string"},
		"watchlist":          map[string]any{"type": []any{"array", "null"}},
		"portfolio":          map[string]any{"type": []any{"array", "null"}},
		"preliminary_themes": map[string]any{"type": []any{"array", "null"}},
		"news_items":         map[string]any{"type": []any{"array", "null"}},
	},
	"required": []any{"user_id"},
}

var portfolioInsightOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"news_with_impacts": map[string]any{"type": []any{"array", "null"}},
		"refined_themes":    map[string]any{"type": []any{"array", "null"}},
		"portfolio_impact":  map[string]any{"type": []any{"object", "null"}},
		"watchlist_alerts":  map[string]any{"type": []any{"array", "null"}},
	},
}

// NewPortfolioInsightSpec builds the agentruntime.Spec for the Portfolio
// Insight agent.
func NewPortfolioInsightSpec(reg *toolregistry.Registry, input PortfolioInsightInput, timeout time.Duration, retryAttempts int, cacheable bool, cacheTTL time.Duration) agentruntime.Spec {
	return agentruntime.Spec{
		Name:         "portfolio_insight",
		SystemPrompt: PortfolioInsightSystemPrompt,
		ModelClass:   modelgateway.ModelClassHighReasoning,
		Tools:        reg,
		ToolNames: []string{
			"fetch_user_watchlist",
			"fetch_user_portfolio",
			"identify_sector_from_stocks",
			"analyze_supply_chain_impact",
			"get_company_fundamentals",
		},
		Temperature:     0.2,
		MaxOutputTokens: 3072,
		Timeout:         timeout,
		RetryAttempts:   retryAttempts,
		Cacheable:       cacheable,
		CacheTTL:        cacheTTL,
		NewOutput:       func() any { return &PortfolioInsightOutput{} },
		PostProcess:     postProcessPortfolioInsight(input),
		InputSchema:     portfolioInsightInputSchema,
		OutputSchema:    portfolioInsightOutputSchema,
	}
}

// DegradedPortfolioInsight returns the empty-insight placeholder used when
// the Portfolio Insight agent fails independently of Summary Generation:
// holdings/watchlist still surface (they are ground truth, not model
// output), but no news impacts, themes, or alerts are fabricated.
func DegradedPortfolioInsight(input PortfolioInsightInput) PortfolioInsightOutput {
	return PortfolioInsightOutput{
		Watchlist:         input.Watchlist,
		PortfolioHoldings: input.Portfolio,
		SectorExposure:    SectorExposureFor(input.Portfolio),
		PortfolioImpact:   domain.PortfolioImpact{OverallSentiment: domain.MixedNeutral},
		WatchlistAlerts:   GenerateWatchlistAlerts(input.Watchlist, nil),
	}
}
