// Package orchestrator implements the three-phase scheduler that wires the
// Market Intelligence, Portfolio Insight, and Summary Generation agents into
// a single market pulse report: a blocking Phase A, a Phase B that runs
// Portfolio Insight and then Summary Generation one after the other, each
// with its own timeout and neither cancelling the other, and a synchronous
// Phase C assembly step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/sharingan/marketpulse/agenterrors"
	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/agents"
	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/themes"
	"github.com/sharingan/marketpulse/toolregistry"
)

// Timeouts bundles the per-agent deadlines used to derive the hard
// orchestration ceiling.
type Timeouts struct {
	Intelligence time.Duration
	Insight      time.Duration
	Summary      time.Duration
}

// ceilingEpsilon is the slack added to the hard wall-clock ceiling for
// synchronous assembly.
const ceilingEpsilon = 500 * time.Millisecond

// Ceiling returns the hard wall-clock bound for one orchestration: Phase A
// timeout + the slower of the two Phase B timeouts + a small epsilon for
// synchronous assembly. Phase B actually runs Portfolio Insight then
// Summary Generation sequentially (see Run), so this is a best-effort
// backstop rather than a provable tight bound in the worst case where both
// calls use their full configured timeout; it is checked after Phase B
// completes to flag (not prevent) a slow-but-not-individually-timed-out run.
func (t Timeouts) Ceiling() time.Duration {
	maxB := t.Insight
	if t.Summary > maxB {
		maxB = t.Summary
	}
	return t.Intelligence + maxB + ceilingEpsilon
}

// Orchestrator runs the three-phase scheduler against a Runtime, a
// DataSource, and a Tool Registry, wiring each agent's Spec per request.
type Orchestrator struct {
	runtime       *agentruntime.Runtime
	dataSource    agents.DataSource
	timeouts      Timeouts
	retryAttempts int
	cacheable     bool
	cacheTTL      time.Duration
	log           *zap.Logger
}

// New builds an Orchestrator. log may be nil for a no-op logger.
func New(runtime *agentruntime.Runtime, dataSource agents.DataSource, timeouts Timeouts, retryAttempts int, cacheable bool, cacheTTL time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		runtime:       runtime,
		dataSource:    dataSource,
		timeouts:      timeouts,
		retryAttempts: retryAttempts,
		cacheable:     cacheable,
		cacheTTL:      cacheTTL,
		log:           log,
	}
}

// Run executes one full orchestration for req against reg (the process-wide
// Tool Registry), returning the assembled, stripped Report. Run only returns
// a non-nil error when the hard ceiling was exceeded with nothing usable to
// show (OrchestrationCeilingError); every other agent failure degrades
// the report instead of failing the request.
func (o *Orchestrator) Run(ctx context.Context, reg *toolregistry.Registry, req domain.Request) (*domain.Report, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := o.log.With(zap.String("request_id", requestID), zap.String("user_id", req.UserID))

	ceilCtx, cancel := context.WithTimeout(ctx, o.timeouts.Ceiling())
	defer cancel()

	var warnings []string
	var degraded bool
	metrics := &domain.OrchestrationMetrics{
		AgentAttempts: make(map[string]int),
		CacheHits:     make(map[string]bool),
	}

	// Phase A: Intelligence, blocking.
	phaseAStart := time.Now()
	intelligence, err := o.runIntelligence(ceilCtx, reg, req, metrics)
	metrics.PhaseAWallTime = time.Since(phaseAStart)
	if err != nil {
		log.Warn("market intelligence failed, entering degraded mode", zap.Error(err))
		warnings = append(warnings, "market_intelligence failed: "+err.Error())
		degraded = true
		placeholder := agents.DegradedMarketIntelligence(req.Timestamp)
		intelligence = &placeholder
	}

	if ceilCtx.Err() != nil {
		return nil, &OrchestrationCeilingError{Elapsed: time.Since(start)}
	}

	// Phase B: Portfolio Insight, then Summary Generation. Summary
	// Generation's input is news_with_impacts and refined_themes - exactly
	// Portfolio Insight's output fields - so the two are not literally
	// simultaneous: Summary Generation consumes Portfolio Insight's result.
	// Isolation is preserved anyway: a Portfolio Insight failure substitutes
	// DegradedPortfolioInsight and never cancels or blocks Summary
	// Generation, and a Summary Generation failure can never reach back and
	// cancel the (already-complete) Portfolio Insight call. Neither call
	// uses golang.org/x/sync/errgroup, since errgroup's group-cancel-on-
	// first-error semantics are exactly what this isolation forbids.
	//
	// Each call derives its deadline from the original ctx with its own
	// configured spec.Timeout, not from ceilCtx: deriving both from the same
	// shrinking ceilCtx would let however long Portfolio Insight took eat
	// into Summary Generation's nominal budget purely because it runs
	// second, misclassifying a starved-but-otherwise-healthy Summary
	// Generation call as a timeout. Timeouts.Ceiling() therefore does not
	// cut Phase B short; it is checked below, after both calls return, and
	// an overrun only marks the report degraded.
	phaseBStart := time.Now()
	insightOut, insightWarn, insightDegraded := o.runInsight(ctx, reg, req, *intelligence, metrics)
	summaryOut, summaryWarn, summaryDegraded := o.runSummary(ctx, reg, req, *intelligence, insightOut, metrics)
	metrics.PhaseBWallTime = time.Since(phaseBStart)

	warnings = append(warnings, insightWarn...)
	if summaryWarn != "" {
		warnings = append(warnings, summaryWarn)
	}
	degraded = degraded || insightDegraded || summaryDegraded

	if ceilCtx.Err() != nil {
		degraded = true
		warnings = append(warnings, "hard orchestration ceiling exceeded; returning partial results")
	}

	metrics.TotalWallTime = time.Since(start)

	report := assemble(requestID, req, *intelligence, insightOut, summaryOut, metrics, degraded, warnings)
	return report, nil
}

func (o *Orchestrator) runIntelligence(ctx context.Context, reg *toolregistry.Registry, req domain.Request, metrics *domain.OrchestrationMetrics) (*agents.MarketIntelligenceOutput, error) {
	input := agents.MarketIntelligenceInput{
		SelectedIndices: req.SelectedIndices,
		Timestamp:       req.Timestamp,
		ForceRefresh:    req.ForceRefresh,
	}
	spec := agents.NewMarketIntelligenceSpec(reg, input, o.timeouts.Intelligence, o.retryAttempts, o.cacheable && !req.ForceRefresh, o.cacheTTL)
	res, err := o.runtime.Execute(ctx, spec, input)
	if err != nil {
		return nil, err
	}
	metrics.AgentAttempts["market_intelligence"] = res.Attempts
	metrics.CacheHits["market_intelligence"] = res.CacheHit
	out, ok := res.Output.(*agents.MarketIntelligenceOutput)
	if !ok {
		return nil, fmt.Errorf("unexpected output type from market intelligence")
	}
	return out, nil
}

// runInsight runs Portfolio Insight to completion, substituting a degraded
// default on failure without affecting Summary Generation. The returned
// warnings include both whole-agent failure classification and, on success,
// any per-item post-processing warnings (synthesized causal chains, dropped
// unmappable themes) carried on the output.
func (o *Orchestrator) runInsight(ctx context.Context, reg *toolregistry.Registry, req domain.Request, intel agents.MarketIntelligenceOutput, metrics *domain.OrchestrationMetrics) (agents.PortfolioInsightOutput, []string, bool) {
	input := o.buildInsightInput(ctx, req, intel)
	spec := agents.NewPortfolioInsightSpec(reg, input, o.timeouts.Insight, o.retryAttempts, o.cacheable && !req.ForceRefresh, o.cacheTTL)
	res, err := o.runtime.Execute(ctx, spec, input)
	if err != nil {
		return agents.DegradedPortfolioInsight(input), []string{classifyAgentFailure("portfolio_insight", err)}, true
	}
	metrics.AgentAttempts["portfolio_insight"] = res.Attempts
	metrics.CacheHits["portfolio_insight"] = res.CacheHit
	out, ok := res.Output.(*agents.PortfolioInsightOutput)
	if !ok {
		return agents.DegradedPortfolioInsight(input), []string{"portfolio_insight returned unexpected output type"}, true
	}
	return *out, out.Warnings, false
}

// runSummary runs Summary Generation to completion, substituting a degraded
// default on failure without affecting Portfolio Insight.
func (o *Orchestrator) runSummary(ctx context.Context, reg *toolregistry.Registry, req domain.Request, intel agents.MarketIntelligenceOutput, insight agents.PortfolioInsightOutput, metrics *domain.OrchestrationMetrics) (agents.SummaryGenerationOutput, string, bool) {
	input := buildSummaryInput(intel, insight)
	spec := agents.NewSummaryGenerationSpec(reg, input, o.timeouts.Summary, o.retryAttempts, o.cacheable && !req.ForceRefresh, o.cacheTTL)
	res, err := o.runtime.Execute(ctx, spec, input)
	if err != nil {
		return agents.DegradedSummaryGeneration(input), classifyAgentFailure("summary_generation", err), true
	}
	metrics.AgentAttempts["summary_generation"] = res.Attempts
	metrics.CacheHits["summary_generation"] = res.CacheHit
	out, ok := res.Output.(*agents.SummaryGenerationOutput)
	if !ok {
		return agents.DegradedSummaryGeneration(input), "summary_generation returned unexpected output type", true
	}
	return *out, "", false
}

func (o *Orchestrator) buildInsightInput(ctx context.Context, req domain.Request, intel agents.MarketIntelligenceOutput) agents.PortfolioInsightInput {
	watchlist, err := o.dataSource.FetchUserWatchlist(ctx, req.UserID)
	if err != nil {
		watchlist = nil
	}
	portfolio, err := o.dataSource.FetchUserPortfolio(ctx, req.UserID)
	if err != nil {
		portfolio = nil
	}
	return agents.PortfolioInsightInput{
		UserID:            req.UserID,
		Watchlist:         watchlist,
		Portfolio:         portfolio,
		PreliminaryThemes: intel.PreliminaryThemes,
		NewsItems:         intel.NewsItems,
	}
}

func buildSummaryInput(intel agents.MarketIntelligenceOutput, insight agents.PortfolioInsightOutput) agents.SummaryGenerationInput {
	portfolioImpact := insight.PortfolioImpact
	return agents.SummaryGenerationInput{
		MarketPhase:     intel.MarketPhase,
		NewsWithImpacts: insight.NewsWithImpacts,
		RefinedThemes:   insight.RefinedThemes,
		MarketOutlook:   intel.MarketOutlook,
		PortfolioImpact: &portfolioImpact,
		IndicesData:     intel.IndicesData,
		NewsItems:       intel.NewsItems,
		MaxBullets:      agents.DefaultMaxBullets,
	}
}

// classifyAgentFailure renders a warning string ("portfolio_insight timeout"),
// distinguishing timeout from other failures for observability.
func classifyAgentFailure(agentName string, err error) string {
	var timeoutErr *agenterrors.TimeoutError
	if errors.As(err, &timeoutErr) {
		return agentName + " timeout"
	}
	return agentName + " failed: " + err.Error()
}

// assemble builds the stripped Report projection: picks summary bullets or
// trending feed by market phase, caps themed news at the allowed-catalog
// entries, and attaches correlation/metrics/warnings.
func assemble(requestID string, req domain.Request, intel agents.MarketIntelligenceOutput, insight agents.PortfolioInsightOutput, summary agents.SummaryGenerationOutput, metrics *domain.OrchestrationMetrics, degraded bool, warnings []string) *domain.Report {
	themedNews := capThemedNews(insight.RefinedThemes)

	watchlistImpacted := make([]string, 0, len(insight.WatchlistAlerts))
	for _, a := range insight.WatchlistAlerts {
		if a.Kind != domain.AlertInformational {
			watchlistImpacted = append(watchlistImpacted, a.Ticker)
		}
	}

	report := &domain.Report{
		MarketPhase:   intel.MarketPhase,
		MarketOutlook: intel.MarketOutlook,
		IndicesData:   intel.IndicesData,

		ExecutiveSummary: summary.ExecutiveSummary,

		ThemedNews: themedNews,
		AllNews:    insight.NewsWithImpacts,

		WatchlistImpacted:      watchlistImpacted,
		WatchlistAlerts:        insight.WatchlistAlerts,
		PortfolioImpactSummary: insight.PortfolioImpact.Reasoning,
		PortfolioSentiment:     insight.PortfolioImpact.OverallSentiment,

		Metrics:      metrics,
		DegradedMode: degraded,
		Warnings:     warnings,

		RequestID:   requestID,
		GeneratedAt: req.Timestamp,
	}

	if intel.MarketPhase == domain.PhaseMid {
		report.MarketSummary = nil
		report.TrendingNow = summary.TrendingNowSection
	} else {
		report.MarketSummary = summary.MarketSummaryBullets
		report.TrendingNow = nil
	}

	return report
}

// capThemedNews normalizes and caps refined themes to the allowed-theme
// catalog and themes.MaxThemedNewsItems, a final response-boundary
// projection. Portfolio Insight already normalizes and ranks its refined
// themes; this is the final boundary guard.
func capThemedNews(groups []domain.ThemeGroup) []domain.ThemeGroup {
	out := make([]domain.ThemeGroup, 0, len(groups))
	for _, g := range groups {
		name, ok := themes.Normalize(g.ThemeName)
		if !ok {
			continue
		}
		g.ThemeName = name
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].ImpactedStocks) > len(out[j].ImpactedStocks)
	})
	if len(out) > themes.MaxThemedNewsItems {
		out = out[:themes.MaxThemedNewsItems]
	}
	return out
}

// OrchestrationCeilingError is the fatal case: the hard wall-clock ceiling
// was exceeded before any usable output was assembled.
type OrchestrationCeilingError struct {
	Elapsed time.Duration
}

func (e *OrchestrationCeilingError) Error() string {
	return fmt.Sprintf("orchestration ceiling exceeded after %s with no partial results", e.Elapsed)
}
