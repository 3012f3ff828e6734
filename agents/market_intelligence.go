package agents

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

// istLocation is the fixed IST offset used for market-phase derivation.
// time.LoadLocation("Asia/Kolkata") depends on the host's tzdata being
// present; market-phase boundaries are defined against a fixed +05:30
// offset, so a FixedZone avoids a hard runtime dependency on the system
// timezone database.
var istLocation = time.FixedZone("IST", 5*60*60+30*60)

// MarketIntelligenceInput is the input contract for the Market Intelligence
// agent.
type MarketIntelligenceInput struct {
	SelectedIndices []string  `json:"selected_indices"`
	Timestamp       time.Time `json:"timestamp"`
	ForceRefresh    bool      `json:"force_refresh"`
}

// MarketIntelligenceOutput is the output contract for the Market
// Intelligence agent.
type MarketIntelligenceOutput struct {
	MarketPhase       domain.MarketPhase          `json:"market_phase"`
	IndicesData       map[string]domain.IndexData `json:"indices_data"`
	MarketOutlook     *domain.MarketOutlook       `json:"market_outlook"`
	NewsItems         []domain.NewsItem           `json:"news_items"`
	PreliminaryThemes []domain.ThemeGroup         `json:"preliminary_themes"`
}

// MarketPhaseFor derives the market phase from an IST timestamp against the
// fixed boundaries pre=08:00-09:15, mid=09:15-15:30, post=15:30-08:00 (next
// day).
func MarketPhaseFor(t time.Time) domain.MarketPhase {
	ist := t.In(istLocation)
	minutesSinceMidnight := ist.Hour()*60 + ist.Minute()
	const (
		preOpen  = 8 * 60
		midOpen  = 9*60 + 15
		midClose = 15*60 + 30
	)
	switch {
	case minutesSinceMidnight >= preOpen && minutesSinceMidnight < midOpen:
		return domain.PhasePre
	case minutesSinceMidnight >= midOpen && minutesSinceMidnight < midClose:
		return domain.PhaseMid
	default:
		return domain.PhasePost
	}
}

// OutlookFor computes a MarketOutlook from a benchmark index's percent
// change, returning nil when phase is PhaseMid: outlook is null mid-session
// since the benchmark is still moving.
func OutlookFor(phase domain.MarketPhase, niftyChangePercent float64, keyDrivers []string) *domain.MarketOutlook {
	if phase == domain.PhaseMid {
		return nil
	}
	sentiment := domain.SentimentNeutral
	switch {
	case niftyChangePercent > 0.5:
		sentiment = domain.SentimentBullish
	case niftyChangePercent < -0.5:
		sentiment = domain.SentimentBearish
	}
	confidence := math.Abs(niftyChangePercent) / 2
	if confidence > 1 {
		confidence = 1
	}
	return &domain.MarketOutlook{
		Sentiment:          sentiment,
		Confidence:         confidence,
		NiftyChangePercent: niftyChangePercent,
		KeyDrivers:         keyDrivers,
		Momentum:           momentumFor(niftyChangePercent),
	}
}

func momentumFor(changePercent float64) domain.Momentum {
	switch {
	case changePercent > 1.5:
		return domain.MomentumStrongUp
	case changePercent > 0.3:
		return domain.MomentumModerateUp
	case changePercent < -1.5:
		return domain.MomentumStrongDown
	case changePercent < -0.3:
		return domain.MomentumModerateDown
	default:
		return domain.MomentumSideways
	}
}

// DedupNewsByID removes duplicate news items by ID, keeping the first
// occurrence.
func DedupNewsByID(items []domain.NewsItem) []domain.NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.NewsItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// clusterPreliminaryThemes groups news items by their first mentioned
// sector into free-form (not yet catalog-normalized) theme buckets, giving
// the model a starting clustering the Portfolio Insight agent later refines
// and normalizes against the allowed-theme catalog.
func clusterPreliminaryThemes(items []domain.NewsItem) []domain.ThemeGroup {
	order := make([]string, 0)
	byTheme := make(map[string][]domain.NewsItem)
	for _, item := range items {
		theme := "General"
		if len(item.MentionedSectors) > 0 {
			theme = item.MentionedSectors[0]
		}
		if _, ok := byTheme[theme]; !ok {
			order = append(order, theme)
		}
		byTheme[theme] = append(byTheme[theme], item)
	}
	out := make([]domain.ThemeGroup, 0, len(order))
	for _, theme := range order {
		grouped := byTheme[theme]
		out = append(out, domain.ThemeGroup{
			ThemeName:        theme,
			NewsItems:        grouped,
			OverallSentiment: aggregateSentiment(grouped),
		})
	}
	return out
}

func aggregateSentiment(items []domain.NewsItem) domain.MixedSentiment {
	var bullish, bearish int
	for _, item := range items {
		switch item.Sentiment {
		case domain.SentimentBullish:
			bullish++
		case domain.SentimentBearish:
			bearish++
		}
	}
	switch {
	case bullish > 0 && bearish > 0:
		return domain.MixedMixed
	case bullish > 0:
		return domain.MixedBullish
	case bearish > 0:
		return domain.MixedBearish
	default:
		return domain.MixedNeutral
	}
}

// postProcessMarketIntelligence enforces the deterministic rules the model
// is not trusted to: phase derivation, outlook null-ness, outlook
// sentiment/confidence/momentum (from the outlook's nifty_change_percent),
// and dedup are recomputed here rather than accepted verbatim from the model
// output, since they are specified as exact arithmetic rules rather than
// judgment calls. Preliminary themes are clustered here only when the model
// returned none.
func postProcessMarketIntelligence(input MarketIntelligenceInput) agentruntime.PostProcessFunc {
	return func(_ context.Context, output any) error {
		out, ok := output.(*MarketIntelligenceOutput)
		if !ok {
			return nil
		}
		phase := MarketPhaseFor(input.Timestamp)
		out.MarketPhase = phase
		out.NewsItems = DedupNewsByID(out.NewsItems)
		if phase == domain.PhaseMid {
			out.MarketOutlook = nil
		} else if out.MarketOutlook != nil {
			recomputed := OutlookFor(phase, out.MarketOutlook.NiftyChangePercent, out.MarketOutlook.KeyDrivers)
			recomputed.Reasoning = out.MarketOutlook.Reasoning
			out.MarketOutlook = recomputed
		}
		if len(out.PreliminaryThemes) == 0 {
			out.PreliminaryThemes = clusterPreliminaryThemes(out.NewsItems)
		}
		sort.SliceStable(out.NewsItems, func(i, j int) bool {
			return out.NewsItems[i].PublishedAt.After(out.NewsItems[j].PublishedAt)
		})
		return nil
	}
}

var marketIntelligenceInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"selected_indices": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
		"timestamp":     map[string]any{"type": "string"},
		"force_refresh": map[string]any{"type": "boolean"},
	},
	"required": []any{"timestamp"},
}

var marketIntelligenceOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"market_phase":       map[string]any{"type": "string"},
		"indices_data":       map[string]any{"type": []any{"object", "null"}},
		"market_outlook":     map[string]any{"type": []any{"object", "null"}},
		"news_items":         map[string]any{"type": []any{"array", "null"}},
		"preliminary_themes": map[string]any{"type": []any{"array", "null"}},
	},
	"required": []any{"market_phase", "news_items"},
}

// NewMarketIntelligenceSpec builds the agentruntime.Spec for the Market
// Intelligence agent.
func NewMarketIntelligenceSpec(reg *toolregistry.Registry, input MarketIntelligenceInput, timeout time.Duration, retryAttempts int, cacheable bool, cacheTTL time.Duration) agentruntime.Spec {
	return agentruntime.Spec{
		Name:            "market_intelligence",
		SystemPrompt:    MarketIntelligenceSystemPrompt,
		ModelClass:      modelgateway.ModelClassHighReasoning,
		Tools:           reg,
		ToolNames:       []string{"fetch_market_indices", "fetch_market_news", "get_market_phase"},
		Temperature:     0.3,
		MaxOutputTokens: 2048,
		Timeout:         timeout,
		RetryAttempts:   retryAttempts,
		Cacheable:       cacheable,
		CacheTTL:        cacheTTL,
		NewOutput:       func() any { return &MarketIntelligenceOutput{} },
		PostProcess:     postProcessMarketIntelligence(input),
		InputSchema:     marketIntelligenceInputSchema,
		OutputSchema:    marketIntelligenceOutputSchema,
	}
}

// DegradedMarketIntelligence returns the empty-intelligence placeholder used
// when Phase A fails outright: no outlook, empty news and themes, phase
// derived directly from the request timestamp.
func DegradedMarketIntelligence(timestamp time.Time) MarketIntelligenceOutput {
	return MarketIntelligenceOutput{
		MarketPhase:       MarketPhaseFor(timestamp),
		IndicesData:       map[string]domain.IndexData{},
		MarketOutlook:     nil,
		NewsItems:         nil,
		PreliminaryThemes: nil,
	}
}
