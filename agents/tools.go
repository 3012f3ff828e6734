package agents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/toolregistry"
)

// RegisterDataSourceTools wires every data-source collaborator from §6 of
// the expanded specification into reg as a deterministic tool, so agents
// reach the pluggable backends exclusively through the Tool Registry rather
// than holding a direct reference to DataSource.
func RegisterDataSourceTools(reg *toolregistry.Registry, ds DataSource) error {
	tools := []struct {
		name        string
		description string
		schema      any
		handler     toolregistry.Handler
	}{
		{
			name:        "fetch_market_indices",
			description: "Fetch current snapshot data for the given index names.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}}},
				"required":   []any{"names"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Names []string `json:"names"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.FetchMarketIndices(ctx, in.Names)
			},
		},
		{
			name:        "fetch_market_news",
			description: "Fetch recent market news within the given lookback window, in seconds.",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"window_seconds": map[string]any{"type": "integer"},
					"filters":        map[string]any{"type": "object"},
				},
				"required": []any{"window_seconds"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					WindowSeconds int            `json:"window_seconds"`
					Filters       map[string]any `json:"filters"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.FetchMarketNews(ctx, time.Duration(in.WindowSeconds)*time.Second, in.Filters)
			},
		},
		{
			name:        "fetch_user_watchlist",
			description: "Fetch the ticker watchlist for a user.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"user_id": map[string]any{"type": "string"}},
				"required":   []any{"user_id"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					UserID string `json:"user_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.FetchUserWatchlist(ctx, in.UserID)
			},
		},
		{
			name:        "fetch_user_portfolio",
			description: "Fetch the portfolio holdings for a user.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"user_id": map[string]any{"type": "string"}},
				"required":   []any{"user_id"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					UserID string `json:"user_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.FetchUserPortfolio(ctx, in.UserID)
			},
		},
		{
			name:        "get_user_preferences",
			description: "Fetch free-form display/report preferences for a user.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"user_id": map[string]any{"type": "string"}},
				"required":   []any{"user_id"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					UserID string `json:"user_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.GetUserPreferences(ctx, in.UserID)
			},
		},
		{
			name:        "get_market_phase",
			description: "Resolve the market phase (pre, mid, post) for an IST timestamp.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"timestamp": map[string]any{"type": "string", "format": "date-time"}},
				"required":   []any{"timestamp"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Timestamp time.Time `json:"timestamp"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return string(MarketPhaseFor(in.Timestamp)), nil
			},
		},
		{
			name:        "identify_sector_from_stocks",
			description: "Map a list of tickers to their sector.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"tickers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}}},
				"required":   []any{"tickers"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Tickers []string `json:"tickers"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.IdentifySectorFromStocks(ctx, in.Tickers)
			},
		},
		{
			name:        "analyze_supply_chain_impact",
			description: "List tickers secondarily impacted through a supply-chain relationship with a given ticker.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"ticker": map[string]any{"type": "string"}},
				"required":   []any{"ticker"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Ticker string `json:"ticker"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.AnalyzeSupplyChainImpact(ctx, in.Ticker)
			},
		},
		{
			name:        "get_company_fundamentals",
			description: "Fetch a small fact sheet for a ticker to ground causal-chain reasoning.",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"ticker": map[string]any{"type": "string"}},
				"required":   []any{"ticker"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Ticker string `json:"ticker"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return ds.GetCompanyFundamentals(ctx, in.Ticker)
			},
		},
		{
			name:        "rank_news_by_importance",
			description: "Rank news item IDs by descending importance.",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"items": map[string]any{"type": "array"},
				},
				"required": []any{"items"},
			},
			handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					Items []struct {
						ID          string    `json:"id"`
						Headline    string    `json:"headline"`
						PublishedAt time.Time `json:"published_at"`
					} `json:"items"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				items := make([]domain.NewsItem, len(in.Items))
				for i, it := range in.Items {
					items[i] = domain.NewsItem{ID: it.ID, Headline: it.Headline, PublishedAt: it.PublishedAt}
				}
				return ds.RankNewsByImportance(ctx, items)
			},
		},
	}

	for _, t := range tools {
		if err := reg.Register(t.name, t.description, t.schema, t.handler); err != nil {
			return err
		}
	}
	return nil
}
