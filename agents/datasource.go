// Package agents implements the three concrete agents - Market Intelligence,
// Portfolio Insight, Summary Generation - as agentruntime.Spec values plus
// the deterministic pre/post-processing each one requires. Each agent is a
// capability record (system prompt, tool set, schemas, post-processor), not
// a type hierarchy - a flat capability pattern rather than a planner/agent
// inheritance chain.
package agents

import (
	"context"
	"time"

	"github.com/sharingan/marketpulse/domain"
)

// DataSource is the pluggable collaborator boundary: market data, news,
// watchlist, and portfolio backends are out of scope for this module, so
// every tool handler in this package delegates to a DataSource
// implementation supplied by the embedding application.
type DataSource interface {
	FetchMarketIndices(ctx context.Context, names []string) (map[string]domain.IndexData, error)
	FetchMarketNews(ctx context.Context, window time.Duration, filters map[string]any) ([]domain.NewsItem, error)
	FetchUserWatchlist(ctx context.Context, userID string) ([]string, error)
	FetchUserPortfolio(ctx context.Context, userID string) ([]domain.PortfolioHolding, error)
	GetUserPreferences(ctx context.Context, userID string) (map[string]any, error)

	// IdentifySectorFromStocks maps tickers to their sector, for clustering
	// and sector-exposure analysis.
	IdentifySectorFromStocks(ctx context.Context, tickers []string) (map[string]string, error)
	// AnalyzeSupplyChainImpact reports secondary tickers impacted through a
	// supply-chain relationship with the given primary ticker.
	AnalyzeSupplyChainImpact(ctx context.Context, ticker string) ([]string, error)
	// GetCompanyFundamentals returns a small free-form fact sheet used to
	// ground causal-chain reasoning.
	GetCompanyFundamentals(ctx context.Context, ticker string) (map[string]any, error)
	// RankNewsByImportance orders news item IDs by descending importance.
	RankNewsByImportance(ctx context.Context, items []domain.NewsItem) ([]string, error)
}

// FakeDataSource is an in-memory, scripted DataSource for tests: it returns
// whatever was set on its exported fields, or a zero value otherwise.
type FakeDataSource struct {
	Indices        map[string]domain.IndexData
	News           []domain.NewsItem
	Watchlist      []string
	Portfolio      []domain.PortfolioHolding
	Preferences    map[string]any
	SectorByTicker map[string]string
	SupplyChain    map[string][]string
	Fundamentals   map[string]map[string]any
	ImportanceRank []string
	Err            error
}

func (f *FakeDataSource) FetchMarketIndices(ctx context.Context, names []string) (map[string]domain.IndexData, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Indices, nil
}

func (f *FakeDataSource) FetchMarketNews(ctx context.Context, window time.Duration, filters map[string]any) ([]domain.NewsItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.News, nil
}

func (f *FakeDataSource) FetchUserWatchlist(ctx context.Context, userID string) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Watchlist, nil
}

func (f *FakeDataSource) FetchUserPortfolio(ctx context.Context, userID string) ([]domain.PortfolioHolding, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Portfolio, nil
}

func (f *FakeDataSource) GetUserPreferences(ctx context.Context, userID string) (map[string]any, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Preferences, nil
}

func (f *FakeDataSource) IdentifySectorFromStocks(ctx context.Context, tickers []string) (map[string]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]string, len(tickers))
	for _, t := range tickers {
		if s, ok := f.SectorByTicker[t]; ok {
			out[t] = s
		}
	}
	return out, nil
}

func (f *FakeDataSource) AnalyzeSupplyChainImpact(ctx context.Context, ticker string) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.SupplyChain[ticker], nil
}

func (f *FakeDataSource) GetCompanyFundamentals(ctx context.Context, ticker string) (map[string]any, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Fundamentals[ticker], nil
}

func (f *FakeDataSource) RankNewsByImportance(ctx context.Context, items []domain.NewsItem) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.ImportanceRank != nil {
		return f.ImportanceRank, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids, nil
}
