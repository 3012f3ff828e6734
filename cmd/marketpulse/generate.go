package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sharingan/marketpulse/agentruntime"
	"github.com/sharingan/marketpulse/agents"
	"github.com/sharingan/marketpulse/cache"
	"github.com/sharingan/marketpulse/config"
	"github.com/sharingan/marketpulse/domain"
	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/modelgateway/anthropic"
	"github.com/sharingan/marketpulse/modelgateway/openai"
	"github.com/sharingan/marketpulse/orchestrator"
	"github.com/sharingan/marketpulse/telemetry"
	"github.com/sharingan/marketpulse/toolregistry"
)

func buildGenerateCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		indices    []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one market pulse report orchestration and print it as JSON",
		Example: `  marketpulse generate --user-id u-123 --indices NIFTY,SENSEX
  marketpulse generate --config ./marketpulse.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), configPath, userID, indices)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user-id", "demo-user", "User ID to generate the report for")
	cmd.Flags().StringSliceVar(&indices, "indices", []string{"NIFTY", "SENSEX"}, "Market indices to include")

	return cmd
}

func runGenerate(ctx context.Context, configPath, userID string, indices []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := newZapLoggerForLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zapLogger.Sync() //nolint:errcheck
	log := telemetry.NewZapLogger(zapLogger)
	log.Info("starting marketpulse orchestration", telemetry.F("user_id", userID))

	client, err := buildModelGateway(cfg)
	if err != nil {
		return fmt.Errorf("build model gateway: %w", err)
	}

	var respCache cache.Cache
	if cfg.CacheEnabled {
		if cfg.RedisAddr != "" {
			respCache = cache.NewRedisCache(newRedisClient(cfg.RedisAddr), zapLogger)
		} else {
			respCache = cache.NewMemoryCache()
		}
	}

	reg := toolregistry.New()
	dataSource := demoDataSource()
	if err := agents.RegisterDataSourceTools(reg, dataSource); err != nil {
		return fmt.Errorf("register data source tools: %w", err)
	}

	rt := agentruntime.New(client, respCache, zapLogger)
	orch := orchestrator.New(rt, dataSource, orchestrator.Timeouts{
		Intelligence: cfg.AgentTimeouts.Intelligence,
		Insight:      cfg.AgentTimeouts.Insight,
		Summary:      cfg.AgentTimeouts.Summary,
	}, cfg.RetryAttempts, cfg.CacheEnabled, cfg.CacheTTL, zapLogger)

	report, err := orch.Run(ctx, reg, domain.Request{
		UserID:          userID,
		SelectedIndices: indices,
		Timestamp:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("run orchestration: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func newZapLoggerForLevel(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zapCfg.Build()
}

// buildModelGateway selects the Anthropic adapter when an Anthropic API key
// is configured, falling back to the OpenAI adapter when only that key is
// present; either backs the same agent runtime unmodified through the
// shared modelgateway.Client seam.
func buildModelGateway(cfg config.Config) (modelgateway.Client, error) {
	if cfg.AnthropicAPIKey != "" {
		return anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, anthropic.Options{
			DefaultModel:       cfg.ModelIDDefault,
			HighReasoningModel: cfg.ModelIDDefault,
			FastModel:          cfg.ModelIDFast,
			MaxTokens:          4096,
		})
	}
	if cfg.OpenAIAPIKey != "" {
		return openai.NewFromAPIKey(cfg.OpenAIAPIKey, openai.Options{
			DefaultModel: cfg.ModelIDDefault,
			FastModel:    cfg.ModelIDFast,
			MaxTokens:    4096,
		})
	}
	return nil, fmt.Errorf("no model provider configured: set MARKETPULSE_ANTHROPIC_API_KEY or MARKETPULSE_OPENAI_API_KEY")
}

// demoDataSource returns a small fixed FakeDataSource so the CLI runs
// end-to-end without wiring a real market-data backend; production
// deployments supply their own agents.DataSource implementation.
func demoDataSource() *agents.FakeDataSource {
	return &agents.FakeDataSource{
		Indices: map[string]domain.IndexData{
			"NIFTY":  {Name: "NIFTY", Value: 24512.3, ChangePercent: 0.62, ChangeAbs: 151.2, AsOf: time.Now()},
			"SENSEX": {Name: "SENSEX", Value: 80550.1, ChangePercent: 0.58, ChangeAbs: 465.0, AsOf: time.Now()},
		},
		Watchlist: []string{"TCS", "HDFCBANK", "RELIANCE"},
		Portfolio: []domain.PortfolioHolding{
			{Ticker: "TCS", Quantity: 10, Sector: "Information Technology (IT)", Weight: 0.4},
			{Ticker: "HDFCBANK", Quantity: 20, Sector: "Banking & Financials", Weight: 0.6},
		},
		SectorByTicker: map[string]string{
			"TCS":      "Information Technology (IT)",
			"HDFCBANK": "Banking & Financials",
			"RELIANCE": "Oil, Gas & Energy",
		},
	}
}
