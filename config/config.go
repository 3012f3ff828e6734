// Package config loads market pulse's runtime configuration via
// github.com/spf13/viper: a single typed Config struct populated from
// environment variables (prefixed MARKETPULSE_) with layered defaults,
// rather than hand-rolled flag/env parsing.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AgentTimeouts holds the per-agent timeout budget used to derive the
// orchestrator's hard wall-clock ceiling.
type AgentTimeouts struct {
	Intelligence time.Duration
	Insight      time.Duration
	Summary      time.Duration
}

// Config is the fully-resolved runtime configuration for one orchestrator
// process.
type Config struct {
	ModelIDDefault string
	ModelIDFast    string

	AnthropicAPIKey string
	OpenAIAPIKey    string

	CacheEnabled bool
	CacheTTL     time.Duration
	RedisAddr    string

	AgentTimeouts       AgentTimeouts
	OrchestratorCeiling time.Duration
	RetryAttempts       int

	TracingEnabled bool
	LogLevel       string

	MaxToolLoopTurns int
}

// Load builds a Config from environment variables (prefix MARKETPULSE_,
// nested fields separated by "_", e.g. MARKETPULSE_AGENT_TIMEOUTS_INTELLIGENCE)
// layered over hardcoded defaults. configPath, when non-empty, additionally
// loads a YAML/JSON/TOML file at that path; viper picks the format from the
// file extension.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("marketpulse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		ModelIDDefault:  v.GetString("model.id_default"),
		ModelIDFast:     v.GetString("model.id_fast"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		CacheEnabled:    v.GetBool("cache.enabled"),
		CacheTTL:        v.GetDuration("cache.ttl"),
		RedisAddr:       v.GetString("cache.redis_addr"),
		AgentTimeouts: AgentTimeouts{
			Intelligence: v.GetDuration("agent_timeouts.intelligence"),
			Insight:      v.GetDuration("agent_timeouts.insight"),
			Summary:      v.GetDuration("agent_timeouts.summary"),
		},
		OrchestratorCeiling: v.GetDuration("orchestrator_ceiling"),
		RetryAttempts:       v.GetInt("retry_attempts"),
		TracingEnabled:      v.GetBool("tracing_enabled"),
		LogLevel:            v.GetString("log_level"),
		MaxToolLoopTurns:    v.GetInt("max_tool_loop_turns"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.id_default", "claude-sonnet-4-5")
	v.SetDefault("model.id_fast", "gpt-4o-mini")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("agent_timeouts.intelligence", 20*time.Second)
	v.SetDefault("agent_timeouts.insight", 20*time.Second)
	v.SetDefault("agent_timeouts.summary", 15*time.Second)
	v.SetDefault("orchestrator_ceiling", 45*time.Second)
	v.SetDefault("retry_attempts", 2)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("max_tool_loop_turns", 10)
}
