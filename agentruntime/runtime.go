// Package agentruntime implements the agent execution template shared by
// the three market pulse agents: check the cache, validate input, call the
// model with retry and exponential backoff, parse and validate the output,
// run a caller-supplied post-processing hook, cache the result, and surface
// any remaining failure through the agenterrors taxonomy. The invocation
// boundary never panics and always returns a typed error, via a single
// reusable Execute() loop instead of one bespoke loop per agent.
package agentruntime

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/sharingan/marketpulse/agenterrors"
	"github.com/sharingan/marketpulse/cache"
	"github.com/sharingan/marketpulse/modelgateway"
	"github.com/sharingan/marketpulse/toolregistry"
)

// PostProcessFunc runs deterministic validation/enrichment on a parsed model
// output before it is cached and returned. It returns a *agenterrors.ValidationError
// (non-retryable) or *agenterrors.ReasoningError (retryable) to reject the
// attempt, or nil to accept it.
type PostProcessFunc func(ctx context.Context, output any) error

// Spec declares one agent's execution contract: how to prompt the model, how
// much budget it gets, and how its output is produced and checked.
type Spec struct {
	Name            string
	SystemPrompt    string
	ModelClass      modelgateway.ModelClass
	Tools           *toolregistry.Registry
	ToolNames       []string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	RetryAttempts   int
	Cacheable       bool
	CacheTTL        time.Duration
	// NewOutput returns a fresh pointer to decode the model's structured
	// response into, e.g. func() any { return &MarketIntelligenceOutput{} }.
	NewOutput func() any
	// PostProcess is optional; nil means accept the parsed output as-is.
	PostProcess PostProcessFunc
	// InputSchema and OutputSchema are JSON-Schema documents (any Go value
	// that marshals to one, typically a map[string]any literal) checked
	// against the marshaled agent input and the model's decoded structured
	// output, respectively. Either may be nil to skip that check.
	InputSchema  any
	OutputSchema any
}

// Runtime executes agent Specs against a modelgateway.Client and an optional
// response Cache.
type Runtime struct {
	client modelgateway.Client
	cache  cache.Cache
	log    *zap.Logger
}

// New builds a Runtime. cache may be nil to disable response caching
// entirely; log may be nil for a no-op logger.
func New(client modelgateway.Client, c cache.Cache, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{client: client, cache: c, log: log}
}

// Result carries the outcome of one Execute call along with the attempt
// count and whether the result came from the cache, for OrchestrationMetrics
// reporting.
type Result struct {
	Output    any
	Attempts  int
	CacheHit  bool
	RawText   string
	TokenSpend modelgateway.TokenUsage
}

// Execute runs spec's agent: cache lookup -> input validation -> retry loop
// -> parse/validate -> post-process -> cache store. A cache hit is returned
// without validating input against InputSchema. The retry loop makes at most
// RetryAttempts+1 attempts. input is marshaled to build the user turn and
// the cache key; it must be JSON-serializable.
func (r *Runtime) Execute(ctx context.Context, spec Spec, input any) (Result, error) {
	if spec.NewOutput == nil {
		return Result{}, &agenterrors.ValidationError{Message: "agent spec is missing NewOutput"}
	}

	inputSchema, err := compileSchema(spec.Name+".input", spec.InputSchema)
	if err != nil {
		return Result{}, &agenterrors.ValidationError{Message: "agent input schema is invalid: " + err.Error()}
	}
	outputSchema, err := compileSchema(spec.Name+".output", spec.OutputSchema)
	if err != nil {
		return Result{}, &agenterrors.ValidationError{Message: "agent output schema is invalid: " + err.Error()}
	}

	var cacheKey string
	if spec.Cacheable && r.cache != nil {
		key, err := cache.Key(spec.Name, input)
		if err == nil {
			cacheKey = key
			if raw, ok := r.cache.Get(ctx, cacheKey); ok {
				out := spec.NewOutput()
				if err := json.Unmarshal(raw, out); err == nil {
					return Result{Output: out, CacheHit: true}, nil
				}
				r.log.Warn("cache hit failed to decode, falling through to live call",
					zap.String("agent", spec.Name), zap.Error(err))
			}
		} else {
			r.log.Warn("cache key computation failed", zap.String("agent", spec.Name), zap.Error(err))
		}
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Result{}, &agenterrors.ValidationError{Message: "agent input is not JSON-serializable: " + err.Error()}
	}
	if inputSchema != nil {
		var doc any
		if err := json.Unmarshal(inputJSON, &doc); err != nil {
			return Result{}, &agenterrors.ValidationError{FieldPath: spec.Name + ".input", Message: err.Error()}
		}
		if err := inputSchema.Validate(doc); err != nil {
			return Result{}, &agenterrors.ValidationError{FieldPath: spec.Name + ".input", Message: err.Error()}
		}
	}

	attempts := spec.RetryAttempts + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := r.attempt(ctx, spec, string(inputJSON), outputSchema)
		if err == nil {
			if cacheKey != "" {
				if raw, mErr := json.Marshal(res.Output); mErr == nil {
					r.cache.Set(ctx, cacheKey, raw, spec.CacheTTL)
				}
			}
			res.Attempts = attempt
			return res, nil
		}
		lastErr = err
		if !agenterrors.Retryable(err) {
			return Result{}, err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Result{}, &agenterrors.TimeoutError{Agent: spec.Name, After: spec.Timeout}
		case <-time.After(backoff(attempt)):
		}
	}
	return Result{}, lastErr
}

func (r *Runtime) attempt(ctx context.Context, spec Spec, inputJSON string, outputSchema *jsonschema.Schema) (Result, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cfg := modelgateway.GenConfig{
		ModelClass:  spec.ModelClass,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxOutputTokens,
	}
	var reg *toolregistry.Registry
	if spec.Tools != nil && len(spec.ToolNames) > 0 {
		reg = spec.Tools
		cfg.Tools = spec.Tools.DeclarationsFor(spec.ToolNames)
	}

	messages := []modelgateway.Message{{Role: modelgateway.RoleUser, Text: inputJSON}}
	resp, _, err := modelgateway.ChatWithTools(callCtx, r.client, spec.SystemPrompt, messages, cfg, reg, 0)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{}, &agenterrors.TimeoutError{Agent: spec.Name, After: spec.Timeout}
		}
		return Result{}, &agenterrors.ReasoningError{Agent: spec.Name, Cause: err}
	}

	out := spec.NewOutput()
	if err := modelgateway.ParseStructured(resp.Message.Text, outputSchema, out); err != nil {
		return Result{}, &agenterrors.ReasoningError{
			Agent:     spec.Name,
			Message:   "failed to parse structured output",
			RawPrefix: truncate(resp.Message.Text, 200),
			Cause:     err,
		}
	}

	if spec.PostProcess != nil {
		if err := spec.PostProcess(ctx, out); err != nil {
			return Result{}, err
		}
	}

	return Result{Output: out, RawText: resp.Message.Text, TokenSpend: resp.Usage}, nil
}

// compileSchema compiles a JSON-Schema literal (typically a map[string]any)
// into a *jsonschema.Schema, mirroring toolregistry's Register-time
// compilation. schema == nil means "no schema"; it is not an error.
func compileSchema(name string, schema any) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// backoff computes exponential backoff with jitter, capped at 2s.
func backoff(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt-1))) * 100 * time.Millisecond
	if base > 2*time.Second {
		base = 2 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2 + 1)) //nolint:gosec // jitter, not a security boundary
	if d := base + jitter; d < 2*time.Second {
		return d
	}
	return 2 * time.Second
}
