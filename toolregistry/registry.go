// Package toolregistry maps tool names to deterministic handlers and
// validates argument shapes against JSON Schema before dispatch, using
// direct in-process invocation: InvokeBatch runs every handler, whether
// added with Register or RegisterAsync, on a bounded worker pool, with no
// remote broker in between.
package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRegistered is returned by Register when the tool name is taken.
var ErrAlreadyRegistered = errors.New("toolregistry: tool already registered")

// ErrUnknownTool is the sentinel wrapped into the {error} wire shape
// returned by Invoke for names with no registered handler.
var ErrUnknownTool = errors.New("toolregistry: unknown tool")

type (
	// Handler is a deterministic tool implementation. It must be safe to
	// call concurrently and idempotent whenever the cache is enabled (§6).
	Handler func(ctx context.Context, args json.RawMessage) (any, error)

	// ToolDeclaration is the model-facing wire shape for a tool: name,
	// description, and a JSON-Schema-like parameters object.
	ToolDeclaration struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  any    `json:"parameters"`
	}

	// InvocationResult is the wire shape returned to the model-facing
	// caller: exactly one of Result or Error is populated.
	InvocationResult struct {
		Result any    `json:"result,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	toolEntry struct {
		description string
		schema      *jsonschema.Schema
		rawSchema   any
		handler     Handler
		async       bool
	}

	// Registry holds the process-wide tool name -> handler mapping. It is
	// built once at startup and treated as immutable thereafter (§5), but
	// the internal map is still guarded so tests may register tools from
	// multiple goroutines without a data race.
	Registry struct {
		mu      sync.RWMutex
		entries map[string]*toolEntry

		// maxConcurrent bounds the worker pool used to dispatch synchronous
		// handlers concurrently within a single tool-loop turn (§5: tool
		// calls within one model turn may be dispatched off the
		// orchestration goroutine).
		maxConcurrent int
	}

	// Option configures a Registry at construction time.
	Option func(*Registry)
)

// WithMaxConcurrentHandlers bounds the number of synchronous tool handlers
// dispatched concurrently for a single batch of model-issued tool calls.
func WithMaxConcurrentHandlers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]*toolEntry),
		maxConcurrent: 8,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool under name. schema is a JSON-Schema-like document
// (typically a map[string]any Go literal) describing the parameter object;
// it is compiled immediately so a malformed schema fails fast at startup
// rather than on the first call. ErrAlreadyRegistered is returned if name is
// already registered.
func (r *Registry) Register(name, description string, schema any, handler Handler) error {
	return r.register(name, description, schema, handler, false)
}

// RegisterAsync is like Register but marks the handler as already
// asynchronous. The mark does not change dispatch: Invoke calls the handler
// the same way, and InvokeBatch routes it through the bounded worker pool
// like any other handler.
func (r *Registry) RegisterAsync(name, description string, schema any, handler Handler) error {
	return r.register(name, description, schema, handler, true)
}

func (r *Registry) register(name, description string, schema any, handler Handler, async bool) error {
	if name == "" {
		return errors.New("toolregistry: tool name is required")
	}
	if handler == nil {
		return errors.New("toolregistry: handler is required")
	}
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return fmt.Errorf("toolregistry: compile schema for %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.entries[name] = &toolEntry{
		description: description,
		schema:      compiled,
		rawSchema:   schema,
		handler:     handler,
		async:       async,
	}
	return nil
}

func compileSchema(name string, schema any) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	// Round-trip through JSON so map[string]any literals with non-string
	// keys or typed values normalize to the plain any-tree AddResource
	// expects.
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

// DeclarationsFor returns the model-facing declarations for the given tool
// names, in the order requested. Names with no registered tool are skipped.
func (r *Registry) DeclarationsFor(names []string) []ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDeclaration, 0, len(names))
	for _, name := range names {
		entry, ok := r.entries[name]
		if !ok {
			continue
		}
		out = append(out, ToolDeclaration{
			Name:        name,
			Description: entry.description,
			Parameters:  entry.rawSchema,
		})
	}
	return out
}

// Invoke validates args against the registered schema and dispatches to the
// handler. It never returns an error for call-shape problems: those are
// reported in the returned InvocationResult.Error so the model-facing loop
// can feed {error} back to the model and recover. A handler panic is
// recovered and reported the same way. Invoke itself only returns a non-nil
// error, ctx.Err(), when the handler fails after ctx was canceled or its
// deadline passed.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (res InvocationResult, err error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return InvocationResult{Error: fmt.Sprintf("%s: %s", ErrUnknownTool, name)}, nil
	}

	if entry.schema != nil {
		var decoded any
		if len(args) == 0 {
			args = []byte("{}")
		}
		if err := json.Unmarshal(args, &decoded); err != nil {
			return InvocationResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
		}
		if err := entry.schema.Validate(decoded); err != nil {
			return InvocationResult{Error: fmt.Sprintf("arguments failed schema validation: %v", err)}, nil
		}
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = InvocationResult{Error: fmt.Sprintf("tool %s panicked: %v", name, p)}, nil
		}
	}()
	result, err := entry.handler(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return InvocationResult{}, ctx.Err()
		}
		return InvocationResult{Error: err.Error()}, nil
	}
	return InvocationResult{Result: result}, nil
}

// InvokeBatch dispatches several tool calls concurrently (bounded by the
// registry's worker pool) and returns results in the same order as calls,
// preserving the model-issued ordering requirement even though dispatch is
// parallel (§5: "tool calls within one turn are invoked in the order
// supplied by the model and their responses are batched back in the same
// order").
func (r *Registry) InvokeBatch(ctx context.Context, calls []Call) ([]NamedResult, error) {
	results := make([]NamedResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			res, err := r.Invoke(gctx, call.Name, call.Args)
			if err != nil {
				return err
			}
			results[i] = NamedResult{Name: call.Name, ID: call.ID, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Call is a single model-issued tool invocation request.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// NamedResult pairs an InvocationResult with the tool call it answers.
type NamedResult struct {
	ID     string
	Name   string
	Result InvocationResult
}
