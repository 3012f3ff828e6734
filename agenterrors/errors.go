// Package agenterrors defines the error taxonomy shared by the agent
// runtime and orchestrator. Each kind is a concrete struct (typed struct +
// Unwrap + classification methods) rather than a sentinel, so callers can
// carry structured context across package boundaries.
package agenterrors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports that input or output failed its declared schema.
// It is never retried (§7).
type ValidationError struct {
	FieldPath string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.FieldPath == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error at %s: %s", e.FieldPath, e.Message)
}

// TimeoutError reports that an agent exceeded its per-attempt deadline.
type TimeoutError struct {
	Agent string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: exceeded timeout of %s", e.Agent, e.After)
}

// ReasoningError reports that the model produced no candidate, invalid
// JSON, or failed a post-processing check. RawPrefix carries a truncated
// prefix of the offending raw text for diagnostics.
type ReasoningError struct {
	Agent     string
	Message   string
	RawPrefix string
	Cause     error
}

func (e *ReasoningError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.RawPrefix == "" {
		return fmt.Sprintf("%s: reasoning error: %s", e.Agent, msg)
	}
	return fmt.Sprintf("%s: reasoning error: %s (raw: %q)", e.Agent, msg, e.RawPrefix)
}

func (e *ReasoningError) Unwrap() error { return e.Cause }

// ToolError reports that a tool handler raised or returned an error. It is
// fed back to the model as {error} and does not by itself propagate to the
// orchestrator unless the model subsequently errors out.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

// DataFetchError reports a failure from a pluggable data-source
// collaborator. No code in this module wraps it into a ToolError: a tool
// handler's error reaches the model as the plain {error} string, and a
// data-source error the orchestrator meets while building Portfolio
// Insight's input leaves that watchlist or portfolio empty without setting
// degraded mode.
type DataFetchError struct {
	Source string
	Cause  error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch from %q failed: %v", e.Source, e.Cause)
}

func (e *DataFetchError) Unwrap() error { return e.Cause }

// OrchestrationError is the only fatal case: the hard ceiling was exceeded
// with no partial results to degrade with.
type OrchestrationError struct {
	Reason string
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed: %s", e.Reason)
}

// Retryable reports whether err should be retried by the agent runtime:
// TimeoutError, ReasoningError, and any other error that is not a
// ValidationError are retryable; ValidationError never is (§4.4, §7).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	return !errors.As(err, &verr)
}
