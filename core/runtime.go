package core

import (
	"context"
	"time"
)

// Request is the normalized input handed to a runtime adapter. Instruction is
// the composed system instruction of the invoking agent instance and may be
// empty.
type Request struct {
	Prompt      string `json:"prompt"`
	Instruction string `json:"instruction,omitempty"`
	Limits      Limits `json:"limits"`
}

// ExecutionResult is the uniform outcome every runtime adapter returns.
type ExecutionResult struct {
	Text      string        `json:"text"`
	CostUSD   float64       `json:"cost_usd"`
	TurnsUsed int           `json:"turns_used"`
	Duration  time.Duration `json:"duration"`
	Model     string        `json:"model,omitempty"`
	TokensIn  int           `json:"tokens_in,omitempty"`
	TokensOut int           `json:"tokens_out,omitempty"`
}

// StreamChunk is one element of a streaming execution.
type StreamChunk struct {
	Type string `json:"type"` // "text" or "done"
	Text string `json:"text,omitempty"`
}

// RuntimeAdapter is the capability contract every external LLM execution
// runtime must provide. Adapters are a black box to the core: the engine only
// dispatches requests, consumes results and shuts them down.
//
// Implementations must respect context cancellation on Execute and Stream and
// must be safe for concurrent use by multiple agent instances.
type RuntimeAdapter interface {
	// Execute runs a prompt to completion within the given limits.
	Execute(ctx context.Context, req Request) (*ExecutionResult, error)

	// Stream runs a prompt and emits chunks as they become available. The
	// chunk channel is closed when the execution terminates; a terminal
	// error, if any, is delivered on the error channel (buffered size 1).
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error)

	// Shutdown releases adapter resources. It must be idempotent.
	Shutdown(ctx context.Context) error
}

// HealthProber is optionally implemented by adapters that expose a liveness
// probe. Adapters without one are treated as always healthy.
type HealthProber interface {
	Ping(ctx context.Context) error
}

// RuntimeFactory builds a configured adapter instance for one agent. The
// runtime registry maps runtime names to factories, forming the closed set of
// concrete runtime variants.
type RuntimeFactory func(config map[string]any) (RuntimeAdapter, error)
