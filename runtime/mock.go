package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentforge/core"
)

// MockAdapter is a lightweight in-memory core.RuntimeAdapter useful for tests
// and examples. Responses are canned per prompt; cost, latency, failures and
// probe behavior are all scriptable.
type MockAdapter struct {
	mu          sync.Mutex
	responses   map[string]string
	failures    map[string]int // prompt -> remaining scripted failures
	costPerCall float64
	latency     time.Duration
	pingErr     error
	calls       int
	requests    []core.Request
	shutdowns   int
}

// MockOptions configures a MockAdapter.
type MockOptions struct {
	// CostPerCall is the cost reported by every successful execution.
	CostPerCall float64
	// Latency is simulated before each execution completes.
	Latency time.Duration
}

// NewMockAdapter constructs a MockAdapter.
func NewMockAdapter(optFns ...func(o *MockOptions)) *MockAdapter {
	opts := MockOptions{CostPerCall: 0.01}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &MockAdapter{
		responses:   make(map[string]string),
		failures:    make(map[string]int),
		costPerCall: opts.CostPerCall,
		latency:     opts.Latency,
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockAdapter) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailTimes scripts the next n executions of a prompt to fail.
func (m *MockAdapter) FailTimes(prompt string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prompt] = n
}

// SetPingError makes subsequent health probes fail (nil restores health).
func (m *MockAdapter) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Calls returns how many executions were attempted.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the requests seen so far in arrival order.
func (m *MockAdapter) Requests() []core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Shutdowns returns how many times Shutdown was invoked.
func (m *MockAdapter) Shutdowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}

// Execute implements core.RuntimeAdapter.
func (m *MockAdapter) Execute(ctx context.Context, req core.Request) (*core.ExecutionResult, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	remaining := m.failures[req.Prompt]
	if remaining > 0 {
		m.failures[req.Prompt] = remaining - 1
	}
	response, ok := m.responses[req.Prompt]
	cost := m.costPerCall
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if remaining > 0 {
		// A failed call still consumed tokens; report its cost so callers can
		// account for spend on failed attempts.
		return &core.ExecutionResult{
			CostUSD:  cost,
			Duration: latency,
			Model:    "mock",
		}, fmt.Errorf("scripted failure for prompt %q", req.Prompt)
	}

	if !ok {
		response = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	return &core.ExecutionResult{
		Text:      response,
		CostUSD:   cost,
		TurnsUsed: 1,
		Duration:  latency,
		Model:     "mock",
	}, nil
}

// Stream implements core.RuntimeAdapter by wrapping Execute, emitting the
// full text as one chunk followed by a done marker.
func (m *MockAdapter) Stream(ctx context.Context, req core.Request) (<-chan core.StreamChunk, <-chan error) {
	chunks := make(chan core.StreamChunk, 2)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		result, err := m.Execute(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		chunks <- core.StreamChunk{Type: "text", Text: result.Text}
		chunks <- core.StreamChunk{Type: "done"}
	}()

	return chunks, errCh
}

// Shutdown implements core.RuntimeAdapter.
func (m *MockAdapter) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
	return nil
}

// Ping implements core.HealthProber.
func (m *MockAdapter) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// Factory returns a core.RuntimeFactory that always yields this adapter.
// Handy for registries in tests where one shared adapter is observed.
func (m *MockAdapter) Factory() core.RuntimeFactory {
	return func(map[string]any) (core.RuntimeAdapter, error) { return m, nil }
}

// NewMockFactory returns a core.RuntimeFactory producing an independent
// MockAdapter per agent instance.
func NewMockFactory(optFns ...func(o *MockOptions)) core.RuntimeFactory {
	return func(map[string]any) (core.RuntimeAdapter, error) {
		return NewMockAdapter(optFns...), nil
	}
}
