package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
)

func TestExecutor_Execute_Singleton(t *testing.T) {
	f := newFixture(t)
	f.adapter.AddResponse("hello", "hi there")

	inst, err := f.executor.Register(&core.AgentDeclaration{Name: "greeter", Runtime: "mock"})
	require.NoError(t, err)
	require.NotNil(t, inst)

	result, err := f.executor.Execute(context.Background(), Call{Agent: "greeter", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Text)

	// The instance returned to IDLE and recorded the execution.
	assert.Equal(t, core.StatusIdle, inst.Status())
	stats := inst.Stats()
	assert.Equal(t, 1, stats.QueryCount)
	assert.Equal(t, 0.01, stats.TotalCostUSD)
}

func TestExecutor_Execute_PassesInstructionAndLimits(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Register(&core.AgentDeclaration{
		Name:         "writer",
		Runtime:      "mock",
		SystemPrompt: "You write prose.",
	})
	require.NoError(t, err)

	_, err = f.executor.Execute(context.Background(), Call{Agent: "writer", Prompt: "write"})
	require.NoError(t, err)

	calls := f.adapter.Requests()
	require.Len(t, calls, 1)
	assert.Equal(t, "You write prose.", calls[0].Instruction)
	assert.Equal(t, core.DefaultLimits, calls[0].Limits)
}

func TestExecutor_Execute_UnknownAgent(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Execute(context.Background(), Call{Agent: "ghost", Prompt: "hi"})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "agent", resolutionErr.Kind)
}

func TestExecutor_Execute_WrapsAdapterError(t *testing.T) {
	f := newFixture(t)
	f.adapter.FailTimes("boom", 1)

	_, err := f.executor.Register(&core.AgentDeclaration{Name: "worker", Runtime: "mock"})
	require.NoError(t, err)

	result, err := f.executor.Execute(context.Background(), Call{Agent: "worker", Prompt: "boom"})

	var runtimeErr *core.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, "worker", runtimeErr.Agent)

	// The failed attempt still reports its cost.
	require.NotNil(t, result)
	assert.Equal(t, 0.01, result.CostUSD)
}

func TestExecutor_Execute_LazyMaterializesOnFirstUse(t *testing.T) {
	f := newFixture(t)

	inst, err := f.executor.Register(&core.AgentDeclaration{
		Name:    "sleeper",
		Runtime: "mock",
		Lazy:    true,
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusRegistered, inst.Status())

	_, err = f.executor.Execute(context.Background(), Call{Agent: "sleeper", Prompt: "wake up"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusIdle, inst.Status())
}

func TestExecutor_Execute_SessionScope(t *testing.T) {
	f := newFixture(t)

	inst, err := f.executor.Register(&core.AgentDeclaration{
		Name:    "assistant",
		Runtime: "mock",
		Scope:   core.ScopeSession,
	})
	require.NoError(t, err)
	assert.Nil(t, inst, "scoped agents are instantiated per key, not at registration")

	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "one", ScopeKey: "sess-1"})
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "two", ScopeKey: "sess-1"})
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "three", ScopeKey: "sess-2"})
	require.NoError(t, err)

	// One instance per session key.
	instances := f.manager.List()
	require.Len(t, instances, 2)
	assert.Equal(t, 2, instances[0].Stats().QueryCount)
	assert.Equal(t, 1, instances[1].Stats().QueryCount)
}

func TestExecutor_Execute_ScopedWithoutKeyFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Register(&core.AgentDeclaration{
		Name:    "assistant",
		Runtime: "mock",
		Scope:   core.ScopeSession,
	})
	require.NoError(t, err)

	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "hi"})
	assert.ErrorContains(t, err, "scope key is required")
}

func TestExecutor_ReleaseScope(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Register(&core.AgentDeclaration{
		Name:    "assistant",
		Runtime: "mock",
		Scope:   core.ScopeSession,
	})
	require.NoError(t, err)

	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "hi", ScopeKey: "sess-1"})
	require.NoError(t, err)

	require.NoError(t, f.executor.ReleaseScope(context.Background(), "sess-1"))

	instances := f.manager.List()
	require.Len(t, instances, 1)
	assert.Equal(t, core.StatusShutdown, instances[0].Status())

	// A new call under the same key gets a fresh instance.
	_, err = f.executor.Execute(context.Background(), Call{Agent: "assistant", Prompt: "hi again", ScopeKey: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, f.manager.List(), 2)
}

func TestExecutor_ReleaseScope_UnknownKeyIsNoOp(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.executor.ReleaseScope(context.Background(), "nothing-here"))
}

func TestExecutor_Execute_RefusedWhileDraining(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Register(&core.AgentDeclaration{Name: "worker", Runtime: "mock"})
	require.NoError(t, err)

	require.NoError(t, f.manager.GracefulShutdown(context.Background(), time.Second))

	_, err = f.executor.Execute(context.Background(), Call{Agent: "worker", Prompt: "hi"})
	assert.ErrorContains(t, err, "draining")
}

func TestExecutor_Execute_ConcurrentCallsSerializePerInstance(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.Register(&core.AgentDeclaration{Name: "worker", Runtime: "mock"})
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := f.executor.Execute(context.Background(), Call{Agent: "worker", Prompt: "go"})
			errs <- err
		}()
	}

	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, n, f.adapter.Calls())
}
