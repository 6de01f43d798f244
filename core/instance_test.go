package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{}

func (stubAdapter) Execute(context.Context, Request) (*ExecutionResult, error) {
	return &ExecutionResult{}, nil
}

func (stubAdapter) Stream(context.Context, Request) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func (stubAdapter) Shutdown(context.Context) error { return nil }

func TestAgentInstance_CompareAndSwapStatus(t *testing.T) {
	inst := NewAgentInstance(&AgentDeclaration{Name: "a", Runtime: "mock"}, StatusIdle, nil, "", stubAdapter{})

	observed, swapped := inst.CompareAndSwapStatus(StatusIdle, StatusExecuting)
	assert.True(t, swapped)
	assert.Equal(t, StatusIdle, observed)
	assert.Equal(t, StatusExecuting, inst.Status())

	observed, swapped = inst.CompareAndSwapStatus(StatusIdle, StatusDegraded)
	assert.False(t, swapped)
	assert.Equal(t, StatusExecuting, observed)
	assert.Equal(t, StatusExecuting, inst.Status())
}

func TestAgentInstance_Materialize_OnlyOnce(t *testing.T) {
	inst := NewAgentInstance(&AgentDeclaration{Name: "a", Runtime: "mock", Lazy: true}, StatusRegistered, nil, "", nil)
	require.Nil(t, inst.Adapter())

	tools := map[string]ResolvedTool{
		"fs/read": {ID: "fs/read", Bundle: "fs", Item: ToolItem{Name: "read"}},
	}

	assert.True(t, inst.Materialize(tools, "instruction", stubAdapter{}))
	assert.NotNil(t, inst.Adapter())
	assert.Equal(t, "instruction", inst.Instruction())

	assert.False(t, inst.Materialize(nil, "other", stubAdapter{}), "second materialization must be rejected")
	assert.Equal(t, "instruction", inst.Instruction())

	tool, ok := inst.Tool("fs/read")
	require.True(t, ok)
	assert.Equal(t, "read", tool.Item.Name)
}

func TestAgentInstance_RecordExecutionAndSummary(t *testing.T) {
	decl := &AgentDeclaration{Name: "a", Runtime: "mock", Skills: []SkillRef{{Name: "s"}}}
	inst := NewAgentInstance(decl, StatusIdle, map[string]ResolvedTool{"fs/read": {}}, "", stubAdapter{})

	inst.RecordExecution(0.25, 2*time.Second)
	inst.RecordExecution(0.05, time.Second)

	stats := inst.Stats()
	assert.Equal(t, 2, stats.QueryCount)
	assert.InDelta(t, 0.30, stats.TotalCostUSD, 1e-9)
	assert.Equal(t, 3*time.Second, stats.TotalDuration)
	assert.False(t, stats.LastActivity.IsZero())

	summary := inst.Summary()
	assert.Equal(t, "a", summary.Name)
	assert.Equal(t, ScopeSingleton, summary.Scope)
	assert.Equal(t, 1, summary.ToolCount)
	assert.Equal(t, 1, summary.SkillCount)
	assert.Equal(t, 2, summary.Stats.QueryCount)
}

func TestAgentDeclaration_EffectiveLimits(t *testing.T) {
	decl := &AgentDeclaration{}
	assert.Equal(t, DefaultLimits, decl.EffectiveLimits())

	decl.Limits = Limits{MaxTurns: 5}
	limits := decl.EffectiveLimits()
	assert.Equal(t, 5, limits.MaxTurns)
	assert.Equal(t, DefaultLimits.Timeout, limits.Timeout)
}
