package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentInstance is a live, dependency-injected agent produced by the factory.
// Exactly one owner mutates it: the lifecycle manager drives status through
// the CompareAndSwapStatus primitive, the executor records execution
// statistics. Every other component holds lookups by ID only.
type AgentInstance struct {
	ID          string
	Declaration *AgentDeclaration
	CreatedAt   time.Time

	mu           sync.Mutex
	status       AgentStatus
	tools        map[string]ResolvedTool // keyed by qualified id, unique
	instruction  string
	adapter      RuntimeAdapter // nil while a lazy placeholder
	lastActivity time.Time

	queryCount    int
	totalCostUSD  float64
	totalDuration time.Duration
}

// NewAgentInstance constructs an instance with a fresh id. Lazy placeholders
// pass nil tools/adapter and StatusRegistered; eager instances pass their
// resolved dependencies and StatusInitializing.
func NewAgentInstance(
	decl *AgentDeclaration,
	status AgentStatus,
	tools map[string]ResolvedTool,
	instruction string,
	adapter RuntimeAdapter,
) *AgentInstance {
	now := time.Now().UTC()
	return &AgentInstance{
		ID:           uuid.NewString(),
		Declaration:  decl,
		CreatedAt:    now,
		status:       status,
		tools:        tools,
		instruction:  instruction,
		adapter:      adapter,
		lastActivity: now,
	}
}

// Name returns the declared agent name.
func (i *AgentInstance) Name() string { return i.Declaration.Name }

// Status returns the current lifecycle status.
func (i *AgentInstance) Status() AgentStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// CompareAndSwapStatus atomically replaces the status if it currently equals
// from, returning the status observed before the swap and whether the swap
// happened. It is the only mutation path for status and exists for the
// lifecycle manager; callers elsewhere must go through Manager.Transition so
// the transition table, event history and subscribers stay authoritative.
func (i *AgentInstance) CompareAndSwapStatus(from, to AgentStatus) (AgentStatus, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != from {
		return i.status, false
	}
	i.status = to
	return from, true
}

// Materialize installs the resolved dependencies of a lazy placeholder.
// It is valid exactly once, while no adapter is bound.
func (i *AgentInstance) Materialize(tools map[string]ResolvedTool, instruction string, adapter RuntimeAdapter) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.adapter != nil {
		return false
	}
	i.tools = tools
	i.instruction = instruction
	i.adapter = adapter
	return true
}

// Adapter returns the bound runtime adapter, nil for unmaterialized
// placeholders.
func (i *AgentInstance) Adapter() RuntimeAdapter {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.adapter
}

// Instruction returns the composed system instruction.
func (i *AgentInstance) Instruction() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.instruction
}

// Tool returns a resolved tool by qualified id.
func (i *AgentInstance) Tool(id string) (ResolvedTool, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	tool, ok := i.tools[id]
	return tool, ok
}

// ToolIDs returns the qualified identifiers of the resolved tool set.
func (i *AgentInstance) ToolIDs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]string, 0, len(i.tools))
	for id := range i.tools {
		ids = append(ids, id)
	}
	return ids
}

// RecordExecution accumulates per-instance statistics after a runtime call.
func (i *AgentInstance) RecordExecution(costUSD float64, duration time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.queryCount++
	i.totalCostUSD += costUSD
	i.totalDuration += duration
	i.lastActivity = time.Now().UTC()
}

// Touch updates the last-activity timestamp.
func (i *AgentInstance) Touch() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastActivity = time.Now().UTC()
}

// InstanceStats is a point-in-time snapshot of execution statistics.
type InstanceStats struct {
	QueryCount    int           `json:"query_count"`
	TotalCostUSD  float64       `json:"total_cost_usd"`
	TotalDuration time.Duration `json:"total_duration"`
	LastActivity  time.Time     `json:"last_activity"`
}

// Stats returns a snapshot of the instance's execution statistics.
func (i *AgentInstance) Stats() InstanceStats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return InstanceStats{
		QueryCount:    i.queryCount,
		TotalCostUSD:  i.totalCostUSD,
		TotalDuration: i.totalDuration,
		LastActivity:  i.lastActivity,
	}
}

// InstanceSummary is the operator-facing view of an instance.
type InstanceSummary struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Runtime    string        `json:"runtime"`
	Status     AgentStatus   `json:"status"`
	Scope      Scope         `json:"scope"`
	Lazy       bool          `json:"lazy"`
	ToolCount  int           `json:"tool_count"`
	SkillCount int           `json:"skill_count"`
	CreatedAt  time.Time     `json:"created_at"`
	Stats      InstanceStats `json:"stats"`
}

// Summary returns the operator-facing view of the instance.
func (i *AgentInstance) Summary() InstanceSummary {
	i.mu.Lock()
	toolCount := len(i.tools)
	status := i.status
	i.mu.Unlock()

	return InstanceSummary{
		ID:         i.ID,
		Name:       i.Declaration.Name,
		Runtime:    i.Declaration.Runtime,
		Status:     status,
		Scope:      i.Declaration.EffectiveScope(),
		Lazy:       i.Declaration.Lazy,
		ToolCount:  toolCount,
		SkillCount: len(i.Declaration.Skills),
		CreatedAt:  i.CreatedAt,
		Stats:      i.Stats(),
	}
}
