package core

import (
	"errors"
	"fmt"
)

// ErrCancelled marks cooperative run cancellation. It is not an abnormal
// failure: steps already dispatched drain normally before the run settles.
var ErrCancelled = errors.New("run cancelled")

// ResolutionError reports a failed dependency resolution, either while
// building a registry (strict-mode conflicts, duplicate items) or while the
// factory wires an agent instance. It fails that agent only; bulk creation of
// sibling agents proceeds.
type ResolutionError struct {
	Agent string // empty for registry-build failures
	Kind  string // "tool", "skill", "runtime", "agent" or "conflict"
	Ref   string // the missing or conflicting identifier
	Skill string // set when a skill's required tool is missing
	Cause error
}

func (e *ResolutionError) Error() string {
	switch {
	case e.Skill != "":
		return fmt.Sprintf("agent %q: skill %q requires tool %q which is not in the resolved tool set", e.Agent, e.Skill, e.Ref)
	case e.Kind == "conflict":
		return fmt.Sprintf("tool name conflict on %q in strict mode", e.Ref)
	case e.Agent != "":
		return fmt.Sprintf("agent %q: unknown %s reference %q", e.Agent, e.Kind, e.Ref)
	default:
		return fmt.Sprintf("unknown %s reference %q", e.Kind, e.Ref)
	}
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// InvalidTransitionError reports a rejected status transition. The instance
// state is left unchanged; both the attempted transition and the actual
// current state are reported so the caller never has to guess.
type InvalidTransitionError struct {
	InstanceID string
	From       AgentStatus // expected source state
	To         AgentStatus // attempted target state
	Current    AgentStatus // actual state at rejection time
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("instance %s: invalid transition %s -> %s (current state %s)",
		e.InstanceID, e.From, e.To, e.Current)
}

// RuntimeError wraps an adapter failure or timeout so the workflow engine can
// distinguish retryable step failures from engine faults.
type RuntimeError struct {
	Agent string
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime execution failed for agent %q: %v", e.Agent, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// BudgetExceededError halts a workflow run. It is never retried: once the
// cost ceiling or the run deadline is hit, no further step dispatches.
type BudgetExceededError struct {
	RunID    string
	Step     string
	CostUSD  float64
	LimitUSD float64
	Deadline bool // true when the time budget was the ceiling hit
}

func (e *BudgetExceededError) Error() string {
	if e.Deadline {
		return fmt.Sprintf("run %s: deadline exceeded before step %q could dispatch", e.RunID, e.Step)
	}
	return fmt.Sprintf("run %s: cost budget exceeded before step %q could dispatch (%.4f of %.4f USD spent)",
		e.RunID, e.Step, e.CostUSD, e.LimitUSD)
}
