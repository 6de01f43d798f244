package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentforge/core"
)

// RunStatus enumerates the states of a workflow run.
type RunStatus string

const (
	// RunStatusRunning marks a run with steps still dispatching.
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusSucceeded marks a run whose steps all settled successfully.
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	// RunStatusFailed marks a run halted by a fatal step failure or a
	// budget breach.
	RunStatusFailed RunStatus = "FAILED"
	// RunStatusCancelling marks a run draining after cancellation.
	RunStatusCancelling RunStatus = "CANCELLING"
	// RunStatusCancelled marks a cancelled run that finished draining.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the run has settled.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// StepResult records the settled outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	Kind     core.StepKind `json:"kind"`
	Status   string        `json:"status"` // "succeeded", "failed" or "skipped"
	Output   string        `json:"output,omitempty"`
	Attempts int           `json:"attempts"`
	CostUSD  float64       `json:"cost_usd"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

const (
	stepSucceeded = "succeeded"
	stepFailed    = "failed"
	stepSkipped   = "skipped"
)

// Run is the mutable execution state of one workflow invocation. Its ID
// doubles as the scope key for task-scoped agent instances.
type Run struct {
	ID        string
	Workflow  string
	StartedAt time.Time

	decl *core.WorkflowDeclaration

	mu        sync.Mutex
	status    RunStatus
	cancelled bool
	outputs   map[string]string
	results   []StepResult
	costUSD   float64
	err       error
	endedAt   time.Time

	done chan struct{}
}

func newRun(decl *core.WorkflowDeclaration) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Workflow:  decl.Name,
		StartedAt: time.Now().UTC(),
		decl:      decl,
		status:    RunStatusRunning,
		outputs:   make(map[string]string),
		done:      make(chan struct{}),
	}
}

// Status returns the current run status.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the error the run settled with, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// CostUSD returns the cumulative reported cost so far, including failed
// attempts.
func (r *Run) CostUSD() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.costUSD
}

// Wait blocks until the run settles.
func (r *Run) Wait() {
	<-r.done
}

// Done returns a channel closed when the run settles.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// requestCancel flips the run into CANCELLING. In-flight steps drain; no
// further steps dispatch.
func (r *Run) requestCancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.status.Terminal() {
		return false
	}
	r.cancelled = true
	r.status = RunStatusCancelling
	return true
}

func (r *Run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// addCost accrues reported cost monotonically. Failed attempts count: tokens
// were consumed whether or not the call succeeded.
func (r *Run) addCost(costUSD float64) {
	if costUSD <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costUSD += costUSD
}

// recordResult appends a settled step result and, on success, publishes the
// step output for later input_from references.
func (r *Run) recordResult(res StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	if res.Status == stepSucceeded {
		r.outputs[res.Name] = res.Output
	}
}

// output returns the published output of an earlier step.
func (r *Run) output(step string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outputs[step]
	return out, ok
}

// checkBudget verifies the run may dispatch another step. The cost ceiling is
// inclusive: once cumulative spend reaches the cap, nothing further
// dispatches.
func (r *Run) checkBudget(step string) error {
	r.mu.Lock()
	cost := r.costUSD
	r.mu.Unlock()

	if limit := r.decl.MaxTotalCostUSD; limit > 0 && cost >= limit {
		return &core.BudgetExceededError{RunID: r.ID, Step: step, CostUSD: cost, LimitUSD: limit}
	}
	if budget := r.decl.MaxTotalDuration; budget > 0 && time.Since(r.StartedAt) >= budget {
		return &core.BudgetExceededError{RunID: r.ID, Step: step, Deadline: true}
	}
	return nil
}

// settle moves the run to a terminal status exactly once.
func (r *Run) settle(status RunStatus, err error) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = status
	r.err = err
	r.endedAt = time.Now().UTC()
	r.mu.Unlock()

	close(r.done)
}

// RunSummary is the settled view of a run.
type RunSummary struct {
	ID           string        `json:"id"`
	Workflow     string        `json:"workflow"`
	Status       RunStatus     `json:"status"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	Duration     time.Duration `json:"duration"`
	Steps        []StepResult  `json:"steps"`
	Error        string        `json:"error,omitempty"`
}

// Summary returns a point-in-time view of the run. For settled runs this is
// the final report.
func (r *Run) Summary() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.endedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}

	steps := make([]StepResult, len(r.results))
	copy(steps, r.results)

	summary := RunSummary{
		ID:           r.ID,
		Workflow:     r.Workflow,
		Status:       r.status,
		TotalCostUSD: r.costUSD,
		Duration:     end.Sub(r.StartedAt),
		Steps:        steps,
	}
	if r.err != nil {
		summary.Error = r.err.Error()
	}
	return summary
}
