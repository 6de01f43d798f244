package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/metrics"
)

// InputPlaceholder is substituted with the referenced step's output when it
// appears in a step prompt. Prompts without it get the input appended.
const InputPlaceholder = "{{input}}"

// Invocation is one agent call issued by the engine. ScopeKey is the run id,
// binding task-scoped agent instances to the run's lifetime.
type Invocation struct {
	Agent    string
	Prompt   string
	ScopeKey string
}

// Invoker dispatches agent calls for the engine. The agent executor satisfies
// it; tests substitute fakes. A non-nil result alongside an error carries the
// cost of the failed attempt and must be accounted.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (*core.ExecutionResult, error)
	ReleaseScope(ctx context.Context, scopeKey string) error
}

// EngineOptions configure an Engine.
type EngineOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
	// MaxParallelSteps caps concurrently executing children of a parallel
	// step.
	MaxParallelSteps int
	// DefaultRetryCount applies to runs whose declaration does not set
	// retry_count. Declarations are never written to.
	DefaultRetryCount int
}

// Engine executes workflow declarations.
type Engine struct {
	invoker Invoker
	opts    EngineOptions

	mu   sync.Mutex
	runs map[string]*Run
}

// NewEngine creates a workflow engine dispatching through the given invoker.
func NewEngine(invoker Invoker, optFns ...func(o *EngineOptions)) *Engine {
	opts := EngineOptions{
		Logger:           logging.NoOpLogger{},
		MaxParallelSteps: 8,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxParallelSteps <= 0 {
		opts.MaxParallelSteps = 8
	}
	if opts.DefaultRetryCount < 0 {
		opts.DefaultRetryCount = 0
	}

	return &Engine{
		invoker: invoker,
		opts:    opts,
		runs:    make(map[string]*Run),
	}
}

// Start validates the declaration and begins executing it on a background
// goroutine. The returned Run settles asynchronously; use Wait, Done or the
// engine's Summary to observe it.
func (e *Engine) Start(ctx context.Context, decl *core.WorkflowDeclaration) (*Run, error) {
	if err := Validate(decl); err != nil {
		return nil, err
	}

	run := newRun(decl)

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	e.opts.Metrics.RunStarted()
	e.opts.Logger.Info("workflow run started", "run_id", run.ID, "workflow", decl.Name, "steps", len(decl.Steps))

	go e.execute(ctx, run)

	return run, nil
}

// Execute runs a workflow to completion and returns its summary. The summary
// is valid even when the returned error is non-nil.
func (e *Engine) Execute(ctx context.Context, decl *core.WorkflowDeclaration) (RunSummary, error) {
	run, err := e.Start(ctx, decl)
	if err != nil {
		return RunSummary{}, err
	}
	run.Wait()
	return run.Summary(), run.Err()
}

// Cancel requests cooperative cancellation of a run. Dispatched steps drain;
// nothing new starts. Cancelling a settled or unknown run is an error.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	run, ok := e.runs[runID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	if !run.requestCancel() {
		return fmt.Errorf("run %s already settled", runID)
	}

	e.opts.Logger.Info("workflow run cancellation requested", "run_id", runID)

	return nil
}

// Get returns a tracked run by id.
func (e *Engine) Get(runID string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	return run, ok
}

// Summary returns a point-in-time summary of a run.
func (e *Engine) Summary(runID string) (RunSummary, error) {
	run, ok := e.Get(runID)
	if !ok {
		return RunSummary{}, fmt.Errorf("unknown run %s", runID)
	}
	return run.Summary(), nil
}

func (e *Engine) execute(ctx context.Context, run *Run) {
	err := e.runSteps(ctx, run, run.decl.Steps)

	// Task-scoped instances live exactly as long as the run.
	if rerr := e.invoker.ReleaseScope(context.WithoutCancel(ctx), run.ID); rerr != nil {
		e.opts.Logger.Warn("scope release failed", "run_id", run.ID, "error", rerr)
	}

	var status RunStatus
	switch {
	case errors.Is(err, core.ErrCancelled):
		status = RunStatusCancelled
	case err != nil:
		status = RunStatusFailed
	default:
		status = RunStatusSucceeded
	}

	run.settle(status, err)
	e.opts.Metrics.RunSettled(string(status), run.CostUSD())
	e.opts.Logger.Info("workflow run settled", "run_id", run.ID, "workflow", run.Workflow, "status", string(status), "cost_usd", run.CostUSD())
}

// runSteps executes steps sequentially, stopping at the first fatal error.
func (e *Engine) runSteps(ctx context.Context, run *Run, steps []core.WorkflowStep) error {
	for i := range steps {
		step := &steps[i]

		if run.isCancelled() || ctx.Err() != nil {
			return core.ErrCancelled
		}

		if err := e.runStep(ctx, run, step); err != nil {
			return err
		}
	}
	return nil
}

// runStep dispatches one step by kind. Parallel children route through here
// too, so composites nest.
func (e *Engine) runStep(ctx context.Context, run *Run, step *core.WorkflowStep) error {
	switch step.Kind {
	case core.StepAgent:
		return e.runAgentStep(ctx, run, step)
	case core.StepParallel:
		return e.runParallelStep(ctx, run, step)
	case core.StepCondition:
		return e.runConditionStep(ctx, run, step)
	default:
		return fmt.Errorf("step %q has unknown kind %q", step.Name, step.Kind)
	}
}

// runAgentStep dispatches one agent step with retries under the run budget.
// A budget breach is fatal regardless of the step's failure policy; exhausted
// retries respect on_failure.
func (e *Engine) runAgentStep(ctx context.Context, run *Run, step *core.WorkflowStep) error {
	retries := run.decl.RetryCount
	if retries == 0 {
		retries = e.opts.DefaultRetryCount
	}
	if step.Retries != nil {
		retries = *step.Retries
	}

	prompt := e.resolvePrompt(run, step)

	result := StepResult{Name: step.Name, Kind: core.StepAgent}
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if run.isCancelled() || ctx.Err() != nil {
			result.Status = stepFailed
			result.Error = core.ErrCancelled.Error()
			result.Duration = time.Since(start)
			run.recordResult(result)
			return core.ErrCancelled
		}

		if err := run.checkBudget(step.Name); err != nil {
			result.Status = stepFailed
			result.Error = err.Error()
			result.Duration = time.Since(start)
			run.recordResult(result)
			e.finishStep(result)
			return err
		}

		if attempt > 1 {
			e.opts.Metrics.ObserveStepRetry()
			e.opts.Logger.Info("retrying step", "run_id", run.ID, "step", step.Name, "attempt", attempt)
		}

		result.Attempts = attempt

		execResult, err := e.invoker.Invoke(ctx, Invocation{
			Agent:    step.Agent,
			Prompt:   prompt,
			ScopeKey: run.ID,
		})
		if execResult != nil {
			run.addCost(execResult.CostUSD)
			result.CostUSD += execResult.CostUSD
		}

		if err == nil {
			result.Status = stepSucceeded
			result.Output = execResult.Text
			result.Duration = time.Since(start)
			run.recordResult(result)
			e.finishStep(result)
			return nil
		}

		lastErr = err
		e.opts.Logger.Warn("step attempt failed", "run_id", run.ID, "step", step.Name, "attempt", attempt, "error", err)
	}

	result.Duration = time.Since(start)
	result.Error = lastErr.Error()

	if step.OnFailure == core.FailureSkip {
		result.Status = stepSkipped
		run.recordResult(result)
		e.finishStep(result)
		e.opts.Logger.Warn("step skipped after exhausting retries", "run_id", run.ID, "step", step.Name, "attempts", result.Attempts)
		return nil
	}

	result.Status = stepFailed
	run.recordResult(result)
	e.finishStep(result)

	return fmt.Errorf("step %q failed after %d attempts: %w", step.Name, result.Attempts, lastErr)
}

func (e *Engine) finishStep(result StepResult) {
	e.opts.Metrics.ObserveStep(string(core.StepAgent), result.Status, result.Duration)
}

// resolvePrompt combines the step prompt with the referenced input. The
// placeholder form substitutes in place; otherwise the input is appended.
// A reference to a skipped step resolves to the empty string.
func (e *Engine) resolvePrompt(run *Run, step *core.WorkflowStep) string {
	if step.InputFrom == "" {
		return step.Prompt
	}

	input, _ := run.output(step.InputFrom)

	switch {
	case strings.Contains(step.Prompt, InputPlaceholder):
		return strings.ReplaceAll(step.Prompt, InputPlaceholder, input)
	case step.Prompt == "":
		return input
	case input == "":
		return step.Prompt
	default:
		return step.Prompt + "\n\nInput:\n" + input
	}
}

// runParallelStep dispatches the children concurrently, capped by
// MaxParallelSteps. Children may themselves be parallel or condition steps.
// A failing child never cancels its siblings: every child runs to
// settlement, then failures are aggregated.
func (e *Engine) runParallelStep(ctx context.Context, run *Run, step *core.WorkflowStep) error {
	start := time.Now()

	sem := make(chan struct{}, e.opts.MaxParallelSteps)
	childErrs := make([]error, len(step.Children))

	var wg sync.WaitGroup
	for i := range step.Children {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			childErrs[i] = e.runStep(ctx, run, &step.Children[i])
		}(i)
	}
	wg.Wait()

	var failed []string
	var firstErr error
	for i, err := range childErrs {
		if err == nil {
			continue
		}
		failed = append(failed, step.Children[i].Name)
		if firstErr == nil {
			firstErr = err
		}
	}

	result := StepResult{
		Name:     step.Name,
		Kind:     core.StepParallel,
		Duration: time.Since(start),
	}

	if firstErr != nil {
		result.Status = stepFailed
		result.Error = firstErr.Error()
		run.recordResult(result)
		e.opts.Metrics.ObserveStep(string(core.StepParallel), stepFailed, result.Duration)

		if errors.Is(firstErr, core.ErrCancelled) {
			return core.ErrCancelled
		}
		var budgetErr *core.BudgetExceededError
		if errors.As(firstErr, &budgetErr) {
			return firstErr
		}
		return fmt.Errorf("parallel step %q: children %s failed: %w", step.Name, strings.Join(failed, ", "), firstErr)
	}

	result.Status = stepSucceeded
	run.recordResult(result)
	e.opts.Metrics.ObserveStep(string(core.StepParallel), stepSucceeded, result.Duration)

	return nil
}

// runConditionStep executes the predicate, then exactly one branch based on
// the truthiness of its output.
func (e *Engine) runConditionStep(ctx context.Context, run *Run, step *core.WorkflowStep) error {
	if err := e.runAgentStep(ctx, run, step.Predicate); err != nil {
		return fmt.Errorf("condition step %q: predicate failed: %w", step.Name, err)
	}

	output, _ := run.output(step.Predicate.Name)
	branchTaken := truthy(output)

	e.opts.Logger.Debug("condition evaluated", "run_id", run.ID, "step", step.Name, "truthy", branchTaken)

	branch := step.IfFalse
	if branchTaken {
		branch = step.IfTrue
	}

	start := time.Now()
	err := e.runSteps(ctx, run, branch)

	result := StepResult{
		Name:     step.Name,
		Kind:     core.StepCondition,
		Output:   fmt.Sprintf("%t", branchTaken),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = stepFailed
		result.Error = err.Error()
	} else {
		result.Status = stepSucceeded
	}
	run.recordResult(result)
	e.opts.Metrics.ObserveStep(string(core.StepCondition), result.Status, result.Duration)

	return err
}

// truthy interprets a predicate output: the trimmed text is false when empty
// or one of "false", "0" and "no" case-insensitively, true otherwise.
func truthy(output string) bool {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "false", "0", "no":
		return false
	default:
		return true
	}
}
