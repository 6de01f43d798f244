package workflow

import (
	"fmt"

	"github.com/hupe1980/agentforge/core"
)

// Validate checks a workflow declaration for structural defects before any
// step dispatches: step names must be unique across the whole tree, every
// input_from must reference a step that settles earlier in sequential order,
// and each step variant must carry the fields its kind requires. Parallel
// children run concurrently, so they may reference steps before the parallel
// block but never their siblings.
func Validate(decl *core.WorkflowDeclaration) error {
	if decl.Name == "" {
		return fmt.Errorf("workflow has no name")
	}
	if len(decl.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", decl.Name)
	}
	if decl.RetryCount < 0 {
		return fmt.Errorf("workflow %q: retry_count must not be negative", decl.Name)
	}
	if decl.MaxTotalCostUSD < 0 {
		return fmt.Errorf("workflow %q: max_total_cost_usd must not be negative", decl.Name)
	}

	v := &validator{names: make(map[string]struct{})}

	if err := v.collectNames(decl.Steps); err != nil {
		return fmt.Errorf("workflow %q: %w", decl.Name, err)
	}

	if err := v.checkSteps(decl.Steps, make(map[string]struct{})); err != nil {
		return fmt.Errorf("workflow %q: %w", decl.Name, err)
	}

	return nil
}

type validator struct {
	names map[string]struct{}
}

// collectNames walks the whole step tree enforcing global name uniqueness.
func (v *validator) collectNames(steps []core.WorkflowStep) error {
	for i := range steps {
		step := &steps[i]
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if _, dup := v.names[step.Name]; dup {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		v.names[step.Name] = struct{}{}

		switch step.Kind {
		case core.StepParallel:
			if err := v.collectNames(step.Children); err != nil {
				return err
			}
		case core.StepCondition:
			if step.Predicate != nil {
				if err := v.collectNames([]core.WorkflowStep{*step.Predicate}); err != nil {
					return err
				}
			}
			if err := v.collectNames(step.IfTrue); err != nil {
				return err
			}
			if err := v.collectNames(step.IfFalse); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkSteps validates shapes and input_from ordering. settled accumulates
// the names of steps guaranteed to have settled before the step under
// inspection dispatches.
func (v *validator) checkSteps(steps []core.WorkflowStep, settled map[string]struct{}) error {
	for i := range steps {
		step := &steps[i]
		if err := v.checkStep(step, settled); err != nil {
			return err
		}
		markSettled(step, settled)
	}
	return nil
}

func (v *validator) checkStep(step *core.WorkflowStep, settled map[string]struct{}) error {
	switch step.Kind {
	case core.StepAgent:
		return v.checkAgentStep(step, settled)

	case core.StepParallel:
		if len(step.Children) == 0 {
			return fmt.Errorf("parallel step %q has no children", step.Name)
		}
		// Children run concurrently and may be composites themselves; each
		// sees what settled before the block, never its siblings.
		for j := range step.Children {
			if err := v.checkStep(&step.Children[j], copySet(settled)); err != nil {
				return err
			}
		}
		return nil

	case core.StepCondition:
		if step.Predicate == nil {
			return fmt.Errorf("condition step %q has no predicate", step.Name)
		}
		if step.Predicate.Kind != core.StepAgent {
			return fmt.Errorf("condition step %q: predicate %q must be an agent step", step.Name, step.Predicate.Name)
		}
		if len(step.IfTrue) == 0 && len(step.IfFalse) == 0 {
			return fmt.Errorf("condition step %q has no branches", step.Name)
		}
		if err := v.checkAgentStep(step.Predicate, settled); err != nil {
			return err
		}

		// Either branch may run, so each validates against the same
		// pre-branch set; only names common to both are guaranteed
		// afterwards. Branches are exclusive, which keeps this sound.
		trueSettled := copySet(settled)
		trueSettled[step.Predicate.Name] = struct{}{}
		if err := v.checkSteps(step.IfTrue, trueSettled); err != nil {
			return err
		}

		falseSettled := copySet(settled)
		falseSettled[step.Predicate.Name] = struct{}{}
		if err := v.checkSteps(step.IfFalse, falseSettled); err != nil {
			return err
		}
		return nil

	default:
		return fmt.Errorf("step %q has unknown kind %q", step.Name, step.Kind)
	}
}

// markSettled adds the names guaranteed to have settled once the step
// completes: the step itself, every parallel child recursively, and a
// condition's predicate. Branch steps are excluded because only one
// branch executes.
func markSettled(step *core.WorkflowStep, settled map[string]struct{}) {
	settled[step.Name] = struct{}{}

	switch step.Kind {
	case core.StepParallel:
		for i := range step.Children {
			markSettled(&step.Children[i], settled)
		}
	case core.StepCondition:
		if step.Predicate != nil {
			settled[step.Predicate.Name] = struct{}{}
		}
	}
}

func (v *validator) checkAgentStep(step *core.WorkflowStep, settled map[string]struct{}) error {
	if step.Agent == "" {
		return fmt.Errorf("agent step %q names no agent", step.Name)
	}
	if step.Retries != nil && *step.Retries < 0 {
		return fmt.Errorf("agent step %q: retries must not be negative", step.Name)
	}
	switch step.OnFailure {
	case "", core.FailureHalt, core.FailureSkip:
	default:
		return fmt.Errorf("agent step %q: unknown on_failure policy %q", step.Name, step.OnFailure)
	}
	if step.InputFrom != "" {
		if _, ok := settled[step.InputFrom]; !ok {
			return fmt.Errorf("agent step %q: input_from %q does not reference an earlier step", step.Name, step.InputFrom)
		}
	}
	if len(step.Children) > 0 || step.Predicate != nil || len(step.IfTrue) > 0 || len(step.IfFalse) > 0 {
		return fmt.Errorf("agent step %q carries fields of another step kind", step.Name)
	}
	return nil
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
