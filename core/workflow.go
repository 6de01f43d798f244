package core

import "time"

// StepKind discriminates the workflow step variants.
type StepKind string

const (
	// StepAgent invokes a single agent with a prompt.
	StepAgent StepKind = "agent"
	// StepParallel dispatches independent child steps concurrently.
	StepParallel StepKind = "parallel"
	// StepCondition evaluates a predicate step and executes one branch.
	StepCondition StepKind = "condition"
)

// FailurePolicy controls what happens when an agent step exhausts its
// retries.
type FailurePolicy string

const (
	// FailureHalt stops the run; no further steps dispatch. Default.
	FailureHalt FailurePolicy = "halt"
	// FailureSkip records the step as skipped and continues the run.
	FailureSkip FailurePolicy = "skip"
)

// WorkflowStep is a tagged variant: Kind selects which field group is
// meaningful. Step names are unique within a declaration, including nested
// children and branches.
type WorkflowStep struct {
	Name string   `json:"name"`
	Kind StepKind `json:"kind"`

	// Kind == StepAgent
	Agent     string        `json:"agent,omitempty"`
	Prompt    string        `json:"prompt,omitempty"`
	InputFrom string        `json:"input_from,omitempty"`
	Retries   *int          `json:"retries,omitempty"` // overrides the declaration default when set
	OnFailure FailurePolicy `json:"on_failure,omitempty"`

	// Kind == StepParallel
	Children []WorkflowStep `json:"children,omitempty"`

	// Kind == StepCondition
	Predicate *WorkflowStep  `json:"predicate,omitempty"`
	IfTrue    []WorkflowStep `json:"if_true,omitempty"`
	IfFalse   []WorkflowStep `json:"if_false,omitempty"`
}

// WorkflowDeclaration is the immutable description of a multi-step
// orchestration, produced by the manifest layer.
type WorkflowDeclaration struct {
	Name  string         `json:"name"`
	Steps []WorkflowStep `json:"steps"`

	// RetryCount is the default retry count applied to agent steps that do
	// not override it.
	RetryCount int `json:"retry_count"`

	// MaxTotalCostUSD caps the run's cumulative cost; 0 means unlimited.
	MaxTotalCostUSD float64 `json:"max_total_cost_usd"`

	// MaxTotalDuration caps the run's wall-clock time; 0 means unlimited.
	MaxTotalDuration time.Duration `json:"max_total_duration"`
}
