package core

import "time"

// Scope classifies the lifetime of an agent instance.
type Scope string

const (
	// ScopeSingleton instances live for the lifetime of the container.
	ScopeSingleton Scope = "singleton"
	// ScopeTask instances live for a single workflow run.
	ScopeTask Scope = "task"
	// ScopeSession instances live for a single external request.
	ScopeSession Scope = "session"
)

// Limits bound a single runtime execution.
type Limits struct {
	MaxTurns int           `json:"max_turns"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultLimits mirrors the defaults the manifest layer applies when an agent
// declaration omits the limits block.
var DefaultLimits = Limits{MaxTurns: 30, Timeout: 10 * time.Minute}

// ToolRef references tools from an agent declaration. Exactly one form is
// populated by the manifest layer:
//   - Bundle set, Name empty: inject every item of the bundle
//   - Bundle and Name set: inject the single qualified item "bundle/name"
//   - Name set, Bundle empty: bare reference, resolved across all bundles
type ToolRef struct {
	Bundle string `json:"bundle,omitempty"`
	Name   string `json:"name,omitempty"`
}

// SkillRef references a skill definition by name.
type SkillRef struct {
	Name string `json:"name"`
}

// AgentDeclaration is the validated, immutable description of an agent as
// produced by the manifest layer. It is read-only to the core; the factory
// resolves it into a live AgentInstance.
type AgentDeclaration struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Runtime       string         `json:"runtime"`
	RuntimeConfig map[string]any `json:"runtime_config,omitempty"`

	Tools  []ToolRef  `json:"tools,omitempty"`
	Skills []SkillRef `json:"skills,omitempty"`

	// Instruction sources, first non-empty wins:
	// SystemPrompt, then PromptText (prompt_file content, loaded by the
	// manifest layer), then the referenced skills' instruction documents.
	SystemPrompt string `json:"system_prompt,omitempty"`
	PromptText   string `json:"prompt_text,omitempty"`

	Scope  Scope  `json:"scope"`
	Lazy   bool   `json:"lazy"`
	Limits Limits `json:"limits"`

	Tags []string `json:"tags,omitempty"`
}

// EffectiveLimits returns the declaration limits with defaults filled in for
// unset fields.
func (d *AgentDeclaration) EffectiveLimits() Limits {
	limits := d.Limits
	if limits.MaxTurns <= 0 {
		limits.MaxTurns = DefaultLimits.MaxTurns
	}
	if limits.Timeout <= 0 {
		limits.Timeout = DefaultLimits.Timeout
	}
	return limits
}

// EffectiveScope returns the declared scope, defaulting to singleton.
func (d *AgentDeclaration) EffectiveScope() Scope {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}
