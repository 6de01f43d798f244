package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/lifecycle"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/registry"
)

// FactoryOptions configure a Factory.
type FactoryOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Factory resolves agent declarations into live instances. Resolution is
// per-agent and isolated: a failing agent never blocks its siblings.
type Factory struct {
	tools    *registry.ToolRegistry
	skills   *registry.SkillRegistry
	runtimes *registry.RuntimeRegistry
	manager  *lifecycle.Manager
	logger   logging.Logger
}

// NewFactory creates an agent factory over the three registries and the
// lifecycle manager that will own the produced instances.
func NewFactory(
	tools *registry.ToolRegistry,
	skills *registry.SkillRegistry,
	runtimes *registry.RuntimeRegistry,
	manager *lifecycle.Manager,
	optFns ...func(o *FactoryOptions),
) *Factory {
	opts := FactoryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Factory{
		tools:    tools,
		skills:   skills,
		runtimes: runtimes,
		manager:  manager,
		logger:   opts.Logger,
	}
}

// CreateResult is the per-agent outcome of a bulk creation. Exactly one of
// Instance and Err is set.
type CreateResult struct {
	Name     string
	Instance *core.AgentInstance
	Err      error
}

// CreateAll creates instances for every declaration, continuing past
// per-agent failures. Results preserve declaration order.
func (f *Factory) CreateAll(decls []*core.AgentDeclaration) []CreateResult {
	results := make([]CreateResult, 0, len(decls))
	for _, decl := range decls {
		inst, err := f.Create(decl)
		results = append(results, CreateResult{Name: decl.Name, Instance: inst, Err: err})
	}
	return results
}

// Create produces a live instance for one declaration. Lazy declarations get
// a REGISTERED placeholder whose resolution is deferred to first use; eager
// ones are resolved immediately and end up IDLE. Failures during eager
// resolution leave no tracked instance behind.
func (f *Factory) Create(decl *core.AgentDeclaration) (*core.AgentInstance, error) {
	if !f.tools.Built() {
		return nil, fmt.Errorf("tool registry not built: build registries before creating agents")
	}

	if decl.Lazy {
		inst := core.NewAgentInstance(decl, core.StatusRegistered, nil, "", nil)
		if err := f.manager.Register(inst); err != nil {
			return nil, err
		}
		f.logger.Debug("lazy placeholder created", "agent", decl.Name, "instance_id", inst.ID)
		return inst, nil
	}

	tools, instruction, adapter, err := f.resolve(decl)
	if err != nil {
		return nil, err
	}

	inst := core.NewAgentInstance(decl, core.StatusInitializing, tools, instruction, adapter)
	if err := f.manager.Register(inst); err != nil {
		// Not tracked yet, so the adapter is ours to close.
		if serr := adapter.Shutdown(context.Background()); serr != nil {
			f.logger.Warn("adapter release after refused registration failed", "agent", decl.Name, "error", serr)
		}
		return nil, err
	}
	if err := f.manager.Transition(inst.ID, core.StatusInitializing, core.StatusIdle); err != nil {
		if serr := f.manager.ShutdownInstance(context.Background(), inst.ID); serr != nil {
			f.logger.Warn("instance release after failed activation failed", "agent", decl.Name, "instance_id", inst.ID, "error", serr)
		}
		return nil, err
	}

	f.logger.Info("agent created", "agent", decl.Name, "instance_id", inst.ID, "runtime", decl.Runtime, "tools", len(tools))

	return inst, nil
}

// Materialize resolves the dependencies of a lazy placeholder in place:
// REGISTERED -> INITIALIZING -> IDLE, or DEGRADED when resolution fails.
// Materializing an already resolved instance is a no-op.
func (f *Factory) Materialize(inst *core.AgentInstance) error {
	if inst.Adapter() != nil {
		return nil
	}

	if err := f.manager.Transition(inst.ID, core.StatusRegistered, core.StatusInitializing); err != nil {
		return err
	}

	tools, instruction, adapter, err := f.resolve(inst.Declaration)
	if err != nil {
		if terr := f.manager.TransitionWithReason(inst.ID, core.StatusInitializing, core.StatusDegraded, "materialization failed"); terr != nil {
			f.logger.Warn("degrade after failed materialization rejected", "instance_id", inst.ID, "error", terr)
		}
		return err
	}

	if !inst.Materialize(tools, instruction, adapter) {
		// Another goroutine won the race; its resolution stands and our
		// adapter is surplus.
		if serr := adapter.Shutdown(context.Background()); serr != nil {
			f.logger.Warn("duplicate adapter release failed", "instance_id", inst.ID, "error", serr)
		}
		return f.manager.Transition(inst.ID, core.StatusInitializing, core.StatusIdle)
	}

	if err := f.manager.Transition(inst.ID, core.StatusInitializing, core.StatusIdle); err != nil {
		return err
	}

	f.logger.Info("lazy agent materialized", "agent", inst.Name(), "instance_id", inst.ID)

	return nil
}

// resolve performs the dependency injection steps for one declaration:
// tools, then skills with their requirement check, then the instruction,
// then the runtime adapter.
func (f *Factory) resolve(decl *core.AgentDeclaration) (map[string]core.ResolvedTool, string, core.RuntimeAdapter, error) {
	tools, err := f.resolveTools(decl)
	if err != nil {
		return nil, "", nil, err
	}

	skills, err := f.skills.ResolveRefs(decl.Skills)
	if err != nil {
		var resolution *core.ResolutionError
		if errors.As(err, &resolution) {
			resolution.Agent = decl.Name
		}
		return nil, "", nil, err
	}

	if err := f.checkRequiredTools(decl, skills, tools); err != nil {
		return nil, "", nil, err
	}

	instruction := f.composeInstruction(decl, skills)

	factory, err := f.runtimes.Get(decl.Runtime)
	if err != nil {
		var resolution *core.ResolutionError
		if errors.As(err, &resolution) {
			resolution.Agent = decl.Name
		}
		return nil, "", nil, err
	}

	adapter, err := factory(decl.RuntimeConfig)
	if err != nil {
		return nil, "", nil, &core.ResolutionError{Agent: decl.Name, Kind: "runtime", Ref: decl.Runtime, Cause: err}
	}

	return tools, instruction, adapter, nil
}

func (f *Factory) resolveTools(decl *core.AgentDeclaration) (map[string]core.ResolvedTool, error) {
	tools := make(map[string]core.ResolvedTool)
	for _, ref := range decl.Tools {
		resolved, err := f.tools.Resolve(ref)
		if err != nil {
			var resolution *core.ResolutionError
			if errors.As(err, &resolution) {
				resolution.Agent = decl.Name
			}
			return nil, err
		}
		for _, tool := range resolved {
			// Overlapping refs (bundle plus a qualified item of it) collapse
			// on the qualified id.
			tools[tool.ID] = tool
		}
	}
	return tools, nil
}

// checkRequiredTools verifies every skill requirement against the agent's
// resolved tool set. Requirements match by qualified id, bare item name or
// bundle name.
func (f *Factory) checkRequiredTools(decl *core.AgentDeclaration, skills []core.SkillDefinition, tools map[string]core.ResolvedTool) error {
	if len(skills) == 0 {
		return nil
	}

	available := make(map[string]struct{}, len(tools)*3)
	for id, tool := range tools {
		available[id] = struct{}{}
		available[tool.Item.Name] = struct{}{}
		available[tool.Bundle] = struct{}{}
	}

	for _, skill := range skills {
		for _, required := range skill.RequiredTools {
			if _, ok := available[required]; !ok {
				return &core.ResolutionError{
					Agent: decl.Name,
					Kind:  "tool",
					Ref:   required,
					Skill: skill.Name,
				}
			}
		}
	}

	return nil
}

// composeInstruction picks the instance instruction: the first non-empty of
// the declared system prompt, the prompt file content, and the composed skill
// documents.
func (f *Factory) composeInstruction(decl *core.AgentDeclaration, skills []core.SkillDefinition) string {
	if s := strings.TrimSpace(decl.SystemPrompt); s != "" {
		return s
	}
	if s := strings.TrimSpace(decl.PromptText); s != "" {
		return s
	}
	return registry.ComposeInstructions(skills)
}
