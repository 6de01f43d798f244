// Package agentforge provides a high-level façade over the registries, the
// agent factory, the lifecycle manager and the workflow engine, enabling
// declarative construction of LLM agent systems. Most applications interact
// with this package by:
//  1. Creating a Forge via New() (optionally supplying config, logger, metrics)
//  2. Registering tool bundles, skills and runtime factories
//  3. Building the registries and creating agents from declarations
//  4. Executing single prompts (ExecuteAgent) or whole workflows (RunWorkflow)
//
// The façade delegates orchestration to the workflow engine while keeping
// setup and usage ergonomics concise. Defaults are safe for local development
// and testing; production deployments typically supply real runtime adapters,
// a structured logger and a Prometheus registerer.
package agentforge

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentforge/agent"
	"github.com/hupe1980/agentforge/config"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/lifecycle"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/metrics"
	"github.com/hupe1980/agentforge/registry"
	"github.com/hupe1980/agentforge/workflow"
)

// Options configures a Forge.
type Options struct {
	// Config carries the engine tunables; defaults to config.Default().
	Config *config.Config

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Metrics is optional Prometheus instrumentation; nil disables it.
	Metrics *metrics.Collector
}

// Forge is the high-level façade aggregating registries, factory, lifecycle
// manager and workflow engine.
type Forge struct {
	opts Options

	tools    *registry.ToolRegistry
	skills   *registry.SkillRegistry
	runtimes *registry.RuntimeRegistry
	manager  *lifecycle.Manager
	factory  *agent.Factory
	executor *agent.Executor
	engine   *workflow.Engine
}

// New creates a Forge with optional overrides.
func New(optFns ...func(o *Options)) *Forge {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	cfg := opts.Config

	tools := registry.NewToolRegistry(func(o *registry.ToolRegistryOptions) {
		o.Strict = cfg.StrictTools
		o.Logger = opts.Logger
	})
	skills := registry.NewSkillRegistry(func(o *registry.SkillRegistryOptions) {
		o.Logger = opts.Logger
	})
	runtimes := registry.NewRuntimeRegistry(func(o *registry.RuntimeRegistryOptions) {
		o.Logger = opts.Logger
	})

	manager := lifecycle.NewManager(func(o *lifecycle.ManagerOptions) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.MaxEvents = cfg.MaxLifecycleEvents
		o.HealthCheckTimeout = cfg.HealthCheckTimeout
		o.DrainPollInterval = cfg.DrainPollInterval
	})

	factory := agent.NewFactory(tools, skills, runtimes, manager, func(o *agent.FactoryOptions) {
		o.Logger = opts.Logger
	})

	executor := agent.NewExecutor(factory, manager, func(o *agent.ExecutorOptions) {
		o.Logger = opts.Logger
	})

	engine := workflow.NewEngine(&executorInvoker{executor: executor}, func(o *workflow.EngineOptions) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.MaxParallelSteps = cfg.MaxParallelSteps
		o.DefaultRetryCount = cfg.DefaultRetryCount
	})

	return &Forge{
		opts:     opts,
		tools:    tools,
		skills:   skills,
		runtimes: runtimes,
		manager:  manager,
		factory:  factory,
		executor: executor,
		engine:   engine,
	}
}

// RegisterToolBundle adds a tool bundle to the tool registry.
func (f *Forge) RegisterToolBundle(bundle core.ToolBundle) error {
	return f.tools.Register(bundle)
}

// RegisterSkill adds a skill definition to the skill registry.
func (f *Forge) RegisterSkill(def core.SkillDefinition) {
	f.skills.Register(def)
}

// RegisterRuntime maps a runtime name to an adapter factory.
func (f *Forge) RegisterRuntime(name string, factory core.RuntimeFactory) {
	f.runtimes.Register(name, factory)
}

// BuildRegistries seals the tool registry, resolving cross-bundle name
// conflicts. Must run before any agent is created.
func (f *Forge) BuildRegistries() error {
	return f.tools.Build()
}

// CreateAgents registers every declaration with the executor, instantiating
// singleton agents immediately. Failures are per-agent: one bad declaration
// never blocks its siblings. Registries are built on first use.
func (f *Forge) CreateAgents(decls ...*core.AgentDeclaration) []agent.CreateResult {
	results := make([]agent.CreateResult, 0, len(decls))

	if err := f.tools.Build(); err != nil {
		for _, decl := range decls {
			results = append(results, agent.CreateResult{Name: decl.Name, Err: err})
		}
		return results
	}

	for _, decl := range decls {
		inst, err := f.executor.Register(decl)
		results = append(results, agent.CreateResult{Name: decl.Name, Instance: inst, Err: err})
	}
	return results
}

// ExecuteAgent runs a single prompt against a named agent. Session-scoped
// agents require a session key; pass it via ExecuteAgentInSession.
func (f *Forge) ExecuteAgent(ctx context.Context, agentName, prompt string) (*core.ExecutionResult, error) {
	return f.executor.Execute(ctx, agent.Call{Agent: agentName, Prompt: prompt})
}

// ExecuteAgentInSession runs a prompt against a session-scoped agent. All
// calls sharing a session key share the instance until ReleaseSession.
func (f *Forge) ExecuteAgentInSession(ctx context.Context, agentName, prompt, sessionKey string) (*core.ExecutionResult, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key must not be empty")
	}
	return f.executor.Execute(ctx, agent.Call{Agent: agentName, Prompt: prompt, ScopeKey: sessionKey})
}

// ReleaseSession shuts down every agent instance bound to a session key.
func (f *Forge) ReleaseSession(ctx context.Context, sessionKey string) error {
	return f.executor.ReleaseScope(ctx, sessionKey)
}

// RunWorkflow executes a workflow declaration to completion and returns its
// summary. The summary is valid even when the returned error is non-nil.
func (f *Forge) RunWorkflow(ctx context.Context, decl *core.WorkflowDeclaration) (workflow.RunSummary, error) {
	if err := f.tools.Build(); err != nil {
		return workflow.RunSummary{}, err
	}
	return f.engine.Execute(ctx, decl)
}

// StartWorkflow begins executing a workflow asynchronously.
func (f *Forge) StartWorkflow(ctx context.Context, decl *core.WorkflowDeclaration) (*workflow.Run, error) {
	if err := f.tools.Build(); err != nil {
		return nil, err
	}
	return f.engine.Start(ctx, decl)
}

// CancelRun requests cooperative cancellation of a running workflow.
func (f *Forge) CancelRun(runID string) error {
	return f.engine.Cancel(runID)
}

// RunStatus returns the point-in-time summary of a workflow run.
func (f *Forge) RunStatus(runID string) (workflow.RunSummary, error) {
	return f.engine.Summary(runID)
}

// Instances returns the operator-facing view of every tracked agent instance
// in registration order.
func (f *Forge) Instances() []core.InstanceSummary {
	tracked := f.manager.List()
	summaries := make([]core.InstanceSummary, 0, len(tracked))
	for _, inst := range tracked {
		summaries = append(summaries, inst.Summary())
	}
	return summaries
}

// History returns the recorded lifecycle transitions of an instance.
func (f *Forge) History(instanceID string) []lifecycle.Event {
	return f.manager.History(instanceID)
}

// SubscribeTransitions registers a handler for lifecycle transition events.
func (f *Forge) SubscribeTransitions(h lifecycle.Handler) {
	f.manager.Subscribe(h)
}

// CheckAllHealth probes every live instance concurrently and returns probe
// errors keyed by instance id.
func (f *Forge) CheckAllHealth(ctx context.Context) map[string]error {
	return f.manager.CheckAllHealth(ctx)
}

// Shutdown gracefully drains and shuts down all agent instances. Executing
// instances get up to the configured shutdown timeout to finish.
func (f *Forge) Shutdown(ctx context.Context) error {
	return f.manager.GracefulShutdown(ctx, f.opts.Config.ShutdownTimeout)
}

// executorInvoker adapts the agent executor to the workflow engine's Invoker.
type executorInvoker struct {
	executor *agent.Executor
}

func (i *executorInvoker) Invoke(ctx context.Context, inv workflow.Invocation) (*core.ExecutionResult, error) {
	return i.executor.Execute(ctx, agent.Call{
		Agent:    inv.Agent,
		Prompt:   inv.Prompt,
		ScopeKey: inv.ScopeKey,
	})
}

func (i *executorInvoker) ReleaseScope(ctx context.Context, scopeKey string) error {
	return i.executor.ReleaseScope(ctx, scopeKey)
}
