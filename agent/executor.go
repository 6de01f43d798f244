package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/lifecycle"
	"github.com/hupe1980/agentforge/logging"
)

// Call is one prompt execution against a named agent. ScopeKey selects the
// instance for task and session scoped agents (the workflow run id or the
// caller's session id); singleton agents ignore it.
type Call struct {
	Agent    string
	Prompt   string
	ScopeKey string
}

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor drives prompts through agent instances. It owns instance
// acquisition per scope, serializes executions per instance so the
// IDLE -> EXECUTING -> IDLE cycle always holds, and wraps adapter failures
// in RuntimeError.
type Executor struct {
	factory *Factory
	manager *lifecycle.Manager
	logger  logging.Logger

	mu           sync.Mutex
	declarations map[string]*core.AgentDeclaration
	singletons   map[string]*core.AgentInstance // agent name -> instance
	scoped       map[string]*core.AgentInstance // scopeKey + "\x00" + agent name -> instance
	scopeIndex   map[string][]string            // scopeKey -> scoped cache keys
	execLocks    map[string]*sync.Mutex         // instance id -> execution lock
}

// NewExecutor creates an executor over a factory and the lifecycle manager.
func NewExecutor(factory *Factory, manager *lifecycle.Manager, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		factory:      factory,
		manager:      manager,
		logger:       opts.Logger,
		declarations: make(map[string]*core.AgentDeclaration),
		singletons:   make(map[string]*core.AgentInstance),
		scoped:       make(map[string]*core.AgentInstance),
		scopeIndex:   make(map[string][]string),
		execLocks:    make(map[string]*sync.Mutex),
	}
}

// Register makes a declaration executable by name. Singleton agents are
// instantiated immediately (as a lazy placeholder when declared lazy); task
// and session scoped agents are instantiated per scope key on first call.
// The returned instance is nil for scoped agents.
func (e *Executor) Register(decl *core.AgentDeclaration) (*core.AgentInstance, error) {
	e.mu.Lock()
	if _, exists := e.declarations[decl.Name]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("agent %q already registered with executor", decl.Name)
	}
	e.declarations[decl.Name] = decl
	e.mu.Unlock()

	if decl.EffectiveScope() != core.ScopeSingleton {
		return nil, nil
	}

	inst, err := e.factory.Create(decl)
	if err != nil {
		e.mu.Lock()
		delete(e.declarations, decl.Name)
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	e.singletons[decl.Name] = inst
	e.mu.Unlock()

	return inst, nil
}

// Declaration returns a registered declaration by agent name.
func (e *Executor) Declaration(name string) (*core.AgentDeclaration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	decl, ok := e.declarations[name]
	return decl, ok
}

// Execute runs one prompt to completion on the named agent. A non-nil result
// may accompany an error when the adapter reported cost for a failed attempt;
// callers accounting for spend must consume it either way.
func (e *Executor) Execute(ctx context.Context, call Call) (*core.ExecutionResult, error) {
	if e.manager.Draining() {
		return nil, fmt.Errorf("executor is draining: call to agent %q refused", call.Agent)
	}

	inst, err := e.acquire(call)
	if err != nil {
		return nil, err
	}

	// One execution at a time per instance. Concurrent callers of the same
	// singleton queue here instead of racing the status machine.
	lock := e.execLock(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.ready(ctx, inst); err != nil {
		return nil, err
	}

	if err := e.manager.Transition(inst.ID, core.StatusIdle, core.StatusExecuting); err != nil {
		return nil, err
	}

	req := core.Request{
		Prompt:      call.Prompt,
		Instruction: inst.Instruction(),
		Limits:      inst.Declaration.EffectiveLimits(),
	}

	start := time.Now()
	result, execErr := inst.Adapter().Execute(ctx, req)
	elapsed := time.Since(start)

	var cost float64
	if result != nil {
		cost = result.CostUSD
	}
	inst.RecordExecution(cost, elapsed)

	if err := e.manager.Transition(inst.ID, core.StatusExecuting, core.StatusIdle); err != nil {
		// Shutdown raced the execution; the result is still valid.
		e.logger.Warn("post-execution transition rejected", "instance_id", inst.ID, "error", err)
	}

	if execErr != nil {
		e.logger.Error("execution failed", "agent", call.Agent, "instance_id", inst.ID, "cost_usd", cost, "error", execErr)
		return result, &core.RuntimeError{Agent: call.Agent, Err: execErr}
	}

	e.logger.Debug("execution completed", "agent", call.Agent, "instance_id", inst.ID, "cost_usd", cost, "duration", elapsed)

	return result, nil
}

// acquire returns the instance that should serve this call, creating scoped
// instances on first use.
func (e *Executor) acquire(call Call) (*core.AgentInstance, error) {
	e.mu.Lock()
	decl, ok := e.declarations[call.Agent]
	e.mu.Unlock()

	if !ok {
		return nil, &core.ResolutionError{Kind: "agent", Ref: call.Agent}
	}

	if decl.EffectiveScope() == core.ScopeSingleton {
		e.mu.Lock()
		inst := e.singletons[call.Agent]
		e.mu.Unlock()
		if inst == nil {
			return nil, fmt.Errorf("agent %q has no singleton instance", call.Agent)
		}
		return inst, nil
	}

	if call.ScopeKey == "" {
		return nil, fmt.Errorf("agent %q is %s scoped: a scope key is required", call.Agent, decl.EffectiveScope())
	}

	key := call.ScopeKey + "\x00" + call.Agent

	e.mu.Lock()
	if inst, ok := e.scoped[key]; ok {
		e.mu.Unlock()
		return inst, nil
	}
	e.mu.Unlock()

	inst, err := e.factory.Create(decl)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if existing, ok := e.scoped[key]; ok {
		// Lost the creation race; keep the winner and discard ours.
		e.mu.Unlock()
		if serr := e.manager.ShutdownInstance(context.Background(), inst.ID); serr != nil {
			e.logger.Warn("discarding duplicate scoped instance failed", "instance_id", inst.ID, "error", serr)
		}
		return existing, nil
	}
	e.scoped[key] = inst
	e.scopeIndex[call.ScopeKey] = append(e.scopeIndex[call.ScopeKey], key)
	e.mu.Unlock()

	e.logger.Debug("scoped instance created", "agent", call.Agent, "scope_key", call.ScopeKey, "instance_id", inst.ID)

	return inst, nil
}

// ready brings an instance to IDLE or fails: placeholders are materialized,
// degraded instances get one recovery probe.
func (e *Executor) ready(ctx context.Context, inst *core.AgentInstance) error {
	switch status := inst.Status(); status {
	case core.StatusIdle:
		return nil

	case core.StatusRegistered:
		return e.factory.Materialize(inst)

	case core.StatusDegraded:
		if err := e.manager.CheckHealth(ctx, inst.ID); err != nil {
			return fmt.Errorf("agent %q instance %s is degraded: %w", inst.Name(), inst.ID, err)
		}
		if current := inst.Status(); current != core.StatusIdle {
			return fmt.Errorf("agent %q instance %s did not recover (status %s)", inst.Name(), inst.ID, current)
		}
		return nil

	case core.StatusShutdown:
		return fmt.Errorf("agent %q instance %s is shut down", inst.Name(), inst.ID)

	default:
		return fmt.Errorf("agent %q instance %s is busy (status %s)", inst.Name(), inst.ID, status)
	}
}

// ReleaseScope shuts down every instance created under a scope key. Workflow
// runs call it when they settle; session owners call it when the session
// ends. Releasing an unknown key is a no-op.
func (e *Executor) ReleaseScope(ctx context.Context, scopeKey string) error {
	e.mu.Lock()
	keys := e.scopeIndex[scopeKey]
	delete(e.scopeIndex, scopeKey)
	instances := make([]*core.AgentInstance, 0, len(keys))
	for _, key := range keys {
		if inst, ok := e.scoped[key]; ok {
			instances = append(instances, inst)
			delete(e.scoped, key)
		}
	}
	e.mu.Unlock()

	var firstErr error
	for _, inst := range instances {
		if err := e.manager.ShutdownInstance(ctx, inst.ID); err != nil && firstErr == nil {
			firstErr = err
		}
		e.mu.Lock()
		delete(e.execLocks, inst.ID)
		e.mu.Unlock()
	}

	if len(instances) > 0 {
		e.logger.Debug("scope released", "scope_key", scopeKey, "instances", len(instances))
	}

	return firstErr
}

func (e *Executor) execLock(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.execLocks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		e.execLocks[instanceID] = lock
	}
	return lock
}
