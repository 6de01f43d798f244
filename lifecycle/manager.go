package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/metrics"
)

// validTransitions is the authoritative transition table. Absence of an edge
// means the transition is rejected with InvalidTransitionError.
var validTransitions = map[core.AgentStatus]map[core.AgentStatus]bool{
	core.StatusRegistered: {
		core.StatusInitializing: true,
		core.StatusDegraded:     true,
		core.StatusShutdown:     true,
	},
	core.StatusInitializing: {
		core.StatusIdle:     true,
		core.StatusDegraded: true,
		core.StatusShutdown: true,
	},
	core.StatusIdle: {
		core.StatusExecuting: true,
		core.StatusDegraded:  true,
		core.StatusShutdown:  true,
	},
	core.StatusExecuting: {
		core.StatusIdle:     true,
		core.StatusDegraded: true,
		core.StatusShutdown: true,
	},
	core.StatusDegraded: {
		core.StatusIdle:     true,
		core.StatusShutdown: true,
	},
	core.StatusShutdown: {},
}

// CanTransition reports whether the table contains the from -> to edge.
func CanTransition(from, to core.AgentStatus) bool {
	return validTransitions[from][to]
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Logger  logging.Logger
	Metrics *metrics.Collector

	// MaxEvents caps the per-instance transition history; older events are
	// discarded first.
	MaxEvents int

	// HealthCheckTimeout bounds a single adapter probe.
	HealthCheckTimeout time.Duration

	// DrainPollInterval is how often graceful shutdown re-checks executing
	// instances while waiting for them to settle.
	DrainPollInterval time.Duration
}

// Manager tracks agent instances and owns all status mutations.
type Manager struct {
	opts ManagerOptions

	mu        sync.RWMutex
	instances map[string]*core.AgentInstance
	order     []string // registration order, used for deterministic shutdown
	events    map[string][]Event
	handlers  []Handler
	draining  bool
}

// NewManager creates a lifecycle manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Logger:             logging.NoOpLogger{},
		MaxEvents:          500,
		HealthCheckTimeout: 5 * time.Second,
		DrainPollInterval:  100 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Manager{
		opts:      opts,
		instances: make(map[string]*core.AgentInstance),
		events:    make(map[string][]Event),
	}
}

// Register starts tracking an instance in its current status. Registering the
// same instance twice is an error.
func (m *Manager) Register(inst *core.AgentInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.draining {
		return fmt.Errorf("lifecycle manager is draining, instance %s not accepted", inst.ID)
	}
	if _, ok := m.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s already registered", inst.ID)
	}

	m.instances[inst.ID] = inst
	m.order = append(m.order, inst.ID)
	m.opts.Metrics.SetTrackedInstances(len(m.instances))

	m.opts.Logger.Debug("instance registered", "instance_id", inst.ID, "agent", inst.Name(), "status", string(inst.Status()))

	return nil
}

// Get returns a tracked instance by id.
func (m *Manager) Get(id string) (*core.AgentInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// List returns all tracked instances in registration order.
func (m *Manager) List() []*core.AgentInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.AgentInstance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id])
	}
	return out
}

// Draining reports whether graceful shutdown has begun. Once true, executors
// must refuse new work.
func (m *Manager) Draining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draining
}

// Subscribe registers a handler for all future transition events.
func (m *Manager) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Transition moves an instance from one status to another. The edge must be
// in the transition table and the instance must actually be in the from
// status; otherwise state is left untouched and an InvalidTransitionError
// carrying the actual current status is returned.
func (m *Manager) Transition(id string, from, to core.AgentStatus) error {
	return m.transition(id, from, to, "")
}

// TransitionWithReason is Transition with a free-form reason recorded on the
// event, used for health-probe and shutdown provenance.
func (m *Manager) TransitionWithReason(id string, from, to core.AgentStatus, reason string) error {
	return m.transition(id, from, to, reason)
}

func (m *Manager) transition(id string, from, to core.AgentStatus, reason string) error {
	m.mu.Lock()

	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("instance %s is not tracked", id)
	}

	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.opts.Metrics.ObserveTransitionReject()
		return &core.InvalidTransitionError{InstanceID: id, From: from, To: to, Current: inst.Status()}
	}

	// The swap and its history append share one critical section so the
	// per-instance log order always matches the order of status changes.
	current, swapped := inst.CompareAndSwapStatus(from, to)
	if !swapped {
		m.mu.Unlock()
		m.opts.Metrics.ObserveTransitionReject()
		return &core.InvalidTransitionError{InstanceID: id, From: from, To: to, Current: current}
	}

	event := Event{
		InstanceID: id,
		Agent:      inst.Name(),
		From:       from,
		To:         to,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
	m.recordEventLocked(event)
	m.mu.Unlock()

	m.opts.Metrics.ObserveTransition(string(from), string(to))
	m.opts.Logger.Info("status transition", "instance_id", id, "agent", inst.Name(), "from", string(from), "to", string(to))

	m.notify(event)

	return nil
}

// recordEventLocked appends to the instance history; m.mu must be held.
func (m *Manager) recordEventLocked(event Event) {
	history := append(m.events[event.InstanceID], event)
	if excess := len(history) - m.opts.MaxEvents; excess > 0 {
		history = history[excess:]
	}
	m.events[event.InstanceID] = history
}

func (m *Manager) notify(event Event) {
	m.mu.RLock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, h := range handlers {
		m.safeInvoke(h, event)
	}
}

func (m *Manager) safeInvoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.opts.Logger.Error("transition handler panicked", "instance_id", event.InstanceID, "panic", fmt.Sprint(r))
		}
	}()
	h(event)
}

// History returns a copy of the recorded transitions for an instance, oldest
// first.
func (m *Manager) History(id string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.events[id]
	out := make([]Event, len(history))
	copy(out, history)
	return out
}

// CheckHealth probes one instance. Adapters that do not implement
// core.HealthProber, and unmaterialized placeholders, are considered healthy.
// A failed probe degrades the instance; a successful probe recovers a
// DEGRADED instance back to IDLE. The probe error, if any, is returned.
func (m *Manager) CheckHealth(ctx context.Context, id string) error {
	m.mu.RLock()
	inst, ok := m.instances[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("instance %s is not tracked", id)
	}

	status := inst.Status()
	if status == core.StatusShutdown {
		return fmt.Errorf("instance %s is shut down", id)
	}

	prober, ok := inst.Adapter().(core.HealthProber)
	if !ok {
		m.opts.Metrics.ObserveHealthCheck(true)
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.HealthCheckTimeout)
	defer cancel()

	if err := prober.Ping(probeCtx); err != nil {
		m.opts.Metrics.ObserveHealthCheck(false)
		m.opts.Logger.Warn("health probe failed", "instance_id", id, "agent", inst.Name(), "error", err)

		// Re-read the status right before degrading; the instance may have
		// moved (e.g. finished executing) since the probe started.
		if current := inst.Status(); current != core.StatusDegraded && current != core.StatusShutdown {
			if terr := m.transition(id, current, core.StatusDegraded, fmt.Sprintf("health probe failed: %v", err)); terr != nil {
				m.opts.Logger.Warn("degrade transition rejected", "instance_id", id, "error", terr)
			}
		}

		return err
	}

	m.opts.Metrics.ObserveHealthCheck(true)

	if inst.Status() == core.StatusDegraded {
		if terr := m.transition(id, core.StatusDegraded, core.StatusIdle, "health probe recovered"); terr != nil {
			m.opts.Logger.Warn("recovery transition rejected", "instance_id", id, "error", terr)
		}
	}

	return nil
}

// CheckAllHealth probes every tracked, non-terminal instance concurrently and
// returns per-instance probe errors keyed by instance id. Healthy instances
// have no entry.
func (m *Manager) CheckAllHealth(ctx context.Context) map[string]error {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
		failures = make(map[string]error)
	)

	for _, id := range ids {
		inst, ok := m.Get(id)
		if !ok || inst.Status() == core.StatusShutdown {
			continue
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.CheckHealth(ctx, id); err != nil {
				resultMu.Lock()
				failures[id] = err
				resultMu.Unlock()
			}
		}(id)
	}

	wg.Wait()

	return failures
}

// ShutdownInstance transitions one instance to SHUTDOWN from whatever
// non-terminal status it is in and closes its runtime adapter. Shutting down
// an already terminal instance is a no-op.
func (m *Manager) ShutdownInstance(ctx context.Context, id string) error {
	m.mu.RLock()
	inst, ok := m.instances[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("instance %s is not tracked", id)
	}

	for {
		current := inst.Status()
		if current == core.StatusShutdown {
			return nil
		}
		if err := m.transition(id, current, core.StatusShutdown, "shutdown"); err != nil {
			// Lost a race with a concurrent transition; re-read and retry.
			var invalid *core.InvalidTransitionError
			if errors.As(err, &invalid) && invalid.Current != current {
				continue
			}
			return err
		}
		break
	}

	if adapter := inst.Adapter(); adapter != nil {
		if err := adapter.Shutdown(ctx); err != nil {
			m.opts.Logger.Warn("adapter shutdown failed", "instance_id", id, "agent", inst.Name(), "error", err)
			return err
		}
	}

	return nil
}

// GracefulShutdown drains and shuts down every tracked instance. It first
// marks the manager draining so no new work is accepted, shuts down all
// instances that are not currently EXECUTING in registration order, then
// waits up to timeout for the rest to finish before forcing them down.
// Calling it again after completion is a no-op.
func (m *Manager) GracefulShutdown(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	m.draining = true
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	m.opts.Logger.Info("graceful shutdown started", "instances", len(ids))

	var pending []string
	var firstErr error

	for _, id := range ids {
		inst, ok := m.Get(id)
		if !ok {
			continue
		}
		if inst.Status() == core.StatusExecuting {
			pending = append(pending, id)
			continue
		}
		if err := m.ShutdownInstance(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if len(pending) > 0 {
		pending = m.drainExecuting(ctx, pending, timeout)
	}

	// Whatever is still executing at the deadline goes down hard.
	for _, id := range pending {
		m.opts.Logger.Warn("forcing shutdown of executing instance", "instance_id", id)
		if err := m.ShutdownInstance(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.opts.Logger.Info("graceful shutdown complete")

	return firstErr
}

// drainExecuting polls the pending instances until they leave EXECUTING or
// the timeout elapses, shutting each one down as it settles. It returns the
// ids still executing at the deadline.
func (m *Manager) drainExecuting(ctx context.Context, pending []string, timeout time.Duration) []string {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(m.opts.DrainPollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return pending
		case <-deadline.C:
			return pending
		case <-ticker.C:
		}

		remaining := pending[:0]
		for _, id := range pending {
			inst, ok := m.Get(id)
			if !ok {
				continue
			}
			if inst.Status() == core.StatusExecuting {
				remaining = append(remaining, id)
				continue
			}
			if err := m.ShutdownInstance(ctx, id); err != nil {
				m.opts.Logger.Warn("shutdown after drain failed", "instance_id", id, "error", err)
			}
		}
		pending = remaining
	}

	return pending
}
