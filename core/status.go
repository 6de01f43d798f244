package core

// AgentStatus enumerates the lifecycle states of an agent instance. It is the
// single source of truth for instance health and is mutated exclusively
// through the lifecycle manager's transition function.
type AgentStatus string

const (
	// StatusRegistered marks a lazy placeholder whose tool/skill/runtime
	// resolution is deferred until first use.
	StatusRegistered AgentStatus = "REGISTERED"
	// StatusInitializing marks an instance whose resolution is in progress.
	StatusInitializing AgentStatus = "INITIALIZING"
	// StatusIdle marks a fully resolved instance waiting for work.
	StatusIdle AgentStatus = "IDLE"
	// StatusExecuting marks an instance currently running a prompt.
	StatusExecuting AgentStatus = "EXECUTING"
	// StatusDegraded marks an instance whose health probe failed; it may
	// recover to IDLE or be shut down.
	StatusDegraded AgentStatus = "DEGRADED"
	// StatusShutdown is terminal.
	StatusShutdown AgentStatus = "SHUTDOWN"
)

// Terminal reports whether no further transitions are possible.
func (s AgentStatus) Terminal() bool { return s == StatusShutdown }
