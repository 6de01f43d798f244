// Package lifecycle owns the agent instance state machine. The Manager is the
// only component allowed to move an instance between statuses: it validates
// every transition against a fixed table, appends an event to the per-instance
// history, and notifies subscribers synchronously.
//
// It also runs health probes against runtime adapters, marking failing
// instances DEGRADED and recovering them to IDLE, and drives graceful
// shutdown: executing instances are drained before their adapters are closed.
package lifecycle
