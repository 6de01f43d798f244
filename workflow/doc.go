// Package workflow executes multi-step orchestrations over agents:
// sequential steps with output chaining, parallel fan-out with a concurrency
// cap, and conditional branching off a predicate agent's output. The engine
// enforces per-step retry policies and run-wide cost and time budgets, and
// supports cooperative cancellation: dispatched steps drain, nothing new
// starts.
package workflow
