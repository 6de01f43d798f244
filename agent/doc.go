// Package agent turns validated agent declarations into live, runnable
// instances. The Factory performs dependency injection: it resolves tool
// references against the tool registry, composes skill instructions, checks
// skill tool requirements, and binds a runtime adapter from the runtime
// registry. The Executor then drives prompts through materialized instances
// under the lifecycle manager's state machine, honoring scopes (singleton,
// task, session) and per-agent execution limits.
package agent
