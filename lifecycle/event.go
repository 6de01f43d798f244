package lifecycle

import (
	"time"

	"github.com/hupe1980/agentforge/core"
)

// Event records one accepted status transition.
type Event struct {
	InstanceID string           `json:"instance_id"`
	Agent      string           `json:"agent"`
	From       core.AgentStatus `json:"from"`
	To         core.AgentStatus `json:"to"`
	Reason     string           `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Handler receives transition events. Handlers run synchronously on the
// transitioning goroutine; a panicking or slow handler must not be able to
// corrupt manager state, so panics are recovered and logged.
type Handler func(Event)
