package registry

import (
	"sync"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
)

// RuntimeRegistry maps runtime names to adapter factories. It defines the
// closed set of concrete runtime variants selectable from an agent
// declaration; there is no open registration at execution time.
type RuntimeRegistry struct {
	mu        sync.Mutex
	factories map[string]core.RuntimeFactory
	logger    logging.Logger
}

// RuntimeRegistryOptions configures a RuntimeRegistry.
type RuntimeRegistryOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewRuntimeRegistry creates an empty runtime registry.
func NewRuntimeRegistry(optFns ...func(o *RuntimeRegistryOptions)) *RuntimeRegistry {
	opts := RuntimeRegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RuntimeRegistry{
		factories: make(map[string]core.RuntimeFactory),
		logger:    opts.Logger,
	}
}

// Register adds a runtime factory under a name. Re-registering a name
// replaces the previous factory with a warning.
func (r *RuntimeRegistry) Register(name string, factory core.RuntimeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		r.logger.Warn("runtime override", "runtime", name)
	}
	r.factories[name] = factory
	r.logger.Debug("runtime registered", "runtime", name)
}

// Get returns the factory for a runtime name. An unknown name is a
// resolution error; the factory surfaces it per agent.
func (r *RuntimeRegistry) Get(name string) (core.RuntimeFactory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, &core.ResolutionError{Kind: "runtime", Ref: name}
	}
	return factory, nil
}

// Has reports whether a runtime name is registered.
func (r *RuntimeRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered runtime names.
func (r *RuntimeRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
