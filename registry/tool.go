package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
)

// ToolRegistry holds tool bundles and the boot-time resolution of bare item
// names to winning bundles. After Build it is read-only; lookups require no
// locking beyond the guard that enforces the build-once discipline.
type ToolRegistry struct {
	mu      sync.Mutex
	bundles map[string]core.ToolBundle
	order   []string // registration order, determines last-wins
	built   bool

	// bareIndex maps a bare item name to the resolved tool of the bundle
	// that won the name. Populated by Build.
	bareIndex map[string]core.ResolvedTool

	strict bool
	logger logging.Logger
}

// ToolRegistryOptions configures a ToolRegistry.
type ToolRegistryOptions struct {
	// Strict makes any cross-bundle item name collision a build failure
	// instead of last-wins with a warning. Fail-fast at boot, not at use.
	Strict bool
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(optFns ...func(o *ToolRegistryOptions)) *ToolRegistry {
	opts := ToolRegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ToolRegistry{
		bundles:   make(map[string]core.ToolBundle),
		bareIndex: make(map[string]core.ResolvedTool),
		strict:    opts.Strict,
		logger:    opts.Logger,
	}
}

// Register adds a bundle. Registering a bundle name twice replaces the
// previous bundle with a warning. Duplicate item names inside a single bundle
// are a manifest defect and rejected outright.
func (r *ToolRegistry) Register(bundle core.ToolBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		return fmt.Errorf("tool registry is sealed: cannot register bundle %q after build", bundle.Name)
	}

	seen := make(map[string]struct{}, len(bundle.Items))
	for _, item := range bundle.Items {
		if _, dup := seen[item.Name]; dup {
			return &core.ResolutionError{
				Kind:  "tool",
				Ref:   core.QualifiedToolID(bundle.Name, item.Name),
				Cause: fmt.Errorf("duplicate item name %q within bundle %q", item.Name, bundle.Name),
			}
		}
		seen[item.Name] = struct{}{}
	}

	if _, exists := r.bundles[bundle.Name]; exists {
		r.logger.Warn("tool bundle override", "bundle", bundle.Name)
		// Keep the original position in the order so last-wins stays tied to
		// first registration of the name, matching scan order semantics.
	} else {
		r.order = append(r.order, bundle.Name)
	}
	r.bundles[bundle.Name] = bundle

	r.logger.Debug("tool bundle registered", "bundle", bundle.Name, "items", len(bundle.Items))
	return nil
}

// Build resolves cross-bundle name conflicts and seals the registry. In
// strict mode any collision fails the build before a single agent is created;
// otherwise the later registered bundle wins and a warning is emitted per
// collision. Build is idempotent.
func (r *ToolRegistry) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		return nil
	}

	index := make(map[string]core.ResolvedTool)
	for _, bundleName := range r.order {
		bundle := r.bundles[bundleName]
		for _, item := range bundle.Items {
			if existing, collision := index[item.Name]; collision {
				if r.strict {
					return &core.ResolutionError{
						Kind: "conflict",
						Ref:  item.Name,
						Cause: fmt.Errorf("bundles %q and %q both define %q",
							existing.Bundle, bundle.Name, item.Name),
					}
				}
				r.logger.Warn("tool name conflict, last registration wins",
					"tool", item.Name, "existing_bundle", existing.Bundle, "new_bundle", bundle.Name)
			}
			index[item.Name] = core.ResolvedTool{
				ID:     core.QualifiedToolID(bundle.Name, item.Name),
				Bundle: bundle.Name,
				Item:   item,
			}
		}
	}

	r.bareIndex = index
	r.built = true
	return nil
}

// Built reports whether conflict resolution has run.
func (r *ToolRegistry) Built() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.built
}

// Bundle returns a registered bundle by name.
func (r *ToolRegistry) Bundle(name string) (core.ToolBundle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[name]
	return b, ok
}

// Resolve maps a single tool reference to the resolved tools it denotes.
// Qualified and bundle references bypass the bare index entirely; only bare
// item names go through conflict resolution results.
func (r *ToolRegistry) Resolve(ref core.ToolRef) ([]core.ResolvedTool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.built {
		return nil, fmt.Errorf("tool registry not built: call Build before resolving references")
	}

	switch {
	case ref.Bundle != "" && ref.Name != "":
		bundle, ok := r.bundles[ref.Bundle]
		if !ok {
			return nil, &core.ResolutionError{Kind: "tool", Ref: core.QualifiedToolID(ref.Bundle, ref.Name)}
		}
		for _, item := range bundle.Items {
			if item.Name == ref.Name {
				return []core.ResolvedTool{{
					ID:     core.QualifiedToolID(bundle.Name, item.Name),
					Bundle: bundle.Name,
					Item:   item,
				}}, nil
			}
		}
		return nil, &core.ResolutionError{Kind: "tool", Ref: core.QualifiedToolID(ref.Bundle, ref.Name)}

	case ref.Bundle != "":
		bundle, ok := r.bundles[ref.Bundle]
		if !ok {
			return nil, &core.ResolutionError{Kind: "tool", Ref: ref.Bundle}
		}
		resolved := make([]core.ResolvedTool, 0, len(bundle.Items))
		for _, item := range bundle.Items {
			resolved = append(resolved, core.ResolvedTool{
				ID:     core.QualifiedToolID(bundle.Name, item.Name),
				Bundle: bundle.Name,
				Item:   item,
			})
		}
		return resolved, nil

	case ref.Name != "":
		tool, ok := r.bareIndex[ref.Name]
		if !ok {
			return nil, &core.ResolutionError{Kind: "tool", Ref: ref.Name}
		}
		return []core.ResolvedTool{tool}, nil

	default:
		return nil, &core.ResolutionError{Kind: "tool", Ref: "", Cause: fmt.Errorf("empty tool reference")}
	}
}

// BundleNames returns the registered bundle names in registration order.
func (r *ToolRegistry) BundleNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// TotalToolCount returns the number of items across all bundles.
func (r *ToolRegistry) TotalToolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, b := range r.bundles {
		total += len(b.Items)
	}
	return total
}

// BareNames returns the bare item names known after build, sorted for
// deterministic diagnostics.
func (r *ToolRegistry) BareNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.bareIndex))
	for name := range r.bareIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
