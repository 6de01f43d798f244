package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
)

// SkillRegistry holds skill definitions and composes their instruction
// documents for injection into agent instances. Like the tool registry it is
// populated during boot and read-only afterwards.
type SkillRegistry struct {
	mu     sync.Mutex
	skills map[string]core.SkillDefinition
	logger logging.Logger
}

// SkillRegistryOptions configures a SkillRegistry.
type SkillRegistryOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewSkillRegistry creates an empty skill registry.
func NewSkillRegistry(optFns ...func(o *SkillRegistryOptions)) *SkillRegistry {
	opts := SkillRegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &SkillRegistry{
		skills: make(map[string]core.SkillDefinition),
		logger: opts.Logger,
	}
}

// Register adds a skill definition. Re-registering a name replaces the
// previous definition with a warning.
func (r *SkillRegistry) Register(def core.SkillDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[def.Name]; exists {
		r.logger.Warn("skill override", "skill", def.Name)
	}
	r.skills[def.Name] = def
	r.logger.Debug("skill registered", "skill", def.Name)
}

// Get returns a skill definition by name.
func (r *SkillRegistry) Get(name string) (core.SkillDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.skills[name]
	if !ok {
		return core.SkillDefinition{}, &core.ResolutionError{Kind: "skill", Ref: name}
	}
	return def, nil
}

// Has reports whether a skill is registered.
func (r *SkillRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.skills[name]
	return ok
}

// ResolveRefs fetches the definitions for a list of skill references in
// declaration order, silently skipping duplicate references. The returned
// slice preserves first-occurrence order.
func (r *SkillRegistry) ResolveRefs(refs []core.SkillRef) ([]core.SkillDefinition, error) {
	seen := make(map[string]struct{}, len(refs))
	defs := make([]core.SkillDefinition, 0, len(refs))

	for _, ref := range refs {
		if _, dup := seen[ref.Name]; dup {
			r.logger.Debug("duplicate skill reference skipped", "skill", ref.Name)
			continue
		}
		seen[ref.Name] = struct{}{}

		def, err := r.Get(ref.Name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// ComposeInstructions concatenates the instruction documents of the given
// skills, each introduced by a section header, preserving order.
func ComposeInstructions(defs []core.SkillDefinition) string {
	if len(defs) == 0 {
		return ""
	}

	var b strings.Builder
	for i, def := range defs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "---\n## Skill: %s\n\n%s", def.Name, strings.TrimSpace(def.Instruction))
	}
	return b.String()
}

// Names returns the registered skill names.
func (r *SkillRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	return names
}
