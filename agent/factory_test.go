package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/lifecycle"
	"github.com/hupe1980/agentforge/registry"
	"github.com/hupe1980/agentforge/runtime"
)

type fixture struct {
	tools    *registry.ToolRegistry
	skills   *registry.SkillRegistry
	runtimes *registry.RuntimeRegistry
	manager  *lifecycle.Manager
	factory  *Factory
	executor *Executor
	adapter  *runtime.MockAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tools := registry.NewToolRegistry()
	require.NoError(t, tools.Register(core.ToolBundle{
		Name: "fs",
		Items: []core.ToolItem{
			{Name: "read"},
			{Name: "write"},
		},
	}))
	require.NoError(t, tools.Register(core.ToolBundle{
		Name:  "web",
		Items: []core.ToolItem{{Name: "fetch"}},
	}))
	require.NoError(t, tools.Build())

	skills := registry.NewSkillRegistry()
	skills.Register(core.SkillDefinition{
		Name:          "file-editing",
		Instruction:   "Edit files carefully.",
		RequiredTools: []string{"fs/read", "fs/write"},
	})
	skills.Register(core.SkillDefinition{
		Name:        "summarize",
		Instruction: "Summarize the input.",
	})

	adapter := runtime.NewMockAdapter()
	runtimes := registry.NewRuntimeRegistry()
	runtimes.Register("mock", adapter.Factory())

	manager := lifecycle.NewManager()
	factory := NewFactory(tools, skills, runtimes, manager)
	executor := NewExecutor(factory, manager)

	return &fixture{
		tools:    tools,
		skills:   skills,
		runtimes: runtimes,
		manager:  manager,
		factory:  factory,
		executor: executor,
		adapter:  adapter,
	}
}

func TestFactory_Create_Eager(t *testing.T) {
	f := newFixture(t)

	inst, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "coder",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Bundle: "fs"}},
		Skills:  []core.SkillRef{{Name: "file-editing"}},
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusIdle, inst.Status())
	assert.NotNil(t, inst.Adapter())
	assert.ElementsMatch(t, []string{"fs/read", "fs/write"}, inst.ToolIDs())
	assert.Equal(t, "---\n## Skill: file-editing\n\nEdit files carefully.", inst.Instruction())
}

func TestFactory_Create_LazyPlaceholder(t *testing.T) {
	f := newFixture(t)

	inst, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "coder",
		Runtime: "mock",
		Lazy:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusRegistered, inst.Status())
	assert.Nil(t, inst.Adapter())
}

func TestFactory_Create_UnknownToolFailsAgent(t *testing.T) {
	f := newFixture(t)

	_, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "coder",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Bundle: "fs", Name: "delete"}},
	})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "coder", resolutionErr.Agent)
	assert.Equal(t, "fs/delete", resolutionErr.Ref)
	assert.Empty(t, f.manager.List(), "failed resolution must leave no tracked instance")
}

func TestFactory_Create_SkillRequiredToolMissing(t *testing.T) {
	f := newFixture(t)

	// file-editing requires fs/write, but only fs/read is injected.
	_, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "coder",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Bundle: "fs", Name: "read"}},
		Skills:  []core.SkillRef{{Name: "file-editing"}},
	})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "coder", resolutionErr.Agent)
	assert.Equal(t, "file-editing", resolutionErr.Skill)
	assert.Equal(t, "fs/write", resolutionErr.Ref)
}

func TestFactory_Create_SkillRequirementMatchesBareAndBundleNames(t *testing.T) {
	f := newFixture(t)
	f.skills.Register(core.SkillDefinition{
		Name:          "browsing",
		Instruction:   "Browse the web.",
		RequiredTools: []string{"fetch", "web"},
	})

	_, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "browser",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Bundle: "web"}},
		Skills:  []core.SkillRef{{Name: "browsing"}},
	})
	assert.NoError(t, err)
}

func TestFactory_Create_UnknownRuntime(t *testing.T) {
	f := newFixture(t)

	_, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "coder",
		Runtime: "claude_code",
	})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "runtime", resolutionErr.Kind)
	assert.Equal(t, "coder", resolutionErr.Agent)
}

func TestFactory_Create_RuntimeFactoryFailure(t *testing.T) {
	f := newFixture(t)
	f.runtimes.Register("flaky", func(map[string]any) (core.RuntimeAdapter, error) {
		return nil, errors.New("missing credentials")
	})

	_, err := f.factory.Create(&core.AgentDeclaration{Name: "coder", Runtime: "flaky"})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.ErrorContains(t, resolutionErr.Cause, "missing credentials")
}

func TestFactory_CreateAll_PartialFailure(t *testing.T) {
	f := newFixture(t)

	results := f.factory.CreateAll([]*core.AgentDeclaration{
		{Name: "good", Runtime: "mock"},
		{Name: "bad", Runtime: "mock", Tools: []core.ToolRef{{Name: "ghost"}}},
		{Name: "also-good", Runtime: "mock"},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Instance)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Instance)
	assert.NoError(t, results[2].Err)
}

func TestFactory_InstructionPrecedence(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name     string
		decl     core.AgentDeclaration
		expected string
	}{
		{
			name: "system prompt wins",
			decl: core.AgentDeclaration{
				Name: "a", Runtime: "mock",
				SystemPrompt: "from system",
				PromptText:   "from file",
				Skills:       []core.SkillRef{{Name: "summarize"}},
			},
			expected: "from system",
		},
		{
			name: "prompt text beats skills",
			decl: core.AgentDeclaration{
				Name: "b", Runtime: "mock",
				PromptText: "from file",
				Skills:     []core.SkillRef{{Name: "summarize"}},
			},
			expected: "from file",
		},
		{
			name: "skills compose when nothing else is set",
			decl: core.AgentDeclaration{
				Name: "c", Runtime: "mock",
				Skills: []core.SkillRef{{Name: "summarize"}},
			},
			expected: "---\n## Skill: summarize\n\nSummarize the input.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decl := tc.decl
			inst, err := f.factory.Create(&decl)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, inst.Instruction())
		})
	}
}

func TestFactory_Create_RefusedRegistrationReleasesAdapter(t *testing.T) {
	f := newFixture(t)

	// Drain the manager so registration is refused after the runtime
	// adapter has already been built.
	require.NoError(t, f.manager.GracefulShutdown(context.Background(), time.Second))

	_, err := f.factory.Create(&core.AgentDeclaration{Name: "late", Runtime: "mock"})
	require.Error(t, err)

	assert.Equal(t, 1, f.adapter.Shutdowns(), "the orphaned adapter must be closed")
	assert.Empty(t, f.manager.List())
}

func TestFactory_Materialize(t *testing.T) {
	f := newFixture(t)

	inst, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "lazy-coder",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Bundle: "fs"}},
		Lazy:    true,
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusRegistered, inst.Status())

	require.NoError(t, f.factory.Materialize(inst))

	assert.Equal(t, core.StatusIdle, inst.Status())
	assert.NotNil(t, inst.Adapter())
	assert.Len(t, inst.ToolIDs(), 2)

	// Idempotent once resolved.
	assert.NoError(t, f.factory.Materialize(inst))
}

func TestFactory_Materialize_FailureDegrades(t *testing.T) {
	f := newFixture(t)

	inst, err := f.factory.Create(&core.AgentDeclaration{
		Name:    "doomed",
		Runtime: "mock",
		Tools:   []core.ToolRef{{Name: "ghost"}},
		Lazy:    true,
	})
	require.NoError(t, err)

	err = f.factory.Materialize(inst)
	require.Error(t, err)
	assert.Equal(t, core.StatusDegraded, inst.Status())
}
