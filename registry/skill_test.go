package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
)

func TestSkillRegistry_RegisterAndGet(t *testing.T) {
	r := NewSkillRegistry()

	r.Register(core.SkillDefinition{Name: "summarize", Instruction: "Summarize the input."})

	def, err := r.Get("summarize")
	require.NoError(t, err)
	assert.Equal(t, "summarize", def.Name)
	assert.True(t, r.Has("summarize"))
}

func TestSkillRegistry_Get_Unknown(t *testing.T) {
	r := NewSkillRegistry()

	_, err := r.Get("missing")
	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "skill", resolutionErr.Kind)
	assert.Equal(t, "missing", resolutionErr.Ref)
}

func TestSkillRegistry_Register_OverrideReplaces(t *testing.T) {
	r := NewSkillRegistry()

	r.Register(core.SkillDefinition{Name: "summarize", Instruction: "v1"})
	r.Register(core.SkillDefinition{Name: "summarize", Instruction: "v2"})

	def, err := r.Get("summarize")
	require.NoError(t, err)
	assert.Equal(t, "v2", def.Instruction)
}

func TestSkillRegistry_ResolveRefs_DeduplicatesPreservingOrder(t *testing.T) {
	r := NewSkillRegistry()
	r.Register(core.SkillDefinition{Name: "a", Instruction: "A"})
	r.Register(core.SkillDefinition{Name: "b", Instruction: "B"})

	defs, err := r.ResolveRefs([]core.SkillRef{
		{Name: "b"},
		{Name: "a"},
		{Name: "b"},
	})
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}

func TestSkillRegistry_ResolveRefs_UnknownFails(t *testing.T) {
	r := NewSkillRegistry()
	r.Register(core.SkillDefinition{Name: "a", Instruction: "A"})

	_, err := r.ResolveRefs([]core.SkillRef{{Name: "a"}, {Name: "ghost"}})
	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "ghost", resolutionErr.Ref)
}

func TestComposeInstructions(t *testing.T) {
	composed := ComposeInstructions([]core.SkillDefinition{
		{Name: "summarize", Instruction: "Summarize the input.\n"},
		{Name: "review", Instruction: "Review for correctness."},
	})

	expected := "---\n## Skill: summarize\n\nSummarize the input.\n" +
		"---\n## Skill: review\n\nReview for correctness."
	assert.Equal(t, expected, composed)
}

func TestComposeInstructions_Empty(t *testing.T) {
	assert.Equal(t, "", ComposeInstructions(nil))
}
