package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
)

func fsBundle() core.ToolBundle {
	return core.ToolBundle{
		Name: "fs",
		Items: []core.ToolItem{
			{Name: "read", Description: "read a file"},
			{Name: "write", Description: "write a file"},
		},
	}
}

func webBundle() core.ToolBundle {
	return core.ToolBundle{
		Name: "web",
		Items: []core.ToolItem{
			{Name: "fetch", Description: "fetch a URL"},
			{Name: "read", Description: "read a page"},
		},
	}
}

func TestToolRegistry_RegisterAndBuild(t *testing.T) {
	r := NewToolRegistry()

	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))
	require.NoError(t, r.Build())

	assert.True(t, r.Built())
	assert.Equal(t, []string{"fs", "web"}, r.BundleNames())
	assert.Equal(t, 4, r.TotalToolCount())
}

func TestToolRegistry_Register_DuplicateItemWithinBundle(t *testing.T) {
	r := NewToolRegistry()

	err := r.Register(core.ToolBundle{
		Name: "fs",
		Items: []core.ToolItem{
			{Name: "read"},
			{Name: "read"},
		},
	})

	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "tool", resolutionErr.Kind)
	assert.Equal(t, "fs/read", resolutionErr.Ref)
}

func TestToolRegistry_Register_OverrideKeepsOrder(t *testing.T) {
	r := NewToolRegistry()

	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))
	require.NoError(t, r.Register(core.ToolBundle{
		Name:  "fs",
		Items: []core.ToolItem{{Name: "stat"}},
	}))

	assert.Equal(t, []string{"fs", "web"}, r.BundleNames())

	bundle, ok := r.Bundle("fs")
	require.True(t, ok)
	assert.Len(t, bundle.Items, 1)
	assert.Equal(t, "stat", bundle.Items[0].Name)
}

func TestToolRegistry_Register_AfterBuildFails(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Build())

	err := r.Register(fsBundle())
	assert.ErrorContains(t, err, "sealed")
}

func TestToolRegistry_Build_LastWinsOnConflict(t *testing.T) {
	r := NewToolRegistry()

	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))
	require.NoError(t, r.Build())

	// "read" exists in fs and web; web registered later and wins the bare name.
	resolved, err := r.Resolve(core.ToolRef{Name: "read"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "web/read", resolved[0].ID)
	assert.Equal(t, "web", resolved[0].Bundle)
}

func TestToolRegistry_Build_StrictModeConflictFails(t *testing.T) {
	r := NewToolRegistry(func(o *ToolRegistryOptions) {
		o.Strict = true
	})

	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))

	err := r.Build()
	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "conflict", resolutionErr.Kind)
	assert.Equal(t, "read", resolutionErr.Ref)
	assert.False(t, r.Built())
}

func TestToolRegistry_Build_Idempotent(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))

	require.NoError(t, r.Build())
	require.NoError(t, r.Build())
	assert.True(t, r.Built())
}

func TestToolRegistry_Resolve_QualifiedBypassesConflict(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))
	require.NoError(t, r.Build())

	resolved, err := r.Resolve(core.ToolRef{Bundle: "fs", Name: "read"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "fs/read", resolved[0].ID)
}

func TestToolRegistry_Resolve_WholeBundle(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Build())

	resolved, err := r.Resolve(core.ToolRef{Bundle: "fs"})
	require.NoError(t, err)
	assert.Len(t, resolved, 2)
}

func TestToolRegistry_Resolve_UnknownReferences(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Build())

	cases := []core.ToolRef{
		{Bundle: "fs", Name: "delete"},
		{Bundle: "missing"},
		{Name: "delete"},
	}

	for _, ref := range cases {
		_, err := r.Resolve(ref)
		var resolutionErr *core.ResolutionError
		assert.ErrorAs(t, err, &resolutionErr)
	}
}

func TestToolRegistry_Resolve_BeforeBuildFails(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))

	_, err := r.Resolve(core.ToolRef{Name: "read"})
	assert.ErrorContains(t, err, "not built")
}

func TestToolRegistry_BareNames(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(fsBundle()))
	require.NoError(t, r.Register(webBundle()))
	require.NoError(t, r.Build())

	assert.Equal(t, []string{"fetch", "read", "write"}, r.BareNames())
}
