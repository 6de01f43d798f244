package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
)

func TestRuntimeRegistry_RegisterAndGet(t *testing.T) {
	r := NewRuntimeRegistry()

	r.Register("mock", func(map[string]any) (core.RuntimeAdapter, error) { return nil, nil })

	factory, err := r.Get("mock")
	require.NoError(t, err)
	assert.NotNil(t, factory)
	assert.True(t, r.Has("mock"))
	assert.Equal(t, []string{"mock"}, r.Names())
}

func TestRuntimeRegistry_Get_Unknown(t *testing.T) {
	r := NewRuntimeRegistry()

	_, err := r.Get("claude_code")
	var resolutionErr *core.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "runtime", resolutionErr.Kind)
	assert.Equal(t, "claude_code", resolutionErr.Ref)
}
