package context

import (
	"errors"
	"testing"

	"github.com/govm-net/hellokv/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *registry {
	return &registry{contexts: make(map[ContextType]ContextConstructor)}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	var gotParams map[string]any
	ctor := func(params map[string]any) (types.BlockchainContext, error) {
		gotParams = params
		return nil, nil
	}

	require.NoError(t, r.Register("fake", ctor))
	assert.Error(t, r.Register("fake", ctor), "duplicate registration must fail")

	_, err := r.Get("fake", map[string]any{"dir": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", gotParams["dir"])

	_, err = r.Get("missing", nil)
	assert.Error(t, err)
}

func TestRegistryConstructorError(t *testing.T) {
	r := newTestRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register("broken", func(map[string]any) (types.BlockchainContext, error) {
		return nil, boom
	}))

	_, err := r.Get("broken", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryDefault(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, MemoryContextType, r.DefaultContextType())

	_, err := r.GetDefault(nil)
	assert.Error(t, err)

	assert.Error(t, r.SetDefault("nope"))

	require.NoError(t, r.Register("b", func(map[string]any) (types.BlockchainContext, error) { return nil, nil }))
	require.NoError(t, r.Register("a", func(map[string]any) (types.BlockchainContext, error) { return nil, nil }))
	require.NoError(t, r.SetDefault("b"))
	assert.Equal(t, ContextType("b"), r.DefaultContextType())

	_, err = r.GetDefault(nil)
	require.NoError(t, err)

	assert.Equal(t, []ContextType{"a", "b"}, r.ListRegistered())
}
