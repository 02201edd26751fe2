package memory

import (
	"testing"

	"github.com/govm-net/hellokv/context"
	"github.com/govm-net/hellokv/context/contexttest"
	"github.com/govm-net/hellokv/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestContext(t *testing.T) types.BlockchainContext {
	ctx, err := NewBlockchainContext(nil)
	require.NoError(t, err)
	return ctx
}

func TestMemoryContext(t *testing.T) {
	contexttest.Run(t, setupTestContext)
}

func TestRegistered(t *testing.T) {
	ctx, err := context.Get(context.MemoryContextType, nil)
	require.NoError(t, err)
	assert.NotNil(t, ctx)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := setupTestContext(t)

	tx, err := ctx.Begin("hello.test")
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())

	tx, err = ctx.Begin("hello.test")
	require.NoError(t, err)
	v, _, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	v[0] = 'x'
	tx.Discard()

	tx, err = ctx.Begin("hello.test")
	require.NoError(t, err)
	defer tx.Discard()
	v, _, err = tx.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
