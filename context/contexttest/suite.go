// Package contexttest holds the behaviour every state backend must share.
package contexttest

import (
	"testing"

	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty backend for one test.
type Factory func(t *testing.T) types.BlockchainContext

// Run executes the backend conformance tests against factory.
func Run(t *testing.T, factory Factory) {
	t.Run("BlockInfo", func(t *testing.T) { testBlockInfo(t, factory(t)) })
	t.Run("CommitMakesWritesVisible", func(t *testing.T) { testCommit(t, factory(t)) })
	t.Run("DiscardDropsEverything", func(t *testing.T) { testDiscard(t, factory(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, factory(t)) })
	t.Run("AccountsAreIsolated", func(t *testing.T) { testIsolation(t, factory(t)) })
	t.Run("EventsKeepOrder", func(t *testing.T) { testEventOrder(t, factory(t)) })
	t.Run("Credits", func(t *testing.T) { testCredits(t, factory(t)) })
	t.Run("ClosedTxnRejectsUse", func(t *testing.T) { testClosedTxn(t, factory(t)) })
}

func testBlockInfo(t *testing.T, ctx types.BlockchainContext) {
	assert.Equal(t, uint64(0), ctx.BlockHeight())

	require.NoError(t, ctx.SetBlockInfo(100, 1234567890, types.HashFromString("0x1234")))
	assert.Equal(t, uint64(100), ctx.BlockHeight())
	assert.Equal(t, uint64(1234567890), ctx.BlockTimestamp())
}

func testCommit(t *testing.T, ctx types.BlockchainContext) {
	contract := core.AccountID("hello.test")

	tx, err := ctx.Begin(contract)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())

	tx, err = ctx.Begin(contract)
	require.NoError(t, err)
	defer tx.Discard()
	v, ok, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok, err = tx.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDiscard(t *testing.T, ctx types.BlockchainContext) {
	contract := core.AccountID("hello.test")

	tx, err := ctx.Begin(contract)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("k"), []byte("v")))
	require.NoError(t, tx.Log(types.LogEntry{Contract: contract, Line: "dropped"}))
	require.NoError(t, tx.Credit(contract, uint256.NewInt(5)))
	tx.Discard()

	tx, err = ctx.Begin(contract)
	require.NoError(t, err)
	_, ok, err := tx.Get([]byte("k"))
	tx.Discard()
	require.NoError(t, err)
	assert.False(t, ok)

	events, err := ctx.Events(contract)
	require.NoError(t, err)
	assert.Empty(t, events)

	balance, err := ctx.Balance(contract)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func testReadYourWrites(t *testing.T, ctx types.BlockchainContext) {
	contract := core.AccountID("hello.test")

	tx, err := ctx.Begin(contract)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("k"), []byte("v1")))
	require.NoError(t, tx.Set([]byte("k"), []byte("v2")))
	v, ok, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
	require.NoError(t, tx.Commit())

	tx, err = ctx.Begin(contract)
	require.NoError(t, err)
	defer tx.Discard()
	v, _, err = tx.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func testIsolation(t *testing.T, ctx types.BlockchainContext) {
	tx, err := ctx.Begin("one.test")
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("k"), []byte("one")))
	require.NoError(t, tx.Commit())

	tx, err = ctx.Begin("two.test")
	require.NoError(t, err)
	defer tx.Discard()
	_, ok, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testEventOrder(t *testing.T, ctx types.BlockchainContext) {
	contract := core.AccountID("hello.test")
	lines := []string{"first", "second", "third"}

	for i, line := range lines {
		tx, err := ctx.Begin(contract)
		require.NoError(t, err)
		require.NoError(t, tx.Log(types.LogEntry{
			BlockHeight: uint64(i),
			ReceiptID:   line,
			Contract:    contract,
			Line:        line,
		}))
		require.NoError(t, tx.Commit())
	}

	events, err := ctx.Events(contract)
	require.NoError(t, err)
	require.Len(t, events, len(lines))
	for i, line := range lines {
		assert.Equal(t, line, events[i].Line)
		assert.Equal(t, line, events[i].ReceiptID)
		assert.Equal(t, uint64(i), events[i].BlockHeight)
		assert.Equal(t, contract, events[i].Contract)
	}

	other, err := ctx.Events("other.test")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testCredits(t *testing.T, ctx types.BlockchainContext) {
	account := core.AccountID("hello.test")

	for _, amount := range []uint64{10, 32} {
		tx, err := ctx.Begin(account)
		require.NoError(t, err)
		require.NoError(t, tx.Credit(account, uint256.NewInt(amount)))
		require.NoError(t, tx.Commit())
	}

	balance, err := ctx.Balance(account)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance.Uint64())

	empty, err := ctx.Balance("nobody.test")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func testClosedTxn(t *testing.T, ctx types.BlockchainContext) {
	tx, err := ctx.Begin("hello.test")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Error(t, tx.Set([]byte("k"), []byte("v")))
	assert.Error(t, tx.Commit())
}
