package vm

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/govm-net/hellokv/contracts/hello"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloAccount = core.AccountID("hello.alice.near")

type backend struct {
	name   string
	params func(t *testing.T) map[string]any
}

var backends = []backend{
	{"memory", func(t *testing.T) map[string]any { return nil }},
	{"db", func(t *testing.T) map[string]any {
		return map[string]any{"db_path": filepath.Join(t.TempDir(), "state.db")}
	}},
	{"badger", func(t *testing.T) map[string]any { return map[string]any{"dir": ""} }},
}

// newTestEngine opens an engine on the named backend with the hello
// contract deployed on helloAccount.
func newTestEngine(t *testing.T, b backend) *Engine {
	t.Helper()
	engine, err := NewEngine(&Config{
		ContextType:    b.name,
		ContextParams:  b.params(t),
		CodeManagerDir: filepath.Join(t.TempDir(), "repo"),
		Metrics:        prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	require.NoError(t, engine.SetBlockInfo(7, 1_700_000_000_000_000_000, types.Hash{}))
	require.NoError(t, engine.Register(hello.Contract))
	_, err = engine.Deploy(helloAccount, hello.ContractName)
	require.NoError(t, err)
	return engine
}

func forEachBackend(t *testing.T, fn func(t *testing.T, e *Engine)) {
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			fn(t, newTestEngine(t, b))
		})
	}
}

func call(e *Engine, signer core.AccountID, function string, args any) (*types.ExecutionResult, error) {
	params := types.CallParams{Contract: helloAccount, Function: function, Signer: signer}
	if args != nil {
		params.Args, _ = json.Marshal(args)
	}
	return e.Execute(context.Background(), params)
}

func view(t *testing.T, e *Engine, function string, args any) (json.RawMessage, error) {
	t.Helper()
	var raw []byte
	if args != nil {
		var err error
		raw, err = json.Marshal(args)
		require.NoError(t, err)
	}
	return e.View(context.Background(), helloAccount, function, raw)
}

func getData(t *testing.T, e *Engine, key string) *string {
	t.Helper()
	data, err := view(t, e, "get_data", map[string]string{"key": key})
	require.NoError(t, err)
	var out *string
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestAliceBobScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", map[string]string{"owner": "alice"})
		require.NoError(t, err)

		res, err := call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, []string{`DATA_SET: {"key": "k", "value": "v"}`}, res.Logs)
		assert.Equal(t, "null", string(res.Data))

		require.NotNil(t, getData(t, e, "k"))
		assert.Equal(t, "v", *getData(t, e, "k"))

		res, err = call(e, "bob", "set_data", map[string]string{"key": "k", "value": "v2"})
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Only the owner can call this method")
		assert.Empty(t, res.Logs)

		assert.Equal(t, "v", *getData(t, e, "k"))

		events, err := e.Events(helloAccount)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, `DATA_SET: {"key": "k", "value": "v"}`, events[0].Line)
	})
}

func TestInitializeOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", map[string]string{"owner": "carol"})
		require.NoError(t, err)

		data, err := view(t, e, "get_owner", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `"carol"`, string(data))

		data, err = view(t, e, "get_metadata", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":"1.0.0","owner":"carol","created_at":1700000000000000000}`, string(data))
	})
}

func TestInitializeDefaultsToSigner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := e.Execute(context.Background(), types.CallParams{
			Contract:    helloAccount,
			Function:    "initialize",
			Signer:      "alice",
			Predecessor: "relay.near",
		})
		require.NoError(t, err)

		data, err := view(t, e, "get_owner", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `"alice"`, string(data))
	})
}

func TestInitializeTwiceKeepsState(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)
		before, err := view(t, e, "get_metadata", nil)
		require.NoError(t, err)

		require.NoError(t, e.SetBlockInfo(8, 1_700_000_001_000_000_000, types.Hash{}))
		_, err = call(e, "bob", "initialize", map[string]string{"owner": "bob"})
		assert.ErrorIs(t, err, core.ErrAlreadyInitialized)

		after, err := view(t, e, "get_metadata", nil)
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(after))
	})
}

func TestCallsBeforeInitializeFail(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		for _, fn := range []string{"get_metadata", "get_owner", "get_data", "hello"} {
			_, err := view(t, e, fn, map[string]string{"key": "k", "name": "x"})
			assert.ErrorIs(t, err, core.ErrNotInitialized, fn)
		}
		for _, fn := range []string{"set_data", "donate"} {
			_, err := call(e, "alice", fn, map[string]string{"key": "k", "value": "v"})
			assert.ErrorIs(t, err, core.ErrNotInitialized, fn)
		}
	})
}

func TestOverwriteAndMissingKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)

		assert.Nil(t, getData(t, e, "k"))

		_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v1"})
		require.NoError(t, err)
		_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v2"})
		require.NoError(t, err)
		assert.Equal(t, "v2", *getData(t, e, "k"))

		_, err = call(e, "alice", "set_data", map[string]string{"key": "", "value": ""})
		require.NoError(t, err)
		assert.Equal(t, "", *getData(t, e, ""))
	})
}

func TestHello(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)

		data, err := view(t, e, "hello", map[string]string{"name": "World"})
		require.NoError(t, err)
		var greeting string
		require.NoError(t, json.Unmarshal(data, &greeting))
		assert.Contains(t, greeting, "Hello, World!")
	})
}

func TestDonate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)
		_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v"})
		require.NoError(t, err)

		meta, err := view(t, e, "get_metadata", nil)
		require.NoError(t, err)

		amount, _ := uint256.FromDecimal("1000000000000000000000000")
		res, err := e.Execute(context.Background(), types.CallParams{
			Contract: helloAccount,
			Function: "donate",
			Signer:   "bob",
			Deposit:  amount,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `"Thank you bob for donating 1000000000000000000000000 yoctoNEAR!"`, string(res.Data))
		assert.Equal(t, []string{`DONATION: {"donor": "bob", "amount": "1000000000000000000000000"}`}, res.Logs)

		// the deposit lands on the contract account, not in contract state
		balance, err := e.Balance(helloAccount)
		require.NoError(t, err)
		assert.Equal(t, amount.Dec(), balance.Dec())

		after, err := view(t, e, "get_metadata", nil)
		require.NoError(t, err)
		assert.JSONEq(t, string(meta), string(after))
		assert.Equal(t, "v", *getData(t, e, "k"))

		// zero deposits are accepted
		res, err = call(e, "carol", "donate", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `"Thank you carol for donating 0 yoctoNEAR!"`, string(res.Data))
	})
}

func TestDepositRejectedOnNonPayable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)

		_, err = e.Execute(context.Background(), types.CallParams{
			Contract: helloAccount,
			Function: "set_data",
			Args:     []byte(`{"key":"k","value":"v"}`),
			Signer:   "alice",
			Deposit:  uint256.NewInt(1),
		})
		assert.ErrorIs(t, err, core.ErrDepositNotAllowed)
		assert.Nil(t, getData(t, e, "k"))

		balance, err := e.Balance(helloAccount)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})
}

func TestFailedCallIsAtomic(t *testing.T) {
	panicking := core.Contract{
		Name: "Faulty",
		Methods: []core.Method{{
			Name:    "write_then_panic",
			Mutates: true,
			Payable: true,
			Handler: func(ctx core.Context, args []byte) (any, error) {
				ctx.Log("before failure")
				if err := ctx.Storage().Write([]byte("x"), []byte("1")); err != nil {
					return nil, err
				}
				core.Request(false)
				return nil, nil
			},
		}, {
			Name:    "write_then_error",
			Mutates: true,
			Handler: func(ctx core.Context, args []byte) (any, error) {
				ctx.Log("before failure")
				if err := ctx.Storage().Write([]byte("x"), []byte("1")); err != nil {
					return nil, err
				}
				return nil, errors.New("boom")
			},
		}, {
			Name: "read",
			View: true,
			Handler: func(ctx core.Context, args []byte) (any, error) {
				ok, err := ctx.Storage().Has([]byte("x"))
				return ok, err
			},
		}},
	}

	forEachBackend(t, func(t *testing.T, e *Engine) {
		require.NoError(t, e.Register(panicking))
		_, err := e.Deploy("faulty.near", "Faulty")
		require.NoError(t, err)

		res, err := e.Execute(context.Background(), types.CallParams{
			Contract: "faulty.near",
			Function: "write_then_panic",
			Signer:   "alice",
			Deposit:  uint256.NewInt(5),
		})
		assert.ErrorIs(t, err, core.ErrExecutionReverted)
		assert.False(t, res.Success)

		_, err = e.Execute(context.Background(), types.CallParams{
			Contract: "faulty.near",
			Function: "write_then_error",
			Signer:   "alice",
		})
		assert.EqualError(t, err, "boom")

		data, err := e.View(context.Background(), "faulty.near", "read", nil)
		require.NoError(t, err)
		assert.Equal(t, "false", string(data))

		events, err := e.Events("faulty.near")
		require.NoError(t, err)
		assert.Empty(t, events)

		balance, err := e.Balance("faulty.near")
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})
}

func TestViewRules(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "initialize", nil)
		require.NoError(t, err)

		_, err = view(t, e, "set_data", map[string]string{"key": "k", "value": "v"})
		assert.ErrorIs(t, err, core.ErrNotViewMethod)

		_, err = view(t, e, "missing", nil)
		assert.ErrorIs(t, err, core.ErrFunctionNotFound)

		_, err = e.View(context.Background(), "nobody.near", "get_owner", nil)
		assert.ErrorIs(t, err, core.ErrContractNotFound)
	})
}

func TestExecuteRejectsBadCalls(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		_, err := call(e, "alice", "missing", nil)
		assert.ErrorIs(t, err, core.ErrFunctionNotFound)

		_, err = call(e, "Not Valid!", "initialize", nil)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = call(e, "alice", "initialize", map[string]string{"owner": "BAD OWNER"})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = e.Execute(ctx, types.CallParams{Contract: helloAccount, Function: "initialize", Signer: "alice"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDeploy(t *testing.T) {
	e := newTestEngine(t, backends[0])

	_, err := e.Deploy(helloAccount, hello.ContractName)
	assert.Error(t, err)

	_, err = e.Deploy("other.near", "Unknown")
	assert.ErrorIs(t, err, core.ErrContractNotFound)

	_, err = e.Deploy("No Spaces", hello.ContractName)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	assert.Error(t, e.Register(hello.Contract))

	list, err := e.Deployments()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, helloAccount, list[0].Account)

	a, err := e.ABI(helloAccount)
	require.NoError(t, err)
	assert.Equal(t, hello.ContractName, a.Contract)
}

func TestReopenKeepsDeploymentsAndState(t *testing.T) {
	dir := t.TempDir()
	cfg := func() *Config {
		return &Config{
			ContextType:    "db",
			ContextParams:  map[string]any{"db_path": filepath.Join(dir, "state.db")},
			CodeManagerDir: filepath.Join(dir, "repo"),
		}
	}

	e, err := NewEngine(cfg())
	require.NoError(t, err)
	require.NoError(t, e.Register(hello.Contract))
	_, err = e.Deploy(helloAccount, hello.ContractName)
	require.NoError(t, err)
	_, err = call(e, "alice", "initialize", nil)
	require.NoError(t, err)
	_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = NewEngine(cfg())
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Register(hello.Contract))
	assert.Equal(t, "v", *getData(t, e, "k"))
}

func TestSubscribeReceivesCommittedLogs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		var got []types.LogEntry
		unsubscribe, err := e.Subscribe(func(entry types.LogEntry) {
			got = append(got, entry)
		})
		require.NoError(t, err)

		_, err = call(e, "alice", "initialize", nil)
		require.NoError(t, err)
		res, err := call(e, "alice", "set_data", map[string]string{"key": "a", "value": "1"})
		require.NoError(t, err)
		_, err = call(e, "bob", "set_data", map[string]string{"key": "b", "value": "2"})
		require.Error(t, err)

		require.Len(t, got, 1)
		assert.Equal(t, res.ReceiptID, got[0].ReceiptID)
		assert.Equal(t, uint64(7), got[0].BlockHeight)
		assert.Equal(t, helloAccount, got[0].Contract)

		unsubscribe()
		_, err = call(e, "alice", "set_data", map[string]string{"key": "c", "value": "3"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestMetrics(t *testing.T) {
	e := newTestEngine(t, backends[0])

	_, err := call(e, "alice", "initialize", nil)
	require.NoError(t, err)
	_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v"})
	require.NoError(t, err)
	_, err = call(e, "bob", "set_data", map[string]string{"key": "k", "value": "x"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.stats.calls.WithLabelValues("set_data", statusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.stats.calls.WithLabelValues("set_data", statusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.stats.logs))
}

func TestMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m1, err := newMetrics(reg)
	require.NoError(t, err)
	m2, err := newMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, m1.logs, m2.logs)
}

func TestViewCannotWrite(t *testing.T) {
	writer := core.Contract{
		Name: "Writer",
		Methods: []core.Method{{
			Name: "sneaky",
			View: true,
			Handler: func(ctx core.Context, args []byte) (any, error) {
				return nil, ctx.Storage().Write([]byte("x"), []byte("1"))
			},
		}},
	}
	e := newTestEngine(t, backends[0])
	require.NoError(t, e.Register(writer))
	_, err := e.Deploy("writer.near", "Writer")
	require.NoError(t, err)

	_, err = e.View(context.Background(), "writer.near", "sneaky", nil)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestUnsubscribeRemovesOnlyItsOwnSubscriber(t *testing.T) {
	e := newTestEngine(t, backends[0])
	_, err := call(e, "alice", "initialize", nil)
	require.NoError(t, err)

	counts := make([]int, 2)
	cancels := make([]func(), 2)
	for i := range counts {
		i := i
		cancels[i], err = e.Subscribe(func(types.LogEntry) { counts[i]++ })
		require.NoError(t, err)
	}

	cancels[1]()
	cancels[1]() // removing twice is harmless
	_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, counts)

	cancels[0]()
	_, err = call(e, "alice", "set_data", map[string]string{"key": "k", "value": "v2"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, counts)

	_, err = e.Subscribe(nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
