package memory

import (
	"errors"
	"sync"

	"github.com/govm-net/hellokv/context"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
)

var errTxnClosed = errors.New("transaction already closed")

// defaultBlockchainContext keeps all state in process memory
type defaultBlockchainContext struct {
	// Block information
	blockHeight uint64
	blockTime   uint64
	blockHash   types.Hash

	// Account balances
	balances map[core.AccountID]*uint256.Int

	// Contract storage, keyed by account then by raw storage key
	storage map[core.AccountID]map[string][]byte
	events  map[core.AccountID][]types.LogEntry

	mu sync.Mutex
}

func init() {
	context.Register(context.MemoryContextType, NewBlockchainContext)
}

// NewBlockchainContext creates an empty in-memory context
func NewBlockchainContext(params map[string]any) (types.BlockchainContext, error) {
	return &defaultBlockchainContext{
		balances: make(map[core.AccountID]*uint256.Int),
		storage:  make(map[core.AccountID]map[string][]byte),
		events:   make(map[core.AccountID][]types.LogEntry),
	}, nil
}

func (ctx *defaultBlockchainContext) SetBlockInfo(height uint64, timestamp uint64, hash types.Hash) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.blockHeight = height
	ctx.blockTime = timestamp
	ctx.blockHash = hash
	return nil
}

// BlockHeight gets the current block height
func (ctx *defaultBlockchainContext) BlockHeight() uint64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockHeight
}

// BlockTimestamp gets the current block timestamp
func (ctx *defaultBlockchainContext) BlockTimestamp() uint64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockTime
}

// Balance gets the account balance
func (ctx *defaultBlockchainContext) Balance(account core.AccountID) (*uint256.Int, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if b, ok := ctx.balances[account]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return new(uint256.Int), nil
}

func (ctx *defaultBlockchainContext) Begin(contract core.AccountID) (types.StateTxn, error) {
	return &txn{
		ctx:      ctx,
		contract: contract,
		writes:   make(map[string][]byte),
	}, nil
}

// Events returns a copy of the committed log of contract
func (ctx *defaultBlockchainContext) Events(contract core.AccountID) ([]types.LogEntry, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]types.LogEntry, len(ctx.events[contract]))
	copy(out, ctx.events[contract])
	return out, nil
}

func (ctx *defaultBlockchainContext) Close() error {
	return nil
}

type credit struct {
	account core.AccountID
	amount  *uint256.Int
}

// txn buffers writes, logs and credits until Commit
type txn struct {
	ctx      *defaultBlockchainContext
	contract core.AccountID
	writes   map[string][]byte
	logs     []types.LogEntry
	credits  []credit
	closed   bool
}

func (t *txn) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, errTxnClosed
	}
	if v, ok := t.writes[string(key)]; ok {
		return cloneBytes(v), true, nil
	}
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	v, ok := t.ctx.storage[t.contract][string(key)]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (t *txn) Set(key, value []byte) error {
	if t.closed {
		return errTxnClosed
	}
	t.writes[string(key)] = cloneBytes(value)
	return nil
}

func (t *txn) Log(entry types.LogEntry) error {
	if t.closed {
		return errTxnClosed
	}
	t.logs = append(t.logs, entry)
	return nil
}

func (t *txn) Credit(account core.AccountID, amount *uint256.Int) error {
	if t.closed {
		return errTxnClosed
	}
	t.credits = append(t.credits, credit{account: account, amount: new(uint256.Int).Set(amount)})
	return nil
}

func (t *txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true

	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	space, ok := t.ctx.storage[t.contract]
	if !ok {
		space = make(map[string][]byte)
		t.ctx.storage[t.contract] = space
	}
	for k, v := range t.writes {
		space[k] = v
	}
	t.ctx.events[t.contract] = append(t.ctx.events[t.contract], t.logs...)
	for _, c := range t.credits {
		b, ok := t.ctx.balances[c.account]
		if !ok {
			b = new(uint256.Int)
			t.ctx.balances[c.account] = b
		}
		b.Add(b, c.amount)
	}
	return nil
}

func (t *txn) Discard() {
	t.closed = true
	t.writes = nil
	t.logs = nil
	t.credits = nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
