// Package badger stores contract state in BadgerDB.
package badger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/govm-net/hellokv/context"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	blockKey       = []byte("m/block")
	eventSeqKey    = []byte("m/event-seq")
	errTxnClosed   = errors.New("transaction already closed")
	eventSeqWindow = uint64(64)
)

// Key layout:
//
//	s/<account>/<storage key>  contract storage
//	e/<account>/<u64 seq>      committed log entries, big endian sequence
//	b/<account>                balance, decimal string
func storageKey(contract core.AccountID, key []byte) []byte {
	out := make([]byte, 0, 3+len(contract)+len(key))
	out = append(out, 's', '/')
	out = append(out, contract...)
	out = append(out, '/')
	return append(out, key...)
}

func eventPrefix(contract core.AccountID) []byte {
	out := append([]byte("e/"), contract...)
	return append(out, '/')
}

func eventKey(contract core.AccountID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(eventPrefix(contract), seq)
}

func balanceKey(account core.AccountID) []byte {
	return append([]byte("b/"), account...)
}

type blockInfo struct {
	Height    uint64     `json:"height"`
	Timestamp uint64     `json:"timestamp"`
	Hash      types.Hash `json:"hash"`
}

// Context implements types.BlockchainContext on top of BadgerDB
type Context struct {
	db     *badgerdb.DB
	seq    *badgerdb.Sequence
	logger *zap.Logger

	mu    sync.RWMutex
	block blockInfo
}

func init() {
	context.Register(context.BadgerContextType, NewContext)
}

// NewContext opens a badger context. params:
//
//	dir     data directory, empty for an in-memory database
//	logger  *zap.Logger receiving badger's own log output
func NewContext(params map[string]any) (types.BlockchainContext, error) {
	if params == nil {
		params = make(map[string]any)
	}
	logger, _ := params["logger"].(*zap.Logger)
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, _ := params["dir"].(string)
	var opts badgerdb.Options
	if dir == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badgerdb.DefaultOptions(dir)
	}
	opts = opts.WithLogger(&badgerLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	seq, err := db.GetSequence(eventSeqKey, eventSeqWindow)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open event sequence: %w", err)
	}

	ctx := &Context{db: db, seq: seq, logger: logger}
	if err := ctx.loadBlock(); err != nil {
		seq.Release()
		db.Close()
		return nil, err
	}
	return ctx, nil
}

func (c *Context) loadBlock() error {
	return c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blockKey)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read block info: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c.block)
		})
	})
}

func (c *Context) SetBlockInfo(height uint64, timestamp uint64, hash types.Hash) error {
	info := blockInfo{Height: height, Timestamp: timestamp, Hash: hash}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(blockKey, data)
	}); err != nil {
		return fmt.Errorf("failed to save block info: %w", err)
	}

	c.mu.Lock()
	c.block = info
	c.mu.Unlock()
	return nil
}

func (c *Context) BlockHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block.Height
}

func (c *Context) BlockTimestamp() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block.Timestamp
}

func (c *Context) Balance(account core.AccountID) (*uint256.Int, error) {
	var out *uint256.Int
	err := c.db.View(func(txn *badgerdb.Txn) error {
		var err error
		out, err = readBalance(txn, account)
		return err
	})
	return out, err
}

func readBalance(txn *badgerdb.Txn, account core.AccountID) (*uint256.Int, error) {
	item, err := txn.Get(balanceKey(account))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(string(val))
	if err != nil {
		return nil, fmt.Errorf("invalid balance for %s: %w", account, err)
	}
	return amount, nil
}

func (c *Context) Begin(contract core.AccountID) (types.StateTxn, error) {
	return &Txn{
		txn:      c.db.NewTransaction(true),
		seq:      c.seq,
		contract: contract,
	}, nil
}

func (c *Context) Events(contract core.AccountID) ([]types.LogEntry, error) {
	var out []types.LogEntry
	prefix := eventPrefix(contract)
	err := c.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry types.LogEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

func (c *Context) Close() error {
	if err := c.seq.Release(); err != nil {
		c.logger.Warn("failed to release event sequence", zap.Error(err))
	}
	return c.db.Close()
}

// Txn wraps a badger read-write transaction
type Txn struct {
	txn      *badgerdb.Txn
	seq      *badgerdb.Sequence
	contract core.AccountID
	closed   bool
}

func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, errTxnClosed
	}
	item, err := t.txn.Get(storageKey(t.contract, key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get storage key: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to copy value: %w", err)
	}
	return val, true, nil
}

func (t *Txn) Set(key, value []byte) error {
	if t.closed {
		return errTxnClosed
	}
	if err := t.txn.Set(storageKey(t.contract, key), value); err != nil {
		return fmt.Errorf("failed to set storage key: %w", err)
	}
	return nil
}

func (t *Txn) Log(entry types.LogEntry) error {
	if t.closed {
		return errTxnClosed
	}
	n, err := t.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate event sequence: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return t.txn.Set(eventKey(entry.Contract, n), data)
}

func (t *Txn) Credit(account core.AccountID, amount *uint256.Int) error {
	if t.closed {
		return errTxnClosed
	}
	balance, err := readBalance(t.txn, account)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return t.txn.Set(balanceKey(account), []byte(balance.Dec()))
}

func (t *Txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Txn) Discard() {
	t.closed = true
	t.txn.Discard()
}

// badgerLogger routes badger's printf style logging into zap
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}
