package vm

import (
	"errors"

	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
)

// ErrReadOnly is returned when a view call tries to write storage
var ErrReadOnly = errors.New("storage is read-only in view calls")

// callContext is the core.Context handed to a contract for one call. All
// storage access goes through the call's transaction and log lines are
// collected until the engine decides whether the call succeeded.
type callContext struct {
	account     core.AccountID
	signer      core.AccountID
	predecessor core.AccountID
	height      uint64
	timestamp   uint64
	deposit     *uint256.Int
	readOnly    bool

	txn  types.StateTxn
	logs []string
}

func (c *callContext) CurrentAccount() core.AccountID { return c.account }
func (c *callContext) Signer() core.AccountID         { return c.signer }
func (c *callContext) Predecessor() core.AccountID    { return c.predecessor }
func (c *callContext) BlockHeight() uint64            { return c.height }
func (c *callContext) BlockTimestamp() uint64         { return c.timestamp }

func (c *callContext) AttachedDeposit() *uint256.Int {
	if c.deposit == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(c.deposit)
}

func (c *callContext) Storage() core.Storage {
	return (*txnStorage)(c)
}

func (c *callContext) Log(line string) {
	c.logs = append(c.logs, line)
}

// txnStorage adapts the call transaction to core.Storage
type txnStorage callContext

func (s *txnStorage) Read(key []byte) ([]byte, bool, error) {
	return s.txn.Get(key)
}

func (s *txnStorage) Write(key, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.txn.Set(key, value)
}

func (s *txnStorage) Has(key []byte) (bool, error) {
	_, ok, err := s.txn.Get(key)
	return ok, err
}
