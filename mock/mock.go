// Package mock provides an in-process core.Context for unit testing contracts
// without a host.
package mock

import (
	"sort"

	"github.com/govm-net/hellokv/core"
	"github.com/holiman/uint256"
)

// Context is a core.Context backed by a plain map. Set the exported fields
// between calls to simulate different callers, blocks and deposits.
type Context struct {
	Account    core.AccountID
	SignerID   core.AccountID
	Caller     core.AccountID
	Height     uint64
	Timestamp  uint64
	Deposit    *uint256.Int
	Logs       []string
	storage    map[string][]byte
	writeCount int
}

// NewContext returns a context where signer and predecessor are both caller
func NewContext(account, caller core.AccountID) *Context {
	return &Context{
		Account:  account,
		SignerID: caller,
		Caller:   caller,
		storage:  make(map[string][]byte),
	}
}

// As switches the immediate caller, keeping the signer
func (c *Context) As(caller core.AccountID) *Context {
	c.Caller = caller
	return c
}

// WithDeposit attaches amount to the following calls
func (c *Context) WithDeposit(amount uint64) *Context {
	c.Deposit = uint256.NewInt(amount)
	return c
}

func (c *Context) CurrentAccount() core.AccountID { return c.Account }
func (c *Context) Signer() core.AccountID         { return c.SignerID }
func (c *Context) Predecessor() core.AccountID    { return c.Caller }
func (c *Context) BlockHeight() uint64            { return c.Height }
func (c *Context) BlockTimestamp() uint64         { return c.Timestamp }

func (c *Context) AttachedDeposit() *uint256.Int {
	if c.Deposit == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(c.Deposit)
}

func (c *Context) Storage() core.Storage { return (*storage)(c) }

func (c *Context) Log(line string) {
	c.Logs = append(c.Logs, line)
}

// Snapshot copies the current storage, for comparing before and after a call
func (c *Context) Snapshot() map[string][]byte {
	out := make(map[string][]byte, len(c.storage))
	for k, v := range c.storage {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Keys lists the raw storage keys in sorted order
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.storage))
	for k := range c.storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes counts storage writes since the context was created
func (c *Context) Writes() int {
	return c.writeCount
}

type storage Context

func (s *storage) Read(key []byte) ([]byte, bool, error) {
	v, ok := s.storage[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *storage) Write(key, value []byte) error {
	s.storage[string(key)] = append([]byte(nil), value...)
	s.writeCount++
	return nil
}

func (s *storage) Has(key []byte) (bool, error) {
	_, ok := s.storage[string(key)]
	return ok, nil
}
