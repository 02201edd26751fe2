// Package types contains the definitions shared by the host runtime
// and the state backends that persist contract storage.
package types

import (
	"encoding/hex"
	"strings"

	"github.com/govm-net/hellokv/core"
	"github.com/holiman/uint256"
)

// Hash identifies a block
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func HashFromString(str string) Hash {
	str = strings.TrimPrefix(str, "0x")
	h, err := hex.DecodeString(str)
	if err != nil {
		return Hash{}
	}
	var out Hash
	copy(out[:], h)
	return out
}

// CallParams describes one function call made against a deployed contract.
type CallParams struct {
	Contract    core.AccountID `json:"contract"`
	Function    string         `json:"function"`
	Args        []byte         `json:"args,omitempty"`
	Signer      core.AccountID `json:"signer"`
	Predecessor core.AccountID `json:"predecessor,omitempty"` // defaults to Signer
	Deposit     *uint256.Int   `json:"deposit,omitempty"`
}

// ExecutionResult is the outcome of one call.
type ExecutionResult struct {
	ReceiptID string   `json:"receipt_id"`
	Success   bool     `json:"success"`
	Data      []byte   `json:"data,omitempty"` // JSON encoded return value
	Error     string   `json:"error,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

// LogEntry is a log line emitted by a successful call.
type LogEntry struct {
	BlockHeight uint64         `json:"block_height"`
	ReceiptID   string         `json:"receipt_id"`
	Contract    core.AccountID `json:"contract"`
	Index       int            `json:"index"`
	Line        string         `json:"line"`
}

// BlockchainContext is a state backend. It owns the durable storage of all
// contract accounts, the event log and account balances.
type BlockchainContext interface {
	// set block info
	SetBlockInfo(height uint64, timestamp uint64, hash Hash) error
	BlockHeight() uint64    // Get current block height
	BlockTimestamp() uint64 // Get current block timestamp in nanoseconds

	Balance(account core.AccountID) (*uint256.Int, error) // Get account balance

	// Begin opens a transaction over the storage of contract
	Begin(contract core.AccountID) (StateTxn, error)

	// Events lists the committed log entries of contract in emission order
	Events(contract core.AccountID) ([]LogEntry, error)

	Close() error
}

// StateTxn buffers every effect of a single call. Nothing is visible to
// other transactions until Commit, and Discard drops all of it.
type StateTxn interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Log(entry LogEntry) error
	Credit(account core.AccountID, amount *uint256.Int) error
	Commit() error
	Discard()
}
