// Package core defines the interfaces a contract uses to talk to its host.
// Contract authors only need the types in this package to write a contract.
package core

import (
	"github.com/holiman/uint256"
)

// AccountID is a human readable account name such as "alice" or "app.alice".
type AccountID string

func (a AccountID) String() string {
	return string(a)
}

// Context is the contract's view of the current call.
type Context interface {
	// CurrentAccount returns the account the contract is deployed on
	CurrentAccount() AccountID

	// Signer returns the account that signed the originating transaction
	Signer() AccountID

	// Predecessor returns the account that directly invoked this call
	Predecessor() AccountID

	// BlockHeight returns the current block height
	BlockHeight() uint64

	// BlockTimestamp returns the current block time in nanoseconds
	BlockTimestamp() uint64

	// AttachedDeposit returns the amount attached to the call, never nil
	AttachedDeposit() *uint256.Int

	// Storage returns the key-addressed storage of the current account
	Storage() Storage

	// Log emits a single log line for the current call
	Log(line string)
}

// Storage is the durable key-value space of one contract account.
// Writes are only made durable when the enclosing call succeeds.
type Storage interface {
	Read(key []byte) ([]byte, bool, error)
	Write(key, value []byte) error
	Has(key []byte) (bool, error)
}
