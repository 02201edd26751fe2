// Package hello is a key-value contract with a single owner who may write,
// bundled metadata, and a donation method that only acknowledges payments.
package hello

import (
	"fmt"

	"github.com/govm-net/hellokv/core"
)

const (
	// ContractName is the name used in greetings and the method table
	ContractName = "Hello"
	// Version is recorded in the metadata at initialization
	Version = "1.0.0"
)

var (
	// StateKey holds the encoded owner and metadata record
	StateKey = []byte("STATE")
	// DataPrefix namespaces the key-value partition
	DataPrefix = []byte("d")
)

// Metadata is fixed at initialization
type Metadata struct {
	Version   string         `json:"version"`
	Owner     core.AccountID `json:"owner"`
	CreatedAt uint64         `json:"created_at"`
}

// State is the contract instance. It only exists after Initialize.
type State struct {
	Owner    core.AccountID
	Metadata Metadata
	data     Map
}

// Initialize creates the contract state. owner defaults to the signer of
// the transaction. It fails if the state already exists.
func Initialize(ctx core.Context, owner *core.AccountID) (*State, error) {
	exists, err := ctx.Storage().Has(StateKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.ErrAlreadyInitialized
	}

	resolved := ctx.Signer()
	if owner != nil {
		resolved = *owner
	}

	s := &State{
		Owner: resolved,
		Metadata: Metadata{
			Version:   Version,
			Owner:     resolved,
			CreatedAt: ctx.BlockTimestamp(),
		},
		data: Map{prefix: DataPrefix},
	}
	if err := ctx.Storage().Write(StateKey, encodeState(s)); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}
	return s, nil
}

// Load reads the state written by Initialize.
func Load(ctx core.Context) (*State, error) {
	raw, ok, err := ctx.Storage().Read(StateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrNotInitialized
	}
	return decodeState(raw)
}

// Map is a handle on one namespaced partition of contract storage
type Map struct {
	prefix []byte
}

func (m Map) Get(ctx core.Context, key string) (string, bool, error) {
	raw, ok, err := ctx.Storage().Read(encodeEntryKey(m.prefix, key))
	if err != nil || !ok {
		return "", false, err
	}
	v, err := decodeEntryValue(raw)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m Map) Insert(ctx core.Context, key, value string) error {
	return ctx.Storage().Write(encodeEntryKey(m.prefix, key), encodeEntryValue(value))
}
