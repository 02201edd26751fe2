package core

import (
	"errors"
)

// Common errors that can be returned by contracts and the host
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("unauthorized operation")
	ErrNotInitialized      = errors.New("contract is not initialized")
	ErrAlreadyInitialized  = errors.New("contract is already initialized")
	ErrContractNotFound    = errors.New("contract not found")
	ErrFunctionNotFound    = errors.New("function not found")
	ErrDepositNotAllowed   = errors.New("method doesn't accept deposit")
	ErrNotViewMethod       = errors.New("method is not a view method")
	ErrExecutionReverted   = errors.New("execution reverted")
	ErrCorruptState        = errors.New("corrupt contract state")
	ErrUnsupportedEncoding = errors.New("unsupported state encoding version")
)

// Handler runs one contract method. args holds the JSON encoded arguments,
// the returned value is JSON encoded by the host.
type Handler func(ctx Context, args []byte) (any, error)

// Param describes one named argument of a method.
type Param struct {
	Name     string
	Type     string
	Optional bool
}

// Method is one externally callable entry point of a contract.
type Method struct {
	Name      string
	View      bool // callable through a view call, never writes state
	Mutates   bool // may change contract storage
	Payable   bool // accepts an attached deposit
	Init      bool // the initializer, runs before state exists
	OwnerOnly bool
	Inputs    []Param
	Output    string
	Handler   Handler
}

// Contract is a named table of methods.
type Contract struct {
	Name    string
	Methods []Method
}

// Method looks up a method by name.
func (c Contract) Method(name string) (Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}
