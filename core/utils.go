package core

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ParseAccountID validates s as an account name
func ParseAccountID(s string) (AccountID, error) {
	if len(s) < minAccountIDLen || len(s) > maxAccountIDLen {
		return "", fmt.Errorf("%w: account id %q must be %d to %d characters", ErrInvalidArgument, s, minAccountIDLen, maxAccountIDLen)
	}
	if !accountIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: account id %q has invalid characters", ErrInvalidArgument, s)
	}
	return AccountID(s), nil
}

// UnmarshalJSON validates account ids coming from call arguments.
func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// Request panics when condition is false or a non-nil error.
// The host turns the panic into a reverted call.
func Request(condition any) {
	switch v := condition.(type) {
	case bool:
		if !v {
			panic(ErrExecutionReverted)
		}
	case error:
		if v != nil {
			panic(v)
		}
	}
}

// DecodeArgs unmarshals JSON call arguments into v. Empty args leave v untouched.
func DecodeArgs(args []byte, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal params: %v", ErrInvalidArgument, err)
	}
	return nil
}
