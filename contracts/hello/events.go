package hello

import (
	"fmt"

	"github.com/govm-net/hellokv/core"
)

// Event prefixes
const (
	DataSetPrefix  = "DATA_SET"
	DonationPrefix = "DONATION"
)

// Log lines are interpolated without escaping so existing consumers keep
// parsing them. A quote or brace inside a field produces invalid JSON.

func DataSetEvent(key, value string) string {
	return fmt.Sprintf(`%s: {"key": "%s", "value": "%s"}`, DataSetPrefix, key, value)
}

func DonationEvent(donor core.AccountID, amount string) string {
	return fmt.Sprintf(`%s: {"donor": "%s", "amount": "%s"}`, DonationPrefix, donor, amount)
}
