// Package bundle persists the paired artifacts of one training run: the
// feature contract, the fitted scaler, and the model, tied together by a
// versioned manifest.
package bundle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContractMismatch reports feature columns that do not match a persisted
// contract in order or presence. Scoring must fail on it before any score is
// computed.
var ErrContractMismatch = errors.New("feature contract mismatch")

// Contract is the ordered list of feature names a model was trained on.
type Contract []string

// Check verifies that the given column names match the contract exactly,
// including order. Silent reordering or zero-filling is never attempted.
func (c Contract) Check(names []string) error {
	if len(names) != len(c) {
		return fmt.Errorf("%w: got %d columns, contract has %d", ErrContractMismatch, len(names), len(c))
	}
	for i, name := range names {
		if name != c[i] {
			return fmt.Errorf("%w: column %d is %q, contract expects %q", ErrContractMismatch, i, name, c[i])
		}
	}
	return nil
}

// Encode renders the contract as a newline-delimited list, one name per line.
func (c Contract) Encode() []byte {
	return []byte(strings.Join(c, "\n") + "\n")
}

// ParseContract reads a newline-delimited contract back in persisted order.
func ParseContract(data []byte) (Contract, error) {
	var c Contract
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c = append(c, line)
	}
	if len(c) == 0 {
		return nil, errors.New("empty feature contract")
	}
	return c, nil
}
