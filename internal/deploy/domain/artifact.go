package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Artifact is a single named deployment unit: calldata sent to the singleton
// factory, plus the deterministic address it is expected to produce.
type Artifact struct {
	Name             string
	FactoryAddress   common.Address
	InitCode         []byte
	ExpectedAddress  *common.Address
	ExpectedCodeHash *common.Hash
}

// Validate rejects malformed artifacts before any network call is made.
func (a Artifact) Validate() error {
	var errs []error

	if a.Name == "" {
		errs = append(errs, errors.New("artifact name is required"))
	}
	if len(a.InitCode) == 0 {
		errs = append(errs, errors.New("artifact init code is empty"))
	}
	if a.FactoryAddress == (common.Address{}) {
		errs = append(errs, errors.New("artifact factory address is zero"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("artifact %q validation failed: %w", a.Name, errors.Join(errs...))
	}

	return nil
}
