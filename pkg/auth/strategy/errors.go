package strategy

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by registration. The typed errors below match
// them with errors.Is.
var (
	ErrEmptyLabel        = errors.New("strategy label is empty")
	ErrMissingCapability = errors.New("strategy does not declare authenticate")
	ErrContractViolation = errors.New("value is not a strategy")
)

// MissingCapabilityError reports a candidate without an Authenticate method.
type MissingCapabilityError struct {
	Label Label
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("authenticate is not declared in the %q strategy", e.Label)
}

func (e *MissingCapabilityError) Is(target error) bool {
	return target == ErrMissingCapability
}

// ContractViolationError reports a candidate that implements Authenticate
// but does not embed Base.
type ContractViolationError struct {
	Label Label
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%q is not a Strategy", e.Label)
}

func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}
