package engine

import (
	"errors"
	"fmt"
)

// User-facing error classes. Handlers render the message into effects and
// return the classified error so callers can log or count it.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPolicyDenied        = errors.New("policy denied")
	ErrGateway             = errors.New("payment gateway error")
	ErrSessionExpired      = errors.New("session expired")
	ErrAddressResolution   = errors.New("deposit address not recognised")
	ErrFlowBusy            = errors.New("request already in progress")
	ErrStaleResponse       = errors.New("flow changed while waiting for provider")
)

func wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
