package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure a public operation can return wraps exactly
// one of these sentinels, so callers match with errors.Is rather than string
// inspection.
var (
	ErrNotInitialized     = errors.New("client not initialized")
	ErrAlreadyInitialized = errors.New("client already initialized")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidDepth       = errors.New("invalid tree depth")
	ErrInvalidOrder       = errors.New("invalid B-series order")
	ErrOEISViolation      = errors.New("OEIS A000081 compliance violation")
	ErrCapacity           = errors.New("capacity exceeded")
	ErrInvalidHandle      = errors.New("invalid instance handle")
	ErrMembrane           = errors.New("P-system membrane operation error")
	ErrProvider           = errors.New("compute provider failure")
	ErrOutOfMemory        = errors.New("out of memory")
)

// A ProviderError reports a failure from the compute provider. Code carries
// the provider's negative status verbatim for diagnostics; the client never
// reinterprets or retries it.
type ProviderError struct {
	Op   string
	Code int
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s failed (code %d): %v", e.Op, e.Code, e.Err)
	}

	return fmt.Sprintf("provider %s failed (code %d)", e.Op, e.Code)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches ProviderError against the ErrProvider sentinel so that the
// whole category can be tested with errors.Is.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// WrapProviderErr converts a raw provider failure into a ProviderError. The
// code is extracted from an existing ProviderError when the failure already
// is one, so nesting never loses the original status.
func WrapProviderErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return &ProviderError{Op: op, Code: pe.Code, Err: err}
	}

	return &ProviderError{Op: op, Code: -1, Err: err}
}

// Strerror maps an error to a short human-readable description. Provider
// failures keep their original code in the message.
func Strerror(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("Compute provider failure (code %d)", pe.Code)
	}

	switch {
	case err == nil:
		return "Success"
	case errors.Is(err, ErrNotInitialized):
		return "Client not initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "Client already initialized"
	case errors.Is(err, ErrInvalidDepth):
		return "Invalid tree depth"
	case errors.Is(err, ErrInvalidOrder):
		return "Invalid B-series order"
	case errors.Is(err, ErrOEISViolation):
		return "OEIS A000081 compliance violation"
	case errors.Is(err, ErrCapacity):
		return "Capacity exceeded"
	case errors.Is(err, ErrInvalidHandle):
		return "Invalid instance handle"
	case errors.Is(err, ErrMembrane):
		return "P-system membrane operation error"
	case errors.Is(err, ErrProvider):
		return "Compute provider failure"
	case errors.Is(err, ErrOutOfMemory):
		return "Out of memory"
	case errors.Is(err, ErrInvalidArgument):
		return "Invalid argument"
	default:
		return "Unknown error"
	}
}
