package triathlon

import (
	"errors"
	"fmt"
)

// Error classes for simulation operations.
// Use errors.Is() to check the class, then inspect the message for details.
//
// Error Classification:
//   - ErrConfig: invalid construction options - fix and restart
//   - ErrValidation: bad caller input - operation aborted, nothing mutated
//   - ErrNotFound: the referenced participant does not exist - nothing mutated
//   - ErrStorage: the participant store failed to read or write
var (
	// ErrConfig indicates a configuration error that prevents startup.
	// Examples: missing store, disqualification probability outside [0,1].
	ErrConfig = errors.New("configuration error")

	// ErrValidation indicates rejected input.
	// Examples: missing start time, age outside 18..60, duplicate id,
	// starting with no participants selected.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown participant id.
	// Examples: disqualify, update or delete of an id that is not registered.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates the store could not be read or written.
	// Malformed stored data is not an error: it is read as an empty set.
	ErrStorage = errors.New("storage error")
)

// Unexported helpers to wrap errors with the appropriate class.

func wrapConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfig, msg)
}

func wrapConfigf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func wrapValidationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func wrapNotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func wrapStorage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
