package chain

import "github.com/cockroachdb/errors"

// The five error kinds of spec.md §7, each a concrete type so callers can
// errors.As into the kind they care about instead of string-matching.

// ValidationError wraps a rejected transaction or block: the payload is
// dropped, neither state nor chain is altered, and it is not rebroadcast.
type ValidationError struct{ cause error }

func (e *ValidationError) Error() string { return "validation rejected: " + e.cause.Error() }
func (e *ValidationError) Unwrap() error { return e.cause }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{cause: errors.Newf(format, args...)}
}

// TamperingError is raised when a persisted block fails replay during
// initialization (spec.md §4.5 "halt with a tampering warning"). It is
// the one error kind that halts the process.
type TamperingError struct{ cause error }

func (e *TamperingError) Error() string { return "tampering detected at load: " + e.cause.Error() }
func (e *TamperingError) Unwrap() error { return e.cause }

func NewTamperingError(height uint64, cause error) error {
	return &TamperingError{cause: errors.Wrapf(cause, "block at height %d failed replay", height)}
}

// PersistenceError surfaces an I/O failure writing a block; a caller must
// not acknowledge a block it failed to persist (spec.md §7).
type PersistenceError struct{ cause error }

func (e *PersistenceError) Error() string { return "persistence failed: " + e.cause.Error() }
func (e *PersistenceError) Unwrap() error { return e.cause }

func NewPersistenceError(cause error) error {
	return &PersistenceError{cause: errors.Wrap(cause, "persist block")}
}
