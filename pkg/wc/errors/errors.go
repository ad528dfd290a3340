// Package errors defines the error taxonomy of the working-copy metadata store.
// It is a leaf package so that the store, the pristine backends and the CLI
// can all inspect error codes without import cycles.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrPathNotFound indicates that no node and no actual row exists for a path.
	ErrPathNotFound ErrorCode = iota + 1

	// ErrPathUnexpectedStatus indicates a row exists but its presence or kind
	// is incompatible with the requested operation.
	ErrPathUnexpectedStatus

	// ErrCorrupt indicates an internal consistency check failed.
	ErrCorrupt

	// ErrLocked indicates a working-copy lock conflict.
	ErrLocked

	// ErrNotLocked indicates the caller does not hold the lock it tried to release.
	ErrNotLocked

	// ErrInvalidOperationDepth indicates an operation cannot be applied at the
	// requested depth (e.g. a shallow revert of a subtree operation).
	ErrInvalidOperationDepth

	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument

	// ErrCancelled indicates a cooperative cancellation callback stopped the operation.
	ErrCancelled

	// ErrPristineNotFound indicates the pristine store has no text for a checksum.
	ErrPristineNotFound
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrPathNotFound:
		return "PathNotFound"
	case ErrPathUnexpectedStatus:
		return "PathUnexpectedStatus"
	case ErrCorrupt:
		return "WCCorrupt"
	case ErrLocked:
		return "WCLocked"
	case ErrNotLocked:
		return "WCNotLocked"
	case ErrInvalidOperationDepth:
		return "InvalidOperationDepth"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrCancelled:
		return "Cancelled"
	case ErrPristineNotFound:
		return "PristineNotFound"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// WCError is the error type returned by the working-copy store.
//
// Path is the local relpath the error refers to (empty for wc-wide errors).
// Err optionally carries the underlying cause so that errors.Is / errors.As
// can see through to engine errors.
type WCError struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

func (e *WCError) Error() string {
	var msg string
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WCError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *WCError with the same code.
// This lets callers write errors.Is(err, &WCError{Code: ErrLocked}).
func (e *WCError) Is(target error) bool {
	t, ok := target.(*WCError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *WCError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var wcErr *WCError
	if stderrors.As(err, &wcErr) {
		return wcErr.Code
	}
	return 0
}

// HasCode reports whether err's chain contains a *WCError with code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsPathNotFound reports whether err is a PathNotFound error.
func IsPathNotFound(err error) bool {
	return HasCode(err, ErrPathNotFound)
}

// IsLocked reports whether err is a lock conflict.
func IsLocked(err error) bool {
	return HasCode(err, ErrLocked)
}

// Compose chains a primary error with a secondary one (typically a failed
// cleanup) so neither is lost. Nil inputs are skipped.
func Compose(err, other error) error {
	if err == nil {
		return other
	}
	if other == nil {
		return err
	}
	return stderrors.Join(err, other)
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewPathNotFoundError creates a PathNotFound error for relpath.
func NewPathNotFoundError(relpath string) *WCError {
	return &WCError{
		Code:    ErrPathNotFound,
		Message: fmt.Sprintf("the node '%s' was not found", relpath),
		Path:    relpath,
	}
}

// NewUnexpectedStatusError creates a PathUnexpectedStatus error.
func NewUnexpectedStatusError(relpath, format string, args ...any) *WCError {
	return &WCError{
		Code:    ErrPathUnexpectedStatus,
		Message: fmt.Sprintf(format, args...),
		Path:    relpath,
	}
}

// NewCorruptError creates a WC_CORRUPT error.
func NewCorruptError(relpath, format string, args ...any) *WCError {
	return &WCError{
		Code:    ErrCorrupt,
		Message: fmt.Sprintf(format, args...),
		Path:    relpath,
	}
}

// NewLockedError creates a WC_LOCKED error. via names the existing lock when
// it differs from the requested path.
func NewLockedError(relpath, via string) *WCError {
	msg := fmt.Sprintf("'%s' is already locked", relpath)
	if via != "" && via != relpath {
		msg = fmt.Sprintf("'%s' is already locked via '%s'", relpath, via)
	}
	return &WCError{
		Code:    ErrLocked,
		Message: msg,
		Path:    relpath,
	}
}

// NewNotLockedError creates an error for releasing a lock that is not held.
func NewNotLockedError(relpath string) *WCError {
	return &WCError{
		Code:    ErrNotLocked,
		Message: fmt.Sprintf("working copy not locked at '%s'", relpath),
		Path:    relpath,
	}
}

// NewInvalidOperationDepthError creates an InvalidOperationDepth error.
func NewInvalidOperationDepthError(relpath, format string, args ...any) *WCError {
	return &WCError{
		Code:    ErrInvalidOperationDepth,
		Message: fmt.Sprintf(format, args...),
		Path:    relpath,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(relpath, format string, args ...any) *WCError {
	return &WCError{
		Code:    ErrInvalidArgument,
		Message: fmt.Sprintf(format, args...),
		Path:    relpath,
	}
}

// NewCancelledError wraps the cause returned by a cancellation callback.
func NewCancelledError(relpath string, cause error) *WCError {
	return &WCError{
		Code:    ErrCancelled,
		Message: "operation cancelled",
		Path:    relpath,
		Err:     cause,
	}
}

// NewPristineNotFoundError creates an error for a missing pristine text.
func NewPristineNotFoundError(checksum string) *WCError {
	return &WCError{
		Code:    ErrPristineNotFound,
		Message: fmt.Sprintf("pristine text with checksum '%s' not found", checksum),
	}
}

// WithPath wraps err with path context unless it already is a *WCError.
func WithPath(err error, relpath string) error {
	if err == nil {
		return nil
	}
	var wcErr *WCError
	if stderrors.As(err, &wcErr) {
		return err
	}
	return fmt.Errorf("%s: %w", relpath, err)
}
