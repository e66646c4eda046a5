package cloudsync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrNoProvider         = errors.New("no cloud provider configured")
	ErrProviderNotFound   = errors.New("cloud provider not found")
	ErrNotFound           = errors.New("not found")

	// ErrVersionConflict is matched by errors.Is for every ConflictError.
	ErrVersionConflict = errors.New("version conflict")
)

// NetworkError is a transient, provider originated failure.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func NewNetworkError(op string, statusCode int, err error) *NetworkError {
	return &NetworkError{Op: op, StatusCode: statusCode, Err: err}
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError signals that the base version supplied to an upload no longer
// matches the server. Providers return it wrapped in a NetworkError with
// status 409.
type ConflictError struct {
	ID             string
	BaseVersion    string
	CurrentVersion string
}

// NewConflictError wraps a version mismatch the way providers report it.
func NewConflictError(id, base, current string) *NetworkError {
	return &NetworkError{
		Op:         "upload",
		StatusCode: http.StatusConflict,
		Err:        &ConflictError{ID: id, BaseVersion: base, CurrentVersion: current},
	}
}

func (e *ConflictError) Error() string {
	if e.CurrentVersion == "" {
		return fmt.Sprintf("version conflict on %q: base %q is stale", e.ID, e.BaseVersion)
	}
	return fmt.Sprintf("version conflict on %q: base %q, server %q", e.ID, e.BaseVersion, e.CurrentVersion)
}

func (e *ConflictError) Is(target error) bool { return target == ErrVersionConflict }

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNetworkError reports whether err is, or wraps, a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// InvariantViolation is a programmer error such as a remote id drifting away
// from an already assigned blob id. It is never recovered from.
type InvariantViolation struct {
	Op       OpType
	HeaderID string
	Msg      string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s %s: %s", e.Op, e.HeaderID, e.Msg)
}
