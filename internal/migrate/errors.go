package migrate

import (
	"errors"
	"fmt"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
)

// MigrationError represents a fatal condition detected during a migration
// run.
//
// Fatal conditions include:
//   - Connection failure: source or target unreachable before any write
//   - Write failure: a batch insert the pipeline cannot recover from
//   - Count mismatch: source and target disagree on a kind's record count
//   - Checksum mismatch: counts agree but content digests do not
//   - Cancellation: the run was stopped at a record or kind boundary
//
// Per-record skips (orphans, unresolvable references) are warnings, not
// MigrationErrors; they surface later through count verification.
type MigrationError struct {
	// Code identifies the error category.
	Code MigrationErrorCode

	// Message is a human-readable description.
	Message string

	// Kind identifies the affected entity kind, when one applies.
	Kind entity.Kind

	// Err is the underlying cause, when one exists.
	Err error

	// Details contains additional context.
	Details map[string]string
}

// MigrationErrorCode categorizes migration errors.
type MigrationErrorCode string

const (
	// ErrCodeConnectionFailed indicates the source or target could not be
	// reached. Raised before any write happens.
	ErrCodeConnectionFailed MigrationErrorCode = "CONNECTION_FAILED"

	// ErrCodeWriteFailed indicates a batch write the pipeline cannot recover
	// from (constraint violation, storage failure).
	ErrCodeWriteFailed MigrationErrorCode = "WRITE_FAILED"

	// ErrCodeCountMismatch indicates per-kind reconciliation failed.
	ErrCodeCountMismatch MigrationErrorCode = "COUNT_MISMATCH"

	// ErrCodeChecksumMismatch indicates content digests diverged between
	// source and target for a kind.
	ErrCodeChecksumMismatch MigrationErrorCode = "CHECKSUM_MISMATCH"

	// ErrCodeCancelled indicates the run stopped on an external cancellation
	// signal.
	ErrCodeCancelled MigrationErrorCode = "CANCELLED"

	// ErrCodeBackupFailed indicates the pre-run safety backup could not be
	// taken, so the migration refused to start writing.
	ErrCodeBackupFailed MigrationErrorCode = "BACKUP_FAILED"
)

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a MigrationError for an unreachable endpoint.
// role names the side that failed ("source" or "target database").
func NewConnectionError(role string, err error) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeConnectionFailed,
		Message: fmt.Sprintf("cannot connect to %s: %v", role, err),
		Err:     err,
		Details: map[string]string{"role": role},
	}
}

// NewWriteError creates a MigrationError for an unrecoverable write.
func NewWriteError(kind entity.Kind, err error) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeWriteFailed,
		Message: fmt.Sprintf("write failed: %v", err),
		Kind:    kind,
		Err:     err,
	}
}

// NewCountMismatchError creates a MigrationError naming the kind and both
// counts, as verification failures must be specific enough to act on.
func NewCountMismatchError(kind entity.Kind, source, target int64) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeCountMismatch,
		Message: fmt.Sprintf("source has %d %s, target has %d", source, kind, target),
		Kind:    kind,
		Details: map[string]string{
			"source_count": fmt.Sprintf("%d", source),
			"target_count": fmt.Sprintf("%d", target),
		},
	}
}

// NewChecksumMismatchError creates a MigrationError for diverged content
// digests.
func NewChecksumMismatchError(kind entity.Kind, sourceSum, targetSum string) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeChecksumMismatch,
		Message: fmt.Sprintf("content checksum diverged for %s", kind),
		Kind:    kind,
		Details: map[string]string{
			"source_checksum": sourceSum,
			"target_checksum": targetSum,
		},
	}
}

// NewCancelledError creates a MigrationError for an external cancellation.
func NewCancelledError(stage string, err error) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeCancelled,
		Message: fmt.Sprintf("cancelled during %s", stage),
		Err:     err,
		Details: map[string]string{"stage": stage},
	}
}

// NewBackupError creates a MigrationError for a failed safety backup.
func NewBackupError(err error) *MigrationError {
	return &MigrationError{
		Code:    ErrCodeBackupFailed,
		Message: fmt.Sprintf("pre-migration backup failed: %v", err),
		Err:     err,
	}
}

// IsConnectionError returns true if the error is a connection failure.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	return hasCode(err, ErrCodeConnectionFailed)
}

// IsCountMismatch returns true if the error is a count reconciliation
// failure.
func IsCountMismatch(err error) bool {
	return hasCode(err, ErrCodeCountMismatch)
}

// IsChecksumMismatch returns true if the error is a checksum reconciliation
// failure.
func IsChecksumMismatch(err error) bool {
	return hasCode(err, ErrCodeChecksumMismatch)
}

// IsCancelled returns true if the error is an external cancellation.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

func hasCode(err error, code MigrationErrorCode) bool {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
