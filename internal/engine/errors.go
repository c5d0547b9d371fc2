package engine

import (
	"errors"
	"fmt"

	"ferry/internal/domain"
)

// ErrJobNotPending is returned when a copy loses the pending→transferring
// claim: the job was dispatched elsewhere or resolved externally between
// the scheduler's query and the claim.
var ErrJobNotPending = errors.New("job is not pending")

// ErrJobNotFound is returned when copy is asked for a job id that does
// not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrReviewAlreadyResolved is returned when resolving a review item that
// already carries a resolution. Resolved items are immutable.
var ErrReviewAlreadyResolved = errors.New("review item already resolved")

// ErrResolutionNotOffered is returned when the requested resolution is
// not in the item's offered option set.
var ErrResolutionNotOffered = errors.New("resolution not offered")

// DBError wraps a store failure on a write that must be confirmed.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error: %s: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// CopyError is a classified copy-pipeline failure.
type CopyError struct {
	Kind domain.ErrorKind
	Path string
	Err  error

	// Populated only for hash mismatches.
	SourceHash string
	DestHash   string
}

func (e *CopyError) Error() string {
	switch e.Kind {
	case domain.ErrSourceMissing:
		return fmt.Sprintf("source file not found: %s", e.Path)
	case domain.ErrPermissionDenied:
		return fmt.Sprintf("permission denied: %s", e.Path)
	case domain.ErrDiskFull:
		return fmt.Sprintf("disk full: %s", e.Path)
	case domain.ErrHashMismatch:
		return fmt.Sprintf("hash mismatch: source=%s, dest=%s", e.SourceHash, e.DestHash)
	default:
		return fmt.Sprintf("I/O error: %s: %v", e.Path, e.Err)
	}
}

func (e *CopyError) Unwrap() error { return e.Err }

// Retryable reports whether the scheduler may re-dispatch the job
// automatically. Everything except transient I/O escalates.
func (e *CopyError) Retryable() bool { return e.Kind.Retryable() }

type ScanErrorKind string

const (
	ScanIntentNotFound      ScanErrorKind = "intent_not_found"
	ScanSourceLocNotFound   ScanErrorKind = "source_location_not_found"
	ScanDestLocNotFound     ScanErrorKind = "destination_location_not_found"
	ScanSourcePathNotExists ScanErrorKind = "source_path_not_exists"
	ScanSourcePathNotDir    ScanErrorKind = "source_path_not_a_directory"
	ScanWalkError           ScanErrorKind = "walk_error"
	ScanDatabaseError       ScanErrorKind = "database_error"
)

// ScanError is a classified scan failure. Per-entry skips never produce
// one; they are counted in the ScanResult instead.
type ScanError struct {
	Kind ScanErrorKind
	Msg  string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ScanError) Unwrap() error { return e.Err }

type SchedulerErrorKind string

const (
	SchedIntentNotFound SchedulerErrorKind = "intent_not_found"
	SchedDatabaseError  SchedulerErrorKind = "database_error"
)

type SchedulerError struct {
	Kind SchedulerErrorKind
	Msg  string
	Err  error
}

func (e *SchedulerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *SchedulerError) Unwrap() error { return e.Err }
