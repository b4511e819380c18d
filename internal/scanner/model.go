package scanner

import (
	"errors"
	"fmt"
	"time"
)

// Status of a reconciliation run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result summarizes one reconciliation of a folder.
type Result struct {
	ID          string     `json:"id"`
	FolderID    string     `json:"folder_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Added       int        `json:"added"`
	Updated     int        `json:"updated"`
	Removed     int        `json:"removed"`
	Skipped     int        `json:"skipped"`
	Unchanged   int        `json:"unchanged"`
	Error       string     `json:"error,omitempty"`
}

var (
	// ErrFolderNotFound is returned when the folder id is unknown.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrScanInProgress is returned when the folder is already being reconciled.
	ErrScanInProgress = errors.New("reconciliation already in progress for folder")
)

// IoError reports that the folder itself could not be read. Per-file
// failures are counted as skipped instead.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// PersistenceError reports a failed unit of work. Batches committed before
// it stay committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
