package service

import (
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrUnresolvedConflicts blocks Apply/Commit while any pair is still pending.
var ErrUnresolvedConflicts = errors.New("import: unresolved conflict pairs remain")

// ErrNoRoster is returned when the target roster does not exist.
var ErrNoRoster = errors.New("import: target roster not found")

// ParseError is fatal to the run: the file or its headers are malformed.
type ParseError struct {
	Stage string // "sniff", "header", "read"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse (%s): %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ColumnsUnmappedError aborts before any store call: required canonical
// fields could not be resolved from the sheet headers. The caller is expected
// to prompt for a manual mapping.
type ColumnsUnmappedError struct {
	Missing []string
}

func (e *ColumnsUnmappedError) Error() string {
	return fmt.Sprintf("import: required columns unmapped: %s", strings.Join(e.Missing, ", "))
}

// RowError is a per-row schema violation. The row is excluded from the write
// set but the error is collected, never silently dropped.
type RowError struct {
	OriginalIndex int    `json:"row"`
	Field         string `json:"field"`
	Reason        string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d %s: %s", e.OriginalIndex, e.Field, e.Reason)
}

// WriteError classifies a store failure so the executor can distinguish a
// tolerated merge from a fatal uniqueness violation.
type WriteError struct {
	Status                string
	Message               string
	IsConflict            bool
	IsExpectedMergeTarget bool
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s", e.Status, e.Message)
}

// classifyWriteError maps a raw store error onto the write-error contract.
// The (roster_id, start_no) unique index is the bulk upsert's merge target;
// a violation on exactly that index is a tolerated merge. Every other
// uniqueness violation (rank, reg_no) is a fatal conflict.
func classifyWriteError(err error) *WriteError {
	if err == nil {
		return nil
	}
	we := &WriteError{Status: "error", Message: err.Error()}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrConstraint {
			we.Status = "conflict"
			we.IsConflict = true
			we.IsExpectedMergeTarget = strings.Contains(se.Error(), "players.start_no")
		}
		return we
	}
	// Fallback for wrapped or driver-mangled errors where the typed
	// sqlite3 error is not recoverable.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		we.Status = "conflict"
		we.IsConflict = true
		we.IsExpectedMergeTarget = strings.Contains(err.Error(), "players.start_no")
	}
	return we
}
