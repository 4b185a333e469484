/*
errors.go - Centralized error types for the scan pipeline

PURPOSE:
  All sentinel errors in one place for consistency and discoverability.
  Client and server packages wrap these with additional context.

ERROR CATEGORIES:
  1. Ledger errors     - ClientID uniqueness, missing records
  2. Batch errors      - Request-level validation (size), rejected wholesale
  3. Item errors       - Per-item validation, reported in the errors bucket
  4. Client errors     - Credential absence before any network call

USAGE:
  The ingest processor falls back to idempotent replay on uniqueness races:

    if errors.Is(err, scan.ErrDuplicateClientID) {
        // first writer won; re-read and report the winner's ServerID
    }
*/
package scan

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateClientID is returned by a ledger insert when a record with
	// the same ClientID already exists. This is expected behavior for retried
	// batches and for the loser of a concurrent-insert race; callers fall
	// back to idempotent replay, never surface it as a failure.
	ErrDuplicateClientID = errors.New("duplicate client id")

	// ErrRecordNotFound is returned when a ClientID lookup finds no record.
	ErrRecordNotFound = errors.New("scan record not found")

	// ErrBatchTooLarge is returned when a bulk request exceeds MaxBatchSize.
	// The whole request is rejected before any item is processed.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrEmptyBatch is returned when a bulk request carries no items.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrUnauthenticated is returned when the sync engine has no stored
	// credential. Sync aborts before any network call; the queue is untouched.
	ErrUnauthenticated = errors.New("no credential available")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingFieldsError reports an item that failed required-field validation.
// Item-level only: sibling items in the same batch are unaffected.
type MissingFieldsError struct {
	ClientID ClientID
	Fields   []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// BatchSizeError reports an oversized bulk request.
type BatchSizeError struct {
	Size int
	Max  int
}

func (e *BatchSizeError) Error() string {
	return fmt.Sprintf("batch of %d scans exceeds maximum of %d", e.Size, e.Max)
}

func (e *BatchSizeError) Unwrap() error {
	return ErrBatchTooLarge
}
