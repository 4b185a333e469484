/*
store.go - Persistence interfaces for the server-side conflict ledger

PURPOSE:
  Defines the interface between the ingest processor and the database.
  Different implementations can use SQLite or in-memory storage; the ingest
  semantics (idempotent replay, atomic insert-with-conflict-detection) are
  identical against either.

KEY INTERFACES:
  LedgerStore:   Core record persistence (find, recent, insert)
  TxLedgerStore: Transactional wrapper for atomic lookup+insert
  LedgerQueries: Read-side queries for history/occupancy endpoints

APPEND-ONLY CONTRACT:
  The ledger is the system of record. There is no Update and no Delete:
  a ScanRecord, once inserted, persists indefinitely with the status the
  conflict detector assigned at insert time.

UNIQUENESS:
  Insert enforces at most one record per ClientID and reports violations
  as scan.ErrDuplicateClientID. Two concurrent batches carrying the same
  ClientID cannot both insert; the loser observes the violation and falls
  back to idempotent replay.

IMPLEMENTATIONS:
  - store/sqlite:   Production SQLite (server tables)
  - scan/store:     In-memory for testing

SEE ALSO:
  - ingest/processor.go: The only writer of this interface
  - conflict.go:         Detector invoked inside the insert transaction
*/
package scan

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER STORE - Core persistence (append-only)
// =============================================================================

// LedgerStore handles persistence of scan records.
// IMPORTANT: append-only. No Update, no Delete. A record's SyncStatus is
// fixed at insert time by the conflict detector.
type LedgerStore interface {
	// FindByClientID returns the record for a client id, or nil if absent.
	FindByClientID(ctx context.Context, clientID ClientID) (*ScanRecord, error)

	// RecentBySubjectAndBus returns the subject's records on a bus with
	// LocalTimestamp at or after since. Feeds DetectConflict.
	RecentBySubjectAndBus(ctx context.Context, subjectID SubjectID, busID BusID, since time.Time) ([]ScanRecord, error)

	// Insert persists a record. Returns ErrDuplicateClientID if a record
	// with the same ClientID already exists. This is the ONLY write.
	Insert(ctx context.Context, rec ScanRecord) error
}

// TxLedgerStore wraps LedgerStore with transaction support. The ingest
// processor runs lookup + conflict detection + insert for one item inside
// WithTx so the decision and the write are a single atomic unit.
type TxLedgerStore interface {
	LedgerStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}

// =============================================================================
// LEDGER QUERIES - Read-side, for history and occupancy endpoints
// =============================================================================

// LedgerQueries extends the ledger with the queries the HTTP API serves.
type LedgerQueries interface {
	// BySubjectSince returns a subject's records with LocalTimestamp at or
	// after since, most recent first, capped at limit.
	BySubjectSince(ctx context.Context, subjectID SubjectID, since time.Time, limit int) ([]ScanRecord, error)

	// ByBusBetween returns a bus's records with LocalTimestamp in
	// [from, to), most recent first. Used for the per-day bus view and,
	// with a ConflictWindow lookback, for occupancy derivation.
	ByBusBetween(ctx context.Context, busID BusID, from, to time.Time) ([]ScanRecord, error)

	// CountByStatus returns the number of records with the given status.
	CountByStatus(ctx context.Context, status SyncStatus) (int, error)
}

// Ledger is the full server-side capability: transactional writes for the
// ingest processor plus the read-side queries.
type Ledger interface {
	TxLedgerStore
	LedgerQueries
}
