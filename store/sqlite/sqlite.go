/*
Package sqlite provides SQLite-backed implementations of the storage
interfaces on both sides of the sync pipeline.

PURPOSE:
  Server side: the scan_events table is the Conflict/Idempotency Ledger,
  the system of record (Store, this file). Client side: the on-device
  durable queue and local history (ClientStore, queue.go) - the IndexedDB
  analog for a device that must survive restarts with scans intact.

INTERFACES IMPLEMENTED (this file):
  scan.TxLedgerStore: FindByClientID / RecentBySubjectAndBus / Insert / WithTx
  scan.LedgerQueries: BySubjectSince / ByBusBetween / CountByStatus

APPEND-ONLY ENFORCEMENT:
  No UPDATE and no DELETE run against scan_events. A record's sync_status
  is fixed at insert time by the conflict detector.

UNIQUENESS:
  client_id carries a UNIQUE constraint. The loser of a concurrent insert
  for the same client id gets scan.ErrDuplicateClientID and the ingest
  processor falls back to idempotent replay.

TIME STORAGE:
  Timestamps are stored as fixed-width UTC text (nanosecond precision) so
  that lexicographic comparison in SQL matches chronological order.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer, better crash recovery.

SEE ALSO:
  - scan/store.go:        Interface definitions
  - ingest/processor.go:  The only writer
  - scan/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/campuslink/scan-engine/scan"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds: lexicographic order
// equals chronological order, which the range queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Store implements the server-side ledger interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite ledger store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Scan events (append-only conflict/idempotency ledger)
	CREATE TABLE IF NOT EXISTS scan_events (
		server_id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL UNIQUE,
		subject_id TEXT NOT NULL,
		bus_id TEXT NOT NULL,
		route_id TEXT,
		event_type TEXT NOT NULL,
		local_timestamp TEXT NOT NULL,
		latitude TEXT,
		longitude TEXT,
		device_info TEXT,
		sync_status TEXT NOT NULL,
		received_at TEXT NOT NULL
	);

	-- Conflict detection (hot path on every insert)
	CREATE INDEX IF NOT EXISTS idx_scan_events_subject_bus_time
		ON scan_events(subject_id, bus_id, local_timestamp);

	-- History and occupancy queries
	CREATE INDEX IF NOT EXISTS idx_scan_events_subject_time
		ON scan_events(subject_id, local_timestamp);
	CREATE INDEX IF NOT EXISTS idx_scan_events_bus_time
		ON scan_events(bus_id, local_timestamp);
	CREATE INDEX IF NOT EXISTS idx_scan_events_status
		ON scan_events(sync_status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same helpers
// serve direct calls and WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const scanColumns = `server_id, client_id, subject_id, bus_id, route_id, event_type,
	local_timestamp, latitude, longitude, device_info, sync_status, received_at`

// =============================================================================
// LEDGER STORE (scan.LedgerStore interface)
// =============================================================================

// FindByClientID returns the record for a client id, or nil if absent.
func (s *Store) FindByClientID(ctx context.Context, clientID scan.ClientID) (*scan.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByClientID(ctx, s.db, clientID)
}

func findByClientID(ctx context.Context, q querier, clientID scan.ClientID) (*scan.ScanRecord, error) {
	query := `SELECT ` + scanColumns + ` FROM scan_events WHERE client_id = ?`
	row := q.QueryRowContext(ctx, query, clientID)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scan by client id: %w", err)
	}
	return &rec, nil
}

// RecentBySubjectAndBus returns the subject's records on a bus at or after
// since, oldest first.
func (s *Store) RecentBySubjectAndBus(ctx context.Context, subjectID scan.SubjectID, busID scan.BusID, since time.Time) ([]scan.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentBySubjectAndBus(ctx, s.db, subjectID, busID, since)
}

func recentBySubjectAndBus(ctx context.Context, q querier, subjectID scan.SubjectID, busID scan.BusID, since time.Time) ([]scan.ScanRecord, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM scan_events
		WHERE subject_id = ? AND bus_id = ? AND local_timestamp >= ?
		ORDER BY local_timestamp ASC
	`
	return queryRecords(ctx, q, query, subjectID, busID, formatTime(since))
}

// Insert persists a record. Append-only; returns scan.ErrDuplicateClientID
// when the client id already exists.
func (s *Store) Insert(ctx context.Context, rec scan.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRecord(ctx, s.db, rec)
}

func insertRecord(ctx context.Context, q querier, rec scan.ScanRecord) error {
	query := `
		INSERT INTO scan_events
		(server_id, client_id, subject_id, bus_id, route_id, event_type,
		 local_timestamp, latitude, longitude, device_info, sync_status, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	lat, lng := coordinateStrings(rec.Geolocation)
	_, err := q.ExecContext(ctx, query,
		rec.ServerID,
		rec.ClientID,
		rec.SubjectID,
		rec.BusID,
		nullString(string(rec.RouteID)),
		rec.EventType,
		formatTime(rec.LocalTimestamp),
		lat,
		lng,
		nullString(string(rec.DeviceInfo)),
		rec.SyncStatus,
		formatTime(rec.ReceivedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return scan.ErrDuplicateClientID
		}
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (scan.TxLedgerStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(scan.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txLedger{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txLedger struct {
	tx *sql.Tx
}

func (t *txLedger) FindByClientID(ctx context.Context, clientID scan.ClientID) (*scan.ScanRecord, error) {
	return findByClientID(ctx, t.tx, clientID)
}

func (t *txLedger) RecentBySubjectAndBus(ctx context.Context, subjectID scan.SubjectID, busID scan.BusID, since time.Time) ([]scan.ScanRecord, error) {
	return recentBySubjectAndBus(ctx, t.tx, subjectID, busID, since)
}

func (t *txLedger) Insert(ctx context.Context, rec scan.ScanRecord) error {
	return insertRecord(ctx, t.tx, rec)
}

// =============================================================================
// LEDGER QUERIES (scan.LedgerQueries interface)
// =============================================================================

// BySubjectSince returns a subject's records, most recent first.
func (s *Store) BySubjectSince(ctx context.Context, subjectID scan.SubjectID, since time.Time, limit int) ([]scan.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + scanColumns + `
		FROM scan_events
		WHERE subject_id = ? AND local_timestamp >= ?
		ORDER BY local_timestamp DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1 // SQLite treats a negative limit as unbounded
	}
	return queryRecords(ctx, s.db, query, subjectID, formatTime(since), limit)
}

// ByBusBetween returns a bus's records in [from, to), most recent first.
func (s *Store) ByBusBetween(ctx context.Context, busID scan.BusID, from, to time.Time) ([]scan.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + scanColumns + `
		FROM scan_events
		WHERE bus_id = ? AND local_timestamp >= ? AND local_timestamp < ?
		ORDER BY local_timestamp DESC
	`
	return queryRecords(ctx, s.db, query, busID, formatTime(from), formatTime(to))
}

// CountByStatus returns the number of records with the given status.
func (s *Store) CountByStatus(ctx context.Context, status scan.SyncStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_events WHERE sync_status = ?`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count by status: %w", err)
	}
	return count, nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (scan.ScanRecord, error) {
	var (
		rec                 scan.ScanRecord
		routeID, deviceInfo sql.NullString
		latitude, longitude sql.NullString
		localTS, receivedAt string
	)

	err := row.Scan(
		&rec.ServerID,
		&rec.ClientID,
		&rec.SubjectID,
		&rec.BusID,
		&routeID,
		&rec.EventType,
		&localTS,
		&latitude,
		&longitude,
		&deviceInfo,
		&rec.SyncStatus,
		&receivedAt,
	)
	if err != nil {
		return rec, err
	}

	rec.RouteID = scan.RouteID(routeID.String)
	if deviceInfo.Valid {
		rec.DeviceInfo = []byte(deviceInfo.String)
	}
	if latitude.Valid && longitude.Valid {
		coords, err := parseCoordinates(latitude.String, longitude.String)
		if err != nil {
			return rec, fmt.Errorf("failed to parse coordinates: %w", err)
		}
		rec.Geolocation = coords
	}
	if rec.LocalTimestamp, err = parseTime(localTS); err != nil {
		return rec, fmt.Errorf("failed to parse local timestamp: %w", err)
	}
	if rec.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return rec, fmt.Errorf("failed to parse received timestamp: %w", err)
	}
	return rec, nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]scan.ScanRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var result []scan.ScanRecord
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func coordinateStrings(c *scan.Coordinates) (sql.NullString, sql.NullString) {
	if c == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: c.Latitude.String(), Valid: true},
		sql.NullString{String: c.Longitude.String(), Valid: true}
}

func parseCoordinates(lat, lng string) (*scan.Coordinates, error) {
	latitude, err := decimal.NewFromString(lat)
	if err != nil {
		return nil, err
	}
	longitude, err := decimal.NewFromString(lng)
	if err != nil {
		return nil, err
	}
	return &scan.Coordinates{Latitude: latitude, Longitude: longitude}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
