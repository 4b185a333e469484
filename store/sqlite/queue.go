/*
queue.go - On-device durable queue and local history

PURPOSE:
  The client half of this package: a SQLite-backed implementation of
  client.Queue and client.History. The queue is the device's retry buffer -
  a scan lives here from capture until the server confirms it, across
  process restarts and device reboots.

QUEUE SEMANTICS:
  - Enqueue assigns a ClientID when absent and is durable once it returns.
  - ListPending snapshots in enqueue order (seq), stable within one sync.
  - Remove by ClientID is what the sync engine calls per confirmed item;
    removing one id never disturbs another.

HISTORY:
  scan_history mirrors what the server acknowledged (synced or conflict),
  newest first on read. Append-only.

SEE ALSO:
  - client/queue.go:   Interface contract
  - client/sync.go:    The only consumer of ListPending/Remove
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/scan-engine/client"
	"github.com/campuslink/scan-engine/scan"
)

// ClientStore implements client.Queue and client.History on SQLite.
type ClientStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenClient opens (or creates) the on-device database at the given path.
// Use ":memory:" for tests.
func OpenClient(dbPath string) (*ClientStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open client database: %w", err)
	}

	cs := &ClientStore{db: db}
	if err := cs.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate client database: %w", err)
	}
	return cs, nil
}

// Close closes the database connection.
func (c *ClientStore) Close() error {
	return c.db.Close()
}

func (c *ClientStore) migrate() error {
	schema := `
	-- Pending scans (queue membership IS the pending marker)
	CREATE TABLE IF NOT EXISTS scan_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL UNIQUE,
		bus_id TEXT NOT NULL,
		route_id TEXT,
		event_type TEXT NOT NULL,
		local_timestamp TEXT NOT NULL,
		latitude TEXT,
		longitude TEXT,
		device_info TEXT,
		queued_at TEXT NOT NULL
	);

	-- Server-confirmed scans (append-only audit mirror)
	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		server_id TEXT NOT NULL,
		status TEXT NOT NULL,
		bus_id TEXT NOT NULL,
		route_id TEXT,
		event_type TEXT NOT NULL,
		local_timestamp TEXT NOT NULL,
		confirmed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_history_confirmed
		ON scan_history(confirmed_at);
	`

	_, err := c.db.Exec(schema)
	return err
}

// =============================================================================
// QUEUE (client.Queue interface)
// =============================================================================

// Enqueue durably stores a pending scan, assigning a ClientID if absent.
func (c *ClientStore) Enqueue(ctx context.Context, ev scan.ScanEvent) (scan.ClientID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ClientID == "" {
		ev.ClientID = scan.ClientID(uuid.NewString())
	}

	lat, lng := coordinateStrings(ev.Geolocation)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO scan_queue
		(client_id, bus_id, route_id, event_type, local_timestamp,
		 latitude, longitude, device_info, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ClientID,
		ev.BusID,
		nullString(string(ev.RouteID)),
		ev.EventType,
		formatTime(ev.LocalTimestamp),
		lat,
		lng,
		nullString(string(ev.DeviceInfo)),
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", scan.ErrDuplicateClientID
		}
		return "", fmt.Errorf("failed to enqueue scan: %w", err)
	}
	return ev.ClientID, nil
}

// ListPending returns all queued scans in enqueue order.
func (c *ClientStore) ListPending(ctx context.Context) ([]scan.ScanEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT client_id, bus_id, route_id, event_type, local_timestamp,
		       latitude, longitude, device_info
		FROM scan_queue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending scans: %w", err)
	}
	defer rows.Close()

	var result []scan.ScanEvent
	for rows.Next() {
		var (
			ev                  scan.ScanEvent
			routeID, deviceInfo sql.NullString
			latitude, longitude sql.NullString
			localTS             string
		)
		if err := rows.Scan(&ev.ClientID, &ev.BusID, &routeID, &ev.EventType,
			&localTS, &latitude, &longitude, &deviceInfo); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}

		ev.RouteID = scan.RouteID(routeID.String)
		if deviceInfo.Valid {
			ev.DeviceInfo = []byte(deviceInfo.String)
		}
		if latitude.Valid && longitude.Valid {
			coords, err := parseCoordinates(latitude.String, longitude.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse coordinates: %w", err)
			}
			ev.Geolocation = coords
		}
		if ev.LocalTimestamp, err = parseTime(localTS); err != nil {
			return nil, fmt.Errorf("failed to parse local timestamp: %w", err)
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// Remove deletes one confirmed scan from the queue.
func (c *ClientStore) Remove(ctx context.Context, clientID scan.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM scan_queue WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("failed to remove scan: %w", err)
	}
	return nil
}

// Clear empties the queue.
func (c *ClientStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM scan_queue`)
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// Count returns the number of pending scans.
func (c *ClientStore) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// =============================================================================
// HISTORY (client.History interface)
// =============================================================================

// Append records a server-confirmed scan.
func (c *ClientStore) Append(ctx context.Context, entry client.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO scan_history
		(client_id, server_id, status, bus_id, route_id, event_type,
		 local_timestamp, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Event.ClientID,
		entry.ServerID,
		entry.Status,
		entry.Event.BusID,
		nullString(string(entry.Event.RouteID)),
		entry.Event.EventType,
		formatTime(entry.Event.LocalTimestamp),
		formatTime(entry.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent returns the newest confirmed scans first.
func (c *ClientStore) Recent(ctx context.Context, limit int) ([]client.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT client_id, server_id, status, bus_id, route_id, event_type,
		       local_timestamp, confirmed_at
		FROM scan_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []client.HistoryEntry
	for rows.Next() {
		var (
			entry                client.HistoryEntry
			routeID              sql.NullString
			localTS, confirmedAt string
		)
		if err := rows.Scan(&entry.Event.ClientID, &entry.ServerID, &entry.Status,
			&entry.Event.BusID, &routeID, &entry.Event.EventType, &localTS, &confirmedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		entry.Event.RouteID = scan.RouteID(routeID.String)
		if entry.Event.LocalTimestamp, err = parseTime(localTS); err != nil {
			return nil, fmt.Errorf("failed to parse local timestamp: %w", err)
		}
		if entry.ConfirmedAt, err = parseTime(confirmedAt); err != nil {
			return nil, fmt.Errorf("failed to parse confirmed timestamp: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
