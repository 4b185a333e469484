/*
history.go - Append-only audit sink for confirmed scans

PURPOSE:
  Once the server confirms a scan (synced or conflict), it leaves the queue
  and lands here for the UI and audit. History is read-only after append;
  it is the device's local mirror of what the server acknowledged.
*/
package client

import (
	"context"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

// HistoryEntry records one server-confirmed scan.
type HistoryEntry struct {
	Event       scan.ScanEvent
	ServerID    scan.ServerID
	Status      scan.SyncStatus
	ConfirmedAt time.Time
}

// History is the append-only confirmation sink.
type History interface {
	Append(ctx context.Context, entry HistoryEntry) error

	// Recent returns the newest entries first, capped at limit.
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
}
