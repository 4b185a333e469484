/*
Package client implements the device side of the offline sync protocol:
the durable scan queue, the recorder, and the sync engine.

PURPOSE:
  A scan must never be lost and never duplicated, no matter how long the
  device stays offline. The queue is the durable retry buffer: membership in
  the queue IS the pending marker, and a scan leaves the queue only when the
  server has confirmed it (synced or conflict).

COMPONENTS:
  Queue:      durable pending-scan store (this file)
  Recorder:   capture-time event creation (recorder.go)
  SyncEngine: batched drain with at-most-one-concurrent-sync (sync.go)
  Transport:  bulk submission over HTTP (transport.go)
  History:    append-only audit sink for confirmed scans (history.go)

IMPLEMENTATIONS:
  - store/sqlite:  durable on-device queue (production)
  - client/store:  in-memory queue (tests)
*/
package client

import (
	"context"

	"github.com/campuslink/scan-engine/scan"
)

// Queue is the local durable store of scans not yet confirmed by the server.
//
// CONTRACT:
//   - Enqueue assigns a ClientID if the event has none (callers may
//     pre-assign for testability) and must confirm the durable write
//     before returning.
//   - ListPending returns a stable snapshot in enqueue order; ordering is
//     not causally meaningful but must be deterministic within one call.
//   - Remove by ClientID is safe concurrently with Enqueue of other ids.
//   - No implementation may touch the network.
type Queue interface {
	Enqueue(ctx context.Context, ev scan.ScanEvent) (scan.ClientID, error)
	ListPending(ctx context.Context) ([]scan.ScanEvent, error)
	Remove(ctx context.Context, clientID scan.ClientID) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
