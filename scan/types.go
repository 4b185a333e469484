/*
Package scan provides the core types for offline-first scan synchronization.

PURPOSE:
  This package contains the domain model shared by both sides of the sync
  pipeline: the client (recorder, durable queue, sync engine) and the server
  (ingest processor, conflict ledger). A scan is one boarding or alighting
  observation of a subject on a bus, captured by a device that may be offline
  for arbitrary periods.

KEY CONCEPTS IN THIS FILE (types.go):
  - ScanEvent:   A client-captured observation with client-assigned identity
  - ScanRecord:  The server-side row of record (ScanEvent + server identity)
  - ClientID:    Globally unique token, the idempotency key for the pipeline
  - SyncStatus:  Lifecycle status (pending client-side, synced/conflict server-side)
  - Coordinates: Optional geolocation, decimal-exact

DESIGN PRINCIPLES:
  1. Client identity: ClientID is assigned at capture time and never changes;
     every dedup decision keys off it
  2. Immutability: a ScanEvent is never mutated after capture; a ScanRecord
     is never updated after insert
  3. Server authority: SubjectID and SyncStatus are decided server-side;
     neither is trusted from a client payload
  4. Precision: geolocation uses decimal.Decimal so coordinates round-trip
     through JSON and SQL without float drift

SEE ALSO:
  - wire.go:     Bulk sync request/response contract
  - conflict.go: Logical-duplicate detection rules
  - store.go:    Server-side ledger persistence interfaces
*/
package scan

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ClientID is the client-generated globally unique token assigned at capture
// time. It is the idempotency key for the entire sync pipeline.
type ClientID string

// ServerID is the server-assigned identity of a persisted ScanRecord.
// Authoritative primary key; clients never generate it.
type ServerID string

type SubjectID string
type BusID string
type RouteID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// EventType distinguishes boarding from alighting.
type EventType string

const (
	EventIngress EventType = "ingress"
	EventEgress  EventType = "egress"
)

// SyncStatus tracks where a scan is in its lifecycle.
//
// Client-side, StatusPending is implicit: a record present in the durable
// queue IS pending. Server-side, status is decided at insert time by the
// conflict detector and never client-supplied.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
)

// =============================================================================
// GEOLOCATION
// =============================================================================

// Coordinates is an optional capture location. Decimal-valued so that
// coordinates survive JSON and SQL round-trips exactly.
type Coordinates struct {
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
}

// NewCoordinates builds Coordinates from float inputs (e.g. a browser
// geolocation fix).
func NewCoordinates(lat, lng float64) Coordinates {
	return Coordinates{
		Latitude:  decimal.NewFromFloat(lat),
		Longitude: decimal.NewFromFloat(lng),
	}
}

// =============================================================================
// SCAN EVENT - Created client-side at capture, immutable afterwards
// =============================================================================

// ScanEvent is one ingress/egress observation as captured on the device.
//
// LocalTimestamp is the client-clock time of capture and is the authoritative
// ordering key: server receipt time is meaningless for events that sat in an
// offline queue. SubjectID is deliberately absent; the server resolves it
// from the authenticated principal.
type ScanEvent struct {
	ClientID       ClientID        `json:"clientId" validate:"required"`
	BusID          BusID           `json:"busId" validate:"required"`
	RouteID        RouteID         `json:"routeId,omitempty"`
	EventType      EventType       `json:"eventType" validate:"required,oneof=ingress egress"`
	LocalTimestamp time.Time       `json:"localTimestamp" validate:"required"`
	Geolocation    *Coordinates    `json:"geolocation,omitempty"`
	DeviceInfo     json.RawMessage `json:"deviceInfo,omitempty"`
}

// =============================================================================
// SCAN RECORD - Server-side row of record
// =============================================================================

// ScanRecord is the persisted, server-authoritative form of a ScanEvent.
//
// INVARIANTS:
//   - At most one ScanRecord per ClientID (first-writer-wins, enforced
//     atomically at insert)
//   - SyncStatus is synced or conflict, decided by the conflict detector
//     inside the insert transaction, terminal once written
type ScanRecord struct {
	ServerID   ServerID  `json:"serverId"`
	SubjectID  SubjectID `json:"subjectId"`
	ScanEvent
	SyncStatus SyncStatus `json:"syncStatus"`
	ReceivedAt time.Time  `json:"receivedAt"`
}
