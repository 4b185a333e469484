/*
recorder.go - Capture-time scan creation

PURPOSE:
  Creates a scan event at the moment of capture and enqueues it durably.
  Capture is synchronous with respect to the queue (the durable write must
  succeed before Capture returns) and never blocks on - or fails for - the
  network. The only failure mode is inability to persist locally.
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

var errMissingBus = errors.New("bus id is required")
var errBadEventType = errors.New("event type must be ingress or egress")

// CaptureInput is what the device knows at scan time. SubjectID is absent
// on purpose: the server resolves it from the authenticated principal.
type CaptureInput struct {
	BusID       scan.BusID
	RouteID     scan.RouteID
	EventType   scan.EventType
	Geolocation *scan.Coordinates
	DeviceInfo  json.RawMessage
}

// Recorder turns captures into queued scan events.
type Recorder struct {
	Queue Queue

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func NewRecorder(queue Queue) *Recorder {
	return &Recorder{Queue: queue, Clock: time.Now}
}

// Capture creates a scan event stamped with the client clock and enqueues
// it. Returns the assigned ClientID once the write is durable.
func (r *Recorder) Capture(ctx context.Context, in CaptureInput) (scan.ClientID, error) {
	if in.BusID == "" {
		return "", errMissingBus
	}
	if in.EventType != scan.EventIngress && in.EventType != scan.EventEgress {
		return "", errBadEventType
	}

	ev := scan.ScanEvent{
		BusID:          in.BusID,
		RouteID:        in.RouteID,
		EventType:      in.EventType,
		LocalTimestamp: r.Clock(),
		Geolocation:    in.Geolocation,
		DeviceInfo:     in.DeviceInfo,
	}

	clientID, err := r.Queue.Enqueue(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("queue scan: %w", err)
	}
	return clientID, nil
}
