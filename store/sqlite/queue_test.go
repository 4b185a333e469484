package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/scan-engine/client"
	"github.com/campuslink/scan-engine/scan"
	"github.com/campuslink/scan-engine/store/sqlite"
)

func newTestClientStore(t *testing.T) *sqlite.ClientStore {
	t.Helper()
	cs, err := sqlite.OpenClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func queuedEvent(clientID scan.ClientID, at time.Time) scan.ScanEvent {
	return scan.ScanEvent{
		ClientID:       clientID,
		BusID:          "B12",
		EventType:      scan.EventIngress,
		LocalTimestamp: at,
	}
}

// =============================================================================
// QUEUE
// =============================================================================

func TestClientQueue_EnqueueAssignsClientID(t *testing.T) {
	cs := newTestClientStore(t)

	id, err := cs.Enqueue(context.Background(), scan.ScanEvent{
		BusID:          "B12",
		EventType:      scan.EventIngress,
		LocalTimestamp: base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestClientQueue_ListPendingInEnqueueOrder(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	// Enqueue order deliberately disagrees with timestamp order.
	for i, id := range []scan.ClientID{"cli-z", "cli-a", "cli-m"} {
		_, err := cs.Enqueue(ctx, queuedEvent(id, base.Add(-time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	pending, err := cs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, scan.ClientID("cli-z"), pending[0].ClientID)
	assert.Equal(t, scan.ClientID("cli-a"), pending[1].ClientID)
	assert.Equal(t, scan.ClientID("cli-m"), pending[2].ClientID)
}

func TestClientQueue_RoundTripsOptionalFields(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	coords := scan.NewCoordinates(-6.2088, 106.8456)
	ev := queuedEvent("cli-1", base)
	ev.RouteID = "R3"
	ev.Geolocation = &coords
	ev.DeviceInfo = []byte(`{"ua":"scanner-app/2.1"}`)

	_, err := cs.Enqueue(ctx, ev)
	require.NoError(t, err)

	pending, err := cs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got := pending[0]
	assert.Equal(t, scan.RouteID("R3"), got.RouteID)
	assert.True(t, ev.LocalTimestamp.Equal(got.LocalTimestamp))
	require.NotNil(t, got.Geolocation)
	assert.True(t, coords.Longitude.Equal(got.Geolocation.Longitude))
	assert.JSONEq(t, string(ev.DeviceInfo), string(got.DeviceInfo))
}

func TestClientQueue_DuplicateClientIDRejected(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	_, err := cs.Enqueue(ctx, queuedEvent("cli-1", base))
	require.NoError(t, err)

	_, err = cs.Enqueue(ctx, queuedEvent("cli-1", base.Add(time.Minute)))
	assert.ErrorIs(t, err, scan.ErrDuplicateClientID)
}

func TestClientQueue_RemoveOnlyTargetsOneScan(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	for _, id := range []scan.ClientID{"cli-1", "cli-2", "cli-3"} {
		_, err := cs.Enqueue(ctx, queuedEvent(id, base))
		require.NoError(t, err)
	}

	require.NoError(t, cs.Remove(ctx, "cli-2"))

	pending, err := cs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, scan.ClientID("cli-1"), pending[0].ClientID)
	assert.Equal(t, scan.ClientID("cli-3"), pending[1].ClientID)

	// Removing an unknown id is a no-op.
	require.NoError(t, cs.Remove(ctx, "cli-unknown"))
}

func TestClientQueue_ClearAndCount(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	for _, id := range []scan.ClientID{"cli-1", "cli-2"} {
		_, err := cs.Enqueue(ctx, queuedEvent(id, base))
		require.NoError(t, err)
	}

	count, err := cs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, cs.Clear(ctx))
	count, err = cs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClientQueue_SurvivesReopen(t *testing.T) {
	// GIVEN: A scan queued to an on-disk database
	// WHEN: The store is closed and reopened (process restart)
	// THEN: The scan is still pending
	path := filepath.Join(t.TempDir(), "scanctl.db")
	ctx := context.Background()

	cs, err := sqlite.OpenClient(path)
	require.NoError(t, err)
	_, err = cs.Enqueue(ctx, queuedEvent("cli-1", base))
	require.NoError(t, err)
	require.NoError(t, cs.Close())

	reopened, err := sqlite.OpenClient(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, scan.ClientID("cli-1"), pending[0].ClientID)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestClientHistory_RecentNewestFirst(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	for i, id := range []scan.ServerID{"srv-1", "srv-2", "srv-3"} {
		err := cs.Append(ctx, client.HistoryEntry{
			Event:       queuedEvent(scan.ClientID("cli-"+string(id)), base),
			ServerID:    id,
			Status:      scan.StatusSynced,
			ConfirmedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := cs.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, scan.ServerID("srv-3"), entries[0].ServerID)
	assert.Equal(t, scan.ServerID("srv-2"), entries[1].ServerID)
}

func TestClientHistory_RecordsConflictStatus(t *testing.T) {
	cs := newTestClientStore(t)
	ctx := context.Background()

	err := cs.Append(ctx, client.HistoryEntry{
		Event:       queuedEvent("cli-1", base),
		ServerID:    "srv-1",
		Status:      scan.StatusConflict,
		ConfirmedAt: base,
	})
	require.NoError(t, err)

	entries, err := cs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, scan.StatusConflict, entries[0].Status)
	assert.Equal(t, scan.BusID("B12"), entries[0].Event.BusID)
}
