package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/scan-engine/client"
	"github.com/campuslink/scan-engine/client/store"
	"github.com/campuslink/scan-engine/scan"
)

func TestMemoryQueue_AssignsClientID(t *testing.T) {
	q := store.NewMemoryQueue()

	id, err := q.Enqueue(context.Background(), scan.ScanEvent{BusID: "B12", EventType: scan.EventIngress})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := q.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ClientID)
}

func TestMemoryQueue_PreservesEnqueueOrder(t *testing.T) {
	q := store.NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []scan.ClientID{"c", "a", "b"} {
		_, err := q.Enqueue(ctx, scan.ScanEvent{ClientID: id, BusID: "B12", EventType: scan.EventIngress})
		require.NoError(t, err)
	}

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	want := []scan.ClientID{"c", "a", "b"}
	for i, ev := range pending {
		assert.Equal(t, want[i], ev.ClientID)
	}
}

func TestMemoryQueue_DuplicateClientIDRejected(t *testing.T) {
	q := store.NewMemoryQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, scan.ScanEvent{ClientID: "cli-1", BusID: "B12", EventType: scan.EventIngress})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, scan.ScanEvent{ClientID: "cli-1", BusID: "B12", EventType: scan.EventIngress})
	assert.ErrorIs(t, err, scan.ErrDuplicateClientID)

	count, _ := q.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestMemoryQueue_RemoveIsIdempotent(t *testing.T) {
	q := store.NewMemoryQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, scan.ScanEvent{ClientID: "cli-1", BusID: "B12", EventType: scan.EventIngress})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, "cli-1"))
	require.NoError(t, q.Remove(ctx, "cli-1"))
	require.NoError(t, q.Remove(ctx, "cli-never-existed"))

	count, _ := q.Count(ctx)
	assert.Zero(t, count)
}

func TestMemoryQueue_Clear(t *testing.T) {
	q := store.NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []scan.ClientID{"a", "b"} {
		_, err := q.Enqueue(ctx, scan.ScanEvent{ClientID: id, BusID: "B12", EventType: scan.EventIngress})
		require.NoError(t, err)
	}

	require.NoError(t, q.Clear(ctx))
	count, _ := q.Count(ctx)
	assert.Zero(t, count)
}

func TestMemoryHistory_RecentNewestFirst(t *testing.T) {
	h := store.NewMemoryHistory()
	ctx := context.Background()
	base := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

	for i, id := range []scan.ServerID{"srv-1", "srv-2", "srv-3"} {
		err := h.Append(ctx, client.HistoryEntry{
			ServerID:    id,
			Status:      scan.StatusSynced,
			ConfirmedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, scan.ServerID("srv-3"), entries[0].ServerID)
	assert.Equal(t, scan.ServerID("srv-2"), entries[1].ServerID)
}
