// Package store provides in-memory Queue and History implementations
// (for testing/dev).
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/campuslink/scan-engine/client"
	"github.com/campuslink/scan-engine/scan"
)

// =============================================================================
// MEMORY QUEUE - In-memory implementation (for testing/dev)
// =============================================================================

type MemoryQueue struct {
	mu     sync.Mutex
	order  []scan.ClientID
	events map[scan.ClientID]scan.ScanEvent
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{events: make(map[scan.ClientID]scan.ScanEvent)}
}

// Enqueue adds an event, assigning a ClientID if absent.
func (q *MemoryQueue) Enqueue(_ context.Context, ev scan.ScanEvent) (scan.ClientID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ev.ClientID == "" {
		ev.ClientID = scan.ClientID(uuid.NewString())
	}
	if _, exists := q.events[ev.ClientID]; exists {
		return "", scan.ErrDuplicateClientID
	}

	q.events[ev.ClientID] = ev
	q.order = append(q.order, ev.ClientID)
	return ev.ClientID, nil
}

// ListPending returns a stable snapshot in enqueue order.
func (q *MemoryQueue) ListPending(context.Context) ([]scan.ScanEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]scan.ScanEvent, 0, len(q.order))
	for _, id := range q.order {
		result = append(result, q.events[id])
	}
	return result, nil
}

func (q *MemoryQueue) Remove(_ context.Context, clientID scan.ClientID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.events[clientID]; !exists {
		return nil
	}
	delete(q.events, clientID)
	for i, id := range q.order {
		if id == clientID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Clear(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order = nil
	q.events = make(map[scan.ClientID]scan.ScanEvent)
	return nil
}

func (q *MemoryQueue) Count(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order), nil
}

// =============================================================================
// MEMORY HISTORY
// =============================================================================

type MemoryHistory struct {
	mu      sync.Mutex
	entries []client.HistoryEntry
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Append(_ context.Context, entry client.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

// Recent returns the newest entries first.
func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]client.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]client.HistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, h.entries[i])
	}
	return result, nil
}
