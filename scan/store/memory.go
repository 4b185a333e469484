// Package store provides in-memory Ledger implementations (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

// =============================================================================
// MEMORY LEDGER - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	byClient map[scan.ClientID]scan.ScanRecord
	records  []scan.ScanRecord // insertion order
}

func NewMemory() *Memory {
	return &Memory{byClient: make(map[scan.ClientID]scan.ScanRecord)}
}

func (m *Memory) FindByClientID(_ context.Context, clientID scan.ClientID) (*scan.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(clientID), nil
}

func (m *Memory) RecentBySubjectAndBus(_ context.Context, subjectID scan.SubjectID, busID scan.BusID, since time.Time) ([]scan.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(subjectID, busID, since), nil
}

// Insert adds a record. Append-only; fails on a duplicate ClientID.
func (m *Memory) Insert(_ context.Context, rec scan.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec)
}

func (m *Memory) findLocked(clientID scan.ClientID) *scan.ScanRecord {
	if rec, ok := m.byClient[clientID]; ok {
		copied := rec
		return &copied
	}
	return nil
}

func (m *Memory) recentLocked(subjectID scan.SubjectID, busID scan.BusID, since time.Time) []scan.ScanRecord {
	var result []scan.ScanRecord
	for _, rec := range m.records {
		if rec.SubjectID == subjectID && rec.BusID == busID && !rec.LocalTimestamp.Before(since) {
			result = append(result, rec)
		}
	}
	return result
}

func (m *Memory) insertLocked(rec scan.ScanRecord) error {
	if _, exists := m.byClient[rec.ClientID]; exists {
		return scan.ErrDuplicateClientID
	}
	m.byClient[rec.ClientID] = rec
	m.records = append(m.records, rec)
	return nil
}

// =============================================================================
// READ-SIDE QUERIES (scan.LedgerQueries)
// =============================================================================

func (m *Memory) BySubjectSince(_ context.Context, subjectID scan.SubjectID, since time.Time, limit int) ([]scan.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []scan.ScanRecord
	for _, rec := range m.records {
		if rec.SubjectID == subjectID && !rec.LocalTimestamp.Before(since) {
			result = append(result, rec)
		}
	}
	sortRecentFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) ByBusBetween(_ context.Context, busID scan.BusID, from, to time.Time) ([]scan.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []scan.ScanRecord
	for _, rec := range m.records {
		if rec.BusID == busID && !rec.LocalTimestamp.Before(from) && rec.LocalTimestamp.Before(to) {
			result = append(result, rec)
		}
	}
	sortRecentFirst(result)
	return result, nil
}

func (m *Memory) CountByStatus(_ context.Context, status scan.SyncStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.records {
		if rec.SyncStatus == status {
			count++
		}
	}
	return count, nil
}

func sortRecentFirst(recs []scan.ScanRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].LocalTimestamp.After(recs[j].LocalTimestamp)
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY LEDGER
// =============================================================================

// WithTx executes fn within a transaction. For the memory ledger this is
// simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(scan.LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txMemoryView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	byClient map[scan.ClientID]scan.ScanRecord
	records  []scan.ScanRecord
}

func (m *Memory) snapshot() memorySnapshot {
	byClient := make(map[scan.ClientID]scan.ScanRecord, len(m.byClient))
	for k, v := range m.byClient {
		byClient[k] = v
	}
	records := append([]scan.ScanRecord{}, m.records...)
	return memorySnapshot{byClient: byClient, records: records}
}

func (m *Memory) restore(s memorySnapshot) {
	m.byClient = s.byClient
	m.records = s.records
}

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindByClientID(_ context.Context, clientID scan.ClientID) (*scan.ScanRecord, error) {
	return tv.parent.findLocked(clientID), nil
}

func (tv *txMemoryView) RecentBySubjectAndBus(_ context.Context, subjectID scan.SubjectID, busID scan.BusID, since time.Time) ([]scan.ScanRecord, error) {
	return tv.parent.recentLocked(subjectID, busID, since), nil
}

func (tv *txMemoryView) Insert(_ context.Context, rec scan.ScanRecord) error {
	return tv.parent.insertLocked(rec)
}
