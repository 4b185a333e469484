/*
Package ingest implements the server-side bulk scan processor.

PURPOSE:
  Receives a batch of client-captured scan events, applies idempotent
  upsert-with-conflict-detection per item, and returns a structured per-item
  result set. This is the server half of the offline sync protocol: the
  client may replay the same batch any number of times and the ledger ends
  up with exactly one row per ClientID.

PER-ITEM ALGORITHM (each item is its own unit of work):
  1. Validate required fields        -> errors bucket, continue
  2. Lookup by ClientID              -> found: idempotent replay, report
                                        synced with the existing ServerID
  3. Atomic insert inside WithTx:
       - read the subject's recent events on the bus
       - DetectConflict decides synced|conflict
       - insert with SubjectID taken from the principal
     Uniqueness race loser          -> re-read, report as replay
  4. Unexpected persistence fault    -> errors bucket, siblings unaffected

BATCH RULES:
  - Empty batches and batches over scan.MaxBatchSize are rejected wholesale
    before any item is touched (request validation, not a per-item outcome).
  - No ordering is promised across items beyond "all items are attempted".

SEE ALSO:
  - scan/conflict.go: The pure detector run inside the insert transaction
  - scan/store.go:    Ledger interfaces this processor drives
  - api/handlers.go:  HTTP wiring around this processor
*/
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/scan-engine/scan"
)

// =============================================================================
// PRINCIPAL - Authenticated caller identity
// =============================================================================

// Principal is the resolved identity of an authenticated caller. SubjectID
// is stamped onto every inserted record; the payload's notion of who scanned
// is never trusted (prevents spoofing another subject's scan).
type Principal struct {
	SubjectID scan.SubjectID
	Role      string
}

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor applies bulk scan batches to the conflict ledger.
type Processor struct {
	Ledger scan.TxLedgerStore

	// Now and NewServerID are injectable for deterministic tests.
	Now         func() time.Time
	NewServerID func() scan.ServerID
}

// NewProcessor creates a processor over the given ledger.
func NewProcessor(ledger scan.TxLedgerStore) *Processor {
	return &Processor{
		Ledger:      ledger,
		Now:         time.Now,
		NewServerID: func() scan.ServerID { return scan.ServerID(uuid.NewString()) },
	}
}

// Ingest processes one batch on behalf of the principal.
//
// Returns an error only for request-level failures (empty or oversized
// batch); item-level failures land in the report's errors bucket.
func (p *Processor) Ingest(ctx context.Context, batch []scan.ScanEvent, principal Principal) (*scan.BulkReport, error) {
	if len(batch) == 0 {
		return nil, scan.ErrEmptyBatch
	}
	if len(batch) > scan.MaxBatchSize {
		return nil, &scan.BatchSizeError{Size: len(batch), Max: scan.MaxBatchSize}
	}

	report := &scan.BulkReport{}
	for _, ev := range batch {
		res, status := p.ingestOne(ctx, ev, principal)
		switch status {
		case scan.StatusSynced:
			report.Results.Synced = append(report.Results.Synced, res)
		case scan.StatusConflict:
			report.Results.Conflicts = append(report.Results.Conflicts, res)
		default:
			report.Results.Errors = append(report.Results.Errors, res)
		}
	}

	report.Summary = scan.Summary{
		Total:     len(batch),
		Synced:    len(report.Results.Synced),
		Conflicts: len(report.Results.Conflicts),
		Errors:    len(report.Results.Errors),
	}
	return report, nil
}

// ingestOne handles a single item. The returned status selects the result
// bucket; an empty status means the errors bucket.
func (p *Processor) ingestOne(ctx context.Context, ev scan.ScanEvent, principal Principal) (scan.ItemResult, scan.SyncStatus) {
	if err := scan.ValidateEvent(ev); err != nil {
		return scan.ItemResult{ClientID: ev.ClientID, Error: err.Error()}, ""
	}

	// Idempotent replay: a record for this ClientID already exists, so the
	// earlier attempt won. Report synced with the existing ServerID; this is
	// what makes the whole ingest safe to call twice with the same batch.
	existing, err := p.Ledger.FindByClientID(ctx, ev.ClientID)
	if err != nil {
		return scan.ItemResult{ClientID: ev.ClientID, Error: fmt.Sprintf("lookup failed: %v", err)}, ""
	}
	if existing != nil {
		return scan.ItemResult{
			ClientID: ev.ClientID,
			ServerID: existing.ServerID,
			Status:   scan.ItemAlreadySynced,
		}, scan.StatusSynced
	}

	rec, err := p.insert(ctx, ev, principal)
	if err != nil {
		if errors.Is(err, scan.ErrDuplicateClientID) {
			// Lost a concurrent-insert race for this ClientID. The winner's
			// row is the record; fall back to idempotent replay.
			if winner, lookupErr := p.Ledger.FindByClientID(ctx, ev.ClientID); lookupErr == nil && winner != nil {
				return scan.ItemResult{
					ClientID: ev.ClientID,
					ServerID: winner.ServerID,
					Status:   scan.ItemAlreadySynced,
				}, scan.StatusSynced
			}
		}
		return scan.ItemResult{ClientID: ev.ClientID, Error: err.Error()}, ""
	}

	if rec.SyncStatus == scan.StatusConflict {
		return scan.ItemResult{
			ClientID: ev.ClientID,
			ServerID: rec.ServerID,
			Status:   scan.ItemConflictDetected,
			Message:  "duplicate scan detected",
		}, scan.StatusConflict
	}
	return scan.ItemResult{
		ClientID: ev.ClientID,
		ServerID: rec.ServerID,
		Status:   scan.ItemSynced,
	}, scan.StatusSynced
}

// insert runs conflict detection and the write as one transactional unit,
// so two concurrent batches cannot both decide "no conflict" for the same
// physical boarding.
func (p *Processor) insert(ctx context.Context, ev scan.ScanEvent, principal Principal) (scan.ScanRecord, error) {
	now := p.Now().UTC()
	rec := scan.ScanRecord{
		ServerID:   p.NewServerID(),
		SubjectID:  principal.SubjectID,
		ScanEvent:  ev,
		ReceivedAt: now,
	}

	err := p.Ledger.WithTx(ctx, func(s scan.LedgerStore) error {
		recent, err := s.RecentBySubjectAndBus(ctx, principal.SubjectID, ev.BusID, now.Add(-scan.ConflictWindow))
		if err != nil {
			return fmt.Errorf("recent lookup failed: %w", err)
		}
		rec.SyncStatus = scan.DetectConflict(ev, recent)
		return s.Insert(ctx, rec)
	})
	if err != nil {
		return scan.ScanRecord{}, err
	}
	return rec, nil
}
