/*
sync.go - The sync engine

PURPOSE:
  Drains the durable queue in bounded batches, submits them to the server,
  and removes only server-confirmed scans. Runs opportunistically: periodic
  timer, connectivity-regained kick, explicit user action, or a host
  background-retry facility - all funneled through the same in-flight guard.

CRITICAL INVARIANTS:
  1. AT-MOST-ONE-CONCURRENT-SYNC: overlapping SyncNow calls collapse to one
     submission; the loser returns immediately with Skipped set. The guard
     is held across all network I/O and released on every exit path.
  2. QUEUE CONSERVATION: a scan leaves the queue only when the server
     reported it synced or conflict. Transport failure, item-level errors,
     and unreported items all leave the queue untouched for the next pass.
  3. CONFLICT IS TERMINAL: a conflict is a server-confirmed outcome, not a
     failure. It leaves the queue exactly like synced, or it would be
     retransmitted forever.

RETRY MODEL:
  The queue is the retry buffer; there is no retry counter and no backoff
  state. On transport failure the engine optionally registers a deferred
  retry with the host platform (RetryRegistrar) and otherwise waits for the
  next trigger.

SEE ALSO:
  - queue.go:     The durable buffer this engine drains
  - transport.go: One submission per chunk
  - history.go:   Where confirmed scans land
*/
package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

func errNoCredential() error {
	return fmt.Errorf("sync requires a signed-in session: %w", scan.ErrUnauthenticated)
}

// RetryRegistrar is an optional host-platform capability: ask for one
// deferred sync attempt when connectivity returns (the service-worker
// background-sync analog). The engine degrades to timer-only retry when nil.
type RetryRegistrar interface {
	RegisterRetry(ctx context.Context) error
}

// Outcome reports one SyncNow pass.
type Outcome struct {
	// Skipped is set when another sync was already in flight; nothing was
	// read or submitted.
	Skipped bool

	Attempted int // scans submitted across all chunks
	Synced    int
	Conflicts int
	Errors    int // item-level errors, still queued
	Remaining int // queue size after the pass
}

// Confirmed returns how many scans the server durably accepted.
func (o Outcome) Confirmed() int { return o.Synced + o.Conflicts }

// SyncEngine drains the queue toward the server.
//
// Construct with NewSyncEngine; History and Retry are optional and may be
// set before first use.
type SyncEngine struct {
	queue     Queue
	transport Transport
	creds     CredentialProvider

	History History        // optional confirmation sink
	Retry   RetryRegistrar // optional deferred-retry capability

	// MaxBatch is the per-submission chunk bound. Defaults to
	// scan.MaxBatchSize; tests may lower it.
	MaxBatch int

	// Clock is injectable for deterministic tests.
	Clock func() time.Time

	syncing atomic.Bool
	kick    chan struct{}
}

func NewSyncEngine(queue Queue, transport Transport, creds CredentialProvider) *SyncEngine {
	return &SyncEngine{
		queue:     queue,
		transport: transport,
		creds:     creds,
		MaxBatch:  scan.MaxBatchSize,
		Clock:     time.Now,
		kick:      make(chan struct{}, 1),
	}
}

// SyncNow drains the queue once. Idempotent and re-entrant-safe: if a sync
// is already in flight the call is a no-op returning Skipped.
func (e *SyncEngine) SyncNow(ctx context.Context) (Outcome, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Outcome{Skipped: true}, nil
	}
	// Guard release on every exit path, including panics below.
	defer e.syncing.Store(false)

	return e.drain(ctx)
}

// SyncIfPending invokes SyncNow only when the queue is non-empty.
func (e *SyncEngine) SyncIfPending(ctx context.Context) (Outcome, error) {
	count, err := e.queue.Count(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("count pending: %w", err)
	}
	if count == 0 {
		return Outcome{}, nil
	}
	return e.SyncNow(ctx)
}

func (e *SyncEngine) drain(ctx context.Context) (Outcome, error) {
	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return Outcome{}, nil
	}

	// Fail fast with the queue untouched when there is no credential.
	token, err := e.creds.Token(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for start := 0; start < len(pending); start += e.MaxBatch {
		end := start + e.MaxBatch
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		resp, err := e.transport.SubmitBatch(ctx, token, chunk)
		if err != nil {
			// Nothing from this chunk was confirmed; the queue keeps it.
			// Earlier chunks were already confirmed and removed.
			e.registerRetry(ctx)
			out.Remaining = e.remaining(ctx)
			return out, err
		}

		out.Attempted += len(chunk)
		out.Synced += len(resp.Results.Synced)
		out.Conflicts += len(resp.Results.Conflicts)
		out.Errors += len(resp.Results.Errors)

		if err := e.confirm(ctx, chunk, resp.Results); err != nil {
			out.Remaining = e.remaining(ctx)
			return out, err
		}
	}

	out.Remaining = e.remaining(ctx)
	return out, nil
}

// confirm removes server-confirmed scans from the queue and appends them to
// history. Items in the errors bucket, or not reported at all, stay queued.
func (e *SyncEngine) confirm(ctx context.Context, chunk []scan.ScanEvent, results scan.BulkResults) error {
	byClientID := make(map[scan.ClientID]scan.ScanEvent, len(chunk))
	for _, ev := range chunk {
		byClientID[ev.ClientID] = ev
	}

	for _, item := range results.Confirmed() {
		ev, ok := byClientID[item.ClientID]
		if !ok {
			// Server confirmed an id we did not send in this chunk; there
			// is nothing to remove.
			continue
		}
		if err := e.queue.Remove(ctx, item.ClientID); err != nil {
			return fmt.Errorf("remove confirmed scan %s: %w", item.ClientID, err)
		}
		e.appendHistory(ctx, ev, item)
	}
	return nil
}

func (e *SyncEngine) appendHistory(ctx context.Context, ev scan.ScanEvent, item scan.ItemResult) {
	if e.History == nil {
		return
	}
	status := scan.StatusSynced
	if item.Status == scan.ItemConflictDetected {
		status = scan.StatusConflict
	}
	// History is best-effort audit data; a failed append must not put the
	// scan back in the queue.
	_ = e.History.Append(ctx, HistoryEntry{
		Event:       ev,
		ServerID:    item.ServerID,
		Status:      status,
		ConfirmedAt: e.Clock(),
	})
}

func (e *SyncEngine) registerRetry(ctx context.Context) {
	if e.Retry == nil {
		return
	}
	_ = e.Retry.RegisterRetry(ctx)
}

func (e *SyncEngine) remaining(ctx context.Context) int {
	count, err := e.queue.Count(ctx)
	if err != nil {
		return 0
	}
	return count
}

// =============================================================================
// TRIGGERS - periodic timer and connectivity kick
// =============================================================================

// Kick requests a sync pass outside the timer, e.g. on a connectivity-
// regained signal or an explicit user action. Non-blocking; multiple kicks
// before the loop wakes coalesce into one pass.
func (e *SyncEngine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run drives the engine until ctx is done: one pass per tick and one per
// Kick. Errors are returned to the caller's onError (which may be nil);
// the loop itself never stops on a sync failure - the queue holds the
// backlog for the next trigger.
func (e *SyncEngine) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.kick:
		}

		if _, err := e.SyncIfPending(ctx); err != nil && onError != nil {
			onError(err)
		}
	}
}
