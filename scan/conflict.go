/*
conflict.go - Logical-duplicate detection for scan events

PURPOSE:
  Two independent duplicate detectors are layered on the server:

  1. Identity-level (cheap, exact): the ClientID uniqueness constraint.
     Guarantees idempotent retry. Lives in the ledger store, not here.
  2. Logical-level (heuristic): a second physical boarding under a fresh
     ClientID. A subject whose most recent event on a bus (within the
     ConflictWindow) is an unmatched ingress is "currently inside"; another
     ingress for the same subject/bus pair is flagged conflict rather than
     silently accepted as a second boarding.

  DetectConflict is a pure function invoked synchronously inside the same
  atomic insert transaction - never a hidden database trigger - so the rule
  is testable without a database.

RULES:
  - Only ingress events can conflict. A duplicate egress is accepted as-is.
  - Conflict is terminal. A conflict row never transitions back to synced.
  - The window bounds the lookback: a forgotten egress from yesterday must
    not poison today's boarding.
*/
package scan

import "time"

// ConflictWindow bounds the logical-duplicate lookback. An unmatched ingress
// older than this no longer counts as "currently inside".
const ConflictWindow = 4 * time.Hour

// DetectConflict decides the SyncStatus of a new event given the subject's
// recent events on the same bus (all within ConflictWindow of now, any order).
//
// Returns StatusConflict when the new event is an ingress and the recent
// events show an ingress with no later egress. Returns StatusSynced otherwise.
func DetectConflict(ev ScanEvent, recent []ScanRecord) SyncStatus {
	if ev.EventType != EventIngress {
		return StatusSynced
	}

	var lastIngress, lastEgress time.Time
	for _, rec := range recent {
		switch rec.EventType {
		case EventIngress:
			if rec.LocalTimestamp.After(lastIngress) {
				lastIngress = rec.LocalTimestamp
			}
		case EventEgress:
			if rec.LocalTimestamp.After(lastEgress) {
				lastEgress = rec.LocalTimestamp
			}
		}
	}

	inside := !lastIngress.IsZero() && !lastEgress.After(lastIngress)
	if inside {
		return StatusConflict
	}
	return StatusSynced
}
