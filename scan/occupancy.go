/*
occupancy.go - Read-side occupancy derivation

PURPOSE:
  Current occupancy of a bus is never stored; it is derived from the ledger:
  the distinct subjects whose most recent event on the bus, within the
  ConflictWindow, is an ingress with no subsequent egress.

  This mirrors the conflict detector's "currently inside" notion, applied
  across all subjects on one bus instead of one subject on one bus.
*/
package scan

import "sort"

// Occupants returns the subjects currently aboard, derived from the bus's
// recent records (all within ConflictWindow, any order). Result is sorted
// for deterministic output.
func Occupants(recent []ScanRecord) []SubjectID {
	type lastEvent struct {
		at        int64
		eventType EventType
	}

	latest := make(map[SubjectID]lastEvent)
	for _, rec := range recent {
		at := rec.LocalTimestamp.UnixNano()
		cur, ok := latest[rec.SubjectID]
		if !ok || at > cur.at {
			latest[rec.SubjectID] = lastEvent{at: at, eventType: rec.EventType}
		}
	}

	var aboard []SubjectID
	for subject, ev := range latest {
		if ev.eventType == EventIngress {
			aboard = append(aboard, subject)
		}
	}

	sort.Slice(aboard, func(i, j int) bool { return aboard[i] < aboard[j] })
	return aboard
}

// OccupancyCount returns the number of subjects currently aboard.
func OccupancyCount(recent []ScanRecord) int {
	return len(Occupants(recent))
}
