package scan_test

import (
	"testing"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

func TestOccupants_EgressRemovesSubject(t *testing.T) {
	// GIVEN: A boards at T, B boards at T+1, A leaves at T+2
	// WHEN: Occupancy is derived immediately after
	// THEN: Exactly {B} is aboard
	recent := []scan.ScanRecord{
		record("stu-A", "B12", scan.EventIngress, t0),
		record("stu-B", "B12", scan.EventIngress, t0.Add(time.Minute)),
		record("stu-A", "B12", scan.EventEgress, t0.Add(2*time.Minute)),
	}

	occupants := scan.Occupants(recent)
	if len(occupants) != 1 || occupants[0] != "stu-B" {
		t.Errorf("expected [stu-B], got %v", occupants)
	}
	if n := scan.OccupancyCount(recent); n != 1 {
		t.Errorf("expected occupancy 1, got %d", n)
	}
}

func TestOccupants_EmptyBus(t *testing.T) {
	if occupants := scan.Occupants(nil); len(occupants) != 0 {
		t.Errorf("expected empty, got %v", occupants)
	}
}

func TestOccupants_SortedForDeterminism(t *testing.T) {
	recent := []scan.ScanRecord{
		record("stu-C", "B12", scan.EventIngress, t0),
		record("stu-A", "B12", scan.EventIngress, t0.Add(time.Minute)),
		record("stu-B", "B12", scan.EventIngress, t0.Add(2*time.Minute)),
	}

	occupants := scan.Occupants(recent)
	want := []scan.SubjectID{"stu-A", "stu-B", "stu-C"}
	if len(occupants) != len(want) {
		t.Fatalf("expected %v, got %v", want, occupants)
	}
	for i := range want {
		if occupants[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], occupants[i])
		}
	}
}

func TestOccupants_ReboardingCounts(t *testing.T) {
	// Board, leave, board again: the latest event wins.
	recent := []scan.ScanRecord{
		record("stu-A", "B12", scan.EventIngress, t0),
		record("stu-A", "B12", scan.EventEgress, t0.Add(time.Minute)),
		record("stu-A", "B12", scan.EventIngress, t0.Add(2*time.Minute)),
	}

	if n := scan.OccupancyCount(recent); n != 1 {
		t.Errorf("expected occupancy 1 after re-boarding, got %d", n)
	}
}
