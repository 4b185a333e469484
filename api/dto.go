/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  JSON shapes for the read-side endpoints. The bulk sync contract itself
  lives in scan/wire.go because the client transport shares it; these types
  only cover the history/occupancy/debug views.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Response wrappers with success flag and counts
*/
package api

import (
	"time"

	"github.com/campuslink/scan-engine/scan"
)

// ScanRecordDTO represents one ledger row in API responses.
type ScanRecordDTO struct {
	ServerID       scan.ServerID     `json:"serverId"`
	ClientID       scan.ClientID     `json:"clientId"`
	SubjectID      scan.SubjectID    `json:"subjectId"`
	BusID          scan.BusID        `json:"busId"`
	RouteID        scan.RouteID      `json:"routeId,omitempty"`
	EventType      scan.EventType    `json:"eventType"`
	LocalTimestamp string            `json:"localTimestamp"`
	Geolocation    *scan.Coordinates `json:"geolocation,omitempty"`
	SyncStatus     scan.SyncStatus   `json:"syncStatus"`
	ReceivedAt     string            `json:"receivedAt"`
}

func toScanRecordDTO(rec scan.ScanRecord) ScanRecordDTO {
	return ScanRecordDTO{
		ServerID:       rec.ServerID,
		ClientID:       rec.ClientID,
		SubjectID:      rec.SubjectID,
		BusID:          rec.BusID,
		RouteID:        rec.RouteID,
		EventType:      rec.EventType,
		LocalTimestamp: rec.LocalTimestamp.UTC().Format(time.RFC3339),
		Geolocation:    rec.Geolocation,
		SyncStatus:     rec.SyncStatus,
		ReceivedAt:     rec.ReceivedAt.UTC().Format(time.RFC3339),
	}
}

func toScanRecordDTOs(recs []scan.ScanRecord) []ScanRecordDTO {
	dtos := make([]ScanRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toScanRecordDTO(rec)
	}
	return dtos
}

// SubjectScansResponse is the per-subject history view.
type SubjectScansResponse struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Scans   []ScanRecordDTO `json:"scans"`
}

// BusScansResponse is the per-bus daily view with derived occupancy.
type BusScansResponse struct {
	Success          bool             `json:"success"`
	BusID            scan.BusID       `json:"busId"`
	Date             string           `json:"date"`
	Count            int              `json:"count"`
	CurrentOccupancy int              `json:"currentOccupancy"`
	Occupants        []scan.SubjectID `json:"occupants"`
	Scans            []ScanRecordDTO  `json:"scans"`
}

// StatusCountsResponse reports ledger status totals (debugging aid).
type StatusCountsResponse struct {
	Success   bool `json:"success"`
	Synced    int  `json:"synced"`
	Conflicts int  `json:"conflicts"`
}
