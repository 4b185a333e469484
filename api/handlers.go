/*
handlers.go - HTTP API handlers for the scan sync service

PURPOSE:
  Exposes the ingest processor and the conflict ledger via REST. Handles
  HTTP request/response and JSON serialization, delegating all sync
  semantics to the ingest and scan packages.

ENDPOINTS:
  POST /api/scans/bulk           Bulk sync offline scans (the core endpoint)
  GET  /api/scans/student/{id}   Scan history for a subject (?days=7&limit=50)
  GET  /api/scans/bus/{id}       Scans for a bus on a day (?date=YYYY-MM-DD)
                                 plus derived current occupancy
  GET  /api/scans/pending        Ledger status counts (debugging)

ERROR HANDLING:
  Errors are returned as a JSON envelope with appropriate HTTP status:
  - 400: malformed body, empty batch, oversized batch, bad query params
  - 401: missing/invalid bearer token (auth.go)
  - 403: student reading another subject's history
  - 500: ledger faults

  Item-level ingest failures are NOT HTTP errors: the bulk endpoint
  returns 200 with the per-item partition, because a malformed item must
  not block its siblings.

SEE ALSO:
  - ingest/processor.go: Batch semantics behind the bulk endpoint
  - auth.go:             Principal resolution
  - server.go:           Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuslink/scan-engine/ingest"
	"github.com/campuslink/scan-engine/scan"
)

const (
	defaultHistoryDays  = 7
	defaultHistoryLimit = 50
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    scan.Ledger
	Processor *ingest.Processor

	// Now is injectable for deterministic occupancy tests.
	Now func() time.Time
}

// NewHandler creates a handler over the given ledger.
func NewHandler(ledger scan.Ledger) *Handler {
	return &Handler{
		Ledger:    ledger,
		Processor: ingest.NewProcessor(ledger),
		Now:       time.Now,
	}
}

// =============================================================================
// BULK SYNC - the core offline sync endpoint
// =============================================================================

// BulkSync ingests a batch of offline-captured scans.
func (h *Handler) BulkSync(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req scan.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input", err)
		return
	}

	report, err := h.Processor.Ingest(r.Context(), req.Scans, principal)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrEmptyBatch):
			writeError(w, http.StatusBadRequest, "Scans must be a non-empty array", err)
		case errors.Is(err, scan.ErrBatchTooLarge):
			writeError(w, http.StatusBadRequest, "Too many scans", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to sync scans", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, scan.BulkResponse{Success: true, BulkReport: *report})
}

// =============================================================================
// READ-SIDE VIEWS
// =============================================================================

// SubjectScans returns a subject's recent scan history.
func (h *Handler) SubjectScans(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	subjectID := scan.SubjectID(chi.URLParam(r, "subjectID"))

	// Students can only view their own scans.
	if principal.Role == "student" && principal.SubjectID != subjectID {
		writeError(w, http.StatusForbidden, "You can only view your own scan history", nil)
		return
	}

	days := queryInt(r, "days", defaultHistoryDays)
	limit := queryInt(r, "limit", defaultHistoryLimit)
	since := h.Now().AddDate(0, 0, -days)

	recs, err := h.Ledger.BySubjectSince(r.Context(), subjectID, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve scan history", err)
		return
	}

	writeJSON(w, http.StatusOK, SubjectScansResponse{
		Success: true,
		Count:   len(recs),
		Scans:   toScanRecordDTOs(recs),
	})
}

// BusScans returns a bus's scans for one day plus its current occupancy.
func (h *Handler) BusScans(w http.ResponseWriter, r *http.Request) {
	busID := scan.BusID(chi.URLParam(r, "busID"))
	now := h.Now()

	day := now.UTC().Format("2006-01-02")
	if d := r.URL.Query().Get("date"); d != "" {
		day = d
	}
	from, err := time.Parse("2006-01-02", day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}

	recs, err := h.Ledger.ByBusBetween(r.Context(), busID, from, from.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve bus scans", err)
		return
	}

	recent, err := h.Ledger.ByBusBetween(r.Context(), busID, now.Add(-scan.ConflictWindow), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive occupancy", err)
		return
	}
	occupants := scan.Occupants(recent)

	writeJSON(w, http.StatusOK, BusScansResponse{
		Success:          true,
		BusID:            busID,
		Date:             day,
		Count:            len(recs),
		CurrentOccupancy: len(occupants),
		Occupants:        occupants,
		Scans:            toScanRecordDTOs(recs),
	})
}

// StatusCounts reports how many ledger rows sit in each terminal status.
func (h *Handler) StatusCounts(w http.ResponseWriter, r *http.Request) {
	synced, err := h.Ledger.CountByStatus(r.Context(), scan.StatusSynced)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count scans", err)
		return
	}
	conflicts, err := h.Ledger.CountByStatus(r.Context(), scan.StatusConflict)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count scans", err)
		return
	}

	writeJSON(w, http.StatusOK, StatusCountsResponse{
		Success:   true,
		Synced:    synced,
		Conflicts: conflicts,
	})
}

// Health is the unauthenticated liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["message"] = err.Error()
	}
	writeJSON(w, status, response)
}
