/*
wire.go - Bulk sync wire contract shared by client and server

PURPOSE:
  Defines the JSON shapes exchanged on POST /api/scans/bulk. The client's
  transport marshals BulkRequest and unmarshals BulkResponse; the server's
  handler does the reverse. Keeping both ends on one set of types means the
  contract cannot drift.

CONTRACT:
  Request:  { "scans": [ScanEvent, ...] }     at most MaxBatchSize items
  Response: { "success": true,
              "summary": {"total", "synced", "conflicts", "errors"},
              "results": {"synced": [...], "conflicts": [...], "errors": [...]} }

  Every item in the three result buckets is keyed by clientId; synced and
  conflict items additionally carry the authoritative serverId. A client
  removes synced and conflict items from its durable queue (both are
  terminal, server-confirmed outcomes) and keeps error or unreported items
  for the next attempt.
*/
package scan

// MaxBatchSize is the upper bound on items per bulk sync request. The server
// rejects larger batches wholesale; the client chunks its queue to fit.
const MaxBatchSize = 100

// Item statuses reported in bulk results.
const (
	ItemSynced           = "synced"
	ItemAlreadySynced    = "already_synced"
	ItemConflictDetected = "conflict_detected"
)

// BulkRequest is the body of a bulk sync request.
type BulkRequest struct {
	Scans []ScanEvent `json:"scans"`
}

// ItemResult is the per-item outcome of a bulk sync, keyed by ClientID.
type ItemResult struct {
	ClientID ClientID `json:"clientId"`
	ServerID ServerID `json:"serverId,omitempty"`
	Status   string   `json:"status,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// BulkResults partitions per-item outcomes into the three terminal buckets.
type BulkResults struct {
	Synced    []ItemResult `json:"synced"`
	Conflicts []ItemResult `json:"conflicts"`
	Errors    []ItemResult `json:"errors"`
}

// Confirmed returns the items the server has durably accepted: synced and
// conflict alike. A conflict is not a failure; it is a recognized duplicate
// that must still leave the client's retry buffer.
func (r BulkResults) Confirmed() []ItemResult {
	out := make([]ItemResult, 0, len(r.Synced)+len(r.Conflicts))
	out = append(out, r.Synced...)
	out = append(out, r.Conflicts...)
	return out
}

// Summary aggregates bucket counts for a bulk sync.
type Summary struct {
	Total     int `json:"total"`
	Synced    int `json:"synced"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

// BulkReport is the ingest processor's answer for one batch: aggregate
// counts plus the full per-item result partition.
type BulkReport struct {
	Summary Summary     `json:"summary"`
	Results BulkResults `json:"results"`
}

// BulkResponse is the HTTP response envelope around a BulkReport.
type BulkResponse struct {
	Success bool `json:"success"`
	BulkReport
}
