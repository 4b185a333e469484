package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/scan-engine/api"
	"github.com/campuslink/scan-engine/scan"
	scanstore "github.com/campuslink/scan-engine/scan/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testSecret = "test-secret"

var apiNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *scanstore.Memory) {
	t.Helper()

	ledger := scanstore.NewMemory()
	h := api.NewHandler(ledger)
	h.Now = func() time.Time { return apiNow }
	h.Processor.Now = h.Now

	router := api.NewRouter(h, api.RouterConfig{
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"*"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, ledger
}

func tokenFor(t *testing.T, subjectID scan.SubjectID, role string) string {
	t.Helper()
	token, err := api.SignToken(testSecret, subjectID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func bulkBody(events ...scan.ScanEvent) scan.BulkRequest {
	return scan.BulkRequest{Scans: events}
}

func apiEvent(clientID scan.ClientID, bus scan.BusID, eventType scan.EventType, at time.Time) scan.ScanEvent {
	return scan.ScanEvent{
		ClientID:       clientID,
		BusID:          bus,
		EventType:      eventType,
		LocalTimestamp: at,
	}
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_RejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", "", bulkBody())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_RejectsTokenSignedWithWrongSecret(t *testing.T) {
	srv, _ := newTestServer(t)

	forged, err := api.SignToken("some-other-secret", "stu-1", "student", time.Hour)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", forged, bulkBody())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// BULK SYNC
// =============================================================================

func TestBulkSync_HappyPath(t *testing.T) {
	srv, ledger := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")

	body := bulkBody(
		apiEvent("cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour)),
		apiEvent("cli-2", "B12", scan.EventEgress, apiNow.Add(-30*time.Minute)),
	)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[scan.BulkResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Summary.Synced)
	require.Len(t, out.Results.Synced, 2)
	assert.NotEmpty(t, out.Results.Synced[0].ServerID)

	// The subject on the persisted row comes from the token, not the body.
	rec, err := ledger.FindByClientID(context.Background(), "cli-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, scan.SubjectID("stu-1"), rec.SubjectID)
}

func TestBulkSync_ReplayReturnsSameServerID(t *testing.T) {
	srv, _ := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")
	body := bulkBody(apiEvent("cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour)))

	first := decode[scan.BulkResponse](t, doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, body))
	require.Len(t, first.Results.Synced, 1)

	second := decode[scan.BulkResponse](t, doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, body))
	require.Len(t, second.Results.Synced, 1)
	assert.Equal(t, first.Results.Synced[0].ServerID, second.Results.Synced[0].ServerID)
	assert.Equal(t, scan.ItemAlreadySynced, second.Results.Synced[0].Status)
}

func TestBulkSync_EmptyBatchIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, bulkBody())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBulkSync_OversizedBatchIs400(t *testing.T) {
	srv, ledger := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")

	events := make([]scan.ScanEvent, scan.MaxBatchSize+1)
	for i := range events {
		events[i] = apiEvent(
			scan.ClientID(fmt.Sprintf("cli-%d", i)),
			scan.BusID(fmt.Sprintf("B%d", i)),
			scan.EventIngress,
			apiNow.Add(-time.Hour),
		)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, bulkBody(events...))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rec, err := ledger.FindByClientID(context.Background(), "cli-0")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBulkSync_MalformedItemReported200(t *testing.T) {
	// Item-level failures are partition entries, not HTTP errors.
	srv, _ := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")

	body := bulkBody(
		apiEvent("cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour)),
		apiEvent("cli-2", "", "", time.Time{}),
	)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[scan.BulkResponse](t, resp)
	assert.Equal(t, 1, out.Summary.Synced)
	assert.Equal(t, 1, out.Summary.Errors)
}

// =============================================================================
// READ-SIDE VIEWS
// =============================================================================

func seedScan(t *testing.T, srv *httptest.Server, subject scan.SubjectID, clientID scan.ClientID, bus scan.BusID, eventType scan.EventType, at time.Time) {
	t.Helper()
	token := tokenFor(t, subject, "student")
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scans/bulk", token,
		bulkBody(apiEvent(clientID, bus, eventType, at)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubjectScans_StudentReadsOwnHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	seedScan(t, srv, "stu-1", "cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour))

	token := tokenFor(t, "stu-1", "student")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/student/stu-1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[api.SubjectScansResponse](t, resp)
	assert.True(t, out.Success)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, scan.ClientID("cli-1"), out.Scans[0].ClientID)
}

func TestSubjectScans_StudentBlockedFromOthers(t *testing.T) {
	srv, _ := newTestServer(t)
	token := tokenFor(t, "stu-1", "student")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/student/stu-2", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSubjectScans_AdminReadsAnySubject(t *testing.T) {
	srv, _ := newTestServer(t)
	seedScan(t, srv, "stu-2", "cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour))

	token := tokenFor(t, "admin-1", "admin")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/student/stu-2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[api.SubjectScansResponse](t, resp)
	assert.Equal(t, 1, out.Count)
}

func TestBusScans_DerivesOccupancy(t *testing.T) {
	// stu-1 boards and leaves; stu-2 boards and stays.
	srv, _ := newTestServer(t)
	seedScan(t, srv, "stu-1", "cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour))
	seedScan(t, srv, "stu-2", "cli-2", "B12", scan.EventIngress, apiNow.Add(-50*time.Minute))
	seedScan(t, srv, "stu-1", "cli-3", "B12", scan.EventEgress, apiNow.Add(-10*time.Minute))

	token := tokenFor(t, "admin-1", "admin")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/bus/B12?date=2025-03-10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[api.BusScansResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, 1, out.CurrentOccupancy)
	require.Len(t, out.Occupants, 1)
	assert.Equal(t, scan.SubjectID("stu-2"), out.Occupants[0])
}

func TestBusScans_InvalidDateIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	token := tokenFor(t, "admin-1", "admin")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/bus/B12?date=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	// A second unmatched ingress for the same subject and bus is a conflict.
	seedScan(t, srv, "stu-1", "cli-1", "B12", scan.EventIngress, apiNow.Add(-time.Hour))
	seedScan(t, srv, "stu-1", "cli-2", "B12", scan.EventIngress, apiNow.Add(-30*time.Minute))

	token := tokenFor(t, "admin-1", "admin")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/scans/pending", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[api.StatusCountsResponse](t, resp)
	assert.Equal(t, 1, out.Synced)
	assert.Equal(t, 1, out.Conflicts)
}
