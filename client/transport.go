/*
transport.go - Bulk submission over HTTP

PURPOSE:
  Carries one chunk of pending scans to the server's bulk endpoint and
  decodes the per-item result set. Timeouts are the http.Client's concern;
  the sync engine treats any transport error as "nothing confirmed" and
  leaves the queue alone.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campuslink/scan-engine/scan"
)

// Transport submits one batch of scans and returns the server's verdict.
type Transport interface {
	SubmitBatch(ctx context.Context, token string, batch []scan.ScanEvent) (*scan.BulkResponse, error)
}

// HTTPTransport posts batches to {BaseURL}/api/scans/bulk as JSON with a
// bearer credential.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTransport) SubmitBatch(ctx context.Context, token string, batch []scan.ScanEvent) (*scan.BulkResponse, error) {
	body, err := json.Marshal(scan.BulkRequest{Scans: batch})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/api/scans/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submit batch: %s", readServerError(resp))
	}

	var out scan.BulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// readServerError extracts the server's error envelope, falling back to the
// bare status when the body is not the expected JSON.
func readServerError(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		if envelope.Message != "" {
			return fmt.Sprintf("%s: %s (%s)", envelope.Error, envelope.Message, resp.Status)
		}
		return fmt.Sprintf("%s (%s)", envelope.Error, resp.Status)
	}
	return resp.Status
}
