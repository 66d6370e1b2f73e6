package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sensorsync/internal/logging"
	"sensorsync/internal/telemetry"
)

const (
	readingsPath     = "/readings"
	readingsBulkPath = "/readings/bulk"
	healthPath       = "/healthz"

	// DefaultTimeout bounds single-reading uploads and health probes.
	DefaultTimeout = 10 * time.Second
	// DefaultBulkTimeout is longer: bulk uploads carry up to a full batch.
	DefaultBulkTimeout = 30 * time.Second
)

// HTTPClient talks to the remote authority's ingest API.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	hc          *http.Client
	timeout     time.Duration
	bulkTimeout time.Duration
}

// NewHTTPClient builds a client for the given base URL. apiKey may be empty,
// in which case no X-API-Key header is sent (requests will be rejected by an
// authority that enforces keys).
func NewHTTPClient(baseURL, apiKey string, timeout, bulkTimeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if bulkTimeout <= 0 {
		bulkTimeout = DefaultBulkTimeout
	}
	return &HTTPClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		hc:          &http.Client{},
		timeout:     timeout,
		bulkTimeout: bulkTimeout,
	}
}

type readingEntry struct {
	DeviceID string            `json:"device_id"`
	TSUTC    string            `json:"ts_utc"`
	TSLocal  string            `json:"ts_local"`
	Payload  telemetry.Payload `json:"payload"`
}

type bulkRequest struct {
	Readings []readingEntry `json:"readings"`
}

type bulkResponse struct {
	Created int `json:"created"`
}

func entry(r telemetry.Reading) readingEntry {
	return readingEntry{
		DeviceID: r.DeviceID,
		TSUTC:    r.TimestampUTC.UTC().Format(time.RFC3339Nano),
		TSLocal:  r.TimestampLocal.Format(time.RFC3339Nano),
		Payload:  r.Payload,
	}
}

// WriteReading uploads a single reading. Success is HTTP 201.
func (c *HTTPClient) WriteReading(ctx context.Context, r telemetry.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.post(ctx, readingsPath, entry(r), nil)
	return err
}

// WriteBatch uploads readings through the bulk endpoint. The remote accepts
// the batch all-or-nothing; any error leaves every reading unsynced locally.
// Each batch carries a UUID so a retry after a lost acknowledgement can be
// deduplicated server-side.
func (c *HTTPClient) WriteBatch(ctx context.Context, readings []telemetry.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.bulkTimeout)
	defer cancel()

	entries := make([]readingEntry, len(readings))
	for i, r := range readings {
		entries[i] = entry(r)
	}
	batchID := uuid.New().String()
	var resp bulkResponse
	if _, err := c.post(ctx, readingsBulkPath, bulkRequest{Readings: entries}, &resp, header{"X-Batch-ID", batchID}); err != nil {
		return err
	}
	if resp.Created != len(readings) {
		// The authority deduplicates re-sent readings, so a short count is
		// informational, not a failure.
		logging.FromContext(ctx).Debug("bulk upload created fewer rows than sent",
			"created", resp.Created, "sent", len(readings), "batch_id", batchID)
	}
	return nil
}

// Health probes the authority for reachability. Used at startup only; a
// failure is logged, never fatal.
func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return transferErr(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &TransferError{Kind: KindRejected, Err: fmt.Errorf("health check returned %d", res.StatusCode)}
	}
	return nil
}

type header struct{ key, value string }

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any, headers ...header) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	for _, h := range headers {
		req.Header.Set(h.key, h.value)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, transferErr(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return res.StatusCode, &TransferError{
			Kind: KindRejected,
			Err:  fmt.Errorf("%s returned %d: %s", path, res.StatusCode, bytes.TrimSpace(msg)),
		}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
			return res.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return res.StatusCode, nil
}
