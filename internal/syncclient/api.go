package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether err is worth sending again: transport failures,
// 5xx, 408 and 429. Other 4xx answers and context errors are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// IsConflict reports a 409, which the server uses for closed control batches.
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusConflict
}

// APIClient talks to the server of record.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying transport client.
func (c *APIClient) WithHTTPClient(hc *http.Client) *APIClient {
	c.http = hc
	return c
}

// Ingest posts one chunk to bulk ingestion and returns the inserted count.
func (c *APIClient) Ingest(ctx context.Context, syncID string, items []ScanPayload) (int, error) {
	var resp ingestResponse
	hdr := http.Header{}
	if syncID != "" {
		hdr.Set("X-Sync-ID", syncID)
	}
	if err := c.do(ctx, http.MethodPost, "/api/counts/sync", nil, hdr, ingestRequest{Items: items}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// CatalogPage reads one page (1-based) of a tenant's master catalog.
func (c *APIClient) CatalogPage(ctx context.Context, tenantID uint, page, pageSize int) ([]CatalogItem, error) {
	q := url.Values{}
	q.Set("tenant_id", strconv.FormatUint(uint64(tenantID), 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var resp catalogPage
	if err := c.do(ctx, http.MethodGet, "/api/catalog", q, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// FetchBatch performs the fusion read of a control batch.
func (c *APIClient) FetchBatch(ctx context.Context, tenantID uint, controlBatchID string) (FusionResponse, error) {
	q := url.Values{}
	q.Set("control_batch_id", controlBatchID)
	q.Set("tenant_id", strconv.FormatUint(uint64(tenantID), 10))

	var resp FusionResponse
	if err := c.do(ctx, http.MethodGet, "/api/verification/batch", q, nil, nil, &resp); err != nil {
		return FusionResponse{}, err
	}
	return resp, nil
}

// Commit stores the verified quantities of a control batch.
func (c *APIClient) Commit(ctx context.Context, req CommitRequest) (int, error) {
	var resp commitResponse
	if err := c.do(ctx, http.MethodPost, "/api/verification/commit", nil, nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *APIClient) Me(ctx context.Context) (Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, nil, &me); err != nil {
		return Me{}, err
	}
	return me, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, hdr http.Header, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &StatusError{StatusCode: res.StatusCode, Message: eb.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
