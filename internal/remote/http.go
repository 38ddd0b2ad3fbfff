package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seantiz/daskpool/internal/model"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 4 << 10
)

// Compile-time interface satisfaction check.
var _ Client = (*HTTPClient)(nil)

// APIError is returned when the worker API answers with a non-2xx status.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: worker api returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: worker api returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// HTTPClient talks to the worker API over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// NewHTTPClient creates a client for the worker API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListWorkers returns every worker known to the API.
func (c *HTTPClient) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	var workers []model.Worker
	if err := c.do(ctx, "list workers", http.MethodGet, "/v1/workers", nil, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// LaunchWorkers asks the API to launch req.N workers.
func (c *HTTPClient) LaunchWorkers(ctx context.Context, req LaunchRequest) ([]model.LaunchResult, error) {
	var results []model.LaunchResult
	if err := c.do(ctx, "launch workers", http.MethodPost, "/v1/workers", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// StopWorkers stops each worker in turn, returning on the first failure.
func (c *HTTPClient) StopWorkers(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		path := "/v1/workers/" + url.PathEscape(id)
		if err := c.do(ctx, "stop worker "+id, http.MethodDelete, path, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the raw (truncated) text.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
