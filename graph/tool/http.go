package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dshills/contentflow/graph"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http tool: status %d: %s", e.StatusCode, e.Body)
}

// HTTPTool POSTs its input as JSON to an endpoint and returns the decoded
// JSON object response. 429 and 5xx responses and transport failures are
// transient (graph.IsTransient).
type HTTPTool struct {
	name     string
	endpoint string
	client   *http.Client
	headers  map[string]string
}

// HTTPOption configures an HTTPTool.
type HTTPOption func(*HTTPTool)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPTool) { h.client = c }
}

// WithHeader sets a request header, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPTool) { h.headers[key] = value }
}

// NewHTTPTool creates an HTTPTool named name that calls endpoint.
func NewHTTPTool(name, endpoint string, opts ...HTTPOption) *HTTPTool {
	h := &HTTPTool{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Tool.
func (h *HTTPTool) Name() string {
	return h.name
}

// Call implements Tool.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, graph.Transient(fmt.Errorf("failed to execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, graph.Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, graph.Transient(statusErr)
		}
		return nil, statusErr
	}

	out := make(map[string]interface{})
	if len(bytes.TrimSpace(respBody)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tool response: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
