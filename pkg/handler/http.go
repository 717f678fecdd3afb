// Package handler implements the kernel's closed set of Handler variants:
// Echo, Local-LLM, the two Remote-LLM frameworks, and Graph-LLM. The kernel
// treats all of them opaquely through runtime.Handler; this package is where
// that contract meets concrete inference backends.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// httpHandlerTimeout bounds a single inference call. The Processor itself
// never times out a handler (spec.md §4.3.5); this is the handler's own
// network-call budget, not the kernel's.
const httpHandlerTimeout = 60 * time.Second

// httpClient issues a ctx-timeout-wrapped JSON POST, mirroring the
// teacher's Slack client's PostMessage shape: build the request, bound it
// with a context timeout, decode a JSON response.
type httpClient struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	logger   *slog.Logger
}

func newHTTPClient(endpoint string, headers map[string]string) *httpClient {
	return &httpClient{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: httpHandlerTimeout},
		logger:   slog.With("component", "handler-http"),
	}
}

func (c *httpClient) postJSON(ctx context.Context, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, httpHandlerTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("handler: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("handler: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("handler: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("handler: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("handler: %s returned %d: %s", c.endpoint, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("handler: decode response: %w", err)
	}
	return nil
}
