// Package controlplane is a client for the preview-environment REST API.
package controlplane

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

	"go.uber.org/zap"
)

// DefaultEndpoint is used when no API endpoint is configured.
const DefaultEndpoint = "https://api.zonke.cloud"

const (
	apiKeyHeader   = "x-zonke-api-key"
	apiTokenHeader = "x-zonke-api-token"
)

// Client provides typed access to the control plane.
type Client struct {
	baseURL    string
	apiKey     string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client for the API at base.
func New(base, apiKey, apiToken string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultEndpoint
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api endpoint: %w", err)
	}
	if apiKey == "" || apiToken == "" {
		return nil, fmt.Errorf("api key and api token are required")
	}

	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		apiKey:     apiKey,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Error is a failed control-plane call.
type Error struct {
	Operation string
	Status    int
	Message   string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s request failed with status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s request failed (%d): %s", e.Operation, e.Status, e.Message)
}

// post sends body as JSON to /preview-environment/<op> and decodes the
// response into v when v is non-nil.
func (c *Client) post(ctx context.Context, op string, body, v any) error {
	path := "/preview-environment"
	if op != "" {
		path += "/" + op
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(apiTokenHeader, c.apiToken)

	c.logger.Debug("control plane request", zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform %s request: %w", operationName(op), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{Operation: operationName(op), Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", operationName(op), err)
	}
	return nil
}

func operationName(op string) string {
	if op == "" {
		return "get"
	}
	return op
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if payload.Message != "" {
		return strings.TrimSpace(payload.Message)
	}
	return strings.TrimSpace(payload.Error)
}
