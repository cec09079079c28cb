// Package client talks to a running embedapi server over HTTP.
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

	"github.com/google/uuid"

	"github.com/hyperjump/embedapi/internal/models"
)

// EmbeddingsPath is the embedding endpoint relative to the server URL.
const EmbeddingsPath = "/api/v1/embeddings"

// Client is an embedapi HTTP client. It satisfies batch.Sender.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A zero timeout means no
// client-side timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Send embeds texts with backend in one request and returns the per-item
// results in input order.
func (c *Client) Send(ctx context.Context, texts []string, backend models.Backend) ([]models.EmbeddingResult, error) {
	body, err := json.Marshal(struct {
		Text  []string       `json:"text"`
		Model models.Backend `json:"model"`
	}{Text: texts, Model: backend})
	if err != nil {
		return nil, err
	}
	var results []models.EmbeddingResult
	if err := c.do(ctx, http.MethodPost, EmbeddingsPath, bytes.NewReader(body), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Status fetches the server's backend and cache state.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var status models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
