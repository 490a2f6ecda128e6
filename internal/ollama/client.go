// Package ollama is a minimal client for the Ollama HTTP API.
package ollama

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

const (
	// DefaultBaseURL is the standard local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"

	// contextWindow is requested on every generation call.
	contextWindow = 128000

	// keepAlive of zero releases GPU memory immediately after a request.
	keepAlive = 0

	defaultTimeout     = 300 * time.Second
	healthCheckTimeout = 5 * time.Second

	maxRetries     = 3
	initialBackoff = 2 * time.Second
)

// GenerateRequest describes one generation call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
	TopK        int
	NumPredict  int
}

// Client talks to a single Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL. An empty URL
// falls back to the local default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTPClient creates a client with a caller-supplied HTTP
// client. Used by tests to point at a stub server with short timeouts.
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

type generatePayload struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	System    string                 `json:"system,omitempty"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Options   map[string]interface{} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate runs a single non-streaming completion and returns the
// model's text. Transient failures are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	options := map[string]interface{}{
		"temperature":    req.Temperature,
		"top_p":          req.TopP,
		"top_k":          req.TopK,
		"repeat_penalty": 1.1,
		"num_ctx":        contextWindow,
	}
	if req.NumPredict > 0 {
		options["num_predict"] = req.NumPredict
	}

	payload := generatePayload{
		Model:     req.Model,
		Prompt:    req.Prompt,
		System:    req.System,
		Stream:    false,
		KeepAlive: keepAlive,
		Options:   options,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Op: "generate", Message: "failed to encode request", Err: err}
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			slog.Debug("retrying generation", "attempt", attempt, "model", req.Model)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, retriable, err := c.generateOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if !retriable {
			break
		}
	}
	return "", lastErr
}

func (c *Client) generateOnce(ctx context.Context, body []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", false, &Error{Op: "generate", Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, &Error{Op: "generate", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, &Error{Op: "generate", Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
		return "", isRetriableStatus(resp.StatusCode), &Error{Op: "generate", Message: msg}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", false, &Error{Op: "generate", Message: "failed to decode response", Err: err}
	}
	if out.Error != "" {
		return "", false, &Error{Op: "generate", Message: out.Error}
	}
	return out.Response, false, nil
}

func isRetriableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of all models the server has pulled.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &Error{Op: "list models", Message: "failed to build request", Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "list models", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: "list models", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Op: "list models", Message: "failed to decode response", Err: err}
	}

	names := make([]string, len(out.Models))
	for i, m := range out.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Healthy reports whether the server answers its tags endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}

// BaseURL returns the server address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
