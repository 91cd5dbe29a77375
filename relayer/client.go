package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Error is a non-2xx relayer reply.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relayer returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relayer returned %d", e.StatusCode)
}

// NewHTTPClient returns the retrying client used for manifests and relayer
// calls. Retry attempts are logged to log at debug level.
func NewHTTPClient(log *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = retryLogger{log}
	return c
}

// retryLogger demotes retryablehttp's per-request chatter to debug.
type retryLogger struct {
	log *slog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.log.Warn(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.log.Debug(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.log.Debug(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, kv...) }

type client struct {
	baseURL string
	http    *retryablehttp.Client
}

func newClient(baseURL string, httpClient *retryablehttp.Client) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// do sends body as JSON to path and decodes the JSON reply into result.
func (c *client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	respBody, err := c.send(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode relayer response: %w", err)
		}
	}
	return nil
}

// fetch downloads a raw object, typically key material behind a key URL.
func (c *client) fetch(ctx context.Context, url string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, url, nil)
}

func (c *client) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body interface{}
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach relayer: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read relayer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}
