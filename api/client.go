package api

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
)

// StatusError is returned for non-2xx daemon responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(baseURL string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = nil
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

func (c *Client) Instance(ctx context.Context) (*InstanceResponse, error) {
	var resp InstanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/instance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/instance/refresh", nil, nil)
}

func (c *Client) Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResponse, error) {
	var resp EncryptResponse
	if err := c.do(ctx, http.MethodPost, "/api/encrypt", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Decrypt(ctx context.Context, req *DecryptRequest) (*DecryptResponse, error) {
	var resp DecryptResponse
	if err := c.do(ctx, http.MethodPost, "/api/decrypt", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Authorization returns the cached authorization for contracts, or the
// daemon's default contracts when none are given.
func (c *Client) Authorization(ctx context.Context, contracts ...common.Address) (*AuthorizationResponse, error) {
	q := url.Values{}
	for _, a := range contracts {
		q.Add("contract", a.Hex())
	}
	path := "/api/authorization"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp AuthorizationResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if result == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, result)
}
