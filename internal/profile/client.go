package profile

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
)

// Client talks to a Handler over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL, e.g. http://127.0.0.1:8765.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) url(key string) string {
	return strings.TrimRight(c.BaseURL, "/") + RoutePrefix + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method, key string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(key), rdr)
	if err != nil {
		return nil, fmt.Errorf("profile: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile: %s %s: %w", method, key, err)
	}
	return resp, nil
}

// Load fetches the blob stored under key. A 404 maps to ErrNotFound.
func (c *Client) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	default:
		return nil, statusError(resp)
	}
}

// Save stores blob under key.
func (c *Client) Save(ctx context.Context, key string, blob []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}
	resp, err := c.do(ctx, http.MethodPut, key, blob)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Delete removes key. A 404 maps to ErrNotFound.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	default:
		return statusError(resp)
	}
}

// Keys lists stored keys.
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("profile: decode keys: %w", err)
	}
	return keys, nil
}

func statusError(resp *http.Response) error {
	var apiErr apiErrorResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("profile: %s: %s", resp.Status, apiErr.Error.Message)
	}
	return fmt.Errorf("profile: unexpected status %s", resp.Status)
}
