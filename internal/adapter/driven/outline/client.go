// Package outline implements the OutlineClient port over the Outline server
// management REST API.
package outline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OutlineClient = (*Client)(nil)

// DefaultTimeout bounds every management API request when no timeout is given.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body is kept in an APIError.
const maxErrorBody = 1024

// ErrNotFound is matched by an APIError carrying a 404 status.
var ErrNotFound = errors.New("outline: not found")

// APIError is returned when the management API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("outline: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("outline: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to one Outline server. The management API URL embeds a secret
// path segment, so it is never logged in full.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client for apiURL. When certSHA256 is non-empty the
// server certificate is pinned to that SHA-256 fingerprint instead of being
// verified against the system roots.
func NewClient(apiURL, certSHA256 string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if certSHA256 != "" {
		fingerprint, err := ParseFingerprint(certSHA256)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = pinnedTLSConfig(fingerprint)
	}

	return NewClientWithHTTPClient(&http.Client{Transport: transport, Timeout: timeout}, apiURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, apiURL string) (*Client, error) {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		return nil, errors.New("outline: empty API URL")
	}
	return &Client{http: httpClient, baseURL: apiURL}, nil
}

// BaseURL returns the management API URL this client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping reports whether the management API answers. It is used to probe the
// localhost endpoint before falling back to the public one.
func (c *Client) Ping(ctx context.Context) error {
	var out metricsEnabledJSON
	if err := c.do(ctx, http.MethodGet, "/metrics/enabled", nil, &out); err != nil {
		return fmt.Errorf("pinging outline server: %w", err)
	}
	return nil
}

// do sends one request and decodes a JSON response into out when out is
// non-nil. It returns errEmptyBody when a decode was requested but the server
// sent nothing.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, scrubURLError(err))
	}
	defer resp.Body.Close()

	slog.Debug("outline request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

var errEmptyBody = errors.New("outline: empty response body")

// scrubURLError drops the request URL from transport errors so the secret
// API path does not end up in logs.
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
