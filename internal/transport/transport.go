package transport

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

	"github.com/lotas/sensiblelive/internal/applog"
)

const (
	// StatusConnectionError marks a request that never reached the server.
	StatusConnectionError = http.StatusServiceUnavailable
	// StatusUnparsable marks a response whose body was not JSON.
	StatusUnparsable = http.StatusUnprocessableEntity

	connectionErrorMessage = "Error while connecting."
	defaultUserAgent       = "sensiblelive/0.1"
	defaultTimeout         = 15 * time.Second
	maxBodySize            = 8 << 20
)

// Result is the uniform outcome of a request. A transport failure is
// reported as a synthetic result, never as a panic.
type Result struct {
	Status    int
	Message   string
	Synthetic bool // true when the server was never reached
}

// OK reports whether the server answered 200.
func (r Result) OK() bool {
	return r.Status == http.StatusOK
}

// Err converts a failed result into an error. It returns nil for OK results.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	if r.Message == "" {
		return fmt.Errorf("request failed with status %d", r.Status)
	}
	return fmt.Errorf("request failed with status %d: %s", r.Status, r.Message)
}

func connectionError() Result {
	return Result{Status: StatusConnectionError, Message: connectionErrorMessage, Synthetic: true}
}

// Client talks to a sensibleHub server.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient builds a Client for the given server base URL.
func NewClient(server string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(server)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// Resolve turns a path relative to the server into an absolute URL.
func (c *Client) Resolve(path string) string {
	rel, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(rel).String()
}

// WebSocketURL returns the ws:// or wss:// URL for a push channel path.
func (c *Client) WebSocketURL(path string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = path
	return u.String()
}

// SameOrigin reports whether an absolute or relative link stays on the
// server. It returns the path+query to navigate to.
func (c *Client) SameOrigin(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != "" && u.Host != c.baseURL.Host {
		return "", false
	}
	if u.Path == "" && u.RawQuery == "" {
		return "", false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, true
}

// GetJSON issues a GET and decodes a 200 body into dest.
func (c *Client) GetJSON(ctx context.Context, path string, dest any) Result {
	return c.doJSON(ctx, http.MethodGet, path, nil, dest)
}

// PostJSON encodes payload as JSON, POSTs it and decodes a 200 body into dest.
// A nil dest discards the body.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, dest any) Result {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Result{Status: StatusUnparsable, Message: fmt.Sprintf("encode request: %v", err), Synthetic: true}
		}
		body = bytes.NewReader(data)
	}
	return c.doJSON(ctx, http.MethodPost, path, body, dest)
}

// FetchHTML GETs a full document. The body is returned for every status the
// server answers with, so error pages can be shown like any other page.
func (c *Client) FetchHTML(ctx context.Context, path string) ([]byte, Result) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, Result{Status: StatusUnparsable, Message: err.Error(), Synthetic: true}
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		applog.Error("transport.fetch", err, "path", path)
		return nil, connectionError()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		applog.Error("transport.read", err, "path", path)
		return nil, connectionError()
	}
	res := Result{Status: resp.StatusCode}
	if !res.OK() {
		res.Message = http.StatusText(resp.StatusCode)
	}
	return data, res
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, dest any) Result {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return Result{Status: StatusUnparsable, Message: err.Error(), Synthetic: true}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		applog.Error("transport.request", err, "method", method, "path", path)
		return connectionError()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		applog.Error("transport.read", err, "path", path)
		return connectionError()
	}
	return decodeJSON(resp.StatusCode, data, dest)
}

func decodeJSON(status int, data []byte, dest any) Result {
	if status == http.StatusOK && dest == nil && len(bytes.TrimSpace(data)) == 0 {
		return Result{Status: status}
	}
	if !json.Valid(data) {
		return Result{Status: StatusUnparsable, Message: string(data)}
	}

	res := Result{Status: status}
	if !res.OK() {
		var payload struct {
			Message string `json:"message"`
		}
		json.Unmarshal(data, &payload)
		res.Message = payload.Message
		return res
	}

	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return Result{Status: StatusUnparsable, Message: string(data)}
		}
	}
	return res
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-XHR", "true")
	return req, nil
}

func parseBaseURL(server string) (*url.URL, error) {
	trimmed := strings.TrimSpace(server)
	if trimmed == "" {
		return nil, fmt.Errorf("server address is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server %q: missing host", server)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
