package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/stablemem/internal/infra/buildinfo"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Options configures an HTTPClient.
type Options struct {
	Server  string
	APIKey  string
	TLS     *tls.Config
	Timeout time.Duration
}

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	server  string
	baseURL string
	apiKey  string
	client  *http.Client
}

// UnixScheme prefixes a server reached over the local admin socket.
const UnixScheme = "unix://"

// NewHTTPClient creates a client. A server without a scheme is reached over
// http; unix:///path dials the socket at path.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	baseURL := strings.TrimRight(opts.Server, "/")
	server := baseURL
	switch {
	case strings.HasPrefix(baseURL, UnixScheme):
		socket := strings.TrimPrefix(baseURL, UnixScheme)
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		baseURL = "http://unix"
	case strings.HasPrefix(baseURL, "http://"), strings.HasPrefix(baseURL, "https://"):
	default:
		baseURL = "http://" + baseURL
		server = baseURL
	}
	if opts.TLS != nil {
		transport.TLSClientConfig = opts.TLS
	}

	return &HTTPClient{
		server:  server,
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}
}

// Server returns the normalized server address, including the unix://
// form for socket servers.
func (c *HTTPClient) Server() string {
	return c.server
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Do sends a request with authentication and the CLI user agent.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent("stablemem-cli"))
	return c.client.Do(req)
}

// Get performs a GET request and decodes the envelope data into target.
func (c *HTTPClient) Get(ctx context.Context, path string, target any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// Post performs a POST with a JSON body. A nil body sends no content.
func (c *HTTPClient) Post(ctx context.Context, path string, body, target any) error {
	var (
		reader io.Reader
		header http.Header
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
		header = http.Header{"Content-Type": {"application/json"}}
	}

	resp, err := c.Do(ctx, http.MethodPost, path, reader, header)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// PostRaw performs a POST with an octet-stream body.
func (c *HTTPClient) PostRaw(ctx context.Context, path string, data []byte, target any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(data),
		http.Header{"Content-Type": {"application/octet-stream"}})
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// PutBytes performs a PUT with an octet-stream body and extra headers.
func (c *HTTPClient) PutBytes(ctx context.Context, path string, data []byte, header http.Header, target any) error {
	h := http.Header{"Content-Type": {"application/octet-stream"}}
	for k, vs := range header {
		h[k] = vs
	}
	resp, err := c.Do(ctx, http.MethodPut, path, bytes.NewReader(data), h)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// GetBytes performs a GET expecting a raw body. Error responses are still
// decoded from the JSON envelope.
func (c *HTTPClient) GetBytes(ctx context.Context, path string) ([]byte, http.Header, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, nil, ParseResponse(resp, nil)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return data, resp.Header, nil
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Details   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusServiceUnavailable
}

// IsTemporary reports whether err is a network error or a temporary API
// error.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   json.RawMessage `json:"details"`
}

// ParseResponse decodes the response envelope. On success the data field is
// decoded into target; on failure an *APIError is returned.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message, RequestID: env.RequestID}
		if decodeErr != nil || env.Code == "" {
			apiErr.Code = resp.Header.Get("X-Error-Code")
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if len(env.Details) > 0 && string(env.Details) != "null" {
			var s string
			if json.Unmarshal(env.Details, &s) == nil {
				apiErr.Details = s
			} else {
				apiErr.Details = string(env.Details)
			}
		}
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
