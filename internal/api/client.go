// Package api is the HTTP client for the ALM backend. Every request goes
// through Client.do, which is the single place where failures are classified
// into *model.TransportError (no response) or *model.ServerError (non-2xx).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/alm/internal/logging"
	"github.com/me/alm/pkg/model"
)

// DefaultPrefix is the path prefix of the versioned inference contract.
const DefaultPrefix = "/api/v1"

// Config holds client settings.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8000".
	BaseURL string
	// Prefix is prepended to the models, inference and forecast endpoints.
	Prefix string
	// Timeout bounds a single request. Zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client talks to the backend over HTTP with JSON bodies.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. Cookies set by the server are kept for the
// lifetime of the client.
func New(cfg Config, logger *slog.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Timeout: cfg.Timeout, Jar: jar}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		prefix = "/" + prefix
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		prefix:     prefix,
		httpClient: hc,
		logger:     logging.Component(logger, "api-client"),
	}
}

// BaseURL returns the server root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// WithBearer sets "Authorization: Bearer <token>". Empty tokens are ignored.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader sets an arbitrary request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// Get issues a GET and decodes the JSON response into a T.
func Get[T any](ctx context.Context, c *Client, endpoint string, params url.Values, opts ...RequestOption) (T, error) {
	var out T
	err := c.GetJSON(ctx, endpoint, params, &out, opts...)
	return out, err
}

// GetJSON issues a GET with optional query parameters and decodes the JSON
// response into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any, opts ...RequestOption) error {
	body, err := c.do(ctx, http.MethodGet, endpoint, params, nil, opts...)
	if err != nil {
		return err
	}
	return decode(http.MethodGet, endpoint, body, out)
}

// GetHTML issues a GET and returns the raw body as text.
func (c *Client) GetHTML(ctx context.Context, endpoint string, params url.Values, opts ...RequestOption) (string, error) {
	opts = append([]RequestOption{WithHeader("Accept", "text/html")}, opts...)
	body, err := c.do(ctx, http.MethodGet, endpoint, params, nil, opts...)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PostJSON posts in as JSON and decodes the response into out. A nil in
// sends an empty body; a nil out discards the response.
func (c *Client) PostJSON(ctx context.Context, endpoint string, in, out any, opts ...RequestOption) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("POST %s: encode request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
		opts = append([]RequestOption{WithHeader("Content-Type", "application/json")}, opts...)
	}
	resp, err := c.do(ctx, http.MethodPost, endpoint, nil, body, opts...)
	if err != nil {
		return err
	}
	return decode(http.MethodPost, endpoint, resp, out)
}

// do sends one request and returns the body of a 2xx response. A failure
// before any response is a *model.TransportError; a non-2xx response is a
// *model.ServerError. A cancelled ctx is returned as ctx.Err(), wrapped.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body io.Reader, opts ...RequestOption) ([]byte, error) {
	op := method + " " + endpoint

	target, err := c.resolve(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	for _, opt := range opts {
		opt(req)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	logger := c.logger.With("method", method, "endpoint", endpoint, "request_id", requestID)
	logger.Debug("sending request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		logger.Debug("transport failure", "error", err)
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	logger.Debug("response", "status", resp.StatusCode, "bytes", len(respBody), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.ServerError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Detail:     parseDetail(respBody),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// resolve joins endpoint onto the base URL and merges params into any query
// the endpoint already carries.
func (c *Client) resolve(endpoint string, params url.Values) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// versioned returns endpoint under the configured prefix. A prefix of "/"
// disables versioning.
func (c *Client) versioned(endpoint string) string {
	return c.prefix + endpoint
}

func decode(method, endpoint string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
	}
	return nil
}

// statusText strips the numeric code from resp.Status ("404 Not Found").
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// parseDetail extracts the "detail" field of an error body. It is either a
// string or a list of validation errors whose messages are joined.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(envelope.Detail, &s) == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(envelope.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
