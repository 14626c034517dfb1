// Package cinemaapi is a typed client for the upstream cinema REST API that
// lives under the /cinema prefix.  Every call carries the caller's bearer
// token (taken from the context), is bounded by a per-call timeout and
// decodes the API's {code, message, result} envelope.
package cinemaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the upstream rejected the bearer token (HTTP 401).
	// The session is expired; callers must drop any state tied to it.
	ErrUnauthorized = errors.New("cinemaapi: session expired")
	// ErrForbidden is returned for HTTP 403.
	ErrForbidden = errors.New("cinemaapi: forbidden")
	// ErrNotFound is returned for HTTP 404.
	ErrNotFound = errors.New("cinemaapi: not found")
)

// APIError is any other non-successful answer: a non-2xx status or a 2xx
// body whose envelope code is neither 0 nor 1000.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cinemaapi: status %d code %d", e.Status, e.Code)
	}
	return fmt.Sprintf("cinemaapi: %s (status %d, code %d)", e.Message, e.Status, e.Code)
}

const defaultTimeout = 10 * time.Second

// Client talks to one upstream deployment.  It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client (tests inject httptest's).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTimeout bounds every call.  Without it an unresponsive upstream
// would stall the toggle queue indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for baseURL + prefix, e.g. ("https://api.example", "/cinema").
func New(baseURL, prefix string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/") + "/" + strings.Trim(prefix, "/"),
		timeout: defaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenKey struct{}

// WithToken returns a context whose upstream calls are authenticated with token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token stored by WithToken, or "".
func TokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// do performs one request and decodes the result into out (which may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := TokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("upstream call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.log.Debug("upstream call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	env, hasEnv := parseEnvelope(raw)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, env.Message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		e := &APIError{Status: resp.StatusCode, Message: env.Message}
		if env.Code != nil {
			e.Code = *env.Code
		}
		return e
	}
	if hasEnv && env.Code != nil && *env.Code != 0 && *env.Code != 1000 {
		return &APIError{Status: resp.StatusCode, Code: *env.Code, Message: env.Message}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	payload := raw
	if hasEnv && len(env.Result) > 0 && string(env.Result) != "null" {
		payload = env.Result
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// parseEnvelope reports whether raw is a JSON object and, if so, its
// envelope fields.  Bare arrays and empty bodies have no envelope.
func parseEnvelope(raw []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}
