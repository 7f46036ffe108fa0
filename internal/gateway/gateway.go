// Package gateway issues authenticated requests against the backend and
// detects authentication failures on their responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/jobcard-dev/jobcard/internal/client"
	"github.com/jobcard-dev/jobcard/internal/errs"
)

const maxErrorBody = 64 << 10

// ErrForeignHost is returned for an absolute URL outside the backend. The
// access token is only ever sent to the backend.
var ErrForeignHost = errors.New("request URL is not on the backend host")

// TokenSource supplies the current access token. An empty token means the
// request is sent without an Authorization header.
type TokenSource interface {
	AccessToken() string
}

// SessionExpiredHandler is invoked when the backend rejects the current
// access token
type SessionExpiredHandler func()

// Response is a successful (2xx) backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Gateway is the shared HTTP entry point for authenticated calls.
//
// Only one session expired handler is registered at a time. It fires at most
// once per access token, so a burst of concurrent 401s for the same token
// produces a single notification.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger

	mu          sync.Mutex
	handler     SessionExpiredHandler
	firedFor    string
	hasFiredFor bool
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the logger (zerolog.Nop by default)
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = httpClient
	}
}

// New creates a gateway for the given backend root
func New(baseURL string, timeout time.Duration, tokens TokenSource, options ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// SetSessionExpiredHandler registers the handler, replacing any previous
// one. nil unregisters.
func (g *Gateway) SetSessionExpiredHandler(handler SessionExpiredHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = handler
}

// NotifyExpired reports that token is no longer accepted. The handler runs
// synchronously on the caller's goroutine, unless it already ran for the
// same token.
func (g *Gateway) NotifyExpired(token string) {
	g.mu.Lock()
	if g.hasFiredFor && g.firedFor == token {
		g.mu.Unlock()
		return
	}
	handler := g.handler
	if handler != nil {
		g.firedFor = token
		g.hasFiredFor = true
	}
	g.mu.Unlock()

	if handler == nil {
		g.logger.Debug().Msg("Session expired with no handler registered")
		return
	}
	handler()
}

// Request sends an HTTP request to path, JSON encoding body when it is not
// nil. Non-2xx responses are returned as errors: *errs.AuthExpiredError for
// 401, *errs.HTTPError for anything else. *errs.NetworkError means no
// response was received.
func (g *Gateway) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	target, err := g.url(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := ulid.Make().String()
	req.Header.Set(client.RequestIDHeader, requestID)

	token := g.tokens.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Debug().Err(err).Str("request_id", requestID).Str("path", path).Msg("Request failed without response")
		return nil, &errs.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	log := g.logger.Debug().Str("request_id", requestID).Str("method", method).Str("path", path).Int("status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Msg("Request rejected")

		if resp.StatusCode == http.StatusUnauthorized {
			g.NotifyExpired(token)
			return nil, &errs.AuthExpiredError{Method: method, Path: path}
		}
		return nil, &errs.HTTPError{StatusCode: resp.StatusCode, Detail: client.ParseDetail(data)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.NetworkError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	log.Msg("Request completed")

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// url resolves path against the backend root. Absolute URLs are accepted
// only when their scheme and host are the backend's.
func (g *Gateway) url(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}

	if ref.Scheme == "" && ref.Host == "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return g.baseURL + path, nil
	}

	base, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL %q: %w", g.baseURL, err)
	}
	if !strings.EqualFold(ref.Scheme, base.Scheme) || !strings.EqualFold(ref.Host, base.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignHost, ref.Redacted())
	}
	return ref.String(), nil
}
