// Package api is the single chokepoint for outbound marketplace requests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
	"github.com/Mattheo4427/eventy-core/pkg/httpclient"
)

// Doer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client decorates outbound requests with the bearer token and translates
// authorization failures into a session-invalidated broadcast. It caches a
// copy of the token only; the session itself is owned elsewhere.
type Client struct {
	baseURL string
	doer    Doer
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	invalidated []func()
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit bounds outbound request rate. Polling watchers plus user
// actions must not be able to hammer the backend from one device.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates an API client rooted at baseURL.
func New(baseURL string, doer Doer, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		doer:    doer,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken drops the cached token copy.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// OnSessionInvalidated registers a callback fired when the backend rejects
// the cached credentials. The callback runs before the originating request's
// error reaches its caller, with the token already cleared.
func (c *Client) OnSessionInvalidated(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, fn)
}

// Do executes a request against the backend. A non-nil body is JSON-encoded.
// The caller owns the response body. Requests without a cached token go out
// unauthenticated; some endpoints are intentionally public.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.RequestFailed(apperrors.KindNetwork, "rate limiter interrupted", err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		// The breaker consumes 5xx responses to count them as failures, but
		// the status and body survive on the error and still map to backend
		// error semantics rather than a transport failure.
		var serverErr *httpclient.ServerStatusError
		if errors.As(err, &serverErr) {
			return nil, parseErrorBody(serverErr.StatusCode, serverErr.Body)
		}
		return nil, apperrors.RequestFailed(apperrors.KindNetwork, fmt.Sprintf("%s %s", method, path), err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		c.handleAuthFailure(ctx, method, path, resp.StatusCode)
		return nil, &apperrors.ClientError{
			Code:    "AUTHORIZATION_FAILED",
			Message: fmt.Sprintf("%s %s rejected with status %d", method, path, resp.StatusCode),
			Status:  resp.StatusCode,
			Err:     apperrors.ErrSessionInvalidated,
		}
	}

	return resp, nil
}

// DoJSON executes a request and decodes a 2xx JSON response into out.
// Non-2xx responses are translated into typed errors via ParseResponseError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseResponseError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.RequestFailed(apperrors.KindMalformed,
			fmt.Sprintf("decode %s %s response", method, path), err)
	}
	return nil
}

// handleAuthFailure clears the cached token and notifies subscribers. The
// broadcast fires once per detected credential death: a second 401 arriving
// after the token is already gone is not re-announced.
func (c *Client) handleAuthFailure(ctx context.Context, method, path string, status int) {
	c.mu.Lock()
	hadToken := c.token != ""
	c.token = ""
	subscribers := make([]func(), len(c.invalidated))
	copy(subscribers, c.invalidated)
	c.mu.Unlock()

	if !hadToken {
		return
	}

	c.logger.WarnContext(ctx, "authorization failure, session invalidated",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
	)

	for _, fn := range subscribers {
		fn()
	}
}
