// Package resilience provides the shared HTTP client used for document fetches:
// a bounded connection pool wrapped by a per-destination circuit breaker and
// an outer retry layer with exponential backoff and jitter.
package resilience

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/pkg/retry"
)

// Options configures the client built by NewClient
type Options struct {
	Retries            int           // Additional attempts after the first
	Breaker            BreakerConfig // Per-destination circuit breaker policy
	MaxConnsPerHost    int           // Connection pool bound per destination
	IdleConnTimeout    time.Duration // Idle connections are closed after this
	ConnectionLifetime time.Duration // Recycle interval for pooled connections
	Accept             string        // Default Accept header
	TLS                *tls.Config   // Upstream TLS; nil keeps Go's defaults

	// Base replaces the pooled transport; used by tests.
	Base http.RoundTripper
	// Backoff builds the retry policy for a retry count; defaults to retry.Upstream.
	Backoff func(retries int) retry.Config
	Logger  *slog.Logger
}

// DefaultOptions returns pool and resilience settings for upstream document fetches
func DefaultOptions() Options {
	return Options{
		Retries:            3,
		Breaker:            DefaultBreakerConfig(),
		MaxConnsPerHost:    10,
		IdleConnTimeout:    2 * time.Minute,
		ConnectionLifetime: 5 * time.Minute,
		Accept:             "application/json",
	}
}

// Client is a shared, reusable HTTP client: retry(breaker(pool)).
type Client struct {
	*http.Client
	pool     *http.Transport
	retry    *RetryTransport
	breaker  *BreakerTransport
	lifetime time.Duration
}

// NewClient builds the resilient client
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var pool *http.Transport
	base := opts.Base
	if base == nil {
		pool = newPool(opts)
		base = pool
	}

	breaker := NewBreakerTransport(base, opts.Breaker, logger)
	rt := NewRetryTransport(breaker, opts.Retries, logger)
	if opts.Backoff != nil {
		rt.backoff = opts.Backoff
	}
	rt.accept = opts.Accept

	return &Client{
		Client:   &http.Client{Transport: rt},
		pool:     pool,
		retry:    rt,
		breaker:  breaker,
		lifetime: opts.ConnectionLifetime,
	}
}

func newPool(opts Options) *http.Transport {
	maxConns := opts.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 10
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxConnsPerHost:       maxConns,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       opts.TLS,
	}
}

// SetRetries changes the retry count used by subsequent requests
func (c *Client) SetRetries(n int) {
	c.retry.SetRetries(n)
}

// Breaker exposes the breaker layer for state inspection
func (c *Client) Breaker() *BreakerTransport {
	return c.breaker
}

// Recycle closes pooled idle connections every ConnectionLifetime until ctx ends,
// so DNS changes behind a destination are picked up by new connections.
func (c *Client) Recycle(ctx context.Context) {
	if c.pool == nil || c.lifetime <= 0 {
		return
	}
	ticker := time.NewTicker(c.lifetime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.pool.CloseIdleConnections()
			return
		case <-ticker.C:
			c.pool.CloseIdleConnections()
		}
	}
}

// RetryTransport retries transport failures and 5xx responses
type RetryTransport struct {
	next    http.RoundTripper
	retries atomic.Int32
	backoff func(retries int) retry.Config
	accept  string
	logger  *slog.Logger
}

// NewRetryTransport wraps next with retry
func NewRetryTransport(next http.RoundTripper, retries int, logger *slog.Logger) *RetryTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &RetryTransport{
		next:    next,
		backoff: retry.Upstream,
		logger:  logger.With("component", "retry"),
	}
	t.SetRetries(retries)
	return t
}

// SetRetries changes the number of additional attempts
func (t *RetryTransport) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	t.retries.Store(int32(n))
}

// RoundTrip implements http.RoundTripper
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if t.accept != "" && req.Header.Get("Accept") == "" {
		req = req.Clone(ctx)
		req.Header.Set("Accept", t.accept)
	}

	cfg := t.backoff(int(t.retries.Load()))
	cfg.ShouldRetry = shouldRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		t.logger.Debug("Retrying upstream request",
			"url", req.URL.String(),
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	var resp *http.Response
	err := retry.Do(ctx, cfg, func() error {
		attemptReq := req
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return retry.NonRetryable(err)
			}
			attemptReq = req.Clone(ctx)
			attemptReq.Body = body
		}

		r, err := t.next.RoundTrip(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return retry.NonRetryable(err)
			}
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
			_ = r.Body.Close()
			return fmt.Errorf("HTTP %d %s: %w", r.StatusCode, http.StatusText(r.StatusCode), errors.ErrUpstreamStatus)
		}
		resp = r
		return nil
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if stderrors.As(err, &nre) {
			return nil, nre.Err
		}
		return nil, err
	}
	return resp, nil
}

func shouldRetry(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.IsTransient(err)
}
