package resilience

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360/docmesh/errors"
)

// BreakerConfig controls when a destination's circuit opens
type BreakerConfig struct {
	FailureRatio      float64       // Ratio of failed requests that opens the circuit
	MinimumThroughput uint32        // Requests required in the window before the ratio applies
	SamplingDuration  time.Duration // Window after which closed-state counts reset
	BreakDuration     time.Duration // Time the circuit stays open before probing
	HalfOpenRequests  uint32        // Trial requests allowed while half-open

	// OnStateChange is called after a destination's circuit changes state
	OnStateChange func(destination string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker policy used for document fetches
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRatio:      0.5,
		MinimumThroughput: 10,
		SamplingDuration:  30 * time.Second,
		BreakDuration:     30 * time.Second,
		HalfOpenRequests:  1,
	}
}

// statusError carries a 5xx response through the breaker so it counts as a failure
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// BreakerTransport opens one circuit per destination authority (host:port).
// Responses with status >= 500 and transport errors count as failures.
type BreakerTransport struct {
	next   http.RoundTripper
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerTransport wraps next with per-host circuit breakers
func NewBreakerTransport(next http.RoundTripper, cfg BreakerConfig, logger *slog.Logger) *BreakerTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerTransport{
		next:     next,
		cfg:      cfg,
		logger:   logger.With("component", "breaker"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// RoundTrip implements http.RoundTripper
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cb := t.breaker(req.URL.Host)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.WrapInvalid(fmt.Errorf("%s: %w", req.URL.Host, errors.ErrCircuitOpen),
			"BreakerTransport", "RoundTrip", "circuit check")
	}

	var se *statusError
	if stderrors.As(err, &se) {
		// The response itself is handed back; the retry layer decides what a 5xx means.
		return result.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// State returns the circuit state for host, or closed if none exists yet
func (t *BreakerTransport) State(host string) gobreaker.State {
	t.mu.Lock()
	cb, ok := t.breakers[host]
	t.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (t *BreakerTransport) breaker(host string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[host]; ok {
		return cb
	}

	cfg := t.cfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.SamplingDuration,
		Timeout:     cfg.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumThroughput {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("Circuit state changed",
				"destination", name,
				"from", from.String(),
				"to", to.String())
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	})
	t.breakers[host] = cb
	return cb
}
