// Package loader fetches a single endpoint's API document over HTTP with a
// per-load timeout, a streaming size cap and optional bearer authentication.
// Every failure is reported as a Result value, never as an error or panic.
package loader

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/telemetry"
)

const chunkSize = 8 * 1024

// Failure messages reported in Result.Err
const (
	msgTimeout    = "Request timed out"
	msgParseError = "Failed to parse OpenAPI document"
)

// Loader retrieves one endpoint's document
type Loader interface {
	Load(ctx context.Context, ep endpoint.Descriptor) Result
}

// Limits bound a single load
type Limits struct {
	Timeout time.Duration
	MaxSize int64
}

// DefaultLimits returns the default per-load bounds
func DefaultLimits() Limits {
	return Limits{Timeout: 30 * time.Second, MaxSize: 10 * 1024 * 1024}
}

// Config wires an HTTPLoader
type Config struct {
	// Client performs the request; normally a resilience.Client.
	Client *http.Client
	// Limits is read on every load so hot-reloaded options apply immediately.
	Limits func() Limits
	// Tokens is optional; without it TokenClient descriptors load anonymously.
	Tokens TokenProvider
	Sink   telemetry.Sink
	Logger *slog.Logger
}

// HTTPLoader is the default Loader
type HTTPLoader struct {
	client *http.Client
	limits func() Limits
	tokens TokenProvider
	sink   telemetry.Sink
	logger *slog.Logger
}

var _ Loader = (*HTTPLoader)(nil)

// NewHTTPLoader creates a loader
func NewHTTPLoader(cfg Config) *HTTPLoader {
	l := &HTTPLoader{
		client: cfg.Client,
		limits: cfg.Limits,
		tokens: cfg.Tokens,
		sink:   telemetry.OrNoop(cfg.Sink),
		logger: cfg.Logger,
	}
	if l.client == nil {
		l.client = http.DefaultClient
	}
	if l.limits == nil {
		l.limits = DefaultLimits
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// Load implements Loader
func (l *HTTPLoader) Load(ctx context.Context, ep endpoint.Descriptor) Result {
	start := time.Now()
	limits := l.limits()
	res := Result{Endpoint: ep}

	docURL, err := ep.DocumentURL()
	if err != nil {
		return l.fail(res, start, KindUnknown, err.Error(), err)
	}
	logger := l.logger.With("cluster_id", ep.ClusterID, "url", docURL)

	loadCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(loadCtx, http.MethodGet, docURL, nil)
	if err != nil {
		return l.fail(res, start, KindUnknown, err.Error(), err)
	}
	l.authorize(loadCtx, req, ep, logger)

	resp, err := l.client.Do(req)
	if err != nil {
		kind, msg := classify(ctx, loadCtx, err)
		return l.fail(res, start, kind, msg, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return l.fail(res, start, KindHTTP, msg, fmt.Errorf("%s: %w", msg, errors.ErrUpstreamStatus))
	}

	data, err := readLimited(resp.Body, limits.MaxSize)
	if stderrors.Is(err, errors.ErrDocumentTooLarge) {
		logger.Warn("Document size exceeds limit", "max_bytes", limits.MaxSize)
		msg := fmt.Sprintf("Document exceeds maximum size of %d bytes", limits.MaxSize)
		return l.fail(res, start, KindSizeExceeded, msg, err)
	}
	if err != nil {
		kind, msg := classify(ctx, loadCtx, err)
		return l.fail(res, start, kind, msg, err)
	}

	doc, err := document.Parse(data)
	if err != nil {
		return l.fail(res, start, KindParse, msgParseError, err)
	}

	res.Document = doc
	res.Duration = time.Since(start)
	l.sink.LoadSucceeded(ep.ClusterID, res.Duration)
	logger.Info("Loaded document", "paths", len(doc.Paths), "duration", res.Duration)
	return res
}

func (l *HTTPLoader) authorize(ctx context.Context, req *http.Request, ep endpoint.Descriptor, logger *slog.Logger) {
	if ep.TokenClient == "" || l.tokens == nil {
		return
	}
	token, err := l.tokens.Token(ctx, ep.TokenClient)
	if err != nil {
		logger.Warn("Failed to get access token, loading without authorization",
			"token_client", ep.TokenClient, "error", err)
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		logger.Debug("Added access token", "token_client", ep.TokenClient)
	}
}

func (l *HTTPLoader) fail(res Result, start time.Time, kind ErrorKind, msg string, cause error) Result {
	res.Kind = kind
	res.Err = msg
	res.Duration = time.Since(start)
	l.sink.LoadFailed(res.Endpoint.ClusterID, string(kind), res.Duration)

	attrs := []any{
		"cluster_id", res.Endpoint.ClusterID,
		"kind", string(kind),
		"duration", res.Duration,
		"error", cause,
	}
	if kind == KindUnknown {
		l.logger.Error("Unexpected error loading document", attrs...)
	} else {
		l.logger.Warn("Failed to load document", attrs...)
	}
	return res
}

// classify maps a transport or read error to a kind. A timeout is reported
// only when the load deadline fired while the caller was still waiting.
func classify(callerCtx, loadCtx context.Context, err error) (ErrorKind, string) {
	if callerCtx.Err() != nil {
		return KindUnknown, err.Error()
	}
	if loadCtx.Err() != nil {
		return KindTimeout, msgTimeout
	}
	return KindHTTP, err.Error()
}

// readLimited reads r in fixed chunks and stops as soon as the running total
// passes maxSize, without buffering the remainder.
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > maxSize {
				return nil, fmt.Errorf("read %d bytes: %w", total, errors.ErrDocumentTooLarge)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
