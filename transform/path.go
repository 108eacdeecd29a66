package transform

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/c360/docmesh/document"
)

// Path filter limits
const (
	MaxPathFilterLength = 500
	MatchTimeout        = time.Second
)

// PathPrefix prepends the endpoint's Prefix to every path key
type PathPrefix struct{}

// Name implements Transformer
func (PathPrefix) Name() string { return "path-prefix" }

// Order implements Transformer
func (PathPrefix) Order() int { return 0 }

// Transform implements Transformer
func (PathPrefix) Transform(_ context.Context, doc *document.Document, tctx Context) (*document.Document, error) {
	prefix := tctx.Endpoint.Prefix
	if prefix == "" {
		return doc, nil
	}
	prefix = strings.TrimRight(prefix, "/")

	paths := make(map[string]json.RawMessage, len(doc.Paths))
	for key, item := range doc.Paths {
		if !strings.HasPrefix(key, "/") {
			key = "/" + key
		}
		paths[prefix+key] = item
	}

	out := *doc
	out.Paths = paths
	return &out, nil
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// PathFilter keeps only paths matching the endpoint's PathFilter regular
// expression. Patterns are compiled once and cached, including failures.
type PathFilter struct {
	logger  *slog.Logger
	timeout time.Duration
	match   func(re *regexp.Regexp, path string) bool

	mu    sync.RWMutex
	cache map[string]compiled
}

// NewPathFilter creates a path filter with an empty pattern cache
func NewPathFilter(logger *slog.Logger) *PathFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PathFilter{
		logger:  logger.With("component", "path-filter"),
		timeout: MatchTimeout,
		match:   (*regexp.Regexp).MatchString,
		cache:   make(map[string]compiled),
	}
}

// Name implements Transformer
func (*PathFilter) Name() string { return "path-filter" }

// Order implements Transformer
func (*PathFilter) Order() int { return 10 }

// Transform implements Transformer
func (f *PathFilter) Transform(ctx context.Context, doc *document.Document, tctx Context) (*document.Document, error) {
	pattern := tctx.Endpoint.PathFilter
	if pattern == "" {
		return doc, nil
	}
	clusterID := tctx.Endpoint.ClusterID

	if len(pattern) > MaxPathFilterLength {
		f.logger.Warn("Path filter pattern too long",
			"cluster_id", clusterID, "length", len(pattern), "max_length", MaxPathFilterLength)
		return doc, nil
	}

	re, err := f.compile(pattern)
	if err != nil {
		f.logger.Warn("Invalid path filter regex", "cluster_id", clusterID, "pattern", pattern, "error", err)
		return doc, nil
	}

	paths := make(map[string]json.RawMessage, len(doc.Paths))
	for _, key := range doc.PathKeys() {
		matched, err := f.matchWithin(ctx, re, key)
		if err != nil {
			return nil, err
		}
		if matched == nil {
			f.logger.Warn("Path filter match timed out",
				"cluster_id", clusterID, "path", key, "timeout", f.timeout)
			continue
		}
		if *matched {
			paths[key] = doc.Paths[key]
		}
	}

	out := *doc
	out.Paths = paths
	return &out, nil
}

// matchWithin runs one match under the per-match timeout. A nil result
// means the match did not finish in time; the abandoned match ends on its
// own since RE2 matching always terminates.
func (f *PathFilter) matchWithin(ctx context.Context, re *regexp.Regexp, path string) (*bool, error) {
	result := make(chan bool, 1)
	go func() { result <- f.match(re, path) }()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case matched := <-result:
		return &matched, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *PathFilter) compile(pattern string) (*regexp.Regexp, error) {
	f.mu.RLock()
	c, ok := f.cache[pattern]
	f.mu.RUnlock()
	if ok {
		return c.re, c.err
	}

	re, err := regexp.Compile(pattern)
	f.mu.Lock()
	f.cache[pattern] = compiled{re: re, err: err}
	f.mu.Unlock()
	return re, err
}
