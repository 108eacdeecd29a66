package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/c360/docmesh/aggregator"
	"github.com/c360/docmesh/docstore"
	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/merge"
	"github.com/c360/docmesh/telemetry"
)

// Aggregator builds one group's document on demand
type Aggregator interface {
	Aggregate(ctx context.Context, req aggregator.Request) (*document.Document, error)
}

// ProviderConfig wires a Provider
type ProviderConfig struct {
	Store      docstore.Store
	Directory  endpoint.Directory
	Aggregator Aggregator
	// Options is read per on-demand aggregation
	Options func() merge.Options
	Sink    telemetry.Sink
	Logger  *slog.Logger
}

// Provider resolves documents for readers
type Provider struct {
	store      docstore.Store
	directory  endpoint.Directory
	aggregator Aggregator
	options    func() merge.Options
	sink       telemetry.Sink
	logger     *slog.Logger

	flight singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is one on-demand aggregation shared by every reader waiting on it.
// It is cancelled when the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewProvider creates a Provider
func NewProvider(cfg ProviderConfig) *Provider {
	p := &Provider{
		store:      cfg.Store,
		directory:  cfg.Directory,
		aggregator: cfg.Aggregator,
		options:    cfg.Options,
		sink:       telemetry.OrNoop(cfg.Sink),
		logger:     cfg.Logger,
		flights:    make(map[string]*flight),
	}
	if p.options == nil {
		p.options = merge.DefaultOptions
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "provider")
	return p
}

// GetDocument returns the stored document for name. On a miss it aggregates
// the group on demand and stores the result. When the group has no
// endpoints or the aggregation fails, a placeholder titled name is returned.
func (p *Provider) GetDocument(ctx context.Context, name string) *document.Document {
	lookup := <-p.store.GetAsync(ctx, name)
	if lookup.Err != nil {
		p.logger.Warn("Store lookup failed", "document", name, "error", lookup.Err)
	}
	if lookup.Found {
		p.sink.CacheHit(name)
		p.logger.Debug("Returning cached document", "document", name)
		return lookup.Document
	}

	p.logger.Info("Document not in cache, attempting on-demand load", "document", name)
	key := strings.ToLower(name)
	f, release := p.join(ctx, key)
	defer release()

	ch := p.flight.DoChan(key, func() (any, error) {
		return p.loadOnDemand(f.ctx, name), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			p.logger.Debug("Joined in-flight on-demand load", "document", name)
		}
		if doc, ok := res.Val.(*document.Document); ok && doc != nil {
			return doc
		}
	case <-ctx.Done():
		p.logger.Debug("Reader left before on-demand load finished", "document", name)
	}

	p.logger.Warn("Document not found, returning placeholder document", "document", name)
	return document.Placeholder(name)
}

// join registers a waiter on the flight for key, creating it if needed. The
// flight context keeps the first caller's values but not its cancellation,
// so one reader leaving does not fail the others. release cancels the
// flight once no waiter remains.
func (p *Provider) join(ctx context.Context, key string) (*flight, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = f
	}
	f.waiters++

	return f, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		f.waiters--
		if f.waiters > 0 {
			return
		}
		f.cancel()
		if p.flights[key] == f {
			delete(p.flights, key)
		}
	}
}

func (p *Provider) loadOnDemand(ctx context.Context, name string) *document.Document {
	if p.directory == nil || p.aggregator == nil {
		return nil
	}

	endpoints := p.directory.ListGroup(ctx, name)
	if len(endpoints) == 0 {
		p.logger.Warn("No endpoints found for document", "document", name)
		return nil
	}

	doc, err := p.aggregator.Aggregate(ctx, aggregator.Request{
		Group:     name,
		Endpoints: endpoints,
		Options:   p.options(),
	})
	if err != nil {
		p.logger.Error("Failed to load document on demand", "document", name, "error", err)
		return nil
	}
	if err := p.store.Set(name, doc); err != nil {
		p.logger.Warn("Failed to store on-demand document", "document", name, "error", err)
	}
	return doc
}

// ListDocumentNames lists the stored documents. Before anything has been
// stored it falls back to the groups currently discovered.
func (p *Provider) ListDocumentNames(ctx context.Context) []string {
	if names := p.store.ListNames(); len(names) > 0 {
		return names
	}
	if p.directory == nil {
		return []string{}
	}
	names := endpoint.GroupNames(p.directory.List(ctx))
	if names == nil {
		return []string{}
	}
	return names
}
