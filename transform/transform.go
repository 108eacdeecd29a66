// Package transform rewrites a loaded document before it is merged. Each
// Transformer runs in ascending Order; a failing or panicking transformer is
// logged and skipped so the document reaches the next one unchanged.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
)

// Context describes the endpoint a document came from. It is read-only.
type Context struct {
	Group    string
	Endpoint endpoint.Descriptor
	Params   map[string]string
}

// Transformer rewrites one document. Implementations must not mutate doc
// in place; they return a new value (sharing unchanged parts is fine).
type Transformer interface {
	Name() string
	Order() int
	Transform(ctx context.Context, doc *document.Document, tctx Context) (*document.Document, error)
}

// Pipeline runs transformers in order
type Pipeline struct {
	transformers []Transformer
	logger       *slog.Logger
}

// NewPipeline creates a pipeline. Transformers are sorted by Order; ties
// keep the order they were given in.
func NewPipeline(logger *slog.Logger, transformers ...Transformer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Transformer(nil), transformers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &Pipeline{transformers: sorted, logger: logger.With("component", "transform")}
}

// Default returns the built-in pipeline plus any extra transformers
func Default(logger *slog.Logger, extra ...Transformer) *Pipeline {
	all := append([]Transformer{PathPrefix{}, NewPathFilter(logger)}, extra...)
	return NewPipeline(logger, all...)
}

// Transformers returns the transformers in execution order
func (p *Pipeline) Transformers() []Transformer {
	return append([]Transformer(nil), p.transformers...)
}

// Apply runs every transformer over doc
func (p *Pipeline) Apply(ctx context.Context, doc *document.Document, tctx Context) *document.Document {
	for _, t := range p.transformers {
		if ctx.Err() != nil {
			return doc
		}
		out, err := p.run(ctx, t, doc, tctx)
		if err != nil {
			p.logger.Warn("Transformer failed",
				"transformer", t.Name(),
				"cluster_id", tctx.Endpoint.ClusterID,
				"error", err)
			continue
		}
		if out != nil {
			doc = out
		}
	}
	return doc
}

func (p *Pipeline) run(ctx context.Context, t Transformer, doc *document.Document, tctx Context) (out *document.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Transform(ctx, doc, tctx)
}
