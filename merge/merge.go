// Package merge combines per-endpoint documents into one group document.
// Conflicts resolve first-wins in input order, so the discovery order of
// endpoints decides which backend owns a shared path or component.
package merge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/loader"
)

// Options control merge output
type Options struct {
	IncludeFailedServicesWarning bool `json:"include_failed_services_warning" yaml:"include_failed_services_warning"`
}

// DefaultOptions returns the default merge options
func DefaultOptions() Options {
	return Options{IncludeFailedServicesWarning: true}
}

// Merger combines load results into one document
type Merger interface {
	Merge(group string, results []loader.Result, opts Options) *document.Document
}

// FirstWins is the default Merger
type FirstWins struct {
	logger *slog.Logger
}

var _ Merger = (*FirstWins)(nil)

// New creates a first-wins merger
func New(logger *slog.Logger) *FirstWins {
	if logger == nil {
		logger = slog.Default()
	}
	return &FirstWins{logger: logger.With("component", "merger")}
}

// Merge implements Merger. The result never aliases the maps of its inputs.
func (m *FirstWins) Merge(group string, results []loader.Result, opts Options) *document.Document {
	out := document.New()
	out.Components = &document.Components{}

	var failed []string
	var metadataSources []string
	seenTags := make(map[string]bool)

	for _, res := range results {
		clusterID := res.Endpoint.ClusterID
		if !res.Success() {
			failed = append(failed, fmt.Sprintf("%s (%s)", clusterID, res.Err))
			continue
		}
		doc := res.Document

		if res.Endpoint.IsMetadataSource {
			out.Info = doc.Info
			metadataSources = append(metadataSources, clusterID)
		}

		m.mergeMap(out.Paths, doc.Paths, group, clusterID, "path")
		m.mergeComponents(out.Components, doc.Components, group, clusterID)

		if out.Extensions == nil && len(doc.Extensions) > 0 {
			out.Extensions = make(map[string]json.RawMessage)
		}
		m.mergeMap(out.Extensions, doc.Extensions, group, clusterID, "extension")

		for _, req := range doc.Security {
			cp := make(document.SecurityRequirement, len(req))
			for scheme, scopes := range req {
				cp[scheme] = append(make([]string, 0, len(scopes)), scopes...)
			}
			out.Security = append(out.Security, cp)
		}

		for _, tag := range doc.Tags {
			if seenTags[tag.Name] {
				continue
			}
			seenTags[tag.Name] = true
			out.Tags = append(out.Tags, tag)
		}
	}

	if len(metadataSources) > 1 {
		m.logger.Warn("Multiple metadata sources in group, last one wins",
			"group", group, "sources", metadataSources)
	}

	if len(failed) > 0 && opts.IncludeFailedServicesWarning {
		list := strings.Join(failed, ", ")
		out.Info.Description += "\n\n**Warning**: Failed to load Swagger for: " + list
		m.logger.Warn("Aggregation completed with failures", "group", group, "services", list)
	}

	if out.Components.IsEmpty() {
		out.Components = nil
	}
	return out
}

func (m *FirstWins) mergeComponents(dst, src *document.Components, group, clusterID string) {
	if src == nil {
		return
	}
	dstSections := dst.Sections()
	srcSections := src.Sections()
	for _, name := range document.SectionNames {
		from := *srcSections[name]
		if len(from) == 0 {
			continue
		}
		into := dstSections[name]
		if *into == nil {
			*into = make(map[string]json.RawMessage, len(from))
		}
		m.mergeMap(*into, from, group, clusterID, name)
	}

	if len(src.Extensions) > 0 && dst.Extensions == nil {
		dst.Extensions = make(map[string]json.RawMessage)
	}
	m.mergeMap(dst.Extensions, src.Extensions, group, clusterID, "components extension")
}

// mergeMap copies keys missing from dst; keys already present are kept
func (m *FirstWins) mergeMap(dst, src map[string]json.RawMessage, group, clusterID, kind string) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, exists := dst[k]; exists {
			m.logger.Debug("Duplicate entry ignored, first wins",
				"group", group, "kind", kind, "key", k, "cluster_id", clusterID)
			continue
		}
		dst[k] = src[k]
	}
}
