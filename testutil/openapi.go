package testutil

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Spec builds small OpenAPI 3 documents for tests
type Spec struct {
	Title       string
	Version     string
	Description string
	Paths       []string
	Schemas     []string
	Tags        []string
	Extensions  map[string]any
}

// NewSpec creates an OpenAPI fixture with the given title and paths
func NewSpec(title string, paths ...string) *Spec {
	return &Spec{Title: title, Version: "1.0.0", Paths: paths}
}

// WithSchemas adds component schemas
func (s *Spec) WithSchemas(names ...string) *Spec {
	s.Schemas = append(s.Schemas, names...)
	return s
}

// WithTags adds top-level tags
func (s *Spec) WithTags(names ...string) *Spec {
	s.Tags = append(s.Tags, names...)
	return s
}

// WithExtension adds a top-level x- extension
func (s *Spec) WithExtension(key string, value any) *Spec {
	if s.Extensions == nil {
		s.Extensions = make(map[string]any)
	}
	s.Extensions[key] = value
	return s
}

// Map renders the fixture as a generic JSON object. Each path gets a GET
// operation whose summary names the document title, so tests can tell
// which source won a conflict.
func (s *Spec) Map() map[string]any {
	paths := make(map[string]any, len(s.Paths))
	for _, p := range s.Paths {
		paths[p] = map[string]any{
			"get": map[string]any{
				"summary": fmt.Sprintf("%s %s", s.Title, p),
				"responses": map[string]any{
					"200": map[string]any{"description": "OK"},
				},
			},
		}
	}

	info := map[string]any{"title": s.Title, "version": s.Version}
	if s.Description != "" {
		info["description"] = s.Description
	}

	out := map[string]any{
		"openapi": "3.0.1",
		"info":    info,
		"paths":   paths,
	}

	if len(s.Schemas) > 0 {
		schemas := make(map[string]any, len(s.Schemas))
		for _, name := range s.Schemas {
			schemas[name] = map[string]any{"type": "object", "description": s.Title}
		}
		out["components"] = map[string]any{"schemas": schemas}
	}
	if len(s.Tags) > 0 {
		tags := make([]any, len(s.Tags))
		for i, name := range s.Tags {
			tags[i] = map[string]any{"name": name, "description": s.Title}
		}
		out["tags"] = tags
	}

	keys := make([]string, 0, len(s.Extensions))
	for k := range s.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = s.Extensions[k]
	}
	return out
}

// JSON renders the fixture as JSON bytes
func (s *Spec) JSON() []byte {
	data, err := json.Marshal(s.Map())
	if err != nil {
		panic(err)
	}
	return data
}
