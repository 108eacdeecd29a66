// Package document provides the OpenAPI document model shared by the fetch,
// transform, merge and serving stages. Path items and component bodies are
// kept as raw JSON: only their keys take part in aggregation, so their
// contents pass through untouched.
package document

import (
	"encoding/json"
	"sort"
	"strings"
)

// Default identity of a merged document before any metadata source applies
const (
	DefaultTitle   = "Aggregated API"
	DefaultVersion = "1.0.0"
	OpenAPIVersion = "3.0.1"
)

// Document is an OpenAPI 3.x description
type Document struct {
	OpenAPI      string                     `json:"openapi"`
	Info         Info                       `json:"info"`
	Servers      []json.RawMessage          `json:"servers,omitempty"`
	Paths        map[string]json.RawMessage `json:"paths"`
	Components   *Components                `json:"components,omitempty"`
	Security     []SecurityRequirement      `json:"security,omitempty"`
	Tags         []Tag                      `json:"tags,omitempty"`
	ExternalDocs json.RawMessage            `json:"externalDocs,omitempty"`
	Extensions   map[string]json.RawMessage `json:"-"`
}

// Info is the document metadata block
type Info struct {
	Title          string                     `json:"title"`
	Version        string                     `json:"version"`
	Description    string                     `json:"description,omitempty"`
	TermsOfService string                     `json:"termsOfService,omitempty"`
	Contact        json.RawMessage            `json:"contact,omitempty"`
	License        json.RawMessage            `json:"license,omitempty"`
	Extensions     map[string]json.RawMessage `json:"-"`
}

// Tag groups operations in documentation UIs
type Tag struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description,omitempty"`
	ExternalDocs json.RawMessage            `json:"externalDocs,omitempty"`
	Extensions   map[string]json.RawMessage `json:"-"`
}

// SecurityRequirement maps a security scheme name to required scopes
type SecurityRequirement map[string][]string

// Components holds the reusable objects of a document, keyed by name
type Components struct {
	Schemas         map[string]json.RawMessage `json:"schemas,omitempty"`
	SecuritySchemes map[string]json.RawMessage `json:"securitySchemes,omitempty"`
	Parameters      map[string]json.RawMessage `json:"parameters,omitempty"`
	Responses       map[string]json.RawMessage `json:"responses,omitempty"`
	RequestBodies   map[string]json.RawMessage `json:"requestBodies,omitempty"`
	Headers         map[string]json.RawMessage `json:"headers,omitempty"`
	Examples        map[string]json.RawMessage `json:"examples,omitempty"`
	Links           map[string]json.RawMessage `json:"links,omitempty"`
	Callbacks       map[string]json.RawMessage `json:"callbacks,omitempty"`
	Extensions      map[string]json.RawMessage `json:"-"`
}

// New returns an empty document carrying the default identity
func New() *Document {
	return &Document{
		OpenAPI: OpenAPIVersion,
		Info: Info{
			Title:   DefaultTitle,
			Version: DefaultVersion,
		},
		Paths: make(map[string]json.RawMessage),
	}
}

// Sections returns the component maps by their OpenAPI section name.
// Missing maps are allocated so callers can merge into them.
func (c *Components) Sections() map[string]*map[string]json.RawMessage {
	return map[string]*map[string]json.RawMessage{
		"schemas":         &c.Schemas,
		"securitySchemes": &c.SecuritySchemes,
		"parameters":      &c.Parameters,
		"responses":       &c.Responses,
		"requestBodies":   &c.RequestBodies,
		"headers":         &c.Headers,
		"examples":        &c.Examples,
		"links":           &c.Links,
		"callbacks":       &c.Callbacks,
	}
}

// SectionNames lists component sections in a stable order
var SectionNames = []string{
	"schemas", "securitySchemes", "parameters", "responses", "requestBodies",
	"headers", "examples", "links", "callbacks",
}

// IsEmpty reports whether no component or extension is present
func (c *Components) IsEmpty() bool {
	if c == nil {
		return true
	}
	for _, m := range c.Sections() {
		if len(*m) > 0 {
			return false
		}
	}
	return len(c.Extensions) == 0
}

// PathKeys returns the document's path keys sorted
func (d *Document) PathKeys() []string {
	keys := make([]string, 0, len(d.Paths))
	for k := range d.Paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy whose maps and slices can be replaced without
// affecting the original. Raw JSON values are shared; they are never mutated.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Info.Extensions = cloneRaw(d.Info.Extensions)
	out.Servers = append([]json.RawMessage(nil), d.Servers...)
	out.Paths = cloneRaw(d.Paths)
	if out.Paths == nil {
		out.Paths = make(map[string]json.RawMessage)
	}
	if d.Components != nil {
		c := Components{Extensions: cloneRaw(d.Components.Extensions)}
		src := d.Components.Sections()
		for name, dst := range c.Sections() {
			*dst = cloneRaw(*src[name])
		}
		out.Components = &c
	}
	out.Security = make([]SecurityRequirement, 0, len(d.Security))
	for _, req := range d.Security {
		cp := make(SecurityRequirement, len(req))
		for k, v := range req {
			cp[k] = append([]string(nil), v...)
		}
		out.Security = append(out.Security, cp)
	}
	if len(out.Security) == 0 {
		out.Security = nil
	}
	out.Tags = append([]Tag(nil), d.Tags...)
	out.Extensions = cloneRaw(d.Extensions)
	return &out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type documentAlias Document

// MarshalJSON writes the document with its x- extensions inlined
func (d Document) MarshalJSON() ([]byte, error) {
	alias := documentAlias(d)
	if alias.Components.IsEmpty() {
		alias.Components = nil
	}
	if alias.Paths == nil {
		alias.Paths = map[string]json.RawMessage{}
	}
	return marshalWithExtensions(alias, d.Extensions)
}

// UnmarshalJSON reads the document and collects x- extensions
func (d *Document) UnmarshalJSON(data []byte) error {
	var alias documentAlias
	ext, err := unmarshalWithExtensions(data, &alias)
	if err != nil {
		return err
	}
	*d = Document(alias)
	d.Extensions = ext
	return nil
}

type infoAlias Info

// MarshalJSON writes the info block with its x- extensions inlined
func (i Info) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(infoAlias(i), i.Extensions)
}

// UnmarshalJSON reads the info block and collects x- extensions
func (i *Info) UnmarshalJSON(data []byte) error {
	var alias infoAlias
	ext, err := unmarshalWithExtensions(data, &alias)
	if err != nil {
		return err
	}
	*i = Info(alias)
	i.Extensions = ext
	return nil
}

type tagAlias Tag

// MarshalJSON writes the tag with its x- extensions inlined
func (t Tag) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(tagAlias(t), t.Extensions)
}

// UnmarshalJSON reads the tag and collects x- extensions
func (t *Tag) UnmarshalJSON(data []byte) error {
	var alias tagAlias
	ext, err := unmarshalWithExtensions(data, &alias)
	if err != nil {
		return err
	}
	*t = Tag(alias)
	t.Extensions = ext
	return nil
}

type componentsAlias Components

// MarshalJSON writes the components with their x- extensions inlined
func (c Components) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(componentsAlias(c), c.Extensions)
}

// UnmarshalJSON reads the components and collects x- extensions
func (c *Components) UnmarshalJSON(data []byte) error {
	var alias componentsAlias
	ext, err := unmarshalWithExtensions(data, &alias)
	if err != nil {
		return err
	}
	*c = Components(alias)
	c.Extensions = ext
	return nil
}

func marshalWithExtensions(v any, ext map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(ext) == 0 {
		return data, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, raw := range ext {
		if isExtension(k) {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}

func unmarshalWithExtensions(data []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var ext map[string]json.RawMessage
	for k, raw := range fields {
		if !isExtension(k) {
			continue
		}
		if ext == nil {
			ext = make(map[string]json.RawMessage)
		}
		ext[k] = raw
	}
	return ext, nil
}

func isExtension(key string) bool {
	return strings.HasPrefix(key, "x-")
}
