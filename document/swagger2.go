package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/c360/docmesh/errors"
)

const (
	defaultMediaType   = "application/json"
	formMediaType      = "application/x-www-form-urlencoded"
	multipartMediaType = "multipart/form-data"

	parameterRefPrefix   = "#/components/parameters/"
	requestBodyRefPrefix = "#/components/requestBodies/"
)

// Top-level 2.0 sections with no 3.x counterpart of the same name
var swagger2Only = []string{
	"swagger", "host", "basePath", "schemes", "consumes", "produces",
	"definitions", "securityDefinitions", "parameters", "responses",
}

var refRewrites = []struct{ from, to []byte }{
	{[]byte(`"#/definitions/`), []byte(`"#/components/schemas/`)},
	{[]byte(`"#/parameters/`), []byte(`"#/components/parameters/`)},
	{[]byte(`"#/responses/`), []byte(`"#/components/responses/`)},
}

var operationMethods = []string{"get", "put", "post", "delete", "options", "head", "patch"}

// Parameter and header fields that live under schema in 3.x
var schemaKeys = []string{
	"type", "format", "items", "enum", "default",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "multipleOf",
	"minLength", "maxLength", "pattern",
	"minItems", "maxItems", "uniqueItems",
}

var oauth2Flows = map[string]string{
	"implicit":    "implicit",
	"password":    "password",
	"application": "clientCredentials",
	"accessCode":  "authorizationCode",
}

// swagger2Converter rewrites a decoded 2.0 document into the 3.x layout
type swagger2Converter struct {
	consumes []string
	produces []string
	// shared parameters that became components.requestBodies
	bodyParams map[string]bool
}

// upgradeSwagger2 converts a Swagger 2.0 document to OpenAPI 3.0. Shared
// sections move under components, body and formData parameters become
// request bodies, and response schemas move under content for every media
// type the operation produces.
func upgradeSwagger2(data []byte) (*Document, error) {
	for _, r := range refRewrites {
		data = bytes.ReplaceAll(data, r.from, r.to)
	}

	var src map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&src); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"document", "upgradeSwagger2", "decode swagger 2.0")
	}

	c := &swagger2Converter{
		consumes:   stringList(src["consumes"], []string{defaultMediaType}),
		produces:   stringList(src["produces"], []string{defaultMediaType}),
		bodyParams: make(map[string]bool),
	}

	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	for _, k := range swagger2Only {
		delete(out, k)
	}
	out["openapi"] = OpenAPIVersion

	if servers := swagger2Servers(src); servers != nil {
		out["servers"] = servers
	}
	// Components first: operations need to know which shared parameters are bodies
	if comps := c.components(src); len(comps) > 0 {
		out["components"] = comps
	}
	if paths := asMap(src["paths"]); paths != nil {
		for key, item := range paths {
			if m := asMap(item); m != nil {
				paths[key] = c.pathItem(m)
			}
		}
		out["paths"] = paths
	}

	converted, err := json.Marshal(out)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"document", "upgradeSwagger2", "encode openapi 3.0")
	}
	var doc Document
	if err := json.Unmarshal(converted, &doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"document", "upgradeSwagger2", "decode openapi 3.0")
	}
	if doc.Paths == nil {
		doc.Paths = make(map[string]json.RawMessage)
	}
	return &doc, nil
}

func swagger2Servers(src map[string]any) []any {
	host, _ := src["host"].(string)
	basePath, _ := src["basePath"].(string)

	switch {
	case host != "":
		scheme := "https"
		if schemes := stringList(src["schemes"], nil); len(schemes) > 0 {
			scheme = schemes[0]
		}
		return []any{map[string]any{"url": scheme + "://" + host + basePath}}
	case basePath != "" && basePath != "/":
		return []any{map[string]any{"url": basePath}}
	default:
		return nil
	}
}

func (c *swagger2Converter) components(src map[string]any) map[string]any {
	comps := make(map[string]any)

	if defs := asMap(src["definitions"]); len(defs) > 0 {
		for name, s := range defs {
			defs[name] = convertSchema(s)
		}
		comps["schemas"] = defs
	}

	if defs := asMap(src["securityDefinitions"]); len(defs) > 0 {
		for name, s := range defs {
			if m := asMap(s); m != nil {
				defs[name] = securityScheme(m)
			}
		}
		comps["securitySchemes"] = defs
	}

	if params := asMap(src["parameters"]); len(params) > 0 {
		plain := make(map[string]any)
		bodies := make(map[string]any)
		for name, p := range params {
			m := asMap(p)
			if m == nil {
				continue
			}
			switch m["in"] {
			case "body":
				c.bodyParams[name] = true
				bodies[name] = requestBody(m, c.consumes)
			case "formData":
				c.bodyParams[name] = true
				bodies[name] = formBody([]map[string]any{m}, c.consumes)
			default:
				plain[name] = parameter(m)
			}
		}
		if len(plain) > 0 {
			comps["parameters"] = plain
		}
		if len(bodies) > 0 {
			comps["requestBodies"] = bodies
		}
	}

	if responses := asMap(src["responses"]); len(responses) > 0 {
		for name, r := range responses {
			if m := asMap(r); m != nil {
				responses[name] = response(m, c.produces)
			}
		}
		comps["responses"] = responses
	}

	return comps
}

func (c *swagger2Converter) pathItem(item map[string]any) map[string]any {
	var shared, sharedBodies []any
	for _, p := range asList(item["parameters"]) {
		if c.isBody(p) {
			sharedBodies = append(sharedBodies, p)
			continue
		}
		shared = append(shared, convertParameter(p))
	}
	if len(shared) > 0 {
		item["parameters"] = shared
	} else {
		delete(item, "parameters")
	}

	for _, method := range operationMethods {
		if op := asMap(item[method]); op != nil {
			item[method] = c.operation(op, sharedBodies)
		}
	}
	return item
}

func (c *swagger2Converter) operation(op map[string]any, sharedBodies []any) map[string]any {
	consumes := stringList(op["consumes"], c.consumes)
	produces := stringList(op["produces"], c.produces)
	delete(op, "consumes")
	delete(op, "produces")
	delete(op, "schemes")

	var params, bodies []any
	for _, p := range asList(op["parameters"]) {
		if c.isBody(p) {
			bodies = append(bodies, p)
			continue
		}
		params = append(params, convertParameter(p))
	}
	if len(params) > 0 {
		op["parameters"] = params
	} else {
		delete(op, "parameters")
	}

	// Operation-level bodies take precedence over path-level ones
	if body := operationBody(append(bodies, sharedBodies...), consumes); body != nil {
		op["requestBody"] = body
	}

	if responses := asMap(op["responses"]); responses != nil {
		for code, r := range responses {
			if m := asMap(r); m != nil {
				responses[code] = response(m, produces)
			}
		}
	}
	return op
}

func (c *swagger2Converter) isBody(p any) bool {
	m := asMap(p)
	if m == nil {
		return false
	}
	if ref, ok := m["$ref"].(string); ok {
		return c.bodyParams[strings.TrimPrefix(ref, parameterRefPrefix)]
	}
	return m["in"] == "body" || m["in"] == "formData"
}

func operationBody(bodies []any, consumes []string) map[string]any {
	var form []map[string]any
	for _, p := range bodies {
		m := asMap(p)
		if ref, ok := m["$ref"].(string); ok {
			return map[string]any{"$ref": requestBodyRefPrefix + strings.TrimPrefix(ref, parameterRefPrefix)}
		}
		if m["in"] == "body" {
			return requestBody(m, consumes)
		}
		form = append(form, m)
	}
	if len(form) > 0 {
		return formBody(form, consumes)
	}
	return nil
}

func requestBody(param map[string]any, consumes []string) map[string]any {
	schema := convertSchema(param["schema"])
	content := make(map[string]any, len(consumes))
	for _, mt := range consumes {
		content[mt] = map[string]any{"schema": schema}
	}

	out := map[string]any{"content": content}
	copyKeys(out, param, "description", "required")
	copyExtensions(out, param)
	return out
}

// formBody folds formData parameters into one object schema
func formBody(params []map[string]any, consumes []string) map[string]any {
	mediaType := formMediaType
	if slices.Contains(consumes, multipartMediaType) {
		mediaType = multipartMediaType
	}

	props := make(map[string]any, len(params))
	var required []any
	for _, p := range params {
		name, _ := p["name"].(string)
		prop := make(map[string]any)
		for _, k := range schemaKeys {
			if v, ok := p[k]; ok {
				prop[k] = v
			}
		}
		copyKeys(prop, p, "description")
		if prop["type"] == "file" {
			mediaType = multipartMediaType
		}
		props[name] = convertSchema(prop)
		if req, _ := p["required"].(bool); req {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return map[string]any{
		"content": map[string]any{mediaType: map[string]any{"schema": schema}},
	}
}

func response(m map[string]any, produces []string) map[string]any {
	if _, ok := m["$ref"]; ok {
		return m
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "schema", "examples":
		case "headers":
			headers := asMap(v)
			for name, h := range headers {
				if hm := asMap(h); hm != nil {
					headers[name] = withSchema(hm)
				}
			}
			out["headers"] = headers
		default:
			out[k] = v
		}
	}
	if _, ok := out["description"]; !ok {
		out["description"] = ""
	}

	schema, hasSchema := m["schema"]
	examples := asMap(m["examples"])
	if !hasSchema && len(examples) == 0 {
		return out
	}

	mediaTypes := slices.Clone(produces)
	for mt := range examples {
		if !slices.Contains(mediaTypes, mt) {
			mediaTypes = append(mediaTypes, mt)
		}
	}
	content := make(map[string]any, len(mediaTypes))
	for _, mt := range mediaTypes {
		media := make(map[string]any)
		if hasSchema {
			media["schema"] = convertSchema(schema)
		}
		if ex, ok := examples[mt]; ok {
			media["example"] = ex
		}
		content[mt] = media
	}
	out["content"] = content
	return out
}

func convertParameter(p any) any {
	if m := asMap(p); m != nil {
		return parameter(m)
	}
	return p
}

// parameter converts a path, query, header or cookie parameter
func parameter(m map[string]any) map[string]any {
	if _, ok := m["$ref"]; ok {
		return m
	}
	out := withSchema(m)

	if m["type"] == "array" {
		// csv is the 2.0 default; 3.x defaults to exploded form
		switch m["collectionFormat"] {
		case "multi":
			out["explode"] = true
		case "ssv":
			out["style"] = "spaceDelimited"
			out["explode"] = false
		case "pipes":
			out["style"] = "pipeDelimited"
			out["explode"] = false
		default:
			out["explode"] = false
		}
	}
	return out
}

// withSchema moves the type fields of a 2.0 parameter or header under schema
func withSchema(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	schema := make(map[string]any)
	for k, v := range m {
		switch {
		case slices.Contains(schemaKeys, k):
			schema[k] = v
		case k == "collectionFormat":
		default:
			out[k] = v
		}
	}
	if len(schema) > 0 {
		out["schema"] = convertSchema(schema)
	}
	return out
}

// convertSchema applies the schema keyword differences between 2.0 and 3.0
func convertSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = convertSchema(val)
		}
		if nullable, ok := t["x-nullable"]; ok {
			t["nullable"] = nullable
			delete(t, "x-nullable")
		}
		if t["type"] == "file" {
			t["type"] = "string"
			t["format"] = "binary"
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = convertSchema(val)
		}
		return t
	default:
		return v
	}
}

func securityScheme(m map[string]any) map[string]any {
	switch m["type"] {
	case "basic":
		out := map[string]any{"type": "http", "scheme": "basic"}
		copyKeys(out, m, "description")
		copyExtensions(out, m)
		return out
	case "oauth2":
		flowName, _ := m["flow"].(string)
		name, ok := oauth2Flows[flowName]
		if !ok {
			return m
		}
		scopes := asMap(m["scopes"])
		if scopes == nil {
			scopes = map[string]any{}
		}
		flow := map[string]any{"scopes": scopes}
		copyKeys(flow, m, "authorizationUrl", "tokenUrl")

		out := map[string]any{"type": "oauth2", "flows": map[string]any{name: flow}}
		copyKeys(out, m, "description")
		copyExtensions(out, m)
		return out
	default:
		return m
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func stringList(v any, fallback []string) []string {
	var out []string
	for _, item := range asList(v) {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func copyKeys(dst, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok {
			dst[k] = v
		}
	}
}

func copyExtensions(dst, src map[string]any) {
	for k, v := range src {
		if strings.HasPrefix(k, "x-") {
			dst[k] = v
		}
	}
}
