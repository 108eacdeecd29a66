package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/docmesh/errors"
)

// Parse decodes a JSON or YAML OpenAPI 3.x or Swagger 2.0 document.
// Swagger 2.0 input is normalized into the 3.x component layout.
func Parse(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("empty body: %w", errors.ErrParsingFailed),
			"document", "Parse", "read document")
	}

	if trimmed[0] != '{' {
		converted, err := yamlToJSON(trimmed)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
				"document", "Parse", "decode yaml")
		}
		trimmed = converted
	}

	var header struct {
		OpenAPI any `json:"openapi"`
		Swagger any `json:"swagger"`
	}
	if err := json.Unmarshal(trimmed, &header); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"document", "Parse", "decode json")
	}
	openapi, swagger := versionString(header.OpenAPI), versionString(header.Swagger)

	// Unquoted YAML versions such as 3.1 arrive as numbers
	if _, ok := header.OpenAPI.(float64); ok {
		quoted, err := setVersion(trimmed, "openapi", openapi)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
				"document", "Parse", "normalize version")
		}
		trimmed = quoted
	}

	switch {
	case strings.HasPrefix(openapi, "3."):
		var doc Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
				"document", "Parse", "decode openapi")
		}
		if doc.Paths == nil {
			doc.Paths = make(map[string]json.RawMessage)
		}
		return &doc, nil
	case strings.HasPrefix(swagger, "2."):
		return upgradeSwagger2(trimmed)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("missing or unsupported openapi/swagger version: %w", errors.ErrParsingFailed),
			"document", "Parse", "detect version")
	}
}

// versionString formats a version field. Numbers keep at least one decimal
// so 2.0 decoded as 2 still reads as "2.0".
func versionString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprint(t)
	}
}

// setVersion replaces one top-level field with a string value
func setVersion(data []byte, field, version string) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(version)
	if err != nil {
		return nil, err
	}
	top[field] = quoted
	return json.Marshal(top)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(quoteVersions(normalizeYAML(v)))
}

// quoteVersions turns unquoted YAML version numbers back into strings
func quoteVersions(v any) any {
	top, ok := v.(map[string]any)
	if !ok {
		return v
	}
	quote := func(m map[string]any, field string) {
		switch n := m[field].(type) {
		case float64:
			m[field] = versionString(n)
		case int:
			m[field] = versionString(float64(n))
		}
	}
	quote(top, "openapi")
	quote(top, "swagger")
	if info, ok := top["info"].(map[string]any); ok {
		switch n := info["version"].(type) {
		case float64:
			info["version"] = strconv.FormatFloat(n, 'f', -1, 64)
		case int:
			info["version"] = strconv.Itoa(n)
		}
	}
	return v
}

// normalizeYAML converts non-string mapping keys (such as response codes) to strings
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

// ToYAML renders the document as YAML
func ToYAML(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "document", "ToYAML", "encode json")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "document", "ToYAML", "decode json")
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "document", "ToYAML", "encode yaml")
	}
	return out, nil
}
