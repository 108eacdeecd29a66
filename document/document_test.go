package document

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docmesh/errors"
)

const petstore = `{
  "openapi": "3.0.1",
  "info": {"title": "Pets", "version": "2.1.0", "x-owner": "team-pets"},
  "paths": {
    "/pets": {"get": {"responses": {"200": {"description": "ok"}}}},
    "/pets/{id}": {"get": {"responses": {"200": {"$ref": "#/components/responses/Pet"}}}}
  },
  "components": {
    "schemas": {"Pet": {"type": "object"}},
    "responses": {"Pet": {"description": "a pet"}},
    "x-internal": true
  },
  "security": [{"bearer": []}],
  "tags": [{"name": "pets", "x-order": 1}],
  "x-gateway": {"rate": 10}
}`

func TestParse_OpenAPI3JSON(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	assert.Equal(t, "3.0.1", doc.OpenAPI)
	assert.Equal(t, "Pets", doc.Info.Title)
	assert.Equal(t, []string{"/pets", "/pets/{id}"}, doc.PathKeys())
	require.NotNil(t, doc.Components)
	assert.Contains(t, doc.Components.Schemas, "Pet")
	assert.Contains(t, doc.Components.Extensions, "x-internal")
	assert.JSONEq(t, `"team-pets"`, string(doc.Info.Extensions["x-owner"]))
	assert.JSONEq(t, `{"rate":10}`, string(doc.Extensions["x-gateway"]))
	assert.Equal(t, []SecurityRequirement{{"bearer": {}}}, doc.Security)
	require.Len(t, doc.Tags, 1)
	assert.Contains(t, doc.Tags[0].Extensions, "x-order")
}

func TestParse_RoundTripKeepsExtensions(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "x-gateway")
	assert.Contains(t, generic["info"], "x-owner")
	assert.Contains(t, generic["components"], "x-internal")
}

func TestParse_YAML(t *testing.T) {
	src := `
openapi: 3.0.3
info:
  title: Orders
  version: "1"
paths:
  /orders:
    get:
      responses:
        200:
          description: ok
`
	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Orders", doc.Info.Title)
	require.Contains(t, doc.Paths, "/orders")
	assert.Contains(t, string(doc.Paths["/orders"]), `"200"`)
}

func TestParse_Swagger2Upgrade(t *testing.T) {
	src := `{
	  "swagger": "2.0",
	  "info": {"title": "Legacy", "version": "0.9"},
	  "host": "legacy.internal:8080",
	  "basePath": "/api",
	  "schemes": ["http"],
	  "paths": {"/items": {"get": {"responses": {"200": {"schema": {"$ref": "#/definitions/Item"}}}}}},
	  "definitions": {"Item": {"type": "object"}},
	  "securityDefinitions": {"key": {"type": "apiKey", "in": "header", "name": "X-Key"}}
	}`

	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, OpenAPIVersion, doc.OpenAPI)
	require.NotNil(t, doc.Components)
	assert.Contains(t, doc.Components.Schemas, "Item")
	assert.Contains(t, doc.Components.SecuritySchemes, "key")
	assert.Contains(t, string(doc.Paths["/items"]), "#/components/schemas/Item")
	require.Len(t, doc.Servers, 1)
	assert.JSONEq(t, `{"url":"http://legacy.internal:8080/api"}`, string(doc.Servers[0]))
}

func decodeOperation(t *testing.T, doc *Document, path, method string) map[string]any {
	t.Helper()
	var item map[string]any
	require.NoError(t, json.Unmarshal(doc.Paths[path], &item))
	op, ok := item[method].(map[string]any)
	require.True(t, ok, "missing %s %s", method, path)
	return op
}

func TestParse_Swagger2Operations(t *testing.T) {
	src := `{
	  "swagger": "2.0",
	  "info": {"title": "Legacy", "version": "1"},
	  "consumes": ["application/json"],
	  "produces": ["application/json", "application/xml"],
	  "paths": {
	    "/items": {
	      "post": {
	        "parameters": [
	          {"name": "item", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Item"}},
	          {"name": "tags", "in": "query", "type": "array", "items": {"type": "string"}}
	        ],
	        "responses": {
	          "201": {"description": "created", "schema": {"$ref": "#/definitions/Item"},
	                  "headers": {"Location": {"type": "string"}}},
	          "204": {"description": "empty"}
	        }
	      },
	      "put": {
	        "parameters": [{"$ref": "#/parameters/ItemBody"}],
	        "responses": {"200": {"$ref": "#/responses/Ok"}}
	      }
	    },
	    "/upload": {
	      "post": {
	        "consumes": ["multipart/form-data"],
	        "produces": ["text/plain"],
	        "parameters": [
	          {"name": "file", "in": "formData", "type": "file", "required": true},
	          {"name": "note", "in": "formData", "type": "string"}
	        ],
	        "responses": {"200": {"description": "ok", "schema": {"type": "string"}}}
	      }
	    }
	  },
	  "definitions": {"Item": {"type": "object", "properties": {"name": {"type": "string", "x-nullable": true}}}},
	  "parameters": {
	    "ItemBody": {"name": "item", "in": "body", "schema": {"$ref": "#/definitions/Item"}},
	    "Limit": {"name": "limit", "in": "query", "type": "integer", "maximum": 100}
	  },
	  "responses": {"Ok": {"description": "ok", "schema": {"$ref": "#/definitions/Item"}}},
	  "securityDefinitions": {
	    "basic": {"type": "basic"},
	    "oauth": {"type": "oauth2", "flow": "application", "tokenUrl": "https://auth/token", "scopes": {"read": "r"}}
	  }
	}`

	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, OpenAPIVersion, doc.OpenAPI)
	assert.Equal(t, "1", doc.Info.Version)

	created := decodeOperation(t, doc, "/items", "post")
	assert.JSONEq(t, `{
	  "required": true,
	  "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Item"}}}
	}`, mustJSON(t, created["requestBody"]))
	assert.JSONEq(t, `[{"name": "tags", "in": "query", "explode": false,
	  "schema": {"type": "array", "items": {"type": "string"}}}]`, mustJSON(t, created["parameters"]))
	assert.JSONEq(t, `{
	  "201": {
	    "description": "created",
	    "headers": {"Location": {"schema": {"type": "string"}}},
	    "content": {
	      "application/json": {"schema": {"$ref": "#/components/schemas/Item"}},
	      "application/xml": {"schema": {"$ref": "#/components/schemas/Item"}}
	    }
	  },
	  "204": {"description": "empty"}
	}`, mustJSON(t, created["responses"]))

	replaced := decodeOperation(t, doc, "/items", "put")
	assert.JSONEq(t, `{"$ref": "#/components/requestBodies/ItemBody"}`, mustJSON(t, replaced["requestBody"]))
	assert.NotContains(t, replaced, "parameters")

	upload := decodeOperation(t, doc, "/upload", "post")
	assert.NotContains(t, upload, "consumes")
	assert.NotContains(t, upload, "produces")
	assert.JSONEq(t, `{"content": {"multipart/form-data": {"schema": {
	  "type": "object",
	  "required": ["file"],
	  "properties": {"file": {"type": "string", "format": "binary"}, "note": {"type": "string"}}
	}}}}`, mustJSON(t, upload["requestBody"]))
	assert.JSONEq(t, `{"200": {"description": "ok", "content": {"text/plain": {"schema": {"type": "string"}}}}}`,
		mustJSON(t, upload["responses"]))

	require.NotNil(t, doc.Components)
	assert.JSONEq(t, `{"type": "object", "properties": {"name": {"type": "string", "nullable": true}}}`,
		string(doc.Components.Schemas["Item"]))
	assert.Contains(t, doc.Components.RequestBodies, "ItemBody")
	assert.NotContains(t, doc.Components.Parameters, "ItemBody")
	assert.JSONEq(t, `{"name": "limit", "in": "query", "schema": {"type": "integer", "maximum": 100}}`,
		string(doc.Components.Parameters["Limit"]))
	assert.JSONEq(t, `{"description": "ok", "content": {
	  "application/json": {"schema": {"$ref": "#/components/schemas/Item"}},
	  "application/xml": {"schema": {"$ref": "#/components/schemas/Item"}}
	}}`, string(doc.Components.Responses["Ok"]))
	assert.JSONEq(t, `{"type": "http", "scheme": "basic"}`, string(doc.Components.SecuritySchemes["basic"]))
	assert.JSONEq(t, `{"type": "oauth2", "flows": {"clientCredentials": {
	  "tokenUrl": "https://auth/token", "scopes": {"read": "r"}
	}}}`, string(doc.Components.SecuritySchemes["oauth"]))
}

func TestParse_SharedBodyParameterReachesEveryOperation(t *testing.T) {
	src := `{
	  "swagger": "2.0",
	  "info": {"title": "Legacy", "version": "1"},
	  "paths": {"/items/{id}": {
	    "parameters": [
	      {"name": "id", "in": "path", "required": true, "type": "string"},
	      {"name": "item", "in": "body", "schema": {"type": "object"}}
	    ],
	    "put": {"responses": {"200": {"description": "ok"}}},
	    "patch": {"responses": {"200": {"description": "ok"}}}
	  }}
	}`

	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	var item map[string]any
	require.NoError(t, json.Unmarshal(doc.Paths["/items/{id}"], &item))
	assert.JSONEq(t, `[{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}]`,
		mustJSON(t, item["parameters"]))
	for _, method := range []string{"put", "patch"} {
		op := decodeOperation(t, doc, "/items/{id}", method)
		assert.JSONEq(t, `{"content": {"application/json": {"schema": {"type": "object"}}}}`,
			mustJSON(t, op["requestBody"]), method)
	}
}

func TestParse_UnquotedYAMLVersions(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		version string
	}{
		{"openapi 3.1", "openapi: 3.1\ninfo:\n  title: A\n  version: 2\npaths: {}\n", "2"},
		{"swagger 2.0", "swagger: 2.0\ninfo:\n  title: A\n  version: 1.5\npaths: {}\n", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, "A", doc.Info.Title)
			assert.Equal(t, tt.version, doc.Info.Version)
		})
	}

	doc, err := Parse([]byte("openapi: 3.1\ninfo:\n  title: A\n  version: '1'\npaths: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "3.1", doc.OpenAPI)
}

func TestParse_NumericJSONVersion(t *testing.T) {
	doc, err := Parse([]byte(`{"openapi": 3.0, "info": {"title": "A", "version": "1"}, "paths": {}}`))
	require.NoError(t, err)
	assert.Equal(t, "3.0", doc.OpenAPI)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "   "},
		{"truncated json", `{"openapi": "3.0.1", "paths": {`},
		{"no version", `{"info": {"title": "x"}}`},
		{"html", "<html><body>oops</body></html>"},
		{"unsupported version", `{"openapi": "4.0.0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrParsingFailed)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	cp := doc.Clone()
	if diff := cmp.Diff(doc, cp, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("clone differs from original (-want +got):\n%s", diff)
	}

	cp.Paths["/new"] = json.RawMessage(`{}`)
	delete(cp.Paths, "/pets")
	cp.Components.Schemas["Other"] = json.RawMessage(`{}`)
	cp.Security[0]["bearer"] = append(cp.Security[0]["bearer"], "admin")
	cp.Tags[0].Name = "changed"

	assert.Equal(t, []string{"/pets", "/pets/{id}"}, doc.PathKeys())
	assert.NotContains(t, doc.Components.Schemas, "Other")
	assert.Empty(t, doc.Security[0]["bearer"])
	assert.Equal(t, "pets", doc.Tags[0].Name)
}

func TestMarshal_OmitsEmptyComponents(t *testing.T) {
	doc := New()
	doc.Components = &Components{}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"openapi":"3.0.1","info":{"title":"Aggregated API","version":"1.0.0"},"paths":{}}`, string(data))
}

func TestPlaceholder(t *testing.T) {
	doc := Placeholder("unknown-group")

	assert.Equal(t, "unknown-group", doc.Info.Title)
	assert.Equal(t, DefaultVersion, doc.Info.Version)
	assert.Contains(t, doc.Info.Description, "being loaded")
	assert.Empty(t, doc.Paths)
	assert.True(t, IsPlaceholder(doc))
	assert.False(t, IsPlaceholder(New()))
}

func TestToYAML(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	out, err := ToYAML(doc)
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc.PathKeys(), back.PathKeys())
	assert.Equal(t, "Pets", back.Info.Title)
}
