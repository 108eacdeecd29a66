package loader

import (
	"time"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
)

// ErrorKind classifies why a load failed
type ErrorKind string

// Error kinds reported for failed loads
const (
	KindHTTP         ErrorKind = "http_error"
	KindTimeout      ErrorKind = "timeout"
	KindSizeExceeded ErrorKind = "size_exceeded"
	KindParse        ErrorKind = "parse_error"
	KindUnknown      ErrorKind = "unknown"
)

// Result is the outcome of loading one endpoint's document. A failed load is
// a value: Document is nil and Err describes the failure.
type Result struct {
	Endpoint endpoint.Descriptor
	Document *document.Document
	Err      string
	Kind     ErrorKind
	Duration time.Duration
}

// Success reports whether a document was loaded
func (r Result) Success() bool {
	return r.Document != nil
}
