package docstore

import (
	"context"
	"strings"

	"github.com/c360/docmesh/document"
)

// Store is the capability the scheduler writes to and the gateway reads from.
// Documents handed to Set are treated as immutable afterwards.
type Store interface {
	Get(name string) (*document.Document, bool)
	GetAsync(ctx context.Context, name string) <-chan Lookup
	Set(name string, doc *document.Document) error
	Exists(name string) bool
	ListNames() []string
}

// Lookup is delivered exactly once on the channel returned by GetAsync.
type Lookup struct {
	Document *document.Document
	Found    bool
	Err      error
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// resolved returns a closed channel already holding l.
func resolved(l Lookup) <-chan Lookup {
	ch := make(chan Lookup, 1)
	ch <- l
	close(ch)
	return ch
}
