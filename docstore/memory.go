package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/errors"
)

type entry struct {
	name string // first spelling seen
	doc  *document.Document
}

// Memory is a thread-safe in-process Store with no eviction policy.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	stats *Statistics
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]entry),
		stats: NewStatistics(),
	}
}

// Stats exposes the hit, miss and set counters.
func (m *Memory) Stats() *Statistics {
	return m.stats
}

// Get retrieves a document by case-insensitive name.
func (m *Memory) Get(name string) (*document.Document, bool) {
	m.mu.RLock()
	e, ok := m.items[normalize(name)]
	m.mu.RUnlock()

	if ok {
		m.stats.hit()
	} else {
		m.stats.miss()
	}
	return e.doc, ok
}

// GetAsync never blocks for the memory store; the result is ready immediately.
func (m *Memory) GetAsync(ctx context.Context, name string) <-chan Lookup {
	if err := ctx.Err(); err != nil {
		return resolved(Lookup{Err: err})
	}
	doc, ok := m.Get(name)
	return resolved(Lookup{Document: doc, Found: ok})
}

// Set replaces the document for name. Readers see either the old or the new
// document, never a partial one.
func (m *Memory) Set(name string, doc *document.Document) error {
	key := normalize(name)
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "docstore", "Set", "validate document name")
	}
	if doc == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "docstore", "Set", "validate document")
	}

	m.mu.Lock()
	e, exists := m.items[key]
	if !exists {
		e.name = name
	}
	e.doc = doc
	m.items[key] = e
	size := len(m.items)
	m.mu.Unlock()

	m.stats.set()
	m.stats.updateSize(size)
	return nil
}

// Exists reports whether a document is stored under name.
func (m *Memory) Exists(name string) bool {
	m.mu.RLock()
	_, ok := m.items[normalize(name)]
	m.mu.RUnlock()
	return ok
}

// ListNames returns the stored names, as first spelled, ordered
// case-insensitively.
func (m *Memory) ListNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.items))
	for _, e := range m.items {
		names = append(names, e.name)
	}
	m.mu.RUnlock()

	sort.Slice(names, func(i, j int) bool {
		return normalize(names[i]) < normalize(names[j])
	})
	return names
}
