package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/errors"
)

func newDoc(title string) *document.Document {
	doc := document.New()
	doc.Info.Title = title
	doc.Paths["/"+title] = json.RawMessage(`{}`)
	return doc
}

func TestMemory_CaseInsensitive(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Set("Orders", newDoc("orders")))

	doc, ok := store.Get("ORDERS")
	require.True(t, ok)
	assert.Equal(t, "orders", doc.Info.Title)
	assert.True(t, store.Exists("orders"))
	assert.False(t, store.Exists("billing"))

	// Replacement keeps the first spelling
	require.NoError(t, store.Set("orders", newDoc("v2")))
	assert.Equal(t, []string{"Orders"}, store.ListNames())

	doc, _ = store.Get("Orders")
	assert.Equal(t, "v2", doc.Info.Title)
}

func TestMemory_ListNamesSorted(t *testing.T) {
	store := NewMemory()
	for _, name := range []string{"zeta", "Alpha", "mid"} {
		require.NoError(t, store.Set(name, newDoc(name)))
	}
	assert.Equal(t, []string{"Alpha", "mid", "zeta"}, store.ListNames())

	assert.Empty(t, NewMemory().ListNames())
	assert.NotNil(t, NewMemory().ListNames())
}

func TestMemory_SetRejectsInvalid(t *testing.T) {
	store := NewMemory()

	err := store.Set("  ", newDoc("x"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = store.Set("orders", nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.Empty(t, store.ListNames())
}

func TestMemory_Statistics(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Set("a", newDoc("a")))
	require.NoError(t, store.Set("A", newDoc("a2")))
	require.NoError(t, store.Set("b", newDoc("b")))

	store.Get("a")
	store.Get("b")
	store.Get("missing")

	stats := store.Stats()
	assert.Equal(t, int64(2), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(3), stats.Sets())
	assert.Equal(t, int64(2), stats.Size())
	assert.InDelta(t, 2.0/3.0, stats.HitRatio(), 0.0001)
	assert.Zero(t, NewStatistics().HitRatio())
}

func TestMemory_GetAsync(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Set("orders", newDoc("orders")))

	res := <-store.GetAsync(context.Background(), "Orders")
	require.NoError(t, res.Err)
	require.True(t, res.Found)
	assert.Equal(t, "orders", res.Document.Info.Title)

	res = <-store.GetAsync(context.Background(), "missing")
	assert.False(t, res.Found)
	assert.Nil(t, res.Document)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = <-store.GetAsync(ctx, "orders")
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestMemory_ConcurrentReadersSeeWholeDocuments(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Set("g", newDoc("v0")))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = store.Set("g", newDoc(fmt.Sprintf("v%d-%d", w, i)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				doc, ok := store.Get("G")
				if assert.True(t, ok) {
					// Title and path always come from the same Set call
					_, has := doc.Paths["/"+doc.Info.Title]
					assert.True(t, has)
				}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, store.ListNames(), 1)
}
