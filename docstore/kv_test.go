package docstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docmesh/errors"
)

type fakeEntry struct {
	key   string
	value []byte
	rev   uint64
}

func (e fakeEntry) Bucket() string { return "test" }
func (e fakeEntry) Key() string { return e.key }
func (e fakeEntry) Value() []byte { return e.value }
func (e fakeEntry) Revision() uint64 { return e.rev }
func (e fakeEntry) Created() time.Time { return time.Time{} }
func (e fakeEntry) Delta() uint64 { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

type fakeBucket struct {
	mu      sync.Mutex
	data    map[string][]byte
	rev     uint64
	putErr  error
	getErr  error
	getHits int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{data: make(map[string][]byte)}
}

func (b *fakeBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getHits++
	if b.getErr != nil {
		return nil, b.getErr
	}
	v, ok := b.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{key: key, value: v, rev: b.rev}, nil
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return 0, b.putErr
	}
	b.rev++
	b.data[key] = value
	return b.rev, nil
}

func (b *fakeBucket) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("Orders"), Key(" orders "))
	assert.NotEqual(t, Key("orders"), Key("billing"))
	assert.Regexp(t, `^doc\.[A-Za-z0-9_-]+$`, Key("Public API / v2"))
}

func TestKVStore_SetWritesThrough(t *testing.T) {
	bucket := newFakeBucket()
	store := NewKVStore(bucket, nil, nil)

	require.NoError(t, store.Set("Orders", newDoc("orders")))

	raw, ok := bucket.data[Key("orders")]
	require.True(t, ok)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "Orders", env.Name)
	assert.Equal(t, "orders", env.Document.Info.Title)
	assert.False(t, env.StoredAt.IsZero())

	doc, ok := store.Get("orders")
	require.True(t, ok)
	assert.Equal(t, "orders", doc.Info.Title)
}

func TestKVStore_PutFailureKeepsCache(t *testing.T) {
	bucket := newFakeBucket()
	bucket.putErr = stderrors.New("nats: timeout")
	store := NewKVStore(bucket, nil, nil)

	require.NoError(t, store.Set("orders", newDoc("orders")))

	assert.True(t, store.Exists("orders"))
	assert.Equal(t, []string{"orders"}, store.ListNames())
	assert.Equal(t, int64(1), store.Stats().PersistFailures())
	assert.Equal(t, int64(1), store.Stats().Sets())

	bucket.putErr = nil
	require.NoError(t, store.Set("orders", newDoc("orders")))
	assert.Equal(t, int64(1), store.Stats().PersistFailures())
}

func TestKVStore_GetAsyncFallsBackToBucket(t *testing.T) {
	bucket := newFakeBucket()
	// Written by another replica
	require.NoError(t, NewKVStore(bucket, nil, nil).Set("Billing", newDoc("billing")))

	store := NewKVStore(bucket, nil, nil)
	_, ok := store.Get("billing")
	require.False(t, ok)

	res := <-store.GetAsync(context.Background(), "billing")
	require.NoError(t, res.Err)
	require.True(t, res.Found)
	assert.Equal(t, "billing", res.Document.Info.Title)

	// Populated the cache under the original spelling
	assert.Equal(t, []string{"Billing"}, store.ListNames())
	hits := bucket.getHits
	res = <-store.GetAsync(context.Background(), "BILLING")
	assert.True(t, res.Found)
	assert.Equal(t, hits, bucket.getHits)
}

func TestKVStore_GetAsyncMissAndError(t *testing.T) {
	bucket := newFakeBucket()
	store := NewKVStore(bucket, nil, nil)

	res := <-store.GetAsync(context.Background(), "missing")
	assert.NoError(t, res.Err)
	assert.False(t, res.Found)

	bucket.getErr = stderrors.New("nats: connection closed")
	res = <-store.GetAsync(context.Background(), "missing")
	require.Error(t, res.Err)
	assert.True(t, errors.IsTransient(res.Err))

	bucket.getErr = nil
	bucket.data[Key("broken")] = []byte("not json")
	res = <-store.GetAsync(context.Background(), "broken")
	require.Error(t, res.Err)
	assert.True(t, errors.IsInvalid(res.Err))
}

func TestKVStore_LoadClassifiesErrors(t *testing.T) {
	bucket := newFakeBucket()
	store := NewKVStore(bucket, nil, nil)

	_, err := store.load(context.Background(), Key("missing"))
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	bucket.data[Key("broken")] = []byte("not json")
	_, err = store.load(context.Background(), Key("broken"))
	assert.True(t, errors.IsInvalid(err))
	assert.NotErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestKVStore_Warm(t *testing.T) {
	bucket := newFakeBucket()
	seed := NewKVStore(bucket, nil, nil)
	require.NoError(t, seed.Set("Orders", newDoc("orders-old")))
	require.NoError(t, seed.Set("billing", newDoc("billing")))
	bucket.data[Key("broken")] = []byte(`{"name":"broken"}`)
	bucket.data["config.unrelated"] = []byte(`{}`)

	store := NewKVStore(bucket, nil, nil)
	// A document aggregated before warm-up is not replaced by the older copy
	store.cache.items[normalize("orders")] = entry{name: "orders", doc: newDoc("orders-new")}

	require.NoError(t, store.Warm(context.Background()))
	assert.Equal(t, []string{"billing", "orders"}, store.ListNames())

	doc, _ := store.Get("orders")
	assert.Equal(t, "orders-new", doc.Info.Title)
}

func TestKVStore_WarmEmptyBucket(t *testing.T) {
	store := NewKVStore(newFakeBucket(), nil, nil)
	require.NoError(t, store.Warm(context.Background()))
	assert.Empty(t, store.ListNames())
}

func TestKVStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemory()
	var _ Store = NewKVStore(newFakeBucket(), nil, nil)
}
