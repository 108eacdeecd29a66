package docstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/errors"
)

const (
	keyPrefix = "doc."

	// DefaultKVTimeout bounds every bucket operation.
	DefaultKVTimeout = 5 * time.Second
)

// Bucket is the subset of jetstream.KeyValue the store uses.
type Bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// envelope is the value written to the bucket. The name travels with the
// document because keys are encoded.
type envelope struct {
	Name     string             `json:"name"`
	Document *document.Document `json:"document"`
	StoredAt time.Time          `json:"stored_at"`
}

// KVStore writes every document through to a NATS KV bucket and serves reads
// from an in-memory cache. Lookups that miss the cache fall back to the
// bucket through GetAsync, which lets replicas pick up documents another
// instance aggregated.
type KVStore struct {
	bucket  Bucket
	cache   *Memory
	timeout time.Duration
	logger  *slog.Logger
}

// NewKVStore creates a write-through store. A nil cache gets a fresh Memory.
func NewKVStore(bucket Bucket, cache *Memory, logger *slog.Logger) *KVStore {
	if cache == nil {
		cache = NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{
		bucket:  bucket,
		cache:   cache,
		timeout: DefaultKVTimeout,
		logger:  logger.With("component", "docstore"),
	}
}

// Stats exposes the cache statistics.
func (s *KVStore) Stats() *Statistics {
	return s.cache.Stats()
}

// Key returns the bucket key for a document name.
func Key(name string) string {
	return keyPrefix + base64.RawURLEncoding.EncodeToString([]byte(normalize(name)))
}

// Get reads only the cache; it never blocks on the network.
func (s *KVStore) Get(name string) (*document.Document, bool) {
	return s.cache.Get(name)
}

// GetAsync answers from the cache when possible and otherwise fetches from
// the bucket in the background, populating the cache on success.
func (s *KVStore) GetAsync(ctx context.Context, name string) <-chan Lookup {
	if doc, ok := s.cache.Get(name); ok {
		return resolved(Lookup{Document: doc, Found: true})
	}

	ch := make(chan Lookup, 1)
	go func() {
		defer close(ch)
		ch <- s.fetch(ctx, name)
	}()
	return ch
}

func (s *KVStore) fetch(ctx context.Context, name string) Lookup {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env, err := s.load(ctx, Key(name))
	switch {
	case stderrors.Is(err, errors.ErrKeyNotFound):
		return Lookup{}
	case err != nil:
		return Lookup{Err: err}
	}
	if err := s.cache.Set(env.Name, env.Document); err != nil {
		return Lookup{Err: err}
	}
	return Lookup{Document: env.Document, Found: true}
}

// Set updates the cache first, then the bucket. Once the cache holds the
// document it is being served, so a bucket failure is logged and counted in
// PersistFailures rather than returned.
func (s *KVStore) Set(name string, doc *document.Document) error {
	if err := s.cache.Set(name, doc); err != nil {
		return err
	}

	data, err := json.Marshal(envelope{Name: name, Document: doc, StoredAt: time.Now().UTC()})
	if err != nil {
		return errors.WrapInvalid(err, "docstore", "Set", "encode document")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rev, err := s.bucket.Put(ctx, Key(name), data)
	if err != nil {
		s.cache.Stats().persistFailed()
		s.logger.Warn("Document write-through failed, serving from memory only",
			"document", name,
			"error", errors.WrapTransient(err, "docstore", "Set", "kv put"))
		return nil
	}
	s.logger.Debug("Document persisted", "document", name, "revision", rev, "bytes", len(data))
	return nil
}

// Exists reports whether the cache holds name.
func (s *KVStore) Exists(name string) bool {
	return s.cache.Exists(name)
}

// ListNames returns the cached names. Call Warm first to include documents
// persisted by earlier runs.
func (s *KVStore) ListNames() []string {
	return s.cache.ListNames()
}

// Warm loads every persisted document into the cache. Undecodable entries are
// skipped with a warning.
func (s *KVStore) Warm(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return errors.WrapTransient(err, "docstore", "Warm", "list keys")
	}

	loaded := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		env, err := s.load(ctx, key)
		switch {
		case stderrors.Is(err, errors.ErrKeyNotFound):
			continue
		case errors.IsInvalid(err):
			s.logger.Warn("Skipping undecodable document", "key", key, "error", err)
			continue
		case err != nil:
			return err
		}
		if s.cache.Exists(env.Name) {
			continue
		}
		if err := s.cache.Set(env.Name, env.Document); err != nil {
			s.logger.Warn("Skipping invalid document", "key", key, "error", err)
			continue
		}
		loaded++
	}

	s.logger.Info("Document store warmed", "documents", loaded)
	return nil
}

// load reads and decodes one bucket entry. A missing key is reported as
// errors.ErrKeyNotFound, a bad value as an invalid error.
func (s *KVStore) load(ctx context.Context, key string) (envelope, error) {
	entry, err := s.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return envelope{}, errors.ErrKeyNotFound
		}
		return envelope{}, errors.WrapTransient(err, "docstore", "load", "kv get")
	}
	env, err := decode(entry.Value())
	if err != nil {
		return envelope{}, errors.WrapInvalid(err, "docstore", "load", "decode document")
	}
	return env, nil
}

func decode(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, err
	}
	if env.Document == nil || env.Name == "" {
		return env, errors.ErrInvalidData
	}
	return env, nil
}
