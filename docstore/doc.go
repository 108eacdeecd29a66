// Package docstore holds the latest merged document for every group.
//
// Memory is the process-local store: case-insensitive names, atomic
// replacement, no eviction and no TTL. KVStore layers a NATS JetStream
// key-value bucket underneath it so merged documents survive a restart and
// can be shared between replicas. Both satisfy Store.
//
// Basic usage:
//
//	store := docstore.NewMemory()
//	_ = store.Set("Orders", doc)
//	doc, ok := store.Get("orders") // same entry
//
// Write-through to NATS KV:
//
//	bucket, _ := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "docmesh-documents"})
//	store := docstore.NewKVStore(bucket, docstore.NewMemory(), logger)
//	if err := store.Warm(ctx); err != nil { ... }
package docstore
