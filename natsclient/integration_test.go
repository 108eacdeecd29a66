//go:build integration

package natsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_ConnectAndRTT(t *testing.T) {
	tc := NewTestClient(t)

	assert.True(t, tc.Client.IsHealthy())
	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestIntegration_CreateKeyValueBucketIsIdempotent(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("docmesh-documents"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := tc.Client.GetKeyValueBucket(ctx, "docmesh-documents")
	require.NoError(t, err)
	_, err = existing.Put(ctx, "doc.a", []byte("1"))
	require.NoError(t, err)

	again, err := tc.CreateKVBucket(ctx, "docmesh-documents")
	require.NoError(t, err)
	entry, err := again.Get(ctx, "doc.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), entry.Value())
}

func TestIntegration_ConcurrentBucketCreation(t *testing.T) {
	tc := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "race"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIntegration_Close(t *testing.T) {
	tc := NewTestClient(t)

	require.NoError(t, tc.Client.Close(context.Background()))
	assert.Equal(t, StatusClosed, tc.Client.Status())
	_, err := tc.Client.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
}
