package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Backend is an httptest server publishing one API document
type Backend struct {
	*httptest.Server

	mu     sync.Mutex
	body   []byte
	status int
	delay  time.Duration
	auth   string
	hits   atomic.Int64
}

// NewBackend starts a backend serving body at every path. The server is
// closed when the test ends.
func NewBackend(t testing.TB, body []byte) *Backend {
	t.Helper()
	b := &Backend{body: body, status: http.StatusOK}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

// SetBody replaces the published document
func (b *Backend) SetBody(body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.body = body
}

// SetStatus makes the backend answer with status and no body
func (b *Backend) SetStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// SetDelay delays every response, honoring request cancellation
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// LastAuthorization returns the Authorization header of the latest request
func (b *Backend) LastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth
}

// Hits returns the number of requests served
func (b *Backend) Hits() int64 {
	return b.hits.Load()
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	b.hits.Add(1)

	b.mu.Lock()
	body, status, delay := b.body, b.status, b.delay
	b.auth = r.Header.Get("Authorization")
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
