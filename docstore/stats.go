package docstore

import (
	"sync/atomic"
	"time"
)

// Statistics tracks store usage. All methods are safe for concurrent use.
type Statistics struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	size   atomic.Int64

	persistFailures atomic.Int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) hit() { s.hits.Add(1) }
func (s *Statistics) miss() { s.misses.Add(1) }
func (s *Statistics) set() { s.sets.Add(1) }
func (s *Statistics) updateSize(n int) { s.size.Store(int64(n)) }
func (s *Statistics) persistFailed() { s.persistFailures.Add(1) }

// Hits returns the number of lookups that found a document.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of lookups that found nothing.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of stored documents, replacements included.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// PersistFailures returns the number of documents stored in memory whose
// durable write failed.
func (s *Statistics) PersistFailures() int64 { return s.persistFailures.Load() }

// Size returns the number of distinct documents held.
func (s *Statistics) Size() int64 { return s.size.Load() }

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the tracker has existed.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}
