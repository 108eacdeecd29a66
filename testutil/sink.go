package testutil

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360/docmesh/telemetry"
)

// LoadEvent is one recorded load outcome
type LoadEvent struct {
	ClusterID string
	ErrorType string // empty on success
	Duration  time.Duration
}

// RefreshEvent is one recorded refresh cycle
type RefreshEvent struct {
	Endpoints int
	Groups    int
	Stored    int
	Failed    int
	Completed bool
}

// AggregationEvent is one recorded aggregation outcome
type AggregationEvent struct {
	Group     string
	Result    string
	Attempted int
	Succeeded int
}

// RecordingSink records telemetry events in memory
type RecordingSink struct {
	mu             sync.Mutex
	refreshes      []RefreshEvent
	endpointCounts []int
	loads          []LoadEvent
	aggregations   []AggregationEvent
	cacheHits      []string
	breakerChanges map[string]gobreaker.State
}

var _ telemetry.Sink = (*RecordingSink)(nil)

// NewRecordingSink creates an empty recording sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{breakerChanges: make(map[string]gobreaker.State)}
}

// RefreshStarted implements telemetry.Sink
func (s *RecordingSink) RefreshStarted(endpoints, groups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes = append(s.refreshes, RefreshEvent{Endpoints: endpoints, Groups: groups})
}

// RefreshCompleted implements telemetry.Sink. It completes the latest
// started cycle.
func (s *RecordingSink) RefreshCompleted(_ time.Duration, stored, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.refreshes) == 0 {
		s.refreshes = append(s.refreshes, RefreshEvent{})
	}
	last := &s.refreshes[len(s.refreshes)-1]
	last.Stored, last.Failed, last.Completed = stored, failed, true
}

// EndpointCount implements telemetry.Sink
func (s *RecordingSink) EndpointCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpointCounts = append(s.endpointCounts, n)
}

// LoadSucceeded implements telemetry.Sink
func (s *RecordingSink) LoadSucceeded(clusterID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, LoadEvent{ClusterID: clusterID, Duration: d})
}

// LoadFailed implements telemetry.Sink
func (s *RecordingSink) LoadFailed(clusterID, errorType string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, LoadEvent{ClusterID: clusterID, ErrorType: errorType, Duration: d})
}

// AggregationCompleted implements telemetry.Sink
func (s *RecordingSink) AggregationCompleted(group, result string, attempted, succeeded int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregations = append(s.aggregations, AggregationEvent{
		Group: group, Result: result, Attempted: attempted, Succeeded: succeeded,
	})
}

// CacheHit implements telemetry.Sink
func (s *RecordingSink) CacheHit(document string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits = append(s.cacheHits, document)
}

// BreakerStateChanged implements telemetry.Sink
func (s *RecordingSink) BreakerStateChanged(destination string, state gobreaker.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakerChanges[destination] = state
}

// Refreshes returns the number of completed refresh cycles
func (s *RecordingSink) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.refreshes {
		if r.Completed {
			n++
		}
	}
	return n
}

// RefreshEvents returns every started refresh cycle in order
func (s *RecordingSink) RefreshEvents() []RefreshEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RefreshEvent(nil), s.refreshes...)
}

// EndpointCounts returns every reported endpoint count in order
func (s *RecordingSink) EndpointCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.endpointCounts...)
}

// Loads returns the recorded load events in order
func (s *RecordingSink) Loads() []LoadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LoadEvent(nil), s.loads...)
}

// Aggregations returns the recorded aggregation events in order
func (s *RecordingSink) Aggregations() []AggregationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AggregationEvent(nil), s.aggregations...)
}

// CacheHits returns the documents recorded as cache hits
func (s *RecordingSink) CacheHits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cacheHits...)
}

// BreakerState returns the last reported state for destination
func (s *RecordingSink) BreakerState(destination string) (gobreaker.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.breakerChanges[destination]
	return st, ok
}
