package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/docmesh/aggregator"
	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/docstore"
	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/telemetry"
)

// Health component names
const (
	HealthComponent   = "scheduler"
	GroupHealthPrefix = "group:"
)

// Aggregator builds one group's document
type Aggregator interface {
	AggregateOutcome(ctx context.Context, req aggregator.Request) (*document.Document, aggregator.Outcome, error)
}

// Config wires a Scheduler
type Config struct {
	Directory  endpoint.Directory
	Aggregator Aggregator
	Store      docstore.Store
	// Options is read at the start of every cycle and wait so hot-reloaded
	// values apply without a restart.
	Options func() config.Options
	// Changes, when set, wakes the loop on every configuration update.
	Changes <-chan config.Update
	Sink    telemetry.Sink
	Health  *health.Monitor
	Logger  *slog.Logger
}

// Report summarizes one refresh cycle
type Report struct {
	ID        string
	Endpoints int
	Groups    int
	Stored    int
	Failed    int
	Skipped   bool
	Duration  time.Duration
	Completed time.Time
}

// Scheduler runs the background refresh loop
type Scheduler struct {
	directory  endpoint.Directory
	aggregator Aggregator
	store      docstore.Store
	options    func() config.Options
	changes    <-chan config.Update
	sink       telemetry.Sink
	health     *health.Monitor
	logger     *slog.Logger

	state atomic.Int32
	wake  chan struct{}

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup

	last             atomic.Pointer[Report]
	cycles           atomic.Int64
	consecutiveFails atomic.Int32
}

// New validates cfg and creates a stopped Scheduler
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Directory == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New", "directory")
	case cfg.Aggregator == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New", "aggregator")
	case cfg.Store == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New", "store")
	}

	s := &Scheduler{
		directory:  cfg.Directory,
		aggregator: cfg.Aggregator,
		store:      cfg.Store,
		options:    cfg.Options,
		changes:    cfg.Changes,
		sink:       telemetry.OrNoop(cfg.Sink),
		health:     cfg.Health,
		logger:     cfg.Logger,
		wake:       make(chan struct{}, 1),
	}
	if s.options == nil {
		s.options = config.DefaultOptions
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	s.state.Store(int32(StateStopped))
	return s, nil
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastReport returns the most recent cycle report, if any
func (s *Scheduler) LastReport() (Report, bool) {
	r := s.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Cycles returns the number of cycles run since creation
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// advance moves to state unless a stop has begun
func (s *Scheduler) advance(to State) bool {
	for {
		cur := s.state.Load()
		if State(cur) == StateStopping || State(cur) == StateStopped {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Start launches the refresh loop. The loop ends when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Start", "start refresh loop")
	}
	s.done = make(chan struct{})
	s.reportHealth(health.NewDegraded(HealthComponent, "Waiting for first refresh"))

	s.wg.Add(1)
	go s.run(ctx, s.done)

	if s.changes != nil {
		s.wg.Add(1)
		go s.watchChanges(ctx, s.done)
	}
	return nil
}

// Stop ends the loop. Group aggregations in flight finish; no new ones
// start. Stop waits up to timeout and is idempotent.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.State()
	if cur == StateStopped || cur == StateStopping {
		return nil
	}
	s.state.Store(int32(StateStopping))
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-time.After(timeout):
		s.logger.Warn("Scheduler stop timed out with refresh in flight", "timeout", timeout)
		err = errors.WrapTransient(
			fmt.Errorf("refresh still running after %s: %w", timeout, context.DeadlineExceeded),
			"Scheduler", "Stop", "wait for refresh loop")
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info("Refresh scheduler stopped", "cycles", s.cycles.Load())
	return err
}

// TriggerRefresh ends the current or next inter-cycle wait. It never
// interrupts a cycle in progress and repeated calls before the next wait
// collapse into one.
func (s *Scheduler) TriggerRefresh() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()
	defer func() {
		// Context cancellation without Stop
		if ctx.Err() != nil {
			s.advance(StateStopped)
		}
	}()

	// Cycles run detached from ctx: cancelling it stops new groups and
	// waits, while group aggregations in flight finish under their own
	// deadline.
	cycleCtx := context.WithoutCancel(ctx)
	halted := func() bool { return ctx.Err() != nil || stopping(done) }

	delay := s.options().StartupDelay
	s.logger.Info("Refresh scheduler starting", "startup_delay", delay)
	if !sleep(ctx, done, delay, nil) {
		return
	}

	for {
		if !s.advance(StateRefreshing) {
			return
		}
		s.cycle(cycleCtx, halted)

		if !s.advance(StateWaiting) {
			return
		}
		if !sleep(ctx, done, s.options().RefreshInterval, s.wake) {
			return
		}
	}
}

func (s *Scheduler) watchChanges(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case update, ok := <-s.changes:
			if !ok {
				return
			}
			s.logger.Info("Configuration changed, triggering refresh", "source", update.Source)
			s.TriggerRefresh()
		}
	}
}

// sleep waits for d, a wake-up or the end of the loop. It reports whether
// the loop should continue.
func sleep(ctx context.Context, done <-chan struct{}, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}

func stopping(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// RefreshOnce runs a single cycle outside the loop
func (s *Scheduler) RefreshOnce(ctx context.Context) Report {
	return s.cycle(ctx, func() bool { return false })
}

// cycle refreshes every discovered group. halted reports whether the loop
// is ending; once it does, groups not yet started are skipped.
func (s *Scheduler) cycle(ctx context.Context, halted func() bool) Report {
	start := time.Now()
	report := Report{ID: uuid.NewString()}
	logger := s.logger.With("cycle", report.ID)
	opts := s.options()
	s.cycles.Add(1)

	endpoints := s.directory.List(ctx)
	report.Endpoints = len(endpoints)
	if len(endpoints) == 0 {
		logger.Debug("No endpoints discovered, skipping refresh")
		report.Skipped = true
		s.finish(&report, start)
		s.reportHealth(health.NewHealthy(HealthComponent, "No endpoints discovered"))
		return report
	}
	s.sink.EndpointCount(len(endpoints))

	groups := endpoint.GroupBy(endpoints)
	report.Groups = len(groups)
	s.sink.RefreshStarted(len(endpoints), len(groups))
	logger.Info("Refresh started", "endpoints", len(endpoints), "groups", len(groups))

	limit := opts.MaxParallelism
	if limit < 1 {
		limit = 1
	}

	var stored, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(limit)
	for _, group := range groups {
		if halted() {
			logger.Info("Stop requested, remaining groups not started")
			break
		}
		g.Go(func() error {
			if halted() {
				return nil
			}
			if s.refreshGroup(ctx, logger, group, opts) {
				stored.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Stored = int(stored.Load())
	report.Failed = int(failed.Load())
	s.finish(&report, start)
	s.pruneGroups(groups)
	s.sink.RefreshCompleted(report.Duration, report.Stored, report.Failed)
	s.reportCycleHealth(report)

	logger.Info("Refresh completed",
		"groups", report.Groups,
		"stored", report.Stored,
		"failed", report.Failed,
		"duration", report.Duration)
	return report
}

func (s *Scheduler) finish(report *Report, start time.Time) {
	report.Duration = time.Since(start)
	report.Completed = time.Now()
	s.last.Store(report)
}

// refreshGroup aggregates and stores one group. On failure the previously
// stored document stays in place.
func (s *Scheduler) refreshGroup(ctx context.Context, logger *slog.Logger, group endpoint.Group, opts config.Options) bool {
	doc, outcome, err := s.aggregator.AggregateOutcome(ctx, aggregator.Request{
		Group:     group.Name,
		Endpoints: group.Endpoints,
		Options:   opts.MergeOptions(),
	})

	component := groupComponent(group.Name)
	s.reportGroupHealth(health.FromGroupResult(component, outcome.Attempted, outcome.Succeeded, err))

	if err != nil {
		logger.Error("Group aggregation failed, keeping previous document",
			"group", group.Name,
			"endpoints", len(group.Endpoints),
			"error", err)
		return false
	}
	if err := s.store.Set(group.Name, doc); err != nil {
		logger.Error("Failed to store document", "group", group.Name, "error", err)
		return false
	}

	logger.Debug("Group refreshed",
		"group", group.Name,
		"attempted", outcome.Attempted,
		"succeeded", outcome.Succeeded,
		"duration", outcome.Duration)
	return true
}

func groupComponent(name string) string {
	return GroupHealthPrefix + strings.ToLower(name)
}

func (s *Scheduler) reportHealth(status health.Status) {
	if s.health != nil {
		s.health.Update(HealthComponent, status)
	}
}

func (s *Scheduler) reportGroupHealth(status health.Status) {
	if s.health != nil {
		s.health.Update(status.Component, status)
	}
}

// pruneGroups forgets health entries for groups no longer discovered
func (s *Scheduler) pruneGroups(groups []endpoint.Group) {
	if s.health == nil {
		return
	}
	current := make(map[string]bool, len(groups))
	for _, g := range groups {
		current[groupComponent(g.Name)] = true
	}
	s.health.Prune(GroupHealthPrefix, func(name string) bool { return current[name] })
}

func (s *Scheduler) reportCycleHealth(report Report) {
	var status health.Status
	switch {
	case report.Stored == 0 && report.Failed > 0:
		fails := s.consecutiveFails.Add(1)
		status = health.NewUnhealthy(HealthComponent,
			fmt.Sprintf("All %d groups failed to refresh", report.Failed))
		status = status.WithMetrics(s.cycleMetrics(report, int(fails)))
	case report.Failed > 0:
		s.consecutiveFails.Store(0)
		status = health.NewDegraded(HealthComponent,
			fmt.Sprintf("%d of %d groups failed to refresh", report.Failed, report.Groups))
		status = status.WithMetrics(s.cycleMetrics(report, 0))
	default:
		s.consecutiveFails.Store(0)
		status = health.NewHealthy(HealthComponent,
			fmt.Sprintf("%d groups refreshed", report.Stored))
		status = status.WithMetrics(s.cycleMetrics(report, 0))
	}
	s.reportHealth(status)
}

func (s *Scheduler) cycleMetrics(report Report, fails int) *health.Metrics {
	return &health.Metrics{
		LastRefresh:      report.Completed,
		RefreshDuration:  report.Duration,
		Documents:        len(s.store.ListNames()),
		EndpointsTotal:   report.Endpoints,
		ConsecutiveFails: fails,
	}
}
