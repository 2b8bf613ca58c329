package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/feed"

	"go.opentelemetry.io/otel/trace"
)

// Fetcher performs one request attempt for one source.
type Fetcher interface {
	Fetch(ctx context.Context, cfg domain.DataSourceConfig) ([]byte, error)
}

// Normalizer turns a raw payload into a canonical record.
type Normalizer interface {
	Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error)
}

// Appender receives normalized records.
type Appender interface {
	Append(ctx context.Context, record domain.PriceRecord) error
}

// sourceState is the scheduler's per-source refresh state. lastSuccess is
// only advanced on a successful fetch-normalize-append unit.
type sourceState struct {
	lastSuccess time.Time
	lastAttempt time.Time
	hasSuccess  bool
	hasAttempt  bool
	failures    int
}

// Scheduler keeps every configured source fresh: it selects due sources,
// dispatches fetch-normalize-append units over a bounded pool, and tracks
// per-source failure counts with capped exponential backoff.
type Scheduler struct {
	tracer        trace.Tracer
	registry      *feed.Registry
	fetcher       Fetcher
	normalizers   Normalizer
	store         Appender
	maxConcurrent int
	backoffCap    int
	tick          time.Duration
	now           func() time.Time

	mu    sync.Mutex
	state map[string]*sourceState

	eventsMu sync.Mutex
	events   []chan<- domain.FetchOutcome
}

type Options struct {
	MaxConcurrent int
	BackoffCap    int
	Tick          time.Duration
	Now           func() time.Time
}

func New(
	tracer trace.Tracer,
	registry *feed.Registry,
	fetcher Fetcher,
	normalizers Normalizer,
	store Appender,
	opts Options,
) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 6
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 64
	}
	if opts.Tick <= 0 {
		opts.Tick = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		tracer:        tracer,
		registry:      registry,
		fetcher:       fetcher,
		normalizers:   normalizers,
		store:         store,
		maxConcurrent: opts.MaxConcurrent,
		backoffCap:    opts.BackoffCap,
		tick:          opts.Tick,
		now:           opts.Now,
		state:         make(map[string]*sourceState),
	}
}

// EffectiveInterval widens a source's refresh interval after consecutive
// failures: interval * min(2^failures, cap).
func EffectiveInterval(interval time.Duration, failures, cap int) time.Duration {
	if failures <= 0 || cap <= 1 {
		return interval
	}
	multiplier := 1
	for i := 0; i < failures && multiplier < cap; i++ {
		multiplier *= 2
	}
	if multiplier > cap {
		multiplier = cap
	}
	return interval * time.Duration(multiplier)
}

// Subscribe registers a channel for per-source outcome events. Delivery is
// best effort; slow consumers miss events rather than stalling a cycle.
func (s *Scheduler) Subscribe(ch chan<- domain.FetchOutcome) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.events = append(s.events, ch)
}

// Start runs refresh cycles until ctx is cancelled. The in-flight cycle
// finishes (every fetch completes or times out) before Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("scheduler starting: %d sources, tick %s", s.registry.Len(), s.tick)

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle dispatches one unit per due source and blocks until all units
// finish. It returns exactly one outcome per dispatched source.
func (s *Scheduler) RunCycle(ctx context.Context) []domain.FetchOutcome {
	_, span := s.tracer.Start(ctx, "scheduler.run-cycle")
	defer span.End()

	now := s.now()
	sources := s.registry.Snapshot()
	s.pruneState(sources)

	due := make([]domain.DataSourceConfig, 0, len(sources))
	for _, cfg := range sources {
		if s.isDue(cfg, now) {
			due = append(due, cfg)
		}
	}
	if len(due) == 0 {
		return nil
	}

	// Units outlive ctx cancellation so a graceful stop lets them finish or
	// hit their own fetch timeouts.
	unitCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)
	outcomes := make([]domain.FetchOutcome, len(due))

	for i, cfg := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cfg domain.DataSourceConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = s.runUnit(unitCtx, cfg)
		}(i, cfg)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		s.publish(outcome)
	}
	return outcomes
}

// runUnit executes fetch -> normalize -> append for one source and updates
// its refresh state. Failures are isolated: they only touch this source.
func (s *Scheduler) runUnit(ctx context.Context, cfg domain.DataSourceConfig) domain.FetchOutcome {
	started := s.now()

	record, err := s.refresh(ctx, cfg)
	latency := s.now().Sub(started)

	if err != nil {
		failures := s.markFailure(cfg, started)
		log.Printf("source %s/%s refresh failed (%d consecutive): %v", cfg.Owner, cfg.Key, failures, err)
		return domain.FetchOutcome{
			Owner:     cfg.Owner,
			SourceKey: cfg.Key,
			OK:        false,
			Failures:  failures,
			Latency:   latency,
			Err:       err,
		}
	}

	s.markSuccess(cfg, started)
	log.Printf("source %s/%s refreshed: %s = %.6f", cfg.Owner, cfg.Key, record.Token, record.Price)
	return domain.FetchOutcome{
		Owner:     cfg.Owner,
		SourceKey: cfg.Key,
		OK:        true,
		Latency:   latency,
	}
}

func (s *Scheduler) refresh(ctx context.Context, cfg domain.DataSourceConfig) (domain.PriceRecord, error) {
	payload, err := s.fetcher.Fetch(ctx, cfg)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	record, err := s.normalizers.Normalize(cfg, payload)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	if err := s.store.Append(ctx, record); err != nil {
		return domain.PriceRecord{}, err
	}
	return record, nil
}

func (s *Scheduler) isDue(cfg domain.DataSourceConfig, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[stateKey(cfg)]
	if !ok || !st.hasAttempt {
		return true
	}

	effective := EffectiveInterval(cfg.Interval, st.failures, s.backoffCap)
	anchor := st.lastAttempt
	if st.hasSuccess {
		anchor = st.lastSuccess
	}
	return !anchor.Add(effective).After(now)
}

func (s *Scheduler) markSuccess(cfg domain.DataSourceConfig, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureState(cfg)
	st.lastSuccess = at
	st.lastAttempt = at
	st.hasSuccess = true
	st.hasAttempt = true
	st.failures = 0
}

func (s *Scheduler) markFailure(cfg domain.DataSourceConfig, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureState(cfg)
	st.lastAttempt = at
	st.hasAttempt = true
	st.failures++
	return st.failures
}

func (s *Scheduler) ensureState(cfg domain.DataSourceConfig) *sourceState {
	key := stateKey(cfg)
	st, ok := s.state[key]
	if !ok {
		st = &sourceState{}
		s.state[key] = st
	}
	return st
}

// pruneState drops state for deconfigured sources. Failure alone never
// removes a source; only registry removal does.
func (s *Scheduler) pruneState(sources []domain.DataSourceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(sources))
	for _, cfg := range sources {
		keep[stateKey(cfg)] = struct{}{}
	}
	for key := range s.state {
		if _, ok := keep[key]; !ok {
			delete(s.state, key)
		}
	}
}

// Failures reports the consecutive failure count for a source key.
func (s *Scheduler) Failures(owner, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[owner+"/"+key]; ok {
		return st.failures
	}
	return 0
}

func (s *Scheduler) publish(outcome domain.FetchOutcome) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	for _, ch := range s.events {
		select {
		case ch <- outcome:
		default:
		}
	}
}

func stateKey(cfg domain.DataSourceConfig) string {
	return cfg.Owner + "/" + cfg.Key
}
