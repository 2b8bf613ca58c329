package history

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"tokenadvisor/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const latestCacheTTL = 10 * time.Minute

// Repository is the persistence collaborator for price records.
type Repository interface {
	InsertPriceRecords(ctx context.Context, records []domain.PriceRecord) error
	GetRecordsInRange(ctx context.Context, token string, from, to time.Time) ([]domain.PriceRecord, error)
	GetLatestRecord(ctx context.Context, token string) (*domain.PriceRecord, error)
}

// MovingAverage is the arithmetic mean of the last Window observed values.
// Partial marks a result computed over fewer values than requested.
type MovingAverage struct {
	Value   float64 `json:"value"`
	Window  int     `json:"window"`
	Count   int     `json:"count"`
	Partial bool    `json:"partial"`
}

// TrendReport compares the short-window moving average against the
// long-window one. DeltaPct is the short average's offset from the long
// average in percent.
type TrendReport struct {
	Direction domain.Trend  `json:"direction"`
	DeltaPct  float64       `json:"delta_pct"`
	Short     MovingAverage `json:"short"`
	Long      MovingAverage `json:"long"`
}

type tokenSeries struct {
	mu      sync.RWMutex
	records []domain.PriceRecord
}

// Store holds per-token, append-only price series with fine-grained
// locking: appends to different tokens proceed independently. Writes go
// through to the repository and the latest record is cached in Redis, both
// best effort.
type Store struct {
	tracer trace.Tracer
	repo   Repository
	cache  *redis.Client

	shortWindow    int
	longWindow     int
	neutralZonePct float64
	conditionPct   float64

	mu     sync.RWMutex
	series map[string]*tokenSeries
}

type Params struct {
	ShortWindow    int
	LongWindow     int
	NeutralZonePct float64
	ConditionPct   float64
}

func NewStore(tracer trace.Tracer, repo Repository, cache *redis.Client, p Params) *Store {
	if p.ShortWindow <= 0 {
		p.ShortWindow = 5
	}
	if p.LongWindow <= p.ShortWindow {
		p.LongWindow = p.ShortWindow * 4
	}
	if p.NeutralZonePct < 0 {
		p.NeutralZonePct = 0.5
	}
	if p.ConditionPct <= 0 {
		p.ConditionPct = 1.0
	}
	return &Store{
		tracer:         tracer,
		repo:           repo,
		cache:          cache,
		shortWindow:    p.ShortWindow,
		longWindow:     p.LongWindow,
		neutralZonePct: p.NeutralZonePct,
		conditionPct:   p.ConditionPct,
		series:         make(map[string]*tokenSeries),
	}
}

func (s *Store) seriesFor(token string) *tokenSeries {
	s.mu.RLock()
	ts, ok := s.series[token]
	s.mu.RUnlock()
	if ok {
		return ts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok = s.series[token]; !ok {
		ts = &tokenSeries{}
		s.series[token] = ts
	}
	return ts
}

// Append stores one record at the tail of its token's series. Timestamps
// never move backwards: an out-of-order observation is clamped to the tail
// timestamp so storage order stays non-decreasing.
func (s *Store) Append(ctx context.Context, record domain.PriceRecord) error {
	_, span := s.tracer.Start(ctx, "history.append")
	defer span.End()

	ts := s.seriesFor(record.Token)
	ts.mu.Lock()
	if n := len(ts.records); n > 0 && record.ObservedAt.Before(ts.records[n-1].ObservedAt) {
		record.ObservedAt = ts.records[n-1].ObservedAt
	}
	ts.records = append(ts.records, record)
	ts.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.InsertPriceRecords(ctx, []domain.PriceRecord{record}); err != nil {
			log.Printf("price record persist failed for %s: %v", record.Token, err)
		}
	}
	s.cacheLatest(ctx, record)
	return nil
}

func (s *Store) cacheLatest(ctx context.Context, record domain.PriceRecord) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, latestKey(record.Token), raw, latestCacheTTL).Err(); err != nil {
		log.Printf("latest price cache set failed for %s: %v", record.Token, err)
	}
}

// Range returns the ordered records observed in [from, to].
func (s *Store) Range(ctx context.Context, token string, from, to time.Time) ([]domain.PriceRecord, error) {
	_, span := s.tracer.Start(ctx, "history.range")
	defer span.End()

	ts := s.seriesFor(token)
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]domain.PriceRecord, 0, len(ts.records))
	for _, r := range ts.records {
		if r.ObservedAt.Before(from) || r.ObservedAt.After(to) {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 && s.repo != nil {
		return s.repo.GetRecordsInRange(ctx, token, from, to)
	}
	return out, nil
}

// Latest returns the most recent record for a token, falling back to the
// Redis cache and then the repository when the in-memory series is empty.
func (s *Store) Latest(ctx context.Context, token string) (*domain.PriceRecord, error) {
	_, span := s.tracer.Start(ctx, "history.latest")
	defer span.End()

	ts := s.seriesFor(token)
	ts.mu.RLock()
	if n := len(ts.records); n > 0 {
		record := ts.records[n-1]
		ts.mu.RUnlock()
		return &record, nil
	}
	ts.mu.RUnlock()

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, latestKey(token)).Bytes()
		if err == nil {
			var record domain.PriceRecord
			if err := json.Unmarshal(raw, &record); err == nil {
				return &record, nil
			}
		}
	}

	if s.repo != nil {
		record, err := s.repo.GetLatestRecord(ctx, token)
		if err == nil && record != nil {
			return record, nil
		}
	}

	return nil, &domain.NoDataError{Token: token}
}

// MovingAverage averages the last window observed values. With fewer than
// window values it averages what exists and flags the result as partial.
func (s *Store) MovingAverage(ctx context.Context, token string, window int) (MovingAverage, error) {
	_, span := s.tracer.Start(ctx, "history.moving-average")
	defer span.End()

	if window <= 0 {
		window = 1
	}

	ts := s.seriesFor(token)
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	n := len(ts.records)
	if n == 0 {
		return MovingAverage{}, &domain.NoDataError{Token: token}
	}

	count := window
	if count > n {
		count = n
	}
	var sum float64
	for _, r := range ts.records[n-count:] {
		sum += r.Price
	}
	return MovingAverage{
		Value:   sum / float64(count),
		Window:  window,
		Count:   count,
		Partial: count < window,
	}, nil
}

// Trend compares the short-window average against the long-window average.
// Deltas inside the neutral zone report Flat to avoid flapping.
func (s *Store) Trend(ctx context.Context, token string) (TrendReport, error) {
	short, err := s.MovingAverage(ctx, token, s.shortWindow)
	if err != nil {
		return TrendReport{}, err
	}
	long, err := s.MovingAverage(ctx, token, s.longWindow)
	if err != nil {
		return TrendReport{}, err
	}

	report := TrendReport{Direction: domain.TrendFlat, Short: short, Long: long}
	if long.Value != 0 {
		report.DeltaPct = (short.Value - long.Value) / long.Value * 100
	}
	switch {
	case report.DeltaPct > s.neutralZonePct:
		report.Direction = domain.TrendRising
	case report.DeltaPct < -s.neutralZonePct:
		report.Direction = domain.TrendFalling
	}
	return report, nil
}

// Condition derives the market condition tag used for strategy matching.
func (s *Store) Condition(ctx context.Context, token string) (domain.MarketCondition, TrendReport, error) {
	report, err := s.Trend(ctx, token)
	if err != nil {
		return "", TrendReport{}, err
	}
	switch {
	case report.DeltaPct < -s.conditionPct:
		return domain.ConditionOversold, report, nil
	case report.DeltaPct > s.conditionPct:
		return domain.ConditionOverbought, report, nil
	default:
		return domain.ConditionNeutral, report, nil
	}
}

// Warm seeds in-memory series from the repository so trend queries work
// right after a restart.
func (s *Store) Warm(ctx context.Context, tokens []string, lookback time.Duration) {
	if s.repo == nil {
		return
	}
	to := time.Now().UTC()
	from := to.Add(-lookback)
	for _, token := range tokens {
		records, err := s.repo.GetRecordsInRange(ctx, token, from, to)
		if err != nil {
			log.Printf("history warm failed for %s: %v", token, err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		ts := s.seriesFor(token)
		ts.mu.Lock()
		if len(ts.records) == 0 {
			ts.records = records
		}
		ts.mu.Unlock()
	}
}

func latestKey(token string) string {
	return "latest:" + token
}
