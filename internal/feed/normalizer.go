package feed

import (
	"fmt"
	"sync"
	"time"

	"tokenadvisor/internal/domain"
)

// Normalizer maps one source kind's raw payload into a canonical record.
type Normalizer interface {
	Kind() domain.SourceKind
	Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error)
}

// NormalizerSet is the open, kind-keyed registry of normalizers. New kinds
// register independently; existing ones are never modified.
type NormalizerSet struct {
	mu     sync.RWMutex
	byKind map[domain.SourceKind]Normalizer
	now    func() time.Time
}

func NewNormalizerSet(now func() time.Time) *NormalizerSet {
	if now == nil {
		now = time.Now
	}
	return &NormalizerSet{
		byKind: make(map[domain.SourceKind]Normalizer),
		now:    now,
	}
}

// DefaultNormalizerSet registers the built-in feed kinds.
func DefaultNormalizerSet(now func() time.Time) *NormalizerSet {
	set := NewNormalizerSet(now)
	set.Register(priceNormalizer{})
	set.Register(poolNormalizer{})
	set.Register(tvlNormalizer{})
	set.Register(gasNormalizer{})
	return set
}

func (s *NormalizerSet) Register(n Normalizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind[n.Kind()] = n
}

func (s *NormalizerSet) Supports(kind domain.SourceKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKind[kind]
	return ok
}

// Normalize dispatches on the source's kind and stamps the observation time.
func (s *NormalizerSet) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	s.mu.RLock()
	n, ok := s.byKind[cfg.Kind]
	s.mu.RUnlock()
	if !ok {
		return domain.PriceRecord{}, &domain.ParseError{
			SourceKey: cfg.Key,
			Kind:      cfg.Kind,
			Detail:    fmt.Sprintf("no normalizer registered for kind %q", cfg.Kind),
		}
	}

	record, err := n.Normalize(cfg, payload)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	record.Token = cfg.Token
	record.SourceKey = cfg.Key
	record.ObservedAt = s.now().UTC()
	return record, nil
}
