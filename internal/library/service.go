package library

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"tokenadvisor/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// Repository is the persistence collaborator for library entries.
type Repository interface {
	UpsertStrategy(ctx context.Context, entry domain.StrategyEntry) (domain.StrategyEntry, error)
	GetStrategy(ctx context.Context, owner, key string) (*domain.StrategyEntry, error)
	DeleteStrategy(ctx context.Context, owner, key string) error
	SearchStrategies(ctx context.Context, owner string, query domain.SearchQuery) ([]domain.StrategyEntry, error)

	UpsertKnowledge(ctx context.Context, entry domain.KnowledgeEntry) (domain.KnowledgeEntry, error)
	GetKnowledge(ctx context.Context, owner, key string) (*domain.KnowledgeEntry, error)
	DeleteKnowledge(ctx context.Context, owner, key string) error
	SearchKnowledge(ctx context.Context, owner string, query domain.SearchQuery) ([]domain.KnowledgeEntry, error)
}

// SearchResult holds ranked strategy and knowledge matches for one query.
type SearchResult struct {
	Strategies []domain.StrategyEntry `json:"strategies"`
	Knowledge  []domain.KnowledgeEntry `json:"knowledge"`
}

// Service owns validation, deterministic search ranking and bulk import on
// top of the library repository.
type Service struct {
	tracer trace.Tracer
	repo   Repository
	now    func() time.Time
}

func NewService(tracer trace.Tracer, repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{tracer: tracer, repo: repo, now: now}
}

// UpsertStrategy validates and stores a strategy. Repeated calls with the
// same content keep a single record and only advance updated_at.
func (s *Service) UpsertStrategy(ctx context.Context, entry domain.StrategyEntry) (domain.StrategyEntry, error) {
	_, span := s.tracer.Start(ctx, "library.upsert-strategy")
	defer span.End()

	if err := ValidateStrategy(entry); err != nil {
		return domain.StrategyEntry{}, err
	}
	if entry.Version == "" {
		entry.Version = "1.0.0"
	}
	entry.Tags = normalizeTags(entry.Tags)
	entry.UpdatedAt = s.now().UTC()
	return s.repo.UpsertStrategy(ctx, entry)
}

func (s *Service) GetStrategy(ctx context.Context, owner, key string) (*domain.StrategyEntry, error) {
	_, span := s.tracer.Start(ctx, "library.get-strategy")
	defer span.End()
	return s.repo.GetStrategy(ctx, owner, key)
}

func (s *Service) DeleteStrategy(ctx context.Context, owner, key string) error {
	_, span := s.tracer.Start(ctx, "library.delete-strategy")
	defer span.End()
	return s.repo.DeleteStrategy(ctx, owner, key)
}

func (s *Service) UpsertKnowledge(ctx context.Context, entry domain.KnowledgeEntry) (domain.KnowledgeEntry, error) {
	_, span := s.tracer.Start(ctx, "library.upsert-knowledge")
	defer span.End()

	if err := ValidateKnowledge(entry); err != nil {
		return domain.KnowledgeEntry{}, err
	}
	entry.Tags = normalizeTags(entry.Tags)
	entry.UpdatedAt = s.now().UTC()
	return s.repo.UpsertKnowledge(ctx, entry)
}

func (s *Service) GetKnowledge(ctx context.Context, owner, key string) (*domain.KnowledgeEntry, error) {
	_, span := s.tracer.Start(ctx, "library.get-knowledge")
	defer span.End()
	return s.repo.GetKnowledge(ctx, owner, key)
}

func (s *Service) DeleteKnowledge(ctx context.Context, owner, key string) error {
	_, span := s.tracer.Start(ctx, "library.delete-knowledge")
	defer span.End()
	return s.repo.DeleteKnowledge(ctx, owner, key)
}

// Search runs the tag/text query over both entry types and ranks each
// result set deterministically: matching-tag count desc, updated_at desc,
// key asc.
func (s *Service) Search(ctx context.Context, owner string, query domain.SearchQuery) (SearchResult, error) {
	_, span := s.tracer.Start(ctx, "library.search")
	defer span.End()

	query.Tags = normalizeTags(query.Tags)
	query.Text = strings.TrimSpace(query.Text)

	strategies, err := s.repo.SearchStrategies(ctx, owner, query)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search strategies: %w", err)
	}
	knowledge, err := s.repo.SearchKnowledge(ctx, owner, query)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search knowledge: %w", err)
	}

	sort.SliceStable(strategies, func(i, j int) bool {
		return rankLess(
			matchingTags(strategies[i].Tags, query.Tags), strategies[i].UpdatedAt, strategies[i].Key,
			matchingTags(strategies[j].Tags, query.Tags), strategies[j].UpdatedAt, strategies[j].Key,
		)
	})
	sort.SliceStable(knowledge, func(i, j int) bool {
		return rankLess(
			matchingTags(knowledge[i].Tags, query.Tags), knowledge[i].UpdatedAt, knowledge[i].Key,
			matchingTags(knowledge[j].Tags, query.Tags), knowledge[j].UpdatedAt, knowledge[j].Key,
		)
	})

	return SearchResult{Strategies: strategies, Knowledge: knowledge}, nil
}

func rankLess(matchesI int, updatedI time.Time, keyI string, matchesJ int, updatedJ time.Time, keyJ string) bool {
	if matchesI != matchesJ {
		return matchesI > matchesJ
	}
	if !updatedI.Equal(updatedJ) {
		return updatedI.After(updatedJ)
	}
	return keyI < keyJ
}

func matchingTags(entryTags, queryTags []string) int {
	if len(queryTags) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[strings.ToLower(t)] = struct{}{}
	}
	count := 0
	for _, t := range queryTags {
		if _, ok := set[strings.ToLower(t)]; ok {
			count++
		}
	}
	return count
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ValidateStrategy enforces the entry invariants before any write.
func ValidateStrategy(entry domain.StrategyEntry) error {
	if entry.Owner == "" || entry.Key == "" {
		return &domain.ValidationError{Key: entry.Key, Detail: "strategy owner and key are required"}
	}
	if entry.Name == "" {
		return &domain.ValidationError{Key: entry.Key, Detail: "strategy name is required"}
	}
	if entry.Category == "" {
		return &domain.ValidationError{Key: entry.Key, Detail: "strategy category is required"}
	}
	if !entry.Risk.IsValid() {
		return &domain.ValidationError{Key: entry.Key, Detail: fmt.Sprintf("invalid risk level %q", entry.Risk)}
	}
	if er := entry.ExpectedReturns; er != nil {
		if er.Min > er.Target || er.Target > er.Max {
			return &domain.ValidationError{Key: entry.Key, Detail: "expected returns must satisfy min <= target <= max"}
		}
	}
	return nil
}

func ValidateKnowledge(entry domain.KnowledgeEntry) error {
	if entry.Owner == "" || entry.Key == "" {
		return &domain.ValidationError{Key: entry.Key, Detail: "knowledge owner and key are required"}
	}
	if strings.TrimSpace(entry.Content) == "" {
		return &domain.ValidationError{Key: entry.Key, Detail: "knowledge content is required"}
	}
	return nil
}
