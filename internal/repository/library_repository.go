package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tokenadvisor/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const pgUniqueViolation = "23505"

// LibraryRepository persists user-scoped strategies and knowledge entries,
// both keyed by (owner, key).
type LibraryRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewLibraryRepository(pool PgxPool, tracer trace.Tracer) *LibraryRepository {
	return &LibraryRepository{pool: pool, tracer: tracer}
}

func (r *LibraryRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			owner            TEXT NOT NULL,
			key              TEXT NOT NULL,
			name             TEXT NOT NULL,
			category         TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			risk             TEXT NOT NULL,
			tags             TEXT[] NOT NULL DEFAULT '{}',
			steps            TEXT[] NOT NULL DEFAULT '{}',
			requirements     TEXT[] NOT NULL DEFAULT '{}',
			expected_returns JSONB,
			author           TEXT NOT NULL DEFAULT '',
			version          TEXT NOT NULL DEFAULT '1.0.0',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner, key)
		);
		CREATE TABLE IF NOT EXISTS knowledge (
			owner      TEXT NOT NULL,
			key        TEXT NOT NULL,
			content    TEXT NOT NULL,
			tags       TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner, key)
		);
		CREATE INDEX IF NOT EXISTS idx_strategies_tags ON strategies USING GIN (tags);
		CREATE INDEX IF NOT EXISTS idx_knowledge_tags ON knowledge USING GIN (tags);
	`)
	return err
}

// UpsertStrategy inserts or replaces a strategy. created_at survives the
// replace; updated_at always advances. Calling it twice with the same
// content leaves exactly one row.
func (r *LibraryRepository) UpsertStrategy(ctx context.Context, entry domain.StrategyEntry) (domain.StrategyEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.upsert-strategy")
	defer span.End()

	var returns any
	if entry.ExpectedReturns != nil {
		raw, err := json.Marshal(entry.ExpectedReturns)
		if err != nil {
			return domain.StrategyEntry{}, fmt.Errorf("encode expected returns: %w", err)
		}
		returns = raw
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO strategies (owner, key, name, category, description, risk, tags, steps, requirements, expected_returns, author, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT (owner, key) DO UPDATE SET
		     name = EXCLUDED.name,
		     category = EXCLUDED.category,
		     description = EXCLUDED.description,
		     risk = EXCLUDED.risk,
		     tags = EXCLUDED.tags,
		     steps = EXCLUDED.steps,
		     requirements = EXCLUDED.requirements,
		     expected_returns = EXCLUDED.expected_returns,
		     author = EXCLUDED.author,
		     version = EXCLUDED.version,
		     updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		entry.Owner, entry.Key, entry.Name, entry.Category, entry.Description, string(entry.Risk),
		entry.Tags, entry.Steps, entry.Requirements, returns, entry.Author, entry.Version,
		entry.UpdatedAt.UTC(),
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return domain.StrategyEntry{}, err
	}
	return entry, nil
}

// InsertStrategy is the strict insert path: a duplicate (owner, key) is a
// ConflictError, never an implicit update.
func (r *LibraryRepository) InsertStrategy(ctx context.Context, entry domain.StrategyEntry) error {
	_, span := r.tracer.Start(ctx, "library-repo.insert-strategy")
	defer span.End()

	var returns any
	if entry.ExpectedReturns != nil {
		raw, err := json.Marshal(entry.ExpectedReturns)
		if err != nil {
			return fmt.Errorf("encode expected returns: %w", err)
		}
		returns = raw
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO strategies (owner, key, name, category, description, risk, tags, steps, requirements, expected_returns, author, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		entry.Owner, entry.Key, entry.Name, entry.Category, entry.Description, string(entry.Risk),
		entry.Tags, entry.Steps, entry.Requirements, returns, entry.Author, entry.Version,
		entry.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &domain.ConflictError{Owner: entry.Owner, Key: entry.Key}
	}
	return err
}

func (r *LibraryRepository) GetStrategy(ctx context.Context, owner, key string) (*domain.StrategyEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.get-strategy")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT owner, key, name, category, description, risk, tags, steps, requirements, expected_returns, author, version, created_at, updated_at
		 FROM strategies WHERE owner = $1 AND key = $2`,
		owner, key,
	)
	entry, err := scanStrategy(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *LibraryRepository) DeleteStrategy(ctx context.Context, owner, key string) error {
	_, span := r.tracer.Start(ctx, "library-repo.delete-strategy")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM strategies WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SearchStrategies filters an owner's strategies. Required tags use AND
// semantics via the array containment operator; text matches name and
// description case-insensitively. Ranking happens in the library service.
func (r *LibraryRepository) SearchStrategies(ctx context.Context, owner string, query domain.SearchQuery) ([]domain.StrategyEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.search-strategies")
	defer span.End()

	args := []any{owner}
	var sb strings.Builder
	sb.WriteString(`SELECT owner, key, name, category, description, risk, tags, steps, requirements, expected_returns, author, version, created_at, updated_at
		FROM strategies WHERE owner = $1`)

	if len(query.Tags) > 0 {
		args = append(args, query.Tags)
		sb.WriteString(fmt.Sprintf(" AND tags @> $%d", len(args)))
	}
	if query.Text != "" {
		args = append(args, "%"+query.Text+"%")
		sb.WriteString(fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	sb.WriteString(" ORDER BY updated_at DESC, key ASC")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StrategyEntry
	for rows.Next() {
		entry, err := scanStrategy(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanStrategy(scan func(dest ...any) error) (*domain.StrategyEntry, error) {
	var entry domain.StrategyEntry
	var risk string
	var returns []byte
	if err := scan(
		&entry.Owner, &entry.Key, &entry.Name, &entry.Category, &entry.Description, &risk,
		&entry.Tags, &entry.Steps, &entry.Requirements, &returns, &entry.Author, &entry.Version,
		&entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.Risk = domain.RiskLevel(risk)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	if len(returns) > 0 {
		var er domain.ExpectedReturn
		if err := json.Unmarshal(returns, &er); err == nil {
			entry.ExpectedReturns = &er
		}
	}
	return &entry, nil
}

func (r *LibraryRepository) UpsertKnowledge(ctx context.Context, entry domain.KnowledgeEntry) (domain.KnowledgeEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.upsert-knowledge")
	defer span.End()

	err := r.pool.QueryRow(ctx,
		`INSERT INTO knowledge (owner, key, content, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (owner, key) DO UPDATE SET
		     content = EXCLUDED.content,
		     tags = EXCLUDED.tags,
		     updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		entry.Owner, entry.Key, entry.Content, entry.Tags, entry.UpdatedAt.UTC(),
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}
	return entry, nil
}

func (r *LibraryRepository) GetKnowledge(ctx context.Context, owner, key string) (*domain.KnowledgeEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.get-knowledge")
	defer span.End()

	var entry domain.KnowledgeEntry
	err := r.pool.QueryRow(ctx,
		`SELECT owner, key, content, tags, created_at, updated_at
		 FROM knowledge WHERE owner = $1 AND key = $2`,
		owner, key,
	).Scan(&entry.Owner, &entry.Key, &entry.Content, &entry.Tags, &entry.CreatedAt, &entry.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func (r *LibraryRepository) DeleteKnowledge(ctx context.Context, owner, key string) error {
	_, span := r.tracer.Start(ctx, "library-repo.delete-knowledge")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM knowledge WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *LibraryRepository) SearchKnowledge(ctx context.Context, owner string, query domain.SearchQuery) ([]domain.KnowledgeEntry, error) {
	_, span := r.tracer.Start(ctx, "library-repo.search-knowledge")
	defer span.End()

	args := []any{owner}
	var sb strings.Builder
	sb.WriteString(`SELECT owner, key, content, tags, created_at, updated_at
		FROM knowledge WHERE owner = $1`)

	if len(query.Tags) > 0 {
		args = append(args, query.Tags)
		sb.WriteString(fmt.Sprintf(" AND tags @> $%d", len(args)))
	}
	if query.Text != "" {
		args = append(args, "%"+query.Text+"%")
		sb.WriteString(fmt.Sprintf(" AND (key ILIKE $%d OR content ILIKE $%d)", len(args), len(args)))
	}
	sb.WriteString(" ORDER BY updated_at DESC, key ASC")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.KnowledgeEntry
	for rows.Next() {
		var entry domain.KnowledgeEntry
		if err := rows.Scan(&entry.Owner, &entry.Key, &entry.Content, &entry.Tags, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
