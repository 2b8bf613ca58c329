package repository

import (
	"context"
	"time"

	"tokenadvisor/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PriceRepository persists canonical price records. The table is append
// only: records are inserted, never updated.
type PriceRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPriceRepository(pool PgxPool, tracer trace.Tracer) *PriceRepository {
	return &PriceRepository{pool: pool, tracer: tracer}
}

func (r *PriceRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS price_records (
			id          BIGSERIAL PRIMARY KEY,
			token       TEXT NOT NULL,
			price       DOUBLE PRECISION NOT NULL,
			change_24h  DOUBLE PRECISION,
			volume      DOUBLE PRECISION,
			tvl         DOUBLE PRECISION,
			source_key  TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_price_records_token_observed
			ON price_records (token, observed_at);
	`)
	return err
}

func (r *PriceRepository) InsertPriceRecords(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "price-repo.insert-records")
	defer span.End()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO price_records (token, price, change_24h, volume, tvl, source_key, observed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.Token, rec.Price, rec.Change24h, rec.Volume, rec.TVL, rec.SourceKey, rec.ObservedAt.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PriceRepository) GetRecordsInRange(ctx context.Context, token string, from, to time.Time) ([]domain.PriceRecord, error) {
	_, span := r.tracer.Start(ctx, "price-repo.get-records-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT token, price, change_24h, volume, tvl, source_key, observed_at
		 FROM price_records
		 WHERE token = $1 AND observed_at >= $2 AND observed_at <= $3
		 ORDER BY observed_at ASC`,
		token, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PriceRecord
	for rows.Next() {
		var rec domain.PriceRecord
		if err := rows.Scan(&rec.Token, &rec.Price, &rec.Change24h, &rec.Volume, &rec.TVL, &rec.SourceKey, &rec.ObservedAt); err != nil {
			return nil, err
		}
		rec.ObservedAt = rec.ObservedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PriceRepository) GetLatestRecord(ctx context.Context, token string) (*domain.PriceRecord, error) {
	_, span := r.tracer.Start(ctx, "price-repo.get-latest-record")
	defer span.End()

	var rec domain.PriceRecord
	err := r.pool.QueryRow(ctx,
		`SELECT token, price, change_24h, volume, tvl, source_key, observed_at
		 FROM price_records
		 WHERE token = $1
		 ORDER BY observed_at DESC
		 LIMIT 1`,
		token,
	).Scan(&rec.Token, &rec.Price, &rec.Change24h, &rec.Volume, &rec.TVL, &rec.SourceKey, &rec.ObservedAt)
	if err == pgx.ErrNoRows {
		return nil, &domain.NoDataError{Token: token}
	}
	if err != nil {
		return nil, err
	}
	rec.ObservedAt = rec.ObservedAt.UTC()
	return &rec, nil
}
