package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// ProgressRepository persists per-source ProgressRecord rows and
// enforces the "one active run per source" invariant at the storage
// layer via TryStart's conditional update.
type ProgressRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewProgressRepository builds a ProgressRepository.
func NewProgressRepository(db *pgxpool.Pool, log *logrus.Logger) *ProgressRepository {
	return &ProgressRepository{db: db, log: log}
}

// Get retrieves the current progress record for a source, or (nil, nil) if none exists.
func (r *ProgressRepository) Get(ctx context.Context, source domain.SourceName) (*domain.ProgressRecord, error) {
	query := `
		SELECT source, status, current_page, items_processed, items_total, last_checkpoint, error, started_at, updated_at
		FROM progress_records WHERE source = $1`

	var rec domain.ProgressRecord
	var sourceName, status string
	err := r.db.QueryRow(ctx, query, string(source)).Scan(
		&sourceName, &status, &rec.CurrentPage, &rec.ItemsProcessed, &rec.ItemsTotal,
		&rec.LastCheckpoint, &rec.Error, &rec.StartedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting progress for %s: %w", source, err)
	}
	rec.Source = domain.SourceName(sourceName)
	rec.Status = domain.RunStatus(status)
	return &rec, nil
}

// Upsert writes the current progress record.
func (r *ProgressRepository) Upsert(ctx context.Context, rec *domain.ProgressRecord) error {
	query := `
		INSERT INTO progress_records (source, status, current_page, items_processed, items_total, last_checkpoint, error, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source) DO UPDATE SET
			status = EXCLUDED.status,
			current_page = EXCLUDED.current_page,
			items_processed = EXCLUDED.items_processed,
			items_total = EXCLUDED.items_total,
			last_checkpoint = EXCLUDED.last_checkpoint,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query, string(rec.Source), string(rec.Status), rec.CurrentPage,
		rec.ItemsProcessed, rec.ItemsTotal, rec.LastCheckpoint, rec.Error, rec.StartedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting progress for %s: %w", rec.Source, err)
	}
	return nil
}

// TryStart atomically claims a source run: it succeeds (true) only if no
// row exists for source, or the existing row's status is not Running.
// This is the storage-level enforcement of "one active run per source".
func (r *ProgressRepository) TryStart(ctx context.Context, source domain.SourceName) (bool, error) {
	query := `
		INSERT INTO progress_records (source, status, current_page, items_processed, items_total, started_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, now(), now())
		ON CONFLICT (source) DO UPDATE SET
			status = EXCLUDED.status, started_at = now(), updated_at = now()
		WHERE progress_records.status <> $2`

	tag, err := r.db.Exec(ctx, query, string(source), string(domain.RunRunning))
	if err != nil {
		return false, fmt.Errorf("starting run for %s: %w", source, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Row existed and already Running: confirm, don't assume.
	existing, err := r.Get(ctx, source)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Status == domain.RunRunning {
		return false, nil
	}
	return true, nil
}
