package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// PostgresStagingStore persists the human review queue in Postgres. The
// staging queue has two backends: this Postgres-backed implementation
// for production and a SQLite-backed one (SQLiteStagingStore in
// staging_sqlite.go) for single-process/offline development.
type PostgresStagingStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStagingStore builds a PostgresStagingStore.
func NewPostgresStagingStore(db *pgxpool.Pool, log *logrus.Logger) *PostgresStagingStore {
	return &PostgresStagingStore{db: db, log: log}
}

// Create inserts a new staging record for human review.
func (s *PostgresStagingStore) Create(ctx context.Context, rec *domain.StagingRecord) error {
	candidates, err := json.Marshal(rec.Candidates)
	if err != nil {
		return fmt.Errorf("marshaling candidates: %w", err)
	}

	query := `
		INSERT INTO staging_records (id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.db.Exec(ctx, query, rec.ID, rec.RawText, rec.SourceHint, candidates,
		string(rec.Status), rec.ReviewerID, rec.Reason, rec.LinkedGeneID, rec.CreatedAt, rec.ResolvedAt)
	if err != nil {
		s.log.WithFields(logrus.Fields{"raw_text": rec.RawText, "error": err}).Error("failed to create staging record")
		return fmt.Errorf("creating staging record: %w", err)
	}
	return nil
}

// Get retrieves a staging record by ID.
func (s *PostgresStagingStore) Get(ctx context.Context, id uuid.UUID) (*domain.StagingRecord, error) {
	query := `
		SELECT id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at
		FROM staging_records WHERE id = $1`

	rec, err := scanStagingRow(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting staging record %s: %w", id, err)
	}
	return rec, nil
}

// ListPending returns pending staging records for the review UI, paginated.
func (s *PostgresStagingStore) ListPending(ctx context.Context, limit, offset int) ([]*domain.StagingRecord, error) {
	query := `
		SELECT id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at
		FROM staging_records WHERE status = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, string(domain.StagingPending), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pending staging records: %w", err)
	}
	defer rows.Close()

	var records []*domain.StagingRecord
	for rows.Next() {
		rec, err := scanStagingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning staging record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Resolve marks a staging record approved/rejected, recording the
// reviewer's decision and linking to the resolved gene when approved.
func (s *PostgresStagingStore) Resolve(ctx context.Context, id uuid.UUID, status domain.StagingStatus, reviewerID, reason string, linkedGeneID *uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE staging_records
		SET status = $2, reviewer_id = $3, reason = $4, linked_gene_id = $5, resolved_at = $6
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, string(status), reviewerID, reason, linkedGeneID, now)
	if err != nil {
		return fmt.Errorf("resolving staging record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.DataIntegrityError{Message: fmt.Sprintf("staging record %s not found", id)}
	}
	return nil
}

// Close is a no-op: the shared pgxpool.Pool outlives this store.
func (s *PostgresStagingStore) Close() error { return nil }

type stagingScanner interface {
	Scan(dest ...any) error
}

func scanStagingRow(row stagingScanner) (*domain.StagingRecord, error) {
	var rec domain.StagingRecord
	var status string
	var candidatesJSON []byte
	if err := row.Scan(&rec.ID, &rec.RawText, &rec.SourceHint, &candidatesJSON, &status,
		&rec.ReviewerID, &rec.Reason, &rec.LinkedGeneID, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
		return nil, err
	}
	rec.Status = domain.StagingStatus(status)
	if len(candidatesJSON) > 0 {
		if err := json.Unmarshal(candidatesJSON, &rec.Candidates); err != nil {
			return nil, fmt.Errorf("decoding candidates: %w", err)
		}
	}
	return &rec, nil
}
