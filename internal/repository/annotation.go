package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// AnnotationRepository persists per-source GeneAnnotation rows.
type AnnotationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnnotationRepository builds an AnnotationRepository.
func NewAnnotationRepository(db *pgxpool.Pool, log *logrus.Logger) *AnnotationRepository {
	return &AnnotationRepository{db: db, log: log}
}

// Upsert inserts or updates one annotation row, keyed on (gene_id, source).
func (r *AnnotationRepository) Upsert(ctx context.Context, ann *domain.GeneAnnotation) error {
	query := `
		INSERT INTO gene_annotations (id, gene_id, source, annotations, retrieved_at, ttl_expires_at, from_cache)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gene_id, source) DO UPDATE SET
			annotations = EXCLUDED.annotations,
			retrieved_at = EXCLUDED.retrieved_at,
			ttl_expires_at = EXCLUDED.ttl_expires_at,
			from_cache = EXCLUDED.from_cache`

	_, err := r.db.Exec(ctx, query, ann.ID, ann.GeneID, string(ann.Source), ann.Annotations,
		ann.RetrievedAt, ann.TTLExpiresAt, ann.FromCache)
	if err != nil {
		r.log.WithFields(logrus.Fields{"gene_id": ann.GeneID, "source": ann.Source, "error": err}).
			Error("failed to upsert gene annotation")
		return fmt.Errorf("upserting annotation: %w", err)
	}
	return nil
}

// Get retrieves a gene's annotation for one source, returning (nil, nil) if absent.
func (r *AnnotationRepository) Get(ctx context.Context, geneID uuid.UUID, source domain.SourceName) (*domain.GeneAnnotation, error) {
	query := `
		SELECT id, gene_id, source, annotations, retrieved_at, ttl_expires_at, from_cache
		FROM gene_annotations WHERE gene_id = $1 AND source = $2`

	var ann domain.GeneAnnotation
	var sourceName string
	err := r.db.QueryRow(ctx, query, geneID, string(source)).Scan(
		&ann.ID, &ann.GeneID, &sourceName, &ann.Annotations, &ann.RetrievedAt, &ann.TTLExpiresAt, &ann.FromCache)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting annotation for gene %s source %s: %w", geneID, source, err)
	}
	ann.Source = domain.SourceName(sourceName)
	return &ann, nil
}
