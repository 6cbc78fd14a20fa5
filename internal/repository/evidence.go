package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// EvidenceRepository persists per-source GeneEvidence rows.
type EvidenceRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewEvidenceRepository builds an EvidenceRepository.
func NewEvidenceRepository(db *pgxpool.Pool, log *logrus.Logger) *EvidenceRepository {
	return &EvidenceRepository{db: db, log: log}
}

// Upsert inserts or updates one evidence row, keyed on (gene_id, source_name, identifier).
func (r *EvidenceRepository) Upsert(ctx context.Context, ev *domain.GeneEvidence) error {
	query := `
		INSERT INTO gene_evidence (id, gene_id, source_name, identifier, count_field, count, evidence_data, upload_id, pmid, panel_id, created_at, updated_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (gene_id, source_name, identifier) DO UPDATE SET
			count_field = EXCLUDED.count_field,
			count = EXCLUDED.count,
			evidence_data = EXCLUDED.evidence_data,
			upload_id = EXCLUDED.upload_id,
			pmid = EXCLUDED.pmid,
			panel_id = EXCLUDED.panel_id,
			updated_at = EXCLUDED.updated_at,
			deleted = false`

	_, err := r.db.Exec(ctx, query,
		ev.ID, ev.GeneID, string(ev.SourceName), ev.Identifier, ev.CountField, ev.Count,
		ev.EvidenceData, ev.UploadID, ev.PMID, ev.PanelID, ev.CreatedAt, ev.UpdatedAt, ev.Deleted,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{"gene_id": ev.GeneID, "source": ev.SourceName, "error": err}).
			Error("failed to upsert gene evidence")
		return fmt.Errorf("upserting evidence: %w", err)
	}
	return nil
}

// Merge reconciles an incoming full dataset for a source against the
// existing rows: upserts every incoming record, and soft-deletes any
// existing row whose identifier is absent from incoming (the gene no
// longer appears in the upstream dataset this run).
func (r *EvidenceRepository) Merge(ctx context.Context, source domain.SourceName, incoming map[string]*domain.GeneEvidence) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range incoming {
		if _, err := tx.Exec(ctx, `
			INSERT INTO gene_evidence (id, gene_id, source_name, identifier, count_field, count, evidence_data, upload_id, pmid, panel_id, created_at, updated_at, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false)
			ON CONFLICT (gene_id, source_name, identifier) DO UPDATE SET
				count_field = EXCLUDED.count_field, count = EXCLUDED.count,
				evidence_data = EXCLUDED.evidence_data, updated_at = EXCLUDED.updated_at, deleted = false`,
			ev.ID, ev.GeneID, string(source), ev.Identifier, ev.CountField, ev.Count,
			ev.EvidenceData, ev.UploadID, ev.PMID, ev.PanelID, ev.CreatedAt, ev.UpdatedAt,
		); err != nil {
			return fmt.Errorf("merging evidence identifier %s: %w", ev.Identifier, err)
		}
	}

	identifiers := make([]string, 0, len(incoming))
	for id := range incoming {
		identifiers = append(identifiers, id)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE gene_evidence SET deleted = true, updated_at = now()
		WHERE source_name = $1 AND NOT deleted AND NOT (identifier = ANY($2))`,
		string(source), identifiers,
	); err != nil {
		return fmt.Errorf("soft-deleting stale evidence for %s: %w", source, err)
	}

	return tx.Commit(ctx)
}

// ListBySource returns all non-deleted evidence rows for a source,
// keyed by identifier.
func (r *EvidenceRepository) ListBySource(ctx context.Context, source domain.SourceName) (map[string]*domain.GeneEvidence, error) {
	query := `
		SELECT id, gene_id, source_name, identifier, count_field, count, evidence_data, upload_id, pmid, panel_id, created_at, updated_at, deleted
		FROM gene_evidence WHERE source_name = $1 AND NOT deleted`

	rows, err := r.db.Query(ctx, query, string(source))
	if err != nil {
		return nil, fmt.Errorf("listing evidence for %s: %w", source, err)
	}
	defer rows.Close()

	result := make(map[string]*domain.GeneEvidence)
	for rows.Next() {
		var ev domain.GeneEvidence
		var sourceName string
		if err := rows.Scan(&ev.ID, &ev.GeneID, &sourceName, &ev.Identifier, &ev.CountField, &ev.Count,
			&ev.EvidenceData, &ev.UploadID, &ev.PMID, &ev.PanelID, &ev.CreatedAt, &ev.UpdatedAt, &ev.Deleted); err != nil {
			return nil, fmt.Errorf("scanning evidence row: %w", err)
		}
		ev.SourceName = domain.SourceName(sourceName)
		result[ev.Identifier] = &ev
	}
	return result, rows.Err()
}

// DeleteBelowThreshold implements the database-level filter: it
// soft-deletes (sets deleted = true on) every non-deleted row for source
// whose count_field equals countField and whose count is below
// threshold, and returns the affected IDs plus a bounded sample of
// identifiers for the run summary.
func (r *EvidenceRepository) DeleteBelowThreshold(ctx context.Context, source domain.SourceName, countField string, threshold int) ([]uuid.UUID, []string, error) {
	query := `
		UPDATE gene_evidence SET deleted = true, updated_at = now()
		WHERE source_name = $1 AND NOT deleted AND count_field = $2 AND count < $3
		RETURNING id, identifier`

	rows, err := r.db.Query(ctx, query, string(source), countField, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("deleting evidence below threshold for %s: %w", source, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	var sample []string
	for rows.Next() {
		var id uuid.UUID
		var identifier string
		if err := rows.Scan(&id, &identifier); err != nil {
			return nil, nil, fmt.Errorf("scanning deleted evidence row: %w", err)
		}
		ids = append(ids, id)
		if len(sample) < 10 {
			sample = append(sample, identifier)
		}
	}
	return ids, sample, rows.Err()
}

// CountBySource returns the number of non-deleted evidence rows for a source.
func (r *EvidenceRepository) CountBySource(ctx context.Context, source domain.SourceName) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM gene_evidence WHERE source_name = $1 AND NOT deleted`, string(source)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting evidence for %s: %w", source, err)
	}
	return count, nil
}
