package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// CheckpointRepository persists the opaque, versioned resume payload a
// source run can be restarted from.
type CheckpointRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewCheckpointRepository builds a CheckpointRepository.
func NewCheckpointRepository(db *pgxpool.Pool, log *logrus.Logger) *CheckpointRepository {
	return &CheckpointRepository{db: db, log: log}
}

// Save persists a checkpoint, replacing any prior one for the same source.
func (r *CheckpointRepository) Save(ctx context.Context, cp *domain.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint for %s: %w", cp.Source, err)
	}

	query := `
		INSERT INTO checkpoints (source, schema_version, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (source) DO UPDATE SET schema_version = EXCLUDED.schema_version, payload = EXCLUDED.payload, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, string(cp.Source), cp.SchemaVersion, payload); err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", cp.Source, err)
	}
	return nil
}

// Load retrieves a source's checkpoint, refusing to return one whose
// schema version doesn't match the current code's expectation rather
// than risk misinterpreting an incompatible resume payload.
func (r *CheckpointRepository) Load(ctx context.Context, source domain.SourceName) (*domain.Checkpoint, error) {
	var schemaVersion int
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT schema_version, payload FROM checkpoints WHERE source = $1`, string(source)).
		Scan(&schemaVersion, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading checkpoint for %s: %w", source, err)
	}
	if schemaVersion != domain.CurrentCheckpointSchemaVersion {
		return nil, &domain.DataIntegrityError{
			Message: fmt.Sprintf("checkpoint for %s has schema version %d, code expects %d", source, schemaVersion, domain.CurrentCheckpointSchemaVersion),
		}
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint for %s: %w", source, err)
	}
	return &cp, nil
}

// Clear removes a source's checkpoint, e.g. after a successful run completes.
func (r *CheckpointRepository) Clear(ctx context.Context, source domain.SourceName) error {
	_, err := r.db.Exec(ctx, `DELETE FROM checkpoints WHERE source = $1`, string(source))
	if err != nil {
		return fmt.Errorf("clearing checkpoint for %s: %w", source, err)
	}
	return nil
}
