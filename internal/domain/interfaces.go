package domain

import (
	"context"

	"github.com/google/uuid"
)

// ConfigManager loads, validates, and reloads the SourceConfig registry.
type ConfigManager interface {
	GetConfig() *Config
	GetSourceConfig(source SourceName) (SourceConfig, bool)
	Reload() error
	Validate() error
}

// GeneRepository persists canonical Gene identity.
type GeneRepository interface {
	Create(ctx context.Context, gene *Gene) error
	GetByHGNCID(ctx context.Context, hgncID string) (*Gene, error)
	FindBySymbolsOrAliases(ctx context.Context, tokens []string) (map[string]*Gene, error)
	AddAlias(ctx context.Context, geneID uuid.UUID, alias string) error
	ListActive(ctx context.Context) ([]*Gene, error)
}

// EvidenceRepository persists GeneEvidence rows for ingestion sources.
type EvidenceRepository interface {
	Upsert(ctx context.Context, ev *GeneEvidence) error
	Merge(ctx context.Context, source SourceName, incoming map[string]*GeneEvidence) error
	ListBySource(ctx context.Context, source SourceName) (map[string]*GeneEvidence, error)
	DeleteBelowThreshold(ctx context.Context, source SourceName, countField string, threshold int) (deletedIDs []uuid.UUID, sample []string, err error)
	CountBySource(ctx context.Context, source SourceName) (int, error)
}

// AnnotationRepository persists GeneAnnotation rows for annotation
// sources.
type AnnotationRepository interface {
	Upsert(ctx context.Context, ann *GeneAnnotation) error
	Get(ctx context.Context, geneID uuid.UUID, source SourceName) (*GeneAnnotation, error)
}

// StagingRepository persists the human review queue.
type StagingRepository interface {
	Create(ctx context.Context, rec *StagingRecord) error
	Get(ctx context.Context, id uuid.UUID) (*StagingRecord, error)
	ListPending(ctx context.Context, limit, offset int) ([]*StagingRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, status StagingStatus, reviewerID, reason string, linkedGeneID *uuid.UUID) error
	Close() error
}

// ProgressRepository persists per-source ProgressRecord rows, enforcing
// the "one active run per source" invariant at the storage layer.
type ProgressRepository interface {
	Get(ctx context.Context, source SourceName) (*ProgressRecord, error)
	Upsert(ctx context.Context, rec *ProgressRecord) error
	TryStart(ctx context.Context, source SourceName) (bool, error)
}

// CheckpointRepository persists the opaque, versioned resume payload.
type CheckpointRepository interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, source SourceName) (*Checkpoint, error)
	Clear(ctx context.Context, source SourceName) error
}
