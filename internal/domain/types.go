// Package domain contains the core entities of the kidney genetics
// ingestion and annotation core: canonical genes, per-source evidence,
// per-source annotations, the staging queue for unresolved gene mentions,
// cache entries, and per-source progress records.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceName enumerates the ingestion and annotation sources this core
// knows about. Adding a source means adding a registry entry (see
// internal/config), never a reflective name lookup.
type SourceName string

const (
	SourcePubTator          SourceName = "pubtator"
	SourceGenCC             SourceName = "gencc"
	SourcePanelApp          SourceName = "panelapp"
	SourceDiagnosticPanels  SourceName = "diagnostic_panels"
	SourceLiterature        SourceName = "literature"
	AnnotationHGNC          SourceName = "hgnc"
	AnnotationGnomAD        SourceName = "gnomad"
	AnnotationClinVar       SourceName = "clinvar"
	AnnotationHPO           SourceName = "hpo"
	AnnotationMGI           SourceName = "mgi"
	AnnotationSTRING        SourceName = "string"
	AnnotationGTEx          SourceName = "gtex"
	AnnotationDescartes     SourceName = "descartes"
)

// StagingStatus is the disposition of a StagingRecord.
type StagingStatus string

const (
	StagingPending      StagingStatus = "pending"
	StagingApproved     StagingStatus = "approved"
	StagingRejected     StagingStatus = "rejected"
	StagingAutoResolved StagingStatus = "auto_resolved"
)

// RunStatus is the lifecycle state of a per-source run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Gene is the canonical, HGNC-backed gene identity. Identity is
// (ApprovedSymbol, HGNCID); HGNCID is unique and never reused. A Gene is
// created on first successful normalization and is never destroyed, only
// soft-deactivated.
type Gene struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ApprovedSymbol string    `json:"approved_symbol" db:"approved_symbol"`
	HGNCID         string    `json:"hgnc_id" db:"hgnc_id"`
	EnsemblGeneID  string    `json:"ensembl_gene_id,omitempty" db:"ensembl_gene_id"`
	NCBIGeneID     string    `json:"ncbi_gene_id,omitempty" db:"ncbi_gene_id"`
	Aliases        []string  `json:"aliases,omitempty" db:"aliases"`
	Deactivated    bool      `json:"deactivated" db:"deactivated"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Validate enforces the Gene identity invariant.
func (g *Gene) Validate() error {
	if g.ApprovedSymbol == "" {
		return fmt.Errorf("gene validation: %w", errors.New("approved_symbol is required"))
	}
	if g.HGNCID == "" {
		return fmt.Errorf("gene validation: %w", errors.New("hgnc_id is required"))
	}
	return nil
}

// GeneEvidence is a per-source assertion linking a gene to one source.
// EvidenceData carries a structured, source-specific payload that always
// includes CountField (publication_count, panel_count, ...); count fields
// are non-negative integers, and evidence is never cached when the count
// is missing or zero.
type GeneEvidence struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	GeneID        uuid.UUID      `json:"gene_id" db:"gene_id"`
	SourceName    SourceName     `json:"source_name" db:"source_name"`
	Identifier    string         `json:"identifier" db:"identifier"` // upload id, PMID, panel id: per-source granularity
	CountField    string         `json:"count_field" db:"count_field"`
	Count         int            `json:"count" db:"count"`
	EvidenceData  map[string]any `json:"evidence_data" db:"evidence_data"`
	UploadID      string         `json:"upload_id,omitempty" db:"upload_id"`
	PMID          string         `json:"pmid,omitempty" db:"pmid"`
	PanelID       string         `json:"panel_id,omitempty" db:"panel_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	Deleted       bool           `json:"deleted" db:"deleted"`
}

// Validate enforces the non-negative-count invariant.
func (e *GeneEvidence) Validate() error {
	if e.GeneID == uuid.Nil {
		return fmt.Errorf("gene evidence validation: %w", errors.New("gene_id is required"))
	}
	if e.SourceName == "" {
		return fmt.Errorf("gene evidence validation: %w", errors.New("source_name is required"))
	}
	if e.Count < 0 {
		return fmt.Errorf("gene evidence validation: %w", errors.New("count must be non-negative"))
	}
	return nil
}

// GeneAnnotation is a per-source enrichment payload attached to a
// canonical gene. Stored only when IsValid(annotation) passes the
// source-specific predicate at write time.
type GeneAnnotation struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	GeneID        uuid.UUID      `json:"gene_id" db:"gene_id"`
	Source        SourceName     `json:"source" db:"source"`
	Annotations   map[string]any `json:"annotations" db:"annotations"`
	RetrievedAt   time.Time      `json:"retrieved_at" db:"retrieved_at"`
	TTLExpiresAt  time.Time      `json:"ttl_expires_at" db:"ttl_expires_at"`
	FromCache     bool           `json:"from_cache" db:"from_cache"`
}

// CandidateMatch is a ranked HGNC resolution candidate attached to a
// StagingRecord awaiting human review.
type CandidateMatch struct {
	ApprovedSymbol string  `json:"approved_symbol"`
	HGNCID         string  `json:"hgnc_id"`
	Confidence     float64 `json:"confidence"`
	MatchType      string  `json:"match_type"` // "exact" | "previous_symbol" | "alias" | "fuzzy"
	Locus          string  `json:"locus,omitempty"` // HGNC-reported chromosome location, e.g. "16p13.3"
}

// StagingRecord holds an unresolved raw gene mention. A pending record
// blocks no pipeline progress; approval creates or links a canonical Gene.
type StagingRecord struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	RawText     string            `json:"raw_text" db:"raw_text"`
	SourceHint  SourceName        `json:"source_hint" db:"source_hint"`
	Candidates  []CandidateMatch  `json:"candidates" db:"candidates"`
	Status      StagingStatus     `json:"status" db:"status"`
	ReviewerID  string            `json:"reviewer_id,omitempty" db:"reviewer_id"`
	Reason      string            `json:"reason,omitempty" db:"reason"`
	LinkedGeneID *uuid.UUID       `json:"linked_gene_id,omitempty" db:"linked_gene_id"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
}

// ProgressRecord is the per-source run state. Invariant: at most one
// active (running/paused) run per source; LastCheckpoint is the opaque
// resume contract.
type ProgressRecord struct {
	Source          SourceName `json:"source" db:"source"`
	Status          RunStatus  `json:"status" db:"status"`
	CurrentPage     int        `json:"current_page" db:"current_page"`
	ItemsProcessed  int        `json:"items_processed" db:"items_processed"`
	ItemsTotal      int        `json:"items_total" db:"items_total"`
	LastCheckpoint  []byte     `json:"last_checkpoint,omitempty" db:"last_checkpoint"`
	Error           string     `json:"error,omitempty" db:"error"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Checkpoint is the opaque resume payload written when a source pauses.
// SchemaVersion is checked on resume; an unknown version refuses to
// resume and requires a full re-run.
type Checkpoint struct {
	SchemaVersion   int        `json:"schema_version"`
	Source          SourceName `json:"source"`
	ProcessedGeneIDs []string  `json:"processed_gene_ids"`
	BatchIndex      int        `json:"batch_index"`
	CurrentSource   SourceName `json:"current_source"`
	// Cursor is the opaque fetch-page position for ingestion sources
	// (a page number or a source-specific JSON cursor); unused by
	// annotation-source checkpoints, which resume from ProcessedGeneIDs
	// instead.
	Cursor          string     `json:"cursor,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// CurrentCheckpointSchemaVersion is bumped whenever the Checkpoint shape
// changes incompatibly.
const CurrentCheckpointSchemaVersion = 1

// RunSummary is the terminal, per-source-run outcome. Partial success is
// the common case and is not an error.
type RunSummary struct {
	Source         SourceName    `json:"source"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	SkippedReason  string        `json:"skipped_reason,omitempty"`
	SampleFailed   []string      `json:"sample_failed,omitempty"`
	SuccessRate    float64       `json:"success_rate"`
	Duration       time.Duration `json:"duration"`
	Filtering      *FilteringStats `json:"filtering,omitempty"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// FilteringStats is the shared contract for both the memory filter and the
// database filter utilities.
type FilteringStats struct {
	Source         SourceName `json:"source"`
	Entity         string     `json:"entity"`
	Threshold      int        `json:"threshold"`
	TotalBefore    int        `json:"total_before"`
	TotalAfter     int        `json:"total_after"`
	FilteredCount  int        `json:"filtered_count"`
	FilterRate     float64    `json:"filter_rate"`
	SampleFiltered []string   `json:"sample_filtered,omitempty"`
	Duration       time.Duration `json:"duration"`
	Timestamp      time.Time  `json:"timestamp"`
}
