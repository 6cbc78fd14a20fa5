// Package upload handles operator-submitted gene evidence: Diagnostic
// Panels and Literature lists delivered as a single in-memory payload
// rather than fetched from a remote API. Both share merge/replace upload
// semantics; the threshold filter is the database-level pass that
// sources.Run applies after the merge, not an in-memory filter over the
// submitted batch.
package upload

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/sources"
)

// Mode is the upload disposition: Merge adds to existing evidence for the
// source, Replace fully supersedes it (handled by
// EvidenceRepository.Merge's soft-delete-absent-rows semantics either
// way — an upload's incoming set IS the new snapshot for Replace, and
// Merge is the same operation applied to a source whose identifier space
// doesn't shrink between uploads).
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

// Row is one operator-submitted evidence line: a gene mention, a count
// (publication count for Literature, panel count for Diagnostic Panels),
// and a free-text category used by the kidney predicate when the source
// itself isn't already kidney-scoped.
type Row struct {
	GeneMention string `json:"gene"`
	Identifier  string `json:"identifier"`
	Count       int    `json:"count"`
	Category    string `json:"category,omitempty"`
}

// Batch is one submitted upload payload.
type Batch struct {
	Mode Mode  `json:"mode"`
	Rows []Row `json:"rows"`
}

// Source implements sources.DataSource over a single in-memory Batch; it
// has no remote dependency and no pagination, matching the "operator
// submits the whole file" shape of Diagnostic Panels and Literature.
type Source struct {
	name       domain.SourceName
	countField string
	batch      Batch
}

// New builds an upload source for the given evidence source name
// (domain.SourceDiagnosticPanels or domain.SourceLiterature) from an
// already-decoded batch.
func New(name domain.SourceName, countField string, batch Batch) *Source {
	return &Source{name: name, countField: countField, batch: batch}
}

func (s *Source) Name() domain.SourceName { return s.name }

// FetchRaw has nothing to fetch remotely; it marshals the in-memory
// batch once and reports done=true immediately so the shared sources.Run
// template still drives this source through the same pipeline.
func (s *Source) FetchRaw(ctx context.Context, cursor string) ([]byte, string, bool, error) {
	if cursor == "done" {
		return nil, "", true, nil
	}
	payload, err := json.Marshal(s.batch)
	if err != nil {
		return nil, "", false, fmt.Errorf("marshaling upload batch: %w", err)
	}
	return payload, "done", true, nil
}

func (s *Source) Parse(ctx context.Context, payload []byte) ([]sources.RawRecord, error) {
	var batch Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, err
	}
	out := make([]sources.RawRecord, 0, len(batch.Rows))
	for _, r := range batch.Rows {
		out = append(out, sources.RawRecord{
			GeneMention: r.GeneMention,
			Identifier:  r.Identifier,
			CountField:  s.countField,
			Count:       r.Count,
			Data:        map[string]any{"category": r.Category},
		})
	}
	return out, nil
}

// IsKidneyRelated always passes: both Diagnostic Panels and Literature
// uploads are operator-curated kidney-gene submissions by construction,
// so there is no free-text predicate to apply at ingest time.
func (s *Source) IsKidneyRelated(rec sources.RawRecord) bool {
	return true
}
