// Package sources implements the fetch/parse/filter/normalize/write/merge
// template every evidence ingester follows, and the per-source ingesters
// themselves: pubtator (streamed literature co-occurrence), gencc and
// panelapp (full-export catalogs with a precise kidney predicate), and
// upload (operator-submitted diagnostic panels and literature lists).
package sources

import (
	"context"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// RawRecord is one source-specific record before gene normalization: an
// identifier the source uses internally, the free-text gene mention(s) it
// names, a count value for threshold filtering, and the structured
// payload to carry into GeneEvidence.EvidenceData.
type RawRecord struct {
	Identifier  string
	GeneMention string
	CountField  string
	Count       int
	Data        map[string]any
}

// DataSource is the template every evidence ingester implements. Run
// drives fetch -> parse -> kidney-filter -> normalize -> write -> merge ->
// filter in that order; individual sources only need to supply the
// source-specific steps.
type DataSource interface {
	Name() domain.SourceName

	// FetchRaw retrieves the source's raw payload for the given page/cursor
	// (sources with a single full export ignore the cursor and return
	// done=true on the first call).
	FetchRaw(ctx context.Context, cursor string) (payload []byte, nextCursor string, done bool, err error)

	// Parse decodes a raw payload into candidate records.
	Parse(ctx context.Context, payload []byte) ([]RawRecord, error)

	// IsKidneyRelated applies the source's kidney predicate to one record.
	IsKidneyRelated(rec RawRecord) bool
}

// Thresholdable adapter so RawRecord satisfies internal/filter.Thresholdable
// without internal/filter importing internal/sources.
type thresholdableRecord struct{ RawRecord }

func (t thresholdableRecord) Count() int        { return t.RawRecord.Count }
func (t thresholdableRecord) Identifier() string { return t.RawRecord.Identifier }

// AsThresholdable adapts a RawRecord map for internal/filter.MemoryFilter.
func AsThresholdable(records map[string]RawRecord) map[string]thresholdableRecord {
	out := make(map[string]thresholdableRecord, len(records))
	for k, v := range records {
		out[k] = thresholdableRecord{v}
	}
	return out
}
