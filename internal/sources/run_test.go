package sources

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/normalizer"
)

// pagedSource simulates PubTator's page-by-page reporting: each page
// reports only that page's own count for GENE1, never a running total,
// matching pubtator.go's per-page Parse behavior.
type pagedSource struct {
	pages [][2]string // [pmid, cursor-after]
}

func (p *pagedSource) Name() domain.SourceName { return domain.SourcePubTator }

func (p *pagedSource) FetchRaw(ctx context.Context, cursor string) ([]byte, string, bool, error) {
	idx := 0
	if cursor != "" {
		idx = int(cursor[0] - '0')
	}
	return []byte(p.pages[idx][0]), p.pages[idx][1], idx == len(p.pages)-1, nil
}

func (p *pagedSource) Parse(ctx context.Context, payload []byte) ([]RawRecord, error) {
	pmid := string(payload)
	return []RawRecord{{
		GeneMention: "GENE1",
		Identifier:  "GENE1",
		CountField:  "publication_count",
		Count:       1,
		Data:        map[string]any{"pmids": []string{pmid}},
	}}, nil
}

func (p *pagedSource) IsKidneyRelated(rec RawRecord) bool { return true }

type fakeGeneRepo struct{ genes map[string]*domain.Gene }

func (f *fakeGeneRepo) Create(ctx context.Context, gene *domain.Gene) error { return nil }
func (f *fakeGeneRepo) GetByHGNCID(ctx context.Context, hgncID string) (*domain.Gene, error) {
	return nil, nil
}
func (f *fakeGeneRepo) FindBySymbolsOrAliases(ctx context.Context, tokens []string) (map[string]*domain.Gene, error) {
	out := make(map[string]*domain.Gene)
	for _, t := range tokens {
		if g, ok := f.genes[t]; ok {
			out[t] = g
		}
	}
	return out, nil
}
func (f *fakeGeneRepo) AddAlias(ctx context.Context, geneID uuid.UUID, alias string) error { return nil }
func (f *fakeGeneRepo) ListActive(ctx context.Context) ([]*domain.Gene, error)             { return nil, nil }

type fakeEvidenceRepo struct {
	merged    map[string]*domain.GeneEvidence
	mergeCall int
}

func (f *fakeEvidenceRepo) Upsert(ctx context.Context, ev *domain.GeneEvidence) error { return nil }
func (f *fakeEvidenceRepo) Merge(ctx context.Context, source domain.SourceName, incoming map[string]*domain.GeneEvidence) error {
	f.mergeCall++
	f.merged = incoming
	return nil
}
func (f *fakeEvidenceRepo) ListBySource(ctx context.Context, source domain.SourceName) (map[string]*domain.GeneEvidence, error) {
	return f.merged, nil
}
func (f *fakeEvidenceRepo) DeleteBelowThreshold(ctx context.Context, source domain.SourceName, countField string, threshold int) ([]uuid.UUID, []string, error) {
	return nil, nil, nil
}
func (f *fakeEvidenceRepo) CountBySource(ctx context.Context, source domain.SourceName) (int, error) {
	return len(f.merged), nil
}

type nilStaging struct{}

func (nilStaging) Create(ctx context.Context, rec *domain.StagingRecord) error { return nil }
func (nilStaging) Get(ctx context.Context, id uuid.UUID) (*domain.StagingRecord, error) {
	return nil, nil
}
func (nilStaging) ListPending(ctx context.Context, limit, offset int) ([]*domain.StagingRecord, error) {
	return nil, nil
}
func (nilStaging) Resolve(ctx context.Context, id uuid.UUID, status domain.StagingStatus, reviewerID, reason string, linkedGeneID *uuid.UUID) error {
	return nil
}
func (nilStaging) Close() error { return nil }

// TestRun_AccumulatesEvidenceAcrossPages reproduces spec scenario S1:
// three paginated chunks of one PMID each for GENE1 with a threshold of
// 3 must end with a merged count of 3, not 1 from the last page alone.
func TestRun_AccumulatesEvidenceAcrossPages(t *testing.T) {
	ds := &pagedSource{pages: [][2]string{
		{"PM1", "1"},
		{"PM2", "2"},
		{"PM3", ""},
	}}

	gene := &domain.Gene{ID: uuid.New(), ApprovedSymbol: "GENE1", HGNCID: "HGNC:1"}
	genes := &fakeGeneRepo{genes: map[string]*domain.Gene{"GENE1": gene}}
	evidence := &fakeEvidenceRepo{}
	norm := normalizer.New(genes, nilStaging{}, nil, domain.NormalizerConfig{AutoAcceptThreshold: 0.9, RejectThreshold: 0.5}, nil)

	deps := Deps{Genes: genes, Evidence: evidence, Staging: nilStaging{}, Normalizer: norm, Log: nil}

	summary, err := Run(context.Background(), ds, deps, "", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Successful)

	require.Equal(t, 1, evidence.mergeCall)
	require.Contains(t, evidence.merged, "GENE1")
	ev := evidence.merged["GENE1"]
	assert.Equal(t, 3, ev.Count)
	pmids, ok := ev.EvidenceData["pmids"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"PM1", "PM2", "PM3"}, pmids)

	require.NotNil(t, summary.Filtering)
	assert.Equal(t, 0, summary.Filtering.FilteredCount, "GENE1 meets the threshold once counts are accumulated and must not be filtered out")
}
