package normalizer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

type fakeGenes struct {
	byHGNC  map[string]*domain.Gene
	created []*domain.Gene
	createErr error
}

func newFakeGenes() *fakeGenes {
	return &fakeGenes{byHGNC: make(map[string]*domain.Gene)}
}

func (f *fakeGenes) Create(ctx context.Context, gene *domain.Gene) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, gene)
	f.byHGNC[gene.HGNCID] = gene
	return nil
}

func (f *fakeGenes) GetByHGNCID(ctx context.Context, hgncID string) (*domain.Gene, error) {
	return f.byHGNC[hgncID], nil
}

func (f *fakeGenes) FindBySymbolsOrAliases(ctx context.Context, tokens []string) (map[string]*domain.Gene, error) {
	return nil, nil
}

func (f *fakeGenes) AddAlias(ctx context.Context, geneID uuid.UUID, alias string) error { return nil }

func (f *fakeGenes) ListActive(ctx context.Context) ([]*domain.Gene, error) { return nil, nil }

type fakeStaging struct {
	created []*domain.StagingRecord
}

func (f *fakeStaging) Create(ctx context.Context, rec *domain.StagingRecord) error {
	f.created = append(f.created, rec)
	return nil
}
func (f *fakeStaging) Get(ctx context.Context, id uuid.UUID) (*domain.StagingRecord, error) {
	return nil, nil
}
func (f *fakeStaging) ListPending(ctx context.Context, limit, offset int) ([]*domain.StagingRecord, error) {
	return nil, nil
}
func (f *fakeStaging) Resolve(ctx context.Context, id uuid.UUID, status domain.StagingStatus, reviewerID, reason string, linkedGeneID *uuid.UUID) error {
	return nil
}
func (f *fakeStaging) Close() error { return nil }

func newTestNormalizer(genes *fakeGenes, staging *fakeStaging) *Normalizer {
	return New(genes, staging, nil, domain.NormalizerConfig{AutoAcceptThreshold: 0.9, RejectThreshold: 0.5}, nil)
}

func TestTieBreak_PrefersExactMatch(t *testing.T) {
	candidates := []domain.CandidateMatch{
		{ApprovedSymbol: "PKD1", HGNCID: "HGNC:1", Confidence: 0.9, MatchType: "alias"},
		{ApprovedSymbol: "PKD1", HGNCID: "HGNC:1", Confidence: 0.9, MatchType: "exact"},
	}
	best, ok := tieBreak(candidates)
	require.True(t, ok)
	assert.Equal(t, "exact", best.MatchType)
}

func TestTieBreak_LocusBreaksRemainingTie(t *testing.T) {
	candidates := []domain.CandidateMatch{
		{ApprovedSymbol: "PKD1", HGNCID: "HGNC:1", Confidence: 0.9, MatchType: "alias", Locus: "16p13.3"},
		{ApprovedSymbol: "PKD1", HGNCID: "HGNC:2", Confidence: 0.9, MatchType: "alias", Locus: "16p13.3"},
	}
	best, ok := tieBreak(candidates)
	require.True(t, ok)
	assert.Equal(t, "16p13.3", best.Locus)
}

func TestTieBreak_AmbiguousWhenNoCriterionResolves(t *testing.T) {
	candidates := []domain.CandidateMatch{
		{ApprovedSymbol: "GENE1", HGNCID: "HGNC:1", Confidence: 0.9, MatchType: "alias", Locus: "1p36"},
		{ApprovedSymbol: "GENE2", HGNCID: "HGNC:2", Confidence: 0.9, MatchType: "alias", Locus: "2q31"},
	}
	_, ok := tieBreak(candidates)
	assert.False(t, ok)
}

func TestDisposition_AutoAcceptLinksExistingGene(t *testing.T) {
	genes := newFakeGenes()
	existing := &domain.Gene{ID: uuid.New(), ApprovedSymbol: "PKD1", HGNCID: "HGNC:9008"}
	genes.byHGNC["HGNC:9008"] = existing
	staging := &fakeStaging{}
	n := newTestNormalizer(genes, staging)

	res := n.disposition(context.Background(), Mention{RawText: "PKD1"}, []domain.CandidateMatch{
		{ApprovedSymbol: "PKD1", HGNCID: "HGNC:9008", Confidence: 1.0, MatchType: "exact"},
	})

	require.True(t, res.Resolved())
	assert.Equal(t, existing.ID, res.ResolvedGene.ID)
	assert.Empty(t, genes.created, "GetByHGNCID hit must link instead of calling Create")
}

func TestDisposition_AutoAcceptCreatesWhenUnseen(t *testing.T) {
	genes := newFakeGenes()
	staging := &fakeStaging{}
	n := newTestNormalizer(genes, staging)

	res := n.disposition(context.Background(), Mention{RawText: "PKD2"}, []domain.CandidateMatch{
		{ApprovedSymbol: "PKD2", HGNCID: "HGNC:9009", Confidence: 1.0, MatchType: "exact"},
	})

	require.True(t, res.Resolved())
	require.Len(t, genes.created, 1)
	assert.Equal(t, "HGNC:9009", genes.created[0].HGNCID)
}

func TestDisposition_AmbiguousTieRoutesToStaging(t *testing.T) {
	genes := newFakeGenes()
	staging := &fakeStaging{}
	n := newTestNormalizer(genes, staging)

	candidates := []domain.CandidateMatch{
		{ApprovedSymbol: "GENE1", HGNCID: "HGNC:1", Confidence: 1.0, MatchType: "alias", Locus: "1p36"},
		{ApprovedSymbol: "GENE2", HGNCID: "HGNC:2", Confidence: 1.0, MatchType: "alias", Locus: "2q31"},
	}
	res := n.disposition(context.Background(), Mention{RawText: "GENEX"}, candidates)

	assert.True(t, res.Staged())
	require.Len(t, staging.created, 1)
	assert.Contains(t, staging.created[0].Reason, "ambiguous")
}
