package annotate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidney-genetics/ingestion-core/internal/cache"
	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

type fakeSource struct {
	annotations map[string]any
	fetchErr    error
	valid       bool
}

func (f *fakeSource) FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.annotations, nil
}

func (f *fakeSource) IsValid(ann *domain.GeneAnnotation) bool { return f.valid }

type fakeAnnotationRepo struct {
	upserted []*domain.GeneAnnotation
}

func (f *fakeAnnotationRepo) Upsert(ctx context.Context, ann *domain.GeneAnnotation) error {
	f.upserted = append(f.upserted, ann)
	return nil
}
func (f *fakeAnnotationRepo) Get(ctx context.Context, geneID uuid.UUID, source domain.SourceName) (*domain.GeneAnnotation, error) {
	return nil, nil
}

func newTestCache(t *testing.T) *cache.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewServiceWithClient(client, time.Hour, nil)
}

func TestRunOne_InvalidPayloadReturnsError(t *testing.T) {
	source := &fakeSource{annotations: map[string]any{"terms": []string{}}, valid: false}
	repo := &fakeAnnotationRepo{}
	runner := NewRunner(domain.AnnotationHPO, source, domain.SourceConfig{CacheTTLDays: 1}, newTestCache(t), repo, nil, nil)

	gene := &domain.Gene{ID: uuid.New(), ApprovedSymbol: "PKD1", HGNCID: "HGNC:9008"}
	err := runner.RunOne(context.Background(), gene)

	require.Error(t, err)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, repo.upserted, "an invalid payload must never be persisted")
}

func TestRunOne_ValidPayloadUpserts(t *testing.T) {
	source := &fakeSource{annotations: map[string]any{"terms": []string{"HP:0000099"}}, valid: true}
	repo := &fakeAnnotationRepo{}
	runner := NewRunner(domain.AnnotationHPO, source, domain.SourceConfig{CacheTTLDays: 1}, newTestCache(t), repo, nil, nil)

	gene := &domain.Gene{ID: uuid.New(), ApprovedSymbol: "PKD1", HGNCID: "HGNC:9008"}
	err := runner.RunOne(context.Background(), gene)

	require.NoError(t, err)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, gene.ID, repo.upserted[0].GeneID)
}
