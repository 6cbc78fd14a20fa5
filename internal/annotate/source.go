// Package annotate runs each annotation source (HGNC, gnomAD, ClinVar,
// HPO, MGI, STRING, GTEx, Descartes) over the canonical gene set,
// sequentially rather than as a concurrent fan-out per spec.md §4.5, so
// that a source whose annotation updates Gene fields other sources
// depend on (HGNC populating EnsemblGeneID before GTEx/Descartes run)
// sees a consistent, already-updated Gene on its turn.
package annotate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/cache"
	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// Source is the uniform contract every pkg/external annotation client
// satisfies.
type Source interface {
	FetchAnnotation(ctx context.Context, gene *domain.Gene) (map[string]any, error)
	IsValid(ann *domain.GeneAnnotation) bool
}

// GeneUpdater applies fields an annotation's payload carries back onto
// the Gene row itself (HGNC populates EnsemblGeneID/NCBIGeneID, which
// GTEx/Descartes then depend on). Sources with no such cross-field
// effect simply never get registered as one.
type GeneUpdater interface {
	UpdateGene(gene *domain.Gene, annotations map[string]any)
}

// Runner applies one Source to a batch of genes, honoring the cache and
// writing results through AnnotationRepository.
type Runner struct {
	name       domain.SourceName
	source     Source
	cacheTTL   time.Duration
	cache      *cache.Service
	repo       domain.AnnotationRepository
	genes      domain.GeneRepository
	log        *logrus.Logger
}

// NewRunner builds a Runner for one annotation source.
func NewRunner(name domain.SourceName, source Source, cfg domain.SourceConfig, cacheSvc *cache.Service, repo domain.AnnotationRepository, genes domain.GeneRepository, log *logrus.Logger) *Runner {
	ttl := time.Duration(cfg.CacheTTLDays) * 24 * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Runner{name: name, source: source, cacheTTL: ttl, cache: cacheSvc, repo: repo, genes: genes, log: log}
}

// RunOne annotates a single gene: cache lookup, remote fetch on miss,
// write-through on a valid result, and an optional Gene field update.
func (r *Runner) RunOne(ctx context.Context, gene *domain.Gene) error {
	var cached map[string]any
	hit, err := r.cache.Get(ctx, string(r.name), gene.HGNCID, &cached)
	if err != nil && r.log != nil {
		r.log.WithError(err).WithField("gene", gene.ApprovedSymbol).Warn("annotation cache read failed, falling through to remote fetch")
	}

	annotations := cached
	if !hit {
		annotations, err = r.source.FetchAnnotation(ctx, gene)
		if err != nil {
			return err
		}
	}

	ann := &domain.GeneAnnotation{
		ID:           uuid.New(),
		GeneID:       gene.ID,
		Source:       r.name,
		Annotations:  annotations,
		RetrievedAt:  time.Now(),
		TTLExpiresAt: time.Now().Add(r.cacheTTL),
		FromCache:    hit,
	}

	if !r.source.IsValid(ann) {
		return &domain.ValidationError{Field: "annotations", Message: fmt.Sprintf("%s returned an invalid annotation payload for %s", r.name, gene.ApprovedSymbol)}
	}

	if !hit {
		if err := r.cache.SetIfValid(ctx, string(r.name), gene.HGNCID, annotations, r.cacheTTL, func() bool { return r.source.IsValid(ann) }); err != nil && r.log != nil {
			r.log.WithError(err).Warn("annotation cache write failed")
		}
	}

	if err := r.repo.Upsert(ctx, ann); err != nil {
		return err
	}

	if updater, ok := r.source.(GeneUpdater); ok {
		updater.UpdateGene(gene, annotations)
	}
	return nil
}

// RunBatch annotates every gene in order, continuing past per-gene
// errors (recorded by the caller via the returned per-gene error map) so
// one dependency-unmet or transient failure never stalls the whole
// source's run.
func (r *Runner) RunBatch(ctx context.Context, genes []*domain.Gene) map[string]error {
	errs := make(map[string]error)
	for _, gene := range genes {
		select {
		case <-ctx.Done():
			errs[gene.ApprovedSymbol] = ctx.Err()
			return errs
		default:
		}
		if err := r.RunOne(ctx, gene); err != nil {
			errs[gene.ApprovedSymbol] = err
		}
	}
	return errs
}
