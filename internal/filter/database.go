package filter

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// DatabaseFilter applies the same threshold semantics as MemoryFilter to
// evidence that already landed in Postgres: a PubTator re-filter after a
// config threshold change, or a periodic sweep, would both re-run this
// instead of re-reading the whole source into memory. It wraps
// EvidenceRepository.DeleteBelowThreshold rather than re-implementing the
// SQL, since the two operations share one invariant: rows below threshold
// are soft-deleted, not hard-deleted, so merge/undo semantics stay intact.
func DatabaseFilter(ctx context.Context, repo domain.EvidenceRepository, source domain.SourceName, countField string, threshold int, log *logrus.Logger) (domain.FilteringStats, error) {
	start := time.Now()

	totalBefore, err := repo.CountBySource(ctx, source)
	if err != nil {
		return domain.FilteringStats{}, err
	}

	if threshold <= 0 {
		return domain.FilteringStats{
			Source: source, Entity: "gene_evidence", Threshold: threshold,
			TotalBefore: totalBefore, TotalAfter: totalBefore,
			Duration: time.Since(start), Timestamp: time.Now(),
		}, nil
	}

	_, sample, err := repo.DeleteBelowThreshold(ctx, source, countField, threshold)
	if err != nil {
		return domain.FilteringStats{}, err
	}

	totalAfter, err := repo.CountBySource(ctx, source)
	if err != nil {
		return domain.FilteringStats{}, err
	}

	stats := domain.FilteringStats{
		Source: source, Entity: "gene_evidence", Threshold: threshold,
		TotalBefore:    totalBefore,
		TotalAfter:     totalAfter,
		FilteredCount:  totalBefore - totalAfter,
		SampleFiltered: sample,
		Duration:       time.Since(start),
		Timestamp:      time.Now(),
	}
	if totalBefore > 0 {
		stats.FilterRate = float64(stats.FilteredCount) / float64(totalBefore)
	}
	if stats.FilterRate > 0.5 && log != nil {
		log.WithFields(logrus.Fields{
			"source": source, "filter_rate": stats.FilterRate,
		}).Warn("filter rate exceeds 50%, check threshold configuration")
	}
	return stats, nil
}
