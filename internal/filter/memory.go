// Package filter implements the threshold filtering and merge utilities
// for evidence sources: an in-memory filter (MemoryFilter) and a
// database-level filter (DatabaseFilter). sources.Run applies
// DatabaseFilter to every ingestion source, upload-based ones included;
// no source in this module calls MemoryFilter.
package filter

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// Thresholdable is anything filterable by a numeric count field.
type Thresholdable interface {
	Count() int
	Identifier() string
}

// MemoryFilter partitions records by a minimum count threshold, returning
// the surviving set plus filtering statistics. threshold <= 0 disables
// filtering and returns the input unchanged (per spec.md §4.7's
// min_threshold_enabled gate).
func MemoryFilter[T Thresholdable](source domain.SourceName, entity string, records map[string]T, threshold int, enabled bool, log *logrus.Logger) (map[string]T, domain.FilteringStats) {
	start := time.Now()
	totalBefore := len(records)

	if !enabled || threshold <= 0 {
		return records, domain.FilteringStats{
			Source: source, Entity: entity, Threshold: threshold,
			TotalBefore: totalBefore, TotalAfter: totalBefore,
			Duration: time.Since(start), Timestamp: time.Now(),
		}
	}

	kept := make(map[string]T, len(records))
	var sampleFiltered []string
	for k, rec := range records {
		if rec.Count() >= threshold {
			kept[k] = rec
		} else if len(sampleFiltered) < 10 {
			sampleFiltered = append(sampleFiltered, rec.Identifier())
		}
	}

	stats := domain.FilteringStats{
		Source: source, Entity: entity, Threshold: threshold,
		TotalBefore: totalBefore, TotalAfter: len(kept),
		FilteredCount:  totalBefore - len(kept),
		SampleFiltered: sampleFiltered,
		Duration:       time.Since(start),
		Timestamp:      time.Now(),
	}
	if totalBefore > 0 {
		stats.FilterRate = float64(stats.FilteredCount) / float64(totalBefore)
	}
	if stats.FilterRate > 0.5 && log != nil {
		log.WithFields(logrus.Fields{
			"source": source, "entity": entity, "filter_rate": stats.FilterRate,
		}).Warn("filter rate exceeds 50%, check threshold configuration")
	}
	return kept, stats
}
