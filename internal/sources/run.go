package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/filter"
	"github.com/kidney-genetics/ingestion-core/internal/normalizer"
)

// Deps bundles the repositories and services a source run needs, shared
// across every DataSource implementation.
type Deps struct {
	Genes      domain.GeneRepository
	Evidence   domain.EvidenceRepository
	Staging    domain.StagingRepository
	Normalizer *normalizer.Normalizer
	Log        *logrus.Logger
}

// Run drives one source through fetch -> parse -> kidney-filter ->
// normalize page by page, calling onPage after each page so the caller
// (internal/orchestrator) can persist a checkpoint between pages; the
// collected evidence is then written and merged once, and the threshold
// filter runs once over the merged result.
func Run(ctx context.Context, ds DataSource, deps Deps, cursor string, threshold int, onPage func(cursor string) error) (domain.RunSummary, error) {
	start := time.Now()
	summary := domain.RunSummary{Source: ds.Name()}
	merged := make(map[string]*domain.GeneEvidence)

	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		payload, next, done, err := ds.FetchRaw(ctx, cursor)
		if err != nil {
			return summary, fmt.Errorf("fetching %s: %w", ds.Name(), err)
		}

		records, err := ds.Parse(ctx, payload)
		if err != nil {
			return summary, fmt.Errorf("parsing %s: %w", ds.Name(), err)
		}

		var mentions []normalizer.Mention
		kidneyRecords := make(map[string]RawRecord)
		for _, rec := range records {
			if !ds.IsKidneyRelated(rec) {
				summary.Skipped++
				continue
			}
			kidneyRecords[rec.GeneMention] = rec
			mentions = append(mentions, normalizer.Mention{RawText: rec.GeneMention, Source: ds.Name()})
		}

		resolutions, err := deps.Normalizer.Normalize(ctx, mentions)
		if err != nil {
			return summary, fmt.Errorf("normalizing %s mentions: %w", ds.Name(), err)
		}

		for _, res := range resolutions {
			rec := kidneyRecords[res.Mention.RawText]
			switch {
			case res.Resolved():
				ev := &domain.GeneEvidence{
					ID:           uuid.New(),
					GeneID:       res.ResolvedGene.ID,
					SourceName:   ds.Name(),
					Identifier:   rec.Identifier,
					CountField:   rec.CountField,
					Count:        rec.Count,
					EvidenceData: rec.Data,
					UpdatedAt:    time.Now(),
				}
				if existing, ok := merged[rec.Identifier]; ok {
					mergeEvidence(existing, ev)
				} else {
					merged[rec.Identifier] = ev
				}
				summary.Successful++
			case res.Staged():
				summary.Skipped++
			default:
				summary.Failed++
				if len(summary.SampleFailed) < 10 {
					summary.SampleFailed = append(summary.SampleFailed, res.Mention.RawText)
				}
			}
		}

		cursor = next
		if onPage != nil {
			if err := onPage(cursor); err != nil {
				return summary, fmt.Errorf("checkpointing %s: %w", ds.Name(), err)
			}
		}
		if done {
			break
		}
	}

	if err := deps.Evidence.Merge(ctx, ds.Name(), merged); err != nil {
		return summary, fmt.Errorf("merging %s evidence: %w", ds.Name(), err)
	}

	stats, err := filter.DatabaseFilter(ctx, deps.Evidence, ds.Name(), countFieldOf(merged), threshold, deps.Log)
	if err != nil {
		return summary, fmt.Errorf("filtering %s evidence: %w", ds.Name(), err)
	}
	summary.Filtering = &stats

	total := summary.Successful + summary.Failed
	if total > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(total)
	}
	summary.Duration = time.Since(start)
	summary.FinishedAt = time.Now()
	return summary, nil
}

// mergeEvidence folds a later page's record for the same identifier into
// the one already collected: counts accumulate (PubTator reports a count
// per page, not a running total) and list-valued evidence fields (PMID
// lists and the like) concatenate instead of being replaced.
func mergeEvidence(existing, incoming *domain.GeneEvidence) {
	existing.Count += incoming.Count
	for k, v := range incoming.EvidenceData {
		if prior, ok := existing.EvidenceData[k]; ok {
			if merged, ok := concatLists(prior, v); ok {
				existing.EvidenceData[k] = merged
				continue
			}
		}
		existing.EvidenceData[k] = v
	}
	existing.UpdatedAt = incoming.UpdatedAt
}

// concatLists appends b onto a when both are string lists; any other
// pairing falls through so the caller keeps the incoming scalar value.
func concatLists(a, b any) (any, bool) {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if !aok || !bok {
		return nil, false
	}
	out := make([]string, 0, len(as)+len(bs))
	out = append(out, as...)
	out = append(out, bs...)
	return out, true
}

func countFieldOf(merged map[string]*domain.GeneEvidence) string {
	for _, ev := range merged {
		return ev.CountField
	}
	return ""
}
