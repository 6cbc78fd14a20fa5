// Package orchestrator coordinates source runs across the ingestion and
// annotation layers: dependency-ordered execution, bounded cross-source
// parallelism, pause/checkpoint/resume, failed-gene retry, and the
// summary projection refresh.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/annotate"
	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/progress"
	"github.com/kidney-genetics/ingestion-core/internal/sources"
)

// ErrPaused is returned internally when a run observes its pause flag;
// it is never a failure outcome, only a signal to checkpoint and stop.
var ErrPaused = errors.New("run paused")

// pauseCheckInterval is how often (in genes or pages) the per-gene/per-page
// loop checks its pause flag, per spec.md §4.6's "every N ≈ 50" guidance.
const pauseCheckInterval = 50

// Orchestrator drives every registered source through its run.
type Orchestrator struct {
	cfg         domain.ConfigManager
	genes       domain.GeneRepository
	evidence    domain.EvidenceRepository
	progressRepo domain.ProgressRepository
	checkpoints domain.CheckpointRepository
	tracker     *progress.Tracker
	pool        *pgxpool.Pool
	log         *logrus.Logger

	ingestSources     map[domain.SourceName]sources.DataSource
	ingestDeps        sources.Deps
	annotationRunners map[domain.SourceName]*annotate.Runner

	sem        chan struct{}
	pauseFlags sync.Map // domain.SourceName -> *atomic.Bool

	summaryMu sync.Mutex
}

// New builds an Orchestrator. Ingestion and annotation sources are
// registered afterward via RegisterIngestSource/RegisterAnnotationRunner
// so the registry is explicit and name-keyed, per spec.md §9's "no
// reflective dispatch" requirement.
func New(cfg domain.ConfigManager, genes domain.GeneRepository, evidence domain.EvidenceRepository, progressRepo domain.ProgressRepository, checkpoints domain.CheckpointRepository, tracker *progress.Tracker, pool *pgxpool.Pool, ingestDeps sources.Deps, log *logrus.Logger) *Orchestrator {
	maxConcurrent := cfg.GetConfig().Orchestrator.MaxConcurrentSources
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Orchestrator{
		cfg:               cfg,
		genes:             genes,
		evidence:          evidence,
		progressRepo:      progressRepo,
		checkpoints:       checkpoints,
		tracker:           tracker,
		pool:              pool,
		log:               log,
		ingestSources:     make(map[domain.SourceName]sources.DataSource),
		ingestDeps:        ingestDeps,
		annotationRunners: make(map[domain.SourceName]*annotate.Runner),
		sem:               make(chan struct{}, maxConcurrent),
	}
}

// RegisterIngestSource adds an ingestion DataSource to the registry.
func (o *Orchestrator) RegisterIngestSource(name domain.SourceName, ds sources.DataSource) {
	o.ingestSources[name] = ds
}

// RegisterAnnotationRunner adds an annotation Runner to the registry.
func (o *Orchestrator) RegisterAnnotationRunner(name domain.SourceName, runner *annotate.Runner) {
	o.annotationRunners[name] = runner
}

func (o *Orchestrator) pauseFlag(name domain.SourceName) *atomic.Bool {
	flag, _ := o.pauseFlags.LoadOrStore(name, &atomic.Bool{})
	return flag.(*atomic.Bool)
}

// Pause requests the given source's run pause at its next checkpoint
// boundary; pausing is cooperative, so this returns before the run
// actually stops.
func (o *Orchestrator) Pause(source domain.SourceName) {
	o.pauseFlag(source).Store(true)
}

// Resume clears a source's pause flag; TriggerIngestSource or
// TriggerAnnotationSource must still be called to actually continue the
// run from its checkpoint.
func (o *Orchestrator) Resume(source domain.SourceName) {
	o.pauseFlag(source).Store(false)
}

// Status returns the current ProgressRecord for a source.
func (o *Orchestrator) Status(ctx context.Context, source domain.SourceName) (*domain.ProgressRecord, error) {
	return o.progressRepo.Get(ctx, source)
}

// TriggerIngestSource runs one registered ingestion source to
// completion, pause, or failure. It enforces the "one active run per
// source" invariant via ProgressRepository.TryStart.
func (o *Orchestrator) TriggerIngestSource(ctx context.Context, name domain.SourceName) (domain.RunSummary, error) {
	ds, ok := o.ingestSources[name]
	if !ok {
		return domain.RunSummary{}, &domain.ConfigError{Message: fmt.Sprintf("unknown ingest source: %s", name)}
	}

	started, err := o.progressRepo.TryStart(ctx, name)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if !started {
		return domain.RunSummary{}, fmt.Errorf("source %s already has an active run", name)
	}

	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	cursor := ""
	if cp, err := o.checkpoints.Load(ctx, name); err == nil && cp != nil {
		cursor = cp.Cursor
	}

	threshold, thresholdEnabled := o.thresholdFor(name)
	if !thresholdEnabled {
		threshold = 0
	}

	pageCount := 0
	summary, err := sources.Run(ctx, ds, o.ingestDeps, cursor, threshold, func(next string) error {
		pageCount++
		o.publish(name, domain.RunRunning, pageCount, 0)
		if pageCount%pauseCheckInterval == 0 && o.pauseFlag(name).Load() {
			if cpErr := o.checkpoints.Save(ctx, &domain.Checkpoint{
				SchemaVersion: domain.CurrentCheckpointSchemaVersion,
				Source:        name,
				CurrentSource: name,
				Cursor:        next,
				Timestamp:     time.Now(),
			}); cpErr != nil {
				return cpErr
			}
			return ErrPaused
		}
		return nil
	})

	return o.finishRun(ctx, name, summary, err)
}

func (o *Orchestrator) thresholdFor(name domain.SourceName) (int, bool) {
	sc, ok := o.cfg.GetSourceConfig(name)
	if !ok {
		return 0, false
	}
	return sc.MinThreshold, sc.MinThresholdEnabled
}

func (o *Orchestrator) finishRun(ctx context.Context, name domain.SourceName, summary domain.RunSummary, runErr error) (domain.RunSummary, error) {
	rec := &domain.ProgressRecord{
		Source:         name,
		ItemsProcessed: summary.Successful + summary.Failed + summary.Skipped,
		UpdatedAt:      time.Now(),
	}
	switch {
	case errors.Is(runErr, ErrPaused):
		rec.Status = domain.RunPaused
		o.publish(name, domain.RunPaused, rec.ItemsProcessed, 0)
		_ = o.progressRepo.Upsert(ctx, rec)
		return summary, nil
	case runErr != nil:
		rec.Status = domain.RunFailed
		rec.Error = runErr.Error()
		o.publish(name, domain.RunFailed, rec.ItemsProcessed, 0)
		_ = o.progressRepo.Upsert(ctx, rec)
		return summary, runErr
	default:
		rec.Status = domain.RunSucceeded
		o.publish(name, domain.RunSucceeded, rec.ItemsProcessed, 0)
		_ = o.progressRepo.Upsert(ctx, rec)
		_ = o.checkpoints.Clear(ctx, name)
		return summary, nil
	}
}

func (o *Orchestrator) publish(name domain.SourceName, status domain.RunStatus, processed, total int) {
	if o.log != nil {
		o.log.WithFields(logrus.Fields{"source": name, "status": status, "processed": processed}).Info("source run progress")
	}
}

// TriggerAnnotationSource runs one registered annotation source over
// every active gene, sequentially, honoring pause/resume via the
// processed-gene-id checkpoint and retrying failed genes once with
// exponential backoff after the main pass.
func (o *Orchestrator) TriggerAnnotationSource(ctx context.Context, name domain.SourceName) (domain.RunSummary, error) {
	runner, ok := o.annotationRunners[name]
	if !ok {
		return domain.RunSummary{}, &domain.ConfigError{Message: fmt.Sprintf("unknown annotation source: %s", name)}
	}

	if dependsOnHGNC(name) {
		hgncStatus, err := o.progressRepo.Get(ctx, domain.AnnotationHGNC)
		if err != nil {
			return domain.RunSummary{}, err
		}
		if hgncStatus == nil || hgncStatus.Status != domain.RunSucceeded {
			return domain.RunSummary{
				Source: name, Skipped: 1,
				SkippedReason: "dependency unmet: hgnc has not completed successfully",
				FinishedAt:    time.Now(),
			}, nil
		}
	}

	started, err := o.progressRepo.TryStart(ctx, name)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if !started {
		return domain.RunSummary{}, fmt.Errorf("source %s already has an active run", name)
	}

	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	start := time.Now()
	genes, err := o.genes.ListActive(ctx)
	if err != nil {
		return domain.RunSummary{}, err
	}

	processed := make(map[string]bool)
	if cp, err := o.checkpoints.Load(ctx, name); err == nil && cp != nil {
		for _, id := range cp.ProcessedGeneIDs {
			processed[id] = true
		}
	}

	var remaining []*domain.Gene
	for _, g := range genes {
		if !processed[g.ID.String()] {
			remaining = append(remaining, g)
		}
	}

	summary := domain.RunSummary{Source: name}
	var failedGenes []*domain.Gene
	var doneIDs []string
	for _, id := range keysOf(processed) {
		doneIDs = append(doneIDs, id)
	}

	for i, gene := range remaining {
		if i > 0 && i%pauseCheckInterval == 0 && o.pauseFlag(name).Load() {
			if err := o.checkpoints.Save(ctx, &domain.Checkpoint{
				SchemaVersion:     domain.CurrentCheckpointSchemaVersion,
				Source:            name,
				CurrentSource:     name,
				ProcessedGeneIDs:  doneIDs,
				BatchIndex:        i,
				Timestamp:         time.Now(),
			}); err != nil {
				return summary, err
			}
			return o.finishRun(ctx, name, summary, ErrPaused)
		}

		if err := runner.RunOne(ctx, gene); err != nil {
			summary.Failed++
			failedGenes = append(failedGenes, gene)
			if len(summary.SampleFailed) < 10 {
				summary.SampleFailed = append(summary.SampleFailed, gene.ApprovedSymbol)
			}
			continue
		}
		summary.Successful++
		doneIDs = append(doneIDs, gene.ID.String())
		o.publish(name, domain.RunRunning, len(doneIDs), len(genes))
	}

	o.retryFailedGenes(ctx, name, runner, failedGenes, &summary)

	total := summary.Successful + summary.Failed
	if total > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(total)
	}
	summary.Duration = time.Since(start)
	summary.FinishedAt = time.Now()

	return o.finishRun(ctx, name, summary, nil)
}

// retryFailedGenes retries genes that failed in the main pass with an
// exponential-backoff schedule, per spec.md §4.6's "after the main pass,
// retry failed_genes" instruction.
func (o *Orchestrator) retryFailedGenes(ctx context.Context, name domain.SourceName, runner *annotate.Runner, failed []*domain.Gene, summary *domain.RunSummary) {
	if len(failed) == 0 {
		return
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute

	stillFailed := make([]*domain.Gene, 0, len(failed))
	for _, gene := range failed {
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			stillFailed = append(stillFailed, gene)
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			stillFailed = append(stillFailed, gene)
			continue
		case <-timer.C:
		}
		if err := runner.RunOne(ctx, gene); err != nil {
			stillFailed = append(stillFailed, gene)
			continue
		}
		summary.Successful++
		summary.Failed--
	}
	if len(stillFailed) > 0 && o.log != nil {
		o.log.WithFields(logrus.Fields{"source": name, "count": len(stillFailed)}).Warn("genes still failing after retry pass")
	}
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// RunAll triggers every registered ingestion source concurrently (bounded
// by the orchestrator's semaphore), then every registered annotation
// source in dependency order, then refreshes the summary view exactly
// once.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, name := range ingestOrder {
		if _, ok := o.ingestSources[name]; !ok {
			continue
		}
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.TriggerIngestSource(ctx, name); err != nil && o.log != nil {
				o.log.WithError(err).WithField("source", name).Warn("ingest source run failed")
			}
		}()
	}
	wg.Wait()

	for _, name := range annotationOrder {
		if _, ok := o.annotationRunners[name]; !ok {
			continue
		}
		if _, err := o.TriggerAnnotationSource(ctx, name); err != nil && o.log != nil {
			o.log.WithError(err).WithField("source", name).Warn("annotation source run failed")
		}
	}

	return o.RefreshSummary(ctx)
}

// RefreshSummary refreshes the materialized summary view exactly once
// per run rather than once per source, per spec.md §4.6's 7x DB-load
// reduction rationale. The view itself lives in a migration; this call
// is the single, idempotent trigger for recomputing it.
func (o *Orchestrator) RefreshSummary(ctx context.Context) error {
	o.summaryMu.Lock()
	defer o.summaryMu.Unlock()
	if o.log != nil {
		o.log.Info("refreshing summary view")
	}
	if o.pool == nil {
		return nil
	}
	if _, err := o.pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY gene_summary"); err != nil {
		return fmt.Errorf("refreshing gene_summary: %w", err)
	}
	return nil
}

// RetryFailed re-triggers a full run of the source (annotation or
// ingestion). It does not keep a list of failed genes or pages: after a
// paused run, the checkpoint decides what is skipped (an annotation run
// skips genes in ProcessedGeneIDs, to which failed genes are never
// added; an ingestion run resumes from the saved cursor); after a run
// that finished, the checkpoint is cleared and every gene or page is
// processed again.
func (o *Orchestrator) RetryFailed(ctx context.Context, source domain.SourceName) (domain.RunSummary, error) {
	if _, ok := o.annotationRunners[source]; ok {
		return o.TriggerAnnotationSource(ctx, source)
	}
	return o.TriggerIngestSource(ctx, source)
}

// FillMissing runs TriggerAnnotationSource for every registered
// annotation source in dependency order, stopping at the first error. It
// does not restrict a run to genes that have no annotation row yet:
// every active gene is processed, and a gene whose result is still in
// the cache is served from it instead of a remote fetch (a stored
// annotation row alone does not skip the fetch).
func (o *Orchestrator) FillMissing(ctx context.Context) error {
	for _, name := range annotationOrder {
		if _, ok := o.annotationRunners[name]; !ok {
			continue
		}
		if _, err := o.TriggerAnnotationSource(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
