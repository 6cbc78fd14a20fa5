// Package bootstrap builds a fully wired Orchestrator from config: the
// database pool, cache service, repositories, normalizer, and every
// ingestion/annotation source client. Both cmd/server (HTTP admin
// surface) and cmd/mcp-server (MCP tool surface) share this wiring so
// the two front ends never drift on how a source is constructed.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/annotate"
	"github.com/kidney-genetics/ingestion-core/internal/cache"
	"github.com/kidney-genetics/ingestion-core/internal/database"
	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/normalizer"
	"github.com/kidney-genetics/ingestion-core/internal/orchestrator"
	"github.com/kidney-genetics/ingestion-core/internal/progress"
	"github.com/kidney-genetics/ingestion-core/internal/repository"
	"github.com/kidney-genetics/ingestion-core/internal/sources"
	"github.com/kidney-genetics/ingestion-core/internal/sources/gencc"
	"github.com/kidney-genetics/ingestion-core/internal/sources/panelapp"
	"github.com/kidney-genetics/ingestion-core/internal/sources/pubtator"
	"github.com/kidney-genetics/ingestion-core/pkg/external"
	"github.com/kidney-genetics/ingestion-core/pkg/ratelimit"
)

// App bundles everything a front end (HTTP or MCP) needs to run.
type App struct {
	ConfigManager domain.ConfigManager
	DB            *database.DB
	Tracker       *progress.Tracker
	Orchestrator  *orchestrator.Orchestrator
}

// Build connects to Postgres and Redis, constructs every repository and
// source client, and returns a ready-to-run Orchestrator.
func Build(ctx context.Context, configManager domain.ConfigManager, log *logrus.Logger) (*App, error) {
	cfg := configManager.GetConfig()

	db, err := database.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	cacheSvc, err := cache.NewService(cfg.Cache, log)
	if err != nil {
		db.Pool.Close()
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database,
		cfg.Database.Username, cfg.Database.Password, cfg.Database.SSLMode,
	)
	tracker, err := progress.NewTracker(connStr, log)
	if err != nil {
		db.Pool.Close()
		return nil, fmt.Errorf("starting progress tracker: %w", err)
	}

	geneRepo := repository.NewGeneRepository(db.Pool, log)
	evidenceRepo := repository.NewEvidenceRepository(db.Pool, log)
	annotationRepo := repository.NewAnnotationRepository(db.Pool, log)
	progressRepo := repository.NewProgressRepository(db.Pool, log)
	checkpointRepo := repository.NewCheckpointRepository(db.Pool, log)
	stagingRepo := repository.NewPostgresStagingStore(db.Pool, log)

	hgncCfg, _ := configManager.GetSourceConfig(domain.AnnotationHGNC)
	hgncClient := external.NewHGNCClient(hgncCfg, ratelimit.New(hgncCfg.RequestsPerSecond), log)
	geneNormalizer := normalizer.New(geneRepo, stagingRepo, hgncClient, cfg.Normalizer, log)

	orch := orchestrator.New(configManager, geneRepo, evidenceRepo, progressRepo, checkpointRepo, tracker, db.Pool,
		sources.Deps{
			Genes:      geneRepo,
			Evidence:   evidenceRepo,
			Staging:    stagingRepo,
			Normalizer: geneNormalizer,
			Log:        log,
		}, log)

	registerIngestSources(orch, configManager, log)
	registerAnnotationRunners(orch, configManager, cacheSvc, annotationRepo, geneRepo, hgncClient, log)

	return &App{ConfigManager: configManager, DB: db, Tracker: tracker, Orchestrator: orch}, nil
}

// Close releases the database pool and progress tracker.
func (a *App) Close() {
	a.Tracker.Close()
	a.DB.Pool.Close()
}

// registerIngestSources wires the network-fetched ingestion sources.
// diagnostic_panels and literature are operator-curated uploads with no
// standing network client; they are not registered here, and no admin
// route in internal/api or internal/mcp registers them either.
func registerIngestSources(orch *orchestrator.Orchestrator, cm domain.ConfigManager, log *logrus.Logger) {
	if sc, ok := cm.GetSourceConfig(domain.SourcePubTator); ok {
		client := external.NewPubTatorClient(sc, ratelimit.New(sc.RequestsPerSecond), log)
		orch.RegisterIngestSource(domain.SourcePubTator, pubtator.New(client))
	}
	if sc, ok := cm.GetSourceConfig(domain.SourceGenCC); ok {
		client := external.NewGenCCClient(sc, ratelimit.New(sc.RequestsPerSecond), log)
		orch.RegisterIngestSource(domain.SourceGenCC, gencc.New(client))
	}
	if sc, ok := cm.GetSourceConfig(domain.SourcePanelApp); ok {
		client := external.NewPanelAppClient(sc, ratelimit.New(sc.RequestsPerSecond), log)
		orch.RegisterIngestSource(domain.SourcePanelApp, panelapp.New(client))
	}
}

// registerAnnotationRunners wires every annotation source client into a
// Runner. HGNC's client doubles as a GeneUpdater so later runners in
// orchestrator's dependency order observe the Ensembl/NCBI IDs it fills in.
func registerAnnotationRunners(orch *orchestrator.Orchestrator, cm domain.ConfigManager, cacheSvc *cache.Service,
	annotationRepo domain.AnnotationRepository, geneRepo domain.GeneRepository, hgncClient *external.HGNCClient, log *logrus.Logger) {

	register := func(name domain.SourceName, source annotate.Source) {
		sc, ok := cm.GetSourceConfig(name)
		if !ok {
			log.WithField("source", name).Warn("no configuration for annotation source, skipping")
			return
		}
		orch.RegisterAnnotationRunner(name, annotate.NewRunner(name, source, sc, cacheSvc, annotationRepo, geneRepo, log))
	}

	register(domain.AnnotationHGNC, hgncClient)

	if sc, ok := cm.GetSourceConfig(domain.AnnotationGnomAD); ok {
		register(domain.AnnotationGnomAD, external.NewGnomADClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationClinVar); ok {
		register(domain.AnnotationClinVar, external.NewClinVarClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationHPO); ok {
		register(domain.AnnotationHPO, external.NewHPOClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationMGI); ok {
		register(domain.AnnotationMGI, external.NewMGIClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationSTRING); ok {
		register(domain.AnnotationSTRING, external.NewSTRINGClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationGTEx); ok {
		register(domain.AnnotationGTEx, external.NewGTExClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
	if sc, ok := cm.GetSourceConfig(domain.AnnotationDescartes); ok {
		register(domain.AnnotationDescartes, external.NewDescartesClient(sc, ratelimit.New(sc.RequestsPerSecond), log))
	}
}
