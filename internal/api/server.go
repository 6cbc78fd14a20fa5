// Package api exposes the admin HTTP surface: trigger/pause/resume/status
// and retry operations over every registered ingestion and annotation
// source, plus a websocket progress stream. This is never the public
// read API for gene-evidence data, which is out of scope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/middleware"
	"github.com/kidney-genetics/ingestion-core/internal/orchestrator"
	"github.com/kidney-genetics/ingestion-core/internal/progress"
)

// Server is the admin HTTP surface.
type Server struct {
	configManager domain.ConfigManager
	orchestrator  *orchestrator.Orchestrator
	tracker       *progress.Tracker
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer builds the admin HTTP surface around an already-wired
// Orchestrator.
func NewServer(configManager domain.ConfigManager, orch *orchestrator.Orchestrator, tracker *progress.Tracker, log *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.RequestTimeout(30 * time.Second))

	s := &Server{
		configManager: configManager,
		orchestrator:  orch,
		tracker:       tracker,
		log:           log,
		router:        router,
	}
	s.setupRoutes()
	return s
}

// Start runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetConfig().Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/progress/stream", s.handleProgressStream)

	admin := s.router.Group("/admin/v1/sources/:source")
	{
		admin.POST("/trigger", s.handleTrigger)
		admin.POST("/pause", s.handlePause)
		admin.POST("/resume", s.handleResume)
		admin.GET("/status", s.handleStatus)
		admin.POST("/retry-failed", s.handleRetryFailed)
	}

	pipeline := s.router.Group("/admin/v1/pipeline")
	{
		pipeline.POST("/run-all", s.handleRunAll)
		pipeline.POST("/fill-missing", s.handleFillMissing)
		pipeline.POST("/refresh-summary", s.handleRefreshSummary)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// isAnnotationSource distinguishes which of Orchestrator's two Trigger
// methods a source name routes to; the registry itself has no
// reflective name lookup, so the HTTP layer enumerates the same fixed set.
func isAnnotationSource(name domain.SourceName) bool {
	switch name {
	case domain.AnnotationHGNC, domain.AnnotationGnomAD, domain.AnnotationClinVar, domain.AnnotationHPO,
		domain.AnnotationMGI, domain.AnnotationSTRING, domain.AnnotationGTEx, domain.AnnotationDescartes:
		return true
	default:
		return false
	}
}

func (s *Server) handleTrigger(c *gin.Context) {
	name := domain.SourceName(c.Param("source"))

	var summary domain.RunSummary
	var err error
	if isAnnotationSource(name) {
		summary, err = s.orchestrator.TriggerAnnotationSource(c.Request.Context(), name)
	} else {
		summary, err = s.orchestrator.TriggerIngestSource(c.Request.Context(), name)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handlePause(c *gin.Context) {
	s.orchestrator.Pause(domain.SourceName(c.Param("source")))
	c.JSON(http.StatusAccepted, gin.H{"status": "pause requested"})
}

func (s *Server) handleResume(c *gin.Context) {
	s.orchestrator.Resume(domain.SourceName(c.Param("source")))
	c.JSON(http.StatusAccepted, gin.H{"status": "resumed"})
}

func (s *Server) handleStatus(c *gin.Context) {
	name := domain.SourceName(c.Param("source"))
	record, err := s.orchestrator.Status(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded for source"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleRetryFailed(c *gin.Context) {
	name := domain.SourceName(c.Param("source"))
	summary, err := s.orchestrator.RetryFailed(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRunAll(c *gin.Context) {
	if err := s.orchestrator.RunAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "run complete"})
}

func (s *Server) handleFillMissing(c *gin.Context) {
	if err := s.orchestrator.FillMissing(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "fill-missing complete"})
}

func (s *Server) handleRefreshSummary(c *gin.Context) {
	if err := s.orchestrator.RefreshSummary(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "summary refreshed"})
}
