// Command server wires the ingestion core's components together and
// exposes the admin HTTP surface: trigger/pause/resume/status/retry for
// every ingestion and annotation source.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/api"
	"github.com/kidney-genetics/ingestion-core/internal/bootstrap"
	"github.com/kidney-genetics/ingestion-core/internal/config"
)

func main() {
	log := logrus.New()

	configManager, err := config.NewManager(log)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := configManager.Validate(); err != nil {
		log.WithError(err).Fatal("configuration validation failed")
	}
	cfg := configManager.GetConfig()
	log.WithFields(logrus.Fields{"host": cfg.Server.Host, "port": cfg.Server.Port}).
		Info("starting kidney-genetics ingestion core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, configManager, log)
	if err != nil {
		log.WithError(err).Fatal("failed to wire application")
	}
	defer app.Close()

	server := api.NewServer(configManager, app.Orchestrator, app.Tracker, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("server stopped")
}
