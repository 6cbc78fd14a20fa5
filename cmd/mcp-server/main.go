// Command mcp-server exposes the ingestion core's orchestrator as a set
// of MCP tools over stdio, for LLM-driven operation alongside (or
// instead of) the HTTP admin surface in cmd/server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/bootstrap"
	"github.com/kidney-genetics/ingestion-core/internal/config"
	"github.com/kidney-genetics/ingestion-core/internal/mcp"
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
	log.Info("starting kidney-genetics ingestion core MCP server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, configManager, log)
	if err != nil {
		log.WithError(err).Fatal("failed to wire application")
	}
	defer app.Close()

	mcpServer := mcp.NewServer(app.Orchestrator, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, gracefully shutting down MCP server")
		cancel()
	}()

	if err := mcpServer.Start(ctx); err != nil {
		log.WithError(err).Fatal("MCP server failed")
	}
	log.Info("MCP server stopped")
}
