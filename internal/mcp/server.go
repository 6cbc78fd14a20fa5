// Package mcp exposes the orchestrator's admin operations (trigger,
// pause, resume, status, retry-failed, fill-missing, refresh-summary) as
// MCP tools, so an LLM-driven operator can drive a source run the same
// way the HTTP admin surface in internal/api does.
package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
	"github.com/kidney-genetics/ingestion-core/internal/orchestrator"
)

// Server wraps the MCP SDK server around an Orchestrator.
type Server struct {
	sdkServer *sdk.Server
	orch      *orchestrator.Orchestrator
	log       *logrus.Logger
}

// NewServer builds an MCP server exposing orchestrator operations.
func NewServer(orch *orchestrator.Orchestrator, log *logrus.Logger) *Server {
	impl := &sdk.Implementation{Name: "kidney-genetics-ingestion-core", Version: "v0.1.0"}
	sdkServer := sdk.NewServer(impl, nil)

	s := &Server{sdkServer: sdkServer, orch: orch, log: log}
	s.registerTools()
	return s
}

// Start runs the MCP server over stdio until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("starting MCP server over stdio")
	return s.sdkServer.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) registerTools() {
	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "trigger_source",
		Description: "Trigger a run of an ingestion or annotation source by name",
	}, s.handleTrigger)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "pause_source",
		Description: "Request that an in-progress source run pause at its next checkpoint",
	}, s.handlePause)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "resume_source",
		Description: "Clear a source's pause flag so its next trigger resumes from checkpoint",
	}, s.handleResume)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "source_status",
		Description: "Return the last recorded progress for a source",
	}, s.handleStatus)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "retry_failed",
		Description: "Re-trigger a full run of a source; only work recorded in a paused run's checkpoint is skipped, not just the genes or pages that failed",
	}, s.handleRetryFailed)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "fill_missing",
		Description: "Re-run every annotation source in dependency order over all active genes (not only genes missing an annotation)",
	}, s.handleFillMissing)

	sdk.AddTool(s.sdkServer, &sdk.Tool{
		Name:        "refresh_summary",
		Description: "Refresh the gene-evidence summary projection",
	}, s.handleRefreshSummary)
}

// SourceParams identifies the source a tool call targets.
type SourceParams struct {
	Source string `json:"source"`
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func errorResult(err error) *sdk.CallToolResult {
	return &sdk.CallToolResult{IsError: true, Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}}}
}

func isAnnotationSource(name domain.SourceName) bool {
	switch name {
	case domain.AnnotationHGNC, domain.AnnotationGnomAD, domain.AnnotationClinVar, domain.AnnotationHPO,
		domain.AnnotationMGI, domain.AnnotationSTRING, domain.AnnotationGTEx, domain.AnnotationDescartes:
		return true
	default:
		return false
	}
}

func (s *Server) handleTrigger(ctx context.Context, req *sdk.CallToolRequest, params SourceParams) (*sdk.CallToolResult, any, error) {
	name := domain.SourceName(params.Source)
	var summary domain.RunSummary
	var err error
	if isAnnotationSource(name) {
		summary, err = s.orch.TriggerAnnotationSource(ctx, name)
	} else {
		summary, err = s.orch.TriggerIngestSource(ctx, name)
	}
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped (%.1f%% success)",
		summary.Source, summary.Successful, summary.Failed, summary.Skipped, summary.SuccessRate*100)), summary, nil
}

func (s *Server) handlePause(ctx context.Context, req *sdk.CallToolRequest, params SourceParams) (*sdk.CallToolResult, any, error) {
	s.orch.Pause(domain.SourceName(params.Source))
	return textResult(fmt.Sprintf("pause requested for %s", params.Source)), nil, nil
}

func (s *Server) handleResume(ctx context.Context, req *sdk.CallToolRequest, params SourceParams) (*sdk.CallToolResult, any, error) {
	s.orch.Resume(domain.SourceName(params.Source))
	return textResult(fmt.Sprintf("%s resumed", params.Source)), nil, nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, params SourceParams) (*sdk.CallToolResult, any, error) {
	record, err := s.orch.Status(ctx, domain.SourceName(params.Source))
	if err != nil {
		return errorResult(err), nil, nil
	}
	if record == nil {
		return textResult(fmt.Sprintf("no run recorded for %s", params.Source)), nil, nil
	}
	return textResult(fmt.Sprintf("%s: status=%s processed=%d/%d", record.Source, record.Status,
		record.ItemsProcessed, record.ItemsTotal)), record, nil
}

func (s *Server) handleRetryFailed(ctx context.Context, req *sdk.CallToolRequest, params SourceParams) (*sdk.CallToolResult, any, error) {
	summary, err := s.orch.RetryFailed(ctx, domain.SourceName(params.Source))
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("%s retry: %d succeeded, %d still failed", summary.Source, summary.Successful, summary.Failed)), summary, nil
}

// EmptyParams is used by tools that take no arguments.
type EmptyParams struct{}

func (s *Server) handleFillMissing(ctx context.Context, req *sdk.CallToolRequest, params EmptyParams) (*sdk.CallToolResult, any, error) {
	if err := s.orch.FillMissing(ctx); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult("fill-missing complete"), nil, nil
}

func (s *Server) handleRefreshSummary(ctx context.Context, req *sdk.CallToolRequest, params EmptyParams) (*sdk.CallToolResult, any, error) {
	if err := s.orch.RefreshSummary(ctx); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult("summary refreshed"), nil, nil
}
