package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mitigate/internal/dossier"
	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/storage"
)

const recentJobsLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      *storage.Store // optional; save_job and list_jobs fail without it
	Narratives *narrative.Dispatcher
	Version    string
	Logger     *slog.Logger
}

func (d MCPDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewMCPServer creates an MCP server with the job tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Narratives == nil {
		deps.Narratives = narrative.New(nil, narrative.Options{})
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"mitigate",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mitigate: format water mitigation job records, draft report narratives, and keep saved job snapshots."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("format_job",
			mcp.WithDescription("Render a job record as the plain-text dossier used as narrative context."),
			mcp.WithString("job", mcp.Description("Job record as JSON"), mcp.Required()),
		),
		mcpFormatJob(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_narrative",
			mcp.WithDescription("Generate one report narrative (summary, psychrometrics, scope or hazard) for a job record."),
			mcp.WithString("kind", mcp.Description("Narrative kind: summary, psychrometrics, scope or hazard"), mcp.Required()),
			mcp.WithString("job", mcp.Description("Job record as JSON"), mcp.Required()),
		),
		mcpGenerateNarrative(deps),
	)

	s.AddTool(
		mcp.NewTool("save_job",
			mcp.WithDescription("Save a named snapshot of a job record."),
			mcp.WithString("job", mcp.Description("Job record as JSON"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Snapshot name (defaults to the job number or insured name)")),
		),
		mcpSaveJob(deps),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List saved job snapshots, newest first."),
			mcp.WithString("query", mcp.Description("Filter by snapshot name or job number")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListJobs(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://recent",
			"Recent Jobs",
			mcp.WithResourceDescription("The 10 most recently saved job snapshots"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentJobs(deps),
	)

	return s
}

func parseJobArg(req mcp.CallToolRequest) (job.Record, error) {
	raw, err := req.RequireString("job")
	if err != nil {
		return job.Record{}, errors.New("job is required")
	}
	var rec job.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return job.Record{}, fmt.Errorf("invalid job JSON: %v", err)
	}
	return rec, nil
}

func mcpFormatJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec, err := parseJobArg(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(dossier.Format(rec)), nil
	}
}

func mcpGenerateNarrative(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		kind, err := narrative.ParseKind(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if kind == narrative.KindPhoto {
			return mcpError("photo narratives need an image; use POST /api/analyze-room-photo"), nil
		}
		rec, err := parseJobArg(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		text, err := deps.Narratives.Generate(ctx, kind, rec)
		if err != nil {
			deps.logger().LogAttrs(ctx, slog.LevelWarn, "narrative generation failed",
				slog.String("tool", "generate_narrative"),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
			var cfgErr *narrative.ConfigurationError
			if errors.As(err, &cfgErr) {
				return mcpError(kind.Placeholder() + ": narrative generation is not configured"), nil
			}
			return mcpError(kind.Placeholder() + ": narrative generation failed"), nil
		}
		return mcpText(text), nil
	}
}

func mcpSaveJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Store == nil {
			return mcpError("job storage not available"), nil
		}
		rec, err := parseJobArg(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		snap, err := deps.Store.SaveJob(req.GetString("name", ""), rec)
		if err != nil {
			deps.logger().Error("saving job failed", "tool", "save_job", "error", err)
			return mcpError("failed to save job"), nil
		}
		return mcpText(fmt.Sprintf("Saved job %s (%s)", snap.ID, snap.Name)), nil
	}
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Store == nil {
			return mcpError("job storage not available"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		jobs, err := deps.Store.ListJobs(storage.ListOptions{
			Query: req.GetString("query", ""),
			Limit: limit,
		})
		if err != nil {
			deps.logger().Error("listing jobs failed", "tool", "list_jobs", "error", err)
			return mcpError("failed to list jobs"), nil
		}

		b, err := json.Marshal(jobs)
		if err != nil {
			deps.logger().Error("encoding job list failed", "tool", "list_jobs", "error", err)
			return mcpError("failed to list jobs"), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Store == nil {
			return nil, errors.New("job storage not available")
		}
		jobs, err := deps.Store.ListJobs(storage.ListOptions{Limit: recentJobsLimit})
		if err != nil {
			deps.logger().Error("listing recent jobs failed", "resource", req.Params.URI, "error", err)
			return nil, errors.New("failed to list recent jobs")
		}

		type recentJob struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			JobNumber string `json:"job_number,omitempty"`
			SavedAt   string `json:"saved_at"`
		}
		recent := make([]recentJob, len(jobs))
		for i, j := range jobs {
			recent[i] = recentJob{
				ID:        j.ID,
				Name:      j.Name,
				JobNumber: j.JobNumber,
				SavedAt:   j.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(recent)
		if err != nil {
			deps.logger().Error("encoding recent jobs failed", "resource", req.Params.URI, "error", err)
			return nil, errors.New("failed to list recent jobs")
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
