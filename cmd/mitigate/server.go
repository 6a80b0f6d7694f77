package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/mitigate/internal/api"
	"github.com/kalambet/mitigate/internal/config"
	"github.com/kalambet/mitigate/internal/llm"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/report"
	"github.com/kalambet/mitigate/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runServer(port)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

// newLogger builds the process logger from the log.* config keys.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newDispatcher(cfg config.Config, logger *slog.Logger) *narrative.Dispatcher {
	client := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Timeout)
	return narrative.New(client, narrative.Options{
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})
}

func runServer(portOverride int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if portOverride > 0 {
		cfg.Server.Port = portOverride
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting mitigate", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	dispatcher := newDispatcher(cfg, logger)
	if !dispatcher.Configured() {
		logger.Warn("OpenAI API key not set; narrative routes will answer with configuration errors")
	}
	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token not set; /api/jobs is open to any caller")
	}

	handler := api.NewHandler(api.Deps{
		Narratives:  dispatcher,
		Renderer:    report.New(report.Options{Title: cfg.Report.Title}),
		Store:       store,
		Token:       cfg.Server.APIToken,
		CORSOrigins: api.SplitOrigins(cfg.Server.CORSOrigins),
		Logger:      logger,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol; logs go to stderr only.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      store,
		Narratives: newDispatcher(cfg, logger),
		Version:    version,
		Logger:     logger,
	})
	logger.Info("MCP server started (stdio transport)")

	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := &apiClient{
		baseURL:    localServerURL(cfg.Server),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	running := checkHealth(ctx, client)
	if running {
		printStatus("Server", "running at %s", client.baseURL)
	} else {
		printStatus("Server", "stopped")
	}

	if cfg.LLM.APIKey != "" {
		printStatus("OpenAI key", "configured")
		lc := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, 5*time.Second)
		available := modelStatus(ctx, lc, cfg.LLM.Model, cfg.LLM.VisionModel)
		printStatus("Model", "%s", available[cfg.LLM.Model])
		printStatus("Vision model", "%s", available[cfg.LLM.VisionModel])
	} else {
		printStatus("OpenAI key", "%s", colorize(colorYellow, "not set (narratives disabled)"))
		printStatus("Model", "%s", cfg.LLM.Model)
		printStatus("Vision model", "%s", cfg.LLM.VisionModel)
	}
	printStatus("Timeout", "%s", cfg.LLM.Timeout)

	if running {
		if n, err := countJobs(ctx, client); err == nil {
			printStatus("Saved jobs", "%s", countLabel(n, storage.MaxListLimit))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// modelStatus labels each wanted model with whether the upstream lists it.
func modelStatus(ctx context.Context, c *llm.Client, want ...string) map[string]string {
	out := make(map[string]string, len(want))
	models, err := c.ListModels(ctx)
	if err != nil {
		for _, m := range want {
			out[m] = m + " " + colorize(colorYellow, "(could not list models: "+err.Error()+")")
		}
		return out
	}

	listed := make(map[string]bool, len(models))
	for _, m := range models {
		listed[m.ID] = true
	}
	for _, m := range want {
		if listed[m] {
			out[m] = m + " " + colorize(colorGreen, "(available)")
		} else {
			out[m] = m + " " + colorize(colorRed, "(not listed for this key)")
		}
	}
	return out
}

func checkHealth(ctx context.Context, c *apiClient) bool {
	resp, err := c.get(ctx, "/api/health")
	if err != nil {
		return false
	}
	var body map[string]string
	if err := decodeJSON(resp, &body); err != nil {
		return false
	}
	return body["status"] == "ok"
}

func countJobs(ctx context.Context, c *apiClient) (int, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/jobs?limit=%d", storage.MaxListLimit))
	if err != nil {
		return 0, err
	}
	var jobs []storage.JobSummary
	if err := decodeJSON(resp, &jobs); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
