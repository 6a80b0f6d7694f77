// Package api exposes the narrative, report and saved-job operations over
// HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/report"
	"github.com/kalambet/mitigate/internal/storage"
)

const (
	maxRequestBodySize = 2 << 20  // 2MB
	maxPhotoBodySize   = 10 << 20 // 10MB

	serviceName = "mitigation-ai-server"
)

// Renderer turns a job and its narratives into PDF bytes. Failures are
// *report.RenderError values.
type Renderer interface {
	Render(rec job.Record, b report.Bundle) ([]byte, error)
}

// Deps holds the collaborators of the HTTP handler. Store is optional: without
// it the /api/jobs routes are not mounted.
type Deps struct {
	Narratives  *narrative.Dispatcher
	Renderer    Renderer
	Store       *storage.Store
	Token       string
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewHandler returns the HTTP handler serving every /api route.
func NewHandler(deps Deps) http.Handler {
	if deps.Narratives == nil {
		deps.Narratives = narrative.New(nil, narrative.Options{})
	}
	if deps.Renderer == nil {
		deps.Renderer = report.New(report.Options{})
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)

		r.Post("/generate-summary", handleJobNarrative(deps, narrative.KindSummary, "summary"))
		r.Post("/analyze-psychrometrics", handlePsychrometrics(deps))
		r.Post("/generate-scope-only", handleJobNarrative(deps, narrative.KindScope, "scope"))
		r.Post("/generate-hazard-plan", handleJobNarrative(deps, narrative.KindHazard, "hazardPlan"))
		r.Post("/analyze-room-photo", handleRoomPhoto(deps))

		r.Post("/generate-pdf", handleGeneratePDF(deps))
		r.Post("/generate-report", handleGenerateReport(deps))

		if deps.Store != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(BearerAuth(deps.Token, deps.Logger))
				r.Post("/", handleSaveJob(deps))
				r.Get("/", handleListJobs(deps))
				r.Get("/{id}", handleGetJob(deps))
				r.Delete("/{id}", handleDeleteJob(deps))
			})
		}
	})

	return r
}

// SplitOrigins parses a comma-separated origin list.
func SplitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

// decodeBody reads a size-limited JSON body into v. On failure it writes the
// error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body exceeds %d bytes", tooLarge.Limit)
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func errorBody(errType, format string, args ...any) map[string]any {
	return map[string]any{
		"message": fmt.Sprintf(format, args...),
		"type":    errType,
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{"error": errorBody(errType, format, args...)})
}
