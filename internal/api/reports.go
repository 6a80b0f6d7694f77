package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/report"
)

type pdfRequest struct {
	Job job.Record `json:"job"`
	report.Bundle
}

func handleGeneratePDF(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pdfRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		renderPDF(w, deps, req.Job, req.Bundle)
	}
}

// handleGenerateReport generates every report narrative concurrently and
// renders them with the job. Failed narratives appear as their placeholders.
func handleGenerateReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		texts := deps.Narratives.GenerateBundle(r.Context(), req.Job, narrative.ReportKinds...)
		renderPDF(w, deps, req.Job, report.Bundle{
			Summary:         texts[narrative.KindSummary],
			PsychroAnalysis: texts[narrative.KindPsychrometrics],
			Scope:           texts[narrative.KindScope],
			HazardPlan:      texts[narrative.KindHazard],
		})
	}
}

func renderPDF(w http.ResponseWriter, deps Deps, rec job.Record, b report.Bundle) {
	data, err := deps.Renderer.Render(rec, b)
	if err != nil {
		cause := errors.Unwrap(err)
		if cause == nil {
			cause = err
		}
		deps.Logger.Error("pdf render failed", "job_number", rec.JobDetails.JobNumber.String(), "error", cause)
		httpError(w, http.StatusInternalServerError, "render_error", "PDF generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(rec.JobDetails.JobNumber.String())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
