package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
)

type jobRequest struct {
	Job job.Record `json:"job"`
}

type psychrometricsRequest struct {
	Readings []job.PsychroReading `json:"readings"`
}

type roomPhotoRequest struct {
	PhotoData string            `json:"photoData"`
	RoomName  job.Text          `json:"roomName"`
	Checklist job.RoomChecklist `json:"checklist"`
}

func handleJobNarrative(deps Deps, kind narrative.Kind, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		text, err := deps.Narratives.Generate(r.Context(), kind, req.Job)
		if err != nil {
			narrativeError(w, r, deps.Logger, kind, field, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{field: text})
	}
}

func handlePsychrometrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req psychrometricsRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		text, err := deps.Narratives.AnalyzePsychrometrics(r.Context(), req.Readings)
		if err != nil {
			narrativeError(w, r, deps.Logger, narrative.KindPsychrometrics, "analysis", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"analysis": text})
	}
}

func handleRoomPhoto(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomPhotoRequest
		if !decodeBody(w, r, maxPhotoBodySize, &req) {
			return
		}

		text, err := deps.Narratives.DescribePhoto(r.Context(), narrative.PhotoInput{
			DataURI:   req.PhotoData,
			RoomName:  req.RoomName.String(),
			Checklist: req.Checklist.Labels(),
		})
		if err != nil {
			narrativeError(w, r, deps.Logger, narrative.KindPhoto, "description", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"description": text})
	}
}

// narrativeError maps a dispatcher error to a response that still carries the
// kind's placeholder under field. The cause is logged, never returned.
func narrativeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, kind narrative.Kind, field string, err error) {
	if errors.Is(err, narrative.ErrInvalidPhoto) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "photoData must be a base64 image data URI")
		return
	}

	code, errType, msg := http.StatusBadGateway, "upstream_error", "narrative generation failed"
	var cfgErr *narrative.ConfigurationError
	if errors.As(err, &cfgErr) {
		code, errType, msg = http.StatusServiceUnavailable, "configuration_error", "narrative generation is not configured"
	}

	logger.LogAttrs(r.Context(), slog.LevelWarn, "narrative generation failed",
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	writeJSON(w, code, map[string]any{
		field:   kind.Placeholder(),
		"error": errorBody(errType, "%s", msg),
	})
}
