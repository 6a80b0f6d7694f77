package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/storage"
)

type saveJobRequest struct {
	Name string      `json:"name"`
	Job  *job.Record `json:"job"`
}

type saveJobResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func handleSaveJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveJobRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if req.Job == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "job is required")
			return
		}

		snap, err := deps.Store.SaveJob(req.Name, *req.Job)
		if err != nil {
			deps.Logger.Error("saving job failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save job")
			return
		}
		writeJSON(w, http.StatusCreated, saveJobResponse{ID: snap.ID, Name: snap.Name, CreatedAt: snap.CreatedAt})
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intParam(w, r, "limit", storage.DefaultListLimit)
		if !ok {
			return
		}
		offset, ok := intParam(w, r, "offset", 0)
		if !ok {
			return
		}

		jobs, err := deps.Store.ListJobs(storage.ListOptions{
			Query:  r.URL.Query().Get("q"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			deps.Logger.Error("listing jobs failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs")
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Store.LoadJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			deps.Logger.Error("loading job failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleDeleteJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			deps.Logger.Error("deleting job failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete job")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// intParam reads a non-negative integer query parameter, writing a 400 when
// it is malformed.
func intParam(w http.ResponseWriter, r *http.Request, key string, defaultVal int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be a non-negative integer", key)
		return 0, false
	}
	return v, true
}
