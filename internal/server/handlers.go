package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/export"
	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/pipeline"
	"github.com/sells-group/icp-analyzer/internal/report"
	"github.com/sells-group/icp-analyzer/internal/store"
)

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) error { return &apiError{status: http.StatusBadRequest, msg: msg} }

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain errors onto HTTP status codes so handlers can
// return errors directly.
func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var ae *apiError
		status := http.StatusInternalServerError
		switch {
		case errors.As(err, &ae):
			status = ae.status
		case eris.Is(err, model.ErrValidation),
			eris.Is(err, export.ErrUnknownPlatform):
			status = http.StatusBadRequest
		case eris.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		case eris.Is(err, pipeline.ErrNotRunning):
			status = http.StatusConflict
		}

		if status == http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid json body: " + err.Error())
	}
	return nil
}

// POST /api/analyze
// Runs synchronously by default; ?async=true answers 202 immediately
// and the job settles in the background.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) error {
	var req model.AnalysisRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	job, err := s.orch.Submit(r.Context(), req)
	if err != nil {
		return err
	}

	if r.URL.Query().Get("async") == "true" {
		s.orch.Start(job)
		writeJSON(w, http.StatusAccepted, job)
		return nil
	}

	settled, err := s.orch.Run(r.Context(), job)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, settled)
	return nil
}

// GET /api/jobs?state=&limit=&offset=
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	jobs, err := s.store.ListJobs(r.Context(), store.JobFilter{
		State:  model.JobState(q.Get("state")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

// GET /api/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) error {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, job)
	return nil
}

// POST /api/jobs/{id}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.orch.Cancel(r.Context(), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
	return nil
}

// GET /api/jobs/{id}/deliveries
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetJob(r.Context(), id); err != nil {
		return err
	}
	recs, err := s.store.ListDeliveries(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": recs})
	return nil
}

// POST /api/report
// Body: {"job_id": "...", "format": "excel", "sections": [...], "branding": {...}}
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) error {
	if s.reports == nil {
		return &apiError{status: http.StatusServiceUnavailable, msg: "report generation not configured"}
	}

	var body struct {
		JobID string `json:"job_id"`
		report.Options
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.JobID == "" {
		return badRequest("job_id is required")
	}
	if !body.Format.Valid() {
		return badRequest("unknown format " + strconv.Quote(string(body.Format)))
	}

	job, err := s.store.GetJob(r.Context(), body.JobID)
	if err != nil {
		return err
	}
	if !job.State.Terminal() {
		return badRequest("job " + job.ID + " has not settled yet")
	}

	ref, err := s.reports.Generate(r.Context(), job, body.Options)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, ref)
	return nil
}

// POST /api/webhook
// Body: {"url": "...", "secret": "..."}
func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.URL == "" || body.Secret == "" {
		return badRequest("url and secret are required")
	}
	if _, err := model.NormalizeURL(body.URL); err != nil {
		return badRequest("invalid webhook url: " + err.Error())
	}

	reg, err := s.store.RegisterWebhook(r.Context(), body.URL, body.Secret)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, reg)
	return nil
}

// POST /api/export
// Body: {"job_id": "...", "platform": "salesforce"}
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) error {
	if s.exports == nil {
		return &apiError{status: http.StatusServiceUnavailable, msg: "no export platforms configured"}
	}

	var body struct {
		JobID    string `json:"job_id"`
		Platform string `json:"platform"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.JobID == "" || body.Platform == "" {
		return badRequest("job_id and platform are required")
	}

	exporter, err := s.exports.Get(body.Platform)
	if err != nil {
		return err
	}
	job, err := s.store.GetJob(r.Context(), body.JobID)
	if err != nil {
		return err
	}

	conf, err := exporter.Export(r.Context(), job)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, conf)
	return nil
}
