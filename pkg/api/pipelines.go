package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
	"github.com/rmax-ai/lambdanodes/pkg/store"
)

// handlePipelines serves GET (list) and POST (submit) on /api/pipelines.
func (s *Server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset, err := parsePage(r, 10)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
			return
		}
		recs, err := s.pipelines.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, recs)

	case http.MethodPost:
		s.savePipeline(w, r, "")

	default:
		methodNotAllowed(w)
	}
}

// handlePipeline serves /api/pipelines/count, /api/pipelines/validate,
// /api/pipelines/{id} and /api/pipelines/{id}/reconcile.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r.URL.Path, "/api/pipelines/")

	switch {
	case id == "count" && action == "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		n, err := s.pipelines.Count(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, CountResponse{Count: n})

	case id == "validate" && action == "":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.validatePipeline(w, r)

	case id != "" && action == "reconcile":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.reconcilePipeline(w, r, id)

	case id != "" && action == "":
		switch r.Method {
		case http.MethodGet:
			rec, err := s.pipelines.Get(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if rec == nil {
				writeErrorCode(w, r, http.StatusNotFound, "not_found", "pipeline "+id)
				return
			}
			writeJSON(w, r, http.StatusOK, rec)
		case http.MethodPut:
			s.savePipeline(w, r, id)
		case http.MethodDelete:
			if err := s.pipelines.Delete(r.Context(), id); err != nil {
				writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}

	default:
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "")
	}
}

// decodeGraph reads a submission body and hydrates its graph.
func decodeGraph(w http.ResponseWriter, r *http.Request) (pipeline.Submission, *pipeline.Graph, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return pipeline.Submission{}, nil, err
	}
	sub, err := pipeline.DecodeSubmission(body)
	if err != nil {
		return pipeline.Submission{}, nil, err
	}
	g, err := pipeline.Deserialize(sub.Document)
	if err != nil {
		return pipeline.Submission{}, nil, err
	}
	return sub, g, nil
}

// savePipeline decodes, validates and stores a pipeline. An empty id creates.
func (s *Server) savePipeline(w http.ResponseWriter, r *http.Request, id string) {
	sub, g, err := decodeGraph(w, r)
	if err != nil {
		if errors.Is(err, pipeline.ErrMalformedDocument) {
			PipelineSubmissions.WithLabelValues("malformed").Inc()
			writeError(w, r, err)
			return
		}
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	trigger, err := sub.Trigger.Normalize()
	if err != nil {
		PipelineSubmissions.WithLabelValues("malformed").Inc()
		writeError(w, r, err)
		return
	}

	report := pipeline.Validate(g)
	if !report.OK {
		PipelineSubmissions.WithLabelValues("rejected").Inc()
		observeViolations(report)
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "validation_failed",
			Violations: report.Violations,
		})
		return
	}

	var (
		rec    pipeline.Record
		status = http.StatusCreated
	)
	if id == "" {
		rec, err = s.pipelines.Create(r.Context(), pipeline.Serialize(g), trigger)
	} else {
		rec, err = s.pipelines.Update(r.Context(), id, pipeline.Serialize(g), trigger)
		status = http.StatusOK
	}
	if err != nil {
		if !errors.Is(err, store.ErrRouteConflict) && !errors.Is(err, store.ErrNotFound) {
			PipelineSubmissions.WithLabelValues("error").Inc()
		}
		writeError(w, r, err)
		return
	}

	PipelineSubmissions.WithLabelValues("accepted").Inc()
	slog.Info("pipeline_saved",
		"trace_id", getTraceID(r.Context()),
		"pipeline_id", rec.ID,
		"nodes", g.Len(),
		"method", rec.Method,
		"url", rec.URL,
	)
	writeJSON(w, r, status, rec)
}

func (s *Server) validatePipeline(w http.ResponseWriter, r *http.Request) {
	_, g, err := decodeGraph(w, r)
	if err != nil {
		if errors.Is(err, pipeline.ErrMalformedDocument) {
			writeError(w, r, err)
			return
		}
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	report := pipeline.Validate(g)
	observeViolations(report)
	writeJSON(w, r, http.StatusOK, report)
}

// reconcilePipeline reconciles one stored pipeline against the whole catalog.
func (s *Server) reconcilePipeline(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.pipelines.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "pipeline "+id)
		return
	}

	g, err := rec.Graph()
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := g.ReconcileAll(r.Context(), s.catalog)
	if err != nil {
		writeError(w, r, err)
		return
	}

	changed := false
	for _, res := range results {
		if res.Changed() {
			changed = true
			break
		}
	}
	if changed {
		if err := s.pipelines.ReplaceContent(r.Context(), id, pipeline.Serialize(g)); err != nil {
			writeError(w, r, err)
			return
		}
	}

	removed := pipeline.RemovedConnections(results)
	ReconciledConnections.Add(float64(removed))
	if results == nil {
		results = []pipeline.ReconcileResult{}
	}
	writeJSON(w, r, http.StatusOK, ReconcileResponse{
		PipelineID:         id,
		Results:            results,
		RemovedConnections: removed,
	})
}
