package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// handleNodes serves GET (list) and POST (create) on /api/nodes.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset, err := parsePage(r, 10)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
			return
		}
		defs, err := s.catalog.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, catalog.Page(defs, limit, offset))

	case http.MethodPost:
		var d catalog.Draft
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_json_body", err.Error())
			return
		}
		def, err := s.catalog.Create(r.Context(), d)
		if err != nil {
			writeError(w, r, err)
			return
		}
		CatalogMutations.WithLabelValues("create").Inc()
		slog.Info("node_created", "trace_id", getTraceID(r.Context()), "node_id", def.ID, "name", def.Name)
		writeJSON(w, r, http.StatusCreated, def)

	default:
		methodNotAllowed(w)
	}
}

// handleNode serves /api/nodes/count and /api/nodes/{id}.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r.URL.Path, "/api/nodes/")
	if id == "" || action != "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "")
		return
	}

	if id == "count" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		defs, err := s.catalog.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, CountResponse{Count: len(defs)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		def, err := s.catalog.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, def)

	case http.MethodPut:
		var d catalog.Draft
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_json_body", err.Error())
			return
		}
		def, err := s.catalog.Update(r.Context(), id, d)
		if err != nil {
			writeError(w, r, err)
			return
		}
		CatalogMutations.WithLabelValues("update").Inc()

		reconciled, err := s.reconcileStored(r.Context(), def)
		if err != nil {
			writeError(w, r, err)
			return
		}
		slog.Info("node_updated",
			"trace_id", getTraceID(r.Context()),
			"node_id", def.ID,
			"reconciled_pipelines", len(reconciled),
		)
		writeJSON(w, r, http.StatusOK, NodeUpdateResponse{Node: def, Reconciled: reconciled})

	case http.MethodDelete:
		def, err := s.catalog.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if def.IsInternal {
			writeError(w, r, catalog.Forbidden(def))
			return
		}
		refs, err := s.pipelines.Referencing(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(refs) > 0 {
			writeError(w, r, fmt.Errorf("%w: placed in %d pipeline(s)", catalog.ErrInUse, len(refs)))
			return
		}
		if err := s.catalog.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		CatalogMutations.WithLabelValues("delete").Inc()
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

// reconcileStored rewrites every stored pipeline that places def so that its
// instances match def's current ports.
func (s *Server) reconcileStored(ctx context.Context, def catalog.NodeDefinition) ([]ReconciledPipeline, error) {
	refs, err := s.pipelines.Referencing(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pipelines using %s: %w", def.ID, err)
	}

	reconciled := []ReconciledPipeline{}
	for _, rec := range refs {
		g, err := rec.Graph()
		if err != nil {
			slog.Warn("stored_pipeline_unreadable", "pipeline_id", rec.ID, "error", err)
			continue
		}
		results := g.ReconcileDefinition(def)
		if len(results) == 0 {
			continue
		}
		if err := s.pipelines.ReplaceContent(ctx, rec.ID, pipeline.Serialize(g)); err != nil {
			return nil, fmt.Errorf("failed to store reconciled pipeline %s: %w", rec.ID, err)
		}

		removed := pipeline.RemovedConnections(results)
		ReconciledConnections.Add(float64(removed))
		reconciled = append(reconciled, ReconciledPipeline{PipelineID: rec.ID, RemovedConnections: removed})
	}
	return reconciled, nil
}
