package api

import (
	"net/http"

	"github.com/rmax-ai/lambdanodes/pkg/store"
)

// handleRoutes lists registered trigger routes.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, offset, err := parsePage(r, 20)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
		return
	}
	routes, err := s.routes.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, routes)
}

// handleRoute serves /api/routes/count and /api/routes/{id}.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r.URL.Path, "/api/routes/")
	if id == "" || action != "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "")
		return
	}

	if id == "count" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		n, err := s.routes.Count(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt, err := s.routes.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rt == nil {
			writeErrorCode(w, r, http.StatusNotFound, "not_found", "route "+id)
			return
		}
		writeJSON(w, r, http.StatusOK, rt)
	case http.MethodDelete:
		if err := s.routes.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// handleHistory lists runs, newest first, optionally for one pipeline.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, offset, err := parsePage(r, 10)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
		return
	}
	entries, err := s.history.List(r.Context(), store.HistoryFilter{
		PipelineID: r.URL.Query().Get("pipelineId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// handleHistoryEntry serves /api/history/count and /api/history/{id}.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, action := pathID(r.URL.Path, "/api/history/")
	if id == "" || action != "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "")
		return
	}

	if id == "count" {
		n, err := s.history.Count(r.Context(), r.URL.Query().Get("pipelineId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
		return
	}

	h, err := s.history.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h == nil {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "history entry "+id)
		return
	}
	writeJSON(w, r, http.StatusOK, h)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, offset, err := parsePage(r, 10)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
		return
	}
	entries, err := s.logs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// handleLogsCount serves /api/logs/count.
func (s *Server) handleLogsCount(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r.URL.Path, "/api/logs/")
	if id != "count" || action != "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	n, err := s.logs.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
}
