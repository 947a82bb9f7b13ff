package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
	"github.com/rmax-ai/lambdanodes/pkg/store"
)

// Version is reported by GET /health. Set at build time.
var Version = "dev"

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

const maxBodyBytes = 4 << 20

// Interfaces for dependencies to enable mocking

type PipelineStore interface {
	Create(ctx context.Context, doc pipeline.Document, trigger pipeline.Trigger) (pipeline.Record, error)
	Update(ctx context.Context, id string, doc pipeline.Document, trigger pipeline.Trigger) (pipeline.Record, error)
	ReplaceContent(ctx context.Context, id string, doc pipeline.Document) error
	Get(ctx context.Context, id string) (*pipeline.Record, error)
	List(ctx context.Context, limit, offset int) ([]pipeline.Record, error)
	Count(ctx context.Context) (int, error)
	Referencing(ctx context.Context, definitionID string) ([]pipeline.Record, error)
	Delete(ctx context.Context, id string) error
}

type RouteStore interface {
	List(ctx context.Context, limit, offset int) ([]store.Route, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id string) (*store.Route, error)
	Delete(ctx context.Context, id string) error
}

type HistoryStore interface {
	List(ctx context.Context, f store.HistoryFilter) ([]store.HistoryEntry, error)
	Count(ctx context.Context, pipelineID string) (int, error)
	Get(ctx context.Context, id string) (*store.HistoryEntry, error)
}

type LogStore interface {
	Append(ctx context.Context, e store.LogEntry) error
	List(ctx context.Context, limit, offset int) ([]store.LogEntry, error)
	Count(ctx context.Context) (int, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	catalog   catalog.Catalog
	pipelines PipelineStore
	routes    RouteStore
	history   HistoryStore
	logs      LogStore
	server    *http.Server
}

// NewServer creates a new API server over the SQLite store. defs is the
// catalog the API reads and writes; it may be a cache in front of st.Nodes().
func NewServer(st *store.Store, defs catalog.Catalog, addr string) *Server {
	return newServer(defs, st.Pipelines(), st.Routes(), st.History(), st.Logs(), addr)
}

func newServer(defs catalog.Catalog, pipelines PipelineStore, routes RouteStore, history HistoryStore, logs LogStore, addr string) *Server {
	s := &Server{
		catalog:   defs,
		pipelines: pipelines,
		routes:    routes,
		history:   history,
		logs:      logs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/nodes/", s.handleNode) // {id} and count
	mux.HandleFunc("/api/pipelines", s.handlePipelines)
	mux.HandleFunc("/api/pipelines/", s.handlePipeline) // {id}, {id}/reconcile, validate and count
	mux.HandleFunc("/api/routes", s.handleRoutes)
	mux.HandleFunc("/api/routes/", s.handleRoute)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/", s.handleHistoryEntry)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/logs/", s.handleLogsCount)

	// Middleware: Logging, Panic Recovery, CORS, Audit, Security Headers
	handler := withLogging(withRecovery(withCORS(s.withAudit(withSecureHeaders(mux)))))

	if addr == "" {
		addr = "127.0.0.1:3000"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	slog.Info("server_starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed_to_encode_response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, details string) {
	writeJSON(w, r, status, ErrorResponse{Error: code, Details: details})
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as internal_server_error without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_server_error"
	switch {
	case errors.Is(err, catalog.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_node"
	case errors.Is(err, pipeline.ErrMalformedDocument):
		status, code = http.StatusBadRequest, "malformed_document"
	case errors.Is(err, pipeline.ErrInvalidTrigger):
		status, code = http.StatusBadRequest, "invalid_trigger"
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, pipeline.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, catalog.ErrInUse):
		status, code = http.StatusConflict, "node_in_use"
	case errors.Is(err, store.ErrRouteConflict):
		status, code = http.StatusConflict, "route_conflict"
	}

	if status == http.StatusInternalServerError {
		slog.Error("request_failed", "trace_id", getTraceID(r.Context()), "path", r.URL.Path, "error", err)
		writeErrorCode(w, r, status, code, "")
		return
	}
	writeErrorCode(w, r, status, code, err.Error())
}

// parsePage reads limit and offset query parameters.
func parsePage(r *http.Request, defaultLimit int) (int, int, error) {
	limit, offset := defaultLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
		offset = n
	}
	return limit, offset, nil
}

// pathID splits the remainder of path after prefix into an id and an
// optional action, e.g. "/api/pipelines/abc/reconcile" -> ("abc", "reconcile").
func pathID(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	return id, action
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic_recovered", "error", fmt.Sprint(err), "path", r.URL.Path)
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		slog.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Middleware: Audit. Persists one log row per /api request.
func (s *Server) withAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.logs == nil || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		level := "info"
		if ww.status >= 400 {
			level = "warn"
		}
		entry := store.LogEntry{
			Level:    level,
			Category: "request",
			Message:  fmt.Sprintf("%s %s - %d %s", r.Method, r.URL.Path, ww.status, r.RemoteAddr),
		}
		// The request is already answered; use a context that outlives it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		if err := s.logs.Append(ctx, entry); err != nil {
			slog.Warn("failed_to_audit_request", "trace_id", getTraceID(r.Context()), "error", err)
		}
	})
}

// Middleware: CORS. The canvas UI is served from another origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Trace-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Trace-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
