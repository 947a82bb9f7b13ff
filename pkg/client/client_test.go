package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL)
	c.backoff = &ReadyBackoff{Initial: time.Millisecond, Ceiling: time.Millisecond, Multiplier: 1}
	return c
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewClient_DefaultEndpoint(t *testing.T) {
	if got := NewClient("").Endpoint(); got != DefaultEndpoint {
		t.Errorf("Endpoint() = %q; want %q", got, DefaultEndpoint)
	}
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeBody(w, http.StatusOK, Status{Status: "ok", Version: "1.0.0"})
	})

	status, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if status.Status != "ok" || status.Version != "1.0.0" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestClient_WaitReady(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeBody(w, http.StatusServiceUnavailable, map[string]string{"error": "starting"})
			return
		}
		writeBody(w, http.StatusOK, Status{Status: "ok"})
	})

	if err := c.WaitReady(context.Background(), 5); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 pings, got %d", calls.Load())
	}

	calls.Store(-100)
	if err := c.WaitReady(context.Background(), 2); err == nil {
		t.Error("expected WaitReady to give up")
	}
}

func TestClient_StatusErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"not found", http.StatusNotFound, "not_found", catalog.ErrNotFound},
		{"forbidden", http.StatusForbidden, "forbidden", catalog.ErrForbidden},
		{"in use", http.StatusConflict, "node_in_use", catalog.ErrInUse},
		{"invalid node", http.StatusBadRequest, "invalid_node", catalog.ErrValidation},
		{"malformed", http.StatusBadRequest, "malformed_document", pipeline.ErrMalformedDocument},
		{"route conflict", http.StatusConflict, "route_conflict", ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeBody(w, tt.status, map[string]string{"error": tt.code, "details": "x"})
			})

			err := c.DeleteNode(context.Background(), "n1")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status || se.Code != tt.code {
				t.Errorf("unexpected status error %#v", se)
			}
		})
	}
}

func TestClient_NodeCRUD(t *testing.T) {
	def := catalog.NodeDefinition{ID: "n1", Name: "Fetch", Inputs: []string{"url"}, Outputs: []string{"body"}}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /api/nodes":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
			}
			writeBody(w, http.StatusOK, []catalog.NodeDefinition{def})
		case "POST /api/nodes":
			var d catalog.Draft
			if err := json.NewDecoder(r.Body).Decode(&d); err != nil || d.Name != "Fetch" {
				t.Errorf("unexpected draft %+v (%v)", d, err)
			}
			writeBody(w, http.StatusCreated, def)
		case "GET /api/nodes/n1":
			writeBody(w, http.StatusOK, def)
		case "PUT /api/nodes/n1":
			writeBody(w, http.StatusOK, NodeUpdate{Node: def, Reconciled: []ReconciledPipeline{{PipelineID: "p1", RemovedConnections: 2}}})
		case "DELETE /api/nodes/n1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	defs, err := c.ListNodes(ctx, Page{Limit: 5})
	if err != nil || len(defs) != 1 {
		t.Fatalf("ListNodes = %v, %v", defs, err)
	}
	created, err := c.CreateNode(ctx, catalog.Draft{Name: "Fetch"})
	if err != nil || created.ID != "n1" {
		t.Fatalf("CreateNode = %+v, %v", created, err)
	}
	got, err := c.GetNode(ctx, "n1")
	if err != nil || got.Name != "Fetch" {
		t.Fatalf("GetNode = %+v, %v", got, err)
	}
	upd, err := c.UpdateNode(ctx, "n1", catalog.Draft{Name: "Fetch"})
	if err != nil || len(upd.Reconciled) != 1 || upd.Reconciled[0].RemovedConnections != 2 {
		t.Fatalf("UpdateNode = %+v, %v", upd, err)
	}
	if err := c.DeleteNode(ctx, "n1"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
}

func TestClient_SubmitPipeline(t *testing.T) {
	sub := pipeline.Submission{
		Document: pipeline.Document{Name: "p"},
		Trigger:  pipeline.Trigger{Method: "POST", URL: "/hook"},
	}

	t.Run("accepted", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var raw map[string]any
			if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
				t.Fatalf("bad body: %v", err)
			}
			if raw["method"] != "POST" || raw["url"] != "/hook" || raw["name"] != "p" {
				t.Errorf("submission not flattened: %v", raw)
			}
			writeBody(w, http.StatusCreated, pipeline.Record{ID: "p1", Name: "p", Method: "POST", URL: "/hook"})
		})
		rec, err := c.SubmitPipeline(context.Background(), sub)
		if err != nil || rec.ID != "p1" {
			t.Fatalf("SubmitPipeline = %+v, %v", rec, err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeBody(w, http.StatusConflict, map[string]string{"error": "route_conflict"})
		})
		_, err := c.SubmitPipeline(context.Background(), sub)
		if !errors.Is(err, ErrNetworkFailure) {
			t.Errorf("expected ErrNetworkFailure, got %v", err)
		}
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected the status error to stay reachable, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		_, err := NewClient(srv.URL).SubmitPipeline(context.Background(), sub)
		if !errors.Is(err, ErrNetworkFailure) {
			t.Errorf("expected ErrNetworkFailure, got %v", err)
		}
	})
}

func TestClient_ValidatePipeline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pipelines/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeBody(w, http.StatusOK, pipeline.Report{
			OK:         false,
			Violations: []pipeline.Violation{{Kind: pipeline.EmptyGraph}, {Kind: pipeline.MissingName}},
		})
	})

	report, err := c.ValidatePipeline(context.Background(), pipeline.Document{})
	if err != nil {
		t.Fatalf("ValidatePipeline failed: %v", err)
	}
	if report.OK || len(report.Violations) != 2 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestClient_ListHistoryQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("pipelineId") != "p1" || q.Get("offset") != "10" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		writeBody(w, http.StatusOK, []HistoryEntry{{ID: "h1", PipelineID: "p1", Status: "success"}})
	})

	entries, err := c.ListHistory(context.Background(), "p1", Page{Offset: 10})
	if err != nil || len(entries) != 1 || entries[0].Status != "success" {
		t.Fatalf("ListHistory = %+v, %v", entries, err)
	}
}

func TestRemoteCatalog(t *testing.T) {
	// Two full pages and a short one.
	total := 2*catalogPageSize + 3
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/nodes/missing" {
			writeBody(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		var offset int
		json.Unmarshal([]byte(r.URL.Query().Get("offset")), &offset)
		n := total - offset
		if n > catalogPageSize {
			n = catalogPageSize
		}
		defs := make([]catalog.NodeDefinition, n)
		writeBody(w, http.StatusOK, defs)
	})

	defs, err := c.Catalog().List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(defs) != total {
		t.Errorf("expected %d definitions, got %d", total, len(defs))
	}

	_, err = c.Catalog().Get(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected catalog.ErrNotFound, got %v", err)
	}
}
