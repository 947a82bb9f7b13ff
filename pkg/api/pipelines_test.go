package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
	"github.com/rmax-ai/lambdanodes/pkg/store"
)

// echoSubmission builds BeginRequest -> EndRequest.
func echoSubmission(t *testing.T, st *store.Store, name string, trigger pipeline.Trigger) pipeline.Submission {
	t.Helper()
	ctx := context.Background()
	defs, err := st.Nodes().List(ctx)
	require.NoError(t, err)

	ids := map[string]string{}
	for _, d := range defs {
		ids[d.Name] = d.ID
	}

	g := pipeline.New(name)
	b, err := g.AddNode(ctx, st.Nodes(), ids["BeginRequest"], pipeline.Position{})
	require.NoError(t, err)
	e, err := g.AddNode(ctx, st.Nodes(), ids["EndRequest"], pipeline.Position{X: 200})
	require.NoError(t, err)
	require.NoError(t, g.Connect(pipeline.Connection{Source: b, SourcePort: "data", Target: e, TargetPort: "data"}))
	return pipeline.Submission{Document: pipeline.Serialize(g), Trigger: trigger}
}

func TestPipelines_SubmitAndRead(t *testing.T) {
	s, st := setupTestServer(t)

	sub := echoSubmission(t, st, "echo", pipeline.Trigger{Method: "post", URL: "/echo"})
	w := doRequest(t, s, "POST", "/api/pipelines", sub)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[pipeline.Record](t, w)
	assert.Equal(t, "echo", rec.Name)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/echo", rec.URL)

	w = doRequest(t, s, "GET", "/api/pipelines/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[pipeline.Record](t, w)
	doc, err := got.Document()
	require.NoError(t, err)
	assert.Equal(t, sub.Document, doc)

	w = doRequest(t, s, "GET", "/api/routes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	routes := decode[[]store.Route](t, w)
	require.Len(t, routes, 1)
	assert.Equal(t, rec.ID, routes[0].PipelineID)

	w = doRequest(t, s, "GET", "/api/pipelines/count", nil)
	assert.Equal(t, 1, decode[CountResponse](t, w).Count)

	w = doRequest(t, s, "DELETE", "/api/pipelines/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doRequest(t, s, "GET", "/api/routes/count", nil)
	assert.Equal(t, 0, decode[CountResponse](t, w).Count, "routes cascade with their pipeline")
	w = doRequest(t, s, "GET", "/api/pipelines/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPipelines_ValidationBatch(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	sub := echoSubmission(t, st, "", pipeline.Trigger{})
	g, err := pipeline.Deserialize(sub.Document)
	require.NoError(t, err)
	end := sub.Content.Edges[0].Target

	// A second BeginRequest also feeds EndRequest.data, and one edge points
	// at nodes that are not in the graph.
	begin := g.Nodes()[0].DefinitionID
	second, err := g.AddNode(ctx, st.Nodes(), begin, pipeline.Position{Y: 100})
	require.NoError(t, err)
	sub.Document = pipeline.Serialize(g)
	sub.Content.Edges = append(sub.Content.Edges,
		pipeline.WireEdge{ID: "fan-in", Source: second, SourceHandle: "output-data", Target: end, TargetHandle: "input-data"},
		pipeline.WireEdge{ID: "ghost", Source: "ghost", SourceHandle: "output-data", Target: "nowhere", TargetHandle: "input-data"},
	)

	w := doRequest(t, s, "POST", "/api/pipelines", sub)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "validation_failed", resp.Error)

	kinds := []pipeline.ViolationKind{}
	for _, v := range resp.Violations {
		kinds = append(kinds, v.Kind)
	}
	assert.Equal(t, []pipeline.ViolationKind{pipeline.DanglingEdge, pipeline.PortOccupied, pipeline.MissingName}, kinds)

	w = doRequest(t, s, "GET", "/api/pipelines/count", nil)
	assert.Equal(t, 0, decode[CountResponse](t, w).Count)
}

func TestPipelines_EmptyGraph(t *testing.T) {
	s, _ := setupTestServer(t)

	w := doRequest(t, s, "POST", "/api/pipelines", `{"name":"","content":{"nodes":[],"edges":[]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Len(t, resp.Violations, 2)
	assert.Equal(t, pipeline.EmptyGraph, resp.Violations[0].Kind)
	assert.Equal(t, pipeline.MissingName, resp.Violations[1].Kind)
}

func TestPipelines_Malformed(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "malformed_document"},
		{"missing content", `{"name":"x"}`, "malformed_document"},
		{"whole-node handle", `{"name":"x","content":{"nodes":[],"edges":[{"source":"a","sourceHandle":"from-node","target":"b","targetHandle":"input-in"}]}}`, "malformed_document"},
		{"self loop", `{"name":"x","content":{"nodes":[{"id":"a","type":"flowNode","position":{"x":0,"y":0},"data":{"definitionId":"d","inputs":["in"],"outputs":["out"]}}],"edges":[{"source":"a","sourceHandle":"output-out","target":"a","targetHandle":"input-in"}]}}`, "malformed_document"},
		{"empty port name", `{"name":"x","content":{"nodes":[{"id":"a","type":"flowNode","position":{"x":0,"y":0},"data":{"definitionId":"d","inputs":[""],"outputs":[]}}],"edges":[]}}`, "malformed_document"},
		{"bad method", `{"name":"x","content":{"nodes":[],"edges":[]},"method":"TRACE"}`, "invalid_trigger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, "POST", "/api/pipelines", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestPipelines_RouteConflict(t *testing.T) {
	s, st := setupTestServer(t)

	w := doRequest(t, s, "POST", "/api/pipelines", echoSubmission(t, st, "one", pipeline.Trigger{URL: "/hook"}))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, "POST", "/api/pipelines", echoSubmission(t, st, "two", pipeline.Trigger{URL: "/hook"}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "route_conflict", decode[ErrorResponse](t, w).Error)
}

func TestPipelines_Update(t *testing.T) {
	s, st := setupTestServer(t)

	w := doRequest(t, s, "POST", "/api/pipelines", echoSubmission(t, st, "v1", pipeline.Trigger{URL: "/v1"}))
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[pipeline.Record](t, w)

	w = doRequest(t, s, "PUT", "/api/pipelines/"+rec.ID, echoSubmission(t, st, "v2", pipeline.Trigger{Method: "PUT", URL: "/v2"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[pipeline.Record](t, w)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "v2", updated.Name)

	w = doRequest(t, s, "PUT", "/api/pipelines/missing", echoSubmission(t, st, "v3", pipeline.Trigger{}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPipelines_Validate(t *testing.T) {
	s, st := setupTestServer(t)

	w := doRequest(t, s, "POST", "/api/pipelines/validate", echoSubmission(t, st, "ok", pipeline.Trigger{}))
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[pipeline.Report](t, w)
	assert.True(t, report.OK)
	assert.Empty(t, report.Violations)

	w = doRequest(t, s, "POST", "/api/pipelines/validate", `{"name":"","content":{"nodes":[],"edges":[]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	report = decode[pipeline.Report](t, w)
	assert.False(t, report.OK)
	assert.Equal(t, []pipeline.ViolationKind{pipeline.EmptyGraph, pipeline.MissingName}, report.Kinds())

	w = doRequest(t, s, "GET", "/api/pipelines/count", nil)
	assert.Equal(t, 0, decode[CountResponse](t, w).Count, "validate never stores")
}

func TestPipelines_Reconcile(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	mid, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Mid", Inputs: []string{"in", "extra"}, Outputs: []string{"out"}})
	require.NoError(t, err)
	src, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Src", Outputs: []string{"x"}})
	require.NoError(t, err)

	g := pipeline.New("r")
	srcID, _ := g.AddNode(ctx, st.Nodes(), src.ID, pipeline.Position{})
	midID, _ := g.AddNode(ctx, st.Nodes(), mid.ID, pipeline.Position{})
	require.NoError(t, g.Connect(pipeline.Connection{Source: srcID, SourcePort: "x", Target: midID, TargetPort: "extra"}))
	rec, err := st.Pipelines().Create(ctx, pipeline.Serialize(g), pipeline.Trigger{})
	require.NoError(t, err)

	// Change the definition behind the API's back so the stored graph is stale.
	_, err = st.Nodes().Update(ctx, mid.ID, catalog.Draft{Name: "Mid", Inputs: []string{"in"}, Outputs: []string{"out"}})
	require.NoError(t, err)

	w := doRequest(t, s, "POST", "/api/pipelines/"+rec.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ReconcileResponse](t, w)
	assert.Equal(t, 1, resp.RemovedConnections)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, midID, resp.Results[0].InstanceID)

	stored, err := st.Pipelines().Get(ctx, rec.ID)
	require.NoError(t, err)
	back, err := stored.Graph()
	require.NoError(t, err)
	assert.Empty(t, back.Edges())

	w = doRequest(t, s, "POST", "/api/pipelines/missing/reconcile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryAndLogsEndpoints(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	w := doRequest(t, s, "POST", "/api/pipelines", echoSubmission(t, st, "runs", pipeline.Trigger{}))
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[pipeline.Record](t, w)

	run, err := st.History().Start(ctx, rec.ID)
	require.NoError(t, err)
	require.NoError(t, st.History().Succeed(ctx, run.ID, json.RawMessage(`{"ok":true}`)))

	w = doRequest(t, s, "GET", "/api/history?pipelineId="+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]store.HistoryEntry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, store.RunSuccess, entries[0].Status)

	w = doRequest(t, s, "GET", "/api/history/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, s, "GET", "/api/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(t, s, "GET", "/api/history/count", nil)
	assert.Equal(t, 1, decode[CountResponse](t, w).Count)

	w = doRequest(t, s, "GET", "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]store.LogEntry](t, w))
}
