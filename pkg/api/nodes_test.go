package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

func TestNodes_CRUD(t *testing.T) {
	s, _ := setupTestServer(t)

	w := doRequest(t, s, "POST", "/api/nodes", catalog.Draft{Name: "Fetch", Inputs: []string{"url"}, Outputs: []string{"body"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[catalog.NodeDefinition](t, w)
	require.NotEmpty(t, created.ID)

	w = doRequest(t, s, "GET", "/api/nodes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decode[catalog.NodeDefinition](t, w))

	w = doRequest(t, s, "GET", "/api/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]catalog.NodeDefinition](t, w), 3)

	w = doRequest(t, s, "GET", "/api/nodes?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[[]catalog.NodeDefinition](t, w)
	require.Len(t, page, 1)
	assert.Equal(t, "EndRequest", page[0].Name)

	w = doRequest(t, s, "GET", "/api/nodes/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[CountResponse](t, w).Count)

	w = doRequest(t, s, "DELETE", "/api/nodes/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, s, "GET", "/api/nodes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodes_Errors(t *testing.T) {
	s, st := setupTestServer(t)
	defs, err := st.Nodes().List(context.Background())
	require.NoError(t, err)
	internalID := defs[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"duplicate inputs", "POST", "/api/nodes", catalog.Draft{Name: "X", Inputs: []string{"a", "a"}}, http.StatusBadRequest, "invalid_node"},
		{"empty name", "POST", "/api/nodes", catalog.Draft{Name: ""}, http.StatusBadRequest, "invalid_node"},
		{"bad json", "POST", "/api/nodes", "{", http.StatusBadRequest, "invalid_json_body"},
		{"update missing", "PUT", "/api/nodes/missing", catalog.Draft{Name: "X"}, http.StatusNotFound, "not_found"},
		{"update internal", "PUT", "/api/nodes/" + internalID, catalog.Draft{Name: "X"}, http.StatusForbidden, "forbidden"},
		{"delete internal", "DELETE", "/api/nodes/" + internalID, nil, http.StatusForbidden, "forbidden"},
		{"delete missing", "DELETE", "/api/nodes/missing", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestNodes_DeleteInUse(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	def, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Used", Outputs: []string{"x"}})
	require.NoError(t, err)
	g := pipeline.New("p")
	_, err = g.AddNode(ctx, st.Nodes(), def.ID, pipeline.Position{})
	require.NoError(t, err)
	_, err = st.Pipelines().Create(ctx, pipeline.Serialize(g), pipeline.Trigger{})
	require.NoError(t, err)

	w := doRequest(t, s, "DELETE", "/api/nodes/"+def.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "node_in_use", decode[ErrorResponse](t, w).Error)

	_, err = st.Nodes().Get(ctx, def.ID)
	assert.NoError(t, err)
}

func TestNodes_DeleteInternalInUse(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	w := doRequest(t, s, "POST", "/api/pipelines", echoSubmission(t, st, "echo", pipeline.Trigger{URL: "/echo"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	defs, err := st.Nodes().List(ctx)
	require.NoError(t, err)
	var begin catalog.NodeDefinition
	for _, d := range defs {
		if d.Name == "BeginRequest" {
			begin = d
		}
	}
	require.True(t, begin.IsInternal)

	w = doRequest(t, s, "DELETE", "/api/nodes/"+begin.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, w).Error)

	w = doRequest(t, s, "DELETE", "/api/nodes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodes_UpdateReconcilesStoredPipelines(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	sink, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Sink", Inputs: []string{"a", "b"}})
	require.NoError(t, err)
	src, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Src", Outputs: []string{"x", "y"}})
	require.NoError(t, err)

	g := pipeline.New("fan")
	srcID, err := g.AddNode(ctx, st.Nodes(), src.ID, pipeline.Position{})
	require.NoError(t, err)
	sinkID, err := g.AddNode(ctx, st.Nodes(), sink.ID, pipeline.Position{X: 100})
	require.NoError(t, err)
	onA := pipeline.Connection{Source: srcID, SourcePort: "x", Target: sinkID, TargetPort: "a"}
	onB := pipeline.Connection{Source: srcID, SourcePort: "y", Target: sinkID, TargetPort: "b"}
	require.NoError(t, g.Connect(onA))
	require.NoError(t, g.Connect(onB))
	rec, err := st.Pipelines().Create(ctx, pipeline.Serialize(g), pipeline.Trigger{})
	require.NoError(t, err)

	w := doRequest(t, s, "PUT", "/api/nodes/"+sink.ID, catalog.Draft{Name: "Sink", Inputs: []string{"a"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[NodeUpdateResponse](t, w)
	assert.Equal(t, []string{"a"}, resp.Node.Inputs)
	require.Len(t, resp.Reconciled, 1)
	assert.Equal(t, rec.ID, resp.Reconciled[0].PipelineID)
	assert.Equal(t, 1, resp.Reconciled[0].RemovedConnections)

	stored, err := st.Pipelines().Get(ctx, rec.ID)
	require.NoError(t, err)
	back, err := stored.Graph()
	require.NoError(t, err)
	assert.True(t, back.HasEdge(onA), "connection on a must remain")
	assert.False(t, back.HasEdge(onB), "connection on b must be gone")
	assert.True(t, pipeline.Validate(back).OK)
}

func TestNodes_UpdateStoresReorderedPorts(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	sink, err := st.Nodes().Create(ctx, catalog.Draft{Name: "Sink", Inputs: []string{"a", "b"}})
	require.NoError(t, err)
	g := pipeline.New("order")
	sinkID, err := g.AddNode(ctx, st.Nodes(), sink.ID, pipeline.Position{})
	require.NoError(t, err)
	rec, err := st.Pipelines().Create(ctx, pipeline.Serialize(g), pipeline.Trigger{})
	require.NoError(t, err)

	w := doRequest(t, s, "PUT", "/api/nodes/"+sink.ID, catalog.Draft{Name: "Sink", Inputs: []string{"b", "a"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[NodeUpdateResponse](t, w)
	require.Len(t, resp.Reconciled, 1)
	assert.Equal(t, 0, resp.Reconciled[0].RemovedConnections)

	stored, err := st.Pipelines().Get(ctx, rec.ID)
	require.NoError(t, err)
	back, err := stored.Graph()
	require.NoError(t, err)
	n, ok := back.Node(sinkID)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, n.Inputs)
}
