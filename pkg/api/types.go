package api

import (
	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string               `json:"error"`
	Details    string               `json:"details,omitempty"`
	Violations []pipeline.Violation `json:"violations,omitempty"`
}

// CountResponse answers the /count endpoints.
type CountResponse struct {
	Count int `json:"count"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReconciledPipeline reports one stored pipeline rewritten by reconciliation.
type ReconciledPipeline struct {
	PipelineID         string `json:"pipelineId"`
	RemovedConnections int    `json:"removedConnections"`
}

// NodeUpdateResponse answers PUT /api/nodes/{id}.
type NodeUpdateResponse struct {
	Node       catalog.NodeDefinition `json:"node"`
	Reconciled []ReconciledPipeline   `json:"reconciled"`
}

// ValidateResponse answers POST /api/pipelines/validate.
type ValidateResponse = pipeline.Report

// ReconcileResponse answers POST /api/pipelines/{id}/reconcile.
type ReconcileResponse struct {
	PipelineID         string                     `json:"pipelineId"`
	Results            []pipeline.ReconcileResult `json:"results"`
	RemovedConnections int                        `json:"removedConnections"`
}
