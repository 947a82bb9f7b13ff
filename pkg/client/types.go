package client

import (
	"encoding/json"
	"time"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
	// Version is the daemon version.
	Version string `json:"version"`
}

// ReconciledPipeline reports a stored pipeline rewritten after a node update.
type ReconciledPipeline struct {
	PipelineID         string `json:"pipelineId"`
	RemovedConnections int    `json:"removedConnections"`
}

// NodeUpdate is the result of UpdateNode.
type NodeUpdate struct {
	Node catalog.NodeDefinition `json:"node"`
	// Reconciled lists the stored pipelines whose instances were brought in
	// line with the new ports.
	Reconciled []ReconciledPipeline `json:"reconciled"`
}

// Reconciliation is the result of ReconcilePipeline.
type Reconciliation struct {
	PipelineID         string                     `json:"pipelineId"`
	Results            []pipeline.ReconcileResult `json:"results"`
	RemovedConnections int                        `json:"removedConnections"`
}

// Route is a (method, path) trigger registered for a stored pipeline.
type Route struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId"`
	Path       string `json:"path"`
	Method     string `json:"method"`
}

// HistoryEntry is one recorded pipeline run.
type HistoryEntry struct {
	ID         string          `json:"id"`
	PipelineID string          `json:"pipelineId"`
	Status     string          `json:"status"`
	StartAt    time.Time       `json:"startAt"`
	EndAt      *time.Time      `json:"endAt,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// LogEntry is one operational log line kept by the daemon.
type LogEntry struct {
	ID       int64     `json:"id"`
	Level    string    `json:"level"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
	CreateAt time.Time `json:"createAt"`
}

// Page selects a window of a list endpoint. Zero values use the daemon's
// defaults.
type Page struct {
	Limit  int
	Offset int
}

type errorBody struct {
	Error      string               `json:"error"`
	Details    string               `json:"details,omitempty"`
	Violations []pipeline.Violation `json:"violations,omitempty"`
}

type countBody struct {
	Count int `json:"count"`
}
