package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

var (
	// PipelineSubmissions counts pipeline writes by outcome:
	// accepted, rejected (violations), malformed, error.
	PipelineSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdanodes_pipeline_submissions_total",
			Help: "Total number of pipeline submissions by result",
		},
		[]string{"result"},
	)

	// ValidationViolations counts reported violations by kind.
	ValidationViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdanodes_validation_violations_total",
			Help: "Total number of graph validation violations by kind",
		},
		[]string{"kind"},
	)

	// CatalogMutations counts successful catalog writes.
	CatalogMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdanodes_catalog_mutations_total",
			Help: "Total number of node catalog mutations by operation",
		},
		[]string{"op"},
	)

	// ReconciledConnections counts connections dropped by reconciliation.
	ReconciledConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lambdanodes_reconciled_connections_total",
			Help: "Total number of connections removed by port reconciliation",
		},
	)
)

func init() {
	prometheus.MustRegister(PipelineSubmissions)
	prometheus.MustRegister(ValidationViolations)
	prometheus.MustRegister(CatalogMutations)
	prometheus.MustRegister(ReconciledConnections)
}

func observeViolations(report pipeline.Report) {
	for _, v := range report.Violations {
		ValidationViolations.WithLabelValues(string(v.Kind)).Inc()
	}
}
