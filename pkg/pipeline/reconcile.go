package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/ports"
)

// ReconcileResult reports what reconciling one instance changed.
type ReconcileResult struct {
	InstanceID         string         `json:"instanceId"`
	DefinitionID       string         `json:"definitionId"`
	Added              []ports.Handle `json:"added,omitempty"`
	Removed            []ports.Handle `json:"removed,omitempty"`
	RemovedConnections []Connection   `json:"removedConnections,omitempty"`
	Renamed            bool           `json:"renamed,omitempty"`

	// Reordered is set when the snapshot held the same ports in a different
	// order than the definition declares.
	Reordered bool `json:"reordered,omitempty"`

	// Missing is set when the definition no longer exists in the catalog.
	// The instance is left as it was.
	Missing bool `json:"missing,omitempty"`
}

// Changed reports whether reconciliation touched the graph.
func (r ReconcileResult) Changed() bool {
	return r.Renamed || r.Reordered || len(r.Added) > 0 || len(r.Removed) > 0 || len(r.RemovedConnections) > 0
}

// Reconcile brings the snapshot of one instance in line with def. Connections
// bound to ports that def no longer declares are removed in the same step.
func (g *Graph) Reconcile(instanceID string, def catalog.NodeDefinition) (ReconcileResult, error) {
	n, ok := g.index[instanceID]
	if !ok {
		return ReconcileResult{}, editErr("reconcile", ErrNotFound, "instance %q", instanceID)
	}
	if n.DefinitionID != def.ID {
		return ReconcileResult{}, editErr("reconcile", ErrDefinitionMismatch,
			"instance %q places %q, not %q", instanceID, n.DefinitionID, def.ID)
	}

	current := ports.Resolve(def)
	delta := ports.Diff(n.Schema(), current)
	res := ReconcileResult{
		InstanceID:   instanceID,
		DefinitionID: def.ID,
		Added:        delta.Added,
		Removed:      delta.Removed,
		Renamed:      n.Name != def.Name,
	}
	if delta.Empty() {
		res.Reordered = !slices.Equal(n.Inputs, current.Inputs) || !slices.Equal(n.Outputs, current.Outputs)
	}

	if !delta.Empty() {
		res.RemovedConnections = g.removeEdges(func(c Connection) bool {
			return (c.Source == instanceID && delta.IsRemoved(ports.Output, c.SourcePort)) ||
				(c.Target == instanceID && delta.IsRemoved(ports.Input, c.TargetPort))
		})
	}

	n.Name = def.Name
	n.Inputs = current.Inputs
	n.Outputs = current.Outputs
	return res, nil
}

// ReconcileDefinition reconciles every instance of def. Only instances that
// changed are reported.
func (g *Graph) ReconcileDefinition(def catalog.NodeDefinition) []ReconcileResult {
	var results []ReconcileResult
	for _, n := range g.nodes {
		if n.DefinitionID != def.ID {
			continue
		}
		res, err := g.Reconcile(n.ID, def)
		if err != nil {
			continue
		}
		if res.Changed() {
			results = append(results, res)
		}
	}
	return results
}

// ReconcileAll reconciles every instance against the current catalog. Each
// definition is fetched once. Instances of deleted definitions are reported
// with Missing set and left untouched.
func (g *Graph) ReconcileAll(ctx context.Context, defs catalog.Reader) ([]ReconcileResult, error) {
	fetched := make(map[string]*catalog.NodeDefinition)
	var results []ReconcileResult

	for _, n := range append([]*NodeInstance(nil), g.nodes...) {
		def, seen := fetched[n.DefinitionID]
		if !seen {
			d, err := defs.Get(ctx, n.DefinitionID)
			switch {
			case err == nil:
				def = &d
			case errors.Is(err, catalog.ErrNotFound):
				def = nil
			default:
				return results, fmt.Errorf("reconcile: fetch definition %q: %w", n.DefinitionID, err)
			}
			fetched[n.DefinitionID] = def
		}

		if def == nil {
			results = append(results, ReconcileResult{
				InstanceID:   n.ID,
				DefinitionID: n.DefinitionID,
				Missing:      true,
			})
			continue
		}

		res, err := g.Reconcile(n.ID, *def)
		if err != nil {
			return results, err
		}
		if res.Changed() {
			results = append(results, res)
		}
	}
	return results, nil
}

// RemovedConnections counts the connections dropped across results.
func RemovedConnections(results []ReconcileResult) int {
	total := 0
	for _, r := range results {
		total += len(r.RemovedConnections)
	}
	return total
}
