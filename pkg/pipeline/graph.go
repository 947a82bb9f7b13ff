// Package pipeline is the editable model of a pipeline: node instances placed
// on a canvas and the connections between their ports. It also validates a
// graph before submission and converts it to and from the wire document the
// pipeline store persists.
//
// A Graph is owned by one editing session and is not safe for concurrent
// mutation. Validation and serialization only read it.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/ports"
)

// Status is the display state of an instance. It has no structural meaning.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeInstance is one placement of a node definition. Name, Inputs and
// Outputs are a snapshot of the definition taken when the instance was added
// or last reconciled.
type NodeInstance struct {
	ID           string
	DefinitionID string
	Position     Position
	Status       Status
	Name         string
	Inputs       []string
	Outputs      []string
}

// Schema returns the instance's current port snapshot.
func (n NodeInstance) Schema() ports.Schema {
	return ports.Schema{Inputs: n.Inputs, Outputs: n.Outputs}
}

func (n NodeInstance) clone() NodeInstance {
	s := n.Schema().Clone()
	n.Inputs, n.Outputs = s.Inputs, s.Outputs
	return n
}

// Connection links an output port of Source to an input port of Target. The
// four fields together are its identity.
type Connection struct {
	Source     string `json:"source"`
	SourcePort string `json:"sourcePort"`
	Target     string `json:"target"`
	TargetPort string `json:"targetPort"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.Source, c.SourcePort, c.Target, c.TargetPort)
}

// Graph is a pipeline under edit.
type Graph struct {
	name  string
	nodes []*NodeInstance
	index map[string]*NodeInstance
	edges []Connection

	newID func() string
}

// New returns an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:  name,
		index: make(map[string]*NodeInstance),
		newID: uuid.NewString,
	}
}

func (g *Graph) Name() string { return g.name }

func (g *Graph) Rename(name string) { g.name = name }

// Len returns the number of node instances.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns copies of every instance in insertion order.
func (g *Graph) Nodes() []NodeInstance {
	out := make([]NodeInstance, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.clone())
	}
	return out
}

// Node returns a copy of the instance with the given id.
func (g *Graph) Node(id string) (NodeInstance, bool) {
	n, ok := g.index[id]
	if !ok {
		return NodeInstance{}, false
	}
	return n.clone(), true
}

// Edges returns every connection in insertion order.
func (g *Graph) Edges() []Connection {
	out := make([]Connection, len(g.edges))
	copy(out, g.edges)
	return out
}

// HasEdge reports whether c is part of the graph.
func (g *Graph) HasEdge(c Connection) bool {
	for _, e := range g.edges {
		if e == c {
			return true
		}
	}
	return false
}

// AddNode places a new instance of the definition at pos and returns its id.
// The definition is looked up in defs at call time.
func (g *Graph) AddNode(ctx context.Context, defs catalog.Reader, definitionID string, pos Position) (string, error) {
	def, err := defs.Get(ctx, definitionID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return "", editErr("add node", ErrNotFound, "definition %q", definitionID)
		}
		return "", fmt.Errorf("add node: %w", err)
	}

	schema := ports.Resolve(def)
	n := &NodeInstance{
		ID:           g.newID(),
		DefinitionID: def.ID,
		Position:     pos,
		Status:       StatusIdle,
		Name:         def.Name,
		Inputs:       schema.Inputs,
		Outputs:      schema.Outputs,
	}
	g.insert(n)
	return n.ID, nil
}

func (g *Graph) insert(n *NodeInstance) {
	g.nodes = append(g.nodes, n)
	g.index[n.ID] = n
}

// RemoveNode deletes the instance and every connection touching it.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.index[id]; !ok {
		return editErr("remove node", ErrNotFound, "instance %q", id)
	}

	delete(g.index, id)
	for i, n := range g.nodes {
		if n.ID == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	g.removeEdges(func(c Connection) bool {
		return c.Source == id || c.Target == id
	})
	return nil
}

// MoveNode updates the instance position.
func (g *Graph) MoveNode(id string, pos Position) error {
	n, ok := g.index[id]
	if !ok {
		return editErr("move node", ErrNotFound, "instance %q", id)
	}
	n.Position = pos
	return nil
}

// SetStatus updates the display status of the instance.
func (g *Graph) SetStatus(id string, status Status) error {
	n, ok := g.index[id]
	if !ok {
		return editErr("set status", ErrNotFound, "instance %q", id)
	}
	if !status.Valid() {
		return editErr("set status", ErrInvalidStatus, "%q", status)
	}
	n.Status = status
	return nil
}

// Connect links source.sourcePort to target.targetPort.
//
// Checks run in this order: both endpoints exist, source differs from target,
// both ports exist on the current snapshots, and the target input is free.
func (g *Graph) Connect(c Connection) error {
	src, ok := g.index[c.Source]
	if !ok {
		return editErr("connect", ErrInvalidEndpoint, "source %q is not in the graph", c.Source)
	}
	dst, ok := g.index[c.Target]
	if !ok {
		return editErr("connect", ErrInvalidEndpoint, "target %q is not in the graph", c.Target)
	}
	if c.Source == c.Target {
		return editErr("connect", ErrSelfLoop, "instance %q", c.Source)
	}
	if !src.Schema().Has(ports.Output, c.SourcePort) {
		return editErr("connect", ErrInvalidPort, "%q has no output %q", src.Name, c.SourcePort)
	}
	if !dst.Schema().Has(ports.Input, c.TargetPort) {
		return editErr("connect", ErrInvalidPort, "%q has no input %q", dst.Name, c.TargetPort)
	}
	if existing, taken := g.incoming(c.Target, c.TargetPort); taken {
		return editErr("connect", ErrPortOccupied, "input %q of %q is fed by %s", c.TargetPort, dst.Name, existing)
	}

	g.edges = append(g.edges, c)
	return nil
}

// Disconnect removes c. Removing a connection that is not present is a no-op.
func (g *Graph) Disconnect(c Connection) {
	g.removeEdges(func(e Connection) bool { return e == c })
}

func (g *Graph) incoming(target, port string) (Connection, bool) {
	for _, e := range g.edges {
		if e.Target == target && e.TargetPort == port {
			return e, true
		}
	}
	return Connection{}, false
}

// removeEdges drops every edge matching drop and returns the dropped edges.
func (g *Graph) removeEdges(drop func(Connection) bool) []Connection {
	var removed []Connection
	kept := g.edges[:0]
	for _, e := range g.edges {
		if drop(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return removed
}
