package pipeline

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/lambdanodes/pkg/ports"
)

// ViolationKind names a submission-time invariant.
type ViolationKind string

const (
	EmptyGraph   ViolationKind = "EmptyGraph"
	DanglingEdge ViolationKind = "DanglingEdge"
	PortOccupied ViolationKind = "PortOccupied"
	MissingName  ViolationKind = "MissingName"
)

// Violation is one failed invariant.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	Message    string        `json:"message"`
	Connection *Connection   `json:"connection,omitempty"`
}

// Report is the verdict of Validate.
type Report struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
}

// Kinds lists the violation kinds in report order.
func (r Report) Kinds() []ViolationKind {
	kinds := make([]ViolationKind, 0, len(r.Violations))
	for _, v := range r.Violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

// Validate checks g and collects every violation. Structural checks come
// before the name check. It never mutates g.
func Validate(g *Graph) Report {
	violations := []Violation{}

	if len(g.nodes) == 0 {
		violations = append(violations, Violation{
			Kind:    EmptyGraph,
			Message: "pipeline has no nodes",
		})
	}

	for i := range g.edges {
		e := g.edges[i]
		if msg := danglingReason(g, e); msg != "" {
			violations = append(violations, Violation{
				Kind:       DanglingEdge,
				Message:    fmt.Sprintf("connection %s: %s", e, msg),
				Connection: &e,
			})
		}
	}

	type slot struct{ target, port string }
	fanIn := make(map[slot]int)
	var order []slot
	for _, e := range g.edges {
		s := slot{e.Target, e.TargetPort}
		if fanIn[s] == 0 {
			order = append(order, s)
		}
		fanIn[s]++
	}
	for _, s := range order {
		if fanIn[s] > 1 {
			violations = append(violations, Violation{
				Kind:    PortOccupied,
				Message: fmt.Sprintf("input %q of %q has %d incoming connections", s.port, s.target, fanIn[s]),
			})
		}
	}

	if strings.TrimSpace(g.name) == "" {
		violations = append(violations, Violation{
			Kind:    MissingName,
			Message: "pipeline name is empty",
		})
	}

	return Report{OK: len(violations) == 0, Violations: violations}
}

func danglingReason(g *Graph, e Connection) string {
	src, ok := g.index[e.Source]
	if !ok {
		return fmt.Sprintf("source %q is not in the graph", e.Source)
	}
	dst, ok := g.index[e.Target]
	if !ok {
		return fmt.Sprintf("target %q is not in the graph", e.Target)
	}
	if !src.Schema().Has(ports.Output, e.SourcePort) {
		return fmt.Sprintf("%q has no output %q", src.Name, e.SourcePort)
	}
	if !dst.Schema().Has(ports.Input, e.TargetPort) {
		return fmt.Sprintf("%q has no input %q", dst.Name, e.TargetPort)
	}
	return ""
}
