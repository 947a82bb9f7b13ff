// Package ports derives the port handles a placed node exposes from its
// catalog definition and computes how a stale snapshot differs from the
// current definition.
package ports

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
)

// Direction distinguishes input (target) handles from output (source) handles.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Input || d == Output
}

// Handle is one named port slot on a node instance.
type Handle struct {
	Direction Direction `json:"direction"`
	Port      string    `json:"port"`
}

// Name encodes the handle the way the canvas and the backend address it,
// e.g. "input-url" or "output-body".
func (h Handle) Name() string {
	return string(h.Direction) + "-" + h.Port
}

func (h Handle) String() string { return h.Name() }

// ParseHandle decodes a handle name produced by Handle.Name. Names that do not
// start with a known direction prefix or carry an empty port are rejected.
func ParseHandle(name string) (Handle, error) {
	for _, dir := range []Direction{Input, Output} {
		prefix := string(dir) + "-"
		if port, ok := strings.CutPrefix(name, prefix); ok {
			if port == "" {
				return Handle{}, fmt.Errorf("handle %q has no port name", name)
			}
			return Handle{Direction: dir, Port: port}, nil
		}
	}
	return Handle{}, fmt.Errorf("handle %q is not of the form input-<port> or output-<port>", name)
}

// Schema is the ordered port layout of a node.
type Schema struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Resolve returns the schema a new instance of def must expose. Order and
// cardinality of both port lists are preserved.
func Resolve(def catalog.NodeDefinition) Schema {
	return Schema{
		Inputs:  clone(def.Inputs),
		Outputs: clone(def.Outputs),
	}
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	return Schema{Inputs: clone(s.Inputs), Outputs: clone(s.Outputs)}
}

// Ports returns the port list for dir.
func (s Schema) Ports(dir Direction) []string {
	switch dir {
	case Input:
		return s.Inputs
	case Output:
		return s.Outputs
	}
	return nil
}

// Has reports whether the schema exposes port in direction dir.
func (s Schema) Has(dir Direction, port string) bool {
	for _, p := range s.Ports(dir) {
		if p == port {
			return true
		}
	}
	return false
}

// Handles lists every handle of the schema, inputs first.
func (s Schema) Handles() []Handle {
	out := make([]Handle, 0, len(s.Inputs)+len(s.Outputs))
	for _, p := range s.Inputs {
		out = append(out, Handle{Direction: Input, Port: p})
	}
	for _, p := range s.Outputs {
		out = append(out, Handle{Direction: Output, Port: p})
	}
	return out
}

// Delta is the difference between a snapshot and a current schema.
type Delta struct {
	Added   []Handle
	Removed []Handle
}

// Empty reports whether the two schemas expose the same handles.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// IsRemoved reports whether the handle (dir, port) is part of d.Removed.
func (d Delta) IsRemoved(dir Direction, port string) bool {
	for _, h := range d.Removed {
		if h.Direction == dir && h.Port == port {
			return true
		}
	}
	return false
}

// Diff compares a snapshot against the current schema. Handles are reported in
// the order they appear in the schema they come from. A pure reordering of
// ports is not a delta.
func Diff(snapshot, current Schema) Delta {
	var d Delta
	for _, dir := range []Direction{Input, Output} {
		for _, p := range snapshot.Ports(dir) {
			if !current.Has(dir, p) {
				d.Removed = append(d.Removed, Handle{Direction: dir, Port: p})
			}
		}
		for _, p := range current.Ports(dir) {
			if !snapshot.Has(dir, p) {
				d.Added = append(d.Added, Handle{Direction: dir, Port: p})
			}
		}
	}
	return d
}

func clone(ports []string) []string {
	out := make([]string, len(ports))
	copy(out, ports)
	return out
}
