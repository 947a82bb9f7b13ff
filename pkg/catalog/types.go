package catalog

import "context"

// NodeDefinition is a reusable pipeline unit: a named script with ordered
// input and output ports.
type NodeDefinition struct {
	ID         string   `json:"id"`
	IsInternal bool     `json:"isInternal"`
	Name       string   `json:"name"`
	Script     string   `json:"script"`
	Inputs     []string `json:"inputs"`
	Outputs    []string `json:"outputs"`
}

// Draft carries the mutable attributes of a definition for create and update.
type Draft struct {
	Name    string   `json:"name"`
	Script  string   `json:"script"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Reader is the read side of the catalog. Graph editing only ever reads.
type Reader interface {
	List(ctx context.Context) ([]NodeDefinition, error)
	Get(ctx context.Context, id string) (NodeDefinition, error)
}

// Catalog is the full node catalog contract.
type Catalog interface {
	Reader
	Create(ctx context.Context, d Draft) (NodeDefinition, error)
	Update(ctx context.Context, id string, d Draft) (NodeDefinition, error)
	Delete(ctx context.Context, id string) error
}

// Seeder installs internal definitions. Seeding is keyed by name so that
// repeated seeding leaves exactly one definition per name.
type Seeder interface {
	SeedInternal(ctx context.Context, drafts []Draft) ([]NodeDefinition, error)
}

// Clone returns a deep copy of the definition.
func (d NodeDefinition) Clone() NodeDefinition {
	d.Inputs = clonePorts(d.Inputs)
	d.Outputs = clonePorts(d.Outputs)
	return d
}

// Apply returns def with the draft's attributes. Identity and the internal
// flag never change through a draft.
func (d Draft) Apply(def NodeDefinition) NodeDefinition {
	def.Name = d.Name
	def.Script = d.Script
	def.Inputs = clonePorts(d.Inputs)
	def.Outputs = clonePorts(d.Outputs)
	return def
}

func clonePorts(ports []string) []string {
	out := make([]string, len(ports))
	copy(out, ports)
	return out
}

// Page returns defs[offset:offset+limit] clamped to the slice bounds.
func Page(defs []NodeDefinition, limit, offset int) []NodeDefinition {
	if offset >= len(defs) || limit <= 0 {
		return []NodeDefinition{}
	}
	end := offset + limit
	if end > len(defs) {
		end = len(defs)
	}
	return defs[offset:end]
}
