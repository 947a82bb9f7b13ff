package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process catalog. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]NodeDefinition
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]NodeDefinition)}
}

// List returns every definition ordered by name, then id.
func (m *Memory) List(ctx context.Context) ([]NodeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]NodeDefinition, 0, len(m.nodes))
	for _, def := range m.nodes {
		defs = append(defs, def.Clone())
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].ID < defs[j].ID
	})
	return defs, nil
}

func (m *Memory) Get(ctx context.Context, id string) (NodeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.nodes[id]
	if !ok {
		return NodeDefinition{}, NotFound(id)
	}
	return def.Clone(), nil
}

func (m *Memory) Create(ctx context.Context, d Draft) (NodeDefinition, error) {
	if err := ValidateDraft(d); err != nil {
		return NodeDefinition{}, err
	}

	def := d.Apply(NodeDefinition{ID: uuid.NewString()})

	m.mu.Lock()
	m.nodes[def.ID] = def
	m.mu.Unlock()

	return def.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, d Draft) (NodeDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[id]
	if !ok {
		return NodeDefinition{}, NotFound(id)
	}
	if current.IsInternal {
		return NodeDefinition{}, Forbidden(current)
	}
	if err := ValidateDraft(d); err != nil {
		return NodeDefinition{}, err
	}

	updated := d.Apply(current)
	m.nodes[id] = updated
	return updated.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[id]
	if !ok {
		return NotFound(id)
	}
	if current.IsInternal {
		return Forbidden(current)
	}
	delete(m.nodes, id)
	return nil
}

// SeedInternal upserts internal definitions by name.
func (m *Memory) SeedInternal(ctx context.Context, drafts []Draft) ([]NodeDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seeded := make([]NodeDefinition, 0, len(drafts))
	for _, d := range drafts {
		if err := ValidateDraft(d); err != nil {
			return nil, err
		}

		def := NodeDefinition{ID: uuid.NewString(), IsInternal: true}
		for id, existing := range m.nodes {
			if existing.IsInternal && existing.Name == d.Name {
				def = m.nodes[id]
				break
			}
		}
		def = d.Apply(def)
		m.nodes[def.ID] = def
		seeded = append(seeded, def.Clone())
	}
	return seeded, nil
}
