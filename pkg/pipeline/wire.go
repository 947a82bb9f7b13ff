package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/ports"
)

// NodeType is the canvas node type every wire node carries.
const NodeType = "flowNode"

// Document is the wire form of a graph exchanged with the pipeline store.
type Document struct {
	Name    string  `json:"name"`
	Content Content `json:"content"`
}

type Content struct {
	Nodes []WireNode `json:"nodes"`
	Edges []WireEdge `json:"edges"`
}

type WireNode struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

type NodeData struct {
	DefinitionID string   `json:"definitionId"`
	Name         string   `json:"name"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	Status       Status   `json:"status,omitempty"`
}

type WireEdge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// EdgeID is the canvas id of the edge for c.
func EdgeID(c Connection) string {
	return "xy-edge__" + c.Source + outputHandle(c.SourcePort) + "-" + c.Target + inputHandle(c.TargetPort)
}

func outputHandle(port string) string {
	return ports.Handle{Direction: ports.Output, Port: port}.Name()
}

func inputHandle(port string) string {
	return ports.Handle{Direction: ports.Input, Port: port}.Name()
}

// Serialize converts g to its wire document. Nodes and edges keep graph order.
func Serialize(g *Graph) Document {
	doc := Document{
		Name: g.name,
		Content: Content{
			Nodes: make([]WireNode, 0, len(g.nodes)),
			Edges: make([]WireEdge, 0, len(g.edges)),
		},
	}

	for _, n := range g.nodes {
		c := n.clone()
		doc.Content.Nodes = append(doc.Content.Nodes, WireNode{
			ID:       c.ID,
			Type:     NodeType,
			Position: c.Position,
			Data: NodeData{
				DefinitionID: c.DefinitionID,
				Name:         c.Name,
				Inputs:       c.Inputs,
				Outputs:      c.Outputs,
				Status:       c.Status,
			},
		})
	}

	for _, e := range g.edges {
		doc.Content.Edges = append(doc.Content.Edges, WireEdge{
			ID:           EdgeID(e),
			Source:       e.Source,
			SourceHandle: outputHandle(e.SourcePort),
			Target:       e.Target,
			TargetHandle: inputHandle(e.TargetPort),
		})
	}
	return doc
}

// Deserialize hydrates a graph from doc.
//
// Edges are taken as stored: an edge whose endpoints or ports are missing is
// kept so that Validate can report it after reconciliation. Only edges that
// cannot be decoded at all are rejected here.
func Deserialize(doc Document) (*Graph, error) {
	g := New(doc.Name)

	for i, wn := range doc.Content.Nodes {
		path := fmt.Sprintf("content.nodes[%d]", i)
		if wn.ID == "" {
			return nil, malformed(path+".id", "must not be empty")
		}
		if _, dup := g.index[wn.ID]; dup {
			return nil, malformed(path+".id", "duplicate instance id %q", wn.ID)
		}
		if wn.Type != NodeType {
			return nil, malformed(path+".type", "unsupported node type %q", wn.Type)
		}
		if wn.Data.DefinitionID == "" {
			return nil, malformed(path+".data.definitionId", "must not be empty")
		}
		status := wn.Data.Status
		if status == "" {
			status = StatusIdle
		}
		if !status.Valid() {
			return nil, malformed(path+".data.status", "unknown status %q", status)
		}

		if err := snapshotPorts(path+".data.inputs", wn.Data.Inputs); err != nil {
			return nil, err
		}
		if err := snapshotPorts(path+".data.outputs", wn.Data.Outputs); err != nil {
			return nil, err
		}

		schema := ports.Schema{Inputs: wn.Data.Inputs, Outputs: wn.Data.Outputs}.Clone()
		g.insert(&NodeInstance{
			ID:           wn.ID,
			DefinitionID: wn.Data.DefinitionID,
			Position:     wn.Position,
			Status:       status,
			Name:         wn.Data.Name,
			Inputs:       schema.Inputs,
			Outputs:      schema.Outputs,
		})
	}

	for i, we := range doc.Content.Edges {
		path := fmt.Sprintf("content.edges[%d]", i)
		if we.Source == "" {
			return nil, malformed(path+".source", "must not be empty")
		}
		if we.Target == "" {
			return nil, malformed(path+".target", "must not be empty")
		}
		if we.Source == we.Target {
			return nil, malformed(path, "self loop on %q", we.Source)
		}
		src, err := parseHandle(path+".sourceHandle", we.SourceHandle, ports.Output)
		if err != nil {
			return nil, err
		}
		dst, err := parseHandle(path+".targetHandle", we.TargetHandle, ports.Input)
		if err != nil {
			return nil, err
		}

		c := Connection{Source: we.Source, SourcePort: src.Port, Target: we.Target, TargetPort: dst.Port}
		if g.HasEdge(c) {
			return nil, malformed(path, "duplicate connection %s", c)
		}
		g.edges = append(g.edges, c)
	}
	return g, nil
}

// snapshotPorts applies the catalog's port rules to a stored snapshot so that
// every hydrated port can be written back as a handle.
func snapshotPorts(path string, names []string) error {
	err := catalog.ValidatePorts(path, names)
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		return malformed(path, "%s", verr.Msg)
	}
	return err
}

func parseHandle(path, name string, want ports.Direction) (ports.Handle, error) {
	h, err := ports.ParseHandle(name)
	if err != nil {
		return ports.Handle{}, malformed(path, "%v", err)
	}
	if h.Direction != want {
		return ports.Handle{}, malformed(path, "handle %q is not an %s handle", name, want)
	}
	return h, nil
}

// Encode renders doc as JSON.
func Encode(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// rawDocument mirrors Document with pointers so that absent fields can be
// told apart from zero values.
type rawDocument struct {
	Name    *string     `json:"name"`
	Content *rawContent `json:"content"`
}

type rawContent struct {
	Nodes *[]rawNode `json:"nodes"`
	Edges *[]rawEdge `json:"edges"`
}

type rawNode struct {
	ID       *string      `json:"id"`
	Type     *string      `json:"type"`
	Position *Position    `json:"position"`
	Data     *rawNodeData `json:"data"`
}

type rawNodeData struct {
	DefinitionID *string   `json:"definitionId"`
	Name         *string   `json:"name"`
	Inputs       *[]string `json:"inputs"`
	Outputs      *[]string `json:"outputs"`
	Status       Status    `json:"status"`
}

type rawEdge struct {
	ID           string  `json:"id"`
	Source       *string `json:"source"`
	SourceHandle *string `json:"sourceHandle"`
	Target       *string `json:"target"`
	TargetHandle *string `json:"targetHandle"`
}

// DecodeDocument parses a wire document and rejects it when a required field
// is absent. The result still needs Deserialize to become a Graph.
func DecodeDocument(data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, malformed("", "invalid JSON: %v", err)
	}
	return raw.document()
}

func (raw rawDocument) document() (Document, error) {
	if raw.Name == nil {
		return Document{}, malformed("name", "required")
	}
	if raw.Content == nil {
		return Document{}, malformed("content", "required")
	}
	if raw.Content.Nodes == nil {
		return Document{}, malformed("content.nodes", "required")
	}
	if raw.Content.Edges == nil {
		return Document{}, malformed("content.edges", "required")
	}

	doc := Document{
		Name: *raw.Name,
		Content: Content{
			Nodes: make([]WireNode, 0, len(*raw.Content.Nodes)),
			Edges: make([]WireEdge, 0, len(*raw.Content.Edges)),
		},
	}

	for i, n := range *raw.Content.Nodes {
		path := fmt.Sprintf("content.nodes[%d]", i)
		switch {
		case n.ID == nil:
			return Document{}, malformed(path+".id", "required")
		case n.Type == nil:
			return Document{}, malformed(path+".type", "required")
		case n.Position == nil:
			return Document{}, malformed(path+".position", "required")
		case n.Data == nil:
			return Document{}, malformed(path+".data", "required")
		case n.Data.DefinitionID == nil:
			return Document{}, malformed(path+".data.definitionId", "required")
		case n.Data.Inputs == nil:
			return Document{}, malformed(path+".data.inputs", "required")
		case n.Data.Outputs == nil:
			return Document{}, malformed(path+".data.outputs", "required")
		}
		wn := WireNode{
			ID:       *n.ID,
			Type:     *n.Type,
			Position: *n.Position,
			Data: NodeData{
				DefinitionID: *n.Data.DefinitionID,
				Inputs:       *n.Data.Inputs,
				Outputs:      *n.Data.Outputs,
				Status:       n.Data.Status,
			},
		}
		if n.Data.Name != nil {
			wn.Data.Name = *n.Data.Name
		}
		doc.Content.Nodes = append(doc.Content.Nodes, wn)
	}

	for i, e := range *raw.Content.Edges {
		path := fmt.Sprintf("content.edges[%d]", i)
		switch {
		case e.Source == nil:
			return Document{}, malformed(path+".source", "required")
		case e.SourceHandle == nil:
			return Document{}, malformed(path+".sourceHandle", "required")
		case e.Target == nil:
			return Document{}, malformed(path+".target", "required")
		case e.TargetHandle == nil:
			return Document{}, malformed(path+".targetHandle", "required")
		}
		doc.Content.Edges = append(doc.Content.Edges, WireEdge{
			ID:           e.ID,
			Source:       *e.Source,
			SourceHandle: *e.SourceHandle,
			Target:       *e.Target,
			TargetHandle: *e.TargetHandle,
		})
	}
	return doc, nil
}
