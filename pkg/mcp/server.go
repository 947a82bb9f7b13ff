package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/client"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// Server adapts the lambdanodes daemon to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"lambdanodes",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"lambdanodes://nodes",
		"Node Catalog",
		mcp.WithResourceDescription("Every node definition with its ordered input and output ports"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadNodes)

	s.mcpServer.AddResource(mcp.NewResource(
		"lambdanodes://pipelines",
		"Stored Pipelines",
		mcp.WithResourceDescription("The most recently stored pipelines with their trigger routes"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadPipelines)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"list_nodes",
		mcp.WithDescription("List node definitions available for building pipelines."),
		mcp.WithString("name", mcp.Description("Only return nodes whose name contains this text")),
	), s.handleListNodes)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_node",
		mcp.WithDescription("Get one node definition, including its input and output port names."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The node definition id")),
	), s.handleGetNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"validate_pipeline",
		mcp.WithDescription("Validate a pipeline document without storing it. Returns every violation found."),
		mcp.WithString("document", mcp.Required(), mcp.Description("The pipeline document as JSON: {name, content: {nodes, edges}}")),
	), s.handleValidatePipeline)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"pipeline-authoring",
		mcp.WithPromptDescription("Explains how lambdanodes pipelines are built from nodes, ports and connections"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadNodes(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	defs, err := s.apiClient.Catalog().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nodes: %w", err)
	}
	return jsonContents(request.Params.URI, defs)
}

func (s *Server) handleReadPipelines(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	recs, err := s.apiClient.ListPipelines(ctx, client.Page{Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pipelines: %w", err)
	}
	return jsonContents(request.Params.URI, recs)
}

func (s *Server) handleListNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := strings.ToLower(mcp.ParseString(request, "name", ""))

	defs, err := s.apiClient.Catalog().List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	n := 0
	for _, def := range defs {
		if filter != "" && !strings.Contains(strings.ToLower(def.Name), filter) {
			continue
		}
		n++
		fmt.Fprintf(&b, "%s (%s)\n  inputs: %s\n  outputs: %s\n",
			def.Name, def.ID, portList(def.Inputs), portList(def.Outputs))
	}
	if n == 0 {
		return mcp.NewToolResultText("No matching nodes."), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	def, err := s.apiClient.GetNode(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("node %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleValidatePipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseString(request, "document", "")
	doc, err := pipeline.DecodeDocument([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.apiClient.ValidatePipeline(ctx, doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	if report.OK {
		return mcp.NewToolResultText("Pipeline is valid."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline has %d violation(s):\n", len(report.Violations))
	for _, v := range report.Violations {
		fmt.Fprintf(&b, "- %s: %s\n", v.Kind, v.Message)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func portList(ports []string) string {
	if len(ports) == 0 {
		return "-"
	}
	return strings.Join(ports, ", ")
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "pipeline-authoring" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are helping build lambdanodes pipelines.

Concepts:
- Node definition: a reusable script with ordered input ports and output ports.
- Node instance: a placement of a definition in a pipeline, with its own id and position.
- Connection: links one output port of a node to one input port of another node.
- Handle: a port on the wire, written "output-<port>" or "input-<port>".

Rules:
- An input port accepts at most one incoming connection. Outputs may fan out.
- A node cannot connect to itself.
- A pipeline needs a name and at least one node.
- BeginRequest starts a pipeline and EndRequest's "data" input becomes the response.

Use 'list_nodes' and 'get_node' to find port names, and 'validate_pipeline' before suggesting a document.
`

	return mcp.NewGetPromptResult(
		"pipeline-authoring",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
