package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/marketlens/internal/pipeline"
	"github.com/kalambet/marketlens/internal/storage"
)

const personasResourceURI = "marketlens://personas"

// NewMCPServer creates an MCP server exposing analysis and persona lookup
// tools, plus the cached personas as a resource.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"marketlens",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("marketlens: revenue-ranked customer segments and personas for a product."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_product",
			mcp.WithDescription("Analyze a product and return its highest-revenue customer segments with a persona for each. Replaces the cached personas."),
			mcp.WithString("image_url", mcp.Description("URL of a product image")),
			mcp.WithString("text", mcp.Description("Product description, or a company website URL when text_type is url")),
			mcp.WithString("text_type", mcp.Description("text (default) or url"), mcp.Enum(TextTypeText, TextTypeURL)),
		),
		mcpAnalyzeProduct(deps),
	)

	s.AddTool(
		mcp.NewTool("get_persona",
			mcp.WithDescription("Get the cached segment and persona for a segment key."),
			mcp.WithString("segment_key", mcp.Description("8-character segment key"), mcp.Required()),
		),
		mcpGetPersona(deps),
	)

	s.AddTool(
		mcp.NewTool("list_personas",
			mcp.WithDescription("List every cached segment and persona from the last analysis."),
		),
		mcpListPersonas(deps),
	)

	s.AddResource(
		mcp.NewResource(
			personasResourceURI,
			"Cached Personas",
			mcp.WithResourceDescription("Segments and personas of the last analysis as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePersonas(deps),
	)

	return s
}

func mcpAnalyzeProduct(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spec := InputSpec{
			ImageURL: req.GetString("image_url", ""),
			Text:     req.GetString("text", ""),
			TextType: req.GetString("text_type", TextTypeText),
		}

		in, err := ResolveInput(ctx, deps.Fetcher, spec)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := deps.Analyzer.Run(ctx, in)
		if err != nil {
			if errors.Is(err, pipeline.ErrNoInput) {
				return mcpError(msgNoInput), nil
			}
			return mcpError(err.Error()), nil
		}

		return mcpJSON(res)
	}
}

func mcpGetPersona(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("segment_key")
		if err != nil {
			return mcpError("segment_key is required"), nil
		}

		rec, err := deps.Store.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("Persona not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read cache: %v", err)), nil
		}

		return mcpJSON(rec)
	}
}

func mcpListPersonas(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records, err := deps.Store.All()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read cache: %v", err)), nil
		}
		if len(records) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(records)
	}
}

func mcpResourcePersonas(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.Store.All()
		if err != nil {
			return nil, fmt.Errorf("failed to read cache: %w", err)
		}
		if records == nil {
			records = []storage.Record{}
		}

		b, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal personas: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
