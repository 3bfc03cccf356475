package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/promptfabric/internal/hardware"
	"github.com/kalambet/promptfabric/internal/ingest"
	"github.com/kalambet/promptfabric/internal/orchestrator"
	"github.com/kalambet/promptfabric/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. The same pipeline and
// stores back both the REST API and the MCP tools.
type MCPDeps struct {
	Pipeline ChatPipeline
	Refiner  PromptRefiner
	Searcher ContextSearcher
	Ingestor DocumentIngestor
	Store    *storage.Store
}

// NewMCPServer creates an MCP server exposing the pipeline to MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"promptfabric",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("promptfabric — local LLM orchestration with prompt refinement, context retrieval, and session memory."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message through the full pipeline: context retrieval, prompt refinement, generation, and session memory."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; a new one is created when omitted")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("refine_prompt",
			mcp.WithDescription("Rewrite a raw prompt into an optimized, structured prompt."),
			mcp.WithString("prompt", mcp.Description("The raw prompt to refine"), mcp.Required()),
		),
		mcpRefinePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("search_context",
			mcp.WithDescription("Semantically search ingested documents and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchContext(deps),
	)

	s.AddTool(
		mcp.NewTool("add_context",
			mcp.WithDescription("Store a document into the context index for later retrieval."),
			mcp.WithString("title", mcp.Description("Title for the document")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddContext(deps),
	)

	s.AddTool(
		mcp.NewTool("hardware_profile",
			mcp.WithDescription("Detect the host hardware and recommend a provider and model set."),
		),
		mcpHardwareProfile(),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		result, err := deps.Pipeline.HandleChat(ctx, orchestrator.Request{
			SessionID: sessionID,
			Message:   message,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"response":   result.Response,
			"session_id": result.SessionID,
			"flags":      result.Flags,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRefinePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		matches, err := deps.Searcher.Search(ctx, prompt, 0)
		if err != nil {
			matches = nil
		}

		refined, err := deps.Refiner.Refine(ctx, prompt, nil, matches)
		if err != nil {
			return mcpError(fmt.Sprintf("refinement failed: %v", err)), nil
		}
		return mcpText(refined), nil
	}
}

func mcpSearchContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		matches, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		type matchResult struct {
			ID     string  `json:"id"`
			Text   string  `json:"text"`
			Source string  `json:"source"`
			Score  float32 `json:"score"`
		}
		results := make([]matchResult, len(matches))
		for i, m := range matches {
			results[i] = matchResult{
				ID:     m.Document.ID,
				Text:   m.Document.Text,
				Source: m.Document.Source,
				Score:  m.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		doc, err := deps.Ingestor.Submit(ctx, ingest.Submission{
			Title:   title,
			Content: content,
			Tags:    tags,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to store document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored context doc %s", doc.ID)), nil
	}
}

func mcpHardwareProfile() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profile := hardware.Detect()
		b, err := json.Marshal(map[string]any{
			"profile":        profile,
			"recommendation": hardware.Recommend(profile),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
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
