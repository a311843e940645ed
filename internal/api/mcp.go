package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/basisfind/basisfind/internal/retrieval"
	"github.com/basisfind/basisfind/internal/storage"
)

// Searcher abstracts semantic search for the MCP layer.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) ([]retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Searcher Searcher
	Status   func() retrieval.IndexStatus
}

// NewMCPServer creates an MCP server exposing report search and lookup tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"basisfind",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("basisfind — semantic search over ingested project basis reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_reports",
			mcp.WithDescription("Semantically search ingested basis reports and return ranked matches with snippets and trust scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
			mcp.WithNumber("min_similarity", mcp.Description("Minimum similarity score in [0,1] (default 0.3)")),
		),
		mcpFindReports(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Fetch one ingested report by id, with all extracted header fields and sections."),
			mcp.WithNumber("id", mcp.Description("Report id"), mcp.Required()),
		),
		mcpGetReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"basisfind://stats",
			"Report Store Statistics",
			mcp.WithResourceDescription("Aggregate counts, average trust score, and index status as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpFindReports(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", retrieval.DefaultTopK)
		if limit <= 0 {
			limit = retrieval.DefaultTopK
		}
		if limit > 50 {
			limit = 50
		}
		threshold := req.GetFloat("min_similarity", retrieval.DefaultThreshold)

		results, err := deps.Searcher.Search(ctx, query, limit, threshold)
		if errors.Is(err, retrieval.ErrIndexNotReady) {
			return mcpError("no search index has been built yet; ingest reports and reindex first"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type match struct {
			ID         int64    `json:"id"`
			Name       string   `json:"project_name,omitempty"`
			Number     string   `json:"project_number,omitempty"`
			File       string   `json:"file_name"`
			Similarity float64  `json:"similarity_score"`
			Rank       int      `json:"rank"`
			Trust      float64  `json:"trust_score"`
			Badges     []string `json:"trust_badges,omitempty"`
			Snippet    string   `json:"snippet"`
		}
		matches := make([]match, len(results))
		for i, r := range results {
			matches[i] = match{
				ID:         r.ID,
				Name:       r.ProjectName,
				Number:     r.ProjectNumber,
				File:       r.FileName,
				Similarity: r.SimilarityScore,
				Rank:       r.Rank,
				Trust:      r.TrustScore,
				Badges:     r.TrustBadges,
				Snippet:    r.Snippet,
			}
		}

		b, err := json.Marshal(matches)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rep, err := deps.Store.GetReport(int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("report %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get report: %v", err)), nil
		}

		b, err := json.Marshal(rep)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Store.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}

		payload := map[string]any{
			"reports":             st.ReportCount,
			"embeddings":          st.EmbeddingCount,
			"feedback":            st.FeedbackCount,
			"searches":            st.SearchCount,
			"average_trust_score": st.AvgTrustScore,
			"generated_at":        time.Now().UTC().Format(time.RFC3339),
		}
		if deps.Status != nil {
			payload["index"] = deps.Status()
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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
