package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/basisfind/basisfind/internal/report"
	"github.com/basisfind/basisfind/internal/retrieval"
	"github.com/basisfind/basisfind/internal/storage"
)

// --- mocks ---

type mockSearcher struct {
	results []retrieval.Result
	err     error

	lastQuery     string
	lastTopK      int
	lastThreshold float64
}

func (m *mockSearcher) Search(_ context.Context, query string, topK int, threshold float64) ([]retrieval.Result, error) {
	m.lastQuery = query
	m.lastTopK = topK
	m.lastThreshold = threshold
	return m.results, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:    store,
		Searcher: &mockSearcher{},
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_FindReports(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	searcher := &mockSearcher{
		results: []retrieval.Result{
			{
				Report: report.Report{
					ID:          1,
					ProjectName: "Basin Upgrade",
					FileName:    "basin.pdf",
					TrustScore:  0.55,
					TrustBadges: []string{report.BadgeHasReviewer},
				},
				SimilarityScore: 0.92,
				Rank:            1,
				Snippet:         "stormwater detention basin design",
			},
			{
				Report:          report.Report{ID: 2, FileName: "bridge.pdf"},
				SimilarityScore: 0.41,
				Rank:            2,
			},
		},
	}
	deps.Searcher = searcher
	handler := mcpFindReports(deps)

	req := makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "stormwater basin",
		"limit": 5,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if searcher.lastQuery != "stormwater basin" {
		t.Errorf("query passed through = %q", searcher.lastQuery)
	}
	if searcher.lastTopK != 5 {
		t.Errorf("topK passed through = %d, want 5", searcher.lastTopK)
	}
	if searcher.lastThreshold != retrieval.DefaultThreshold {
		t.Errorf("threshold = %v, want default %v", searcher.lastThreshold, retrieval.DefaultThreshold)
	}

	var matches []struct {
		ID         int64   `json:"id"`
		Name       string  `json:"project_name"`
		Similarity float64 `json:"similarity_score"`
		Rank       int     `json:"rank"`
		Snippet    string  `json:"snippet"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &matches); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Name != "Basin Upgrade" || matches[0].Rank != 1 {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[0].Snippet != "stormwater detention basin design" {
		t.Errorf("snippet = %q", matches[0].Snippet)
	}
}

func TestMCPTool_FindReports_MissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpFindReports(deps)

	result, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing query")
	}
}

func TestMCPTool_FindReports_IndexNotReady(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Searcher = &mockSearcher{err: retrieval.ErrIndexNotReady}
	handler := mcpFindReports(deps)

	result, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "anything",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(toolText(t, result), "reindex") {
		t.Errorf("message should point at reindexing, got: %s", toolText(t, result))
	}
}

func TestMCPTool_FindReports_SearchError(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Searcher = &mockSearcher{err: errors.New("embed failed")}
	handler := mcpFindReports(deps)

	result, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "anything",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_FindReports_EmptyResult(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpFindReports(deps)

	result, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "nothing matches this",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_FindReports_LimitClamped(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	searcher := &mockSearcher{}
	deps.Searcher = searcher
	handler := mcpFindReports(deps)

	if _, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "q",
		"limit": 500,
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastTopK != 50 {
		t.Errorf("topK = %d, want clamped to 50", searcher.lastTopK)
	}

	if _, err := handler(context.Background(), makeCallToolRequest("find_reports", map[string]interface{}{
		"query": "q",
		"limit": -3,
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastTopK != retrieval.DefaultTopK {
		t.Errorf("topK = %d, want default %d", searcher.lastTopK, retrieval.DefaultTopK)
	}
}

func TestMCPTool_GetReport(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	id, err := store.UpsertReport(&report.Report{
		SourcePath:  "/reports/basin.pdf",
		FileName:    "basin.pdf",
		ProjectName: "Basin Upgrade",
		Background:  "Stormwater detention capacity review.",
	})
	if err != nil {
		t.Fatalf("UpsertReport: %v", err)
	}

	handler := mcpGetReport(deps)
	// MCP arguments arrive as decoded JSON, so numbers are float64.
	result, err := handler(context.Background(), makeCallToolRequest("get_report", map[string]interface{}{
		"id": float64(id),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var rep report.Report
	if err := json.Unmarshal([]byte(toolText(t, result)), &rep); err != nil {
		t.Fatalf("failed to parse report JSON: %v", err)
	}
	if rep.ProjectName != "Basin Upgrade" {
		t.Errorf("ProjectName = %q", rep.ProjectName)
	}
	if rep.Background == "" {
		t.Error("Background missing from payload")
	}
}

func TestMCPTool_GetReport_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGetReport(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_report", map[string]interface{}{
		"id": 9999,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown report")
	}
}

func TestMCPTool_GetReport_MissingID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGetReport(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_report", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing id")
	}
}

func TestMCPResource_Stats(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	deps.Status = func() retrieval.IndexStatus {
		return retrieval.IndexStatus{Ready: true, Size: 3, Model: "test-embed"}
	}

	if _, err := store.UpsertReport(&report.Report{
		SourcePath: "/reports/a.pdf",
		FileName:   "a.pdf",
		TrustScore: 0.4,
	}); err != nil {
		t.Fatalf("UpsertReport: %v", err)
	}

	handler := mcpResourceStats(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("basisfind://stats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}

	var payload struct {
		Reports int `json:"reports"`
		Index   struct {
			Ready bool   `json:"ready"`
			Size  int    `json:"size"`
			Model string `json:"model"`
		} `json:"index"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &payload); err != nil {
		t.Fatalf("failed to parse stats JSON: %v", err)
	}
	if payload.Reports != 1 {
		t.Errorf("reports = %d, want 1", payload.Reports)
	}
	if !payload.Index.Ready || payload.Index.Size != 3 {
		t.Errorf("index status = %+v", payload.Index)
	}
}
