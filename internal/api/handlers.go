// Package api exposes the report store and retrieval engine over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/basisfind/basisfind/internal/ingest"
	"github.com/basisfind/basisfind/internal/report"
	"github.com/basisfind/basisfind/internal/retrieval"
	"github.com/basisfind/basisfind/internal/storage"
)

// Deps holds the collaborators the HTTP handlers work against.
type Deps struct {
	Store    *storage.Store
	Engine   *retrieval.Engine
	Pipeline *ingest.Pipeline
	DataDir  string
}

// NewHandler returns the REST router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/search", handleSearch(deps))
	r.Post("/ingest", handleIngest(deps))
	r.Post("/reindex", handleReindex(deps))
	r.Get("/reports", handleListReports(deps))
	r.Get("/reports/{id}", handleGetReport(deps))
	r.Delete("/reports/{id}", handleDeleteReport(deps))
	r.Post("/reports/{id}/feedback", handleAddFeedback(deps))
	r.Get("/reports/{id}/feedback", handleListFeedback(deps))
	r.Get("/stats", handleStats(deps))
	r.Get("/search-history", handleSearchHistory(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// SearchRequest is the body of POST /search. Threshold is a pointer so a
// deliberate 0 can be told apart from "use the default".
type SearchRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k"`
	Threshold *float64 `json:"threshold"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		topK := req.TopK
		if topK <= 0 {
			topK = retrieval.DefaultTopK
		}
		threshold := retrieval.DefaultThreshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		results, err := deps.Engine.Search(r.Context(), req.Query, topK, threshold)
		if errors.Is(err, retrieval.ErrIndexNotReady) {
			httpError(w, http.StatusConflict, "index_not_ready", "no search index has been built yet; run a reindex first")
			return
		}
		if errors.Is(err, retrieval.ErrModelInit) {
			httpError(w, http.StatusServiceUnavailable, "model_error", "embedding model unavailable: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		if results == nil {
			results = []retrieval.Result{}
		}
		writeJSON(w, map[string]any{
			"query":   req.Query,
			"count":   len(results),
			"results": results,
		})
	}
}

// IngestRequest is the body of POST /ingest. An empty Dir falls back to the
// configured data directory.
type IngestRequest struct {
	Dir         string `json:"dir"`
	Force       bool   `json:"force"`
	SkipReindex bool   `json:"skip_reindex"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		dir := req.Dir
		if dir == "" {
			dir = deps.DataDir
		}
		if dir == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "dir is required (no data directory configured)")
			return
		}

		sum, err := deps.Pipeline.IngestDir(r.Context(), dir, req.Force)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ingestion failed: %v", err)
			return
		}

		resp := map[string]any{
			"processed": sum.Processed,
			"skipped":   sum.Skipped,
			"failed":    sum.Failed,
		}
		// Indexing failures never undo a completed ingestion; they are
		// reported alongside it instead.
		if !req.SkipReindex {
			if n, err := deps.Engine.Rebuild(r.Context()); err != nil {
				resp["index_error"] = err.Error()
			} else {
				resp["indexed"] = n
			}
		}
		writeJSON(w, resp)
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Engine.Rebuild(r.Context())
		if errors.Is(err, retrieval.ErrNoEligibleReports) {
			httpError(w, http.StatusConflict, "no_eligible_reports", "no stored report has enough text to index")
			return
		}
		if errors.Is(err, retrieval.ErrModelInit) {
			httpError(w, http.StatusServiceUnavailable, "model_error", "embedding model unavailable: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reindex failed: %v", err)
			return
		}
		writeJSON(w, map[string]any{"indexed": n})
	}
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := deps.Store.ListReports()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list reports: %v", err)
			return
		}
		if reports == nil {
			reports = []report.Report{}
		}
		writeJSON(w, reports)
	}
}

func handleGetReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := reportID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid report id %q", chi.URLParam(r, "id"))
			return
		}

		rep, err := deps.Store.GetReport(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get report: %v", err)
			return
		}
		writeJSON(w, rep)
	}
}

func handleDeleteReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := reportID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid report id %q", chi.URLParam(r, "id"))
			return
		}

		removed, err := deps.Store.DeleteReport(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete report: %v", err)
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		// The index entry goes stale until the next rebuild; searches skip it.
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// FeedbackRequest is the body of POST /reports/{id}/feedback.
type FeedbackRequest struct {
	Query string `json:"query"`
	Kind  string `json:"kind"`
	Note  string `json:"note"`
}

func handleAddFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := reportID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid report id %q", chi.URLParam(r, "id"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Kind == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind is required (%q or %q)",
				storage.FeedbackThumbsUp, storage.FeedbackThumbsDown)
			return
		}

		fbID, err := deps.Store.AddFeedback(id, req.Query, req.Kind, req.Note)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, map[string]string{"id": fbID, "status": "recorded"})
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := reportID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid report id %q", chi.URLParam(r, "id"))
			return
		}

		fb, err := deps.Store.ListFeedback(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		if fb == nil {
			fb = []storage.Feedback{}
		}
		writeJSON(w, fb)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"reports":             st.ReportCount,
			"embeddings":          st.EmbeddingCount,
			"feedback":            st.FeedbackCount,
			"searches":            st.SearchCount,
			"average_trust_score": st.AvgTrustScore,
			"index":               deps.Engine.Status(),
		})
	}
}

func handleSearchHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		hist, err := deps.Store.ListSearchHistory(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list search history: %v", err)
			return
		}
		if hist == nil {
			hist = []storage.SearchQuery{}
		}
		writeJSON(w, hist)
	}
}
