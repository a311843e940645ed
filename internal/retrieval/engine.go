package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/basisfind/basisfind/internal/report"
	"github.com/basisfind/basisfind/internal/storage"
)

// Search defaults, tuned for the bundled embedding models.
const (
	DefaultTopK      = 10
	DefaultThreshold = 0.3

	// minIndexChars is the minimum number of non-whitespace characters a
	// report's text must have to be indexed.
	minIndexChars = 10
)

var (
	// ErrIndexNotReady is returned by Search when no index has been built yet.
	// It is distinct from a query that ran and matched nothing.
	ErrIndexNotReady = errors.New("similarity index not built")

	// ErrNoEligibleReports is returned by Rebuild when no stored report has
	// enough text to index.
	ErrNoEligibleReports = errors.New("no reports eligible for indexing")
)

// Result is one search hit: the full report plus ranking metadata.
type Result struct {
	report.Report
	SimilarityScore float64 `json:"similarity_score"`
	Rank            int     `json:"rank"`
	Snippet         string  `json:"snippet"`
}

// IndexStatus describes the in-memory index, for stats reporting.
type IndexStatus struct {
	Ready   bool      `json:"ready"`
	Size    int       `json:"size"`
	Model   string    `json:"model,omitempty"`
	BuiltAt time.Time `json:"built_at,omitzero"`
}

// Engine orchestrates query embedding, index search, thresholding, record
// hydration, and snippet extraction. The in-memory index is loaded lazily
// from disk on first use and replaced atomically by Rebuild; reads take the
// read lock, rebuilds take the write lock.
type Engine struct {
	store     *storage.Store
	embedder  *Embedder
	indexPath string
	log       *slog.Logger

	mu  sync.RWMutex
	idx *Index
}

// NewEngine creates an Engine persisting its index bundle at indexPath.
func NewEngine(store *storage.Store, embedder *Embedder, indexPath string, log *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		indexPath: indexPath,
		log:       log,
	}
}

// indexText returns the text a report is indexed under: its searchable text,
// or a fallback concatenation of the core fields when that was never derived.
func indexText(r *report.Report) string {
	if r.SearchText != "" {
		return r.SearchText
	}
	return r.FallbackText()
}

func eligible(text string) bool {
	n := 0
	for _, c := range text {
		if !strings.ContainsRune(" \t\n\r", c) {
			n++
		}
		if n >= minIndexChars {
			return true
		}
	}
	return false
}

// Rebuild re-embeds every eligible report, persists the section embeddings,
// and atomically replaces both the on-disk bundle and the in-memory index.
// It returns the number of indexed reports.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	reports, err := e.store.ListReports()
	if err != nil {
		return 0, fmt.Errorf("listing reports: %w", err)
	}

	var ids []int64
	var texts []string
	for i := range reports {
		text := indexText(&reports[i])
		if !eligible(text) {
			continue
		}
		ids = append(ids, reports[i].ID)
		texts = append(texts, text)
	}
	if len(ids) == 0 {
		return 0, ErrNoEligibleReports
	}

	e.log.Info("rebuilding index", "reports", len(ids), "model", e.embedder.Model())
	started := time.Now()

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		err := e.store.ReplaceEmbeddings(id, []storage.Embedding{{
			ReportID: id,
			Section:  "searchable_text",
			Text:     texts[i],
			Vector:   vectors[i],
		}})
		if err != nil {
			return 0, fmt.Errorf("storing embedding for report %d: %w", id, err)
		}
	}

	idx, err := NewIndex(vectors, ids, e.embedder.Model())
	if err != nil {
		return 0, fmt.Errorf("building index: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := idx.Save(e.indexPath); err != nil {
		return 0, err
	}
	e.idx = idx

	e.log.Info("index rebuilt", "reports", idx.Len(), "dim", idx.Dim, "took", time.Since(started))
	return idx.Len(), nil
}

// currentIndex returns the in-memory index, loading the persisted bundle on
// first use. A missing bundle means the index was never built.
func (e *Engine) currentIndex() (*Index, error) {
	e.mu.RLock()
	idx := e.idx
	e.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx != nil {
		return e.idx, nil
	}

	idx, err := LoadIndex(e.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	e.idx = idx
	return idx, nil
}

// Search embeds the query, retrieves the topK nearest reports, filters by the
// similarity threshold, hydrates the surviving records, and attaches rank and
// snippet. Results are ordered by descending similarity, ties broken by index
// order. The query and its result count are recorded in search history.
func (e *Engine) Search(ctx context.Context, query string, topK int, threshold float64) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	idx, err := e.currentIndex()
	if err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, hit := range idx.Search(vec, topK) {
		similarity := 1 / (1 + hit.Distance)
		if similarity < threshold {
			continue
		}

		r, err := e.store.GetReport(hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// Report deleted after the last rebuild; the stale entry is
			// skipped rather than treated as fatal.
			e.log.Debug("skipping stale index entry", "report_id", hit.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrating report %d: %w", hit.ID, err)
		}

		results = append(results, Result{
			Report:          r,
			SimilarityScore: similarity,
			Rank:            len(results) + 1,
			Snippet:         Snippet(indexText(&r), query, SnippetLength),
		})
	}

	if err := e.store.AddSearchQuery(query, len(results)); err != nil {
		e.log.Warn("recording search history failed", "error", err)
	}

	return results, nil
}

// Status reports whether an index is available and its size. The persisted
// bundle is loaded and cached on first use, same as currentIndex, so repeated
// status calls do not re-read the file.
func (e *Engine) Status() IndexStatus {
	e.mu.RLock()
	idx := e.idx
	e.mu.RUnlock()

	if idx == nil {
		e.mu.Lock()
		if e.idx == nil {
			loaded, err := LoadIndex(e.indexPath)
			if err != nil {
				e.mu.Unlock()
				return IndexStatus{}
			}
			e.idx = loaded
		}
		idx = e.idx
		e.mu.Unlock()
	}
	return IndexStatus{
		Ready:   true,
		Size:    idx.Len(),
		Model:   idx.Model,
		BuiltAt: idx.BuiltAt,
	}
}
