package retrieval

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Index is a flat, exhaustive nearest-neighbor index over Euclidean distance.
// Vectors and IDs are parallel: position i in Vectors maps to report IDs[i].
// An Index is read-only once built; rebuilds replace it wholesale.
type Index struct {
	Dim     int
	Vectors [][]float32
	IDs     []int64
	Model   string
	BuiltAt time.Time
}

// NewIndex builds an index from parallel vector and id slices.
func NewIndex(vectors [][]float32, ids []int64, model string) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to index")
	}
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("vector count %d does not match id count %d", len(vectors), len(ids))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return &Index{
		Dim:     dim,
		Vectors: vectors,
		IDs:     ids,
		Model:   model,
		BuiltAt: time.Now().UTC(),
	}, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	return len(x.Vectors)
}

// Hit is one nearest-neighbor candidate.
type Hit struct {
	Position int
	ID       int64
	Distance float64
}

// Search scans all vectors and returns up to k hits ordered by ascending
// Euclidean distance, ties broken by insertion position.
func (x *Index) Search(vec []float32, k int) []Hit {
	if k <= 0 || len(x.Vectors) == 0 {
		return nil
	}
	if k > len(x.Vectors) {
		k = len(x.Vectors)
	}

	// Max-heap of the k best hits seen so far, worst at the root.
	h := &hitHeap{}
	heap.Init(h)
	for pos, v := range x.Vectors {
		hit := Hit{Position: pos, ID: x.IDs[pos], Distance: euclidean(vec, v)}
		if h.Len() < k {
			heap.Push(h, hit)
		} else if better(hit, (*h)[0]) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}

	hits := make([]Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(Hit)
	}
	return hits
}

// better reports whether a ranks ahead of b: smaller distance wins, equal
// distances fall back to the earlier position.
func better(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Position < b.Position
}

type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(v any)        { *h = append(*h, v.(Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Save writes the index bundle to path atomically: the gob is written to a
// temp file in the same directory and renamed over the destination, so readers
// never observe a partially written bundle.
func (x *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(x); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp index file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing index file: %w", err)
	}
	return nil
}

// LoadIndex reads an index bundle from path and validates its consistency.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var x Index
	if err := gob.NewDecoder(f).Decode(&x); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if len(x.Vectors) != len(x.IDs) {
		return nil, fmt.Errorf("corrupt index: %d vectors but %d ids", len(x.Vectors), len(x.IDs))
	}
	for i, v := range x.Vectors {
		if len(v) != x.Dim {
			return nil, fmt.Errorf("corrupt index: vector %d has dimension %d, expected %d", i, len(v), x.Dim)
		}
	}
	return &x, nil
}
