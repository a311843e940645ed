package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/basisfind/basisfind/internal/ollama"
)

// ErrModelInit is returned when the embedding model cannot be initialized.
// It is distinct from both "index not built" and "zero matches".
var ErrModelInit = errors.New("embedding model unavailable")

// Embedder generates text embeddings through a local Ollama instance. The
// model availability check runs once, lazily, on first use and its outcome is
// held for the process lifetime.
type Embedder struct {
	client *ollama.Client
	model  string

	initOnce sync.Once
	initErr  error
}

// NewEmbedder creates an Embedder using the given client and model name.
func NewEmbedder(client *ollama.Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) init(ctx context.Context) error {
	e.initOnce.Do(func() {
		if !e.client.IsRunning(ctx) {
			e.initErr = fmt.Errorf("%w: Ollama is not reachable", ErrModelInit)
			return
		}
		if !e.client.HasModel(ctx, e.model) {
			e.initErr = fmt.Errorf("%w: model %q is not installed", ErrModelInit, e.model)
		}
	})
	return e.initErr
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.init(ctx); err != nil {
		return nil, err
	}
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.init(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming Ollama.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.client.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
