package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Provider is the opaque external embedding capability: it turns a batch of
// texts into one vector per text, and may fail per call.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchEmbedder adapts a Provider to the vector index: it calls the
// provider in bounded batches to respect rate limits, sleeps a fixed delay
// between batches, memoizes results, and substitutes zero vectors for a
// failed batch instead of aborting the whole call. Degraded entries are
// reported per text so downstream storage can tag them.
type BatchEmbedder struct {
	provider  Provider
	batchSize int
	dimension int
	delay     time.Duration
	cache     *ristretto.Cache
}

func NewBatchEmbedder(provider Provider, batchSize, dimension int, delay time.Duration) (*BatchEmbedder, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("embed batch size must be positive, got %d", batchSize)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embed dimension must be positive, got %d", dimension)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create embedding cache: %w", err)
	}
	return &BatchEmbedder{
		provider:  provider,
		batchSize: batchSize,
		dimension: dimension,
		delay:     delay,
		cache:     cache,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (e *BatchEmbedder) Dimension() int {
	return e.dimension
}

// EmbedAll embeds every text, returning one vector per input in order plus
// a parallel degraded flag. A degraded entry holds a zero vector because
// its batch failed; losing one batch is preferable to losing the rest.
func (e *BatchEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, []bool) {
	vectors := make([][]float32, len(texts))
	degraded := make([]bool, len(texts))

	// Serve cached texts first so re-indexing does not re-bill the API.
	var missIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			if vec, ok := cached.([]float32); ok {
				vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batchTexts := make([]string, 0, end-start)
		for _, idx := range missIdx[start:end] {
			batchTexts = append(batchTexts, texts[idx])
		}

		embeddings, err := e.provider.Embed(ctx, batchTexts)
		if err == nil && len(embeddings) != len(batchTexts) {
			err = fmt.Errorf("provider returned %d embeddings for %d texts", len(embeddings), len(batchTexts))
		}
		if err != nil {
			slog.Error("Embedding batch failed, substituting zero vectors.",
				"batch_start", start, "batch_size", len(batchTexts), "error", err)
			for _, idx := range missIdx[start:end] {
				vectors[idx] = make([]float32, e.dimension)
				degraded[idx] = true
			}
		} else {
			for j, idx := range missIdx[start:end] {
				vectors[idx] = embeddings[j]
				e.cache.Set(texts[idx], embeddings[j], int64(len(embeddings[j])*4))
			}
		}

		// Rate-limit pause between batches, never after the last one.
		if end < len(missIdx) {
			time.Sleep(e.delay)
		}
	}

	return vectors, degraded
}

// EmbedOne embeds a single text. The boolean reports degradation.
func (e *BatchEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, bool) {
	vectors, degraded := e.EmbedAll(ctx, []string{text})
	return vectors[0], degraded[0]
}
