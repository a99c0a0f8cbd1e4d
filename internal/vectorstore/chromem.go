package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"ai-note/backend/internal/chunker"
	"ai-note/backend/internal/embedding"
	"ai-note/backend/internal/model"
)

// Index is the persistent nearest-neighbor index over chunk embeddings.
type Index interface {
	// Upsert embeds the chunk texts and writes them keyed by chunk id.
	// Re-upserting an id overwrites instead of duplicating.
	Upsert(ctx context.Context, chunks []model.Chunk) error
	// UpsertBatch chunks and upserts many conversations. One conversation's
	// failure is logged and skipped, not fatal to the batch. Returns the
	// number of chunks actually written.
	UpsertBatch(ctx context.Context, conversations []model.FullConversation) int
	// Query embeds the text and returns the topK nearest chunks with a
	// relevance score in [0,1].
	Query(ctx context.Context, text string, topK int) ([]model.RetrievedChunk, error)
	// Count reports how many chunks the collection holds.
	Count() int
}

type chromemIndex struct {
	collection *chromem.Collection
	splitter   *chunker.Splitter
	embedder   *embedding.BatchEmbedder
}

// New opens (or creates) a persistent chromem-go collection at path. An
// empty path keeps the index in memory, which tests rely on.
func New(path, collectionName string, splitter *chunker.Splitter, embedder *embedding.BatchEmbedder) (Index, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("could not open vector database: %w", err)
		}
	}

	// Embeddings are always supplied by the batch embedder, so the
	// collection gets no embedding function of its own.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create collection: %w", err)
	}

	return &chromemIndex{collection: collection, splitter: splitter, embedder: embedder}, nil
}

func (idx *chromemIndex) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, degraded := idx.embedder.EmbedAll(ctx, texts)

	for i, ch := range chunks {
		metadata := make(map[string]string, len(ch.Metadata)+4)
		for k, v := range ch.Metadata {
			metadata[k] = v
		}
		metadata["parent_id"] = ch.ParentID
		metadata["model"] = ch.Model
		metadata["timestamp"] = ch.Timestamp.UTC().Format(time.RFC3339)
		if degraded[i] {
			// Zero-filled embedding; flagged so callers can tell it apart
			// from a genuinely low-similarity entry.
			metadata["degraded"] = "true"
		}

		doc := chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
		if err := idx.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document %s: %w", ch.ID, err)
		}
	}
	return nil
}

func (idx *chromemIndex) UpsertBatch(ctx context.Context, conversations []model.FullConversation) int {
	written := 0
	for i := range conversations {
		conv := &conversations[i]
		chunks := idx.splitter.SplitConversation(&conv.Conversation, conv.Messages)
		if len(chunks) == 0 {
			continue
		}
		if err := idx.Upsert(ctx, chunks); err != nil {
			slog.Error("Failed to index conversation, continuing with the rest.",
				"conversation_id", conv.ID, "error", err)
			continue
		}
		written += len(chunks)
	}
	return written
}

func (idx *chromemIndex) Query(ctx context.Context, text string, topK int) ([]model.RetrievedChunk, error) {
	// chromem rejects nResults above the collection size, so clamp first.
	if count := idx.collection.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	vector, degraded := idx.embedder.EmbedOne(ctx, text)
	if degraded {
		// A zero query vector would rank everything arbitrarily; an empty
		// result is the honest degraded answer on the read path.
		slog.Warn("Query embedding degraded, returning no results.", "query_len", len(text))
		return nil, nil
	}

	results, err := idx.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	retrieved := make([]model.RetrievedChunk, 0, len(results))
	for _, res := range results {
		// chromem reports cosine similarity; convert through the cosine
		// distance (bounded by 2) so the score lands in [0,1].
		distance := 1 - float64(res.Similarity)
		if math.IsNaN(distance) {
			// Zero-vector entries (degraded embeddings) normalize to NaN
			// and carry no ranking signal. A NaN score would also break
			// JSON encoding of the response.
			slog.Warn("Dropping degraded chunk from query results.", "chunk_id", res.ID)
			continue
		}
		retrieved = append(retrieved, model.RetrievedChunk{
			ID:             res.ID,
			Text:           res.Content,
			Metadata:       res.Metadata,
			RelevanceScore: 1 - distance/2,
		})
	}
	return retrieved, nil
}

func (idx *chromemIndex) Count() int {
	return idx.collection.Count()
}
