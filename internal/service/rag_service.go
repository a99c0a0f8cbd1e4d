package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"ai-note/backend/internal/llm"
	"ai-note/backend/internal/model"
	"ai-note/backend/internal/repository"
	"ai-note/backend/internal/vectorstore"
)

// summarySystemPrompt constrains the model to the supplied excerpts; the
// summary must never invent content that retrieval did not produce.
const summarySystemPrompt = `You are a conversation analysis assistant. Answer the user's query using only the provided excerpts of past conversations.
If the excerpts contain relevant information, summarize it in at most three concise sentences.
If they do not, state clearly that nothing relevant was found.
Never add information that is not present in the excerpts.`

// NoResultsSummary is returned when the vector index yields nothing; no
// completion call is spent on an empty context.
const NoResultsSummary = "No relevant past conversations were found."

// backfillPageLimit bounds how many conversations one backfill pass pulls
// from the store.
const backfillPageLimit = 1000

// RAGConfig tunes the summarization call and its retry policy. Zero values
// fall back to defaults; Temperature is a pointer so an explicit 0 stays
// distinguishable from unset. The backoff bounds are injectable so tests do
// not sleep for real.
type RAGConfig struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func (c *RAGConfig) applyDefaults() {
	if c.Temperature == nil {
		t := 0.3
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 300
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.MinBackoff == 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = time.Minute
	}
}

// RAGService is the retrieval-augmented-generation orchestrator: it
// backfills the vector index from the conversation store, runs semantic
// queries and summarizes the retrieved chunks with the completion
// capability.
type RAGService struct {
	repo  repository.Repository
	index vectorstore.Index
	llm   llm.CompletionProvider
	cfg   RAGConfig
}

func NewRAGService(repo repository.Repository, index vectorstore.Index, provider llm.CompletionProvider, cfg RAGConfig) *RAGService {
	cfg.applyDefaults()
	return &RAGService{repo: repo, index: index, llm: provider, cfg: cfg}
}

// Backfill (re)indexes conversations from the authoritative store into the
// vector index. sinceDays restricts to a recency window; zero or negative
// means everything. Chunk ids are deterministic, so re-running converges
// instead of growing the index. Returns the number of chunks written.
func (s *RAGService) Backfill(ctx context.Context, sinceDays int) (int, error) {
	var (
		conversations []*model.Conversation
		err           error
	)
	if sinceDays > 0 {
		conversations, err = s.repo.Recent(ctx, sinceDays, backfillPageLimit)
	} else {
		conversations, err = s.repo.ListByTimeRange(ctx, nil, nil, backfillPageLimit, 0)
	}
	if err != nil {
		return 0, fmt.Errorf("could not list conversations for backfill: %w", err)
	}

	full := make([]model.FullConversation, 0, len(conversations))
	for _, conv := range conversations {
		messages, err := s.repo.GetMessages(ctx, conv.ID)
		if err != nil {
			slog.Error("Skipping conversation during backfill.", "conversation_id", conv.ID, "error", err)
			continue
		}
		full = append(full, model.FullConversation{Conversation: *conv, Messages: messages})
	}

	written := s.index.UpsertBatch(ctx, full)
	slog.Info("Backfill finished.", "conversations", len(full), "chunks_written", written)
	return written, nil
}

// Search runs the semantic query and summarizes the hits. It always
// returns a value: retrieval failures yield the no-results answer and a
// summarization failure yields a visible degraded summary string while the
// retrieved results stay intact.
func (s *RAGService) Search(ctx context.Context, query string, topK int) *model.RAGResult {
	results, err := s.index.Query(ctx, query, topK)
	if err != nil {
		slog.Warn("Vector query failed, returning empty result.", "query", query, "error", err)
		results = nil
	}
	if len(results) == 0 {
		return &model.RAGResult{Query: query, Summary: NoResultsSummary, Results: []model.RetrievedChunk{}}
	}

	var sb strings.Builder
	for i, res := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Snippet %d:\n%s", i+1, res.Text)
	}

	summary, err := s.generateSummary(ctx, query, sb.String())
	if err != nil {
		// Retrieval must not fail loudly over a summarization hiccup; the
		// results remain independently useful.
		summary = fmt.Sprintf("Failed to generate summary: %v", err)
	}

	return &model.RAGResult{Query: query, Summary: summary, Results: results}
}

// generateSummary calls the completion capability with randomized
// exponential backoff between attempts. No store lock is held here; the
// sleeps only delay this one request.
func (s *RAGService) generateSummary(ctx context.Context, query, contextBlock string) (string, error) {
	req := &llm.CompletionRequest{
		Model: s.cfg.Model,
		Messages: []llm.Message{
			{Role: model.RoleSystem, Content: summarySystemPrompt},
			{Role: model.RoleUser, Content: fmt.Sprintf("Query: %s\n\nPast conversation excerpts:\n%s", query, contextBlock)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		text, err := s.llm.Complete(ctx, req)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		slog.Warn("Summary generation attempt failed.", "attempt", attempt, "max_attempts", s.cfg.MaxAttempts, "error", err)
		if attempt < s.cfg.MaxAttempts {
			time.Sleep(s.backoff(attempt))
		}
	}
	return "", fmt.Errorf("all %d attempts failed: %w", s.cfg.MaxAttempts, lastErr)
}

// backoff returns a jittered exponential delay: uniform over (0, cap] where
// cap doubles per attempt up to MaxBackoff.
func (s *RAGService) backoff(attempt int) time.Duration {
	ceiling := s.cfg.MinBackoff << uint(attempt-1)
	if ceiling > s.cfg.MaxBackoff || ceiling <= 0 {
		ceiling = s.cfg.MaxBackoff
	}
	return time.Duration(rand.Int63n(int64(ceiling))) + 1
}
