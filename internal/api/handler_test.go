package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-note/backend/internal/api"
	"ai-note/backend/internal/database"
	"ai-note/backend/internal/llm"
	"ai-note/backend/internal/model"
	"ai-note/backend/internal/repository"
	"ai-note/backend/internal/service"
)

// stubLLM answers every completion with a fixed reply.
type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(context.Context, *llm.CompletionRequest) (string, error) {
	return s.reply, nil
}

// stubIndex is a minimal in-memory vector index for routing tests.
type stubIndex struct {
	results []model.RetrievedChunk
}

func (s *stubIndex) Upsert(context.Context, []model.Chunk) error { return nil }

func (s *stubIndex) UpsertBatch(_ context.Context, conversations []model.FullConversation) int {
	return len(conversations)
}

func (s *stubIndex) Query(context.Context, string, int) ([]model.RetrievedChunk, error) {
	return s.results, nil
}

func (s *stubIndex) Count() int { return len(s.results) }

// setupRouter wires real services over a temp database with stubbed
// model backends, then returns the fully configured router.
func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewSQLiteRepository(db, nil)
	completions := &stubLLM{reply: "stub reply"}
	index := &stubIndex{results: []model.RetrievedChunk{
		{ID: "c1_chunk_0", Text: "user: hi\nassistant: hello", RelevanceScore: 0.8},
	}}

	chatService := service.NewChatService(repo, completions, "test-model", "")
	searchService := service.NewSearchService(repo, 80)
	ragService := service.NewRAGService(repo, index, completions, service.RAGConfig{
		MinBackoff: time.Microsecond,
		MaxBackoff: time.Millisecond,
	})

	chatHandler := api.NewChatHandler(chatService)
	searchHandler := api.NewSearchHandler(searchService, ragService, index)
	return api.NewRouter(chatHandler, searchHandler)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	router := setupRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestChatMessageLifecycle(t *testing.T) {
	router := setupRouter(t)

	// Start a conversation.
	rr := doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{
		"content": "hello there",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var full model.FullConversation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &full))
	require.NotEmpty(t, full.ID)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, "stub reply", full.Messages[1].Content)

	// Continue it.
	rr = doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{
		"conversation_id": full.ID,
		"content":         "and another thing",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// Fetch it back.
	rr = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+full.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &full))
	assert.Len(t, full.Messages, 4)

	// Tag the last reply.
	lastID := full.Messages[3].ID
	rr = doJSON(t, router, http.MethodPut, "/api/v1/messages/"+lastID+"/feedback", map[string]any{
		"feedback": "like",
	})
	assert.Equal(t, http.StatusOK, rr.Code)

	// List it.
	rr = doJSON(t, router, http.MethodGet, "/api/v1/conversations?days=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var convs []model.Conversation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &convs))
	assert.Len(t, convs, 1)

	// Delete it and confirm it is gone.
	rr = doJSON(t, router, http.MethodDelete, "/api/v1/conversations/"+full.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+full.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChatMessage_Validation(t *testing.T) {
	router := setupRouter(t)

	t.Run("empty content", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{"content": ""})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSetFeedback_InvalidValue(t *testing.T) {
	router := setupRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{"content": "hi"})
	require.Equal(t, http.StatusOK, rr.Code)
	var full model.FullConversation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &full))

	rr = doJSON(t, router, http.MethodPut, "/api/v1/messages/"+full.Messages[0].ID+"/feedback", map[string]any{
		"feedback": "amazing",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchKeywordEndpoint(t *testing.T) {
	router := setupRouter(t)

	t.Run("missing query parameter", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/api/v1/search/keyword", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("finds stored content", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{
			"content": "remind me about the zanzibar migration",
		})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(t, router, http.MethodGet, "/api/v1/search/keyword?q=zanzibar", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var matches []model.ConversationMatch
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &matches))
		require.Len(t, matches, 1)
		assert.Contains(t, matches[0].Contexts[0], "zanzibar")
	})
}

func TestSearchSemanticEndpoint(t *testing.T) {
	router := setupRouter(t)

	t.Run("missing query", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/search/semantic", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("returns summary and results", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/search/semantic", map[string]any{
			"query": "what did we discuss",
			"top_k": 3,
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var result model.RAGResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, "stub reply", result.Summary)
		require.Len(t, result.Results, 1)
		assert.Equal(t, "c1_chunk_0", result.Results[0].ID)
	})
}

func TestIndexEndpoints(t *testing.T) {
	router := setupRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/chat/messages", map[string]any{"content": "hello"})
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("rebuild", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/search/index", map[string]any{"days_limit": 7})
		require.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "indexed", body["status"])
		assert.EqualValues(t, 1, body["chunks_written"])
	})

	t.Run("status", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/api/v1/search/index/status", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
		assert.EqualValues(t, 1, body["indexed_chunks"])
	})
}
