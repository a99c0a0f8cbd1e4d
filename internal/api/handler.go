package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	app_errors "ai-note/backend/internal/errors"
	"ai-note/backend/internal/service"
)

// ChatHandler exposes conversation and message management over HTTP.
type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// HandleMessage accepts a user message and returns the updated conversation,
// creating a new one when no conversation_id is supplied.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req service.StartChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body: %v", app_errors.ErrValidation, err))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	conversation, err := h.chatService.HandleMessage(r.Context(), &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conversation)
}

// GetConversations lists conversations. Supported query parameters:
// days (recency window, default 7), limit (default 50) and model
// (filter by model backend, overrides the recency window).
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	if modelName := r.URL.Query().Get("model"); modelName != "" {
		offset := queryInt(r, "offset", 0)
		conversations, err := h.chatService.ListByModel(r.Context(), modelName, limit, offset)
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, conversations)
		return
	}

	days := queryInt(r, "days", 7)
	conversations, err := h.chatService.ListRecent(r.Context(), days, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conversations)
}

// GetConversation returns one conversation with its full message history.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conversation, err := h.chatService.GetFullConversation(r.Context(), conversationID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conversation)
}

// DeleteConversation removes a conversation and all of its messages.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chatService.DeleteConversation(r.Context(), conversationID); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// feedbackRequest carries the feedback tag for a message. A null feedback
// clears the tag.
type feedbackRequest struct {
	Feedback *string `json:"feedback"`
}

// SetFeedback sets or clears the like/dislike tag on a message.
func (h *ChatHandler) SetFeedback(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body: %v", app_errors.ErrValidation, err))
		return
	}

	if err := h.chatService.SetFeedback(r.Context(), messageID, req.Feedback); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// SearchHandler exposes keyword search, semantic search and vector index
// management over HTTP.
type SearchHandler struct {
	searchService *service.SearchService
	ragService    *service.RAGService
	index         interface{ Count() int }
}

func NewSearchHandler(searchService *service.SearchService, ragService *service.RAGService, index interface{ Count() int }) *SearchHandler {
	return &SearchHandler{searchService: searchService, ragService: ragService, index: index}
}

// SearchKeyword runs the keyword search. Query parameters: q (required) and
// limit (default 20).
func (h *SearchHandler) SearchKeyword(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		respondWithError(w, fmt.Errorf("%w: query parameter 'q' is required", app_errors.ErrValidation))
		return
	}
	limit := queryInt(r, "limit", 20)

	matches := h.searchService.SearchKeyword(r.Context(), keyword, limit)
	respondWithJSON(w, http.StatusOK, matches)
}

// semanticSearchRequest is the body for a semantic search call.
type semanticSearchRequest struct {
	Query string `json:"query" validate:"required,min=1"`
	TopK  int    `json:"top_k"`
}

// SearchSemantic runs the retrieval-augmented search and returns the
// retrieved chunks together with the generated summary.
func (h *SearchHandler) SearchSemantic(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body: %v", app_errors.ErrValidation, err))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	result := h.ragService.Search(r.Context(), req.Query, req.TopK)
	respondWithJSON(w, http.StatusOK, result)
}

// indexRequest configures a backfill pass. A zero DaysLimit indexes the
// whole store.
type indexRequest struct {
	DaysLimit int `json:"days_limit"`
}

// indexResponse reports the outcome of a backfill pass.
type indexResponse struct {
	Status        string `json:"status"`
	ChunksWritten int    `json:"chunks_written"`
}

// RebuildIndex backfills the vector index from the conversation store.
func (h *SearchHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, fmt.Errorf("%w: invalid request body: %v", app_errors.ErrValidation, err))
			return
		}
	}

	written, err := h.ragService.Backfill(r.Context(), req.DaysLimit)
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: %v", app_errors.ErrStorage, err))
		return
	}
	respondWithJSON(w, http.StatusOK, indexResponse{Status: "indexed", ChunksWritten: written})
}

// IndexStatus reports how many chunks the vector index currently holds.
func (h *SearchHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, IndexStatusResponse{
		Status:        "ready",
		IndexedChunks: h.index.Count(),
	})
}

// queryInt parses an integer query parameter with a default for absent or
// malformed values.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
