package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	app_errors "ai-note/backend/internal/errors"
	"ai-note/backend/internal/llm"
	"ai-note/backend/internal/model"
	"ai-note/backend/internal/repository"
)

// metadata key under which a conversation remembers the system prompt it
// was started with.
const metadataSystemPrompt = "system_prompt"

type ChatService struct {
	repo         repository.Repository
	llm          llm.CompletionProvider
	defaultModel string
	systemPrompt string
}

// StartChatRequest is the structure for a new exchange from the client.
// An empty ConversationID starts a new conversation.
type StartChatRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content" validate:"required,min=1"`
	Model          string `json:"model"`
}

func NewChatService(repo repository.Repository, provider llm.CompletionProvider, defaultModel, systemPrompt string) *ChatService {
	return &ChatService{repo: repo, llm: provider, defaultModel: defaultModel, systemPrompt: systemPrompt}
}

// HandleMessage routes an exchange to a new or an existing conversation.
func (s *ChatService) HandleMessage(ctx context.Context, req *StartChatRequest) (*model.FullConversation, error) {
	if req.ConversationID == "" {
		return s.startConversation(ctx, req)
	}
	return s.continueConversation(ctx, req.ConversationID, req.Content)
}

// startConversation runs the completion first and persists the whole
// exchange afterwards, so a failed model call leaves no half-empty
// conversation behind.
func (s *ChatService) startConversation(ctx context.Context, req *StartChatRequest) (*model.FullConversation, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = s.defaultModel
	}

	llmMessages := []llm.Message{}
	if s.systemPrompt != "" {
		llmMessages = append(llmMessages, llm.Message{Role: model.RoleSystem, Content: s.systemPrompt})
	}
	llmMessages = append(llmMessages, llm.Message{Role: model.RoleUser, Content: req.Content})

	reply, err := s.llm.Complete(ctx, &llm.CompletionRequest{Model: modelName, Messages: llmMessages})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	conv := &model.Conversation{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     truncate(req.Content, 50),
		Model:     modelName,
		CreatedAt: time.Now().UTC(),
	}
	if s.systemPrompt != "" {
		conv.Metadata = map[string]string{metadataSystemPrompt: s.systemPrompt}
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, mapRepositoryError(err)
	}

	seq := 0
	var messages []model.Message
	if s.systemPrompt != "" {
		messages = append(messages, newMessage(conv.ID, model.RoleSystem, s.systemPrompt, seq))
		seq++
	}
	messages = append(messages, newMessage(conv.ID, model.RoleUser, req.Content, seq))
	messages = append(messages, newMessage(conv.ID, model.RoleAssistant, reply, seq+1))

	for i := range messages {
		if err := s.repo.AddMessage(ctx, &messages[i]); err != nil {
			return nil, mapRepositoryError(err)
		}
	}

	return &model.FullConversation{Conversation: *conv, Messages: messages}, nil
}

// continueConversation appends the user's message before calling the model:
// once the user has spoken, that message must survive even when the
// completion fails.
func (s *ChatService) continueConversation(ctx context.Context, conversationID, content string) (*model.FullConversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	history, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	nextSeq := 0
	if len(history) > 0 {
		nextSeq = history[len(history)-1].SequenceID + 1
	}

	userMessage := newMessage(conversationID, model.RoleUser, content, nextSeq)
	if err := s.repo.AddMessage(ctx, &userMessage); err != nil {
		return nil, mapRepositoryError(err)
	}
	history = append(history, userMessage)

	llmMessages := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		llmMessages = append(llmMessages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	reply, err := s.llm.Complete(ctx, &llm.CompletionRequest{Model: conv.Model, Messages: llmMessages})
	if err != nil {
		slog.Error("Completion failed after persisting the user message.",
			"conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	assistantMessage := newMessage(conversationID, model.RoleAssistant, reply, nextSeq+1)
	if err := s.repo.AddMessage(ctx, &assistantMessage); err != nil {
		return nil, mapRepositoryError(err)
	}
	history = append(history, assistantMessage)

	return &model.FullConversation{Conversation: *conv, Messages: history}, nil
}

// GetFullConversation retrieves a conversation's metadata and all its
// messages in sequence order.
func (s *ChatService) GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	messages, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return &model.FullConversation{Conversation: *conv, Messages: messages}, nil
}

// ListRecent lists conversations created within the last `days` days.
func (s *ChatService) ListRecent(ctx context.Context, days, limit int) ([]*model.Conversation, error) {
	convs, err := s.repo.Recent(ctx, days, limit)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return convs, nil
}

// ListByModel lists conversations held with a specific model backend.
func (s *ChatService) ListByModel(ctx context.Context, modelName string, limit, offset int) ([]*model.Conversation, error) {
	convs, err := s.repo.ListByModel(ctx, modelName, limit, offset)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	existed, err := s.repo.DeleteConversation(ctx, conversationID)
	if err != nil {
		return mapRepositoryError(err)
	}
	if !existed {
		return app_errors.ErrNotFound
	}
	return nil
}

// SetFeedback sets or clears the feedback tag of a message. A nil feedback
// clears the tag.
func (s *ChatService) SetFeedback(ctx context.Context, messageID string, feedback *string) error {
	if feedback != nil && *feedback != model.FeedbackLike && *feedback != model.FeedbackDislike {
		return fmt.Errorf("%w: feedback must be %q or %q", app_errors.ErrValidation, model.FeedbackLike, model.FeedbackDislike)
	}
	if err := s.repo.UpdateMessageFeedback(ctx, messageID, feedback); err != nil {
		return mapRepositoryError(err)
	}
	return nil
}

func newMessage(conversationID, role, content string, seq int) model.Message {
	return model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		SequenceID:     seq,
		Timestamp:      time.Now().UTC(),
	}
}

// mapRepositoryError translates repository sentinels into domain errors.
// Anything unrecognized on a write path is a storage failure and is always
// surfaced.
func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return app_errors.ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", app_errors.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", app_errors.ErrStorage, err)
	}
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
