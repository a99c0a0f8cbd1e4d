package repository

import (
	"context"
	"time"

	"ai-note/backend/internal/model"
)

// Repository defines the interface for conversation storage operations.
// This interface makes it easy to switch database implementations.
//
// All write operations are transactional: they either succeed completely or
// leave prior state unchanged. The repository does not compute message
// sequence numbers; sequencing logic belongs to the chat-session owner.
type Repository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// ListByTimeRange returns conversations ordered by creation time
	// descending. Both bounds are optional and inclusive when present.
	ListByTimeRange(ctx context.Context, start, end *time.Time, limit, offset int) ([]*model.Conversation, error)
	ListByModel(ctx context.Context, modelName string, limit, offset int) ([]*model.Conversation, error)
	// Recent is sugar over ListByTimeRange with start = now - days.
	Recent(ctx context.Context, days, limit int) ([]*model.Conversation, error)
	// DeleteConversation removes a conversation and all of its messages in
	// one transaction and reports whether the conversation existed.
	DeleteConversation(ctx context.Context, id string) (bool, error)

	AddMessage(ctx context.Context, msg *model.Message) error
	// GetMessages returns a conversation's messages ascending by sequence.
	GetMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// UpdateMessageFeedback sets or clears the feedback tag, the only
	// mutable field of a message.
	UpdateMessageFeedback(ctx context.Context, messageID string, feedback *string) error

	// SearchMessages queries the full-text index. It returns an error when
	// the index is unavailable; callers degrade to ScanMessages.
	SearchMessages(ctx context.Context, keyword string, limit int) ([]model.MessageMatch, error)
	// ScanMessages is the substring fallback over message content, ordered
	// by conversation recency.
	ScanMessages(ctx context.Context, keyword string, limit int) ([]model.MessageMatch, error)
}
