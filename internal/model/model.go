package model

import (
	"time"
)

// Message roles form a closed set, enforced again by a CHECK constraint
// in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Feedback values a message may carry. An absent feedback is the default.
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// Conversation stores metadata about one chat session. It is created once
// and never mutated afterwards except by deletion.
type Conversation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Title     string            `json:"title"`
	Model     string            `json:"model"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Message stores a single message in a conversation. SequenceID orders
// messages within a conversation; timestamps are not used for ordering
// because model latency can reorder them. Only Feedback is mutable.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceID     int       `json:"sequence_id"`
	Timestamp      time.Time `json:"timestamp"`
	Feedback       *string   `json:"feedback,omitempty"`
}

// FullConversation includes the conversation metadata and all its messages
// in ascending sequence order.
type FullConversation struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Chunk is a bounded text window derived from a conversation transcript.
// It is not persisted relationally; it lives only as a vector index entry.
type Chunk struct {
	ID        string            `json:"id"`
	ParentID  string            `json:"parent_id"`
	Model     string            `json:"model"`
	Timestamp time.Time         `json:"timestamp"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
}

// MessageMatch is a message row joined to its parent conversation,
// produced by the keyword search primitives.
type MessageMatch struct {
	Conversation Conversation
	Message      Message
}

// ConversationMatch is one keyword search output record: a conversation
// plus the ordered match contexts found within it.
type ConversationMatch struct {
	Conversation Conversation `json:"conversation"`
	Contexts     []string     `json:"contexts"`
}

// RetrievedChunk is a vector query hit. RelevanceScore is a monotonic
// ordering proxy in [0,1], not a calibrated probability.
type RetrievedChunk struct {
	ID             string            `json:"id"`
	Text           string            `json:"text"`
	Metadata       map[string]string `json:"metadata"`
	RelevanceScore float64           `json:"relevance_score"`
}

// RAGResult is the structured answer of a semantic search: the retrieved
// chunks plus an LLM summary of them. Summary may be a degraded string
// when summarization failed; Results stay independently useful.
type RAGResult struct {
	Query   string           `json:"query"`
	Summary string           `json:"summary"`
	Results []RetrievedChunk `json:"results"`
}

// BackupRecord mirrors one conversation into the date-bucketed JSON backup
// file.
type BackupRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Title     string            `json:"title"`
	Model     string            `json:"model"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}
