package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"ai-note/backend/internal/backup"
	"ai-note/backend/internal/model"
)

type sqliteRepository struct {
	db     *sql.DB
	backup *backup.Writer
}

// NewSQLiteRepository creates the sqlite-backed conversation store. The
// backup writer is optional; when nil no JSON mirror is kept.
func NewSQLiteRepository(db *sql.DB, backup *backup.Writer) Repository {
	return &sqliteRepository{db: db, backup: backup}
}

func (r *sqliteRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	metadata, err := json.Marshal(metadataOrEmpty(conv.Metadata))
	if err != nil {
		return fmt.Errorf("could not marshal conversation metadata: %w", err)
	}

	query := "INSERT INTO conversations (id, user_id, title, model, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)"
	_, err = r.db.ExecContext(ctx, query,
		conv.ID, nullString(conv.UserID), conv.Title, conv.Model, conv.CreatedAt.UTC(), string(metadata))
	if err != nil {
		return mapSQLiteError(err)
	}

	// The primary insert has committed; a backup failure must not undo it.
	// Durability of the primary record outranks the mirror.
	if r.backup != nil {
		if err := r.backup.Append(conv); err != nil {
			slog.Error("Failed to append conversation to JSON backup", "conversation_id", conv.ID, "error", err)
		}
	}
	return nil
}

func (r *sqliteRepository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := "SELECT id, user_id, title, model, created_at, metadata FROM conversations WHERE id = ?"
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (r *sqliteRepository) ListByTimeRange(ctx context.Context, start, end *time.Time, limit, offset int) ([]*model.Conversation, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, user_id, title, model, created_at, metadata FROM conversations")
	var args []any
	var conds []string
	if start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, start.UTC())
	}
	if end != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, end.UTC())
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	return r.queryConversations(ctx, sb.String(), args...)
}

func (r *sqliteRepository) ListByModel(ctx context.Context, modelName string, limit, offset int) ([]*model.Conversation, error) {
	query := `SELECT id, user_id, title, model, created_at, metadata FROM conversations
		WHERE model = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	return r.queryConversations(ctx, query, modelName, limit, offset)
}

func (r *sqliteRepository) Recent(ctx context.Context, days, limit int) ([]*model.Conversation, error) {
	start := time.Now().UTC().AddDate(0, 0, -days)
	return r.ListByTimeRange(ctx, &start, nil, limit, 0)
}

// DeleteConversation removes the messages and the conversation in one
// transaction. If any statement fails the whole deletion rolls back, so a
// conversation can never lose its messages without disappearing itself.
func (r *sqliteRepository) DeleteConversation(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return false, fmt.Errorf("could not delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("could not delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *sqliteRepository) AddMessage(ctx context.Context, msg *model.Message) error {
	query := `INSERT INTO messages (id, conversation_id, role, content, sequence_id, timestamp, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.SequenceID, msg.Timestamp.UTC(), nullStringPtr(msg.Feedback))
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

func (r *sqliteRepository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `SELECT id, conversation_id, role, content, sequence_id, timestamp, feedback
		FROM messages WHERE conversation_id = ? ORDER BY sequence_id ASC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepository) UpdateMessageFeedback(ctx context.Context, messageID string, feedback *string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE messages SET feedback = ? WHERE id = ?", nullStringPtr(feedback), messageID)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchMessages runs a ranked FTS5 match joined back to the messages and
// conversations tables. It errors when the virtual table is missing or the
// engine rejects the query; the search service degrades to ScanMessages.
func (r *sqliteRepository) SearchMessages(ctx context.Context, keyword string, limit int) ([]model.MessageMatch, error) {
	query := `SELECT c.id, c.user_id, c.title, c.model, c.created_at, c.metadata,
			m.id, m.conversation_id, m.role, m.content, m.sequence_id, m.timestamp, m.feedback
		FROM messages_fts fts
		JOIN messages m ON m.rowid = fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`
	return r.queryMatches(ctx, query, quoteFTSQuery(keyword), limit)
}

// ScanMessages is the fallback substring scan. LIKE is case-insensitive for
// ASCII in SQLite, which satisfies the case-sensitivity floor.
func (r *sqliteRepository) ScanMessages(ctx context.Context, keyword string, limit int) ([]model.MessageMatch, error) {
	query := `SELECT c.id, c.user_id, c.title, c.model, c.created_at, c.metadata,
			m.id, m.conversation_id, m.role, m.content, m.sequence_id, m.timestamp, m.feedback
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.content LIKE '%' || ? || '%'
		ORDER BY c.created_at DESC, m.sequence_id ASC
		LIMIT ?`
	return r.queryMatches(ctx, query, keyword, limit)
}

func (r *sqliteRepository) queryConversations(ctx context.Context, query string, args ...any) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (r *sqliteRepository) queryMatches(ctx context.Context, query string, args ...any) ([]model.MessageMatch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.MessageMatch
	for rows.Next() {
		var (
			conv     model.Conversation
			userID   sql.NullString
			metadata string
			msg      model.Message
			feedback sql.NullString
		)
		if err := rows.Scan(&conv.ID, &userID, &conv.Title, &conv.Model, &conv.CreatedAt, &metadata,
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.SequenceID, &msg.Timestamp, &feedback); err != nil {
			return nil, err
		}
		if userID.Valid {
			conv.UserID = userID.String
		}
		if err := json.Unmarshal([]byte(metadata), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("could not unmarshal conversation metadata: %w", err)
		}
		if feedback.Valid {
			msg.Feedback = &feedback.String
		}
		matches = append(matches, model.MessageMatch{Conversation: conv, Message: msg})
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv     model.Conversation
		userID   sql.NullString
		metadata string
	)
	if err := row.Scan(&conv.ID, &userID, &conv.Title, &conv.Model, &conv.CreatedAt, &metadata); err != nil {
		return nil, err
	}
	if userID.Valid {
		conv.UserID = userID.String
	}
	if err := json.Unmarshal([]byte(metadata), &conv.Metadata); err != nil {
		return nil, fmt.Errorf("could not unmarshal conversation metadata: %w", err)
	}
	return &conv, nil
}

func scanMessage(row rowScanner) (model.Message, error) {
	var (
		msg      model.Message
		feedback sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.SequenceID, &msg.Timestamp, &feedback); err != nil {
		return model.Message{}, err
	}
	if feedback.Valid {
		msg.Feedback = &feedback.String
	}
	return msg, nil
}

// mapSQLiteError translates driver constraint errors into ErrDuplicate so
// callers never depend on the sqlite3 package.
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// quoteFTSQuery wraps the keyword in double quotes so FTS5 treats it as a
// phrase instead of query syntax. Operators in user input would otherwise
// raise syntax errors.
func quoteFTSQuery(keyword string) string {
	return `"` + strings.ReplaceAll(keyword, `"`, `""`) + `"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
