package backup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ai-note/backend/internal/model"
)

// Writer appends conversation mirrors to date-bucketed JSON files, one JSON
// array per day. The files are a disaster-recovery artifact, not an
// authoritative store: they are only ever appended to, never rewritten.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Append adds one conversation record to the bucket for its creation date.
// A missing bucket file starts a fresh array; an unparsable one is moved
// aside rather than overwritten, since even a corrupt backup may still hold
// recoverable content.
func (w *Writer) Append(conv *model.Conversation) error {
	record := toRecord(conv)

	path := filepath.Join(w.dir, conv.CreatedAt.UTC().Format("2006-01-02")+".json")

	var records []model.BackupRecord
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			records = nil
			corrupt := path + ".corrupt"
			if renameErr := os.Rename(path, corrupt); renameErr != nil {
				slog.Error("Failed to move corrupt backup bucket aside", "file", path, "error", renameErr)
			} else {
				slog.Warn("Backup bucket was corrupt, moved aside and starting a fresh one", "file", corrupt, "parse_error", err)
			}
		}
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal backup records: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("could not write backup file: %w", err)
	}
	return nil
}

func toRecord(conv *model.Conversation) model.BackupRecord {
	metadata := conv.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return model.BackupRecord{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Title:     conv.Title,
		Model:     conv.Model,
		Timestamp: conv.CreatedAt.UTC().Format(time.RFC3339),
		Metadata:  metadata,
	}
}
