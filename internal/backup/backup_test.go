package backup_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-note/backend/internal/backup"
	"ai-note/backend/internal/model"
)

func TestWriter_AppendBucketsByDate(t *testing.T) {
	dir := t.TempDir()
	writer, err := backup.NewWriter(dir)
	require.NoError(t, err)

	created := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	first := &model.Conversation{ID: "c1", Title: "first", Model: "m", CreatedAt: created}
	second := &model.Conversation{ID: "c2", Title: "second", Model: "m", CreatedAt: created.Add(time.Hour)}
	otherDay := &model.Conversation{ID: "c3", Title: "third", Model: "m", CreatedAt: created.AddDate(0, 0, 1)}

	require.NoError(t, writer.Append(first))
	require.NoError(t, writer.Append(second))
	require.NoError(t, writer.Append(otherDay))

	var records []model.BackupRecord
	data, err := os.ReadFile(filepath.Join(dir, "2025-06-01.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))

	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0].ID)
	assert.Equal(t, "c2", records[1].ID)
	assert.Equal(t, "2025-06-01T15:30:00Z", records[0].Timestamp)

	data, err = os.ReadFile(filepath.Join(dir, "2025-06-02.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "c3", records[0].ID)
}

func TestWriter_AppendPreservesCorruptBucket(t *testing.T) {
	dir := t.TempDir()
	writer, err := backup.NewWriter(dir)
	require.NoError(t, err)

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(dir, "2025-06-01.json")
	corruptContent := []byte("{not json")
	require.NoError(t, os.WriteFile(path, corruptContent, 0640))

	conv := &model.Conversation{ID: "c1", Title: "t", Model: "m", CreatedAt: created}
	require.NoError(t, writer.Append(conv))

	// A fresh array replaces the bucket.
	var records []model.BackupRecord
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "c1", records[0].ID)

	// The unparsable original is kept aside, byte for byte, for manual
	// recovery instead of being overwritten.
	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, corruptContent, kept)
}
