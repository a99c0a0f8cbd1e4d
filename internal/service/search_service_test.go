package service_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-note/backend/internal/database"
	"ai-note/backend/internal/model"
	"ai-note/backend/internal/repository"
	"ai-note/backend/internal/service"
)

func seedConversation(t *testing.T, repo repository.Repository, id string, createdAt time.Time, contents ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateConversation(ctx, &model.Conversation{
		ID: id, Title: "conv " + id, Model: "m", CreatedAt: createdAt,
	}))
	for i, content := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, repo.AddMessage(ctx, &model.Message{
			ID: id + "-m" + string(rune('0'+i)), ConversationID: id,
			Role: role, Content: content, SequenceID: i, Timestamp: createdAt,
		}))
	}
}

func TestSearchKeyword_FullTextPath(t *testing.T) {
	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if !database.EnableFTS(db) {
		t.Skip("sqlite driver built without fts5 support")
	}

	repo := repository.NewSQLiteRepository(db, nil)
	searchService := service.NewSearchService(repo, 80)
	now := time.Now().UTC()

	seedConversation(t, repo, "c1", now, "how do I deploy with terraform", "run terraform apply")
	seedConversation(t, repo, "c2", now.Add(time.Minute), "unrelated chatter", "indeed")

	matches := searchService.SearchKeyword(context.Background(), "terraform", 10)

	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].Conversation.ID)
	// Both messages of c1 match and are folded into one record.
	require.Len(t, matches[0].Contexts, 2)
	for _, c := range matches[0].Contexts {
		assert.Contains(t, c, "terraform")
	}
}

func TestSearchKeyword_FallsBackWithoutFTS(t *testing.T) {
	// EnableFTS is deliberately not called: the full-text query errors and
	// the service must degrade to the substring scan transparently.
	repo := setupTestRepo(t)
	searchService := service.NewSearchService(repo, 80)
	now := time.Now().UTC()

	seedConversation(t, repo, "c1", now, "tell me about Kubernetes", "it orchestrates containers")

	matches := searchService.SearchKeyword(context.Background(), "kubernetes", 10)

	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].Conversation.ID)
	require.Len(t, matches[0].Contexts, 1)
	assert.Contains(t, matches[0].Contexts[0], "Kubernetes")
}

func TestSearchKeyword_NeverErrors(t *testing.T) {
	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(db, nil)
	searchService := service.NewSearchService(repo, 80)

	// With the database closed both the full-text path and the fallback
	// fail; the caller still gets an empty, non-nil result.
	require.NoError(t, db.Close())

	matches := searchService.SearchKeyword(context.Background(), "anything", 10)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestSearchKeyword_ContextWindowing(t *testing.T) {
	repo := setupTestRepo(t)
	searchService := service.NewSearchService(repo, 10)
	now := time.Now().UTC()

	padding := strings.Repeat("x", 100)
	content := padding + " needle " + padding
	seedConversation(t, repo, "c1", now, content, "reply")

	matches := searchService.SearchKeyword(context.Background(), "needle", 10)

	require.Len(t, matches, 1)
	require.Len(t, matches[0].Contexts, 1)
	window := matches[0].Contexts[0]

	assert.Contains(t, window, "needle")
	assert.True(t, strings.HasPrefix(window, "..."))
	assert.True(t, strings.HasSuffix(window, "..."))
	// 10 runes each side plus the keyword and the ellipses.
	assert.Less(t, len(window), len(content))
}

func TestSearchKeyword_ShortContentKeptWhole(t *testing.T) {
	repo := setupTestRepo(t)
	searchService := service.NewSearchService(repo, 80)
	now := time.Now().UTC()

	seedConversation(t, repo, "c1", now, "short needle here", "reply")

	matches := searchService.SearchKeyword(context.Background(), "needle", 10)

	require.Len(t, matches, 1)
	assert.Equal(t, "short needle here", matches[0].Contexts[0])
}
