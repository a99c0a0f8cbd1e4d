package embedding_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-note/backend/internal/embedding"
)

func TestOpenAIProvider_Embed(t *testing.T) {
	t.Run("Success - restores input order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			// Entries come back reordered; the provider must restore them.
			_, _ = w.Write([]byte(`{"data":[
				{"index":1,"embedding":[0.4,0.5]},
				{"index":0,"embedding":[0.1,0.2]}
			]}`))
		}))
		defer server.Close()

		provider := embedding.NewOpenAIProvider(server.URL, "test-key", "embed-model")
		vectors, err := provider.Embed(context.Background(), []string{"first", "second"})

		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
		assert.Equal(t, []float32{0.4, 0.5}, vectors[1])
	})

	t.Run("Failure - missing vector", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1]}]}`))
		}))
		defer server.Close()

		provider := embedding.NewOpenAIProvider(server.URL, "test-key", "embed-model")
		_, err := provider.Embed(context.Background(), []string{"first", "second"})

		assert.Error(t, err)
	})

	t.Run("Failure - non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusForbidden)
		}))
		defer server.Close()

		provider := embedding.NewOpenAIProvider(server.URL, "test-key", "embed-model")
		_, err := provider.Embed(context.Background(), []string{"text"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})
}
