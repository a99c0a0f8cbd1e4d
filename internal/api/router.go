package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures a new chi router with all the application's routes.
func NewRouter(chatHandler *ChatHandler, searchHandler *SearchHandler) *chi.Mux {
	r := chi.NewRouter()

	// --- Global Middleware ---
	// These are applied to every request.
	r.Use(middleware.RequestID) // Injects a unique request ID into the context.
	r.Use(middleware.RealIP)    // Sets the remote address to the real IP from proxy headers.
	r.Use(middleware.Logger)    // Logs the start and end of each request with useful info.
	r.Use(middleware.Recoverer) // Recovers from panics and returns a 500 error.

	// A simple health check endpoint. Crucial for container orchestration systems
	// like Kubernetes to perform liveness and readiness probes.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// --- API Version 1 Routes ---
	// All primary API endpoints are grouped under the /api/v1 prefix.
	r.Route("/api/v1", func(r chi.Router) {

		// Standard JSON API routes with a request timeout to prevent client
		// connections from hanging indefinitely.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// --- Conversations ---
			r.Get("/conversations", chatHandler.GetConversations)
			r.Get("/conversations/{conversationID}", chatHandler.GetConversation)
			r.Delete("/conversations/{conversationID}", chatHandler.DeleteConversation)

			// --- Messages ---
			r.Put("/messages/{messageID}/feedback", chatHandler.SetFeedback)

			// --- Search ---
			r.Get("/search/keyword", searchHandler.SearchKeyword)
			r.Get("/search/index/status", searchHandler.IndexStatus)
		})

		// Longer-running endpoints: chat exchanges and semantic search wait on
		// the model backend, and index rebuilds walk the whole store. They get
		// a wider timeout instead of none, since none of them stream.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))

			r.Post("/chat/messages", chatHandler.HandleMessage)
			r.Post("/search/semantic", searchHandler.SearchSemantic)
			r.Post("/search/index", searchHandler.RebuildIndex)
		})
	})

	return r
}
