package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ai-note/backend/internal/api"
	"ai-note/backend/internal/backup"
	"ai-note/backend/internal/chunker"
	"ai-note/backend/internal/config"
	"ai-note/backend/internal/database"
	"ai-note/backend/internal/embedding"
	"ai-note/backend/internal/llm"
	"ai-note/backend/internal/repository"
	"ai-note/backend/internal/service"
	"ai-note/backend/internal/vectorstore"
)

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	logConfigSource()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Successfully connected to SQLite database.")

	if database.EnableFTS(db) {
		slog.Info("Full-text search index is active.")
	} else {
		slog.Warn("Full-text search unavailable, keyword search will use substring scans.")
	}

	backupWriter, err := backup.NewWriter(cfg.BackupDir)
	if err != nil {
		slog.Error("Failed to initialize backup writer", "error", err)
		return 1
	}

	repo := repository.NewSQLiteRepository(db, backupWriter)

	splitter, err := chunker.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		slog.Error("Failed to create chunker", "error", err)
		return 1
	}

	embedProvider := embedding.NewOpenAIProvider(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel)
	batchEmbedder, err := embedding.NewBatchEmbedder(embedProvider, cfg.EmbedBatchSize, cfg.EmbedDimension, 500*time.Millisecond)
	if err != nil {
		slog.Error("Failed to create embedder", "error", err)
		return 1
	}

	index, err := vectorstore.New(cfg.VectorDBPath, "conversations", splitter, batchEmbedder)
	if err != nil {
		slog.Error("Failed to open vector index", "error", err)
		return 1
	}
	slog.Info("Vector index ready.", "chunks", index.Count())

	completionProvider := llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey)

	chatService := service.NewChatService(repo, completionProvider, cfg.ChatModel, cfg.SystemPrompt)
	searchService := service.NewSearchService(repo, cfg.SearchContextChars)
	ragService := service.NewRAGService(repo, index, completionProvider, service.RAGConfig{Model: cfg.ChatModel})

	chatHandler := api.NewChatHandler(chatService)
	searchHandler := api.NewSearchHandler(searchService, ragService, index)
	router := api.NewRouter(chatHandler, searchHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Long-running endpoints enforce their own timeouts via middleware.
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("Starting server", "port", cfg.AppPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
