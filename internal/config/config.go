package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort      int    `mapstructure:"APP_PORT"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	BackupDir    string `mapstructure:"BACKUP_DIR"`
	VectorDBPath string `mapstructure:"VECTORDB_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	// Chat-completion capability (OpenAI-compatible endpoint).
	LLMBaseURL   string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey    string `mapstructure:"LLM_API_KEY"`
	ChatModel    string `mapstructure:"CHAT_MODEL"`
	SystemPrompt string `mapstructure:"SYSTEM_PROMPT"`

	// Embedding capability.
	EmbedBaseURL   string `mapstructure:"EMBED_BASE_URL"`
	EmbedAPIKey    string `mapstructure:"EMBED_API_KEY"`
	EmbedModel     string `mapstructure:"EMBED_MODEL"`
	EmbedDimension int    `mapstructure:"EMBED_DIMENSION"`
	EmbedBatchSize int    `mapstructure:"EMBED_BATCH_SIZE"`

	// Chunking and retrieval.
	ChunkSize          int `mapstructure:"CHUNK_SIZE"`
	ChunkOverlap       int `mapstructure:"CHUNK_OVERLAP"`
	SearchContextChars int `mapstructure:"SEARCH_CONTEXT_CHARS"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("DATABASE_PATH", "data/conversations.db")
	viper.SetDefault("BACKUP_DIR", "data/backups")
	viper.SetDefault("VECTORDB_PATH", "data/vectordb")
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetDefault("LLM_BASE_URL", "https://openrouter.ai/api/v1")
	viper.SetDefault("LLM_API_KEY", "")
	viper.SetDefault("CHAT_MODEL", "qwen-turbo")
	viper.SetDefault("SYSTEM_PROMPT", "You are a helpful AI assistant.")

	viper.SetDefault("EMBED_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	viper.SetDefault("EMBED_API_KEY", "")
	viper.SetDefault("EMBED_MODEL", "multimodal-embedding-v1")
	viper.SetDefault("EMBED_DIMENSION", 1024)
	viper.SetDefault("EMBED_BATCH_SIZE", 10)

	viper.SetDefault("CHUNK_SIZE", 512)
	viper.SetDefault("CHUNK_OVERLAP", 50)
	viper.SetDefault("SEARCH_CONTEXT_CHARS", 80)

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./backend")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
