package model

import "time"

// ================ Config ================
type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:"localhost:8000"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:4200,http://localhost,https://localhost:4200,https://localhost,http://127.0.0.1,https://127.0.0.1"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`

	// ExposeTranscripts serves GET /users/{userId}/transcript for operators.
	ExposeTranscripts bool `envconfig:"SERVER_EXPOSE_TRANSCRIPTS" default:"false"`
}

type ChatModelConfig struct {
	Model           string  `envconfig:"MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens       int     `envconfig:"MODEL_MAX_TOKENS" default:"512"`
	Temperature     float32 `envconfig:"MODEL_TEMPERATURE" default:"0.2"`
	ReasoningEffort string  `envconfig:"MODEL_REASONING_EFFORT" default:"minimal"`
}

type SessionConfig struct {
	CheckpointTTL   time.Duration `envconfig:"CHECKPOINT_TTL" default:"30m"`
	MaxThreads      int           `envconfig:"CHECKPOINT_MAX_THREADS" default:"10000"`
	HistoryMaxTurns int           `envconfig:"HISTORY_MAX_TURNS" default:"10"`
}

type RetrievalConfig struct {
	IndexPath    string `envconfig:"VECTORDB_PATH" default:"data/vectordb/index.db"`
	DocumentPath string `envconfig:"VECTORDB_DOCUMENT_PATH" default:"data/documents"`
	TopK         int    `envconfig:"RETRIEVAL_TOP_K" default:"2"`

	// EmbeddingModel ranks passages by embedding similarity. Empty falls back to keyword ranking.
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
}

type OrdersConfig struct {
	Path string `envconfig:"SQLDB_PATH" default:"data/sqldb/inventory.db"`
}

type TranscriptConfig struct {
	TTL time.Duration `envconfig:"TRANSCRIPT_TTL" default:"24h"`
}
