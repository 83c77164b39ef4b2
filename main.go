package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/auto-support-pilot/server/internal/agent/graph"
	"github.com/auto-support-pilot/server/internal/agent/graph/conversations"
	"github.com/auto-support-pilot/server/internal/agent/graph/nodes"
	"github.com/auto-support-pilot/server/internal/agent/llm"
	"github.com/auto-support-pilot/server/internal/agent/model"
	"github.com/auto-support-pilot/server/internal/agent/repo"
	"github.com/auto-support-pilot/server/internal/agent/retrieval"
	"github.com/auto-support-pilot/server/internal/core"
	"github.com/auto-support-pilot/server/internal/server"
	"github.com/auto-support-pilot/server/internal/session"
	logx "github.com/auto-support-pilot/server/pkg/logger"
	pkgredis "github.com/auto-support-pilot/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Service configs
	Server     model.ServerConfig
	Model      model.ChatModelConfig
	Session    model.SessionConfig
	Retrieval  model.RetrievalConfig
	Orders     model.OrdersConfig
	Transcript model.TranscriptConfig
}

func main() {
	env := core.ParseEnvironment(os.Getenv("ENVIRONMENT"))
	if env.LoadsDotEnv() {
		// Load .env file
		if err := godotenv.Load(".env"); err != nil {
			logx.Warn().Err(err).Msg("could not load .env file")
		}
		env = core.ParseEnvironment(os.Getenv("ENVIRONMENT"))
	}
	logx.Init(logx.LoggerOpts{Environment: env})

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("server stopped with error")
	}
	logx.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg AppConfig) error {
	orders, err := repo.NewSQLiteOrderStore(ctx, cfg.Orders.Path)
	if err != nil {
		return err
	}
	defer orders.Close()

	client, err := llm.NewGeminiClient(ctx, llm.ClientConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		return err
	}

	var embedder retrieval.Embedder
	if cfg.Retrieval.EmbeddingModel != "" {
		embedder = retrieval.NewGeminiEmbedder(client, cfg.Retrieval.EmbeddingModel)
	} else {
		logx.Warn().Msg("no embedding model configured, ranking passages by keyword")
	}
	index, err := retrieval.OpenIndex(ctx, cfg.Retrieval, embedder)
	if err != nil {
		return err
	}
	defer index.Close()

	var transcripts model.TranscriptRepository
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()
		transcripts = repo.NewRedisTranscriptRepository(rdb, cfg.Transcript.TTL)
		logx.Info().Msg("transcript mirroring to redis enabled")
	}
	messages := conversations.NewMessagesManager(transcripts, cfg.Session)

	models, err := llm.NewGeminiModels(ctx, client, cfg.Model)
	if err != nil {
		return err
	}
	capabilities, err := llm.NewCapabilities(ctx, models, messages)
	if err != nil {
		return err
	}

	engine, err := graph.BuildGraph(&nodes.Dependencies{
		Classifier: capabilities.Classifier,
		Generator:  capabilities.Generator,
		Extractor:  capabilities.Extractor,
		Retriever:  index,
		Orders:     orders,
		Messages:   messages,
		Effort:     models.DefaultEffort,
		TopK:       cfg.Retrieval.TopK,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := session.NewRegistry()
	checkpoints := repo.NewMemoryCheckpointStore(cfg.Session.MaxThreads, cfg.Session.CheckpointTTL)
	session.RegisterGauges(reg, registry, checkpoints)

	driver, err := session.NewDriver(session.Dependencies{
		Registry: registry,
		Store:    checkpoints,
		Engine:   engine,
		Messages: messages,
		Metrics:  session.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, driver, reg, server.NewMetrics(reg))
	return srv.ListenAndServe(ctx)
}
