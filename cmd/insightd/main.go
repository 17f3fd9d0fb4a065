package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/knoguchi/insight/internal/cache"
	"github.com/knoguchi/insight/internal/config"
	"github.com/knoguchi/insight/internal/embedder"
	"github.com/knoguchi/insight/internal/health"
	"github.com/knoguchi/insight/internal/ingestion"
	"github.com/knoguchi/insight/internal/llm"
	"github.com/knoguchi/insight/internal/metrics"
	"github.com/knoguchi/insight/internal/repository"
	"github.com/knoguchi/insight/internal/repository/postgres"
	"github.com/knoguchi/insight/internal/reranker"
	"github.com/knoguchi/insight/internal/server"
	"github.com/knoguchi/insight/internal/service"
	"github.com/knoguchi/insight/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("starting insight service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	projectRepo := postgres.NewProjectRepo(db)
	personaRepo := postgres.NewPersonaRepo(db)
	documentRepo := postgres.NewDocumentRepo(db)
	graphRepo := postgres.NewGraphRepo(db)

	// Search cache
	var store cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStoreWithURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		slog.Info("search cache backed by Redis")
	} else {
		store = cache.NewMemoryStore(cfg.CacheLocalSize, cfg.CacheTTL)
		slog.Info("search cache backed by in-process LRU", "size", cfg.CacheLocalSize)
	}
	resultCache := cache.New(store,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
		cache.WithMetrics(m),
	)

	// Embeddings
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	sparse := embedder.NewHashingSparseVectorizer(0)
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel, "dimension", embed.Dimension())

	// Qdrant
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantGRPCURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, embed.Dimension()); err != nil {
		return fmt.Errorf("failed to prepare collection %s: %w", cfg.QdrantCollection, err)
	}
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)

	rr := reranker.New(newScorer(cfg, llmClient, logger),
		reranker.WithTimeout(cfg.RerankerTimeout),
		reranker.WithMaxChars(cfg.RerankerMaxChars),
		reranker.WithLogger(logger),
		reranker.WithMetrics(m),
	)
	if !rr.Available() {
		slog.Warn("reranking disabled, results keep fusion order")
	}

	// Services
	searchOpts := []service.SearchOption{
		service.WithSearchLogger(logger),
		service.WithSearchMetrics(m),
	}
	if cfg.GraphEnrichmentEnabled {
		searchOpts = append(searchOpts, service.WithGraphEnrichment(graphRepo))
	}
	searchSvc := service.NewSearchService(service.SearchConfig{
		DefaultK:            cfg.SearchDefaultK,
		MaxK:                cfg.SearchMaxK,
		DefaultAlpha:        cfg.SearchDefaultAlpha,
		CandidateMultiplier: cfg.SearchCandidateMultiplier,
	}, embed, sparse, vectorStore, resultCache, rr, searchOpts...)

	projectSvc := service.NewProjectService(projectRepo)
	personaSvc := service.NewPersonaService(projectRepo, personaRepo, cfg.PersonaMaxBatch,
		service.WithBackgroundWriter(llmClient),
		service.WithPersonaLogger(logger),
		service.WithPersonaMetrics(m),
	)
	indexer := ingestion.NewIndexer(embed, sparse, vectorStore, logger)
	documentSvc := service.NewDocumentService(indexer, vectorStore, documentRepo, graphRepo, logger)

	probe := health.NewProbe(map[string]health.Checker{
		"database":    health.CheckFunc(db.Ping),
		"cache":       health.CheckFunc(resultCache.Ping),
		"vectorstore": health.CheckFunc(vectorStore.Ping),
	}, logger)

	grpcServer := server.NewGRPCServer(server.GRPCServerConfig{
		Port:   cfg.GRPCPort,
		Logger: logger,
		Probe:  probe,
	})

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		AllowedOrigins: []string{"*"}, // Configure in production
		API: &server.API{
			Search:    searchSvc,
			Projects:  projectSvc,
			Personas:  personaSvc,
			Documents: documentSvc,
			Logger:    logger,
		},
		Probe:    probe,
		Gatherer: registry,
	})

	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown gRPC server", "error", err)
	}

	slog.Info("servers stopped")
	return nil
}

// newScorer picks the cross-encoder backend. A nil Scorer disables
// reranking.
func newScorer(cfg *config.Config, llmClient llm.LLM, logger *slog.Logger) reranker.Scorer {
	switch cfg.RerankerBackend {
	case config.RerankerHTTP:
		slog.Info("reranking with cross-encoder service", "url", cfg.RerankerURL, "model", cfg.RerankerModel)
		return reranker.NewHTTPScorer(reranker.HTTPScorerConfig{
			BaseURL: cfg.RerankerURL,
			Model:   cfg.RerankerModel,
			Timeout: cfg.RerankerTimeout,
			Logger:  logger,
		})
	case config.RerankerLLM:
		slog.Info("reranking with LLM relevance scores", "model", cfg.OllamaLLMModel)
		return reranker.NewLLMScorer(llmClient, reranker.WithModel(cfg.OllamaLLMModel))
	default:
		return nil
	}
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.ProjectRepository  = (*postgres.ProjectRepo)(nil)
	_ repository.PersonaRepository  = (*postgres.PersonaRepo)(nil)
	_ repository.DocumentRepository = (*postgres.DocumentRepo)(nil)
	_ repository.GraphRepository    = (*postgres.GraphRepo)(nil)
	_ vectorstore.VectorStore       = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder             = (*embedder.OllamaEmbedder)(nil)
	_ embedder.SparseVectorizer     = (*embedder.HashingSparseVectorizer)(nil)
	_ llm.LLM                       = (*llm.OllamaClient)(nil)
	_ server.Searcher               = (*service.SearchService)(nil)
	_ server.ProjectManager         = (*service.ProjectService)(nil)
	_ server.PersonaManager         = (*service.PersonaService)(nil)
	_ server.DocumentManager        = (*service.DocumentService)(nil)
)
