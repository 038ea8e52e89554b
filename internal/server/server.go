package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"rag-chat/internal/chunker"
	"rag-chat/internal/config"
	"rag-chat/internal/db"
	"rag-chat/internal/embedding"
	"rag-chat/internal/extractor"
	"rag-chat/internal/handlers"
	"rag-chat/internal/keywords"
	"rag-chat/internal/llm"
	"rag-chat/internal/repositories"
	"rag-chat/internal/routes"
	"rag-chat/internal/services"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer wires configuration, backends, services and handlers into a
// ready-to-run HTTP server.
func NewServer(cfg *config.Config) (*http.Server, error) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	index, err := initializeVectorIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := initializeRegistry(ctx, cfg, logger)

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:        cfg.LLMProvider,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OllamaBaseURL:   cfg.OllamaBaseURL,
		DefaultModel:    cfg.DefaultModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	logger.Printf("✅ LLM provider initialized: %s (model: %s)", provider.Name(), cfg.DefaultModel)

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	documentService := services.NewDocumentService(
		extractor.New(logger),
		ch,
		keywords.New(),
		index,
		registry,
		services.UploadConfig{
			UploadDir:         cfg.UploadDir,
			MaxFileSizeBytes:  cfg.MaxFileSizeBytes(),
			AllowedExtensions: cfg.AllowedExtensions,
		},
		logger,
	)

	chatService := services.NewChatService(index, provider, services.ChatConfig{
		MaxHistory:   cfg.MaxConversationHistory,
		RAGResults:   cfg.RAGResults,
		DefaultModel: cfg.DefaultModel,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}, logger)

	h := &routes.Handlers{
		Health:    handlers.NewHealthHandler(index, registry, provider.Name(), logger),
		Sessions:  handlers.NewSessionHandler(chatService, logger),
		Chat:      handlers.NewChatHandler(chatService, logger),
		Documents: handlers.NewDocumentHandler(documentService, cfg.MaxFileSizeBytes(), logger),
		WebSocket: handlers.NewWebSocketHandler(chatService, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Port)),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	logger.Printf("✅ All services initialized, listening on %s", cfg.Addr())

	return &http.Server{
		Addr:    cfg.Addr(),
		Handler: corsMiddleware(router),
	}, nil
}

// initializeVectorIndex connects ChromaDB and the embedding backend. Both are
// required; the service cannot run without its index.
func initializeVectorIndex(ctx context.Context, cfg *config.Config, logger *log.Logger) (repositories.VectorIndex, error) {
	chromaClient := db.NewChromaClient(db.ChromaConfig{
		Host:     cfg.ChromaHost,
		Port:     cfg.ChromaPort,
		Tenant:   cfg.ChromaTenant,
		Database: cfg.ChromaDatabase,
		Timeout:  cfg.ChromaTimeout,
	})

	logger.Printf("Connecting to ChromaDB: %s:%d", cfg.ChromaHost, cfg.ChromaPort)
	if err := chromaClient.Heartbeat(ctx); err != nil {
		logger.Printf("❌ ChromaDB connection failed: %v", err)
		logger.Println("   Hint: Ensure ChromaDB is running (docker run -d -p 8000:8000 chromadb/chroma)")
		return nil, fmt.Errorf("chromadb unreachable: %w", err)
	}
	logger.Println("✅ ChromaDB connected successfully")

	embedder := embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingTimeout, 3)
	if err := embedder.HealthCheck(ctx); err != nil {
		logger.Printf("⚠️  Embedding backend not reachable yet: %v", err)
		logger.Println("   Uploads and search will fail until it comes up")
	} else {
		logger.Printf("✅ Embedding backend connected: %s (model: %s)", cfg.EmbeddingURL, cfg.EmbeddingModel)
	}

	index, err := repositories.NewChromaVectorIndex(ctx, chromaClient, embedder, cfg.CollectionName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Printf("✅ Vector index ready (collection: %s)", cfg.CollectionName)

	return index, nil
}

// initializeRegistry connects the optional Redis document registry. Failure
// disables upload bookkeeping but leaves the rest of the service running.
func initializeRegistry(ctx context.Context, cfg *config.Config, logger *log.Logger) repositories.DocumentRegistry {
	redisConfig := db.DefaultRedisConfig()
	redisConfig.Host = cfg.RedisHost
	redisConfig.Port = cfg.RedisPort
	redisConfig.Password = cfg.RedisPassword
	redisConfig.DB = cfg.RedisDB

	logger.Printf("Connecting to Redis: %s:%d (DB: %d)", redisConfig.Host, redisConfig.Port, redisConfig.DB)

	redisClient := db.NewRedisClient(redisConfig)
	if err := redisClient.Ping(ctx); err != nil {
		logger.Printf("❌ Redis connection failed: %v", err)
		logger.Println("   Document registry disabled - uploads still index, without bookkeeping")
		logger.Println("   Hint: Ensure Redis is running (docker run -d -p 6379:6379 redis:7-alpine)")
		return nil
	}
	logger.Println("✅ Redis connected successfully")

	return repositories.NewRedisDocumentRegistry(redisClient.GetClient())
}
