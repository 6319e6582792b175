package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/askpa/assistant/internal/api"
	"github.com/askpa/assistant/internal/auth"
	"github.com/askpa/assistant/internal/config"
	"github.com/askpa/assistant/internal/core"
	"github.com/askpa/assistant/internal/ingest"
	"github.com/askpa/assistant/internal/logger"
	"github.com/askpa/assistant/internal/store"
	"github.com/askpa/assistant/internal/vectorstore"
)

func main() {
	// Command line flags for one-off ingestion
	ingestPath := flag.String("ingest", "", "Ingest this file for -user and exit")
	ingestUser := flag.String("user", "", "Email of the user that owns the -ingest file")
	ingestAbout := flag.String("about", "", "Optional text prepended to the -ingest file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.Debug())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, log, *ingestPath, *ingestUser, *ingestAbout); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, ingestPath, ingestUser, ingestAbout string) error {
	ctx := context.Background()

	if err := ingest.SetLicenseKey(cfg.UnidocLicenseKey); err != nil {
		return fmt.Errorf("failed to register document license: %w", err)
	}

	users, err := openUserStore(cfg)
	if err != nil {
		return err
	}
	defer users.Close()

	embedder, chat, closeProviders, err := newProviders(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeProviders()

	vectors, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
		Dimension:  cfg.EmbeddingDim,
	})
	if err != nil {
		return fmt.Errorf("failed to configure vector store: %w", err)
	}
	if err := vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to prepare collection %q: %w", cfg.Collection, err)
	}

	rag := core.NewRAGService(embedder, vectors, chat, core.RAGConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
	}, log.Named("rag"))
	if cfg.Debug() {
		rag.WithTokenCounter(core.NewTiktokenCounter(cfg.ChatModel))
	}

	chatService := core.NewChatService(users, rag, log.Named("chat"))

	// Handle data ingestion if flag is set
	if ingestPath != "" {
		return ingestFile(ctx, log, chatService, ingestPath, ingestUser, ingestAbout)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, auth.DefaultTokenTTL)
	apiHandler := api.NewAPIHandler(chatService, tokens, cfg.MaxUploadMB, log.Named("api"))
	router := api.NewRouter(apiHandler, log.Named("http"))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // uploads
		WriteTimeout: 90 * time.Second, // embedding + chat round trips
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", serverAddr),
			zap.String("embedding_provider", cfg.EmbeddingProvider),
			zap.String("chat_provider", cfg.ChatProvider),
			zap.String("user_store", cfg.UserStoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited gracefully")
	return nil
}

func openUserStore(cfg *config.Config) (store.UserStore, error) {
	switch cfg.UserStoreDriver {
	case config.StoreDriverSQLite:
		s, err := store.NewSQLiteUserStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewFileUserStore(cfg.UserFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load user file: %w", err)
		}
		return s, nil
	}
}

// newProviders builds the embedding and chat clients. A single Gemini
// client is shared when both roles use Gemini.
func newProviders(ctx context.Context, cfg *config.Config) (core.Embedder, core.ChatCompleter, func(), error) {
	var gemini *core.GeminiService
	if cfg.EmbeddingProvider == config.ProviderGemini || cfg.ChatProvider == config.ProviderGemini {
		g, err := core.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.ChatModel)
		if err != nil {
			return nil, nil, nil, err
		}
		gemini = g
	}
	closeFn := func() {
		if gemini != nil {
			_ = gemini.Close()
		}
	}

	var (
		embedder core.Embedder
		chat     core.ChatCompleter
	)
	if cfg.EmbeddingProvider == config.ProviderOpenAI || cfg.ChatProvider == config.ProviderOpenAI {
		client := core.NewOpenAIClient(cfg.OpenAIAPIKey, "")
		if cfg.EmbeddingProvider == config.ProviderOpenAI {
			embedder = core.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		}
		if cfg.ChatProvider == config.ProviderOpenAI {
			chat = core.NewOpenAIChat(client, cfg.ChatModel)
		}
	}
	if embedder == nil {
		embedder = gemini
	}
	if chat == nil {
		chat = gemini
	}
	return embedder, chat, closeFn, nil
}

func ingestFile(ctx context.Context, log *zap.Logger, svc *core.ChatService, path, email, about string) error {
	if email == "" {
		return errors.New("-ingest requires -user")
	}
	user, err := svc.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user %q: %w", email, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := ingest.NewDocument(path, "", data)
	if err != nil {
		return err
	}

	log.Info("starting data ingestion", zap.String("file", path), zap.String("user_id", user.ID))
	res, err := svc.Append(ctx, user.ID, about, doc)
	if err != nil {
		return fmt.Errorf("data ingestion failed: %w", err)
	}
	log.Info("data ingestion complete", zap.Int("chunks", res.Chunks))
	return nil
}
