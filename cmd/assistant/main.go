// Command assistant runs the conversational assistant HTTP service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/becomeliminal/nim-assistant/chat"
	"github.com/becomeliminal/nim-assistant/config"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/ingest"
	"github.com/becomeliminal/nim-assistant/llm/anthropic"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/cached"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/embedder/onnx"
	"github.com/becomeliminal/nim-assistant/memory/store/chromem"
	"github.com/becomeliminal/nim-assistant/observability"
	"github.com/becomeliminal/nim-assistant/search/tavily"
	"github.com/becomeliminal/nim-assistant/server"
	"github.com/becomeliminal/nim-assistant/store"
	"github.com/becomeliminal/nim-assistant/store/memstore"
	"github.com/becomeliminal/nim-assistant/store/postgres"
	"github.com/becomeliminal/nim-assistant/store/sqlite"
	"github.com/becomeliminal/nim-assistant/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("assistant: %v", err)
	}
}

func run() error {
	// ============================================================================
	// CONFIGURATION
	// ============================================================================
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================================
	// RELATIONAL STORE
	// ============================================================================
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Printf("[CONFIG] Store backend: %s", cfg.StoreBackend())

	// ============================================================================
	// EMBEDDINGS + VECTOR INDEX
	// ============================================================================
	base, closeEmbedder, err := openEmbedder(cfg)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	var embedder memory.Embedder = base
	if cfg.EmbeddingCacheSize > 0 {
		c, err := cached.New(base, int64(cfg.EmbeddingCacheSize))
		if err != nil {
			return fmt.Errorf("embedding cache: %w", err)
		}
		defer c.Close()
		embedder = c
	}

	var index *chromem.Store
	if cfg.VectorDBPath != "" {
		index, err = chromem.NewPersistent(cfg.VectorDBPath, false)
	} else {
		index, err = chromem.New()
	}
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	defer index.Close()

	knowledge := tools.NewKnowledgeBase(ctx, index, embedder, cfg.IndexName)
	longTerm := memory.NewLongTermMemory(ctx, index, embedder, &memory.Config{
		Enabled:   true,
		Namespace: cfg.MemoryNamespace(),
	})

	// ============================================================================
	// TOOLS + ENGINE
	// ============================================================================
	searcher := tavily.New(tavily.Config{
		APIKey:            cfg.TavilyAPIKey,
		BaseURL:           cfg.TavilyBaseURL,
		RequestsPerSecond: cfg.WebSearchRPS,
	})

	registry := engine.NewToolRegistry(tools.Builtin(&tools.Deps{
		Searcher:      searcher,
		KnowledgeBase: knowledge,
		Preferences:   st,
	})...)
	if missing := registry.Missing(); len(missing) > 0 {
		return fmt.Errorf("tools not registered: %v", missing)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	model := anthropic.New(anthropic.Config{
		APIKey:     cfg.AnthropicAPIKey,
		Model:      cfg.Model,
		MaxTokens:  int64(cfg.MaxTokens),
		MaxRetries: -1,
		Timeout:    cfg.ModelTimeout,
	})

	eng := engine.NewEngine(model, registry,
		engine.WithMemory(longTerm),
		engine.WithRecorder(metrics),
	)
	log.Printf("[CONFIG] Model %s with %d tools", model.Model(), len(registry.Names()))

	// ============================================================================
	// SERVER
	// ============================================================================
	srv := server.New(
		server.Config{CORSOrigins: cfg.CORSOrigins},
		chat.NewService(st, eng),
		ingest.NewService(st, knowledge, ingest.WithRecorder(metrics)),
		metrics,
	)
	return srv.ListenAndServe(ctx, cfg.Addr())
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend() {
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL)
	case "sqlite":
		return sqlite.New(ctx, cfg.SQLitePath)
	default:
		return memstore.New(), nil
	}
}

func openEmbedder(cfg config.Config) (memory.Embedder, func(), error) {
	if cfg.Embedder != "onnx" {
		log.Printf("[CONFIG] Using mock embedder (%d dims); similarity is lexical only", mock.Dims)
		return mock.New(), func() {}, nil
	}

	e, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
		LibraryPath:   cfg.ONNXLibraryPath,
		Dimensions:    384,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("onnx embedder: %w", err)
	}
	return e, func() { _ = e.Close() }, nil
}
