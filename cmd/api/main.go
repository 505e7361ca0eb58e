package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/halcyonlabs/accord/backend/internal/config"
	"github.com/halcyonlabs/accord/backend/internal/handler"
	"github.com/halcyonlabs/accord/backend/internal/service/completion"
	"github.com/halcyonlabs/accord/backend/internal/service/creation"
	"github.com/halcyonlabs/accord/backend/internal/service/guide"
	intentservice "github.com/halcyonlabs/accord/backend/internal/service/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/realtime"
	routerservice "github.com/halcyonlabs/accord/backend/internal/service/router"
	"github.com/halcyonlabs/accord/backend/internal/service/semantic"
	"github.com/halcyonlabs/accord/backend/internal/service/summary"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Pick the persistence backend.
	var st store.Store
	if cfg.Store.Persistent() {
		sqlStore, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			log.Fatalf("failed to open database at %s: %v", cfg.Store.Path, err)
		}
		defer sqlStore.Close()
		st = sqlStore
		log.Printf("using sqlite store at %s", cfg.Store.Path)
	} else {
		st = store.NewMemoryStore()
		log.Println("DATABASE_PATH not set, using in-memory store")
	}

	// Initialize the completion service when credentials are present. All
	// downstream services degrade to deterministic fallbacks without it.
	var completer completion.Completer
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing with deterministic fallbacks only")
		} else {
			completionSvc, err := completion.NewService(ctx, chatModel)
			if err != nil {
				log.Printf("warning: failed to build completion chain: %v", err)
			} else {
				completer = completionSvc
				log.Println("completion service initialized successfully")
			}
		}
	} else {
		log.Println("Ark credentials not configured, LLM features disabled")
	}

	index := semantic.NewIndex(st)
	guideSvc := guide.NewService(completer)
	summarySvc := summary.NewService(completer, st, index)
	processor := turn.NewProcessor(st, guideSvc, index, summarySvc)

	states := creation.NewMemoryStateStore()
	registry := routerservice.NewRegistry()
	classifier := intentservice.NewClassifier(completer, registry)
	hub := realtime.NewHub()

	routerSvc := routerservice.NewService(registry, classifier, st, states, index, hub)
	routerSvc.RegisterBuiltins(processor)

	router := handler.NewRouter(routerSvc, st, hub)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Accord backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
