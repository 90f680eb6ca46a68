package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/tapewise/backend/internal/config"
	"github.com/tapewise/backend/internal/handler"
	"github.com/tapewise/backend/internal/notify"
	eventlogservice "github.com/tapewise/backend/internal/service/eventlog"
	"github.com/tapewise/backend/internal/service/locator"
	transcriptservice "github.com/tapewise/backend/internal/service/transcript"
	"github.com/tapewise/backend/internal/store"
	memorystore "github.com/tapewise/backend/internal/store/memory"
	mongostore "github.com/tapewise/backend/internal/store/mongo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file loaded, using system environment", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	docs, cleanup, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("failed to open document store", "err", err)
	}
	defer cleanup()

	var hub *notify.Hub
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled {
		hub = notify.NewHub()
		notifier = hub
	}

	locators := locator.NewService(docs.Locators())
	ledger := eventlogservice.NewService(docs.Events())
	reconciler := transcriptservice.NewReconciler(docs.Messages(), locators)
	ops := transcriptservice.NewOperations(docs.Messages(), reconciler, locators, ledger, notifier)

	router := handler.NewRouter(ops, ledger, hub)
	startServer(ctx, cfg.Server, router)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	if cfg.Driver == config.StoreDriverMemory {
		log.Warn("using in-memory store, nothing will be persisted")
		return memorystore.New(), func() {}, nil
	}

	s, err := mongostore.Open(ctx, cfg.MongoURL, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			log.Warn("failed to close mongo client", "err", err)
		}
	}
	return s, cleanup, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("tapewise backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", "err", err)
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
