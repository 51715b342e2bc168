package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/handler"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/ai"
	"github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/responder"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
	"github.com/zhouzirui/z-mentor/backend/internal/service/trigger"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "z-mentor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := observe.NewLogger(observe.LoggerConfig{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment variables only", zap.Error(envErr))
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "z-mentor",
		ServiceVersion: version,
		Region:         cfg.Responder.Region,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	inner, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()
	store := chatlog.NewObservedStore(inner, metrics)

	secrets := secret.Chain{secret.FileProvider{Dir: cfg.Secrets.Dir}, secret.EnvProvider{}}

	generator, err := ai.NewFromConfig(ctx, cfg, secrets, logger, metrics)
	if err != nil {
		return err
	}

	pipeline := responder.New(store, generator, cfg.Responder, logger, metrics)
	dispatcher := trigger.New(pipeline, logger)
	unsubscribe := store.Subscribe(dispatcher.OnAppend)

	logger.Info("responder ready",
		zap.String("provider", cfg.Responder.Provider),
		zap.String("model", cfg.Responder.ModelID),
		zap.String("region", cfg.Responder.Region),
		zap.Int("historyLimit", cfg.Responder.HistoryLimit),
		zap.String("store", cfg.Store.Driver),
	)

	router := handler.NewRouter(handler.Dependencies{
		Store:        store,
		Pipeline:     pipeline,
		HistoryLimit: cfg.Responder.HistoryLimit,
		Logger:       logger,
	})

	serveErr := startServer(ctx, cfg.Server, router, logger)

	unsubscribe()
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("in-flight replies did not finish before shutdown", zap.Error(err))
	}

	return serveErr
}

func openStore(ctx context.Context, cfg config.StoreConfig) (chatlog.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := chatlog.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open chat log: %w", err)
		}
		return store, store.Close, nil
	case config.DriverSQLite:
		store, err := chatlog.NewSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open chat log: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return chatlog.NewMemoryStore(), func() {}, nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Z Mentor backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
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
