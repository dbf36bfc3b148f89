package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/printworks/photoflow/config"
	"github.com/printworks/photoflow/internal/artifact"
	"github.com/printworks/photoflow/internal/assets"
	"github.com/printworks/photoflow/internal/commerce"
	"github.com/printworks/photoflow/internal/engine"
	handler "github.com/printworks/photoflow/internal/handler/http"
	"github.com/printworks/photoflow/internal/imagestore"
	"github.com/printworks/photoflow/internal/middleware"
	"github.com/printworks/photoflow/internal/store"
	"github.com/printworks/photoflow/internal/worker"
	"go.uber.org/zap"
)

// newLogger creates logger with log level
func newLogger(level string) (*zap.Logger, error) {

	loggerLvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	loggerCfg := zap.NewProductionConfig()
	loggerCfg.Level = loggerLvl

	return loggerCfg.Build()
}

func main() {

	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()

	// create context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// initialize order storage
	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("Error initializing store", zap.Error(err))
	}

	spoolDir := filepath.Join(cfg.DataDir, "spool")
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		logger.Fatal("Error creating spool directory", zap.Error(err))
	}

	// dependency injection
	transfer := imagestore.NewClient(cfg.ImageStoreAddr, logger)
	commerceClient := commerce.NewClient(cfg.CommerceAddr, cfg.CommerceAPIKey)
	artifactClient := artifact.NewClient(cfg.ArtifactAddr)

	eng := engine.New(engine.Config{
		Store:     st,
		Transfer:  transfer,
		Loader:    assets.NewFileLoader(),
		Commerce:  commerceClient,
		Artifacts: artifactClient,
		SpoolDir:  spoolDir,
		Logger:    logger,
	})

	orderHandler := handler.NewOrderHandler(eng)
	basketHandler := handler.NewBasketHandler(eng)

	// resume an interrupted run from a previous process
	resumer := worker.NewResumer(eng, st, logger)
	go resumer.Run(ctx)

	router := chi.NewRouter()

	router.Use(middleware.Logging(logger))

	router.Post("/api/order/process", orderHandler.ProcessOrder())
	router.Post("/api/order/retry", orderHandler.RetryOrder())
	router.Post("/api/order/cancel", orderHandler.CancelOrder())
	router.Get("/api/order/status", orderHandler.OrderStatus())
	router.Get("/api/basket", basketHandler.GetBasket())
	router.Put("/api/basket", basketHandler.PutBasket())

	logger.Info("Running server", zap.String("addr", cfg.ServerAddr))

	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		logger.Fatal("Error starting server", zap.Error(err))
	}
}
