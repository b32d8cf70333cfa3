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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
	_ "github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource/mysql"
	"github.com/fedsearch-io/fedsearch-engine/pkg/ai"
	"github.com/fedsearch-io/fedsearch-engine/pkg/cache"
	"github.com/fedsearch-io/fedsearch-engine/pkg/config"
	"github.com/fedsearch-io/fedsearch-engine/pkg/crypto"
	"github.com/fedsearch-io/fedsearch-engine/pkg/database"
	"github.com/fedsearch-io/fedsearch-engine/pkg/handlers"
	"github.com/fedsearch-io/fedsearch-engine/pkg/logging"
	"github.com/fedsearch-io/fedsearch-engine/pkg/repositories"
	"github.com/fedsearch-io/fedsearch-engine/pkg/schema"
	"github.com/fedsearch-io/fedsearch-engine/pkg/search"
	"github.com/fedsearch-io/fedsearch-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush on exit

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.Bool("cache_enabled", cfg.Redis.Host != ""),
		zap.Bool("ai_enabled", cfg.AI.IsAvailable()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metadata store
	db, err := database.NewConnection(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("Failed to connect to metadata store", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.ConnectionString(), cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Result cache (nil client disables it)
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}
	responseCache := cache.New(redisClient, logger)

	// Credential encryption
	encryptor, err := crypto.NewEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	// Pools, schemas, search pipeline
	pools := datasource.NewPoolManager(cfg.Datasource, logger)
	defer pools.Shutdown()

	schemas := schema.NewRegistry(pools, logger)

	var optimizer ai.QueryOptimizer
	if cfg.AI.IsAvailable() {
		client, err := ai.NewClient(cfg.AI, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AI optimizer", zap.Error(err))
		}
		optimizer = client
	}

	orchestrator := search.NewOrchestrator(cfg, pools, search.NewBuilder(schemas), responseCache, optimizer, logger)

	dsRepo := repositories.NewDatasourceRepository(db)
	dsService := services.NewDatasourceService(dsRepo, encryptor, pools, schemas, responseCache, logger)

	if err := dsService.RestoreAll(ctx); err != nil {
		logger.Fatal("Failed to restore datasources", zap.Error(err))
	}

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, pools, logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(orchestrator, logger).RegisterRoutes(mux)
	handlers.NewDatasourceHandler(dsService, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting fedsearch-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown incomplete", zap.Error(err))
	}
}
