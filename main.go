package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rowsync-inc/rowsync-engine/pkg/config"
	"github.com/rowsync-inc/rowsync-engine/pkg/crypto"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/glide"
	"github.com/rowsync-inc/rowsync-engine/pkg/handlers"
	"github.com/rowsync-inc/rowsync-engine/pkg/logging"
	"github.com/rowsync-inc/rowsync-engine/pkg/middleware"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
	"github.com/rowsync-inc/rowsync-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// A missing .env is fine; the environment itself may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Database),
		zap.String("database_host", cfg.Database.Host),
		zap.String("glide_base_url", cfg.Glide.BaseURL))

	// Migrations run over database/sql; the pool below is pgx-native.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var cipher *crypto.APIKeyCipher
	if cfg.CredentialsKey != "" {
		cipher, err = crypto.NewAPIKeyCipher(cfg.CredentialsKey)
		if err != nil {
			logger.Fatal("Failed to initialize credentials cipher", zap.Error(err))
		}
	}

	// Repositories
	connectionRepo := repositories.NewConnectionRepository(db, cipher)
	mappingRepo := repositories.NewMappingRepository(db)
	runRepo := repositories.NewSyncRunRepository(db)
	errorRepo := repositories.NewSyncErrorRepository(db)
	recordRepo := repositories.NewRecordRepository()
	productRepo := repositories.NewProductRepository(db)
	lineItemRepo := repositories.NewLineItemRepository(db)

	// Glide API client
	glideClient := glide.NewClient(glide.Config{
		BaseURL:        cfg.Glide.BaseURL,
		MaxRetries:     cfg.Glide.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Glide.RetryBaseDelayMS) * time.Millisecond,
		PageLimit:      cfg.Glide.PageLimit,
	}, logger)

	// Services
	ledger := services.NewErrorLedger(errorRepo, logger)
	transformer := services.NewTransformer(logger)
	writer := services.NewBatchWriter(recordRepo, ledger, logger)
	repair := services.NewRepairService(productRepo, lineItemRepo, logger)
	override := services.NewOverrideController(db, repair, logger)
	syncService := services.NewSyncService(
		db,
		connectionRepo,
		mappingRepo,
		runRepo,
		productRepo,
		glideClient,
		transformer,
		writer,
		override,
		ledger,
		services.SyncOptions{
			BatchSizeLimit: cfg.Sync.BatchSizeLimit,
			PageDelay:      time.Duration(cfg.Glide.PageDelayMS) * time.Millisecond,
		},
		logger,
	)

	scheduler := services.NewScheduler(syncService, logger)
	if err := scheduler.Start(cfg.Sync.Schedule); err != nil {
		logger.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	syncHandler := handlers.NewSyncHandler(syncService, ledger, logger)
	syncHandler.RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting rowsync-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
