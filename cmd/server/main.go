// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/gurkanbulca/taskflow/internal/config"
	"github.com/gurkanbulca/taskflow/internal/database"
	"github.com/gurkanbulca/taskflow/internal/log"
	"github.com/gurkanbulca/taskflow/internal/middleware"
	"github.com/gurkanbulca/taskflow/internal/repository"
	"github.com/gurkanbulca/taskflow/internal/service"
	"github.com/gurkanbulca/taskflow/internal/webhook"
	"github.com/gurkanbulca/taskflow/internal/workflow"
	"github.com/gurkanbulca/taskflow/pkg/auth"
)

func main() {
	logger := log.GetLogger()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	log.Configure(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.ValidateConfig(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	store, dir, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStorage()

	if cfg.Workflow.PermissionCacheTTL > 0 {
		dir = workflow.NewCachedDirectory(dir, cfg.Workflow.PermissionCacheTTL)
	}

	facade := workflow.NewFacade(store, dir, logger, workflow.WithMaxRetries(cfg.Workflow.MaxCASRetries))
	tokenManager := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.AccessTokenDuration)
	securityLogger := service.NewSecurityLogger(logger)

	// Initialize middleware
	metadataExtractor := middleware.NewMetadataExtractorInterceptor()
	authInterceptor := middleware.NewAuthInterceptor(tokenManager, logger)
	validationInterceptor := middleware.NewValidationInterceptor(nil)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metadataExtractor.Unary(),
			authInterceptor.Unary(),
			middleware.LoggingInterceptor(logger),
			validationInterceptor.Unary(),
		),
		grpc.ChainStreamInterceptor(
			metadataExtractor.Stream(),
			authInterceptor.Stream(),
		),
	)

	service.RegisterWorkflowServiceServer(grpcServer, service.NewWorkflowService(facade, securityLogger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(service.WorkflowServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Server.EnableReflection {
		reflection.Register(grpcServer)
		logger.Warn("gRPC reflection enabled (disable in production)")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           webhook.NewRouter(webhook.NewHandler(facade, cfg.Webhook.Secret, securityLogger, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		logger.WithField("port", cfg.Server.GRPCPort).Info("Taskflow gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			logger.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Webhook listener started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Webhook listener shutdown failed")
	}
	grpcServer.GracefulStop()
	logger.Info("Server shutdown complete")
}

// openStorage returns the task store and the directory for the configured
// driver. With the mongo driver tasks live in MongoDB while projects and
// teams are still read from the SQL database.
func openStorage(ctx context.Context, cfg *config.Config) (repository.TaskStore, repository.Directory, func(), error) {
	sqlCfg := database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		Debug:    cfg.IsDevelopment(),
	}
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		sqlCfg.DSN = cfg.Database.SQLiteDSN
	case config.DriverMongo:
		sqlCfg.Driver = config.DriverPostgres
	}

	db, err := database.Open(sqlCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeSQL := func() {
		if err := db.Close(); err != nil {
			log.GetLogger().WithError(err).Warn("Failed to close database connection")
		}
	}

	if cfg.Server.AutoMigrate {
		if err := database.Migrate(ctx, db.Driver); err != nil {
			closeSQL()
			return nil, nil, nil, err
		}
	}

	dir := repository.NewSQLDirectory(db)
	if cfg.Database.Driver != config.DriverMongo {
		return repository.NewSQLTaskStore(db), dir, closeSQL, nil
	}

	mdb, err := database.NewMongoDatabase(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		closeSQL()
		return nil, nil, nil, err
	}
	store := repository.NewMongoTaskStore(mdb)
	if err := store.EnsureIndexes(ctx); err != nil {
		closeSQL()
		return nil, nil, nil, err
	}
	return store, dir, func() {
		if err := mdb.Client().Disconnect(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("Failed to disconnect from MongoDB")
		}
		closeSQL()
	}, nil
}
