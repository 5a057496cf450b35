package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bookdrop/backend/internal/config"
	"github.com/bookdrop/backend/internal/core"
	"github.com/bookdrop/backend/internal/dropbox"
	"github.com/bookdrop/backend/internal/http/handlers"
	"github.com/bookdrop/backend/internal/jobs"
	"github.com/bookdrop/backend/internal/repo"
	"github.com/bookdrop/backend/internal/session"
	"github.com/bookdrop/backend/internal/webhook"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Bookdrop backend",
		zap.Int("http_port", cfg.HTTP.Port))

	dbPool, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := repo.Migrate(ctx, dbPool); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	natsConn, err := setupNATS(cfg.NATS.URL, logger)
	if err != nil {
		logger.Fatal("Failed to setup NATS", zap.Error(err))
	}
	defer natsConn.Close()

	// Wire repositories, collaborators, and core services
	accountRepo := repo.NewAccountRepository(dbPool)
	enqueuer := jobs.NewNATSEnqueuer(natsConn, logger)
	accountService := core.NewAccountService(accountRepo, enqueuer, logger)
	dispatchService := core.NewDispatchService(enqueuer, logger)
	verifier := webhook.NewVerifier(cfg.Dropbox.AppSecret)
	sessions := session.NewManager(cfg.Session.Secret)
	dropboxClient := dropbox.NewClient(cfg.Dropbox.AppKey, cfg.Dropbox.AppSecret, cfg.Dropbox.RedirectURL)

	if err := runHTTPServer(ctx, cfg, accountService, dispatchService, verifier, sessions, dropboxClient, logger); err != nil {
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func setupLogger(level string, jsonFormat bool) (*zap.Logger, error) {
	var config zap.Config
	if jsonFormat {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return config.Build()
}

func setupDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	maxConnLifetime, err := time.ParseDuration(cfg.Database.MaxConnLifetime)
	if err != nil {
		return nil, fmt.Errorf("invalid max_conn_lifetime: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = maxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.Int("max_conns", cfg.Database.MaxConns),
		zap.Int("min_conns", cfg.Database.MinConns))

	return pool, nil
}

func setupNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS connection established", zap.String("url", url))
	return nc, nil
}

func runHTTPServer(ctx context.Context, cfg *config.Config, accountService *core.AccountService, dispatchService *core.DispatchService, verifier *webhook.Verifier, sessions *session.Manager, dropboxClient dropbox.AuthClient, logger *zap.Logger) error {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API handlers
	apiHandler := handlers.NewAPIHandler(accountService, dispatchService, verifier, sessions, dropboxClient, logger)
	router.Mount("/", apiHandler.Routes())

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	logger.Info("Starting HTTP server", zap.String("addr", addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	logger.Info("HTTP server stopped")
	return nil
}
