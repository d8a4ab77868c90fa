package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datasage-ai/toolgate/internal/api"
	"github.com/datasage-ai/toolgate/internal/audit"
	"github.com/datasage-ai/toolgate/internal/connection"
	"github.com/datasage-ai/toolgate/internal/gateway"
	"github.com/datasage-ai/toolgate/internal/permission"
	"github.com/datasage-ai/toolgate/internal/vault"

	_ "github.com/datasage-ai/toolgate/internal/backend/mysql"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logger := mustBuildLogger(envOrDefault("TOOLGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("TOOLGATE_PORT", "8080")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	encryptionKey := os.Getenv("TOOLGATE_ENCRYPTION_KEY")

	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	logger.Info("starting toolgate server", zap.String("port", port))

	// Credential vault
	v, err := vault.New(encryptionKey)
	if err != nil {
		logger.Fatal("invalid TOOLGATE_ENCRYPTION_KEY", zap.Error(err))
	}

	// Postgres — connections and policy rows
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("postgres connected")

	// Audit — ClickHouse or LogWriter fallback
	var writer audit.Writer
	var reader *audit.Reader
	if clickhouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = audit.NewLogWriter(logger)
		} else {
			writer = chWriter
			reader = chWriter.Reader()
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Services
	connService := connection.NewService(connection.NewPostgresStore(db), v, logger)
	permStore := permission.NewPostgresStore(db)
	recorder := audit.NewRecorder(writer, logger)

	manager := gateway.NewManager(connService, permission.NewEvaluator(permStore, logger), recorder, logger)
	connService.SetInvalidator(manager)

	// HTTP server
	router := api.NewRouter(&api.Dependencies{
		Connections: connService,
		Permissions: permStore,
		Manager:     manager,
		AuditReader: reader,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown; main waits for teardown so backend pools are
	// released before the process exits.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
		manager.Close(shutdownCtx)
	}()

	logger.Info("toolgate server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server failed", zap.Error(err))
	}
	<-shutdownDone
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
