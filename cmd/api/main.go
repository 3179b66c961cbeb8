package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-signup-verify/internal/config"
	"github.com/go-signup-verify/internal/infrastructure/dynamo"
	"github.com/go-signup-verify/internal/infrastructure/memstore"
	redisinfra "github.com/go-signup-verify/internal/infrastructure/redis"
	"github.com/go-signup-verify/internal/infrastructure/smtp"
	"github.com/go-signup-verify/internal/infrastructure/sns"
	"github.com/go-signup-verify/internal/pkg/ratelimit"
	transporthttp "github.com/go-signup-verify/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildDeps picks the store, limiter, mailer and publisher from cfg.
// Background sweepers stop when ctx is cancelled.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transporthttp.Deps, error) {
	deps := &transporthttp.Deps{Logger: logger}

	switch cfg.StoreDriver {
	case "memory":
		tokens := memstore.NewTokens()
		go tokens.Run(ctx, time.Minute)
		deps.UserRepo = memstore.NewUsers()
		deps.TokenRepo = tokens
		logger.Warn("using in-memory store; data is lost on restart")
	case "dynamo", "":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		deps.UserRepo = dynamo.NewUserRepo(client, cfg.DynamoTables.Users)
		deps.TokenRepo = dynamo.NewTokenRepo(client, cfg.DynamoTables.VerificationTokens)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			_ = rdb.Close()
		}()
		deps.Limiter = redisinfra.NewWindowLimiter(rdb, "", cfg.Verification.ResendMax, cfg.Verification.ResendWindow)
	} else {
		limiter := ratelimit.NewWindowLimiter(cfg.Verification.ResendMax, cfg.Verification.ResendWindow)
		go limiter.Run(ctx, time.Minute)
		deps.Limiter = limiter
	}

	if cfg.SMTPConfigured() {
		deps.Sender = smtp.NewMailer(cfg, logger)
	} else {
		logger.Warn("SMTP credentials not set; verification emails will be logged")
		deps.Sender = smtp.NewLogMailer(cfg.Verification.TokenTTL, logger)
	}

	publisher, err := sns.NewPublisher(ctx, cfg)
	if err != nil {
		logger.Warn("SNS publisher not available", slog.Any("err", err))
		publisher = sns.NopPublisher{}
	}
	deps.Publisher = publisher

	return deps, nil
}
