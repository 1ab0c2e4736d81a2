package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/media"
	"github.com/hongminglow/channel-be/internal/server"
	"github.com/hongminglow/channel-be/internal/storage"
	postgres "github.com/hongminglow/channel-be/internal/storage/postgres"
	"github.com/hongminglow/channel-be/internal/storage/sqlite"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, DevMode: cfg.LogDev})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if envErr != nil {
		log.Debug("no .env file found; relying on existing environment")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx := context.Background()

	store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	uploader, err := newUploader(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init media: %w", err)
	}

	srv := server.New(&cfg, store, uploader, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("channel backend listening", zap.String("addr", cfg.HTTPAddress()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, databaseURL string) (storage.UserStore, error) {
	if strings.HasPrefix(databaseURL, sqlite.Scheme) {
		store, err := sqlite.NewUserStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := postgres.NewUserStore(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newUploader(ctx context.Context, cfg config.Config, log *logger.Logger) (media.Uploader, error) {
	if !cfg.Media.Enabled() {
		log.Warn("media storage not configured; uploads will be rejected")
		return media.DisabledUploader{}, nil
	}
	client, err := media.NewS3Client(ctx, cfg.Media)
	if err != nil {
		return nil, err
	}
	return media.NewS3Uploader(client, media.S3Options{
		Bucket:        cfg.Media.Bucket,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		KeyPrefix:     "users/",
	}, log), nil
}
