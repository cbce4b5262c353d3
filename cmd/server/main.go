package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/config"
	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/logging"
	"github.com/noirblog/internal/router"
	"github.com/noirblog/internal/service"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(logging.Options{})
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// run 依次初始化数据库、种子话题与初始用户，然后启动 HTTP 服务。
func run(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	gdb, err := db.Open(db.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabasePath})
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	created, err := service.NewTopicService(gdb).Seed(service.DefaultTopics)
	if err != nil {
		return err
	}
	logger.Info().Int("created", created).Msg("topics seeded")

	if err := db.EnsureUser(gdb, cfg.InitUserName, cfg.InitUserEmail, cfg.InitUserPassword); err != nil {
		return err
	}

	files := service.NewAttachmentStore(cfg.UploadDir, logger)
	logger.Info().Str("upload_dir", files.Dir()).Int64("max_upload_bytes", cfg.MaxUploadBytes).Msg("attachment store ready")
	engine, err := router.SetupRouter(gdb, files, router.Options{
		SessionSecret:  cfg.SessionSecret,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SiteName:       cfg.SiteName,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("driver", cfg.DatabaseDriver).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
