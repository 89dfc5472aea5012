package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/server"
	"github.com/xilidan/transcriber/services/transcriber/storage"
)

func main() {
	log := logger.Default()
	log.Info("initializing transcriber service")

	log.Debug("loading configuration")
	cfg := config.MustLoad()

	level := logger.ParseLevel(cfg.LogLevel)
	log = logger.New(logger.Config{
		Level:      level,
		Output:     os.Stderr,
		AddSource:  true,
		JSONFormat: cfg.LogJSON,
	})
	logger.SetDefault(log)
	log.Info("logger configured",
		slog.String("level", level.String()),
		slog.Bool("json_format", cfg.LogJSON))

	log.Info("configuration loaded successfully",
		slog.Int("port", cfg.Port),
		slog.Int("grpc_port", cfg.GRPCPort),
		slog.String("db_driver", cfg.Database.Driver),
		slog.Bool("openai_api_key_set", cfg.OpenAI.APIKey != ""),
		slog.String("soniox_model", cfg.Soniox.Model))

	ctx := logger.WithContext(context.Background(), log)

	log.Info("setting up signal handling for graceful shutdown")
	rootCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		log.Info("canceling root context")
		cancel()
	}()

	log.Info("starting transcriber application")
	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("application terminated with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("application terminated successfully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("run function started")

	log.Debug("opening database", slog.String("driver", cfg.Database.Driver))
	stg, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error("failed to open storage", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := stg.Close(); err != nil {
			log.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()
	log.Info("database ready", slog.String("driver", cfg.Database.Driver))

	srv, err := server.New(cfg, stg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	log.Info("starting server", slog.Int("port", cfg.Port))
	if err := srv.Start(ctx); err != nil {
		log.Error("server stopped with error", slog.String("error", err.Error()))
		return err
	}

	log.Info("server shutdown completed")
	return nil
}
