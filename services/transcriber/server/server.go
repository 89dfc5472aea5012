package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/services/transcriber/clients/llm"
	"github.com/xilidan/transcriber/services/transcriber/clients/soniox"
	"github.com/xilidan/transcriber/services/transcriber/handler"
	"github.com/xilidan/transcriber/services/transcriber/monitor"
	"github.com/xilidan/transcriber/services/transcriber/storage"
	"github.com/xilidan/transcriber/services/transcriber/usecase"
)

const (
	ServiceName = "transcriber"

	healthInterval  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	usecase usecase.Usecase
	monitor *monitor.JobMonitor
	handler *handler.Handler
}

func New(cfg *config.Config, stg storage.Storage, log *slog.Logger) (*Server, error) {
	log.Info("creating new transcriber server")
	log.Debug("server config",
		slog.Int("port", cfg.Port),
		slog.Int("grpc_port", cfg.GRPCPort),
		slog.String("db_driver", cfg.Database.Driver),
		slog.Bool("translation_enabled", cfg.TranslationEnabled()),
		slog.Bool("watch_jobs", cfg.WatchJobs))

	stt := soniox.New(cfg.Soniox.APIKey, log,
		soniox.WithBaseURL(cfg.Soniox.BaseURL),
		soniox.WithModel(cfg.Soniox.Model))

	var translator usecase.Translator
	if cfg.TranslationEnabled() {
		translator = llm.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, llm.Config{
			Model:             cfg.OpenAI.Model,
			BatchSize:         cfg.Translation.BatchSize,
			Concurrency:       cfg.Translation.Concurrency,
			RequestsPerMinute: cfg.Translation.RatePerMin,
			ChunkChars:        cfg.Translation.ChunkChars,
		}, log)
	} else {
		log.Warn("OPENAI_API_KEY is not set, automatic translation is disabled")
	}

	usc := usecase.New(cfg, stg, stt, translator)
	h := handler.New(cfg, usc, log)

	s := &Server{
		cfg:     cfg,
		log:     log,
		usecase: usc,
		handler: h,
	}

	if cfg.WatchJobs {
		s.monitor = monitor.New(usc, cfg.PollInterval, cfg.WatchTimeout, log)
		h.WithTracker(s.monitor)
	}

	log.Info("transcriber server instance created successfully")
	return s, nil
}

// Start serves HTTP, and gRPC health when a gRPC port is configured, until
// ctx is cancelled or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// automatic translation of long subtitles runs inside the request
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 2)

	go func() {
		s.log.Info("transcriber http server started", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if s.cfg.GRPCPort > 0 {
		var err error
		if grpcServer, err = s.startHealth(ctx, serverErrors); err != nil {
			srv.Close()
			return err
		}
	}

	var runErr error
	select {
	case err := <-serverErrors:
		s.log.Error("server error received", slog.String("error", err.Error()))
		runErr = err
	case <-ctx.Done():
		s.log.Info("closing server due to context cancellation")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.monitor != nil {
		s.monitor.Stop()
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	s.log.Info("shutting down HTTP server gracefully")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		srv.Close()
		return errors.Join(runErr, fmt.Errorf("failed to gracefully shutdown server: %w", err))
	}

	s.log.Info("server stopped cleanly")
	return runErr
}

func (s *Server) startHealth(ctx context.Context, serverErrors chan<- error) (*grpc.Server, error) {
	address := fmt.Sprintf(":%d", s.cfg.GRPCPort)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		s.log.Error("failed to listen on grpc port", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	go s.reportHealth(ctx, hs)
	go func() {
		s.log.Info("grpc health service started", slog.String("address", address))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrors <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	return grpcServer, nil
}

// reportHealth mirrors the database ping into the gRPC health status.
func (s *Server) reportHealth(ctx context.Context, hs *health.Server) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, healthInterval/2)
		defer cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err := s.usecase.Ping(pingCtx); err != nil {
			s.log.Warn("health check failed", slog.String("error", err.Error()))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	check()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
