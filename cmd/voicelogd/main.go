package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/voicelog/voicelog/internal/buildinfo"
	"github.com/voicelog/voicelog/internal/config"
	"github.com/voicelog/voicelog/internal/recognition"
	"github.com/voicelog/voicelog/internal/store"
	"github.com/voicelog/voicelog/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting "+buildinfo.Info.BinaryName,
		"listen_addr", cfg.ListenAddr,
		"locale", cfg.Locale,
		"target_locale", cfg.TargetLocale,
		"data_dir", cfg.DataDir,
	)

	recorder := telemetry.NewRecorder(logger)

	db, err := store.Open(store.DefaultDBPath(cfg.DataDir))
	if err != nil {
		logger.Error("failed to open journal store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	service, err := newRecognitionService(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise recognition service", "error", err)
		os.Exit(1)
	}
	logger.Info("recognition service ready", "locales", len(service.SupportedLocales()))

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		os.Exit(1)
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(buildinfo.Info.Slug, healthgrpc.HealthCheckResponse_NOT_SERVING)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested, stopping gRPC server")
		healthServer.SetServingStatus(buildinfo.Info.Slug, healthgrpc.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
	}()

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(buildinfo.Info.Slug, healthgrpc.HealthCheckResponse_SERVING)

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("gRPC server terminated with error", "error", err)
		os.Exit(1)
	}

	if snapshot := recorder.Snapshot(); snapshot.TotalSessions > 0 {
		logger.Info("telemetry totals",
			"total_sessions", snapshot.TotalSessions,
			"total_buffers", snapshot.TotalBuffers,
			"total_dropped", snapshot.TotalDroppedBuffers,
			"total_transcripts", snapshot.TotalTranscripts,
			"total_final_transcripts", snapshot.TotalFinalTranscripts,
			"total_translations", snapshot.TotalTranslations,
		)
	}

	logger.Info(buildinfo.Info.BinaryName + " stopped")
}

func newRecognitionService(cfg config.Config, logger *slog.Logger) (recognition.Service, error) {
	if cfg.UseStubEngine || cfg.EngineURL == "" {
		if cfg.EngineURL == "" && !cfg.UseStubEngine {
			logger.Warn("no engine url configured, using stub recognition service")
		}
		return recognition.NewStubService(logger), nil
	}

	manifest, err := recognition.DefaultManifest()
	if err != nil {
		return nil, err
	}
	manager, err := recognition.NewManager(cfg.DataDir, manifest, logger)
	if err != nil {
		return nil, err
	}
	return recognition.NewRemoteService(cfg.EngineURL, manager, manifest, logger), nil
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
