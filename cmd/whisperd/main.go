package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/whisper-runtime/internal/buildinfo"
	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/logging"
	"github.com/nupi-ai/whisper-runtime/internal/models"
	"github.com/nupi-ai/whisper-runtime/internal/recognizer"
	"github.com/nupi-ai/whisper-runtime/internal/server"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("whisperd terminated with error", "error", err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("whisperd stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting whisperd",
		"version", buildinfo.Info.Version,
		"listen_addr", cfg.ListenAddr,
		"model_variant", cfg.ModelVariant,
		"language", cfg.Language,
		"data_dir", cfg.DataDir,
	)

	recorder := telemetry.NewRecorder(logger)

	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		return err
	}

	rec, err := recognizer.New(recognizer.Options{
		Config:   cfg,
		Manager:  manager,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("failed to close recognizer", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)
	server.Register(grpcServer, server.New(cfg, logger, rec, recorder))
	setServing := func(st healthgrpc.HealthCheckResponse_ServingStatus) {
		healthServer.SetServingStatus("", st)
		healthServer.SetServingStatus(server.ServiceName, st)
	}
	// Transcribe calls made while the model loads wait for it, but health
	// checks report NOT_SERVING until the load succeeds.
	setServing(healthgrpc.HealthCheckResponse_NOT_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		if err := rec.Init(gctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		logger.Info("model ready",
			"path", rec.ModelPath(),
			"backend", rec.Backend(),
			"took", time.Since(start),
		)
		setServing(healthgrpc.HealthCheckResponse_SERVING)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested, stopping gRPC server")
		setServing(healthgrpc.HealthCheckResponse_NOT_SERVING)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		return nil
	})
	err = g.Wait()

	if snapshot := recorder.Snapshot(); snapshot.TotalInferences > 0 {
		logger.Info("telemetry totals",
			"total_inferences", snapshot.TotalInferences,
			"failed_inferences", snapshot.FailedInferences,
			"total_segments", snapshot.TotalSegments,
			"audio_seconds", snapshot.AudioSeconds(),
			"native_time", snapshot.NativeTime,
			"lock_wait", snapshot.LockWait,
		)
	}
	return err
}
