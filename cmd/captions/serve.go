package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-captions/internal/api"
	"github.com/heimdex/heimdex-captions/internal/config"
	"github.com/heimdex/heimdex-captions/internal/db"
	"github.com/heimdex/heimdex-captions/internal/jobs"
	"github.com/heimdex/heimdex-captions/internal/logging"
	"github.com/heimdex/heimdex-captions/internal/media"
	"github.com/heimdex/heimdex-captions/internal/pipelines"
	"github.com/heimdex/heimdex-captions/internal/style"
	"github.com/heimdex/heimdex-captions/internal/transcribe"
)

const (
	shutdownTimeout = 10 * time.Second
	instanceIDKey   = "instance_id"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the captioning HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cmdCtx *commandContext) error {
	startTime := time.Now()

	signalCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting captions service",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.Paths.DataDir),
		"config", logging.SanitizePath(cmdCtx.configPath),
	)

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another captions service is using %s", cfg.Paths.DataDir)
	}
	defer lock.Unlock()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	instanceID, err := ensureInstanceID(signalCtx, database)
	if err != nil {
		return fmt.Errorf("failed to ensure instance ID: %w", err)
	}

	styles := style.NewResolver(style.NewSQLiteStore(database.Conn()), logging.WithComponent(logger, "style"))

	ffmpegBin := resolveTool(cfg.Tools.FFmpeg, "ffmpeg", logger)
	whisperBin := resolveTool(cfg.Tools.Whisper, "whisper", logger)

	runner := pipelines.NewSubprocessRunner(logging.WithComponent(logger, "exec"))
	doctor := pipelines.NewCachedDoctor(pipelines.NewToolProber(ffmpegBin, whisperBin, runner), logger)
	probeTools(signalCtx, doctor, logger)
	toolRunner := doctor.Watch(runner)

	ffmpeg := media.NewFFmpeg(ffmpegBin, toolRunner, logging.WithComponent(logger, "ffmpeg"),
		media.WithMaxDuration(cfg.Tools.MaxDurationSeconds))
	whisper := transcribe.NewWhisper(whisperBin, cfg.Tools.WhisperModel, cfg.Tools.Language, toolRunner,
		logging.WithComponent(logger, "whisper"))

	workspace := jobs.NewWorkspace(cfg.InputDir(), cfg.TmpDir(), cfg.OutputDir())
	if err := workspace.Ensure(); err != nil {
		return err
	}

	registry := jobs.NewRegistry()
	executor := jobs.NewExecutor(registry, workspace, ffmpeg, whisper, ffmpeg, jobs.ExecutorConfig{
		ExtractTimeout:    cfg.ExtractTimeout(),
		TranscribeTimeout: cfg.TranscribeTimeout(),
		CaptionsTimeout:   cfg.CaptionsTimeout(),
		RenderTimeout:     cfg.RenderTimeout(),
		EmptyTranscript:   jobs.EmptyTranscriptPolicy(cfg.Captions.EmptyTranscript),
		KeepArtifacts:     cfg.Captions.KeepArtifacts,
	}, logger)

	pool := jobs.NewRunner(executor, cfg.Workers.Count, cfg.Workers.QueueDepth, logger)
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Start(poolCtx)
	}()

	service := jobs.NewService(registry, pool, styles, workspace, cfg.MaxUploadBytes(), logger)

	server := api.NewServer(api.ServerConfig{
		Addr:           cfg.Addr(),
		Jobs:           service,
		Presets:        styles,
		Runner:         pool,
		Doctor:         doctor,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
		StartTime:      startTime,
		InstanceID:     instanceID,
		Version:        config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok {
			logger.Error("HTTP server error", "error", err)
			runErr = err
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	cancelPool()
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		logger.Warn("worker pool did not stop before the shutdown deadline")
	}

	logger.Info("shutdown complete")
	return runErr
}

func probeTools(ctx context.Context, doctor *pipelines.CachedDoctor, logger *slog.Logger) {
	caps, err := doctor.Refresh(ctx)
	if err != nil {
		logger.Warn("initial tool probe failed", "error", err)
		return
	}
	if !caps.Ready() {
		logger.Warn("required tools missing, jobs will fail until they are installed",
			"ffmpeg", caps.FFmpeg.Available,
			"whisper", caps.Whisper.Available,
		)
		return
	}
	logger.Info("tools detected", "ffmpeg", caps.FFmpeg.Version, "whisper", caps.Whisper.Path)
}

// resolveTool returns the absolute path of the configured tool. A tool that
// cannot be found is kept as configured; the doctor reports it missing.
func resolveTool(configured, fallback string, logger *slog.Logger) string {
	path, err := pipelines.ResolveBinary(configured, fallback)
	if err == nil {
		return path
	}
	logger.Warn("tool not found, jobs that need it will fail", "tool", fallback, "error", err)
	if configured != "" {
		return configured
	}
	return fallback
}

func ensureInstanceID(ctx context.Context, database *db.DB) (string, error) {
	existing, err := database.GetConfig(ctx, instanceIDKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	if err := database.SetConfig(ctx, instanceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}
