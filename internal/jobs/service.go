package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-captions/internal/logging"
	"github.com/heimdex/heimdex-captions/internal/style"
)

const DefaultMaxUploadBytes int64 = 2 << 30 // 2 GiB

// Enqueuer admits a job id for execution.
type Enqueuer interface {
	Enqueue(id string) error
}

// StyleResolver resolves and stores caption presets.
type StyleResolver interface {
	Resolve(ctx context.Context, presetID string) style.Style
	Save(ctx context.Context, name string, preset style.Preset) (string, error)
}

// Service is the boundary the HTTP API and CLI talk to.
type Service struct {
	registry       *Registry
	queue          Enqueuer
	styles         StyleResolver
	workspace      *Workspace
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewService(registry *Registry, queue Enqueuer, styles StyleResolver, workspace *Workspace, maxUploadBytes int64, logger *slog.Logger) *Service {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Service{
		registry:       registry,
		queue:          queue,
		styles:         styles,
		workspace:      workspace,
		maxUploadBytes: maxUploadBytes,
		logger:         logging.WithComponent(logger, "jobs"),
	}
}

// Submit stores the upload, registers a queued job with the resolved style
// and hands it to the worker pool. When the pool rejects it the upload and
// the record are removed and ErrQueueFull is returned.
func (s *Service) Submit(ctx context.Context, video io.Reader, filename, presetID string) (string, error) {
	if video == nil {
		return "", fmt.Errorf("%w: no video provided", ErrInput)
	}

	id := uuid.NewString()
	inputPath := s.workspace.InputPath(id, filename)
	if err := s.storeUpload(video, inputPath); err != nil {
		return "", err
	}

	job := Job{
		ID:         id,
		InputPath:  inputPath,
		OutputPath: s.workspace.OutputPath(id),
		PresetID:   presetID,
		Style:      s.styles.Resolve(ctx, presetID),
	}
	if filename != "" {
		job.Filename = filepath.Base(filename)
	}
	if _, err := s.registry.Create(job); err != nil {
		os.Remove(inputPath)
		return "", err
	}

	if err := s.queue.Enqueue(id); err != nil {
		s.registry.discard(id)
		os.Remove(inputPath)
		s.logger.Warn("job rejected", "job_id", id, "error", err)
		return "", err
	}

	s.logger.Info("job submitted", "job_id", id, "preset_id", presetID, "input", logging.SanitizePath(inputPath))
	return id, nil
}

func (s *Service) storeUpload(video io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create input directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(video, s.maxUploadBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("%w: failed to read upload: %w", ErrInput, err)
	case closeErr != nil:
		err = fmt.Errorf("failed to write upload: %w", closeErr)
	case n == 0:
		err = fmt.Errorf("%w: upload is empty", ErrInput)
	case n > s.maxUploadBytes:
		err = fmt.Errorf("%w: %w: limit is %d bytes", ErrInput, ErrTooLarge, s.maxUploadBytes)
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func (s *Service) GetStatus(id string) (StatusView, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	return job.View(), nil
}

// GetOutput returns the rendered video path for a finished job.
func (s *Service) GetOutput(id string) (string, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case StatusDone:
		if _, err := os.Stat(job.OutputPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: output for job %s is missing", ErrNotFound, id)
			}
			return "", err
		}
		return job.OutputPath, nil
	case StatusError:
		return "", fmt.Errorf("%w: %s", ErrJobFailed, job.ErrorDetail)
	default:
		return "", ErrNotReady
	}
}

// GetJob returns a copy of the full job record.
func (s *Service) GetJob(id string) (Job, error) {
	return s.registry.Get(id)
}

func (s *Service) SavePreset(ctx context.Context, name string, preset style.Preset) (string, error) {
	return s.styles.Save(ctx, name, preset)
}

func (s *Service) List() []Job {
	return s.registry.List()
}
