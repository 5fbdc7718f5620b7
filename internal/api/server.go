// Package api exposes the caption job service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-captions/internal/jobs"
	"github.com/heimdex/heimdex-captions/internal/pipelines"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr           string
	Jobs           JobService
	Presets        PresetLookup
	Runner         PoolStats
	Doctor         *pipelines.CachedDoctor
	CORSOrigins    []string
	MaxUploadBytes int64
	Logger         *slog.Logger
	StartTime      time.Time
	InstanceID     string
	Version        string
}

// PoolStats reports worker pool occupancy.
type PoolStats interface {
	Stats() jobs.Stats
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Uploads and downloads of large videos can take a while.
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
