package pipelines

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultProbeTimeout = 30 * time.Second
)

// ToolInfo reports the availability of one external tool.
type ToolInfo struct {
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the result of probing the installed tools.
type Capabilities struct {
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	Whisper  ToolInfo  `json:"whisper"`
	ProbedAt time.Time `json:"probed_at"`
}

// Ready reports whether every tool the pipeline needs is installed.
func (c *Capabilities) Ready() bool {
	return c.FFmpeg.Available && c.Whisper.Available
}

// Prober probes tool availability.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ToolProber locates ffmpeg and whisper and runs a cheap command on each.
type ToolProber struct {
	ffmpeg  string
	whisper string
	runner  CommandRunner
	timeout time.Duration
	lookup  func(string) (string, error)
}

func NewToolProber(ffmpeg, whisper string, runner CommandRunner) *ToolProber {
	return &ToolProber{
		ffmpeg:  ffmpeg,
		whisper: whisper,
		runner:  runner,
		timeout: defaultProbeTimeout,
		lookup:  exec.LookPath,
	}
}

func (p *ToolProber) Probe(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return &Capabilities{
		FFmpeg:   p.probeTool(ctx, p.ffmpeg, "-version"),
		Whisper:  p.probeTool(ctx, p.whisper, "--help"),
		ProbedAt: time.Now(),
	}, nil
}

func (p *ToolProber) probeTool(ctx context.Context, name string, args ...string) ToolInfo {
	path, err := p.lookup(name)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	result := p.runner.Run(ctx, path, args...)
	if !result.IsSuccess() {
		return ToolInfo{Path: path, Error: result.Err().Error()}
	}
	return ToolInfo{Path: path, Available: true, Version: firstLine(result.StdoutTail)}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// CachedDoctor wraps a Prober to cache probe results with a configurable TTL.
// Readers never wait on a probe in progress.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	probeMu    sync.Mutex
	refreshing atomic.Bool

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around tool probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Peek returns the last probe result, which may be nil or past the TTL.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Stale reports whether there is no cached result or it is older than the TTL.
func (d *CachedDoctor) Stale() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached == nil || time.Since(d.cached.ProbedAt) >= d.ttl
}

// RefreshInBackground starts a probe unless one is already running. It
// reports whether a probe was started.
func (d *CachedDoctor) RefreshInBackground() bool {
	if !d.refreshing.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer d.refreshing.Store(false)
		d.Refresh(context.Background())
	}()
	return true
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.probeMu.Lock()
	defer d.probeMu.Unlock()

	caps, err := d.prober.Probe(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("tool probe failed", "error", err)
		}
		// Return stale cache if available
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// Watch wraps runner so that a tool which cannot be started clears the
// cache, and the next health check probes again.
func (d *CachedDoctor) Watch(runner CommandRunner) CommandRunner {
	return &watchedRunner{CommandRunner: runner, doctor: d}
}

type watchedRunner struct {
	CommandRunner
	doctor *CachedDoctor
}

func (w *watchedRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	result := w.CommandRunner.Run(ctx, name, args...)
	if result.StartErr != "" && ctx.Err() == nil {
		if w.doctor.logger != nil {
			w.doctor.logger.Warn("tool could not start, clearing cached capabilities", "tool", result.Tool)
		}
		w.doctor.Invalidate()
	}
	return result
}
