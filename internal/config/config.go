// Package config provides configuration management for the captions service.
// Values come from built-in defaults, then an optional TOML file, then
// environment variables (a .env file in the working directory is loaded into
// the environment first, without overriding variables that are already set).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort         = 8000
	DefaultBind         = "127.0.0.1"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultDataDir      = ".heimdex-captions"
	DefaultWorkers      = 2
	DefaultQueueDepth   = 16
	DefaultMaxUploadMB  = 2048
	DefaultWhisperModel = "base"

	DefaultExtractTimeoutSeconds    = 300
	DefaultTranscribeTimeoutSeconds = 1800
	DefaultCaptionsTimeoutSeconds   = 60
	DefaultRenderTimeoutSeconds     = 1800

	EmptyTranscriptRender = "render"
	EmptyTranscriptFail   = "fail"

	// Environment variable names
	EnvPort         = "CAPTIONS_PORT"
	EnvBind         = "CAPTIONS_BIND"
	EnvLogLevel     = "CAPTIONS_LOG_LEVEL"
	EnvLogFormat    = "CAPTIONS_LOG_FORMAT"
	EnvDataDir      = "CAPTIONS_DATA_DIR"
	EnvWorkers      = "CAPTIONS_WORKERS"
	EnvQueueDepth   = "CAPTIONS_QUEUE_DEPTH"
	EnvFFmpeg       = "CAPTIONS_FFMPEG"
	EnvWhisper      = "CAPTIONS_WHISPER"
	EnvWhisperModel = "CAPTIONS_WHISPER_MODEL"
	EnvCORSOrigins  = "CAPTIONS_CORS_ORIGINS"

	DBFilename   = "captions.db"
	LockFilename = "captions.lock"
	EnvFilename  = ".env"
)

// Server contains HTTP listener settings.
type Server struct {
	Bind        string   `toml:"bind"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	MaxUploadMB int      `toml:"max_upload_mb"`
}

// Paths contains the data directory holding the database and job files.
type Paths struct {
	DataDir string `toml:"data_dir"`
}

// Workers contains worker pool sizing.
type Workers struct {
	Count      int `toml:"count"`
	QueueDepth int `toml:"queue_depth"`
}

// Tools contains external binary locations and per-stage limits.
type Tools struct {
	FFmpeg                   string  `toml:"ffmpeg"`
	Whisper                  string  `toml:"whisper"`
	WhisperModel             string  `toml:"whisper_model"`
	Language                 string  `toml:"language"`
	MaxDurationSeconds       float64 `toml:"max_duration_seconds"`
	ExtractTimeoutSeconds    int     `toml:"extract_timeout_seconds"`
	TranscribeTimeoutSeconds int     `toml:"transcribe_timeout_seconds"`
	CaptionsTimeoutSeconds   int     `toml:"captions_timeout_seconds"`
	RenderTimeoutSeconds     int     `toml:"render_timeout_seconds"`
}

// Captions contains caption pipeline behavior.
type Captions struct {
	EmptyTranscript string `toml:"empty_transcript"`
	KeepArtifacts   bool   `toml:"keep_artifacts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Server   Server   `toml:"server"`
	Paths    Paths    `toml:"paths"`
	Workers  Workers  `toml:"workers"`
	Tools    Tools    `toml:"tools"`
	Captions Captions `toml:"captions"`
	Logging  Logging  `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Bind:        DefaultBind,
			Port:        DefaultPort,
			MaxUploadMB: DefaultMaxUploadMB,
		},
		Paths: Paths{DataDir: defaultDataDir()},
		Workers: Workers{
			Count:      DefaultWorkers,
			QueueDepth: DefaultQueueDepth,
		},
		Tools: Tools{
			FFmpeg:                   "ffmpeg",
			Whisper:                  "whisper",
			WhisperModel:             DefaultWhisperModel,
			ExtractTimeoutSeconds:    DefaultExtractTimeoutSeconds,
			TranscribeTimeoutSeconds: DefaultTranscribeTimeoutSeconds,
			CaptionsTimeoutSeconds:   DefaultCaptionsTimeoutSeconds,
			RenderTimeoutSeconds:     DefaultRenderTimeoutSeconds,
		},
		Captions: Captions{EmptyTranscript: EmptyTranscriptRender},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load builds the configuration. path may be empty, in which case the default
// locations are tried. It returns the resolved file path and whether it
// existed.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(EnvFilename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load %s: %w", EnvFilename, err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		c.Workers.Count = n
	}
	if v := os.Getenv(EnvQueueDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQueueDepth, err)
		}
		c.Workers.QueueDepth = n
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	strs := []struct {
		env string
		dst *string
	}{
		{EnvBind, &c.Server.Bind},
		{EnvLogLevel, &c.Logging.Level},
		{EnvLogFormat, &c.Logging.Format},
		{EnvDataDir, &c.Paths.DataDir},
		{EnvFFmpeg, &c.Tools.FFmpeg},
		{EnvWhisper, &c.Tools.Whisper},
		{EnvWhisperModel, &c.Tools.WhisperModel},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(os.Getenv(s.env)); v != "" {
			*s.dst = v
		}
	}
	return nil
}

func (c *Config) normalize() error {
	dataDir, err := expandPath(strings.TrimSpace(c.Paths.DataDir))
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir
	c.Captions.EmptyTranscript = strings.ToLower(strings.TrimSpace(c.Captions.EmptyTranscript))
	if c.Captions.EmptyTranscript == "" {
		c.Captions.EmptyTranscript = EmptyTranscriptRender
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Server.CORSOrigins = splitList(strings.Join(c.Server.CORSOrigins, ","))
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("invalid server.port %d: port must be between 1 and 65535", c.Server.Port)
	case c.Server.MaxUploadMB < 1:
		return fmt.Errorf("invalid server.max_upload_mb %d: must be at least 1", c.Server.MaxUploadMB)
	case c.Paths.DataDir == "":
		return errors.New("paths.data_dir must be set")
	case c.Workers.Count < 1:
		return fmt.Errorf("invalid workers.count %d: must be at least 1", c.Workers.Count)
	case c.Workers.QueueDepth < 0:
		return fmt.Errorf("invalid workers.queue_depth %d: must not be negative", c.Workers.QueueDepth)
	case c.Tools.MaxDurationSeconds < 0:
		return fmt.Errorf("invalid tools.max_duration_seconds %v: must not be negative", c.Tools.MaxDurationSeconds)
	case c.Captions.EmptyTranscript != EmptyTranscriptRender && c.Captions.EmptyTranscript != EmptyTranscriptFail:
		return fmt.Errorf("invalid captions.empty_transcript %q: must be %q or %q",
			c.Captions.EmptyTranscript, EmptyTranscriptRender, EmptyTranscriptFail)
	}
	switch c.Logging.Format {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("invalid logging.format %q: must be json, text or auto", c.Logging.Format)
	}
	for _, t := range []struct {
		name    string
		seconds int
	}{
		{"tools.extract_timeout_seconds", c.Tools.ExtractTimeoutSeconds},
		{"tools.transcribe_timeout_seconds", c.Tools.TranscribeTimeoutSeconds},
		{"tools.captions_timeout_seconds", c.Tools.CaptionsTimeoutSeconds},
		{"tools.render_timeout_seconds", c.Tools.RenderTimeoutSeconds},
	} {
		if t.seconds < 1 {
			return fmt.Errorf("invalid %s %d: must be at least 1", t.name, t.seconds)
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// DBPath returns the full path to the SQLite database file
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, DBFilename)
}

func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, LockFilename)
}

func (c *Config) InputDir() string {
	return filepath.Join(c.Paths.DataDir, "input")
}

func (c *Config) TmpDir() string {
	return filepath.Join(c.Paths.DataDir, "tmp")
}

func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.DataDir, "output")
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Tools.ExtractTimeoutSeconds) * time.Second
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.Tools.TranscribeTimeoutSeconds) * time.Second
}

func (c *Config) CaptionsTimeout() time.Duration {
	return time.Duration(c.Tools.CaptionsTimeoutSeconds) * time.Second
}

func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Tools.RenderTimeoutSeconds) * time.Second
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/heimdex-captions/config.toml")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("captions.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
