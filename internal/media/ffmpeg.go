// Package media wraps ffmpeg for the two operations the caption pipeline
// needs: pulling a speech-ready audio track out of a video and burning an ASS
// subtitle file into it.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-captions/internal/pipelines"
)

const (
	audioSampleRate = 16000
	audioChannels   = 1
)

// FFmpeg implements audio extraction and subtitle rendering on top of a
// CommandRunner.
type FFmpeg struct {
	binary      string
	runner      pipelines.CommandRunner
	maxDuration float64
	logger      *slog.Logger
}

// Option configures an FFmpeg adapter.
type Option func(*FFmpeg)

// WithMaxDuration limits extraction and rendering to the first n seconds of
// the source. Zero or negative disables the limit.
func WithMaxDuration(seconds float64) Option {
	return func(f *FFmpeg) { f.maxDuration = seconds }
}

func NewFFmpeg(binary string, runner pipelines.CommandRunner, logger *slog.Logger, opts ...Option) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	f := &FFmpeg{binary: binary, runner: runner, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExtractAudio writes a mono 16 kHz WAV of video to audioOut.
func (f *FFmpeg) ExtractAudio(ctx context.Context, video, audioOut string) error {
	args := []string{"-y", "-i", video}
	args = append(args, f.durationArgs()...)
	args = append(args,
		"-vn",
		"-ac", strconv.Itoa(audioChannels),
		"-ar", strconv.Itoa(audioSampleRate),
		audioOut,
	)
	return f.run(ctx, audioOut, args)
}

// BurnSubtitles renders subtitle onto video and writes the result to out.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, video, subtitle, out string) error {
	args := []string{"-y", "-i", video}
	args = append(args, f.durationArgs()...)
	args = append(args,
		"-vf", "ass="+escapeFilterPath(subtitle),
		out,
	)
	return f.run(ctx, out, args)
}

func (f *FFmpeg) durationArgs() []string {
	if f.maxDuration <= 0 {
		return nil
	}
	return []string{"-t", strconv.FormatFloat(f.maxDuration, 'f', -1, 64)}
}

func (f *FFmpeg) run(ctx context.Context, output string, args []string) error {
	result := f.runner.Run(ctx, f.binary, args...)
	if err := result.Err(); err != nil {
		return err
	}
	if err := checkOutput(output); err != nil {
		return &pipelines.ToolError{Tool: result.Tool, Result: result, Err: err}
	}
	f.logger.Debug("ffmpeg produced output", "output", output, "duration_ms", result.Duration.Milliseconds())
	return nil
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("expected output %s was not written", path)
	}
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", path)
	}
	return nil
}

// escapeFilterPath quotes a path for use as a filtergraph option value.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `[`, `\[`, `]`, `\]`, `;`, `\;`)
	return r.Replace(path)
}
