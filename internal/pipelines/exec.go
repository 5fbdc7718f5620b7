// Package pipelines executes the external media tools (ffmpeg, whisper) as
// subprocesses with bounded diagnostics, and probes whether they are installed.
package pipelines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	maxTailBytes   = 8 * 1024 // 8 KB tail of each stream kept for diagnostics
	maxDetailBytes = 512
)

// RunResult is the structured outcome of executing a tool subprocess.
type RunResult struct {
	Tool       string        `json:"tool"`
	ExitCode   int           `json:"exit_code"`
	StdoutTail string        `json:"stdout_tail,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	StartErr   string        `json:"start_error,omitempty"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Err converts an unsuccessful result into a *ToolError.
func (r RunResult) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return &ToolError{Tool: r.Tool, Result: r}
}

// ToolError describes a tool that exited non-zero, could not start, timed
// out, or did not produce its expected output.
type ToolError struct {
	Tool   string
	Result RunResult
	Err    error
}

func (e *ToolError) Error() string {
	switch {
	case e.Result.TimedOut:
		return fmt.Sprintf("%s timed out after %s", e.Tool, e.Result.Duration.Round(time.Millisecond))
	case e.Result.StartErr != "":
		return fmt.Sprintf("%s could not start: %s", e.Tool, e.Result.StartErr)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s exited %d: %s", e.Tool, e.Result.ExitCode, truncate(e.Result.StderrTail, maxDetailBytes))
	}
}

func (e *ToolError) Unwrap() error { return e.Err }

// CommandRunner abstracts process execution so adapters can be tested
// without the real binaries.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) RunResult
}

// SubprocessRunner is the os/exec implementation of CommandRunner.
type SubprocessRunner struct {
	logger *slog.Logger
}

func NewSubprocessRunner(logger *slog.Logger) *SubprocessRunner {
	return &SubprocessRunner{logger: logger}
}

func (r *SubprocessRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	start := time.Now()
	tool := filepath.Base(name)

	cmd := exec.CommandContext(ctx, name, args...)

	// Capture both streams with bounded buffers
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxTailBytes})
	cmd.Stdout = io.Writer(&limitedWriter{w: &stdoutBuf, limit: maxTailBytes})

	r.logger.Debug("executing tool command", "tool", tool, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{
		Tool:       tool,
		StdoutTail: stdoutBuf.String(),
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.StartErr = err.Error()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.ExitCode = -1
		}
	}

	if result.IsSuccess() {
		r.logger.Debug("tool command succeeded", "tool", tool, "duration_ms", elapsed.Milliseconds())
	} else {
		r.logger.Warn("tool command failed",
			"tool", tool,
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, maxDetailBytes),
		)
	}
	return result
}

// ResolveBinary finds a usable executable, preferring the configured one.
func ResolveBinary(preferred string, fallbacks ...string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	for _, name := range fallbacks {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no binary found on PATH (tried %v)", fallbacks)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
