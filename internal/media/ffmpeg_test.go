package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-captions/internal/pipelines"
)

// fakeRunner records the last invocation and optionally writes the output
// file, which is always the final argument.
type fakeRunner struct {
	name   string
	args   []string
	result pipelines.RunResult
	write  []byte
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) pipelines.RunResult {
	f.name = name
	f.args = args
	if f.write != nil && len(args) > 0 {
		os.WriteFile(args[len(args)-1], f.write, 0644)
	}
	res := f.result
	if res.Tool == "" {
		res.Tool = filepath.Base(name)
	}
	return res
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractAudio_Args(t *testing.T) {
	out := filepath.Join(t.TempDir(), "audio.wav")
	runner := &fakeRunner{write: []byte("RIFF")}
	f := NewFFmpeg("/opt/ffmpeg", runner, testLogger())

	if err := f.ExtractAudio(context.Background(), "in.mp4", out); err != nil {
		t.Fatalf("ExtractAudio error: %v", err)
	}
	if runner.name != "/opt/ffmpeg" {
		t.Errorf("binary = %q, want /opt/ffmpeg", runner.name)
	}
	want := "-y -i in.mp4 -vn -ac 1 -ar 16000 " + out
	if got := strings.Join(runner.args, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestBurnSubtitles_ArgsWithMaxDuration(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	runner := &fakeRunner{write: []byte("mp4")}
	f := NewFFmpeg("", runner, testLogger(), WithMaxDuration(25))

	if err := f.BurnSubtitles(context.Background(), "in.mp4", "C:/subs/a.ass", out); err != nil {
		t.Fatalf("BurnSubtitles error: %v", err)
	}
	if runner.name != "ffmpeg" {
		t.Errorf("binary = %q, want ffmpeg", runner.name)
	}
	want := []string{"-y", "-i", "in.mp4", "-t", "25", "-vf", `ass=C\:/subs/a.ass`, out}
	if strings.Join(runner.args, "|") != strings.Join(want, "|") {
		t.Errorf("args = %q, want %q", runner.args, want)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{result: pipelines.RunResult{ExitCode: 1, StderrTail: "Invalid data found"}}
	f := NewFFmpeg("ffmpeg", runner, testLogger())

	err := f.ExtractAudio(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "a.wav"))
	var te *pipelines.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *pipelines.ToolError", err)
	}
	if te.Result.ExitCode != 1 || !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("unexpected tool error: %v", err)
	}
}

func TestRun_MissingOrEmptyOutput(t *testing.T) {
	tests := []struct {
		name  string
		write []byte
	}{
		{"missing", nil},
		{"empty", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{write: tt.write}
			f := NewFFmpeg("ffmpeg", runner, testLogger())

			err := f.BurnSubtitles(context.Background(), "in.mp4", "a.ass", filepath.Join(t.TempDir(), "out.mp4"))
			var te *pipelines.ToolError
			if !errors.As(err, &te) || te.Err == nil {
				t.Fatalf("error = %v, want *pipelines.ToolError with cause", err)
			}
		})
	}
}

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/tmp/job/captions.ass", "/tmp/job/captions.ass"},
		{"/tmp/it's/a.ass", `/tmp/it\'s/a.ass`},
		{`C:\data\a.ass`, `C\:\\data\\a.ass`},
		{"/tmp/a,b[1].ass", `/tmp/a\,b\[1\].ass`},
	}
	for _, tt := range tests {
		if got := escapeFilterPath(tt.in); got != tt.want {
			t.Errorf("escapeFilterPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
