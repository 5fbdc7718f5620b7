package pipelines

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProber struct {
	probeFn func(ctx context.Context) (*Capabilities, error)
}

func (f *fakeProber) Probe(ctx context.Context) (*Capabilities, error) {
	return f.probeFn(ctx)
}

type scriptedRunner struct {
	results map[string]RunResult
	calls   []string
}

func (s *scriptedRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	s.calls = append(s.calls, name)
	return s.results[name]
}

func TestToolProber_Probe(t *testing.T) {
	runner := &scriptedRunner{results: map[string]RunResult{
		"/usr/bin/ffmpeg":  {Tool: "ffmpeg", StdoutTail: "ffmpeg version 6.1 Copyright\nbuilt with gcc\n"},
		"/usr/bin/whisper": {Tool: "whisper", ExitCode: 2, StderrTail: "broken install"},
	}}
	p := NewToolProber("ffmpeg", "whisper", runner)
	p.lookup = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	caps, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if !caps.FFmpeg.Available || caps.FFmpeg.Version != "ffmpeg version 6.1 Copyright" {
		t.Errorf("ffmpeg info = %+v", caps.FFmpeg)
	}
	if caps.Whisper.Available {
		t.Error("whisper should be unavailable when --help fails")
	}
	if caps.Ready() {
		t.Error("Ready() should be false when whisper is missing")
	}
}

func TestToolProber_NotOnPath(t *testing.T) {
	runner := &scriptedRunner{}
	p := NewToolProber("ffmpeg", "whisper", runner)
	p.lookup = func(name string) (string, error) { return "", errors.New("not found") }

	caps, _ := p.Probe(context.Background())
	if caps.FFmpeg.Available || caps.Whisper.Available {
		t.Error("tools should be unavailable")
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner called %d times, want 0", len(runner.calls))
	}
}

func TestCachedDoctor_Stale(t *testing.T) {
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			return &Capabilities{FFmpeg: ToolInfo{Available: true}, ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	doc.ttl = 100 * time.Millisecond

	if !doc.Stale() {
		t.Error("empty cache should be stale")
	}
	if _, err := doc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if doc.Stale() {
		t.Error("fresh probe should not be stale")
	}
	if caps := doc.Peek(); caps == nil || !caps.FFmpeg.Available {
		t.Errorf("Peek = %+v", caps)
	}

	time.Sleep(150 * time.Millisecond)
	if !doc.Stale() {
		t.Error("probe older than the TTL should be stale")
	}
}

func TestCachedDoctor_RefreshInBackgroundDoesNotBlockReaders(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			calls.Add(1)
			<-release
			return &Capabilities{FFmpeg: ToolInfo{Available: true}, ProbedAt: time.Now()}, nil
		},
	}
	doc := NewCachedDoctor(fake, nil)

	if !doc.RefreshInBackground() {
		t.Fatal("first RefreshInBackground should start a probe")
	}
	if doc.RefreshInBackground() {
		t.Error("second RefreshInBackground should not start a probe while one runs")
	}

	peeked := make(chan *Capabilities, 1)
	go func() { peeked <- doc.Peek() }()
	select {
	case caps := <-peeked:
		if caps != nil {
			t.Errorf("Peek during first probe = %+v, want nil", caps)
		}
	case <-time.After(time.Second):
		t.Fatal("Peek blocked on a running probe")
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for doc.Peek() == nil {
		if time.Now().After(deadline) {
			t.Fatal("background probe never stored a result")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("probe calls = %d, want 1", n)
	}
}

func TestCachedDoctor_WatchInvalidatesOnStartFailure(t *testing.T) {
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}
	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()
	doc.Refresh(ctx)

	runner := doc.Watch(&scriptedRunner{results: map[string]RunResult{
		"ffmpeg":  {Tool: "ffmpeg", ExitCode: 1, StderrTail: "bad input"},
		"whisper": {Tool: "whisper", ExitCode: -1, StartErr: "exec: no such file"},
	}})

	runner.Run(ctx, "ffmpeg", "-i", "x")
	if doc.Peek() == nil {
		t.Fatal("a tool that ran and failed should not clear the cache")
	}

	runner.Run(ctx, "whisper", "audio.wav")
	if doc.Peek() != nil {
		t.Error("a tool that could not start should clear the cache")
	}
	if !doc.Stale() {
		t.Error("cleared cache should be stale")
	}
}

func TestCachedDoctor_StaleOnError(t *testing.T) {
	fail := false
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			if fail {
				return nil, errors.New("probe failed")
			}
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()
	first, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fail = true
	got, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh with stale cache should not error: %v", err)
	}
	if got != first {
		t.Error("expected stale cached capabilities")
	}

	doc.Invalidate()
	if _, err := doc.Refresh(ctx); err == nil {
		t.Error("expected error with empty cache")
	}
	if doc.Peek() != nil {
		t.Error("Peek should be nil after failed refresh on empty cache")
	}
}
