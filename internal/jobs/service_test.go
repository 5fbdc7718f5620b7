package jobs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-captions/internal/style"
)

type fakeQueue struct {
	err error
	ids []string
}

func (q *fakeQueue) Enqueue(id string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type fakeStyles struct {
	presets map[string]style.Style
	saved   []style.Preset
}

func (f *fakeStyles) Resolve(ctx context.Context, presetID string) style.Style {
	if st, ok := f.presets[presetID]; ok {
		return st
	}
	return style.Defaults()
}

func (f *fakeStyles) Save(ctx context.Context, name string, preset style.Preset) (string, error) {
	f.saved = append(f.saved, preset)
	return "preset-1", nil
}

type serviceFixture struct {
	svc       *Service
	registry  *Registry
	queue     *fakeQueue
	styles    *fakeStyles
	workspace *Workspace
}

func newServiceFixture(t *testing.T, maxUpload int64) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	ws := NewWorkspace(filepath.Join(dir, "input"), filepath.Join(dir, "tmp"), filepath.Join(dir, "output"))
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	big := style.Defaults()
	big.FontSize = 90
	f := &serviceFixture{
		registry:  NewRegistry(),
		queue:     &fakeQueue{},
		styles:    &fakeStyles{presets: map[string]style.Style{"big": big}},
		workspace: ws,
	}
	f.svc = NewService(f.registry, f.queue, f.styles, ws, maxUpload, testLogger())
	return f
}

func inputFiles(t *testing.T, ws *Workspace) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(ws.InputDir)
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestSubmit_QueuesJobWithResolvedStyle(t *testing.T) {
	f := newServiceFixture(t, 0)

	id, err := f.svc.Submit(context.Background(), strings.NewReader("video bytes"), "My Clip.MOV", "big")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(f.queue.ids) != 1 || f.queue.ids[0] != id {
		t.Errorf("enqueued = %v, want [%s]", f.queue.ids, id)
	}

	view, err := f.svc.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if view.Status != StatusQueued || view.Percent != 0 {
		t.Errorf("status = %+v, want queued/0", view)
	}

	job, _ := f.svc.GetJob(id)
	if job.Style.FontSize != 90 {
		t.Errorf("style font size = %d, want preset value 90", job.Style.FontSize)
	}
	if filepath.Ext(job.InputPath) != ".mov" {
		t.Errorf("input path = %s, want .mov extension", job.InputPath)
	}
	data, err := os.ReadFile(job.InputPath)
	if err != nil || string(data) != "video bytes" {
		t.Errorf("stored upload = %q, %v", data, err)
	}
}

func TestSubmit_UnknownPresetUsesDefaults(t *testing.T) {
	f := newServiceFixture(t, 0)
	id, err := f.svc.Submit(context.Background(), strings.NewReader("v"), "a.mp4", "nope")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	job, _ := f.svc.GetJob(id)
	if job.Style != style.Defaults() {
		t.Errorf("style = %+v, want defaults", job.Style)
	}
}

func TestSubmit_RejectsBadUploads(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"oversized", bytes.Repeat([]byte("x"), 17)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, 16)
			_, err := f.svc.Submit(context.Background(), bytes.NewReader(tt.body), "a.mp4", "")
			if !errors.Is(err, ErrInput) {
				t.Fatalf("Submit error = %v, want ErrInput", err)
			}
			if n := len(f.registry.List()); n != 0 {
				t.Errorf("registry has %d jobs, want 0", n)
			}
			if n := len(inputFiles(t, f.workspace)); n != 0 {
				t.Errorf("input dir has %d files, want 0", n)
			}
		})
	}

	f := newServiceFixture(t, 16)
	if _, err := f.svc.Submit(context.Background(), nil, "a.mp4", ""); !errors.Is(err, ErrInput) {
		t.Errorf("Submit(nil) error = %v, want ErrInput", err)
	}
}

func TestSubmit_UploadAtLimitAccepted(t *testing.T) {
	f := newServiceFixture(t, 16)
	if _, err := f.svc.Submit(context.Background(), bytes.NewReader(bytes.Repeat([]byte("x"), 16)), "a.mp4", ""); err != nil {
		t.Errorf("Submit at limit error = %v", err)
	}
}

func TestSubmit_QueueFullDiscardsJob(t *testing.T) {
	f := newServiceFixture(t, 0)
	f.queue.err = ErrQueueFull

	id, err := f.svc.Submit(context.Background(), strings.NewReader("v"), "a.mp4", "")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit error = %v, want ErrQueueFull", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty on rejection", id)
	}
	if n := len(f.registry.List()); n != 0 {
		t.Errorf("registry has %d jobs, want 0", n)
	}
	if n := len(inputFiles(t, f.workspace)); n != 0 {
		t.Errorf("input dir has %d files, want 0", n)
	}
}

func TestGetStatus_UnknownIsNotFound(t *testing.T) {
	f := newServiceFixture(t, 0)
	if _, err := f.svc.GetStatus("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStatus error = %v, want ErrNotFound", err)
	}
}

func TestGetOutput(t *testing.T) {
	f := newServiceFixture(t, 0)
	ctx := context.Background()

	if _, err := f.svc.GetOutput("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOutput(missing) = %v, want ErrNotFound", err)
	}

	running, _ := f.svc.Submit(ctx, strings.NewReader("v"), "a.mp4", "")
	f.registry.Update(running, func(j *Job) { j.Status, j.Percent = StatusTranscribing, 30 })
	if _, err := f.svc.GetOutput(running); !errors.Is(err, ErrNotReady) {
		t.Errorf("GetOutput(running) = %v, want ErrNotReady", err)
	}

	failed, _ := f.svc.Submit(ctx, strings.NewReader("v"), "a.mp4", "")
	f.registry.Update(failed, func(j *Job) { j.Status, j.ErrorDetail = StatusError, "ffmpeg exited 1" })
	_, err := f.svc.GetOutput(failed)
	if !errors.Is(err, ErrJobFailed) || !strings.Contains(err.Error(), "ffmpeg exited 1") {
		t.Errorf("GetOutput(failed) = %v, want ErrJobFailed with detail", err)
	}

	done, _ := f.svc.Submit(ctx, strings.NewReader("v"), "a.mp4", "")
	job, _ := f.registry.Update(done, func(j *Job) { j.Status, j.Percent = StatusDone, 100 })
	if err := os.WriteFile(job.OutputPath, []byte("mp4"), 0644); err != nil {
		t.Fatal(err)
	}
	path, err := f.svc.GetOutput(done)
	if err != nil || path != job.OutputPath {
		t.Errorf("GetOutput(done) = %q, %v; want %q", path, err, job.OutputPath)
	}
}

func TestSavePresetDelegates(t *testing.T) {
	f := newServiceFixture(t, 0)
	size := 70
	id, err := f.svc.SavePreset(context.Background(), "small", style.Preset{FontSize: &size})
	if err != nil || id != "preset-1" {
		t.Errorf("SavePreset = %q, %v", id, err)
	}
	if len(f.styles.saved) != 1 {
		t.Errorf("saved %d presets, want 1", len(f.styles.saved))
	}
}

type failingReader struct{ err error }

func (r failingReader) Read(p []byte) (int, error) { return 0, r.err }

func TestSubmit_UploadErrorsKeepCause(t *testing.T) {
	f := newServiceFixture(t, 16)

	_, err := f.svc.Submit(context.Background(), bytes.NewReader(bytes.Repeat([]byte("x"), 17)), "a.mp4", "")
	if !errors.Is(err, ErrInput) || !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized Submit error = %v, want ErrInput and ErrTooLarge", err)
	}

	cause := errors.New("connection reset")
	_, err = f.svc.Submit(context.Background(), failingReader{err: cause}, "a.mp4", "")
	if !errors.Is(err, ErrInput) || !errors.Is(err, cause) {
		t.Errorf("read failure error = %v, want ErrInput wrapping the read error", err)
	}
	if errors.Is(err, ErrTooLarge) {
		t.Error("read failure should not be reported as too large")
	}
}

func TestSubmit_EmptyFilenameLeftBlank(t *testing.T) {
	f := newServiceFixture(t, 0)

	id, err := f.svc.Submit(context.Background(), strings.NewReader("v"), "", "")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	job, err := f.svc.GetJob(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Filename != "" {
		t.Errorf("Filename = %q, want empty", job.Filename)
	}
	if filepath.Ext(job.InputPath) != ".mp4" {
		t.Errorf("InputPath = %q, want .mp4 fallback", job.InputPath)
	}

	id, _ = f.svc.Submit(context.Background(), strings.NewReader("v"), "dir/clip.mov", "")
	if job, _ := f.svc.GetJob(id); job.Filename != "clip.mov" {
		t.Errorf("Filename = %q, want clip.mov", job.Filename)
	}
}
