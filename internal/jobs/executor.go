package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/heimdex/heimdex-captions/internal/captions"
	"github.com/heimdex/heimdex-captions/internal/logging"
)

// AudioExtractor pulls a speech-ready waveform out of a video.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, video, audioOut string) error
}

// Transcriber turns a waveform into time-ordered words.
type Transcriber interface {
	Transcribe(ctx context.Context, audio string) ([]captions.Word, error)
}

// Renderer burns a subtitle file into a video.
type Renderer interface {
	BurnSubtitles(ctx context.Context, video, subtitle, out string) error
}

type EmptyTranscriptPolicy string

const (
	// EmptyTranscriptRender renders a script with no dialogue lines.
	EmptyTranscriptRender EmptyTranscriptPolicy = "render"
	// EmptyTranscriptFail ends the job with a transcription failure.
	EmptyTranscriptFail EmptyTranscriptPolicy = "fail"
)

func (p EmptyTranscriptPolicy) Valid() bool {
	return p == EmptyTranscriptRender || p == EmptyTranscriptFail
}

var errEmptyTranscript = errors.New("transcript contains no words")

const (
	defaultExtractTimeout    = 5 * time.Minute
	defaultTranscribeTimeout = 30 * time.Minute
	defaultCaptionsTimeout   = time.Minute
	defaultRenderTimeout     = 30 * time.Minute
)

type ExecutorConfig struct {
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	CaptionsTimeout   time.Duration
	RenderTimeout     time.Duration
	EmptyTranscript   EmptyTranscriptPolicy
	KeepArtifacts     bool
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ExtractTimeout:    defaultExtractTimeout,
		TranscribeTimeout: defaultTranscribeTimeout,
		CaptionsTimeout:   defaultCaptionsTimeout,
		RenderTimeout:     defaultRenderTimeout,
		EmptyTranscript:   EmptyTranscriptRender,
	}
}

// Executor drives one job at a time through audio extraction,
// transcription, caption building and rendering. It is the only writer of a
// job's record after submission.
type Executor struct {
	registry    *Registry
	workspace   *Workspace
	extractor   AudioExtractor
	transcriber Transcriber
	renderer    Renderer
	cfg         ExecutorConfig
	logger      *slog.Logger
}

func NewExecutor(registry *Registry, workspace *Workspace, extractor AudioExtractor, transcriber Transcriber, renderer Renderer, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if !cfg.EmptyTranscript.Valid() {
		cfg.EmptyTranscript = EmptyTranscriptRender
	}
	return &Executor{
		registry:    registry,
		workspace:   workspace,
		extractor:   extractor,
		transcriber: transcriber,
		renderer:    renderer,
		cfg:         cfg,
		logger:      logging.WithComponent(logger, "executor"),
	}
}

// run carries artifacts between the stages of one job.
type run struct {
	job      Job
	audio    string
	subtitle string
	words    []captions.Word
	cues     []captions.Cue
}

type stage struct {
	status  Status
	start   int
	end     int
	timeout time.Duration
	kind    error
	fn      func(ctx context.Context, r *run) error
}

func (e *Executor) stages() []stage {
	return []stage{
		{StatusExtractingAudio, 5, 25, e.cfg.ExtractTimeout, ErrToolFailure, e.extractAudio},
		{StatusTranscribing, 25, 60, e.cfg.TranscribeTimeout, ErrTranscription, e.transcribe},
		{StatusBuildingCaptions, 60, 80, e.cfg.CaptionsTimeout, ErrToolFailure, e.buildCaptions},
		{StatusRendering, 80, 80, e.cfg.RenderTimeout, ErrToolFailure, e.render},
	}
}

// Execute runs the job to done or error. The returned error is the stage
// failure that was recorded on the job, or a registry error.
func (e *Executor) Execute(ctx context.Context, id string) error {
	job, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	logger := logging.WithJobID(e.logger, id)
	started := time.Now()

	r := &run{
		job:      job,
		audio:    e.workspace.AudioPath(id),
		subtitle: e.workspace.SubtitlePath(id),
	}
	defer e.cleanup(id, logger)

	if err := os.MkdirAll(e.workspace.JobTmpDir(id), 0755); err != nil {
		return e.fail(id, logger, &StageError{Stage: StatusQueued, Kind: ErrToolFailure, Err: err})
	}

	for _, st := range e.stages() {
		if _, err := e.registry.Update(id, func(j *Job) {
			j.Status = st.status
			j.Percent = max(j.Percent, st.start)
		}); err != nil {
			return err
		}

		stageLogger := logging.WithStage(logger, string(st.status))
		stageStart := time.Now()
		stageLogger.Info("stage started")

		if err := e.runStage(ctx, st, r); err != nil {
			return e.fail(id, stageLogger, err)
		}
		stageLogger.Info("stage finished", "duration_ms", time.Since(stageStart).Milliseconds())

		if st.end > st.start {
			if _, err := e.registry.Update(id, func(j *Job) { j.Percent = st.end }); err != nil {
				return err
			}
		}
	}

	if _, err := e.registry.Update(id, func(j *Job) {
		j.Status = StatusDone
		j.Percent = 100
		j.OutputPath = r.job.OutputPath
		j.CueCount = len(r.cues)
	}); err != nil {
		return err
	}
	logger.Info("job completed", "cues", len(r.cues), "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// Abandon marks a job that will never be executed as failed.
func (e *Executor) Abandon(id string, cause error) {
	_, err := e.registry.Update(id, func(j *Job) {
		j.Status = StatusError
		j.ErrorDetail = cause.Error()
	})
	if err != nil {
		e.logger.Warn("failed to abandon job", "job_id", id, "error", err)
	}
}

func (e *Executor) runStage(ctx context.Context, st stage, r *run) (err error) {
	if st.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &StageError{Stage: st.status, Kind: st.kind, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if err := st.fn(ctx, r); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return se
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return &StageError{Stage: st.status, Kind: st.kind, Err: err}
	}
	return nil
}

func (e *Executor) extractAudio(ctx context.Context, r *run) error {
	return e.extractor.ExtractAudio(ctx, r.job.InputPath, r.audio)
}

func (e *Executor) transcribe(ctx context.Context, r *run) error {
	words, err := e.transcriber.Transcribe(ctx, r.audio)
	if err != nil {
		return err
	}
	r.words = words
	return nil
}

func (e *Executor) buildCaptions(ctx context.Context, r *run) error {
	if len(r.words) == 0 && e.cfg.EmptyTranscript == EmptyTranscriptFail {
		return &StageError{Stage: StatusBuildingCaptions, Kind: ErrTranscription, Err: errEmptyTranscript}
	}
	r.cues = captions.BuildCues(r.words, r.job.Style.GroupSize)
	script := captions.Script{Style: r.job.Style, Cues: r.cues}
	return script.WriteFile(r.subtitle)
}

func (e *Executor) render(ctx context.Context, r *run) error {
	out := r.job.OutputPath
	if out == "" {
		out = e.workspace.OutputPath(r.job.ID)
	}
	if err := os.MkdirAll(e.workspace.OutputDir, 0755); err != nil {
		return err
	}
	if err := e.renderer.BurnSubtitles(ctx, r.job.InputPath, r.subtitle, out); err != nil {
		os.Remove(out)
		return err
	}
	r.job.OutputPath = out
	return nil
}

func (e *Executor) fail(id string, logger *slog.Logger, err error) error {
	logger.Error("job failed", "error", err)
	if _, uerr := e.registry.Update(id, func(j *Job) {
		j.Status = StatusError
		j.ErrorDetail = err.Error()
	}); uerr != nil {
		logger.Warn("failed to record job failure", "error", uerr)
	}
	return err
}

func (e *Executor) cleanup(id string, logger *slog.Logger) {
	if e.cfg.KeepArtifacts {
		return
	}
	if err := e.workspace.RemoveTmp(id); err != nil {
		logger.Warn("failed to remove job artifacts", "error", err)
	}
}
