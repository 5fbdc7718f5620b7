// Package transcribe produces word-timed transcripts with the openai-whisper
// command line tool.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-captions/internal/captions"
	"github.com/heimdex/heimdex-captions/internal/pipelines"
)

const DefaultModel = "base"

// ErrMalformedOutput is returned when whisper's JSON cannot be read.
var ErrMalformedOutput = errors.New("malformed transcript output")

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []whisperWord `json:"words"`
}

type whisperPayload struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

// Whisper runs the whisper CLI with word timestamps and reads its JSON output.
type Whisper struct {
	binary   string
	model    string
	language string
	runner   pipelines.CommandRunner
	logger   *slog.Logger
}

func NewWhisper(binary, model, language string, runner pipelines.CommandRunner, logger *slog.Logger) *Whisper {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = DefaultModel
	}
	return &Whisper{
		binary:   binary,
		model:    model,
		language: language,
		runner:   runner,
		logger:   logger,
	}
}

// Transcribe returns the words spoken in audio in time order. The JSON file
// whisper writes is placed next to audio.
func (w *Whisper) Transcribe(ctx context.Context, audio string) ([]captions.Word, error) {
	outDir := filepath.Dir(audio)
	args := []string{
		audio,
		"--model", w.model,
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}

	result := w.runner.Run(ctx, w.binary, args...)
	if err := result.Err(); err != nil {
		return nil, err
	}

	jsonPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))+".json")
	words, err := LoadWords(jsonPath)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("transcript loaded", "path", jsonPath, "words", len(words))
	return words, nil
}

// LoadWords reads a whisper JSON transcript and flattens its segments into
// words. Word text is trimmed and empty tokens are dropped.
func LoadWords(path string) ([]captions.Word, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return ParseWords(data)
}

func ParseWords(data []byte) ([]captions.Word, error) {
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	words := make([]captions.Word, 0)
	for _, seg := range payload.Segments {
		for _, ww := range seg.Words {
			text := strings.TrimSpace(ww.Word)
			if text == "" {
				continue
			}
			end := ww.End
			if end < ww.Start {
				end = ww.Start
			}
			words = append(words, captions.Word{Text: text, Start: ww.Start, End: end})
		}
	}
	return words, nil
}
