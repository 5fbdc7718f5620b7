package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultInputExt = ".mp4"

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// Workspace lays out per-job files under three directories: uploads in
// input/, intermediate artifacts in tmp/<id>/, rendered videos in output/.
type Workspace struct {
	InputDir  string
	TmpDir    string
	OutputDir string
}

func NewWorkspace(inputDir, tmpDir, outputDir string) *Workspace {
	return &Workspace{InputDir: inputDir, TmpDir: tmpDir, OutputDir: outputDir}
}

// Ensure creates the workspace directories.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{w.InputDir, w.TmpDir, w.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// InputPath returns where the upload for id is stored. The extension comes
// from the client's filename when it looks sane.
func (w *Workspace) InputPath(id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		ext = defaultInputExt
	}
	return filepath.Join(w.InputDir, id+ext)
}

func (w *Workspace) JobTmpDir(id string) string {
	return filepath.Join(w.TmpDir, id)
}

func (w *Workspace) AudioPath(id string) string {
	return filepath.Join(w.JobTmpDir(id), "audio.wav")
}

func (w *Workspace) SubtitlePath(id string) string {
	return filepath.Join(w.JobTmpDir(id), "captions.ass")
}

func (w *Workspace) OutputPath(id string) string {
	return filepath.Join(w.OutputDir, id+".mp4")
}

func (w *Workspace) RemoveTmp(id string) error {
	return os.RemoveAll(w.JobTmpDir(id))
}
