package captions

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-captions/internal/style"
)

const (
	PlayResX = 1080
	PlayResY = 1920

	styleName          = "Default"
	outlineColor       = "&H00000000"
	backColor          = "&H00000000"
	horizontalMarginPx = 50
)

const styleFormat = "Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding"

const eventFormat = "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text"

// Script is an ASS subtitle document with a single Default style.
type Script struct {
	Style style.Style
	Cues  []Cue
}

// WriteTo serializes the script. The layout is consumed by libass through
// ffmpeg, so field order and separators are fixed.
func (s Script) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}

	fmt.Fprintln(cw, "[Script Info]")
	fmt.Fprintln(cw, "ScriptType: v4.00+")
	fmt.Fprintf(cw, "PlayResX: %d\n", PlayResX)
	fmt.Fprintf(cw, "PlayResY: %d\n", PlayResY)
	fmt.Fprintln(cw)

	fmt.Fprintln(cw, "[V4+ Styles]")
	fmt.Fprintln(cw, styleFormat)
	fmt.Fprintln(cw, styleLine(s.Style))
	fmt.Fprintln(cw)

	fmt.Fprintln(cw, "[Events]")
	fmt.Fprintln(cw, eventFormat)
	for _, cue := range s.Cues {
		fmt.Fprintln(cw, dialogueLine(cue))
	}

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// WriteFile writes the script to a temporary sibling of path and renames it
// into place, so path never holds a partial script.
func (s Script) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create subtitle dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create subtitle file: %w", err)
	}
	tmp := f.Name()

	_, err = s.WriteTo(f)
	if err == nil {
		err = f.Chmod(0644)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write subtitle file: %w", err)
	}
	return nil
}

func styleLine(st style.Style) string {
	return fmt.Sprintf("Style: %s,%s,%d,%s,%s,%s,%s,1,0,1,%d,0,%d,%d,%d,%d,1",
		styleName,
		st.Font,
		st.FontSize,
		st.PrimaryColor,
		st.PrimaryColor,
		outlineColor,
		backColor,
		st.OutlineWidth,
		st.Alignment,
		horizontalMarginPx,
		horizontalMarginPx,
		st.MarginVertical,
	)
}

func dialogueLine(c Cue) string {
	return fmt.Sprintf("Dialogue: 0,%s,%s,%s,,0,0,0,,%s",
		FormatTimestamp(c.Start),
		FormatTimestamp(c.End),
		styleName,
		sanitizeText(c.Text),
	)
}

// a raw newline would end the event record early
func sanitizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.ReplaceAll(text, "\r", " ")
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
