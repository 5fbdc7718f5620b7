// Package captions turns word-level transcript timings into caption cues and
// serializes them as an ASS subtitle script for ffmpeg's ass filter.
package captions

import "strings"

// Word is a single transcribed token. Times are in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Cue is one caption entry covering a contiguous run of words.
type Cue struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// BuildCues partitions words into consecutive runs of groupSize and emits one
// cue per run. The final run is kept even when it is shorter than groupSize.
// A groupSize below 1 is treated as 1.
func BuildCues(words []Word, groupSize int) []Cue {
	if groupSize < 1 {
		groupSize = 1
	}
	if len(words) == 0 {
		return []Cue{}
	}

	cues := make([]Cue, 0, (len(words)+groupSize-1)/groupSize)
	texts := make([]string, 0, groupSize)
	for i := 0; i < len(words); i += groupSize {
		end := i + groupSize
		if end > len(words) {
			end = len(words)
		}
		group := words[i:end]

		texts = texts[:0]
		for _, w := range group {
			texts = append(texts, w.Text)
		}
		cues = append(cues, Cue{
			Text:  strings.Join(texts, " "),
			Start: group[0].Start,
			End:   group[len(group)-1].End,
		})
	}
	return cues
}
