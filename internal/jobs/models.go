// Package jobs runs caption burn-in jobs: it keeps the in-memory job registry,
// drives each job through its pipeline stages and bounds how many run at once.
package jobs

import (
	"time"

	"github.com/heimdex/heimdex-captions/internal/style"
)

type Status string

const (
	StatusQueued           Status = "queued"
	StatusExtractingAudio  Status = "extracting_audio"
	StatusTranscribing     Status = "transcribing"
	StatusBuildingCaptions Status = "building_captions"
	StatusRendering        Status = "rendering"
	StatusDone             Status = "done"
	StatusError            Status = "error"
)

// order is the position of each status along the forward-only state machine.
var order = map[Status]int{
	StatusQueued:           0,
	StatusExtractingAudio:  1,
	StatusTranscribing:     2,
	StatusBuildingCaptions: 3,
	StatusRendering:        4,
	StatusDone:             5,
	StatusError:            5,
}

func (s Status) Valid() bool {
	_, ok := order[s]
	return ok
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

type Job struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Percent     int         `json:"percent"`
	InputPath   string      `json:"-"`
	OutputPath  string      `json:"-"`
	Filename    string      `json:"filename,omitempty"`
	PresetID    string      `json:"preset_id,omitempty"`
	Style       style.Style `json:"style"`
	ErrorDetail string      `json:"error,omitempty"`
	CueCount    int         `json:"cue_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	FinishedAt  time.Time   `json:"finished_at,omitzero"`
}

// StatusView is what pollers see.
type StatusView struct {
	Status  Status `json:"status"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
}

func (j Job) View() StatusView {
	return StatusView{Status: j.Status, Percent: j.Percent, Error: j.ErrorDetail}
}
