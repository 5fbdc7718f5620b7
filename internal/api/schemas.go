package api

import (
	"time"

	"github.com/heimdex/heimdex-captions/internal/jobs"
	"github.com/heimdex/heimdex-captions/internal/pipelines"
	"github.com/heimdex/heimdex-captions/internal/style"
)

type HealthResponse struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	UptimeS    int64                   `json:"uptime_s"`
	InstanceID string                  `json:"instance_id,omitempty"`
	Workers    *jobs.Stats             `json:"workers,omitempty"`
	Tools      *pipelines.Capabilities `json:"tools,omitempty"`
}

// PresetRequest is a partial style. "name" is an optional label.
type PresetRequest struct {
	Name string `json:"name,omitempty"`
	style.Preset
}

type PresetCreatedResponse struct {
	PresetID string `json:"preset_id"`
}

type PresetResponse struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Preset    style.Preset `json:"preset"`
	Style     style.Style  `json:"style"`
	CreatedAt string       `json:"created_at"`
}

type PresetsResponse struct {
	Presets []PresetResponse `json:"presets"`
}

type UploadResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Percent    int         `json:"percent"`
	Filename   string      `json:"filename,omitempty"`
	PresetID   string      `json:"preset_id,omitempty"`
	Style      style.Style `json:"style"`
	CueCount   int         `json:"cue_count"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  string      `json:"created_at"`
	UpdatedAt  string      `json:"updated_at"`
	FinishedAt string      `json:"finished_at,omitempty"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func PresetToResponse(rec *style.Record) PresetResponse {
	return PresetResponse{
		ID:        rec.ID,
		Name:      rec.Name,
		Preset:    rec.Preset,
		Style:     rec.Preset.Apply(style.Defaults()),
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j jobs.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Percent:   j.Percent,
		Filename:  j.Filename,
		PresetID:  j.PresetID,
		Style:     j.Style,
		CueCount:  j.CueCount,
		Error:     j.ErrorDetail,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	if !j.FinishedAt.IsZero() {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	return resp
}
