package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-captions/internal/jobs"
	"github.com/heimdex/heimdex-captions/internal/style"
)

const (
	downloadFilename = "clip.mp4"
	uploadFormField  = "file"
	maxPresetBody    = 64 * 1024
	// multipart framing allowance on top of the video itself
	uploadOverhead = 1 << 20
)

// JobService is the job boundary the handlers call.
type JobService interface {
	Submit(ctx context.Context, video io.Reader, filename, presetID string) (string, error)
	GetStatus(id string) (jobs.StatusView, error)
	GetOutput(id string) (string, error)
	GetJob(id string) (jobs.Job, error)
	SavePreset(ctx context.Context, name string, preset style.Preset) (string, error)
	List() []jobs.Job
}

// PresetLookup reads stored presets.
type PresetLookup interface {
	Get(ctx context.Context, id string) (*style.Record, error)
	List(ctx context.Context) ([]*style.Record, error)
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.CORSOrigins))

	r.Get("/health", healthHandler(cfg))

	r.Post("/preset", createPresetHandler(cfg))
	r.Get("/presets", listPresetsHandler(cfg))
	r.Get("/presets/{id}", getPresetHandler(cfg))

	r.Post("/upload", uploadHandler(cfg))
	r.Get("/status/{id}", statusHandler(cfg))
	r.Get("/download/{id}", downloadHandler(cfg))
	r.Get("/jobs", listJobsHandler(cfg))
	r.Get("/jobs/{id}", getJobHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:     "ok",
			Version:    cfg.Version,
			UptimeS:    int64(time.Since(cfg.StartTime).Seconds()),
			InstanceID: cfg.InstanceID,
		}
		if cfg.Runner != nil {
			stats := cfg.Runner.Stats()
			resp.Workers = &stats
		}
		if cfg.Doctor != nil {
			if cfg.Doctor.Stale() {
				cfg.Doctor.RefreshInBackground()
			}
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Tools = caps
				if !caps.Ready() {
					resp.Status = "degraded"
				}
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createPresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PresetRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPresetBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		id, err := cfg.Jobs.SavePreset(r.Context(), req.Name, req.Preset)
		if err != nil {
			if errors.Is(err, style.ErrInvalidPreset) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			cfg.Logger.Error("failed to save preset", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to save preset", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, PresetCreatedResponse{PresetID: id})
	}
}

func listPresetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Presets.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list presets", "INTERNAL_ERROR")
			return
		}

		resp := PresetsResponse{Presets: make([]PresetResponse, len(records))}
		for i, rec := range records {
			resp.Presets[i] = PresetToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getPresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Presets.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load preset", "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "preset not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, PresetToResponse(rec))
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+uploadOverhead)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "expected multipart/form-data upload", "BAD_REQUEST")
			return
		}

		presetID := r.URL.Query().Get("preset_id")
		part, err := findFilePart(mr, &presetID)
		if err != nil {
			if isTooLarge(err) {
				writeTooLarge(w, cfg.MaxUploadBytes)
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		defer part.Close()

		id, err := cfg.Jobs.Submit(r.Context(), part, part.FileName(), strings.TrimSpace(presetID))
		switch {
		case err == nil:
			WriteJSON(w, http.StatusAccepted, UploadResponse{JobID: id})
		case errors.Is(err, jobs.ErrQueueFull):
			w.Header().Set("Retry-After", "30")
			WriteError(w, http.StatusServiceUnavailable, "server busy, try again later", "QUEUE_FULL")
		case errors.Is(err, jobs.ErrShuttingDown):
			WriteError(w, http.StatusServiceUnavailable, "server is shutting down", "SHUTTING_DOWN")
		case isTooLarge(err):
			writeTooLarge(w, cfg.MaxUploadBytes)
		case errors.Is(err, jobs.ErrInput):
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		default:
			cfg.Logger.Error("upload failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to accept upload", "INTERNAL_ERROR")
		}
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, jobs.ErrTooLarge) || errors.As(err, &maxErr)
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	WriteError(w, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("upload exceeds %d bytes", limit), "PAYLOAD_TOO_LARGE")
}

// findFilePart advances to the file field. A preset_id form field seen
// before the file is used when the query string did not carry one.
func findFilePart(mr *multipart.Reader, presetID *string) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing file field")
		}
		if err != nil {
			return nil, fmt.Errorf("malformed multipart body: %w", err)
		}

		switch part.FormName() {
		case uploadFormField:
			return part, nil
		case "preset_id":
			if *presetID == "" {
				b, err := io.ReadAll(io.LimitReader(part, 256))
				if err != nil {
					part.Close()
					return nil, fmt.Errorf("malformed multipart body: %w", err)
				}
				*presetID = string(b)
			}
		}
		part.Close()
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := cfg.Jobs.GetStatus(chi.URLParam(r, "id"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cfg.Jobs.GetOutput(chi.URLParam(r, "id"))
		if err != nil {
			writeJobError(w, err)
			return
		}

		f, err := os.Open(path)
		if err != nil {
			WriteError(w, http.StatusNotFound, "output not found", "NOT_FOUND")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read output", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="`+downloadFilename+`"`)
		http.ServeContent(w, r, downloadFilename, info.ModTime(), f)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Jobs.GetJob(chi.URLParam(r, "id"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := cfg.Jobs.List()
		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.Is(err, jobs.ErrNotReady):
		WriteError(w, http.StatusConflict, "job is still processing", "NOT_READY")
	case errors.Is(err, jobs.ErrJobFailed):
		WriteError(w, http.StatusConflict, err.Error(), "JOB_FAILED")
	default:
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
