package style

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver turns preset ids into resolved styles and saves new presets.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve never fails: an empty or unknown id, or a store error, yields the
// defaults. Presets are optional customization.
func (r *Resolver) Resolve(ctx context.Context, presetID string) Style {
	presetID = strings.TrimSpace(presetID)
	if presetID == "" || r.store == nil {
		return Defaults()
	}

	rec, err := r.store.GetPreset(ctx, presetID)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("preset lookup failed, using defaults", "preset_id", presetID, "error", err)
		}
		return Defaults()
	}
	if rec == nil {
		return Defaults()
	}
	return rec.Preset.Apply(Defaults())
}

// Save validates and stores a preset, returning its new id.
func (r *Resolver) Save(ctx context.Context, name string, p Preset) (string, error) {
	normalized, err := p.Normalize()
	if err != nil {
		return "", err
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Preset:    normalized,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreatePreset(ctx, rec); err != nil {
		return "", err
	}

	if r.logger != nil {
		r.logger.Info("preset saved", "preset_id", rec.ID, "name", rec.Name)
	}
	return rec.ID, nil
}

// Get returns the stored record, or nil when unknown.
func (r *Resolver) Get(ctx context.Context, id string) (*Record, error) {
	return r.store.GetPreset(ctx, id)
}

func (r *Resolver) List(ctx context.Context) ([]*Record, error) {
	return r.store.ListPresets(ctx)
}
