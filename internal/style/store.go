package style

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is a stored preset with its identifier.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Preset    Preset    `json:"preset"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists presets. Get returns (nil, nil) when the id is unknown.
type Store interface {
	CreatePreset(ctx context.Context, rec *Record) error
	GetPreset(ctx context.Context, id string) (*Record, error)
	ListPresets(ctx context.Context) ([]*Record, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreatePreset(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Preset)
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO presets (id, name, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, nullString(rec.Name), string(payload), rec.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) GetPreset(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, payload, created_at FROM presets WHERE id = ?
	`, id)

	var rec Record
	var name sql.NullString
	var payload, createdAt string
	err := row.Scan(&rec.ID, &name, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Preset); err != nil {
		return nil, fmt.Errorf("decode preset %s: %w", id, err)
	}
	rec.Name = name.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

func (s *SQLiteStore) ListPresets(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, payload, created_at FROM presets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var name sql.NullString
		var payload, createdAt string
		if err := rows.Scan(&rec.ID, &name, &payload, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Preset); err != nil {
			return nil, fmt.Errorf("decode preset %s: %w", rec.ID, err)
		}
		rec.Name = name.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
