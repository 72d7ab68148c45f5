package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/llm"
)

const (
	settingPersona = "persona_instructions"
	settingModel   = "model"
)

// Settings are the admin-editable tutor settings.
type Settings struct {
	Persona string `json:"persona_instructions" validate:"required,min=1,max=4000"`
	Model   string `json:"model" validate:"max=200"`
}

// SettingsService stores tutor settings in the settings table.
type SettingsService struct {
	db  *sql.DB
	llm llm.Provider
}

func NewSettingsService(db *sql.DB, provider llm.Provider) *SettingsService {
	return &SettingsService{db: db, llm: provider}
}

// InitAndGet seeds the settings table on first start and returns the
// current settings.
func (s *SettingsService) InitAndGet(ctx context.Context, defaults Settings) (*Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if current.Persona != "" {
		return current, nil
	}

	slog.Info("No tutor settings found, initializing from configuration")
	seeded := &Settings{Persona: defaults.Persona, Model: defaults.Model}
	if current.Model != "" {
		seeded.Model = current.Model
	}
	if err := s.save(ctx, seeded); err != nil {
		return nil, fmt.Errorf("failed to save initial settings: %w", err)
	}
	return seeded, nil
}

// Get returns the stored settings. Missing keys come back empty.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	settings := &Settings{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		switch key {
		case settingPersona:
			settings.Persona = value
		case settingModel:
			settings.Model = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return settings, nil
}

// Save validates and stores settings. A model that the upstream does not
// list is rejected; if the list cannot be fetched the model is accepted.
func (s *SettingsService) Save(ctx context.Context, settings *Settings) error {
	settings.Persona = strings.TrimSpace(settings.Persona)
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.Persona == "" {
		return fmt.Errorf("%w: persona instructions cannot be empty", app_errors.ErrValidation)
	}

	if settings.Model != "" {
		models, err := s.llm.ListModels(ctx)
		if err != nil {
			slog.Warn("Could not list models for validation, saving settings without check", "error", err)
		} else {
			ids := make([]string, len(models))
			for i, m := range models {
				ids[i] = m.ID
			}
			if !slices.Contains(ids, settings.Model) {
				return fmt.Errorf("%w: model '%s' is not offered by the upstream", app_errors.ErrValidation, settings.Model)
			}
		}
	}

	return s.save(ctx, settings)
}

func (s *SettingsService) save(ctx context.Context, settings *Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value")
	if err != nil {
		return fmt.Errorf("could not prepare settings upsert: %w", err)
	}
	defer stmt.Close()

	for _, kv := range [][2]string{{settingPersona, settings.Persona}, {settingModel, settings.Model}} {
		if _, err := stmt.ExecContext(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("could not save setting %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}
