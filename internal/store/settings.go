package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/ir"
)

// ErrSettingsNotFound is returned when a project has no saved settings or
// a history entry does not exist.
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsEntry is one saved version of a project's settings.
type SettingsEntry struct {
	ID              int64           `json:"id"`
	Project         string          `json:"project"`
	Settings        config.Settings `json:"settings"`
	Hash            string          `json:"hash"`
	EngineVersion   string          `json:"engine_version"`
	SettingsVersion string          `json:"settings_version"`
	CreatedAt       string          `json:"created_at"`
}

// SaveSettings records settings as the newest history entry of project,
// unless they equal the newest entry already saved. Returns the id of the
// newest entry and whether a new one was written.
func (s *Store) SaveSettings(ctx context.Context, project string, settings config.Settings) (int64, bool, error) {
	canonical, err := ir.MarshalCanonical(map[string]any(settings))
	if err != nil {
		return 0, false, fmt.Errorf("save settings for %s: %w", project, err)
	}
	hash, err := ir.SettingsHash(settings)
	if err != nil {
		return 0, false, fmt.Errorf("save settings for %s: %w", project, err)
	}

	var id int64
	var saved bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var latestID int64
		var latestHash string
		err := tx.QueryRowContext(ctx, `
			SELECT id, hash FROM settings_history
			WHERE project_id = ? ORDER BY id DESC LIMIT 1
		`, project).Scan(&latestID, &latestHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil && latestHash == hash {
			id = latestID
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO settings_history (project_id, settings, hash, engine_version, settings_version)
			VALUES (?, ?, ?, ?, ?)
		`, project, string(canonical), hash, ir.EngineVersion, ir.SettingsVersion)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		saved = true
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("save settings for %s: %w", project, err)
	}
	return id, saved, nil
}

// LatestSettings returns the newest settings entry of project.
func (s *Store) LatestSettings(ctx context.Context, project string) (SettingsEntry, error) {
	entries, err := s.SettingsHistory(ctx, project, 1)
	if err != nil {
		return SettingsEntry{}, err
	}
	if len(entries) == 0 {
		return SettingsEntry{}, fmt.Errorf("%w: project %s", ErrSettingsNotFound, project)
	}
	return entries[0], nil
}

// SettingsHistory returns up to limit entries, newest first. A limit of
// zero or less returns the whole history.
func (s *Store) SettingsHistory(ctx context.Context, project string, limit int) ([]SettingsEntry, error) {
	query := `
		SELECT id, project_id, settings, hash, engine_version, settings_version, created_at
		FROM settings_history WHERE project_id = ? ORDER BY id DESC`
	args := []any{project}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read settings history of %s: %w", project, err)
	}
	defer rows.Close()

	var out []SettingsEntry
	for rows.Next() {
		e, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SettingsHistoryByID returns one history entry.
func (s *Store) SettingsHistoryByID(ctx context.Context, project string, id int64) (SettingsEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, settings, hash, engine_version, settings_version, created_at
		FROM settings_history WHERE project_id = ? AND id = ?
	`, project, id)
	e, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SettingsEntry{}, fmt.Errorf("%w: project %s entry %d", ErrSettingsNotFound, project, id)
	}
	return e, err
}

// FilteredSettingsHistory returns the entries in which any of keys changed
// compared with the entry saved before it, plus the oldest entry, newest
// first. Keys absent from the newest entry are not compared.
func (s *Store) FilteredSettingsHistory(ctx context.Context, project string, keys []string) ([]SettingsEntry, error) {
	history, err := s.SettingsHistory(ctx, project, 0)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	var compare []string
	for _, k := range keys {
		if _, ok := history[0].Settings[k]; ok {
			compare = append(compare, k)
		}
	}

	oldest := len(history) - 1
	kept := []SettingsEntry{history[oldest]}
	for i := oldest - 1; i >= 0; i-- {
		if !sameKeys(history[i].Settings, history[i+1].Settings, compare) {
			kept = append(kept, history[i])
		}
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, nil
}

func sameKeys(a, b config.Settings, keys []string) bool {
	for _, k := range keys {
		va, oka := a[k]
		vb, okb := b[k]
		if oka != okb || !reflect.DeepEqual(va, vb) {
			return false
		}
	}
	return true
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSettings(row scanner) (SettingsEntry, error) {
	var e SettingsEntry
	var raw string
	if err := row.Scan(&e.ID, &e.Project, &raw, &e.Hash, &e.EngineVersion, &e.SettingsVersion, &e.CreatedAt); err != nil {
		return SettingsEntry{}, err
	}
	if err := json.Unmarshal([]byte(raw), &e.Settings); err != nil {
		return SettingsEntry{}, fmt.Errorf("decode settings entry %d: %w", e.ID, err)
	}
	return e, nil
}

// SettingsSource serves instructions from the newest saved settings.
type SettingsSource struct {
	Store *Store
}

// Instructions returns the instruction list of the newest settings of
// projectID, or none when nothing is saved.
func (src SettingsSource) Instructions(ctx context.Context, projectID string) ([]config.Raw, error) {
	latest, err := src.Store.LatestSettings(ctx, projectID)
	if errors.Is(err, ErrSettingsNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return config.Instructions(latest.Settings)
}
