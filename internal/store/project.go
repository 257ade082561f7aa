package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recsync/internal/ir"
)

// Lookup errors. Wrapped with the missing identifier.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrUnknownField    = errors.New("unknown field")
)

// DefineProject creates or replaces the schema of p. Record data is kept.
func (s *Store) DefineProject(ctx context.Context, p *ir.Project) error {
	if err := checkProject(p); err != nil {
		return fmt.Errorf("define project %s: %w", p.ID, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, primary_key, secondary_key, autonumber)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				primary_key = excluded.primary_key,
				secondary_key = excluded.secondary_key,
				autonumber = excluded.autonumber
		`, p.ID, p.PrimaryKey, p.SecondaryKey, boolToInt(p.Autonumber))
		if err != nil {
			return fmt.Errorf("define project %s: %w", p.ID, err)
		}

		for _, stmt := range []string{
			`DELETE FROM event_forms WHERE project_id = ?`,
			`DELETE FROM events WHERE project_id = ?`,
			`DELETE FROM fields WHERE project_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, p.ID); err != nil {
				return fmt.Errorf("define project %s: %w", p.ID, err)
			}
		}

		for i, ev := range p.Events {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO events (project_id, id, position, unique_name, repeating)
				VALUES (?, ?, ?, ?, ?)
			`, p.ID, ev.ID, i, ev.UniqueName, boolToInt(ev.Repeating))
			if err != nil {
				return fmt.Errorf("define project %s: event %s: %w", p.ID, ev.ID, err)
			}
			for j, form := range ev.Forms {
				repeating := false
				for _, rf := range ev.RepeatingForms {
					if rf == form {
						repeating = true
					}
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO event_forms (project_id, event_id, form, position, repeating)
					VALUES (?, ?, ?, ?, ?)
				`, p.ID, ev.ID, form, j, boolToInt(repeating))
				if err != nil {
					return fmt.Errorf("define project %s: event %s form %s: %w", p.ID, ev.ID, form, err)
				}
			}
		}

		for name, f := range p.Fields {
			typ := f.Type
			if typ == "" {
				typ = ir.FieldTypeText
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fields (project_id, name, form, type) VALUES (?, ?, ?, ?)
			`, p.ID, name, f.Form, typ)
			if err != nil {
				return fmt.Errorf("define project %s: field %s: %w", p.ID, name, err)
			}
		}
		return nil
	})
}

func checkProject(p *ir.Project) error {
	switch {
	case p.ID == "":
		return errors.New("missing project id")
	case !p.HasField(p.PrimaryKey):
		return fmt.Errorf("primary key %q is not a field", p.PrimaryKey)
	case p.SecondaryKey != "" && !p.HasField(p.SecondaryKey):
		return fmt.Errorf("secondary key %q is not a field", p.SecondaryKey)
	case len(p.Events) == 0:
		return errors.New("project has no events")
	}
	for _, ev := range p.Events {
		for _, rf := range ev.RepeatingForms {
			found := false
			for _, f := range ev.Forms {
				if f == rf {
					found = true
				}
			}
			if !found {
				return fmt.Errorf("event %s: repeating form %q is not on the event", ev.ID, rf)
			}
		}
	}
	return nil
}

// Project returns the schema of project ref.
func (s *Store) Project(ctx context.Context, ref string) (*ir.Project, error) {
	p := &ir.Project{ID: ref, Fields: make(map[string]ir.FieldMeta)}
	var autonumber int
	err := s.db.QueryRowContext(ctx, `
		SELECT primary_key, secondary_key, autonumber FROM projects WHERE id = ?
	`, ref).Scan(&p.PrimaryKey, &p.SecondaryKey, &autonumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", ref, err)
	}
	p.Autonumber = autonumber == 1

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_name, repeating FROM events
		WHERE project_id = ? ORDER BY position ASC
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("read project %s events: %w", ref, err)
	}
	for rows.Next() {
		var ev ir.EventMeta
		var repeating int
		if err := rows.Scan(&ev.ID, &ev.UniqueName, &repeating); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Repeating = repeating == 1
		p.Events = append(p.Events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read project %s events: %w", ref, err)
	}

	for i := range p.Events {
		ev := &p.Events[i]
		forms, err := s.db.QueryContext(ctx, `
			SELECT form, repeating FROM event_forms
			WHERE project_id = ? AND event_id = ? ORDER BY position ASC
		`, ref, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("read project %s forms: %w", ref, err)
		}
		for forms.Next() {
			var form string
			var repeating int
			if err := forms.Scan(&form, &repeating); err != nil {
				forms.Close()
				return nil, fmt.Errorf("scan form: %w", err)
			}
			ev.Forms = append(ev.Forms, form)
			if repeating == 1 {
				ev.RepeatingForms = append(ev.RepeatingForms, form)
			}
		}
		forms.Close()
		if err := forms.Err(); err != nil {
			return nil, fmt.Errorf("read project %s forms: %w", ref, err)
		}
	}

	fields, err := s.db.QueryContext(ctx, `
		SELECT name, form, type FROM fields WHERE project_id = ? ORDER BY name ASC
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("read project %s fields: %w", ref, err)
	}
	defer fields.Close()
	for fields.Next() {
		var f ir.FieldMeta
		if err := fields.Scan(&f.Name, &f.Form, &f.Type); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		p.Fields[f.Name] = f
	}
	if err := fields.Err(); err != nil {
		return nil, fmt.Errorf("read project %s fields: %w", ref, err)
	}

	return p, nil
}

// LoadProjectFile decodes a project schema from YAML.
func LoadProjectFile(path string) (*ir.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	var p ir.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}
	for name, f := range p.Fields {
		if f.Name == "" {
			f.Name = name
		}
		if f.Type == "" {
			f.Type = ir.FieldTypeText
		}
		p.Fields[name] = f
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
