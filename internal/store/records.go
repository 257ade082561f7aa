package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/recsync/internal/ir"
)

// Read returns the data of the requested records. Records that do not
// exist are absent from the snapshot.
func (s *Store) Read(ctx context.Context, req ir.ReadRequest) (ir.Snapshot, error) {
	snap := ir.Snapshot{}
	if len(req.Records) == 0 {
		return snap, nil
	}

	for _, id := range req.Records {
		var group sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT access_group FROM records WHERE project_id = ? AND id = ?
		`, req.Project, id).Scan(&group)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read record %s/%s: %w", req.Project, id, err)
		}
		rec := ir.NewRecordData()
		if group.Valid {
			rec.AccessGroup = group.String
			rec.HasAccessGroup = true
		}
		snap[id] = rec
	}

	for id, rec := range snap {
		if err := s.readValues(ctx, req.Project, id, req.Fields, rec); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Store) readValues(ctx context.Context, project, record string, fields []string, rec *ir.RecordData) error {
	query := `
		SELECT event_id, repeat_form, instance, field, value FROM record_data
		WHERE project_id = ? AND record = ?`
	args := []any{project, record}
	if len(fields) > 0 {
		query += ` AND field IN (` + placeholders(len(fields)) + `)`
		for _, f := range fields {
			args = append(args, f)
		}
	}
	query += ` ORDER BY event_id, repeat_form, instance, field`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read record %s/%s values: %w", project, record, err)
	}
	defer rows.Close()

	for rows.Next() {
		var event, form, field, value string
		var instance int
		if err := rows.Scan(&event, &form, &instance, &field, &value); err != nil {
			return fmt.Errorf("scan record value: %w", err)
		}
		rec.Set(storedSlot(event, form, instance), field, value)
	}
	return rows.Err()
}

// storedSlot rebuilds a slot from its stored columns.
func storedSlot(event, form string, instance int) ir.Slot {
	switch {
	case instance == 0:
		return ir.Slot{Event: event}
	case form == "":
		return ir.Slot{Event: event, Shape: ir.ShapeRepeatingEvent, Instance: instance}
	default:
		return ir.Slot{Event: event, Shape: ir.ShapeRepeatingForm, RepeatGroup: form, Instance: instance}
	}
}

// Write saves snapshot into project in one transaction. New records are
// created with their primary key set on the first event. An empty value
// clears the stored value. Returns the ids of the records written, sorted.
func (s *Store) Write(ctx context.Context, project string, snap ir.Snapshot) ([]string, error) {
	p, err := s.Project(ctx, project)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := writeRecord(ctx, tx, p, id, snap[id]); err != nil {
				return fmt.Errorf("write record %s/%s: %w", project, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, p *ir.Project, id string, rec *ir.RecordData) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty record id")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (project_id, id) VALUES (?, ?)
		ON CONFLICT(project_id, id) DO NOTHING
	`, p.ID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if err := upsertValue(ctx, tx, p.ID, id, ir.Slot{Event: p.FirstEventID()}, p.PrimaryKey, id); err != nil {
			return err
		}
	}

	if rec == nil {
		return nil
	}
	if rec.HasAccessGroup {
		var group any
		if rec.AccessGroup != "" {
			group = rec.AccessGroup
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET access_group = ? WHERE project_id = ? AND id = ?
		`, group, p.ID, id); err != nil {
			return err
		}
	}

	for event, fields := range rec.Events {
		for field, value := range fields {
			if err := checkWrite(p, event, field); err != nil {
				return err
			}
			if err := upsertValue(ctx, tx, p.ID, id, ir.Slot{Event: event}, field, value); err != nil {
				return err
			}
		}
	}
	for key, instances := range rec.Repeats {
		shape := ir.ShapeRepeatingEvent
		if key.Form != "" {
			shape = ir.ShapeRepeatingForm
		}
		for n, fields := range instances {
			slot := ir.Slot{Event: key.Event, Shape: shape, RepeatGroup: key.Form, Instance: n}
			for field, value := range fields {
				if err := checkWrite(p, key.Event, field); err != nil {
					return err
				}
				if err := upsertValue(ctx, tx, p.ID, id, slot, field, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkWrite(p *ir.Project, event, field string) error {
	if !p.HasField(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if _, ok := p.Event(event); !ok {
		return fmt.Errorf("unknown event %s", event)
	}
	return nil
}

func upsertValue(ctx context.Context, tx *sql.Tx, project, record string, slot ir.Slot, field, value string) error {
	if value == "" {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM record_data
			WHERE project_id = ? AND record = ? AND event_id = ? AND repeat_form = ? AND instance = ? AND field = ?
		`, project, record, slot.Event, slot.RepeatGroup, slot.Instance, field)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO record_data (project_id, record, event_id, repeat_form, instance, field, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, record, event_id, repeat_form, instance, field)
		DO UPDATE SET value = excluded.value
	`, project, record, slot.Event, slot.RepeatGroup, slot.Instance, field, value)
	return err
}

// FindRecords returns the ids of records holding value in field on any
// event or instance, sorted.
func (s *Store) FindRecords(ctx context.Context, project, field, value string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT record FROM record_data
		WHERE project_id = ? AND field = ? AND value = ?
		ORDER BY record ASC
	`, project, field, value)
	if err != nil {
		return nil, fmt.Errorf("find records %s.%s: %w", project, field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReserveNewID reserves the next autonumbered record id of project. The
// id is above every numeric record id and every earlier reservation, so
// two reservations never return the same id.
func (s *Store) ReserveNewID(ctx context.Context, project string) (string, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		err := tx.QueryRowContext(ctx, `SELECT next_id FROM projects WHERE id = ?`, project).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, project)
		}
		if err != nil {
			return err
		}

		var top sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT MAX(CAST(id AS INTEGER)) FROM records
			WHERE project_id = ? AND id NOT GLOB '*[^0-9]*' AND id != ''
		`, project).Scan(&top)
		if err != nil {
			return err
		}

		id = next
		if top.Valid && top.Int64 >= id {
			id = top.Int64 + 1
		}
		_, err = tx.ExecContext(ctx, `UPDATE projects SET next_id = ? WHERE id = ?`, id+1, project)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("reserve record id in %s: %w", project, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// RecordIDs lists the record ids of project in id order.
func (s *Store) RecordIDs(ctx context.Context, project string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM records WHERE project_id = ? ORDER BY id ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", project, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
