package store

import (
	"context"
	"fmt"
)

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID      int64  `json:"id"`
	Project string `json:"project"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Record  string `json:"record,omitempty"`
	Event   string `json:"event,omitempty"`
}

// Audit is the audit log of one project.
type Audit struct {
	store   *Store
	project string
}

// AuditLog returns the audit log of project.
func (s *Store) AuditLog(project string) *Audit {
	return &Audit{store: s, project: project}
}

// LogEvent appends an entry to the audit log.
func (a *Audit) LogEvent(ctx context.Context, title, detail, record, event string) error {
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO audit_log (project_id, title, detail, record, event_id)
		VALUES (?, ?, ?, ?, ?)
	`, a.project, title, detail, record, event)
	if err != nil {
		return fmt.Errorf("log event for %s: %w", a.project, err)
	}
	return nil
}

// Entries returns the audit log in write order.
func (a *Audit) Entries(ctx context.Context) ([]AuditEntry, error) {
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT id, project_id, title, detail, record, event_id FROM audit_log
		WHERE project_id = ? ORDER BY id ASC
	`, a.project)
	if err != nil {
		return nil, fmt.Errorf("read audit log of %s: %w", a.project, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Project, &e.Title, &e.Detail, &e.Record, &e.Event); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
