package store

import (
	"context"
	"fmt"
)

// Notification is a queued failure notice.
type Notification struct {
	ID      int64  `json:"id"`
	Project string `json:"project"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sent    bool   `json:"sent"`
}

// Outbox queues notifications for one project. Delivery is left to
// whatever drains the table.
type Outbox struct {
	store   *Store
	project string
}

// Outbox returns the notification outbox of project.
func (s *Store) Outbox(project string) *Outbox {
	return &Outbox{store: s, project: project}
}

// Notify queues a notification.
func (o *Outbox) Notify(ctx context.Context, subject, body string) error {
	_, err := o.store.db.ExecContext(ctx, `
		INSERT INTO notifications (project_id, subject, body) VALUES (?, ?, ?)
	`, o.project, subject, body)
	if err != nil {
		return fmt.Errorf("queue notification for %s: %w", o.project, err)
	}
	return nil
}

// Pending returns unsent notifications in queue order.
func (o *Outbox) Pending(ctx context.Context) ([]Notification, error) {
	rows, err := o.store.db.QueryContext(ctx, `
		SELECT id, project_id, subject, body, sent FROM notifications
		WHERE project_id = ? AND sent = 0 ORDER BY id ASC
	`, o.project)
	if err != nil {
		return nil, fmt.Errorf("read outbox of %s: %w", o.project, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var sent int
		if err := rows.Scan(&n.ID, &n.Project, &n.Subject, &n.Body, &sent); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Sent = sent == 1
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkSent flags notification id as delivered.
func (o *Outbox) MarkSent(ctx context.Context, id int64) error {
	_, err := o.store.db.ExecContext(ctx, `
		UPDATE notifications SET sent = 1 WHERE id = ? AND project_id = ?
	`, id, o.project)
	if err != nil {
		return fmt.Errorf("mark notification %d sent: %w", id, err)
	}
	return nil
}
