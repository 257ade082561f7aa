package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/recsync/internal/ir"
)

// StoreFile saves an attachment in project and returns its document id.
// The file is not attached to any field.
func (s *Store) StoreFile(ctx context.Context, project string, f ir.File) (string, error) {
	docID := s.ids.Generate()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (doc_id, project_id, mime_type, name, content, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, docID, project, f.MimeType, f.Name, f.Content, ir.FileHash(f))
	if err != nil {
		return "", fmt.Errorf("store file %s in %s: %w", f.Name, project, err)
	}
	return docID, nil
}

// GetFile returns the attachment docID of project, including deleted ones.
func (s *Store) GetFile(ctx context.Context, project, docID string) (ir.File, error) {
	f := ir.File{DocID: docID}
	err := s.db.QueryRowContext(ctx, `
		SELECT mime_type, name, content FROM files WHERE doc_id = ? AND project_id = ?
	`, docID, project).Scan(&f.MimeType, &f.Name, &f.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.File{}, fmt.Errorf("%w: %s/%s", ErrFileNotFound, project, docID)
	}
	if err != nil {
		return ir.File{}, fmt.Errorf("get file %s/%s: %w", project, docID, err)
	}
	return f, nil
}

// CopyFile duplicates attachment docID into destProject and returns the
// new document id.
func (s *Store) CopyFile(ctx context.Context, docID, destProject string) (string, error) {
	var f ir.File
	err := s.db.QueryRowContext(ctx, `
		SELECT mime_type, name, content FROM files WHERE doc_id = ? AND deleted = 0
	`, docID).Scan(&f.MimeType, &f.Name, &f.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("copy file: %w: %s", ErrFileNotFound, docID)
	}
	if err != nil {
		return "", fmt.Errorf("copy file %s: %w", docID, err)
	}
	newID, err := s.StoreFile(ctx, destProject, f)
	if err != nil {
		return "", fmt.Errorf("copy file %s: %w", docID, err)
	}
	return newID, nil
}

// AddFileToField attaches docID to field of record at slot, creating the
// record if needed.
func (s *Store) AddFileToField(ctx context.Context, project, record, field string, slot ir.Slot, docID string) error {
	p, err := s.Project(ctx, project)
	if err != nil {
		return err
	}
	if !p.IsFileField(field) {
		return fmt.Errorf("add file to %s/%s: %q is not a file field", project, record, field)
	}
	rec := ir.NewRecordData()
	rec.Set(slot, field, docID)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeRecord(ctx, tx, p, record, rec); err != nil {
			return fmt.Errorf("add file to %s/%s: %w", project, record, err)
		}
		return nil
	})
}

// DeleteFileFromField detaches the attachment in field of record at slot
// and marks the document deleted. A slot without a file is left as is.
func (s *Store) DeleteFileFromField(ctx context.Context, project, record, field string, slot ir.Slot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var docID string
		err := tx.QueryRowContext(ctx, `
			SELECT value FROM record_data
			WHERE project_id = ? AND record = ? AND event_id = ? AND repeat_form = ? AND instance = ? AND field = ?
		`, project, record, slot.Event, slot.RepeatGroup, slot.Instance, field).Scan(&docID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete file from %s/%s: %w", project, record, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE files SET deleted = 1 WHERE doc_id = ? AND project_id = ?
		`, docID, project); err != nil {
			return fmt.Errorf("delete file %s: %w", docID, err)
		}
		if err := upsertValue(ctx, tx, project, record, slot, field, ""); err != nil {
			return fmt.Errorf("delete file from %s/%s: %w", project, record, err)
		}
		return nil
	})
}
