package engine

import (
	"context"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/ir"
)

// DataStore reads and writes project schemas and record data.
type DataStore interface {
	Project(ctx context.Context, ref string) (*ir.Project, error)
	// Read returns only records that exist.
	Read(ctx context.Context, req ir.ReadRequest) (ir.Snapshot, error)
	// Write saves snap into project, overwriting given values.
	Write(ctx context.Context, project string, snap ir.Snapshot) ([]string, error)
	RecordFinder
}

// RecordFinder is the part of DataStore used to resolve destination
// records.
type RecordFinder interface {
	FindRecords(ctx context.Context, project, field, value string) ([]string, error)
	ReserveNewID(ctx context.Context, project string) (string, error)
}

// FileReader reads attachments for comparison.
type FileReader interface {
	GetFile(ctx context.Context, project, docID string) (ir.File, error)
}

// FileStore manages attachments referenced from file fields.
type FileStore interface {
	FileReader
	CopyFile(ctx context.Context, docID, destProject string) (string, error)
	AddFileToField(ctx context.Context, project, record, field string, slot ir.Slot, docID string) error
	DeleteFileFromField(ctx context.Context, project, record, field string, slot ir.Slot) error
}

// Evaluator checks and evaluates trigger conditions.
type Evaluator interface {
	Evaluate(ctx context.Context, req ir.EvalRequest) (bool, error)
	Validate(expr string) error
}

// AuditLog records one entry per firing outcome.
type AuditLog interface {
	LogEvent(ctx context.Context, title, detail, record, event string) error
}

// Notifier alerts operators. Called only for failed firings.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// ConfigSource supplies the raw instructions of a project. It is queried
// on every save event; implementations must not cache.
type ConfigSource interface {
	Instructions(ctx context.Context, projectID string) ([]config.Raw, error)
}
