package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/recsync/internal/ids"
	"github.com/roach88/recsync/internal/ir"
)

// createTestStore creates a new store in a temporary directory with
// deterministic document ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(ids.NewSequence("doc")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testProject has a flat event with a repeating form, a repeating event
// and a file field.
func testProject(id string) *ir.Project {
	return &ir.Project{
		ID:           id,
		PrimaryKey:   "record_id",
		SecondaryKey: "mrn",
		Autonumber:   true,
		Fields: map[string]ir.FieldMeta{
			"record_id": {Name: "record_id", Form: "enrolment", Type: ir.FieldTypeText},
			"mrn":       {Name: "mrn", Form: "enrolment", Type: ir.FieldTypeText},
			"wt":        {Name: "wt", Form: "enrolment", Type: ir.FieldTypeText},
			"med":       {Name: "med", Form: "medications", Type: ir.FieldTypeText},
			"scan":      {Name: "scan", Form: "imaging", Type: ir.FieldTypeFile},
		},
		Events: []ir.EventMeta{
			{ID: "101", UniqueName: "baseline_arm_1", Forms: []string{"enrolment", "medications"}, RepeatingForms: []string{"medications"}},
			{ID: "102", UniqueName: "visit_arm_1", Forms: []string{"imaging"}, Repeating: true},
		},
	}
}

// defineTestProject creates the test project in s.
func defineTestProject(t *testing.T, s *Store, id string) *ir.Project {
	t.Helper()
	p := testProject(id)
	if err := s.DefineProject(context.Background(), p); err != nil {
		t.Fatalf("DefineProject() failed: %v", err)
	}
	return p
}
