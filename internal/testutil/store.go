package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recsync/internal/ids"
	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
)

// OpenStore opens a store in a temporary directory with the fixture
// projects defined and deterministic document ids.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recsync.db"), store.WithIDGenerator(ids.NewSequence("doc")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.DefineProject(ctx, SourceProject()))
	require.NoError(t, s.DefineProject(ctx, DestProject()))
	return s
}

// Set writes one value.
func Set(t testing.TB, s *store.Store, project, record string, slot ir.Slot, field, value string) {
	t.Helper()
	rec := ir.NewRecordData()
	rec.Set(slot, field, value)
	_, err := s.Write(context.Background(), project, ir.Snapshot{record: rec})
	require.NoError(t, err)
}

// SetGroup assigns the access group of a record, creating it if needed.
func SetGroup(t testing.TB, s *store.Store, project, record, group string) {
	t.Helper()
	rec := ir.NewRecordData()
	rec.AccessGroup = group
	rec.HasAccessGroup = true
	_, err := s.Write(context.Background(), project, ir.Snapshot{record: rec})
	require.NoError(t, err)
}

// Get reads one value; "" when the record or value is absent.
func Get(t testing.TB, s *store.Store, project, record string, slot ir.Slot, field string) string {
	t.Helper()
	snap, err := s.Read(context.Background(), ir.ReadRequest{Project: project, Records: []string{record}})
	require.NoError(t, err)
	rec, _ := snap.Record(record)
	return rec.Value(slot, field)
}

// Record reads a whole record; nil when absent.
func Record(t testing.TB, s *store.Store, project, record string) *ir.RecordData {
	t.Helper()
	snap, err := s.Read(context.Background(), ir.ReadRequest{Project: project, Records: []string{record}})
	require.NoError(t, err)
	rec, _ := snap.Record(record)
	return rec
}

// AttachFile stores f and attaches it to field of record at slot,
// returning the document id.
func AttachFile(t testing.TB, s *store.Store, project, record, field string, slot ir.Slot, f ir.File) string {
	t.Helper()
	ctx := context.Background()
	docID, err := s.StoreFile(ctx, project, f)
	require.NoError(t, err)
	require.NoError(t, s.AddFileToField(ctx, project, record, field, slot, docID))
	return docID
}
