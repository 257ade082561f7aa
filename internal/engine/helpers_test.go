package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/expr"
	"github.com/roach88/recsync/internal/ids"
	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
	"github.com/roach88/recsync/internal/testutil"
)

// fixture is an engine over a real store holding the source and
// destination fixture projects.
type fixture struct {
	store    *store.Store
	config   *testutil.StaticConfig
	notifier *testutil.RecordingNotifier
	engine   *Engine
}

func newFixture(t *testing.T, raws ...config.Raw) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	f := &fixture{
		store:    s,
		config:   testutil.NewStaticConfig(raws...),
		notifier: &testutil.RecordingNotifier{},
	}
	f.engine = f.newEngine(t, s)
	return f
}

// newEngine builds an engine over f's collaborators with data as the
// data store.
func (f *fixture) newEngine(t *testing.T, data DataStore) *Engine {
	t.Helper()
	ev, err := expr.New(f.store)
	require.NoError(t, err)
	e, err := New(Deps{
		Data:      data,
		Files:     f.store,
		Evaluator: ev,
		Audit:     f.store.AuditLog(testutil.SourceID),
		Notifier:  f.notifier,
		Config:    f.config,
	}, WithLogger(quietLogger()), WithIDGenerator(ids.NewSequence("firing")))
	require.NoError(t, err)
	return e
}

// save fires the engine for a saved form of a source record.
func (f *fixture) save(t *testing.T, record, form, event string, instance int) []Outcome {
	t.Helper()
	outs, err := f.engine.OnRecordSaved(context.Background(), ir.SaveEvent{
		ProjectID: testutil.SourceID,
		Record:    record,
		Form:      form,
		Event:     event,
		Instance:  instance,
	})
	require.NoError(t, err)
	return outs
}

// saveEnrolment fires the engine for the enrolment form of record.
func (f *fixture) saveEnrolment(t *testing.T, record string) Outcome {
	t.Helper()
	outs := f.save(t, record, "enrolment", testutil.Baseline, 0)
	require.Len(t, outs, 1)
	return outs[0]
}

func (f *fixture) audit(t *testing.T) []store.AuditEntry {
	t.Helper()
	entries, err := f.store.AuditLog(testutil.SourceID).Entries(context.Background())
	require.NoError(t, err)
	return entries
}

func (f *fixture) destRecords(t *testing.T) []string {
	t.Helper()
	ids, err := f.store.RecordIDs(context.Background(), testutil.DestID)
	require.NoError(t, err)
	return ids
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// with returns a copy of raw with key set to value.
func with(raw config.Raw, key string, value any) config.Raw {
	out := make(config.Raw, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out[key] = value
	return out
}
