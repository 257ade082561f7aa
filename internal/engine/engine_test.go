package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
	"github.com/roach88/recsync/internal/testutil"
)

var (
	baseline = testutil.Flat(testutil.Baseline)
	intake   = testutil.Flat(testutil.Intake)
)

func TestNew_RequiresCollaborators(t *testing.T) {
	s := testutil.OpenStore(t)
	cfg := testutil.NewStaticConfig()
	audit := s.AuditLog(testutil.SourceID)

	tests := []struct {
		name string
		deps Deps
		want string
	}{
		{"data", Deps{Files: s, Audit: audit, Config: cfg}, "data store"},
		{"files", Deps{Data: s, Audit: audit, Config: cfg}, "file store"},
		{"audit", Deps{Data: s, Files: s, Config: cfg}, "audit log"},
		{"config", Deps{Data: s, Files: s, Audit: audit}, "config source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	e, err := New(Deps{Data: s, Files: s, Audit: audit, Config: cfg})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestOnRecordSaved_CopiesAndBlocksNonEmpty(t *testing.T) {
	f := newFixture(t, testutil.Instruction("rid", "match-no-create",
		testutil.Pair("weight", "wt", false),
		testutil.Pair("height", "ht", true),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "rid", "5001")
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "height", "172")
	testutil.Set(t, f.store, testutil.DestID, "5001", intake, "ht", "165")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusCopied, out.Status)
	assert.Equal(t, "5001", out.DestRecord)
	assert.Equal(t, []string{"height=>ht"}, out.Blocked)
	assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "5001", intake, "wt"))
	assert.Equal(t, "165", testutil.Get(t, f.store, testutil.DestID, "5001", intake, "ht"))

	entries := f.audit(t)
	require.Len(t, entries, 1)
	assert.Equal(t, AuditTitle, entries[0].Title)
	assert.Equal(t, "101", entries[0].Record)
	assert.Equal(t, testutil.Baseline, entries[0].Event)
	assert.Equal(t,
		"Copy from: record=101, event=101, instrument=enrolment, instance=1\n"+
			"Copy to: project_id=30, record=5001\n"+
			"Copy to non-empty fields skipped: height=>ht",
		entries[0].Detail)
	assert.Empty(t, f.notifier.Messages())
}

func TestOnRecordSaved_OnlyIfEmptyWritesEmptyDestination(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("height", "ht", true),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "height", "172")
	testutil.Set(t, f.store, testutil.DestID, "101", intake, "wt", "70")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusCopied, out.Status)
	assert.Empty(t, out.Blocked)
	assert.Equal(t, "172", testutil.Get(t, f.store, testutil.DestID, "101", intake, "ht"))
}

func TestOnRecordSaved_MatchNoCreateSkipsMissingRecord(t *testing.T) {
	f := newFixture(t, testutil.Instruction("rid", "match-no-create",
		testutil.Pair("weight", "wt", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "rid", "5001")
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, ReasonNoRecord, out.Reason)
	require.NotNil(t, out.Resolution)
	assert.Equal(t, "5001", out.Resolution.Lookup)
	assert.Empty(t, f.destRecords(t))
	assert.Empty(t, f.audit(t))
}

func TestOnRecordSaved_MatchOrCreateCreatesRecord(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("weight", "wt", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusCopied, out.Status)
	require.NotNil(t, out.Resolution)
	assert.Equal(t, ResolveCreate, out.Resolution.Kind)
	assert.Equal(t, []string{"101"}, f.destRecords(t))
	assert.Equal(t, "101", testutil.Get(t, f.store, testutil.DestID, "101", intake, "subject_id"))
	assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "101", intake, "wt"))

	out = f.saveEnrolment(t, "101")
	assert.Equal(t, ResolveMatched, out.Resolution.Kind)
	assert.Equal(t, []string{"101"}, f.destRecords(t))
}

func TestOnRecordSaved_MatchOrCreateEmptyLookupFails(t *testing.T) {
	f := newFixture(t, testutil.Instruction("rid", "match-or-create",
		testutil.Pair("weight", "wt", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsFiringError(out.Err, ErrCodeLookup))
	var le *LookupError
	require.ErrorAs(t, out.Err, &le)
	assert.Equal(t, EmptyLookup, le.Code)
	assert.Equal(t, "rid", le.Field)
	assert.Empty(t, f.destRecords(t))

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, AuditTitleFailed, msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "EMPTY_LOOKUP")
}

func TestOnRecordSaved_RepeatingInstanceCorrespondence(t *testing.T) {
	raw := with(testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("med", "med_name", false),
	), config.KeyTriggerForms, []any{"medications"})
	f := newFixture(t, raw)
	testutil.Set(t, f.store, testutil.SourceID, "101",
		testutil.RepeatingForm(testutil.Baseline, "medications", 3), "med", "aspirin")

	outs := f.save(t, "101", "medications", testutil.Baseline, 3)

	require.Len(t, outs, 1)
	assert.Equal(t, StatusCopied, outs[0].Status)
	dest := testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, "aspirin", dest.Value(testutil.RepeatingForm(testutil.Intake, "meds", 3), "med_name"))
	assert.Equal(t, 3, dest.MaxInstance(ir.RepeatKey{Event: testutil.Intake, Form: "meds"}))
	assert.Len(t, dest.Repeats[ir.RepeatKey{Event: testutil.Intake, Form: "meds"}], 1)
}

func TestOnRecordSaved_FlatToRepeatingIsIdempotentWithOnlyIfEmpty(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("weight", "med_name", true),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
	meds := ir.RepeatKey{Event: testutil.Intake, Form: "meds"}

	first := f.saveEnrolment(t, "101")
	second := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusCopied, first.Status)
	assert.Equal(t, StatusCopied, second.Status)
	assert.Empty(t, second.Plan.Batch.Writes)
	dest := testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, 1, dest.MaxInstance(meds))
	assert.Equal(t, "70", dest.Value(testutil.RepeatingForm(testutil.Intake, "meds", 1), "med_name"))

	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "72")
	f.saveEnrolment(t, "101")
	dest = testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, 2, dest.MaxInstance(meds))
	assert.Equal(t, "72", dest.Value(testutil.RepeatingForm(testutil.Intake, "meds", 2), "med_name"))
}

func TestOnRecordSaved_FlatToRepeatingAppends(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("weight", "med_name", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	f.saveEnrolment(t, "101")
	f.saveEnrolment(t, "101")

	dest := testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, 2, dest.MaxInstance(ir.RepeatKey{Event: testutil.Intake, Form: "meds"}))
}

func TestOnRecordSaved_AutonumberWritesBackAndRematches(t *testing.T) {
	f := newFixture(t, testutil.Instruction("rid", "match-or-autonumber",
		testutil.Pair("weight", "wt", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
	testutil.Set(t, f.store, testutil.DestID, "7", intake, "wt", "55")

	out := f.saveEnrolment(t, "101")

	require.Equal(t, StatusCopied, out.Status)
	assert.Equal(t, ResolveReserved, out.Resolution.Kind)
	assert.Equal(t, "8", out.DestRecord)
	require.NotNil(t, out.Plan.WriteBack)
	assert.Equal(t, "8", testutil.Get(t, f.store, testutil.SourceID, "101", baseline, "rid"))
	assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "8", intake, "wt"))

	out = f.saveEnrolment(t, "101")

	assert.Equal(t, ResolveMatched, out.Resolution.Kind)
	assert.Equal(t, "8", out.DestRecord)
	assert.Nil(t, out.Plan.WriteBack)
	assert.Equal(t, []string{"7", "8"}, f.destRecords(t))
}

func TestOnRecordSaved_AutonumberUnknownLookupReserves(t *testing.T) {
	f := newFixture(t, testutil.Instruction("rid", "match-or-autonumber",
		testutil.Pair("weight", "wt", false),
	))
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "rid", "999")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, ResolveReserved, out.Resolution.Kind)
	assert.Equal(t, "1", out.DestRecord)
	assert.Nil(t, out.Plan.WriteBack)
	assert.Equal(t, "999", testutil.Get(t, f.store, testutil.SourceID, "101", baseline, "rid"), "entered lookup value is kept")
}

func TestOnRecordSaved_SecondaryKey(t *testing.T) {
	raw := testutil.Instruction("mrn", "lookup-secondary-key", testutil.Pair("weight", "wt", false))

	t.Run("single match", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "mrn", "M1")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
		testutil.Set(t, f.store, testutil.DestID, "A", intake, "mrn", "M1")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusCopied, out.Status)
		assert.Equal(t, "A", out.DestRecord)
		assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "A", intake, "wt"))
	})

	t.Run("no match", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "mrn", "M1")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusSkipped, out.Status)
		assert.Equal(t, ReasonNoRecord, out.Reason)
		assert.Empty(t, f.destRecords(t))
	})

	t.Run("ambiguous", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "mrn", "M1")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
		testutil.Set(t, f.store, testutil.DestID, "A", intake, "mrn", "M1")
		testutil.Set(t, f.store, testutil.DestID, "B", intake, "mrn", "M1")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusFailed, out.Status)
		assert.True(t, IsAmbiguousLookup(out.Err))
		assert.True(t, IsFiringError(out.Err, ErrCodeLookup))
		assert.Empty(t, testutil.Get(t, f.store, testutil.DestID, "A", intake, "wt"))
		assert.Empty(t, testutil.Get(t, f.store, testutil.DestID, "B", intake, "wt"))

		entries := f.audit(t)
		require.Len(t, entries, 1)
		assert.Equal(t, AuditTitleFailed, entries[0].Title)
		assert.Contains(t, entries[0].Detail, "matches records A,B")

		msgs := f.notifier.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, entries[0].Detail, msgs[0].Body)
	})
}

func TestOnRecordSaved_AccessGroups(t *testing.T) {
	t.Run("same as source", func(t *testing.T) {
		raw := with(testutil.Instruction("record_id", "match-or-create",
			testutil.Pair("weight", "wt", false),
		), config.KeyDAGOption, "include-same-as-source")
		f := newFixture(t, raw)
		testutil.SetGroup(t, f.store, testutil.SourceID, "101", "siteA")

		f.saveEnrolment(t, "101")

		dest := testutil.Record(t, f.store, testutil.DestID, "101")
		require.NotNil(t, dest)
		assert.True(t, dest.HasAccessGroup)
		assert.Equal(t, "siteA", dest.AccessGroup)
	})

	t.Run("ignore", func(t *testing.T) {
		f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
			testutil.Pair("weight", "wt", false),
		))
		testutil.SetGroup(t, f.store, testutil.SourceID, "101", "siteA")

		f.saveEnrolment(t, "101")

		dest := testutil.Record(t, f.store, testutil.DestID, "101")
		require.NotNil(t, dest)
		assert.False(t, dest.HasAccessGroup)
	})

	t.Run("mapping", func(t *testing.T) {
		raw := with(with(testutil.Instruction("record_id", "match-or-create",
			testutil.Pair("weight", "wt", false),
		), config.KeyDAGOption, "map-deprecated"), config.KeyDAGMap, []any{
			map[string]any{config.KeySourceGroup: "siteA", config.KeyDestGroup: "north"},
			map[string]any{config.KeySourceGroup: "siteA", config.KeyDestGroup: "south"},
		})
		f := newFixture(t, raw)
		testutil.SetGroup(t, f.store, testutil.SourceID, "101", "siteA")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusCopied, out.Status)
		assert.NotEmpty(t, out.Warnings)
		assert.Equal(t, "south", testutil.Record(t, f.store, testutil.DestID, "101").AccessGroup)
	})

	t.Run("explicit pair wins", func(t *testing.T) {
		raw := with(testutil.Instruction("record_id", "match-or-create",
			testutil.Pair("site", ir.AccessGroupField, false),
		), config.KeyDAGOption, "include-same-as-source")
		f := newFixture(t, raw)
		testutil.SetGroup(t, f.store, testutil.SourceID, "101", "siteA")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "site", "siteB")

		f.saveEnrolment(t, "101")

		assert.Equal(t, "siteB", testutil.Record(t, f.store, testutil.DestID, "101").AccessGroup)
	})

	t.Run("pair blocked by onlyIfEmpty", func(t *testing.T) {
		f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
			testutil.Pair("site", ir.AccessGroupField, true),
		))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "site", "siteB")
		testutil.SetGroup(t, f.store, testutil.DestID, "101", "siteA")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, []string{"site=>" + ir.AccessGroupField}, out.Blocked)
		assert.Equal(t, "siteA", testutil.Record(t, f.store, testutil.DestID, "101").AccessGroup)
	})
}

func TestOnRecordSaved_Files(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("photo", "photo", false),
	))
	ctx := context.Background()
	scan := ir.File{MimeType: "image/png", Name: "scan.png", Content: []byte("png-bytes")}
	testutil.AttachFile(t, f.store, testutil.SourceID, "101", "photo", baseline, scan)

	out := f.saveEnrolment(t, "101")

	require.Equal(t, StatusCopied, out.Status)
	require.Len(t, out.Plan.Files, 1)
	assert.Equal(t, ir.FileCopy, out.Plan.Files[0].Kind)
	docID := testutil.Get(t, f.store, testutil.DestID, "101", intake, "photo")
	require.NotEmpty(t, docID)
	copied, err := f.store.GetFile(ctx, testutil.DestID, docID)
	require.NoError(t, err)
	assert.Equal(t, scan.Content, copied.Content)
	assert.Equal(t, scan.Name, copied.Name)

	out = f.saveEnrolment(t, "101")
	assert.Empty(t, out.Plan.Files, "identical file must not be copied again")
	assert.Equal(t, docID, testutil.Get(t, f.store, testutil.DestID, "101", intake, "photo"))

	testutil.AttachFile(t, f.store, testutil.SourceID, "101", "photo", baseline,
		ir.File{MimeType: "image/png", Name: "scan.png", Content: []byte("other-bytes")})
	out = f.saveEnrolment(t, "101")
	require.Len(t, out.Plan.Files, 1)
	assert.NotEqual(t, docID, testutil.Get(t, f.store, testutil.DestID, "101", intake, "photo"))

	require.NoError(t, f.store.DeleteFileFromField(ctx, testutil.SourceID, "101", "photo", baseline))
	out = f.saveEnrolment(t, "101")
	require.Len(t, out.Plan.Files, 1)
	assert.Equal(t, ir.FileDelete, out.Plan.Files[0].Kind)
	assert.Empty(t, testutil.Get(t, f.store, testutil.DestID, "101", intake, "photo"))
}

func TestOnRecordSaved_FlatFileToRepeatingIsIdempotent(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("photo", "scan", true),
	))
	meds := ir.RepeatKey{Event: testutil.Intake, Form: "meds"}
	testutil.AttachFile(t, f.store, testutil.SourceID, "101", "photo", baseline,
		ir.File{MimeType: "image/png", Name: "scan.png", Content: []byte("png-bytes")})

	for i := 0; i < 3; i++ {
		out := f.saveEnrolment(t, "101")
		require.Equal(t, StatusCopied, out.Status)
		if i > 0 {
			assert.Empty(t, out.Plan.Files, "save %d copied an identical file", i+1)
		}
	}
	dest := testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, 1, dest.MaxInstance(meds))

	testutil.AttachFile(t, f.store, testutil.SourceID, "101", "photo", baseline,
		ir.File{MimeType: "image/png", Name: "scan.png", Content: []byte("new-bytes")})
	out := f.saveEnrolment(t, "101")
	require.Len(t, out.Plan.Files, 1)
	dest = testutil.Record(t, f.store, testutil.DestID, "101")
	assert.Equal(t, 2, dest.MaxInstance(meds))
}

func TestOnRecordSaved_InstanceOverride(t *testing.T) {
	raw := testutil.Instruction("record_id", "match-or-create",
		testutil.Pair("inst", ir.InstanceMarkerField, false),
		testutil.Pair("weight", "med_name", false),
	)
	meds := ir.RepeatKey{Event: testutil.Intake, Form: "meds"}

	t.Run("new appends once per firing", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "inst", "new")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

		f.saveEnrolment(t, "101")
		f.saveEnrolment(t, "101")

		dest := testutil.Record(t, f.store, testutil.DestID, "101")
		assert.Equal(t, 2, dest.MaxInstance(meds))
	})

	t.Run("fixed instance", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "inst", "5")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "72")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusCopied, out.Status)
		dest := testutil.Record(t, f.store, testutil.DestID, "101")
		assert.Equal(t, "72", dest.Value(testutil.RepeatingForm(testutil.Intake, "meds", 5), "med_name"))
		assert.Len(t, dest.Repeats[meds], 1)
	})

	t.Run("invalid value is ignored", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "inst", "later")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusCopied, out.Status)
		dest := testutil.Record(t, f.store, testutil.DestID, "101")
		assert.Equal(t, 1, dest.MaxInstance(meds))
	})
}

func TestOnRecordSaved_DestinationEvent(t *testing.T) {
	base := testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "visit_weight", false))

	t.Run("literal", func(t *testing.T) {
		f := newFixture(t, with(base, config.KeyDestinationEvent, "followup_arm_1"))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

		out := f.saveEnrolment(t, "101")

		require.Equal(t, StatusCopied, out.Status)
		assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "101",
			testutil.RepeatingEvent(testutil.Followup, 1), "visit_weight"))
	})

	t.Run("field lookup", func(t *testing.T) {
		f := newFixture(t, with(base, config.KeyDestinationEvent, "target_event"))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "target_event", "followup_arm_1")

		out := f.saveEnrolment(t, "101")

		require.Equal(t, StatusCopied, out.Status)
		assert.Equal(t, "70", testutil.Get(t, f.store, testutil.DestID, "101",
			testutil.RepeatingEvent(testutil.Followup, 1), "visit_weight"))
	})

	t.Run("field lookup names unknown event", func(t *testing.T) {
		f := newFixture(t, with(base, config.KeyDestinationEvent, "target_event"))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "target_event", "closeout_arm_9")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusFailed, out.Status)
		assert.True(t, IsFiringError(out.Err, ErrCodeUnknownEvent))
		assert.Empty(t, f.destRecords(t))
		assert.Len(t, f.notifier.Messages(), 1)
	})
}

func TestOnRecordSaved_Gates(t *testing.T) {
	raw := testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "wt", false))

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, with(raw, config.KeyEnabled, false))
		out := f.saveEnrolment(t, "101")
		assert.Equal(t, StatusSkipped, out.Status)
		assert.Equal(t, ReasonDisabled, out.Reason)
		assert.Empty(t, f.audit(t))
	})

	t.Run("other form saved", func(t *testing.T) {
		f := newFixture(t, raw)
		outs := f.save(t, "101", "medications", testutil.Baseline, 1)
		require.Len(t, outs, 1)
		assert.Equal(t, StatusSkipped, outs[0].Status)
		assert.Equal(t, ReasonTrigger, outs[0].Reason)
		assert.Empty(t, f.destRecords(t))
		assert.Empty(t, f.audit(t))
	})

	t.Run("condition", func(t *testing.T) {
		f := newFixture(t, with(raw, config.KeyTriggerCondition, `record.consent == "1"`))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

		out := f.saveEnrolment(t, "101")
		assert.Equal(t, StatusSkipped, out.Status)
		assert.Equal(t, ReasonCondition, out.Reason)
		assert.Empty(t, f.destRecords(t))

		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "consent", "1")
		out = f.saveEnrolment(t, "101")
		assert.Equal(t, StatusCopied, out.Status)
	})

	t.Run("condition error", func(t *testing.T) {
		f := newFixture(t, with(raw, config.KeyTriggerCondition, `int(record.weight) > 50`))
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "heavy")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusFailed, out.Status)
		assert.True(t, IsFiringError(out.Err, ErrCodeCondition))
		assert.Len(t, f.notifier.Messages(), 1)
	})
}

func TestOnRecordSaved_InvalidInstruction(t *testing.T) {
	raw := testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "no_such_field", false))

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, raw)
		testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

		out := f.saveEnrolment(t, "101")

		assert.Equal(t, StatusConfigError, out.Status)
		require.Len(t, out.Errors, 1)
		assert.Contains(t, out.Errors[0], config.ErrUnknownDestField)
		assert.Empty(t, f.destRecords(t))
		assert.Empty(t, f.notifier.Messages())

		entries := f.audit(t)
		require.Len(t, entries, 1)
		assert.Equal(t, AuditTitleConfig, entries[0].Title)
		assert.Contains(t, entries[0].Detail, "Instruction #1 not fired")
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, with(raw, config.KeyEnabled, false))
		out := f.saveEnrolment(t, "101")
		assert.Equal(t, StatusSkipped, out.Status)
		assert.Empty(t, f.audit(t))
	})

	t.Run("malformed enabled value", func(t *testing.T) {
		f := newFixture(t, with(raw, config.KeyEnabled, "perhaps"))
		out := f.saveEnrolment(t, "101")
		assert.Equal(t, StatusConfigError, out.Status)
	})
}

func TestOnRecordSaved_InstructionsRunInOrder(t *testing.T) {
	f := newFixture(t,
		testutil.Instruction("rid", "match-or-autonumber", testutil.Pair("weight", "wt", false)),
		testutil.Instruction("rid", "match-no-create", testutil.Pair("height", "ht", false)),
	)
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "height", "172")

	outs := f.save(t, "101", "enrolment", testutil.Baseline, 0)

	require.Len(t, outs, 2)
	assert.Equal(t, 1, outs[0].Sequence)
	assert.Equal(t, 2, outs[1].Sequence)
	assert.Equal(t, StatusCopied, outs[0].Status)
	assert.Equal(t, StatusCopied, outs[1].Status)
	assert.Equal(t, outs[0].DestRecord, outs[1].DestRecord)
	assert.Equal(t, "172", testutil.Get(t, f.store, testutil.DestID, outs[0].DestRecord, intake, "ht"))
	assert.Len(t, f.audit(t), 2)
}

func TestOnRecordSaved_ReadsConfigurationEverySave(t *testing.T) {
	f := newFixture(t)
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	assert.Empty(t, f.save(t, "101", "enrolment", testutil.Baseline, 0))

	f.config.Set(testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "wt", false)))
	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusCopied, out.Status)
	assert.Equal(t, 2, f.config.Calls())
}

func TestOnRecordSaved_UnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.OnRecordSaved(context.Background(), ir.SaveEvent{ProjectID: "99", Record: "1", Form: "enrolment"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrProjectNotFound))
}

func TestOnRecordSaved_CancelledContext(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "wt", false)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.OnRecordSaved(ctx, ir.SaveEvent{ProjectID: testutil.SourceID, Record: "101", Form: "enrolment"})

	require.Error(t, err)
	assert.Empty(t, f.destRecords(t))
}

// failingWrites rejects destination writes.
type failingWrites struct {
	DataStore
	err error
}

func (f failingWrites) Write(context.Context, string, ir.Snapshot) ([]string, error) {
	return nil, f.err
}

func TestOnRecordSaved_WriteFailure(t *testing.T) {
	f := newFixture(t, testutil.Instruction("record_id", "match-or-create", testutil.Pair("weight", "wt", false)))
	f.engine = f.newEngine(t, failingWrites{DataStore: f.store, err: errors.New("disk full")})
	testutil.Set(t, f.store, testutil.SourceID, "101", baseline, "weight", "70")

	out := f.saveEnrolment(t, "101")

	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsFiringError(out.Err, ErrCodeWrite))
	assert.Contains(t, out.Detail, "disk full")
	assert.Contains(t, out.Detail, "Copy to: project_id=30, record=101")

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, AuditTitleFailed, msgs[0].Subject)
	entries := f.audit(t)
	require.Len(t, entries, 1)
	assert.Equal(t, AuditTitleFailed, entries[0].Title)
}
