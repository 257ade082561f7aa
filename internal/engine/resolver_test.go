package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/testutil"
)

// fakeFinder answers lookups from a field=value index and counts calls.
type fakeFinder struct {
	index    map[string][]string
	next     int
	finds    int
	reserves int
	err      error
}

func (f *fakeFinder) FindRecords(_ context.Context, _, field, value string) ([]string, error) {
	f.finds++
	if f.err != nil {
		return nil, f.err
	}
	return f.index[field+"="+value], nil
}

func (f *fakeFinder) ReserveNewID(context.Context, string) (string, error) {
	f.reserves++
	if f.err != nil {
		return "", f.err
	}
	f.next++
	return "R" + string(rune('0'+f.next)), nil
}

func resolveInput(mode ir.RecordMatchMode, field, value string) ResolveInput {
	src := testutil.SourceProject()
	data := ir.NewRecordData()
	data.Set(testutil.Flat(testutil.Baseline), field, value)
	return ResolveInput{
		Instruction: &ir.Instruction{RecordIDField: field, RecordMatch: mode},
		Source:      src,
		Dest:        testutil.DestProject(),
		Event:       ir.SaveEvent{ProjectID: src.ID, Record: "101", Form: "enrolment", Event: testutil.Baseline},
		SourceData:  data,
	}
}

func TestLookupValue_PrimaryKeyUsesSavedRecord(t *testing.T) {
	in := resolveInput(ir.MatchOrCreate, "record_id", "")
	assert.Equal(t, "101", LookupValue(in))

	in = resolveInput(ir.MatchOrCreate, "rid", "5001")
	assert.Equal(t, "5001", LookupValue(in))
}

func TestResolveRecord(t *testing.T) {
	index := map[string][]string{
		"subject_id=5001": {"5001"},
		"mrn=M1":          {"A"},
		"mrn=M2":          {"A", "B"},
	}

	tests := []struct {
		name     string
		mode     ir.RecordMatchMode
		field    string
		value    string
		kind     ResolveKind
		record   string
		code     LookupErrorCode
		finds    int
		reserves int
	}{
		{"no create matched", ir.MatchNoCreate, "rid", "5001", ResolveMatched, "5001", "", 1, 0},
		{"no create missing", ir.MatchNoCreate, "rid", "5002", ResolveSkip, "", "", 1, 0},
		{"no create empty", ir.MatchNoCreate, "rid", "", ResolveSkip, "", "", 0, 0},
		{"create matched", ir.MatchOrCreate, "rid", "5001", ResolveMatched, "5001", "", 1, 0},
		{"create new", ir.MatchOrCreate, "rid", "5002", ResolveCreate, "5002", "", 1, 0},
		{"create empty", ir.MatchOrCreate, "rid", "", ResolveSkip, "", EmptyLookup, 0, 0},
		{"autonumber matched", ir.MatchOrAutonumber, "rid", "5001", ResolveMatched, "5001", "", 1, 0},
		{"autonumber unknown", ir.MatchOrAutonumber, "rid", "5002", ResolveReserved, "R1", "", 1, 1},
		{"autonumber empty", ir.MatchOrAutonumber, "rid", "", ResolveReserved, "R1", "", 0, 1},
		{"secondary single", ir.LookupBySecondaryKey, "mrn", "M1", ResolveMatched, "A", "", 1, 0},
		{"secondary none", ir.LookupBySecondaryKey, "mrn", "M9", ResolveSkip, "", "", 1, 0},
		{"secondary empty", ir.LookupBySecondaryKey, "mrn", "", ResolveSkip, "", "", 0, 0},
		{"secondary ambiguous", ir.LookupBySecondaryKey, "mrn", "M2", ResolveSkip, "", AmbiguousLookup, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &fakeFinder{index: index}
			res, err := ResolveRecord(context.Background(), finder, resolveInput(tt.mode, tt.field, tt.value))

			if tt.code != "" {
				var le *LookupError
				require.ErrorAs(t, err, &le)
				assert.Equal(t, tt.code, le.Code)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.kind, res.Kind)
				assert.Equal(t, tt.record, res.RecordID)
			}
			assert.Equal(t, tt.value, res.Lookup)
			assert.Equal(t, tt.finds, finder.finds, "destination queries")
			assert.Equal(t, tt.reserves, finder.reserves, "reservations")
		})
	}
}

func TestResolveRecord_AmbiguousListsMatches(t *testing.T) {
	finder := &fakeFinder{index: map[string][]string{"mrn=M2": {"A", "B"}}}
	_, err := ResolveRecord(context.Background(), finder, resolveInput(ir.LookupBySecondaryKey, "mrn", "M2"))

	require.True(t, IsAmbiguousLookup(err))
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, []string{"A", "B"}, le.Matches)
	assert.Equal(t, "mrn", le.Field)
}

func TestResolveRecord_FinderError(t *testing.T) {
	boom := errors.New("database is locked")
	for _, mode := range []ir.RecordMatchMode{ir.MatchNoCreate, ir.MatchOrCreate, ir.MatchOrAutonumber, ir.LookupBySecondaryKey} {
		t.Run(mode.String(), func(t *testing.T) {
			finder := &fakeFinder{err: boom}
			_, err := ResolveRecord(context.Background(), finder, resolveInput(mode, "mrn", "M1"))
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.False(t, IsLookupError(err))
		})
	}
}

func TestResolution_New(t *testing.T) {
	assert.False(t, Resolution{Kind: ResolveSkip}.New())
	assert.False(t, Resolution{Kind: ResolveMatched}.New())
	assert.True(t, Resolution{Kind: ResolveCreate}.New())
	assert.True(t, Resolution{Kind: ResolveReserved}.New())
	assert.Equal(t, "reserved", ResolveReserved.String())
}
