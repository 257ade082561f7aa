package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testProject() *Project {
	return &Project{
		ID:         "20",
		PrimaryKey: "record_id",
		Fields: map[string]FieldMeta{
			"record_id": {Name: "record_id", Form: "enrolment", Type: FieldTypeText},
			"wt":        {Name: "wt", Form: "enrolment", Type: FieldTypeText},
			"med":       {Name: "med", Form: "medications", Type: FieldTypeText},
			"scan":      {Name: "scan", Form: "imaging", Type: FieldTypeFile},
		},
		Events: []EventMeta{
			{ID: "101", UniqueName: "baseline_arm_1", Forms: []string{"enrolment", "medications"}, RepeatingForms: []string{"medications"}},
			{ID: "102", UniqueName: "visit_arm_1", Forms: []string{"imaging"}, Repeating: true},
		},
	}
}

func TestProject_Shape(t *testing.T) {
	p := testProject()

	tests := []struct {
		field, event string
		shape        Shape
		form         string
	}{
		{"wt", "101", ShapeFlat, ""},
		{"med", "101", ShapeRepeatingForm, "medications"},
		{"scan", "102", ShapeRepeatingEvent, ""},
		{"wt", "999", ShapeFlat, ""},
		{"missing", "101", ShapeFlat, ""},
	}
	for _, tt := range tests {
		t.Run(tt.field+"@"+tt.event, func(t *testing.T) {
			shape, form := p.Shape(tt.field, tt.event)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.form, form)
		})
	}
}

func TestProject_Lookups(t *testing.T) {
	p := testProject()

	assert.Equal(t, "101", p.FirstEventID())
	id, ok := p.EventIDByUniqueName("visit_arm_1")
	assert.True(t, ok)
	assert.Equal(t, "102", id)
	_, ok = p.EventIDByUniqueName("nope_arm_1")
	assert.False(t, ok)

	assert.True(t, p.HasField("wt"))
	assert.False(t, p.HasField(AccessGroupField))
	assert.True(t, p.HasForm("imaging"))
	assert.True(t, p.IsFileField("scan"))
	assert.False(t, p.IsFileField("wt"))
	assert.Equal(t, "", (&Project{}).FirstEventID())
}

func TestRecordData_SetValueMaxInstance(t *testing.T) {
	rec := NewRecordData()
	flat := Slot{Event: "101"}
	rec.Set(flat, "wt", "70")

	med := RepeatKey{Event: "101", Form: "medications"}
	rec.Set(Slot{Event: "101", Shape: ShapeRepeatingForm, RepeatGroup: "medications", Instance: 2}, "med", "aspirin")
	rec.Set(Slot{Event: "101", Shape: ShapeRepeatingForm, RepeatGroup: "medications", Instance: 10}, "med", "ibuprofen")

	assert.Equal(t, "70", rec.Value(flat, "wt"))
	assert.Equal(t, "ibuprofen", rec.Value(Slot{Event: "101", Shape: ShapeRepeatingForm, RepeatGroup: "medications", Instance: 10}, "med"))
	assert.Equal(t, "", rec.Value(Slot{Event: "101", Shape: ShapeRepeatingForm, RepeatGroup: "medications", Instance: 3}, "med"))
	assert.Equal(t, 10, rec.MaxInstance(med), "numeric maximum, not lexical")
	assert.Equal(t, 0, rec.MaxInstance(RepeatKey{Event: "102"}))

	var missing *RecordData
	assert.Equal(t, "", missing.Value(flat, "wt"))
	assert.Equal(t, 0, missing.MaxInstance(med))
}

func TestSlot_String(t *testing.T) {
	assert.Equal(t, "101", Slot{Event: "101"}.String())
	assert.Equal(t, "102#3", Slot{Event: "102", Shape: ShapeRepeatingEvent, Instance: 3}.String())
	assert.Equal(t, "101/medications#2", Slot{Event: "101", Shape: ShapeRepeatingForm, RepeatGroup: "medications", Instance: 2}.String())
}

func TestSaveEvent_FirstInstance(t *testing.T) {
	assert.Equal(t, 1, SaveEvent{}.FirstInstance())
	assert.Equal(t, 4, SaveEvent{Instance: 4}.FirstInstance())
}
