package testutil

import "github.com/roach88/recsync/internal/ir"

// Project ids of the fixture schemas.
const (
	SourceID = "20"
	DestID   = "30"
)

// Source event ids.
const (
	Baseline = "101" // baseline_arm_1: enrolment, medications (repeating form)
	Visit    = "102" // visit_arm_1: repeating event with the visit form
)

// Destination event ids.
const (
	Intake   = "201" // intake_arm_1: intake, meds (repeating form)
	Followup = "202" // followup_arm_1: repeating event with the followup form
)

// SourceProject returns the source fixture schema.
func SourceProject() *ir.Project {
	return &ir.Project{
		ID:         SourceID,
		PrimaryKey: "record_id",
		Fields: fields(
			field("record_id", "enrolment", ir.FieldTypeText),
			field("rid", "enrolment", ir.FieldTypeText),
			field("mrn", "enrolment", ir.FieldTypeText),
			field("weight", "enrolment", ir.FieldTypeText),
			field("height", "enrolment", ir.FieldTypeText),
			field("consent", "enrolment", ir.FieldTypeText),
			field("site", "enrolment", ir.FieldTypeText),
			field("target_event", "enrolment", ir.FieldTypeText),
			field("inst", "enrolment", ir.FieldTypeText),
			field("photo", "enrolment", ir.FieldTypeFile),
			field("med", "medications", ir.FieldTypeText),
			field("visit_wt", "visit", ir.FieldTypeText),
		),
		Events: []ir.EventMeta{
			{ID: Baseline, UniqueName: "baseline_arm_1", Forms: []string{"enrolment", "medications"}, RepeatingForms: []string{"medications"}},
			{ID: Visit, UniqueName: "visit_arm_1", Forms: []string{"visit"}, Repeating: true},
		},
	}
}

// DestProject returns the destination fixture schema. It is autonumbered
// and has mrn as secondary key.
func DestProject() *ir.Project {
	return &ir.Project{
		ID:           DestID,
		PrimaryKey:   "subject_id",
		SecondaryKey: "mrn",
		Autonumber:   true,
		Fields: fields(
			field("subject_id", "intake", ir.FieldTypeText),
			field("mrn", "intake", ir.FieldTypeText),
			field("wt", "intake", ir.FieldTypeText),
			field("ht", "intake", ir.FieldTypeText),
			field("photo", "intake", ir.FieldTypeFile),
			field("med_name", "meds", ir.FieldTypeText),
			field("scan", "meds", ir.FieldTypeFile),
			field("visit_weight", "followup", ir.FieldTypeText),
		),
		Events: []ir.EventMeta{
			{ID: Intake, UniqueName: "intake_arm_1", Forms: []string{"intake", "meds"}, RepeatingForms: []string{"meds"}},
			{ID: Followup, UniqueName: "followup_arm_1", Forms: []string{"followup"}, Repeating: true},
		},
	}
}

// Flat returns the flat slot of event.
func Flat(event string) ir.Slot {
	return ir.Slot{Event: event}
}

// RepeatingForm returns instance n of form on event.
func RepeatingForm(event, form string, n int) ir.Slot {
	return ir.Slot{Event: event, Shape: ir.ShapeRepeatingForm, RepeatGroup: form, Instance: n}
}

// RepeatingEvent returns instance n of a repeating event.
func RepeatingEvent(event string, n int) ir.Slot {
	return ir.Slot{Event: event, Shape: ir.ShapeRepeatingEvent, Instance: n}
}

func field(name, form, typ string) ir.FieldMeta {
	return ir.FieldMeta{Name: name, Form: form, Type: typ}
}

func fields(fs ...ir.FieldMeta) map[string]ir.FieldMeta {
	out := make(map[string]ir.FieldMeta, len(fs))
	for _, f := range fs {
		out[f.Name] = f
	}
	return out
}
