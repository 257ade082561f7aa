package ir

import (
	"slices"
	"strconv"
)

// Field types with special copy semantics.
const (
	FieldTypeText = "text"
	FieldTypeFile = "file"
)

// Reserved destination field names. They never exist in a project schema.
const (
	InstanceMarkerField = "redcap_repeat_instance"
	AccessGroupField    = "redcap_data_access_group"
)

// NewInstance is the instance override value that always appends a new
// instance.
const NewInstance = "new"

// FieldMeta describes one field of a project schema.
type FieldMeta struct {
	Name string `json:"name" yaml:"name"`
	Form string `json:"form" yaml:"form"`
	Type string `json:"type" yaml:"type"`
}

// EventMeta describes one event of a project schema.
//
// Repeating marks the whole event as repeating; RepeatingForms lists forms
// that repeat independently within a non-repeating event.
type EventMeta struct {
	ID             string   `json:"id" yaml:"id"`
	UniqueName     string   `json:"unique_name" yaml:"unique_name"`
	Forms          []string `json:"forms" yaml:"forms"`
	Repeating      bool     `json:"repeating,omitempty" yaml:"repeating,omitempty"`
	RepeatingForms []string `json:"repeating_forms,omitempty" yaml:"repeating_forms,omitempty"`
}

// Project is the schema of one data store (a "project").
type Project struct {
	ID           string               `json:"id" yaml:"id"`
	PrimaryKey   string               `json:"primary_key" yaml:"primary_key"`
	SecondaryKey string               `json:"secondary_key,omitempty" yaml:"secondary_key,omitempty"`
	Autonumber   bool                 `json:"autonumber,omitempty" yaml:"autonumber,omitempty"`
	Fields       map[string]FieldMeta `json:"fields" yaml:"fields"`
	Events       []EventMeta          `json:"events" yaml:"events"`
}

// HasField reports whether name is a field of the project.
func (p *Project) HasField(name string) bool {
	_, ok := p.Fields[name]
	return ok
}

// HasForm reports whether any field belongs to form.
func (p *Project) HasForm(form string) bool {
	for _, f := range p.Fields {
		if f.Form == form {
			return true
		}
	}
	return false
}

// IsFileField reports whether name is a file-attachment field.
func (p *Project) IsFileField(name string) bool {
	f, ok := p.Fields[name]
	return ok && f.Type == FieldTypeFile
}

// FirstEventID returns the id of the first event, or "" for a project
// without events.
func (p *Project) FirstEventID() string {
	if len(p.Events) == 0 {
		return ""
	}
	return p.Events[0].ID
}

// EventIDByUniqueName resolves a unique event name to an event id.
func (p *Project) EventIDByUniqueName(name string) (string, bool) {
	for _, e := range p.Events {
		if e.UniqueName == name {
			return e.ID, true
		}
	}
	return "", false
}

// Event returns the event with the given id.
func (p *Project) Event(id string) (EventMeta, bool) {
	for _, e := range p.Events {
		if e.ID == id {
			return e, true
		}
	}
	return EventMeta{}, false
}

// Shape classifies where field is stored on event.
// Returns the shape and, for repeating forms, the form name.
func (p *Project) Shape(field, event string) (Shape, string) {
	ev, ok := p.Event(event)
	if !ok {
		return ShapeFlat, ""
	}
	if ev.Repeating {
		return ShapeRepeatingEvent, ""
	}
	meta, ok := p.Fields[field]
	if !ok {
		return ShapeFlat, ""
	}
	if slices.Contains(ev.RepeatingForms, meta.Form) {
		return ShapeRepeatingForm, meta.Form
	}
	return ShapeFlat, ""
}

// Shape is the storage shape of a field on an event.
type Shape int

const (
	ShapeFlat Shape = iota
	ShapeRepeatingEvent
	ShapeRepeatingForm
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeRepeatingEvent:
		return "repeating-event"
	case ShapeRepeatingForm:
		return "repeating-form"
	default:
		return "unknown"
	}
}

// Repeating reports whether the shape has numbered instances.
func (s Shape) Repeating() bool {
	return s != ShapeFlat
}

// Slot addresses one value position inside a record.
type Slot struct {
	Event       string `json:"event"`
	Shape       Shape  `json:"shape"`
	RepeatGroup string `json:"repeat_group,omitempty"` // form name for ShapeRepeatingForm
	Instance    int    `json:"instance,omitempty"`     // 0 for ShapeFlat
}

// RepeatKey returns the key of the slot's repeat group.
func (s Slot) RepeatKey() RepeatKey {
	return RepeatKey{Event: s.Event, Form: s.RepeatGroup}
}

// String renders the slot for log details.
func (s Slot) String() string {
	if !s.Shape.Repeating() {
		return s.Event
	}
	if s.RepeatGroup != "" {
		return s.Event + "/" + s.RepeatGroup + "#" + strconv.Itoa(s.Instance)
	}
	return s.Event + "#" + strconv.Itoa(s.Instance)
}

// Fields maps field names to values.
type Fields map[string]string

// RepeatKey identifies a repeat group: a repeating event (Form empty) or a
// repeating form on an event.
type RepeatKey struct {
	Event string
	Form  string
}

// RecordData holds the values of one record.
type RecordData struct {
	// Events holds flat values keyed by event id.
	Events map[string]Fields
	// Repeats holds repeating values keyed by repeat group then instance.
	Repeats map[RepeatKey]map[int]Fields
	// AccessGroup is the record's access group; meaningful only when
	// HasAccessGroup is set.
	AccessGroup    string
	HasAccessGroup bool
}

// NewRecordData returns an empty record.
func NewRecordData() *RecordData {
	return &RecordData{
		Events:  make(map[string]Fields),
		Repeats: make(map[RepeatKey]map[int]Fields),
	}
}

// Value returns the value of field at slot, "" when absent.
func (r *RecordData) Value(slot Slot, field string) string {
	if r == nil {
		return ""
	}
	if !slot.Shape.Repeating() {
		return r.Events[slot.Event][field]
	}
	return r.Repeats[slot.RepeatKey()][slot.Instance][field]
}

// Set stores value for field at slot.
func (r *RecordData) Set(slot Slot, field, value string) {
	if !slot.Shape.Repeating() {
		if r.Events[slot.Event] == nil {
			r.Events[slot.Event] = make(Fields)
		}
		r.Events[slot.Event][field] = value
		return
	}
	key := slot.RepeatKey()
	if r.Repeats[key] == nil {
		r.Repeats[key] = make(map[int]Fields)
	}
	if r.Repeats[key][slot.Instance] == nil {
		r.Repeats[key][slot.Instance] = make(Fields)
	}
	r.Repeats[key][slot.Instance][field] = value
}

// MaxInstance returns the numerically largest instance of a repeat group,
// 0 when the group has no instances.
func (r *RecordData) MaxInstance(key RepeatKey) int {
	if r == nil {
		return 0
	}
	top := 0
	for n := range r.Repeats[key] {
		if n > top {
			top = n
		}
	}
	return top
}

// Snapshot holds record data keyed by record id.
type Snapshot map[string]*RecordData

// Record returns the data of id and whether the record exists.
func (s Snapshot) Record(id string) (*RecordData, bool) {
	r, ok := s[id]
	return r, ok
}

// SaveEvent describes a saved form on a source record.
type SaveEvent struct {
	ProjectID string `json:"project_id"`
	Record    string `json:"record"`
	Form      string `json:"form"`
	Event     string `json:"event"`
	Group     string `json:"group,omitempty"`
	Instance  int    `json:"instance"`
}

// FirstInstance returns the saved instance, treating 0 as 1.
func (e SaveEvent) FirstInstance() int {
	if e.Instance < 1 {
		return 1
	}
	return e.Instance
}

// File is an attachment as stored in a project.
type File struct {
	DocID    string
	MimeType string
	Name     string
	Content  []byte
}
