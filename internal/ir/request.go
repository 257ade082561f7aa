package ir

// ReadRequest selects record data from a project.
type ReadRequest struct {
	Project string
	Records []string
	// Fields restricts the returned fields; empty means all fields.
	Fields []string
}

// EvalRequest asks for a trigger condition to be evaluated against the
// record that was saved.
type EvalRequest struct {
	Expr     string
	Project  *Project
	Record   string
	Event    string
	Instance int
}

// SlotFor returns the slot of field on event at instance, following the
// project's repeat configuration.
func (p *Project) SlotFor(field, event string, instance int) Slot {
	shape, form := p.Shape(field, event)
	slot := Slot{Event: event, Shape: shape, RepeatGroup: form}
	if shape.Repeating() {
		if instance < 1 {
			instance = 1
		}
		slot.Instance = instance
	}
	return slot
}
