package engine

import (
	"strconv"
	"strings"

	"github.com/roach88/recsync/internal/ir"
)

// OverrideKind says how the destination instance is forced.
type OverrideKind int

const (
	OverrideNone OverrideKind = iota
	// OverrideNew always appends a new instance.
	OverrideNew
	// OverrideInstance writes to a fixed instance.
	OverrideInstance
)

// Override is the destination instance forced by the instance marker pair.
type Override struct {
	Kind     OverrideKind
	Instance int
}

// ParseOverride reads the instance marker value. "new" appends, a positive
// integer forces that instance and "" means no override. Any other value
// is rejected (ok is false) and also means no override.
func ParseOverride(value string) (o Override, ok bool) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return Override{}, true
	case strings.EqualFold(value, ir.NewInstance):
		return Override{Kind: OverrideNew}, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return Override{}, false
	}
	return Override{Kind: OverrideInstance, Instance: n}, true
}

// Placement is where one destination field is written.
type Placement struct {
	Slot ir.Slot
	// Current is the destination value at Slot, "" when the slot is empty
	// or the instance does not exist yet.
	Current string
	// Skip means the value is already in sync and no new instance is made.
	Skip bool
}

// Locator places destination fields for one firing. Fields of the same
// repeat group that append a new instance share that instance.
type Locator struct {
	dest      *ir.Project
	event     string
	data      *ir.RecordData
	instance  int
	override  Override
	appending map[ir.RepeatKey]int
}

// NewLocator creates the locator for a firing writing to event of dest.
// data is the destination record (nil for a new record) and instance the
// saved source instance.
func NewLocator(dest *ir.Project, event string, data *ir.RecordData, instance int, override Override) *Locator {
	if instance < 1 {
		instance = 1
	}
	return &Locator{
		dest:      dest,
		event:     event,
		data:      data,
		instance:  instance,
		override:  override,
		appending: make(map[ir.RepeatKey]int),
	}
}

// LocateRequest describes one field to place.
type LocateRequest struct {
	Field       string
	SourceShape ir.Shape
	Candidate   string
	OnlyIfEmpty bool
	// Same compares Candidate with a destination value. Nil compares the
	// strings; file fields compare the attachments they reference.
	Same func(current string) bool
}

func (r LocateRequest) same(current string) bool {
	if r.Same != nil {
		return r.Same(current)
	}
	return current == r.Candidate
}

// Locate places a destination field:
//   - flat destination: the event slot;
//   - override: the forced instance, or one new instance per group for "new";
//   - repeating source: the saved source instance;
//   - flat source: a new instance after the numerically highest one, unless
//     OnlyIfEmpty is set and the highest instance already holds the same
//     value as Candidate.
func (l *Locator) Locate(req LocateRequest) Placement {
	shape, form := l.dest.Shape(req.Field, l.event)
	if !shape.Repeating() {
		slot := ir.Slot{Event: l.event}
		return Placement{Slot: slot, Current: l.data.Value(slot, req.Field)}
	}

	slot := ir.Slot{Event: l.event, Shape: shape, RepeatGroup: form}
	key := slot.RepeatKey()

	switch {
	case l.override.Kind == OverrideInstance:
		slot.Instance = l.override.Instance
	case l.override.Kind == OverrideNew:
		slot.Instance = l.appendTo(key)
	case req.SourceShape.Repeating():
		slot.Instance = l.instance
	default:
		if top := l.data.MaxInstance(key); top > 0 && req.OnlyIfEmpty {
			last := slot
			last.Instance = top
			if current := l.data.Value(last, req.Field); req.same(current) {
				return Placement{Slot: last, Current: current, Skip: true}
			}
		}
		slot.Instance = l.appendTo(key)
	}
	return Placement{Slot: slot, Current: l.data.Value(slot, req.Field)}
}

func (l *Locator) appendTo(key ir.RepeatKey) int {
	if n, ok := l.appending[key]; ok {
		return n
	}
	n := l.data.MaxInstance(key) + 1
	l.appending[key] = n
	return n
}
