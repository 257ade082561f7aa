package ir

import "fmt"

// RecordMatchMode selects how the destination record is found or created.
// Numeric values match the codes used in stored configuration.
type RecordMatchMode int

const (
	MatchNoCreate RecordMatchMode = iota
	MatchOrCreate
	MatchOrAutonumber
	LookupBySecondaryKey
)

// RecordMatchModeNames maps configuration names to modes.
var RecordMatchModeNames = map[string]RecordMatchMode{
	"match-no-create":      MatchNoCreate,
	"match-or-create":      MatchOrCreate,
	"match-or-autonumber":  MatchOrAutonumber,
	"lookup-secondary-key": LookupBySecondaryKey,
}

// String returns the configuration name of the mode.
func (m RecordMatchMode) String() string {
	for name, v := range RecordMatchModeNames {
		if v == m {
			return name
		}
	}
	return fmt.Sprintf("record-match(%d)", int(m))
}

// DAGOption selects how the destination access group is assigned.
type DAGOption int

const (
	DAGIgnore DAGOption = iota
	DAGIncludeSameAsSource
	DAGMapDeprecated
)

// DAGOptionNames maps configuration names to options.
var DAGOptionNames = map[string]DAGOption{
	"ignore":                 DAGIgnore,
	"include-same-as-source": DAGIncludeSameAsSource,
	"map-deprecated":         DAGMapDeprecated,
}

// String returns the configuration name of the option.
func (o DAGOption) String() string {
	for name, v := range DAGOptionNames {
		if v == o {
			return name
		}
	}
	return fmt.Sprintf("dag-option(%d)", int(o))
}

// EventSource says where the destination event comes from.
type EventSource int

const (
	// EventDefault uses the destination project's first event.
	EventDefault EventSource = iota
	// EventLiteral names the destination event directly.
	EventLiteral
	// EventFieldLookup names a source field whose value is the event name.
	EventFieldLookup
)

// String returns the event source name.
func (s EventSource) String() string {
	switch s {
	case EventDefault:
		return "default"
	case EventLiteral:
		return "literal"
	case EventFieldLookup:
		return "field"
	default:
		return "unknown"
	}
}

// TargetKind discriminates DestinationTarget.
type TargetKind int

const (
	TargetField TargetKind = iota
	TargetInstanceOverride
	TargetAccessGroup
)

// DestinationTarget is where a copy pair's source value goes: a destination
// field, the destination instance number, or the destination access group.
type DestinationTarget struct {
	Kind  TargetKind
	Field string // set for TargetField
}

// FieldTarget returns a target writing to a destination field.
func FieldTarget(name string) DestinationTarget {
	return DestinationTarget{Kind: TargetField, Field: name}
}

// ParseTarget maps a raw destination field name to a target.
func ParseTarget(name string) DestinationTarget {
	switch name {
	case InstanceMarkerField:
		return DestinationTarget{Kind: TargetInstanceOverride}
	case AccessGroupField:
		return DestinationTarget{Kind: TargetAccessGroup}
	default:
		return FieldTarget(name)
	}
}

// Name returns the raw destination field name of the target.
func (t DestinationTarget) Name() string {
	switch t.Kind {
	case TargetInstanceOverride:
		return InstanceMarkerField
	case TargetAccessGroup:
		return AccessGroupField
	default:
		return t.Field
	}
}

// CopyPair is one configured source → destination copy.
type CopyPair struct {
	SourceField string            `json:"source_field"`
	Target      DestinationTarget `json:"-"`
	OnlyIfEmpty bool              `json:"only_if_empty"`
}

// GroupMapping maps a source access group to a destination access group.
type GroupMapping struct {
	SourceGroup string `json:"source_group"`
	DestGroup   string `json:"dest_group"`
}

// Instruction is one validated synchronization rule.
type Instruction struct {
	Sequence           int             `json:"sequence"`
	Enabled            bool            `json:"enabled"`
	TriggerForms       []string        `json:"trigger_forms"`
	TriggerCondition   string          `json:"trigger_condition,omitempty"`
	RecordIDField      string          `json:"record_id_field"`
	DestinationProject string          `json:"destination_project"`
	DestinationEvent   string          `json:"destination_event,omitempty"`
	EventSource        EventSource     `json:"event_source"`
	RecordMatch        RecordMatchMode `json:"record_match"`
	DAGOption          DAGOption       `json:"dag_option"`
	DAGMap             []GroupMapping  `json:"dag_map,omitempty"`
	CopyFields         []CopyPair      `json:"copy_fields"`
}

// InstanceOverridePair returns the pair supplying the destination instance.
func (ins *Instruction) InstanceOverridePair() (CopyPair, bool) {
	for _, p := range ins.CopyFields {
		if p.Target.Kind == TargetInstanceOverride {
			return p, true
		}
	}
	return CopyPair{}, false
}

// TriggeredBy reports whether saving form fires the instruction.
func (ins *Instruction) TriggeredBy(form string) bool {
	for _, f := range ins.TriggerForms {
		if f == form {
			return true
		}
	}
	return false
}

// SourceFields returns every source field the instruction reads, in
// configuration order without duplicates.
func (ins *Instruction) SourceFields() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	add(ins.RecordIDField)
	if ins.EventSource == EventFieldLookup {
		add(ins.DestinationEvent)
	}
	for _, p := range ins.CopyFields {
		add(p.SourceField)
	}
	return out
}

// DestFields returns the destination fields written by the instruction.
func (ins *Instruction) DestFields() []string {
	var out []string
	for _, p := range ins.CopyFields {
		if p.Target.Kind == TargetField {
			out = append(out, p.Target.Field)
		}
	}
	return out
}
