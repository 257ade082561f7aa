package config

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/recsync/internal/ir"
)

// Raw instruction keys.
const (
	KeyEnabled            = "enabled"
	KeyTriggerForms       = "triggerForms"
	KeyTriggerCondition   = "triggerCondition"
	KeyRecordIDField      = "recordIdField"
	KeyRecordMatchMode    = "recordMatchMode"
	KeyDAGOption          = "dagOption"
	KeyDAGMap             = "dagMap"
	KeyDestinationProject = "destinationProject"
	KeyDestinationEvent   = "destinationEvent"
	KeyCopyFields         = "copyFields"

	KeySourceField = "sourceField"
	KeyDestField   = "destField"
	KeyOnlyIfEmpty = "onlyIfEmpty"
	KeySourceGroup = "sourceGroup"
	KeyDestGroup   = "destGroup"
)

// RequiredKeys lists the keys every raw instruction must carry.
var RequiredKeys = []string{
	KeyEnabled,
	KeyTriggerForms,
	KeyRecordIDField,
	KeyRecordMatchMode,
	KeyDAGOption,
	KeyCopyFields,
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9_]`)
	uniqueEventName  = regexp.MustCompile(`^[a-z0-9_]+_arm_\d+$`)
)

// Raw is an instruction as stored in configuration.
type Raw = map[string]any

// ProjectResolver resolves a destination project reference to its schema.
type ProjectResolver interface {
	Project(ctx context.Context, ref string) (*ir.Project, error)
}

// ExpressionValidator checks trigger-condition syntax.
type ExpressionValidator interface {
	Validate(expr string) error
}

// Env is what validation checks instructions against.
type Env struct {
	// Source is the schema of the project the instructions belong to.
	Source *ir.Project
	// Projects resolves destination project references.
	Projects ProjectResolver
	// Expressions validates trigger conditions. Nil skips the check.
	Expressions ExpressionValidator
}

// Result is a parsed instruction with its validation findings.
type Result struct {
	Instruction *ir.Instruction
	// Destination is the resolved destination schema, nil when unresolved.
	Destination *ir.Project

	errors   []Issue
	warnings []Issue
}

// Errors returns blocking findings in validation order.
func (r *Result) Errors() []Issue { return r.errors }

// Warnings returns non-blocking findings in validation order.
func (r *Result) Warnings() []Issue { return r.warnings }

// OK reports whether the instruction may fire.
func (r *Result) OK() bool { return len(r.errors) == 0 }

func (r *Result) errorf(code, field, format string, args ...any) {
	r.errors = append(r.errors, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(code, field, format string, args ...any) {
	r.warnings = append(r.warnings, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Parse validates raw as the instruction at index (0-based) and returns the
// typed view. Parse performs no writes; the only I/O is resolving the
// destination project through env.Projects.
func Parse(ctx context.Context, raw Raw, index int, env Env) *Result {
	ins := &ir.Instruction{Sequence: index + 1}
	r := &Result{Instruction: ins}
	src := env.Source

	for _, key := range RequiredKeys {
		if _, ok := raw[key]; !ok {
			r.errorf(ErrMissingKey, key, "missing expected instruction property: %s", key)
		}
	}

	if v, ok := raw[KeyEnabled]; ok {
		enabled, ok := coerceBool(v)
		if !ok {
			r.errorf(ErrNotBoolean, KeyEnabled, "value %v is not a boolean", v)
		}
		ins.Enabled = enabled
	}

	ins.TriggerForms = coerceStringList(raw[KeyTriggerForms])
	for _, form := range ins.TriggerForms {
		if src != nil && !src.HasForm(form) {
			r.errorf(ErrUnknownTriggerForm, KeyTriggerForms, "trigger form %q is not a form in this project", form)
		}
	}

	ins.TriggerCondition = coerceString(raw[KeyTriggerCondition])
	if ins.TriggerCondition != "" && env.Expressions != nil {
		if err := env.Expressions.Validate(ins.TriggerCondition); err != nil {
			r.errorf(ErrInvalidCondition, KeyTriggerCondition, "invalid trigger logic: %v", err)
		}
	}

	var dest *ir.Project
	ins.DestinationProject = coerceString(raw[KeyDestinationProject])
	switch {
	case ins.DestinationProject == "" || ins.DestinationProject == "0":
		r.errorf(ErrDestinationProject, KeyDestinationProject, "destination project not set: missing project id")
	case env.Projects == nil:
		r.errorf(ErrDestinationProject, KeyDestinationProject, "destination project not set: no project resolver")
	default:
		p, err := env.Projects.Project(ctx, ins.DestinationProject)
		if err != nil {
			r.errorf(ErrDestinationProject, KeyDestinationProject, "destination project not set: %v", err)
		} else {
			dest = p
			r.Destination = p
		}
	}

	parseDestinationEvent(r, raw, src, dest)

	ins.RecordIDField = coerceString(raw[KeyRecordIDField])
	if _, present := raw[KeyRecordIDField]; present && src != nil && !src.HasField(ins.RecordIDField) {
		r.errorf(ErrUnknownRecordIDField, KeyRecordIDField, "record id field %q is not a field in this project", ins.RecordIDField)
	}

	if v, present := raw[KeyRecordMatchMode]; present {
		mode, ok := coerceEnum(v, ir.RecordMatchModeNames, ir.LookupBySecondaryKey)
		if !ok {
			r.errorf(ErrInvalidMatchMode, KeyRecordMatchMode, "unknown record match option %v", v)
		}
		ins.RecordMatch = mode
	}
	if ins.RecordMatch == ir.MatchOrAutonumber && src != nil && ins.RecordIDField == src.PrimaryKey {
		r.errorf(ErrAutonumberPrimaryKey, KeyRecordIDField, "autonumbering option is incompatible with using source project record id field for matching")
	}
	if ins.RecordMatch == ir.LookupBySecondaryKey && dest != nil && dest.SecondaryKey == "" {
		r.errorf(ErrNoSecondaryKey, KeyRecordMatchMode, "destination project %s has no secondary unique field", dest.ID)
	}

	if v, present := raw[KeyDAGOption]; present {
		opt, ok := coerceEnum(v, ir.DAGOptionNames, ir.DAGMapDeprecated)
		if !ok {
			r.errorf(ErrInvalidDAGOption, KeyDAGOption, "unknown dag option %v", v)
		}
		ins.DAGOption = opt
	}
	if ins.DAGOption == ir.DAGMapDeprecated {
		r.warnf(WarnDAGMapDeprecated, KeyDAGOption, "do not use \"dag mapping\" option, use %q instead", ir.DAGIncludeSameAsSource.String())
		parseDAGMap(r, raw[KeyDAGMap])
	}

	parseCopyFields(r, raw[KeyCopyFields], src, dest)

	return r
}

func parseDestinationEvent(r *Result, raw Raw, src, dest *ir.Project) {
	ins := r.Instruction
	event := coerceString(raw[KeyDestinationEvent])
	if event == "" {
		ins.EventSource = ir.EventDefault
		return
	}
	ins.DestinationEvent = event

	if invalidNameChars.MatchString(event) {
		r.errorf(ErrEventCharacters, KeyDestinationEvent, "destination event %q contains invalid characters", event)
		return
	}
	if uniqueEventName.MatchString(event) {
		ins.EventSource = ir.EventLiteral
		if dest != nil {
			if _, ok := dest.EventIDByUniqueName(event); !ok {
				r.errorf(ErrUnknownDestEvent, KeyDestinationEvent, "destination event name %q is not valid for project %s", event, dest.ID)
			}
		}
		return
	}
	ins.EventSource = ir.EventFieldLookup
	if src != nil && !src.HasField(event) {
		r.errorf(ErrUnknownEventField, KeyDestinationEvent, "destination event setting %q is not a valid field in this project, nor a valid event name in the destination project", event)
	}
}

func parseDAGMap(r *Result, v any) {
	entries, ok := coerceObjectList(v)
	if !ok {
		r.errorf(ErrInvalidDAGMap, KeyDAGMap, "dag map must be a list of {%s, %s} objects", KeySourceGroup, KeyDestGroup)
		return
	}
	for i, e := range entries {
		m := ir.GroupMapping{
			SourceGroup: coerceString(e[KeySourceGroup]),
			DestGroup:   coerceString(e[KeyDestGroup]),
		}
		if m.SourceGroup == "" {
			r.errorf(ErrInvalidDAGMap, fmt.Sprintf("%s[%d]", KeyDAGMap, i), "missing source group in dag map pair #%d", i+1)
			continue
		}
		r.Instruction.DAGMap = append(r.Instruction.DAGMap, m)
	}
}

func parseCopyFields(r *Result, v any, src, dest *ir.Project) {
	pairs, ok := coerceObjectList(v)
	if !ok || len(pairs) == 0 {
		r.errorf(ErrNoCopyFields, KeyCopyFields, "no fields to copy specified")
		return
	}

	markers := 0
	for i, raw := range pairs {
		n := i + 1
		field := fmt.Sprintf("%s[%d]", KeyCopyFields, i)

		pair := ir.CopyPair{SourceField: coerceString(raw[KeySourceField])}
		if pair.SourceField == "" || (src != nil && !src.HasField(pair.SourceField)) {
			r.errorf(ErrMissingSourceField, field+"."+KeySourceField, "missing source field in copy fields pair #%d", n)
		}

		destField := coerceString(raw[KeyDestField])
		switch {
		case destField == "":
			r.errorf(ErrMissingDestField, field+"."+KeyDestField, "missing destination field in copy fields pair #%d", n)
		case invalidNameChars.MatchString(destField):
			r.errorf(ErrDestFieldCharacters, field+"."+KeyDestField, "destination field %q has invalid characters in copy fields pair #%d", destField, n)
		}
		pair.Target = ir.ParseTarget(destField)
		if destField != "" && pair.Target.Kind == ir.TargetField && dest != nil {
			switch {
			case !dest.HasField(destField):
				r.errorf(ErrUnknownDestField, field+"."+KeyDestField, "destination field %q not in destination project in copy fields pair #%d", destField, n)
			case src != nil && src.IsFileField(pair.SourceField) && !dest.IsFileField(destField):
				r.errorf(ErrFileToNonFile, field+"."+KeyDestField, "file field %q cannot be copied to non-file field %q in copy fields pair #%d", pair.SourceField, destField, n)
			}
		}
		if pair.Target.Kind == ir.TargetInstanceOverride {
			markers++
			if markers > 1 {
				r.errorf(ErrDuplicateInstanceMark, field+"."+KeyDestField, "only one copy fields pair may set %s (pair #%d)", ir.InstanceMarkerField, n)
			}
		}

		onlyIfEmpty, ok := coerceBool(raw[KeyOnlyIfEmpty])
		if !ok {
			r.errorf(ErrNotBoolean, field+"."+KeyOnlyIfEmpty, "value %v is not a boolean in copy fields pair #%d", raw[KeyOnlyIfEmpty], n)
		}
		pair.OnlyIfEmpty = onlyIfEmpty

		r.Instruction.CopyFields = append(r.Instruction.CopyFields, pair)
	}
}

// ParseAll parses every raw instruction of a rule set in order.
func ParseAll(ctx context.Context, raws []Raw, env Env) []*Result {
	out := make([]*Result, len(raws))
	for i, raw := range raws {
		out[i] = Parse(ctx, raw, i, env)
	}
	return out
}

// UnknownKeys returns keys of raw that Parse does not read, sorted.
func UnknownKeys(raw Raw) []string {
	known := []string{
		KeyEnabled, KeyTriggerForms, KeyTriggerCondition, KeyRecordIDField,
		KeyRecordMatchMode, KeyDAGOption, KeyDAGMap, KeyDestinationProject,
		KeyDestinationEvent, KeyCopyFields,
	}
	var out []string
	for k := range raw {
		if !slices.Contains(known, k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
