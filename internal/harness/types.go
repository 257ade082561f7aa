package harness

import (
	"fmt"

	"github.com/roach88/recsync/internal/engine"
)

// TraceEvent is the outcome of one instruction for one save.
type TraceEvent struct {
	Save       int      `json:"save"`
	Sequence   int      `json:"sequence"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
	DestRecord string   `json:"dest_record,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Writes     []string `json:"writes,omitempty"`
	Files      []string `json:"files,omitempty"`
	Blocked    []string `json:"blocked,omitempty"`
	WriteBack  string   `json:"write_back,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// newTraceEvent condenses an engine outcome. Writes and files render as
// "field@slot=value" and "kind field@slot".
func newTraceEvent(save int, out engine.Outcome) TraceEvent {
	ev := TraceEvent{
		Save:       save,
		Sequence:   out.Sequence,
		Status:     string(out.Status),
		Reason:     out.Reason,
		DestRecord: out.DestRecord,
		Blocked:    out.Blocked,
		Errors:     out.Errors,
	}
	if out.Resolution != nil {
		ev.Resolution = out.Resolution.Kind.String()
	}
	if out.Err != nil {
		ev.Error = out.Err.Error()
	}
	if plan := out.Plan; plan != nil {
		for _, w := range plan.Batch.Writes {
			ev.Writes = append(ev.Writes, fmt.Sprintf("%s@%s=%s", w.Field, w.Slot, w.Value))
		}
		if plan.Batch.AccessGroup != nil {
			ev.Writes = append(ev.Writes, "access_group="+*plan.Batch.AccessGroup)
		}
		for _, f := range plan.Files {
			ev.Files = append(ev.Files, fmt.Sprintf("%s %s@%s", f.Kind, f.Field, f.Slot))
		}
		if wb := plan.WriteBack; wb != nil {
			ev.WriteBack = fmt.Sprintf("%s@%s=%s", wb.Field, wb.Slot, wb.Value)
		}
	}
	return ev
}

// canonical converts the event to the shapes ir.MarshalCanonical accepts,
// omitting empty fields.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"save":     e.Save,
		"sequence": e.Sequence,
		"status":   e.Status,
	}
	str := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	list := func(key string, v []string) {
		if len(v) > 0 {
			m[key] = v
		}
	}
	str("reason", e.Reason)
	str("dest_record", e.DestRecord)
	str("resolution", e.Resolution)
	list("writes", e.Writes)
	list("files", e.Files)
	list("blocked", e.Blocked)
	str("write_back", e.WriteBack)
	list("errors", e.Errors)
	str("error", e.Error)
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per instruction per save, in firing order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
