package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/ids"
	"github.com/roach88/recsync/internal/ir"
)

// Audit titles.
const (
	AuditTitle         = "recsync"
	AuditTitleFailed   = AuditTitle + ": COPY FAILED"
	AuditTitleConfig   = AuditTitle + ": INVALID INSTRUCTION"
	blockedDetailLabel = "Copy to non-empty fields skipped: "
)

// Status is the result of one instruction for one save event.
type Status string

const (
	StatusCopied      Status = "copied"
	StatusSkipped     Status = "skipped"
	StatusConfigError Status = "config_error"
	StatusFailed      Status = "failed"
)

// Skip reasons. Skips are not audited.
const (
	ReasonDisabled  = "disabled"
	ReasonTrigger   = "trigger form not saved"
	ReasonCondition = "trigger condition false"
	ReasonNoRecord  = "no destination record"
)

// Outcome reports what one instruction did for one save event.
type Outcome struct {
	Sequence    int         `json:"sequence"`
	Status      Status      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Record      string      `json:"record"`
	DestProject string      `json:"dest_project,omitempty"`
	DestRecord  string      `json:"dest_record,omitempty"`
	Resolution  *Resolution `json:"resolution,omitempty"`
	Plan        *ir.Plan    `json:"plan,omitempty"`
	Blocked     []string    `json:"blocked,omitempty"`
	Errors      []string    `json:"errors,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	Err         error       `json:"-"`
}

// Deps are the engine's collaborators. Evaluator and Notifier may be nil:
// without an evaluator any instruction with a trigger condition fails.
type Deps struct {
	Data      DataStore
	Files     FileStore
	Evaluator Evaluator
	Audit     AuditLog
	Notifier  Notifier
	Config    ConfigSource
}

// Engine fires instructions on save events.
//
// An Engine holds no per-firing state and may be reused across save
// events. Save events are processed synchronously by the caller's
// goroutine.
type Engine struct {
	deps   Deps
	logger *slog.Logger
	ids    ids.Generator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the generator of firing ids used to correlate log
// lines. Defaults to UUIDv7.
func WithIDGenerator(g ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an engine.
func New(deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Data == nil:
		return nil, errors.New("engine: data store required")
	case deps.Files == nil:
		return nil, errors.New("engine: file store required")
	case deps.Audit == nil:
		return nil, errors.New("engine: audit log required")
	case deps.Config == nil:
		return nil, errors.New("engine: config source required")
	}

	e := &Engine{deps: deps, logger: slog.Default(), ids: ids.UUIDv7{}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnRecordSaved fires every instruction of the saved project, in order,
// and returns one outcome per instruction. Failures of single
// instructions are reported in their outcomes; the returned error is set
// only when the instructions or the source schema cannot be loaded, or
// ctx is cancelled between instructions.
func (e *Engine) OnRecordSaved(ctx context.Context, ev ir.SaveEvent) ([]Outcome, error) {
	log := e.logger.With("firing", e.ids.Generate(), "project", ev.ProjectID, "record", ev.Record, "form", ev.Form)

	src, err := e.deps.Data.Project(ctx, ev.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load source project %s: %w", ev.ProjectID, err)
	}
	raws, err := e.deps.Config.Instructions(ctx, ev.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load instructions of %s: %w", ev.ProjectID, err)
	}
	log.Debug("save event", "event", ev.Event, "instance", ev.FirstInstance(), "instructions", len(raws))

	env := config.Env{Source: src, Projects: e.deps.Data, Expressions: e.deps.Evaluator}
	outcomes := make([]Outcome, 0, len(raws))
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		res := config.Parse(ctx, raw, i, env)
		out := e.fire(ctx, log.With("sequence", i+1), src, ev, res)
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (e *Engine) fire(ctx context.Context, log *slog.Logger, src *ir.Project, ev ir.SaveEvent, res *config.Result) Outcome {
	ins := res.Instruction
	out := Outcome{
		Sequence:    ins.Sequence,
		Record:      ev.Record,
		DestProject: ins.DestinationProject,
		Errors:      config.IssueList(res.Errors()),
		Warnings:    config.IssueList(res.Warnings()),
	}

	if !ins.Enabled && !hasIssue(res.Errors(), config.KeyEnabled) {
		return skip(out, ReasonDisabled)
	}
	if !ins.TriggeredBy(ev.Form) {
		return skip(out, ReasonTrigger)
	}
	for _, w := range out.Warnings {
		log.Warn("instruction warning", "warning", w)
	}
	if !res.OK() {
		out.Status = StatusConfigError
		out.Detail = fmt.Sprintf("Instruction #%d not fired:\n%s", ins.Sequence, strings.Join(out.Errors, "\n"))
		log.Warn("invalid instruction", "errors", len(out.Errors))
		e.audit(ctx, log, AuditTitleConfig, out.Detail, ev)
		return out
	}

	if ins.TriggerCondition != "" {
		ok, err := e.evaluate(ctx, src, ev, ins.TriggerCondition)
		if err != nil {
			return e.fail(ctx, log, out, ev, newFiringError(ErrCodeCondition, ins.Sequence, ev.Record, "evaluate trigger condition", err))
		}
		if !ok {
			return skip(out, ReasonCondition)
		}
	}

	dest := res.Destination
	destEvent, err := e.destinationEvent(ctx, src, dest, ev, ins)
	if err != nil {
		return e.fail(ctx, log, out, ev, err)
	}

	snap, err := e.deps.Data.Read(ctx, ir.ReadRequest{Project: src.ID, Records: []string{ev.Record}, Fields: ins.SourceFields()})
	if err != nil {
		return e.fail(ctx, log, out, ev, newFiringError(ErrCodeRead, ins.Sequence, ev.Record, "read source record", err))
	}
	srcData, _ := snap.Record(ev.Record)

	resolution, err := ResolveRecord(ctx, e.deps.Data, ResolveInput{
		Instruction: ins,
		Source:      src,
		Dest:        dest,
		Event:       ev,
		SourceData:  srcData,
	})
	if err != nil {
		return e.fail(ctx, log, out, ev, newFiringError(ErrCodeLookup, ins.Sequence, ev.Record, "resolve destination record", err))
	}
	out.Resolution = &resolution
	if resolution.Kind == ResolveSkip {
		log.Debug("no destination record", "lookup", resolution.Lookup, "mode", ins.RecordMatch.String())
		return skip(out, ReasonNoRecord)
	}
	if resolution.Kind == ResolveReserved && resolution.Lookup != "" {
		log.Warn("lookup value not found, reserved a new record", "lookup", resolution.Lookup, "dest_record", resolution.RecordID)
	}
	out.DestRecord = resolution.RecordID

	var destData *ir.RecordData
	if !resolution.New() {
		destSnap, err := e.deps.Data.Read(ctx, ir.ReadRequest{Project: dest.ID, Records: []string{resolution.RecordID}, Fields: ins.DestFields()})
		if err != nil {
			return e.fail(ctx, log, out, ev, newFiringError(ErrCodeRead, ins.Sequence, ev.Record, "read destination record", err))
		}
		destData, _ = destSnap.Record(resolution.RecordID)
	}

	plan, err := BuildPlan(ctx, e.deps.Files, PlanInput{
		Instruction: ins,
		Source:      src,
		Dest:        dest,
		Event:       ev,
		SourceData:  srcData,
		Resolution:  resolution,
		DestEvent:   destEvent,
		DestData:    destData,
		Override:    e.override(log, src, ev, ins, srcData),
	})
	if err != nil {
		return e.fail(ctx, log, out, ev, newFiringError(ErrCodeFileTransfer, ins.Sequence, ev.Record, "plan file transfers", err))
	}
	out.Plan = plan
	out.Blocked = plan.BlockedPairs()

	if err := e.apply(ctx, src, dest, ev, ins, plan); err != nil {
		return e.fail(ctx, log, out, ev, err)
	}

	out.Status = StatusCopied
	out.Detail = copyDetail(ev, dest.ID, resolution.RecordID)
	if len(out.Blocked) > 0 {
		out.Detail += "\n" + blockedDetailLabel + strings.Join(out.Blocked, ",")
	}
	log.Info("copied", "dest_project", dest.ID, "dest_record", resolution.RecordID,
		"resolution", resolution.Kind.String(), "writes", len(plan.Batch.Writes), "files", len(plan.Files), "blocked", len(out.Blocked))
	e.audit(ctx, log, AuditTitle, out.Detail, ev)
	return out
}

func (e *Engine) evaluate(ctx context.Context, src *ir.Project, ev ir.SaveEvent, expr string) (bool, error) {
	if e.deps.Evaluator == nil {
		return false, errors.New("no condition evaluator configured")
	}
	return e.deps.Evaluator.Evaluate(ctx, ir.EvalRequest{
		Expr:     expr,
		Project:  src,
		Record:   ev.Record,
		Event:    ev.Event,
		Instance: ev.FirstInstance(),
	})
}

// destinationEvent resolves the destination event id of a firing.
func (e *Engine) destinationEvent(ctx context.Context, src, dest *ir.Project, ev ir.SaveEvent, ins *ir.Instruction) (string, error) {
	switch ins.EventSource {
	case ir.EventLiteral:
		if id, ok := dest.EventIDByUniqueName(ins.DestinationEvent); ok {
			return id, nil
		}
		return "", newFiringError(ErrCodeUnknownEvent, ins.Sequence, ev.Record,
			fmt.Sprintf("event %q not in project %s", ins.DestinationEvent, dest.ID), nil)

	case ir.EventFieldLookup:
		field := ins.DestinationEvent
		snap, err := e.deps.Data.Read(ctx, ir.ReadRequest{Project: src.ID, Records: []string{ev.Record}, Fields: []string{field}})
		if err != nil {
			return "", newFiringError(ErrCodeRead, ins.Sequence, ev.Record, "read destination event field", err)
		}
		rec, _ := snap.Record(ev.Record)
		name := rec.Value(src.SlotFor(field, ev.Event, ev.FirstInstance()), field)
		if id, ok := dest.EventIDByUniqueName(name); ok {
			return id, nil
		}
		return "", newFiringError(ErrCodeUnknownEvent, ins.Sequence, ev.Record,
			fmt.Sprintf("field %s holds %q, not an event of project %s", field, name, dest.ID), nil)

	default:
		return dest.FirstEventID(), nil
	}
}

// override reads the instance marker pair once per firing.
func (e *Engine) override(log *slog.Logger, src *ir.Project, ev ir.SaveEvent, ins *ir.Instruction, data *ir.RecordData) Override {
	pair, ok := ins.InstanceOverridePair()
	if !ok {
		return Override{}
	}
	value := data.Value(src.SlotFor(pair.SourceField, ev.Event, ev.FirstInstance()), pair.SourceField)
	o, ok := ParseOverride(value)
	if !ok {
		log.Warn("ignoring instance override", "field", pair.SourceField, "value", value)
	}
	return o
}

// apply writes the plan: the batch, then file transfers, then the
// autonumber write-back. Steps already applied are not undone when a
// later step fails.
func (e *Engine) apply(ctx context.Context, src, dest *ir.Project, ev ir.SaveEvent, ins *ir.Instruction, plan *ir.Plan) error {
	if _, err := e.deps.Data.Write(ctx, dest.ID, plan.Batch.Snapshot()); err != nil {
		return newFiringError(ErrCodeWrite, ins.Sequence, ev.Record, "write destination record", err)
	}

	for _, ft := range plan.Files {
		var err error
		switch ft.Kind {
		case ir.FileCopy:
			var docID string
			docID, err = e.deps.Files.CopyFile(ctx, ft.DocID, dest.ID)
			if err == nil {
				err = e.deps.Files.AddFileToField(ctx, dest.ID, ft.Record, ft.Field, ft.Slot, docID)
			}
		case ir.FileDelete:
			err = e.deps.Files.DeleteFileFromField(ctx, dest.ID, ft.Record, ft.Field, ft.Slot)
		}
		if err != nil {
			return newFiringError(ErrCodeFileTransfer, ins.Sequence, ev.Record,
				fmt.Sprintf("%s file for field %s", ft.Kind, ft.Field), err)
		}
	}

	if wb := plan.WriteBack; wb != nil {
		rec := ir.NewRecordData()
		rec.Set(wb.Slot, wb.Field, wb.Value)
		if _, err := e.deps.Data.Write(ctx, src.ID, ir.Snapshot{ev.Record: rec}); err != nil {
			return newFiringError(ErrCodeWriteBack, ins.Sequence, ev.Record, "write back record id", err)
		}
	}
	return nil
}

// fail audits and notifies a failed firing.
func (e *Engine) fail(ctx context.Context, log *slog.Logger, out Outcome, ev ir.SaveEvent, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	out.Detail = copyDetail(ev, out.DestProject, out.DestRecord) + "\n" + err.Error()
	log.Error("copy failed", "error", err)

	e.audit(ctx, log, AuditTitleFailed, out.Detail, ev)
	if e.deps.Notifier != nil {
		if nerr := e.deps.Notifier.Notify(ctx, AuditTitleFailed, out.Detail); nerr != nil {
			log.Error("notify failed", "error", nerr)
		}
	}
	return out
}

func (e *Engine) audit(ctx context.Context, log *slog.Logger, title, detail string, ev ir.SaveEvent) {
	if err := e.deps.Audit.LogEvent(ctx, title, detail, ev.Record, ev.Event); err != nil {
		log.Error("audit log failed", "error", err)
	}
}

func skip(out Outcome, reason string) Outcome {
	out.Status = StatusSkipped
	out.Reason = reason
	return out
}

func copyDetail(ev ir.SaveEvent, destProject, destRecord string) string {
	return fmt.Sprintf("Copy from: record=%s, event=%s, instrument=%s, instance=%d\nCopy to: project_id=%s, record=%s",
		ev.Record, ev.Event, ev.Form, ev.FirstInstance(), destProject, destRecord)
}

func hasIssue(issues []config.Issue, field string) bool {
	for _, is := range issues {
		if is.Field == field {
			return true
		}
	}
	return false
}
