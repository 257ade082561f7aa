package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/engine"
	"github.com/roach88/recsync/internal/expr"
	"github.com/roach88/recsync/internal/ids"
	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
)

// Harness holds the per-scenario store and engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	source string
	logger *slog.Logger
}

// Run executes a scenario in a fresh in-memory store and returns the
// trace and the assertion results. The error is set only when the
// scenario cannot be set up or a save cannot be processed.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithIDGenerator(ids.NewSequence("doc")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	h := &Harness{
		store:  st,
		source: scenario.Source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, save := range scenario.Saves {
		if err := h.save(ctx, i+1, save, result); err != nil {
			return nil, fmt.Errorf("saves[%d]: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, AssertionContext{Store: st, Source: scenario.Source}, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for _, path := range scenario.Projects {
		p, err := store.LoadProjectFile(path)
		if err != nil {
			return err
		}
		if err := h.store.DefineProject(ctx, p); err != nil {
			return err
		}
	}

	settings, err := config.LoadFile(scenario.Settings)
	if err != nil {
		return err
	}
	if _, _, err := h.store.SaveSettings(ctx, scenario.Source, settings); err != nil {
		return err
	}

	evaluator, err := expr.New(h.store)
	if err != nil {
		return err
	}
	h.engine, err = engine.New(engine.Deps{
		Data:      h.store,
		Files:     h.store,
		Evaluator: evaluator,
		Audit:     h.store.AuditLog(scenario.Source),
		Notifier:  h.store.Outbox(scenario.Source),
		Config:    store.SettingsSource{Store: h.store},
	}, engine.WithLogger(h.logger), engine.WithIDGenerator(ids.NewSequence("firing")))
	if err != nil {
		return err
	}

	for i, step := range scenario.Setup {
		if err := h.seed(ctx, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// seed writes one seed step. Attachments are uploaded and attached after
// the values are written.
func (h *Harness) seed(ctx context.Context, step SeedStep) error {
	p, err := h.store.Project(ctx, step.Project)
	if err != nil {
		return err
	}
	event, err := eventID(p, step.Event)
	if err != nil {
		return err
	}

	rec := ir.NewRecordData()
	for _, field := range sortedKeys(step.Values) {
		rec.Set(p.SlotFor(field, event, step.Instance), field, step.Values[field])
	}
	if step.Group != "" {
		rec.AccessGroup, rec.HasAccessGroup = step.Group, true
	}
	if _, err := h.store.Write(ctx, step.Project, ir.Snapshot{step.Record: rec}); err != nil {
		return err
	}

	for _, field := range sortedKeys(step.Files) {
		f := step.Files[field]
		docID, err := h.store.StoreFile(ctx, step.Project, ir.File{MimeType: f.MimeType, Name: f.Name, Content: []byte(f.Content)})
		if err != nil {
			return err
		}
		if err := h.store.AddFileToField(ctx, step.Project, step.Record, field, p.SlotFor(field, event, step.Instance), docID); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) save(ctx context.Context, n int, step SaveStep, result *Result) error {
	for i, seed := range step.Before {
		if err := h.seed(ctx, seed); err != nil {
			return fmt.Errorf("before[%d]: %w", i, err)
		}
	}

	src, err := h.store.Project(ctx, h.source)
	if err != nil {
		return err
	}
	event, err := eventID(src, step.Event)
	if err != nil {
		return err
	}

	outcomes, err := h.engine.OnRecordSaved(ctx, ir.SaveEvent{
		ProjectID: h.source,
		Record:    step.Record,
		Form:      step.Form,
		Event:     event,
		Group:     step.Group,
		Instance:  step.Instance,
	})
	if err != nil {
		return err
	}

	statuses := make([]string, len(outcomes))
	for i, out := range outcomes {
		result.Trace = append(result.Trace, newTraceEvent(n, out))
		statuses[i] = string(out.Status)
	}
	if len(step.Expect) > 0 && !slices.Equal(step.Expect, statuses) {
		result.AddError(fmt.Sprintf("save #%d: expected statuses %v, got %v", n, step.Expect, statuses))
	}
	return nil
}

// eventID resolves a unique event name, accepting a raw event id too.
func eventID(p *ir.Project, name string) (string, error) {
	if id, ok := p.EventIDByUniqueName(name); ok {
		return id, nil
	}
	if _, ok := p.Event(name); ok {
		return name, nil
	}
	return "", fmt.Errorf("event %q not in project %s", name, p.ID)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
