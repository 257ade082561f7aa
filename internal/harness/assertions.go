package harness

import (
	"context"
	"fmt"

	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
)

// AssertionError represents a failed assertion with context.
type AssertionError struct {
	Index     int
	Assertion Assertion
	Message   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %d (%s): %s", e.Index, e.Assertion.Type, e.Message)
}

// AssertionContext is the state assertions are checked against.
type AssertionContext struct {
	Store *store.Store
	// Source is the default project for audit and notification counts.
	Source string
}

// EvaluateAssertions checks every assertion and returns the failures as
// messages, in assertion order.
func EvaluateAssertions(ctx context.Context, actx AssertionContext, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, actx, a); err != nil {
			errs = append(errs, (&AssertionError{Index: i, Assertion: a, Message: err.Error()}).Error())
		}
	}
	return errs
}

func evaluate(ctx context.Context, actx AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertValue:
		return assertValue(ctx, actx.Store, a)
	case AssertAccessGroup:
		return assertAccessGroup(ctx, actx.Store, a)
	case AssertRecordCount:
		ids, err := actx.Store.RecordIDs(ctx, a.Project)
		if err != nil {
			return err
		}
		return checkCount(a.Count, len(ids), fmt.Sprintf("records in project %s", a.Project))
	case AssertInstanceCount:
		return assertInstanceCount(ctx, actx.Store, a)
	case AssertAuditCount:
		return assertAuditCount(ctx, actx, a)
	case AssertNotificationCount:
		project := orDefault(a.Project, actx.Source)
		pending, err := actx.Store.Outbox(project).Pending(ctx)
		if err != nil {
			return err
		}
		return checkCount(a.Count, len(pending), "pending notifications")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertValue(ctx context.Context, st *store.Store, a Assertion) error {
	p, rec, err := readRecord(ctx, st, a)
	if err != nil {
		return err
	}
	event, err := eventID(p, a.Event)
	if err != nil {
		return err
	}
	slot := p.SlotFor(a.Field, event, a.Instance)
	got := rec.Value(slot, a.Field)
	if got != *a.Equals {
		return fmt.Errorf("%s/%s %s@%s: expected %q, got %q", a.Project, a.Record, a.Field, slot, *a.Equals, got)
	}
	return nil
}

func assertAccessGroup(ctx context.Context, st *store.Store, a Assertion) error {
	_, rec, err := readRecord(ctx, st, a)
	if err != nil {
		return err
	}
	if rec.AccessGroup != *a.Equals {
		return fmt.Errorf("%s/%s access group: expected %q, got %q", a.Project, a.Record, *a.Equals, rec.AccessGroup)
	}
	return nil
}

func assertInstanceCount(ctx context.Context, st *store.Store, a Assertion) error {
	p, rec, err := readRecord(ctx, st, a)
	if err != nil {
		return err
	}
	event, err := eventID(p, a.Event)
	if err != nil {
		return err
	}
	key := ir.RepeatKey{Event: event, Form: a.Form}
	return checkCount(a.Count, len(rec.Repeats[key]), fmt.Sprintf("instances of %s/%s", a.Event, a.Form))
}

func assertAuditCount(ctx context.Context, actx AssertionContext, a Assertion) error {
	entries, err := actx.Store.AuditLog(orDefault(a.Project, actx.Source)).Entries(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if a.Title == "" || e.Title == a.Title {
			n++
		}
	}
	what := "audit entries"
	if a.Title != "" {
		what = fmt.Sprintf("audit entries titled %q", a.Title)
	}
	return checkCount(a.Count, n, what)
}

// readRecord loads the asserted record; a missing record is a failure.
func readRecord(ctx context.Context, st *store.Store, a Assertion) (*ir.Project, *ir.RecordData, error) {
	p, err := st.Project(ctx, a.Project)
	if err != nil {
		return nil, nil, err
	}
	snap, err := st.Read(ctx, ir.ReadRequest{Project: a.Project, Records: []string{a.Record}})
	if err != nil {
		return nil, nil, err
	}
	rec, ok := snap.Record(a.Record)
	if !ok {
		return nil, nil, fmt.Errorf("record %s/%s does not exist", a.Project, a.Record)
	}
	return p, rec, nil
}

func checkCount(want, got int, what string) error {
	if want != got {
		return fmt.Errorf("expected %d %s, got %d", want, what, got)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
