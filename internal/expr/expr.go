package expr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/roach88/recsync/internal/ir"
)

// Variable names visible to conditions.
const (
	VarRecord   = "record"
	VarID       = "id"
	VarEvent    = "event"
	VarInstance = "instance"
)

// ErrNotBoolean is returned for conditions that do not produce a bool.
var ErrNotBoolean = errors.New("condition must evaluate to a boolean")

// RecordReader reads source record data.
type RecordReader interface {
	Read(ctx context.Context, req ir.ReadRequest) (ir.Snapshot, error)
}

// Evaluator compiles and runs trigger conditions. Compiled programs are
// cached by expression text.
type Evaluator struct {
	reader   RecordReader
	env      *cel.Env
	programs sync.Map
}

// New creates an evaluator reading records through reader. A nil reader
// gives an evaluator that can only validate.
func New(reader RecordReader) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarRecord, cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable(VarID, cel.StringType),
		cel.Variable(VarEvent, cel.StringType),
		cel.Variable(VarInstance, cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &Evaluator{reader: reader, env: env}, nil
}

// Validate compiles expr and checks that it yields a boolean.
func (e *Evaluator) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate runs the condition of req against the saved record. An empty
// condition is true.
func (e *Evaluator) Evaluate(ctx context.Context, req ir.EvalRequest) (bool, error) {
	if strings.TrimSpace(req.Expr) == "" {
		return true, nil
	}
	program, err := e.program(req.Expr)
	if err != nil {
		return false, err
	}
	if e.reader == nil {
		return false, errors.New("evaluate condition: no record reader")
	}
	if req.Project == nil {
		return false, errors.New("evaluate condition: no project schema")
	}

	snap, err := e.reader.Read(ctx, ir.ReadRequest{Project: req.Project.ID, Records: []string{req.Record}})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: read record %s: %w", req.Record, err)
	}
	rec, _ := snap.Record(req.Record)

	values := make(map[string]string, len(req.Project.Fields))
	for name := range req.Project.Fields {
		values[name] = rec.Value(req.Project.SlotFor(name, req.Event, req.Instance), name)
	}

	eventName := req.Event
	if ev, ok := req.Project.Event(req.Event); ok {
		eventName = ev.UniqueName
	}
	instance := req.Instance
	if instance < 1 {
		instance = 1
	}

	out, _, err := program.ContextEval(ctx, map[string]any{
		VarRecord:   values,
		VarID:       req.Record,
		VarEvent:    eventName,
		VarInstance: int64(instance),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", req.Expr, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate condition %q: %w", req.Expr, ErrNotBoolean)
	}
	return v, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := e.programs.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w, got %s", ErrNotBoolean, out)
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs.Store(expr, program)
	return program, nil
}
