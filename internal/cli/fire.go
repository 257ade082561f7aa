package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/engine"
	"github.com/roach88/recsync/internal/expr"
	"github.com/roach88/recsync/internal/ir"
	"github.com/roach88/recsync/internal/store"
)

// FireOptions holds flags for the fire command.
type FireOptions struct {
	DBOptions
	Record   string
	Form     string
	Event    string
	Instance int
	Group    string
	Settings string
	Values   []string
}

// NewFireCommand creates the fire command.
func NewFireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FireOptions{}

	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Process a save event",
		Long: `Process one save event on a source record and fire its project's
instructions in order.

Values given with --set are written to the source record first, as if
the form had just been saved with them. Instructions come from the
newest saved settings, or from --settings when given.

Exit codes:
  0 - No instruction failed
  1 - One or more instructions failed
  2 - Command error (unknown project or event, etc.)

Example:
  recsync fire --db ./recsync.db --project 20 --record 1 --form enrolment \
    --event baseline_arm_1 --set weight=70 --set height=180`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFire(rootOpts, opts, cmd)
		},
	}

	addDBFlags(cmd, &opts.DBOptions, true)
	cmd.Flags().StringVar(&opts.Record, "record", "", "saved record id (required)")
	cmd.Flags().StringVar(&opts.Form, "form", "", "saved form (required)")
	cmd.Flags().StringVar(&opts.Event, "event", "", "saved event, unique name or id (default first event)")
	cmd.Flags().IntVar(&opts.Instance, "instance", 1, "saved instance")
	cmd.Flags().StringVar(&opts.Group, "group", "", "access group of the saving user")
	cmd.Flags().StringVar(&opts.Settings, "settings", "", "read instructions from this file instead of the saved settings")
	cmd.Flags().StringArrayVar(&opts.Values, "set", nil, "field=value written to the source record before firing")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("form")

	return cmd
}

func runFire(rootOpts *RootOptions, opts *FireOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(rootOpts, cmd.ErrOrStderr())

	if opts.Settings != "" {
		if err := requireFile(opts.Settings); err != nil {
			return err
		}
	}
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := st.Project(ctx, opts.Project)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown project", err)
	}
	event, err := resolveEvent(src, opts.Event)
	if err != nil {
		return err
	}
	if err := writeValues(cmd, st, src, opts, event); err != nil {
		return err
	}

	var source engine.ConfigSource = store.SettingsSource{Store: st}
	if opts.Settings != "" {
		source = config.FileSource{Path: opts.Settings}
	}
	evaluator, err := expr.New(st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create condition evaluator", err)
	}
	eng, err := engine.New(engine.Deps{
		Data:      st,
		Files:     st,
		Evaluator: evaluator,
		Audit:     st.AuditLog(src.ID),
		Notifier:  st.Outbox(src.ID),
		Config:    source,
	}, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	outcomes, err := eng.OnRecordSaved(ctx, ir.SaveEvent{
		ProjectID: src.ID,
		Record:    opts.Record,
		Form:      opts.Form,
		Event:     event,
		Group:     opts.Group,
		Instance:  opts.Instance,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to process save event", err)
	}

	f := newFormatter(rootOpts, cmd)
	if f.Format == "json" {
		if err := f.Success(outcomes); err != nil {
			return err
		}
	} else {
		writeOutcomes(cmd, outcomes)
	}

	failed := 0
	for _, out := range outcomes {
		if out.Status == engine.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d instruction(s) failed", failed))
	}
	return nil
}

// resolveEvent accepts a unique event name or an event id; empty means
// the first event.
func resolveEvent(p *ir.Project, name string) (string, error) {
	if name == "" {
		return p.FirstEventID(), nil
	}
	if id, ok := p.EventIDByUniqueName(name); ok {
		return id, nil
	}
	if _, ok := p.Event(name); ok {
		return name, nil
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("event %q not in project %s", name, p.ID))
}

func writeValues(cmd *cobra.Command, st *store.Store, p *ir.Project, opts *FireOptions, event string) error {
	if len(opts.Values) == 0 {
		return nil
	}
	rec := ir.NewRecordData()
	for _, kv := range opts.Values {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || field == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --set %q: want field=value", kv))
		}
		rec.Set(p.SlotFor(field, event, opts.Instance), field, value)
	}
	if _, err := st.Write(cmd.Context(), p.ID, ir.Snapshot{opts.Record: rec}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write source values", err)
	}
	return nil
}

func writeOutcomes(cmd *cobra.Command, outcomes []engine.Outcome) {
	w := cmd.OutOrStdout()
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No instructions configured.")
		return
	}
	for _, out := range outcomes {
		switch out.Status {
		case engine.StatusCopied:
			fmt.Fprintf(w, "#%d copied to %s/%s (%s)\n", out.Sequence, out.DestProject, out.DestRecord, out.Resolution.Kind)
			for _, b := range out.Blocked {
				fmt.Fprintf(w, "  not empty, skipped: %s\n", b)
			}
		case engine.StatusSkipped:
			fmt.Fprintf(w, "#%d skipped: %s\n", out.Sequence, out.Reason)
		case engine.StatusConfigError:
			fmt.Fprintf(w, "#%d invalid instruction\n", out.Sequence)
			for _, e := range out.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		case engine.StatusFailed:
			fmt.Fprintf(w, "#%d failed: %v\n", out.Sequence, out.Err)
		}
	}
}
