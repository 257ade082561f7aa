package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/expr"
	"github.com/roach88/recsync/internal/store"
)

// DBOptions are the flags of commands that work on one project of a
// database.
type DBOptions struct {
	Database string
	Project  string
}

func addDBFlags(cmd *cobra.Command, opts *DBOptions, withProject bool) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	if withProject {
		cmd.Flags().StringVar(&opts.Project, "project", "", "source project id (required)")
		_ = cmd.MarkFlagRequired("project")
	}
}

// openStore opens the database, creating it if needed.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// requireFile returns a command error when path does not exist.
func requireFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("file not found: %s", path))
	}
	return nil
}

// loadRules reads the instructions of a settings file.
func loadRules(path string) ([]config.Raw, error) {
	if err := requireFile(path); err != nil {
		return nil, err
	}
	doc, err := config.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	raws, err := config.Instructions(doc)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	return raws, nil
}

// storedRules reads the latest saved instructions of project; none when
// nothing was saved yet.
func storedRules(ctx context.Context, st *store.Store, project string) ([]config.Raw, error) {
	raws, err := store.SettingsSource{Store: st}.Instructions(ctx, project)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read settings", err)
	}
	return raws, nil
}

// validateRules parses raws against the schemas in st.
func validateRules(ctx context.Context, st *store.Store, project string, raws []config.Raw) ([]*config.Result, error) {
	src, err := st.Project(ctx, project)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, WrapExitError(ExitCommandError, "unknown project", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to read project", err)
	}
	evaluator, err := expr.New(st)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create condition evaluator", err)
	}
	env := config.Env{Source: src, Projects: st, Expressions: evaluator}
	return config.ParseAll(ctx, raws, env), nil
}

// countErrors returns the number of instructions with errors.
func countErrors(results []*config.Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// InstructionReport is the JSON form of one validated instruction.
type InstructionReport struct {
	Sequence int            `json:"sequence"`
	Enabled  bool           `json:"enabled"`
	Valid    bool           `json:"valid"`
	Errors   []config.Issue `json:"errors,omitempty"`
	Warnings []config.Issue `json:"warnings,omitempty"`
}

func reports(results []*config.Result) []InstructionReport {
	out := make([]InstructionReport, len(results))
	for i, r := range results {
		out[i] = InstructionReport{
			Sequence: r.Instruction.Sequence,
			Enabled:  r.Instruction.Enabled,
			Valid:    r.OK(),
			Errors:   r.Errors(),
			Warnings: r.Warnings(),
		}
	}
	return out
}
