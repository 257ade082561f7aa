package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool                `json:"valid"`
	Instructions []InstructionReport `json:"instructions"`
	UnknownKeys  map[int][]string    `json:"unknown_keys,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}

	cmd := &cobra.Command{
		Use:   "validate <settings-file>",
		Short: "Validate a rule set without saving it",
		Long: `Validate the instructions of a CUE, YAML or JSON settings file against
the source project and the destination projects defined in the database.

Every problem is reported, not only the first one. Instructions with
errors never fire.

Exit codes:
  0 - All instructions valid
  1 - One or more instructions have errors
  2 - Command error (file not found, unknown project, etc.)

Example:
  recsync validate --db ./recsync.db --project 20 rules.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, args[0], cmd)
		},
	}
	addDBFlags(cmd, opts, true)
	return cmd
}

func runValidate(rootOpts *RootOptions, opts *DBOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)

	raws, err := loadRules(path)
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := validateRules(cmd.Context(), st, opts.Project, raws)
	if err != nil {
		return err
	}
	f.VerboseLog("Validated %d instruction(s) from %s", len(results), path)

	unknown := make(map[int][]string)
	for i, raw := range raws {
		if keys := config.UnknownKeys(raw); len(keys) > 0 {
			unknown[i+1] = keys
		}
	}

	failed := countErrors(results)
	if f.Format == "json" {
		res := ValidationResult{Valid: failed == 0, Instructions: reports(results)}
		if len(unknown) > 0 {
			res.UnknownKeys = unknown
		}
		if err := f.Success(res); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if err := config.WriteSummary(w, results); err != nil {
			return err
		}
		for seq := 1; seq <= len(raws); seq++ {
			if keys, ok := unknown[seq]; ok {
				fmt.Fprintf(w, "Instruction #%d: unknown keys %v ignored\n", seq, keys)
			}
		}
		if failed == 0 {
			fmt.Fprintf(w, "✓ %d instruction(s) valid\n", len(results))
		} else {
			fmt.Fprintf(w, "✗ %d of %d instruction(s) have errors\n", failed, len(results))
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d instruction(s) have errors", failed))
	}
	return nil
}
