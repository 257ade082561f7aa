package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
)

// parseSeparator accepts a single character, or "tab".
func parseSeparator(s string) (rune, error) {
	if s == "tab" || s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) || r == '"' || r == '\n' || r == '\r' {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid separator %q: want a single character", s))
	}
	return r, nil
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var separator, output string
	var version int64

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the instructions of a project as CSV",
		Long: `Export the instructions of the newest, or a given, settings entry as CSV,
one instruction per row.

Example:
  recsync export --db ./recsync.db --project 20 -o rules.csv
  recsync export --db ./recsync.db --project 20 --version 3 --separator ';'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := parseSeparator(separator)
			if err != nil {
				return err
			}
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			entry, err := settingsEntry(cmd, st, opts.Project, version)
			if err != nil {
				return err
			}
			raws, err := config.Instructions(entry.Settings)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read settings", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output file", err)
				}
				defer file.Close()
				w = file
			}
			if err := config.ExportCSV(w, raws, sep); err != nil {
				return WrapExitError(ExitFailure, "failed to export", err)
			}
			newFormatter(rootOpts, cmd).VerboseLog("Exported %d instruction(s) from entry %d", len(raws), entry.ID)
			return nil
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().StringVar(&separator, "separator", ",", "column separator (a single character or \"tab\")")
	cmd.Flags().Int64Var(&version, "version", 0, "settings history entry id (default newest)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var separator string
	var force bool

	cmd := &cobra.Command{
		Use:   "import <rules.csv>",
		Short: "Validate CSV instructions and save them as the newest settings",
		Long: `Read instructions exported with "recsync export", validate them and save
them as the newest settings of the project. Nothing is saved when a row
is malformed, or when an instruction has errors unless --force is given.

Example:
  recsync import --db ./recsync.db --project 20 rules.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := parseSeparator(separator)
			if err != nil {
				return err
			}
			if err := requireFile(args[0]); err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open file", err)
			}
			defer file.Close()

			raws, errs := config.ImportCSV(file, sep)
			if len(errs) > 0 {
				return importFailed(rootOpts, cmd, errs)
			}

			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			return saveRules(rootOpts, opts, st, raws, force, cmd)
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().StringVar(&separator, "separator", ",", "column separator (a single character or \"tab\")")
	cmd.Flags().BoolVar(&force, "force", false, "save even if instructions have errors")
	return cmd
}

func importFailed(rootOpts *RootOptions, cmd *cobra.Command, errs []error) error {
	f := newFormatter(rootOpts, cmd)
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	if f.Format == "json" {
		if err := f.Error(ErrCodeInvalid, "malformed CSV", msgs); err != nil {
			return err
		}
	} else {
		for _, m := range msgs {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
	}
	return WrapExitError(ExitFailure, "import failed", errors.Join(errs...))
}
