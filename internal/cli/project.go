package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/store"
)

// NewProjectCommand creates the project command group.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Define and inspect project schemas",
	}
	cmd.AddCommand(newProjectDefineCommand(rootOpts))
	cmd.AddCommand(newProjectShowCommand(rootOpts))
	return cmd
}

func newProjectDefineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}

	cmd := &cobra.Command{
		Use:   "define <schema.yaml>...",
		Short: "Define projects from YAML schema files",
		Long: `Define or replace projects from YAML schema files.

A schema names the project id, its primary key, optional secondary key and
autonumbering, its fields (form and type) and its events in order.

Example:
  recsync project define --db ./recsync.db source.yaml dest.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			var defined []string
			for _, path := range args {
				if err := requireFile(path); err != nil {
					return err
				}
				p, err := store.LoadProjectFile(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load project", err)
				}
				if err := st.DefineProject(cmd.Context(), p); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("failed to define project %s", p.ID), err)
				}
				defined = append(defined, p.ID)
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(map[string]any{"defined": defined})
			}
			return f.Success("Defined projects: " + strings.Join(defined, ", "))
		},
	}
	addDBFlags(cmd, opts, false)
	return cmd
}

func newProjectShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}

	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.Project(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "unknown project", err)
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(p)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Project %s (primary key %s", p.ID, p.PrimaryKey)
			if p.SecondaryKey != "" {
				fmt.Fprintf(w, ", secondary key %s", p.SecondaryKey)
			}
			if p.Autonumber {
				fmt.Fprint(w, ", autonumbered")
			}
			fmt.Fprintln(w, ")")
			for _, ev := range p.Events {
				kind := ""
				switch {
				case ev.Repeating:
					kind = " [repeating]"
				case len(ev.RepeatingForms) > 0:
					kind = " [repeating forms: " + strings.Join(ev.RepeatingForms, ", ") + "]"
				}
				fmt.Fprintf(w, "  %s %s: %s%s\n", ev.ID, ev.UniqueName, strings.Join(ev.Forms, ", "), kind)
			}
			return nil
		},
	}
	addDBFlags(cmd, opts, false)
	return cmd
}
