package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var settings string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Describe the instructions of a project",
		Long: `Describe each instruction of a project: triggers, destination, record
matching, access groups, copied fields and validation findings.

Example:
  recsync summary --db ./recsync.db --project 20
  recsync summary --db ./recsync.db --project 20 --settings draft.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			var raws []config.Raw
			if settings != "" {
				raws, err = loadRules(settings)
			} else {
				raws, err = storedRules(cmd.Context(), st, opts.Project)
			}
			if err != nil {
				return err
			}
			results, err := validateRules(cmd.Context(), st, opts.Project, raws)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(reports(results))
			}
			return config.WriteSummary(cmd.OutOrStdout(), results)
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().StringVar(&settings, "settings", "", "summarize this file instead of the saved settings")
	return cmd
}
