package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var title string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit log of a project",
		Long: `Print the audit log of a project in write order: one entry per copy,
failed copy and invalid instruction.

Example:
  recsync audit --db ./recsync.db --project 20 --title "recsync: COPY FAILED"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.AuditLog(opts.Project).Entries(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read audit log", err)
			}
			if title != "" {
				kept := entries[:0]
				for _, e := range entries {
					if e.Title == title {
						kept = append(kept, e)
					}
				}
				entries = kept
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(entries)
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No audit entries.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(w, "[%d] %s (record %s)\n", e.ID, e.Title, e.Record)
				fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(e.Detail, "\n", "\n    "))
			}
			return nil
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().StringVar(&title, "title", "", "only entries with this title")
	return cmd
}

// NewNotificationsCommand creates the notifications command.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var ack bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List queued failure notifications",
		Long: `List the pending failure notifications of a project. With --ack the
listed notifications are marked as sent.

Example:
  recsync notifications --db ./recsync.db --project 20 --ack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			outbox := st.Outbox(opts.Project)
			pending, err := outbox.Pending(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read notifications", err)
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				if err := f.Success(pending); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				if len(pending) == 0 {
					fmt.Fprintln(w, "No pending notifications.")
				}
				for _, n := range pending {
					fmt.Fprintf(w, "[%d] %s\n    %s\n", n.ID, n.Subject, strings.ReplaceAll(n.Body, "\n", "\n    "))
				}
			}

			if ack {
				for _, n := range pending {
					if err := outbox.MarkSent(cmd.Context(), n.ID); err != nil {
						return WrapExitError(ExitCommandError, "failed to acknowledge notification", err)
					}
				}
				f.VerboseLog("Acknowledged %d notification(s)", len(pending))
			}
			return nil
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().BoolVar(&ack, "ack", false, "mark listed notifications as sent")
	return cmd
}
