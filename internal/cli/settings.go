package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recsync/internal/config"
	"github.com/roach88/recsync/internal/store"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Save and inspect the rule set history of a project",
	}
	cmd.AddCommand(newSettingsSaveCommand(rootOpts))
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsHistoryCommand(rootOpts))
	return cmd
}

// SaveResult reports a settings save.
type SaveResult struct {
	ID           int64 `json:"id"`
	Saved        bool  `json:"saved"`
	Instructions int   `json:"instructions"`
	Invalid      int   `json:"invalid"`
}

func newSettingsSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var force bool

	cmd := &cobra.Command{
		Use:   "save <settings-file>",
		Short: "Validate a rule set and save it as the newest settings",
		Long: `Validate a rule set and save it as the newest settings of the project.

Settings equal to the newest saved entry are not saved again. A rule set
with invalid instructions is rejected unless --force is given; invalid
instructions are then reported in the audit log each time they would fire.

Example:
  recsync settings save --db ./recsync.db --project 20 rules.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raws, err := loadRules(args[0])
			if err != nil {
				return err
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
	cmd.Flags().BoolVar(&force, "force", false, "save even if instructions have errors")
	return cmd
}

// saveRules validates raws and saves them to the project history.
func saveRules(rootOpts *RootOptions, opts *DBOptions, st *store.Store, raws []config.Raw, force bool, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)
	ctx := cmd.Context()

	results, err := validateRules(ctx, st, opts.Project, raws)
	if err != nil {
		return err
	}
	invalid := countErrors(results)
	if invalid > 0 && !force {
		if f.Format == "json" {
			if err := f.Error(ErrCodeInvalid, "invalid instructions", reports(results)); err != nil {
				return err
			}
		} else {
			if err := config.WriteSummary(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d instruction(s) have errors, nothing saved", invalid))
	}

	id, saved, err := st.SaveSettings(ctx, opts.Project, config.NewSettings(raws))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to save settings", err)
	}

	res := SaveResult{ID: id, Saved: saved, Instructions: len(raws), Invalid: invalid}
	if f.Format == "json" {
		return f.Success(res)
	}
	if !saved {
		return f.Success(fmt.Sprintf("Settings unchanged (entry %d)", id))
	}
	return f.Success(fmt.Sprintf("Saved %d instruction(s) as entry %d", len(raws), id))
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var id int64

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the newest or a given settings entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			entry, err := settingsEntry(cmd, st, opts.Project, id)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(entry)
			}
			data, err := json.MarshalIndent(entry.Settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# entry %d, saved %s, hash %s\n", entry.ID, entry.CreatedAt, entry.Hash)
			return f.Success(string(data))
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().Int64Var(&id, "id", 0, "history entry id (default newest)")
	return cmd
}

// settingsEntry returns history entry id, or the newest when id is 0.
func settingsEntry(cmd *cobra.Command, st *store.Store, project string, id int64) (store.SettingsEntry, error) {
	var entry store.SettingsEntry
	var err error
	if id > 0 {
		entry, err = st.SettingsHistoryByID(cmd.Context(), project, id)
	} else {
		entry, err = st.LatestSettings(cmd.Context(), project)
	}
	if err != nil {
		return store.SettingsEntry{}, WrapExitError(ExitCommandError, "settings not found", err)
	}
	return entry, nil
}

// HistoryEntry is a settings history entry without its content.
type HistoryEntry struct {
	ID              int64  `json:"id"`
	CreatedAt       string `json:"created_at"`
	Hash            string `json:"hash"`
	EngineVersion   string `json:"engine_version"`
	SettingsVersion string `json:"settings_version"`
	Instructions    int    `json:"instructions"`
}

func newSettingsHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{}
	var limit int
	var keys []string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved settings entries, newest first",
		Long: `List saved settings entries, newest first.

With --keys only the entries in which one of the given settings keys
changed are listed, plus the oldest entry.

Example:
  recsync settings history --db ./recsync.db --project 20 --limit 5
  recsync settings history --db ./recsync.db --project 20 --keys instructions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			var entries []store.SettingsEntry
			if len(keys) > 0 {
				entries, err = st.FilteredSettingsHistory(cmd.Context(), opts.Project, keys)
				if err == nil && limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
			} else {
				entries, err = st.SettingsHistory(cmd.Context(), opts.Project, limit)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read settings history", err)
			}

			list := make([]HistoryEntry, len(entries))
			for i, e := range entries {
				raws, _ := config.Instructions(e.Settings)
				list[i] = HistoryEntry{
					ID:              e.ID,
					CreatedAt:       e.CreatedAt,
					Hash:            e.Hash,
					EngineVersion:   e.EngineVersion,
					SettingsVersion: e.SettingsVersion,
					Instructions:    len(raws),
				}
			}

			f := newFormatter(rootOpts, cmd)
			if f.Format == "json" {
				return f.Success(list)
			}
			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(w, "No settings saved.")
				return nil
			}
			for _, e := range list {
				fmt.Fprintf(w, "%d\t%s\t%d instruction(s)\t%s\n", e.ID, e.CreatedAt, e.Instructions, e.Hash[:min(12, len(e.Hash))])
			}
			return nil
		},
	}
	addDBFlags(cmd, opts, true)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (0 for all)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "only entries where these settings keys changed")
	return cmd
}
