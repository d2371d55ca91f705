package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/output"
	"github.com/joescharf/jpa/internal/refresh"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the offline cache from Jira",
	Long: `Fetch issues and assignable users from Jira and store them in the local
SQLite cache (db_path). The cache serves reads when Jira is unreachable and
backs store.backend=sqlite.

Syncs the selected project, or every visible project with --all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncRun(cmd)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every visible project")
	rootCmd.AddCommand(syncCmd)
}

func syncRun(cmd *cobra.Command) error {
	src, err := newJiraClient(newLogger())
	if err != nil {
		return err
	}
	cache, err := getCache()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	if !syncAll {
		key, err := requireProject()
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would sync %s into %s", key, viper.GetString("db_path"))
			return nil
		}
		r, err := refresh.ProjectByKey(ctx, src, cache, key)
		if err != nil {
			return fmt.Errorf("sync %s: %w", key, err)
		}
		ui.Success("Synced %s: %d issue(s), %d user(s)", output.Cyan(r.Key), r.Issues, r.Users)
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would sync all projects into %s", viper.GetString("db_path"))
		return nil
	}

	res, err := refresh.All(ctx, src, cache)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Project", "Issues", "Users", "Error"})
	for _, r := range res.Results {
		_ = table.Append([]string{
			output.Cyan(r.Key),
			fmt.Sprintf("%d", r.Issues),
			fmt.Sprintf("%d", r.Users),
			output.Red(r.Error),
		})
	}
	_ = table.Render()

	if res.Failed > 0 {
		ui.Warning("Synced %d of %d project(s), %d failed", res.Synced, res.Total, res.Failed)
	} else {
		ui.Success("Synced %d project(s)", res.Synced)
	}
	return nil
}
