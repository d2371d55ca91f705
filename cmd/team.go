package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/jpa/internal/output"
	"github.com/joescharf/jpa/internal/triage"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Show team workload",
	Long: `Show every assignable member of the selected project with their current
number of assigned issues against the per-person limit (assign.cap).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(teamCmd)
}

func teamRun(cmd *cobra.Command) error {
	key, err := requireProject()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	issues, users, err := loadProject(cmdContext(cmd), s, key)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No assignable users in %s.", key)
		return nil
	}

	limit := assignCap()
	rows := triage.Workload(issues, users, limit)

	table := ui.Table([]string{"Name", "Account", "Assigned", "Remaining", "Status"})
	available := 0
	for _, row := range rows {
		status := output.Green("available")
		switch {
		case !row.User.Active:
			status = "inactive"
		case !row.Available:
			status = output.Red("at limit")
		default:
			available++
		}
		_ = table.Append([]string{
			output.Cyan(row.User.DisplayName),
			row.User.AccountID,
			output.CapacityColor(row.Assigned, limit),
			fmt.Sprintf("%d", row.Remaining),
			status,
		})
	}
	_ = table.Render()

	ui.Info("%d of %d member(s) can take more work (limit %d).", available, len(rows), limit)
	return nil
}
