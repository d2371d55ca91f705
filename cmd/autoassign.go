package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/jpa/internal/metrics"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/output"
)

var autoAssignCmd = &cobra.Command{
	Use:     "auto-assign",
	Aliases: []string{"aa"},
	Short:   "Distribute unassigned issues across the team",
	Long: `Assign every unassigned issue of the selected project to an active team
member with spare capacity, round-robin by default (assign.policy), never
exceeding assign.cap assigned issues per person.

Each assignment is attempted once; failures are reported and do not stop
the pass. With --dry-run, shows the planned assignments without applying them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return autoAssignRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(autoAssignCmd)
}

func autoAssignRun(cmd *cobra.Command) error {
	key, err := requireProject()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := newAllocator(s, dryRun, metrics.NewNop(), newLogger())
	if err != nil {
		return err
	}

	res, err := a.AutoAssign(cmdContext(cmd), key)
	if err != nil {
		return err
	}

	if !res.Success {
		ui.Warning("%s", res.Error)
		return nil
	}
	if res.Message != "" {
		ui.Success("%s", res.Message)
		return nil
	}

	printAssignResults(res)

	switch {
	case dryRun:
		ui.DryRunMsg("%s (no changes made)", res.Summary)
	case res.SuccessCount() == len(res.Results):
		ui.Success("%s", res.Summary)
	default:
		ui.Warning("%s", res.Summary)
	}
	return nil
}

func printAssignResults(res *models.AutoAssignResult) {
	table := ui.Table([]string{"Issue", "Result", "Assigned To", "Error"})
	for _, r := range res.Results {
		result := output.Green("assigned")
		if !r.Success {
			result = output.Red("failed")
		}
		_ = table.Append([]string{
			output.Cyan(r.IssueKey),
			result,
			r.AssignedTo,
			r.Error,
		})
	}
	_ = table.Render()
}
