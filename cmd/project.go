package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/output"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Browse Jira projects",
	Long:  "List the Jira projects visible to the configured account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd)
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List visible projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd)
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show a project's statistics panel",
	Long:  "Alias for 'jpa status <key>'.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			viper.Set("project", args[0])
		}
		return statusRun(cmd)
	},
}

func init() {
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	projects, err := s.ListProjects(cmdContext(cmd))
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		ui.Info("No projects visible. Check jira.base_url and your credentials.")
		return nil
	}

	current := viper.GetString("project")
	table := ui.Table([]string{"Key", "Name", "Type", "ID"})
	for _, p := range projects {
		key := p.Key
		if key == current {
			key = fmt.Sprintf("%s *", key)
		}
		_ = table.Append([]string{
			output.Cyan(key),
			p.Name,
			p.ProjectTypeKey,
			p.ID,
		})
	}
	_ = table.Render()
	return nil
}
