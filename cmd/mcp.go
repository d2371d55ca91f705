package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/mcp"
	"github.com/joescharf/jpa/internal/metrics"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant triage a Jira project through jpa. Configure with:

  {
    "mcpServers": {
      "jpa": { "command": "jpa", "args": ["mcp", "-p", "SCRUM"] }
    }
  }

Available tools: jpa_list_projects, jpa_list_issues, jpa_team_workload,
jpa_assign_issue, jpa_raise_priority, jpa_auto_assign, jpa_project_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	newAlloc, err := allocatorFactory(s, metrics.NewNop(), newLogger())
	if err != nil {
		return err
	}

	srv := mcp.NewServer(s, newAlloc, classifier(), viper.GetString("project"), buildVersion)
	return srv.ServeStdio(cmdContext(cmd))
}
