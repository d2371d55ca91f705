package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/llm"
	"github.com/joescharf/jpa/internal/output"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Summarize problematic issues with an LLM",
	Long: `Send the selected project's problematic issues to Anthropic and print a
short remediation plan (who to assign, what to re-prioritize).

Requires anthropic.api_key (or JPA_ANTHROPIC_API_KEY).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return triageRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(triageCmd)
}

// newLLMClient returns nil when no API key is configured.
func newLLMClient() *llm.Client {
	key := viper.GetString("anthropic.api_key")
	if key == "" {
		return nil
	}
	return llm.NewClient(key, viper.GetString("anthropic.model"))
}

func triageRun(cmd *cobra.Command) error {
	key, err := requireProject()
	if err != nil {
		return err
	}
	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("anthropic.api_key is not set (run 'jpa config show')")
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	issues, err := s.ListIssues(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now()
	problems := classifier().Filter(issues, now)
	if len(problems) == 0 {
		ui.Success("No problematic issues in %s.", key)
		return nil
	}

	ui.VerboseLog("Sending %d problematic issue(s) to %s", len(problems), viper.GetString("anthropic.model"))
	summary, err := client.SummarizeProblems(ctx, key, problems, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n\n", summary.Summary)
	if len(summary.Actions) == 0 {
		return nil
	}

	table := ui.Table([]string{"Issue", "Action", "Detail"})
	for _, a := range summary.Actions {
		_ = table.Append([]string{output.Cyan(a.IssueKey), a.Kind, a.Detail})
	}
	_ = table.Render()
	return nil
}
