package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/output"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

var issueProblems bool

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "List, inspect and fix project issues",
	Long:  "List a project's issues, highlight problematic ones, and assign or re-prioritize them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd)
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long:    "List the selected project's issues. Use --problems to show only problematic ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd)
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd, args[0])
	},
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <key> <account-id|name>",
	Short: "Assign an issue to a team member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAssignRun(cmd, args[0], args[1])
	},
}

var issuePriorityCmd = &cobra.Command{
	Use:   "priority <key> <name|id>",
	Short: "Change an issue's priority",
	Long:  "Change an issue's priority. Low priority issues with a close deadline are usually raised to Medium or High.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issuePriorityRun(cmd, args[0], args[1])
	},
}

func init() {
	issueListCmd.Flags().BoolVar(&issueProblems, "problems", false, "Show only problematic issues")
	issueCmd.Flags().BoolVar(&issueProblems, "problems", false, "Show only problematic issues")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueAssignCmd)
	issueCmd.AddCommand(issuePriorityCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun(cmd *cobra.Command) error {
	key, err := requireProject()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	issues, err := s.ListIssues(cmdContext(cmd), key)
	if err != nil {
		return err
	}

	now := time.Now()
	c := classifier()
	if issueProblems {
		issues = c.Filter(issues, now)
	}

	if len(issues) == 0 {
		if issueProblems {
			ui.Success("No problematic issues in %s.", key)
		} else {
			ui.Info("No issues found.")
		}
		return nil
	}

	table := ui.Table([]string{"Key", "Summary", "Status", "Assignee", "Priority", "Due", "Problems"})
	for _, issue := range issues {
		_ = table.Append([]string{
			output.Cyan(issue.Key),
			truncate(issue.Summary, 50),
			output.StatusColor(issue.Status),
			assigneeName(issue),
			output.PriorityColor(issue.Priority.Name, c.IsLowPriorityWithDeadline(issue, now)),
			dueString(issue.DueDate),
			problemLabels(c.Problems(issue, now)),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(cmd *cobra.Command, key string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := findIssue(cmdContext(cmd), s, key)
	if err != nil {
		return err
	}

	now := time.Now()
	c := classifier()

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.Key), issue.Summary)
	fmt.Fprintf(ui.Out, "  Project:    %s\n", issue.ProjectKey)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Assignee:   %s\n", assigneeName(issue))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(issue.Priority.Name, c.IsLowPriorityWithDeadline(issue, now)))
	if issue.DueDate != nil {
		fmt.Fprintf(ui.Out, "  Due:        %s\n", dueString(issue.DueDate))
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	problems := c.Problems(issue, now)
	if len(problems) > 0 {
		fmt.Fprintf(ui.Out, "  Problems:   %s\n", problemLabels(problems))
	}
	fmt.Fprintf(ui.Out, "  ID:         %s\n", issue.ID)

	for _, fix := range fixHints(issue, problems) {
		ui.Info("%s", fix)
	}
	return nil
}

// fixHints suggests the command that resolves each problem.
func fixHints(issue *models.Issue, problems []triage.Problem) []string {
	var hints []string
	for _, p := range problems {
		switch p {
		case triage.ProblemUnassigned:
			hints = append(hints, fmt.Sprintf("Fix: jpa issue assign %s <account-id|name>", issue.Key))
		case triage.ProblemLowPriorityDeadline:
			opts := models.RaiseOptions()
			names := make([]string, len(opts))
			for i, o := range opts {
				names[i] = o.Name
			}
			hints = append(hints, fmt.Sprintf("Fix: jpa issue priority %s <%s>", issue.Key, strings.Join(names, "|")))
		}
	}
	return hints
}

func issueAssignRun(cmd *cobra.Command, key, who string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	issue, err := findIssue(ctx, s, key)
	if err != nil {
		return err
	}

	users, err := s.ListAssignableUsers(ctx, issue.ProjectKey)
	if err != nil {
		return err
	}
	user, err := matchUser(users, who)
	if err != nil {
		return err
	}
	if !user.Active {
		ui.Warning("%s is inactive; assigning anyway.", user.DisplayName)
	}

	if dryRun {
		ui.DryRunMsg("Would assign %s to %s", issue.Key, user.DisplayName)
		return nil
	}

	if err := s.SetAssignee(ctx, issue.Key, user.AccountID); err != nil {
		return fmt.Errorf("assign %s: %w", issue.Key, err)
	}
	ui.Success("Assigned %s to %s", output.Cyan(issue.Key), user.DisplayName)
	return nil
}

func issuePriorityRun(cmd *cobra.Command, key, name string) error {
	p, ok := models.ParsePriority(name)
	if !ok {
		return fmt.Errorf("unknown priority: %s (want %s)", name, priorityNames())
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	issue, err := findIssue(ctx, s, key)
	if err != nil {
		return err
	}

	if p.Rank() >= issue.Priority.Rank() {
		ui.Warning("%s is not higher than the current priority %s", p.Name, issue.Priority.Name)
	}

	if dryRun {
		ui.DryRunMsg("Would change %s priority: %s -> %s", issue.Key, issue.Priority.Name, p.Name)
		return nil
	}

	if err := s.SetPriority(ctx, issue.Key, p.ID); err != nil {
		return fmt.Errorf("set priority of %s: %w", issue.Key, err)
	}
	ui.Success("Changed %s priority: %s -> %s", output.Cyan(issue.Key), issue.Priority.Name, output.PriorityColor(p.Name, false))
	return nil
}

// findIssue looks an issue up by key in the project its key names.
func findIssue(ctx context.Context, s store.IssueStore, key string) (*models.Issue, error) {
	projectKey, err := projectOfIssue(key)
	if err != nil {
		return nil, err
	}
	issues, err := s.ListIssues(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		if strings.EqualFold(issue.Key, key) {
			return issue, nil
		}
	}
	return nil, fmt.Errorf("issue %s: %w", key, store.ErrNotFound)
}

// projectOfIssue returns the project part of an issue key: SCRUM-12 -> SCRUM.
func projectOfIssue(key string) (string, error) {
	i := strings.LastIndex(key, "-")
	if i <= 0 || i == len(key)-1 {
		return "", fmt.Errorf("invalid issue key: %q", key)
	}
	return strings.ToUpper(key[:i]), nil
}

// matchUser finds a roster member by account ID or case-insensitive display
// name. Ambiguous names are an error.
func matchUser(users []*models.User, who string) (*models.User, error) {
	var matches []*models.User
	for _, u := range users {
		if u.AccountID == who {
			return u, nil
		}
		if strings.EqualFold(u.DisplayName, who) {
			matches = append(matches, u)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("user %s: %w", who, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q matches %d users; use the account ID", who, len(matches))
	}
}

func priorityNames() string {
	names := make([]string, len(models.Priorities))
	for i, p := range models.Priorities {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func assigneeName(issue *models.Issue) string {
	if issue.Assignee == nil {
		return output.Yellow("unassigned")
	}
	return issue.Assignee.DisplayName
}

func dueString(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Format("2006-01-02")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
