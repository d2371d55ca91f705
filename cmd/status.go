package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/health"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/output"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show project statistics and health",
	Long: `Show the statistics panel and health score for one project, or a summary
table of every visible project with --all.

Without arguments, uses the project from --project or the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			viper.Set("project", args[0])
		}
		if statusAll {
			return statusOverviewRun(cmd.Context())
		}
		return statusRun(cmd)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Summarize every visible project")
	rootCmd.AddCommand(statusCmd)
}

// statusRun prints the statistics panel for the selected project.
func statusRun(cmd *cobra.Command) error {
	key, err := requireProject()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	issues, users, err := loadProject(ctx, s, key)
	if err != nil {
		return err
	}

	now := time.Now()
	c := classifier()
	st := c.Summarize(issues, users, now, assignCap())
	h := health.NewScorer(c).Score(&health.ProjectMetadata{
		Now:      now,
		LastSync: lastSync(ctx, key),
		Cap:      assignCap(),
	}, issues, users)

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(key))
	fmt.Fprintf(ui.Out, "  Issues:      %d\n", st.TotalIssues)
	fmt.Fprintf(ui.Out, "  Unassigned:  %s\n", countColor(st.Unassigned))
	fmt.Fprintf(ui.Out, "  Problematic: %s\n", countColor(st.Problematic))
	fmt.Fprintf(ui.Out, "  Low & due:   %s\n", countColor(st.LowPriorityDue))
	fmt.Fprintf(ui.Out, "  Team:        %d/%d available (limit %d)\n", st.AvailableMembers, st.Members, assignCap())
	if st.CanAutoAssign {
		fmt.Fprintf(ui.Out, "  Auto-assign: %s\n", output.Green("ready"))
	} else {
		fmt.Fprintf(ui.Out, "  Auto-assign: %s\n", "-")
	}
	fmt.Fprintln(ui.Out)

	fmt.Fprintf(ui.Out, "  Health:      %s/100\n", output.HealthColor(h.Total))
	fmt.Fprintf(ui.Out, "    Coverage:      %d/35\n", h.Coverage)
	fmt.Fprintf(ui.Out, "    Deadline risk: %d/25\n", h.DeadlineRisk)
	fmt.Fprintf(ui.Out, "    Team capacity: %d/25\n", h.TeamCapacity)
	fmt.Fprintf(ui.Out, "    Freshness:     %d/15\n", h.Freshness)

	if st.CanAutoAssign {
		fmt.Fprintln(ui.Out)
		ui.Info("Run 'jpa auto-assign' to distribute %d unassigned issue(s).", st.Unassigned)
	}
	return nil
}

func statusOverviewRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		ui.Info("No projects visible. Check jira.base_url and your credentials.")
		return nil
	}

	c := classifier()
	scorer := health.NewScorer(c)
	now := time.Now()

	table := ui.Table([]string{"Key", "Name", "Issues", "Unassigned", "Problematic", "Team", "Health"})
	for _, p := range projects {
		issues, users, err := loadProject(ctx, s, p.Key)
		if err != nil {
			ui.Warning("%s: %v", p.Key, err)
			continue
		}
		st := c.Summarize(issues, users, now, assignCap())
		h := scorer.Score(&health.ProjectMetadata{Now: now, LastSync: lastSync(ctx, p.Key), Cap: assignCap()}, issues, users)

		_ = table.Append([]string{
			output.Cyan(p.Key),
			p.Name,
			fmt.Sprintf("%d", st.TotalIssues),
			countColor(st.Unassigned),
			countColor(st.Problematic),
			fmt.Sprintf("%d/%d", st.AvailableMembers, st.Members),
			output.HealthColor(h.Total),
		})
	}
	_ = table.Render()
	return nil
}

// loadProject reads a project's issues and roster concurrently.
func loadProject(ctx context.Context, s store.IssueStore, key string) ([]*models.Issue, []*models.User, error) {
	var issues []*models.Issue
	var users []*models.User

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		issues, err = s.ListIssues(ctx, key)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		users, err = s.ListAssignableUsers(ctx, key)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return issues, users, nil
}

// lastSync reports when the project was cached, or zero when the data is live.
func lastSync(ctx context.Context, key string) time.Time {
	if viper.GetString("store.backend") != backendSQLite {
		return time.Time{}
	}
	c, err := getCache()
	if err != nil {
		return time.Time{}
	}
	t, ok, err := c.LastSync(ctx, key)
	if err != nil || !ok {
		return time.Time{}
	}
	return t
}

// problemLabels renders an issue's problems as a short comma list.
func problemLabels(ps []triage.Problem) string {
	if len(ps) == 0 {
		return ""
	}
	labels := make([]string, len(ps))
	for i, p := range ps {
		switch p {
		case triage.ProblemUnassigned:
			labels[i] = "unassigned"
		case triage.ProblemLowPriorityDeadline:
			labels[i] = "low priority, due soon"
		default:
			labels[i] = string(p)
		}
	}
	return output.Red(strings.Join(labels, ", "))
}

func countColor(n int) string {
	if n == 0 {
		return output.Green("0")
	}
	return output.Yellow(fmt.Sprintf("%d", n))
}

func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
