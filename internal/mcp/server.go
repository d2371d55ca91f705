package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/health"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

// Server wraps the jpa data layer and exposes it as MCP tools.
type Server struct {
	store          store.IssueStore
	newAllocator   func(dryRun bool) *allocator.Allocator
	classify       triage.Classifier
	scorer         *health.Scorer
	defaultProject string
	version        string
	now            func() time.Time
}

// NewServer creates the MCP server wrapper. newAllocator builds an allocator
// for one pass; defaultProject is used when a tool call names no project.
func NewServer(s store.IssueStore, newAllocator func(dryRun bool) *allocator.Allocator, c triage.Classifier, defaultProject, version string) *Server {
	return &Server{
		store:          s,
		newAllocator:   newAllocator,
		classify:       c,
		scorer:         health.NewScorer(c),
		defaultProject: defaultProject,
		version:        version,
		now:            time.Now,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("jpa", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.teamWorkloadTool())
	srv.AddTool(s.assignIssueTool())
	srv.AddTool(s.raisePriorityTool())
	srv.AddTool(s.autoAssignTool())
	srv.AddTool(s.projectStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

func projectArg() mcp.ToolOption {
	return mcp.WithString("project", mcp.Description("Jira project key, e.g. SCRUM. Defaults to the configured project."))
}

func (s *Server) projectKey(request mcp.CallToolRequest) (string, error) {
	key := request.GetString("project", s.defaultProject)
	if key == "" {
		return "", fmt.Errorf("missing parameter: project (no default project configured)")
	}
	return key, nil
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jpa_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_list_projects",
		mcp.WithDescription("List Jira projects visible to jpa. Returns a JSON array with id, key, name and project_type."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	type projectOut struct {
		ID          string `json:"id"`
		Key         string `json:"key"`
		Name        string `json:"name"`
		ProjectType string `json:"project_type"`
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{ID: p.ID, Key: p.Key, Name: p.Name, ProjectType: p.ProjectTypeKey}
	}
	return jsonResult(out, "projects")
}

// jpa_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_list_issues",
		mcp.WithDescription("List a project's issues, newest first. Each issue has key, summary, status, assignee, priority, due_date and problems. Problems are \"unassigned\" and \"low_priority_deadline\" (Low or Lowest priority due within the deadline window)."),
		projectArg(),
		mcp.WithBoolean("problems_only", mcp.Description("Only return issues with at least one problem")),
	)
	return tool, s.handleListIssues
}

type issueOut struct {
	Key       string   `json:"key"`
	Summary   string   `json:"summary"`
	Status    string   `json:"status"`
	Assignee  string   `json:"assignee,omitempty"`
	AccountID string   `json:"account_id,omitempty"`
	Priority  string   `json:"priority"`
	DueDate   string   `json:"due_date,omitempty"`
	Problems  []string `json:"problems,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.projectKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issues, err := s.store.ListIssues(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	now := s.now()
	if request.GetBool("problems_only", false) {
		issues = s.classify.Filter(issues, now)
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		o := issueOut{
			Key:       issue.Key,
			Summary:   issue.Summary,
			Status:    issue.Status,
			Priority:  issue.Priority.Name,
			CreatedAt: issue.CreatedAt.Format(time.RFC3339),
		}
		if issue.Assignee != nil {
			o.Assignee = issue.Assignee.DisplayName
			o.AccountID = issue.Assignee.AccountID
		}
		if issue.DueDate != nil {
			o.DueDate = issue.DueDate.Format("2006-01-02")
		}
		for _, p := range s.classify.Problems(issue, now) {
			o.Problems = append(o.Problems, string(p))
		}
		out[i] = o
	}
	return jsonResult(out, "issues")
}

// jpa_team_workload
func (s *Server) teamWorkloadTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_team_workload",
		mcp.WithDescription("Show each assignable team member with their assigned issue count, remaining capacity under the auto-assign limit, and availability."),
		projectArg(),
	)
	return tool, s.handleTeamWorkload
}

func (s *Server) handleTeamWorkload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.projectKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issues, users, err := s.load(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type memberOut struct {
		AccountID   string `json:"account_id"`
		DisplayName string `json:"display_name"`
		Active      bool   `json:"active"`
		Assigned    int    `json:"assigned"`
		Remaining   int    `json:"remaining"`
		Available   bool   `json:"available"`
	}

	rows := triage.Workload(issues, users, s.newAllocator(true).Cap())
	out := make([]memberOut, len(rows))
	for i, m := range rows {
		out[i] = memberOut{
			AccountID:   m.User.AccountID,
			DisplayName: m.User.DisplayName,
			Active:      m.User.Active,
			Assigned:    m.Assigned,
			Remaining:   m.Remaining,
			Available:   m.Available,
		}
	}
	return jsonResult(out, "workload")
}

// jpa_assign_issue
func (s *Server) assignIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_assign_issue",
		mcp.WithDescription("Assign an issue to a team member by account ID."),
		mcp.WithString("issue_key", mcp.Required(), mcp.Description("Issue key, e.g. SCRUM-2")),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account ID of the assignee")),
	)
	return tool, s.handleAssignIssue
}

func (s *Server) handleAssignIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueKey, err := request.RequireString("issue_key")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_key"), nil
	}
	accountID, err := request.RequireString("account_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: account_id"), nil
	}

	if err := s.store.SetAssignee(ctx, issueKey, accountID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to assign %s: %v", issueKey, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Assigned %s to %s", issueKey, accountID)), nil
}

// jpa_raise_priority
func (s *Server) raisePriorityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_raise_priority",
		mcp.WithDescription("Change an issue's priority. Usually used to raise a Low or Lowest issue with a close deadline to Medium or High."),
		mcp.WithString("issue_key", mcp.Required(), mcp.Description("Issue key, e.g. SCRUM-4")),
		mcp.WithString("priority", mcp.Required(), mcp.Description("Priority name or id: Highest(1), High(2), Medium(3), Low(4), Lowest(5)")),
	)
	return tool, s.handleRaisePriority
}

func (s *Server) handleRaisePriority(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueKey, err := request.RequireString("issue_key")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_key"), nil
	}
	raw, err := request.RequireString("priority")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: priority"), nil
	}
	p, ok := models.ParsePriority(raw)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority: %s", raw)), nil
	}

	if err := s.store.SetPriority(ctx, issueKey, p.ID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set priority of %s: %v", issueKey, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Set %s priority to %s", issueKey, p.Name)), nil
}

// jpa_auto_assign
func (s *Server) autoAssignTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_auto_assign",
		mcp.WithDescription("Distribute the project's unassigned issues across active team members, oldest issue first, never giving anyone more than the per-user limit of assigned issues. Returns a summary and one result per issue."),
		projectArg(),
		mcp.WithBoolean("dry_run", mcp.Description("Plan the assignments without applying them")),
	)
	return tool, s.handleAutoAssign
}

func (s *Server) handleAutoAssign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.projectKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a := s.newAllocator(request.GetBool("dry_run", false))
	res, err := a.AutoAssign(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("auto-assign failed: %v", err)), nil
	}
	return jsonResult(res, "auto-assign result")
}

// jpa_project_stats
func (s *Server) projectStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jpa_project_stats",
		mcp.WithDescription("Get project statistics: total, unassigned and problematic issue counts, team size, available members, whether auto-assign can run, and a 0-100 triage health score."),
		projectArg(),
	)
	return tool, s.handleProjectStats
}

func (s *Server) handleProjectStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.projectKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issues, users, err := s.load(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	now := s.now()
	limit := s.newAllocator(true).Cap()
	st := s.classify.Summarize(issues, users, now, limit)
	h := s.scorer.Score(&health.ProjectMetadata{Now: now, Cap: limit}, issues, users)

	out := map[string]any{
		"project":           key,
		"total_issues":      st.TotalIssues,
		"unassigned":        st.Unassigned,
		"problematic":       st.Problematic,
		"low_priority_due":  st.LowPriorityDue,
		"members":           st.Members,
		"available_members": st.AvailableMembers,
		"can_auto_assign":   st.CanAutoAssign,
		"cap":               limit,
		"health":            h.Total,
	}
	return jsonResult(out, "stats")
}

func (s *Server) load(ctx context.Context, key string) ([]*models.Issue, []*models.User, error) {
	issues, err := s.store.ListIssues(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list issues: %w", err)
	}
	users, err := s.store.ListAssignableUsers(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list users: %w", err)
	}
	return issues, users, nil
}
