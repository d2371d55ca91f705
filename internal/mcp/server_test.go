package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore(store.SampleSnapshot(testNow))
	newAlloc := func(dryRun bool) *allocator.Allocator {
		return allocator.New(ms, allocator.WithDryRun(dryRun))
	}
	srv := NewServer(ms, newAlloc, triage.Default, "SCRUM", "test")
	srv.now = func() time.Time { return testNow }
	require.NotNil(t, srv)
	return srv, ms
}

func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(context.Background(), reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{
		"jpa_list_projects", "jpa_list_issues", "jpa_team_workload",
		"jpa_assign_issue", "jpa_raise_priority", "jpa_auto_assign", "jpa_project_stats",
	} {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

func TestListProjects(t *testing.T) {
	srv, _ := newTestServer(t)
	result, err := srv.handleListProjects(context.Background(), callToolReq("jpa_list_projects", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]string
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "SCRUM", out[0]["key"])
	assert.Equal(t, "software", out[0]["project_type"])
}

func TestListProjects_Error(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.ListErr = errors.New("offline")
	result, err := srv.handleListProjects(context.Background(), callToolReq("jpa_list_projects", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "offline")
}

func TestListIssues(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListIssues(ctx, callToolReq("jpa_list_issues", nil))
	require.NoError(t, err)
	var all []issueOut
	resultJSON(t, result, &all)
	assert.Len(t, all, 6)
	assert.Equal(t, "SCRUM-6", all[0].Key, "newest first")

	result, err = srv.handleListIssues(ctx, callToolReq("jpa_list_issues", map[string]any{"project": "SCRUM", "problems_only": true}))
	require.NoError(t, err)
	var problems []issueOut
	resultJSON(t, result, &problems)
	assert.Len(t, problems, 4)
	for _, p := range problems {
		assert.NotEmpty(t, p.Problems, p.Key)
	}
}

func TestListIssues_UnknownProject(t *testing.T) {
	srv, _ := newTestServer(t)
	result, err := srv.handleListIssues(context.Background(), callToolReq("jpa_list_issues", map[string]any{"project": "NOPE"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestListIssues_NoDefaultProject(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.defaultProject = ""
	result, err := srv.handleListIssues(context.Background(), callToolReq("jpa_list_issues", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "missing parameter: project")
}

func TestTeamWorkload(t *testing.T) {
	srv, _ := newTestServer(t)
	result, err := srv.handleTeamWorkload(context.Background(), callToolReq("jpa_team_workload", nil))
	require.NoError(t, err)

	var rows []map[string]any
	resultJSON(t, result, &rows)
	require.Len(t, rows, 4)
	assert.Equal(t, "user1", rows[0]["account_id"])
	assert.Equal(t, float64(1), rows[0]["assigned"])
	assert.Equal(t, false, rows[3]["available"])
}

func TestAssignIssue(t *testing.T) {
	srv, ms := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAssignIssue(ctx, callToolReq("jpa_assign_issue", map[string]any{"issue_key": "SCRUM-2", "account_id": "user3"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Assigned SCRUM-2 to user3")
	require.Len(t, ms.Assignments, 1)

	result, err = srv.handleAssignIssue(ctx, callToolReq("jpa_assign_issue", map[string]any{"issue_key": "SCRUM-2"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleAssignIssue(ctx, callToolReq("jpa_assign_issue", map[string]any{"issue_key": "SCRUM-2", "account_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRaisePriority(t *testing.T) {
	srv, ms := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleRaisePriority(ctx, callToolReq("jpa_raise_priority", map[string]any{"issue_key": "SCRUM-4", "priority": "High"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Set SCRUM-4 priority to High")

	snap, _ := ms.Snapshot("SCRUM")
	for _, i := range snap.Issues {
		if i.Key == "SCRUM-4" {
			assert.Equal(t, "2", i.Priority.ID)
		}
	}

	result, err = srv.handleRaisePriority(ctx, callToolReq("jpa_raise_priority", map[string]any{"issue_key": "SCRUM-4", "priority": "Urgent"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAutoAssign(t *testing.T) {
	srv, ms := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAutoAssign(ctx, callToolReq("jpa_auto_assign", map[string]any{"dry_run": true}))
	require.NoError(t, err)
	var planned models.AutoAssignResult
	resultJSON(t, result, &planned)
	assert.Equal(t, "3 of 3 assigned", planned.Summary)
	assert.Empty(t, ms.Assignments, "dry run must not assign")

	result, err = srv.handleAutoAssign(ctx, callToolReq("jpa_auto_assign", nil))
	require.NoError(t, err)
	var applied models.AutoAssignResult
	resultJSON(t, result, &applied)
	assert.True(t, applied.Success)
	assert.Len(t, ms.Assignments, 3)
}

func TestAutoAssign_FetchError(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.UsersErr = errors.New("timeout")
	result, err := srv.handleAutoAssign(context.Background(), callToolReq("jpa_auto_assign", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "timeout")
}

func TestProjectStats(t *testing.T) {
	srv, _ := newTestServer(t)
	result, err := srv.handleProjectStats(context.Background(), callToolReq("jpa_project_stats", nil))
	require.NoError(t, err)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "SCRUM", out["project"])
	assert.Equal(t, float64(6), out["total_issues"])
	assert.Equal(t, float64(3), out["unassigned"])
	assert.Equal(t, float64(4), out["problematic"])
	assert.Equal(t, true, out["can_auto_assign"])
	assert.Equal(t, float64(2), out["cap"])
}
