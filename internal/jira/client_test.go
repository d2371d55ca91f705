package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

func newTestClient(t *testing.T, h http.Handler, pageSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", Email: "me@example.com", APIToken: "secret", PageSize: pageSize})
	require.NoError(t, err)
	return c
}

func issueJSON(n int, assignee string) map[string]any {
	fields := map[string]any{
		"summary":  fmt.Sprintf("issue %d", n),
		"status":   map[string]any{"name": "To Do"},
		"priority": map[string]any{"id": "4", "name": "Low"},
		"duedate":  "2025-03-14",
		"created":  "2025-03-01T09:00:00.000+0000",
		"updated":  "2025-03-02T10:30:00.000+0100",
	}
	if assignee != "" {
		fields["assignee"] = map[string]any{"accountId": assignee, "displayName": "User " + assignee, "emailAddress": assignee + "@example.com", "active": true}
	}
	return map[string]any{"id": strconv.Itoa(10000 + n), "key": fmt.Sprintf("TEST-%d", n), "fields": fields}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "https://example.atlassian.net"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, c.pageSize)
}

func TestListIssues_Paginates(t *testing.T) {
	var requests []searchRequest
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "secret", pass)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		var page []map[string]any
		switch req.StartAt {
		case 0:
			page = []map[string]any{issueJSON(3, "a"), issueJSON(2, "")}
		case 2:
			page = []map[string]any{issueJSON(1, "b")}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"startAt": req.StartAt, "maxResults": req.MaxResults, "total": 3, "issues": page})
	})

	c := newTestClient(t, h, 2)
	issues, err := c.ListIssues(context.Background(), "TEST")
	require.NoError(t, err)
	require.Len(t, issues, 3)
	require.Len(t, requests, 2)
	assert.Equal(t, `project = "TEST" ORDER BY created DESC`, requests[0].JQL)
	assert.Equal(t, 2, requests[0].MaxResults)
	assert.Contains(t, requests[0].Fields, "duedate")

	first := issues[0]
	assert.Equal(t, "TEST-3", first.Key)
	assert.Equal(t, "TEST", first.ProjectKey)
	assert.Equal(t, "To Do", first.Status)
	assert.Equal(t, "a", first.AssigneeID())
	assert.Equal(t, "a@example.com", first.Assignee.Email)
	assert.Equal(t, models.PriorityLow, first.Priority.Name)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, "2025-03-14", first.DueDate.Format(dateLayout))
	assert.Equal(t, 9, first.CreatedAt.Hour())
	assert.Equal(t, 9, first.UpdatedAt.Hour(), "timestamps are normalized to UTC")

	assert.Nil(t, issues[1].Assignee)
}

func TestListUnassignedIssues_JQL(t *testing.T) {
	var jql string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		jql = req.JQL
		_ = json.NewEncoder(w).Encode(map[string]any{"total": 1, "issues": []any{issueJSON(1, "")}})
	})

	c := newTestClient(t, h, 50)
	issues, err := c.ListUnassignedIssues(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Len(t, issues, 1)
	assert.Equal(t, `project = "TEST" AND assignee is EMPTY ORDER BY created ASC`, jql)
}

func TestListAssignableUsers_Paginates(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/user/assignable/search", r.URL.Path)
		assert.Equal(t, "TEST", r.URL.Query().Get("project"))

		var page []userDTO
		switch r.URL.Query().Get("startAt") {
		case "0":
			page = []userDTO{{AccountID: "a", DisplayName: "A", Active: true}, {AccountID: "b", DisplayName: "B", Active: false}}
		case "2":
			page = []userDTO{{AccountID: "c", DisplayName: "C", Active: true}}
		}
		_ = json.NewEncoder(w).Encode(page)
	})

	c := newTestClient(t, h, 2)
	users, err := c.ListAssignableUsers(context.Background(), "TEST")
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "a", users[0].AccountID)
	assert.False(t, users[1].Active)
	assert.Equal(t, "c", users[2].AccountID)
}

func TestListProjects(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/project/search", r.URL.Path)
		_ = json.NewEncoder(w).Encode(projectPage{
			Total:  2,
			IsLast: true,
			Values: []projectDTO{
				{ID: "10000", Key: "SCRUM", Name: "Scrum Project", ProjectTypeKey: "software"},
				{ID: "10002", Key: "SUPPORT", Name: "Support Desk", ProjectTypeKey: "service_desk"},
			},
		})
	})

	c := newTestClient(t, h, 50)
	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "SUPPORT", projects[1].Key)
	assert.Equal(t, "service_desk", projects[1].ProjectTypeKey)
}

func TestSetAssignee(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/3/issue/TEST-1/assignee", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"accountId":"a"}`, string(b))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, h, 50)
	require.NoError(t, c.SetAssignee(context.Background(), "TEST-1", "a"))
}

func TestSetPriority(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/3/issue/TEST-1", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"fields":{"priority":{"id":"2"}}}`, string(b))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, h, 50)
	require.NoError(t, c.SetPriority(context.Background(), "TEST-1", "2"))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error messages", 400, `{"errorMessages":["bad request"],"errors":{"assignee":"cannot be assigned"}}`, "HTTP 400 Bad Request on /rest/api/3/issue/TEST-1/assignee: bad request; assignee: cannot be assigned"},
		{"message field", 401, `{"message":"Client must be authenticated"}`, "HTTP 401 Unauthorized on /rest/api/3/issue/TEST-1/assignee: Client must be authenticated"},
		{"plain body", 502, "upstream down", "HTTP 502 Bad Gateway on /rest/api/3/issue/TEST-1/assignee: upstream down"},
		{"empty body", 500, "", "HTTP 500 Internal Server Error on /rest/api/3/issue/TEST-1/assignee: no details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			c := newTestClient(t, h, 50)
			err := c.SetAssignee(context.Background(), "TEST-1", "a")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestNotFoundMapsToStoreError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errorMessages":["Issue does not exist or you do not have permission to see it."]}`)
	})
	c := newTestClient(t, h, 50)

	err := c.SetPriority(context.Background(), "NOPE-1", "3")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.ListIssues(context.Background(), "NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "list issues: HTTP 404 Not Found on /rest/api/3/search")
}

func TestCancelledContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, h, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.SetAssignee(ctx, "TEST-1", "a")
	assert.ErrorIs(t, err, context.Canceled)
}
