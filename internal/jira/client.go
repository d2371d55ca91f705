// Package jira is a Jira Cloud REST v3 client implementing store.IssueStore.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

const (
	// DefaultPageSize is the maxResults sent with paginated requests.
	DefaultPageSize = 50
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 64 << 10
)

// Config holds the connection settings for a Jira site.
type Config struct {
	BaseURL  string // e.g. https://example.atlassian.net
	Email    string
	APIToken string
	PageSize int
}

// Client talks to Jira Cloud over HTTPS using basic auth (email + API token).
type Client struct {
	baseURL    string
	email      string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ store.IssueStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Jira client. BaseURL is required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("jira base URL not configured (set jira.base_url)")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse jira base URL: %w", err)
	}

	c := &Client{
		baseURL:    base,
		email:      cfg.Email,
		token:      cfg.APIToken,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.DiscardHandler),
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListProjects pages through /rest/api/3/project/search.
func (c *Client) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.pageSize))

		var page projectPage
		if err := c.do(ctx, http.MethodGet, "/rest/api/3/project/search", q, nil, &page); err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		for i := range page.Values {
			projects = append(projects, page.Values[i].toModel())
		}

		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || (page.Total > 0 && startAt >= page.Total) {
			return projects, nil
		}
	}
}

// ListIssues returns every issue of the project, newest first.
func (c *Client) ListIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	issues, err := c.search(ctx, projectKey, fmt.Sprintf("project = %q ORDER BY created DESC", projectKey))
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// ListUnassignedIssues returns the unassigned issues of the project in
// creation order.
func (c *Client) ListUnassignedIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	issues, err := c.search(ctx, projectKey, fmt.Sprintf("project = %q AND assignee is EMPTY ORDER BY created ASC", projectKey))
	if err != nil {
		return nil, fmt.Errorf("list unassigned issues: %w", err)
	}
	return issues, nil
}

func (c *Client) search(ctx context.Context, projectKey, jql string) ([]*models.Issue, error) {
	var issues []*models.Issue
	for startAt := 0; ; {
		req := searchRequest{JQL: jql, StartAt: startAt, MaxResults: c.pageSize, Fields: searchFields}
		var resp searchResponse
		if err := c.do(ctx, http.MethodPost, "/rest/api/3/search", nil, req, &resp); err != nil {
			return nil, err
		}
		for i := range resp.Issues {
			issues = append(issues, resp.Issues[i].toModel(projectKey))
		}

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			return issues, nil
		}
	}
}

// ListAssignableUsers pages through the assignable-user search for the project.
func (c *Client) ListAssignableUsers(ctx context.Context, projectKey string) ([]*models.User, error) {
	var users []*models.User
	seen := make(map[string]bool)
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("project", projectKey)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.pageSize))

		var page []userDTO
		if err := c.do(ctx, http.MethodGet, "/rest/api/3/user/assignable/search", q, nil, &page); err != nil {
			return nil, fmt.Errorf("list assignable users: %w", err)
		}
		for i := range page {
			if seen[page[i].AccountID] {
				continue
			}
			seen[page[i].AccountID] = true
			users = append(users, page[i].toModel())
		}

		startAt += len(page)
		if len(page) < c.pageSize {
			return users, nil
		}
	}
}

// SetAssignee assigns the issue to accountID.
func (c *Client) SetAssignee(ctx context.Context, issueKey, accountID string) error {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/assignee"
	if err := c.do(ctx, http.MethodPut, path, nil, assigneeRequest{AccountID: accountID}, nil); err != nil {
		return err
	}
	return nil
}

// SetPriority edits the issue's priority field.
func (c *Client) SetPriority(ctx context.Context, issueKey, priorityID string) error {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey)
	body := editRequest{Fields: editFields{Priority: &priorityRef{ID: priorityID}}}
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return err
	}
	return nil
}

// do sends one request. A nil in skips the body; a nil out discards the
// response. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := path
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.email != "" || c.token != "" {
		req.SetBasicAuth(c.email, c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("jira request", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, endpoint, b)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
