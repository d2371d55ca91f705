package store

import (
	"context"
	"errors"

	"github.com/joescharf/jpa/internal/models"
)

// ErrNotFound is returned when an issue, user or project does not exist.
var ErrNotFound = errors.New("not found")

// IssueStore is the issue-tracking backend jpa reads from and mutates.
// Implementations: the Jira REST client, the in-memory fake, and the SQLite
// cache. The backend is selected once at startup and injected.
type IssueStore interface {
	// ListProjects returns the projects visible to the caller.
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// ListIssues returns every issue in the project.
	ListIssues(ctx context.Context, projectKey string) ([]*models.Issue, error)

	// ListUnassignedIssues returns the project's issues with no assignee, in
	// creation order.
	ListUnassignedIssues(ctx context.Context, projectKey string) ([]*models.Issue, error)

	// ListAssignableUsers returns the users assignable to the project.
	ListAssignableUsers(ctx context.Context, projectKey string) ([]*models.User, error)

	// SetAssignee sets an issue's assignee. Setting the same assignee twice is
	// not an error.
	SetAssignee(ctx context.Context, issueKey, accountID string) error

	// SetPriority changes an issue's priority.
	SetPriority(ctx context.Context, issueKey, priorityID string) error
}

// Snapshot is a point-in-time copy of one project's issues and roster.
type Snapshot struct {
	Project *models.Project
	Issues  []*models.Issue
	Users   []*models.User
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Issues: cloneIssues(s.Issues),
		Users:  cloneUsers(s.Users),
	}
	if s.Project != nil {
		p := *s.Project
		out.Project = &p
	}
	return out
}

func cloneIssues(in []*models.Issue) []*models.Issue {
	if in == nil {
		return nil
	}
	out := make([]*models.Issue, len(in))
	for i, issue := range in {
		out[i] = issue.Clone()
	}
	return out
}

func cloneUsers(in []*models.User) []*models.User {
	if in == nil {
		return nil
	}
	out := make([]*models.User, len(in))
	for i, u := range in {
		c := *u
		out[i] = &c
	}
	return out
}
