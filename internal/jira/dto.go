package jira

import (
	"time"

	"github.com/joescharf/jpa/internal/models"
)

// Jira Cloud timestamp and date layouts.
const (
	timestampLayout = "2006-01-02T15:04:05.000-0700"
	dateLayout      = "2006-01-02"
)

var searchFields = []string{"summary", "status", "assignee", "priority", "duedate", "created", "updated", "project"}

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []issueDTO `json:"issues"`
}

type issueDTO struct {
	ID     string    `json:"id"`
	Key    string    `json:"key"`
	Fields fieldsDTO `json:"fields"`
}

type fieldsDTO struct {
	Summary  string       `json:"summary"`
	Status   *namedDTO    `json:"status"`
	Assignee *userDTO     `json:"assignee"`
	Priority *priorityDTO `json:"priority"`
	DueDate  string       `json:"duedate"`
	Created  string       `json:"created"`
	Updated  string       `json:"updated"`
	Project  *projectDTO  `json:"project"`
}

type namedDTO struct {
	Name string `json:"name"`
}

type priorityDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type userDTO struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

type projectDTO struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	ProjectTypeKey string `json:"projectTypeKey"`
}

type projectPage struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	IsLast     bool         `json:"isLast"`
	Values     []projectDTO `json:"values"`
}

type assigneeRequest struct {
	AccountID string `json:"accountId"`
}

type editRequest struct {
	Fields editFields `json:"fields"`
}

type editFields struct {
	Priority *priorityRef `json:"priority,omitempty"`
}

type priorityRef struct {
	ID string `json:"id"`
}

func (u *userDTO) toModel() *models.User {
	return &models.User{
		AccountID:   u.AccountID,
		DisplayName: u.DisplayName,
		Email:       u.EmailAddress,
		Active:      u.Active,
	}
}

func (p *projectDTO) toModel() *models.Project {
	return &models.Project{ID: p.ID, Key: p.Key, Name: p.Name, ProjectTypeKey: p.ProjectTypeKey}
}

// toModel converts a search hit. projectKey is used when the project field
// was not returned.
func (d *issueDTO) toModel(projectKey string) *models.Issue {
	f := d.Fields
	issue := &models.Issue{
		ID:         d.ID,
		Key:        d.Key,
		ProjectKey: projectKey,
		Summary:    f.Summary,
		Priority:   models.DefaultPriority,
		CreatedAt:  parseTimestamp(f.Created),
		UpdatedAt:  parseTimestamp(f.Updated),
	}
	if f.Project != nil && f.Project.Key != "" {
		issue.ProjectKey = f.Project.Key
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
	}
	if f.Assignee != nil && f.Assignee.AccountID != "" {
		issue.Assignee = f.Assignee.toModel()
	}
	if f.Priority != nil {
		if p, ok := models.PriorityByID(f.Priority.ID); ok {
			issue.Priority = p
		} else if f.Priority.ID != "" {
			issue.Priority = models.Priority{ID: f.Priority.ID, Name: f.Priority.Name}
		}
	}
	if f.DueDate != "" {
		if t, err := time.Parse(dateLayout, f.DueDate); err == nil {
			issue.DueDate = &t
		}
	}
	return issue
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
