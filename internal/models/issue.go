package models

import "time"

// Issue is a Jira issue as seen by jpa. Issues are owned by the issue store;
// jpa only reads them and requests mutations.
type Issue struct {
	ID         string
	Key        string // human-readable key, e.g. SCRUM-2
	ProjectKey string
	Summary    string
	Status     string
	Assignee   *User // nil when unassigned
	Priority   Priority
	DueDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AssigneeID returns the assignee's account ID, or "" when unassigned.
func (i *Issue) AssigneeID() string {
	if i.Assignee == nil {
		return ""
	}
	return i.Assignee.AccountID
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	if i.Assignee != nil {
		a := *i.Assignee
		c.Assignee = &a
	}
	if i.DueDate != nil {
		d := *i.DueDate
		c.DueDate = &d
	}
	return &c
}
