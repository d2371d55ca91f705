package models

// Project represents a Jira project.
type Project struct {
	ID             string
	Key            string
	Name           string
	ProjectTypeKey string
}
