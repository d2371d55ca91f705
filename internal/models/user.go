package models

// User is an assignable member of a project.
type User struct {
	AccountID   string
	DisplayName string
	Email       string
	Active      bool
}
