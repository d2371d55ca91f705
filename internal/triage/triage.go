// Package triage classifies issues that need attention and summarizes a
// project's assignment state. Every function is pure and recomputed on
// demand from the issues and roster it is given.
package triage

import (
	"time"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/models"
)

// DefaultDeadlineWindow is how close a due date must be for a low-priority
// issue to count as problematic.
const DefaultDeadlineWindow = 7 * 24 * time.Hour

// Problem is a reason an issue needs attention.
type Problem string

const (
	ProblemUnassigned          Problem = "unassigned"
	ProblemLowPriorityDeadline Problem = "low_priority_deadline"
)

// Classifier applies the problem rules with a fixed deadline window.
type Classifier struct {
	Window time.Duration
}

// NewClassifier returns a Classifier. A non-positive window uses
// DefaultDeadlineWindow.
func NewClassifier(window time.Duration) Classifier {
	if window <= 0 {
		window = DefaultDeadlineWindow
	}
	return Classifier{Window: window}
}

// Default is the classifier with the standard seven day window.
var Default = NewClassifier(DefaultDeadlineWindow)

// IsUnassigned reports whether the issue has no assignee.
func IsUnassigned(issue *models.Issue) bool {
	return issue.Assignee == nil
}

// IsLowPriorityWithDeadline reports whether a Low or Lowest issue is due
// strictly before now plus the window. Overdue issues qualify.
func (c Classifier) IsLowPriorityWithDeadline(issue *models.Issue, now time.Time) bool {
	if issue.DueDate == nil || !issue.Priority.IsLow() {
		return false
	}
	return issue.DueDate.Before(now.Add(c.Window))
}

// IsProblematic reports whether any problem rule holds.
func (c Classifier) IsProblematic(issue *models.Issue, now time.Time) bool {
	return IsUnassigned(issue) || c.IsLowPriorityWithDeadline(issue, now)
}

// Problems lists every rule the issue violates. An issue with more than one
// problem needs several fixes.
func (c Classifier) Problems(issue *models.Issue, now time.Time) []Problem {
	var out []Problem
	if IsUnassigned(issue) {
		out = append(out, ProblemUnassigned)
	}
	if c.IsLowPriorityWithDeadline(issue, now) {
		out = append(out, ProblemLowPriorityDeadline)
	}
	return out
}

// Filter returns the problematic issues in input order.
func (c Classifier) Filter(issues []*models.Issue, now time.Time) []*models.Issue {
	var out []*models.Issue
	for _, issue := range issues {
		if c.IsProblematic(issue, now) {
			out = append(out, issue)
		}
	}
	return out
}

// IsLowPriorityWithDeadline applies the default window.
func IsLowPriorityWithDeadline(issue *models.Issue, now time.Time) bool {
	return Default.IsLowPriorityWithDeadline(issue, now)
}

// IsProblematic applies the default window.
func IsProblematic(issue *models.Issue, now time.Time) bool {
	return Default.IsProblematic(issue, now)
}

// Filter applies the default window.
func Filter(issues []*models.Issue, now time.Time) []*models.Issue {
	return Default.Filter(issues, now)
}

// Stats is the per-project statistics panel.
type Stats struct {
	TotalIssues      int  `json:"totalIssues"`
	Unassigned       int  `json:"unassigned"`
	Problematic      int  `json:"problematic"`
	LowPriorityDue   int  `json:"lowPriorityDue"`
	Members          int  `json:"members"`
	AvailableMembers int  `json:"availableMembers"`
	CanAutoAssign    bool `json:"canAutoAssign"`
}

// Summarize computes Stats. Available members are those the eligibility
// resolver would consider under cap.
func (c Classifier) Summarize(issues []*models.Issue, users []*models.User, now time.Time, cap int) Stats {
	st := Stats{TotalIssues: len(issues), Members: len(users)}
	for _, issue := range issues {
		if IsUnassigned(issue) {
			st.Unassigned++
		}
		if c.IsLowPriorityWithDeadline(issue, now) {
			st.LowPriorityDue++
		}
		if c.IsProblematic(issue, now) {
			st.Problematic++
		}
	}
	st.AvailableMembers = len(allocator.ResolveEligibleUsers(issues, users, cap))
	st.CanAutoAssign = st.Unassigned > 0 && st.AvailableMembers > 0
	return st
}

// MemberLoad is one row of the team workload view.
type MemberLoad struct {
	User      *models.User `json:"user"`
	Assigned  int          `json:"assigned"`
	Remaining int          `json:"remaining"`
	Available bool         `json:"available"`
}

// Workload returns a row for every roster member, in roster order. Inactive
// members are listed but never available.
func Workload(issues []*models.Issue, users []*models.User, cap int) []MemberLoad {
	counts := allocator.CountAssigned(issues)
	out := make([]MemberLoad, 0, len(users))
	for _, u := range users {
		assigned := counts[u.AccountID]
		remaining := allocator.Remaining(cap, assigned)
		out = append(out, MemberLoad{
			User:      u,
			Assigned:  assigned,
			Remaining: remaining,
			Available: u.Active && remaining > 0,
		})
	}
	return out
}
