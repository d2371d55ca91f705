package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/jpa/internal/models"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func prio(name string) models.Priority {
	p, _ := models.PriorityByName(name)
	return p
}

func due(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func assigned(id string) *models.User {
	return &models.User{AccountID: id, DisplayName: id, Active: true}
}

func TestIsLowPriorityWithDeadline(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name     string
		priority string
		due      *time.Time
		want     bool
	}{
		{"low due in 3 days", models.PriorityLow, due(3 * day), true},
		{"lowest due tomorrow", models.PriorityLowest, due(day), true},
		{"low overdue", models.PriorityLow, due(-2 * day), true},
		{"low due exactly at window", models.PriorityLow, due(7 * day), false},
		{"low due just inside window", models.PriorityLow, due(7*day - time.Second), true},
		{"low due in 10 days", models.PriorityLow, due(10 * day), false},
		{"low without due date", models.PriorityLow, nil, false},
		{"medium due tomorrow", models.PriorityMedium, due(day), false},
		{"highest due tomorrow", models.PriorityHighest, due(day), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := &models.Issue{Key: "T-1", Priority: prio(tt.priority), DueDate: tt.due, Assignee: assigned("a")}
			assert.Equal(t, tt.want, IsLowPriorityWithDeadline(issue, now))
			assert.Equal(t, tt.want, IsProblematic(issue, now))
		})
	}
}

func TestProblems(t *testing.T) {
	both := &models.Issue{Key: "T-1", Priority: prio(models.PriorityLowest), DueDate: due(time.Hour)}
	assert.Equal(t, []Problem{ProblemUnassigned, ProblemLowPriorityDeadline}, Default.Problems(both, now))

	onlyUnassigned := &models.Issue{Key: "T-2", Priority: models.DefaultPriority}
	assert.Equal(t, []Problem{ProblemUnassigned}, Default.Problems(onlyUnassigned, now))

	fine := &models.Issue{Key: "T-3", Priority: models.DefaultPriority, Assignee: assigned("a")}
	assert.Empty(t, Default.Problems(fine, now))
	assert.False(t, IsProblematic(fine, now))
}

func TestClassifier_CustomWindow(t *testing.T) {
	c := NewClassifier(24 * time.Hour)
	issue := &models.Issue{Priority: prio(models.PriorityLow), DueDate: due(48 * time.Hour), Assignee: assigned("a")}
	assert.False(t, c.IsLowPriorityWithDeadline(issue, now))
	assert.True(t, Default.IsLowPriorityWithDeadline(issue, now))

	assert.Equal(t, DefaultDeadlineWindow, NewClassifier(0).Window)
}

func TestFilter_KeepsOrder(t *testing.T) {
	issues := []*models.Issue{
		{Key: "T-1", Priority: models.DefaultPriority},
		{Key: "T-2", Priority: models.DefaultPriority, Assignee: assigned("a")},
		{Key: "T-3", Priority: prio(models.PriorityLow), DueDate: due(time.Hour), Assignee: assigned("a")},
		{Key: "T-4", Priority: models.DefaultPriority},
	}
	got := Filter(issues, now)
	require.Len(t, got, 3)
	assert.Equal(t, "T-1", got[0].Key)
	assert.Equal(t, "T-3", got[1].Key)
	assert.Equal(t, "T-4", got[2].Key)

	assert.Empty(t, Filter(nil, now))
}

func TestSummarize(t *testing.T) {
	users := []*models.User{assigned("a"), assigned("b"), {AccountID: "c", Active: false}}
	issues := []*models.Issue{
		{Key: "T-1", Assignee: assigned("a"), Priority: models.DefaultPriority},
		{Key: "T-2", Assignee: assigned("a"), Priority: prio(models.PriorityLow), DueDate: due(time.Hour)},
		{Key: "T-3", Priority: models.DefaultPriority},
		{Key: "T-4", Assignee: assigned("b"), Priority: models.DefaultPriority},
	}

	st := Default.Summarize(issues, users, now, 2)
	assert.Equal(t, Stats{
		TotalIssues:      4,
		Unassigned:       1,
		Problematic:      2,
		LowPriorityDue:   1,
		Members:          3,
		AvailableMembers: 1,
		CanAutoAssign:    true,
	}, st)

	st = Default.Summarize(issues, users, now, 1)
	assert.Equal(t, 0, st.AvailableMembers)
	assert.False(t, st.CanAutoAssign)
}

func TestWorkload(t *testing.T) {
	users := []*models.User{assigned("a"), assigned("b"), {AccountID: "c", Active: false}}
	issues := []*models.Issue{
		{Key: "T-1", Assignee: assigned("a")},
		{Key: "T-2", Assignee: assigned("a")},
		{Key: "T-3", Assignee: assigned("b")},
		{Key: "T-4", Assignee: assigned("ghost")},
	}

	rows := Workload(issues, users, 2)
	require.Len(t, rows, 3)

	assert.Equal(t, "a", rows[0].User.AccountID)
	assert.Equal(t, 2, rows[0].Assigned)
	assert.Equal(t, 0, rows[0].Remaining)
	assert.False(t, rows[0].Available)

	assert.Equal(t, 1, rows[1].Assigned)
	assert.True(t, rows[1].Available)

	assert.Equal(t, 0, rows[2].Assigned)
	assert.Equal(t, 2, rows[2].Remaining)
	assert.False(t, rows[2].Available, "inactive members are never available")
}
