package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/triage"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func member(id string) *models.User {
	return &models.User{AccountID: id, DisplayName: id, Active: true}
}

func TestScore_HealthyProject(t *testing.T) {
	s := NewScorer(triage.Default)

	users := []*models.User{member("a"), member("b")}
	issues := []*models.Issue{
		{Key: "T-1", Assignee: member("a"), Priority: models.DefaultPriority},
		{Key: "T-2", Assignee: member("b"), Priority: models.DefaultPriority},
	}

	h := s.Score(&ProjectMetadata{Now: now}, issues, users)

	assert.Equal(t, 35, h.Coverage, "fully assigned = full coverage")
	assert.Equal(t, 25, h.DeadlineRisk)
	assert.Equal(t, 25, h.TeamCapacity)
	assert.Equal(t, 15, h.Freshness, "live data = full freshness")
	assert.Equal(t, 100, h.Total)
}

func TestScore_UnhealthyProject(t *testing.T) {
	s := NewScorer(triage.Default)

	low, _ := models.PriorityByName(models.PriorityLow)
	soon := now.Add(24 * time.Hour)
	users := []*models.User{member("a")}
	var issues []*models.Issue
	for i := 0; i < 8; i++ {
		issues = append(issues, &models.Issue{Priority: low, DueDate: &soon})
	}
	issues = append(issues, &models.Issue{Assignee: member("a")}, &models.Issue{Assignee: member("a")})

	h := s.Score(&ProjectMetadata{Now: now, LastSync: now.Add(-10 * 24 * time.Hour), Cap: 2}, issues, users)

	assert.Equal(t, 7, h.Coverage)
	assert.Equal(t, 0, h.DeadlineRisk)
	assert.Equal(t, 0, h.TeamCapacity, "nobody has room")
	assert.Equal(t, 3, h.Freshness)
	assert.True(t, h.Total < 50, "unhealthy project should score below 50")
}

func TestScore_NoIssues(t *testing.T) {
	h := NewScorer(triage.Default).Score(&ProjectMetadata{Now: now}, nil, nil)
	assert.Equal(t, 100, h.Total, "empty project is healthy")
}

func TestScoreCapacity_Partial(t *testing.T) {
	users := []*models.User{member("a")}
	issues := []*models.Issue{{Key: "T-1"}, {Key: "T-2"}, {Key: "T-3"}, {Key: "T-4"}}
	// a has room for 2 of 4.
	assert.Equal(t, 10, scoreCapacity(issues, users, 2, 20))
}

func TestScoreRecency(t *testing.T) {
	tests := []struct {
		name string
		ago  time.Duration
		want int
	}{
		{"just now", 30 * time.Minute, 15},
		{"today", 5 * time.Hour, 12},
		{"two days", 48 * time.Hour, 9},
		{"this week", 5 * 24 * time.Hour, 6},
		{"old", 30 * 24 * time.Hour, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreRecency(now.Add(-tt.ago), now, 15))
		})
	}
}

func TestScoreRecency_Zero(t *testing.T) {
	assert.Equal(t, 0, scoreRecency(time.Time{}, now, 15))
}
