package health

import (
	"time"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/triage"
)

// ProjectMetadata holds context used for health scoring that is not part of
// the issue set itself.
type ProjectMetadata struct {
	Now      time.Time
	LastSync time.Time // zero when data is live
	Cap      int
}

// HealthScore represents the computed triage health of a project.
type HealthScore struct {
	Total        int `json:"total"`
	Coverage     int `json:"coverage"`     // 0-35
	DeadlineRisk int `json:"deadlineRisk"` // 0-25
	TeamCapacity int `json:"teamCapacity"` // 0-25
	Freshness    int `json:"freshness"`    // 0-15
}

// Scorer computes health scores for projects.
type Scorer struct {
	classifier triage.Classifier
}

// NewScorer returns a new health Scorer using the given problem classifier.
func NewScorer(c triage.Classifier) *Scorer {
	return &Scorer{classifier: c}
}

// Score computes a health score (0-100) for a project.
func (s *Scorer) Score(meta *ProjectMetadata, issues []*models.Issue, users []*models.User) *HealthScore {
	h := &HealthScore{}
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}
	limit := meta.Cap
	if limit <= 0 {
		limit = allocator.DefaultCap
	}

	// Coverage (35 pts) - share of issues with an assignee
	h.Coverage = scoreCoverage(issues, 35)

	// Deadline risk (25 pts) - low-priority issues close to their due date
	h.DeadlineRisk = s.scoreDeadlines(issues, now, 25)

	// Team capacity (25 pts) - can the team absorb the unassigned backlog
	h.TeamCapacity = scoreCapacity(issues, users, limit, 25)

	// Freshness (15 pts) - live data scores full, cached data decays
	if meta.LastSync.IsZero() {
		h.Freshness = 15
	} else {
		h.Freshness = scoreRecency(meta.LastSync, now, 15)
	}

	h.Total = h.Coverage + h.DeadlineRisk + h.TeamCapacity + h.Freshness
	return h
}

// scoreRecency converts the age of t to points.
func scoreRecency(t, now time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	hours := now.Sub(t).Hours()
	switch {
	case hours <= 1:
		return maxPoints
	case hours <= 24:
		return int(float64(maxPoints) * 0.8)
	case hours <= 72:
		return int(float64(maxPoints) * 0.6)
	case hours <= 7*24:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.2)
	}
}

func scoreCoverage(issues []*models.Issue, maxPoints int) int {
	if len(issues) == 0 {
		return maxPoints
	}
	unassigned := 0
	for _, i := range issues {
		if triage.IsUnassigned(i) {
			unassigned++
		}
	}
	return maxPoints * (len(issues) - unassigned) / len(issues)
}

func (s *Scorer) scoreDeadlines(issues []*models.Issue, now time.Time, maxPoints int) int {
	atRisk := 0
	for _, i := range issues {
		if s.classifier.IsLowPriorityWithDeadline(i, now) {
			atRisk++
		}
	}
	switch {
	case atRisk == 0:
		return maxPoints
	case atRisk <= 2:
		return int(float64(maxPoints) * 0.6)
	case atRisk <= 5:
		return int(float64(maxPoints) * 0.3)
	default:
		return 0
	}
}

// scoreCapacity compares the unassigned backlog with the room the team has
// left under the cap.
func scoreCapacity(issues []*models.Issue, users []*models.User, limit, maxPoints int) int {
	backlog := 0
	for _, i := range issues {
		if triage.IsUnassigned(i) {
			backlog++
		}
	}
	if backlog == 0 {
		return maxPoints
	}
	room := 0
	for _, e := range allocator.ResolveEligibleUsers(issues, users, limit) {
		room += e.Remaining
	}
	if room >= backlog {
		return maxPoints
	}
	return maxPoints * room / backlog
}
