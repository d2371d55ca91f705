package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joescharf/jpa/internal/models"
)

// MemoryStore is an in-memory IssueStore. Every call copies data in and out,
// so callers never share state with the store or with each other.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot

	// Optional error injection, keyed by issue key for mutations.
	ListErr     error
	UsersErr    error
	AssignErr   map[string]error
	PriorityErr map[string]error

	// Assignments records successful SetAssignee calls in order.
	Assignments []Assignment
}

var _ Cache = (*MemoryStore)(nil)

// Assignment is one recorded SetAssignee call.
type Assignment struct {
	IssueKey  string
	AccountID string
}

// NewMemoryStore creates a store seeded with copies of the given snapshots.
func NewMemoryStore(snapshots ...Snapshot) *MemoryStore {
	m := &MemoryStore{snapshots: make(map[string]Snapshot)}
	for _, s := range snapshots {
		if s.Project == nil {
			continue
		}
		m.snapshots[s.Project.Key] = s.Clone()
	}
	return m
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	projects := make([]*models.Project, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		p := *s.Project
		projects = append(projects, &p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key < projects[j].Key })
	return projects, nil
}

func (m *MemoryStore) ListIssues(_ context.Context, projectKey string) ([]*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	s, ok := m.snapshots[projectKey]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectKey, ErrNotFound)
	}

	issues := cloneIssues(s.Issues)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].CreatedAt.After(issues[j].CreatedAt) })
	return issues, nil
}

func (m *MemoryStore) ListUnassignedIssues(_ context.Context, projectKey string) ([]*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	s, ok := m.snapshots[projectKey]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectKey, ErrNotFound)
	}

	var issues []*models.Issue
	for _, issue := range s.Issues {
		if issue.Assignee == nil {
			issues = append(issues, issue.Clone())
		}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].CreatedAt.Before(issues[j].CreatedAt) })
	return issues, nil
}

func (m *MemoryStore) ListAssignableUsers(_ context.Context, projectKey string) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	s, ok := m.snapshots[projectKey]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectKey, ErrNotFound)
	}
	return cloneUsers(s.Users), nil
}

func (m *MemoryStore) SetAssignee(ctx context.Context, issueKey, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.AssignErr[issueKey]; err != nil {
		return err
	}

	issue, users, err := m.findIssue(issueKey)
	if err != nil {
		return err
	}
	var assignee *models.User
	for _, u := range users {
		if u.AccountID == accountID {
			c := *u
			assignee = &c
			break
		}
	}
	if assignee == nil {
		return fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}

	issue.Assignee = assignee
	issue.UpdatedAt = time.Now().UTC()
	m.Assignments = append(m.Assignments, Assignment{IssueKey: issueKey, AccountID: accountID})
	return nil
}

func (m *MemoryStore) SetPriority(ctx context.Context, issueKey, priorityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PriorityErr[issueKey]; err != nil {
		return err
	}

	p, ok := models.PriorityByID(priorityID)
	if !ok {
		return fmt.Errorf("unknown priority id: %s", priorityID)
	}
	issue, _, err := m.findIssue(issueKey)
	if err != nil {
		return err
	}
	issue.Priority = p
	issue.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveSnapshot replaces a project's state with a copy of snap.
func (m *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	if snap.Project == nil || snap.Project.Key == "" {
		return fmt.Errorf("save snapshot: project key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.Project.Key] = snap.Clone()
	return nil
}

// Snapshot returns a copy of the current state of a project.
func (m *MemoryStore) Snapshot(projectKey string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[projectKey]
	if !ok {
		return Snapshot{}, false
	}
	return s.Clone(), true
}

// findIssue returns the stored issue (not a copy); callers hold m.mu.
func (m *MemoryStore) findIssue(issueKey string) (*models.Issue, []*models.User, error) {
	for _, s := range m.snapshots {
		for _, issue := range s.Issues {
			if issue.Key == issueKey {
				return issue, s.Users, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("issue %s: %w", issueKey, ErrNotFound)
}

// SampleSnapshot returns a small project used for offline development.
func SampleSnapshot(now time.Time) Snapshot {
	day := 24 * time.Hour
	due := func(d time.Duration) *time.Time {
		t := now.Add(d).Truncate(day)
		return &t
	}
	ivan := &models.User{AccountID: "user1", DisplayName: "Ivan Ivanov", Email: "ivan@example.com", Active: true}
	maria := &models.User{AccountID: "user2", DisplayName: "Maria Petrova", Email: "maria@example.com", Active: true}
	alex := &models.User{AccountID: "user3", DisplayName: "Alexey Sidorov", Email: "alex@example.com", Active: true}
	olga := &models.User{AccountID: "user4", DisplayName: "Olga Smirnova", Email: "olga@example.com", Active: false}

	low, _ := models.PriorityByName(models.PriorityLow)
	lowest, _ := models.PriorityByName(models.PriorityLowest)
	high, _ := models.PriorityByName(models.PriorityHigh)

	created := now.Add(-30 * day)
	issue := func(n int, summary, status string, a *models.User, p models.Priority, dueDate *time.Time) *models.Issue {
		var assignee *models.User
		if a != nil {
			c := *a
			assignee = &c
		}
		ts := created.Add(time.Duration(n) * day)
		return &models.Issue{
			ID:         fmt.Sprintf("1000%d", n),
			Key:        fmt.Sprintf("SCRUM-%d", n),
			ProjectKey: "SCRUM",
			Summary:    summary,
			Status:     status,
			Assignee:   assignee,
			Priority:   p,
			DueDate:    dueDate,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
	}

	return Snapshot{
		Project: &models.Project{ID: "10000", Key: "SCRUM", Name: "Scrum Project", ProjectTypeKey: "software"},
		Issues: []*models.Issue{
			issue(1, "Build the landing page", "In Progress", ivan, high, due(20*day)),
			issue(2, "Set up the database", "To Do", nil, low, due(3*day)),
			issue(3, "Add authentication", "Done", maria, models.DefaultPriority, nil),
			issue(4, "Fix small UI bugs", "To Do", alex, lowest, due(2*day)),
			issue(5, "Update documentation", "To Do", nil, lowest, due(5*day)),
			issue(6, "Configure CI pipeline", "To Do", nil, models.DefaultPriority, nil),
		},
		Users: []*models.User{ivan, maria, alex, olga},
	}
}
