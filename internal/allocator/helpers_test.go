package allocator

import (
	"fmt"
	"time"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func user(id string, active bool) *models.User {
	return &models.User{AccountID: id, DisplayName: "User " + id, Active: active}
}

// issues builds n issues in creation order, assigned per the given account
// IDs ("" = unassigned).
func issues(prefix string, assignees ...string) []*models.Issue {
	out := make([]*models.Issue, len(assignees))
	for i, a := range assignees {
		issue := &models.Issue{
			ID:         fmt.Sprintf("%d", 10000+i),
			Key:        fmt.Sprintf("%s-%d", prefix, i+1),
			ProjectKey: prefix,
			Summary:    fmt.Sprintf("issue %d", i+1),
			Priority:   models.DefaultPriority,
			CreatedAt:  baseTime.Add(time.Duration(i) * time.Hour),
			UpdatedAt:  baseTime.Add(time.Duration(i) * time.Hour),
		}
		if a != "" {
			issue.Assignee = &models.User{AccountID: a, DisplayName: "User " + a, Active: true}
		}
		out[i] = issue
	}
	return out
}

func unassigned(n int) []string {
	return make([]string, n)
}

func newStore(issues []*models.Issue, users []*models.User) *store.MemoryStore {
	return store.NewMemoryStore(store.Snapshot{
		Project: &models.Project{ID: "1", Key: "TEST", Name: "Test"},
		Issues:  issues,
		Users:   users,
	})
}
