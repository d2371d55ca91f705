package store

import (
	"context"
	"log/slog"

	"github.com/joescharf/jpa/internal/models"
)

// Cache is the local store the fallback reads from when the primary fails.
type Cache interface {
	IssueStore
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// FallbackStore reads from a primary store and falls back to a local cache
// when a read fails. Mutations always go to the primary and are mirrored into
// the cache on success.
type FallbackStore struct {
	primary IssueStore
	cache   Cache
	logger  *slog.Logger
}

var _ IssueStore = (*FallbackStore)(nil)

// NewFallbackStore wraps primary with a cache. A nil logger discards warnings.
func NewFallbackStore(primary IssueStore, cache Cache, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FallbackStore{primary: primary, cache: cache, logger: logger}
}

// Primary returns the wrapped live store.
func (f *FallbackStore) Primary() IssueStore { return f.primary }

// Live returns the store that reads current data, unwrapping a
// FallbackStore. Callers that mutate based on what they read must not act
// on a cached view.
func Live(s IssueStore) IssueStore {
	if f, ok := s.(*FallbackStore); ok {
		return f.primary
	}
	return s
}

func (f *FallbackStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	projects, err := f.primary.ListProjects(ctx)
	if err == nil {
		return projects, nil
	}
	f.logger.Warn("primary store unavailable, using cached projects", "error", err)
	cached, cerr := f.cache.ListProjects(ctx)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	return cached, nil
}

func (f *FallbackStore) ListIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	issues, err := f.primary.ListIssues(ctx, projectKey)
	if err == nil {
		return issues, nil
	}
	f.logger.Warn("primary store unavailable, using cached issues", "project", projectKey, "error", err)
	cached, cerr := f.cache.ListIssues(ctx, projectKey)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	return cached, nil
}

func (f *FallbackStore) ListUnassignedIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	issues, err := f.primary.ListUnassignedIssues(ctx, projectKey)
	if err == nil {
		return issues, nil
	}
	f.logger.Warn("primary store unavailable, using cached unassigned issues", "project", projectKey, "error", err)
	// An empty unassigned set is only trustworthy if the project is cached.
	all, cerr := f.cache.ListIssues(ctx, projectKey)
	if cerr != nil || len(all) == 0 {
		return nil, err
	}
	cached, cerr := f.cache.ListUnassignedIssues(ctx, projectKey)
	if cerr != nil {
		return nil, err
	}
	return cached, nil
}

func (f *FallbackStore) ListAssignableUsers(ctx context.Context, projectKey string) ([]*models.User, error) {
	users, err := f.primary.ListAssignableUsers(ctx, projectKey)
	if err == nil {
		return users, nil
	}
	f.logger.Warn("primary store unavailable, using cached users", "project", projectKey, "error", err)
	cached, cerr := f.cache.ListAssignableUsers(ctx, projectKey)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	return cached, nil
}

func (f *FallbackStore) SetAssignee(ctx context.Context, issueKey, accountID string) error {
	if err := f.primary.SetAssignee(ctx, issueKey, accountID); err != nil {
		return err
	}
	if err := f.cache.SetAssignee(ctx, issueKey, accountID); err != nil {
		f.logger.Debug("cache not updated", "issue", issueKey, "error", err)
	}
	return nil
}

func (f *FallbackStore) SetPriority(ctx context.Context, issueKey, priorityID string) error {
	if err := f.primary.SetPriority(ctx, issueKey, priorityID); err != nil {
		return err
	}
	if err := f.cache.SetPriority(ctx, issueKey, priorityID); err != nil {
		f.logger.Debug("cache not updated", "issue", issueKey, "error", err)
	}
	return nil
}
