package refresh

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

// Saver persists project snapshots.
type Saver interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
}

// Result holds the outcome of syncing a single project.
type Result struct {
	Key    string `json:"key"`
	Issues int    `json:"issues"`
	Users  int    `json:"users"`
	Error  string `json:"error,omitempty"`
}

// AllResult holds the outcome of syncing all projects.
type AllResult struct {
	Synced  int      `json:"synced"`
	Total   int      `json:"total"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results"`
}

// maxParallel bounds concurrent project syncs.
const maxParallel = 4

// Project fetches the issues and roster of p from src and saves them as one
// snapshot.
func Project(ctx context.Context, src store.IssueStore, dst Saver, p *models.Project) (*Result, error) {
	var issues []*models.Issue
	var users []*models.User

	g := pool.New().WithContext(ctx).WithCancelOnError()
	g.Go(func(ctx context.Context) error {
		var err error
		if issues, err = src.ListIssues(ctx, p.Key); err != nil {
			return fmt.Errorf("fetch issues: %w", err)
		}
		return nil
	})
	g.Go(func(ctx context.Context) error {
		var err error
		if users, err = src.ListAssignableUsers(ctx, p.Key); err != nil {
			return fmt.Errorf("fetch users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := store.Snapshot{Project: p, Issues: issues, Users: users}
	if err := dst.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return &Result{Key: p.Key, Issues: len(issues), Users: len(users)}, nil
}

// ProjectByKey looks p up in src and syncs it.
func ProjectByKey(ctx context.Context, src store.IssueStore, dst Saver, key string) (*Result, error) {
	projects, err := src.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if p.Key == key {
			return Project(ctx, src, dst, p)
		}
	}
	return nil, fmt.Errorf("project %s: %w", key, store.ErrNotFound)
}

// All syncs every project visible in src. A failing project is recorded in
// its Result and does not stop the others.
func All(ctx context.Context, src store.IssueStore, dst Saver) (*AllResult, error) {
	projects, err := src.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	results := make([]Result, len(projects))
	p := pool.New().WithMaxGoroutines(maxParallel)
	for i, proj := range projects {
		p.Go(func() {
			r, err := Project(ctx, src, dst, proj)
			if err != nil {
				results[i] = Result{Key: proj.Key, Error: err.Error()}
				return
			}
			results[i] = *r
		})
	}
	p.Wait()

	out := &AllResult{Total: len(projects), Results: results}
	for _, r := range results {
		if r.Error != "" {
			out.Failed++
		} else {
			out.Synced++
		}
	}
	return out, nil
}
