package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/joescharf/jpa/internal/metrics"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

// ErrCapacityExhausted is recorded for an issue when every eligible user ran
// out of capacity partway through a pass.
var ErrCapacityExhausted = errors.New("no available users (assignment limit reached)")

// NoUnassignedMessage is the informational message of a pass with nothing to do.
const NoUnassignedMessage = "no unassigned issues"

// Allocator distributes a project's unassigned issues across team members
// under a per-user cap. Each call to AutoAssign is one self-contained pass.
type Allocator struct {
	store       store.IssueStore // mutations
	reads       store.IssueStore // pass reads, never a cached view
	cap         int
	newSelector func() Selector
	logger      *slog.Logger
	recorder    metrics.Recorder
	dryRun      bool
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithCap sets the per-user cap (default DefaultCap).
func WithCap(n int) Option {
	return func(a *Allocator) { a.cap = n }
}

// WithSelector sets the constructor used to create one Selector per pass.
func WithSelector(f func() Selector) Option {
	return func(a *Allocator) {
		if f != nil {
			a.newSelector = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Allocator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithDryRun plans assignments without persisting them. Every planned
// assignment is reported as successful.
func WithDryRun(dryRun bool) Option {
	return func(a *Allocator) { a.dryRun = dryRun }
}

// New creates an Allocator backed by s. If s is a store.FallbackStore the
// pass reads from its primary, so an upstream failure fails the pass instead
// of assigning against cached load. Assignments still go through s.
func New(s store.IssueStore, opts ...Option) *Allocator {
	a := &Allocator{
		store:       s,
		reads:       store.Live(s),
		cap:         DefaultCap,
		newSelector: NewRoundRobin,
		logger:      slog.New(slog.DiscardHandler),
		recorder:    metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cap returns the per-user cap.
func (a *Allocator) Cap() int { return a.cap }

// AutoAssign runs one pass over the project's unassigned issues.
//
// A returned error means an upstream read failed and nothing was attempted.
// Otherwise the result describes the pass: Success is false only when no
// user had capacity at the start; individual failures live in Results.
func (a *Allocator) AutoAssign(ctx context.Context, projectKey string) (*models.AutoAssignResult, error) {
	log := a.logger.With("project", projectKey)

	unassigned, err := a.reads.ListUnassignedIssues(ctx, projectKey)
	if err != nil {
		a.recorder.PassCompleted(metrics.OutcomeFetchError)
		return nil, fmt.Errorf("list unassigned issues: %w", err)
	}
	if len(unassigned) == 0 {
		log.Info("auto-assign skipped", "reason", NoUnassignedMessage)
		a.recorder.PassCompleted(metrics.OutcomeNoop)
		return &models.AutoAssignResult{Success: true, Message: NoUnassignedMessage}, nil
	}

	users, allIssues, err := a.fetchLoad(ctx, projectKey)
	if err != nil {
		a.recorder.PassCompleted(metrics.OutcomeFetchError)
		return nil, err
	}

	entries := ResolveEligibleUsers(allIssues, users, a.cap)
	if len(entries) == 0 {
		msg := fmt.Sprintf("no available users: all users reached the limit of %d assigned issues", a.cap)
		log.Warn("auto-assign aborted", "reason", msg, "unassigned", len(unassigned))
		a.recorder.PassCompleted(metrics.OutcomeNoCapacity)
		return &models.AutoAssignResult{Success: false, Error: msg}, nil
	}

	results := a.assign(ctx, log, unassigned, entries)

	res := &models.AutoAssignResult{Success: true, Results: results}
	res.Summary = fmt.Sprintf("%d of %d assigned", res.SuccessCount(), len(unassigned))
	log.Info("auto-assign completed", "summary", res.Summary, "dry_run", a.dryRun)
	a.recorder.PassCompleted(metrics.OutcomeCompleted)
	return res, nil
}

// fetchLoad reads the roster and the full issue set concurrently.
func (a *Allocator) fetchLoad(ctx context.Context, projectKey string) ([]*models.User, []*models.Issue, error) {
	var users []*models.User
	var allIssues []*models.Issue

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		users, err = a.reads.ListAssignableUsers(ctx, projectKey)
		if err != nil {
			return fmt.Errorf("list assignable users: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		allIssues, err = a.reads.ListIssues(ctx, projectKey)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return users, allIssues, nil
}

// assign walks the issues strictly in order; each decision depends on the
// capacity left by the previous one.
func (a *Allocator) assign(ctx context.Context, log *slog.Logger, issues []*models.Issue, entries []*models.CapacityEntry) []models.AssignmentResult {
	sel := a.newSelector()
	results := make([]models.AssignmentResult, 0, len(issues))

	for _, issue := range issues {
		idx := sel.Select(entries)
		if idx < 0 {
			log.Debug("no capacity left", "issue", issue.Key)
			a.recorder.AssignmentAttempted(false)
			results = append(results, models.AssignmentResult{
				IssueKey: issue.Key,
				Error:    ErrCapacityExhausted.Error(),
			})
			continue
		}

		target := entries[idx]
		if !a.dryRun {
			if err := a.store.SetAssignee(ctx, issue.Key, target.User.AccountID); err != nil {
				log.Debug("assignment failed", "issue", issue.Key, "account", target.User.AccountID, "error", err)
				a.recorder.AssignmentAttempted(false)
				results = append(results, models.AssignmentResult{
					IssueKey: issue.Key,
					Error:    err.Error(),
				})
				continue
			}
		}

		target.Remaining--
		sel.Assigned(idx, entries)
		log.Debug("issue assigned", "issue", issue.Key, "account", target.User.AccountID, "remaining", target.Remaining)
		a.recorder.AssignmentAttempted(true)
		results = append(results, models.AssignmentResult{
			IssueKey:   issue.Key,
			Success:    true,
			AssignedTo: target.User.DisplayName,
		})
	}
	return results
}
