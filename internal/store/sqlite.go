package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"github.com/joescharf/jpa/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements IssueStore on a local SQLite database. It holds
// snapshots fetched from Jira (the offline cache) and can serve as a fully
// local backend for development.
type SQLiteStore struct {
	db *sql.DB
}

var _ Cache = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serializes access and avoids "database is locked" under the API server.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, db execer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.ExecContext(ctx, query, args...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Projects ---

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query, args, err := sq.Select("id", "key", "name", "project_type_key").
		From("projects").
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.ProjectTypeKey); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Issues ---

var issueColumns = []string{
	"id", "key", "project_key", "summary", "status",
	"assignee_id", "assignee_name", "assignee_email",
	"priority_id", "priority_name", "due_date", "created_at", "updated_at",
}

func (s *SQLiteStore) ListIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	return s.queryIssues(ctx, sq.Select(issueColumns...).
		From("issues").
		Where(sq.Eq{"project_key": projectKey}).
		OrderBy("created_at DESC"))
}

func (s *SQLiteStore) ListUnassignedIssues(ctx context.Context, projectKey string) ([]*models.Issue, error) {
	return s.queryIssues(ctx, sq.Select(issueColumns...).
		From("issues").
		Where(sq.Eq{"project_key": projectKey, "assignee_id": nil}).
		OrderBy("created_at ASC", "key ASC"))
}

// GetIssue returns a single issue by key.
func (s *SQLiteStore) GetIssue(ctx context.Context, issueKey string) (*models.Issue, error) {
	issues, err := s.queryIssues(ctx, sq.Select(issueColumns...).
		From("issues").
		Where(sq.Eq{"key": issueKey}))
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("issue %s: %w", issueKey, ErrNotFound)
	}
	return issues[0], nil
}

func (s *SQLiteStore) queryIssues(ctx context.Context, b sq.SelectBuilder) ([]*models.Issue, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue := &models.Issue{}
		var assigneeID sql.NullString
		var assigneeName, assigneeEmail string
		var dueDate sql.NullTime

		if err := rows.Scan(&issue.ID, &issue.Key, &issue.ProjectKey, &issue.Summary, &issue.Status,
			&assigneeID, &assigneeName, &assigneeEmail,
			&issue.Priority.ID, &issue.Priority.Name, &dueDate, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}

		if assigneeID.Valid {
			issue.Assignee = &models.User{
				AccountID:   assigneeID.String,
				DisplayName: assigneeName,
				Email:       assigneeEmail,
				Active:      true,
			}
		}
		if dueDate.Valid {
			d := dueDate.Time
			issue.DueDate = &d
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) SetAssignee(ctx context.Context, issueKey, accountID string) error {
	issue, err := s.GetIssue(ctx, issueKey)
	if err != nil {
		return err
	}

	var name, email string
	err = s.db.QueryRowContext(ctx,
		"SELECT display_name, email FROM users WHERE project_key = ? AND account_id = ?",
		issue.ProjectKey, accountID,
	).Scan(&name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	_, err = exec(ctx, s.db, sq.Update("issues").
		Set("assignee_id", accountID).
		Set("assignee_name", name).
		Set("assignee_email", email).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"key": issueKey}))
	if err != nil {
		return fmt.Errorf("set assignee: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetPriority(ctx context.Context, issueKey, priorityID string) error {
	p, ok := models.PriorityByID(priorityID)
	if !ok {
		return fmt.Errorf("unknown priority id: %s", priorityID)
	}

	result, err := exec(ctx, s.db, sq.Update("issues").
		Set("priority_id", p.ID).
		Set("priority_name", p.Name).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"key": issueKey}))
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", issueKey, ErrNotFound)
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) ListAssignableUsers(ctx context.Context, projectKey string) ([]*models.User, error) {
	query, args, err := sq.Select("account_id", "display_name", "email", "active").
		From("users").
		Where(sq.Eq{"project_key": projectKey}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.AccountID, &u.DisplayName, &u.Email, &u.Active); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Snapshots ---

// SaveSnapshot replaces the cached issues and roster of a project.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.Project == nil || snap.Project.Key == "" {
		return fmt.Errorf("save snapshot: project key is required")
	}
	p := snap.Project

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = exec(ctx, tx, sq.Insert("projects").
		Columns("key", "id", "name", "project_type_key").
		Values(p.Key, p.ID, p.Name, p.ProjectTypeKey).
		Suffix("ON CONFLICT(key) DO UPDATE SET id = excluded.id, name = excluded.name, project_type_key = excluded.project_type_key"))
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}

	if _, err := exec(ctx, tx, sq.Delete("issues").Where(sq.Eq{"project_key": p.Key})); err != nil {
		return fmt.Errorf("clear issues: %w", err)
	}
	if _, err := exec(ctx, tx, sq.Delete("users").Where(sq.Eq{"project_key": p.Key})); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}

	for i, u := range snap.Users {
		_, err := exec(ctx, tx, sq.Insert("users").
			Columns("project_key", "account_id", "display_name", "email", "active", "position").
			Values(p.Key, u.AccountID, u.DisplayName, u.Email, boolToInt(u.Active), i))
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.AccountID, err)
		}
	}

	for _, issue := range snap.Issues {
		var assigneeID any
		var assigneeName, assigneeEmail string
		if issue.Assignee != nil {
			assigneeID = issue.Assignee.AccountID
			assigneeName = issue.Assignee.DisplayName
			assigneeEmail = issue.Assignee.Email
		}
		var dueDate any
		if issue.DueDate != nil {
			dueDate = issue.DueDate.UTC()
		}
		priority := issue.Priority
		if priority.ID == "" {
			priority = models.DefaultPriority
		}

		_, err := exec(ctx, tx, sq.Insert("issues").
			Columns(issueColumns...).
			Values(issue.ID, issue.Key, p.Key, issue.Summary, issue.Status,
				assigneeID, assigneeName, assigneeEmail,
				priority.ID, priority.Name, dueDate, issue.CreatedAt.UTC(), issue.UpdatedAt.UTC()))
		if err != nil {
			return fmt.Errorf("insert issue %s: %w", issue.Key, err)
		}
	}

	_, err = exec(ctx, tx, sq.Insert("sync_runs").
		Columns("id", "project_key", "issue_count", "user_count", "synced_at").
		Values(newULID(), p.Key, len(snap.Issues), len(snap.Users), time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LastSync returns when the project was last cached. ok is false when the
// project has never been synced.
func (s *SQLiteStore) LastSync(ctx context.Context, projectKey string) (t time.Time, ok bool, err error) {
	query, args, err := sq.Select("synced_at").
		From("sync_runs").
		Where(sq.Eq{"project_key": projectKey}).
		OrderBy("synced_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build query: %w", err)
	}

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last sync: %w", err)
	}
	return t, true, nil
}
