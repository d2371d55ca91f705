package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
)

func sourceStore() *store.MemoryStore {
	other := store.Snapshot{
		Project: &models.Project{ID: "10001", Key: "KANBAN", Name: "Kanban Board"},
		Issues:  []*models.Issue{{ID: "1", Key: "KANBAN-1", ProjectKey: "KANBAN", Priority: models.DefaultPriority}},
		Users:   []*models.User{{AccountID: "k1", DisplayName: "K", Active: true}},
	}
	return store.NewMemoryStore(store.SampleSnapshot(time.Now()), other)
}

func TestProject(t *testing.T) {
	ctx := context.Background()
	src := sourceStore()
	dst := store.NewMemoryStore()

	r, err := ProjectByKey(ctx, src, dst, "SCRUM")
	require.NoError(t, err)
	assert.Equal(t, "SCRUM", r.Key)
	assert.Equal(t, 6, r.Issues)
	assert.Equal(t, 4, r.Users)

	snap, ok := dst.Snapshot("SCRUM")
	require.True(t, ok)
	assert.Len(t, snap.Issues, 6)
	assert.Equal(t, "Scrum Project", snap.Project.Name)
}

func TestProjectByKey_Unknown(t *testing.T) {
	_, err := ProjectByKey(context.Background(), sourceStore(), store.NewMemoryStore(), "NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProject_FetchError(t *testing.T) {
	src := sourceStore()
	src.UsersErr = errors.New("HTTP 503 Service Unavailable")
	dst := store.NewMemoryStore()

	_, err := ProjectByKey(context.Background(), src, dst, "SCRUM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch users")

	_, ok := dst.Snapshot("SCRUM")
	assert.False(t, ok, "nothing saved on failure")
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	dst := store.NewMemoryStore()

	res, err := All(ctx, sourceStore(), dst)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "KANBAN", res.Results[0].Key)
	assert.Equal(t, "SCRUM", res.Results[1].Key)

	projects, err := dst.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestAll_ListError(t *testing.T) {
	src := sourceStore()
	src.ListErr = errors.New("offline")
	_, err := All(context.Background(), src, store.NewMemoryStore())
	assert.Error(t, err)
}

func TestAll_IntoSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	res, err := All(ctx, sourceStore(), db)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)

	unassigned, err := db.ListUnassignedIssues(ctx, "SCRUM")
	require.NoError(t, err)
	assert.Len(t, unassigned, 3)

	_, ok, err := db.LastSync(ctx, "SCRUM")
	require.NoError(t, err)
	assert.True(t, ok)
}
