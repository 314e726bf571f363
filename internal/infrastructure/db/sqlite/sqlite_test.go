package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/infrastructure/store"
)

func openTemp(t *testing.T, path string) *Backend {
	t.Helper()
	b, err := Open(context.Background(), Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestBackend_PutLoadDelete(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t, filepath.Join(t.TempDir(), "desk.db"))
	defer b.Close()

	require.NoError(t, b.Put(ctx, "users", 1, []byte(`{"id":1}`)))
	require.NoError(t, b.Put(ctx, "users", 2, []byte(`{"id":2}`)))
	require.NoError(t, b.Put(ctx, "users", 1, []byte(`{"id":1,"name":"x"}`)))
	require.NoError(t, b.Delete(ctx, "users", 2))

	snap, err := b.Load(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, snap.Rows, 1)
	assert.JSONEq(t, `{"id":1,"name":"x"}`, string(snap.Rows[1]))
	assert.Equal(t, int64(3), snap.NextID, "sequence survives deletes")

	empty, err := b.Load(ctx, "sessions")
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
	assert.Equal(t, int64(1), empty.NextID)
}

func TestBackend_ReplaceAllKeepsSequence(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t, filepath.Join(t.TempDir(), "desk.db"))
	defer b.Close()

	require.NoError(t, b.Put(ctx, "services", 5, []byte(`{}`)))
	require.NoError(t, b.Put(ctx, "users", 1, []byte(`{"name":"old"}`)))
	require.NoError(t, b.ReplaceAll(ctx, map[string]store.Snapshot{
		"services": {Rows: map[int64][]byte{}, NextID: 1},
		"users":    {Rows: map[int64][]byte{2: []byte(`{"name":"new"}`)}, NextID: 3},
	}))

	services, err := b.Load(ctx, "services")
	require.NoError(t, err)
	assert.Empty(t, services.Rows)
	assert.Equal(t, int64(6), services.NextID)

	users, err := b.Load(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, map[int64][]byte{2: []byte(`{"name":"new"}`)}, users.Rows)
	assert.Equal(t, int64(3), users.NextID)
}

func TestBackend_ReplaceAllRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t, filepath.Join(t.TempDir(), "desk.db"))
	defer b.Close()

	require.NoError(t, b.Put(ctx, "users", 1, []byte(`{"name":"kept"}`)))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := b.ReplaceAll(cancelled, map[string]store.Snapshot{
		"users": {Rows: map[int64][]byte{}, NextID: 1},
	})
	require.Error(t, err)

	users, err := b.Load(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, map[int64][]byte{1: []byte(`{"name":"kept"}`)}, users.Rows)
}

func TestBackend_EngineSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "desk.db")

	b := openTemp(t, path)
	repos, err := store.OpenAll(ctx, store.NewEngine(b, zerolog.Nop()))
	require.NoError(t, err)
	_, err = repos.Users.Create(ctx, &domain.User{Name: "Ana", Email: "ana@example.com", Role: domain.RoleViewer})
	require.NoError(t, err)
	require.NoError(t, repos.Engine.Close())

	b2 := openTemp(t, path)
	repos2, err := store.OpenAll(ctx, store.NewEngine(b2, zerolog.Nop()))
	require.NoError(t, err)
	defer repos2.Engine.Close()

	u, err := repos2.Users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)

	_, err = repos2.Users.Create(ctx, &domain.User{Email: "ana@example.com"})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}
