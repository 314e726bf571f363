package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_AgainstSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "desk.db"))
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "create-admin", "--email", "root@example.com", "--password", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin 1 <root@example.com>")

	_, err = run(t, "create-admin", "--email", "root@example.com", "--password", "other")
	assert.Error(t, err, "duplicate emails are rejected")

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "root@example.com")

	out, err = run(t, "stats", "--role", "viewer")
	require.NoError(t, err)
	assert.NotContains(t, out, "root@example.com")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 0 services", "the catalog is seeded on open")

	exported := filepath.Join(dir, "export.json")
	_, err = run(t, "export", "--out", exported)
	require.NoError(t, err)
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "root@example.com")

	out, err = run(t, "import", "--mode", "merge", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 users, 5 services, 0 requests")

	out, err = run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "reconciled 1 users")

	out, err = run(t, "purge-sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 sessions")

	out, err = run(t, "purge-sessions", "--user", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 sessions")
}

func TestImport_RequiresFile(t *testing.T) {
	_, err := run(t, "import")
	assert.Error(t, err)
}
