package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/netdash/internal/services"
	"github.com/HerbHall/netdash/internal/store"
)

func seedDatabase(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := store.New(path)
	require.NoError(t, err)
	defer db.Close()

	repo, err := services.NewSQLiteSettingsRepository(ctx, db)
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, "ui.theme", "dark"))
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dbPath := filepath.Join(src, "netdash.db")
	cfgPath := filepath.Join(src, "netdash.yaml")
	seedDatabase(t, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  base_url: http://poller:8000\n"), 0o600))

	archive := filepath.Join(t.TempDir(), "netdash-backup.tar.gz")
	m, err := Backup(ctx, Options{Database: dbPath, Config: cfgPath, Output: archive})
	require.NoError(t, err)
	assert.Equal(t, []string{"netdash.db", "netdash.yaml"}, m.Files)

	dst := t.TempDir()
	restored, err := Restore(ctx, archive, dst, false)
	require.NoError(t, err)
	assert.Equal(t, m.Files, restored.Files)
	assert.Equal(t, m.Version, restored.Version)

	cfg, err := os.ReadFile(filepath.Join(dst, "netdash.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "poller:8000")

	db, err := store.New(filepath.Join(dst, "netdash.db"))
	require.NoError(t, err)
	defer db.Close()
	repo, err := services.NewSQLiteSettingsRepository(ctx, db)
	require.NoError(t, err)
	s, err := repo.Get(ctx, "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", s.Value)
}

func TestBackup_MissingConfigSkipped(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "netdash.db")
	seedDatabase(t, dbPath)

	m, err := Backup(context.Background(), Options{
		Database: dbPath,
		Config:   filepath.Join(src, "absent.yaml"),
		Output:   filepath.Join(src, "out.tar.gz"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"netdash.db"}, m.Files)
}

func TestBackup_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	_, err := Backup(context.Background(), Options{
		Database: filepath.Join(dir, "nope.db"),
		Output:   filepath.Join(dir, "out.tar.gz"),
	})
	assert.Error(t, err)
}

func TestRestore_ExistingFileNeedsForce(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dbPath := filepath.Join(src, "netdash.db")
	seedDatabase(t, dbPath)
	archive := filepath.Join(src, "out.tar.gz")
	_, err := Backup(ctx, Options{Database: dbPath, Output: archive})
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "netdash.db"), []byte("stale"), 0o600))

	_, err = Restore(ctx, archive, dst, false)
	assert.ErrorIs(t, err, ErrExists)

	_, err = Restore(ctx, archive, dst, true)
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dst, "netdash.db"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(len("stale")))
}

func TestRestore_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o600))

	_, err := Restore(context.Background(), path, t.TempDir(), false)
	assert.Error(t, err)
}
