package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestCreateAndRestore(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "project")
	dest := filepath.Join(source, "backups")

	writeFile(t, filepath.Join(source, "index.html"), "<h1>pixels</h1>")
	writeFile(t, filepath.Join(source, "src", "app.js"), "console.log('hi')")
	writeFile(t, filepath.Join(source, "src", "assets", "logo.png"), "png-bytes")
	writeFile(t, filepath.Join(source, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(source, "node_modules", "left-pad", "index.js"), "module.exports = 1")

	m := NewManager(dest)
	m.Workers = 2
	m.now = fixedClock(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))

	created, err := m.Create(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, "backup-20260314-150926", created.Name)
	assert.Equal(t, 3, created.Files)

	assert.FileExists(t, filepath.Join(created.Path, "src", "assets", "logo.png"))
	assert.NoDirExists(t, filepath.Join(created.Path, ".git"))
	assert.NoDirExists(t, filepath.Join(created.Path, "node_modules"))
	assert.NoDirExists(t, filepath.Join(created.Path, "backups"))

	target := filepath.Join(root, "restored")
	restored, err := m.Restore(context.Background(), created.Name, target)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Files)

	for _, rel := range []string{"index.html", filepath.Join("src", "app.js"), filepath.Join("src", "assets", "logo.png")} {
		want, err := os.ReadFile(filepath.Join(source, rel))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(target, rel))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), rel)
	}
}

func TestListNewestFirst(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	writeFile(t, filepath.Join(source, "a.txt"), "a")

	m := NewManager(filepath.Join(root, "dest"))
	m.now = fixedClock(
		time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	)

	_, err := m.Create(context.Background(), source)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), source)
	require.NoError(t, err)

	writeFile(t, filepath.Join(m.Dest, "notes.txt"), "not a backup")
	require.NoError(t, os.MkdirAll(filepath.Join(m.Dest, "backup-garbage"), 0o755))

	backups, err := m.List()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "backup-20260102-100000", backups[0].Name)
	assert.Equal(t, "backup-20260101-100000", backups[1].Name)
	assert.Equal(t, 1, backups[0].Files)
	assert.Equal(t, int64(1), backups[0].Bytes)
}

func TestListMissingDest(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"))
	backups, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestCreateSameSecondFails(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	writeFile(t, filepath.Join(source, "a.txt"), "a")

	m := NewManager(filepath.Join(root, "dest"))
	m.now = fixedClock(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	_, err := m.Create(context.Background(), source)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), source)
	assert.ErrorIs(t, err, ErrExists)
}

func TestCreateRejectsFileSource(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, "x")

	_, err := NewManager(filepath.Join(root, "dest")).Create(context.Background(), file)
	assert.Error(t, err)
}

func TestRestoreErrors(t *testing.T) {
	m := NewManager(t.TempDir())

	_, err := m.Restore(context.Background(), "backup-20260101-000000", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Restore(context.Background(), "../etc", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = m.Restore(context.Background(), "snapshot-1", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestCreateHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(source, "dir", string(rune('a'+i))+".txt"), "data")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(filepath.Join(root, "dest"))
	_, err := m.Create(ctx, source)
	require.Error(t, err)

	backups, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, backups, "a failed backup must not be left behind")
}
