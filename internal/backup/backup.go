// Package backup copies a directory tree into timestamped snapshot folders
// and restores them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	namePrefix = "backup-"
	timeLayout = "20060102-150405"

	DefaultWorkers = 4
)

var (
	ErrNotFound    = errors.New("backup not found")
	ErrInvalidName = errors.New("invalid backup name")
	ErrExists      = errors.New("backup already exists")
)

// skippedDirs are never copied, wherever they appear in the tree.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
}

type Manager struct {
	Dest    string
	Workers int

	now func() time.Time
}

func NewManager(dest string) *Manager {
	return &Manager{Dest: dest, Workers: DefaultWorkers, now: time.Now}
}

// Create copies source into <Dest>/backup-YYYYMMDD-HHMMSS. Dest itself is
// skipped when it lies inside source.
func (m *Manager) Create(ctx context.Context, source string) (*Backup, error) {
	srcAbs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	info, err := os.Stat(srcAbs)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", source)
	}

	destAbs, err := filepath.Abs(m.Dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(destAbs, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	createdAt := m.now().UTC()
	name := namePrefix + createdAt.Format(timeLayout)
	target := filepath.Join(destAbs, name)
	if err := os.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, fmt.Errorf("create backup folder: %w", err)
	}

	files, bytes, err := m.copyTree(ctx, srcAbs, target, func(path string, d fs.DirEntry) bool {
		if !d.IsDir() {
			return false
		}
		return skippedDirs[d.Name()] || path == destAbs || path == target
	})
	if err != nil {
		_ = os.RemoveAll(target)
		return nil, err
	}

	return &Backup{Name: name, Path: target, CreatedAt: createdAt, Files: files, Bytes: bytes}, nil
}

// List returns the backups under Dest, newest first. A missing Dest is empty.
func (m *Manager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.Dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read destination: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		createdAt, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(m.Dest, entry.Name())
		files, bytes, err := treeSize(path)
		if err != nil {
			return nil, err
		}
		backups = append(backups, Backup{
			Name:      entry.Name(),
			Path:      path,
			CreatedAt: createdAt,
			Files:     files,
			Bytes:     bytes,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore copies the backup called name into target, overwriting files that
// exist in both.
func (m *Manager) Restore(ctx context.Context, name, target string) (*Backup, error) {
	createdAt, ok := parseName(name)
	if !ok || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	source := filepath.Join(m.Dest, name)
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	files, bytes, err := m.copyTree(ctx, source, target, func(string, fs.DirEntry) bool { return false })
	if err != nil {
		return nil, err
	}
	return &Backup{Name: name, Path: target, CreatedAt: createdAt, Files: files, Bytes: bytes}, nil
}

// copyTree creates directories while walking and copies regular files on a
// bounded pool of workers.
func (m *Manager) copyTree(ctx context.Context, src, dst string, skip func(string, fs.DirEntry) bool) (int, int64, error) {
	workers := m.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var files atomic.Int64
	var bytes atomic.Int64

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if path != src && skip(path, d) {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(out, 0o755)
		case d.Type().IsRegular():
			g.Go(func() error {
				n, err := copyFile(path, out)
				if err != nil {
					return fmt.Errorf("copy %s: %w", rel, err)
				}
				files.Add(1)
				bytes.Add(n)
				return nil
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	if walkErr != nil {
		return 0, 0, fmt.Errorf("walk %s: %w", src, walkErr)
	}
	return int(files.Load()), bytes.Load(), nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func treeSize(root string) (int, int64, error) {
	var files int
	var bytes int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("measure %s: %w", root, err)
	}
	return files, bytes, nil
}

func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, namePrefix) {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, strings.TrimPrefix(name, namePrefix))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
