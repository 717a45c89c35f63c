package archive

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystemBucket serves archive objects from a local directory. Object
// names are slash-separated paths relative to the root.
type FileSystemBucket struct {
	root   string
	logger *slog.Logger
}

// NewFileSystemBucket creates a FileSystemBucket rooted at root.
func NewFileSystemBucket(root string, logger *slog.Logger) *FileSystemBucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystemBucket{root: root, logger: logger}
}

func (b *FileSystemBucket) Name() string { return filepath.Base(filepath.Clean(b.root)) }

func (b *FileSystemBucket) ListNames(ctx context.Context) []string {
	var names []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		b.logger.Warn("failed to list archive directory", "root", b.root, "error", err)
		return nil
	}
	sort.Strings(names)
	return names
}

func (b *FileSystemBucket) Download(_ context.Context, name string) ([]byte, bool) {
	path, ok := b.resolve(name)
	if !ok {
		b.logger.Warn("archive object name escapes root", "artifact", name)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			b.logger.Info("archive object not found", "root", b.root, "artifact", name)
		} else {
			b.logger.Warn("failed to read archive object", "root", b.root, "artifact", name, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (b *FileSystemBucket) resolve(name string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(b.root, clean), true
}
