// Package file implements a local filesystem-backed data source: a recursive
// walker that enumerates JSON files under a directory tree, and a per-file
// reader.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"playetl/internal/datasource"
)

// Tree enumerates *.json files under a root directory.
type Tree struct{ root string }

// NewTree returns a Tree rooted at dir.
func NewTree(dir string) *Tree { return &Tree{root: dir} }

// List walks the tree and returns every .json file path, sorted. Hidden
// files and directories (leading dot) are skipped.
func (t *Tree) List(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != t.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(name, ".json") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", t.root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Unit returns a Source for one listed path.
func (t *Tree) Unit(name string) datasource.Source { return &Local{path: name} }

// Local is a filesystem data source that opens a single file.
type Local struct{ path string }

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading.
//
// If the context is already canceled at the time of the call, Open returns
// the context error without touching the filesystem. Filesystem errors are
// wrapped with the path while staying errors.Is-compatible (e.g.
// errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
