// Package storage is the directory statement exports are kept in.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir stores files in one directory. Files are written once and never
// replaced or deleted.
type Dir struct {
	path string
}

// NewDir creates the directory when missing.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Save writes data to name atomically. A reader never sees a partial file,
// and an existing name fails with an error matching fs.ErrExist.
func (d *Dir) Save(name string, data []byte) (string, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	final := filepath.Join(d.path, name)

	tmp, err := os.CreateTemp(d.path, ".tmp-"+name+"-")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// Link fails when final exists, unlike Rename.
	if err := os.Link(tmpName, final); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return final, nil
}

// List returns the paths of files with the given extension, sorted by name.
func (d *Dir) List(ext string) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(d.path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
