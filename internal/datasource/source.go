package datasource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnknownType is returned for files no loader understands.
	ErrUnknownType = errors.New("unknown source type")
	// ErrCycle is returned when parent links form a cycle.
	ErrCycle = errors.New("parent links form a cycle")
	// ErrEmpty is returned when a source holds no items.
	ErrEmpty = errors.New("source has no items")
)

// SourceType identifies how a source is read.
type SourceType string

const (
	// SourceTypeJSON is a nested JSON tree (one object or an array of roots).
	SourceTypeJSON SourceType = "json"
	// SourceTypeSQLite is a SQLite database with a nodes adjacency table.
	SourceTypeSQLite SourceType = "sqlite"
)

// Source is a loadable file.
type Source struct {
	Type    SourceType `json:"type"`
	Path    string     `json:"path"`
	ModTime time.Time  `json:"mod_time"`
	Size    int64      `json:"size"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s, mod=%s)", s.Path, s.Type, s.ModTime.Format(time.RFC3339))
}

// Name is the file name without extension, used as the ID of synthetic
// roots.
func (s Source) Name() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DetectType maps a file extension to a source type.
func DetectType(path string) (SourceType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SourceTypeJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return SourceTypeSQLite, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownType, path)
	}
}

// Stat builds a Source for path.
func Stat(path string) (Source, error) {
	typ, err := DetectType(path)
	if err != nil {
		return Source{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, err
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is a directory", ErrUnknownType, path)
	}
	return Source{Type: typ, Path: abs, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Discover lists the loadable files directly inside dir, sorted by name.
func Discover(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var sources []Source
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := DetectType(e.Name()); err != nil {
			continue
		}
		src, err := Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

// Resolve expands paths into sources. Directories contribute the files
// Discover finds in them.
func Resolve(paths []string) ([]Source, error) {
	var sources []Source
	seen := make(map[string]bool)
	add := func(s Source) {
		if !seen[s.Path] {
			seen[s.Path] = true
			sources = append(sources, s)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := Discover(p)
			if err != nil {
				return nil, err
			}
			for _, s := range found {
				add(s)
			}
			continue
		}
		s, err := Stat(p)
		if err != nil {
			return nil, err
		}
		add(s)
	}
	return sources, nil
}
