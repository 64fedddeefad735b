// Package schemafiles reads the declarative schema tree and orders it for
// application.
package schemafiles

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is one declarative SQL unit on disk. Immutable once read.
type SourceFile struct {
	Path     string // relative to the schema root, forward slashes
	SQL      string
	Priority int
}

// Load lists every .sql file under root and returns them sorted in apply
// order. Hidden directories and files are skipped.
func Load(root string) ([]SourceFile, error) {
	var files []SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ".sql") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, SourceFile{
			Path:     rel,
			SQL:      string(content),
			Priority: Priority(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk schema dir: %w", err)
	}
	SortByPriority(files)
	return files, nil
}

// Schemas returns the non-builtin top-level directory names the file tree
// references, sorted. A top segment that is itself an object-kind directory
// (tables/, indexes/, ...) belongs to the default schema and is not a
// schema of its own.
func Schemas(files []SourceFile) []string {
	seen := map[string]struct{}{}
	for _, f := range files {
		top, rest, found := strings.Cut(f.Path, "/")
		if !found || rest == "" {
			continue
		}
		if _, builtin := kindPriorities[strings.ToLower(top)]; builtin {
			continue
		}
		if strings.EqualFold(top, "public") {
			continue
		}
		seen[top] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
