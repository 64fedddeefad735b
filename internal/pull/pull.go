// Package pull turns surviving diff statements back into categorized local
// source files, one file per object category per schema.
package pull

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"db_declarative_schema_syncer/internal/filter"
)

// FileSet maps root-relative paths (forward slashes) to file content.
type FileSet map[string]string

// A qualified identifier after an object keyword names the schema the
// statement belongs to. Unqualified statements belong to public.
var schemaRefRe = regexp.MustCompile(`(?is)\b(?:table|index|view|function|procedure|trigger|policy|type|domain|sequence|on)\s+(?:concurrently\s+)?(?:if\s+(?:not\s+)?exists\s+)?"?([a-zA-Z_][\w$]*)"?\s*\.\s*"?[a-zA-Z_][\w$]*"?`)

// Build classifies each statement and renders the per-schema category
// files. It performs no I/O, so a classification failure costs nothing.
func Build(statements []string) (FileSet, error) {
	type bucket struct {
		schema string
		kind   filter.Kind
	}
	grouped := map[bucket][]string{}
	for i, stmt := range statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			return nil, fmt.Errorf("statement %d is empty", i+1)
		}
		b := bucket{schema: schemaOf(trimmed), kind: filter.Classify(trimmed)}
		grouped[b] = append(grouped[b], ensureSemicolon(trimmed))
	}

	files := FileSet{}
	for b, stmts := range grouped {
		path := b.schema + "/" + string(b.kind) + ".sql"
		var sb strings.Builder
		fmt.Fprintf(&sb, "-- %s objects in schema %s, generated by schema pull\n\n", b.kind, b.schema)
		sb.WriteString(strings.Join(stmts, "\n\n"))
		sb.WriteString("\n")
		files[path] = sb.String()
	}
	return files, nil
}

// Write lands a file set under root. All content is staged inside root
// first and moved into place only after every staged write succeeded, so a
// failed pull never leaves a partial file set. Returns the sorted relative
// paths written.
func Write(root string, files FileSet) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create pull root: %w", err)
	}
	stage, err := os.MkdirTemp(root, ".pull-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	paths := make([]string, 0, len(files))
	for rel := range files {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		staged := filepath.Join(stage, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
			return nil, fmt.Errorf("stage %s: %w", rel, err)
		}
		if err := os.WriteFile(staged, []byte(files[rel]), 0o644); err != nil {
			return nil, fmt.Errorf("stage %s: %w", rel, err)
		}
	}

	for _, rel := range paths {
		final := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}
		if err := os.Rename(filepath.Join(stage, filepath.FromSlash(rel)), final); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return paths, nil
}

func schemaOf(stmt string) string {
	if m := schemaRefRe.FindStringSubmatch(stmt); m != nil {
		return m[1]
	}
	return "public"
}

func ensureSemicolon(stmt string) string {
	if !strings.HasSuffix(stmt, ";") {
		return stmt + ";"
	}
	return stmt
}
