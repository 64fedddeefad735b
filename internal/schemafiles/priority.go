package schemafiles

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPriority is assigned to files whose name or parent directory does
// not match any known object kind. They sort after everything recognized.
const DefaultPriority = 50

// kindPriorities orders object kinds so that a file never references an
// object created by a later file: a table before its indexes, a function
// before the trigger that calls it, and so on.
var kindPriorities = map[string]int{
	"schemas":     0,
	"schema":      0,
	"extensions":  1,
	"types":       2,
	"enums":       2,
	"domains":     2,
	"tables":      3,
	"table":       3,
	"indexes":     4,
	"index":       4,
	"functions":   5,
	"function":    5,
	"views":       5,
	"view":        5,
	"triggers":    6,
	"trigger":     6,
	"rls":         7,
	"policies":    7,
	"policy":      7,
	"grants":      8,
	"permissions": 8,
}

// Priority infers the apply priority of a schema source file from its own
// base name, or failing that from its immediate parent directory name.
// Matching is case-insensitive.
func Priority(relPath string) int {
	base := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	if p, ok := kindPriorities[strings.ToLower(base)]; ok {
		return p
	}
	parent := filepath.Base(filepath.Dir(relPath))
	if p, ok := kindPriorities[strings.ToLower(parent)]; ok {
		return p
	}
	return DefaultPriority
}

// SortByPriority orders files for application: ascending priority, ties
// broken by lexicographic path comparison. The order is a strict total
// order, so any permutation of the same input sorts identically.
func SortByPriority(files []SourceFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Priority != files[j].Priority {
			return files[i].Priority < files[j].Priority
		}
		return files[i].Path < files[j].Path
	})
}
