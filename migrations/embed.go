// Package migrations embeds the schema the platform ships for its built-in
// subsystems. These are seeded into every shadow database so diffs never
// report platform internals as user changes.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

func FS() fs.FS {
	return files
}
