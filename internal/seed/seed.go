// Package seed executes a user-provided data script against the target
// database. Seeds run only after a successful schema apply.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunFile reads the script at path and runs it statement by statement.
// Returns the number of statements executed.
func RunFile(ctx context.Context, ex Executor, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	n, err := Run(ctx, ex, string(raw))
	if err != nil {
		return n, fmt.Errorf("seed %s: %w", path, err)
	}
	return n, nil
}

// Run splits the script on semicolons outside quotes and executes each
// statement in order, stopping at the first failure.
func Run(ctx context.Context, ex Executor, script string) (int, error) {
	statements := Split(script)
	for i, stmt := range statements {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(statements), nil
}

// Split breaks a script into statements. Semicolons inside single quotes,
// double quotes or dollar-quoted bodies do not terminate a statement.
func Split(sqlText string) []string {
	var (
		out      []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		inDollar bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\'':
			if !inDouble && !inDollar {
				inSingle = !inSingle
			}
			current.WriteRune(r)
		case '"':
			if !inSingle && !inDollar {
				inDouble = !inDouble
			}
			current.WriteRune(r)
		case '$':
			if !inSingle && !inDouble && i+1 < len(runes) && runes[i+1] == '$' {
				inDollar = !inDollar
				current.WriteRune(r)
				current.WriteRune(runes[i+1])
				i++
				continue
			}
			current.WriteRune(r)
		case ';':
			if inSingle || inDouble || inDollar {
				current.WriteRune(r)
			} else {
				flush()
			}
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
