// Package filter reduces a raw structural diff to the statements a user
// actually owns. The decision table is text-pattern based rather than a
// full SQL parse; patterns tolerate case and whitespace variance but not
// exotic quoting, a known fragility kept behind Classify and
// IsPlatformManaged so a SQL-aware matcher can replace it without touching
// callers.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// ReservedSchemas are namespaces the hosting platform owns. DDL touching
// them, or merely referencing into them, is never actionable.
var ReservedSchemas = []string{
	"auth",
	"extensions",
	"graphql",
	"graphql_public",
	"pgbouncer",
	"realtime",
	"storage",
	"vault",
}

// PlatformPublication is the change-feed publication the platform manages.
const PlatformPublication = "realtime_changes"

var (
	sessionSetRe   = regexp.MustCompile(`(?is)^\s*set\s+`)
	alterRoleRe    = regexp.MustCompile(`(?is)^\s*alter\s+role\b`)
	defaultPrivsRe = regexp.MustCompile(`(?is)^\s*alter\s+default\s+privileges\b`)
	publicationRe  = regexp.MustCompile(`(?is)^\s*(drop|alter)\s+publication\s+"?` + PlatformPublication + `"?\b`)
	publicSchemaRe = regexp.MustCompile(`(?is)^\s*(grant|revoke)\b.*\bon\s+schema\s+"?public"?\b`)

	ddlRe = regexp.MustCompile(`(?is)\b(create|alter|drop)\s+(unique\s+)?(table|policy|index|function|trigger|view|type|sequence)\b`)

	dropIndexNameRe   = regexp.MustCompile(`(?is)\bdrop\s+index\s+(?:concurrently\s+)?(?:if\s+exists\s+)?(?:"?[\w$]+"?\.)?"?([\w$]+)"?`)
	createIndexNameRe = regexp.MustCompile(`(?is)\bcreate\s+(?:unique\s+)?index\s+(?:concurrently\s+)?(?:if\s+not\s+exists\s+)?"?([\w$]+)"?`)
)

// Per reserved schema: a qualified reference ("auth."), an IN SCHEMA
// clause, a REFERENCES clause, or a dropped foreign-key constraint whose
// conventional name points into the schema.
var reservedRefRes = buildReservedRefs()

func buildReservedRefs() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(ReservedSchemas))
	for _, s := range ReservedSchemas {
		pattern := fmt.Sprintf(
			`(?is)(\b"?%[1]s"?\.|\bin\s+schema\s+"?%[1]s"?\b|\breferences\s+"?%[1]s"?\.|\bdrop\s+constraint\s+(?:if\s+exists\s+)?"?\w*_%[1]s_\w*fkey"?)`,
			regexp.QuoteMeta(s),
		)
		out = append(out, regexp.MustCompile(pattern))
	}
	return out
}

// Statements applies the platform decision table to a raw diff, in order:
// session SETs, role and default-privilege changes, change-feed publication
// DDL, public-schema grants, reserved-schema DDL, and drop/create index
// pairs that cancel out. It is pure: order-preserving for survivors,
// idempotent, and history-free.
func Statements(in []string) []string {
	recreated := recreatedIndexes(in)

	out := make([]string, 0, len(in))
	for _, stmt := range in {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if sessionSetRe.MatchString(stmt) {
			continue
		}
		if IsPlatformManaged(stmt) {
			continue
		}
		if name, ok := indexName(stmt); ok {
			if _, dropped := recreated[strings.ToLower(name)]; dropped {
				continue
			}
		}
		out = append(out, stmt)
	}
	return out
}

// IsPlatformManaged reports whether a statement targets an object the
// platform owns: roles, default privileges, the change-feed publication,
// the public working schema's baseline grants, or anything in a reserved
// schema.
func IsPlatformManaged(stmt string) bool {
	if alterRoleRe.MatchString(stmt) ||
		defaultPrivsRe.MatchString(stmt) ||
		publicationRe.MatchString(stmt) ||
		publicSchemaRe.MatchString(stmt) {
		return true
	}
	if ddlRe.MatchString(stmt) {
		for _, re := range reservedRefRes {
			if re.MatchString(stmt) {
				return true
			}
		}
	}
	return false
}

// recreatedIndexes finds index names appearing in both a DROP INDEX and a
// CREATE INDEX within the same diff. The pair is serialization noise from
// the differ, not a change.
func recreatedIndexes(stmts []string) map[string]struct{} {
	dropped := map[string]struct{}{}
	created := map[string]struct{}{}
	for _, stmt := range stmts {
		if m := dropIndexNameRe.FindStringSubmatch(stmt); m != nil {
			dropped[strings.ToLower(m[1])] = struct{}{}
		}
		if m := createIndexNameRe.FindStringSubmatch(stmt); m != nil {
			created[strings.ToLower(m[1])] = struct{}{}
		}
	}
	both := map[string]struct{}{}
	for name := range dropped {
		if _, ok := created[name]; ok {
			both[name] = struct{}{}
		}
	}
	return both
}

func indexName(stmt string) (string, bool) {
	if m := dropIndexNameRe.FindStringSubmatch(stmt); m != nil {
		return m[1], true
	}
	if m := createIndexNameRe.FindStringSubmatch(stmt); m != nil {
		return m[1], true
	}
	return "", false
}
