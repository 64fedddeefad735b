package filter

import "regexp"

// Kind is the inferred object-kind classification of a statement. The
// values double as pull-output category names.
type Kind string

const (
	KindTypes     Kind = "types"
	KindTables    Kind = "tables"
	KindIndexes   Kind = "indexes"
	KindFunctions Kind = "functions"
	KindTriggers  Kind = "triggers"
	KindPolicies  Kind = "rls"
	KindGrants    Kind = "grants"
	KindOther     Kind = "other"
)

// Kinds lists every category in pull-output order.
var Kinds = []Kind{
	KindTypes, KindTables, KindIndexes, KindFunctions,
	KindTriggers, KindPolicies, KindGrants, KindOther,
}

var (
	policyRe = regexp.MustCompile(`(?is)^\s*(create|alter|drop)\s+policy\b`)
	rlsRe    = regexp.MustCompile(`(?is)\brow\s+level\s+security\b`)
	typeRe   = regexp.MustCompile(`(?is)^\s*(create|alter|drop)\s+(type|domain)\b`)
	trigRe   = regexp.MustCompile(`(?is)^\s*(create(\s+or\s+replace)?(\s+constraint)?|alter|drop)\s+trigger\b`)
	indexRe  = regexp.MustCompile(`(?is)^\s*(create\s+(unique\s+)?index|drop\s+index|alter\s+index)\b`)
	funcRe   = regexp.MustCompile(`(?is)^\s*(create(\s+or\s+replace)?|alter|drop)\s+(function|procedure|(materialized\s+)?view)\b`)
	tableRe  = regexp.MustCompile(`(?is)^\s*((create|alter|drop)\s+(foreign\s+)?table|comment\s+on\s+(table|column))\b`)
	grantRe  = regexp.MustCompile(`(?is)^\s*(grant|revoke)\b`)
)

// Classify buckets a statement by keyword. ALTER TABLE statements that
// toggle row-level security are policy statements, not table statements,
// so they land next to their CREATE POLICY siblings on pull.
func Classify(stmt string) Kind {
	switch {
	case policyRe.MatchString(stmt) || rlsRe.MatchString(stmt):
		return KindPolicies
	case typeRe.MatchString(stmt):
		return KindTypes
	case trigRe.MatchString(stmt):
		return KindTriggers
	case indexRe.MatchString(stmt):
		return KindIndexes
	case funcRe.MatchString(stmt):
		return KindFunctions
	case tableRe.MatchString(stmt):
		return KindTables
	case grantRe.MatchString(stmt):
		return KindGrants
	default:
		return KindOther
	}
}
