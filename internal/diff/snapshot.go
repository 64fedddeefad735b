package diff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Snapshot is a structural picture of every user-visible object in a
// database, keyed so two snapshots compare positionally.
type Snapshot struct {
	Schemas   []string
	Tables    map[string]Table  // "schema.table"
	Indexes   map[string]string // "schema.index" -> CREATE INDEX definition
	Views     map[string]string // "schema.view" -> SELECT body
	Functions map[string]string // "schema.name" -> full definition
	Triggers  map[string]string // "schema.table.trigger" -> definition
	Policies  map[string]string // "schema.table.policy" -> definition
}

type Table struct {
	Schema     string
	Name       string
	Columns    []Column // ordinal order
	PrimaryKey []string
}

type Column struct {
	Name     string
	DataType string
	NotNull  bool
	Default  string
}

func newSnapshot() Snapshot {
	return Snapshot{
		Tables:    map[string]Table{},
		Indexes:   map[string]string{},
		Views:     map[string]string{},
		Functions: map[string]string{},
		Triggers:  map[string]string{},
		Policies:  map[string]string{},
	}
}

// snapshot introspects the catalogs of one connection, skipping system
// namespaces and every schema the platform rules reserve.
func snapshot(ctx context.Context, q Querier, rules PlatformRules) (Snapshot, error) {
	snap := newSnapshot()
	excluded := append([]string{"information_schema"}, rules.ReservedSchemas...)

	rows, err := q.Query(ctx, `
SELECT schema_name
FROM information_schema.schemata
WHERE schema_name NOT LIKE 'pg\_%' AND NOT schema_name = ANY($1)
ORDER BY schema_name`, excluded)
	if err != nil {
		return snap, fmt.Errorf("list schemas: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Schemas = append(snap.Schemas, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	if err := snapshotTables(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	if err := snapshotIndexes(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	if err := snapshotViews(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	if err := snapshotFunctions(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	if err := snapshotTriggers(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	if err := snapshotPolicies(ctx, q, excluded, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func snapshotTables(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	rows, err := q.Query(ctx, `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable, COALESCE(c.column_default, '')
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE'
  AND c.table_schema NOT LIKE 'pg\_%' AND NOT c.table_schema = ANY($1)
ORDER BY c.table_schema, c.table_name, c.ordinal_position`, excluded)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, table, col, dataType, nullable, def string
		if err := rows.Scan(&schema, &table, &col, &dataType, &nullable, &def); err != nil {
			return err
		}
		key := schema + "." + table
		t, ok := snap.Tables[key]
		if !ok {
			t = Table{Schema: schema, Name: table}
		}
		t.Columns = append(t.Columns, Column{
			Name:     col,
			DataType: dataType,
			NotNull:  strings.EqualFold(nullable, "NO"),
			Default:  strings.TrimSpace(def),
		})
		snap.Tables[key] = t
	}
	if err := rows.Err(); err != nil {
		return err
	}

	pkRows, err := q.Query(ctx, `
SELECT tc.table_schema, tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema NOT LIKE 'pg\_%' AND NOT tc.table_schema = ANY($1)
ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`, excluded)
	if err != nil {
		return fmt.Errorf("list primary keys: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var schema, table, col string
		if err := pkRows.Scan(&schema, &table, &col); err != nil {
			return err
		}
		key := schema + "." + table
		t, ok := snap.Tables[key]
		if !ok {
			continue
		}
		t.PrimaryKey = append(t.PrimaryKey, col)
		snap.Tables[key] = t
	}
	return pkRows.Err()
}

func snapshotIndexes(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	// Constraint-backed indexes travel with their table definition.
	rows, err := q.Query(ctx, `
SELECT i.schemaname, i.indexname, i.indexdef
FROM pg_indexes i
WHERE i.schemaname NOT LIKE 'pg\_%' AND NOT i.schemaname = ANY($1)
  AND NOT EXISTS (
    SELECT 1 FROM pg_constraint con WHERE con.conname = i.indexname
  )
ORDER BY i.schemaname, i.indexname`, excluded)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, name, def string
		if err := rows.Scan(&schema, &name, &def); err != nil {
			return err
		}
		snap.Indexes[schema+"."+name] = def
	}
	return rows.Err()
}

func snapshotViews(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	rows, err := q.Query(ctx, `
SELECT schemaname, viewname, definition
FROM pg_views
WHERE schemaname NOT LIKE 'pg\_%' AND NOT schemaname = ANY($1)
ORDER BY schemaname, viewname`, excluded)
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, name, def string
		if err := rows.Scan(&schema, &name, &def); err != nil {
			return err
		}
		snap.Views[schema+"."+name] = strings.TrimSpace(def)
	}
	return rows.Err()
}

func snapshotFunctions(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	rows, err := q.Query(ctx, `
SELECT n.nspname, p.proname || '(' || pg_get_function_identity_arguments(p.oid) || ')', pg_get_functiondef(p.oid)
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE p.prokind IN ('f', 'p')
  AND n.nspname NOT LIKE 'pg\_%' AND NOT n.nspname = ANY($1)
  AND NOT EXISTS (
    SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e'
  )
ORDER BY 1, 2`, excluded)
	if err != nil {
		return fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, signature, def string
		if err := rows.Scan(&schema, &signature, &def); err != nil {
			return err
		}
		snap.Functions[schema+"."+signature] = strings.TrimSpace(def)
	}
	return rows.Err()
}

func snapshotTriggers(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	rows, err := q.Query(ctx, `
SELECT n.nspname, c.relname, t.tgname, pg_get_triggerdef(t.oid)
FROM pg_trigger t
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE NOT t.tgisinternal
  AND n.nspname NOT LIKE 'pg\_%' AND NOT n.nspname = ANY($1)
ORDER BY 1, 2, 3`, excluded)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, table, name, def string
		if err := rows.Scan(&schema, &table, &name, &def); err != nil {
			return err
		}
		snap.Triggers[schema+"."+table+"."+name] = def
	}
	return rows.Err()
}

func snapshotPolicies(ctx context.Context, q Querier, excluded []string, snap *Snapshot) error {
	rows, err := q.Query(ctx, `
SELECT schemaname, tablename, policyname, permissive, cmd,
       COALESCE(array_to_string(roles, ','), ''), COALESCE(qual, ''), COALESCE(with_check, '')
FROM pg_policies
WHERE schemaname NOT LIKE 'pg\_%' AND NOT schemaname = ANY($1)
ORDER BY schemaname, tablename, policyname`, excluded)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema, table, name, permissive, cmd, roles, qual, check string
		if err := rows.Scan(&schema, &table, &name, &permissive, &cmd, &roles, &qual, &check); err != nil {
			return err
		}
		snap.Policies[schema+"."+table+"."+name] = renderPolicy(schema, table, name, permissive, cmd, roles, qual, check)
	}
	return rows.Err()
}

func renderPolicy(schema, table, name, permissive, cmd, roles, qual, check string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s.%s", quoteIdent(name), quoteIdent(schema), quoteIdent(table))
	if strings.EqualFold(permissive, "RESTRICTIVE") {
		b.WriteString(" AS RESTRICTIVE")
	}
	if cmd != "" && !strings.EqualFold(cmd, "ALL") {
		b.WriteString(" FOR " + strings.ToUpper(cmd))
	}
	if roles != "" {
		b.WriteString(" TO " + roles)
	}
	if qual != "" {
		b.WriteString(" USING (" + qual + ")")
	}
	if check != "" {
		b.WriteString(" WITH CHECK (" + check + ")")
	}
	b.WriteString(";")
	return b.String()
}

// canonical renders the snapshot as a deterministic text form. It is the
// fingerprint input, so two structurally identical databases always render
// identically.
func (s Snapshot) canonical() string {
	var b strings.Builder
	b.WriteString("schemas:")
	schemas := append([]string(nil), s.Schemas...)
	sort.Strings(schemas)
	for _, sc := range schemas {
		b.WriteString(" " + sc)
	}
	b.WriteString("\n")

	for _, key := range sortedKeys(s.Tables) {
		t := s.Tables[key]
		fmt.Fprintf(&b, "table %s:", key)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, " %s %s notnull=%v default=%q;", c.Name, c.DataType, c.NotNull, c.Default)
		}
		fmt.Fprintf(&b, " pk=%s\n", strings.Join(t.PrimaryKey, ","))
	}
	writeSection(&b, "index", s.Indexes)
	writeSection(&b, "view", s.Views)
	writeSection(&b, "function", s.Functions)
	writeSection(&b, "trigger", s.Triggers)
	writeSection(&b, "policy", s.Policies)
	return b.String()
}

func writeSection(b *strings.Builder, label string, m map[string]string) {
	for _, key := range sortedKeys(m) {
		fmt.Fprintf(b, "%s %s: %s\n", label, key, m[key])
	}
}

func fingerprintOf(s Snapshot) string {
	sum := sha256.Sum256([]byte(s.canonical()))
	return hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
