package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db_declarative_schema_syncer/internal/filter"
)

func tableFoo() Table {
	return Table{
		Schema: "public",
		Name:   "foo",
		Columns: []Column{
			{Name: "id", DataType: "uuid", NotNull: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestGenerateCreateTable(t *testing.T) {
	from := newSnapshot()
	from.Schemas = []string{"public"}
	to := newSnapshot()
	to.Schemas = []string{"public"}
	to.Tables["public.foo"] = tableFoo()

	stmts := generate(from, to)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `CREATE TABLE "public"."foo"`)
	assert.Contains(t, stmts[0], `"id" uuid NOT NULL`)
	assert.Contains(t, stmts[0], `PRIMARY KEY ("id")`)
}

func TestGenerateNoChanges(t *testing.T) {
	snap := newSnapshot()
	snap.Schemas = []string{"public"}
	snap.Tables["public.foo"] = tableFoo()
	snap.Indexes["public.foo_idx"] = "CREATE INDEX foo_idx ON public.foo USING btree (id)"

	assert.Empty(t, generate(snap, snap))
}

func TestGenerateColumnChanges(t *testing.T) {
	from := newSnapshot()
	fromTable := tableFoo()
	fromTable.Columns = append(fromTable.Columns,
		Column{Name: "note", DataType: "text"},
		Column{Name: "amount", DataType: "integer", Default: "0"},
	)
	from.Tables["public.foo"] = fromTable

	to := newSnapshot()
	toTable := tableFoo()
	toTable.Columns = append(toTable.Columns,
		Column{Name: "amount", DataType: "bigint", NotNull: true},
		Column{Name: "created_at", DataType: "timestamptz", Default: "now()"},
	)
	to.Tables["public.foo"] = toTable

	stmts := generate(from, to)
	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, `ALTER COLUMN "amount" TYPE bigint`)
	assert.Contains(t, joined, `ALTER COLUMN "amount" SET NOT NULL`)
	assert.Contains(t, joined, `ALTER COLUMN "amount" DROP DEFAULT`)
	assert.Contains(t, joined, `ADD COLUMN "created_at" timestamptz DEFAULT now()`)
	assert.Contains(t, joined, `DROP COLUMN "note"`)
}

func TestGenerateDropsDependentsBeforeTables(t *testing.T) {
	from := newSnapshot()
	from.Tables["public.foo"] = tableFoo()
	from.Policies["public.foo.owner_only"] = `CREATE POLICY "owner_only" ON "public"."foo" USING (true);`
	from.Indexes["public.foo_idx"] = "CREATE INDEX foo_idx ON public.foo USING btree (id)"
	to := newSnapshot()

	stmts := generate(from, to)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "DROP POLICY")
	assert.Contains(t, stmts[1], "DROP INDEX")
	assert.Contains(t, stmts[2], "DROP TABLE")
}

func TestGenerateRecreatesChangedIndexThroughHoldingName(t *testing.T) {
	from := newSnapshot()
	from.Indexes["public.foo_idx"] = "CREATE INDEX foo_idx ON public.foo USING btree (id)"
	to := newSnapshot()
	to.Indexes["public.foo_idx"] = "CREATE INDEX foo_idx ON public.foo USING btree (id, created_at)"

	stmts := generate(from, to)
	require.Len(t, stmts, 3)
	assert.Equal(t, `ALTER INDEX "public"."foo_idx" RENAME TO "foo_idx_replaced";`, stmts[0])
	assert.Equal(t, "CREATE INDEX foo_idx ON public.foo USING btree (id, created_at);", stmts[1])
	assert.Equal(t, `DROP INDEX IF EXISTS "public"."foo_idx_replaced";`, stmts[2])
}

// An index change must survive the downstream statement filter, which
// cancels same-name drop/create pairs as recreate noise.
func TestChangedIndexSurvivesStatementFilter(t *testing.T) {
	from := newSnapshot()
	from.Indexes["public.orders_idx"] = "CREATE INDEX orders_idx ON public.orders USING btree (id)"
	to := newSnapshot()
	to.Indexes["public.orders_idx"] = "CREATE INDEX orders_idx ON public.orders USING btree (id, created_at)"

	actionable := filter.Statements(generate(from, to))
	require.NotEmpty(t, actionable)
	joined := strings.Join(actionable, "\n")
	assert.Contains(t, joined, "USING btree (id, created_at)")
	assert.Contains(t, joined, `RENAME TO "orders_idx_replaced"`)
	assert.Contains(t, joined, `DROP INDEX IF EXISTS "public"."orders_idx_replaced"`)
}

func TestGenerateFunctionAndTriggerOrdering(t *testing.T) {
	from := newSnapshot()
	to := newSnapshot()
	to.Functions["public.touch()"] = "CREATE OR REPLACE FUNCTION public.touch() RETURNS trigger LANGUAGE plpgsql AS $$ BEGIN RETURN NEW; END $$"
	to.Triggers["public.foo.touch_trg"] = "CREATE TRIGGER touch_trg BEFORE UPDATE ON public.foo FOR EACH ROW EXECUTE FUNCTION public.touch()"

	stmts := generate(from, to)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE OR REPLACE FUNCTION")
	assert.Contains(t, stmts[1], "CREATE TRIGGER")
}

func TestGenerateDeterministicOrder(t *testing.T) {
	build := func() Snapshot {
		s := newSnapshot()
		s.Schemas = []string{"public", "accounting"}
		s.Tables["public.b"] = Table{Schema: "public", Name: "b", Columns: []Column{{Name: "id", DataType: "bigint"}}}
		s.Tables["public.a"] = Table{Schema: "public", Name: "a", Columns: []Column{{Name: "id", DataType: "bigint"}}}
		s.Indexes["public.ib"] = "CREATE INDEX ib ON public.b USING btree (id)"
		s.Indexes["public.ia"] = "CREATE INDEX ia ON public.a USING btree (id)"
		return s
	}
	first := generate(newSnapshot(), build())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, generate(newSnapshot(), build()))
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	snap := newSnapshot()
	snap.Schemas = []string{"public"}
	snap.Tables["public.foo"] = tableFoo()

	fp1 := fingerprintOf(snap)
	fp2 := fingerprintOf(snap)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	changed := newSnapshot()
	changed.Schemas = []string{"public"}
	table := tableFoo()
	table.Columns = append(table.Columns, Column{Name: "x", DataType: "text"})
	changed.Tables["public.foo"] = table
	assert.NotEqual(t, fp1, fingerprintOf(changed))
}

func TestQualifySignature(t *testing.T) {
	assert.Equal(t, `"public"."touch"(integer, text)`, qualifySignature("public.touch(integer, text)"))
	assert.Equal(t, `"public"."touch"()`, qualifySignature("public.touch()"))
}

func TestRenderPolicy(t *testing.T) {
	got := renderPolicy("public", "orders", "owner_only", "PERMISSIVE", "SELECT", "authenticated", "owner = current_user", "")
	assert.Equal(t, `CREATE POLICY "owner_only" ON "public"."orders" FOR SELECT TO authenticated USING (owner = current_user);`, got)

	restrictive := renderPolicy("public", "orders", "deny", "RESTRICTIVE", "ALL", "", "", "false")
	assert.Equal(t, `CREATE POLICY "deny" ON "public"."orders" AS RESTRICTIVE WITH CHECK (false);`, restrictive)
}
