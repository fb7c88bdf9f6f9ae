package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
	"github.com/sqldrift/sqldrift/flavour"
)

func mustRenderer(t *testing.T, kind flavour.Kind) Renderer {
	t.Helper()
	f, err := flavour.New(kind)
	require.NoError(t, err)
	return New(f)
}

func strptr(s string) *string { return &s }

func TestRenderAddColumnWithDefault(t *testing.T) {
	step := diff.Step{
		Kind:   diff.StepAddColumn,
		Table:  "users",
		Column: &describe.Column{Name: "status", Type: "VARCHAR(20)", Default: strptr("'active'")},
	}

	tests := []struct {
		kind     flavour.Kind
		expected string
	}{
		{flavour.Postgres, `ALTER TABLE "users" ADD COLUMN "status" VARCHAR(20) NOT NULL DEFAULT 'active'`},
		{flavour.MySQL, "ALTER TABLE `users` ADD COLUMN `status` VARCHAR(20) NOT NULL DEFAULT 'active'"},
		{flavour.SQLite, `ALTER TABLE "users" ADD COLUMN "status" VARCHAR(20) NOT NULL DEFAULT 'active'`},
		{flavour.SQLServer, `ALTER TABLE [users] ADD [status] VARCHAR(20) NOT NULL DEFAULT 'active'`},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			stmts, err := mustRenderer(t, tt.kind).RenderStep(step)
			require.NoError(t, err)
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.expected, stmts[0])
		})
	}
}

func TestRenderCreateTablePostgres(t *testing.T) {
	r := mustRenderer(t, flavour.Postgres)
	step := diff.Step{
		Kind:  diff.StepCreateTable,
		Table: "users",
		TableDef: &describe.Table{
			Name: "users",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER", AutoIncrement: true},
				{Name: "email", Type: "VARCHAR(255)"},
				{Name: "bio", Type: "TEXT", Nullable: true},
			},
			PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
		},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	assert.Contains(t, stmts[0], `CREATE TABLE "users"`)
	assert.Contains(t, stmts[0], `"id" SERIAL`)
	assert.Contains(t, stmts[0], `"email" VARCHAR(255) NOT NULL`)
	assert.NotContains(t, stmts[0], `"bio" TEXT NOT NULL`)
	assert.Contains(t, stmts[0], `PRIMARY KEY ("id")`)
}

func TestRenderCreateTableSQLiteInlinesForeignKeys(t *testing.T) {
	r := mustRenderer(t, flavour.SQLite)
	step := diff.Step{
		Kind:  diff.StepCreateTable,
		Table: "posts",
		TableDef: &describe.Table{
			Name: "posts",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER", AutoIncrement: true},
				{Name: "author_id", Type: "INTEGER"},
			},
			PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []describe.ForeignKey{{
				Name:              "posts_author_id_fkey",
				Columns:           []string{"author_id"},
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
				OnDelete:          "CASCADE",
			}},
		},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	assert.Contains(t, stmts[0], `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, stmts[0], `FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE CASCADE`)
	assert.NotContains(t, stmts[0], `PRIMARY KEY ("id")`,
		"single autoincrement key is declared on the column")
}

func TestRenderCreateTableMySQLKeepsForeignKeysOut(t *testing.T) {
	r := mustRenderer(t, flavour.MySQL)
	step := diff.Step{
		Kind:  diff.StepCreateTable,
		Table: "posts",
		TableDef: &describe.Table{
			Name:    "posts",
			Columns: []describe.Column{{Name: "author_id", Type: "INT"}},
			ForeignKeys: []describe.ForeignKey{{
				Columns:           []string{"author_id"},
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
			}},
		},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.NotContains(t, stmts[0], "FOREIGN KEY",
		"backends with ALTER support get their foreign keys as separate steps")
}

func TestRenderAlterColumnPostgres(t *testing.T) {
	r := mustRenderer(t, flavour.Postgres)
	step := diff.Step{
		Kind:       diff.StepAlterColumn,
		Table:      "users",
		PrevColumn: &describe.Column{Name: "age", Type: "SMALLINT", Nullable: true},
		Column:     &describe.Column{Name: "age", Type: "INTEGER", Default: strptr("0")},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" TYPE INTEGER USING "age"::INTEGER`, stmts[0])
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" SET NOT NULL`, stmts[1])
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" SET DEFAULT 0`, stmts[2])
}

func TestRenderAlterColumnMySQLRestatesDefinition(t *testing.T) {
	r := mustRenderer(t, flavour.MySQL)
	step := diff.Step{
		Kind:       diff.StepAlterColumn,
		Table:      "users",
		PrevColumn: &describe.Column{Name: "age", Type: "SMALLINT"},
		Column:     &describe.Column{Name: "age", Type: "INT"},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `age` INT NOT NULL", stmts[0])
}

func TestRenderRedefineTableSQLite(t *testing.T) {
	r := mustRenderer(t, flavour.SQLite)
	step := diff.Step{
		Kind:  diff.StepRedefineTable,
		Table: "users",
		TableDef: &describe.Table{
			Name: "users",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "email", Type: "TEXT"},
			},
			PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
			Indexes:    []describe.Index{{Name: "users_email_key", Columns: []string{"email"}, Unique: true}},
		},
		PrevTableDef: &describe.Table{
			Name: "users",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "email", Type: "TEXT"},
				{Name: "phone", Type: "TEXT", Nullable: true},
			},
		},
		DroppedColumns: []string{"phone"},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)

	joined := strings.Join(stmts, ";\n")
	// The rebuild runs inside the migration transaction, so the checks on
	// rows referencing the table must be deferred to commit; toggling
	// foreign_keys has no effect there.
	assert.Equal(t, "PRAGMA defer_foreign_keys = ON", stmts[0])
	assert.NotContains(t, joined, "foreign_keys=OFF")
	assert.NotContains(t, joined, "foreign_keys=ON")
	assert.Contains(t, joined, `CREATE TABLE "_sqldrift_new_users"`)
	assert.Contains(t, joined, `INSERT INTO "_sqldrift_new_users" ("id", "email") SELECT "id", "email" FROM "users"`)
	assert.Contains(t, joined, `DROP TABLE "users"`)
	assert.Contains(t, joined, `ALTER TABLE "_sqldrift_new_users" RENAME TO "users"`)
	assert.Contains(t, joined, `CREATE UNIQUE INDEX "users_email_key" ON "users" ("email")`)
}

func TestRenderDropForeignKeyPerDialect(t *testing.T) {
	step := diff.Step{Kind: diff.StepDropForeignKey, Table: "posts", ForeignKeyName: "posts_author_id_fkey"}

	tests := []struct {
		kind     flavour.Kind
		expected string
	}{
		{flavour.Postgres, `ALTER TABLE "posts" DROP CONSTRAINT "posts_author_id_fkey"`},
		{flavour.MySQL, "ALTER TABLE `posts` DROP FOREIGN KEY `posts_author_id_fkey`"},
		{flavour.SQLServer, `ALTER TABLE [posts] DROP CONSTRAINT [posts_author_id_fkey]`},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			stmts, err := mustRenderer(t, tt.kind).RenderStep(step)
			require.NoError(t, err)
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.expected, stmts[0])
		})
	}
}

func TestRenderSQLServerIdentityColumn(t *testing.T) {
	r := mustRenderer(t, flavour.SQLServer)
	step := diff.Step{
		Kind:  diff.StepCreateTable,
		Table: "users",
		TableDef: &describe.Table{
			Name:       "users",
			Columns:    []describe.Column{{Name: "id", Type: "INT", AutoIncrement: true}},
			PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
		},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "[id] INT IDENTITY(1,1) NOT NULL")
}

func TestRenderGeneratedConstraintNamesAreConstrained(t *testing.T) {
	r := mustRenderer(t, flavour.Postgres)
	longTable := strings.Repeat("t", 80)
	step := diff.Step{
		Kind:  diff.StepAddForeignKey,
		Table: longTable,
		ForeignKey: &describe.ForeignKey{
			Columns:           []string{"other_id"},
			ReferencedTable:   "other",
			ReferencedColumns: []string{"id"},
		},
	}

	stmts, err := r.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	// The generated constraint name must fit Postgres's 63-byte limit.
	start := strings.Index(stmts[0], "CONSTRAINT \"") + len("CONSTRAINT \"")
	end := strings.Index(stmts[0][start:], "\"")
	assert.LessOrEqual(t, end, 63)
}

func TestRenderUnsupportedStepFails(t *testing.T) {
	r := mustRenderer(t, flavour.SQLite)
	_, err := r.RenderStep(diff.Step{Kind: diff.StepDropColumn, Table: "t", ColumnName: "c"})
	assert.ErrorIs(t, err, flavour.ErrUnsupportedFeature)
}
