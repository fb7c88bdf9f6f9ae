package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
)

func mustFlavour(t *testing.T, kind flavour.Kind) flavour.Flavour {
	t.Helper()
	f, err := flavour.New(kind)
	require.NoError(t, err)
	return f
}

func strptr(s string) *string { return &s }

func usersTable() describe.Table {
	return describe.Table{
		Name: "users",
		Columns: []describe.Column{
			{Name: "id", Type: "INTEGER", AutoIncrement: true},
			{Name: "email", Type: "VARCHAR(255)"},
		},
		PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
		Indexes: []describe.Index{
			{Name: "users_email_key", Columns: []string{"email"}, Unique: true},
		},
	}
}

func postsTable() describe.Table {
	return describe.Table{
		Name: "posts",
		Columns: []describe.Column{
			{Name: "id", Type: "INTEGER", AutoIncrement: true},
			{Name: "author_id", Type: "INTEGER"},
		},
		PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
		ForeignKeys: []describe.ForeignKey{
			{
				Name:              "posts_author_id_fkey",
				Columns:           []string{"author_id"},
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
				OnDelete:          "CASCADE",
			},
		},
	}
}

func TestDiffIdenticalSchemas(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	schema := &describe.Schema{Tables: []describe.Table{usersTable(), postsTable()}}

	steps := Diff(schema, schema, f)

	assert.Empty(t, steps)
}

func TestDiffIgnoresBookkeepingTables(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{
		{Name: flavour.MigrationsTableName, Columns: []describe.Column{{Name: "id", Type: "VARCHAR(36)"}}},
		{Name: "_sqldrift_lock", Columns: []describe.Column{{Name: "id", Type: "INTEGER"}}},
	}}
	to := &describe.Schema{}

	steps := Diff(from, to, f)

	assert.Empty(t, steps)
}

func TestDiffCreatesReferencedTableFirst(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{}
	to := &describe.Schema{Tables: []describe.Table{postsTable(), usersTable()}}

	steps := Diff(from, to, f)

	var creates []string
	fkIndex, lastCreate := -1, -1
	for i, s := range steps {
		switch s.Kind {
		case StepCreateTable:
			creates = append(creates, s.Table)
			lastCreate = i
		case StepAddForeignKey:
			fkIndex = i
		}
	}
	require.Equal(t, []string{"users", "posts"}, creates)
	require.NotEqual(t, -1, fkIndex)
	assert.Greater(t, fkIndex, lastCreate, "foreign keys must be added after every table exists")
}

func TestDiffSelfReferencingTable(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	employees := describe.Table{
		Name: "employees",
		Columns: []describe.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "manager_id", Type: "INTEGER", Nullable: true},
		},
		PrimaryKey: &describe.PrimaryKey{Columns: []string{"id"}},
		ForeignKeys: []describe.ForeignKey{
			{Columns: []string{"manager_id"}, ReferencedTable: "employees", ReferencedColumns: []string{"id"}},
		},
	}

	steps := Diff(&describe.Schema{}, &describe.Schema{Tables: []describe.Table{employees}}, f)

	require.Len(t, steps, 2)
	assert.Equal(t, StepCreateTable, steps[0].Kind)
	assert.Equal(t, StepAddForeignKey, steps[1].Kind)
}

func TestDiffDropsReferencingTableFirst(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{usersTable(), postsTable()}}
	to := &describe.Schema{}

	steps := Diff(from, to, f)

	var drops []string
	for _, s := range steps {
		if s.Kind == StepDropTable {
			drops = append(drops, s.Table)
		}
	}
	assert.Equal(t, []string{"posts", "users"}, drops)
}

func TestDiffAddAndDropColumn(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	users := usersTable()
	from := &describe.Schema{Tables: []describe.Table{users}}

	changed := usersTable()
	changed.Columns = []describe.Column{
		{Name: "id", Type: "INTEGER", AutoIncrement: true},
		{Name: "name", Type: "TEXT", Nullable: true},
	}
	to := &describe.Schema{Tables: []describe.Table{changed}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 2)
	assert.Equal(t, StepAddColumn, steps[0].Kind)
	assert.Equal(t, "name", steps[0].Column.Name)
	assert.Equal(t, StepDropColumn, steps[1].Kind)
	assert.Equal(t, "email", steps[1].ColumnName)
}

func TestDiffTypeAliasesAreNotChanges(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "n", Type: "INT4"}},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "n", Type: "INTEGER"}},
	}}}

	assert.Empty(t, Diff(from, to, f))
}

func TestDiffDefaultChange(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "n", Type: "INTEGER", Default: strptr("1")}},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "n", Type: "INTEGER", Default: strptr("2")}},
	}}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 1)
	assert.Equal(t, StepAlterColumn, steps[0].Kind)
	assert.Equal(t, "1", *steps[0].PrevColumn.Default)
	assert.Equal(t, "2", *steps[0].Column.Default)
}

func TestDiffIndexMatchedByStructureNotName(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
		Indexes: []describe.Index{{Name: "old_name", Columns: []string{"a"}, Unique: true}},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
		Indexes: []describe.Index{{Name: "new_name", Columns: []string{"a"}, Unique: true}},
	}}}

	assert.Empty(t, Diff(from, to, f))
}

func TestDiffUniquenessChangeRecreatesIndex(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
		Indexes: []describe.Index{{Name: "t_a_idx", Columns: []string{"a"}}},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
		Indexes: []describe.Index{{Name: "t_a_idx", Columns: []string{"a"}, Unique: true}},
	}}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 2)
	assert.Equal(t, StepDropIndex, steps[0].Kind)
	assert.Equal(t, StepCreateIndex, steps[1].Kind)
	assert.True(t, steps[1].Index.Unique)
}

func TestDiffSQLiteDropColumnBecomesRedefine(t *testing.T) {
	f := mustFlavour(t, flavour.SQLite)
	from := &describe.Schema{Tables: []describe.Table{{
		Name: "t",
		Columns: []describe.Column{
			{Name: "a", Type: "INTEGER"},
			{Name: "b", Type: "TEXT", Nullable: true},
		},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
	}}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 1)
	step := steps[0]
	assert.Equal(t, StepRedefineTable, step.Kind)
	assert.Equal(t, []string{"b"}, step.DroppedColumns)
	require.NotNil(t, step.TableDef)
	require.NotNil(t, step.PrevTableDef)
	assert.Len(t, step.TableDef.Columns, 1)
}

func TestDiffSQLiteForeignKeyOnNewTableStaysInline(t *testing.T) {
	f := mustFlavour(t, flavour.SQLite)
	to := &describe.Schema{Tables: []describe.Table{usersTable(), postsTable()}}

	steps := Diff(&describe.Schema{}, to, f)

	for _, s := range steps {
		assert.NotEqual(t, StepAddForeignKey, s.Kind,
			"sqlite cannot add foreign keys after table creation")
		assert.NotEqual(t, StepRedefineTable, s.Kind,
			"new tables never need a rebuild")
	}
}

func TestDiffSQLiteForeignKeyOnExistingTableBecomesRedefine(t *testing.T) {
	f := mustFlavour(t, flavour.SQLite)
	users := usersTable()
	noFK := postsTable()
	noFK.ForeignKeys = nil
	from := &describe.Schema{Tables: []describe.Table{users, noFK}}
	to := &describe.Schema{Tables: []describe.Table{usersTable(), postsTable()}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 1)
	assert.Equal(t, StepRedefineTable, steps[0].Kind)
	assert.Equal(t, "posts", steps[0].Table)
}

func TestDiffPostgresDropColumnStaysDropColumn(t *testing.T) {
	f := mustFlavour(t, flavour.Postgres)
	from := &describe.Schema{Tables: []describe.Table{{
		Name: "t",
		Columns: []describe.Column{
			{Name: "a", Type: "INTEGER"},
			{Name: "b", Type: "TEXT", Nullable: true},
		},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name:    "t",
		Columns: []describe.Column{{Name: "a", Type: "INTEGER"}},
	}}}

	steps := Diff(from, to, f)

	require.Len(t, steps, 1)
	assert.Equal(t, StepDropColumn, steps[0].Kind)
}
