package destructive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
	"github.com/sqldrift/sqldrift/flavour"
)

func strptr(s string) *string { return &s }

func TestCheckDropTable(t *testing.T) {
	steps := []diff.Step{{Kind: diff.StepDropTable, Table: "users"}}

	t.Run("populated table is unexecutable", func(t *testing.T) {
		diags := Check(steps, RowCountHints{"users": 3})
		require.Len(t, diags, 1)
		assert.Equal(t, Unexecutable, diags[0].Severity)
		assert.Equal(t, 0, diags[0].StepIndex)
		assert.Contains(t, diags[0].Message, "3 row(s)")
	})

	t.Run("empty table is silent", func(t *testing.T) {
		assert.Empty(t, Check(steps, RowCountHints{"users": 0}))
	})

	t.Run("unknown table is treated as empty", func(t *testing.T) {
		assert.Empty(t, Check(steps, nil))
	})
}

func TestCheckDropColumn(t *testing.T) {
	steps := []diff.Step{{Kind: diff.StepDropColumn, Table: "users", ColumnName: "email"}}

	diags := Check(steps, RowCountHints{"users": 1})

	require.Len(t, diags, 1)
	assert.Equal(t, Unexecutable, diags[0].Severity)
	assert.Contains(t, diags[0].Message, `"email"`)
}

func TestCheckAddRequiredColumn(t *testing.T) {
	tests := []struct {
		name     string
		column   describe.Column
		rows     int64
		expected int
		severity Severity
	}{
		{
			name:     "required without default on populated table",
			column:   describe.Column{Name: "age", Type: "INTEGER"},
			rows:     5,
			expected: 1,
			severity: Unexecutable,
		},
		{
			name:   "required with default is fine",
			column: describe.Column{Name: "age", Type: "INTEGER", Default: strptr("0")},
			rows:   5,
		},
		{
			name:   "nullable without default is fine",
			column: describe.Column{Name: "age", Type: "INTEGER", Nullable: true},
			rows:   5,
		},
		{
			name:   "required without default on empty table is fine",
			column: describe.Column{Name: "age", Type: "INTEGER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := []diff.Step{{Kind: diff.StepAddColumn, Table: "users", Column: &tt.column}}
			diags := Check(steps, RowCountHints{"users": tt.rows})
			require.Len(t, diags, tt.expected)
			if tt.expected > 0 {
				assert.Equal(t, tt.severity, diags[0].Severity)
			}
		})
	}
}

func TestCheckAlterColumn(t *testing.T) {
	tests := []struct {
		name     string
		prev     describe.Column
		next     describe.Column
		expected int
		severity Severity
	}{
		{
			name:     "narrowing varchar warns",
			prev:     describe.Column{Name: "email", Type: "VARCHAR(255)"},
			next:     describe.Column{Name: "email", Type: "VARCHAR(50)"},
			expected: 1,
			severity: Warning,
		},
		{
			name:     "narrowing decimal scale warns",
			prev:     describe.Column{Name: "price", Type: "DECIMAL(10,4)"},
			next:     describe.Column{Name: "price", Type: "DECIMAL(10,2)"},
			expected: 1,
			severity: Warning,
		},
		{
			name:     "cross-type change warns",
			prev:     describe.Column{Name: "n", Type: "TEXT", Nullable: true},
			next:     describe.Column{Name: "n", Type: "INTEGER", Nullable: true},
			expected: 1,
			severity: Warning,
		},
		{
			name:     "nullable to required without default is unexecutable",
			prev:     describe.Column{Name: "n", Type: "INTEGER", Nullable: true},
			next:     describe.Column{Name: "n", Type: "INTEGER"},
			expected: 1,
			severity: Unexecutable,
		},
		{
			name: "nullable to required with default is fine",
			prev: describe.Column{Name: "n", Type: "INTEGER", Nullable: true},
			next: describe.Column{Name: "n", Type: "INTEGER", Default: strptr("0")},
		},
		{
			name: "widening is fine",
			prev: describe.Column{Name: "email", Type: "VARCHAR(50)"},
			next: describe.Column{Name: "email", Type: "VARCHAR(255)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := []diff.Step{{
				Kind:       diff.StepAlterColumn,
				Table:      "users",
				PrevColumn: &tt.prev,
				Column:     &tt.next,
			}}
			diags := Check(steps, RowCountHints{"users": 10})
			require.Len(t, diags, tt.expected)
			if tt.expected > 0 {
				assert.Equal(t, tt.severity, diags[0].Severity)
			}
		})
	}
}

func TestCheckAlterColumnEmptyTableIsSilent(t *testing.T) {
	steps := []diff.Step{{
		Kind:       diff.StepAlterColumn,
		Table:      "users",
		PrevColumn: &describe.Column{Name: "n", Type: "VARCHAR(255)"},
		Column:     &describe.Column{Name: "n", Type: "VARCHAR(10)"},
	}}

	assert.Empty(t, Check(steps, RowCountHints{}))
}

func TestCheckRedefineTableReportsDroppedColumns(t *testing.T) {
	steps := []diff.Step{{
		Kind:           diff.StepRedefineTable,
		Table:          "users",
		DroppedColumns: []string{"email", "phone"},
	}}

	diags := Check(steps, RowCountHints{"users": 2})

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, Unexecutable, d.Severity)
	}
	assert.Contains(t, diags[0].Message, `"email"`)
	assert.Contains(t, diags[1].Message, `"phone"`)
}

func TestCheckRedefineTableAppliesColumnRules(t *testing.T) {
	step := diff.Step{
		Kind:  diff.StepRedefineTable,
		Table: "users",
		PrevTableDef: &describe.Table{
			Name: "users",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "bio", Type: "VARCHAR(255)", Nullable: true},
			},
		},
		TableDef: &describe.Table{
			Name: "users",
			Columns: []describe.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "bio", Type: "VARCHAR(50)"},
				{Name: "age", Type: "INTEGER"},
			},
		},
	}

	diags := Check([]diff.Step{step}, RowCountHints{"users": 4})

	var unexecutable, warnings []Diagnostic
	for _, d := range diags {
		if d.Severity == Unexecutable {
			unexecutable = append(unexecutable, d)
		} else {
			warnings = append(warnings, d)
		}
	}

	// bio turns required without a default, age arrives required without
	// a default, and bio narrows.
	require.Len(t, unexecutable, 2)
	assert.Contains(t, unexecutable[0].Message, `"bio"`)
	assert.Contains(t, unexecutable[1].Message, `"age"`)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "may truncate")

	t.Run("empty table is silent", func(t *testing.T) {
		assert.Empty(t, Check([]diff.Step{step}, nil))
	})
}

// A SQLite diff folds column changes into a single rebuild step; the
// checker must still surface them.
func TestCheckSurfacesColumnsAbsorbedByRebuild(t *testing.T) {
	f, err := flavour.New(flavour.SQLite)
	require.NoError(t, err)

	from := &describe.Schema{Tables: []describe.Table{{
		Name: "users",
		Columns: []describe.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "score", Type: "TEXT", Nullable: true},
		},
	}}}
	to := &describe.Schema{Tables: []describe.Table{{
		Name: "users",
		Columns: []describe.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "score", Type: "INTEGER", Nullable: true},
			{Name: "email", Type: "TEXT"},
		},
	}}}

	steps := diff.Diff(from, to, f)
	require.Len(t, steps, 1)
	require.Equal(t, diff.StepRedefineTable, steps[0].Kind)

	diags := Check(steps, RowCountHints{"users": 2})

	var unexecutable []Diagnostic
	for _, d := range diags {
		if d.Severity == Unexecutable {
			unexecutable = append(unexecutable, d)
		}
	}
	require.Len(t, unexecutable, 1)
	assert.Contains(t, unexecutable[0].Message, `"email"`)
}

func TestNarrowed(t *testing.T) {
	assert.True(t, narrowed("VARCHAR(255)", "VARCHAR(50)"))
	assert.True(t, narrowed("DECIMAL(10, 4)", "DECIMAL(10, 2)"))
	assert.False(t, narrowed("VARCHAR(50)", "VARCHAR(255)"))
	assert.False(t, narrowed("VARCHAR(255)", "TEXT"))
	assert.False(t, narrowed("TEXT", "INTEGER"))
}
