package describe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaLookups(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "email", Type: "VARCHAR(255)"},
		},
		Indexes:     []Index{{Name: "users_email_key", Columns: []string{"email"}, Unique: true}},
		ForeignKeys: []ForeignKey{{Name: "users_org_fkey", Columns: []string{"org_id"}, ReferencedTable: "orgs"}},
	}}}

	table := schema.Table("users")
	require.NotNil(t, table)
	assert.Nil(t, schema.Table("missing"))

	col := table.Column("email")
	require.NotNil(t, col)
	assert.Equal(t, "VARCHAR(255)", col.Type)
	assert.Nil(t, table.Column("missing"))

	assert.NotNil(t, table.Index("users_email_key"))
	assert.Nil(t, table.Index("missing"))

	assert.NotNil(t, table.ForeignKey("users_org_fkey"))
	assert.Nil(t, table.ForeignKey("missing"))
}

func TestNewDescriber(t *testing.T) {
	for _, backend := range []string{"postgres", "postgresql", "mysql", "sqlite", "sqlserver", "mssql"} {
		d, err := NewDescriber(nil, backend)
		require.NoError(t, err, backend)
		assert.NotNil(t, d)
	}

	_, err := NewDescriber(nil, "oracle")
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

func TestRenderPostgresType(t *testing.T) {
	tests := []struct {
		dataType  string
		udtName   string
		maxLength int64
		precision int64
		scale     int64
		expected  string
	}{
		{"integer", "int4", 0, 0, 0, "INTEGER"},
		{"character varying", "varchar", 255, 0, 0, "VARCHAR(255)"},
		{"character varying", "varchar", 0, 0, 0, "VARCHAR"},
		{"numeric", "numeric", 0, 10, 2, "DECIMAL(10,2)"},
		{"timestamp with time zone", "timestamptz", 0, 0, 0, "TIMESTAMPTZ"},
		{"text", "text", 0, 0, 0, "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := renderPostgresType(tt.dataType, tt.udtName, tt.maxLength, tt.precision, tt.scale)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRenderMySQLType(t *testing.T) {
	assert.Equal(t, "INT", renderMySQLType("int(11)"))
	assert.Equal(t, "BOOLEAN", renderMySQLType("tinyint(1)"))
	assert.Equal(t, "TINYINT", renderMySQLType("tinyint(4)"))
	assert.Equal(t, "VARCHAR(255)", renderMySQLType("varchar(255)"))
	assert.Equal(t, "DECIMAL(10,2)", renderMySQLType("decimal(10,2)"))
}

func TestRenderSQLiteType(t *testing.T) {
	assert.Equal(t, "INTEGER", renderSQLiteType("INT"))
	assert.Equal(t, "INTEGER", renderSQLiteType("BIGINT"))
	assert.Equal(t, "TEXT", renderSQLiteType("VARCHAR(255)"))
	assert.Equal(t, "REAL", renderSQLiteType("DOUBLE"))
	assert.Equal(t, "NUMERIC", renderSQLiteType("DECIMAL(10,2)"))
}

func TestRenderSQLServerType(t *testing.T) {
	assert.Equal(t, "NVARCHAR(MAX)", renderSQLServerType("nvarchar", -1, 0, 0))
	assert.Equal(t, "NVARCHAR(100)", renderSQLServerType("nvarchar", 100, 0, 0))
	assert.Equal(t, "DECIMAL(18,4)", renderSQLServerType("decimal", 0, 18, 4))
	assert.Equal(t, "INT", renderSQLServerType("int", 0, 0, 0))
}

func TestSplitPostgresArray(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitPostgresArray("{a,b,c}"))
	assert.Equal(t, []string{"with space"}, splitPostgresArray(`{"with space"}`))
	assert.Nil(t, splitPostgresArray("{}"))
}
