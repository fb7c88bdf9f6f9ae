package describe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQLDescriber implements Describer for MySQL.
type MySQLDescriber struct {
	db *sql.DB
}

// Describe reads the schema of the currently selected MySQL database.
// MySQL has no schema-level enums or sequences, so those slices stay empty.
func (d *MySQLDescriber) Describe(ctx context.Context) (*Schema, error) {
	schema := &Schema{
		Tables:    []Table{},
		Enums:     []Enum{},
		Sequences: []Sequence{},
	}

	var dbName string
	if err := d.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&dbName); err != nil {
		return nil, fmt.Errorf("failed to resolve database name: %w", err)
	}

	tables, err := d.describeTables(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tables: %w", err)
	}
	schema.Tables = tables

	return schema, nil
}

// describeTables reads all base tables of the given database.
func (d *MySQLDescriber) describeTables(ctx context.Context, dbName string) ([]Table, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := d.db.QueryContext(ctx, query, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var tables []Table
	for _, name := range names {
		table := Table{Name: name}

		columns, err := d.describeColumns(ctx, dbName, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", name, err)
		}
		table.Columns = columns

		pk, err := d.describePrimaryKey(ctx, dbName, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe primary key of %s: %w", name, err)
		}
		table.PrimaryKey = pk

		indexes, err := d.describeIndexes(ctx, dbName, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe indexes of %s: %w", name, err)
		}
		table.Indexes = indexes

		fks, err := d.describeForeignKeys(ctx, dbName, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys of %s: %w", name, err)
		}
		table.ForeignKeys = fks

		tables = append(tables, table)
	}

	return tables, nil
}

// describeColumns reads the columns of one table.
func (d *MySQLDescriber) describeColumns(ctx context.Context, dbName, tableName string) ([]Column, error) {
	query := `
		SELECT
			column_name,
			column_type,
			is_nullable,
			column_default,
			extra
		FROM information_schema.columns
		WHERE table_schema = ?
		  AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := d.db.QueryContext(ctx, query, dbName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var columnType, isNullable, extra string
		var defaultValue sql.NullString

		err := rows.Scan(&col.Name, &columnType, &isNullable, &defaultValue, &extra)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Type = renderMySQLType(columnType)
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid && defaultValue.String != "" {
			col.Default = &defaultValue.String
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// describePrimaryKey reads the primary key of one table, if any.
func (d *MySQLDescriber) describePrimaryKey(ctx context.Context, dbName, tableName string) (*PrimaryKey, error) {
	query := `
		SELECT
			constraint_name,
			GROUP_CONCAT(column_name ORDER BY ordinal_position)
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		GROUP BY constraint_name
	`

	var pk PrimaryKey
	var columnsStr string

	err := d.db.QueryRowContext(ctx, query, dbName, tableName).Scan(&pk.Name, &columnsStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}

	pk.Columns = strings.Split(columnsStr, ",")
	return &pk, nil
}

// describeIndexes reads the secondary indexes of one table.
func (d *MySQLDescriber) describeIndexes(ctx context.Context, dbName, tableName string) ([]Index, error) {
	query := `
		SELECT
			index_name,
			GROUP_CONCAT(column_name ORDER BY seq_in_index),
			MAX(non_unique)
		FROM information_schema.statistics
		WHERE table_schema = ?
		  AND table_name = ?
		  AND index_name != 'PRIMARY'
		GROUP BY index_name
		ORDER BY index_name
	`

	rows, err := d.db.QueryContext(ctx, query, dbName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		var columnsStr string
		var nonUnique int

		if err := rows.Scan(&idx.Name, &columnsStr, &nonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		idx.Columns = strings.Split(columnsStr, ",")
		idx.Unique = nonUnique == 0
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// describeForeignKeys reads the foreign keys of one table.
func (d *MySQLDescriber) describeForeignKeys(ctx context.Context, dbName, tableName string) ([]ForeignKey, error) {
	query := `
		SELECT
			kcu.constraint_name,
			GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position),
			kcu.referenced_table_name,
			GROUP_CONCAT(kcu.referenced_column_name ORDER BY kcu.ordinal_position),
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON kcu.constraint_name = rc.constraint_name
			AND kcu.constraint_schema = rc.constraint_schema
		WHERE kcu.table_schema = ?
		  AND kcu.table_name = ?
		  AND kcu.referenced_table_name IS NOT NULL
		GROUP BY kcu.constraint_name, kcu.referenced_table_name, rc.delete_rule, rc.update_rule
		ORDER BY kcu.constraint_name
	`

	rows, err := d.db.QueryContext(ctx, query, dbName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var columnsStr, refColumnsStr string

		err := rows.Scan(
			&fk.Name,
			&columnsStr,
			&fk.ReferencedTable,
			&refColumnsStr,
			&fk.OnDelete,
			&fk.OnUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		fk.Columns = strings.Split(columnsStr, ",")
		fk.ReferencedColumns = strings.Split(refColumnsStr, ",")
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// renderMySQLType renders a column type in its canonical dialect form.
func renderMySQLType(mysqlType string) string {
	lower := strings.ToLower(mysqlType)

	switch {
	case lower == "int" || strings.HasPrefix(lower, "int("):
		return "INT"
	case strings.HasPrefix(lower, "bigint"):
		return "BIGINT"
	case strings.HasPrefix(lower, "smallint"):
		return "SMALLINT"
	case strings.HasPrefix(lower, "tinyint(1)"):
		return "BOOLEAN"
	case strings.HasPrefix(lower, "tinyint"):
		return "TINYINT"
	case strings.HasPrefix(lower, "varchar"), strings.HasPrefix(lower, "char"),
		strings.HasPrefix(lower, "decimal"), strings.HasPrefix(lower, "enum"):
		return strings.ToUpper(mysqlType)
	case lower == "text":
		return "TEXT"
	case strings.HasPrefix(lower, "float"):
		return "FLOAT"
	case strings.HasPrefix(lower, "double"):
		return "DOUBLE"
	case strings.HasPrefix(lower, "timestamp"):
		return "TIMESTAMP"
	case lower == "datetime":
		return "DATETIME"
	case lower == "date":
		return "DATE"
	case lower == "time":
		return "TIME"
	case lower == "json":
		return "JSON"
	case strings.HasPrefix(lower, "blob"):
		return "BLOB"
	default:
		return strings.ToUpper(mysqlType)
	}
}
