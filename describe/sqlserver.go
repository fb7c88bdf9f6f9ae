package describe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLServerDescriber implements Describer for SQL Server.
type SQLServerDescriber struct {
	db *sql.DB
}

// Describe reads the SQL Server schema from the dbo namespace.
func (d *SQLServerDescriber) Describe(ctx context.Context) (*Schema, error) {
	schema := &Schema{
		Tables:    []Table{},
		Enums:     []Enum{},
		Sequences: []Sequence{},
	}

	tables, err := d.describeTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tables: %w", err)
	}
	schema.Tables = tables

	sequences, err := d.describeSequences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe sequences: %w", err)
	}
	schema.Sequences = sequences

	return schema, nil
}

// describeTables reads all base tables in dbo.
func (d *SQLServerDescriber) describeTables(ctx context.Context) ([]Table, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		  AND TABLE_SCHEMA = 'dbo'
		ORDER BY TABLE_NAME
	`

	rows, err := d.db.QueryContext(ctx, query)
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

		columns, err := d.describeColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", name, err)
		}
		table.Columns = columns

		pk, err := d.describePrimaryKey(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe primary key of %s: %w", name, err)
		}
		table.PrimaryKey = pk

		indexes, err := d.describeIndexes(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe indexes of %s: %w", name, err)
		}
		table.Indexes = indexes

		fks, err := d.describeForeignKeys(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys of %s: %w", name, err)
		}
		table.ForeignKeys = fks

		tables = append(tables, table)
	}

	return tables, nil
}

// describeColumns reads the columns of one table.
func (d *SQLServerDescriber) describeColumns(ctx context.Context, tableName string) ([]Column, error) {
	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE,
			COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity')
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = 'dbo'
		  AND c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var dataType, isNullable string
		var defaultValue sql.NullString
		var maxLength, precision, scale sql.NullInt64
		var isIdentity sql.NullInt64

		err := rows.Scan(
			&col.Name,
			&dataType,
			&isNullable,
			&defaultValue,
			&maxLength,
			&precision,
			&scale,
			&isIdentity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Type = renderSQLServerType(dataType, maxLength.Int64, precision.Int64, scale.Int64)
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid && defaultValue.String != "" {
			// SQL Server wraps defaults in parentheses, sometimes twice.
			trimmed := strings.Trim(defaultValue.String, "()")
			col.Default = &trimmed
		}
		col.AutoIncrement = isIdentity.Valid && isIdentity.Int64 == 1

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// describePrimaryKey reads the primary key of one table, if any.
func (d *SQLServerDescriber) describePrimaryKey(ctx context.Context, tableName string) (*PrimaryKey, error) {
	query := `
		SELECT
			kc.name,
			c.name
		FROM sys.key_constraints kc
		JOIN sys.index_columns ic
			ON ic.object_id = kc.parent_object_id
			AND ic.index_id = kc.unique_index_id
		JOIN sys.columns c
			ON c.object_id = ic.object_id
			AND c.column_id = ic.column_id
		WHERE kc.type = 'PK'
		  AND kc.parent_object_id = OBJECT_ID('dbo.' + QUOTENAME(@p1))
		ORDER BY ic.key_ordinal
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	defer rows.Close()

	var pk *PrimaryKey
	for rows.Next() {
		var constraintName, columnName string
		if err := rows.Scan(&constraintName, &columnName); err != nil {
			return nil, fmt.Errorf("failed to scan primary key: %w", err)
		}
		if pk == nil {
			pk = &PrimaryKey{Name: constraintName}
		}
		pk.Columns = append(pk.Columns, columnName)
	}

	return pk, rows.Err()
}

// describeIndexes reads the secondary indexes of one table.
func (d *SQLServerDescriber) describeIndexes(ctx context.Context, tableName string) ([]Index, error) {
	query := `
		SELECT
			i.name,
			c.name,
			i.is_unique
		FROM sys.indexes i
		JOIN sys.index_columns ic
			ON ic.object_id = i.object_id
			AND ic.index_id = i.index_id
		JOIN sys.columns c
			ON c.object_id = ic.object_id
			AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID('dbo.' + QUOTENAME(@p1))
		  AND i.is_primary_key = 0
		  AND i.type > 0
		ORDER BY i.name, ic.key_ordinal
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var indexName, columnName string
		var isUnique bool

		if err := rows.Scan(&indexName, &columnName, &isUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		if len(indexes) > 0 && indexes[len(indexes)-1].Name == indexName {
			last := &indexes[len(indexes)-1]
			last.Columns = append(last.Columns, columnName)
			continue
		}
		indexes = append(indexes, Index{
			Name:    indexName,
			Columns: []string{columnName},
			Unique:  isUnique,
		})
	}

	return indexes, rows.Err()
}

// describeForeignKeys reads the foreign keys of one table.
func (d *SQLServerDescriber) describeForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	query := `
		SELECT
			fk.name,
			pc.name,
			OBJECT_NAME(fk.referenced_object_id),
			rc.name,
			REPLACE(fk.delete_referential_action_desc, '_', ' '),
			REPLACE(fk.update_referential_action_desc, '_', ' ')
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc
			ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns pc
			ON pc.object_id = fkc.parent_object_id
			AND pc.column_id = fkc.parent_column_id
		JOIN sys.columns rc
			ON rc.object_id = fkc.referenced_object_id
			AND rc.column_id = fkc.referenced_column_id
		WHERE fk.parent_object_id = OBJECT_ID('dbo.' + QUOTENAME(@p1))
		ORDER BY fk.name, fkc.constraint_column_id
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fkName, column, refTable, refColumn, onDelete, onUpdate string

		err := rows.Scan(&fkName, &column, &refTable, &refColumn, &onDelete, &onUpdate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		if len(fks) > 0 && fks[len(fks)-1].Name == fkName {
			last := &fks[len(fks)-1]
			last.Columns = append(last.Columns, column)
			last.ReferencedColumns = append(last.ReferencedColumns, refColumn)
			continue
		}
		fks = append(fks, ForeignKey{
			Name:              fkName,
			Columns:           []string{column},
			ReferencedTable:   refTable,
			ReferencedColumns: []string{refColumn},
			OnDelete:          onDelete,
			OnUpdate:          onUpdate,
		})
	}

	return fks, rows.Err()
}

// describeSequences reads all sequences in dbo.
func (d *SQLServerDescriber) describeSequences(ctx context.Context) ([]Sequence, error) {
	query := `
		SELECT s.name
		FROM sys.sequences s
		JOIN sys.schemas sc ON sc.schema_id = s.schema_id
		WHERE sc.name = 'dbo'
		ORDER BY s.name
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var sequences []Sequence
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.Name); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		sequences = append(sequences, seq)
	}

	return sequences, rows.Err()
}

// renderSQLServerType renders a column type in its canonical dialect form.
func renderSQLServerType(dataType string, maxLength, precision, scale int64) string {
	switch strings.ToLower(dataType) {
	case "int":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "smallint":
		return "SMALLINT"
	case "bit":
		return "BIT"
	case "nvarchar", "varchar":
		name := strings.ToUpper(dataType)
		if maxLength == -1 {
			return name + "(MAX)"
		}
		if maxLength > 0 {
			return fmt.Sprintf("%s(%d)", name, maxLength)
		}
		return name
	case "nchar", "char":
		if maxLength > 0 {
			return fmt.Sprintf("%s(%d)", strings.ToUpper(dataType), maxLength)
		}
		return strings.ToUpper(dataType)
	case "decimal", "numeric":
		if precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
		}
		return "DECIMAL"
	case "float":
		return "FLOAT"
	case "real":
		return "REAL"
	case "datetime2":
		return "DATETIME2"
	case "datetime":
		return "DATETIME"
	case "datetimeoffset":
		return "DATETIMEOFFSET"
	case "date":
		return "DATE"
	case "time":
		return "TIME"
	case "uniqueidentifier":
		return "UNIQUEIDENTIFIER"
	case "varbinary":
		if maxLength == -1 {
			return "VARBINARY(MAX)"
		}
		return "VARBINARY"
	default:
		return strings.ToUpper(dataType)
	}
}
