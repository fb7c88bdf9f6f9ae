package describe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresDescriber implements Describer for PostgreSQL.
type PostgresDescriber struct {
	db *sql.DB
}

// Describe reads the PostgreSQL schema from the public namespace. Object
// types the snapshot does not model (views, triggers, procedures) are
// skipped rather than reported as errors.
func (d *PostgresDescriber) Describe(ctx context.Context) (*Schema, error) {
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

	enums, err := d.describeEnums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe enums: %w", err)
	}
	schema.Enums = enums

	sequences, err := d.describeSequences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe sequences: %w", err)
	}
	schema.Sequences = sequences

	return schema, nil
}

// describeTables reads all base tables and their columns, keys and indexes.
func (d *PostgresDescriber) describeTables(ctx context.Context) ([]Table, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
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
func (d *PostgresDescriber) describeColumns(ctx context.Context, tableName string) ([]Column, error) {
	query := `
		SELECT
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var dataType, udtName, isNullable string
		var defaultValue sql.NullString
		var maxLength, precision, scale sql.NullInt64

		err := rows.Scan(
			&col.Name,
			&dataType,
			&udtName,
			&isNullable,
			&defaultValue,
			&maxLength,
			&precision,
			&scale,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Type = renderPostgresType(dataType, udtName, maxLength.Int64, precision.Int64, scale.Int64)
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid && defaultValue.String != "" {
			col.Default = &defaultValue.String
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(defaultValue.String), "nextval")

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// describePrimaryKey reads the primary key of one table, if any.
func (d *PostgresDescriber) describePrimaryKey(ctx context.Context, tableName string) (*PrimaryKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			array_agg(kcu.column_name ORDER BY kcu.ordinal_position)
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		GROUP BY tc.constraint_name
	`

	var pk PrimaryKey
	var columnsArray string

	err := d.db.QueryRowContext(ctx, query, tableName).Scan(&pk.Name, &columnsArray)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}

	pk.Columns = splitPostgresArray(columnsArray)
	return &pk, nil
}

// describeIndexes reads the secondary indexes of one table.
func (d *PostgresDescriber) describeIndexes(ctx context.Context, tableName string) ([]Index, error) {
	query := `
		SELECT
			i.relname,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)),
			ix.indisunique
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = 'public'
		  AND t.relname = $1
		  AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		var columnsArray string

		if err := rows.Scan(&idx.Name, &columnsArray, &idx.Unique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		idx.Columns = splitPostgresArray(columnsArray)
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// describeForeignKeys reads the foreign keys of one table.
func (d *PostgresDescriber) describeForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			array_agg(kcu.column_name ORDER BY kcu.ordinal_position),
			ccu.table_name,
			array_agg(ccu.column_name ORDER BY kcu.ordinal_position),
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		GROUP BY tc.constraint_name, ccu.table_name, rc.delete_rule, rc.update_rule
		ORDER BY tc.constraint_name
	`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var columnsArray, refColumnsArray string

		err := rows.Scan(
			&fk.Name,
			&columnsArray,
			&fk.ReferencedTable,
			&refColumnsArray,
			&fk.OnDelete,
			&fk.OnUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		fk.Columns = splitPostgresArray(columnsArray)
		fk.ReferencedColumns = splitPostgresArray(refColumnsArray)
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// describeEnums reads all enum types.
func (d *PostgresDescriber) describeEnums(ctx context.Context) ([]Enum, error) {
	query := `
		SELECT
			t.typname,
			array_agg(e.enumlabel ORDER BY e.enumsortorder)
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = 'public'
		GROUP BY t.typname
		ORDER BY t.typname
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	var enums []Enum
	for rows.Next() {
		var enum Enum
		var valuesArray string

		if err := rows.Scan(&enum.Name, &valuesArray); err != nil {
			return nil, fmt.Errorf("failed to scan enum: %w", err)
		}

		enum.Values = splitPostgresArray(valuesArray)
		enums = append(enums, enum)
	}

	return enums, rows.Err()
}

// describeSequences reads all sequences.
func (d *PostgresDescriber) describeSequences(ctx context.Context) ([]Sequence, error) {
	query := `
		SELECT sequence_name
		FROM information_schema.sequences
		WHERE sequence_schema = 'public'
		ORDER BY sequence_name
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

// splitPostgresArray parses a text-rendered postgres array like {a,b,c}.
func splitPostgresArray(s string) []string {
	s = strings.Trim(s, "{}")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(p, `"`)
	}
	return parts
}

// renderPostgresType renders a column type in its canonical dialect form.
func renderPostgresType(dataType, udtName string, maxLength, precision, scale int64) string {
	switch dataType {
	case "integer", "int", "int4":
		return "INTEGER"
	case "bigint", "int8":
		return "BIGINT"
	case "smallint", "int2":
		return "SMALLINT"
	case "boolean", "bool":
		return "BOOLEAN"
	case "character varying", "varchar":
		if maxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", maxLength)
		}
		return "VARCHAR"
	case "character", "char":
		if maxLength > 0 {
			return fmt.Sprintf("CHAR(%d)", maxLength)
		}
		return "CHAR"
	case "text":
		return "TEXT"
	case "numeric", "decimal":
		if precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
		}
		return "DECIMAL"
	case "real", "float4":
		return "REAL"
	case "double precision", "float8":
		return "DOUBLE PRECISION"
	case "timestamp without time zone", "timestamp":
		return "TIMESTAMP"
	case "timestamp with time zone", "timestamptz":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "time without time zone", "time":
		return "TIME"
	case "json":
		return "JSON"
	case "jsonb":
		return "JSONB"
	case "uuid":
		return "UUID"
	case "bytea":
		return "BYTEA"
	case "USER-DEFINED":
		// Most likely an enum type.
		return udtName
	default:
		return strings.ToUpper(dataType)
	}
}
