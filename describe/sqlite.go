package describe

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// SQLiteDescriber implements Describer for SQLite.
type SQLiteDescriber struct {
	db *sql.DB
}

// Describe reads the SQLite schema via sqlite_master and the table pragmas.
func (d *SQLiteDescriber) Describe(ctx context.Context) (*Schema, error) {
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

	return schema, nil
}

// describeTables reads all user tables.
func (d *SQLiteDescriber) describeTables(ctx context.Context) ([]Table, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
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

		columns, pk, err := d.describeColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", name, err)
		}
		table.Columns = columns
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

// describeColumns reads the columns of one table using PRAGMA table_info.
// The pragma also reports primary key membership, so the table's primary
// key is derived here.
func (d *SQLiteDescriber) describeColumns(ctx context.Context, tableName string) ([]Column, *PrimaryKey, error) {
	query := fmt.Sprintf("PRAGMA table_info(%q)", tableName)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	type pkColumn struct {
		name     string
		position int
	}

	var columns []Column
	var pkColumns []pkColumn

	for rows.Next() {
		var cid int
		var col Column
		var colType string
		var notNull int
		var defaultValue sql.NullString
		var pkPosition int

		err := rows.Scan(&cid, &col.Name, &colType, &notNull, &defaultValue, &pkPosition)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Type = renderSQLiteType(colType)
		col.Nullable = notNull == 0
		if defaultValue.Valid && defaultValue.String != "" {
			col.Default = &defaultValue.String
		}
		// Only INTEGER PRIMARY KEY columns alias the rowid.
		col.AutoIncrement = pkPosition == 1 && strings.EqualFold(colType, "INTEGER")

		if pkPosition > 0 {
			pkColumns = append(pkColumns, pkColumn{name: col.Name, position: pkPosition})
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var pk *PrimaryKey
	if len(pkColumns) > 0 {
		sort.Slice(pkColumns, func(i, j int) bool {
			return pkColumns[i].position < pkColumns[j].position
		})
		pk = &PrimaryKey{}
		for _, c := range pkColumns {
			pk.Columns = append(pk.Columns, c.name)
		}
	}

	return columns, pk, nil
}

// describeIndexes reads the explicit indexes of one table.
func (d *SQLiteDescriber) describeIndexes(ctx context.Context, tableName string) ([]Index, error) {
	query := fmt.Sprintf("PRAGMA index_list(%q)", tableName)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	type indexEntry struct {
		name   string
		unique bool
	}

	var entries []indexEntry
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		// Skip implicit indexes backing PRIMARY KEY and UNIQUE constraints.
		if origin != "c" {
			continue
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []Index
	for _, entry := range entries {
		columns, err := d.describeIndexColumns(ctx, entry.name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %s: %w", entry.name, err)
		}
		indexes = append(indexes, Index{
			Name:    entry.name,
			Columns: columns,
			Unique:  entry.unique,
		})
	}

	return indexes, nil
}

// describeIndexColumns reads the column list of one index.
func (d *SQLiteDescriber) describeIndexColumns(ctx context.Context, indexName string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%q)", indexName)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query index columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString

		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan index column: %w", err)
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}

	return columns, rows.Err()
}

// describeForeignKeys reads the foreign keys of one table. SQLite has no
// constraint names, so stable names are synthesized from the table and
// the foreign key ordinal.
func (d *SQLiteDescriber) describeForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%q)", tableName)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	// One row per column; group rows by foreign key id.
	fkMap := make(map[int]*ForeignKey)
	var ids []int

	for rows.Next() {
		var id, seq int
		var refTable, from, to string
		var onUpdate, onDelete, match string

		err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match)
		if err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		if fk, exists := fkMap[id]; exists {
			fk.Columns = append(fk.Columns, from)
			fk.ReferencedColumns = append(fk.ReferencedColumns, to)
		} else {
			fkMap[id] = &ForeignKey{
				Name:              fmt.Sprintf("%s_fk_%d", tableName, id),
				Columns:           []string{from},
				ReferencedTable:   refTable,
				ReferencedColumns: []string{to},
				OnDelete:          onDelete,
				OnUpdate:          onUpdate,
			}
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Ints(ids)
	var fks []ForeignKey
	for _, id := range ids {
		fks = append(fks, *fkMap[id])
	}

	return fks, nil
}

// renderSQLiteType maps a declared type to its storage affinity name.
func renderSQLiteType(sqliteType string) string {
	upper := strings.ToUpper(sqliteType)

	switch {
	case strings.Contains(upper, "INT"):
		return "INTEGER"
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "TEXT"), strings.Contains(upper, "CLOB"):
		return "TEXT"
	case strings.Contains(upper, "BLOB"):
		return "BLOB"
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return "REAL"
	case strings.Contains(upper, "NUMERIC"), strings.Contains(upper, "DECIMAL"):
		return "NUMERIC"
	default:
		return upper
	}
}
