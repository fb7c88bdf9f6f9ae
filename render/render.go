// Package render turns migration steps into executable DDL for one SQL
// dialect. Rendering is pure string building; nothing here touches a
// database.
package render

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
	"github.com/sqldrift/sqldrift/flavour"
)

// Renderer renders steps into DDL statements for a single dialect.
type Renderer interface {
	// RenderStep renders one step. Steps that expand into several
	// statements, such as a table redefinition, return them in execution
	// order.
	RenderStep(step diff.Step) ([]string, error)

	// RenderSteps renders an ordered plan into a flat statement list.
	RenderSteps(steps []diff.Step) ([]string, error)
}

// New returns the renderer for the flavour's dialect.
func New(f flavour.Flavour) Renderer {
	switch f.Kind() {
	case flavour.Postgres:
		return &postgresRenderer{base{f}}
	case flavour.MySQL:
		return &mysqlRenderer{base{f}}
	case flavour.SQLite:
		return &sqliteRenderer{base{f}}
	case flavour.SQLServer:
		return &sqlserverRenderer{base{f}}
	default:
		return &postgresRenderer{base{f}}
	}
}

// dialect is the per-backend syntax hook set used by base.
type dialect interface {
	// columnDef renders one column definition. singlePK is true when the
	// column is the sole primary key column, which some dialects fold
	// into the definition.
	columnDef(c *describe.Column, singlePK bool) string
}

type base struct {
	f flavour.Flavour
}

func (b base) q(name string) string {
	return b.f.QuoteIdentifier(name)
}

func (b base) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = b.q(name)
	}
	return strings.Join(quoted, ", ")
}

func (b base) constrain(name string) string {
	return flavour.ConstrainIdentifier(name, b.f.MaxIdentifierLength())
}

func (b base) foreignKeyName(table string, fk *describe.ForeignKey) string {
	if fk.Name != "" {
		return b.constrain(fk.Name)
	}
	return b.constrain(fmt.Sprintf("%s_%s_fkey", table, strings.Join(fk.Columns, "_")))
}

func (b base) indexName(table string, idx *describe.Index) string {
	if idx.Name != "" {
		return b.constrain(idx.Name)
	}
	return b.constrain(fmt.Sprintf("%s_%s_idx", table, strings.Join(idx.Columns, "_")))
}

// foreignKeyClause renders the constraint body used both inline in
// CREATE TABLE and in ALTER TABLE ... ADD.
func (b base) foreignKeyClause(table string, fk *describe.ForeignKey) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		b.q(b.foreignKeyName(table, fk)),
		b.quoteList(fk.Columns),
		b.q(fk.ReferencedTable),
		b.quoteList(fk.ReferencedColumns))
	if fk.OnDelete != "" {
		fmt.Fprintf(&sb, " ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		fmt.Fprintf(&sb, " ON UPDATE %s", fk.OnUpdate)
	}
	return sb.String()
}

// createTable renders a CREATE TABLE statement. Foreign keys are inlined
// only when the dialect cannot add them afterwards.
func (b base) createTable(d dialect, t *describe.Table, inlineForeignKeys bool) string {
	singlePK := ""
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 {
		singlePK = t.PrimaryKey.Columns[0]
	}

	var defs []string
	pkInline := false
	for i := range t.Columns {
		col := &t.Columns[i]
		single := col.Name == singlePK
		defs = append(defs, d.columnDef(col, single))
		if single && col.AutoIncrement && b.f.Kind() == flavour.SQLite {
			// INTEGER PRIMARY KEY AUTOINCREMENT already declares the key.
			pkInline = true
		}
	}
	if t.PrimaryKey != nil && !pkInline {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", b.quoteList(t.PrimaryKey.Columns)))
	}
	if inlineForeignKeys {
		for i := range t.ForeignKeys {
			defs = append(defs, b.foreignKeyClause(t.Name, &t.ForeignKeys[i]))
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", b.q(t.Name), strings.Join(defs, ",\n    "))
}

func (b base) createIndex(table string, idx *describe.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, b.q(b.indexName(table, idx)), b.q(table), b.quoteList(idx.Columns))
}

func (b base) addForeignKey(table string, fk *describe.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.q(table), b.foreignKeyClause(table, fk))
}

func renderSteps(r Renderer, steps []diff.Step) ([]string, error) {
	var statements []string
	for _, step := range steps {
		rendered, err := r.RenderStep(step)
		if err != nil {
			return nil, err
		}
		statements = append(statements, rendered...)
	}
	return statements, nil
}

func unsupportedStep(f flavour.Flavour, step diff.Step) error {
	return fmt.Errorf("%w: %s on %s", flavour.ErrUnsupportedFeature, step.Kind, f.Kind())
}
