package render

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
)

type sqlserverRenderer struct {
	base
}

func (r *sqlserverRenderer) RenderSteps(steps []diff.Step) ([]string, error) {
	return renderSteps(r, steps)
}

func (r *sqlserverRenderer) RenderStep(step diff.Step) ([]string, error) {
	switch step.Kind {
	case diff.StepCreateTable:
		return []string{r.createTable(r, step.TableDef, false)}, nil
	case diff.StepDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", r.q(step.Table))}, nil
	case diff.StepAddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s",
			r.q(step.Table), r.columnDef(step.Column, false))}, nil
	case diff.StepDropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			r.q(step.Table), r.q(step.ColumnName))}, nil
	case diff.StepAlterColumn:
		return r.alterColumn(step.Table, step.PrevColumn, step.Column), nil
	case diff.StepAddForeignKey:
		return []string{r.addForeignKey(step.Table, step.ForeignKey)}, nil
	case diff.StepDropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			r.q(step.Table), r.q(step.ForeignKeyName))}, nil
	case diff.StepCreateIndex:
		return []string{r.createIndex(step.Table, step.Index)}, nil
	case diff.StepDropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s ON %s",
			r.q(step.IndexName), r.q(step.Table))}, nil
	default:
		return nil, unsupportedStep(r.f, step)
	}
}

func (r *sqlserverRenderer) columnDef(c *describe.Column, singlePK bool) string {
	var sb strings.Builder
	sb.WriteString(r.q(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(c.Type)
	if c.AutoIncrement {
		sb.WriteString(" IDENTITY(1,1)")
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.AutoIncrement {
		fmt.Fprintf(&sb, " DEFAULT %s", *c.Default)
	}
	return sb.String()
}

// alterColumn restates type and nullability in one ALTER COLUMN clause.
// Defaults live in named constraints that are replaced separately.
func (r *sqlserverRenderer) alterColumn(table string, prev, next *describe.Column) []string {
	var stmts []string

	if !r.f.TypesEquivalent(prev.Type, next.Type) || prev.Nullable != next.Nullable {
		null := "NOT NULL"
		if next.Nullable {
			null = "NULL"
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s %s",
			r.q(table), r.q(next.Name), next.Type, null))
	}

	if !r.f.DefaultsEquivalent(next.Type, prev.Default, next.Default) {
		name := r.defaultConstraintName(table, next.Name)
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s",
			r.q(table), r.q(name)))
		if next.Default != nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s",
				r.q(table), r.q(name), *next.Default, r.q(next.Name)))
		}
	}

	return stmts
}

// defaultConstraintName is deterministic so a later alter can drop the
// constraint it created earlier without introspecting sys.objects.
func (r *sqlserverRenderer) defaultConstraintName(table, column string) string {
	return r.constrain(fmt.Sprintf("DF_%s_%s", table, column))
}
