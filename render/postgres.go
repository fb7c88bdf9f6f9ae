package render

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
)

type postgresRenderer struct {
	base
}

func (r *postgresRenderer) RenderSteps(steps []diff.Step) ([]string, error) {
	return renderSteps(r, steps)
}

func (r *postgresRenderer) RenderStep(step diff.Step) ([]string, error) {
	switch step.Kind {
	case diff.StepCreateTable:
		return []string{r.createTable(r, step.TableDef, false)}, nil
	case diff.StepDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", r.q(step.Table))}, nil
	case diff.StepAddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
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
		return []string{fmt.Sprintf("DROP INDEX %s", r.q(step.IndexName))}, nil
	default:
		return nil, unsupportedStep(r.f, step)
	}
}

func (r *postgresRenderer) columnDef(c *describe.Column, singlePK bool) string {
	var sb strings.Builder
	sb.WriteString(r.q(c.Name))
	sb.WriteByte(' ')
	if c.AutoIncrement {
		if strings.EqualFold(c.Type, "BIGINT") {
			sb.WriteString("BIGSERIAL")
		} else {
			sb.WriteString("SERIAL")
		}
	} else {
		sb.WriteString(c.Type)
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.AutoIncrement {
		fmt.Fprintf(&sb, " DEFAULT %s", *c.Default)
	}
	return sb.String()
}

// alterColumn emits one statement per changed aspect. Postgres alters
// type, nullability and default independently.
func (r *postgresRenderer) alterColumn(table string, prev, next *describe.Column) []string {
	var stmts []string
	col := r.q(next.Name)

	if !r.f.TypesEquivalent(prev.Type, next.Type) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			r.q(table), col, next.Type, col, next.Type))
	}
	if prev.Nullable != next.Nullable {
		if next.Nullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", r.q(table), col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", r.q(table), col))
		}
	}
	if !r.f.DefaultsEquivalent(next.Type, prev.Default, next.Default) {
		if next.Default == nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", r.q(table), col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", r.q(table), col, *next.Default))
		}
	}

	return stmts
}
