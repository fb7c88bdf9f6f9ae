package render

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
)

type mysqlRenderer struct {
	base
}

func (r *mysqlRenderer) RenderSteps(steps []diff.Step) ([]string, error) {
	return renderSteps(r, steps)
}

func (r *mysqlRenderer) RenderStep(step diff.Step) ([]string, error) {
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
		// MySQL restates the whole definition in one MODIFY clause.
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s",
			r.q(step.Table), r.columnDef(step.Column, false))}, nil
	case diff.StepAddForeignKey:
		return []string{r.addForeignKey(step.Table, step.ForeignKey)}, nil
	case diff.StepDropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
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

func (r *mysqlRenderer) columnDef(c *describe.Column, singlePK bool) string {
	var sb strings.Builder
	sb.WriteString(r.q(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(c.Type)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.AutoIncrement {
		fmt.Fprintf(&sb, " DEFAULT %s", *c.Default)
	}
	if c.AutoIncrement {
		sb.WriteString(" AUTO_INCREMENT")
	}
	return sb.String()
}
