package render

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
)

type sqliteRenderer struct {
	base
}

func (r *sqliteRenderer) RenderSteps(steps []diff.Step) ([]string, error) {
	return renderSteps(r, steps)
}

func (r *sqliteRenderer) RenderStep(step diff.Step) ([]string, error) {
	switch step.Kind {
	case diff.StepCreateTable:
		// Foreign keys must be declared with the table; SQLite cannot
		// add them later.
		return []string{r.createTable(r, step.TableDef, true)}, nil
	case diff.StepDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", r.q(step.Table))}, nil
	case diff.StepAddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			r.q(step.Table), r.columnDef(step.Column, false))}, nil
	case diff.StepRedefineTable:
		return r.redefineTable(step), nil
	case diff.StepCreateIndex:
		return []string{r.createIndex(step.Table, step.Index)}, nil
	case diff.StepDropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", r.q(step.IndexName))}, nil
	default:
		// Column drops, type changes and foreign key changes arrive as
		// RedefineTable after capability substitution.
		return nil, unsupportedStep(r.f, step)
	}
}

func (r *sqliteRenderer) columnDef(c *describe.Column, singlePK bool) string {
	var sb strings.Builder
	sb.WriteString(r.q(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(c.Type)
	if singlePK && c.AutoIncrement {
		sb.WriteString(" PRIMARY KEY AUTOINCREMENT")
		return sb.String()
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		fmt.Fprintf(&sb, " DEFAULT %s", *c.Default)
	}
	return sb.String()
}

// redefineTable rebuilds a table under a temporary name, copies the
// surviving rows across and swaps the tables. This is the documented
// SQLite procedure for every change ALTER TABLE cannot express.
//
// The whole migration runs inside one transaction, where
// `PRAGMA foreign_keys=OFF` is a no-op. Deferring the checks to commit
// instead lets rows referencing the rebuilt table survive the DROP, and
// they validate against the renamed replacement.
func (r *sqliteRenderer) redefineTable(step diff.Step) []string {
	target := step.TableDef
	tmpName := r.constrain("_sqldrift_new_" + target.Name)

	tmp := *target
	tmp.Name = tmpName

	stmts := []string{
		"PRAGMA defer_foreign_keys = ON",
		r.createTable(r, &tmp, true),
	}

	if cols := r.sharedColumns(step); len(cols) > 0 {
		list := r.quoteList(cols)
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			r.q(tmpName), list, list, r.q(target.Name)))
	}

	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s", r.q(target.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", r.q(tmpName), r.q(target.Name)),
	)

	// The rebuild discards every index on the old table, so the target
	// set is recreated from scratch. defer_foreign_keys resets itself at
	// commit.
	for i := range target.Indexes {
		stmts = append(stmts, r.createIndex(target.Name, &target.Indexes[i]))
	}
	return stmts
}

// sharedColumns lists the columns present in both the previous and the
// target definition, in target order. Only those can be copied.
func (r *sqliteRenderer) sharedColumns(step diff.Step) []string {
	if step.PrevTableDef == nil {
		return nil
	}
	prev := make(map[string]bool, len(step.PrevTableDef.Columns))
	for _, c := range step.PrevTableDef.Columns {
		prev[c.Name] = true
	}
	var cols []string
	for _, c := range step.TableDef.Columns {
		if prev[c.Name] {
			cols = append(cols, c.Name)
		}
	}
	return cols
}
