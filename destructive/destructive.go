// Package destructive classifies migration steps by their risk to
// existing data before anything is executed.
package destructive

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/diff"
)

// Severity grades a diagnostic.
type Severity int

const (
	// Warning marks a step that may lose precision or truncate values.
	// Warnings are advisory and never block execution.
	Warning Severity = iota
	// Unexecutable marks a step that destroys known data or that the
	// database would reject outright. Execution is blocked unless the
	// caller explicitly forces the plan.
	Unexecutable
)

func (s Severity) String() string {
	if s == Unexecutable {
		return "unexecutable"
	}
	return "warning"
}

// Diagnostic ties a finding to the step that caused it.
type Diagnostic struct {
	StepIndex int
	Severity  Severity
	Message   string
}

// RowCountHints reports how many rows a table currently holds. Tables
// missing from the map are treated as empty, matching a differ run
// against a schema that was never populated.
type RowCountHints map[string]int64

// Populated reports whether the table is known to hold at least one row.
func (h RowCountHints) Populated(table string) bool {
	return h[table] > 0
}

// Check walks an ordered plan and returns diagnostics for every step
// that destroys data or cannot run against the current contents. The
// returned slice is ordered by step index.
func Check(steps []diff.Step, hints RowCountHints) []Diagnostic {
	var diags []Diagnostic
	for i, step := range steps {
		diags = append(diags, checkStep(i, step, hints)...)
	}
	return diags
}

func checkStep(index int, step diff.Step, hints RowCountHints) []Diagnostic {
	var diags []Diagnostic
	add := func(sev Severity, format string, args ...any) {
		diags = append(diags, Diagnostic{
			StepIndex: index,
			Severity:  sev,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	switch step.Kind {
	case diff.StepDropTable:
		if hints.Populated(step.Table) {
			add(Unexecutable, "dropping table %q discards %d row(s)", step.Table, hints[step.Table])
		}
	case diff.StepDropColumn:
		if hints.Populated(step.Table) {
			add(Unexecutable, "dropping column %q on populated table %q discards its values", step.ColumnName, step.Table)
		}
	case diff.StepAddColumn:
		if !step.Column.Nullable && step.Column.Default == nil && !step.Column.AutoIncrement && hints.Populated(step.Table) {
			add(Unexecutable, "adding required column %q without a default to populated table %q would fail", step.Column.Name, step.Table)
		}
	case diff.StepAlterColumn:
		if hints.Populated(step.Table) {
			diags = append(diags, columnChangeDiagnostics(index, step.Table, step.PrevColumn, step.Column)...)
		}
	case diff.StepRedefineTable:
		if !hints.Populated(step.Table) {
			break
		}
		for _, col := range step.DroppedColumns {
			add(Unexecutable, "rebuilding table %q drops column %q and its values", step.Table, col)
		}
		diags = append(diags, checkRedefinedColumns(index, step)...)
	}

	return diags
}

// checkRedefinedColumns applies the add and alter column rules to a
// table rebuild. Capability substitution absorbs those steps into the
// rebuild, so the column changes carry no step of their own.
func checkRedefinedColumns(index int, step diff.Step) []Diagnostic {
	if step.TableDef == nil || step.PrevTableDef == nil {
		return nil
	}

	prev := make(map[string]*describe.Column, len(step.PrevTableDef.Columns))
	for i := range step.PrevTableDef.Columns {
		prev[step.PrevTableDef.Columns[i].Name] = &step.PrevTableDef.Columns[i]
	}

	var diags []Diagnostic
	for i := range step.TableDef.Columns {
		next := &step.TableDef.Columns[i]
		p, ok := prev[next.Name]
		if !ok {
			if !next.Nullable && next.Default == nil && !next.AutoIncrement {
				diags = append(diags, Diagnostic{
					StepIndex: index,
					Severity:  Unexecutable,
					Message:   fmt.Sprintf("adding required column %q without a default to populated table %q would fail", next.Name, step.Table),
				})
			}
			continue
		}
		diags = append(diags, columnChangeDiagnostics(index, step.Table, p, next)...)
	}
	return diags
}

// columnChangeDiagnostics grades one column changing from prev to next
// on a table known to hold rows.
func columnChangeDiagnostics(index int, table string, prev, next *describe.Column) []Diagnostic {
	var diags []Diagnostic
	add := func(sev Severity, format string, args ...any) {
		diags = append(diags, Diagnostic{
			StepIndex: index,
			Severity:  sev,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	if prev.Nullable && !next.Nullable && next.Default == nil {
		add(Unexecutable, "making column %q on populated table %q required without a default would fail on NULL rows", next.Name, table)
	}

	if prev.Type != next.Type {
		if narrowed(prev.Type, next.Type) {
			add(Warning, "narrowing column %q on table %q from %s to %s may truncate values", next.Name, table, prev.Type, next.Type)
		} else {
			add(Warning, "changing the type of column %q on populated table %q from %s to %s may fail or lose precision", next.Name, table, prev.Type, next.Type)
		}
	}

	return diags
}

var typeSizeRe = regexp.MustCompile(`^([A-Za-z ]+)\((\d+)(?:,\s*(\d+))?\)$`)

// narrowed reports whether next is the same base type as prev with a
// smaller declared size or precision, e.g. VARCHAR(255) to VARCHAR(50).
func narrowed(prev, next string) bool {
	pm := typeSizeRe.FindStringSubmatch(prev)
	nm := typeSizeRe.FindStringSubmatch(next)
	if pm == nil || nm == nil || pm[1] != nm[1] {
		return false
	}
	ps, _ := strconv.Atoi(pm[2])
	ns, _ := strconv.Atoi(nm[2])
	if ns < ps {
		return true
	}
	if pm[3] != "" && nm[3] != "" {
		pScale, _ := strconv.Atoi(pm[3])
		nScale, _ := strconv.Atoi(nm[3])
		return nScale < pScale
	}
	return false
}
