package diff

import (
	"sort"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
)

// Execution phases. Steps run phase by phase so that referential
// dependencies always resolve: constraints and indexes go away before
// the objects they guard, tables appear before anything points at them,
// and foreign keys are installed last, after every referenced table and
// column exists. The trailing foreign key phase is also what makes
// mutually referencing tables creatable.
const (
	phaseDropForeignKey = iota
	phaseDropIndex
	phaseDropTable
	phaseRedefineTable
	phaseCreateTable
	phaseColumn
	phaseCreateIndex
	phaseAddForeignKey
)

func stepPhase(s Step) int {
	switch s.Kind {
	case StepDropForeignKey:
		return phaseDropForeignKey
	case StepDropIndex:
		return phaseDropIndex
	case StepDropTable:
		return phaseDropTable
	case StepRedefineTable:
		return phaseRedefineTable
	case StepCreateTable:
		return phaseCreateTable
	case StepCreateIndex:
		return phaseCreateIndex
	case StepAddForeignKey:
		return phaseAddForeignKey
	default:
		return phaseColumn
	}
}

// orderSteps sorts steps into execution phases. Within the drop-table
// and create-table phases, tables are ordered topologically along their
// foreign key edges; all other phases preserve generation order, which
// is already name-sorted.
func orderSteps(steps []Step, from *describe.Schema) []Step {
	sort.SliceStable(steps, func(i, j int) bool {
		return stepPhase(steps[i]) < stepPhase(steps[j])
	})

	orderTablePhase(steps, StepDropTable, func(name string) []string {
		// Drop referencing tables before the tables they reference.
		if t := from.Table(name); t != nil {
			return referencedTables(t)
		}
		return nil
	}, true)

	orderTablePhase(steps, StepCreateTable, func(name string) []string {
		for i := range steps {
			if steps[i].Kind == StepCreateTable && steps[i].Table == name {
				return referencedTables(steps[i].TableDef)
			}
		}
		return nil
	}, false)

	return steps
}

func referencedTables(t *describe.Table) []string {
	var refs []string
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable != t.Name {
			refs = append(refs, fk.ReferencedTable)
		}
	}
	return refs
}

// orderTablePhase reorders the contiguous run of steps of the given kind
// topologically. deps returns the tables a table references; when
// reverse is true, referencing tables sort first.
func orderTablePhase(steps []Step, kind StepKind, deps func(name string) []string, reverse bool) {
	start, end := -1, -1
	for i := range steps {
		if steps[i].Kind == kind {
			if start < 0 {
				start = i
			}
			end = i + 1
		}
	}
	if start < 0 || end-start < 2 {
		return
	}

	run := steps[start:end]
	names := make([]string, len(run))
	inRun := make(map[string]bool, len(run))
	for i, s := range run {
		names[i] = s.Table
		inRun[s.Table] = true
	}

	// Kahn's algorithm over foreign key edges inside the run. Edges that
	// would form a cycle are skipped; the deferred foreign key phase
	// absorbs them.
	indegree := make(map[string]int, len(run))
	edges := make(map[string][]string, len(run))
	for _, name := range names {
		indegree[name] += 0
		for _, ref := range deps(name) {
			if !inRun[ref] || ref == name {
				continue
			}
			if reverse {
				edges[name] = append(edges[name], ref)
				indegree[ref]++
			} else {
				edges[ref] = append(edges[ref], name)
				indegree[name]++
			}
		}
	}

	var queue []string
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var ordered []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, name)
		next := edges[name]
		sort.Strings(next)
		for _, succ := range next {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	// Cycle remainder, deterministic order.
	if len(ordered) < len(run) {
		seen := make(map[string]bool, len(ordered))
		for _, name := range ordered {
			seen[name] = true
		}
		var rest []string
		for _, name := range names {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		ordered = append(ordered, rest...)
	}

	byName := make(map[string]Step, len(run))
	for _, s := range run {
		byName[s.Table] = s
	}
	for i, name := range ordered {
		run[i] = byName[name]
	}
}

// substituteCapabilities rewrites steps the flavour cannot execute
// directly into a table redefinition: the table is rebuilt under a
// temporary name from the target definition, surviving rows are copied
// across, and the original is swapped out. Index steps on a redefined
// table are absorbed because the rebuild recreates the target indexes.
func substituteCapabilities(steps []Step, f flavour.Flavour, from, to *describe.Schema) []Step {
	caps := f.Capabilities()

	created := make(map[string]bool)
	for _, s := range steps {
		if s.Kind == StepCreateTable {
			created[s.Table] = true
		}
	}

	needsRedefine := make(map[string]bool)
	for _, s := range steps {
		switch s.Kind {
		case StepDropColumn:
			if !caps.Has(flavour.CapDropColumn) {
				needsRedefine[s.Table] = true
			}
		case StepAlterColumn:
			if !caps.Has(flavour.CapAlterColumnType) {
				needsRedefine[s.Table] = true
			}
		case StepAddForeignKey, StepDropForeignKey:
			if !caps.Has(flavour.CapAlterForeignKeys) && !created[s.Table] {
				needsRedefine[s.Table] = true
			}
		}
	}

	if len(needsRedefine) == 0 && caps.Has(flavour.CapAlterForeignKeys) {
		return steps
	}

	dropped := make(map[string][]string)
	for _, s := range steps {
		if needsRedefine[s.Table] && s.Kind == StepDropColumn {
			dropped[s.Table] = append(dropped[s.Table], s.ColumnName)
		}
	}

	var out []Step
	redefined := make(map[string]bool)
	for _, s := range steps {
		// Foreign keys on freshly created tables are inlined into the
		// CREATE TABLE statement when the flavour cannot add them later.
		if s.Kind == StepAddForeignKey && created[s.Table] && !caps.Has(flavour.CapAlterForeignKeys) {
			continue
		}
		if !needsRedefine[s.Table] {
			out = append(out, s)
			continue
		}
		switch s.Kind {
		case StepAddColumn, StepDropColumn, StepAlterColumn,
			StepAddForeignKey, StepDropForeignKey,
			StepCreateIndex, StepDropIndex:
			if !redefined[s.Table] {
				redefined[s.Table] = true
				out = append(out, Step{
					Kind:           StepRedefineTable,
					Table:          s.Table,
					TableDef:       to.Table(s.Table),
					PrevTableDef:   from.Table(s.Table),
					DroppedColumns: dropped[s.Table],
				})
			}
		default:
			out = append(out, s)
		}
	}
	return out
}
