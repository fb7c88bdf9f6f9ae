package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/destructive"
	"github.com/sqldrift/sqldrift/diff"
	"github.com/sqldrift/sqldrift/history"
	"github.com/sqldrift/sqldrift/render"
)

// Plan is a fully prepared migration: the steps, their rendered DDL and
// the destructive-change diagnostics. Plans are computed with the
// database only read, never written; Apply executes them.
type Plan struct {
	Steps       []diff.Step
	Statements  []string
	Diagnostics []destructive.Diagnostic
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Unexecutable returns the diagnostics that block execution unless the
// plan is forced.
func (p *Plan) Unexecutable() []destructive.Diagnostic {
	var out []destructive.Diagnostic
	for _, d := range p.Diagnostics {
		if d.Severity == destructive.Unexecutable {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns the diagnostics a force flag overrides.
func (p *Plan) Warnings() []destructive.Diagnostic {
	var out []destructive.Diagnostic
	for _, d := range p.Diagnostics {
		if d.Severity == destructive.Warning {
			out = append(out, d)
		}
	}
	return out
}

// Script renders the plan as one migration script.
func (p *Plan) Script() string {
	if len(p.Statements) == 0 {
		return ""
	}
	return strings.Join(p.Statements, ";\n\n") + ";\n"
}

// Plan diffs the live schema against the target and classifies the
// result. Row counts for the affected tables feed the classification, so
// a destructive step on an empty table stays silent.
func (c *Connector) Plan(ctx context.Context, target *describe.Schema) (*Plan, error) {
	current, err := c.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("connector: describing current schema: %w", err)
	}

	steps := diff.Diff(current, target, c.flavour)

	statements, err := render.New(c.flavour).RenderSteps(steps)
	if err != nil {
		return nil, err
	}

	hints, err := c.rowCounts(ctx, current, steps)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Steps:       steps,
		Statements:  statements,
		Diagnostics: destructive.Check(steps, hints),
	}, nil
}

// rowCounts counts rows in every existing table the plan touches.
func (c *Connector) rowCounts(ctx context.Context, current *describe.Schema, steps []diff.Step) (destructive.RowCountHints, error) {
	touched := make(map[string]bool)
	for _, step := range steps {
		touched[step.Table] = true
	}

	hints := make(destructive.RowCountHints, len(touched))
	for name := range touched {
		if current.Table(name) == nil {
			continue
		}
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.flavour.QuoteIdentifier(name))
		var count int64
		if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("connector: counting rows in %s: %w", name, err)
		}
		hints[name] = count
	}
	return hints, nil
}

// CreateMigration plans against the target schema and, when the plan is
// not empty, writes it to a new timestamped directory in the on-disk
// history. The database is not modified.
func (c *Connector) CreateMigration(ctx context.Context, name string, target *describe.Schema) (*Plan, *history.Directory, error) {
	plan, err := c.Plan(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	if plan.Empty() {
		return plan, nil, nil
	}

	dirName := history.NewDirectoryName(time.Now(), name)
	dir, err := history.WriteDirectory(c.fs, c.migrationsDir, dirName, plan.Script())
	if err != nil {
		return nil, nil, err
	}
	return plan, &dir, nil
}
