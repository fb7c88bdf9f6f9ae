package connector

import (
	"context"
	"fmt"

	"github.com/sqldrift/sqldrift/diff"
	"github.com/sqldrift/sqldrift/history"
)

// Status summarizes where the database stands relative to the on-disk
// history.
type Status struct {
	Applied []history.Record
	Pending []history.Directory
	Failed  []history.Record
	// Drift is non-nil when an applied migration was edited or removed.
	Drift error
}

// Status compares the bookkeeping table against the on-disk history.
func (c *Connector) Status(ctx context.Context) (*Status, error) {
	dirs, err := c.LoadHistory()
	if err != nil {
		return nil, err
	}

	if err := c.flavour.CreateMigrationsTable(ctx, c.db); err != nil {
		return nil, err
	}

	records, err := history.NewRecorder(c.db, c.flavour).All(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Applied: records,
		Pending: history.Unapplied(records, dirs),
		Failed:  history.FailedRecords(records),
		Drift:   history.Diverged(records, dirs),
	}, nil
}

// CheckDrift replays the on-disk history against a shadow database and
// diffs the result against the live schema. The returned steps are what
// it would take to bring the live schema back in line with the history;
// an empty slice means no drift.
func (c *Connector) CheckDrift(ctx context.Context) ([]diff.Step, error) {
	expected, err := c.ReplayHistory(ctx)
	if err != nil {
		return nil, err
	}

	actual, err := c.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("connector: describing live schema: %w", err)
	}

	return diff.Diff(actual, expected, c.flavour), nil
}
