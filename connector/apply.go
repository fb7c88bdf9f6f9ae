package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/sqldrift/sqldrift/flavour"
	"github.com/sqldrift/sqldrift/history"
	"github.com/sqldrift/sqldrift/replay"
)

// Apply writes a prepared plan to a new timestamped migration directory
// and executes it under the advisory lock, recording it in the
// bookkeeping table under the directory name. Plans with unexecutable
// diagnostics are refused unless forced, and the refusal happens before
// anything touches the database or the filesystem. Warnings are
// advisory and never block.
func (c *Connector) Apply(ctx context.Context, name string, plan *Plan, force bool) error {
	if diags := plan.Unexecutable(); len(diags) > 0 && !force {
		return fmt.Errorf("%w: %s (re-run with force to apply anyway)", ErrDestructiveChanges, diags[0].Message)
	}
	if plan.Empty() {
		return nil
	}

	// The on-disk directory must exist before the bookkeeping row does,
	// or a later ApplyPending would report the row as missing locally.
	dirName := history.NewDirectoryName(time.Now(), name)
	dir, err := history.WriteDirectory(c.fs, c.migrationsDir, dirName, plan.Script())
	if err != nil {
		return err
	}
	return c.withLock(ctx, func(ctx context.Context) error {
		if err := c.flavour.CreateMigrationsTable(ctx, c.db); err != nil {
			return err
		}
		return c.execMigration(ctx, dir, plan.Statements)
	})
}

// ApplyPending applies every unapplied directory from the on-disk
// history in order. It fails fast when the history has diverged from
// what the bookkeeping table says was applied, or when an earlier run
// left a partially applied migration behind.
func (c *Connector) ApplyPending(ctx context.Context) (applied []string, err error) {
	dirs, err := c.LoadHistory()
	if err != nil {
		return nil, err
	}

	err = c.withLock(ctx, func(ctx context.Context) error {
		if err := c.flavour.CreateMigrationsTable(ctx, c.db); err != nil {
			return err
		}

		recorder := history.NewRecorder(c.db, c.flavour)
		records, err := recorder.All(ctx)
		if err != nil {
			return err
		}

		if failed := history.FailedRecords(records); len(failed) > 0 {
			return fmt.Errorf("connector: migration %s is partially applied; resolve it before applying new migrations", failed[0].MigrationName)
		}
		if err := history.Diverged(records, dirs); err != nil {
			return err
		}

		for _, dir := range history.Unapplied(records, dirs) {
			if err := c.execMigration(ctx, dir, replay.SplitStatements(dir.Script)); err != nil {
				return err
			}
			applied = append(applied, dir.Name)
		}
		return nil
	})
	return applied, err
}

// execMigration runs one migration's statements with bookkeeping. With
// transactional DDL the statements and the finish marker commit
// atomically and a failure rolls everything back, leaving only a record
// to mark rolled back. Without it, a failure surfaces as a
// PartiallyAppliedError carrying how far execution got.
func (c *Connector) execMigration(ctx context.Context, dir history.Directory, statements []string) error {
	recorder := history.NewRecorder(c.db, c.flavour)

	id, err := recorder.RecordStart(ctx, dir)
	if err != nil {
		return err
	}

	if c.flavour.Capabilities().Has(flavour.CapTransactionalDDL) {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("connector: starting transaction for %s: %w", dir.Name, err)
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				if rbErr := recorder.RecordRolledBack(ctx, id); rbErr != nil {
					return fmt.Errorf("connector: migration %s failed (%v) and marking rollback also failed: %w", dir.Name, err, rbErr)
				}
				return fmt.Errorf("connector: migration %s failed and was rolled back: %w", dir.Name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("connector: committing %s: %w", dir.Name, err)
		}
		return recorder.RecordFinished(ctx, id)
	}

	for i, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return &PartiallyAppliedError{Migration: dir.Name, LastStepIndex: i - 1, Err: err}
		}
		if err := recorder.RecordStepApplied(ctx, id); err != nil {
			return err
		}
	}
	return recorder.RecordFinished(ctx, id)
}
