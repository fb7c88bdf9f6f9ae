// Package replay rebuilds the schema a migration history produces by
// running it against a disposable shadow database.
package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
	"github.com/sqldrift/sqldrift/history"
)

// teardownTimeout bounds shadow database cleanup after the caller's
// context is already cancelled.
const teardownTimeout = 30 * time.Second

// ReplayError pinpoints the statement that broke a replay. The shadow
// database is already gone by the time the caller sees it.
type ReplayError struct {
	Directory      string
	StatementIndex int
	Err            error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay: migration %s failed at statement %d: %v", e.Directory, e.StatementIndex, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Replayer runs migration histories against shadow databases derived
// from a main target.
type Replayer struct {
	flavour flavour.Flavour
}

// New returns a Replayer for the flavour.
func New(f flavour.Flavour) *Replayer {
	return &Replayer{flavour: f}
}

// Replay provisions a shadow database, applies every directory in order
// and returns the resulting schema snapshot. The shadow database is
// destroyed on every exit path. When the flavour supports transactional
// DDL each directory runs in its own transaction, so a failing directory
// leaves no half-applied statements behind; the directories before it
// stay applied either way, which is exactly what the history produced.
func (r *Replayer) Replay(ctx context.Context, target flavour.Target, dirs []history.Directory) (*describe.Schema, error) {
	shadow := r.flavour.ShadowTarget(target)

	if err := r.flavour.CreateDatabase(ctx, shadow); err != nil {
		return nil, fmt.Errorf("replay: creating shadow database: %w", err)
	}
	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		_ = r.flavour.DropDatabase(teardownCtx, shadow)
	}()

	db, err := sql.Open(r.flavour.DriverName(), r.flavour.ConnectionString(shadow))
	if err != nil {
		return nil, fmt.Errorf("replay: opening shadow database: %w", err)
	}
	defer db.Close()

	if err := r.flavour.EnsureConnectionValidity(ctx, db); err != nil {
		return nil, fmt.Errorf("replay: shadow database unusable: %w", err)
	}

	for _, dir := range dirs {
		if err := r.applyDirectory(ctx, db, dir); err != nil {
			return nil, err
		}
	}

	schema, err := r.flavour.DescribeSchema(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("replay: describing shadow schema: %w", err)
	}
	return schema, nil
}

func (r *Replayer) applyDirectory(ctx context.Context, db *sql.DB, dir history.Directory) error {
	statements := SplitStatements(dir.Script)

	if r.flavour.Capabilities().Has(flavour.CapTransactionalDDL) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("replay: starting transaction for %s: %w", dir.Name, err)
		}
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return &ReplayError{Directory: dir.Name, StatementIndex: i, Err: err}
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("replay: committing %s: %w", dir.Name, err)
		}
		return nil
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &ReplayError{Directory: dir.Name, StatementIndex: i, Err: err}
		}
	}
	return nil
}
