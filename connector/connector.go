// Package connector is the engine facade. It owns the database handle,
// the advisory migration lock and the bookkeeping table, and exposes the
// diff, apply, replay and reset operations the CLI drives.
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
	"github.com/sqldrift/sqldrift/history"
	"github.com/sqldrift/sqldrift/replay"
)

var (
	// ErrDestructiveChanges is returned by Apply when the plan carries
	// unexecutable diagnostics and the caller did not force it.
	ErrDestructiveChanges = errors.New("connector: plan contains destructive changes")

	// ErrResetNotConfirmed is returned by Reset without confirmation.
	ErrResetNotConfirmed = errors.New("connector: reset requires confirmation")
)

// PartiallyAppliedError reports that a non-transactional apply failed
// midway. LastStepIndex is the index of the last statement that
// succeeded; everything before it is in the database to stay.
type PartiallyAppliedError struct {
	Migration     string
	LastStepIndex int
	Err           error
}

func (e *PartiallyAppliedError) Error() string {
	return fmt.Sprintf("connector: migration %s partially applied, last successful statement index %d: %v",
		e.Migration, e.LastStepIndex, e.Err)
}

func (e *PartiallyAppliedError) Unwrap() error { return e.Err }

// Options configures a Connector.
type Options struct {
	// MigrationsDir is the root of the on-disk migration history.
	MigrationsDir string
	// Fs is the filesystem the history is read from. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// LockTimeout bounds how long to wait for the advisory migration
	// lock. Defaults to flavour.DefaultLockTimeout.
	LockTimeout time.Duration
}

// Connector binds one database target to the engine.
type Connector struct {
	target  flavour.Target
	flavour flavour.Flavour
	db      *sql.DB

	fs            afero.Fs
	migrationsDir string
	lockTimeout   time.Duration
}

// New selects the flavour for the target, opens the connection pool and
// verifies it is usable. The returned version warning, when non-nil, is
// advisory.
func New(ctx context.Context, target flavour.Target, opts Options) (*Connector, *flavour.VersionWarning, error) {
	f, err := flavour.New(target.Kind)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(f.DriverName(), f.ConnectionString(target))
	if err != nil {
		return nil, nil, fmt.Errorf("connector: opening database: %w", err)
	}

	if err := f.EnsureConnectionValidity(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	warning, err := f.CheckVersionCompatibility(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	c := &Connector{
		target:        target,
		flavour:       f,
		db:            db,
		fs:            opts.Fs,
		migrationsDir: opts.MigrationsDir,
		lockTimeout:   opts.LockTimeout,
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.lockTimeout == 0 {
		c.lockTimeout = flavour.DefaultLockTimeout
	}
	return c, warning, nil
}

// Close releases the connection pool.
func (c *Connector) Close() error {
	return c.db.Close()
}

// Flavour exposes the backend strategy in use.
func (c *Connector) Flavour() flavour.Flavour {
	return c.flavour
}

// Describe snapshots the current database schema.
func (c *Connector) Describe(ctx context.Context) (*describe.Schema, error) {
	return c.flavour.DescribeSchema(ctx, c.db)
}

// withLock runs fn while holding the advisory migration lock, so only
// one engine mutates the target at a time.
func (c *Connector) withLock(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	release, err := c.flavour.AcquireLock(ctx, c.db, c.lockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(ctx)
}

// LoadHistory reads the on-disk migration history.
func (c *Connector) LoadHistory() ([]history.Directory, error) {
	return history.LoadDirectories(c.fs, c.migrationsDir)
}

// ReplayHistory rebuilds the schema the on-disk history produces by
// running it against a shadow database.
func (c *Connector) ReplayHistory(ctx context.Context) (*describe.Schema, error) {
	dirs, err := c.LoadHistory()
	if err != nil {
		return nil, err
	}
	return replay.New(c.flavour).Replay(ctx, c.target, dirs)
}

// Reset drops and recreates the target database. It refuses to run
// without explicit confirmation. On backends without server-level
// databases the flavour removes and recreates the underlying file.
func (c *Connector) Reset(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrResetNotConfirmed
	}

	// The pool holds connections into the database being dropped.
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("connector: closing pool before reset: %w", err)
	}

	if err := c.flavour.DropDatabase(ctx, c.target); err != nil {
		return fmt.Errorf("connector: dropping database: %w", err)
	}
	if err := c.flavour.CreateDatabase(ctx, c.target); err != nil {
		return fmt.Errorf("connector: recreating database: %w", err)
	}

	db, err := sql.Open(c.flavour.DriverName(), c.flavour.ConnectionString(c.target))
	if err != nil {
		return fmt.Errorf("connector: reopening database: %w", err)
	}
	c.db = db
	return c.flavour.EnsureConnectionValidity(ctx, c.db)
}
