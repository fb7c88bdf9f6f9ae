package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqldrift/sqldrift/describe"
)

// SQLiteFlavour implements Flavour for SQLite.
type SQLiteFlavour struct{}

// Kind returns the backend kind.
func (f *SQLiteFlavour) Kind() Kind { return SQLite }

// DriverName returns the database/sql driver name.
func (f *SQLiteFlavour) DriverName() string { return "sqlite3" }

// Capabilities returns the fixed capability set. SQLite cannot drop or
// retype columns in place; affected tables are redefined instead.
func (f *SQLiteFlavour) Capabilities() Capabilities {
	return CapTransactionalDDL
}

// MaxIdentifierLength returns the identifier byte limit. SQLite has no
// hard limit; the value bounds generated names for cross-backend parity.
func (f *SQLiteFlavour) MaxIdentifierLength() int { return 255 }

// QuoteIdentifier quotes an identifier.
func (f *SQLiteFlavour) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ConnectionString renders the file path DSN. The database field of the
// target is the file path.
func (f *SQLiteFlavour) ConnectionString(target Target) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on", target.Database)
}

// lockTableName holds the advisory lock as a singleton row. SQLite has
// no server-side advisory lock, and holding a write transaction open
// would starve the migration statements running on other pool
// connections. The differ ignores every table with the engine prefix.
const lockTableName = "_sqldrift_lock"

const lockRetryInterval = 100 * time.Millisecond

// AcquireLock inserts the singleton lock row on a dedicated connection,
// retrying until the timeout while another engine holds it. Release
// deletes the row. A crashed engine leaves the row behind; deleting it
// by hand releases the lock.
func (f *SQLiteFlavour) AcquireLock(ctx context.Context, db *sql.DB, timeout time.Duration) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for lock: %w", err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	lockTable := f.QuoteIdentifier(lockTableName)
	create := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 1), acquired_at DATETIME NOT NULL)",
		lockTable)
	if _, err := conn.ExecContext(ctx, create); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create lock table: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		res, err := conn.ExecContext(ctx, fmt.Sprintf(
			"INSERT OR IGNORE INTO %s (id, acquired_at) VALUES (1, CURRENT_TIMESTAMP)", lockTable))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			conn.Close()
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	release := func() error {
		defer conn.Close()
		if _, err := conn.ExecContext(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE id = 1", lockTable)); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// CreateDatabase creates the database file's parent directory. The file
// itself appears on first connection.
func (f *SQLiteFlavour) CreateDatabase(ctx context.Context, target Target) error {
	dir := filepath.Dir(target.Database)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return nil
}

// DropDatabase removes the database file. No-op when absent.
func (f *SQLiteFlavour) DropDatabase(ctx context.Context, target Target) error {
	if err := os.Remove(target.Database); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove database file: %w", err)
	}
	return nil
}

// CreateMigrationsTable initializes the bookkeeping table.
func (f *SQLiteFlavour) CreateMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME,
			migration_name TEXT NOT NULL,
			applied_steps_count INTEGER NOT NULL DEFAULT 0,
			rolled_back_at DATETIME
		)
	`, f.QuoteIdentifier(MigrationsTableName))

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// DropMigrationsTable removes the bookkeeping table.
func (f *SQLiteFlavour) DropMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", f.QuoteIdentifier(MigrationsTableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return nil
}

// DescribeSchema introspects the connection.
func (f *SQLiteFlavour) DescribeSchema(ctx context.Context, db *sql.DB) (*describe.Schema, error) {
	describer, err := describe.NewDescriber(db, "sqlite")
	if err != nil {
		return nil, err
	}
	return describer.Describe(ctx)
}

// EnsureConnectionValidity confirms the database file is readable.
func (f *SQLiteFlavour) EnsureConnectionValidity(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}
	return nil
}

// CheckVersionCompatibility warns when the library predates SQLite 3.8.
func (f *SQLiteFlavour) CheckVersionCompatibility(ctx context.Context, db *sql.DB) (*VersionWarning, error) {
	var raw string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query library version: %w", err)
	}
	return compareServerVersion(raw, "3.8"), nil
}

// ScanMigrationScript lints a migration script for common hazards.
func (f *SQLiteFlavour) ScanMigrationScript(script string) []string {
	var warnings []string
	upper := strings.ToUpper(script)

	if strings.Contains(upper, "DROP COLUMN") {
		warnings = append(warnings, "older SQLite versions cannot drop columns; the engine redefines the table instead")
	}
	if strings.Contains(upper, "PRAGMA FOREIGN_KEYS") {
		warnings = append(warnings, "toggling foreign_keys inside a migration script affects the whole connection")
	}
	return warnings
}

// ShadowTarget derives a fresh shadow database file in the temp directory.
func (f *SQLiteFlavour) ShadowTarget(target Target) Target {
	shadow := target
	base := strings.TrimSuffix(filepath.Base(target.Database), filepath.Ext(target.Database))
	shadow.Database = filepath.Join(os.TempDir(), fmt.Sprintf("%s_shadow_%s.db", base, uuid.NewString()[:8]))
	return shadow
}

// TypesEquivalent compares two types by storage affinity.
func (f *SQLiteFlavour) TypesEquivalent(prev, next string) bool {
	return sqliteAffinity(prev) == sqliteAffinity(next)
}

// DefaultsEquivalent compares two defaults semantically.
func (f *SQLiteFlavour) DefaultsEquivalent(colType string, prev, next *string) bool {
	return defaultsEquivalent(colType, prev, next)
}

// sqliteAffinity resolves a declared type to its storage affinity.
func sqliteAffinity(t string) string {
	upper := strings.ToUpper(t)
	switch {
	case strings.Contains(upper, "INT"):
		return "INTEGER"
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "TEXT"), strings.Contains(upper, "CLOB"):
		return "TEXT"
	case strings.Contains(upper, "BLOB"):
		return "BLOB"
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return "REAL"
	default:
		return "NUMERIC"
	}
}
