package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqldrift/sqldrift/describe"
)

// advisoryLockKey is the fixed key for the engine's advisory lock. All
// cooperating engine instances use the same key.
const advisoryLockKey = 0x73716c6472696674

// PostgresFlavour implements Flavour for PostgreSQL.
type PostgresFlavour struct{}

// Kind returns the backend kind.
func (f *PostgresFlavour) Kind() Kind { return Postgres }

// DriverName returns the database/sql driver name.
func (f *PostgresFlavour) DriverName() string { return "postgres" }

// Capabilities returns the fixed capability set.
func (f *PostgresFlavour) Capabilities() Capabilities {
	return CapDropColumn | CapAlterColumnType | CapTransactionalDDL |
		CapCreateDatabase | CapRenameIndex | CapEnumTypes | CapSequences |
		CapConcurrentIndexCreation | CapAlterForeignKeys
}

// MaxIdentifierLength returns the identifier byte limit.
func (f *PostgresFlavour) MaxIdentifierLength() int { return 63 }

// QuoteIdentifier quotes an identifier.
func (f *PostgresFlavour) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ConnectionString renders a lib/pq DSN for the target.
func (f *PostgresFlavour) ConnectionString(target Target) string {
	parts := []string{
		fmt.Sprintf("host=%s", target.Host),
		fmt.Sprintf("dbname=%s", target.Database),
		"sslmode=disable",
	}
	if target.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", target.Port))
	}
	if target.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", target.User))
	}
	if target.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", target.Password))
	}
	return strings.Join(parts, " ")
}

// AcquireLock takes a session-level advisory lock on a dedicated
// connection. The lock is polled until the timeout elapses; the release
// function unlocks and returns the connection to the pool.
func (f *PostgresFlavour) AcquireLock(ctx context.Context, db *sql.DB, timeout time.Duration) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		var acquired bool
		err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", int64(advisoryLockKey)).Scan(&acquired)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if acquired {
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
		case <-time.After(100 * time.Millisecond):
		}
	}

	release := func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", int64(advisoryLockKey))
		if err != nil {
			return fmt.Errorf("failed to release advisory lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// CreateDatabase provisions the database on the server. A pre-existing
// database is not an error.
func (f *PostgresFlavour) CreateDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = "postgres"

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to maintenance database: %w", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", f.QuoteIdentifier(target.Database)))
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create database %s: %w", target.Database, err)
	}
	return nil
}

// DropDatabase destroys the database. No-op when absent.
func (f *PostgresFlavour) DropDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = "postgres"

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to maintenance database: %w", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", f.QuoteIdentifier(target.Database)))
	if err != nil {
		return fmt.Errorf("failed to drop database %s: %w", target.Database, err)
	}
	return nil
}

// CreateMigrationsTable initializes the bookkeeping table.
func (f *PostgresFlavour) CreateMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ,
			migration_name VARCHAR(255) NOT NULL,
			applied_steps_count INTEGER NOT NULL DEFAULT 0,
			rolled_back_at TIMESTAMPTZ
		)
	`, f.QuoteIdentifier(MigrationsTableName))

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// DropMigrationsTable removes the bookkeeping table.
func (f *PostgresFlavour) DropMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", f.QuoteIdentifier(MigrationsTableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return nil
}

// DescribeSchema introspects the connection.
func (f *PostgresFlavour) DescribeSchema(ctx context.Context, db *sql.DB) (*describe.Schema, error) {
	describer, err := describe.NewDescriber(db, "postgres")
	if err != nil {
		return nil, err
	}
	return describer.Describe(ctx)
}

// EnsureConnectionValidity confirms the connection works and the public
// schema exists.
func (f *PostgresFlavour) EnsureConnectionValidity(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}

	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = 'public')"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}
	if !exists {
		return fmt.Errorf("%w: schema \"public\" does not exist", ErrConnectionUnusable)
	}
	return nil
}

// CheckVersionCompatibility warns when the server predates PostgreSQL 9.6.
func (f *PostgresFlavour) CheckVersionCompatibility(ctx context.Context, db *sql.DB) (*VersionWarning, error) {
	var raw string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}
	return compareServerVersion(raw, "9.6"), nil
}

// ScanMigrationScript lints a migration script for common hazards.
func (f *PostgresFlavour) ScanMigrationScript(script string) []string {
	var warnings []string
	upper := strings.ToUpper(script)

	if strings.Contains(upper, "CREATE INDEX") && !strings.Contains(upper, "CONCURRENTLY") {
		warnings = append(warnings, "CREATE INDEX without CONCURRENTLY locks writes on the table for the duration of the build")
	}
	if strings.Contains(upper, "DROP TABLE") && !strings.Contains(upper, "IF EXISTS") {
		warnings = append(warnings, "DROP TABLE without IF EXISTS fails when the table is already gone")
	}
	return warnings
}

// ShadowTarget derives a fresh shadow database target.
func (f *PostgresFlavour) ShadowTarget(target Target) Target {
	shadow := target
	shadow.Database = fmt.Sprintf("%s_shadow_%s", target.Database, uuid.NewString()[:8])
	return shadow
}

// postgresTypeAliases maps alias spellings to canonical type names.
var postgresTypeAliases = map[string]string{
	"INT":                      "INTEGER",
	"INT4":                     "INTEGER",
	"SERIAL":                   "INTEGER",
	"INT8":                     "BIGINT",
	"BIGSERIAL":                "BIGINT",
	"INT2":                     "SMALLINT",
	"BOOL":                     "BOOLEAN",
	"CHARACTER VARYING":        "VARCHAR",
	"NUMERIC":                  "DECIMAL",
	"FLOAT8":                   "DOUBLE PRECISION",
	"FLOAT4":                   "REAL",
	"TIMESTAMP WITH TIME ZONE": "TIMESTAMPTZ",
	"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
}

// TypesEquivalent compares two rendered types under postgres aliasing.
func (f *PostgresFlavour) TypesEquivalent(prev, next string) bool {
	return normalizeType(prev, postgresTypeAliases) == normalizeType(next, postgresTypeAliases)
}

// DefaultsEquivalent compares two defaults semantically.
func (f *PostgresFlavour) DefaultsEquivalent(colType string, prev, next *string) bool {
	return defaultsEquivalent(colType, prev, next)
}

// normalizeType upper-cases a type, resolves aliases and keeps any
// length/precision suffix.
func normalizeType(t string, aliases map[string]string) string {
	upper := strings.ToUpper(strings.TrimSpace(t))

	base := upper
	suffix := ""
	if idx := strings.Index(upper, "("); idx != -1 {
		base = strings.TrimSpace(upper[:idx])
		suffix = upper[idx:]
	}
	if canonical, ok := aliases[base]; ok {
		base = canonical
	}
	return base + suffix
}
