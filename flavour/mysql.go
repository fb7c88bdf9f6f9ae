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

// mysqlLockName is the GET_LOCK name shared by cooperating engine instances.
const mysqlLockName = "sqldrift_migrate"

// MySQLFlavour implements Flavour for MySQL.
type MySQLFlavour struct{}

// Kind returns the backend kind.
func (f *MySQLFlavour) Kind() Kind { return MySQL }

// DriverName returns the database/sql driver name.
func (f *MySQLFlavour) DriverName() string { return "mysql" }

// Capabilities returns the fixed capability set. MySQL DDL commits
// implicitly, so transactional DDL is absent.
func (f *MySQLFlavour) Capabilities() Capabilities {
	return CapDropColumn | CapAlterColumnType | CapCreateDatabase |
		CapRenameIndex | CapAlterForeignKeys
}

// MaxIdentifierLength returns the identifier byte limit.
func (f *MySQLFlavour) MaxIdentifierLength() int { return 64 }

// QuoteIdentifier quotes an identifier.
func (f *MySQLFlavour) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// ConnectionString renders a go-sql-driver DSN for the target.
func (f *MySQLFlavour) ConnectionString(target Target) string {
	host := target.Host
	if target.Port != 0 {
		host = fmt.Sprintf("%s:%d", target.Host, target.Port)
	}
	cred := target.User
	if target.Password != "" {
		cred = fmt.Sprintf("%s:%s", target.User, target.Password)
	}
	return fmt.Sprintf("%s@tcp(%s)/%s?parseTime=true&multiStatements=true", cred, host, target.Database)
}

// AcquireLock takes a named lock via GET_LOCK on a dedicated connection.
func (f *MySQLFlavour) AcquireLock(ctx context.Context, db *sql.DB, timeout time.Duration) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	var acquired sql.NullInt64
	seconds := int(timeout / time.Second)
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", mysqlLockName, seconds).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		conn.Close()
		return nil, ErrLockTimeout
	}

	release := func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", mysqlLockName)
		if err != nil {
			return fmt.Errorf("failed to release advisory lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// CreateDatabase provisions the database on the server.
func (f *MySQLFlavour) CreateDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = ""

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", f.QuoteIdentifier(target.Database))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database %s: %w", target.Database, err)
	}
	return nil
}

// DropDatabase destroys the database. No-op when absent.
func (f *MySQLFlavour) DropDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = ""

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf("DROP DATABASE IF EXISTS %s", f.QuoteIdentifier(target.Database))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", target.Database, err)
	}
	return nil
}

// CreateMigrationsTable initializes the bookkeeping table.
func (f *MySQLFlavour) CreateMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL,
			started_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			finished_at DATETIME(3),
			migration_name VARCHAR(255) NOT NULL,
			applied_steps_count INT UNSIGNED NOT NULL DEFAULT 0,
			rolled_back_at DATETIME(3)
		)
	`, f.QuoteIdentifier(MigrationsTableName))

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// DropMigrationsTable removes the bookkeeping table.
func (f *MySQLFlavour) DropMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", f.QuoteIdentifier(MigrationsTableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return nil
}

// DescribeSchema introspects the connection.
func (f *MySQLFlavour) DescribeSchema(ctx context.Context, db *sql.DB) (*describe.Schema, error) {
	describer, err := describe.NewDescriber(db, "mysql")
	if err != nil {
		return nil, err
	}
	return describer.Describe(ctx)
}

// EnsureConnectionValidity confirms the connection has a selected database.
func (f *MySQLFlavour) EnsureConnectionValidity(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}

	var dbName sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&dbName); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}
	if !dbName.Valid || dbName.String == "" {
		return fmt.Errorf("%w: no database selected", ErrConnectionUnusable)
	}
	return nil
}

// CheckVersionCompatibility warns when the server predates MySQL 5.7.
func (f *MySQLFlavour) CheckVersionCompatibility(ctx context.Context, db *sql.DB) (*VersionWarning, error) {
	var raw string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}
	return compareServerVersion(raw, "5.7"), nil
}

// ScanMigrationScript lints a migration script for common hazards.
func (f *MySQLFlavour) ScanMigrationScript(script string) []string {
	var warnings []string
	upper := strings.ToUpper(script)

	if strings.Contains(upper, "START TRANSACTION") || strings.Contains(upper, "BEGIN;") {
		warnings = append(warnings, "DDL statements commit implicitly on MySQL; an explicit transaction will not make them atomic")
	}
	if strings.Contains(upper, "DROP TABLE") && !strings.Contains(upper, "IF EXISTS") {
		warnings = append(warnings, "DROP TABLE without IF EXISTS fails when the table is already gone")
	}
	return warnings
}

// ShadowTarget derives a fresh shadow database target.
func (f *MySQLFlavour) ShadowTarget(target Target) Target {
	shadow := target
	shadow.Database = fmt.Sprintf("%s_shadow_%s", target.Database, uuid.NewString()[:8])
	return shadow
}

// mysqlTypeAliases maps alias spellings to canonical type names.
var mysqlTypeAliases = map[string]string{
	"INTEGER": "INT",
	"BOOL":    "BOOLEAN",
	"NUMERIC": "DECIMAL",
	"DEC":     "DECIMAL",
}

// TypesEquivalent compares two rendered types under mysql aliasing.
func (f *MySQLFlavour) TypesEquivalent(prev, next string) bool {
	return normalizeMySQLType(prev) == normalizeMySQLType(next)
}

// normalizeMySQLType resolves mysql aliases, treating tinyint(1) as boolean.
func normalizeMySQLType(t string) string {
	if strings.EqualFold(strings.TrimSpace(t), "tinyint(1)") {
		return "BOOLEAN"
	}
	return normalizeType(t, mysqlTypeAliases)
}

// DefaultsEquivalent compares two defaults semantically.
func (f *MySQLFlavour) DefaultsEquivalent(colType string, prev, next *string) bool {
	return defaultsEquivalent(colType, prev, next)
}
