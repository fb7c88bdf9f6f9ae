package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqldrift/sqldrift/describe"
)

// mssqlLockResource names the applock shared by cooperating engine instances.
const mssqlLockResource = "sqldrift_migrate"

// SQLServerFlavour implements Flavour for SQL Server.
type SQLServerFlavour struct{}

// Kind returns the backend kind.
func (f *SQLServerFlavour) Kind() Kind { return SQLServer }

// DriverName returns the database/sql driver name.
func (f *SQLServerFlavour) DriverName() string { return "sqlserver" }

// Capabilities returns the fixed capability set.
func (f *SQLServerFlavour) Capabilities() Capabilities {
	return CapDropColumn | CapAlterColumnType | CapTransactionalDDL |
		CapCreateDatabase | CapRenameIndex | CapSequences | CapAlterForeignKeys
}

// MaxIdentifierLength returns the identifier byte limit.
func (f *SQLServerFlavour) MaxIdentifierLength() int { return 128 }

// QuoteIdentifier quotes an identifier.
func (f *SQLServerFlavour) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ConnectionString renders a go-mssqldb URL for the target.
func (f *SQLServerFlavour) ConnectionString(target Target) string {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   target.Host,
	}
	if target.Port != 0 {
		u.Host = fmt.Sprintf("%s:%d", target.Host, target.Port)
	}
	if target.User != "" {
		u.User = url.UserPassword(target.User, target.Password)
	}
	query := url.Values{}
	if target.Database != "" {
		query.Set("database", target.Database)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// AcquireLock takes a session-scoped applock on a dedicated connection.
func (f *SQLServerFlavour) AcquireLock(ctx context.Context, db *sql.DB, timeout time.Duration) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for applock: %w", err)
	}

	query := `
		DECLARE @result INT;
		EXEC @result = sp_getapplock
			@Resource = @p1,
			@LockMode = 'Exclusive',
			@LockOwner = 'Session',
			@LockTimeout = @p2;
		SELECT @result;
	`
	var result int
	err = conn.QueryRowContext(ctx, query, mssqlLockResource, int(timeout.Milliseconds())).Scan(&result)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire applock: %w", err)
	}
	if result < 0 {
		conn.Close()
		return nil, ErrLockTimeout
	}

	release := func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(),
			"EXEC sp_releaseapplock @Resource = @p1, @LockOwner = 'Session'", mssqlLockResource)
		if err != nil {
			return fmt.Errorf("failed to release applock: %w", err)
		}
		return nil
	}
	return release, nil
}

// CreateDatabase provisions the database on the server. A pre-existing
// database is not an error.
func (f *SQLServerFlavour) CreateDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = "master"

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to master database: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(
		"IF DB_ID(N'%s') IS NULL CREATE DATABASE %s",
		strings.ReplaceAll(target.Database, "'", "''"),
		f.QuoteIdentifier(target.Database),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database %s: %w", target.Database, err)
	}
	return nil
}

// DropDatabase destroys the database. No-op when absent.
func (f *SQLServerFlavour) DropDatabase(ctx context.Context, target Target) error {
	admin := target
	admin.Database = "master"

	db, err := sql.Open(f.DriverName(), f.ConnectionString(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to master database: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(
		"IF DB_ID(N'%s') IS NOT NULL DROP DATABASE %s",
		strings.ReplaceAll(target.Database, "'", "''"),
		f.QuoteIdentifier(target.Database),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", target.Database, err)
	}
	return nil
}

// CreateMigrationsTable initializes the bookkeeping table.
func (f *SQLServerFlavour) CreateMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(`
		IF OBJECT_ID(N'%s', N'U') IS NULL
		CREATE TABLE %s (
			id VARCHAR(36) PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL,
			started_at DATETIME2 NOT NULL DEFAULT SYSDATETIME(),
			finished_at DATETIME2,
			migration_name NVARCHAR(255) NOT NULL,
			applied_steps_count INT NOT NULL DEFAULT 0,
			rolled_back_at DATETIME2
		)
	`, MigrationsTableName, f.QuoteIdentifier(MigrationsTableName))

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// DropMigrationsTable removes the bookkeeping table.
func (f *SQLServerFlavour) DropMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		MigrationsTableName, f.QuoteIdentifier(MigrationsTableName),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return nil
}

// DescribeSchema introspects the connection.
func (f *SQLServerFlavour) DescribeSchema(ctx context.Context, db *sql.DB) (*describe.Schema, error) {
	describer, err := describe.NewDescriber(db, "sqlserver")
	if err != nil {
		return nil, err
	}
	return describer.Describe(ctx)
}

// EnsureConnectionValidity confirms the connection has a usable database.
func (f *SQLServerFlavour) EnsureConnectionValidity(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}

	var dbName sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&dbName); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnusable, err)
	}
	if !dbName.Valid || dbName.String == "" {
		return fmt.Errorf("%w: no database selected", ErrConnectionUnusable)
	}
	return nil
}

// CheckVersionCompatibility warns when the server predates SQL Server 2017.
func (f *SQLServerFlavour) CheckVersionCompatibility(ctx context.Context, db *sql.DB) (*VersionWarning, error) {
	var raw string
	query := "SELECT CAST(SERVERPROPERTY('productversion') AS NVARCHAR(128))"
	if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}
	return compareServerVersion(raw, "14.0"), nil
}

// ScanMigrationScript lints a migration script for common hazards.
func (f *SQLServerFlavour) ScanMigrationScript(script string) []string {
	var warnings []string
	upper := strings.ToUpper(script)

	if strings.Contains(upper, "DROP TABLE") && !strings.Contains(upper, "IF OBJECT_ID") && !strings.Contains(upper, "IF EXISTS") {
		warnings = append(warnings, "DROP TABLE without an existence check fails when the table is already gone")
	}
	return warnings
}

// ShadowTarget derives a fresh shadow database target.
func (f *SQLServerFlavour) ShadowTarget(target Target) Target {
	shadow := target
	shadow.Database = fmt.Sprintf("%s_shadow_%s", target.Database, uuid.NewString()[:8])
	return shadow
}

// mssqlTypeAliases maps alias spellings to canonical type names.
var mssqlTypeAliases = map[string]string{
	"INTEGER": "INT",
	"NUMERIC": "DECIMAL",
	"DEC":     "DECIMAL",
}

// TypesEquivalent compares two rendered types under mssql aliasing.
func (f *SQLServerFlavour) TypesEquivalent(prev, next string) bool {
	return normalizeType(prev, mssqlTypeAliases) == normalizeType(next, mssqlTypeAliases)
}

// DefaultsEquivalent compares two defaults semantically.
func (f *SQLServerFlavour) DefaultsEquivalent(colType string, prev, next *string) bool {
	return defaultsEquivalent(colType, prev, next)
}
