// Package flavour encapsulates backend-specific behaviour for schema
// migrations: dialect syntax, capability flags, identifier limits, advisory
// locking and database lifecycle operations.
package flavour

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sqldrift/sqldrift/describe"
)

// BookkeepingPrefix marks every table the engine maintains for its own
// use. The differ ignores tables carrying it.
const BookkeepingPrefix = "_sqldrift"

// MigrationsTableName is the bookkeeping table maintained by the engine.
const MigrationsTableName = BookkeepingPrefix + "_migrations"

// DefaultLockTimeout bounds how long lock acquisition may wait.
const DefaultLockTimeout = 10 * time.Second

var (
	// ErrLockTimeout is returned when the advisory lock is held elsewhere.
	// Callers may retry with backoff.
	ErrLockTimeout = errors.New("flavour: timed out waiting for advisory lock")

	// ErrConnectionUnusable is returned when a connection cannot be used by
	// the migration engine, for example because the target namespace does
	// not exist.
	ErrConnectionUnusable = errors.New("flavour: connection is not usable")

	// ErrUnsupportedFeature is returned when a requested operation has no
	// achievable strategy on the backend.
	ErrUnsupportedFeature = errors.New("flavour: unsupported feature")
)

// Kind identifies a SQL backend.
type Kind string

const (
	Postgres  Kind = "postgres"
	MySQL     Kind = "mysql"
	SQLite    Kind = "sqlite"
	SQLServer Kind = "sqlserver"
)

// Capabilities is a bit set of backend features. The differ and the
// renderer consult it to pick achievable strategies instead of branching
// on backend names.
type Capabilities uint32

const (
	// CapDropColumn means ALTER TABLE ... DROP COLUMN is supported.
	CapDropColumn Capabilities = 1 << iota
	// CapAlterColumnType means a column's type can be changed in place.
	CapAlterColumnType
	// CapTransactionalDDL means DDL statements roll back with their transaction.
	CapTransactionalDDL
	// CapCreateDatabase means databases are server-level objects that can
	// be provisioned with CREATE DATABASE.
	CapCreateDatabase
	// CapRenameIndex means indexes can be renamed in place.
	CapRenameIndex
	// CapEnumTypes means enums are first-class schema types.
	CapEnumTypes
	// CapSequences means sequences are first-class schema objects.
	CapSequences
	// CapConcurrentIndexCreation means indexes can be built without
	// blocking writes.
	CapConcurrentIndexCreation
	// CapAlterForeignKeys means foreign key constraints can be added and
	// dropped on an existing table via ALTER TABLE.
	CapAlterForeignKeys
)

// Has reports whether all given capabilities are present.
func (c Capabilities) Has(caps Capabilities) bool {
	return c&caps == caps
}

// VersionWarning is an advisory produced when the server version is older
// than what the engine is tested against. It never blocks an operation.
type VersionWarning struct {
	ServerVersion  string
	MinimumVersion string
	Message        string
}

// Target holds already-parsed connection parameters. The engine never
// parses connection strings itself.
type Target struct {
	Kind     Kind
	Host     string
	Port     int
	Database string // file path for SQLite
	User     string
	Password string
}

// Flavour is the backend-specific strategy for one SQL dialect. An
// instance is stateless aside from its fixed capability set; it never
// caches schema data across calls.
type Flavour interface {
	// Kind returns the backend this flavour serves.
	Kind() Kind

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Capabilities returns the fixed capability set.
	Capabilities() Capabilities

	// MaxIdentifierLength returns the backend's identifier byte limit.
	MaxIdentifierLength() int

	// QuoteIdentifier quotes an identifier for this dialect.
	QuoteIdentifier(name string) string

	// ConnectionString renders a driver DSN for the target.
	ConnectionString(target Target) string

	// AcquireLock obtains the advisory migration lock on a dedicated
	// connection. The returned release function must be called on every
	// exit path. Fails with ErrLockTimeout when the lock is held elsewhere.
	AcquireLock(ctx context.Context, db *sql.DB, timeout time.Duration) (func() error, error)

	// CreateDatabase provisions the server-level database object.
	CreateDatabase(ctx context.Context, target Target) error

	// DropDatabase destroys the database object. It is a no-op when the
	// database does not exist.
	DropDatabase(ctx context.Context, target Target) error

	// CreateMigrationsTable initializes the bookkeeping table. Idempotent.
	CreateMigrationsTable(ctx context.Context, db *sql.DB) error

	// DropMigrationsTable removes the bookkeeping table. Idempotent.
	DropMigrationsTable(ctx context.Context, db *sql.DB) error

	// DescribeSchema introspects the connection into a schema snapshot.
	DescribeSchema(ctx context.Context, db *sql.DB) (*describe.Schema, error)

	// EnsureConnectionValidity checks that the connection is usable by the
	// engine. Fails with ErrConnectionUnusable.
	EnsureConnectionValidity(ctx context.Context, db *sql.DB) error

	// CheckVersionCompatibility compares the server version against the
	// oldest version the engine supports. Advisory, never blocking.
	CheckVersionCompatibility(ctx context.Context, db *sql.DB) (*VersionWarning, error)

	// ScanMigrationScript lints a migration script. Best effort; the
	// returned warnings never block execution.
	ScanMigrationScript(script string) []string

	// ShadowTarget derives a disposable shadow database target from the
	// main target. Each call yields a distinct database name.
	ShadowTarget(target Target) Target

	// TypesEquivalent reports whether two rendered column types are the
	// same type under this dialect's aliasing rules.
	TypesEquivalent(prev, next string) bool

	// DefaultsEquivalent reports whether two column defaults are
	// semantically equal for columns of the given type.
	DefaultsEquivalent(colType string, prev, next *string) bool
}

// New selects the flavour for a parsed connection target. Selection
// happens once at connection setup, never by runtime inspection of data.
func New(kind Kind) (Flavour, error) {
	switch kind {
	case Postgres:
		return &PostgresFlavour{}, nil
	case MySQL:
		return &MySQLFlavour{}, nil
	case SQLite:
		return &SQLiteFlavour{}, nil
	case SQLServer:
		return &SQLServerFlavour{}, nil
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrUnsupportedFeature, kind)
	}
}

// ConstrainIdentifier fits a generated name into the backend's identifier
// limit. Names over the limit are truncated and suffixed with a hash of
// the full name, so repeated runs produce identical results.
func ConstrainIdentifier(name string, maxLength int) string {
	if len(name) <= maxLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:4])
	return name[:maxLength-len(suffix)-1] + "_" + suffix
}
