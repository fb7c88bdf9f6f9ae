package flavour

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestNewSelectsFlavourByKind(t *testing.T) {
	for _, kind := range []Kind{Postgres, MySQL, SQLite, SQLServer} {
		f, err := New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, f.Kind())
	}

	_, err := New("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}

func TestConstrainIdentifier(t *testing.T) {
	t.Run("short names pass through", func(t *testing.T) {
		assert.Equal(t, "users_email_idx", ConstrainIdentifier("users_email_idx", 63))
	})

	t.Run("long names are truncated with a hash suffix", func(t *testing.T) {
		long := strings.Repeat("a", 100)

		got := ConstrainIdentifier(long, 63)

		assert.Len(t, got, 63)
		assert.NotEqual(t, long[:63], got, "plain truncation would collide")
	})

	t.Run("deterministic", func(t *testing.T) {
		long := strings.Repeat("b", 100)
		assert.Equal(t, ConstrainIdentifier(long, 63), ConstrainIdentifier(long, 63))
	})

	t.Run("distinct long names stay distinct", func(t *testing.T) {
		a := strings.Repeat("c", 100) + "x"
		b := strings.Repeat("c", 100) + "y"
		assert.NotEqual(t, ConstrainIdentifier(a, 63), ConstrainIdentifier(b, 63))
	})
}

func TestCapabilitiesHas(t *testing.T) {
	caps := CapDropColumn | CapTransactionalDDL

	assert.True(t, caps.Has(CapDropColumn))
	assert.True(t, caps.Has(CapDropColumn|CapTransactionalDDL))
	assert.False(t, caps.Has(CapAlterColumnType))
	assert.False(t, caps.Has(CapDropColumn|CapAlterColumnType))
}

func TestSQLiteCapabilities(t *testing.T) {
	f := &SQLiteFlavour{}
	caps := f.Capabilities()

	assert.True(t, caps.Has(CapTransactionalDDL))
	assert.False(t, caps.Has(CapDropColumn))
	assert.False(t, caps.Has(CapAlterColumnType))
	assert.False(t, caps.Has(CapAlterForeignKeys))
	assert.False(t, caps.Has(CapCreateDatabase))
}

func TestPostgresTypesEquivalent(t *testing.T) {
	f := &PostgresFlavour{}

	assert.True(t, f.TypesEquivalent("INT4", "INTEGER"))
	assert.True(t, f.TypesEquivalent("int", "INTEGER"))
	assert.True(t, f.TypesEquivalent("BOOL", "BOOLEAN"))
	assert.True(t, f.TypesEquivalent("CHARACTER VARYING(255)", "VARCHAR(255)"))
	assert.False(t, f.TypesEquivalent("VARCHAR(255)", "VARCHAR(100)"))
	assert.False(t, f.TypesEquivalent("INTEGER", "BIGINT"))
}

func TestMySQLTypesEquivalent(t *testing.T) {
	f := &MySQLFlavour{}

	assert.True(t, f.TypesEquivalent("tinyint(1)", "BOOLEAN"))
	assert.True(t, f.TypesEquivalent("INT", "INTEGER"))
	assert.False(t, f.TypesEquivalent("TINYINT(2)", "BOOLEAN"))
}

func TestSQLiteTypesEquivalentByAffinity(t *testing.T) {
	f := &SQLiteFlavour{}

	assert.True(t, f.TypesEquivalent("VARCHAR(255)", "TEXT"))
	assert.True(t, f.TypesEquivalent("INT", "BIGINT"))
	assert.True(t, f.TypesEquivalent("DOUBLE", "REAL"))
	assert.False(t, f.TypesEquivalent("TEXT", "INTEGER"))
}

func TestDefaultsEquivalent(t *testing.T) {
	f := &PostgresFlavour{}

	tests := []struct {
		name    string
		colType string
		prev    *string
		next    *string
		same    bool
	}{
		{"both nil", "INTEGER", nil, nil, true},
		{"nil vs value", "INTEGER", nil, strptr("0"), false},
		{"identical literals", "INTEGER", strptr("0"), strptr("0"), true},
		{"numeric cast stripped", "DECIMAL(10,2)", strptr("1.5::numeric"), strptr("1.5"), true},
		{"cast suffix stripped", "TEXT", strptr("'a'::text"), strptr("'a'"), true},
		{"json whitespace", "JSONB", strptr(`'{"a": 1}'`), strptr(`'{"a":1}'`), true},
		{"now aliases", "TIMESTAMPTZ", strptr("now()"), strptr("CURRENT_TIMESTAMP"), true},
		{"different literals", "INTEGER", strptr("0"), strptr("1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, f.DefaultsEquivalent(tt.colType, tt.prev, tt.next))
		})
	}
}

func TestCompareServerVersion(t *testing.T) {
	t.Run("new enough", func(t *testing.T) {
		assert.Nil(t, compareServerVersion("PostgreSQL 15.2 on x86_64-pc-linux-gnu", "9.6"))
	})

	t.Run("too old", func(t *testing.T) {
		w := compareServerVersion("PostgreSQL 9.4.1", "9.6")
		require.NotNil(t, w)
		assert.Equal(t, "9.4.1", w.ServerVersion)
		assert.Equal(t, "9.6", w.MinimumVersion)
	})

	t.Run("unparseable banner stays silent", func(t *testing.T) {
		assert.Nil(t, compareServerVersion("development build", "9.6"))
	})
}

func TestScanMigrationScriptPostgres(t *testing.T) {
	f := &PostgresFlavour{}

	warnings := f.ScanMigrationScript("CREATE INDEX idx ON t (a);\nDROP TABLE old;")
	assert.Len(t, warnings, 2)

	assert.Empty(t, f.ScanMigrationScript("CREATE INDEX CONCURRENTLY idx ON t (a);\nDROP TABLE IF EXISTS old;"))
}

func TestShadowTargetsAreDistinct(t *testing.T) {
	target := Target{Kind: Postgres, Host: "localhost", Port: 5432, Database: "app"}
	f := &PostgresFlavour{}

	a := f.ShadowTarget(target)
	b := f.ShadowTarget(target)

	assert.NotEqual(t, target.Database, a.Database)
	assert.NotEqual(t, a.Database, b.Database)
	assert.Equal(t, target.Host, a.Host, "shadow databases live on the same server")
}

func TestSQLiteShadowTargetIsTempFile(t *testing.T) {
	f := &SQLiteFlavour{}
	target := Target{Kind: SQLite, Database: "/data/app.db"}

	shadow := f.ShadowTarget(target)

	assert.NotEqual(t, target.Database, shadow.Database)
	assert.Contains(t, shadow.Database, "app_shadow_")
}

func TestConnectionStrings(t *testing.T) {
	target := Target{Host: "db.internal", Port: 5432, Database: "app", User: "svc", Password: "hunter2"}

	t.Run("postgres", func(t *testing.T) {
		dsn := (&PostgresFlavour{}).ConnectionString(target)
		assert.Contains(t, dsn, "host=db.internal")
		assert.Contains(t, dsn, "dbname=app")
	})

	t.Run("mysql enables multi statements", func(t *testing.T) {
		target := target
		target.Port = 3306
		dsn := (&MySQLFlavour{}).ConnectionString(target)
		assert.Contains(t, dsn, "multiStatements=true")
		assert.Contains(t, dsn, "db.internal:3306")
	})

	t.Run("sqlite is the file path", func(t *testing.T) {
		dsn := (&SQLiteFlavour{}).ConnectionString(Target{Database: "/data/app.db"})
		assert.Contains(t, dsn, "/data/app.db")
	})

	t.Run("sqlserver", func(t *testing.T) {
		target := target
		target.Port = 1433
		dsn := (&SQLServerFlavour{}).ConnectionString(target)
		assert.Contains(t, dsn, "sqlserver://")
		assert.Contains(t, dsn, "database=app")
	})
}

func TestQuoteIdentifierEscapes(t *testing.T) {
	assert.Equal(t, `"wei""rd"`, (&PostgresFlavour{}).QuoteIdentifier(`wei"rd`))
	assert.Equal(t, "`wei``rd`", (&MySQLFlavour{}).QuoteIdentifier("wei`rd"))
	assert.Equal(t, "[wei]]rd]", (&SQLServerFlavour{}).QuoteIdentifier("wei]rd"))
}

// The lock must reject a second engine while held and come free again
// after release.
func TestSQLiteAdvisoryLockExcludesSecondEngine(t *testing.T) {
	f := &SQLiteFlavour{}
	target := Target{Kind: SQLite, Database: filepath.Join(t.TempDir(), "app.db")}

	db, err := sql.Open(f.DriverName(), f.ConnectionString(target))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	release, err := f.AcquireLock(ctx, db, time.Second)
	require.NoError(t, err)

	_, err = f.AcquireLock(ctx, db, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, release())

	release, err = f.AcquireLock(ctx, db, time.Second)
	require.NoError(t, err)
	require.NoError(t, release())
}
