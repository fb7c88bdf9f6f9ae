package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqldrift/sqldrift/flavour"
)

// Record is one row of the bookkeeping table. A record with a nil
// FinishedAt and a nil RolledBackAt marks a migration that started but
// never completed.
type Record struct {
	ID                string
	Checksum          string
	StartedAt         time.Time
	FinishedAt        *time.Time
	MigrationName     string
	AppliedStepsCount int
	RolledBackAt      *time.Time
}

// Failed reports whether the migration started but neither finished nor
// was rolled back.
func (r Record) Failed() bool {
	return r.FinishedAt == nil && r.RolledBackAt == nil
}

// Recorder reads and writes bookkeeping rows. It assumes the table
// exists; callers ensure it via the flavour.
type Recorder struct {
	db      *sql.DB
	flavour flavour.Flavour
}

// NewRecorder returns a Recorder bound to the connection.
func NewRecorder(db *sql.DB, f flavour.Flavour) *Recorder {
	return &Recorder{db: db, flavour: f}
}

// placeholder renders the dialect's bind parameter for position n,
// starting at 1.
func (r *Recorder) placeholder(n int) string {
	switch r.flavour.Kind() {
	case flavour.Postgres:
		return fmt.Sprintf("$%d", n)
	case flavour.SQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func (r *Recorder) table() string {
	return r.flavour.QuoteIdentifier(flavour.MigrationsTableName)
}

// All returns every record ordered by start time, oldest first.
func (r *Recorder) All(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT id, checksum, started_at, finished_at, migration_name, applied_steps_count, rolled_back_at
		FROM %s ORDER BY started_at ASC
	`, r.table())

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: listing migration records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var finished, rolledBack sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Checksum, &rec.StartedAt, &finished, &rec.MigrationName, &rec.AppliedStepsCount, &rolledBack); err != nil {
			return nil, fmt.Errorf("history: scanning migration record: %w", err)
		}
		if finished.Valid {
			rec.FinishedAt = &finished.Time
		}
		if rolledBack.Valid {
			rec.RolledBackAt = &rolledBack.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: reading migration records: %w", err)
	}
	return records, nil
}

// RecordStart inserts a new row for a migration about to run and returns
// its id. The row stays unfinished until RecordFinished or
// RecordRolledBack completes it.
func (r *Recorder) RecordStart(ctx context.Context, dir Directory) (string, error) {
	id := uuid.NewString()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, checksum, started_at, migration_name, applied_steps_count)
		VALUES (%s, %s, %s, %s, 0)
	`, r.table(), r.placeholder(1), r.placeholder(2), r.placeholder(3), r.placeholder(4))

	if _, err := r.db.ExecContext(ctx, query, id, dir.Checksum, time.Now().UTC(), dir.Name); err != nil {
		return "", fmt.Errorf("history: recording start of %s: %w", dir.Name, err)
	}
	return id, nil
}

// RecordStepApplied bumps the applied step counter after each successful
// statement, so a failure can be located from the row alone.
func (r *Recorder) RecordStepApplied(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET applied_steps_count = applied_steps_count + 1 WHERE id = %s
	`, r.table(), r.placeholder(1))

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("history: recording applied step: %w", err)
	}
	return nil
}

// RecordFinished marks the migration as fully applied.
func (r *Recorder) RecordFinished(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET finished_at = %s WHERE id = %s
	`, r.table(), r.placeholder(1), r.placeholder(2))

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("history: recording finish: %w", err)
	}
	return nil
}

// RecordRolledBack marks a failed migration as rolled back so later runs
// stop reporting it as partially applied.
func (r *Recorder) RecordRolledBack(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET rolled_back_at = %s WHERE id = %s
	`, r.table(), r.placeholder(1), r.placeholder(2))

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("history: recording rollback: %w", err)
	}
	return nil
}

// NewDirectoryName builds a timestamped directory name for a new
// migration, e.g. 20240131094500_add_users. The slug is lowercased and
// reduced to letters, digits and underscores.
func NewDirectoryName(now time.Time, slug string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '-':
			return '_'
		default:
			return -1
		}
	}, slug)
	if cleaned == "" {
		cleaned = "migration"
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102150405"), cleaned)
}
