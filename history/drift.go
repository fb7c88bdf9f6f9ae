package history

import "fmt"

// DriftError reports that an applied migration no longer matches the
// local history, either because its script was edited after being
// applied or because its directory disappeared.
type DriftError struct {
	Name            string
	AppliedChecksum string
	LocalChecksum   string // empty when the directory is missing locally
	MissingLocally  bool
}

func (e *DriftError) Error() string {
	if e.MissingLocally {
		return fmt.Sprintf("history: migration %s was applied but no longer exists locally", e.Name)
	}
	return fmt.Sprintf("history: migration %s was edited after being applied (checksum %s, applied as %s)",
		e.Name, e.LocalChecksum, e.AppliedChecksum)
}

// Diverged compares applied records against the local history. It returns
// the first divergence found, walking records oldest first. Rolled back
// records are ignored.
func Diverged(applied []Record, local []Directory) error {
	byName := make(map[string]Directory, len(local))
	for _, dir := range local {
		byName[dir.Name] = dir
	}

	for _, rec := range applied {
		if rec.RolledBackAt != nil {
			continue
		}
		dir, ok := byName[rec.MigrationName]
		if !ok {
			return &DriftError{Name: rec.MigrationName, AppliedChecksum: rec.Checksum, MissingLocally: true}
		}
		if dir.Checksum != rec.Checksum {
			return &DriftError{Name: rec.MigrationName, AppliedChecksum: rec.Checksum, LocalChecksum: dir.Checksum}
		}
	}
	return nil
}

// Unapplied returns the local directories that have no finished record,
// in application order. Rolled back records do not count as applied.
func Unapplied(applied []Record, local []Directory) []Directory {
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		if rec.FinishedAt != nil && rec.RolledBackAt == nil {
			done[rec.MigrationName] = true
		}
	}

	var pending []Directory
	for _, dir := range local {
		if !done[dir.Name] {
			pending = append(pending, dir)
		}
	}
	return pending
}

// FailedRecords returns records that started but neither finished nor
// were rolled back.
func FailedRecords(applied []Record) []Record {
	var failed []Record
	for _, rec := range applied {
		if rec.Failed() {
			failed = append(failed, rec)
		}
	}
	return failed
}
