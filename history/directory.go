// Package history manages the on-disk migration history and its
// bookkeeping records in the database.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// ScriptFileName is the file each migration directory must contain.
const ScriptFileName = "migration.sql"

// Directory is one migration loaded from disk. Name is the directory
// name, conventionally prefixed with a sortable timestamp, so
// lexicographic order is application order.
type Directory struct {
	Name     string
	Script   string
	Checksum string
}

// Checksum hashes a migration script. The hash pins the script's exact
// bytes; any later edit to an applied migration shows up as drift.
func Checksum(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// LoadDirectories reads every migration directory under root, sorted by
// name. Entries without a script file are rejected rather than skipped,
// since a missing script usually means a botched checkout.
func LoadDirectories(fs afero.Fs, root string) ([]Directory, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("history: reading migrations directory %s: %w", root, err)
	}

	var dirs []Directory
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		scriptPath := filepath.Join(root, entry.Name(), ScriptFileName)
		script, err := afero.ReadFile(fs, scriptPath)
		if err != nil {
			return nil, fmt.Errorf("history: migration %s has no readable %s: %w", entry.Name(), ScriptFileName, err)
		}
		dirs = append(dirs, Directory{
			Name:     entry.Name(),
			Script:   string(script),
			Checksum: Checksum(string(script)),
		})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs, nil
}

// WriteDirectory persists a new migration under root using the given
// directory name.
func WriteDirectory(fs afero.Fs, root, name, script string) (Directory, error) {
	dir := filepath.Join(root, name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return Directory{}, fmt.Errorf("history: creating migration directory %s: %w", dir, err)
	}
	scriptPath := filepath.Join(dir, ScriptFileName)
	if err := afero.WriteFile(fs, scriptPath, []byte(script), 0o644); err != nil {
		return Directory{}, fmt.Errorf("history: writing %s: %w", scriptPath, err)
	}
	return Directory{Name: name, Script: script, Checksum: Checksum(script)}, nil
}
