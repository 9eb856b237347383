// Package persist factors out the temp-file-then-rename write discipline
// shared by every on-disk store the wheel owns (drill history, QA baseline,
// run-state checkpoint): see internal/drillstore for the pattern this
// generalizes.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteJSONAtomic marshals v and writes it to path via a `.tmp` sibling plus
// rename, so a crash mid-write never corrupts the existing file. The tmp
// file is always removed on any failure path.
func WriteJSONAtomic(path string, v interface{}) error {
	tmp := path + ".tmp"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadJSONOrDefault reads path into v. A missing or corrupt file leaves v
// untouched (the caller should pre-populate it with defaults) and returns
// false; a successful decode returns true.
func ReadJSONOrDefault(path string, v interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}
