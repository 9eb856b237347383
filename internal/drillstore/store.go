package drillstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

const fileName = "drill-history.json"

const (
	minCap     = 10
	maxCap     = 1000
	defaultCap = 100
)

func path(repoRoot string) string {
	return filepath.Join(repoRoot, ".promptwheel", fileName)
}

// rawFile mirrors File but with untyped covered maps, so Load can detect and
// discard structurally invalid data without failing the whole parse.
type rawFile struct {
	Entries           []Entry         `json:"entries"`
	CoveredCategories json.RawMessage `json:"coveredCategories"`
	CoveredScopes     json.RawMessage `json:"coveredScopes"`
}

// Load reads the drill history file. Missing, empty, or corrupted content
// returns an empty default rather than an error — the drill subsystem
// always has something to plan against. A leftover `.tmp` sibling from an
// interrupted Save is recovered: if it parses as a valid object with an
// entries array it is promoted to the main file, otherwise it is discarded.
func Load(ctx context.Context, repoRoot string, logger ports.Logger) File {
	main := path(repoRoot)
	tmp := main + ".tmp"

	if _, err := os.Stat(main); err != nil {
		if os.IsNotExist(err) {
			if recovered, ok := recoverTemp(ctx, tmp, logger); ok {
				return recovered
			}
		}
		return Empty()
	}

	data, err := os.ReadFile(main)
	if err != nil {
		return Empty()
	}
	return parse(data)
}

// recoverTemp attempts to promote a dangling .tmp file left by a crash
// between write and rename.
func recoverTemp(ctx context.Context, tmp string, logger ports.Logger) (File, bool) {
	data, err := os.ReadFile(tmp)
	if err != nil {
		return File{}, false
	}

	var probe rawFile
	if err := json.Unmarshal(data, &probe); err != nil || probe.Entries == nil {
		_ = os.Remove(tmp)
		return File{}, false
	}

	main := tmp[:len(tmp)-len(".tmp")]
	if err := os.Rename(tmp, main); err != nil {
		if logger != nil {
			logger.Warn(ctx, "failed to recover drill history temp file", "error", err.Error())
		}
		_ = os.Remove(tmp)
		return File{}, false
	}
	return parse(data), true
}

func parse(data []byte) File {
	if len(data) == 0 {
		return Empty()
	}
	var raw rawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Empty()
	}

	f := File{Entries: raw.Entries}
	if f.Entries == nil {
		f.Entries = []Entry{}
	}
	f.CoveredCategories = parseCountMap(raw.CoveredCategories)
	f.CoveredScopes = parseCountMap(raw.CoveredScopes)
	return f
}

// parseCountMap tolerates a missing or structurally invalid field by
// resetting it to an empty map, per spec.md §4.2.
func parseCountMap(raw json.RawMessage) map[string]int {
	if len(raw) == 0 {
		return map[string]int{}
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]int{}
	}
	return m
}

// Save clamps cap to [10,1000], truncates entries to the tail, and writes
// the file via temp-then-rename so a crash mid-write never corrupts the
// main file.
func Save(ctx context.Context, repoRoot string, file File, cap int, logger ports.Logger) error {
	if cap < minCap {
		cap = minCap
	}
	if cap > maxCap {
		cap = maxCap
	}
	if len(file.Entries) > cap {
		file.Entries = file.Entries[len(file.Entries)-cap:]
	}
	if file.CoveredCategories == nil {
		file.CoveredCategories = map[string]int{}
	}
	if file.CoveredScopes == nil {
		file.CoveredScopes = map[string]int{}
	}

	main := path(repoRoot)
	tmp := main + ".tmp"

	if err := os.MkdirAll(filepath.Dir(main), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, main); err != nil {
		if logger != nil {
			logger.Warn(ctx, "failed to rename drill history temp file", "error", err.Error())
		}
		_ = os.Remove(tmp)
		return err
	}

	return nil
}

// DefaultCap is the cap used when the caller has not configured one.
const DefaultCap = defaultCap
