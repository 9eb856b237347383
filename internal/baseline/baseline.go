// Package baseline persists the set of currently-failing QA commands
// (`qa-baseline.json`, spec.md §6) so the post-cycle scheduler can re-run
// them after a cycle with completions and heal any that now pass.
package baseline

import (
	"path/filepath"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/persist"
)

// Detail records the last known failure for one baseline command.
type Detail struct {
	Cmd    string `json:"cmd"`
	Output string `json:"output"`
}

// File is the on-disk qa-baseline.json shape.
type File struct {
	Failures  []string          `json:"failures"`
	Details   map[string]Detail `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
}

const maxHealingAttempt = 5

func path(repoRoot string) string {
	return filepath.Join(repoRoot, ".promptwheel", "qa-baseline.json")
}

// Empty returns a zero-value baseline file.
func Empty() File {
	return File{Failures: []string{}, Details: map[string]Detail{}}
}

// Load reads the baseline file, returning Empty() on any missing/corrupt
// content.
func Load(repoRoot string) File {
	f := Empty()
	if !persist.ReadJSONOrDefault(path(repoRoot), &f) {
		return Empty()
	}
	if f.Failures == nil {
		f.Failures = []string{}
	}
	if f.Details == nil {
		f.Details = map[string]Detail{}
	}
	return f
}

// Save writes the baseline file atomically, stamping Timestamp with now.
func Save(repoRoot string, f File, now time.Time) error {
	f.Timestamp = now
	return persist.WriteJSONAtomic(path(repoRoot), f)
}

// EligibleForHealing reports whether the baseline is small enough to
// re-verify this cycle (spec.md §4.6 post-cycle step 3: "≤ 5 previously
// failing baseline commands").
func (f File) EligibleForHealing() bool {
	return len(f.Failures) > 0 && len(f.Failures) <= maxHealingAttempt
}

// Heal removes name from Failures/Details — called once a re-run of a
// previously failing command passes.
func (f File) Heal(name string) File {
	out := File{Details: map[string]Detail{}}
	for _, n := range f.Failures {
		if n == name {
			continue
		}
		out.Failures = append(out.Failures, n)
	}
	if out.Failures == nil {
		out.Failures = []string{}
	}
	for k, v := range f.Details {
		if k == name {
			continue
		}
		out.Details[k] = v
	}
	return out
}
