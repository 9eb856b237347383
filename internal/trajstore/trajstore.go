// Package trajstore persists one trajectory.State per active trajectory
// name to `<promptwheel-dir>/trajectory-state/<name>.json` (spec.md §6),
// crash-safe via internal/persist's temp+rename discipline. The trajectory
// state file is single-writer; callers must Save after every mutation
// (spec.md §5).
package trajstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/persist"
)

func path(repoRoot, name string) string {
	return filepath.Join(repoRoot, ".promptwheel", "trajectory-state", name+".json")
}

// Save persists state for the named trajectory.
func Save(repoRoot, name string, state trajectory.State) error {
	return persist.WriteJSONAtomic(path(repoRoot, name), state)
}

// Load reads the named trajectory's state, reporting false if no state
// file exists or it is corrupt.
func Load(repoRoot, name string) (trajectory.State, bool) {
	var state trajectory.State
	if !persist.ReadJSONOrDefault(path(repoRoot, name), &state) {
		return trajectory.State{}, false
	}
	return state, true
}

// Delete removes the named trajectory's state file once it finalizes.
func Delete(repoRoot, name string) error {
	err := os.Remove(path(repoRoot, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing trajectory state for %q: %w", name, err)
	}
	return nil
}
