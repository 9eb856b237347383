package wheel

import (
	"path/filepath"

	"github.com/codewheel-dev/promptwheel/internal/persist"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

// Directive is a once-only instruction an operator drops into the
// repository's .promptwheel/hints.json (spec.md §6): "drill:pause",
// "drill:resume", "drill:disable".
type Directive string

const (
	DirectivePauseDrill   Directive = "drill:pause"
	DirectiveResumeDrill  Directive = "drill:resume"
	DirectiveDisableDrill Directive = "drill:disable"
)

type hintsFile struct {
	Directives []Directive `json:"directives"`
	Consumed   bool        `json:"consumed"`
}

func hintsPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".promptwheel", "hints.json")
}

// readUnconsumedDirectives loads any directives not yet applied and marks
// the file consumed, so a directive fires exactly once.
func readUnconsumedDirectives(repoRoot string) []Directive {
	var hf hintsFile
	if !persist.ReadJSONOrDefault(hintsPath(repoRoot), &hf) || hf.Consumed {
		return nil
	}
	hf.Consumed = true
	_ = persist.WriteJSONAtomic(hintsPath(repoRoot), hf)
	return hf.Directives
}

// applyDirectives mutates drill-mode session state per the directives read
// this cycle. Unknown directives are ignored.
func applyDirectives(directives []Directive, state *session.State) {
	for _, d := range directives {
		switch d {
		case DirectivePauseDrill:
			state.DrillPaused = true
		case DirectiveResumeDrill:
			state.DrillPaused = false
		case DirectiveDisableDrill:
			state.DrillMode = false
		}
	}
}
