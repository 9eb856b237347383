// Package critic implements the trajectory critic (spec.md §4.5): a
// quality gate that validates a freshly generated trajectory against the
// proposals and blueprint it was built from, before the wheel activates it.
package critic

import (
	"fmt"
	"strings"

	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// StepCountRange is the acceptable [min,max] step count for one ambition
// level, before slack is applied.
type StepCountRange struct{ Min, Max int }

var defaultStepCountRanges = map[drillstore.AmbitionLevel]StepCountRange{
	drillstore.AmbitionConservative: {Min: 2, Max: 3},
	drillstore.AmbitionModerate:     {Min: 3, Max: 5},
	drillstore.AmbitionAmbitious:    {Min: 5, Max: 8},
}

// Config holds the critic's tunable knobs.
type Config struct {
	StepCountSlack  int // default 2
	StepCountRanges map[drillstore.AmbitionLevel]StepCountRange
}

// DefaultConfig returns the critic defaults from spec.md §4.5.
func DefaultConfig() Config {
	return Config{StepCountSlack: 2, StepCountRanges: defaultStepCountRanges}
}

// Conflict describes a blueprint-reported collision between two proposals
// that a single step attempted to resolve together.
type Conflict struct {
	ProposalAID string
	ProposalBID string
	StepID      string
}

// Blueprint is whatever context the trajectory was generated from, needed
// by the critic to validate scope and conflict handling.
type Blueprint struct {
	Proposals []ports.Proposal
	Conflicts []Conflict
}

// Verdict is the critic's judgment.
type Verdict struct {
	Passed   bool
	Issues   []string
	Critique string
}

// Review validates traj against blueprint for the given ambition level.
func Review(traj trajectory.Trajectory, blueprint Blueprint, ambition drillstore.AmbitionLevel, cfg Config) Verdict {
	if cfg.StepCountRanges == nil {
		cfg.StepCountRanges = defaultStepCountRanges
	}
	var issues []string

	if ambition == drillstore.AmbitionConservative {
		if issue := checkStep1Breadth(traj, blueprint); issue != "" {
			issues = append(issues, issue)
		}
	}

	issues = append(issues, checkVerificationCommands(traj)...)
	issues = append(issues, checkStepCount(traj, ambition, cfg)...)
	issues = append(issues, checkConflictIsolation(traj, blueprint)...)

	return Verdict{
		Passed:   len(issues) == 0,
		Issues:   issues,
		Critique: formatCritique(issues),
	}
}

// checkStep1Breadth ensures a conservative trajectory's first step does not
// range wider than the common scope of the proposals it was built from.
func checkStep1Breadth(traj trajectory.Trajectory, blueprint Blueprint) string {
	if len(traj.Steps) == 0 {
		return ""
	}
	common := commonScopePrefix(blueprint.Proposals)
	if common == "" {
		return ""
	}
	step1 := traj.Steps[0]
	if step1.Scope == "" {
		return ""
	}
	if !strings.HasPrefix(step1.Scope, common) {
		return fmt.Sprintf("step 1 scope %q is broader than the proposals' common scope %q for a conservative trajectory", step1.Scope, common)
	}
	return ""
}

// commonScopePrefix computes the longest common path prefix across every
// proposal's primary files, treated as a glob-safe prefix.
func commonScopePrefix(proposals []ports.Proposal) string {
	var first []string
	for _, p := range proposals {
		for _, f := range p.PrimaryFiles {
			if first == nil {
				first = strings.Split(f, "/")
				continue
			}
			candidate := strings.Split(f, "/")
			first = commonPrefixParts(first, candidate)
		}
	}
	if len(first) == 0 {
		return ""
	}
	return strings.Join(first, "/")
}

func commonPrefixParts(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func checkVerificationCommands(traj trajectory.Trajectory) []string {
	var issues []string
	for _, step := range traj.Steps {
		if len(step.VerificationCommands) == 0 {
			issues = append(issues, fmt.Sprintf("step %q has no verification commands", step.ID))
		}
	}
	return issues
}

func checkStepCount(traj trajectory.Trajectory, ambition drillstore.AmbitionLevel, cfg Config) []string {
	rng, ok := cfg.StepCountRanges[ambition]
	if !ok {
		return nil
	}
	count := len(traj.Steps)
	slack := cfg.StepCountSlack
	if count < rng.Min {
		return []string{fmt.Sprintf("trajectory has %d steps, below the %s minimum of %d", count, ambition, rng.Min)}
	}
	if count > rng.Max+slack {
		return []string{fmt.Sprintf("trajectory has %d steps, above the %s maximum of %d (+%d slack)", count, ambition, rng.Max, slack)}
	}
	return nil
}

func checkConflictIsolation(traj trajectory.Trajectory, blueprint Blueprint) []string {
	if len(blueprint.Conflicts) == 0 {
		return nil
	}
	var issues []string
	for _, c := range blueprint.Conflicts {
		step, ok := traj.StepByID(c.StepID)
		if !ok {
			continue
		}
		if len(step.Categories) > 3 {
			issues = append(issues, fmt.Sprintf("step %q resolves a conflict between %q and %q but carries %d categories (max 3)", step.ID, c.ProposalAID, c.ProposalBID, len(step.Categories)))
		}
	}
	return issues
}

func formatCritique(issues []string) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<trajectory-critique>\n")
	b.WriteString("Quality Gate Failed\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("</trajectory-critique>")
	return b.String()
}
