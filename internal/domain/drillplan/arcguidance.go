package drillplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

// SignalKind names one of the arc-guidance signal categories in priority
// order (spec.md §4.4).
type SignalKind string

const (
	SignalStallPivot        SignalKind = "stall_pivot"
	SignalSelectiveMomentum SignalKind = "selective_momentum"
	SignalPhaseRotation     SignalKind = "phase_rotation"
	SignalMomentum          SignalKind = "momentum"
	SignalChain             SignalKind = "chain"
	SignalGoalAlignment     SignalKind = "goal_alignment"
)

// Signal is one piece of guidance fed into the trajectory generator's
// context block.
type Signal struct {
	Kind    SignalKind
	Message string
}

const arcGuidanceCap = 2
const arcGuidanceWindow = 5

var foundationCategories = map[string]bool{"types": true, "refactor": true, "fix": true}
var polishCategories = map[string]bool{"test": true, "docs": true, "cleanup": true}

var standardCategories = []string{
	"security", "fix", "perf", "refactor", "test", "types", "cleanup", "docs", "other",
}

// ComputeArcGuidance implements spec.md §4.4's computeArcGuidance: a
// signal-priority policy capped at 2 signals, evaluated over the last 5
// history entries.
func ComputeArcGuidance(state *session.State, goalCategory string) []Signal {
	entries := windowTail(state.DrillHistory.Entries, arcGuidanceWindow)
	if len(entries) == 0 {
		return []Signal{}
	}

	var signals []Signal
	momentumFired := false

	stalledCats := uniqueCategories(entries, func(e drillstore.Entry) bool { return e.Outcome == drillstore.OutcomeStalled })
	completedCats := uniqueCategories(entries, func(e drillstore.Entry) bool { return e.Outcome == drillstore.OutcomeCompleted })

	stalledCount := countOutcome(entries, drillstore.OutcomeStalled)
	completedCount := countOutcome(entries, drillstore.OutcomeCompleted)

	stallPivotFires := stalledCount >= 2
	momentumFires := completedCount >= 3

	switch {
	case stallPivotFires && momentumFires:
		unexplored := unexploredCategories(stalledCats, completedCats)
		msg := fmt.Sprintf(
			"Selective momentum: avoid stalled categories (%s); double down on completed categories (%s); consider unexplored categories (%s)",
			strings.Join(stalledCats, ", "), strings.Join(completedCats, ", "), strings.Join(unexplored, ", "),
		)
		signals = appendSignal(signals, Signal{Kind: SignalSelectiveMomentum, Message: msg})
		momentumFired = true
	case stallPivotFires:
		signals = appendSignal(signals, Signal{
			Kind:    SignalStallPivot,
			Message: fmt.Sprintf("Pivot away from stalled categories: %s", strings.Join(stalledCats, ", ")),
		})
	}

	foundationCount, polishCount, primary := phaseCounts(entries)
	var rotationTarget string
	if len(signals) < arcGuidanceCap {
		switch {
		case foundationCount >= 3 && polishCount < 2:
			rotationTarget = "polish"
			signals = appendSignal(signals, Signal{
				Kind:    SignalPhaseRotation,
				Message: "Foundation work (types/refactor/fix) is stabilizing; rotate into polish categories (test, docs, cleanup)",
			})
		case polishCount >= 3:
			rotationTarget = "foundation"
			signals = appendSignal(signals, Signal{
				Kind:    SignalPhaseRotation,
				Message: "Polish work (test/docs/cleanup) is saturating; rotate back into foundation categories (types, refactor, fix)",
			})
		}
	}
	_ = primary

	if !stallPivotFires && momentumFires && len(signals) < arcGuidanceCap {
		signals = appendSignal(signals, Signal{
			Kind:    SignalMomentum,
			Message: fmt.Sprintf("Strong completion momentum in: %s; keep building on these categories", strings.Join(completedCats, ", ")),
		})
		momentumFired = true
	}

	if !momentumFired && len(signals) < arcGuidanceCap {
		if last, ok := lastCompleted(entries); ok && len(last.Categories) > 0 {
			signals = appendSignal(signals, Signal{
				Kind:    SignalChain,
				Message: fmt.Sprintf("Build on the last completed step's category: %s", last.Categories[0]),
			})
		}
	}

	if goalCategory != "" && len(signals) < arcGuidanceCap {
		if rotationTarget != "" && categoryInPhase(rotationTarget, goalCategory) {
			signals = appendSignal(signals, Signal{
				Kind:    SignalGoalAlignment,
				Message: fmt.Sprintf("Phase rotation already leans toward the goal category (%s)", goalCategory),
			})
		} else {
			signals = appendSignal(signals, Signal{
				Kind:    SignalGoalAlignment,
				Message: fmt.Sprintf("Align with the active goal category: %s", goalCategory),
			})
		}
	}

	return signals
}

func appendSignal(signals []Signal, s Signal) []Signal {
	if len(signals) >= arcGuidanceCap {
		return signals
	}
	return append(signals, s)
}

func windowTail(entries []drillstore.Entry, n int) []drillstore.Entry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func countOutcome(entries []drillstore.Entry, outcome drillstore.Outcome) int {
	c := 0
	for _, e := range entries {
		if e.Outcome == outcome {
			c++
		}
	}
	return c
}

func uniqueCategories(entries []drillstore.Entry, keep func(drillstore.Entry) bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if !keep(e) {
			continue
		}
		for _, c := range e.Categories {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func unexploredCategories(excludeSets ...[]string) []string {
	excluded := map[string]bool{}
	for _, set := range excludeSets {
		for _, c := range set {
			excluded[c] = true
		}
	}
	var out []string
	for _, c := range standardCategories {
		if !excluded[c] {
			out = append(out, c)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

func phaseCounts(entries []drillstore.Entry) (foundation, polish int, primary []string) {
	for _, e := range entries {
		if len(e.Categories) == 0 {
			continue
		}
		cat := e.Categories[0]
		primary = append(primary, cat)
		if foundationCategories[cat] {
			foundation++
		}
		if polishCategories[cat] {
			polish++
		}
	}
	return foundation, polish, primary
}

func lastCompleted(entries []drillstore.Entry) (drillstore.Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Outcome == drillstore.OutcomeCompleted {
			return entries[i], true
		}
	}
	return drillstore.Entry{}, false
}

func categoryInPhase(phase, category string) bool {
	switch phase {
	case "foundation":
		return foundationCategories[category]
	case "polish":
		return polishCategories[category]
	default:
		return false
	}
}
