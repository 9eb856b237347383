package trajectory

import (
	"fmt"
	"sort"
	"strings"
)

const defaultMaxRetries = 3

// StepReady reports whether every dependency of step resolves to a
// completed, skipped, or failed step. Missing identifiers are unresolved.
// An empty dependency list is always ready.
func StepReady(step Step, states map[string]*StepState) bool {
	for _, dep := range step.DependsOn {
		state, ok := states[dep]
		if !ok || state == nil {
			return false
		}
		if !state.Status.resolved() {
			return false
		}
	}
	return true
}

// GetReadySteps returns every step whose status is pending or active and
// whose dependencies are all resolved, ordered by priority descending and
// then by declaration order (stable tie-break).
func GetReadySteps(t Trajectory, states map[string]*StepState) []Step {
	type ranked struct {
		step  Step
		index int
	}
	var candidates []ranked
	for i, step := range t.Steps {
		state := states[step.ID]
		if state == nil {
			continue
		}
		if state.Status != StatusPending && state.Status != StatusActive {
			continue
		}
		if !StepReady(step, states) {
			continue
		}
		candidates = append(candidates, ranked{step: step, index: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].step.EffectivePriority(), candidates[j].step.EffectivePriority()
		if pi != pj {
			return pi > pj
		}
		return candidates[i].index < candidates[j].index
	})

	result := make([]Step, len(candidates))
	for i, c := range candidates {
		result[i] = c.step
	}
	return result
}

// GetNextStep returns the highest-priority ready step, or nil.
func GetNextStep(t Trajectory, states map[string]*StepState) *Step {
	ready := GetReadySteps(t, states)
	if len(ready) == 0 {
		return nil
	}
	step := ready[0]
	return &step
}

// TrajectoryComplete reports whether every step is in a terminal state. An
// empty trajectory is vacuously complete.
func TrajectoryComplete(t Trajectory, states map[string]*StepState) bool {
	for _, step := range t.Steps {
		state := states[step.ID]
		if state == nil || !state.Status.terminal() {
			return false
		}
	}
	return true
}

// TrajectoryFullySucceeded is the stronger form of TrajectoryComplete: every
// step must be completed or skipped (no failures).
func TrajectoryFullySucceeded(t Trajectory, states map[string]*StepState) bool {
	for _, step := range t.Steps {
		state := states[step.ID]
		if state == nil {
			return false
		}
		if state.Status != StatusCompleted && state.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// TrajectoryStuck scans active steps and returns the identifier of the first
// one whose retry budget is exhausted (cyclesAttempted >= effective
// max_retries) or that has become flaky (totalFailures >= 2x its limit even
// with few consecutive failures). Returns "" when nothing is stuck.
func TrajectoryStuck(states map[string]*StepState, fallbackMaxRetries int, steps []Step) string {
	if fallbackMaxRetries <= 0 {
		fallbackMaxRetries = defaultMaxRetries
	}

	// Preserve declaration order for deterministic "first" reporting.
	for _, step := range steps {
		state, ok := states[step.ID]
		if !ok || state == nil || state.Status != StatusActive {
			continue
		}
		limit := step.EffectiveMaxRetries(fallbackMaxRetries)
		if state.CyclesAttempted >= limit {
			return step.ID
		}
		if state.TotalFailures >= 2*limit {
			return step.ID
		}
	}
	return ""
}

// colorState is used by DetectCycle's iterative DFS.
type colorState int

const (
	white colorState = iota
	gray
	black
)

// DetectCycle runs an iterative, colored-node DFS over the depends_on
// relation and returns the node list witnessing a cycle, or nil if the graph
// is a DAG. Self-dependencies are detected.
func DetectCycle(steps []Step) []string {
	adjacency := make(map[string][]string, len(steps))
	order := make([]string, 0, len(steps))
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if !seen[s.ID] {
			seen[s.ID] = true
			order = append(order, s.ID)
		}
		adjacency[s.ID] = append(adjacency[s.ID], s.DependsOn...)
	}

	color := make(map[string]colorState, len(steps))
	var stack []string
	stackPos := make(map[string]int)

	type frame struct {
		node string
		idx  int
	}

	for _, start := range order {
		if color[start] != white {
			continue
		}
		var work []frame
		work = append(work, frame{node: start, idx: 0})
		color[start] = gray
		stack = append(stack, start)
		stackPos[start] = len(stack) - 1

		for len(work) > 0 {
			top := &work[len(work)-1]
			deps := adjacency[top.node]
			if top.idx >= len(deps) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				delete(stackPos, top.node)
				work = work[:len(work)-1]
				continue
			}
			dep := deps[top.idx]
			top.idx++

			switch color[dep] {
			case white:
				color[dep] = gray
				stack = append(stack, dep)
				stackPos[dep] = len(stack) - 1
				work = append(work, frame{node: dep, idx: 0})
			case gray:
				if pos, ok := stackPos[dep]; ok {
					cycle := append([]string{}, stack[pos:]...)
					cycle = append(cycle, dep)
					return cycle
				}
				return []string{dep, dep}
			case black:
				// already fully explored, no cycle through here
			}
		}
	}
	return nil
}

// EnforceGraphOrdering adds a depends_on edge from an importer step to an
// importee step whenever their scopes map to modules linked by
// moduleEdges[importer] containing importee, but only if doing so would not
// introduce a cycle. Returns a new Trajectory; the input is never mutated.
func EnforceGraphOrdering(t Trajectory, moduleEdges map[string][]string) Trajectory {
	steps := make([]Step, len(t.Steps))
	copy(steps, t.Steps)

	moduleOfScope := func(scope string) string {
		return scope
	}

	for i := range steps {
		importerModule := moduleOfScope(steps[i].Scope)
		if importerModule == "" {
			continue
		}
		imports, ok := moduleEdges[importerModule]
		if !ok {
			continue
		}
		importSet := make(map[string]bool, len(imports))
		for _, m := range imports {
			importSet[m] = true
		}
		for j := range steps {
			if i == j {
				continue
			}
			importeeModule := moduleOfScope(steps[j].Scope)
			if importeeModule == "" || !importSet[importeeModule] {
				continue
			}
			if hasDependency(steps[i], steps[j].ID) {
				continue
			}
			candidate := make([]Step, len(steps))
			copy(candidate, steps)
			candidate[i] = cloneStepWithDependency(steps[i], steps[j].ID)
			if DetectCycle(candidate) != nil {
				continue
			}
			steps = candidate
		}
	}

	return Trajectory{Name: t.Name, Description: t.Description, Steps: steps}
}

func hasDependency(step Step, id string) bool {
	for _, dep := range step.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

func cloneStepWithDependency(step Step, dep string) Step {
	next := step
	next.DependsOn = append(append([]string{}, step.DependsOn...), dep)
	return next
}

func formatMeasurement(m *Measurement) string {
	if m == nil {
		return ""
	}
	op := ">="
	if m.Direction == DirectionDown {
		op = "<="
	}
	return fmt.Sprintf("target %s %v (via `%s`)", op, m.Target, m.Cmd)
}

// FormatTrajectoryForPrompt emits a structured context block summarizing a
// trajectory's progress for an agent prompt: completed steps, the current
// step's full detail, and upcoming steps.
func FormatTrajectoryForPrompt(t Trajectory, states map[string]*StepState, currentStepID string) string {
	var b strings.Builder

	var completed, upcoming []Step
	var current *Step
	for i, step := range t.Steps {
		if step.ID == currentStepID {
			current = &t.Steps[i]
			continue
		}
		state := states[step.ID]
		if state != nil && state.Status.terminal() {
			completed = append(completed, step)
		} else {
			upcoming = append(upcoming, step)
		}
	}

	b.WriteString("## Completed Steps\n")
	if len(completed) == 0 {
		b.WriteString("(none)\n")
	}
	for _, step := range completed {
		state := states[step.ID]
		status := "unknown"
		if state != nil {
			status = string(state.Status)
		}
		b.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", step.ID, step.Title, status))
	}

	b.WriteString("\n## Current Step\n")
	if current != nil {
		state := states[current.ID]
		b.WriteString(fmt.Sprintf("- id: %s\n", current.ID))
		b.WriteString(fmt.Sprintf("  title: %s\n", current.Title))
		if current.Description != "" {
			b.WriteString(fmt.Sprintf("  description: %s\n", current.Description))
		}
		if len(current.DependsOn) > 0 {
			b.WriteString(fmt.Sprintf("  depends_on: %s\n", strings.Join(current.DependsOn, ", ")))
		}
		if len(current.AcceptanceCriteria) > 0 {
			b.WriteString("  acceptance_criteria:\n")
			for _, c := range current.AcceptanceCriteria {
				b.WriteString(fmt.Sprintf("    - %s\n", c))
			}
		}
		if current.Measurement != nil {
			b.WriteString(fmt.Sprintf("  measurement: %s\n", formatMeasurement(current.Measurement)))
		}
		if state != nil {
			if state.LastVerificationOutput != "" {
				b.WriteString(fmt.Sprintf("  last_verification_output: %s\n", state.LastVerificationOutput))
			}
			if state.ConsecutiveFailures >= 2 {
				b.WriteString(fmt.Sprintf("  note: tried %d consecutive times, try a different approach\n", state.ConsecutiveFailures))
			}
		}
	} else {
		b.WriteString("(none)\n")
	}

	b.WriteString("\n## Upcoming Steps\n")
	if len(upcoming) == 0 {
		b.WriteString("(none)\n")
	}
	for _, step := range upcoming {
		deps := "none"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		b.WriteString(fmt.Sprintf("- [%s] %s (depends_on: %s)\n", step.ID, step.Title, deps))
	}

	return b.String()
}
