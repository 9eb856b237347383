package schedule

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/baseline"
	"github.com/codewheel-dev/promptwheel/internal/checkpoint"
	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
	"github.com/codewheel-dev/promptwheel/internal/trajstore"
)

const (
	lowYieldThresholdNormal = 3
	lowYieldThresholdDrill  = 5

	minAbandonThreshold = 0.3
	maxAbandonThreshold = 0.7

	convergenceMinCycles = 3

	learningROIInterval   = 10
	learningConsolidation = 5
	narrowConfidenceBoost = 5

	defaultCycleBudgetBase = 15
	budgetClampMin         = 0.8
	budgetClampMax         = 2.5
)

// PostCycle runs the post-cycle accounting steps (spec.md §4.6) in order,
// persisting sector/checkpoint/baseline/trajectory state as it goes.
// repoRoot locates the on-disk stores; now is the wall-clock time to stamp
// records with.
func PostCycle(ctx context.Context, state *session.State, cfg config.Config, cp *checkpoint.File, bl *baseline.File, repoRoot string, deps Deps, now time.Time) PostCycleResult {
	// Step 1: save sector state, record cycle outcome, push to recent buffer.
	outcome := state.RecordCycleOutcome(now)
	cp.PushCycle(outcome)
	if deps.Sector != nil {
		_ = deps.Sector.SaveSectorState(ctx, ports.SectorSummary{
			MinConfidence:  state.EffectiveMinConfidence,
			CompletionRate: cp.RecentCompletionRate(),
		})
	}

	// Step 2: session checkpoint for crash resume.
	cp.SessionCheckpoint.CycleCount = state.CycleCount
	urls := make([]string, 0, len(state.PendingExternalReviews))
	for _, r := range state.PendingExternalReviews {
		urls = append(urls, r.URL)
	}
	cp.SessionCheckpoint.ExternalReviewURLs = urls
	_ = checkpoint.Save(repoRoot, *cp)

	// Step 3: baseline healing.
	healBaseline(ctx, state, bl, repoRoot, deps, now)

	// Step 4: meta-learning extraction (delegated).
	if deps.ExtractMetaLearning != nil {
		deps.ExtractMetaLearning(ctx)
	}

	// Step 5: low-yield detection.
	applyLowYieldDetection(state, cfg, deps)

	// Step 6: convergence metrics.
	suggestedAction := applyConvergence(ctx, state, cfg, cp, repoRoot, deps, now)

	// Step 7: scope adjustment.
	applyScopeAdjustment(state, cfg, suggestedAction)

	// Step 8: cross-sector pattern learning (delegated).
	if deps.LearnCrossSector != nil {
		deps.LearnCrossSector(ctx)
	}

	// Step 9: learning ROI / consolidation.
	if state.CycleCount%learningROIInterval == 0 && deps.SnapshotLearningROI != nil {
		deps.SnapshotLearningROI(ctx)
	}
	if state.CycleCount%learningConsolidation == 0 && deps.ConsolidateLearning != nil {
		deps.ConsolidateLearning(ctx)
	}

	// Step 10: refresh codebase index on structural change.
	if deps.Index != nil {
		if changed, err := deps.Index.HasStructuralChanges(ctx); err == nil && changed && deps.Sector != nil {
			_ = deps.Sector.RotateSector(ctx)
		}
	}

	// Step 11: goal re-measurement (delegated; no goal state is owned here).
	if deps.RemeasureGoal != nil {
		_, _ = deps.RemeasureGoal(ctx)
	}

	// Step 12: trajectory cycle-budget enforcement.
	enforceCycleBudget(ctx, state, cfg, repoRoot, now)

	// Step 13: trajectory step progression.
	if state.HasActiveTrajectory() {
		progressTrajectoryStep(ctx, state, cfg, repoRoot, deps, now)
	}

	return PostCycleResult{ShutdownRequested: state.ShutdownRequested, ShutdownReason: state.ShutdownReason}
}

func healBaseline(ctx context.Context, state *session.State, bl *baseline.File, repoRoot string, deps Deps, now time.Time) {
	if state.CurrentCycleCompleted == 0 || !bl.EligibleForHealing() || deps.RunVerification == nil {
		return
	}
	healed := *bl
	for _, name := range bl.Failures {
		detail, ok := bl.Details[name]
		if !ok {
			continue
		}
		result, err := deps.RunVerification(ctx, detail.Cmd)
		if err == nil && result.ExitCode == 0 {
			healed = healed.Heal(name)
		}
	}
	*bl = healed
	_ = baseline.Save(repoRoot, *bl, now)
}

func applyLowYieldDetection(state *session.State, cfg config.Config, deps Deps) {
	if state.CurrentCycleCompleted == 0 && state.CycleCount >= 2 {
		state.ConsecutiveLowYieldCycles++
	} else {
		state.ConsecutiveLowYieldCycles = 0
	}

	threshold := lowYieldThresholdNormal
	if state.DrillMode {
		threshold = lowYieldThresholdDrill
	}
	if state.ConsecutiveLowYieldCycles < threshold {
		return
	}

	if deps.RotateLens != nil && deps.RotateLens() {
		state.ConsecutiveLowYieldCycles = 0
		return
	}
	state.RequestShutdown("low_yield")
}

func applyConvergence(ctx context.Context, state *session.State, cfg config.Config, cp *checkpoint.File, repoRoot string, deps Deps, now time.Time) string {
	if state.CycleCount < convergenceMinCycles || deps.Sector == nil {
		return ""
	}
	summary, ok, err := deps.Sector.CurrentSector(ctx)
	if err != nil || !ok {
		return ""
	}

	if summary.SuggestedAction == "stop" && state.HasActiveTrajectory() {
		completionPct := trajectoryCompletionPct(*state.ActiveTrajectoryState)
		abandonThreshold := adaptiveAbandonThreshold(cp.RecentCompletionRate())
		if completionPct < abandonThreshold {
			finalizeTrajectory(ctx, state, cfg, repoRoot, trajectory.TrajectoryAbandoned, now)
			state.RequestShutdown("convergence")
		}
		// Above threshold: let the trajectory continue to completion.
	}

	return summary.SuggestedAction
}

// adaptiveAbandonThreshold maps a historical completion rate in [0,1] onto
// the 30-70% abandon-threshold range spec.md §4.6 step 6 names.
func adaptiveAbandonThreshold(historicalRate float64) float64 {
	if historicalRate < 0 {
		historicalRate = 0
	}
	if historicalRate > 1 {
		historicalRate = 1
	}
	return minAbandonThreshold + historicalRate*(maxAbandonThreshold-minAbandonThreshold)
}

func trajectoryCompletionPct(state trajectory.State) float64 {
	if len(state.StepStates) == 0 {
		return 0
	}
	var done int
	for _, s := range state.StepStates {
		if s.Status == trajectory.StatusCompleted || s.Status == trajectory.StatusSkipped {
			done++
		}
	}
	return float64(done) / float64(len(state.StepStates))
}

func applyScopeAdjustment(state *session.State, cfg config.Config, suggestedAction string) {
	switch {
	case suggestedAction == "widen_scope":
		state.EffectiveMinConfidence = cfg.MinConfidence
	case suggestedAction == "deepen" && state.DrillMode && state.CurrentTrajectoryStep != "":
		state.EffectiveMinConfidence += narrowConfidenceBoost
	}
	state.ClampConfidence()
}

func enforceCycleBudget(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, now time.Time) {
	if !state.HasActiveTrajectory() {
		return
	}
	stepsTotal := len(state.ActiveTrajectory.Steps)
	base := cfg.Drill.MaxCyclesPerTrajectory
	if base <= 0 {
		base = defaultCycleBudgetBase
	}
	factor := 1 + math.Max(0, float64(stepsTotal-3))/5
	if factor < budgetClampMin {
		factor = budgetClampMin
	}
	if factor > budgetClampMax {
		factor = budgetClampMax
	}
	maxCycles := int(math.Round(float64(base) * factor))

	elapsed := state.CycleCount - state.TrajectoryStartedAtCycle
	if elapsed <= maxCycles {
		return
	}
	finalizeTrajectory(ctx, state, cfg, repoRoot, trajectory.TrajectoryAbandoned, now)
}

// finalizeTrajectory closes out the active trajectory: it persists the
// trajectory's own terminal state, appends a drill history entry recording
// the outcome, and clears the session's active-trajectory fields. This is
// the only place a trajectory's lifecycle ends, so it is the only place
// the drill history store is ever written.
func finalizeTrajectory(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, status trajectory.TrajectoryStatus, now time.Time) {
	if state.ActiveTrajectoryState != nil {
		state.ActiveTrajectoryState.Status = status
		_ = trajstore.Save(repoRoot, state.ActiveTrajectoryState.TrajectoryName, *state.ActiveTrajectoryState)

		if state.ActiveTrajectory != nil {
			entry := buildDrillEntry(*state.ActiveTrajectory, *state.ActiveTrajectoryState, status, now)
			state.DrillHistory.Append(entry, cfg.Drill.HistoryCap)
			state.DrillLastOutcome = string(entry.Outcome)
			_ = drillstore.Save(ctx, repoRoot, state.DrillHistory, cfg.Drill.HistoryCap, nil)
		}
	}
	state.ClearActiveTrajectory()
}

// buildDrillEntry summarizes a finished trajectory into a drillstore.Entry
// (spec.md §3's drill history vocabulary), tallying step outcomes and
// collecting the scopes/categories it touched.
func buildDrillEntry(traj trajectory.Trajectory, state trajectory.State, status trajectory.TrajectoryStatus, now time.Time) drillstore.Entry {
	outcome := drillstore.OutcomeStalled
	if status == trajectory.TrajectoryCompleted {
		outcome = drillstore.OutcomeCompleted
	}

	var stepsCompleted, stepsFailed int
	var failedSteps, completedSummaries []string
	var categories, scopes []string
	seenCategory := map[string]bool{}
	seenScope := map[string]bool{}

	for _, step := range traj.Steps {
		if step.Scope != "" && !seenScope[step.Scope] {
			seenScope[step.Scope] = true
			scopes = append(scopes, step.Scope)
		}
		for _, c := range step.Categories {
			if !seenCategory[c] {
				seenCategory[c] = true
				categories = append(categories, c)
			}
		}

		ss := state.StepStates[step.ID]
		if ss == nil {
			continue
		}
		switch ss.Status {
		case trajectory.StatusCompleted:
			stepsCompleted++
			completedSummaries = append(completedSummaries, step.Title)
		case trajectory.StatusFailed:
			stepsFailed++
			failedSteps = append(failedSteps, step.Title)
		}
	}

	pct := trajectoryCompletionPct(state)
	return drillstore.NewEntry(drillstore.Entry{
		Name:                   traj.Name,
		Description:            traj.Description,
		StepsTotal:             len(traj.Steps),
		StepsCompleted:         stepsCompleted,
		StepsFailed:            stepsFailed,
		Outcome:                outcome,
		CompletionPct:          &pct,
		Categories:             categories,
		Scopes:                 scopes,
		Timestamp:              now,
		FailedSteps:            failedSteps,
		CompletedStepSummaries: completedSummaries,
	})
}

// progressTrajectoryStep runs the trajectory step progression state
// machine (spec.md §4.6 step 13): verify the current step, evaluate its
// measurement, and advance, fail, or finalize as appropriate.
func progressTrajectoryStep(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, deps Deps, now time.Time) {
	t := state.ActiveTrajectoryState
	step, ok := state.ActiveTrajectory.StepByID(state.CurrentTrajectoryStep)
	if !ok {
		return
	}
	stepState := t.StepStates[step.ID]
	if stepState == nil || stepState.Status == trajectory.StatusCompleted ||
		stepState.Status == trajectory.StatusFailed || stepState.Status == trajectory.StatusSkipped {
		return
	}

	passed, output := runVerifications(ctx, step.VerificationCommands, deps)
	measurementMet := true
	if step.Measurement != nil {
		measurementMet = evaluateMeasurement(ctx, step, stepState, deps)
	}

	if passed && measurementMet {
		if completeCurrentStep(ctx, state, cfg, repoRoot, now, t, stepState) {
			return
		}
	} else {
		stepState.CyclesAttempted++
		stepState.ConsecutiveFailures++
		stepState.TotalFailures++
		stepState.LastVerificationOutput = trajectory.BoundOutput(output, trajectory.MaxVerificationOutputLen)

		fallback := 3
		stuckID := trajectory.TrajectoryStuck(t.StepStates, fallback, state.ActiveTrajectory.Steps)
		if stuckID == step.ID {
			stepState.Status = trajectory.StatusFailed
			stepState.FailureReason = "max retries exceeded"
			if advanceOrFinalize(ctx, state, cfg, repoRoot, now, t) {
				return
			}
		}
	}

	_ = trajstore.Save(repoRoot, t.TrajectoryName, *t)
}

// completeCurrentStep marks stepState completed and advances the
// trajectory to its next ready step, finalizing it when none remains.
// Returns whether the trajectory was finalized.
func completeCurrentStep(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, now time.Time, t *trajectory.State, stepState *trajectory.StepState) bool {
	stepState.Status = trajectory.StatusCompleted
	completedAt := now
	stepState.CompletedAt = &completedAt
	stepState.ConsecutiveFailures = 0
	stepState.LastVerificationOutput = ""
	return advanceOrFinalize(ctx, state, cfg, repoRoot, now, t)
}

// advanceOrFinalize moves the trajectory to its next ready step, or
// finalizes it when none remains. Returns whether it finalized.
func advanceOrFinalize(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, now time.Time, t *trajectory.State) bool {
	next := trajectory.GetNextStep(*state.ActiveTrajectory, t.StepStates)
	if next != nil {
		t.CurrentStepID = next.ID
		state.CurrentTrajectoryStep = next.ID
		t.StepStates[next.ID].Status = trajectory.StatusActive
		return false
	}
	if trajectory.TrajectoryComplete(*state.ActiveTrajectory, t.StepStates) {
		finalStatus := trajectory.TrajectoryAbandoned
		if trajectory.TrajectoryFullySucceeded(*state.ActiveTrajectory, t.StepStates) {
			finalStatus = trajectory.TrajectoryCompleted
		}
		finalizeTrajectory(ctx, state, cfg, repoRoot, finalStatus, now)
		return true
	}
	return false
}

// AbandonActiveTrajectory finalizes the active trajectory as abandoned.
// It is exported for callers outside the scheduler's own post-cycle pass:
// the Finalizer uses it when a session ends with a trajectory still in
// flight.
func AbandonActiveTrajectory(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, now time.Time) {
	if !state.HasActiveTrajectory() {
		return
	}
	finalizeTrajectory(ctx, state, cfg, repoRoot, trajectory.TrajectoryAbandoned, now)
}

// PreVerifyActiveStep greedily re-runs the active trajectory's current
// step verification commands without invoking the agent: if they (and any
// measurement) already pass, the step completes immediately. This lets the
// wheel loop skip dispatching an agent for steps whose acceptance
// criteria already hold. Returns whether it advanced.
func PreVerifyActiveStep(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, deps Deps, now time.Time) bool {
	if !state.HasActiveTrajectory() {
		return false
	}
	t := state.ActiveTrajectoryState
	step, ok := state.ActiveTrajectory.StepByID(state.CurrentTrajectoryStep)
	if !ok {
		return false
	}
	stepState := t.StepStates[step.ID]
	if stepState == nil || stepState.Status != trajectory.StatusActive {
		return false
	}

	passed, _ := runVerifications(ctx, step.VerificationCommands, deps)
	measurementMet := true
	if step.Measurement != nil {
		measurementMet = evaluateMeasurement(ctx, step, stepState, deps)
	}
	if !passed || !measurementMet {
		return false
	}

	finalized := completeCurrentStep(ctx, state, cfg, repoRoot, now, t, stepState)
	if !finalized {
		_ = trajstore.Save(repoRoot, t.TrajectoryName, *t)
	}
	return true
}

// runVerifications runs every command with a 30s timeout each. A command
// whose combined output contains "not a git repository" and reports no
// error is treated as skipped-and-passing (spec.md §4.6 step 13).
func runVerifications(ctx context.Context, commands []string, deps Deps) (passed bool, output string) {
	if deps.RunVerification == nil {
		return len(commands) == 0, ""
	}
	for _, cmd := range commands {
		cctx, cancel := context.WithTimeout(ctx, verificationTimeout)
		result, err := deps.RunVerification(cctx, cmd)
		cancel()
		if err == nil && strings.Contains(strings.ToLower(result.Combined), "not a git repository") {
			continue
		}
		if err != nil || result.ExitCode != 0 {
			return false, result.Combined
		}
	}
	return true, ""
}

func evaluateMeasurement(ctx context.Context, step trajectory.Step, stepState *trajectory.StepState, deps Deps) bool {
	if deps.RunVerification == nil {
		return true
	}
	cctx, cancel := context.WithTimeout(ctx, verificationTimeout)
	result, err := deps.RunVerification(cctx, step.Measurement.Cmd)
	cancel()
	if err != nil {
		return false
	}
	value, perr := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if perr != nil {
		return false
	}
	met := value >= step.Measurement.Target
	if step.Measurement.Direction == trajectory.DirectionDown {
		met = value <= step.Measurement.Target
	}
	stepState.Measurement = &trajectory.MeasurementSample{Value: value, Met: met, ObservedAt: time.Now()}
	return met
}
