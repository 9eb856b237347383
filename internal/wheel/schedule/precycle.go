package schedule

import (
	"context"

	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

const (
	warmupConfidenceBoost = 10
	deepConfidenceCut     = 10
	minSectorConfidence   = 10
	lowQualityBoost       = 10
	backpressureHighBoost = 15
)

// PreCycle runs the pre-cycle accounting steps (spec.md §4.6) in order. A
// Skipped result means the caller must not dispatch any work this cycle;
// CycleCount is NOT advanced when skipped for idle-shutdown (the shutdown
// itself ends the loop) but IS rolled back when skipped for backpressure.
func PreCycle(ctx context.Context, state *session.State, cfg config.Config, deps Deps) PreCycleResult {
	// Step 1: idle accounting from the previous cycle.
	if state.LastCycleWasIdle() {
		state.ConsecutiveIdleCycles++
	} else {
		state.ConsecutiveIdleCycles = 0
	}
	if state.ConsecutiveIdleCycles >= cfg.MaxIdleCycles {
		state.RequestShutdown("idle")
		return PreCycleResult{Skipped: true, SkipReason: "idle"}
	}

	// Step 2: cycle increment, reset in-flight accounting.
	state.CycleCount++
	state.ResetCycleAccounting()

	// Step 3: rotate multi-repo index.
	if deps.Sector != nil {
		_ = deps.Sector.RotateSector(ctx)
	}

	// Step 4: the session phase is not recomputed, here or by any caller;
	// state.SessionPhase keeps the value it already holds (session.New
	// starts every session in warmup).

	// Step 5: effective min confidence.
	state.EffectiveMinConfidence = computeEffectiveMinConfidence(ctx, state, cfg, deps)

	// Step 6: backpressure.
	if deps.PendingReviewRatio != nil {
		ratio := deps.PendingReviewRatio()
		if ratio > 0.7 {
			state.CycleCount--
			if deps.Clock != nil {
				deps.Clock.Sleep(ctx, backpressureSleep)
			}
			return PreCycleResult{Skipped: true, SkipReason: "backpressure"}
		}
		if ratio > 0.4 {
			state.EffectiveMinConfidence += backpressureHighBoost
		}
	}

	// Step 7: clamp.
	state.ClampConfidence()

	// Step 8: periodic refreshes.
	runPeriodicRefreshes(ctx, state, cfg, deps)

	return PreCycleResult{}
}

func computeEffectiveMinConfidence(ctx context.Context, state *session.State, cfg config.Config, deps Deps) int {
	base := cfg.MinConfidence
	if deps.Sector != nil {
		if summary, ok, err := deps.Sector.CurrentSector(ctx); err == nil && ok {
			base = summary.MinConfidence
		}
	}

	switch state.SessionPhase {
	case session.PhaseWarmup:
		base += warmupConfidenceBoost
	case session.PhaseDeep:
		base -= deepConfidenceCut
		if base < minSectorConfidence {
			base = minSectorConfidence
		}
	}

	if state.CycleCount > 2 && deps.QualityRate != nil && deps.QualityRate() < 0.5 {
		base += lowQualityBoost
	}

	if state.CycleCount > 5 && deps.CalibrationDelta != nil {
		base += deps.CalibrationDelta()
	}

	return base
}

const (
	tasteRefreshInterval = 10
	reviewPollInterval   = 5
)

func runPeriodicRefreshes(ctx context.Context, state *session.State, cfg config.Config, deps Deps) {
	if state.CycleCount%tasteRefreshInterval == 0 && deps.RefreshTaste != nil {
		deps.RefreshTaste(ctx)
	}

	if cfg.PullInterval > 0 && state.CycleCount%cfg.PullInterval == 0 && deps.SyncBaseBranch != nil {
		result, err := deps.SyncBaseBranch(ctx)
		if err == nil && result.Diverged {
			if cfg.PullPolicy == config.PullPolicyHalt {
				state.RequestShutdown("branch_diverged")
			}
			// PullPolicyWarn: continue with no state change; caller logs.
		}
	}

	if state.CycleCount%reviewPollInterval == 0 && deps.PollReviewStatus != nil {
		deps.PollReviewStatus(ctx)
	}

	if cfg.GuidelinesRefreshInterval > 0 && state.CycleCount%cfg.GuidelinesRefreshInterval == 0 && deps.RefreshGuidelines != nil {
		deps.RefreshGuidelines(ctx)
	}
}
