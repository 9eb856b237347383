// Package finalize implements the Finalizer (spec.md §4.6/§2): the
// end-of-session pass run once the Wheel Loop stops, whatever the reason.
// It polls outstanding review status one last time, abandons any
// trajectory still active, writes a final checkpoint and baseline, and
// synthesizes a drill-metrics summary from the session's history.
package finalize

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/baseline"
	"github.com/codewheel-dev/promptwheel/internal/checkpoint"
	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/domain/drillmetrics"
	"github.com/codewheel-dev/promptwheel/internal/persist"
	"github.com/codewheel-dev/promptwheel/internal/session"
	"github.com/codewheel-dev/promptwheel/internal/wheel/schedule"
)

// Summary is the end-of-session report handed back to the CLI for its
// exit-code decision and final output.
type Summary struct {
	CyclesRun                int
	ReviewsCreated           int
	AnyFailure               bool
	ShutdownReason           string
	TrajectoryAbandonedAtEnd bool
	WeightedCompletionRate   float64
	TopCategories            []string
	StalledCategories        []string
}

// Deps bundles the external collaborators the finalizer consults. Both
// fields are optional.
type Deps struct {
	// PollReviewStatus runs one last check of outstanding review outcomes
	// before the summary is synthesized.
	PollReviewStatus func(ctx context.Context)

	// SkipPersist suppresses the final checkpoint/baseline write, for a
	// dry-run session that must not leave state on disk.
	SkipPersist bool
}

// Finalize runs the end-of-session pass: poll review status, abandon any
// in-flight trajectory, persist a final checkpoint and baseline, clear any
// consumed directive-hint file, and synthesize a drill-metrics summary.
func Finalize(ctx context.Context, state *session.State, cfg config.Config, repoRoot string, cp *checkpoint.File, bl *baseline.File, deps Deps, reviewsCreated int, anyFailure bool, now time.Time) Summary {
	if deps.PollReviewStatus != nil {
		deps.PollReviewStatus(ctx)
	}

	abandoned := state.HasActiveTrajectory()
	schedule.AbandonActiveTrajectory(ctx, state, cfg, repoRoot, now)

	if !deps.SkipPersist {
		cp.SessionCheckpoint.CycleCount = state.CycleCount
		_ = checkpoint.Save(repoRoot, *cp)
		_ = baseline.Save(repoRoot, *bl, now)
		cleanupHints(repoRoot)
	}

	rates := drillmetrics.CategorySuccessRates(state.DrillHistory.Entries)
	return Summary{
		CyclesRun:                state.CycleCount,
		ReviewsCreated:           reviewsCreated,
		AnyFailure:               anyFailure,
		ShutdownReason:           state.ShutdownReason,
		TrajectoryAbandonedAtEnd: abandoned,
		WeightedCompletionRate:   drillmetrics.WeightedCompletionRate(state.DrillHistory.Entries),
		TopCategories:            drillmetrics.TopCategories(rates),
		StalledCategories:        drillmetrics.StalledCategories(rates),
	}
}

// cleanupHints removes the directive-hints file once the session that
// consumed it has ended, so a stale consumed=true marker doesn't linger.
// A file whose directives were not yet consumed is left in place.
func cleanupHints(repoRoot string) {
	path := filepath.Join(repoRoot, ".promptwheel", "hints.json")
	var hf struct {
		Consumed bool `json:"consumed"`
	}
	if persist.ReadJSONOrDefault(path, &hf) && !hf.Consumed {
		return
	}
	_ = os.Remove(path)
}
