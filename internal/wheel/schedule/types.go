// Package schedule implements the Pre/Post-Cycle Scheduler (spec.md §4.6):
// the idle/low-yield/convergence accounting, confidence recomputation, and
// periodic refreshes that bracket every wheel cycle. The Wheel Loop calls
// PreCycle before dispatching work and PostCycle after execution finishes.
package schedule

import (
	"context"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// backpressureSleep is the pause applied when pending external reviews
// exceed 70% of the configured maximum (spec.md §4.6 pre-cycle step 6).
const backpressureSleep = 15 * time.Second

// verificationTimeout bounds every trajectory verification command
// (spec.md §4.6 post-cycle step 13).
const verificationTimeout = 30 * time.Second

// PullResult is what a base-branch sync produced, abstracted away from
// gitutil so tests can fake it without a real repository.
type PullResult struct {
	UpToDate bool
	Advanced bool
	Diverged bool
}

// Deps bundles every external collaborator the scheduler consults. Every
// function-typed field is optional; a nil hook is treated as a no-op (or,
// where a meaningful zero-value answer exists, that default).
type Deps struct {
	Clock  ports.Clock
	Sector ports.SectorStore
	Index  ports.CodebaseIndex

	// SyncBaseBranch runs the pre-cycle fast-forward pull. Required for the
	// periodic branch sync to do anything; nil means the step is skipped.
	SyncBaseBranch func(ctx context.Context) (PullResult, error)

	// PendingReviewRatio returns pending external reviews / configured max,
	// for backpressure. Nil means no backpressure is ever applied.
	PendingReviewRatio func() float64

	RefreshTaste      func(ctx context.Context)
	PollReviewStatus  func(ctx context.Context)
	RefreshGuidelines func(ctx context.Context)

	// QualityRate returns the fraction of recent cycles considered
	// high-quality (used by the confidence formula's cycleCount>2 rule).
	QualityRate func() float64

	// CalibrationDelta returns a bounded external-stats confidence
	// adjustment (cycleCount>5 rule). Nil means no adjustment.
	CalibrationDelta func() int

	// ExtractMetaLearning and LearnCrossSector are both explicitly
	// "(delegated)" in spec.md §4.6 steps 4 and 8: the core only calls out
	// to them, it does not implement the learning itself.
	ExtractMetaLearning func(ctx context.Context)
	LearnCrossSector    func(ctx context.Context)

	// SnapshotLearningROI and ConsolidateLearning back post-cycle step 9.
	SnapshotLearningROI func(ctx context.Context)
	ConsolidateLearning func(ctx context.Context)

	// RunVerification executes one verification/measurement command with
	// its own bounded timeout, for trajectory step progression.
	RunVerification func(ctx context.Context, command string) (ports.ProcessResult, error)

	// RemeasureGoal re-runs the active goal's measurement command and
	// reports the new value.
	RemeasureGoal func(ctx context.Context) (value float64, err error)

	// RotateLens advances to the next untried lens, returning false if all
	// lenses in the rotation have been tried.
	RotateLens func() (ok bool)
}

// PreCycleResult reports what PreCycle decided.
type PreCycleResult struct {
	Skipped    bool
	SkipReason string
}

// PostCycleResult reports the scheduler's post-cycle decision.
type PostCycleResult struct {
	ShutdownRequested bool
	ShutdownReason    string
}

