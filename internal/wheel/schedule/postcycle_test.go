package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewheel-dev/promptwheel/internal/baseline"
	"github.com/codewheel-dev/promptwheel/internal/checkpoint"
	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

func newPostCycleState() *session.State {
	s := session.New("sess-1", time.Now())
	s.CycleCount = 1
	return s
}

func TestPostCyclePersistsCheckpointAndRecordsCycle(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CurrentCycleCompleted = 2
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{}, time.Now())

	require.Len(t, cp.RecentCycles, 1)
	assert.Equal(t, 2, cp.RecentCycles[0].Completed)
	assert.Equal(t, 1, cp.SessionCheckpoint.CycleCount)

	loaded := checkpoint.Load(dir)
	assert.Equal(t, 1, loaded.TotalCycles)
}

func TestPostCycleBaselineHealingDropsPassingCommand(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CurrentCycleCompleted = 1
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	bl.Failures = []string{"go test ./..."}
	bl.Details["go test ./..."] = baseline.Detail{Cmd: "go test ./..."}

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			return ports.ProcessResult{ExitCode: 0}, nil
		},
	}, time.Now())

	assert.Empty(t, bl.Failures)
}

func TestPostCycleBaselineHealingSkipsWhenAboveCap(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CurrentCycleCompleted = 1
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	for i := 0; i < 6; i++ {
		bl.Failures = append(bl.Failures, "cmd")
	}
	calls := 0

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			calls++
			return ports.ProcessResult{ExitCode: 0}, nil
		},
	}, time.Now())

	assert.Equal(t, 0, calls, "above the healing cap, no re-run should happen")
}

func TestPostCycleLowYieldRotatesLensBeforeShutdown(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CycleCount = 4
	state.ConsecutiveLowYieldCycles = 2
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	rotated := false

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RotateLens: func() bool { rotated = true; return true },
	}, time.Now())

	assert.True(t, rotated)
	assert.Equal(t, 0, state.ConsecutiveLowYieldCycles)
	assert.False(t, state.ShutdownRequested)
}

func TestPostCycleLowYieldShutsDownWhenNoLensLeft(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CycleCount = 4
	state.ConsecutiveLowYieldCycles = 2
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RotateLens: func() bool { return false },
	}, time.Now())

	assert.True(t, state.ShutdownRequested)
	assert.Equal(t, "low_yield", state.ShutdownReason)
}

func TestPostCycleLowYieldDrillModeUsesHigherThreshold(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.DrillMode = true
	state.CycleCount = 4
	state.ConsecutiveLowYieldCycles = 3
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{}, time.Now())

	assert.False(t, state.ShutdownRequested, "drill mode threshold is 5, not yet reached")
	assert.Equal(t, 4, state.ConsecutiveLowYieldCycles)
}

func TestPostCycleConvergenceStopBelowThresholdFinalizesStalled(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CycleCount = 5
	traj := trajectory.Trajectory{Name: "t1", Steps: []trajectory.Step{{ID: "a"}, {ID: "b"}}}
	state.ActivateTrajectory(&traj, time.Now())
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	sector := &fakeSector{hasSector: true, summary: ports.SectorSummary{SuggestedAction: "stop"}}

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{Sector: sector}, time.Now())

	assert.False(t, state.HasActiveTrajectory())
	assert.True(t, state.ShutdownRequested)
	assert.Equal(t, "convergence", state.ShutdownReason)
}

func TestPostCycleConvergenceStopAboveThresholdContinues(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CycleCount = 5
	traj := trajectory.Trajectory{Name: "t1", Steps: []trajectory.Step{{ID: "a"}}}
	state.ActivateTrajectory(&traj, time.Now())
	state.ActiveTrajectoryState.StepStates["a"].Status = trajectory.StatusCompleted
	cfg := config.Default()
	cp := checkpoint.Empty()
	for i := 0; i < 5; i++ {
		cp.PushCycle(session.CycleOutcome{Completed: 5, Failed: 0})
	}
	bl := baseline.Empty()
	sector := &fakeSector{hasSector: true, summary: ports.SectorSummary{SuggestedAction: "stop"}}

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{Sector: sector}, time.Now())

	assert.True(t, state.HasActiveTrajectory(), "high historical completion rate keeps the trajectory alive")
	assert.False(t, state.ShutdownRequested)
}

func TestPostCycleWidenScopeResetsConfidence(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	state.CycleCount = 5
	state.EffectiveMinConfidence = 75
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	sector := &fakeSector{hasSector: true, summary: ports.SectorSummary{SuggestedAction: "widen_scope"}}

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{Sector: sector}, time.Now())

	assert.Equal(t, cfg.MinConfidence, state.EffectiveMinConfidence)
}

func TestPostCycleCycleBudgetExceededFinalizesStalled(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	traj := trajectory.Trajectory{Name: "t1", Steps: []trajectory.Step{{ID: "a"}}}
	state.ActivateTrajectory(&traj, time.Now())
	state.TrajectoryStartedAtCycle = 0
	state.CycleCount = 100
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{}, time.Now())

	assert.False(t, state.HasActiveTrajectory())
}

func TestPostCycleStepProgressionAdvancesOnAllPassing(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	traj := trajectory.Trajectory{
		Name: "t1",
		Steps: []trajectory.Step{
			{ID: "a", VerificationCommands: []string{"go test ./..."}},
			{ID: "b", DependsOn: []string{"a"}, VerificationCommands: []string{"go test ./..."}},
		},
	}
	state.ActivateTrajectory(&traj, time.Now())
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			return ports.ProcessResult{ExitCode: 0}, nil
		},
	}, time.Now())

	require.True(t, state.HasActiveTrajectory())
	assert.Equal(t, "b", state.CurrentTrajectoryStep)
	assert.Equal(t, trajectory.StatusCompleted, state.ActiveTrajectoryState.StepStates["a"].Status)
}

func TestPostCycleStepProgressionFinalizesOnLastStepCompleted(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	traj := trajectory.Trajectory{
		Name:  "t1",
		Steps: []trajectory.Step{{ID: "a", VerificationCommands: []string{"go test ./..."}}},
	}
	state.ActivateTrajectory(&traj, time.Now())
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			return ports.ProcessResult{ExitCode: 0}, nil
		},
	}, time.Now())

	assert.False(t, state.HasActiveTrajectory())
}

func TestPostCycleStepProgressionSkipsNotAGitRepoFailure(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	traj := trajectory.Trajectory{
		Name:  "t1",
		Steps: []trajectory.Step{{ID: "a", VerificationCommands: []string{"git status"}}},
	}
	state.ActivateTrajectory(&traj, time.Now())
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			return ports.ProcessResult{ExitCode: 1, Combined: "fatal: not a git repository"}, nil
		},
	}, time.Now())

	assert.False(t, state.HasActiveTrajectory(), "the only step's sole command is skipped-as-passing, finalizing the trajectory")
}

func TestPostCycleStepProgressionMarksStuckAfterMaxRetries(t *testing.T) {
	dir := t.TempDir()
	state := newPostCycleState()
	maxRetries := 2
	traj := trajectory.Trajectory{
		Name:  "t1",
		Steps: []trajectory.Step{{ID: "a", MaxRetries: &maxRetries, VerificationCommands: []string{"go test ./..."}}},
	}
	state.ActivateTrajectory(&traj, time.Now())
	cfg := config.Default()
	cp := checkpoint.Empty()
	bl := baseline.Empty()
	deps := Deps{
		RunVerification: func(ctx context.Context, cmd string) (ports.ProcessResult, error) {
			return ports.ProcessResult{ExitCode: 1, Combined: "still broken"}, nil
		},
	}

	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, deps, time.Now())
	PostCycle(context.Background(), state, cfg, &cp, &bl, dir, deps, time.Now())

	assert.False(t, state.HasActiveTrajectory(), "stuck step with no next step finalizes the trajectory")
}
