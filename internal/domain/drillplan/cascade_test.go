package drillplan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewheel-dev/promptwheel/internal/domain/critic"
	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

type stubSurveyor struct {
	proposals []ports.Proposal
	err       error
}

func (s stubSurveyor) Survey(ctx context.Context, req ports.SurveyRequest, onProgress func(ports.SurveyProgress)) (ports.SurveyResult, error) {
	return ports.SurveyResult{Proposals: s.proposals}, s.err
}

type stubGenerator struct {
	traj trajectory.Trajectory
	err  error
}

func (g stubGenerator) Generate(ctx context.Context, req ports.TrajectoryGenerationRequest) (interface{}, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.traj, nil
}

func proposalsWithConfidence(n int, category ports.ProposalCategory, confidence, impact int) []ports.Proposal {
	out := make([]ports.Proposal, n)
	for i := range out {
		out[i] = ports.Proposal{
			ID:                   stepID(i),
			Category:             category,
			PrimaryFiles:         []string{"internal/foo/bar.go"},
			Confidence:           confidence,
			Impact:               impact,
			VerificationCommands: []string{"go test ./..."},
		}
	}
	return out
}

func stepID(i int) string {
	return "p" + string(rune('a'+i))
}

func passingGeneratedTrajectory(n int) trajectory.Trajectory {
	steps := make([]trajectory.Step, n)
	for i := range steps {
		steps[i] = trajectory.Step{ID: stepID(i), Scope: "internal/foo", VerificationCommands: []string{"go test ./..."}}
	}
	return trajectory.Trajectory{Name: "generated", Steps: steps}
}

func newPrimedState() *session.State {
	s := session.New("sess", time.Time{})
	s.DrillTrajectoriesGenerated = 4
	s.EffectiveMinConfidence = 50
	s.DrillHistory.Entries = []drillstore.Entry{
		{Outcome: drillstore.OutcomeCompleted, StepsCompleted: 3, StepsTotal: 3},
		{Outcome: drillstore.OutcomeCompleted, StepsCompleted: 3, StepsTotal: 3},
		{Outcome: drillstore.OutcomeCompleted, StepsCompleted: 3, StepsTotal: 3},
	}
	return s
}

func TestMaybeGenerateTrajectoryCooldownBlocksWhenWithinWindow(t *testing.T) {
	s := session.New("sess", time.Time{})
	s.DrillTrajectoriesGenerated = 4
	s.EffectiveMinConfidence = 50
	s.DrillHistory.Entries = []drillstore.Entry{
		{Outcome: drillstore.OutcomeStalled, StepsCompleted: 1, StepsTotal: 3},
		{Outcome: drillstore.OutcomeStalled, StepsCompleted: 1, StepsTotal: 3},
		{Outcome: drillstore.OutcomeStalled, StepsCompleted: 1, StepsTotal: 3},
	}
	s.CycleCount = 1
	s.DrillLastGeneratedAtCycle = 1
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor: stubSurveyor{proposals: proposalsWithConfidence(5, ports.CategoryFix, 80, 7)},
	})
	assert.Equal(t, ResultCooldown, out.Result)
}

func TestMaybeGenerateTrajectoryFailedWithoutSurveyor(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{})
	assert.Equal(t, ResultFailed, out.Result)
}

func TestMaybeGenerateTrajectoryInsufficientBelowThreshold(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor: stubSurveyor{proposals: proposalsWithConfidence(1, ports.CategoryFix, 80, 7)},
	})
	assert.Equal(t, ResultInsufficient, out.Result)
}

func TestMaybeGenerateTrajectoryStaleWhenFreshnessDropHigh(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	proposals := proposalsWithConfidence(5, ports.CategoryFix, 80, 7)
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor:      stubSurveyor{proposals: proposals},
		ModifiedSince: func(path string) bool { return true },
	})
	assert.Equal(t, ResultStale, out.Result)
}

func TestMaybeGenerateTrajectoryLowQualityBelowHardFloor(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor: stubSurveyor{proposals: proposalsWithConfidence(5, ports.CategoryFix, 5, 0)},
	})
	assert.Equal(t, ResultLowQuality, out.Result)
}

func TestMaybeGenerateTrajectoryGeneratedOnHappyPath(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	proposals := proposalsWithConfidence(5, ports.CategoryFix, 80, 7)
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor:  stubSurveyor{proposals: proposals},
		Generator: stubGenerator{traj: passingGeneratedTrajectory(3)},
	})
	require.Equal(t, ResultGenerated, out.Result)
	require.NotNil(t, out.Trajectory)
	assert.Equal(t, 3, len(out.Trajectory.Steps))
	assert.Equal(t, 5, s.DrillTrajectoriesGenerated)
	assert.Equal(t, 100, s.DrillLastGeneratedAtCycle)
}

func TestMaybeGenerateTrajectoryFailedWhenGeneratorReturnsEmptySteps(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	proposals := proposalsWithConfidence(5, ports.CategoryFix, 80, 7)
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor:  stubSurveyor{proposals: proposals},
		Generator: stubGenerator{traj: trajectory.Trajectory{}},
	})
	assert.Equal(t, ResultFailed, out.Result)
}

func TestMaybeGenerateTrajectoryLowQualityWhenCriticRejects(t *testing.T) {
	s := newPrimedState()
	s.CycleCount = 100
	proposals := proposalsWithConfidence(5, ports.CategoryFix, 80, 7)
	// A single step has no verification commands, so the critic fails it.
	failing := trajectory.Trajectory{Steps: []trajectory.Step{{ID: "only"}}}
	out := MaybeGenerateTrajectory(context.Background(), s, DefaultConfig(), critic.DefaultConfig(), 0, Deps{
		Surveyor:  stubSurveyor{proposals: proposals},
		Generator: stubGenerator{traj: failing},
	})
	assert.Equal(t, ResultLowQuality, out.Result)
	assert.Contains(t, out.Critique, "Quality Gate Failed")
}

func TestStratifiedSampleKeepsAllWhenUnderMax(t *testing.T) {
	proposals := proposalsWithConfidence(3, ports.CategoryFix, 50, 5)
	out := stratifiedSample(proposals, 10)
	assert.Len(t, out, 3)
}

func TestStratifiedSampleCapsAtMax(t *testing.T) {
	proposals := proposalsWithConfidence(20, ports.CategoryFix, 50, 5)
	out := stratifiedSample(proposals, 5)
	assert.Len(t, out, 5)
}

func TestFilterEmptySectorsAndTestsDropsTestOnlyByDefault(t *testing.T) {
	proposals := []ports.Proposal{
		{PrimaryFiles: []string{"internal/foo/bar_test.go"}},
		{PrimaryFiles: []string{"internal/foo/bar.go"}},
		{PrimaryFiles: nil},
	}
	out := filterEmptySectorsAndTests(proposals, false)
	require.Len(t, out, 1)
	assert.Equal(t, "internal/foo/bar.go", out[0].PrimaryFiles[0])
}

func TestFilterEmptySectorsAndTestsKeepsTestsWhenEnabled(t *testing.T) {
	proposals := []ports.Proposal{{PrimaryFiles: []string{"internal/foo/bar_test.go"}}}
	out := filterEmptySectorsAndTests(proposals, true)
	assert.Len(t, out, 1)
}

func TestAdjustAmbitionForQualityDowngradesOnWeakConfidence(t *testing.T) {
	got := adjustAmbitionForQuality(drillstore.AmbitionAmbitious, 20, 0)
	assert.Equal(t, drillstore.AmbitionModerate, got)
}

func TestAdjustAmbitionForQualityUpgradesOnStrongSignal(t *testing.T) {
	got := adjustAmbitionForQuality(drillstore.AmbitionConservative, 90, 0.05)
	assert.Equal(t, drillstore.AmbitionModerate, got)
}
