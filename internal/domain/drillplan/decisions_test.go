package drillplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

func statePrimedWithHistory(entries []drillstore.Entry) *session.State {
	s := session.New("sess", time.Time{})
	s.DrillTrajectoriesGenerated = len(entries) + 1
	s.DrillHistory = drillstore.Empty()
	s.DrillHistory.Entries = entries
	return s
}

func TestGetDrillCooldownFirstGenerationIsZero(t *testing.T) {
	s := session.New("sess", time.Time{})
	cfg := DefaultConfig()
	assert.Equal(t, 0, GetDrillCooldown(s, 0, cfg))
}

func TestGetDrillCooldownCriticalOverrideIsZero(t *testing.T) {
	entries := make([]drillstore.Entry, 4)
	for i := range entries {
		entries[i] = drillstore.Entry{Outcome: drillstore.OutcomeStalled, StepsCompleted: 0}
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	assert.Equal(t, 0, GetDrillCooldown(s, 1, cfg))
}

func TestGetDrillCooldownNeverNegative(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeCompleted, StepsTotal: 3, StepsCompleted: 3},
		{Outcome: drillstore.OutcomeCompleted, StepsTotal: 3, StepsCompleted: 3},
		{Outcome: drillstore.OutcomeCompleted, StepsTotal: 3, StepsCompleted: 3},
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, GetDrillCooldown(s, -5, cfg), 0)
}

func TestGetAdaptiveProposalThresholdsDefaultsBelowHistoryFloor(t *testing.T) {
	s := statePrimedWithHistory(nil)
	cfg := DefaultConfig()
	th := GetAdaptiveProposalThresholds(s, cfg)
	assert.Equal(t, 3, th.Min)
	assert.Equal(t, 10, th.Max)
}

func TestGetAdaptiveProposalThresholdsWidenOnHighCompletion(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeCompleted},
		{Outcome: drillstore.OutcomeCompleted},
		{Outcome: drillstore.OutcomeCompleted},
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	th := GetAdaptiveProposalThresholds(s, cfg)
	assert.Equal(t, 2, th.Min)
	assert.Equal(t, 12, th.Max)
}

func TestGetAdaptiveProposalThresholdsTightenOnLowCompletion(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeStalled},
		{Outcome: drillstore.OutcomeStalled},
		{Outcome: drillstore.OutcomeStalled},
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	th := GetAdaptiveProposalThresholds(s, cfg)
	assert.Equal(t, 4, th.Min)
	assert.Equal(t, 8, th.Max)
}

// TestComputeAmbitionLevelCriticalStep1AlwaysConservative pins the
// universal invariant from spec.md §8: if history has >= 3 entries with
// step1FailureRate > 0.4, ambition is conservative regardless of the last
// two outcomes.
func TestComputeAmbitionLevelCriticalStep1AlwaysConservative(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeStalled, StepsCompleted: 0},
		{Outcome: drillstore.OutcomeStalled, StepsCompleted: 0},
		{Outcome: drillstore.OutcomeCompleted},
		{Outcome: drillstore.OutcomeCompleted},
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	assert.Equal(t, drillstore.AmbitionConservative, ComputeAmbitionLevel(s, cfg))
}

func TestComputeAmbitionLevelShortHistoryConservative(t *testing.T) {
	s := statePrimedWithHistory([]drillstore.Entry{{Outcome: drillstore.OutcomeCompleted}})
	cfg := DefaultConfig()
	assert.Equal(t, drillstore.AmbitionConservative, ComputeAmbitionLevel(s, cfg))
}

func TestComputeAmbitionLevelAmbitiousWhenStrongHistory(t *testing.T) {
	entries := make([]drillstore.Entry, 0, 6)
	for i := 0; i < 6; i++ {
		entries = append(entries, drillstore.Entry{Outcome: drillstore.OutcomeCompleted, StepsCompleted: 3, StepsTotal: 3})
	}
	s := statePrimedWithHistory(entries)
	cfg := DefaultConfig()
	assert.Equal(t, drillstore.AmbitionAmbitious, ComputeAmbitionLevel(s, cfg))
}

func TestArcGuidanceCapIsTwo(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeStalled, Categories: []string{"security"}},
		{Outcome: drillstore.OutcomeStalled, Categories: []string{"security"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"refactor"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"test"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"fix"}},
	}
	s := statePrimedWithHistory(entries)
	signals := ComputeArcGuidance(s, "")
	assert.LessOrEqual(t, len(signals), 2)
}

// TestArcGuidanceBlendsStallAndMomentum pins the scenario from spec.md §8/§10:
// recent outcomes [stalled(security), stalled(security), completed(refactor),
// completed(test), completed(fix)] produce exactly one "selective momentum"
// signal, never a separate stall-pivot or momentum signal.
func TestArcGuidanceBlendsStallAndMomentum(t *testing.T) {
	entries := []drillstore.Entry{
		{Outcome: drillstore.OutcomeStalled, Categories: []string{"security"}},
		{Outcome: drillstore.OutcomeStalled, Categories: []string{"security"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"refactor"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"test"}},
		{Outcome: drillstore.OutcomeCompleted, Categories: []string{"fix"}},
	}
	s := statePrimedWithHistory(entries)
	signals := ComputeArcGuidance(s, "")

	require.Len(t, signals, 1)
	assert.Equal(t, SignalSelectiveMomentum, signals[0].Kind)
	assert.Contains(t, signals[0].Message, "security")
	assert.Contains(t, signals[0].Message, "refactor")
}

func TestArcGuidanceEmptyHistoryEmptySignals(t *testing.T) {
	s := statePrimedWithHistory(nil)
	assert.Empty(t, ComputeArcGuidance(s, ""))
}
