// Package session owns the wheel's mutable per-run state (spec.md §3). A
// single State value is created at session start, rehydrated from
// persisted stores, and written back by the scheduler and finalizer at
// well-defined points. Nothing outside the loop thread may mutate it.
package session

import (
	"time"

	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
)

// Phase is the elapsed-budget-derived stage of the session.
type Phase string

const (
	PhaseWarmup   Phase = "warmup"
	PhaseMid      Phase = "mid"
	PhaseDeep     Phase = "deep"
	PhaseCooldown Phase = "cooldown"
)

// CycleOutcome is a compact per-cycle record pushed into the recent buffer.
type CycleOutcome struct {
	CycleNumber int
	Completed   int
	Failed      int
	Timestamp   time.Time
}

// EscalationCandidate is a repeatedly-rejected proposal synthesized into a
// high-priority drill trajectory seed (spec.md §4.4 step 4).
type EscalationCandidate struct {
	Title         string
	HitCount      int
	FailureReason string
	Category      string
	Complexity    int
}

// ExternalReview is a pending PR/review the session is tracking.
type ExternalReview struct {
	URL       string
	OpenedAt  time.Time
	TicketRef string
}

// State is the wheel's full mutable session record.
type State struct {
	CycleCount                int
	CycleOutcomes             []CycleOutcome
	CurrentCycleCompleted     int
	CurrentCycleFailed        int
	ConsecutiveIdleCycles     int
	ConsecutiveLowYieldCycles int
	EffectiveMinConfidence    int // clamped to [0,80]
	SessionPhase              Phase

	ActiveTrajectory         *trajectory.Trajectory
	ActiveTrajectoryState    *trajectory.State
	CurrentTrajectoryStep    string
	TrajectoryStartedAtCycle int

	DrillMode                    bool
	DrillPaused                  bool
	DrillHistory                 drillstore.File
	DrillLastOutcome             string
	DrillTrajectoriesGenerated   int
	DrillLastGeneratedAtCycle    int
	DrillLastFreshnessDropRatio  float64
	DrillConsecutiveInsufficient int
	DrillConsecutiveLowQuality   int

	LensRotation           []string
	CurrentLens            string
	LensIndex              int
	LensRotationsCompleted int

	PendingExternalReviews []ExternalReview

	ShutdownRequested bool
	ShutdownReason    string

	EscalationCandidates []EscalationCandidate

	SessionID string
	StartedAt time.Time
}

// New creates a fresh session state. sessionID should be produced by
// ports.NewSessionID; callers rehydrate DrillHistory and calibration data
// afterward.
func New(sessionID string, startedAt time.Time) *State {
	return &State{
		SessionPhase: PhaseWarmup,
		DrillHistory: drillstore.Empty(),
		SessionID:    sessionID,
		StartedAt:    startedAt,
	}
}

// ClampConfidence clamps EffectiveMinConfidence to [0,80], per spec.md §4.6.
func (s *State) ClampConfidence() {
	if s.EffectiveMinConfidence < 0 {
		s.EffectiveMinConfidence = 0
	}
	if s.EffectiveMinConfidence > 80 {
		s.EffectiveMinConfidence = 80
	}
}

// RequestShutdown records the first shutdown request; subsequent calls are
// no-ops so the original reason is preserved.
func (s *State) RequestShutdown(reason string) {
	if s.ShutdownRequested {
		return
	}
	s.ShutdownRequested = true
	s.ShutdownReason = reason
}

const maxRecentCycleOutcomes = 20

// ResetCycleAccounting zeroes the in-flight per-cycle counters; called at
// the start of every pre-cycle pass.
func (s *State) ResetCycleAccounting() {
	s.CurrentCycleCompleted = 0
	s.CurrentCycleFailed = 0
}

// RecordCycleOutcome appends the just-finished cycle's tallies to the
// recent-cycle buffer, dropping the oldest entry beyond
// maxRecentCycleOutcomes.
func (s *State) RecordCycleOutcome(now time.Time) CycleOutcome {
	outcome := CycleOutcome{
		CycleNumber: s.CycleCount,
		Completed:   s.CurrentCycleCompleted,
		Failed:      s.CurrentCycleFailed,
		Timestamp:   now,
	}
	s.CycleOutcomes = append(s.CycleOutcomes, outcome)
	if len(s.CycleOutcomes) > maxRecentCycleOutcomes {
		s.CycleOutcomes = s.CycleOutcomes[len(s.CycleOutcomes)-maxRecentCycleOutcomes:]
	}
	return outcome
}

// LastCycleWasIdle reports whether the most recently recorded cycle
// produced zero completions (no prior cycle counts as idle).
func (s *State) LastCycleWasIdle() bool {
	if len(s.CycleOutcomes) == 0 {
		return false
	}
	return s.CycleOutcomes[len(s.CycleOutcomes)-1].Completed == 0
}

// HasActiveTrajectory reports whether a trajectory is currently in flight.
func (s *State) HasActiveTrajectory() bool {
	return s.ActiveTrajectory != nil && s.ActiveTrajectoryState != nil
}

// ClearActiveTrajectory drops the in-flight trajectory, e.g. after it
// finalizes or its cycle budget is exceeded.
func (s *State) ClearActiveTrajectory() {
	s.ActiveTrajectory = nil
	s.ActiveTrajectoryState = nil
	s.CurrentTrajectoryStep = ""
	s.TrajectoryStartedAtCycle = 0
}

// ActivateTrajectory installs a freshly generated trajectory as the active
// one, recording the cycle it started on for cycle-budget enforcement.
func (s *State) ActivateTrajectory(t *trajectory.Trajectory, now time.Time) {
	s.ActiveTrajectory = t
	states := trajectory.CreateInitialStepStates(*t)
	s.ActiveTrajectoryState = &trajectory.State{
		TrajectoryName: t.Name,
		StartedAt:      now,
		Status:         trajectory.TrajectoryActive,
		StepStates:     states,
	}
	s.TrajectoryStartedAtCycle = s.CycleCount
	if next := trajectory.GetNextStep(*t, states); next != nil {
		s.CurrentTrajectoryStep = next.ID
		s.ActiveTrajectoryState.CurrentStepID = next.ID
		states[next.ID].Status = trajectory.StatusActive
	}
}
