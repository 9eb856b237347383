// Package wheel implements the Wheel Loop (spec.md §4.7): the top-level
// driver that strings the pre-cycle scheduler, drill planner, survey/
// filter/execute pipeline, and post-cycle scheduler into one continuously
// running session, honoring an operator's once-only directive hints and
// cycle/review/time budgets along the way.
package wheel

import (
	"context"
	"strconv"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/baseline"
	"github.com/codewheel-dev/promptwheel/internal/checkpoint"
	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/domain/critic"
	"github.com/codewheel-dev/promptwheel/internal/domain/drillplan"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
	"github.com/codewheel-dev/promptwheel/internal/wheel/schedule"
)

// Budget bounds how long a session runs. A zero field is unbounded.
type Budget struct {
	MaxCycles  int
	MaxReviews int
	Deadline   time.Time
}

// exceeded reports whether the budget has been used up as of now, and why.
func (b Budget) exceeded(reviewsCreated int, state *session.State, now time.Time) (bool, string) {
	if b.MaxCycles > 0 && state.CycleCount >= b.MaxCycles {
		return true, "cycle_budget"
	}
	if b.MaxReviews > 0 && reviewsCreated >= b.MaxReviews {
		return true, "review_budget"
	}
	if !b.Deadline.IsZero() && !now.Before(b.Deadline) {
		return true, "time_budget"
	}
	return false, ""
}

// Collaborators bundles every external capability the loop needs beyond
// what the scheduler and drill planner already take through their own
// Deps structs.
type Collaborators struct {
	Schedule schedule.Deps
	Drill    drillplan.Deps
	Invoker  ports.AgentInvoker
	Display  ports.DisplayAdapter
	Clock    ports.Clock
	Logger   ports.Logger
}

// Runner drives one wheel session to completion.
type Runner struct {
	RepoRoot     string
	Config       config.Config
	DrillConfig  drillplan.Config
	CriticConfig critic.Config
	Budget       Budget
	Collab       Collaborators
}

// NewRunner wires a Runner whose drill-planner knobs are derived from cfg's
// ambient Drill section, so CLI-configured thresholds reach the cascade.
func NewRunner(repoRoot string, cfg config.Config, budget Budget, collab Collaborators) *Runner {
	return &Runner{
		RepoRoot:     repoRoot,
		Config:       cfg,
		DrillConfig:  drillConfigFromAmbient(cfg),
		CriticConfig: critic.DefaultConfig(),
		Budget:       budget,
		Collab:       collab,
	}
}

func drillConfigFromAmbient(cfg config.Config) drillplan.Config {
	c := drillplan.DefaultConfig()
	d := cfg.Drill
	c.Step1Critical = d.AmbitionThresholds.Step1Critical
	c.Step1Fail = d.AmbitionThresholds.Step1Fail
	c.Step1AmbitiousMax = d.AmbitionThresholds.Step1AmbitiousMax
	c.Conservative = d.AmbitionThresholds.Conservative
	c.Ambitious = d.AmbitionThresholds.Ambitious
	c.CooldownCompleted = d.CooldownCompleted
	c.CooldownStalled = d.CooldownStalled
	c.SigmoidK = d.SigmoidK
	c.SigmoidCenter = d.SigmoidCenter
	c.ConfidenceDiscount = d.ConfidenceDiscount
	c.MinProposals = d.MinProposals
	c.MaxProposals = d.MaxProposals
	return c.Clamped()
}

// Outcome is what a completed wheel session produced, for the caller to
// turn into a process exit code (spec.md §6).
type Outcome struct {
	ReviewsCreated int
	AnyFailure     bool
}

// Run drives the wheel loop until a budget is exhausted or the session
// requests its own shutdown, applying pre-cycle, drill planning, greedy
// step pre-verification, scout/filter/execute, and post-cycle on every
// iteration (spec.md §4.7).
func (r *Runner) Run(ctx context.Context, state *session.State, cp *checkpoint.File, bl *baseline.File) Outcome {
	var out Outcome

	for {
		now := r.now()
		if state.ShutdownRequested {
			break
		}
		if exceeded, reason := r.Budget.exceeded(out.ReviewsCreated, state, now); exceeded {
			state.RequestShutdown(reason)
			break
		}

		applyDirectives(readUnconsumedDirectives(r.RepoRoot), state)

		preResult := schedule.PreCycle(ctx, state, r.Config, r.Collab.Schedule)
		cycleID := ports.GenerateCycleID(state.SessionID, state.CycleCount)
		cctx := ports.WithCycleID(ctx, cycleID)

		if preResult.Skipped {
			if state.ShutdownRequested {
				break
			}
			continue
		}

		r.push(cctx, state, "cycle "+strconv.Itoa(state.CycleCount)+" starting")

		if state.DrillMode && !state.DrillPaused && !state.HasActiveTrajectory() {
			if r.runDrillPlanner(cctx, state, now) {
				continue
			}
		}

		if state.HasActiveTrajectory() {
			r.preVerifyActiveStep(cctx, state, now)
		}

		completed, failed, reviews := r.cycle(cctx, state)
		state.CurrentCycleCompleted += completed
		state.CurrentCycleFailed += failed
		out.ReviewsCreated += reviews
		if failed > 0 {
			out.AnyFailure = true
		}

		postResult := schedule.PostCycle(cctx, state, r.Config, cp, bl, r.RepoRoot, r.Collab.Schedule, now)
		if postResult.ShutdownRequested {
			break
		}
	}

	return out
}

// runDrillPlanner consults the drill planner and applies its result code
// (spec.md §4.7). It returns true when the loop should skip straight to
// the next pre-cycle pass rather than falling through to a normal scout/
// filter/execute cycle.
func (r *Runner) runDrillPlanner(ctx context.Context, state *session.State, now time.Time) bool {
	outcome := drillplan.MaybeGenerateTrajectory(ctx, state, r.DrillConfig, r.CriticConfig, r.jitter(now), r.Collab.Drill)

	switch outcome.Result {
	case drillplan.ResultGenerated:
		state.DrillConsecutiveInsufficient = 0
		state.DrillTrajectoriesGenerated++
		state.DrillLastGeneratedAtCycle = state.CycleCount
		state.ActivateTrajectory(outcome.Trajectory, now)
		r.push(ctx, state, "drill trajectory generated: "+outcome.Trajectory.Name)
		return true

	case drillplan.ResultInsufficient:
		state.DrillConsecutiveInsufficient++
		if state.DrillConsecutiveInsufficient >= r.Config.Drill.MaxConsecutiveInsufficient {
			state.DrillMode = false
			r.push(ctx, state, "codebase appears converged")
		}
		return true

	case drillplan.ResultLowQuality:
		state.DrillConsecutiveLowQuality++
		if state.DrillConsecutiveLowQuality >= r.Config.Drill.MaxConsecutiveInsufficient+2 {
			state.DrillMode = false
			r.push(ctx, state, "codebase appears converged")
		}
		return true

	case drillplan.ResultStale:
		if state.DrillConsecutiveInsufficient > 0 {
			state.DrillConsecutiveInsufficient--
		}
		return true

	default: // ResultCooldown, ResultFailed: fall through to a normal cycle.
		return false
	}
}

// preVerifyActiveStep greedily advances the active trajectory's current
// step without invoking the agent, capped at one attempt per step of the
// trajectory so a fully-passing trajectory cannot spin forever in one cycle.
func (r *Runner) preVerifyActiveStep(ctx context.Context, state *session.State, now time.Time) {
	if !state.HasActiveTrajectory() {
		return
	}
	iterations := len(state.ActiveTrajectory.Steps)
	for i := 0; i < iterations && state.HasActiveTrajectory(); i++ {
		if !schedule.PreVerifyActiveStep(ctx, state, r.Config, r.RepoRoot, r.Collab.Schedule, now) {
			return
		}
	}
}

// cycle runs one scout/filter/execute pass: survey the repository for
// proposals, drop the ones below the session's current confidence floor,
// and dispatch the rest to the agent invoker.
func (r *Runner) cycle(ctx context.Context, state *session.State) (completed, failed, reviewsCreated int) {
	for _, p := range r.filter(state, r.scout(ctx, state)) {
		outcome, err := r.execute(ctx, p)
		switch {
		case err != nil || outcome == ports.AgentFailed || outcome == ports.AgentScopeViolation || outcome == ports.AgentSpindleAbort:
			failed++
		case outcome == ports.AgentCompleted:
			completed++
			reviewsCreated++
			state.PendingExternalReviews = append(state.PendingExternalReviews, session.ExternalReview{
				OpenedAt:  r.now(),
				TicketRef: p.Title,
			})
			r.push(ctx, state, "review opened: "+p.Title)
		case outcome == ports.AgentNoChanges:
			// Nothing to review; not a failure.
		}
	}
	return completed, failed, reviewsCreated
}

func (r *Runner) scout(ctx context.Context, state *session.State) []ports.Proposal {
	if r.Collab.Drill.Surveyor == nil {
		return nil
	}
	req := ports.SurveyRequest{
		Scope:           r.Collab.Drill.Scope,
		ConfidenceFloor: state.EffectiveMinConfidence,
		ProtectedPaths:  r.Collab.Drill.ProtectedPaths,
		TokenBudget:     r.Config.BatchTokenBudget,
		IncludeClaudeMD: r.Collab.Drill.IncludeClaudeMD,
		ModuleGroup:     r.Collab.Drill.ModuleGroup,
	}
	result, _ := r.Collab.Drill.Surveyor.Survey(ctx, req, nil)
	return result.Proposals
}

func (r *Runner) filter(state *session.State, proposals []ports.Proposal) []ports.Proposal {
	filtered := make([]ports.Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p.Confidence < state.EffectiveMinConfidence {
			continue
		}
		filtered = append(filtered, p)
	}
	if r.Config.MaxScoutFiles > 0 && len(filtered) > r.Config.MaxScoutFiles {
		filtered = filtered[:r.Config.MaxScoutFiles]
	}
	return filtered
}

func (r *Runner) execute(ctx context.Context, p ports.Proposal) (ports.AgentOutcome, error) {
	if r.Collab.Invoker == nil {
		return ports.AgentNoChanges, nil
	}
	ticket := ports.Ticket{
		Title:                p.Title,
		Description:          p.Description,
		AllowedPaths:         p.AllowedPaths,
		VerificationCommands: p.VerificationCommands,
		MaxRetries:           3,
	}
	return r.Collab.Invoker.Invoke(ctx, ticket)
}

func (r *Runner) push(ctx context.Context, state *session.State, message string) {
	if r.Collab.Display == nil {
		return
	}
	event := ports.DisplayEvent{
		CycleID:      ports.GetCycleID(ctx),
		CycleCount:   state.CycleCount,
		SessionPhase: string(state.SessionPhase),
		DrillMode:    state.DrillMode,
		Message:      message,
		Timestamp:    r.now(),
	}
	if state.HasActiveTrajectory() {
		event.TrajectoryName = state.ActiveTrajectory.Name
		event.CurrentStep = state.CurrentTrajectoryStep
	}
	r.Collab.Display.Push(event)
}

func (r *Runner) now() time.Time {
	if r.Collab.Clock != nil {
		return r.Collab.Clock.Now()
	}
	return time.Now()
}

// jitter derives a small deterministic spread for the drill cooldown check
// from wall-clock nanoseconds, so concurrent sessions don't all recheck
// cooldown on the exact same cycle boundary.
func (r *Runner) jitter(now time.Time) int {
	n := now.UnixNano() % 5
	if n < 0 {
		n += 5
	}
	return int(n)
}
