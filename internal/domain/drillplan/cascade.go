package drillplan

import (
	"context"
	"fmt"
	"sort"

	"github.com/codewheel-dev/promptwheel/internal/domain/critic"
	"github.com/codewheel-dev/promptwheel/internal/domain/trajectory"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

// Result is one of the six outcomes maybeGenerateTrajectory can return
// (spec.md §4.4).
type Result string

const (
	ResultGenerated    Result = "generated"
	ResultCooldown     Result = "cooldown"
	ResultFailed       Result = "failed"
	ResultInsufficient Result = "insufficient"
	ResultLowQuality   Result = "low_quality"
	ResultStale        Result = "stale"
)

// Deps bundles the external collaborators maybeGenerateTrajectory needs.
// Any may be nil in a test double, in which case the corresponding step is
// skipped (surveyor or generator nil => cascade returns ResultFailed).
type Deps struct {
	Surveyor  ports.Surveyor
	Generator ports.TrajectoryGenerator
	Index     ports.CodebaseIndex
	Sector    ports.SectorStore
	Clock     ports.Clock

	// ModifiedSince reports whether a path has changed since the given
	// baseline commit/ref, for the freshness filter.
	ModifiedSince func(path string) bool

	// BaseChanged reports whether the base branch has moved since the
	// previous survey, for the staleness gate.
	BaseChanged func() bool

	Scope           string
	ProtectedPaths  []string
	TokenBudget     int
	TestsEnabled    bool
	GoalCategory    string
	IncludeClaudeMD bool

	// ModuleGroup narrows surveys to proposals tied to a given issue label
	// or module grouping, when the operator scoped the session to one.
	ModuleGroup string
}

// Outcome is the full result of one maybeGenerateTrajectory invocation.
type Outcome struct {
	Result     Result
	Trajectory *trajectory.Trajectory
	Ambition   drillstore.AmbitionLevel
	Critique   string
	Warnings   []string
}

// MaybeGenerateTrajectory runs the decision cascade from spec.md §4.4.
func MaybeGenerateTrajectory(ctx context.Context, state *session.State, cfg Config, critCfg critic.Config, jitter int, deps Deps) Outcome {
	cfg = cfg.Clamped()

	cooldown := GetDrillCooldown(state, jitter, cfg)
	if state.DrillTrajectoriesGenerated > 0 && state.CycleCount-state.DrillLastGeneratedAtCycle < cooldown {
		return Outcome{Result: ResultCooldown}
	}

	if deps.BaseChanged != nil && !deps.BaseChanged() {
		return Outcome{Result: ResultCooldown}
	}

	if deps.Surveyor == nil {
		return Outcome{Result: ResultFailed}
	}

	confidenceFloor := state.EffectiveMinConfidence - cfg.ConfidenceDiscount
	if confidenceFloor < 0 {
		confidenceFloor = 0
	}

	surveyResult, err := deps.Surveyor.Survey(ctx, ports.SurveyRequest{
		Scope:           deps.Scope,
		ConfidenceFloor: confidenceFloor,
		ProtectedPaths:  deps.ProtectedPaths,
		TokenBudget:     deps.TokenBudget,
		IncludeClaudeMD: deps.IncludeClaudeMD,
		ModuleGroup:     deps.ModuleGroup,
	}, nil)
	if err != nil {
		return Outcome{Result: ResultFailed}
	}
	proposals := surveyResult.Proposals

	escalated := synthesizeEscalationCandidates(state.EscalationCandidates)
	proposals = append(proposals, escalated...)

	survived, dropRatio := applyFreshnessFilter(proposals, deps.ModifiedSince)
	state.DrillLastFreshnessDropRatio = dropRatio

	thresholds := GetAdaptiveProposalThresholds(state, cfg)
	effectiveMin := thresholds.Min
	if len(escalated) > 0 && effectiveMin > 1 {
		effectiveMin--
	}

	if len(survived) < effectiveMin {
		if dropRatio > 0.3 {
			return Outcome{Result: ResultStale}
		}
		return Outcome{Result: ResultInsufficient}
	}

	avgConfidence, avgImpact := averageQuality(survived)
	hardFloorConfidence := maxFloat(10, float64(state.EffectiveMinConfidence)/2)
	hardFloorImpact := maxFloat(1, 2.5/2) // minAvgImpact default 2.5, halved

	var warnings []string
	if avgConfidence < hardFloorConfidence || avgImpact < hardFloorImpact {
		return Outcome{Result: ResultLowQuality}
	}
	if avgConfidence < float64(state.EffectiveMinConfidence) {
		warnings = append(warnings, "conservative, short trajectory")
	}

	sampled := stratifiedSample(survived, thresholds.Max)
	sampled = filterEmptySectorsAndTests(sampled, deps.TestsEnabled)

	ambition := ComputeAmbitionLevel(state, cfg)
	ambition = adjustAmbitionForQuality(ambition, avgConfidence, dropRatio)

	arcSignals := ComputeArcGuidance(state, deps.GoalCategory)
	tctx := ports.TrajectoryContext{
		ArcGuidance: signalMessages(arcSignals),
		MetricsHint: joinWarnings(warnings),
	}
	if deps.Index != nil {
		if edges, err := deps.Index.DependencyEdges(ctx); err == nil {
			tctx.DependencySubgraph = edges
		}
		if rev, err := deps.Index.ReverseEdges(ctx); err == nil {
			tctx.ReverseSubgraph = rev
		}
	}

	if deps.Generator == nil {
		return Outcome{Result: ResultFailed}
	}
	raw, err := deps.Generator.Generate(ctx, ports.TrajectoryGenerationRequest{
		Proposals:    sampled,
		Context:      tctx,
		Ambition:     string(ambition),
		SessionPhase: string(state.SessionPhase),
	})
	if err != nil {
		return Outcome{Result: ResultFailed}
	}
	traj, ok := raw.(trajectory.Trajectory)
	if !ok || len(traj.Steps) == 0 {
		return Outcome{Result: ResultFailed}
	}

	verdict := critic.Review(traj, critic.Blueprint{Proposals: sampled}, ambition, critCfg)
	if !verdict.Passed {
		return Outcome{Result: ResultLowQuality, Critique: verdict.Critique, Warnings: warnings}
	}

	state.DrillTrajectoriesGenerated++
	state.DrillLastGeneratedAtCycle = state.CycleCount

	return Outcome{Result: ResultGenerated, Trajectory: &traj, Ambition: ambition, Warnings: warnings}
}

func synthesizeEscalationCandidates(candidates []session.EscalationCandidate) []ports.Proposal {
	var out []ports.Proposal
	for i, c := range candidates {
		if c.HitCount < 3 || c.FailureReason == "" {
			continue
		}
		out = append(out, ports.Proposal{
			ID:            fmt.Sprintf("escalation-%d", i),
			Title:         c.Title,
			Category:      ports.CategoryRefactor,
			Impact:        8,
			Confidence:    60,
			Complexity:    complexityFromFailureReason(c.FailureReason),
			FailureReason: c.FailureReason,
			HitCount:      c.HitCount,
		})
	}
	return out
}

func complexityFromFailureReason(reason string) ports.Complexity {
	if len(reason) > 80 {
		return ports.ComplexityComplex
	}
	return ports.ComplexityModerate
}

// applyFreshnessFilter drops proposals whose first 3 primary files have
// been modified since the survey started, and reports the drop ratio.
func applyFreshnessFilter(proposals []ports.Proposal, modifiedSince func(string) bool) ([]ports.Proposal, float64) {
	if modifiedSince == nil || len(proposals) == 0 {
		return proposals, 0
	}
	var kept []ports.Proposal
	dropped := 0
	for _, p := range proposals {
		stale := false
		files := p.PrimaryFiles
		if len(files) > 3 {
			files = files[:3]
		}
		for _, f := range files {
			if modifiedSince(f) {
				stale = true
				break
			}
		}
		if stale {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	ratio := 0.0
	if len(proposals) > 0 {
		ratio = float64(dropped) / float64(len(proposals))
	}
	return kept, ratio
}

func averageQuality(proposals []ports.Proposal) (avgConfidence, avgImpact float64) {
	if len(proposals) == 0 {
		return 0, 0
	}
	var sumC, sumI float64
	for _, p := range proposals {
		sumC += float64(p.Confidence)
		sumI += float64(p.Impact)
	}
	return sumC / float64(len(proposals)), sumI / float64(len(proposals))
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// stratifiedSample picks one proposal per category in order, then fills the
// remainder by descending quality (confidence + 10×impact), up to max.
func stratifiedSample(proposals []ports.Proposal, max int) []ports.Proposal {
	if len(proposals) <= max {
		return proposals
	}

	byCategory := map[ports.ProposalCategory][]ports.Proposal{}
	var categoryOrder []ports.ProposalCategory
	for _, p := range proposals {
		if _, ok := byCategory[p.Category]; !ok {
			categoryOrder = append(categoryOrder, p.Category)
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	var picked []ports.Proposal
	used := map[string]bool{}
	for _, cat := range categoryOrder {
		if len(picked) >= max {
			break
		}
		best := bestByQuality(byCategory[cat])
		picked = append(picked, best)
		used[best.ID] = true
	}

	if len(picked) < max {
		remaining := make([]ports.Proposal, 0, len(proposals))
		for _, p := range proposals {
			if !used[p.ID] {
				remaining = append(remaining, p)
			}
		}
		sort.SliceStable(remaining, func(i, j int) bool {
			return qualityScore(remaining[i]) > qualityScore(remaining[j])
		})
		for _, p := range remaining {
			if len(picked) >= max {
				break
			}
			picked = append(picked, p)
		}
	}
	return picked
}

func bestByQuality(proposals []ports.Proposal) ports.Proposal {
	best := proposals[0]
	for _, p := range proposals[1:] {
		if qualityScore(p) > qualityScore(best) {
			best = p
		}
	}
	return best
}

func qualityScore(p ports.Proposal) float64 {
	return float64(p.Confidence) + float64(p.Impact)*10
}

// filterEmptySectorsAndTests drops proposals with no primary files and,
// unless tests are enabled, proposals whose files are all test files.
func filterEmptySectorsAndTests(proposals []ports.Proposal, testsEnabled bool) []ports.Proposal {
	var out []ports.Proposal
	for _, p := range proposals {
		if len(p.PrimaryFiles) == 0 {
			continue
		}
		if !testsEnabled && allTestFiles(p.PrimaryFiles) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func allTestFiles(files []string) bool {
	for _, f := range files {
		if !isTestFile(f) {
			return false
		}
	}
	return true
}

func isTestFile(f string) bool {
	const suffix = "_test.go"
	return len(f) >= len(suffix) && f[len(f)-len(suffix):] == suffix
}

// adjustAmbitionForQuality implements step 10 of the cascade: downgrade one
// level when proposal quality is weak or freshness drop is high, upgrade
// one level when both are strong.
func adjustAmbitionForQuality(ambition drillstore.AmbitionLevel, avgConfidence, dropRatio float64) drillstore.AmbitionLevel {
	if avgConfidence < 40 || dropRatio > 0.4 {
		return downgrade(ambition)
	}
	if avgConfidence > 80 && dropRatio < 0.1 {
		return upgrade(ambition)
	}
	return ambition
}

func downgrade(a drillstore.AmbitionLevel) drillstore.AmbitionLevel {
	switch a {
	case drillstore.AmbitionAmbitious:
		return drillstore.AmbitionModerate
	case drillstore.AmbitionModerate:
		return drillstore.AmbitionConservative
	default:
		return drillstore.AmbitionConservative
	}
}

func upgrade(a drillstore.AmbitionLevel) drillstore.AmbitionLevel {
	switch a {
	case drillstore.AmbitionConservative:
		return drillstore.AmbitionModerate
	case drillstore.AmbitionModerate:
		return drillstore.AmbitionAmbitious
	default:
		return drillstore.AmbitionAmbitious
	}
}

func signalMessages(signals []Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Message
	}
	return out
}

func joinWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	out := warnings[0]
	for _, w := range warnings[1:] {
		out += "; " + w
	}
	return out
}
