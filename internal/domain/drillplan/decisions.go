package drillplan

import (
	"math"

	"github.com/codewheel-dev/promptwheel/internal/domain/drillmetrics"
	"github.com/codewheel-dev/promptwheel/internal/drillstore"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

// GetDrillCooldown implements spec.md §4.4's getDrillCooldown: how many
// cycles must pass before the drill planner is consulted again.
func GetDrillCooldown(state *session.State, jitter int, cfg Config) int {
	cfg = cfg.Clamped()
	entries := state.DrillHistory.Entries
	if state.DrillTrajectoriesGenerated == 0 {
		return 0
	}

	step1Rate := drillmetrics.Step1FailureRate(entries)
	if len(entries) >= 3 && step1Rate > cfg.Step1Critical {
		return 0
	}

	var baseCooldown float64
	if len(entries) == 0 {
		baseCooldown = (cfg.CooldownCompleted + cfg.CooldownStalled) / 2
	} else {
		last := entries[len(entries)-1]
		pct := 0.0
		if last.CompletionPct != nil {
			pct = *last.CompletionPct
		} else if last.Outcome == drillstore.OutcomeCompleted {
			pct = 1
		}
		baseCooldown = cfg.CooldownCompleted + (cfg.CooldownStalled-cfg.CooldownCompleted)*(1-pct)
	}

	result := baseCooldown

	if len(entries) >= 3 {
		rate := drillmetrics.WeightedCompletionRate(entries)
		adj := math.Round(4 - 8/(1+math.Exp(-cfg.SigmoidK*(rate-cfg.SigmoidCenter))))
		result += adj
	}

	switch {
	case state.DrillLastFreshnessDropRatio > 0.5:
		result -= 2
	case state.DrillLastFreshnessDropRatio < 0.1:
		result += 1
	}

	result += float64(jitter)

	if result < 0 {
		result = 0
	}
	return int(math.Round(result))
}

// ProposalThresholds is the adaptive min/max proposal count the planner
// requires before it will generate a trajectory.
type ProposalThresholds struct {
	Min int
	Max int
}

// GetAdaptiveProposalThresholds implements spec.md §4.4's
// getAdaptiveProposalThresholds.
func GetAdaptiveProposalThresholds(state *session.State, cfg Config) ProposalThresholds {
	t := ProposalThresholds{Min: cfg.MinProposals, Max: cfg.MaxProposals}
	entries := state.DrillHistory.Entries
	if len(entries) < 3 {
		return t
	}
	rate := drillmetrics.WeightedCompletionRate(entries)
	switch {
	case rate > 0.7:
		t.Min = maxInt(2, t.Min-1)
		t.Max = t.Max + 2
	case rate < 0.3:
		t.Min = t.Min + 1
		t.Max = maxInt(t.Min+1, t.Max-2)
	}
	return t
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ComputeAmbitionLevel implements spec.md §4.4's computeAmbitionLevel.
func ComputeAmbitionLevel(state *session.State, cfg Config) drillstore.AmbitionLevel {
	entries := state.DrillHistory.Entries

	if len(entries) < 3 || state.SessionPhase == session.PhaseCooldown {
		return drillstore.AmbitionConservative
	}

	step1Rate := drillmetrics.Step1FailureRate(entries)
	if step1Rate > cfg.Step1Critical {
		return drillstore.AmbitionConservative
	}

	consecutiveWins := lastTwoCompleted(entries)
	weightedRate := drillmetrics.WeightedCompletionRate(entries)

	if step1Rate > cfg.Step1Fail || weightedRate < cfg.Conservative {
		if consecutiveWins {
			return drillstore.AmbitionModerate
		}
		return drillstore.AmbitionConservative
	}

	perAmbition := drillmetrics.ComputePerAmbitionSuccessRates(entries)
	ambitiousGuard := func() drillstore.AmbitionLevel {
		if rate, ok := perAmbition[drillstore.AmbitionAmbitious]; ok && rate.Rate() < 0.4 {
			return drillstore.AmbitionModerate
		}
		return drillstore.AmbitionAmbitious
	}

	if weightedRate > cfg.Ambitious && step1Rate < cfg.Step1AmbitiousMax && len(entries) >= 5 {
		return ambitiousGuard()
	}

	if consecutiveWins && step1Rate < cfg.Step1AmbitiousMax && len(entries) >= 4 {
		return ambitiousGuard()
	}

	return drillstore.AmbitionModerate
}

func lastTwoCompleted(entries []drillstore.Entry) bool {
	if len(entries) < 2 {
		return false
	}
	a := entries[len(entries)-1]
	b := entries[len(entries)-2]
	return a.Outcome == drillstore.OutcomeCompleted && b.Outcome == drillstore.OutcomeCompleted
}
