// Package drillmetrics implements the drill subsystem's pure reductions
// over recorded trajectory history (spec.md §4.3). Every function here is
// deterministic and side-effect free: given the same history it always
// returns the same numbers, and an empty history always yields zeroed,
// never-NaN results.
package drillmetrics

import (
	"math"
	"sort"

	"github.com/codewheel-dev/promptwheel/internal/drillstore"
)

// Decay constants: completionLambda gives a half-life of 5 entries for
// completion-oriented metrics, coverageLambda a half-life of 10 entries for
// category/scope coverage.
const (
	completionLambda = math.Ln2 / 5
	coverageLambda   = math.Ln2 / 10
)

// weight returns the recency weight for an entry age positions back from
// the newest (age 0 == most recent).
func weight(lambda float64, age int) float64 {
	return math.Exp(-lambda * float64(age))
}

// CompletionRate is the unweighted fraction of entries with outcome=completed.
func CompletionRate(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	completed := 0
	for _, e := range entries {
		if e.Outcome == drillstore.OutcomeCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(entries))
}

// ageFromNewest returns the recency age of entries[i], with the last
// element (index len-1) being newest (age 0).
func ageFromNewest(entries []drillstore.Entry, i int) int {
	return len(entries) - 1 - i
}

// WeightedCompletionRate is Σ(weight × (completed?1:0)) / Σweight, with age
// measured from the newest entry.
func WeightedCompletionRate(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var num, den float64
	for i, e := range entries {
		w := weight(completionLambda, ageFromNewest(entries, i))
		den += w
		if e.Outcome == drillstore.OutcomeCompleted {
			num += w
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// completionPctOrFallback resolves an entry's effective completion
// percentage: its own completionPct if present, else stepsCompleted/stepsTotal.
func completionPctOrFallback(e drillstore.Entry) float64 {
	if e.CompletionPct != nil {
		return *e.CompletionPct
	}
	if e.StepsTotal <= 0 {
		return 0
	}
	return float64(e.StepsCompleted) / float64(e.StepsTotal)
}

// WeightedStepCompletionRate is Σ(weight × completionPct) / Σweight.
func WeightedStepCompletionRate(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var num, den float64
	for i, e := range entries {
		w := weight(completionLambda, ageFromNewest(entries, i))
		den += w
		num += w * completionPctOrFallback(e)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// AvgStepCompletionRate is the unweighted mean of each entry's effective
// completion percentage.
func AvgStepCompletionRate(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += completionPctOrFallback(e)
	}
	return sum / float64(len(entries))
}

// AvgStepsPerTrajectory is the unweighted mean of stepsTotal.
func AvgStepsPerTrajectory(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += float64(e.StepsTotal)
	}
	return sum / float64(len(entries))
}

// CategoryRate is the success statistics for one category: raw counts plus
// a recency-weighted rate.
type CategoryRate struct {
	Completed float64
	Total     float64
	Rate      float64
}

// CategorySuccessRates returns, per category, {completed, total, rate}
// where completed/total are plain entry counts and rate is the
// recency-weighted completed/total ratio.
func CategorySuccessRates(entries []drillstore.Entry) map[string]CategoryRate {
	result := map[string]CategoryRate{}
	weighted := map[string]*[2]float64{} // [weighted completed, weighted total]
	for i, e := range entries {
		w := weight(completionLambda, ageFromNewest(entries, i))
		for _, cat := range e.Categories {
			r := result[cat]
			acc, ok := weighted[cat]
			if !ok {
				acc = &[2]float64{}
				weighted[cat] = acc
			}
			r.Total++
			acc[1] += w
			if e.Outcome == drillstore.OutcomeCompleted {
				r.Completed++
				acc[0] += w
			}
			result[cat] = r
		}
	}
	for cat, r := range result {
		if acc := weighted[cat]; acc[1] > 0 {
			r.Rate = acc[0] / acc[1]
		}
		result[cat] = r
	}
	return result
}

// TopCategories returns categories whose weighted success rate is >= 0.5,
// sorted for deterministic output.
func TopCategories(rates map[string]CategoryRate) []string {
	return filterSortedCategories(rates, func(r CategoryRate) bool { return r.Rate >= 0.5 })
}

// StalledCategories returns categories whose weighted success rate is <
// 0.3 with at least 2 recorded entries, sorted for deterministic output.
func StalledCategories(rates map[string]CategoryRate) []string {
	return filterSortedCategories(rates, func(r CategoryRate) bool { return r.Rate < 0.3 && r.Total >= 2 })
}

func filterSortedCategories(rates map[string]CategoryRate, keep func(CategoryRate) bool) []string {
	var out []string
	for cat, r := range rates {
		if keep(r) {
			out = append(out, cat)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// Step1FailureRate is the fraction of entries that stalled with zero steps
// completed — a signal that the very first step of the trajectory is
// systematically too broad or too risky.
func Step1FailureRate(entries []drillstore.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	failures := 0
	for _, e := range entries {
		if e.Outcome == drillstore.OutcomeStalled && e.StepsCompleted == 0 {
			failures++
		}
	}
	return float64(failures) / float64(len(entries))
}

// StepPositionFailureRates computes, for each step position recorded in
// entries' telemetry, the unweighted failed/total ratio. Positions with
// fewer than 2 observations are omitted as statistically unreliable.
func StepPositionFailureRates(entries []drillstore.Entry) map[int]float64 {
	type counter struct{ failed, total int }
	counts := map[int]*counter{}
	for _, e := range entries {
		if e.Telemetry == nil {
			continue
		}
		for _, so := range e.Telemetry.StepOutcomes {
			c, ok := counts[so.Position]
			if !ok {
				c = &counter{}
				counts[so.Position] = c
			}
			c.total++
			if so.Failed {
				c.failed++
			}
		}
	}
	result := map[int]float64{}
	for pos, c := range counts {
		if c.total < 2 {
			continue
		}
		result[pos] = float64(c.failed) / float64(c.total)
	}
	return result
}

// DecayedCoverage is the independently-decayed category/scope count maps.
type DecayedCoverage struct {
	Categories map[string]float64
	Scopes     map[string]float64
}

// ComputeDecayedCoverage applies the coverage decay constant to each
// entry's categories and scopes, weighting older entries down.
func ComputeDecayedCoverage(entries []drillstore.Entry) DecayedCoverage {
	cov := DecayedCoverage{Categories: map[string]float64{}, Scopes: map[string]float64{}}
	for i, e := range entries {
		w := weight(coverageLambda, ageFromNewest(entries, i))
		for _, c := range e.Categories {
			cov.Categories[c] += w
		}
		for _, s := range e.Scopes {
			cov.Scopes[s] += w
		}
	}
	return cov
}

// AmbitionRate is completed/total for one ambition level. Levels whose
// sample is too small (total < 2) are left out of
// ComputePerAmbitionSuccessRates' result.
type AmbitionRate struct {
	Completed int
	Total     int
}

// Rate returns Completed/Total.
func (a AmbitionRate) Rate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Completed) / float64(a.Total)
}

// ComputePerAmbitionSuccessRates buckets entries by ambitionLevel and
// returns completed/total counts per level. Levels with fewer than 2
// recorded entries are omitted.
func ComputePerAmbitionSuccessRates(entries []drillstore.Entry) map[drillstore.AmbitionLevel]AmbitionRate {
	counts := map[drillstore.AmbitionLevel]*AmbitionRate{}
	for _, e := range entries {
		if e.AmbitionLevel == "" {
			continue
		}
		c, ok := counts[e.AmbitionLevel]
		if !ok {
			c = &AmbitionRate{}
			counts[e.AmbitionLevel] = c
		}
		c.Total++
		if e.Outcome == drillstore.OutcomeCompleted {
			c.Completed++
		}
	}
	result := map[drillstore.AmbitionLevel]AmbitionRate{}
	for level, c := range counts {
		if c.Total < 2 {
			continue
		}
		result[level] = *c
	}
	return result
}
