// Package checkpoint persists the aggregated run-state.json (spec.md §6)
// the scheduler consults for crash resume and cross-cycle calibration:
// recent cycle/diff history, formula calibration stats, and the session
// checkpoint proper (cycle count, external review URLs, ticket digest).
package checkpoint

import (
	"path/filepath"

	"github.com/codewheel-dev/promptwheel/internal/persist"
	"github.com/codewheel-dev/promptwheel/internal/session"
)

const (
	maxRecentCycles = 20
	maxRecentDiffs  = 20
)

// LensZeroYieldPair marks a (lens, sector) combination already tried without
// producing completions, so low-yield lens rotation skips it next time.
type LensZeroYieldPair struct {
	Lens   string `json:"lens"`
	Sector string `json:"sector"`
}

// SessionCheckpoint is the crash-resume record written every post-cycle.
type SessionCheckpoint struct {
	CycleCount          int               `json:"cycleCount"`
	ExternalReviewURLs  []string          `json:"externalReviewUrls"`
	TicketOutcomeDigest map[string]string `json:"ticketOutcomeDigest"`
}

// File is the on-disk run-state.json shape.
type File struct {
	TotalCycles                      int                     `json:"totalCycles"`
	RecentCycles                     []session.CycleOutcome  `json:"recentCycles"`
	RecentDiffs                      []string                `json:"recentDiffs"`
	FormulaStats                     map[string]float64      `json:"formulaStats"`
	LastEffectiveMinConfidence       int                     `json:"lastEffectiveMinConfidence"`
	LastDrillConsecutiveInsufficient int                     `json:"lastDrillConsecutiveInsufficient"`
	LensZeroYieldPairs                []LensZeroYieldPair    `json:"lensZeroYieldPairs"`
	SessionCheckpoint                 SessionCheckpoint       `json:"sessionCheckpoint"`
}

func path(repoRoot string) string {
	return filepath.Join(repoRoot, ".promptwheel", "run-state.json")
}

// Empty returns a zero-value run-state file with initialized maps/slices.
func Empty() File {
	return File{
		RecentCycles:      []session.CycleOutcome{},
		RecentDiffs:       []string{},
		FormulaStats:      map[string]float64{},
		LensZeroYieldPairs: []LensZeroYieldPair{},
		SessionCheckpoint: SessionCheckpoint{
			TicketOutcomeDigest: map[string]string{},
		},
	}
}

// Load reads run-state.json, returning Empty() on any missing/corrupt
// content.
func Load(repoRoot string) File {
	f := Empty()
	if !persist.ReadJSONOrDefault(path(repoRoot), &f) {
		return Empty()
	}
	if f.RecentCycles == nil {
		f.RecentCycles = []session.CycleOutcome{}
	}
	if f.RecentDiffs == nil {
		f.RecentDiffs = []string{}
	}
	if f.FormulaStats == nil {
		f.FormulaStats = map[string]float64{}
	}
	if f.LensZeroYieldPairs == nil {
		f.LensZeroYieldPairs = []LensZeroYieldPair{}
	}
	if f.SessionCheckpoint.TicketOutcomeDigest == nil {
		f.SessionCheckpoint.TicketOutcomeDigest = map[string]string{}
	}
	return f
}

// Save writes run-state.json atomically.
func Save(repoRoot string, f File) error {
	return persist.WriteJSONAtomic(path(repoRoot), f)
}

// PushCycle appends a cycle outcome, dropping the oldest beyond
// maxRecentCycles, and increments TotalCycles.
func (f *File) PushCycle(o session.CycleOutcome) {
	f.TotalCycles++
	f.RecentCycles = append(f.RecentCycles, o)
	if len(f.RecentCycles) > maxRecentCycles {
		f.RecentCycles = f.RecentCycles[len(f.RecentCycles)-maxRecentCycles:]
	}
}

// PushDiff appends a diff digest, dropping the oldest beyond maxRecentDiffs.
func (f *File) PushDiff(digest string) {
	f.RecentDiffs = append(f.RecentDiffs, digest)
	if len(f.RecentDiffs) > maxRecentDiffs {
		f.RecentDiffs = f.RecentDiffs[len(f.RecentDiffs)-maxRecentDiffs:]
	}
}

// HasTriedLens reports whether (lens, sector) already produced zero yield.
func (f File) HasTriedLens(lens, sector string) bool {
	for _, p := range f.LensZeroYieldPairs {
		if p.Lens == lens && p.Sector == sector {
			return true
		}
	}
	return false
}

// RecordZeroYield records (lens, sector) as tried-without-yield, if not
// already present.
func (f *File) RecordZeroYield(lens, sector string) {
	if f.HasTriedLens(lens, sector) {
		return
	}
	f.LensZeroYieldPairs = append(f.LensZeroYieldPairs, LensZeroYieldPair{Lens: lens, Sector: sector})
}

// RecentCompletionRate averages completion outcomes across RecentCycles,
// used to derive the adaptive convergence abandon threshold (spec.md §4.6
// post-cycle step 6, range 30-70%).
func (f File) RecentCompletionRate() float64 {
	if len(f.RecentCycles) == 0 {
		return 0.5
	}
	var completed, total float64
	for _, c := range f.RecentCycles {
		completed += float64(c.Completed)
		total += float64(c.Completed + c.Failed)
	}
	if total == 0 {
		return 0.5
	}
	return completed / total
}
