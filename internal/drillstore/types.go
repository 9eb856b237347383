// Package drillstore persists the drill subsystem's history of trajectory
// outcomes (spec.md §4.2) to a single JSON file, using a temp-file-then-rename
// write path so a crash between the two steps never leaves the main file
// corrupt.
package drillstore

import "time"

// AmbitionLevel is the planner's chosen ambition for a generated trajectory.
type AmbitionLevel string

const (
	AmbitionConservative AmbitionLevel = "conservative"
	AmbitionModerate     AmbitionLevel = "moderate"
	AmbitionAmbitious    AmbitionLevel = "ambitious"
)

// Outcome is the terminal disposition of a drill trajectory.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStalled   Outcome = "stalled"
)

// StepOutcome is a compact per-position record used by stepPositionFailureRates.
type StepOutcome struct {
	Position int  `json:"position"`
	Failed   bool `json:"failed"`
}

// Telemetry holds auxiliary signals about how a trajectory's proposals fared.
type Telemetry struct {
	StepOutcomes          []StepOutcome `json:"stepOutcomes,omitempty"`
	ProposalAverage       float64       `json:"proposalAverage,omitempty"`
	FreshnessDropCount    int           `json:"freshnessDropCount,omitempty"`
	ProposalCategoryCount int           `json:"proposalCategoryCount,omitempty"`
}

// Entry is one immutable trajectory outcome record.
type Entry struct {
	Name                   string        `json:"name"`
	Description            string        `json:"description"`
	StepsTotal             int           `json:"stepsTotal"`
	StepsCompleted         int           `json:"stepsCompleted"`
	StepsFailed            int           `json:"stepsFailed"`
	Outcome                Outcome       `json:"outcome"`
	CompletionPct          *float64      `json:"completionPct,omitempty"`
	Categories             []string      `json:"categories"`
	Scopes                 []string      `json:"scopes"`
	Timestamp              time.Time     `json:"timestamp"`
	FailedSteps            []string      `json:"failedSteps,omitempty"`
	CompletedStepSummaries []string      `json:"completedStepSummaries,omitempty"`
	ModifiedFiles          []string      `json:"modifiedFiles,omitempty"`
	AmbitionLevel          AmbitionLevel `json:"ambitionLevel,omitempty"`
	Telemetry              *Telemetry    `json:"telemetry,omitempty"`
}

const (
	maxFailedSteps            = 5
	maxCompletedStepSummaries = 5
	maxModifiedFiles          = 20
	maxStepOutcomes           = 10
)

// NewEntry clamps the bounded-length fields of an Entry to the limits in
// spec.md §4.2, truncating from the tail of each slice.
func NewEntry(e Entry) Entry {
	e.FailedSteps = clamp(e.FailedSteps, maxFailedSteps)
	e.CompletedStepSummaries = clamp(e.CompletedStepSummaries, maxCompletedStepSummaries)
	e.ModifiedFiles = clamp(e.ModifiedFiles, maxModifiedFiles)
	if e.Telemetry != nil {
		t := *e.Telemetry
		if len(t.StepOutcomes) > maxStepOutcomes {
			t.StepOutcomes = t.StepOutcomes[:maxStepOutcomes]
		}
		e.Telemetry = &t
	}
	return e
}

func clamp(items []string, limit int) []string {
	if len(items) <= limit {
		return items
	}
	return items[:limit]
}

// File is the on-disk shape of the drill history store.
type File struct {
	Entries          []Entry        `json:"entries"`
	CoveredCategories map[string]int `json:"coveredCategories"`
	CoveredScopes     map[string]int `json:"coveredScopes"`
}

// Empty returns a freshly initialized, zero-entry File.
func Empty() File {
	return File{
		Entries:           []Entry{},
		CoveredCategories: map[string]int{},
		CoveredScopes:     map[string]int{},
	}
}

const maxCoveredScopes = 200

// Append pushes entry onto the file, dropping the oldest entry first if the
// file is already at cap.
func (f *File) Append(entry Entry, cap int) {
	if cap < 1 {
		cap = 1
	}
	if len(f.Entries) >= cap {
		drop := len(f.Entries) - cap + 1
		f.Entries = f.Entries[drop:]
	}
	f.Entries = append(f.Entries, entry)

	if f.CoveredCategories == nil {
		f.CoveredCategories = map[string]int{}
	}
	if f.CoveredScopes == nil {
		f.CoveredScopes = map[string]int{}
	}
	for _, c := range entry.Categories {
		f.CoveredCategories[c]++
	}
	for _, s := range entry.Scopes {
		f.CoveredScopes[s]++
	}
	f.trimCoveredScopes()
}

// trimCoveredScopes keeps only the maxCoveredScopes most frequent scopes.
func (f *File) trimCoveredScopes() {
	if len(f.CoveredScopes) <= maxCoveredScopes {
		return
	}
	type kv struct {
		key   string
		count int
	}
	all := make([]kv, 0, len(f.CoveredScopes))
	for k, v := range f.CoveredScopes {
		all = append(all, kv{k, v})
	}
	// simple selection of the top maxCoveredScopes by count, stable on key
	// for determinism.
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[i].count || (all[j].count == all[i].count && all[j].key < all[i].key) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	trimmed := make(map[string]int, maxCoveredScopes)
	for i := 0; i < maxCoveredScopes && i < len(all); i++ {
		trimmed[all[i].key] = all[i].count
	}
	f.CoveredScopes = trimmed
}
