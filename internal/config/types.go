// Package config loads and validates the wheel's tunable knobs (spec.md §9:
// every configuration value the core consumes is enumerated here, with a
// clamped validator applied at load time). Nothing in this package performs
// scheduling or planning; it only produces a validated Config value.
package config

// PullPolicy controls what happens when the pre-cycle base-branch sync
// finds a non-fast-forward divergence.
type PullPolicy string

const (
	PullPolicyHalt PullPolicy = "halt"
	PullPolicyWarn PullPolicy = "warn"
)

// AmbitionThresholds are the drill planner's ambition-selection cutoffs.
type AmbitionThresholds struct {
	Step1Critical     float64 `yaml:"step1Critical" validate:"gte=0,lte=1"`
	Step1Fail         float64 `yaml:"step1Fail" validate:"gte=0,lte=1"`
	Step1AmbitiousMax float64 `yaml:"step1AmbitiousMax" validate:"gte=0,lte=1"`
	Conservative      float64 `yaml:"conservative" validate:"gte=0,lte=1"`
	Ambitious         float64 `yaml:"ambitious" validate:"gte=0,lte=1"`
}

// Drill holds every knob scoped to the drill subsystem.
type Drill struct {
	Enabled                    bool    `yaml:"enabled"`
	MinProposals               int     `yaml:"minProposals" validate:"gte=1"`
	MaxProposals               int     `yaml:"maxProposals" validate:"gtefield=MinProposals"`
	CooldownCompleted          float64 `yaml:"cooldownCompleted" validate:"gte=0"`
	CooldownStalled            float64 `yaml:"cooldownStalled" validate:"gte=0"`
	HistoryCap                 int     `yaml:"historyCap" validate:"gte=10,lte=1000"`
	ConfidenceDiscount         int     `yaml:"confidenceDiscount" validate:"gte=0,lte=30"`
	MinAvgConfidence           int     `yaml:"minAvgConfidence" validate:"gte=0,lte=100"`
	MinAvgImpact               float64 `yaml:"minAvgImpact" validate:"gte=0,lte=10"`
	MaxConsecutiveInsufficient int     `yaml:"maxConsecutiveInsufficient" validate:"gte=1"`
	MaxCyclesPerTrajectory     int     `yaml:"maxCyclesPerTrajectory" validate:"gte=1"`
	SigmoidK                   float64 `yaml:"sigmoidK" validate:"gte=1,lte=20"`
	SigmoidCenter              float64 `yaml:"sigmoidCenter" validate:"gte=0,lte=1"`
	StalenessLogBase           float64 `yaml:"stalenessLogBase" validate:"gt=1"`
	CausalWindow               int     `yaml:"causalWindow" validate:"gte=1"`

	AmbitionThresholds AmbitionThresholds `yaml:"ambitionThresholds"`
}

// Config is the full set of validated wheel knobs (spec.md §9).
type Config struct {
	MaxIdleCycles             int        `yaml:"maxIdleCycles" validate:"gte=1"`
	MaxLowYieldCycles         int        `yaml:"maxLowYieldCycles" validate:"gte=1"`
	PullInterval              int        `yaml:"pullInterval" validate:"gte=1"`
	PullPolicy                PullPolicy `yaml:"pullPolicy" validate:"oneof=halt warn"`
	GuidelinesRefreshInterval int        `yaml:"guidelinesRefreshInterval" validate:"gte=1"`
	MinConfidence             int        `yaml:"minConfidence" validate:"gte=0,lte=100"`
	BatchTokenBudget          int        `yaml:"batchTokenBudget" validate:"gte=1"`
	ScoutTimeoutMs            int        `yaml:"scoutTimeoutMs" validate:"gte=0"`
	MaxScoutFiles             int        `yaml:"maxScoutFiles" validate:"gte=1"`
	ScoutConcurrency          int        `yaml:"scoutConcurrency" validate:"gte=1,lte=32"`

	Drill Drill `yaml:"drill"`
}

// Default returns the wheel's out-of-the-box knob values, per spec.md §4/§9.
func Default() Config {
	return Config{
		MaxIdleCycles:             15,
		MaxLowYieldCycles:         5,
		PullInterval:              10,
		PullPolicy:                PullPolicyHalt,
		GuidelinesRefreshInterval: 20,
		MinConfidence:             50,
		BatchTokenBudget:          20000,
		ScoutTimeoutMs:            0,
		MaxScoutFiles:             200,
		ScoutConcurrency:          4,
		Drill: Drill{
			Enabled:                    true,
			MinProposals:               3,
			MaxProposals:               10,
			CooldownCompleted:          0,
			CooldownStalled:            5,
			HistoryCap:                 100,
			ConfidenceDiscount:         15,
			MinAvgConfidence:           25,
			MinAvgImpact:               2.5,
			MaxConsecutiveInsufficient: 3,
			MaxCyclesPerTrajectory:     15,
			SigmoidK:                   6,
			SigmoidCenter:              0.5,
			StalenessLogBase:           2,
			CausalWindow:               5,
			AmbitionThresholds: AmbitionThresholds{
				Step1Critical:     0.4,
				Step1Fail:         0.25,
				Step1AmbitiousMax: 0.15,
				Conservative:      0.3,
				Ambitious:         0.7,
			},
		},
	}
}
