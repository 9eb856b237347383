// Package drillplan implements the drill subsystem's planner (spec.md
// §4.4): cooldown and proposal-threshold adaptation, ambition-level
// selection, arc guidance, and the maybeGenerateTrajectory decision
// cascade that ties surveying, filtering, and generation together.
package drillplan

// Config holds the planner's tunable knobs, all with the defaults named in
// spec.md §4.4. The wheel's configuration layer is responsible for
// validating and clamping these before constructing a Config.
type Config struct {
	Step1Critical     float64 // default 0.4
	Step1Fail         float64 // default 0.25
	Step1AmbitiousMax float64 // default 0.15
	Conservative      float64 // default 0.3
	Ambitious         float64 // default 0.7

	CooldownCompleted float64 // default 0
	CooldownStalled   float64 // default 5
	SigmoidK          float64 // default 6, clamped [1,20]
	SigmoidCenter     float64 // default 0.5, clamped [0,1]

	ConfidenceDiscount int // default 15, clamped <= 30

	MinProposals int // default 3
	MaxProposals int // default 10

	StepCountSlack int // default 2
}

// DefaultConfig returns the planner defaults enumerated in spec.md §4.4.
func DefaultConfig() Config {
	return Config{
		Step1Critical:      0.4,
		Step1Fail:          0.25,
		Step1AmbitiousMax:  0.15,
		Conservative:       0.3,
		Ambitious:          0.7,
		CooldownCompleted:  0,
		CooldownStalled:    5,
		SigmoidK:           6,
		SigmoidCenter:      0.5,
		ConfidenceDiscount: 15,
		MinProposals:       3,
		MaxProposals:       10,
		StepCountSlack:     2,
	}
}

// Clamped returns a copy of c with the sigmoid and discount knobs clamped
// to the ranges named in spec.md §4.4.
func (c Config) Clamped() Config {
	if c.SigmoidK < 1 {
		c.SigmoidK = 1
	}
	if c.SigmoidK > 20 {
		c.SigmoidK = 20
	}
	if c.SigmoidCenter < 0 {
		c.SigmoidCenter = 0
	}
	if c.SigmoidCenter > 1 {
		c.SigmoidCenter = 1
	}
	if c.ConfidenceDiscount > 30 {
		c.ConfidenceDiscount = 30
	}
	return c
}
