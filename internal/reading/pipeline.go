package reading

import "fmt"

// Default physiological range used when none is configured
const (
	DefaultMinBPM Reading = 40
	DefaultMaxBPM Reading = 180
)

// Range is an inclusive [Min, Max] band of acceptable values
type Range struct {
	Min Reading
	Max Reading
}

// DefaultRange returns the 40..180 range
func DefaultRange() Range {
	return Range{Min: DefaultMinBPM, Max: DefaultMaxBPM}
}

// Validate checks that the range is not inverted
func (r Range) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("invalid range: min %d is greater than max %d", r.Min, r.Max)
	}
	return nil
}

// Contains reports whether v lies inside the range; boundaries are inside
func (r Range) Contains(v Reading) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// Rule lets a script override processing and classification.
// A false second result means the rule does not apply and the default is used.
type Rule interface {
	Process(v Reading) (Reading, bool)
	IsAnomaly(v Reading) (bool, bool)
}

// Pipeline normalizes raw readings and classifies them against a Range
type Pipeline struct {
	rng  Range
	rule Rule
}

// NewPipeline creates a pipeline; rule may be nil
func NewPipeline(rng Range, rule Rule) (*Pipeline, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{rng: rng, rule: rule}, nil
}

// Range returns the configured acceptable range
func (p *Pipeline) Range() Range {
	return p.rng
}

// Process applies the configured normalization. Without a rule it is the identity.
func (p *Pipeline) Process(raw Reading) Reading {
	if p.rule != nil {
		if v, ok := p.rule.Process(raw); ok {
			return v
		}
	}
	return raw
}

// DetectAnomaly reports whether v falls outside the acceptable range
func (p *Pipeline) DetectAnomaly(v Reading) bool {
	if p.rule != nil {
		if anomalous, ok := p.rule.IsAnomaly(v); ok {
			return anomalous
		}
	}
	return !p.rng.Contains(v)
}
