package risk

import "fmt"

// Severity classifies how dangerous a finding is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weights maps severities to score points. The aggregate risk score is the
// plain sum of weights over findings, with no cap.
type Weights struct {
	Low    int
	Medium int
	High   int
}

// DefaultWeights returns the production scoring weights.
func DefaultWeights() Weights {
	return Weights{Low: 5, Medium: 15, High: 30}
}

// Validate rejects non-positive or non-monotonic weight sets. A medium finding
// must always cost more than a low one and less than a high one.
func (w Weights) Validate() error {
	if w.Low <= 0 {
		return fmt.Errorf("low weight must be positive, got %d", w.Low)
	}
	if w.Medium <= w.Low {
		return fmt.Errorf("medium weight %d must exceed low weight %d", w.Medium, w.Low)
	}
	if w.High <= w.Medium {
		return fmt.Errorf("high weight %d must exceed medium weight %d", w.High, w.Medium)
	}
	return nil
}

// Of returns the point weight for a severity.
func (w Weights) Of(s Severity) int {
	switch s {
	case SeverityHigh:
		return w.High
	case SeverityMedium:
		return w.Medium
	default:
		return w.Low
	}
}
