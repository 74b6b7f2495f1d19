package model

// ClassificationSource records which stage produced a classification.
type ClassificationSource string

const (
	// SourceRule means an operator-defined reconciliation rule matched.
	SourceRule ClassificationSource = "rule"
	// SourcePattern means a learned pattern was trusted.
	SourcePattern ClassificationSource = "pattern"
	// SourceGenerative means the completion service suggested it.
	SourceGenerative ClassificationSource = "generative"
	// SourceHuman means a reviewer assigned it directly.
	SourceHuman ClassificationSource = "human"
)

// Classification is the outcome of a single classification stage.
type Classification struct {
	CategoryID    string
	CostCenterID  string
	RuleID        string // Set only for SourceRule
	Source        ClassificationSource
	AutoValidated bool
}

// Status returns the validation status implied by the classification.
func (c *Classification) Status() ValidationStatus {
	if c.AutoValidated {
		return StatusValidated
	}
	return StatusPendingValidation
}
