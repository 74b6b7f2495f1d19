package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LearnedPattern is the statistical memory of past human confirmations for a canonical key.
type LearnedPattern struct {
	LastUsedAt      time.Time       `json:"last_used_at"`
	AvgAmount       decimal.Decimal `json:"avg_amount"`
	OrganizationID  string          `json:"organization_id"`
	CanonicalKey    string          `json:"canonical_key"`
	CategoryID      string          `json:"category_id"`
	CostCenterID    string          `json:"cost_center_id"`
	Confidence      float64         `json:"confidence"`
	OccurrenceCount int             `json:"occurrence_count"`
	AgreementCount  int             `json:"agreement_count"`
	Version         int             `json:"version"`
}

// IsNew reports whether the pattern has never been persisted.
func (p *LearnedPattern) IsNew() bool {
	return p.Version == 0
}
