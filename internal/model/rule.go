package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationRule is an operator-authored deterministic classifier.
// A rule matches when the description contains DescriptionMatch, the amount
// is equal and the direction agrees. DueDay optionally pins the day of month.
type ReconciliationRule struct {
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DueDay           *int            `json:"due_day,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organization_id"`
	DescriptionMatch string          `json:"description_match"`
	CategoryID       string          `json:"category_id"`
	CostCenterID     string          `json:"cost_center_id"`
	Type             Direction       `json:"type"`
	IsActive         bool            `json:"is_active"`
}
