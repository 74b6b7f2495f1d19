package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether money entered or left the account.
type Direction string

const (
	// DirectionCredit is money entering the account.
	DirectionCredit Direction = "credit"
	// DirectionDebit is money leaving the account.
	DirectionDebit Direction = "debit"
)

// DirectionFromSign maps a signed amount to its direction. Zero counts as credit.
func DirectionFromSign(amount decimal.Decimal) Direction {
	if amount.Sign() < 0 {
		return DirectionDebit
	}
	return DirectionCredit
}

// ValidationStatus tracks whether a human (or a trusted stage) has accepted a classification.
type ValidationStatus string

const (
	// StatusPendingValidation marks rows awaiting review.
	StatusPendingValidation ValidationStatus = "pending_validation"
	// StatusValidated marks rows whose classification is final.
	StatusValidated ValidationStatus = "validated"
)

// Candidate is one parsed statement line before deduplication.
type Candidate struct {
	Date           time.Time
	Description    string          // Cleaned description
	RawDescription string          // Exactly as it appeared in the statement
	Amount         decimal.Decimal // Unsigned magnitude
	Direction      Direction
}

// SignedAmount returns the amount with debits negative.
func (c Candidate) SignedAmount() decimal.Decimal {
	if c.Direction == DirectionDebit {
		return c.Amount.Neg()
	}
	return c.Amount
}

// Transaction is a persisted statement line.
type Transaction struct {
	Date                 time.Time
	CreatedAt            time.Time
	Amount               decimal.Decimal
	ID                   string
	OrganizationID       string
	AccountID            string
	BatchID              string
	Fingerprint          string
	Description          string
	RawDescription       string
	CategoryID           string
	CostCenterID         string
	Direction            Direction
	ValidationStatus     ValidationStatus
	ClassificationSource ClassificationSource
}

// Candidate returns the parsed view of the transaction.
func (t *Transaction) Candidate() Candidate {
	return Candidate{
		Date:           t.Date,
		Description:    t.Description,
		RawDescription: t.RawDescription,
		Amount:         t.Amount,
		Direction:      t.Direction,
	}
}

// IsClassified reports whether a category has been assigned.
func (t *Transaction) IsClassified() bool {
	return t.CategoryID != ""
}
