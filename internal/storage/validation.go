// Package storage provides the SQLite persistence layer for the import pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid reconciliation rule")
	ErrInvalidBatch       = errors.New("invalid import batch")
	ErrInvalidCategory    = errors.New("invalid category")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	switch {
	case txn.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	case txn.AccountID == "":
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	case txn.OrganizationID == "":
		return fmt.Errorf("%w: missing organization ID", ErrInvalidTransaction)
	case txn.Fingerprint == "":
		return fmt.Errorf("%w: missing fingerprint", ErrInvalidTransaction)
	case txn.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	case txn.Amount.Sign() < 0:
		return fmt.Errorf("%w: amount must be unsigned", ErrInvalidTransaction)
	case txn.Direction != model.DirectionCredit && txn.Direction != model.DirectionDebit:
		return fmt.Errorf("%w: invalid direction %q", ErrInvalidTransaction, txn.Direction)
	}
	return nil
}

func validateRule(rule *model.ReconciliationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	switch {
	case rule.OrganizationID == "":
		return fmt.Errorf("%w: missing organization ID", ErrInvalidRule)
	case strings.TrimSpace(rule.DescriptionMatch) == "":
		return fmt.Errorf("%w: description match cannot be empty", ErrInvalidRule)
	case rule.CategoryID == "":
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	case rule.Amount.Sign() < 0:
		return fmt.Errorf("%w: amount must be unsigned", ErrInvalidRule)
	case rule.Type != model.DirectionCredit && rule.Type != model.DirectionDebit:
		return fmt.Errorf("%w: type must be credit or debit", ErrInvalidRule)
	case rule.DueDay != nil && (*rule.DueDay < 1 || *rule.DueDay > 31):
		return fmt.Errorf("%w: due day must be between 1 and 31", ErrInvalidRule)
	}
	return nil
}

func validateBatch(batch *model.ImportBatch) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	switch {
	case batch.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidBatch)
	case batch.OrganizationID == "":
		return fmt.Errorf("%w: missing organization ID", ErrInvalidBatch)
	case batch.AccountID == "":
		return fmt.Errorf("%w: missing account ID", ErrInvalidBatch)
	case batch.Format == "":
		return fmt.Errorf("%w: missing format", ErrInvalidBatch)
	}
	return nil
}
