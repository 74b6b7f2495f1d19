// Package review lets a person accept or override the classifications left
// pending by the cascade. Every confirmation feeds the pattern learner.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ingest/internal/model"
)

// Review errors.
var (
	ErrNoSuggestion         = errors.New("transaction has no suggested classification")
	ErrAlreadyValidated     = errors.New("transaction is already validated")
	ErrUnknownCategory      = errors.New("category is not part of the organization's taxonomy")
	ErrUnknownCostCenter    = errors.New("cost center is not part of the organization's taxonomy")
	ErrIncompatibleCategory = errors.New("category type does not match the transaction direction")
)

// Store is the persistence the review service needs.
type Store interface {
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListPendingTransactions(ctx context.Context, organizationID, batchID string) ([]model.Transaction, error)
	ConfirmClassification(ctx context.Context, transactionID string, classification model.Classification) error
	GetTaxonomy(ctx context.Context, organizationID string) (*model.Taxonomy, error)
}

// Learner is notified of every human confirmation. A reassignment of a row
// that was already learned from is reported as a correction.
type Learner interface {
	OnHumanConfirm(ctx context.Context, txn model.Transaction, categoryID, costCenterID string) error
	OnHumanCorrect(ctx context.Context, txn model.Transaction, previousCategoryID, categoryID, costCenterID string) error
}

// Service confirms classifications on behalf of a reviewer.
type Service struct {
	store   Store
	learner Learner
}

// NewService creates a review service.
func NewService(store Store, learner Learner) *Service {
	return &Service{store: store, learner: learner}
}

// ListPending returns the rows awaiting review. An empty batchID lists the
// whole organization.
func (s *Service) ListPending(ctx context.Context, organizationID, batchID string) ([]model.Transaction, error) {
	txns, err := s.store.ListPendingTransactions(ctx, organizationID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txns, nil
}

// Accept confirms the classification already stored on the transaction.
func (s *Service) Accept(ctx context.Context, transactionID string) (*model.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.ValidationStatus == model.StatusValidated {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyValidated, transactionID)
	}
	if !txn.IsClassified() {
		return nil, fmt.Errorf("%w: %s", ErrNoSuggestion, transactionID)
	}

	source := txn.ClassificationSource
	if source == "" {
		source = model.SourceHuman
	}

	return s.confirm(ctx, txn, model.Classification{
		CategoryID:   txn.CategoryID,
		CostCenterID: txn.CostCenterID,
		Source:       source,
	})
}

// Assign sets the classification directly, replacing any suggestion. A
// validated transaction may be reassigned.
func (s *Service) Assign(ctx context.Context, transactionID, categoryID, costCenterID string) (*model.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	taxonomy, err := s.store.GetTaxonomy(ctx, txn.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	category, ok := taxonomy.FindCategory(categoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	if !category.Type.Accepts(txn.Direction) {
		return nil, fmt.Errorf("%w: %s is %s, transaction is %s",
			ErrIncompatibleCategory, category.Name, category.Type, txn.Direction)
	}
	if costCenterID != "" {
		if _, ok := taxonomy.FindCostCenter(costCenterID); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCostCenter, costCenterID)
		}
	}

	return s.confirm(ctx, txn, model.Classification{
		CategoryID:   categoryID,
		CostCenterID: costCenterID,
		Source:       model.SourceHuman,
	})
}

func (s *Service) confirm(ctx context.Context, txn *model.Transaction, c model.Classification) (*model.Transaction, error) {
	prior := *txn

	if err := s.store.ConfirmClassification(ctx, txn.ID, c); err != nil {
		return nil, fmt.Errorf("failed to confirm classification: %w", err)
	}

	txn.CategoryID = c.CategoryID
	txn.CostCenterID = c.CostCenterID
	txn.ClassificationSource = c.Source
	txn.ValidationStatus = model.StatusValidated

	// The confirmation stands even if the pattern memory cannot be updated.
	if err := s.learn(ctx, prior, *txn); err != nil {
		slog.WarnContext(ctx, "Failed to learn from confirmation",
			"transaction_id", txn.ID,
			"error", err)
	}

	slog.InfoContext(ctx, "Confirmed classification",
		"transaction_id", txn.ID,
		"category_id", c.CategoryID,
		"source", c.Source)

	return txn, nil
}

// learn counts each transaction once. Reassigning a reviewed row to the same
// category teaches nothing; moving it to another category is a correction.
func (s *Service) learn(ctx context.Context, prior, txn model.Transaction) error {
	if s.learner == nil {
		return nil
	}

	switch {
	case !reviewed(prior):
		return s.learner.OnHumanConfirm(ctx, txn, txn.CategoryID, txn.CostCenterID)
	case prior.CategoryID == txn.CategoryID:
		slog.DebugContext(ctx, "Skipping pattern update for unchanged category",
			"transaction_id", txn.ID,
			"category_id", txn.CategoryID)
		return nil
	default:
		return s.learner.OnHumanCorrect(ctx, txn, prior.CategoryID, txn.CategoryID, txn.CostCenterID)
	}
}

// reviewed reports whether txn was validated by a person and so already
// counted by the learner. Rule and pattern matches validate without review.
func reviewed(txn model.Transaction) bool {
	if txn.ValidationStatus != model.StatusValidated {
		return false
	}
	return txn.ClassificationSource != model.SourceRule && txn.ClassificationSource != model.SourcePattern
}
