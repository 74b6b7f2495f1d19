// Package service defines the interfaces shared across the import pipeline.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ingest/internal/model"
)

// TransactionStore persists statement lines.
type TransactionStore interface {
	// InsertTransaction stores a new row. A row whose (account, fingerprint)
	// already exists returns common.ErrDuplicateEntry.
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	// ExistingFingerprints returns which of the given fingerprints are already stored for the account.
	ExistingFingerprints(ctx context.Context, accountID string, fingerprints []string) (map[string]bool, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error)
	ListPendingTransactions(ctx context.Context, organizationID, batchID string) ([]model.Transaction, error)
	// ApplyClassification records a stage outcome on a row that is still pending validation.
	ApplyClassification(ctx context.Context, transactionID string, classification model.Classification) error
	// ConfirmClassification records a final classification and marks the row validated.
	ConfirmClassification(ctx context.Context, transactionID string, classification model.Classification) error
}

// BatchStore persists import batches.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *model.ImportBatch) error
	GetBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	ListBatches(ctx context.Context, organizationID string, limit int) ([]model.ImportBatch, error)
	// UpdateBatchStatus moves a batch from one state to another. It succeeds
	// without change when the batch is already in the target state.
	UpdateBatchStatus(ctx context.Context, id string, from, to model.BatchStatus, errorMessage string) error
	UpdateBatchCounts(ctx context.Context, id string, counts model.BatchCounts) error
	UpdateBatchClassified(ctx context.Context, id string, classified int) error
}

// RuleStore manages operator-defined reconciliation rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.ReconciliationRule) error
	GetRule(ctx context.Context, id string) (*model.ReconciliationRule, error)
	ListRules(ctx context.Context, organizationID string, activeOnly bool) ([]model.ReconciliationRule, error)
	UpdateRule(ctx context.Context, rule *model.ReconciliationRule) error
	DeleteRule(ctx context.Context, id string) error
}

// PatternRepository is the learned pattern memory.
type PatternRepository interface {
	GetPattern(ctx context.Context, organizationID, canonicalKey string) (*model.LearnedPattern, error)
	// UpsertPattern loads the pattern for key (or a zero pattern when absent),
	// applies fn and stores the result, bumping its version.
	UpsertPattern(ctx context.Context, organizationID, canonicalKey string, fn func(*model.LearnedPattern) error) (*model.LearnedPattern, error)
	ListPatterns(ctx context.Context, organizationID string) ([]model.LearnedPattern, error)
	DeletePattern(ctx context.Context, organizationID, canonicalKey string) error
}

// TaxonomyStore manages categories and cost centers.
type TaxonomyStore interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	CreateCostCenter(ctx context.Context, costCenter *model.CostCenter) error
	GetTaxonomy(ctx context.Context, organizationID string) (*model.Taxonomy, error)
}

// Storage aggregates every persistence concern.
type Storage interface {
	TransactionStore
	BatchStore
	RuleStore
	PatternRepository
	TaxonomyStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions are used for idempotent storage writes.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}
