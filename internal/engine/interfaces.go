// Package engine implements the classification cascade that assigns a
// category and cost center to imported transactions.
package engine

import (
	"context"

	"github.com/Veraticus/spice-ingest/internal/llm"
	"github.com/Veraticus/spice-ingest/internal/model"
)

// Stage is one step of the cascade. A nil classification means the stage
// has no opinion and the next stage is consulted.
type Stage interface {
	Source() model.ClassificationSource
	TryClassify(ctx context.Context, txn model.Transaction) (*model.Classification, error)
}

// Suggester proposes a taxonomy classification for a transaction.
type Suggester interface {
	Suggest(ctx context.Context, txn model.Transaction, taxonomy *model.Taxonomy) (*llm.Suggestion, error)
}

// Store is the persistence the engine needs.
type Store interface {
	ListRules(ctx context.Context, organizationID string, activeOnly bool) ([]model.ReconciliationRule, error)
	GetTaxonomy(ctx context.Context, organizationID string) (*model.Taxonomy, error)
	GetPattern(ctx context.Context, organizationID, canonicalKey string) (*model.LearnedPattern, error)
	ApplyClassification(ctx context.Context, transactionID string, classification model.Classification) error
}
