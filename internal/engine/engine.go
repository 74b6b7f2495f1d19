package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
)

// DefaultMaxPerBatch bounds how many transactions one batch classifies.
const DefaultMaxPerBatch = 100

// Cascade is an ordered list of stages; the first opinion wins.
type Cascade []Stage

// Classify runs the stages in order. Stage errors are collected as
// ClassificationFailures and the next stage is consulted.
func (c Cascade) Classify(ctx context.Context, txn model.Transaction) (*model.Classification, []error) {
	var failures []error
	for _, stage := range c {
		result, err := stage.TryClassify(ctx, txn)
		if err != nil {
			failures = append(failures, &common.ClassificationFailure{
				TransactionID: txn.ID,
				Stage:         string(stage.Source()),
				Err:           err,
			})
			continue
		}
		if result != nil {
			return result, failures
		}
	}
	return nil, failures
}

// Config holds configuration options for the classification engine.
type Config struct {
	MaxPerBatch int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxPerBatch: DefaultMaxPerBatch}
}

// Summary reports what one ClassifyBatch call did.
type Summary struct {
	BySource      map[model.ClassificationSource]int
	Considered    int
	Classified    int
	AutoValidated int
	Unresolved    int
	Failures      int
	Skipped       int // over the per-batch bound
	Duration      time.Duration
}

// Engine classifies batches of freshly imported transactions.
type Engine struct {
	store     Store
	suggester Suggester
	config    Config
}

// New creates a new classification engine. suggester may be nil, which
// leaves the generative stage out of the cascade.
func New(store Store, suggester Suggester) *Engine {
	return NewWithConfig(store, suggester, DefaultConfig())
}

// NewWithConfig creates a new classification engine with custom configuration.
func NewWithConfig(store Store, suggester Suggester, config Config) *Engine {
	if config.MaxPerBatch <= 0 {
		config.MaxPerBatch = DefaultMaxPerBatch
	}
	return &Engine{store: store, suggester: suggester, config: config}
}

// BuildCascade loads the organization's rules and taxonomy and assembles the
// rule, pattern and generative stages.
func (e *Engine) BuildCascade(ctx context.Context, organizationID string) (Cascade, error) {
	ruleSet, err := e.store.ListRules(ctx, organizationID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	taxonomy, err := e.store.GetTaxonomy(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	cascade := Cascade{
		NewRuleStage(ruleSet),
		NewPatternStage(e.store, taxonomy),
	}
	if e.suggester != nil {
		cascade = append(cascade, NewGenerativeStage(e.suggester, taxonomy))
	}

	slog.DebugContext(ctx, "Built classification cascade",
		"organization_id", organizationID,
		"rules", len(ruleSet),
		"categories", len(taxonomy.Categories),
		"stages", len(cascade))

	return cascade, nil
}

// ClassifyBatch classifies up to MaxPerBatch pending transactions and
// persists each outcome. Individual failures are logged and leave the
// transaction pending; only setup failures and cancellation are returned.
func (e *Engine) ClassifyBatch(ctx context.Context, organizationID string, txns []model.Transaction) (Summary, error) {
	start := time.Now()
	summary := Summary{BySource: make(map[model.ClassificationSource]int)}

	if len(txns) == 0 {
		return summary, nil
	}

	cascade, err := e.BuildCascade(ctx, organizationID)
	if err != nil {
		return summary, err
	}

	for i, txn := range txns {
		if i >= e.config.MaxPerBatch {
			summary.Skipped = len(txns) - i
			break
		}
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("classification interrupted after %d transactions: %w", summary.Considered, err)
		}
		if txn.ValidationStatus == model.StatusValidated {
			continue
		}

		summary.Considered++
		result, failures := cascade.Classify(ctx, txn)
		for _, failure := range failures {
			summary.Failures++
			slog.WarnContext(ctx, "Classification stage failed", "error", failure)
		}

		if result == nil {
			summary.Unresolved++
			continue
		}

		if err := e.store.ApplyClassification(ctx, txn.ID, *result); err != nil {
			summary.Failures++
			slog.ErrorContext(ctx, "Failed to store classification",
				"transaction_id", txn.ID,
				"source", result.Source,
				"error", err)
			continue
		}

		summary.Classified++
		summary.BySource[result.Source]++
		if result.AutoValidated {
			summary.AutoValidated++
		}
	}

	summary.Duration = time.Since(start)
	slog.InfoContext(ctx, "Classified batch",
		"organization_id", organizationID,
		"considered", summary.Considered,
		"classified", summary.Classified,
		"auto_validated", summary.AutoValidated,
		"unresolved", summary.Unresolved,
		"failures", summary.Failures,
		"skipped", summary.Skipped,
		"duration", summary.Duration)

	return summary, nil
}
