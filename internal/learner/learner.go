// Package learner turns human confirmations into learned patterns.
package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/Veraticus/spice-ingest/internal/service"
	"github.com/shopspring/decimal"
)

// ErrMissingCategory is returned when a confirmation carries no category.
var ErrMissingCategory = errors.New("confirmed category is required")

// PatternUpserter is the write side of the pattern memory.
type PatternUpserter interface {
	UpsertPattern(ctx context.Context, organizationID, canonicalKey string, fn func(*model.LearnedPattern) error) (*model.LearnedPattern, error)
}

// Learner updates pattern statistics after a reviewer confirms a classification.
type Learner struct {
	patterns PatternUpserter
	retry    service.RetryOptions
	now      func() time.Time
}

// New creates a learner writing to patterns.
func New(patterns PatternUpserter) *Learner {
	return &Learner{
		patterns: patterns,
		retry: service.RetryOptions{
			MaxAttempts:  5,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
		},
		now: time.Now,
	}
}

// Confidence scores a pattern: the agreement ratio damped by how little
// evidence there is. Three unanimous confirmations give 0.875.
func Confidence(agreements, occurrences int) float64 {
	if occurrences <= 0 {
		return 0
	}
	ratio := float64(agreements) / float64(occurrences)
	return ratio * (1 - math.Pow(0.5, float64(occurrences)))
}

// OnHumanConfirm records that a reviewer assigned categoryID and costCenterID
// to txn. Descriptions without a canonical key are ignored.
func (l *Learner) OnHumanConfirm(ctx context.Context, txn model.Transaction, categoryID, costCenterID string) error {
	if categoryID == "" {
		return ErrMissingCategory
	}

	key := normalize.CanonicalKey(txn.Description)
	if key == "" {
		slog.DebugContext(ctx, "Skipping pattern update for description without key",
			"transaction_id", txn.ID)
		return nil
	}

	stored, err := l.upsert(ctx, txn.OrganizationID, key, func(p *model.LearnedPattern) {
		observe(p, txn.Amount, categoryID, costCenterID, l.now().UTC())
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Updated learned pattern",
		"key", key,
		"category_id", stored.CategoryID,
		"occurrences", stored.OccurrenceCount,
		"agreements", stored.AgreementCount,
		"confidence", stored.Confidence)

	return nil
}

// OnHumanCorrect records that a reviewer changed an already confirmed txn
// from previousCategoryID to categoryID. The transaction was counted when it
// was first confirmed, so the agreement moves but the occurrence count stays.
func (l *Learner) OnHumanCorrect(ctx context.Context, txn model.Transaction, previousCategoryID, categoryID, costCenterID string) error {
	if categoryID == "" {
		return ErrMissingCategory
	}
	if categoryID == previousCategoryID {
		return nil
	}

	key := normalize.CanonicalKey(txn.Description)
	if key == "" {
		return nil
	}

	stored, err := l.upsert(ctx, txn.OrganizationID, key, func(p *model.LearnedPattern) {
		if p.OccurrenceCount == 0 || p.CategoryID == "" {
			observe(p, txn.Amount, categoryID, costCenterID, l.now().UTC())
			return
		}
		correct(p, previousCategoryID, categoryID, costCenterID, l.now().UTC())
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Corrected learned pattern",
		"key", key,
		"category_id", stored.CategoryID,
		"occurrences", stored.OccurrenceCount,
		"agreements", stored.AgreementCount,
		"confidence", stored.Confidence)

	return nil
}

// upsert applies fn to the pattern for key, retrying lost version races.
func (l *Learner) upsert(ctx context.Context, organizationID, key string, fn func(*model.LearnedPattern)) (*model.LearnedPattern, error) {
	var stored *model.LearnedPattern
	err := common.WithRetry(ctx, func() error {
		var err error
		stored, err = l.patterns.UpsertPattern(ctx, organizationID, key, func(p *model.LearnedPattern) error {
			fn(p)
			return nil
		})
		if err != nil && !errors.Is(err, common.ErrVersionConflict) {
			return common.Permanent(err)
		}
		return err
	}, l.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to update pattern %q: %w", key, err)
	}
	return stored, nil
}

// observe folds one confirmation into p.
func observe(p *model.LearnedPattern, amount decimal.Decimal, categoryID, costCenterID string, at time.Time) {
	amount = amount.Abs()
	p.LastUsedAt = at

	if p.OccurrenceCount == 0 || p.CategoryID == "" {
		p.CategoryID = categoryID
		p.CostCenterID = costCenterID
		p.OccurrenceCount = 1
		p.AgreementCount = 1
		p.AvgAmount = amount
		p.Confidence = Confidence(1, 1)
		return
	}

	p.OccurrenceCount++
	delta := amount.Sub(p.AvgAmount).Div(decimal.NewFromInt(int64(p.OccurrenceCount)))
	p.AvgAmount = p.AvgAmount.Add(delta).Round(2)

	switch {
	case p.CategoryID == categoryID:
		p.AgreementCount++
		p.CostCenterID = costCenterID
	case 2*p.AgreementCount <= p.OccurrenceCount:
		p.CategoryID = categoryID
		p.CostCenterID = costCenterID
		p.AgreementCount = 1
	}

	p.Confidence = Confidence(p.AgreementCount, p.OccurrenceCount)
}

// correct moves one agreement from previousCategoryID to categoryID without
// adding an occurrence.
func correct(p *model.LearnedPattern, previousCategoryID, categoryID, costCenterID string, at time.Time) {
	p.LastUsedAt = at

	switch p.CategoryID {
	case previousCategoryID:
		if p.AgreementCount > 0 {
			p.AgreementCount--
		}
		if 2*p.AgreementCount <= p.OccurrenceCount {
			p.CategoryID = categoryID
			p.CostCenterID = costCenterID
			p.AgreementCount = 1
		}
	case categoryID:
		if p.AgreementCount < p.OccurrenceCount {
			p.AgreementCount++
		}
		p.CostCenterID = costCenterID
	}

	p.Confidence = Confidence(p.AgreementCount, p.OccurrenceCount)
}
