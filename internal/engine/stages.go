package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/Veraticus/spice-ingest/internal/rules"
)

// Thresholds a learned pattern must reach before it is trusted without review.
const (
	MinPatternConfidence  = 0.85
	MinPatternOccurrences = 3
)

// RuleStage classifies with operator-defined reconciliation rules.
type RuleStage struct {
	matcher *rules.Matcher
}

// NewRuleStage creates a rule stage over the given rules.
func NewRuleStage(ruleSet []model.ReconciliationRule) *RuleStage {
	return &RuleStage{matcher: rules.NewMatcher(ruleSet)}
}

// Source implements Stage.
func (s *RuleStage) Source() model.ClassificationSource {
	return model.SourceRule
}

// TryClassify implements Stage. Rule matches are always auto-validated.
func (s *RuleStage) TryClassify(_ context.Context, txn model.Transaction) (*model.Classification, error) {
	rule, ok := s.matcher.Match(txn)
	if !ok {
		return nil, nil
	}
	return &model.Classification{
		CategoryID:    rule.CategoryID,
		CostCenterID:  rule.CostCenterID,
		RuleID:        rule.ID,
		Source:        model.SourceRule,
		AutoValidated: true,
	}, nil
}

// PatternLookup reads learned patterns.
type PatternLookup interface {
	GetPattern(ctx context.Context, organizationID, canonicalKey string) (*model.LearnedPattern, error)
}

// PatternStage classifies with learned patterns that have earned trust.
type PatternStage struct {
	patterns PatternLookup
	taxonomy *model.Taxonomy
}

// NewPatternStage creates a pattern stage. Patterns pointing at categories
// missing from taxonomy are ignored.
func NewPatternStage(patterns PatternLookup, taxonomy *model.Taxonomy) *PatternStage {
	return &PatternStage{patterns: patterns, taxonomy: taxonomy}
}

// Source implements Stage.
func (s *PatternStage) Source() model.ClassificationSource {
	return model.SourcePattern
}

// Trusted reports whether a pattern may classify without review.
func Trusted(p *model.LearnedPattern) bool {
	return p.Confidence >= MinPatternConfidence && p.OccurrenceCount >= MinPatternOccurrences
}

// TryClassify implements Stage.
func (s *PatternStage) TryClassify(ctx context.Context, txn model.Transaction) (*model.Classification, error) {
	key := normalize.CanonicalKey(txn.Description)
	if key == "" {
		return nil, nil
	}

	pattern, err := s.patterns.GetPattern(ctx, txn.OrganizationID, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !Trusted(pattern) {
		slog.DebugContext(ctx, "Pattern below trust threshold",
			"key", key,
			"confidence", pattern.Confidence,
			"occurrences", pattern.OccurrenceCount)
		return nil, nil
	}

	if s.taxonomy != nil {
		cat, ok := s.taxonomy.FindCategory(pattern.CategoryID)
		if !ok || !cat.Type.Accepts(txn.Direction) {
			return nil, nil
		}
	}

	return &model.Classification{
		CategoryID:    pattern.CategoryID,
		CostCenterID:  pattern.CostCenterID,
		Source:        model.SourcePattern,
		AutoValidated: true,
	}, nil
}

// GenerativeStage asks the completion service for a suggestion. Its answers
// are never auto-validated. After an upstream rate-limit or quota error it
// stops calling out for the lifetime of the stage.
type GenerativeStage struct {
	suggester Suggester
	taxonomy  *model.Taxonomy
	disabled  atomic.Bool
}

// NewGenerativeStage creates a generative stage for one batch.
func NewGenerativeStage(suggester Suggester, taxonomy *model.Taxonomy) *GenerativeStage {
	return &GenerativeStage{suggester: suggester, taxonomy: taxonomy}
}

// Source implements Stage.
func (s *GenerativeStage) Source() model.ClassificationSource {
	return model.SourceGenerative
}

// Disabled reports whether the stage has tripped.
func (s *GenerativeStage) Disabled() bool {
	return s.disabled.Load()
}

// TryClassify implements Stage.
func (s *GenerativeStage) TryClassify(ctx context.Context, txn model.Transaction) (*model.Classification, error) {
	if s.disabled.Load() || s.taxonomy == nil || len(s.taxonomy.Categories) == 0 {
		return nil, nil
	}

	suggestion, err := s.suggester.Suggest(ctx, txn, s.taxonomy)
	if err != nil {
		if common.IsUpstreamThrottled(err) {
			s.disabled.Store(true)
			slog.WarnContext(ctx, "Disabling generative classification for the rest of the batch",
				"error", err)
		}
		return nil, err
	}
	if suggestion == nil {
		return nil, nil
	}

	return &model.Classification{
		CategoryID:    suggestion.CategoryID,
		CostCenterID:  suggestion.CostCenterID,
		Source:        model.SourceGenerative,
		AutoValidated: false,
	}, nil
}
