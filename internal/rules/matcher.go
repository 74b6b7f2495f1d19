// Package rules evaluates operator-defined reconciliation rules against transactions.
package rules

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
)

// compiledRule caches the normalized match text of a rule.
type compiledRule struct {
	key    string // canonical form, word-bounded
	folded string // fallback when the match text is only noise words
	rule   model.ReconciliationRule
}

// Matcher evaluates a fixed rule set. It is safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a matcher over the active rules, most specific first:
// rules pinned to a due day, then longer match text, then lower id.
func NewMatcher(rules []model.ReconciliationRule) *Matcher {
	m := &Matcher{}
	for _, r := range rules {
		if !r.IsActive || strings.TrimSpace(r.DescriptionMatch) == "" {
			continue
		}
		m.rules = append(m.rules, compiledRule{
			rule:   r,
			key:    normalize.CanonicalKey(r.DescriptionMatch),
			folded: strings.Join(strings.Fields(normalize.Fold(r.DescriptionMatch)), " "),
		})
	}

	slices.SortStableFunc(m.rules, func(a, b compiledRule) int {
		if (a.rule.DueDay != nil) != (b.rule.DueDay != nil) {
			if a.rule.DueDay != nil {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(len(b.matchText()), len(a.matchText())); c != 0 {
			return c
		}
		return cmp.Compare(a.rule.ID, b.rule.ID)
	})

	return m
}

// Len returns the number of active rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match returns the most specific rule matching the transaction.
func (m *Matcher) Match(txn model.Transaction) (model.ReconciliationRule, bool) {
	key := " " + normalize.CanonicalKey(txn.Description) + " "
	folded := " " + strings.Join(strings.Fields(normalize.Fold(txn.Description)), " ") + " "

	for _, cr := range m.rules {
		if cr.matches(txn, key, folded) {
			return cr.rule, true
		}
	}
	return model.ReconciliationRule{}, false
}

func (cr compiledRule) matchText() string {
	if cr.key != "" {
		return cr.key
	}
	return cr.folded
}

func (cr compiledRule) matches(txn model.Transaction, key, folded string) bool {
	if cr.rule.Type != txn.Direction {
		return false
	}

	if !cr.rule.Amount.Abs().Round(2).Equal(txn.Amount.Abs().Round(2)) {
		return false
	}

	if cr.rule.DueDay != nil && !MatchesDueDay(*cr.rule.DueDay, txn.Date) {
		return false
	}

	if cr.key != "" {
		return strings.Contains(key, " "+cr.key+" ")
	}
	return strings.Contains(folded, " "+cr.folded+" ")
}

// MatchesDueDay reports whether date falls on dueDay, treating a due day
// beyond the end of the month as its last day.
func MatchesDueDay(dueDay int, date time.Time) bool {
	last := time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return date.Day() == min(dueDay, last)
}
