package rules

import (
	"testing"
	"time"

	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func rule(id, match, amount string, dir model.Direction, dueDay *int) model.ReconciliationRule {
	return model.ReconciliationRule{
		ID:               id,
		OrganizationID:   "org-1",
		DescriptionMatch: match,
		Amount:           decimal.RequireFromString(amount),
		Type:             dir,
		DueDay:           dueDay,
		CategoryID:       "cat-" + id,
		IsActive:         true,
	}
}

func txn(desc, amount string, dir model.Direction, date time.Time) model.Transaction {
	return model.Transaction{
		Date:           date,
		Description:    desc,
		RawDescription: desc,
		Amount:         decimal.RequireFromString(amount),
		Direction:      dir,
	}
}

var jan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher([]model.ReconciliationRule{
		rule("r-rent", "Aluguel Sala", "1500.00", model.DirectionDebit, nil),
		rule("r-energy", "CEMIG", "230.45", model.DirectionDebit, nil),
	})

	tests := []struct {
		name   string
		want   string
		txn    model.Transaction
		wantOK bool
	}{
		{name: "substring of canonical key", txn: txn("PAGAMENTO DE BOLETO - CEMIG DISTRIBUICAO", "230.45", model.DirectionDebit, jan15), want: "r-energy", wantOK: true},
		{name: "accents and case ignored", txn: txn("PIX ENVIADO ALUGUÉL SALA 101", "1500", model.DirectionDebit, jan15), want: "r-rent", wantOK: true},
		{name: "amount must be equal", txn: txn("CEMIG", "230.46", model.DirectionDebit, jan15)},
		{name: "direction must agree", txn: txn("CEMIG", "230.45", model.DirectionCredit, jan15)},
		{name: "whole words only", txn: txn("CEMIGAS", "230.45", model.DirectionDebit, jan15)},
		{name: "no rule", txn: txn("UBER TRIP", "12.00", model.DirectionDebit, jan15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.txn)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.ID)
			}
		})
	}
}

func TestMatcher_SkipsInactiveAndEmpty(t *testing.T) {
	inactive := rule("r1", "CEMIG", "10", model.DirectionDebit, nil)
	inactive.IsActive = false
	empty := rule("r2", "  ", "10", model.DirectionDebit, nil)

	m := NewMatcher([]model.ReconciliationRule{inactive, empty})
	assert.Zero(t, m.Len())

	_, ok := m.Match(txn("CEMIG", "10", model.DirectionDebit, jan15))
	assert.False(t, ok)
}

func TestMatcher_Specificity(t *testing.T) {
	t.Run("due day beats no due day", func(t *testing.T) {
		m := NewMatcher([]model.ReconciliationRule{
			rule("a", "ACME SERVICOS LTDA", "99.90", model.DirectionDebit, nil),
			rule("b", "ACME", "99.90", model.DirectionDebit, intPtr(15)),
		})
		got, ok := m.Match(txn("ACME SERVICOS LTDA", "99.90", model.DirectionDebit, jan15))
		require.True(t, ok)
		assert.Equal(t, "b", got.ID)
	})

	t.Run("longer match beats shorter", func(t *testing.T) {
		m := NewMatcher([]model.ReconciliationRule{
			rule("a", "ACME", "99.90", model.DirectionDebit, nil),
			rule("b", "ACME SERVICOS", "99.90", model.DirectionDebit, nil),
		})
		got, ok := m.Match(txn("ACME SERVICOS LTDA", "99.90", model.DirectionDebit, jan15))
		require.True(t, ok)
		assert.Equal(t, "b", got.ID)
	})

	t.Run("lower id breaks ties", func(t *testing.T) {
		m := NewMatcher([]model.ReconciliationRule{
			rule("z", "ACME", "99.90", model.DirectionDebit, nil),
			rule("m", "ACME", "99.90", model.DirectionDebit, nil),
		})
		got, ok := m.Match(txn("ACME", "99.90", model.DirectionDebit, jan15))
		require.True(t, ok)
		assert.Equal(t, "m", got.ID)
	})
}

func TestMatcher_StopwordOnlyRule(t *testing.T) {
	m := NewMatcher([]model.ReconciliationRule{rule("r", "PIX TED", "1.00", model.DirectionDebit, nil)})
	require.Equal(t, 1, m.Len())
	assert.Empty(t, m.rules[0].key)

	_, ok := m.Match(txn("TARIFA PIX TED MENSAL", "1.00", model.DirectionDebit, jan15))
	assert.True(t, ok)

	_, ok = m.Match(txn("TARIFA PIX MENSAL", "1.00", model.DirectionDebit, jan15))
	assert.False(t, ok)
}

func TestMatchesDueDay(t *testing.T) {
	tests := []struct {
		name   string
		date   time.Time
		dueDay int
		want   bool
	}{
		{name: "exact", dueDay: 10, date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), want: true},
		{name: "different day", dueDay: 10, date: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), want: false},
		{name: "31 in february leap year", dueDay: 31, date: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), want: true},
		{name: "31 in february", dueDay: 31, date: time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), want: true},
		{name: "30 in april", dueDay: 31, date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), want: true},
		{name: "31 not matched on 30th of long month", dueDay: 31, date: time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesDueDay(tt.dueDay, tt.date))
		})
	}
}
