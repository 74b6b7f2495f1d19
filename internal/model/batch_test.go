package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from BatchStatus
		to   BatchStatus
		want bool
	}{
		{BatchPending, BatchProcessing, true},
		{BatchProcessing, BatchAwaitingValidation, true},
		{BatchProcessing, BatchFailed, true},
		{BatchPending, BatchAwaitingValidation, false},
		{BatchPending, BatchFailed, false},
		{BatchAwaitingValidation, BatchFailed, false},
		{BatchAwaitingValidation, BatchProcessing, false},
		{BatchFailed, BatchProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBatchStatus_IsTerminal(t *testing.T) {
	assert.False(t, BatchPending.IsTerminal())
	assert.False(t, BatchProcessing.IsTerminal())
	assert.True(t, BatchAwaitingValidation.IsTerminal())
	assert.True(t, BatchFailed.IsTerminal())
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "ofx", want: FormatLedger},
		{input: ".QFX", want: FormatLedger},
		{input: "csv", want: FormatDelimited},
		{input: "delimited", want: FormatDelimited},
		{input: "jpeg", want: FormatImage},
		{input: ".pdf", want: FormatImage},
		{input: "xlsx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidate_SignedAmount(t *testing.T) {
	debit := Candidate{Amount: decimal.RequireFromString("45.90"), Direction: DirectionDebit}
	credit := Candidate{Amount: decimal.RequireFromString("10"), Direction: DirectionCredit}

	assert.Equal(t, "-45.90", debit.SignedAmount().StringFixed(2))
	assert.Equal(t, "10.00", credit.SignedAmount().StringFixed(2))
	assert.Equal(t, DirectionDebit, DirectionFromSign(decimal.RequireFromString("-0.01")))
	assert.Equal(t, DirectionCredit, DirectionFromSign(decimal.Zero))
}

func TestCategoryType_Accepts(t *testing.T) {
	assert.True(t, CategoryTypeIncome.Accepts(DirectionCredit))
	assert.False(t, CategoryTypeIncome.Accepts(DirectionDebit))
	assert.True(t, CategoryTypeExpense.Accepts(DirectionDebit))
	assert.False(t, CategoryTypeExpense.Accepts(DirectionCredit))
}

func TestTaxonomy_Lookups(t *testing.T) {
	tax := &Taxonomy{
		Categories: []Category{
			{ID: "c1", Name: "Mercado", Type: CategoryTypeExpense},
			{ID: "c2", Name: "Vendas", Type: CategoryTypeIncome},
		},
		CostCenters: []CostCenter{{ID: "cc1", Name: "Matriz"}},
	}

	cat, ok := tax.CategoryByName(" mercado ")
	require.True(t, ok)
	assert.Equal(t, "c1", cat.ID)

	_, ok = tax.CategoryByName("Aluguel")
	assert.False(t, ok)

	cc, ok := tax.CostCenterByName("MATRIZ")
	require.True(t, ok)
	assert.Equal(t, "cc1", cc.ID)

	debits := tax.CategoriesFor(DirectionDebit)
	require.Len(t, debits, 1)
	assert.Equal(t, "Mercado", debits[0].Name)
}
