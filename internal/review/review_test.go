package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/learner"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/normalize"
	"github.com/Veraticus/spice-ingest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan10 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*testutil.TestDB, *Service) {
	t.Helper()
	db := testutil.SetupTestDB(t).WithBasicTaxonomy()
	return db, NewService(db.Storage, learner.New(db.Storage))
}

func TestAccept(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	txn := db.InsertTransaction("batch-1", "UBER TRIP", "-27.90", jan10)
	require.NoError(t, db.Storage.ApplyClassification(ctx, txn.ID, model.Classification{
		CategoryID: db.CategoryID("Transporte"),
		Source:     model.SourceGenerative,
	}))

	got, err := svc.Accept(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, got.ValidationStatus)
	assert.Equal(t, model.SourceGenerative, got.ClassificationSource)

	stored, err := db.Storage.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, stored.ValidationStatus)
	assert.Equal(t, db.CategoryID("Transporte"), stored.CategoryID)

	pattern, err := db.Storage.GetPattern(ctx, testutil.DefaultOrganization, normalize.CanonicalKey("UBER TRIP"))
	require.NoError(t, err)
	assert.Equal(t, 1, pattern.OccurrenceCount)
	assert.Equal(t, db.CategoryID("Transporte"), pattern.CategoryID)

	pending, err := svc.ListPending(ctx, testutil.DefaultOrganization, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAccept_Errors(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	txn := db.InsertTransaction("batch-1", "LOJA CENTRAL", "-10.00", jan10)
	_, err := svc.Accept(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrNoSuggestion)

	_, err = svc.Assign(ctx, txn.ID, db.CategoryID("Mercado"), "")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrAlreadyValidated)

	_, err = svc.Accept(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAssign(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	txn := db.InsertTransaction("batch-1", "CEMIG DISTRIBUICAO", "-230.45", jan10)
	require.NoError(t, db.Storage.ApplyClassification(ctx, txn.ID, model.Classification{
		CategoryID: db.CategoryID("Mercado"),
		Source:     model.SourceGenerative,
	}))

	got, err := svc.Assign(ctx, txn.ID, db.CategoryID("Aluguel"), db.CostCenterID("Filial"))
	require.NoError(t, err)
	assert.Equal(t, model.SourceHuman, got.ClassificationSource)

	stored, err := db.Storage.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, db.CategoryID("Aluguel"), stored.CategoryID)
	assert.Equal(t, db.CostCenterID("Filial"), stored.CostCenterID)
	assert.Equal(t, model.StatusValidated, stored.ValidationStatus)

	pattern, err := db.Storage.GetPattern(ctx, testutil.DefaultOrganization, normalize.CanonicalKey("CEMIG DISTRIBUICAO"))
	require.NoError(t, err)
	assert.Equal(t, db.CategoryID("Aluguel"), pattern.CategoryID)
	assert.Equal(t, db.CostCenterID("Filial"), pattern.CostCenterID)
}

func TestAssign_Validation(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	debit := db.InsertTransaction("batch-1", "LOJA CENTRAL", "-10.00", jan10)

	tests := []struct {
		name       string
		wantErr    error
		category   string
		costCenter string
	}{
		{name: "unknown category", category: "cat-missing", wantErr: ErrUnknownCategory},
		{name: "income category on debit", category: db.CategoryID("Vendas"), wantErr: ErrIncompatibleCategory},
		{name: "unknown cost center", category: db.CategoryID("Mercado"), costCenter: "cc-missing", wantErr: ErrUnknownCostCenter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Assign(ctx, debit.ID, tt.category, tt.costCenter)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored, err := db.Storage.GetTransaction(ctx, debit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingValidation, stored.ValidationStatus)
}

type failingLearner struct{ calls int }

func (f *failingLearner) OnHumanConfirm(context.Context, model.Transaction, string, string) error {
	f.calls++
	return errors.New("pattern store offline")
}

func (f *failingLearner) OnHumanCorrect(context.Context, model.Transaction, string, string, string) error {
	f.calls++
	return errors.New("pattern store offline")
}

func TestAssign_LearnerFailureKeepsConfirmation(t *testing.T) {
	db := testutil.SetupTestDB(t).WithBasicTaxonomy()
	l := &failingLearner{}
	svc := NewService(db.Storage, l)

	txn := db.InsertTransaction("batch-1", "LOJA CENTRAL", "-10.00", jan10)
	_, err := svc.Assign(context.Background(), txn.ID, db.CategoryID("Mercado"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, l.calls)

	stored, err := db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, stored.ValidationStatus)
}

func TestAssign_LearnsEachTransactionOnce(t *testing.T) {
	tests := []struct {
		name           string
		autoValidated  *model.Classification
		assignments    []string
		wantCategory   string
		wantOccurrence int
		wantAgreement  int
		wantConfidence float64
	}{
		{
			name:           "same category repeated",
			assignments:    []string{"Mercado", "Mercado", "Mercado"},
			wantCategory:   "Mercado",
			wantOccurrence: 1,
			wantAgreement:  1,
			wantConfidence: 0.5,
		},
		{
			name:           "reassigned to another category",
			assignments:    []string{"Mercado", "Transporte"},
			wantCategory:   "Transporte",
			wantOccurrence: 1,
			wantAgreement:  1,
			wantConfidence: 0.5,
		},
		{
			name:           "reassigned back and forth",
			assignments:    []string{"Mercado", "Transporte", "Mercado", "Mercado"},
			wantCategory:   "Mercado",
			wantOccurrence: 1,
			wantAgreement:  1,
			wantConfidence: 0.5,
		},
		{
			name:           "rule match then assigned",
			autoValidated:  &model.Classification{Source: model.SourceRule, AutoValidated: true},
			assignments:    []string{"Mercado", "Mercado"},
			wantCategory:   "Mercado",
			wantOccurrence: 1,
			wantAgreement:  1,
			wantConfidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, svc := setup(t)
			ctx := context.Background()

			txn := db.InsertTransaction("batch-1", "SUPERMERCADO BH 0311", "-84.10", jan10)
			if tt.autoValidated != nil {
				c := *tt.autoValidated
				c.CategoryID = db.CategoryID("Transporte")
				require.NoError(t, db.Storage.ApplyClassification(ctx, txn.ID, c))
			}

			for _, category := range tt.assignments {
				_, err := svc.Assign(ctx, txn.ID, db.CategoryID(category), "")
				require.NoError(t, err)
			}

			pattern, err := db.Storage.GetPattern(ctx, testutil.DefaultOrganization, normalize.CanonicalKey(txn.Description))
			require.NoError(t, err)
			assert.Equal(t, db.CategoryID(tt.wantCategory), pattern.CategoryID)
			assert.Equal(t, tt.wantOccurrence, pattern.OccurrenceCount)
			assert.Equal(t, tt.wantAgreement, pattern.AgreementCount)
			assert.InDelta(t, tt.wantConfidence, pattern.Confidence, 1e-9)
		})
	}
}

func TestListPending_ByBatch(t *testing.T) {
	db, svc := setup(t)
	db.InsertTransaction("batch-1", "LOJA A", "-10.00", jan10)
	db.InsertTransaction("batch-2", "LOJA B", "-11.00", jan10)

	pending, err := svc.ListPending(context.Background(), testutil.DefaultOrganization, "batch-2")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "LOJA B", pending[0].Description)
}
