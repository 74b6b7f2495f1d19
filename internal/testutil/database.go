// Package testutil provides test helpers shared by the pipeline packages.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-ingest/internal/dedup"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultOrganization is the organization used by SeedTaxonomy.
const DefaultOrganization = "org-test"

// TestDB is a migrated in-memory database with an optional seeded taxonomy.
type TestDB struct {
	Storage     *storage.SQLiteStorage
	t           *testing.T
	categories  map[string]model.Category
	costCenters map[string]model.CostCenter
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t).
//		WithCategory("Mercado", model.CategoryTypeExpense).
//		WithCostCenter("Matriz")
//	id := db.CategoryID("Mercado")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage:     store,
		t:           t,
		categories:  make(map[string]model.Category),
		costCenters: make(map[string]model.CostCenter),
	}
}

// WithCategory seeds an active category in DefaultOrganization.
func (db *TestDB) WithCategory(name string, categoryType model.CategoryType) *TestDB {
	db.t.Helper()

	category := model.Category{
		OrganizationID: DefaultOrganization,
		Name:           name,
		Type:           categoryType,
		IsActive:       true,
	}
	if err := db.Storage.CreateCategory(context.Background(), &category); err != nil {
		db.t.Fatalf("failed to seed category %q: %v", name, err)
	}
	db.categories[name] = category
	return db
}

// WithCostCenter seeds an active cost center in DefaultOrganization.
func (db *TestDB) WithCostCenter(name string) *TestDB {
	db.t.Helper()

	costCenter := model.CostCenter{
		OrganizationID: DefaultOrganization,
		Name:           name,
		IsActive:       true,
	}
	if err := db.Storage.CreateCostCenter(context.Background(), &costCenter); err != nil {
		db.t.Fatalf("failed to seed cost center %q: %v", name, err)
	}
	db.costCenters[name] = costCenter
	return db
}

// WithBasicTaxonomy seeds a small income/expense taxonomy used across tests.
func (db *TestDB) WithBasicTaxonomy() *TestDB {
	return db.
		WithCategory("Mercado", model.CategoryTypeExpense).
		WithCategory("Aluguel", model.CategoryTypeExpense).
		WithCategory("Transporte", model.CategoryTypeExpense).
		WithCategory("Vendas", model.CategoryTypeIncome).
		WithCostCenter("Matriz").
		WithCostCenter("Filial")
}

// CategoryID returns the id of a seeded category or fails the test.
func (db *TestDB) CategoryID(name string) string {
	db.t.Helper()
	category, ok := db.categories[name]
	if !ok {
		db.t.Fatalf("category %q was not seeded", name)
	}
	return category.ID
}

// CostCenterID returns the id of a seeded cost center or fails the test.
func (db *TestDB) CostCenterID(name string) string {
	db.t.Helper()
	costCenter, ok := db.costCenters[name]
	if !ok {
		db.t.Fatalf("cost center %q was not seeded", name)
	}
	return costCenter.ID
}

// DefaultAccount is the account used by InsertTransaction.
const DefaultAccount = "acc-test"

// InsertTransaction stores a pending transaction in DefaultOrganization and
// DefaultAccount. A negative amount is a debit.
func (db *TestDB) InsertTransaction(batchID, description, amount string, date time.Time) model.Transaction {
	db.t.Helper()

	signed := decimal.RequireFromString(amount)
	candidate := model.Candidate{
		Date:           date,
		Description:    description,
		RawDescription: description,
		Amount:         signed.Abs(),
		Direction:      model.DirectionFromSign(signed),
	}

	txn := model.Transaction{
		ID:               uuid.NewString(),
		OrganizationID:   DefaultOrganization,
		AccountID:        DefaultAccount,
		BatchID:          batchID,
		Fingerprint:      dedup.Fingerprint(DefaultAccount, candidate),
		Date:             candidate.Date,
		Description:      candidate.Description,
		RawDescription:   candidate.RawDescription,
		Amount:           candidate.Amount,
		Direction:        candidate.Direction,
		ValidationStatus: model.StatusPendingValidation,
	}
	if err := db.Storage.InsertTransaction(context.Background(), &txn); err != nil {
		db.t.Fatalf("failed to seed transaction %q: %v", description, err)
	}
	return txn
}

// WithRule seeds an active reconciliation rule for a seeded category.
func (db *TestDB) WithRule(match, amount string, direction model.Direction, categoryName string, dueDay *int) model.ReconciliationRule {
	db.t.Helper()

	rule := model.ReconciliationRule{
		OrganizationID:   DefaultOrganization,
		DescriptionMatch: match,
		Amount:           decimal.RequireFromString(amount),
		DueDay:           dueDay,
		Type:             direction,
		CategoryID:       db.CategoryID(categoryName),
		IsActive:         true,
	}
	if err := db.Storage.CreateRule(context.Background(), &rule); err != nil {
		db.t.Fatalf("failed to seed rule %q: %v", match, err)
	}
	return rule
}

// WithPattern seeds a learned pattern with explicit statistics.
func (db *TestDB) WithPattern(key, categoryName string, occurrences int, confidence float64) *TestDB {
	db.t.Helper()

	categoryID := db.CategoryID(categoryName)
	_, err := db.Storage.UpsertPattern(context.Background(), DefaultOrganization, key, func(p *model.LearnedPattern) error {
		p.CategoryID = categoryID
		p.OccurrenceCount = occurrences
		p.AgreementCount = occurrences
		p.Confidence = confidence
		p.LastUsedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		db.t.Fatalf("failed to seed pattern %q: %v", key, err)
	}
	return db
}
