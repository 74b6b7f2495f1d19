package model

import (
	"strings"
	"time"
)

// CategoryType indicates whether a category is for income or expense.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for credit transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for debit transactions.
	CategoryTypeExpense CategoryType = "expense"
)

// Accepts reports whether transactions with the given direction may use this category type.
func (t CategoryType) Accepts(d Direction) bool {
	switch t {
	case CategoryTypeIncome:
		return d == DirectionCredit
	case CategoryTypeExpense:
		return d == DirectionDebit
	default:
		return true
	}
}

// Category is a node of an organization's classification taxonomy.
type Category struct {
	CreatedAt      time.Time
	ID             string
	OrganizationID string
	Name           string
	Type           CategoryType
	IsActive       bool
}

// CostCenter is the second axis of the taxonomy.
type CostCenter struct {
	CreatedAt      time.Time
	ID             string
	OrganizationID string
	Name           string
	IsActive       bool
}

// Taxonomy bundles the active categories and cost centers of one organization.
type Taxonomy struct {
	Categories  []Category
	CostCenters []CostCenter
}

// FindCategory looks up a category by id.
func (t *Taxonomy) FindCategory(id string) (Category, bool) {
	for _, c := range t.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// FindCostCenter looks up a cost center by id.
func (t *Taxonomy) FindCostCenter(id string) (CostCenter, bool) {
	for _, c := range t.CostCenters {
		if c.ID == id {
			return c, true
		}
	}
	return CostCenter{}, false
}

// CategoryByName looks up a category by case-insensitive name.
func (t *Taxonomy) CategoryByName(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range t.Categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

// CostCenterByName looks up a cost center by case-insensitive name.
func (t *Taxonomy) CostCenterByName(name string) (CostCenter, bool) {
	name = strings.TrimSpace(name)
	for _, c := range t.CostCenters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return CostCenter{}, false
}

// CategoriesFor returns the categories usable for the given direction.
func (t *Taxonomy) CategoriesFor(d Direction) []Category {
	var out []Category
	for _, c := range t.Categories {
		if c.Type.Accepts(d) {
			out = append(out, c)
		}
	}
	return out
}
