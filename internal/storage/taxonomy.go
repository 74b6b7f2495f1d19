package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/google/uuid"
)

// CreateCategory adds a category to an organization's taxonomy.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.OrganizationID, "organizationID"); err != nil {
		return err
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}
	if category.Type != model.CategoryTypeIncome && category.Type != model.CategoryTypeExpense {
		return fmt.Errorf("%w: type must be income or expense", ErrInvalidCategory)
	}

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, organization_id, name, type, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		category.ID, category.OrganizationID, category.Name, string(category.Type),
		category.IsActive, category.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", category.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// CreateCostCenter adds a cost center to an organization's taxonomy.
func (s *SQLiteStorage) CreateCostCenter(ctx context.Context, costCenter *model.CostCenter) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if costCenter == nil {
		return fmt.Errorf("%w: cost center", ErrNilParameter)
	}
	if err := validateString(costCenter.OrganizationID, "organizationID"); err != nil {
		return err
	}
	if err := validateString(costCenter.Name, "name"); err != nil {
		return err
	}

	if costCenter.ID == "" {
		costCenter.ID = uuid.NewString()
	}
	costCenter.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_centers (id, organization_id, name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		costCenter.ID, costCenter.OrganizationID, costCenter.Name, costCenter.IsActive, costCenter.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cost center %q: %w", costCenter.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create cost center: %w", err)
	}
	return nil
}

// GetTaxonomy returns the active categories and cost centers of an organization.
func (s *SQLiteStorage) GetTaxonomy(ctx context.Context, organizationID string) (*model.Taxonomy, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}

	taxonomy := &model.Taxonomy{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, type, is_active, created_at
		FROM categories WHERE organization_id = ? AND is_active = 1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	for rows.Next() {
		var (
			c       model.Category
			catType string
		)
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &catType, &c.IsActive, &c.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Type = model.CategoryType(catType)
		taxonomy.Categories = append(taxonomy.Categories, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, is_active, created_at
		FROM cost_centers WHERE organization_id = ? AND is_active = 1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost centers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cc model.CostCenter
		if err := rows.Scan(&cc.ID, &cc.OrganizationID, &cc.Name, &cc.IsActive, &cc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cost center: %w", err)
		}
		taxonomy.CostCenters = append(taxonomy.CostCenters, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost centers: %w", err)
	}

	return taxonomy, nil
}
