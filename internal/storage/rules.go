package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/google/uuid"
)

const ruleColumns = `id, organization_id, description_match, amount, due_day, type,
	category_id, cost_center_id, is_active, created_at, updated_at`

// CreateRule creates a new reconciliation rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.ReconciliationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OrganizationID, rule.DescriptionMatch, rule.Amount.StringFixed(2),
		dueDayValue(rule.DueDay), string(rule.Type), rule.CategoryID, nullString(rule.CostCenterID),
		rule.IsActive, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s: %w", rule.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create reconciliation rule: %w", err)
	}
	return nil
}

// GetRule retrieves a reconciliation rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.ReconciliationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM reconciliation_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	return rule, err
}

// ListRules returns the rules of an organization.
func (s *SQLiteStorage) ListRules(ctx context.Context, organizationID string, activeOnly bool) ([]model.ReconciliationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM reconciliation_rules WHERE organization_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.ReconciliationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces every mutable field of an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.ReconciliationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := validateString(rule.ID, "id"); err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_rules
		SET description_match = ?, amount = ?, due_day = ?, type = ?, category_id = ?,
			cost_center_id = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?`,
		rule.DescriptionMatch, rule.Amount.StringFixed(2), dueDayValue(rule.DueDay), string(rule.Type),
		rule.CategoryID, nullString(rule.CostCenterID), rule.IsActive, rule.UpdatedAt,
		rule.ID, rule.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation rule: %w", err)
	}
	return requireRow(result, "rule", rule.ID)
}

// DeleteRule removes a reconciliation rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM reconciliation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reconciliation rule: %w", err)
	}
	return requireRow(result, "rule", id)
}

func dueDayValue(day *int) sql.NullInt64 {
	if day == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*day), Valid: true}
}

func scanRule(row rowScanner) (*model.ReconciliationRule, error) {
	var (
		rule         model.ReconciliationRule
		ruleType     string
		dueDay       sql.NullInt64
		costCenterID sql.NullString
	)

	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.DescriptionMatch, &rule.Amount, &dueDay, &ruleType,
		&rule.CategoryID, &costCenterID, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan reconciliation rule: %w", err)
	}

	rule.Type = model.Direction(ruleType)
	rule.CostCenterID = costCenterID.String
	if dueDay.Valid {
		day := int(dueDay.Int64)
		rule.DueDay = &day
	}

	return &rule, nil
}
