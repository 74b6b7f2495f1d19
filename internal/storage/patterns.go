package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
)

const patternColumns = `organization_id, canonical_key, category_id, cost_center_id, occurrence_count,
	agreement_count, avg_amount, confidence, last_used_at, version`

// GetPattern retrieves the learned pattern for a canonical key.
func (s *SQLiteStorage) GetPattern(ctx context.Context, organizationID, canonicalKey string) (*model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}
	if err := validateString(canonicalKey, "canonicalKey"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+`
		FROM learned_patterns WHERE organization_id = ? AND canonical_key = ?`,
		organizationID, canonicalKey)
	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %q: %w", canonicalKey, common.ErrNotFound)
	}
	return pattern, err
}

// UpsertPattern applies fn to the stored pattern inside one transaction.
// A write that loses a concurrent race returns common.ErrVersionConflict.
func (s *SQLiteStorage) UpsertPattern(ctx context.Context, organizationID, canonicalKey string, fn func(*model.LearnedPattern) error) (*model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}
	if err := validateString(canonicalKey, "canonicalKey"); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: fn", ErrNilParameter)
	}

	var stored *model.LearnedPattern
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+patternColumns+`
			FROM learned_patterns WHERE organization_id = ? AND canonical_key = ?`,
			organizationID, canonicalKey)

		pattern, err := scanPattern(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			pattern = &model.LearnedPattern{OrganizationID: organizationID, CanonicalKey: canonicalKey}
		case err != nil:
			return err
		}

		previousVersion := pattern.Version
		if err := fn(pattern); err != nil {
			return err
		}
		if err := validateString(pattern.CategoryID, "categoryID"); err != nil {
			return err
		}

		pattern.OrganizationID = organizationID
		pattern.CanonicalKey = canonicalKey
		pattern.Version = previousVersion + 1
		if pattern.LastUsedAt.IsZero() {
			pattern.LastUsedAt = time.Now().UTC()
		}

		if previousVersion == 0 {
			_, err = tx.ExecContext(ctx, `INSERT INTO learned_patterns (`+patternColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pattern.OrganizationID, pattern.CanonicalKey, pattern.CategoryID, nullString(pattern.CostCenterID),
				pattern.OccurrenceCount, pattern.AgreementCount, pattern.AvgAmount.String(),
				pattern.Confidence, pattern.LastUsedAt, pattern.Version,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("pattern %q: %w", canonicalKey, common.ErrVersionConflict)
				}
				return fmt.Errorf("failed to insert pattern: %w", err)
			}
		} else {
			result, err := tx.ExecContext(ctx, `
				UPDATE learned_patterns
				SET category_id = ?, cost_center_id = ?, occurrence_count = ?, agreement_count = ?,
					avg_amount = ?, confidence = ?, last_used_at = ?, version = ?
				WHERE organization_id = ? AND canonical_key = ? AND version = ?`,
				pattern.CategoryID, nullString(pattern.CostCenterID), pattern.OccurrenceCount,
				pattern.AgreementCount, pattern.AvgAmount.String(), pattern.Confidence,
				pattern.LastUsedAt, pattern.Version,
				organizationID, canonicalKey, previousVersion,
			)
			if err != nil {
				return fmt.Errorf("failed to update pattern: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("pattern %q: %w", canonicalKey, common.ErrVersionConflict)
			}
		}

		stored = pattern
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListPatterns returns an organization's patterns, most confident first.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, organizationID string) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+`
		FROM learned_patterns WHERE organization_id = ?
		ORDER BY confidence DESC, occurrence_count DESC, canonical_key`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.LearnedPattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *pattern)
	}
	return patterns, rows.Err()
}

// DeletePattern removes a pattern. This is the only way a pattern's history is discarded.
func (s *SQLiteStorage) DeletePattern(ctx context.Context, organizationID, canonicalKey string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM learned_patterns WHERE organization_id = ? AND canonical_key = ?`,
		organizationID, canonicalKey)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	return requireRow(result, "pattern", canonicalKey)
}

func scanPattern(row rowScanner) (*model.LearnedPattern, error) {
	var (
		pattern      model.LearnedPattern
		costCenterID sql.NullString
	)

	err := row.Scan(
		&pattern.OrganizationID, &pattern.CanonicalKey, &pattern.CategoryID, &costCenterID,
		&pattern.OccurrenceCount, &pattern.AgreementCount, &pattern.AvgAmount, &pattern.Confidence,
		&pattern.LastUsedAt, &pattern.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pattern: %w", err)
	}

	pattern.CostCenterID = costCenterID.String
	return &pattern, nil
}
