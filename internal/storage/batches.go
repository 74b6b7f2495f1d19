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

const batchColumns = `id, organization_id, account_id, format, file_name, file_size, status,
	error_message, total_count, imported_count, duplicate_count, error_count, classified_count,
	period_start, period_end, created_at, updated_at`

// CreateBatch inserts a new import batch in the pending state.
func (s *SQLiteStorage) CreateBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch); err != nil {
		return err
	}

	now := time.Now().UTC()
	if batch.Status == "" {
		batch.Status = model.BatchPending
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (id, organization_id, account_id, format, file_name, file_size, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.OrganizationID, batch.AccountID, string(batch.Format),
		nullString(batch.FileName), batch.FileSize, string(batch.Status), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("batch %s: %w", batch.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (s *SQLiteStorage) GetBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	return batch, err
}

// ListBatches returns the most recent batches. An empty organizationID lists every organization.
func (s *SQLiteStorage) ListBatches(ctx context.Context, organizationID string, limit int) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + batchColumns + ` FROM import_batches`
	var args []any
	if organizationID != "" {
		query += ` WHERE organization_id = ?`
		args = append(args, organizationID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

// UpdateBatchStatus performs a conditional status write. Repeating a write that
// already happened is a no-op, so callers may retry freely.
func (s *SQLiteStorage) UpdateBatchStatus(ctx context.Context, id string, from, to model.BatchStatus, errorMessage string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_batches SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), nullString(errorMessage), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM import_batches WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read batch status: %w", err)
	}
	if model.BatchStatus(current) == to {
		return nil
	}
	return fmt.Errorf("%w: batch %s is %s, not %s", common.ErrInvalidTransition, id, current, from)
}

// UpdateBatchCounts stores the import counters and statement period.
func (s *SQLiteStorage) UpdateBatchCounts(ctx context.Context, id string, counts model.BatchCounts) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET total_count = ?, imported_count = ?, duplicate_count = ?, error_count = ?,
			period_start = ?, period_end = ?, updated_at = ?
		WHERE id = ?`,
		counts.Total, counts.Imported, counts.Duplicates, counts.Errors,
		formatOptionalDate(counts.PeriodStart), formatOptionalDate(counts.PeriodEnd),
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch counts: %w", err)
	}
	return requireRow(result, "batch", id)
}

// UpdateBatchClassified stores how many rows the cascade classified.
func (s *SQLiteStorage) UpdateBatchClassified(ctx context.Context, id string, classified int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_batches SET classified_count = ?, updated_at = ? WHERE id = ?`,
		classified, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update classified count: %w", err)
	}
	return requireRow(result, "batch", id)
}

func requireRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return nil
}

func formatOptionalDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseOptionalDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", s.String, err)
	}
	return &t, nil
}

func scanBatch(row rowScanner) (*model.ImportBatch, error) {
	var (
		batch                  model.ImportBatch
		format, status         string
		fileName, errorMessage sql.NullString
		periodStart, periodEnd sql.NullString
	)

	err := row.Scan(
		&batch.ID, &batch.OrganizationID, &batch.AccountID, &format, &fileName, &batch.FileSize, &status,
		&errorMessage, &batch.TotalCount, &batch.ImportedCount, &batch.DuplicateCount, &batch.ErrorCount,
		&batch.ClassifiedCount, &periodStart, &periodEnd, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	batch.Format = model.Format(format)
	batch.Status = model.BatchStatus(status)
	batch.FileName = fileName.String
	batch.ErrorMessage = errorMessage.String

	if batch.PeriodStart, err = parseOptionalDate(periodStart); err != nil {
		return nil, err
	}
	if batch.PeriodEnd, err = parseOptionalDate(periodEnd); err != nil {
		return nil, err
	}

	return &batch, nil
}
