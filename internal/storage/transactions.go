package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
)

const dateLayout = "2006-01-02"

// fingerprintChunkSize keeps IN lists well under SQLite's bound parameter limit.
const fingerprintChunkSize = 500

const transactionColumns = `id, organization_id, account_id, batch_id, fingerprint, date,
	description, raw_description, amount, direction, validation_status,
	category_id, cost_center_id, classification_source, created_at`

// InsertTransaction stores a single transaction row.
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	if txn.ValidationStatus == "" {
		txn.ValidationStatus = model.StatusPendingValidation
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.OrganizationID, txn.AccountID, txn.BatchID, txn.Fingerprint,
		txn.Date.Format(dateLayout), txn.Description, txn.RawDescription,
		txn.Amount.StringFixed(2), string(txn.Direction), string(txn.ValidationStatus),
		nullString(txn.CategoryID), nullString(txn.CostCenterID),
		nullString(string(txn.ClassificationSource)), txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", txn.Fingerprint, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ExistingFingerprints returns the subset of fingerprints already stored for the account.
func (s *SQLiteStorage) ExistingFingerprints(ctx context.Context, accountID string, fingerprints []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for start := 0; start < len(fingerprints); start += fingerprintChunkSize {
		end := min(start+fingerprintChunkSize, len(fingerprints))
		chunk := fingerprints[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, accountID)
		for _, fp := range chunk {
			args = append(args, fp)
		}

		query := `SELECT fingerprint FROM transactions WHERE account_id = ? AND fingerprint IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`

		if err := func() error {
			rows, err := s.db.QueryContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to query fingerprints: %w", err)
			}
			defer func() { _ = rows.Close() }()

			for rows.Next() {
				var fp string
				if err := rows.Scan(&fp); err != nil {
					return fmt.Errorf("failed to scan fingerprint: %w", err)
				}
				existing[fp] = true
			}
			return rows.Err()
		}(); err != nil {
			return nil, err
		}
	}

	return existing, nil
}

// GetTransaction retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListBatchTransactions returns every row imported by a batch, oldest first.
func (s *SQLiteStorage) ListBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx, `SELECT `+transactionColumns+`
		FROM transactions WHERE batch_id = ? ORDER BY date, id`, batchID)
}

// ListPendingTransactions returns rows awaiting review. An empty batchID lists the whole organization.
func (s *SQLiteStorage) ListPendingTransactions(ctx context.Context, organizationID, batchID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(organizationID, "organizationID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE organization_id = ? AND validation_status = ?`
	args := []any{organizationID, string(model.StatusPendingValidation)}
	if batchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY date, id`

	return s.queryTransactions(ctx, query, args...)
}

// ApplyClassification stores a stage result. Rows already validated are left untouched.
func (s *SQLiteStorage) ApplyClassification(ctx context.Context, transactionID string, c model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, cost_center_id = ?, classification_source = ?, validation_status = ?
		WHERE id = ? AND validation_status = ?`,
		nullString(c.CategoryID), nullString(c.CostCenterID), string(c.Source), string(c.Status()),
		transactionID, string(model.StatusPendingValidation),
	)
	if err != nil {
		return fmt.Errorf("failed to apply classification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either missing or already validated; only the former is an error.
		if _, err := s.GetTransaction(ctx, transactionID); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmClassification records a final classification and marks the row validated.
func (s *SQLiteStorage) ConfirmClassification(ctx context.Context, transactionID string, c model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(c.CategoryID, "categoryID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, cost_center_id = ?, classification_source = ?, validation_status = ?
		WHERE id = ?`,
		c.CategoryID, nullString(c.CostCenterID), string(c.Source), string(model.StatusValidated),
		transactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm classification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                              model.Transaction
		date, direction, status          string
		categoryID, costCenterID, source sql.NullString
	)

	err := row.Scan(
		&txn.ID, &txn.OrganizationID, &txn.AccountID, &txn.BatchID, &txn.Fingerprint, &date,
		&txn.Description, &txn.RawDescription, &txn.Amount, &direction, &status,
		&categoryID, &costCenterID, &source, &txn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
	}

	txn.Date = parsed
	txn.Direction = model.Direction(direction)
	txn.ValidationStatus = model.ValidationStatus(status)
	txn.CategoryID = categoryID.String
	txn.CostCenterID = costCenterID.String
	txn.ClassificationSource = model.ClassificationSource(source.String)

	return &txn, nil
}
