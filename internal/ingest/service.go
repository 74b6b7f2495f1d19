// Package ingest orchestrates statement imports: it drives each upload
// through parsing, deduplication, persistence and classification while
// keeping the import batch state machine consistent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/blob"
	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/dedup"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/Veraticus/spice-ingest/internal/model"
	"github.com/Veraticus/spice-ingest/internal/service"
	"github.com/google/uuid"
)

// Default limits.
const (
	DefaultMaxPayloadBytes = 20 << 20
	DefaultClassifyTimeout = 2 * time.Minute
)

// Store is the persistence the orchestrator needs.
type Store interface {
	service.BatchStore
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	ExistingFingerprints(ctx context.Context, accountID string, fingerprints []string) (map[string]bool, error)
	ListPendingTransactions(ctx context.Context, organizationID, batchID string) ([]model.Transaction, error)
}

// Classifier classifies freshly imported transactions.
type Classifier interface {
	ClassifyBatch(ctx context.Context, organizationID string, txns []model.Transaction) (engine.Summary, error)
}

// Config holds configuration options for the orchestrator.
type Config struct {
	// MaxPayloadBytes caps statements whose parser sets no ceiling of its own.
	MaxPayloadBytes int64
	// ClassifyTimeout bounds the classification step of one import.
	ClassifyTimeout time.Duration
	// SkipClassification leaves every imported row unclassified.
	SkipClassification bool
	Retry              service.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		ClassifyTimeout: DefaultClassifyTimeout,
		Retry:           service.DefaultRetryOptions(),
	}
}

// ImportRequest is one statement upload. Exactly one of Data and BlobPath is set.
type ImportRequest struct {
	// ID makes submission idempotent; a new id is generated when empty.
	ID             string
	OrganizationID string
	AccountID      string
	FileName       string
	BlobPath       string
	Format         model.Format
	Data           []byte
}

// ImportResult reports the outcome of SubmitImport.
type ImportResult struct {
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	BatchID       string
	Status        model.BatchStatus
	Imported      int
	Duplicates    int
	Errors        int
	Classified    int
	AutoValidated int
	// Replayed is set when the request id named an existing batch.
	Replayed bool
}

// Service runs imports.
type Service struct {
	store      Store
	parsers    *Registry
	blobs      blob.Store
	classifier Classifier
	dedup      *dedup.Deduplicator
	config     Config
}

// NewService creates an orchestrator. blobs and classifier may be nil.
func NewService(store Store, parsers *Registry, blobs blob.Store, classifier Classifier, config Config) *Service {
	if config.MaxPayloadBytes <= 0 {
		config.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if config.ClassifyTimeout <= 0 {
		config.ClassifyTimeout = DefaultClassifyTimeout
	}
	return &Service{
		store:      store,
		parsers:    parsers,
		blobs:      blobs,
		classifier: classifier,
		dedup:      dedup.New(store),
		config:     config,
	}
}

func validateRequest(req ImportRequest) error {
	var missing []string
	if strings.TrimSpace(req.OrganizationID) == "" {
		missing = append(missing, "organization")
	}
	if strings.TrimSpace(req.AccountID) == "" {
		missing = append(missing, "account")
	}
	if req.Format == "" {
		missing = append(missing, "format")
	}
	if len(missing) > 0 {
		return common.NewUserError("import request is incomplete",
			fmt.Errorf("%w: missing %s", common.ErrMissingConfig, strings.Join(missing, ", ")))
	}
	if len(req.Data) > 0 && req.BlobPath != "" {
		return common.NewUserError("import request is ambiguous",
			fmt.Errorf("%w: both inline data and blob path given", common.ErrInvalidConfig))
	}
	return nil
}

// SubmitImport processes one upload to completion. The returned result
// always names the batch once it exists; a batch that ends up failed is
// reported through both the result status and the error.
func (s *Service) SubmitImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if err := validateRequest(req); err != nil {
		return ImportResult{}, err
	}

	batch := &model.ImportBatch{
		ID:             req.ID,
		OrganizationID: req.OrganizationID,
		AccountID:      req.AccountID,
		Format:         req.Format,
		FileName:       req.FileName,
		FileSize:       int64(len(req.Data)),
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.FileName == "" && req.BlobPath != "" {
		batch.FileName = req.BlobPath
	}

	if err := s.store.CreateBatch(ctx, batch); err != nil {
		if req.ID != "" && errors.Is(err, common.ErrDuplicateEntry) {
			return s.replay(ctx, req.ID)
		}
		return ImportResult{}, fmt.Errorf("failed to create batch: %w", err)
	}

	result := ImportResult{BatchID: batch.ID, Status: model.BatchPending}
	if err := s.transition(ctx, batch.ID, model.BatchPending, model.BatchProcessing, ""); err != nil {
		return result, err
	}
	result.Status = model.BatchProcessing

	slog.InfoContext(ctx, "Processing import",
		"batch_id", batch.ID,
		"organization_id", batch.OrganizationID,
		"account_id", batch.AccountID,
		"format", batch.Format,
		"file", batch.FileName)

	inserted, err := s.process(ctx, req, batch, &result)
	if err != nil {
		return s.fail(ctx, result, err)
	}

	if err := s.transition(ctx, batch.ID, model.BatchProcessing, model.BatchAwaitingValidation, ""); err != nil {
		return s.fail(ctx, result, err)
	}
	result.Status = model.BatchAwaitingValidation

	s.classify(ctx, batch, inserted, &result)

	slog.InfoContext(ctx, "Import completed",
		"batch_id", batch.ID,
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"classified", result.Classified,
		"auto_validated", result.AutoValidated)

	return result, nil
}

// process runs the fallible middle of the pipeline while the batch is processing.
func (s *Service) process(ctx context.Context, req ImportRequest, batch *model.ImportBatch, result *ImportResult) ([]model.Transaction, error) {
	parser, err := s.parsers.Lookup(req.Format)
	if err != nil {
		return nil, err
	}

	limit := s.config.MaxPayloadBytes
	if sl, ok := parser.(sizeLimited); ok && sl.MaxBytes() > 0 {
		limit = sl.MaxBytes()
	}

	data, err := s.payload(ctx, req, limit)
	if err != nil {
		return nil, err
	}
	batch.FileSize = int64(len(data))

	candidates, err := parser.Parse(ctx, model.RawStatement{
		Data:     data,
		FileName: batch.FileName,
		BlobPath: req.BlobPath,
		Format:   req.Format,
	})
	if err != nil {
		return nil, err
	}

	fresh, duplicates, err := s.dedup.FilterNew(ctx, batch.AccountID, candidates)
	if err != nil {
		return nil, fmt.Errorf("deduplication failed: %w", err)
	}
	result.Duplicates = duplicates

	inserted := s.persist(ctx, batch, fresh, result)

	counts := model.BatchCounts{
		Total:      len(candidates),
		Imported:   result.Imported,
		Duplicates: result.Duplicates,
		Errors:     result.Errors,
	}
	counts.PeriodStart, counts.PeriodEnd = period(candidates)
	result.PeriodStart, result.PeriodEnd = counts.PeriodStart, counts.PeriodEnd

	err = common.WithRetry(ctx, func() error {
		return s.store.UpdateBatchCounts(ctx, batch.ID, counts)
	}, s.config.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to store batch counts: %w", err)
	}

	return inserted, nil
}

func (s *Service) payload(ctx context.Context, req ImportRequest, limit int64) ([]byte, error) {
	if req.BlobPath == "" {
		if int64(len(req.Data)) > limit {
			return nil, &common.SizeLimitError{Size: int64(len(req.Data)), Limit: limit}
		}
		return req.Data, nil
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: no blob store for %s", common.ErrMissingConfig, req.BlobPath)
	}
	data, err := s.blobs.Fetch(ctx, req.BlobPath, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.BlobPath, err)
	}
	return data, nil
}

// persist inserts the fresh candidates. Losing an insert race to a
// concurrent import counts as a duplicate; any other failure is counted
// and skipped.
func (s *Service) persist(ctx context.Context, batch *model.ImportBatch, fresh []dedup.Fingerprinted, result *ImportResult) []model.Transaction {
	inserted := make([]model.Transaction, 0, len(fresh))
	for _, f := range fresh {
		txn := model.Transaction{
			ID:               uuid.NewString(),
			OrganizationID:   batch.OrganizationID,
			AccountID:        batch.AccountID,
			BatchID:          batch.ID,
			Fingerprint:      f.Fingerprint,
			Date:             f.Candidate.Date,
			Description:      f.Candidate.Description,
			RawDescription:   f.Candidate.RawDescription,
			Amount:           f.Candidate.Amount,
			Direction:        f.Candidate.Direction,
			ValidationStatus: model.StatusPendingValidation,
		}

		err := s.store.InsertTransaction(ctx, &txn)
		switch {
		case err == nil:
			result.Imported++
			inserted = append(inserted, txn)
		case errors.Is(err, common.ErrDuplicateEntry):
			result.Duplicates++
		default:
			result.Errors++
			slog.WarnContext(ctx, "Skipping transaction",
				"batch_id", batch.ID,
				"error", &common.PersistenceError{TransactionID: txn.ID, Err: err})
		}
	}
	return inserted
}

// classify runs the cascade over inserted rows. Its failure is logged and
// never changes the batch status.
func (s *Service) classify(ctx context.Context, batch *model.ImportBatch, inserted []model.Transaction, result *ImportResult) {
	if s.classifier == nil || s.config.SkipClassification || len(inserted) == 0 {
		return
	}

	classifyCtx, cancel := context.WithTimeout(ctx, s.config.ClassifyTimeout)
	defer cancel()

	summary, err := s.classifier.ClassifyBatch(classifyCtx, batch.OrganizationID, inserted)
	if err != nil {
		slog.WarnContext(ctx, "Classification did not finish",
			"batch_id", batch.ID,
			"error", err)
	}
	result.Classified = summary.Classified
	result.AutoValidated = summary.AutoValidated

	if summary.Classified == 0 {
		return
	}
	storeCtx := context.WithoutCancel(ctx)
	err = common.WithRetry(storeCtx, func() error {
		return s.store.UpdateBatchClassified(storeCtx, batch.ID, summary.Classified)
	}, s.config.Retry)
	if err != nil {
		slog.WarnContext(ctx, "Failed to store classified count",
			"batch_id", batch.ID,
			"error", err)
	}
}

// Classify re-runs the cascade over the pending rows of an existing batch.
func (s *Service) Classify(ctx context.Context, batchID string) (engine.Summary, error) {
	if s.classifier == nil {
		return engine.Summary{}, fmt.Errorf("%w: no classifier", common.ErrMissingConfig)
	}

	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return engine.Summary{}, err
	}
	if batch.Status != model.BatchAwaitingValidation {
		return engine.Summary{}, fmt.Errorf("%w: batch %s is %s", common.ErrInvalidTransition, batchID, batch.Status)
	}

	pending, err := s.store.ListPendingTransactions(ctx, batch.OrganizationID, batchID)
	if err != nil {
		return engine.Summary{}, fmt.Errorf("failed to load pending transactions: %w", err)
	}

	// Rows that already carry a suggestion are left for review.
	unclassified := pending[:0]
	for _, txn := range pending {
		if !txn.IsClassified() {
			unclassified = append(unclassified, txn)
		}
	}
	if len(unclassified) == 0 {
		return engine.Summary{BySource: map[model.ClassificationSource]int{}}, common.ErrNoTransactions
	}

	summary, err := s.classifier.ClassifyBatch(ctx, batch.OrganizationID, unclassified)
	if summary.Classified > 0 {
		total := batch.ClassifiedCount + summary.Classified
		if updateErr := s.store.UpdateBatchClassified(context.WithoutCancel(ctx), batchID, total); updateErr != nil {
			slog.WarnContext(ctx, "Failed to store classified count", "batch_id", batchID, "error", updateErr)
		}
	}
	return summary, err
}

func (s *Service) transition(ctx context.Context, id string, from, to model.BatchStatus, reason string) error {
	err := common.WithRetry(ctx, func() error {
		return s.store.UpdateBatchStatus(ctx, id, from, to, reason)
	}, s.config.Retry)
	if err != nil {
		return fmt.Errorf("failed to move batch %s to %s: %w", id, to, err)
	}
	return nil
}

// fail records cause on the batch. The write survives cancellation of ctx.
func (s *Service) fail(ctx context.Context, result ImportResult, cause error) (ImportResult, error) {
	slog.ErrorContext(ctx, "Import failed",
		"batch_id", result.BatchID,
		"error", cause)

	storeCtx := context.WithoutCancel(ctx)
	if err := s.transition(storeCtx, result.BatchID, model.BatchProcessing, model.BatchFailed, cause.Error()); err != nil {
		return result, errors.Join(cause, err)
	}
	result.Status = model.BatchFailed
	return result, cause
}

func (s *Service) replay(ctx context.Context, id string) (ImportResult, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to load batch %s: %w", id, err)
	}

	result := ImportResult{
		BatchID:     batch.ID,
		Status:      batch.Status,
		Imported:    batch.ImportedCount,
		Duplicates:  batch.DuplicateCount,
		Errors:      batch.ErrorCount,
		Classified:  batch.ClassifiedCount,
		PeriodStart: batch.PeriodStart,
		PeriodEnd:   batch.PeriodEnd,
		Replayed:    true,
	}
	if batch.Status == model.BatchFailed {
		return result, fmt.Errorf("batch %s failed: %s", batch.ID, batch.ErrorMessage)
	}
	if !batch.Status.IsTerminal() {
		return result, fmt.Errorf("batch %s is still %s", batch.ID, batch.Status)
	}
	return result, nil
}

// period returns the earliest and latest candidate dates.
func period(candidates []model.Candidate) (start, end *time.Time) {
	for i := range candidates {
		d := candidates[i].Date
		if start == nil || d.Before(*start) {
			start = &d
		}
		if end == nil || d.After(*end) {
			end = &d
		}
	}
	return start, end
}
