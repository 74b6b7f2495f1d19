package model

import (
	"fmt"
	"strings"
	"time"
)

// Format is the declared shape of an uploaded statement.
type Format string

const (
	// FormatLedger is the tag-delimited OFX family.
	FormatLedger Format = "ledger"
	// FormatDelimited is CSV-like text.
	FormatDelimited Format = "delimited"
	// FormatImage is a photo, screenshot or scanned PDF.
	FormatImage Format = "image"
)

// ParseFormat maps user input (including common file extensions) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "ledger", "ofx", "qfx":
		return FormatLedger, nil
	case "delimited", "csv", "txt":
		return FormatDelimited, nil
	case "image", "png", "jpg", "jpeg", "gif", "webp", "pdf":
		return FormatImage, nil
	default:
		return "", fmt.Errorf("unknown statement format: %q", s)
	}
}

// RawStatement is an uploaded file as received. Either Data or BlobPath is set.
type RawStatement struct {
	Data     []byte
	FileName string
	BlobPath string
	Format   Format
}

// Size returns the payload size in bytes.
func (r RawStatement) Size() int {
	return len(r.Data)
}

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	// BatchPending is a freshly created batch.
	BatchPending BatchStatus = "pending"
	// BatchProcessing is a batch whose payload is being parsed and persisted.
	BatchProcessing BatchStatus = "processing"
	// BatchAwaitingValidation is a batch whose rows are stored and ready for review.
	BatchAwaitingValidation BatchStatus = "awaiting_validation"
	// BatchFailed is a batch that could not be parsed or persisted.
	BatchFailed BatchStatus = "failed"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing},
	BatchProcessing: {BatchAwaitingValidation, BatchFailed},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchAwaitingValidation || s == BatchFailed
}

// ImportBatch is one statement upload and its outcome.
type ImportBatch struct {
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	ID              string
	OrganizationID  string
	AccountID       string
	FileName        string
	ErrorMessage    string
	Format          Format
	Status          BatchStatus
	FileSize        int64
	TotalCount      int
	ImportedCount   int
	DuplicateCount  int
	ErrorCount      int
	ClassifiedCount int
}

// BatchCounts are the counters written when a batch finishes processing.
type BatchCounts struct {
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Total       int
	Imported    int
	Duplicates  int
	Errors      int
}
