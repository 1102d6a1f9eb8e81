package ingest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FileStatus tracks how far an uploaded document has made it through the
// pipeline. Only StatusComplete blocks reprocessing; a stored or failed
// upload may be submitted again under the same name.
type FileStatus string

const (
	StatusNew      FileStatus = "new"
	StatusStored   FileStatus = "stored"
	StatusComplete FileStatus = "complete"
	StatusFailed   FileStatus = "failed"
)

// FileRecord tracks one uploaded document identity, keyed by file name.
type FileRecord struct {
	ID            string     `json:"id"`
	FileName      string     `json:"file_name"`
	FilePath      string     `json:"file_path,omitempty"`
	IsValid       bool       `json:"is_valid"`
	InvalidReason string     `json:"invalid_reason,omitempty"`
	Status        FileStatus `json:"status"`
	IsProcessed   bool       `json:"is_processed"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Processed reports whether this document finished the full pipeline.
func (r *FileRecord) Processed() bool {
	return r.Status == StatusComplete
}

// ReceiptRecord is the persisted result of a successful extraction.
type ReceiptRecord struct {
	ID           string          `json:"id"`
	MerchantName string          `json:"merchant_name"`
	PurchasedAt  string          `json:"purchased_at"` // DD-MM-YYYY
	TotalAmount  decimal.Decimal `json:"total_amount"`
	FilePath     string          `json:"file_path"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Validate checks the fields required for persistence.
func (r *ReceiptRecord) Validate() error {
	if r.MerchantName == "" {
		return fmt.Errorf("merchant name is required")
	}
	if r.PurchasedAt == "" {
		return fmt.Errorf("purchased date is required")
	}
	if r.FilePath == "" {
		return fmt.Errorf("file path is required")
	}
	if r.TotalAmount.IsNegative() {
		return fmt.Errorf("total amount cannot be negative")
	}
	return nil
}
