package extraction

import "context"

// Fields holds the raw values the model reports for a receipt. Everything is
// free-form text; normalization happens downstream in the ingest pipeline.
type Fields struct {
	MerchantName string `json:"merchant_name"`
	ReceiptDate  string `json:"receipt_date"`
	Amount       string `json:"amount"`
	// Err carries the "no JSON found" sentinel when the model reply held no
	// parseable object. It is data, not a Go error: the caller decides.
	Err string `json:"error,omitempty"`
}

// Extractor defines the interface for model-backed field extraction
type Extractor interface {
	// Extract sends document bytes to the model and returns the parsed fields
	Extract(ctx context.Context, data []byte, contentType string) (*Fields, error)
	// Close closes the extractor and releases resources
	Close() error
}
