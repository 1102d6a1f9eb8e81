package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-vault/internal/extraction"
)

// Mode selects how far the ingestion pipeline runs for one upload. The four
// public entry points share a single pipeline instead of re-implementing it.
type Mode int

const (
	// ModeExtract runs the full pipeline and persists a ReceiptRecord.
	ModeExtract Mode = iota
	// ModeStore stores the document and registers it without extraction.
	ModeStore
	// ModeValidate checks the document type and records the outcome; an
	// invalid upload is recorded rather than treated as a request failure.
	ModeValidate
	// ModeProcess is the full pipeline with an explicit outcome flag in the
	// response.
	ModeProcess
)

// Upload is one candidate document as received from the caller.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Result is the caller-facing outcome of one ingestion.
type Result struct {
	File    *FileRecord
	Receipt *ReceiptRecord
	Fields  *extraction.Fields
	// KnownMerchant reports whether another receipt already shares this
	// merchant name.
	KnownMerchant bool
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service orchestrates the ingestion pipeline: validate, dedup, store,
// extract, normalize, persist.
type Service struct {
	db        DB
	extractor extraction.Extractor
	storage   Storage
	locks     *lockTable
	idGen     IDGenerator
	timeSrc   TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor extraction.Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor extraction.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:        db,
		extractor: extractor,
		storage:   storage,
		locks:     newLockTable(),
		idGen:     idGen,
		timeSrc:   timeSrc,
	}
}

// Ingest runs the pipeline for one upload. The per-name lock is held from the
// duplicate check through persistence, so concurrent uploads of the same name
// serialize instead of racing the check. Storage and record writes are still
// not transactional with each other: a crash mid-pipeline can leave stored
// bytes with a file record short of complete, which a later upload of the
// same name is allowed to redo.
func (s *Service) Ingest(ctx context.Context, upload Upload, mode Mode) (*Result, error) {
	release := s.locks.Acquire(upload.FileName)
	defer release()

	if err := ValidateContentType(upload.ContentType); err != nil {
		if mode == ModeValidate {
			if recErr := s.recordInvalid(upload.FileName, err); recErr != nil {
				return nil, recErr
			}
		}
		return nil, err
	}

	existing, err := s.db.FindFileByName(upload.FileName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, wrapError(KindPersistence, "looking up file record", err)
	}
	if existing != nil && existing.Processed() {
		return nil, newError(KindDuplicate, "File already exists")
	}

	path, err := s.storage.Save(upload.FileName, upload.Data)
	if err != nil {
		return nil, wrapError(KindPersistence, "storing document", err)
	}

	now := s.timeSrc.Now()
	rec := existing
	if rec == nil {
		rec = &FileRecord{
			ID:        s.idGen.Generate(),
			FileName:  upload.FileName,
			CreatedAt: now,
		}
	}
	rec.FilePath = path
	rec.IsValid = true
	rec.InvalidReason = ""
	rec.Status = StatusStored
	rec.IsProcessed = false
	rec.UpdatedAt = now
	if err := s.db.SaveFileRecord(rec); err != nil {
		return nil, wrapError(KindPersistence, "saving file record", err)
	}

	result := &Result{File: rec}
	if mode == ModeStore || mode == ModeValidate {
		return result, nil
	}

	fields, err := s.extractor.Extract(ctx, upload.Data, upload.ContentType)
	if err != nil {
		slog.Error("Failed to extract receipt fields",
			"file_name", upload.FileName,
			"file_size", len(upload.Data),
			"error", err,
		)
		s.markFailed(rec)
		return nil, wrapError(KindExtraction, "extracting receipt fields", err)
	}
	result.Fields = fields

	receipt, err := s.buildReceipt(fields, path, now)
	if err != nil {
		s.markFailed(rec)
		return nil, err
	}

	known, err := s.db.MerchantExists(receipt.MerchantName)
	if err != nil {
		return nil, wrapError(KindPersistence, "checking merchant", err)
	}
	result.KnownMerchant = known

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.markFailed(rec)
		return nil, wrapError(KindPersistence, "saving receipt", err)
	}
	result.Receipt = receipt

	rec.Status = StatusComplete
	rec.IsProcessed = true
	rec.UpdatedAt = s.timeSrc.Now()
	if err := s.db.SaveFileRecord(rec); err != nil {
		// The receipt is saved but the file record is short of complete; a
		// repeat upload will redo the work rather than be rejected.
		return nil, wrapError(KindPersistence, "marking file processed", err)
	}

	return result, nil
}

// buildReceipt normalizes the extracted fields into a persistence-ready
// record. A reply that carried the no-JSON sentinel arrives here with every
// field empty and fails amount normalization.
func (s *Service) buildReceipt(fields *extraction.Fields, path string, now time.Time) (*ReceiptRecord, error) {
	amount, err := NormalizeAmount(fields.Amount)
	if err != nil {
		return nil, wrapError(KindNormalization, "normalizing amount", err)
	}

	receipt := &ReceiptRecord{
		ID:           s.idGen.Generate(),
		MerchantName: strings.TrimSpace(fields.MerchantName),
		PurchasedAt:  NormalizeDate(fields.ReceiptDate, now),
		TotalAmount:  amount,
		FilePath:     path,
		CreatedAt:    now,
	}
	if err := receipt.Validate(); err != nil {
		return nil, wrapError(KindPersistence, "receipt validation failed", err)
	}
	return receipt, nil
}

// recordInvalid registers a validation rejection as a file record. An
// already-complete record is left untouched; rejections must not clobber a
// finished ingestion.
func (s *Service) recordInvalid(fileName string, cause error) error {
	existing, err := s.db.FindFileByName(fileName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return wrapError(KindPersistence, "looking up file record", err)
	}
	if existing != nil && existing.Processed() {
		return nil
	}

	now := s.timeSrc.Now()
	rec := existing
	if rec == nil {
		rec = &FileRecord{
			ID:        s.idGen.Generate(),
			FileName:  fileName,
			Status:    StatusNew,
			CreatedAt: now,
		}
	}
	rec.IsValid = false
	rec.InvalidReason = cause.Error()
	rec.UpdatedAt = now
	if err := s.db.SaveFileRecord(rec); err != nil {
		return wrapError(KindPersistence, "saving file record", err)
	}
	return nil
}

// markFailed is best effort; the original pipeline error wins.
func (s *Service) markFailed(rec *FileRecord) {
	rec.Status = StatusFailed
	rec.IsProcessed = false
	rec.UpdatedAt = s.timeSrc.Now()
	if err := s.db.SaveFileRecord(rec); err != nil {
		slog.Warn("Failed to mark file record failed", "file_name", rec.FileName, "error", err)
	}
}

// GetReceipt retrieves a receipt record by ID
func (s *Service) GetReceipt(id string) (*ReceiptRecord, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindNotFound, "Receipt not found")
		}
		return nil, wrapError(KindPersistence, "getting receipt", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipt records
func (s *Service) ListReceipts() ([]*ReceiptRecord, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, wrapError(KindPersistence, "listing receipts", err)
	}
	return receipts, nil
}

// GetReceiptFile retrieves the stored bytes for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, error) {
	receipt, err := s.GetReceipt(id)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.Get(receipt.FilePath)
	if err != nil {
		return nil, newError(KindNotFound, "File not found")
	}
	return data, nil
}
