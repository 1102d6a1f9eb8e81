package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	fileBucketName    = "receipt_files"
	receiptBucketName = "receipts"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("record not found")

// DB defines the interface for record store operations
type DB interface {
	// SaveFileRecord creates or replaces a file record, keyed by file name
	SaveFileRecord(rec *FileRecord) error

	// FindFileByName retrieves a file record, or ErrNotFound
	FindFileByName(name string) (*FileRecord, error)

	// SaveReceipt saves a receipt record
	SaveReceipt(rec *ReceiptRecord) error

	// GetReceipt retrieves a receipt record by ID
	GetReceipt(id string) (*ReceiptRecord, error)

	// ListReceipts returns all receipt records
	ListReceipts() ([]*ReceiptRecord, error)

	// MerchantExists reports whether any receipt shares this merchant name
	MerchantExists(name string) (bool, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(fileBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveFileRecord creates or replaces a file record. The bucket is keyed by
// file name, which makes the name structurally unique.
func (b *BoltDB) SaveFileRecord(rec *FileRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fileBucketName))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling file record: %w", err)
		}
		return bucket.Put([]byte(rec.FileName), data)
	})
}

// FindFileByName retrieves a file record by its file name
func (b *BoltDB) FindFileByName(name string) (*FileRecord, error) {
	var rec *FileRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fileBucketName))
		data := bucket.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("file %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveReceipt saves a receipt record
func (b *BoltDB) SaveReceipt(rec *ReceiptRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// GetReceipt retrieves a receipt record by ID
func (b *BoltDB) GetReceipt(id string) (*ReceiptRecord, error) {
	var rec *ReceiptRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListReceipts returns all receipt records
func (b *BoltDB) ListReceipts() ([]*ReceiptRecord, error) {
	receipts := make([]*ReceiptRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var rec ReceiptRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// MerchantExists scans the receipt bucket for a matching merchant name
func (b *BoltDB) MerchantExists(name string) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			if found {
				return nil
			}
			var rec ReceiptRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if rec.MerchantName == name {
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
