package ingest

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	Describe("SaveFileRecord and FindFileByName", func() {
		var rec *FileRecord

		BeforeEach(func() {
			rec = &FileRecord{
				ID:        "f1",
				FileName:  "a.pdf",
				FilePath:  "/stored/a.pdf",
				IsValid:   true,
				Status:    StatusStored,
				CreatedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
				UpdatedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			}
			Expect(db.SaveFileRecord(rec)).To(Succeed())
		})

		It("should find the record by file name", func() {
			found, err := db.FindFileByName("a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("f1"))
			Expect(found.Status).To(Equal(StatusStored))
		})

		It("should return ErrNotFound for an unknown name", func() {
			_, err := db.FindFileByName("b.pdf")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should replace the record on a second save of the same name", func() {
			rec.Status = StatusComplete
			rec.IsProcessed = true
			Expect(db.SaveFileRecord(rec)).To(Succeed())

			found, err := db.FindFileByName("a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Status).To(Equal(StatusComplete))
			Expect(found.IsProcessed).To(BeTrue())
		})
	})

	Describe("SaveReceipt and GetReceipt", func() {
		var rec *ReceiptRecord

		BeforeEach(func() {
			rec = &ReceiptRecord{
				ID:           "r1",
				MerchantName: "Cafe X",
				PurchasedAt:  "07-03-2024",
				TotalAmount:  decimal.RequireFromString("12.50"),
				FilePath:     "/stored/a.pdf",
				CreatedAt:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			}
			Expect(db.SaveReceipt(rec)).To(Succeed())
		})

		It("should round-trip the receipt", func() {
			found, err := db.GetReceipt("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.MerchantName).To(Equal("Cafe X"))
			Expect(found.PurchasedAt).To(Equal("07-03-2024"))
			Expect(found.TotalAmount.Equal(decimal.RequireFromString("12.50"))).To(BeTrue())
		})

		It("should return ErrNotFound for an unknown ID", func() {
			_, err := db.GetReceipt("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListReceipts", func() {
		When("the bucket is empty", func() {
			It("should return an empty slice", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(BeEmpty())
			})
		})

		When("receipts exist", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(&ReceiptRecord{ID: "r1", MerchantName: "Cafe X"})).To(Succeed())
				Expect(db.SaveReceipt(&ReceiptRecord{ID: "r2", MerchantName: "Target"})).To(Succeed())
			})

			It("should return all of them", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(2))
			})
		})
	})

	Describe("MerchantExists", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(&ReceiptRecord{ID: "r1", MerchantName: "Cafe X"})).To(Succeed())
		})

		It("should report an existing merchant", func() {
			exists, err := db.MerchantExists("Cafe X")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("should report an unknown merchant", func() {
			exists, err := db.MerchantExists("Nowhere Deli")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})
})
