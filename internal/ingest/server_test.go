package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
)

// uploadRequest builds a multipart POST with one file part carrying an
// explicit declared content type.
func uploadRequest(url, filename, contentType string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(content)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	req, err := http.NewRequest("POST", url, body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(resp *http.Response, out any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, out)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		service = NewService(db, extractor, storage)
		server = NewServerWithMux(service, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("GET /", func() {
		It("should return the welcome message", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]string
			decodeBody(resp, &body)
			Expect(body["message"]).To(Equal("Welcome to Receipt Vault."))
		})
	})

	Describe("POST /api/receipts/upload-receipt", func() {
		When("a valid PDF is uploaded", func() {
			It("should return the extracted, normalized fields", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/upload-receipt", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body map[string]any
				decodeBody(resp, &body)
				Expect(body["merchant_name"]).To(Equal("Cafe X"))
				Expect(body["purchased_at"]).To(Equal("07-03-2024"))
				Expect(body["total_amount"]).To(BeNumerically("==", 12.50))
				Expect(body["known_merchant"]).To(Equal(false))
			})
		})

		When("the same file is uploaded twice", func() {
			It("should reject the second upload as a duplicate", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/upload-receipt", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()

				req = uploadRequest(ghttpServer.URL()+"/api/receipts/upload-receipt", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err = http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["message"]).To(Equal("File already exists"))
			})
		})

		When("the declared type is not PDF", func() {
			It("should return 400 naming the declared type", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/upload-receipt", "a.png", "image/png", []byte("not a pdf"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["message"]).To(ContainSubstring("image/png"))
			})
		})

		When("no file is attached", func() {
			It("should return 400", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/receipts/upload-receipt", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["message"]).To(Equal("no file uploaded"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.extractErr = errors.New("model unavailable")
			})

			It("should return 500 with the error message", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/upload-receipt", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["error"]).To(ContainSubstring("model unavailable"))
			})
		})
	})

	Describe("POST /api/receipts/upload", func() {
		It("should store and register without extraction", func() {
			req := uploadRequest(ghttpServer.URL()+"/api/receipts/upload", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rec FileRecord
			decodeBody(resp, &rec)
			Expect(rec.FileName).To(Equal("a.pdf"))
			Expect(rec.Status).To(Equal(StatusStored))
			Expect(rec.IsProcessed).To(BeFalse())
			Expect(extractor.calls).To(BeZero())
		})
	})

	Describe("POST /api/receipts/validate", func() {
		When("the document is a PDF", func() {
			It("should report it valid", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/validate", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					IsValid bool   `json:"isValid"`
					Message string `json:"message"`
				}
				decodeBody(resp, &body)
				Expect(body.IsValid).To(BeTrue())
			})
		})

		When("the document is not a PDF", func() {
			It("should report it invalid without failing the request", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/validate", "a.txt", "text/plain", []byte("hello"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					IsValid bool   `json:"isValid"`
					Message string `json:"message"`
				}
				decodeBody(resp, &body)
				Expect(body.IsValid).To(BeFalse())
				Expect(body.Message).To(ContainSubstring("text/plain"))
			})

			It("should record the rejection", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/validate", "a.txt", "text/plain", []byte("hello"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()

				rec := db.fileRecords["a.txt"]
				Expect(rec).NotTo(BeNil())
				Expect(rec.IsValid).To(BeFalse())
			})
		})
	})

	Describe("POST /api/receipts/process", func() {
		When("processing succeeds", func() {
			It("should report the outcome with the result", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/process", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					IsProcessed bool           `json:"isProcessed"`
					Message     string         `json:"message"`
					Result      *receiptResult `json:"result"`
				}
				decodeBody(resp, &body)
				Expect(body.IsProcessed).To(BeTrue())
				Expect(body.Result).NotTo(BeNil())
				Expect(body.Result.MerchantName).To(Equal("Cafe X"))
			})
		})

		When("the file was already processed", func() {
			BeforeEach(func() {
				db.fileRecords["a.pdf"] = &FileRecord{
					ID:          "existing",
					FileName:    "a.pdf",
					Status:      StatusComplete,
					IsProcessed: true,
				}
			})

			It("should report the outcome flag with the duplicate message", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/receipts/process", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body struct {
					IsProcessed bool   `json:"isProcessed"`
					Message     string `json:"message"`
				}
				decodeBody(resp, &body)
				Expect(body.IsProcessed).To(BeFalse())
				Expect(body.Message).To(Equal("File already exists"))
			})
		})
	})

	Describe("GET /api/receipts/list-receipts", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &ReceiptRecord{ID: "r1", MerchantName: "Cafe X", PurchasedAt: "07-03-2024", TotalAmount: decimal.RequireFromString("12.50")}
			db.receipts["r2"] = &ReceiptRecord{ID: "r2", MerchantName: "Target", PurchasedAt: "15-01-2024", TotalAmount: decimal.RequireFromString("1937.66")}
		})

		It("should return every receipt with a plain numeric amount", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/list-receipts")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				ReceiptsArray []map[string]any `json:"receiptsArray"`
			}
			decodeBody(resp, &body)
			Expect(body.ReceiptsArray).To(HaveLen(2))

			amounts := []any{body.ReceiptsArray[0]["total_amount"], body.ReceiptsArray[1]["total_amount"]}
			Expect(amounts).To(ContainElement(BeNumerically("==", 12.50)))
			Expect(amounts).To(ContainElement(BeNumerically("==", 1937.66)))
		})
	})

	Describe("GET /api/receipts/get-receipt-detail/{id}", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &ReceiptRecord{ID: "r1", MerchantName: "Cafe X", PurchasedAt: "07-03-2024", TotalAmount: decimal.RequireFromString("12.50")}
		})

		When("the receipt exists", func() {
			It("should return it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/get-receipt-detail/r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					ReceiptDetails map[string]any `json:"receiptDetails"`
				}
				decodeBody(resp, &body)
				Expect(body.ReceiptDetails["merchant_name"]).To(Equal("Cafe X"))
				Expect(body.ReceiptDetails["total_amount"]).To(BeNumerically("==", 12.50))
			})
		})

		When("the receipt does not exist", func() {
			It("should return 404", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/get-receipt-detail/missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["message"]).To(Equal("Receipt not found"))
			})
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &ReceiptRecord{ID: "r1", FilePath: "/stored/a.pdf"}
			storage.files["/stored/a.pdf"] = []byte("%PDF-1.4 stored")
		})

		It("should return the stored bytes as PDF", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/r1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("%PDF-1.4 stored"))
		})
	})
})
