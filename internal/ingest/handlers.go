package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart parsing (scanned receipts from phones can
// be large).
const maxUploadSize = int64(50 << 20) // 50MB

// receiptResult is the caller-facing shape of an extracted receipt.
type receiptResult struct {
	MerchantName  string  `json:"merchant_name"`
	PurchasedAt   string  `json:"purchased_at"`
	TotalAmount   float64 `json:"total_amount"`
	FilePath      string  `json:"file_path"`
	KnownMerchant bool    `json:"known_merchant"`
}

// receiptItem is one entry in list/detail responses; the stored decimal is
// coerced to a plain JSON number.
type receiptItem struct {
	ID           string  `json:"id"`
	MerchantName string  `json:"merchant_name"`
	PurchasedAt  string  `json:"purchased_at"`
	TotalAmount  float64 `json:"total_amount"`
	CreatedAt    string  `json:"created_at"`
}

func toResult(res *Result) *receiptResult {
	return &receiptResult{
		MerchantName:  res.Receipt.MerchantName,
		PurchasedAt:   res.Receipt.PurchasedAt,
		TotalAmount:   res.Receipt.TotalAmount.InexactFloat64(),
		FilePath:      res.Receipt.FilePath,
		KnownMerchant: res.KnownMerchant,
	}
}

func toItem(rec *ReceiptRecord) *receiptItem {
	return &receiptItem{
		ID:           rec.ID,
		MerchantName: rec.MerchantName,
		PurchasedAt:  rec.PurchasedAt,
		TotalAmount:  rec.TotalAmount.InexactFloat64(),
		CreatedAt:    rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps a pipeline error kind to an HTTP status code.
func statusFor(e *Error) int {
	switch e.Kind {
	case KindValidation, KindDuplicate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports a pipeline failure. Client errors carry a message;
// server errors carry the error text; anything unclassified becomes a fixed
// 500 that leaks nothing.
func writeError(w http.ResponseWriter, err error) {
	if e, ok := classify(err); ok {
		status := statusFor(e)
		if status < http.StatusInternalServerError {
			writeJSON(w, status, map[string]string{"message": e.Message})
			return
		}
		writeJSON(w, status, map[string]string{"error": e.Error()})
		return
	}
	slog.Error("Unclassified error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "something went wrong"})
}

// readUpload pulls the uploaded document out of the multipart form.
func readUpload(r *http.Request) (*Upload, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, newError(KindValidation, "no file uploaded")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, newError(KindValidation, "no file uploaded")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, wrapError(KindPersistence, "reading upload", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		// Fall back on the extension when the client declared nothing.
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".pdf":
			contentType = "application/pdf"
		default:
			contentType = "application/octet-stream"
		}
	}

	return &Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// handleIndex serves the welcome message
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Receipt Vault."})
}

// handleUploadReceipt runs the full pipeline and returns the extracted fields
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Ingest(r.Context(), *upload, ModeExtract)
	if err != nil {
		slog.Error("Error ingesting receipt", "file_name", upload.FileName, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResult(result))
}

// handleUpload stores and registers the document without extraction
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Ingest(r.Context(), *upload, ModeStore)
	if err != nil {
		slog.Error("Error storing receipt", "file_name", upload.FileName, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.File)
}

// handleValidate checks the document type and records the outcome. An
// invalid document is a normal response here, not a request failure.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	type validateResponse struct {
		IsValid bool   `json:"isValid"`
		Message string `json:"message"`
	}

	_, err = s.service.Ingest(r.Context(), *upload, ModeValidate)
	if err != nil {
		if e, ok := classify(err); ok && e.Kind == KindValidation {
			writeJSON(w, http.StatusOK, validateResponse{IsValid: false, Message: e.Message})
			return
		}
		slog.Error("Error validating receipt", "file_name", upload.FileName, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{IsValid: true, Message: "uploaded file is valid"})
}

// handleProcess runs the full pipeline and reports an explicit outcome flag
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	type processResponse struct {
		IsProcessed bool           `json:"isProcessed"`
		Message     string         `json:"message"`
		Result      *receiptResult `json:"result,omitempty"`
	}

	upload, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Ingest(r.Context(), *upload, ModeProcess)
	if err != nil {
		slog.Error("Error processing receipt", "file_name", upload.FileName, "error", err)
		if e, ok := classify(err); ok {
			if status := statusFor(e); status < http.StatusInternalServerError {
				writeJSON(w, status, processResponse{IsProcessed: false, Message: e.Message})
				return
			}
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		IsProcessed: true,
		Message:     "file processed",
		Result:      toResult(result),
	})
}

// handleListReceipts returns all receipt records
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, err)
		return
	}

	items := make([]*receiptItem, 0, len(receipts))
	for _, rec := range receipts {
		items = append(items, toItem(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{"receiptsArray": items})
}

// handleGetReceiptDetail returns a single receipt record
func (s *Server) handleGetReceiptDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "receipt ID required"})
		return
	}

	receipt, err := s.service.GetReceipt(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"receiptDetails": toItem(receipt)})
}

// handleGetReceiptFile returns the stored bytes for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "receipt ID required"})
		return
	}

	data, err := s.service.GetReceiptFile(id)
	if err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", acceptedContentType)
	w.Write(data)
}
