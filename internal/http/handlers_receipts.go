package httpx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/service"
)

// DefaultMaxUploadSize bounds a receipt image when no limit is configured.
const DefaultMaxUploadSize int64 = 10 << 20

// multipartOverhead leaves room for form fields and part headers on top of the file itself.
const multipartOverhead int64 = 1 << 20

const queuedMessage = "receipt accepted for processing"

// ReceiptHandlers serves receipt uploads.
type ReceiptHandlers struct {
	Svc         *service.JobService
	MaxFileSize int64
	Logger      *slog.Logger
}

// UploadResponse is returned once a receipt is queued.
type UploadResponse struct {
	JobID   string          `json:"job_id"`
	Status  model.JobStatus `json:"status"`
	Message string          `json:"message"`
}

// Upload accepts a multipart receipt image and submits it as a job.
func (h *ReceiptHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	maxSize := h.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(min(maxSize, 32<<20)); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteAppError(w, apperrors.TooLarge(fmt.Sprintf("file exceeds %d bytes", maxSize)))
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAppError(w, apperrors.ValidationField("file", "a receipt file is required"))
		return
	}
	defer file.Close()

	data, err := readUpload(file, header, maxSize)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	extRef := strings.TrimSpace(r.FormValue("external_reference_id"))
	if extRef == "" {
		WriteAppError(w, apperrors.ValidationField("external_reference_id", "external_reference_id is required"))
		return
	}

	contentType, err := detectImageType(data, header.Header.Get("Content-Type"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	res, err := h.Svc.Submit(r.Context(), model.SubmitRequest{
		Payload:             data,
		Filename:            header.Filename,
		ExternalReferenceID: extRef,
		ContentType:         contentType,
		JobID:               strings.TrimSpace(r.FormValue("job_id")),
	})
	if err != nil {
		h.logger().Warn("receipt submission failed",
			"filename", header.Filename,
			"external_reference_id", extRef,
			"error", err)
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, UploadResponse{
		JobID:   res.JobID,
		Status:  res.Status,
		Message: queuedMessage,
	})
}

func (h *ReceiptHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func readUpload(file multipart.File, header *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if header.Size > maxSize {
		return nil, apperrors.TooLarge(fmt.Sprintf("file exceeds %d bytes", maxSize))
	}
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "could not read uploaded file")
	}
	if int64(len(data)) > maxSize {
		return nil, apperrors.TooLarge(fmt.Sprintf("file exceeds %d bytes", maxSize))
	}
	if len(data) == 0 {
		return nil, apperrors.ValidationField("file", "uploaded file is empty")
	}
	return data, nil
}

// detectImageType sniffs the payload and falls back to the declared type.
// Only JPEG and PNG receipts are accepted.
func detectImageType(data []byte, declared string) (string, error) {
	sniffed := http.DetectContentType(data)
	if allowedImageType(sniffed) {
		return sniffed, nil
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if allowedImageType(declared) && sniffed == "application/octet-stream" {
		return declared, nil
	}
	return "", apperrors.ValidationField("file",
		fmt.Sprintf("unsupported image format %q; allowed: image/jpeg, image/png", sniffed))
}

func allowedImageType(ct string) bool {
	return ct == "image/jpeg" || ct == "image/png"
}
