package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/request"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/response"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/bankfile"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
)

// maxUploadBytes bounds confirmation CSV uploads.
const maxUploadBytes = 10 << 20

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// PaymentHandler handles HTTP requests for paying out approved distributions: bank batch
// export and submission, manual confirmations, and retries.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler with the provided service dependency.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// BankBatchCSV handles GET requests to download the bank submission file of a distribution.
// One row per allocation still awaiting payment; nothing is changed.
//
// Endpoint: GET /api/distribution/{uuid}/bank-batch.csv
// Response: 200 OK with text/csv attachment
// Error: 404 Not Found if the distribution does not exist
func (h *PaymentHandler) BankBatchCSV(w http.ResponseWriter, r *http.Request) {
	d, rows, err := h.paymentService.ExportBankBatch(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToExportBankBatch)
		return
	}

	var buf bytes.Buffer
	if err := bankfile.WriteBankBatchCSV(&buf, rows); err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToExportBankBatch.Error(), err.Error())
		return
	}

	response.RespondFile(w, contentTypeCSV, d.DistributionNumber+"-bank-batch.csv", buf.Bytes())
}

// BankBatchXLSX handles GET requests to download the bank submission file as a workbook.
//
// Endpoint: GET /api/distribution/{uuid}/bank-batch.xlsx
// Response: 200 OK with XLSX attachment
// Error: 404 Not Found if the distribution does not exist
func (h *PaymentHandler) BankBatchXLSX(w http.ResponseWriter, r *http.Request) {
	d, rows, err := h.paymentService.ExportBankBatch(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToExportBankBatch)
		return
	}

	var buf bytes.Buffer
	if err := bankfile.WriteBankBatchXLSX(&buf, d.DistributionNumber, rows); err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToExportBankBatch.Error(), err.Error())
		return
	}

	response.RespondFile(w, contentTypeXLSX, d.DistributionNumber+"-bank-batch.xlsx", buf.Bytes())
}

// SubmitBatch handles POST requests sending every unpaid allocation to the bank in one batch.
// Rejected rows are reported in the result and never fail the request.
//
// Endpoint: POST /api/distribution/{uuid}/payments/submit
// Response: 200 OK with BatchResult
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict if the distribution is not approved or nothing is awaiting payment
// Error: 422 Unprocessable Entity listing investors without bank details
// Error: 502 Bad Gateway if the bank could not be reached
func (h *PaymentHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.paymentService.SubmitBatch(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToSubmitBatch)
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// RetryResponse reports how many failed payments were queued again.
type RetryResponse struct {
	Reset int `json:"reset"`
}

// RetryFailed handles POST requests returning failed payments to pending so the next batch
// picks them up.
//
// Endpoint: POST /api/distribution/{uuid}/payments/retry
// Response: 200 OK with RetryResponse
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict if the distribution is not processing
func (h *PaymentHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.paymentService.RetryFailed(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToSubmitBatch)
		return
	}

	response.RespondJSON(w, http.StatusOK, RetryResponse{Reset: n})
}

// ListBatches handles GET requests for the bank submission history of a distribution.
//
// Endpoint: GET /api/distribution/{uuid}/payments/batches
// Response: 200 OK with array of PaymentBatch
// Error: 404 Not Found if the distribution does not exist
func (h *PaymentHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.paymentService.ListBatches(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveBatches)
		return
	}

	response.RespondJSON(w, http.StatusOK, batches)
}

// ImportConfirmations handles POST requests uploading a payment confirmation CSV.
// The file is either the raw request body or the "file" part of a multipart form.
//
// Endpoint: POST /api/distribution/{uuid}/payments/import
// Response: 200 OK with ImportResult (per-row errors included)
// Error: 400 Bad Request if the file is missing or its header is unusable
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict if the distribution is not approved
func (h *PaymentHandler) ImportConfirmations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	body, closeFn, err := uploadedFile(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	defer closeFn()

	result, err := h.paymentService.ImportConfirmations(r.Context(), chi.URLParam(r, "uuid"), body)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToImportConfirmations)
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

func uploadedFile(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, errors.New(`multipart upload needs a "file" part`)
		}
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// ConfirmationTemplate handles GET requests for a confirmation CSV pre-filled with the
// emails of investors not yet paid.
//
// Endpoint: GET /api/distribution/{uuid}/payments/template.csv
// Response: 200 OK with text/csv attachment
// Error: 404 Not Found if the distribution does not exist
func (h *PaymentHandler) ConfirmationTemplate(w http.ResponseWriter, r *http.Request) {
	d, emails, err := h.paymentService.ConfirmationTemplate(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToExportBankBatch)
		return
	}

	var buf bytes.Buffer
	if err := bankfile.WriteConfirmationTemplate(&buf, emails); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to write template", err.Error())
		return
	}

	response.RespondFile(w, contentTypeCSV, d.DistributionNumber+"-confirmations.csv", buf.Bytes())
}

// MarkPaid handles POST requests recording one investor's payment by hand.
// Repeating the call with the recorded reference succeeds with noOp set.
//
// Endpoint: POST /api/distribution/{uuid}/payments/{investorId}
// Request Body: MarkPaidRequest (transactionId and/or utr, optional paymentDate)
// Response: 200 OK with MarkPaidResult
// Error: 400 Bad Request if no reference is given
// Error: 404 Not Found if the distribution or the investor's allocation does not exist
// Error: 409 Conflict if a different payment is already recorded or the distribution is not approved
func (h *PaymentHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAndValidate[request.MarkPaidRequest](w, r)
	if !ok {
		return
	}

	ref := model.PaymentReference{TransactionID: req.TransactionID, UTR: req.UTR}
	if req.PaymentDate != "" {
		// format checked by the validate tag
		paidOn, _ := time.Parse(time.DateOnly, req.PaymentDate)
		ref.PaymentDate = &paidOn
	}

	result, err := h.paymentService.MarkPaid(r.Context(), chi.URLParam(r, "uuid"), chi.URLParam(r, "investorId"), ref)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRecordPayment)
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
