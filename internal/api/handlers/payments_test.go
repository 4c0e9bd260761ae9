package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/testutil"
)

// approvedDistribution calculates a distribution for a fresh SPV and signs it off.
func approvedDistribution(t *testing.T, db *sql.DB, spvID string) *model.Distribution {
	t.Helper()
	ctx := context.Background()

	d, err := testutil.NewTestDistributionService(t, db).Calculate(ctx, service.CalculateRequest{
		SPVID: spvID,
		CalculationInput: service.CalculationInput{
			Type:          model.TypeInterimDividend,
			GrossProceeds: money.FromMajor(1000),
		},
	})
	if err != nil {
		t.Fatalf("Calculate() returned unexpected error: %v", err)
	}
	approvals := testutil.NewTestApprovalService(t, db)
	for _, role := range []model.ApprovalRole{model.RoleAssetManager, model.RoleCompliance, model.RoleAdmin} {
		if d, err = approvals.Approve(ctx, d.ID, role, "ops@example.com", ""); err != nil {
			t.Fatalf("Approve(%s) returned unexpected error: %v", role, err)
		}
	}
	return d
}

func setupPaymentHandler(t *testing.T, gateway *testutil.MockGateway) (*PaymentHandler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewPaymentHandler(testutil.NewTestPaymentService(t, db, gateway)), db
}

func httpBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func idParam(id string) map[string]string {
	return map[string]string{"uuid": id}
}

func TestPaymentHandler_SubmitBatch(t *testing.T) {
	t.Run("reports per row outcomes", func(t *testing.T) {
		gateway := testutil.NewMockGateway()
		handler, db := setupPaymentHandler(t, gateway)
		spv, _ := testutil.CreateSPVWithShareholders(t, db, 1, 1)
		d := approvedDistribution(t, db, spv.ID)
		gateway.WithRejection(d.DistributionNumber+"/"+d.InvestorDistributions[1].ID, "account frozen")

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/submit", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.SubmitBatch(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var result model.BatchResult
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)
		if result.SuccessfulTransactions != 1 || result.FailedTransactions != 1 {
			t.Errorf("Expected 1 success and 1 failure, got %d and %d", result.SuccessfulTransactions, result.FailedTransactions)
		}
		if !result.NeedsAttention || result.DistributionStatus != model.StatusProcessing {
			t.Errorf("Expected processing and needing attention, got %s %v", result.DistributionStatus, result.NeedsAttention)
		}
		if len(result.Rows) != 2 || result.Rows[1].Error != "account frozen" {
			t.Errorf("Expected the rejection reason on row 2, got %+v", result.Rows)
		}
	})

	t.Run("returns 422 listing investors without bank details", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv := testutil.NewSPV().Build(t, db)
		investor := testutil.NewInvestor().WithName("Kiran Shah").Build(t, db)
		testutil.NewShareholding(t, db, spv.ID, investor.ID, 10)
		d := approvedDistribution(t, db, spv.ID)

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/submit", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.SubmitBatch(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("Expected 422, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Details []string `json:"details"`
		}
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.Details) != 1 || !strings.HasPrefix(resp.Details[0], "Kiran Shah") {
			t.Errorf("Expected Kiran Shah listed, got %v", resp.Details)
		}
	})

	t.Run("returns 502 when the bank is unreachable", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway().WithError(errors.New("connection refused")))
		spv, _ := testutil.CreateSPVWithShareholders(t, db, 1)
		d := approvedDistribution(t, db, spv.ID)

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/submit", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.SubmitBatch(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 409 before approval", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, _ := testutil.CreateSPVWithShareholders(t, db, 1)
		d, err := testutil.NewTestDistributionService(t, db).Calculate(context.Background(), service.CalculateRequest{
			SPVID:            spv.ID,
			CalculationInput: service.CalculationInput{Type: model.TypeLeasePayment, GrossProceeds: money.FromMajor(10)},
		})
		if err != nil {
			t.Fatalf("Calculate() returned unexpected error: %v", err)
		}

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/submit", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.SubmitBatch(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestPaymentHandler_RetryFailedAndBatches(t *testing.T) {
	gateway := testutil.NewMockGateway()
	handler, db := setupPaymentHandler(t, gateway)
	spv, _ := testutil.CreateSPVWithShareholders(t, db, 1)
	d := approvedDistribution(t, db, spv.ID)

	req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/retry", idParam(d.ID))
	w := httptest.NewRecorder()
	handler.RetryFailed(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 before payments started, got %d: %s", w.Code, w.Body.String())
	}

	gateway.WithRejection(d.DistributionNumber+"/"+d.InvestorDistributions[0].ID, "invalid IFSC")
	req = testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/submit", idParam(d.ID))
	handler.SubmitBatch(httptest.NewRecorder(), req)

	req = testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/retry", idParam(d.ID))
	w = httptest.NewRecorder()
	handler.RetryFailed(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var retry RetryResponse
	//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
	json.NewDecoder(w.Body).Decode(&retry)
	if retry.Reset != 1 {
		t.Errorf("Expected 1 reset, got %d", retry.Reset)
	}

	req = testutil.NewRequestWithURLParams(http.MethodGet, "/api/distribution/"+d.ID+"/payments/batches", idParam(d.ID))
	w = httptest.NewRecorder()
	handler.ListBatches(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var batches []model.PaymentBatch
	//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
	json.NewDecoder(w.Body).Decode(&batches)
	if len(batches) != 1 || batches[0].Status != model.BatchFailed {
		t.Errorf("Expected one failed batch, got %+v", batches)
	}
}

func TestPaymentHandler_MarkPaid(t *testing.T) {
	markPaid := func(t *testing.T, handler *PaymentHandler, id, investorID string, body any) *httptest.ResponseRecorder {
		t.Helper()
		req := testutil.NewJSONRequestWithURLParams(t, http.MethodPost, "/api/distribution/"+id+"/payments/"+investorID, body,
			map[string]string{"uuid": id, "investorId": investorID})
		w := httptest.NewRecorder()
		handler.MarkPaid(w, req)
		return w
	}

	t.Run("records, repeats and refuses", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, investors := testutil.CreateSPVWithShareholders(t, db, 1, 1)
		d := approvedDistribution(t, db, spv.ID)

		w := markPaid(t, handler, d.ID, investors[0].ID, map[string]string{"utr": "HDFCR52026030400001", "paymentDate": "2026-03-04"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var result model.MarkPaidResult
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)
		if result.NoOp || result.Allocation.PaymentStatus != model.PaymentCompleted {
			t.Errorf("Expected a recorded payment, got %+v", result)
		}
		if result.Allocation.PaymentDate == nil || result.Allocation.PaymentDate.Format("2006-01-02") != "2026-03-04" {
			t.Errorf("Expected payment date 2026-03-04, got %v", result.Allocation.PaymentDate)
		}

		w = markPaid(t, handler, d.ID, investors[0].ID, map[string]string{"utr": "HDFCR52026030400001"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 on repeat, got %d: %s", w.Code, w.Body.String())
		}
		result = model.MarkPaidResult{}
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)
		if !result.NoOp {
			t.Error("Expected noOp on repeat")
		}

		w = markPaid(t, handler, d.ID, investors[0].ID, map[string]string{"utr": "OTHER"})
		if w.Code != http.StatusConflict {
			t.Errorf("Expected 409 for a different reference, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 400 without a reference", func(t *testing.T) {
		handler, _ := setupPaymentHandler(t, testutil.NewMockGateway())

		w := markPaid(t, handler, testutil.MakeID(), testutil.MakeID(), map[string]string{"paymentDate": "2026-03-04"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 400 for a bad date", func(t *testing.T) {
		handler, _ := setupPaymentHandler(t, testutil.NewMockGateway())

		w := markPaid(t, handler, testutil.MakeID(), testutil.MakeID(), map[string]string{"utr": "U1", "paymentDate": "04/03/2026"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 404 for an investor outside the distribution", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, _ := testutil.CreateSPVWithShareholders(t, db, 1)
		d := approvedDistribution(t, db, spv.ID)

		w := markPaid(t, handler, d.ID, testutil.MakeID(), map[string]string{"utr": "U1"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestPaymentHandler_ImportConfirmations(t *testing.T) {
	t.Run("accepts a raw CSV body", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, investors := testutil.CreateSPVWithShareholders(t, db, 1, 1)
		d := approvedDistribution(t, db, spv.ID)

		csv := "Email,UTR\n" + investors[0].Email + ",U1\nunknown@example.com,U2\n"
		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/import", idParam(d.ID))
		req.Body = httpBody(csv)
		req.Header.Set("Content-Type", "text/csv")
		w := httptest.NewRecorder()
		handler.ImportConfirmations(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var result model.ImportResult
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)
		if result.SuccessCount != 1 || result.FailCount != 1 {
			t.Errorf("Expected 1 success and 1 failure, got %d and %d", result.SuccessCount, result.FailCount)
		}
		if len(result.Errors) != 1 || result.Errors[0].Row != 3 {
			t.Errorf("Expected row 3 reported, got %+v", result.Errors)
		}
	})

	t.Run("accepts a multipart upload", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, investors := testutil.CreateSPVWithShareholders(t, db, 1)
		d := approvedDistribution(t, db, spv.ID)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "confirmations.csv")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write([]byte("email,transaction_id\n" + investors[0].Email + ",TXN-1\n")) //nolint:errcheck // bytes.Buffer
		mw.Close()

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/import", idParam(d.ID))
		req.Body = httpBody(buf.String())
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		handler.ImportConfirmations(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var result model.ImportResult
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)
		if result.SuccessCount != 1 {
			t.Errorf("Expected 1 success, got %d", result.SuccessCount)
		}
	})

	t.Run("returns 400 for a multipart upload without a file", func(t *testing.T) {
		handler, _ := setupPaymentHandler(t, testutil.NewMockGateway())
		id := testutil.MakeID()

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("note", "no file") //nolint:errcheck // bytes.Buffer
		mw.Close()

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+id+"/payments/import", idParam(id))
		req.Body = httpBody(buf.String())
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		handler.ImportConfirmations(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 400 without an email column", func(t *testing.T) {
		handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
		spv, _ := testutil.CreateSPVWithShareholders(t, db, 1)
		d := approvedDistribution(t, db, spv.ID)

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/distribution/"+d.ID+"/payments/import", idParam(d.ID))
		req.Body = httpBody("utr\nU1\n")
		w := httptest.NewRecorder()
		handler.ImportConfirmations(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestPaymentHandler_Exports(t *testing.T) {
	handler, db := setupPaymentHandler(t, testutil.NewMockGateway())
	spv, investors := testutil.CreateSPVWithShareholders(t, db, 1, 1)
	d := approvedDistribution(t, db, spv.ID)

	t.Run("bank batch CSV", func(t *testing.T) {
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/distribution/"+d.ID+"/bank-batch.csv", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.BankBatchCSV(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Expected text/csv, got %s", ct)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, d.DistributionNumber+"-bank-batch.csv") {
			t.Errorf("Expected the file named after the distribution, got %s", cd)
		}
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("Expected header and 2 rows, got %d lines", len(lines))
		}
		if !strings.Contains(lines[0], "Beneficiary Name") || !strings.Contains(lines[0], "IFSC Code") {
			t.Errorf("Unexpected header %s", lines[0])
		}
		if !strings.Contains(lines[1], "HDFC0001234") {
			t.Errorf("Expected IFSC on row 1, got %s", lines[1])
		}
	})

	t.Run("bank batch XLSX", func(t *testing.T) {
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/distribution/"+d.ID+"/bank-batch.xlsx", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.BankBatchXLSX(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != contentTypeXLSX {
			t.Errorf("Expected %s, got %s", contentTypeXLSX, ct)
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
			t.Error("Expected a zip based workbook")
		}
	})

	t.Run("confirmation template", func(t *testing.T) {
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/distribution/"+d.ID+"/payments/template.csv", idParam(d.ID))
		w := httptest.NewRecorder()
		handler.ConfirmationTemplate(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := w.Body.String()
		if !strings.HasPrefix(body, "email,transaction_id,utr,payment_date") {
			t.Errorf("Unexpected template header: %s", body)
		}
		for _, inv := range investors {
			if !strings.Contains(body, inv.Email) {
				t.Errorf("Expected %s in template", inv.Email)
			}
		}
	})

	t.Run("returns 404 for an unknown distribution", func(t *testing.T) {
		id := testutil.MakeID()
		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/distribution/"+id+"/bank-batch.csv", idParam(id))
		w := httptest.NewRecorder()
		handler.BankBatchCSV(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}
