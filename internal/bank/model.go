package bank

import (
	"strings"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// PaymentRow is one payout instruction in a batch.
type PaymentRow struct {
	Reference       string      `json:"reference"`
	BeneficiaryName string      `json:"beneficiaryName"`
	AccountNumber   string      `json:"accountNumber"`
	IFSC            string      `json:"ifsc"`
	BankName        string      `json:"bankName,omitempty"`
	Branch          string      `json:"branch,omitempty"`
	Amount          money.Money `json:"amount"`
	Currency        string      `json:"currency"`
	Remark          string      `json:"remark,omitempty"`
}

// BatchRequest is the body of a batch submission.
type BatchRequest struct {
	Reference string       `json:"reference"`
	Payments  []PaymentRow `json:"payments"`
}

// RowResult is the bank's outcome for one payment row.
type RowResult struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	UTR           string `json:"utr,omitempty"`
	PaymentDate   string `json:"paymentDate,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Succeeded reports whether the bank accepted and settled the row.
func (r RowResult) Succeeded() bool {
	switch strings.ToLower(r.Status) {
	case "success", "completed", "paid":
		return true
	default:
		return false
	}
}

// PaidAt parses PaymentDate. ok is false when it is absent or unparseable.
func (r RowResult) PaidAt() (t time.Time, ok bool) {
	if r.PaymentDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, r.PaymentDate); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// BatchResponse is the bank's answer to a batch submission.
type BatchResponse struct {
	BatchID                string      `json:"batchId"`
	TotalTransactions      int         `json:"totalTransactions"`
	SuccessfulTransactions int         `json:"successfulTransactions"`
	FailedTransactions     int         `json:"failedTransactions"`
	Results                []RowResult `json:"results"`
}

// ErrorResponse is the body the bank returns with non-2xx statuses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
