package model

import (
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// BatchStatus is the outcome of one bank submission.
type BatchStatus string

const (
	BatchSubmitted BatchStatus = "submitted"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// PaymentBatch records one bulk submission to the bank gateway.
type PaymentBatch struct {
	ID             string      `json:"id"`
	DistributionID string      `json:"distributionId"`
	BankBatchID    string      `json:"bankBatchId,omitempty"`
	Status         BatchStatus `json:"status"`
	Total          int         `json:"total"`
	Successful     int         `json:"successful"`
	Failed         int         `json:"failed"`
	Amount         money.Money `json:"amount"`
	Error          string      `json:"error,omitempty"`
	SubmittedAt    time.Time   `json:"submittedAt"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

// BatchRowResult is the per-allocation outcome of a bank submission.
type BatchRowResult struct {
	AllocationID  string        `json:"allocationId"`
	InvestorID    string        `json:"investorId"`
	Reference     string        `json:"reference"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	TransactionID string        `json:"transactionId,omitempty"`
	UTR           string        `json:"utr,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// BatchResult is what a bulk submission reports back to the caller.
type BatchResult struct {
	Batch                  PaymentBatch     `json:"batch"`
	TotalTransactions      int              `json:"totalTransactions"`
	SuccessfulTransactions int              `json:"successfulTransactions"`
	FailedTransactions     int              `json:"failedTransactions"`
	Rows                   []BatchRowResult `json:"rows"`
	DistributionStatus     Status           `json:"distributionStatus"`
	NeedsAttention         bool             `json:"needsAttention"`
}

// BankBatchRow is one line of the bank-submission export.
type BankBatchRow struct {
	BeneficiaryName string
	AccountNumber   string
	IFSC            string
	BankName        string
	Branch          string
	Amount          money.Money
	Reference       string
	Remark          string
}

// PaymentConfirmation is one row of a manual payment confirmation upload.
type PaymentConfirmation struct {
	Row           int
	Email         string
	TransactionID string
	UTR           string
	PaymentDate   *time.Time
}
