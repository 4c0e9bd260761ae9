package model

import (
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// PaymentStatus is the payment sub-state of one investor allocation.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentInitiated  PaymentStatus = "initiated"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// IsTerminal reports whether the payment reached a final outcome.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// IsPayable reports whether the allocation belongs in a bank submission batch.
func (s PaymentStatus) IsPayable() bool {
	return s == PaymentPending || s == PaymentProcessing
}

// InvestorAllocation is one shareholder's frozen share of a distribution.
type InvestorAllocation struct {
	ID             string        `json:"id"`
	DistributionID string        `json:"distributionId"`
	Position       int           `json:"position"`
	InvestorID     string        `json:"investorId"`
	InvestorName   string        `json:"investorName"`
	InvestorEmail  string        `json:"investorEmail"`
	Shares         int64         `json:"shares"`
	GrossAmount    money.Money   `json:"grossAmount"`
	TDSAmount      money.Money   `json:"tdsAmount"`
	NetAmount      money.Money   `json:"netAmount"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	TransactionID  string        `json:"transactionId,omitempty"`
	UTR            string        `json:"utr,omitempty"`
	PaymentDate    *time.Time    `json:"paymentDate,omitempty"`
	BatchID        string        `json:"batchId,omitempty"`
	FailureReason  string        `json:"failureReason,omitempty"`
	BankDetails    *BankDetails  `json:"bankDetails,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// PaymentReference identifies a settled payment by transaction id and/or bank UTR.
type PaymentReference struct {
	TransactionID string     `json:"transactionId,omitempty"`
	UTR           string     `json:"utr,omitempty"`
	PaymentDate   *time.Time `json:"paymentDate,omitempty"`
}

// IsEmpty reports whether neither a transaction id nor a UTR was supplied.
func (r PaymentReference) IsEmpty() bool {
	return r.TransactionID == "" && r.UTR == ""
}

// Matches reports whether ref names the payment already recorded on a.
// Every identifier ref supplies must equal the recorded one.
func (r PaymentReference) Matches(a *InvestorAllocation) bool {
	if r.IsEmpty() {
		return false
	}
	if r.TransactionID != "" && r.TransactionID != a.TransactionID {
		return false
	}
	if r.UTR != "" && r.UTR != a.UTR {
		return false
	}
	return true
}

// MarkPaidResult is the outcome of recording a single payment.
type MarkPaidResult struct {
	Allocation InvestorAllocation `json:"allocation"`
	NoOp       bool               `json:"noOp"`
}

// ImportRowError names one rejected confirmation row.
type ImportRowError struct {
	Row    int    `json:"row"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult reports a manual confirmation import. Row failures are data, not errors.
type ImportResult struct {
	SuccessCount int              `json:"successCount"`
	FailCount    int              `json:"failCount"`
	Errors       []ImportRowError `json:"errors"`
}
