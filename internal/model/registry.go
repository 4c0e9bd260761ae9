package model

import (
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// SPV is the special-purpose vehicle whose proceeds are distributed.
type SPV struct {
	ID             string
	Name           string
	ProjectID      string
	ProjectName    string
	AssetManagerID string
}

// Shareholder is one entry of an SPV's shareholder registry.
type Shareholder struct {
	InvestorID string
	Shares     int64
}

// Investor is the profile data the engine snapshots onto an allocation.
type Investor struct {
	ID    string
	Name  string
	Email string
}

// BankDetails is the payout account of an investor.
type BankDetails struct {
	AccountHolderName string `json:"accountHolderName"`
	AccountNumber     string `json:"accountNumber"`
	IFSC              string `json:"ifsc"`
	BankName          string `json:"bankName"`
	BranchName        string `json:"branchName"`
}

// IsComplete reports whether the details are enough to submit a payment.
func (b *BankDetails) IsComplete() bool {
	return b != nil && b.AccountHolderName != "" && b.AccountNumber != "" && b.IFSC != ""
}

// MaskedAccountNumber returns the account number with all but the last four digits hidden.
func (b *BankDetails) MaskedAccountNumber() string {
	if b == nil {
		return ""
	}
	n := len(b.AccountNumber)
	if n <= 4 {
		return b.AccountNumber
	}
	masked := make([]byte, n)
	for i := range masked {
		if i < n-4 {
			masked[i] = 'X'
		} else {
			masked[i] = b.AccountNumber[i]
		}
	}
	return string(masked)
}

// Investment is one capital contribution by an investor, from the external investment ledger.
type Investment struct {
	ID          string
	InvestorID  string
	Date        time.Time
	Amount      money.Money
	ProjectID   string
	ProjectName string
	SPVName     string
	Status      string
	Reference   string
}
