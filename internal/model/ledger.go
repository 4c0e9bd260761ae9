package model

import (
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// LedgerEntryType tells investments and distribution payouts apart in a history.
type LedgerEntryType string

const (
	LedgerInvestment   LedgerEntryType = "investment"
	LedgerDistribution LedgerEntryType = "distribution"
)

// LedgerEntry is one cash-flow line in an investor's transaction history.
type LedgerEntry struct {
	Date        time.Time       `json:"date"`
	Type        LedgerEntryType `json:"type"`
	Amount      money.Money     `json:"amount"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference"`
	ProjectName string          `json:"projectName"`
	SPVName     string          `json:"spvName,omitempty"`
	Description string          `json:"description"`
}

// LedgerSummary totals an investor's history.
type LedgerSummary struct {
	TotalInvestments   int         `json:"totalInvestments"`
	TotalDistributions int         `json:"totalDistributions"`
	TotalInvested      money.Money `json:"totalInvested"`
	TotalReceived      money.Money `json:"totalReceived"`
}

// TransactionHistory is the read-only audit view for one investor.
type TransactionHistory struct {
	InvestorID   string        `json:"investorId"`
	Transactions []LedgerEntry `json:"transactions"`
	Summary      LedgerSummary `json:"summary"`
}

// InvestorAllocationRecord is an allocation joined with its distribution's identifying fields.
type InvestorAllocationRecord struct {
	Allocation         InvestorAllocation
	DistributionNumber string
	DistributionType   DistributionType
	DistributionStatus Status
	ProjectName        string
	SPVName            string
	CreatedAt          time.Time
}
