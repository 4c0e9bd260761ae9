package model

import (
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/shopspring/decimal"
)

// DistributionType classifies the proceeds being distributed.
type DistributionType string

const (
	TypeFinalSaleProceeds DistributionType = "final_sale_proceeds"
	TypeInterimDividend   DistributionType = "interim_dividend"
	TypeRentalIncome      DistributionType = "rental_income"
	TypeLeasePayment      DistributionType = "lease_payment"
)

// ValidDistributionTypes contains the allowed distribution type values.
var ValidDistributionTypes = map[DistributionType]bool{
	TypeFinalSaleProceeds: true,
	TypeInterimDividend:   true,
	TypeRentalIncome:      true,
	TypeLeasePayment:      true,
}

// Label returns a human readable name, used in ledger descriptions and bank remarks.
func (t DistributionType) Label() string {
	switch t {
	case TypeFinalSaleProceeds:
		return "Final sale proceeds"
	case TypeInterimDividend:
		return "Interim dividend"
	case TypeRentalIncome:
		return "Rental income"
	case TypeLeasePayment:
		return "Lease payment"
	default:
		return string(t)
	}
}

// Status is the lifecycle state of a distribution.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusCalculated  Status = "calculated"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// ValidStatuses contains the allowed status values.
var ValidStatuses = map[Status]bool{
	StatusDraft:       true,
	StatusCalculated:  true,
	StatusUnderReview: true,
	StatusApproved:    true,
	StatusProcessing:  true,
	StatusCompleted:   true,
	StatusCancelled:   true,
}

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ApprovalRole is one of the three parties that must sign off a distribution.
type ApprovalRole string

const (
	RoleAssetManager ApprovalRole = "assetManager"
	RoleCompliance   ApprovalRole = "compliance"
	RoleAdmin        ApprovalRole = "admin"
)

// ValidApprovalRoles contains the allowed approval roles.
var ValidApprovalRoles = map[ApprovalRole]bool{
	RoleAssetManager: true,
	RoleCompliance:   true,
	RoleAdmin:        true,
}

// Deductions are the named costs taken off gross proceeds before platform fees.
type Deductions struct {
	LegalFees       money.Money `json:"legalFees"`
	BrokerageFees   money.Money `json:"brokerageFees"`
	OtherDeductions money.Money `json:"otherDeductions"`
}

// Total sums all deductions.
func (d Deductions) Total() money.Money {
	return money.Sum(d.LegalFees, d.BrokerageFees, d.OtherDeductions)
}

// PlatformFees are the platform's own charges on a distribution.
type PlatformFees struct {
	ManagementFee money.Money `json:"managementFee"`
	ProcessingFee money.Money `json:"processingFee"`
}

// Total sums all platform fees.
func (f PlatformFees) Total() money.Money {
	return money.Sum(f.ManagementFee, f.ProcessingFee)
}

// Approval is one party's sign-off.
type Approval struct {
	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	Comments   string     `json:"comments,omitempty"`
}

// Approvals holds the three independent sign-offs.
type Approvals struct {
	AssetManager Approval `json:"assetManager"`
	Compliance   Approval `json:"compliance"`
	Admin        Approval `json:"admin"`
}

// Get returns the approval record for role.
func (a *Approvals) Get(role ApprovalRole) *Approval {
	switch role {
	case RoleAssetManager:
		return &a.AssetManager
	case RoleCompliance:
		return &a.Compliance
	case RoleAdmin:
		return &a.Admin
	default:
		return nil
	}
}

// Any reports whether at least one approval has been recorded.
func (a Approvals) Any() bool {
	return a.AssetManager.Approved || a.Compliance.Approved || a.Admin.Approved
}

// Distribution is one calculation event for one SPV.
type Distribution struct {
	ID                     string               `json:"id"`
	DistributionNumber     string               `json:"distributionNumber"`
	SPVID                  string               `json:"spvId"`
	SPVName                string               `json:"spvName"`
	ProjectID              string               `json:"projectId"`
	ProjectName            string               `json:"projectName"`
	AssetManagerID         string               `json:"assetManagerId,omitempty"`
	Type                   DistributionType     `json:"distributionType"`
	GrossProceeds          money.Money          `json:"grossProceeds"`
	Deductions             Deductions           `json:"deductions"`
	PlatformFees           PlatformFees         `json:"platformFees"`
	TotalDeductions        money.Money          `json:"totalDeductions"`
	TotalPlatformFees      money.Money          `json:"totalPlatformFees"`
	NetDistributableAmount money.Money          `json:"netDistributableAmount"`
	TDSRate                decimal.Decimal      `json:"tdsRate"`
	TotalShares            int64                `json:"totalShares"`
	Status                 Status               `json:"status"`
	Approvals              Approvals            `json:"approvals"`
	InvestorDistributions  []InvestorAllocation `json:"investorDistributions"`
	CancellationReason     string               `json:"cancellationReason,omitempty"`
	Version                int64                `json:"version"`
	CreatedAt              time.Time            `json:"createdAt"`
	UpdatedAt              time.Time            `json:"updatedAt"`
}

// Totals aggregates the allocation amounts of a distribution.
type Totals struct {
	Gross money.Money `json:"gross"`
	TDS   money.Money `json:"tds"`
	Net   money.Money `json:"net"`
}

// AllocationTotals sums gross, TDS and net across all allocations.
func (d *Distribution) AllocationTotals() Totals {
	var t Totals
	for _, a := range d.InvestorDistributions {
		t.Gross += a.GrossAmount
		t.TDS += a.TDSAmount
		t.Net += a.NetAmount
	}
	return t
}

// Allocation returns the allocation held by investorID, or nil.
func (d *Distribution) Allocation(investorID string) *InvestorAllocation {
	for i := range d.InvestorDistributions {
		if d.InvestorDistributions[i].InvestorID == investorID {
			return &d.InvestorDistributions[i]
		}
	}
	return nil
}

// DistributionSummary is the list view of a distribution, without allocations.
type DistributionSummary struct {
	ID                     string           `json:"id"`
	DistributionNumber     string           `json:"distributionNumber"`
	SPVID                  string           `json:"spvId"`
	SPVName                string           `json:"spvName"`
	ProjectID              string           `json:"projectId"`
	ProjectName            string           `json:"projectName"`
	AssetManagerID         string           `json:"assetManagerId,omitempty"`
	Type                   DistributionType `json:"distributionType"`
	GrossProceeds          money.Money      `json:"grossProceeds"`
	NetDistributableAmount money.Money      `json:"netDistributableAmount"`
	Status                 Status           `json:"status"`
	InvestorCount          int              `json:"investorCount"`
	PaidCount              int              `json:"paidCount"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

// DistributionFilters narrows a distribution listing. Zero values mean "no filter".
type DistributionFilters struct {
	Statuses       []Status
	ProjectID      string
	AssetManagerID string
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	PerPage        int
}

// DistributionPage is one page of a distribution listing.
type DistributionPage struct {
	Distributions []DistributionSummary `json:"distributions"`
	Page          int                   `json:"page"`
	PerPage       int                   `json:"perPage"`
	Total         int                   `json:"total"`
	TotalPages    int                   `json:"totalPages"`
}
