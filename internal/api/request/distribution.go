package request

import (
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
)

// CalculateDistributionRequest creates a distribution for an SPV.
// With Draft set only the inputs are stored and the allocations are produced by a later
// calculate call.
type CalculateDistributionRequest struct {
	SPVID            string             `json:"spvId" validate:"required,uuid"`
	DistributionType string             `json:"distributionType" validate:"required,oneof=final_sale_proceeds interim_dividend rental_income lease_payment"`
	GrossProceeds    money.Money        `json:"grossProceeds"`
	Deductions       model.Deductions   `json:"deductions"`
	PlatformFees     model.PlatformFees `json:"platformFees"`
	Draft            bool               `json:"draft"`
}

// UpdateDistributionRequest replaces the financial inputs of a draft or calculated distribution.
type UpdateDistributionRequest struct {
	DistributionType string             `json:"distributionType" validate:"required,oneof=final_sale_proceeds interim_dividend rental_income lease_payment"`
	GrossProceeds    money.Money        `json:"grossProceeds"`
	Deductions       model.Deductions   `json:"deductions"`
	PlatformFees     model.PlatformFees `json:"platformFees"`
}

type ApproveDistributionRequest struct {
	Role       string `json:"role" validate:"required,oneof=assetManager compliance admin"`
	ApprovedBy string `json:"approvedBy" validate:"required,max=200"`
	Comments   string `json:"comments" validate:"max=2000"`
}

type CancelDistributionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
