package service

import (
	"fmt"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
	"github.com/shopspring/decimal"
)

// CalculationInput holds the financial inputs of a distribution.
type CalculationInput struct {
	Type          model.DistributionType
	GrossProceeds money.Money
	Deductions    model.Deductions
	PlatformFees  model.PlatformFees
}

// Validate checks the inputs before anything is read or written.
func (in CalculationInput) Validate() error {
	fields := map[string]string{}

	if !in.GrossProceeds.IsPositive() {
		fields["grossProceeds"] = "must be greater than zero"
	}
	if !model.ValidDistributionTypes[in.Type] {
		fields["distributionType"] = fmt.Sprintf("invalid distribution type %q", in.Type)
	}

	nonNegative := map[string]money.Money{
		"deductions.legalFees":       in.Deductions.LegalFees,
		"deductions.brokerageFees":   in.Deductions.BrokerageFees,
		"deductions.otherDeductions": in.Deductions.OtherDeductions,
		"platformFees.managementFee": in.PlatformFees.ManagementFee,
		"platformFees.processingFee": in.PlatformFees.ProcessingFee,
	}
	for name, amount := range nonNegative {
		if amount.IsNegative() {
			fields[name] = "must not be negative"
		}
	}

	if len(fields) > 0 {
		return &validation.Error{Fields: fields}
	}
	return nil
}

// Totals are the distribution-level amounts derived from the inputs.
type calculationTotals struct {
	TotalDeductions   money.Money
	TotalPlatformFees money.Money
	Net               money.Money
}

func computeTotals(in CalculationInput) (calculationTotals, error) {
	t := calculationTotals{
		TotalDeductions:   in.Deductions.Total(),
		TotalPlatformFees: in.PlatformFees.Total(),
	}
	t.Net = in.GrossProceeds - t.TotalDeductions - t.TotalPlatformFees
	if t.Net.IsNegative() {
		return t, fmt.Errorf("%w: deductions %s and platform fees %s exceed gross proceeds %s",
			apperrors.ErrInvalidCalculation, t.TotalDeductions, t.TotalPlatformFees, in.GrossProceeds)
	}
	return t, nil
}

// allocationAmounts is one shareholder's computed share.
type allocationAmounts struct {
	InvestorID string
	Shares     int64
	Gross      money.Money
	TDS        money.Money
	Net        money.Money
}

// splitDistribution apportions net across holders by share count and withholds TDS per
// allocation. The gross amounts always sum to net exactly.
func splitDistribution(net money.Money, holders []model.Shareholder, tdsRate decimal.Decimal) ([]allocationAmounts, int64, error) {
	if len(holders) == 0 {
		return nil, 0, fmt.Errorf("%w: shareholder registry is empty", apperrors.ErrInvalidCalculation)
	}

	seen := make(map[string]bool, len(holders))
	weights := make([]int64, len(holders))
	var totalShares int64
	for i, h := range holders {
		if h.InvestorID == "" {
			return nil, 0, fmt.Errorf("%w: registry entry %d has no investor", apperrors.ErrInvalidCalculation, i)
		}
		if seen[h.InvestorID] {
			return nil, 0, fmt.Errorf("%w: investor %s appears twice in the registry", apperrors.ErrInvalidCalculation, h.InvestorID)
		}
		seen[h.InvestorID] = true
		if h.Shares <= 0 {
			return nil, 0, fmt.Errorf("%w: investor %s holds %d shares", apperrors.ErrInvalidCalculation, h.InvestorID, h.Shares)
		}
		weights[i] = h.Shares
		totalShares += h.Shares
	}

	gross, err := money.Split(net, weights)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidCalculation, err)
	}

	out := make([]allocationAmounts, len(holders))
	for i, h := range holders {
		tds := money.ApplyRate(gross[i], tdsRate)
		out[i] = allocationAmounts{
			InvestorID: h.InvestorID,
			Shares:     h.Shares,
			Gross:      gross[i],
			TDS:        tds,
			Net:        gross[i] - tds,
		}
	}
	return out, totalShares, nil
}
