package service

import (
	"errors"
	"testing"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twentyPercent = decimal.RequireFromString("0.20")

func TestCalculationInput_Validate(t *testing.T) {
	valid := CalculationInput{
		Type:          model.TypeFinalSaleProceeds,
		GrossProceeds: money.FromMajor(10_000_000),
	}
	require.NoError(t, valid.Validate())

	in := CalculationInput{
		Type:          "bonus",
		GrossProceeds: 0,
		Deductions:    model.Deductions{LegalFees: -1},
		PlatformFees:  model.PlatformFees{ProcessingFee: -5},
	}
	err := in.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "grossProceeds")
	assert.Contains(t, verr.Fields, "distributionType")
	assert.Contains(t, verr.Fields, "deductions.legalFees")
	assert.Contains(t, verr.Fields, "platformFees.processingFee")
	assert.NotContains(t, verr.Fields, "deductions.brokerageFees")
}

func TestComputeTotals(t *testing.T) {
	t.Run("net is gross less deductions and fees", func(t *testing.T) {
		totals, err := computeTotals(CalculationInput{
			GrossProceeds: money.FromMajor(10_000_000),
			Deductions:    model.Deductions{LegalFees: money.FromMajor(200_000)},
			PlatformFees:  model.PlatformFees{ManagementFee: money.FromMajor(300_000)},
		})
		require.NoError(t, err)
		assert.Equal(t, money.FromMajor(200_000), totals.TotalDeductions)
		assert.Equal(t, money.FromMajor(300_000), totals.TotalPlatformFees)
		assert.Equal(t, money.FromMajor(9_500_000), totals.Net)
	})

	t.Run("net may be exactly zero", func(t *testing.T) {
		totals, err := computeTotals(CalculationInput{
			GrossProceeds: money.FromMajor(100),
			Deductions:    model.Deductions{OtherDeductions: money.FromMajor(100)},
		})
		require.NoError(t, err)
		assert.True(t, totals.Net.IsZero())
	})

	t.Run("negative net is rejected", func(t *testing.T) {
		_, err := computeTotals(CalculationInput{
			GrossProceeds: money.FromMajor(100),
			Deductions:    model.Deductions{BrokerageFees: money.FromMajor(60)},
			PlatformFees:  model.PlatformFees{ManagementFee: money.FromMajor(41)},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidCalculation)
	})
}

func TestSplitDistribution(t *testing.T) {
	t.Run("worked example", func(t *testing.T) {
		holders := []model.Shareholder{{InvestorID: "a", Shares: 60}, {InvestorID: "b", Shares: 40}}

		out, total, err := splitDistribution(money.FromMajor(9_500_000), holders, twentyPercent)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, int64(100), total)

		assert.Equal(t, money.FromMajor(5_700_000), out[0].Gross)
		assert.Equal(t, money.FromMajor(1_140_000), out[0].TDS)
		assert.Equal(t, money.FromMajor(4_560_000), out[0].Net)
		assert.Equal(t, money.FromMajor(3_800_000), out[1].Gross)
		assert.Equal(t, money.FromMajor(760_000), out[1].TDS)
		assert.Equal(t, money.FromMajor(3_040_000), out[1].Net)
	})

	t.Run("net plus tds always equals the distributable amount", func(t *testing.T) {
		holders := []model.Shareholder{
			{InvestorID: "a", Shares: 1},
			{InvestorID: "b", Shares: 1},
			{InvestorID: "c", Shares: 1},
			{InvestorID: "d", Shares: 7},
		}
		for _, net := range []money.Money{1, 2, 99, 100_001, 33_333_333} {
			out, _, err := splitDistribution(net, holders, decimal.RequireFromString("0.175"))
			require.NoError(t, err)

			var sum money.Money
			for _, a := range out {
				assert.False(t, a.Gross.IsNegative())
				assert.Equal(t, a.Gross, a.Net+a.TDS)
				sum += a.Net + a.TDS
			}
			assert.Equal(t, net, sum, "net %s", net)
		}
	})

	t.Run("keeps registry order", func(t *testing.T) {
		holders := []model.Shareholder{{InvestorID: "z", Shares: 3}, {InvestorID: "a", Shares: 5}}
		out, _, err := splitDistribution(money.FromMajor(80), holders, twentyPercent)
		require.NoError(t, err)
		assert.Equal(t, "z", out[0].InvestorID)
		assert.Equal(t, int64(3), out[0].Shares)
		assert.Equal(t, "a", out[1].InvestorID)
	})

	tests := []struct {
		name    string
		holders []model.Shareholder
	}{
		{"empty registry", nil},
		{"zero shares", []model.Shareholder{{InvestorID: "a", Shares: 0}}},
		{"negative shares", []model.Shareholder{{InvestorID: "a", Shares: 10}, {InvestorID: "b", Shares: -1}}},
		{"duplicate investor", []model.Shareholder{{InvestorID: "a", Shares: 1}, {InvestorID: "a", Shares: 2}}},
		{"missing investor", []model.Shareholder{{Shares: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := splitDistribution(money.FromMajor(100), tt.holders, twentyPercent)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCalculation)
		})
	}
}

func TestDistributionNumber(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "DIST-20260301-0A1B2C3D", distributionNumber("0a1b2c3d-4e5f-6789-abcd-ef0123456789", at))
	assert.Equal(t, "DIST-20260301-AB", distributionNumber("ab", at))
}
