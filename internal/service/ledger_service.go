package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"golang.org/x/sync/errgroup"
)

// excludedInvestmentStatuses never count towards the invested total.
var excludedInvestmentStatuses = map[string]bool{
	"failed":    true,
	"cancelled": true,
	"refunded":  true,
}

// LedgerService builds the read-only cash-flow history of an investor.
type LedgerService struct {
	distRepo    *repository.DistributionRepository
	investors   InvestorDirectory
	investments InvestmentSource
}

// NewLedgerService creates a new LedgerService with the provided dependencies.
func NewLedgerService(
	distRepo *repository.DistributionRepository,
	investors InvestorDirectory,
	investments InvestmentSource,
) *LedgerService {
	return &LedgerService{
		distRepo:    distRepo,
		investors:   investors,
		investments: investments,
	}
}

// GetTransactionHistory merges an investor's investments and distribution payouts into one
// list ordered by date, plus summary totals. Allocations of cancelled distributions are left
// out; only completed payouts count as received.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, investorID string) (*model.TransactionHistory, error) {
	var investments []model.Investment
	var allocations []model.InvestorAllocationRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.investors.GetInvestor(gctx, investorID)
		return err
	})
	g.Go(func() error {
		var err error
		investments, err = s.investments.GetInvestments(gctx, investorID)
		return err
	})
	g.Go(func() error {
		var err error
		allocations, err = s.distRepo.GetAllocationsByInvestor(gctx, investorID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	history := &model.TransactionHistory{
		InvestorID:   investorID,
		Transactions: make([]model.LedgerEntry, 0, len(investments)+len(allocations)),
	}

	for _, inv := range investments {
		reference := inv.Reference
		if reference == "" {
			reference = inv.ID
		}
		history.Transactions = append(history.Transactions, model.LedgerEntry{
			Date:        inv.Date,
			Type:        model.LedgerInvestment,
			Amount:      inv.Amount,
			Status:      inv.Status,
			Reference:   reference,
			ProjectName: inv.ProjectName,
			SPVName:     inv.SPVName,
			Description: investmentDescription(inv),
		})
		history.Summary.TotalInvestments++
		if !excludedInvestmentStatuses[strings.ToLower(inv.Status)] {
			history.Summary.TotalInvested += inv.Amount
		}
	}

	for _, rec := range allocations {
		if rec.DistributionStatus == model.StatusCancelled {
			continue
		}
		a := rec.Allocation
		date := rec.CreatedAt
		if a.PaymentDate != nil {
			date = *a.PaymentDate
		}
		history.Transactions = append(history.Transactions, model.LedgerEntry{
			Date:        date,
			Type:        model.LedgerDistribution,
			Amount:      a.NetAmount,
			Status:      string(a.PaymentStatus),
			Reference:   rec.DistributionNumber,
			ProjectName: rec.ProjectName,
			SPVName:     rec.SPVName,
			Description: fmt.Sprintf("%s payout: gross %s, TDS %s", rec.DistributionType.Label(), a.GrossAmount, a.TDSAmount),
		})
		history.Summary.TotalDistributions++
		if a.PaymentStatus == model.PaymentCompleted {
			history.Summary.TotalReceived += a.NetAmount
		}
	}

	sort.SliceStable(history.Transactions, func(i, j int) bool {
		a, b := history.Transactions[i], history.Transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Reference < b.Reference
	})

	return history, nil
}

func investmentDescription(inv model.Investment) string {
	switch {
	case inv.ProjectName != "":
		return "Investment in " + inv.ProjectName
	case inv.SPVName != "":
		return "Investment in " + inv.SPVName
	default:
		return "Investment"
	}
}
