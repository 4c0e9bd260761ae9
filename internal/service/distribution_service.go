package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/metrics"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/workflow"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// lookupConcurrency bounds the investor/bank lookups fanned out per calculation.
const lookupConcurrency = 8

// Pagination defaults for ListDistributions.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// DistributionService calculates distributions and serves them to callers.
type DistributionService struct {
	db       *sql.DB
	distRepo *repository.DistributionRepository
	registry Registry
	clock    clockwork.Clock
	tdsRate  decimal.Decimal
	log      *slog.Logger
}

// NewDistributionService creates a new DistributionService. tdsRate is the withholding
// applied to every allocation.
func NewDistributionService(
	db *sql.DB,
	distRepo *repository.DistributionRepository,
	registry Registry,
	clock clockwork.Clock,
	tdsRate decimal.Decimal,
	log *slog.Logger,
) *DistributionService {
	return &DistributionService{
		db:       db,
		distRepo: distRepo,
		registry: registry,
		clock:    clock,
		tdsRate:  tdsRate,
		log:      log,
	}
}

// CalculateRequest asks for a new distribution of an SPV's proceeds.
// With Draft set only the inputs are recorded; Recalculate produces the allocations later.
type CalculateRequest struct {
	SPVID string
	CalculationInput
	Draft bool
}

// DistributionDetail is a distribution together with the actions currently legal on it.
type DistributionDetail struct {
	*model.Distribution
	Totals       model.Totals          `json:"totals"`
	Capabilities workflow.Capabilities `json:"capabilities"`
}

// Describe attaches totals and capabilities to d.
func Describe(d *model.Distribution) DistributionDetail {
	return DistributionDetail{
		Distribution: d,
		Totals:       d.AllocationTotals(),
		Capabilities: workflow.CapabilitiesOf(d),
	}
}

// Calculate creates a distribution for req.SPVID from a fresh registry snapshot.
//
// The SPV must exist, have a project, and have no distribution that is neither completed
// nor cancelled. The registry is only read.
func (s *DistributionService) Calculate(ctx context.Context, req CalculateRequest) (*model.Distribution, error) {
	if strings.TrimSpace(req.SPVID) == "" {
		return nil, fmt.Errorf("%w: spvId is required", apperrors.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	totals, err := computeTotals(req.CalculationInput)
	if err != nil {
		return nil, err
	}

	spv, err := s.registry.GetSPV(ctx, req.SPVID)
	if err != nil {
		return nil, err
	}
	if spv.ProjectID == "" {
		return nil, fmt.Errorf("%w: spv %s has no assigned project", apperrors.ErrInvalidCalculation, spv.ID)
	}

	active, err := s.distRepo.HasActiveDistribution(ctx, spv.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperrors.ErrActiveDistributionExists
	}

	now := s.clock.Now().UTC()
	id := uuid.New().String()
	d := &model.Distribution{
		ID:                    id,
		DistributionNumber:    distributionNumber(id, now),
		SPVID:                 spv.ID,
		SPVName:               spv.Name,
		ProjectID:             spv.ProjectID,
		ProjectName:           spv.ProjectName,
		AssetManagerID:        spv.AssetManagerID,
		Status:                model.StatusDraft,
		TDSRate:               s.tdsRate,
		InvestorDistributions: []model.InvestorAllocation{},
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	applyInputs(d, req.CalculationInput, totals)

	if !req.Draft {
		if err := s.snapshot(ctx, d, now); err != nil {
			return nil, err
		}
		d.Status, err = workflow.Apply(d.Status, workflow.EventCalculate)
		if err != nil {
			return nil, err
		}
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.distRepo.WithTx(tx)
		active, err := repo.HasActiveDistribution(ctx, spv.ID)
		if err != nil {
			return err
		}
		if active {
			return apperrors.ErrActiveDistributionExists
		}
		return repo.InsertDistribution(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	if d.Status == model.StatusCalculated {
		metrics.DistributionsCalculatedTotal.WithLabelValues(string(d.Type)).Inc()
	}
	metrics.DistributionTransitionsTotal.WithLabelValues(string(d.Status)).Inc()
	s.log.InfoContext(ctx, "distribution created",
		"distribution_id", d.ID,
		"distribution_number", d.DistributionNumber,
		"spv_id", d.SPVID,
		"status", d.Status,
		"investors", len(d.InvestorDistributions),
		"net_distributable", d.NetDistributableAmount.String(),
	)

	return d, nil
}

// Recalculate takes a fresh registry snapshot with the stored inputs. It moves a draft to
// calculated and is allowed until the first approval.
func (s *DistributionService) Recalculate(ctx context.Context, id string) (*model.Distribution, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckEdit(d); err != nil {
		return nil, err
	}
	return s.recompute(ctx, d, inputsOf(d), true)
}

// Edit replaces the financial inputs. A draft stays a draft; a calculated distribution is
// recomputed on a fresh registry snapshot. Allowed until the first approval.
func (s *DistributionService) Edit(ctx context.Context, id string, in CalculationInput) (*model.Distribution, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckEdit(d); err != nil {
		return nil, err
	}
	return s.recompute(ctx, d, in, d.Status != model.StatusDraft)
}

func (s *DistributionService) recompute(ctx context.Context, d *model.Distribution, in CalculationInput, calculate bool) (*model.Distribution, error) {
	totals, err := computeTotals(in)
	if err != nil {
		return nil, err
	}

	expected := d.Version
	now := s.clock.Now().UTC()
	applyInputs(d, in, totals)
	d.TDSRate = s.tdsRate
	d.UpdatedAt = now
	d.InvestorDistributions = []model.InvestorAllocation{}
	d.TotalShares = 0

	if calculate {
		if err := s.snapshot(ctx, d, now); err != nil {
			return nil, err
		}
		if d.Status, err = workflow.Apply(d.Status, workflow.EventCalculate); err != nil {
			return nil, err
		}
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.distRepo.WithTx(tx).ReplaceCalculation(ctx, d, expected)
	})
	if err != nil {
		return nil, err
	}

	if calculate {
		metrics.DistributionsCalculatedTotal.WithLabelValues(string(d.Type)).Inc()
	}
	s.log.InfoContext(ctx, "distribution recalculated",
		"distribution_id", d.ID,
		"status", d.Status,
		"investors", len(d.InvestorDistributions),
	)

	return s.distRepo.GetDistribution(ctx, d.ID)
}

// snapshot reads the registry, splits d.NetDistributableAmount and resolves every
// shareholder's profile and bank details onto d's allocations.
func (s *DistributionService) snapshot(ctx context.Context, d *model.Distribution, now time.Time) error {
	holders, err := s.registry.GetShareholders(ctx, d.SPVID)
	if err != nil {
		return err
	}

	amounts, totalShares, err := splitDistribution(d.NetDistributableAmount, holders, d.TDSRate)
	if err != nil {
		return err
	}

	allocations := make([]model.InvestorAllocation, len(amounts))
	var mu sync.Mutex
	var unresolved []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, a := range amounts {
		g.Go(func() error {
			inv, err := s.registry.GetInvestor(gctx, a.InvestorID)
			if err != nil {
				if errors.Is(err, apperrors.ErrInvestorNotFound) {
					mu.Lock()
					unresolved = append(unresolved, a.InvestorID)
					mu.Unlock()
					return nil
				}
				return err
			}
			bank, err := s.registry.GetBankDetails(gctx, a.InvestorID)
			if err != nil {
				return err
			}

			allocations[i] = model.InvestorAllocation{
				ID:             uuid.New().String(),
				DistributionID: d.ID,
				Position:       i,
				InvestorID:     a.InvestorID,
				InvestorName:   inv.Name,
				InvestorEmail:  inv.Email,
				Shares:         a.Shares,
				GrossAmount:    a.Gross,
				TDSAmount:      a.TDS,
				NetAmount:      a.Net,
				PaymentStatus:  model.PaymentPending,
				BankDetails:    bank,
				UpdatedAt:      now,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%w: registry references unknown investors: %s",
			apperrors.ErrInvalidCalculation, strings.Join(unresolved, ", "))
	}

	d.TotalShares = totalShares
	d.InvestorDistributions = allocations
	return nil
}

// GetDistribution retrieves a distribution with its approvals and allocations.
func (s *DistributionService) GetDistribution(ctx context.Context, id string) (*model.Distribution, error) {
	return s.distRepo.GetDistribution(ctx, id)
}

// ListDistributions returns one page of distributions matching f, newest first.
func (s *DistributionService) ListDistributions(ctx context.Context, f model.DistributionFilters) (model.DistributionPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	if err := validation.ValidateDateRange(f.StartDate, f.EndDate); err != nil {
		return model.DistributionPage{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return s.distRepo.ListDistributions(ctx, f)
}

func applyInputs(d *model.Distribution, in CalculationInput, t calculationTotals) {
	d.Type = in.Type
	d.GrossProceeds = in.GrossProceeds
	d.Deductions = in.Deductions
	d.PlatformFees = in.PlatformFees
	d.TotalDeductions = t.TotalDeductions
	d.TotalPlatformFees = t.TotalPlatformFees
	d.NetDistributableAmount = t.Net
}

func inputsOf(d *model.Distribution) CalculationInput {
	return CalculationInput{
		Type:          d.Type,
		GrossProceeds: d.GrossProceeds,
		Deductions:    d.Deductions,
		PlatformFees:  d.PlatformFees,
	}
}

// distributionNumber renders DIST-YYYYMMDD-XXXXXXXX from the creation date and the id.
func distributionNumber(id string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("DIST-%s-%s", at.Format("20060102"), suffix)
}
