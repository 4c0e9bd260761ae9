package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/metrics"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/workflow"
)

// ApprovalService drives a distribution through its three sign-offs and cancellation.
type ApprovalService struct {
	db       *sql.DB
	distRepo *repository.DistributionRepository
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewApprovalService creates a new ApprovalService with the provided dependencies.
func NewApprovalService(
	db *sql.DB,
	distRepo *repository.DistributionRepository,
	clock clockwork.Clock,
	log *slog.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:       db,
		distRepo: distRepo,
		clock:    clock,
		log:      log,
	}
}

// Approve records role's approval. Approvals are accepted strictly in the order asset
// manager, compliance, admin; the admin approval moves the distribution to approved.
// A rejected attempt changes nothing.
func (s *ApprovalService) Approve(ctx context.Context, id string, role model.ApprovalRole, approvedBy, comments string) (*model.Distribution, error) {
	if !model.ValidApprovalRoles[role] {
		return nil, fmt.Errorf("%w: invalid approval role %q", apperrors.ErrValidation, role)
	}
	if strings.TrimSpace(approvedBy) == "" {
		return nil, fmt.Errorf("%w: approvedBy is required", apperrors.ErrValidation)
	}

	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := workflow.CheckApproval(d, role)
	if err != nil {
		metrics.ApprovalsTotal.WithLabelValues(string(role), "rejected").Inc()
		s.log.WarnContext(ctx, "approval rejected",
			"distribution_id", id,
			"role", role,
			"status", d.Status,
			"error", err,
		)
		return nil, err
	}

	now := s.clock.Now().UTC()
	approval := model.Approval{
		Approved:   true,
		ApprovedBy: approvedBy,
		ApprovedAt: &now,
		Comments:   comments,
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.distRepo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, id, d.Version, to, now); err != nil {
			return err
		}
		return repo.InsertApproval(ctx, id, role, approval)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			metrics.ApprovalsTotal.WithLabelValues(string(role), "conflict").Inc()
		}
		return nil, err
	}

	metrics.ApprovalsTotal.WithLabelValues(string(role), "approved").Inc()
	if to != d.Status {
		metrics.DistributionTransitionsTotal.WithLabelValues(string(to)).Inc()
	}
	s.log.InfoContext(ctx, "distribution approved",
		"distribution_id", id,
		"role", role,
		"approved_by", approvedBy,
		"from", d.Status,
		"to", to,
	)

	return s.distRepo.GetDistribution(ctx, id)
}

// Cancel moves a draft or calculated distribution without approvals to cancelled.
// Cancellation is irreversible and needs a reason.
func (s *ApprovalService) Cancel(ctx context.Context, id, reason string) (*model.Distribution, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckCancel(d, reason); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.distRepo.WithTx(tx).Cancel(ctx, id, d.Version, strings.TrimSpace(reason), now)
	})
	if err != nil {
		return nil, err
	}

	metrics.DistributionTransitionsTotal.WithLabelValues(string(model.StatusCancelled)).Inc()
	s.log.InfoContext(ctx, "distribution cancelled",
		"distribution_id", id,
		"from", d.Status,
		"reason", reason,
	)

	return s.distRepo.GetDistribution(ctx, id)
}
