package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/secure"
	"github.com/shopspring/decimal"
)

// DistributionRepository provides data access methods for the distribution,
// distribution_approval and investor_distribution tables.
//
// Every status change is conditional on the version the caller read; a mismatch means
// another writer got there first and surfaces as apperrors.ErrConcurrentModification.
type DistributionRepository struct {
	db     *sql.DB
	tx     *sql.Tx
	cipher *secure.Cipher
}

// NewDistributionRepository creates a new DistributionRepository. cipher protects the bank
// account numbers snapshotted on allocations.
func NewDistributionRepository(db *sql.DB, cipher *secure.Cipher) *DistributionRepository {
	return &DistributionRepository{db: db, cipher: cipher}
}

// WithTx returns a new DistributionRepository scoped to the provided transaction.
func (r *DistributionRepository) WithTx(tx *sql.Tx) *DistributionRepository {
	return &DistributionRepository{
		db:     r.db,
		tx:     tx,
		cipher: r.cipher,
	}
}

func (r *DistributionRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const distributionColumns = `
	d.id, d.distribution_number, d.spv_id, d.spv_name, d.project_id, d.project_name,
	d.asset_manager_id, d.distribution_type, d.gross_proceeds, d.legal_fees, d.brokerage_fees,
	d.other_deductions, d.management_fee, d.processing_fee, d.total_deductions,
	d.total_platform_fees, d.net_distributable_amount, d.tds_rate, d.total_shares, d.status,
	d.cancellation_reason, d.version, d.created_at, d.updated_at`

func scanDistribution(s rowScanner) (*model.Distribution, error) {
	var d model.Distribution
	var projectName, assetManagerID, cancellationReason sql.NullString
	var tdsRate, createdAt, updatedAt string

	err := s.Scan(
		&d.ID, &d.DistributionNumber, &d.SPVID, &d.SPVName, &d.ProjectID, &projectName,
		&assetManagerID, &d.Type, &d.GrossProceeds, &d.Deductions.LegalFees, &d.Deductions.BrokerageFees,
		&d.Deductions.OtherDeductions, &d.PlatformFees.ManagementFee, &d.PlatformFees.ProcessingFee, &d.TotalDeductions,
		&d.TotalPlatformFees, &d.NetDistributableAmount, &tdsRate, &d.TotalShares, &d.Status,
		&cancellationReason, &d.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ProjectName = projectName.String
	d.AssetManagerID = assetManagerID.String
	d.CancellationReason = cancellationReason.String

	if d.TDSRate, err = decimal.NewFromString(tdsRate); err != nil {
		return nil, fmt.Errorf("%w: tds_rate %q", apperrors.ErrDataInconsistency, tdsRate)
	}
	if d.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// HasActiveDistribution reports whether spvID has a distribution that is neither completed
// nor cancelled.
func (r *DistributionRepository) HasActiveDistribution(ctx context.Context, spvID string) (bool, error) {
	var n int
	err := r.getQuerier().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM distribution
		WHERE spv_id = ? AND status NOT IN ('completed', 'cancelled')
	`, spvID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check active distributions: %w", err)
	}
	return n > 0, nil
}

// InsertDistribution stores d together with its allocations.
func (r *DistributionRepository) InsertDistribution(ctx context.Context, d *model.Distribution) error {
	query := `
		INSERT INTO distribution (
			id, distribution_number, spv_id, spv_name, project_id, project_name, asset_manager_id,
			distribution_type, gross_proceeds, legal_fees, brokerage_fees, other_deductions,
			management_fee, processing_fee, total_deductions, total_platform_fees,
			net_distributable_amount, tds_rate, total_shares, status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.getQuerier().ExecContext(ctx, query,
		d.ID, d.DistributionNumber, d.SPVID, d.SPVName, d.ProjectID, nullIfEmpty(d.ProjectName), nullIfEmpty(d.AssetManagerID),
		d.Type, d.GrossProceeds, d.Deductions.LegalFees, d.Deductions.BrokerageFees, d.Deductions.OtherDeductions,
		d.PlatformFees.ManagementFee, d.PlatformFees.ProcessingFee, d.TotalDeductions, d.TotalPlatformFees,
		d.NetDistributableAmount, d.TDSRate.String(), d.TotalShares, d.Status, d.Version,
		FormatTime(d.CreatedAt), FormatTime(d.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "distribution.spv_id") {
			return apperrors.ErrActiveDistributionExists
		}
		return fmt.Errorf("failed to insert distribution: %w", err)
	}

	return r.insertAllocations(ctx, d.InvestorDistributions)
}

func (r *DistributionRepository) insertAllocations(ctx context.Context, allocations []model.InvestorAllocation) error {
	query := `
		INSERT INTO investor_distribution (
			id, distribution_id, position, investor_id, investor_name, investor_email, shares,
			gross_amount, tds_amount, net_amount, payment_status, bank_account_holder,
			bank_account_number, bank_ifsc, bank_name, bank_branch, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range allocations {
		var holder, account, ifsc, bankName, branch any
		if a.BankDetails != nil {
			enc, err := r.cipher.Encrypt(a.BankDetails.AccountNumber)
			if err != nil {
				return err
			}
			holder = a.BankDetails.AccountHolderName
			account = enc
			ifsc = a.BankDetails.IFSC
			bankName = nullIfEmpty(a.BankDetails.BankName)
			branch = nullIfEmpty(a.BankDetails.BranchName)
		}

		_, err := r.getQuerier().ExecContext(ctx, query,
			a.ID, a.DistributionID, a.Position, a.InvestorID, a.InvestorName, a.InvestorEmail, a.Shares,
			a.GrossAmount, a.TDSAmount, a.NetAmount, a.PaymentStatus, holder,
			account, ifsc, bankName, branch, FormatTime(a.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert investor allocation: %w", err)
		}
	}
	return nil
}

// GetDistribution retrieves a distribution with its approvals and allocations.
func (r *DistributionRepository) GetDistribution(ctx context.Context, id string) (*model.Distribution, error) {
	row := r.getQuerier().QueryRowContext(ctx, `SELECT `+distributionColumns+` FROM distribution d WHERE d.id = ?`, id)
	d, err := scanDistribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrDistributionNotFound
		}
		return nil, fmt.Errorf("failed to get distribution: %w", err)
	}

	if err := r.loadApprovals(ctx, d); err != nil {
		return nil, err
	}

	d.InvestorDistributions, err = r.GetAllocations(ctx, id)
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (r *DistributionRepository) loadApprovals(ctx context.Context, d *model.Distribution) error {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT role, approved_by, approved_at, comments
		FROM distribution_approval
		WHERE distribution_id = ?
	`, d.ID)
	if err != nil {
		return fmt.Errorf("failed to query distribution_approval table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role model.ApprovalRole
		var approvedBy, approvedAtStr string
		var comments sql.NullString
		if err := rows.Scan(&role, &approvedBy, &approvedAtStr, &comments); err != nil {
			return fmt.Errorf("failed to scan distribution_approval table results: %w", err)
		}
		approvedAt, err := ParseTime(approvedAtStr)
		if err != nil {
			return err
		}
		target := d.Approvals.Get(role)
		if target == nil {
			return fmt.Errorf("%w: unknown approval role %q", apperrors.ErrDataInconsistency, role)
		}
		*target = model.Approval{
			Approved:   true,
			ApprovedBy: approvedBy,
			ApprovedAt: &approvedAt,
			Comments:   comments.String,
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating distribution_approval table: %w", err)
	}
	return nil
}

const allocationColumns = `
	a.id, a.distribution_id, a.position, a.investor_id, a.investor_name, a.investor_email,
	a.shares, a.gross_amount, a.tds_amount, a.net_amount, a.payment_status, a.transaction_id,
	a.utr, a.payment_date, a.batch_id, a.failure_reason, a.bank_account_holder,
	a.bank_account_number, a.bank_ifsc, a.bank_name, a.bank_branch, a.updated_at`

func (r *DistributionRepository) scanAllocation(s rowScanner, extra ...any) (model.InvestorAllocation, error) {
	var a model.InvestorAllocation
	var txnID, utr, paymentDate, batchID, failure sql.NullString
	var holder, account, ifsc, bankName, branch sql.NullString
	var updatedAt string

	dest := []any{
		&a.ID, &a.DistributionID, &a.Position, &a.InvestorID, &a.InvestorName, &a.InvestorEmail,
		&a.Shares, &a.GrossAmount, &a.TDSAmount, &a.NetAmount, &a.PaymentStatus, &txnID,
		&utr, &paymentDate, &batchID, &failure, &holder,
		&account, &ifsc, &bankName, &branch, &updatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return a, fmt.Errorf("failed to scan investor_distribution table results: %w", err)
	}

	a.TransactionID = txnID.String
	a.UTR = utr.String
	a.BatchID = batchID.String
	a.FailureReason = failure.String

	var err error
	if a.PaymentDate, err = parseNullTime(paymentDate); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return a, err
	}

	if holder.Valid {
		plain, err := r.cipher.Decrypt(account.String)
		if err != nil {
			return a, fmt.Errorf("%w: bank details of allocation %s: %v", apperrors.ErrDataInconsistency, a.ID, err)
		}
		a.BankDetails = &model.BankDetails{
			AccountHolderName: holder.String,
			AccountNumber:     plain,
			IFSC:              ifsc.String,
			BankName:          bankName.String,
			BranchName:        branch.String,
		}
	}
	return a, nil
}

// GetAllocations retrieves the allocations of a distribution in calculation order.
func (r *DistributionRepository) GetAllocations(ctx context.Context, distributionID string) ([]model.InvestorAllocation, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT `+allocationColumns+`
		FROM investor_distribution a
		WHERE a.distribution_id = ?
		ORDER BY a.position ASC
	`, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investor_distribution table: %w", err)
	}
	defer rows.Close()

	allocations := []model.InvestorAllocation{}
	for rows.Next() {
		a, err := r.scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investor_distribution table: %w", err)
	}
	return allocations, nil
}

// GetAllocationsByInvestor retrieves every allocation held by investorID across all
// distributions, joined with the identifying fields of each distribution.
func (r *DistributionRepository) GetAllocationsByInvestor(ctx context.Context, investorID string) ([]model.InvestorAllocationRecord, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT `+allocationColumns+`,
			d.distribution_number, d.distribution_type, d.status, d.project_name, d.spv_name, d.created_at
		FROM investor_distribution a
		JOIN distribution d ON d.id = a.distribution_id
		WHERE a.investor_id = ?
		ORDER BY d.created_at ASC
	`, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investor allocations: %w", err)
	}
	defer rows.Close()

	records := []model.InvestorAllocationRecord{}
	for rows.Next() {
		var rec model.InvestorAllocationRecord
		var projectName sql.NullString
		var createdAt string
		rec.Allocation, err = r.scanAllocation(rows,
			&rec.DistributionNumber, &rec.DistributionType, &rec.DistributionStatus, &projectName, &rec.SPVName, &createdAt)
		if err != nil {
			return nil, err
		}
		rec.ProjectName = projectName.String
		if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investor allocations: %w", err)
	}
	return records, nil
}

// ListDistributions returns one page of distribution summaries, newest first.
func (r *DistributionRepository) ListDistributions(ctx context.Context, f model.DistributionFilters) (model.DistributionPage, error) {
	var where []string
	var args []any

	if len(f.Statuses) > 0 {
		where = append(where, "d.status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.ProjectID != "" {
		where = append(where, "d.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.AssetManagerID != "" {
		where = append(where, "d.asset_manager_id = ?")
		args = append(args, f.AssetManagerID)
	}
	if f.StartDate != nil {
		where = append(where, "d.created_at >= ?")
		args = append(args, FormatTime(*f.StartDate))
	}
	if f.EndDate != nil {
		where = append(where, "d.created_at <= ?")
		args = append(args, FormatTime(*f.EndDate))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	page := model.DistributionPage{Page: f.Page, PerPage: f.PerPage, Distributions: []model.DistributionSummary{}}

	//nolint:gosec // G202: where clause is built from fixed fragments, values are bound
	if err := r.getQuerier().QueryRowContext(ctx, "SELECT COUNT(*) FROM distribution d "+whereClause, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count distributions: %w", err)
	}
	if f.PerPage > 0 {
		page.TotalPages = (page.Total + f.PerPage - 1) / f.PerPage
	}

	//nolint:gosec // G202: where clause is built from fixed fragments, values are bound
	query := `
		SELECT d.id, d.distribution_number, d.spv_id, d.spv_name, d.project_id, d.project_name,
			d.asset_manager_id, d.distribution_type, d.gross_proceeds, d.net_distributable_amount,
			d.status, d.created_at, d.updated_at,
			(SELECT COUNT(*) FROM investor_distribution a WHERE a.distribution_id = d.id),
			(SELECT COUNT(*) FROM investor_distribution a WHERE a.distribution_id = d.id AND a.payment_status = 'completed')
		FROM distribution d
		` + whereClause + `
		ORDER BY d.created_at DESC, d.id ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return page, fmt.Errorf("failed to query distribution table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.DistributionSummary
		var projectName, assetManagerID sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(
			&s.ID, &s.DistributionNumber, &s.SPVID, &s.SPVName, &s.ProjectID, &projectName,
			&assetManagerID, &s.Type, &s.GrossProceeds, &s.NetDistributableAmount,
			&s.Status, &createdAt, &updatedAt, &s.InvestorCount, &s.PaidCount,
		); err != nil {
			return page, fmt.Errorf("failed to scan distribution table results: %w", err)
		}
		s.ProjectName = projectName.String
		s.AssetManagerID = assetManagerID.String
		if s.CreatedAt, err = ParseTime(createdAt); err != nil {
			return page, err
		}
		if s.UpdatedAt, err = ParseTime(updatedAt); err != nil {
			return page, err
		}
		page.Distributions = append(page.Distributions, s)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("error iterating distribution table: %w", err)
	}
	return page, nil
}

// ListIDsByStatus returns the ids of all distributions in status.
func (r *DistributionRepository) ListIDsByStatus(ctx context.Context, status model.Status) ([]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `SELECT id FROM distribution WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution table: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan distribution id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DistributionRepository) bumpVersion(ctx context.Context, query string, args ...any) error {
	result, err := r.getQuerier().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update distribution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrConcurrentModification
	}
	return nil
}

// UpdateStatus moves the distribution to status if it is still at expectedVersion.
func (r *DistributionRepository) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status model.Status, at time.Time) error {
	return r.bumpVersion(ctx, `
		UPDATE distribution
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, status, FormatTime(at), id, expectedVersion)
}

// Cancel moves the distribution to cancelled with reason if it is still at expectedVersion.
func (r *DistributionRepository) Cancel(ctx context.Context, id string, expectedVersion int64, reason string, at time.Time) error {
	return r.bumpVersion(ctx, `
		UPDATE distribution
		SET status = ?, cancellation_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, model.StatusCancelled, reason, FormatTime(at), id, expectedVersion)
}

// InsertApproval records one role's sign-off.
func (r *DistributionRepository) InsertApproval(ctx context.Context, distributionID string, role model.ApprovalRole, a model.Approval) error {
	if a.ApprovedAt == nil {
		return fmt.Errorf("approval time is required")
	}
	_, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO distribution_approval (distribution_id, role, approved_by, approved_at, comments)
		VALUES (?, ?, ?, ?, ?)
	`, distributionID, role, a.ApprovedBy, FormatTime(*a.ApprovedAt), nullIfEmpty(a.Comments))
	if err != nil {
		if isUniqueViolation(err, "distribution_approval") {
			return apperrors.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

// ReplaceCalculation overwrites the financial inputs, totals, status and allocations of d
// if the stored row is still at expectedVersion. d.Version is not read.
func (r *DistributionRepository) ReplaceCalculation(ctx context.Context, d *model.Distribution, expectedVersion int64) error {
	err := r.bumpVersion(ctx, `
		UPDATE distribution
		SET distribution_type = ?, gross_proceeds = ?, legal_fees = ?, brokerage_fees = ?,
			other_deductions = ?, management_fee = ?, processing_fee = ?, total_deductions = ?,
			total_platform_fees = ?, net_distributable_amount = ?, tds_rate = ?, total_shares = ?,
			status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		d.Type, d.GrossProceeds, d.Deductions.LegalFees, d.Deductions.BrokerageFees,
		d.Deductions.OtherDeductions, d.PlatformFees.ManagementFee, d.PlatformFees.ProcessingFee, d.TotalDeductions,
		d.TotalPlatformFees, d.NetDistributableAmount, d.TDSRate.String(), d.TotalShares,
		d.Status, FormatTime(d.UpdatedAt),
		d.ID, expectedVersion,
	)
	if err != nil {
		return err
	}

	if _, err := r.getQuerier().ExecContext(ctx, `DELETE FROM investor_distribution WHERE distribution_id = ?`, d.ID); err != nil {
		return fmt.Errorf("failed to delete previous allocations: %w", err)
	}
	return r.insertAllocations(ctx, d.InvestorDistributions)
}

// PaymentUpdate is the new payment state of one allocation.
type PaymentUpdate struct {
	Status        model.PaymentStatus
	TransactionID string
	UTR           string
	PaymentDate   *time.Time
	BatchID       string // empty keeps the current batch
	FailureReason string
	UpdatedAt     time.Time
}

// UpdateAllocationPayment applies u to the allocation if its payment status is still one of
// from. It reports false when the allocation had already moved on.
func (r *DistributionRepository) UpdateAllocationPayment(ctx context.Context, allocationID string, from []model.PaymentStatus, u PaymentUpdate) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("expected payment status is required")
	}
	args := []any{
		u.Status, nullIfEmpty(u.TransactionID), nullIfEmpty(u.UTR), formatTimePtr(u.PaymentDate),
		nullIfEmpty(u.BatchID), nullIfEmpty(u.FailureReason), FormatTime(u.UpdatedAt), allocationID,
	}
	for _, s := range from {
		args = append(args, s)
	}

	//nolint:gosec // G202: only placeholders are concatenated
	result, err := r.getQuerier().ExecContext(ctx, `
		UPDATE investor_distribution
		SET payment_status = ?, transaction_id = ?, utr = ?, payment_date = ?,
			batch_id = COALESCE(?, batch_id), failure_reason = ?, updated_at = ?
		WHERE id = ? AND payment_status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update allocation payment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// ResetFailedAllocations moves every failed allocation of a distribution back to pending and
// clears its failure. It returns the number of allocations reset.
func (r *DistributionRepository) ResetFailedAllocations(ctx context.Context, distributionID string, at time.Time) (int, error) {
	result, err := r.getQuerier().ExecContext(ctx, `
		UPDATE investor_distribution
		SET payment_status = ?, failure_reason = NULL, transaction_id = NULL, utr = NULL,
			payment_date = NULL, updated_at = ?
		WHERE distribution_id = ? AND payment_status = ?
	`, model.PaymentPending, FormatTime(at), distributionID, model.PaymentFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed allocations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
