package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/secure"
)

// RegistryRepository reads the platform data the engine consumes: SPVs, their shareholder
// registry, investor profiles with bank accounts, and the investment ledger.
// The engine never writes to these tables except SaveBankDetails.
type RegistryRepository struct {
	db     *sql.DB
	cipher *secure.Cipher
}

// NewRegistryRepository creates a new RegistryRepository. cipher decrypts stored account numbers.
func NewRegistryRepository(db *sql.DB, cipher *secure.Cipher) *RegistryRepository {
	return &RegistryRepository{db: db, cipher: cipher}
}

// GetSPV retrieves an SPV by ID.
func (r *RegistryRepository) GetSPV(ctx context.Context, spvID string) (model.SPV, error) {
	var spv model.SPV
	var projectID, projectName, assetManagerID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, project_id, project_name, asset_manager_id
		FROM spv
		WHERE id = ?
	`, spvID).Scan(&spv.ID, &spv.Name, &projectID, &projectName, &assetManagerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spv, apperrors.ErrSPVNotFound
		}
		return spv, fmt.Errorf("failed to get spv: %w", err)
	}

	spv.ProjectID = projectID.String
	spv.ProjectName = projectName.String
	spv.AssetManagerID = assetManagerID.String
	return spv, nil
}

// GetShareholders returns the shareholder registry of an SPV in registration order.
func (r *RegistryRepository) GetShareholders(ctx context.Context, spvID string) ([]model.Shareholder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT investor_id, shares
		FROM shareholding
		WHERE spv_id = ?
		ORDER BY rowid ASC
	`, spvID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shareholding table: %w", err)
	}
	defer rows.Close()

	holders := []model.Shareholder{}
	for rows.Next() {
		var h model.Shareholder
		if err := rows.Scan(&h.InvestorID, &h.Shares); err != nil {
			return nil, fmt.Errorf("failed to scan shareholding table results: %w", err)
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shareholding table: %w", err)
	}
	return holders, nil
}

// GetInvestor retrieves an investor profile by ID.
func (r *RegistryRepository) GetInvestor(ctx context.Context, investorID string) (model.Investor, error) {
	var inv model.Investor
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM investor WHERE id = ?`, investorID).
		Scan(&inv.ID, &inv.Name, &inv.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inv, apperrors.ErrInvestorNotFound
		}
		return inv, fmt.Errorf("failed to get investor: %w", err)
	}
	return inv, nil
}

// GetBankDetails returns the payout account of an investor, or nil when none is on file.
func (r *RegistryRepository) GetBankDetails(ctx context.Context, investorID string) (*model.BankDetails, error) {
	var b model.BankDetails
	var token string
	var bankName, branch sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT account_holder_name, account_number, ifsc, bank_name, branch_name
		FROM investor_bank_account
		WHERE investor_id = ?
	`, investorID).Scan(&b.AccountHolderName, &token, &b.IFSC, &bankName, &branch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bank details: %w", err)
	}

	b.AccountNumber, err = r.cipher.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bank details of investor %s: %v", apperrors.ErrDataInconsistency, investorID, err)
	}
	b.BankName = bankName.String
	b.BranchName = branch.String
	return &b, nil
}

// SaveBankDetails creates or replaces the payout account of an investor.
func (r *RegistryRepository) SaveBankDetails(ctx context.Context, investorID string, b model.BankDetails, at time.Time) error {
	token, err := r.cipher.Encrypt(b.AccountNumber)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO investor_bank_account (
			investor_id, account_holder_name, account_number, ifsc, bank_name, branch_name, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(investor_id) DO UPDATE SET
			account_holder_name = excluded.account_holder_name,
			account_number = excluded.account_number,
			ifsc = excluded.ifsc,
			bank_name = excluded.bank_name,
			branch_name = excluded.branch_name,
			updated_at = excluded.updated_at
	`, investorID, b.AccountHolderName, token, b.IFSC, nullIfEmpty(b.BankName), nullIfEmpty(b.BranchName), FormatTime(at))
	if err != nil {
		return fmt.Errorf("failed to save bank details: %w", err)
	}
	return nil
}

// GetInvestments returns the investment records of an investor.
func (r *RegistryRepository) GetInvestments(ctx context.Context, investorID string) ([]model.Investment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, investor_id, date, amount, project_id, project_name, spv_name, status, reference
		FROM investment
		WHERE investor_id = ?
		ORDER BY date ASC
	`, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investment table: %w", err)
	}
	defer rows.Close()

	investments := []model.Investment{}
	for rows.Next() {
		var inv model.Investment
		var date string
		var projectID, projectName, spvName, reference sql.NullString
		if err := rows.Scan(&inv.ID, &inv.InvestorID, &date, &inv.Amount, &projectID, &projectName, &spvName, &inv.Status, &reference); err != nil {
			return nil, fmt.Errorf("failed to scan investment table results: %w", err)
		}
		if inv.Date, err = ParseTime(date); err != nil {
			return nil, err
		}
		inv.ProjectID = projectID.String
		inv.ProjectName = projectName.String
		inv.SPVName = spvName.String
		inv.Reference = reference.String
		investments = append(investments, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investment table: %w", err)
	}
	return investments, nil
}
