package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
)

// SPVDirectory resolves SPVs and their project assignment.
type SPVDirectory interface {
	GetSPV(ctx context.Context, spvID string) (model.SPV, error)
}

// ShareholderRegistry returns the shareholders of an SPV.
type ShareholderRegistry interface {
	GetShareholders(ctx context.Context, spvID string) ([]model.Shareholder, error)
}

// InvestorDirectory resolves investor profiles and payout accounts.
// GetBankDetails returns nil, nil when the investor has no account on file.
type InvestorDirectory interface {
	GetInvestor(ctx context.Context, investorID string) (model.Investor, error)
	GetBankDetails(ctx context.Context, investorID string) (*model.BankDetails, error)
}

// InvestmentSource returns the external investment ledger of an investor.
type InvestmentSource interface {
	GetInvestments(ctx context.Context, investorID string) ([]model.Investment, error)
}

// Registry is everything the calculator reads at snapshot time.
type Registry interface {
	SPVDirectory
	ShareholderRegistry
	InvestorDirectory
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
