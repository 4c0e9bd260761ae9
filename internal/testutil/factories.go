package testutil

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
)

// SPVBuilder provides a fluent interface for creating test SPVs.
//
// Example usage:
//
//	// Simple creation with defaults
//	spv := testutil.NewSPV().Build(t, db)
//
//	// SPV without an assigned project
//	spv := testutil.NewSPV().WithoutProject().Build(t, db)
type SPVBuilder struct {
	ID             string
	Name           string
	ProjectID      string
	ProjectName    string
	AssetManagerID string
}

// NewSPV creates an SPVBuilder with sensible defaults.
func NewSPV() *SPVBuilder {
	return &SPVBuilder{
		ID:             MakeID(),
		Name:           MakeName("SPV"),
		ProjectID:      MakeID(),
		ProjectName:    MakeName("Project"),
		AssetManagerID: MakeID(),
	}
}

// WithName sets a custom name.
func (b *SPVBuilder) WithName(name string) *SPVBuilder {
	b.Name = name
	return b
}

// WithProject sets the assigned project.
func (b *SPVBuilder) WithProject(id, name string) *SPVBuilder {
	b.ProjectID = id
	b.ProjectName = name
	return b
}

// WithAssetManager sets the asset manager reference.
func (b *SPVBuilder) WithAssetManager(id string) *SPVBuilder {
	b.AssetManagerID = id
	return b
}

// WithoutProject leaves the SPV unassigned.
func (b *SPVBuilder) WithoutProject() *SPVBuilder {
	b.ProjectID = ""
	b.ProjectName = ""
	return b
}

// Build creates the SPV in the database and returns it.
func (b *SPVBuilder) Build(t *testing.T, db *sql.DB) model.SPV {
	t.Helper()

	query := `
		INSERT INTO spv (id, name, project_id, project_name, asset_manager_id)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.Name, nullable(b.ProjectID), nullable(b.ProjectName), nullable(b.AssetManagerID))
	if err != nil {
		t.Fatalf("Failed to create test spv: %v", err)
	}

	return model.SPV{
		ID:             b.ID,
		Name:           b.Name,
		ProjectID:      b.ProjectID,
		ProjectName:    b.ProjectName,
		AssetManagerID: b.AssetManagerID,
	}
}

// InvestorBuilder provides a fluent interface for creating test investors.
//
// Example usage:
//
//	investor := testutil.NewInvestor().WithEmail("asha@example.com").Build(t, db)
//
//	// Investor with a payout account
//	investor := testutil.NewInvestor().WithBankAccount().Build(t, db)
type InvestorBuilder struct {
	ID    string
	Name  string
	Email string
	Bank  *model.BankDetails
}

// NewInvestor creates an InvestorBuilder with sensible defaults and no bank account.
func NewInvestor() *InvestorBuilder {
	name := MakeName("Investor")
	return &InvestorBuilder{
		ID:    MakeID(),
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
	}
}

// WithName sets a custom name.
func (b *InvestorBuilder) WithName(name string) *InvestorBuilder {
	b.Name = name
	return b
}

// WithEmail sets a custom email.
func (b *InvestorBuilder) WithEmail(email string) *InvestorBuilder {
	b.Email = email
	return b
}

// WithBankAccount gives the investor a generated payout account.
func (b *InvestorBuilder) WithBankAccount() *InvestorBuilder {
	b.Bank = &model.BankDetails{
		AccountHolderName: b.Name,
		AccountNumber:     MakeAccountNumber(),
		IFSC:              "HDFC0001234",
		BankName:          "HDFC Bank",
		BranchName:        "Fort, Mumbai",
	}
	return b
}

// Build creates the investor, and its bank account if set, and returns it.
func (b *InvestorBuilder) Build(t *testing.T, db *sql.DB) model.Investor {
	t.Helper()

	_, err := db.Exec(`INSERT INTO investor (id, name, email) VALUES (?, ?, ?)`, b.ID, b.Name, b.Email)
	if err != nil {
		t.Fatalf("Failed to create test investor: %v", err)
	}

	if b.Bank != nil {
		repo := repository.NewRegistryRepository(db, NewTestCipher(t))
		if err := repo.SaveBankDetails(context.Background(), b.ID, *b.Bank, time.Now()); err != nil {
			t.Fatalf("Failed to create test bank account: %v", err)
		}
	}

	return model.Investor{
		ID:    b.ID,
		Name:  b.Name,
		Email: b.Email,
	}
}

// NewShareholding registers shares of investorID in spvID.
func NewShareholding(t *testing.T, db *sql.DB, spvID, investorID string, shares int64) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO shareholding (id, spv_id, investor_id, shares) VALUES (?, ?, ?, ?)`,
		MakeID(), spvID, investorID, shares)
	if err != nil {
		t.Fatalf("Failed to create test shareholding: %v", err)
	}
}

// InvestmentBuilder provides a fluent interface for creating investment ledger records.
//
// Example usage:
//
//	testutil.NewInvestment(investor.ID).WithAmount(money.FromMajor(50000)).Build(t, db)
type InvestmentBuilder struct {
	ID          string
	InvestorID  string
	SPVID       string
	ProjectID   string
	ProjectName string
	SPVName     string
	Amount      money.Money
	Date        time.Time
	Status      string
	Reference   string
}

// NewInvestment creates an InvestmentBuilder with sensible defaults.
func NewInvestment(investorID string) *InvestmentBuilder {
	return &InvestmentBuilder{
		ID:          MakeID(),
		InvestorID:  investorID,
		ProjectID:   MakeID(),
		ProjectName: MakeName("Project"),
		Amount:      money.FromMajor(100000),
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:      "completed",
		Reference:   "INV-" + randomAlphanumeric(8),
	}
}

// ForSPV sets the SPV and project the investment went into.
func (b *InvestmentBuilder) ForSPV(spv model.SPV) *InvestmentBuilder {
	b.SPVID = spv.ID
	b.SPVName = spv.Name
	b.ProjectID = spv.ProjectID
	b.ProjectName = spv.ProjectName
	return b
}

// WithAmount sets a custom amount.
func (b *InvestmentBuilder) WithAmount(amount money.Money) *InvestmentBuilder {
	b.Amount = amount
	return b
}

// WithDate sets a custom date.
func (b *InvestmentBuilder) WithDate(date time.Time) *InvestmentBuilder {
	b.Date = date
	return b
}

// WithStatus sets a custom status.
func (b *InvestmentBuilder) WithStatus(status string) *InvestmentBuilder {
	b.Status = status
	return b
}

// WithReference sets a custom reference.
func (b *InvestmentBuilder) WithReference(ref string) *InvestmentBuilder {
	b.Reference = ref
	return b
}

// Build creates the investment in the database and returns it.
func (b *InvestmentBuilder) Build(t *testing.T, db *sql.DB) model.Investment {
	t.Helper()

	query := `
		INSERT INTO investment (id, investor_id, spv_id, project_id, project_name, spv_name, amount, date, status, reference)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.InvestorID, nullable(b.SPVID), nullable(b.ProjectID), nullable(b.ProjectName),
		nullable(b.SPVName), b.Amount, b.Date.Format("2006-01-02"), b.Status, nullable(b.Reference))
	if err != nil {
		t.Fatalf("Failed to create test investment: %v", err)
	}

	return model.Investment{
		ID:          b.ID,
		InvestorID:  b.InvestorID,
		Date:        b.Date,
		Amount:      b.Amount,
		ProjectID:   b.ProjectID,
		ProjectName: b.ProjectName,
		SPVName:     b.SPVName,
		Status:      b.Status,
		Reference:   b.Reference,
	}
}

// Convenience functions

// CreateSPVWithShareholders creates an SPV and one investor with a bank account per share
// count, registered in that order.
//
// Example usage:
//
//	spv, investors := testutil.CreateSPVWithShareholders(t, db, 60, 40)
func CreateSPVWithShareholders(t *testing.T, db *sql.DB, shares ...int64) (model.SPV, []model.Investor) {
	t.Helper()

	spv := NewSPV().Build(t, db)
	investors := make([]model.Investor, len(shares))
	for i, n := range shares {
		investors[i] = NewInvestor().WithBankAccount().Build(t, db)
		NewShareholding(t, db, spv.ID, investors[i].ID, n)
	}
	return spv, investors
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
