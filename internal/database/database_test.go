package database

import (
	"testing"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/logging"
)

func TestMigrate(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, logging.Discard()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	t.Run("creates all tables", func(t *testing.T) {
		tables := []string{
			"spv", "investor", "investor_bank_account", "shareholding", "investment",
			"distribution", "distribution_approval", "payment_batch", "investor_distribution",
		}
		for _, table := range tables {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
			if err != nil {
				t.Errorf("Expected table %s to exist: %v", table, err)
			}
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		if err := Migrate(db, logging.Discard()); err != nil {
			t.Errorf("Expected second migrate to be a no-op, got %v", err)
		}
		version, err := SchemaVersion(db)
		if err != nil {
			t.Fatalf("Failed to read version: %v", err)
		}
		if version != 1 {
			t.Errorf("Expected schema version 1, got %d", version)
		}
	})

	t.Run("allows one active distribution per spv", func(t *testing.T) {
		insert := `
			INSERT INTO distribution (id, distribution_number, spv_id, spv_name, project_id, distribution_type,
				gross_proceeds, total_deductions, total_platform_fees, net_distributable_amount, tds_rate,
				status, created_at, updated_at)
			VALUES (?, ?, 'spv-1', 'SPV One', 'p-1', 'rental_income', 100, 0, 0, 100, '0.2', ?, '2026-01-01T00:00:00.000000Z', '2026-01-01T00:00:00.000000Z')
		`
		if _, err := db.Exec(insert, "d-1", "DIST-1", "completed"); err != nil {
			t.Fatalf("Failed to insert completed distribution: %v", err)
		}
		if _, err := db.Exec(insert, "d-2", "DIST-2", "calculated"); err != nil {
			t.Fatalf("Failed to insert active distribution: %v", err)
		}
		if _, err := db.Exec(insert, "d-3", "DIST-3", "draft"); err == nil {
			t.Error("Expected second active distribution for the same spv to be rejected")
		}
	})

	t.Run("enforces foreign keys", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO shareholding (id, spv_id, investor_id, shares) VALUES ('s', 'nope', 'nope', 1)`)
		if err == nil {
			t.Error("Expected foreign key violation")
		}
	})
}
