package testutil

import (
	"database/sql"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/bank"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/logging"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/secure"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
	"github.com/shopspring/decimal"
)

// TestKey is the Fernet key every test cipher uses, so rows written by a builder can be read
// back by any service under test.
const TestKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

// TestNow is the instant the fake clock of every test service starts at.
var TestNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// TestTDSRate is the withholding rate of test distribution services.
var TestTDSRate = decimal.RequireFromString("0.20")

// NewTestCipher returns the cipher shared by all test helpers.
func NewTestCipher(t *testing.T) *secure.Cipher {
	t.Helper()

	c, err := secure.NewCipher(TestKey)
	if err != nil {
		t.Fatalf("Failed to create test cipher: %v", err)
	}
	return c
}

// NewTestClock returns a fake clock set to TestNow.
func NewTestClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(TestNow)
}

func NewTestDistributionService(t *testing.T, db *sql.DB) *service.DistributionService {
	t.Helper()

	cipher := NewTestCipher(t)

	return service.NewDistributionService(
		db,
		repository.NewDistributionRepository(db, cipher),
		repository.NewRegistryRepository(db, cipher),
		NewTestClock(),
		TestTDSRate,
		logging.Discard(),
	)
}

func NewTestApprovalService(t *testing.T, db *sql.DB) *service.ApprovalService {
	t.Helper()

	return service.NewApprovalService(
		db,
		repository.NewDistributionRepository(db, NewTestCipher(t)),
		NewTestClock(),
		logging.Discard(),
	)
}

// NewTestPaymentService creates a PaymentService submitting batches to gateway.
func NewTestPaymentService(t *testing.T, db *sql.DB, gateway bank.Gateway) *service.PaymentService {
	t.Helper()

	return service.NewPaymentService(
		db,
		repository.NewDistributionRepository(db, NewTestCipher(t)),
		repository.NewBatchRepository(db),
		gateway,
		NewTestClock(),
		"INR",
		logging.Discard(),
	)
}

func NewTestLedgerService(t *testing.T, db *sql.DB) *service.LedgerService {
	t.Helper()

	cipher := NewTestCipher(t)
	registry := repository.NewRegistryRepository(db, cipher)

	return service.NewLedgerService(
		repository.NewDistributionRepository(db, cipher),
		registry,
		registry,
	)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// MakeID generates a unique ID for testing.
func MakeID() string {
	return uuid.New().String()
}

// MakeName generates a readable unique name with the given prefix.
func MakeName(prefix string) string {
	return fmt.Sprintf("%s %s", prefix, randomAlphanumeric(6))
}

// MakeAccountNumber generates a 14 digit bank account number.
func MakeAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 14)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))] //nolint:gosec // Test data, not security sensitive
	}
	return string(b)
}

func randomAlphanumeric(n int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec // Test data, not security sensitive
	}
	return string(b)
}
