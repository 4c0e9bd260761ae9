package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/bank"
)

// MockGateway is a mock implementation of bank.Gateway for testing.
// By default every payment in a batch succeeds with a generated transaction id and UTR.
type MockGateway struct {
	mu sync.Mutex
	// Requests records every batch submitted, in order
	Requests []bank.BatchRequest
	// MockError is returned instead of a response when set
	MockError error
	// Reject maps a payment reference to the bank's rejection message
	Reject map[string]string
	// Omit lists payment references the bank returns no result for
	Omit map[string]bool
	// PaymentDate is reported on successful rows when set
	PaymentDate string
}

// NewMockGateway creates a gateway that accepts every payment.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Reject: map[string]string{},
		Omit:   map[string]bool{},
	}
}

// SubmitBatch records req and answers with one result per payment.
func (m *MockGateway) SubmitBatch(ctx context.Context, req bank.BatchRequest) (bank.BatchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.MockError != nil {
		return bank.BatchResponse{}, m.MockError
	}
	if err := ctx.Err(); err != nil {
		return bank.BatchResponse{}, err
	}

	resp := bank.BatchResponse{
		BatchID:           fmt.Sprintf("BANK-%d", len(m.Requests)),
		TotalTransactions: len(req.Payments),
	}
	for i, p := range req.Payments {
		if m.Omit[p.Reference] {
			continue
		}
		if reason, ok := m.Reject[p.Reference]; ok {
			resp.FailedTransactions++
			resp.Results = append(resp.Results, bank.RowResult{
				Reference: p.Reference,
				Status:    "failed",
				Error:     reason,
			})
			continue
		}
		resp.SuccessfulTransactions++
		resp.Results = append(resp.Results, bank.RowResult{
			Reference:     p.Reference,
			Status:        "success",
			TransactionID: fmt.Sprintf("TXN-%d-%d", len(m.Requests), i+1),
			UTR:           fmt.Sprintf("UTR%d%04d", len(m.Requests), i+1),
			PaymentDate:   m.PaymentDate,
		})
	}
	return resp, nil
}

// CallCount returns the number of batches submitted.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent batch submitted.
func (m *MockGateway) LastRequest() bank.BatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return bank.BatchRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// WithError configures the mock to fail every submission with err.
func (m *MockGateway) WithError(err error) *MockGateway {
	m.MockError = err
	return m
}

// WithRejection configures the bank to reject the payment with the given reference.
func (m *MockGateway) WithRejection(reference, reason string) *MockGateway {
	m.Reject[reference] = reason
	return m
}
