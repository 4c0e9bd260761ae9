package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/response"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
)

// TestParseJSON tests the parseJSON helper function.
// This is an internal test (package handlers, not handlers_test) because
// parseJSON is unexported.
func TestParseJSON(t *testing.T) {
	type body struct {
		Reason string `json:"reason"`
	}

	t.Run("decodes a single object", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"typo"}`))

		got, err := parseJSON[body](req)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got.Reason != "typo" {
			t.Errorf("Expected reason 'typo', got '%s'", got.Reason)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`))

		if _, err := parseJSON[body](req); err == nil {
			t.Error("Expected error for unknown field, got nil")
		}
	})

	t.Run("rejects an empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

		_, err := parseJSON[body](req)
		if err == nil || err.Error() != "request body is empty" {
			t.Errorf("Expected empty body error, got %v", err)
		}
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"a"}{"reason":"b"}`))

		if _, err := parseJSON[body](req); err == nil {
			t.Error("Expected error for trailing data, got nil")
		}
	})
}

// TestRespondServiceError tests the mapping from service errors to HTTP statuses.
func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"field validation", validation.Single("reason", "This field is required"), http.StatusBadRequest},
		{"plain validation", fmt.Errorf("%w: spvId is required", apperrors.ErrValidation), http.StatusBadRequest},
		{"invalid calculation", fmt.Errorf("%w: net is negative", apperrors.ErrInvalidCalculation), http.StatusUnprocessableEntity},
		{"missing bank details", &apperrors.MissingBankDetailsError{Investors: []string{"A (1)"}}, http.StatusUnprocessableEntity},
		{"distribution not found", apperrors.ErrDistributionNotFound, http.StatusNotFound},
		{"spv not found", apperrors.ErrSPVNotFound, http.StatusNotFound},
		{"allocation not found", apperrors.ErrAllocationNotFound, http.StatusNotFound},
		{"state transition", apperrors.NewTransitionError("cancel", "approved", ""), http.StatusConflict},
		{"approval order", apperrors.NewApprovalOrderError("approve as admin", "under_review", ""), http.StatusConflict},
		{"active distribution", apperrors.ErrActiveDistributionExists, http.StatusConflict},
		{"concurrent modification", apperrors.ErrConcurrentModification, http.StatusConflict},
		{"payment already recorded", apperrors.ErrPaymentAlreadyRecorded, http.StatusConflict},
		{"bank gateway", fmt.Errorf("%w: timeout", apperrors.ErrBankGateway), http.StatusBadGateway},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			respondServiceError(w, tt.err, apperrors.ErrFailedToRetrieveDistribution)

			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	t.Run("missing bank details lists the investors", func(t *testing.T) {
		w := httptest.NewRecorder()

		respondServiceError(w, &apperrors.MissingBankDetailsError{Investors: []string{"Asha Rao (inv-1)", "Ravi Kumar (inv-2)"}}, apperrors.ErrFailedToSubmitBatch)

		var resp struct {
			Error   string   `json:"error"`
			Details []string `json:"details"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Error != apperrors.ErrMissingBankDetails.Error() {
			t.Errorf("Expected error '%s', got '%s'", apperrors.ErrMissingBankDetails, resp.Error)
		}
		if len(resp.Details) != 2 || resp.Details[1] != "Ravi Kumar (inv-2)" {
			t.Errorf("Expected both investors listed, got %v", resp.Details)
		}
	})

	t.Run("unknown errors use the fallback message", func(t *testing.T) {
		w := httptest.NewRecorder()

		respondServiceError(w, errors.New("disk full"), apperrors.ErrFailedToSubmitBatch)

		var resp response.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Error != apperrors.ErrFailedToSubmitBatch.Error() {
			t.Errorf("Expected fallback message, got '%s'", resp.Error)
		}
	})
}
