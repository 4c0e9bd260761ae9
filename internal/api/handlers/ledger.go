package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/response"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
)

// LedgerHandler serves the read-only investor cash-flow history.
type LedgerHandler struct {
	ledgerService *service.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler with the provided service dependency.
func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// TransactionHistory handles GET requests for an investor's investments and distribution
// payouts, ordered by date, with summary totals.
//
// Endpoint: GET /api/investor/{uuid}/transactions
// Response: 200 OK with TransactionHistory
// Error: 400 Bad Request if the investor ID is invalid (validated by middleware)
// Error: 404 Not Found if the investor does not exist
func (h *LedgerHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledgerService.GetTransactionHistory(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveHistory)
		return
	}

	response.RespondJSON(w, http.StatusOK, history)
}
