package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/response"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// parseJSON decodes the request body into a T, rejecting unknown fields and trailing data.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, errors.New("request body is empty")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, errors.New("request body is empty")
		}
		return v, err
	}
	if dec.More() {
		return v, fmt.Errorf("request body must hold a single JSON object")
	}
	return v, nil
}

// parseAndValidate decodes the body into a T and runs its validate tags. It writes the 400
// response itself and reports whether the handler may continue.
func parseAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	req, err := parseJSON[T](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return req, false
	}
	if err := validation.Struct(req); err != nil {
		respondServiceError(w, err, apperrors.ErrValidation)
		return req, false
	}
	return req, true
}

// respondServiceError maps a service error onto its HTTP status. Unknown errors are reported
// as 500 with fallback as the message.
func respondServiceError(w http.ResponseWriter, err error, fallback error) {
	var fieldErr *validation.Error
	var missing *apperrors.MissingBankDetailsError

	switch {
	case errors.As(err, &fieldErr):
		response.RespondError(w, http.StatusBadRequest, apperrors.ErrValidation.Error(), fieldErr.Fields)
	case errors.Is(err, apperrors.ErrValidation):
		response.RespondError(w, http.StatusBadRequest, apperrors.ErrValidation.Error(), err.Error())
	case errors.As(err, &missing):
		response.RespondError(w, http.StatusUnprocessableEntity, apperrors.ErrMissingBankDetails.Error(), missing.Investors)
	case errors.Is(err, apperrors.ErrInvalidCalculation):
		response.RespondError(w, http.StatusUnprocessableEntity, apperrors.ErrInvalidCalculation.Error(), err.Error())
	case errors.Is(err, apperrors.ErrDistributionNotFound),
		errors.Is(err, apperrors.ErrSPVNotFound),
		errors.Is(err, apperrors.ErrInvestorNotFound),
		errors.Is(err, apperrors.ErrAllocationNotFound):
		response.RespondError(w, http.StatusNotFound, rootMessage(err), err.Error())
	case errors.Is(err, apperrors.ErrInvalidApprovalOrder):
		response.RespondError(w, http.StatusConflict, apperrors.ErrInvalidApprovalOrder.Error(), err.Error())
	case errors.Is(err, apperrors.ErrInvalidStateTransition):
		response.RespondError(w, http.StatusConflict, apperrors.ErrInvalidStateTransition.Error(), err.Error())
	case errors.Is(err, apperrors.ErrPaymentAlreadyRecorded):
		response.RespondError(w, http.StatusConflict, apperrors.ErrPaymentAlreadyRecorded.Error(), err.Error())
	case errors.Is(err, apperrors.ErrBankGateway):
		response.RespondError(w, http.StatusBadGateway, apperrors.ErrBankGateway.Error(), err.Error())
	default:
		response.RespondError(w, http.StatusInternalServerError, fallback.Error(), err.Error())
	}
}

func rootMessage(err error) string {
	for _, sentinel := range []error{
		apperrors.ErrDistributionNotFound,
		apperrors.ErrSPVNotFound,
		apperrors.ErrInvestorNotFound,
		apperrors.ErrAllocationNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
