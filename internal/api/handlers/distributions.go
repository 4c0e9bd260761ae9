package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/request"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/response"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
)

// DistributionHandler handles HTTP requests for calculating, editing, approving and
// cancelling distributions. Business rules live in the services; this layer only parses
// requests and maps errors onto statuses.
type DistributionHandler struct {
	distributionService *service.DistributionService
	approvalService     *service.ApprovalService
}

// NewDistributionHandler creates a new DistributionHandler with the provided service dependencies.
func NewDistributionHandler(distributionService *service.DistributionService, approvalService *service.ApprovalService) *DistributionHandler {
	return &DistributionHandler{
		distributionService: distributionService,
		approvalService:     approvalService,
	}
}

// CalculateDistribution handles POST requests to calculate a new distribution for an SPV.
// The shareholder registry is snapshotted at this moment.
//
// Endpoint: POST /api/distribution
// Request Body: CalculateDistributionRequest
// Response: 201 Created with DistributionDetail
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if the SPV is unknown
// Error: 409 Conflict if the SPV already has an active distribution
// Error: 422 Unprocessable Entity if the inputs cannot produce a distribution
func (h *DistributionHandler) CalculateDistribution(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAndValidate[request.CalculateDistributionRequest](w, r)
	if !ok {
		return
	}

	d, err := h.distributionService.Calculate(r.Context(), service.CalculateRequest{
		SPVID: req.SPVID,
		CalculationInput: service.CalculationInput{
			Type:          model.DistributionType(req.DistributionType),
			GrossProceeds: req.GrossProceeds,
			Deductions:    req.Deductions,
			PlatformFees:  req.PlatformFees,
		},
		Draft: req.Draft,
	})
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToCalculateDistribution)
		return
	}

	response.RespondJSON(w, http.StatusCreated, service.Describe(d))
}

// GetDistribution handles GET requests to retrieve a distribution with its allocations,
// approvals, totals and the actions currently allowed on it.
//
// Endpoint: GET /api/distribution/{uuid}
// Response: 200 OK with DistributionDetail
// Error: 400 Bad Request if the ID is invalid (validated by middleware)
// Error: 404 Not Found if the distribution does not exist
func (h *DistributionHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := h.distributionService.GetDistribution(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveDistribution)
		return
	}

	response.RespondJSON(w, http.StatusOK, service.Describe(d))
}

// ListDistributions handles GET requests to page through distributions, newest first.
//
// Endpoint: GET /api/distribution
// Query Parameters: status, projectId, assetManagerId, startDate, endDate, page, perPage
// Response: 200 OK with DistributionPage
// Error: 400 Bad Request if a filter is invalid
func (h *DistributionHandler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := request.ParseDistributionFilters(
		q.Get("status"),
		q.Get("projectId"),
		q.Get("assetManagerId"),
		q.Get("startDate"),
		q.Get("endDate"),
		q.Get("page"),
		q.Get("perPage"),
	)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}

	page, err := h.distributionService.ListDistributions(r.Context(), filters)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveDistributions)
		return
	}

	response.RespondJSON(w, http.StatusOK, page)
}

// EditDistribution handles PUT requests replacing the financial inputs of a distribution
// that has not been approved by anyone. A calculated distribution is recalculated.
//
// Endpoint: PUT /api/distribution/{uuid}
// Request Body: UpdateDistributionRequest
// Response: 200 OK with DistributionDetail
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict once an approval has been recorded
// Error: 422 Unprocessable Entity if the inputs cannot produce a distribution
func (h *DistributionHandler) EditDistribution(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAndValidate[request.UpdateDistributionRequest](w, r)
	if !ok {
		return
	}

	d, err := h.distributionService.Edit(r.Context(), chi.URLParam(r, "uuid"), service.CalculationInput{
		Type:          model.DistributionType(req.DistributionType),
		GrossProceeds: req.GrossProceeds,
		Deductions:    req.Deductions,
		PlatformFees:  req.PlatformFees,
	})
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToUpdateDistribution)
		return
	}

	response.RespondJSON(w, http.StatusOK, service.Describe(d))
}

// RecalculateDistribution handles POST requests that rebuild the allocations of a draft or
// calculated distribution from a fresh registry snapshot.
//
// Endpoint: POST /api/distribution/{uuid}/calculate
// Response: 200 OK with DistributionDetail
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict once an approval has been recorded
// Error: 422 Unprocessable Entity if the registry cannot produce a distribution
func (h *DistributionHandler) RecalculateDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := h.distributionService.Recalculate(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToCalculateDistribution)
		return
	}

	response.RespondJSON(w, http.StatusOK, service.Describe(d))
}

// ApproveDistribution handles POST requests recording one role's approval.
// Roles must sign off in the order asset manager, compliance, admin.
//
// Endpoint: POST /api/distribution/{uuid}/approve
// Request Body: ApproveDistributionRequest (role, approvedBy, comments)
// Response: 200 OK with DistributionDetail
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict if the approval is out of order, duplicate, or not allowed in the current status
func (h *DistributionHandler) ApproveDistribution(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAndValidate[request.ApproveDistributionRequest](w, r)
	if !ok {
		return
	}

	d, err := h.approvalService.Approve(r.Context(), chi.URLParam(r, "uuid"), model.ApprovalRole(req.Role), req.ApprovedBy, req.Comments)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToUpdateDistribution)
		return
	}

	response.RespondJSON(w, http.StatusOK, service.Describe(d))
}

// CancelDistribution handles POST requests cancelling a distribution nobody has approved yet.
//
// Endpoint: POST /api/distribution/{uuid}/cancel
// Request Body: CancelDistributionRequest (reason)
// Response: 200 OK with DistributionDetail
// Error: 400 Bad Request if no reason is given
// Error: 404 Not Found if the distribution does not exist
// Error: 409 Conflict if the distribution can no longer be cancelled
func (h *DistributionHandler) CancelDistribution(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAndValidate[request.CancelDistributionRequest](w, r)
	if !ok {
		return
	}

	d, err := h.approvalService.Cancel(r.Context(), chi.URLParam(r, "uuid"), req.Reason)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToUpdateDistribution)
		return
	}

	response.RespondJSON(w, http.StatusOK, service.Describe(d))
}
