package payouts

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/middleware"
	"github.com/citytransfer/platform/pkg/models"
	"github.com/citytransfer/platform/pkg/pagination"
)

// Handler handles HTTP requests for payouts
type Handler struct {
	service *Service
}

// NewHandler creates a new payout handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func scopeFromContext(c *gin.Context) (AccessScope, error) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return AccessScope{}, err
	}
	role, err := middleware.GetUserRole(c)
	if err != nil {
		return AccessScope{}, err
	}

	scope := AccessScope{Role: role, UserID: userID}
	if role == models.RolePartner {
		partnerID, err := middleware.GetPartnerID(c)
		if err != nil {
			return AccessScope{}, err
		}
		scope.PartnerID = &partnerID
	}
	return scope, nil
}

// ========================================
// PARTNER ENDPOINTS
// ========================================

// Request opens a payout for a settlement period
// POST /api/v1/payouts
func (h *Handler) Request(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RequestPayoutRequest
	if !common.BindJSON(c, &req) {
		return
	}

	payout, err := h.service.RequestPayout(c.Request.Context(), &req, scope)
	if common.HandleServiceError(c, err, "failed to request payout") {
		return
	}

	common.CreatedResponse(c, payout)
}

// Get returns one payout
// GET /api/v1/payouts/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	payout, err := h.service.GetPayout(c.Request.Context(), id, scope)
	if common.HandleServiceError(c, err, "failed to get payout") {
		return
	}

	common.SuccessResponse(c, payout)
}

// List returns payouts visible to the caller
// GET /api/v1/payouts?status=&method=&from=&to=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	filters, ok := parsePayoutFilters(c)
	if !ok {
		return
	}

	params := pagination.ParseParams(c)

	items, total, err := h.service.ListPayouts(c.Request.Context(), filters, params.Limit, params.Offset, scope)
	if common.HandleServiceError(c, err, "failed to list payouts") {
		return
	}

	common.SuccessResponseWithMeta(c, items, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// Stats returns grouped payout aggregates
// GET /api/v1/payouts/stats?partner_id=
func (h *Handler) Stats(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var partnerID *uuid.UUID
	id, ok := common.ParseUUIDQuery(c, "partner_id", "partner id", false)
	if !ok {
		return
	}
	if id != uuid.Nil {
		partnerID = &id
	}

	stats, err := h.service.GetStats(c.Request.Context(), partnerID, scope)
	if common.HandleServiceError(c, err, "failed to get payout stats") {
		return
	}

	common.SuccessResponse(c, stats)
}

// ========================================
// ADMIN SETTLEMENT ENDPOINTS
// ========================================

// Submit moves an administrative draft to requested
// POST /api/v1/admin/payouts/:id/submit
func (h *Handler) Submit(c *gin.Context) {
	h.adminTransition(c, h.service.SubmitPayout, "failed to submit payout")
}

// Approve approves a requested payout
// POST /api/v1/admin/payouts/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.adminTransition(c, h.service.ApprovePayout, "failed to approve payout")
}

// Process hands the payout to the disbursement provider
// POST /api/v1/admin/payouts/:id/process
func (h *Handler) Process(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	var req ProcessPayoutRequest
	if !common.BindJSON(c, &req) {
		return
	}

	payout, err := h.service.ProcessPayout(c.Request.Context(), id, req.ExternalTxnID)
	if common.HandleServiceError(c, err, "failed to process payout") {
		return
	}

	common.SuccessResponse(c, payout)
}

// Complete marks a processing payout as paid
// POST /api/v1/admin/payouts/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	h.adminTransition(c, h.service.CompletePayout, "failed to complete payout")
}

// Fail records a failed disbursement
// POST /api/v1/admin/payouts/:id/fail
func (h *Handler) Fail(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	var req FailPayoutRequest
	if !common.BindJSON(c, &req) {
		return
	}

	payout, err := h.service.FailPayout(c.Request.Context(), id, req.Reason)
	if common.HandleServiceError(c, err, "failed to fail payout") {
		return
	}

	common.SuccessResponse(c, payout)
}

// Cancel cancels a non-terminal payout
// POST /api/v1/admin/payouts/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.adminTransition(c, h.service.CancelPayout, "failed to cancel payout")
}

func (h *Handler) adminTransition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*Payout, error), fallback string) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	payout, err := op(c.Request.Context(), id)
	if common.HandleServiceError(c, err, fallback) {
		return
	}

	common.SuccessResponse(c, payout)
}

func parsePayoutFilters(c *gin.Context) (Filters, bool) {
	filters := Filters{}

	id, ok := common.ParseUUIDQuery(c, "partner_id", "partner id", false)
	if !ok {
		return filters, false
	}
	if id != uuid.Nil {
		filters.PartnerID = &id
	}
	if v := c.Query("status"); v != "" {
		status := PayoutStatus(v)
		filters.Status = &status
	}
	if v := c.Query("method"); v != "" {
		method := PayoutMethod(v)
		filters.Method = &method
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid from timestamp")
			return filters, false
		}
		filters.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid to timestamp")
			return filters, false
		}
		filters.To = &t
	}
	return filters, true
}

// RegisterRoutes registers payout routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	auth := middleware.AuthMiddleware(jwtSecret)

	// Partner settlement surface
	api := r.Group("/api/v1/payouts")
	api.Use(auth)
	api.Use(middleware.RequireRole(models.RolePartner, models.RoleAdmin))
	{
		api.POST("", h.Request)
		api.GET("", h.List)
		api.GET("/stats", h.Stats)
		api.GET("/:id", h.Get)
	}

	// Admin settlement control
	admin := r.Group("/api/v1/admin/payouts")
	admin.Use(auth)
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/:id/submit", h.Submit)
		admin.POST("/:id/approve", h.Approve)
		admin.POST("/:id/process", h.Process)
		admin.POST("/:id/complete", h.Complete)
		admin.POST("/:id/fail", h.Fail)
		admin.POST("/:id/cancel", h.Cancel)
	}
}
