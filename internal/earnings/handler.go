package earnings

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/middleware"
	"github.com/citytransfer/platform/pkg/models"
	"github.com/citytransfer/platform/pkg/pagination"
)

// Handler handles HTTP requests for earnings
type Handler struct {
	service *Service
}

// NewHandler creates a new earnings handler
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
// LEDGER ENDPOINTS
// ========================================

// Get returns one earning
// GET /api/v1/earnings/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "earning id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	earning, err := h.service.GetEarning(c.Request.Context(), id, scope)
	if common.HandleServiceError(c, err, "failed to get earning") {
		return
	}

	common.SuccessResponse(c, earning)
}

// List returns earnings visible to the caller
// GET /api/v1/earnings?status=&earnings_type=&from=&to=&search=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	filters, ok := parseEarningFilters(c)
	if !ok {
		return
	}

	params := pagination.ParseParams(c)

	items, total, err := h.service.ListEarnings(c.Request.Context(), filters, params.Limit, params.Offset, scope)
	if common.HandleServiceError(c, err, "failed to list earnings") {
		return
	}

	common.SuccessResponseWithMeta(c, items, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// Stats returns grouped ledger aggregates
// GET /api/v1/earnings/stats?partner_id=
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
	if common.HandleServiceError(c, err, "failed to get earning stats") {
		return
	}

	common.SuccessResponse(c, stats)
}

// Totals returns one partner's balance position
// GET /api/v1/earnings/totals/:partner_id
func (h *Handler) Totals(c *gin.Context) {
	partnerID, ok := common.ParseUUIDParam(c, "partner_id", "partner id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	totals, err := h.service.GetPartnerTotals(c.Request.Context(), partnerID, scope)
	if common.HandleServiceError(c, err, "failed to get partner totals") {
		return
	}

	common.SuccessResponse(c, totals)
}

// ========================================
// ADMIN ENDPOINTS
// ========================================

// Create records a new earning
// POST /api/v1/admin/earnings
func (h *Handler) Create(c *gin.Context) {
	var req CreateEarningRequest
	if !common.BindJSON(c, &req) {
		return
	}

	earning, err := h.service.CreateEarning(c.Request.Context(), &req)
	if common.HandleServiceError(c, err, "failed to create earning") {
		return
	}

	common.CreatedResponse(c, earning)
}

// Update patches an earning
// PUT /api/v1/admin/earnings/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "earning id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateEarningRequest
	if !common.BindJSON(c, &req) {
		return
	}

	earning, err := h.service.UpdateEarning(c.Request.Context(), id, &req, scope)
	if common.HandleServiceError(c, err, "failed to update earning") {
		return
	}

	common.SuccessResponse(c, earning)
}

// Delete removes an earning
// DELETE /api/v1/admin/earnings/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "earning id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.DeleteEarning(c.Request.Context(), id, scope); common.HandleServiceError(c, err, "failed to delete earning") {
		return
	}

	common.SuccessResponse(c, gin.H{"deleted": true})
}

// Process moves a pending earning to processed
// POST /api/v1/admin/earnings/:id/process
func (h *Handler) Process(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "earning id")
	if !ok {
		return
	}

	earning, err := h.service.ProcessEarning(c.Request.Context(), id)
	if common.HandleServiceError(c, err, "failed to process earning") {
		return
	}

	common.SuccessResponse(c, earning)
}

func parseEarningFilters(c *gin.Context) (Filters, bool) {
	filters := Filters{Search: c.Query("search")}

	id, ok := common.ParseUUIDQuery(c, "partner_id", "partner id", false)
	if !ok {
		return filters, false
	}
	if id != uuid.Nil {
		filters.PartnerID = &id
	}
	if v := c.Query("status"); v != "" {
		status := EarningStatus(v)
		filters.Status = &status
	}
	if v := c.Query("earnings_type"); v != "" {
		t := EarningType(v)
		filters.Type = &t
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

// RegisterRoutes registers earnings routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	auth := middleware.AuthMiddleware(jwtSecret)

	// Partner ledger surface
	api := r.Group("/api/v1/earnings")
	api.Use(auth)
	api.Use(middleware.RequireRole(models.RolePartner, models.RoleAdmin))
	{
		api.GET("", h.List)
		api.GET("/stats", h.Stats)
		api.GET("/totals/:partner_id", h.Totals)
		api.GET("/:id", h.Get)
	}

	// Admin ledger management
	admin := r.Group("/api/v1/admin/earnings")
	admin.Use(auth)
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("", h.Create)
		admin.PUT("/:id", h.Update)
		admin.DELETE("/:id", h.Delete)
		admin.POST("/:id/process", h.Process)
	}
}
