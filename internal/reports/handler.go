package reports

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/middleware"
	"github.com/citytransfer/platform/pkg/models"
)

// Handler handles HTTP requests for reports
type Handler struct {
	service *Service
}

// NewHandler creates a new reports handler
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

// Overview returns the dashboard snapshot
// GET /api/v1/reports/overview?partner_id=
func (h *Handler) Overview(c *gin.Context) {
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

	overview, err := h.service.GetOverview(c.Request.Context(), partnerID, scope)
	if common.HandleServiceError(c, err, "failed to get overview") {
		return
	}

	common.SuccessResponse(c, overview)
}

// Trends returns the trailing monthly revenue/earnings trend
// GET /api/v1/reports/trends?partner_id=&months=
func (h *Handler) Trends(c *gin.Context) {
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

	months := parsePositiveInt(c.Query("months"), defaultTrendMonths)

	trends, err := h.service.GetMonthlyTrends(c.Request.Context(), partnerID, months, scope)
	if common.HandleServiceError(c, err, "failed to get trends") {
		return
	}

	common.SuccessResponse(c, trends)
}

// TopRoutes returns the most-booked routes
// GET /api/v1/reports/routes?days=&limit=
func (h *Handler) TopRoutes(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	days := parsePositiveInt(c.Query("days"), defaultRouteWindow)
	limit := parsePositiveInt(c.Query("limit"), defaultRouteLimit)

	routes, err := h.service.GetTopRoutes(c.Request.Context(), days, limit, scope)
	if common.HandleServiceError(c, err, "failed to get top routes") {
		return
	}

	common.SuccessResponse(c, routes)
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1/reports")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	api.Use(middleware.RequireRole(models.RolePartner, models.RoleAdmin))
	{
		api.GET("/overview", h.Overview)
		api.GET("/trends", h.Trends)
		api.GET("/routes", h.TopRoutes)
	}
}
