package bookings

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

// Handler handles HTTP requests for bookings
type Handler struct {
	service *Service
}

// NewHandler creates a new bookings handler
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
// CUSTOMER ENDPOINTS
// ========================================

// Create creates a new booking
// POST /api/v1/bookings
func (h *Handler) Create(c *gin.Context) {
	customerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateBookingRequest
	if !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.CreateBooking(c.Request.Context(), customerID, &req)
	if common.HandleServiceError(c, err, "failed to create booking") {
		return
	}

	common.CreatedResponse(c, booking)
}

// Get returns one booking
// GET /api/v1/bookings/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	booking, err := h.service.GetBooking(c.Request.Context(), id, scope)
	if common.HandleServiceError(c, err, "failed to get booking") {
		return
	}

	common.SuccessResponse(c, booking)
}

// List returns bookings visible to the caller
// GET /api/v1/bookings?status=&payment_status=&from=&to=&search=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	params := pagination.ParseParams(c)

	items, total, err := h.service.ListBookings(c.Request.Context(), filters, scope, params.Limit, params.Offset)
	if common.HandleServiceError(c, err, "failed to list bookings") {
		return
	}

	common.SuccessResponseWithMeta(c, items, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// Cancel cancels a booking
// POST /api/v1/bookings/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	// The caller must be able to see the booking before cancelling it
	if _, err := h.service.GetBooking(c.Request.Context(), id, scope); common.HandleServiceError(c, err, "failed to get booking") {
		return
	}

	var req CancelBookingRequest
	if c.Request.ContentLength > 0 && !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.CancelBooking(c.Request.Context(), id, req.Reason)
	if common.HandleServiceError(c, err, "failed to cancel booking") {
		return
	}

	common.SuccessResponse(c, booking)
}

// ========================================
// ADMIN / PARTNER LIFECYCLE ENDPOINTS
// ========================================

// Confirm moves a pending booking to confirmed
// POST /api/v1/admin/bookings/:id/confirm
func (h *Handler) Confirm(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	booking, err := h.service.ConfirmBooking(c.Request.Context(), id)
	if common.HandleServiceError(c, err, "failed to confirm booking") {
		return
	}

	common.SuccessResponse(c, booking)
}

// OpenAuction routes a pending booking into the auction branch
// POST /api/v1/admin/bookings/:id/auction
func (h *Handler) OpenAuction(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	booking, err := h.service.OpenAuction(c.Request.Context(), id)
	if common.HandleServiceError(c, err, "failed to open auction") {
		return
	}

	common.SuccessResponse(c, booking)
}

// AwardAuction assigns the winning partner
// POST /api/v1/admin/bookings/:id/award
func (h *Handler) AwardAuction(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	var req AwardAuctionRequest
	if !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.AwardAuction(c.Request.Context(), id, req.PartnerID)
	if common.HandleServiceError(c, err, "failed to award auction") {
		return
	}

	common.SuccessResponse(c, booking)
}

// Assign sets the driver and vehicle pair
// POST /api/v1/admin/bookings/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	var req AssignBookingRequest
	if !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.AssignBooking(c.Request.Context(), id, &req)
	if common.HandleServiceError(c, err, "failed to assign booking") {
		return
	}

	common.SuccessResponse(c, booking)
}

// Start begins the trip
// POST /api/v1/partner/bookings/:id/start
func (h *Handler) Start(c *gin.Context) {
	id, ok := h.partnerScopedBooking(c)
	if !ok {
		return
	}

	booking, err := h.service.StartTrip(c.Request.Context(), id)
	if common.HandleServiceError(c, err, "failed to start trip") {
		return
	}

	common.SuccessResponse(c, booking)
}

// Complete finishes the trip
// POST /api/v1/partner/bookings/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	id, ok := h.partnerScopedBooking(c)
	if !ok {
		return
	}

	var req CompleteTripRequest
	if c.Request.ContentLength > 0 && !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.CompleteTrip(c.Request.Context(), id, &req)
	if common.HandleServiceError(c, err, "failed to complete trip") {
		return
	}

	common.SuccessResponse(c, booking)
}

// SetPaymentStatus updates the payment axis
// PUT /api/v1/admin/bookings/:id/payment-status
func (h *Handler) SetPaymentStatus(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return
	}

	var req SetPaymentStatusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.SetPaymentStatus(c.Request.Context(), id, req.Status)
	if common.HandleServiceError(c, err, "failed to set payment status") {
		return
	}

	common.SuccessResponse(c, booking)
}

// Stats returns grouped booking counts
// GET /api/v1/admin/bookings/stats?partner_id=
func (h *Handler) Stats(c *gin.Context) {
	var partnerID *uuid.UUID
	id, ok := common.ParseUUIDQuery(c, "partner_id", "partner id", false)
	if !ok {
		return
	}
	if id != uuid.Nil {
		partnerID = &id
	}

	stats, err := h.service.GetStats(c.Request.Context(), partnerID)
	if common.HandleServiceError(c, err, "failed to get booking stats") {
		return
	}

	common.SuccessResponse(c, stats)
}

// partnerScopedBooking loads the id param and verifies the caller's partner
// scope owns the booking before a lifecycle mutation.
func (h *Handler) partnerScopedBooking(c *gin.Context) (uuid.UUID, bool) {
	id, ok := common.ParseUUIDParam(c, "id", "booking id")
	if !ok {
		return uuid.Nil, false
	}

	role, err := middleware.GetUserRole(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	if role == models.RoleAdmin {
		return id, true
	}

	scope, err := scopeFromContext(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	if _, err := h.service.GetBooking(c.Request.Context(), id, scope); err != nil {
		common.HandleServiceError(c, err, "failed to get booking")
		return uuid.Nil, false
	}
	return id, true
}

func parseFilters(c *gin.Context) (Filters, bool) {
	filters := Filters{Search: c.Query("search")}

	if v := c.Query("status"); v != "" {
		status := BookingStatus(v)
		filters.Status = &status
	}
	if v := c.Query("payment_status"); v != "" {
		status := PaymentStatus(v)
		filters.PaymentStatus = &status
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

// RegisterRoutes registers booking routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	auth := middleware.AuthMiddleware(jwtSecret)

	// Customer and partner shared surface
	api := r.Group("/api/v1/bookings")
	api.Use(auth)
	{
		api.POST("", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), h.Create)
		api.GET("", h.List)
		api.GET("/:id", h.Get)
		api.POST("/:id/cancel", h.Cancel)
	}

	// Partner trip execution
	partner := r.Group("/api/v1/partner/bookings")
	partner.Use(auth)
	partner.Use(middleware.RequireRole(models.RolePartner, models.RoleAdmin))
	{
		partner.POST("/:id/start", h.Start)
		partner.POST("/:id/complete", h.Complete)
	}

	// Admin lifecycle control
	admin := r.Group("/api/v1/admin/bookings")
	admin.Use(auth)
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/stats", h.Stats)
		admin.POST("/:id/confirm", h.Confirm)
		admin.POST("/:id/auction", h.OpenAuction)
		admin.POST("/:id/award", h.AwardAuction)
		admin.POST("/:id/assign", h.Assign)
		admin.PUT("/:id/payment-status", h.SetPaymentStatus)
	}
}
