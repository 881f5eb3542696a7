package bookings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/eventbus"
	"github.com/citytransfer/platform/pkg/logger"
	"github.com/citytransfer/platform/pkg/models"
)

const defaultCurrency = "EUR"

// AccessScope identifies the caller for partner- and customer-scoped reads.
// Partner scope is always threaded explicitly; it is never derived inside the
// service from ambient request state.
type AccessScope struct {
	Role      models.UserRole
	UserID    uuid.UUID
	PartnerID *uuid.UUID
}

// allowedTransitions is the fulfillment state machine. Cancellation is handled
// separately because it is legal from every non-terminal state.
var allowedTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:        {StatusConfirmed, StatusInAuction},
	StatusConfirmed:      {StatusAssigned},
	StatusInAuction:      {StatusAuctionAwarded},
	StatusAuctionAwarded: {StatusAssigned},
	StatusAssigned:       {StatusInProgress},
	StatusInProgress:     {StatusCompleted},
}

func canTransition(from, to BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Service handles booking lifecycle business logic
type Service struct {
	repo RepositoryInterface
	bus  EventPublisher
}

// NewService creates a new bookings service
func NewService(repo RepositoryInterface, bus EventPublisher) *Service {
	return &Service{repo: repo, bus: bus}
}

// ========================================
// LIFECYCLE OPERATIONS
// ========================================

// CreateBooking creates a new booking in pending status with a fresh reference
func (s *Service) CreateBooking(ctx context.Context, customerID uuid.UUID, req *CreateBookingRequest) (*Booking, error) {
	if req.Price <= 0 {
		return nil, common.NewValidationError("price must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return nil, common.NewValidationError("currency must be a 3-letter code")
	}

	now := time.Now().UTC()
	booking := &Booking{
		ID:                  uuid.New(),
		Reference:           generateBookingReference(),
		CustomerID:          customerID,
		PartnerID:           req.PartnerID,
		PickupAddress:       req.PickupAddress,
		DropoffAddress:      req.DropoffAddress,
		ScheduledPickupTime: req.ScheduledPickupTime,
		Price:               req.Price,
		Currency:            currency,
		BookingStatus:       StatusPending,
		PaymentStatus:       PaymentUnpaid,
		Instructions:        req.Instructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.publish(ctx, eventbus.SubjectBookingCreated, "booking.created", eventbus.BookingCreatedData{
		BookingID:      booking.ID,
		Reference:      booking.Reference,
		CustomerID:     booking.CustomerID,
		PartnerID:      booking.PartnerID,
		PickupAddress:  booking.PickupAddress,
		DropoffAddress: booking.DropoffAddress,
		ScheduledAt:    booking.ScheduledPickupTime,
		Price:          booking.Price,
		Currency:       booking.Currency,
		CreatedAt:      booking.CreatedAt,
	})

	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusConfirmed) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusConfirmed))
	}

	from := booking.BookingStatus
	booking.BookingStatus = StatusConfirmed
	booking.UpdatedAt = time.Now().UTC()

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectBookingConfirmed, "booking.confirmed", bookingEventData(booking))
	return booking, nil
}

// OpenAuction routes a pending booking into the partner auction branch
func (s *Service) OpenAuction(ctx context.Context, id uuid.UUID) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusInAuction) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusInAuction))
	}

	from := booking.BookingStatus
	booking.BookingStatus = StatusInAuction
	booking.UpdatedAt = time.Now().UTC()

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}
	return booking, nil
}

// AwardAuction assigns the winning partner; the booking then merges back into
// the normal assignment flow.
func (s *Service) AwardAuction(ctx context.Context, id uuid.UUID, partnerID uuid.UUID) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusAuctionAwarded) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusAuctionAwarded))
	}

	from := booking.BookingStatus
	booking.BookingStatus = StatusAuctionAwarded
	booking.PartnerID = &partnerID
	booking.UpdatedAt = time.Now().UTC()

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}
	return booking, nil
}

// AssignBooking sets the driver and vehicle pair and moves to assigned.
// Both references are required together.
func (s *Service) AssignBooking(ctx context.Context, id uuid.UUID, req *AssignBookingRequest) (*Booking, error) {
	if req.DriverID == nil || req.VehicleID == nil {
		return nil, common.NewValidationError("driver_id and vehicle_id must both be provided")
	}

	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusAssigned) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusAssigned))
	}

	from := booking.BookingStatus
	booking.DriverID = req.DriverID
	booking.VehicleID = req.VehicleID
	booking.BookingStatus = StatusAssigned
	booking.UpdatedAt = time.Now().UTC()

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}

	if booking.PartnerID != nil {
		s.publish(ctx, eventbus.SubjectBookingAssigned, "booking.assigned", eventbus.BookingAssignedData{
			BookingID:  booking.ID,
			Reference:  booking.Reference,
			PartnerID:  *booking.PartnerID,
			AssignedAt: booking.UpdatedAt,
		})
	}
	return booking, nil
}

// StartTrip records the actual pickup time and moves to in_progress
func (s *Service) StartTrip(ctx context.Context, id uuid.UUID) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusInProgress) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusInProgress))
	}
	if booking.DriverID == nil || booking.VehicleID == nil {
		return nil, common.NewPreconditionFailedError("booking has no driver and vehicle assigned")
	}

	now := time.Now().UTC()
	from := booking.BookingStatus
	booking.ActualPickupTime = &now
	booking.BookingStatus = StatusInProgress
	booking.UpdatedAt = now

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectBookingStarted, "booking.started", bookingEventData(booking))
	return booking, nil
}

// CompleteTrip records the actual dropoff time and moves to completed
func (s *Service) CompleteTrip(ctx context.Context, id uuid.UUID, req *CompleteTripRequest) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(booking.BookingStatus, StatusCompleted) {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusCompleted))
	}

	now := time.Now().UTC()
	booking.ActualDropoffTime = &now
	if req != nil && req.ActualDistanceKm != nil {
		if *req.ActualDistanceKm < 0 {
			return nil, common.NewValidationError("actual distance cannot be negative")
		}
		booking.ActualDistanceKm = req.ActualDistanceKm
	}
	from := booking.BookingStatus
	booking.BookingStatus = StatusCompleted
	booking.UpdatedAt = now

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}

	if booking.PartnerID != nil {
		s.publish(ctx, eventbus.SubjectBookingCompleted, "booking.completed", eventbus.BookingCompletedData{
			BookingID:   booking.ID,
			Reference:   booking.Reference,
			CustomerID:  booking.CustomerID,
			PartnerID:   *booking.PartnerID,
			Price:       booking.Price,
			Currency:    booking.Currency,
			CompletedAt: now,
		})
	}
	return booking, nil
}

// CancelBooking cancels any non-terminal booking and records the reason
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.BookingStatus.IsTerminal() {
		return nil, common.NewInvalidTransitionError("booking", string(booking.BookingStatus), string(StatusCancelled))
	}

	now := time.Now().UTC()
	from := booking.BookingStatus
	booking.BookingStatus = StatusCancelled
	if reason != "" {
		note := fmt.Sprintf("Cancelled: %s", reason)
		if booking.Instructions != "" {
			booking.Instructions = booking.Instructions + "\n" + note
		} else {
			booking.Instructions = note
		}
	}
	booking.UpdatedAt = now

	if err := s.update(ctx, booking, from); err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectBookingCancelled, "booking.cancelled", eventbus.BookingCancelledData{
		BookingID:   booking.ID,
		Reference:   booking.Reference,
		CustomerID:  booking.CustomerID,
		PartnerID:   booking.PartnerID,
		Reason:      reason,
		CancelledAt: now,
	})
	return booking, nil
}

// SetPaymentStatus updates the payment axis independently of fulfillment state
func (s *Service) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) (*Booking, error) {
	switch status {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
	default:
		return nil, common.NewValidationError("invalid payment status")
	}

	booking, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	booking.PaymentStatus = status
	booking.UpdatedAt = time.Now().UTC()

	if err := s.update(ctx, booking, booking.BookingStatus); err != nil {
		return nil, err
	}
	return booking, nil
}

// ========================================
// QUERIES
// ========================================

// GetBooking returns a booking the caller is allowed to see
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID, scope AccessScope) (*Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, common.NewNotFoundError("booking not found", err)
		}
		return nil, err
	}

	if err := authorizeBookingRead(booking, scope); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings returns bookings visible to the caller. Customer and partner
// scoping is enforced on the filters before they reach the repository.
func (s *Service) ListBookings(ctx context.Context, filters Filters, scope AccessScope, limit, offset int) ([]Booking, int64, error) {
	switch scope.Role {
	case models.RoleCustomer:
		filters.CustomerID = &scope.UserID
	case models.RolePartner:
		if scope.PartnerID == nil {
			return nil, 0, common.NewAuthorizationError("partner scope required")
		}
		filters.PartnerID = scope.PartnerID
	case models.RoleAdmin:
		// admins see everything the filters allow
	default:
		return nil, 0, common.NewAuthorizationError("unknown role")
	}

	items, total, err := s.repo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []Booking{}
	}
	return items, total, nil
}

// GetStats returns grouped booking counts, optionally scoped to one partner
func (s *Service) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	return s.repo.GetStats(ctx, partnerID)
}

// ========================================
// HELPERS
// ========================================

// update writes the booking guarded on the status it was read at. A guard
// miss means another request transitioned the booking between our read and
// this write; the caller's change is discarded and reported as a conflict.
func (s *Service) update(ctx context.Context, booking *Booking, from BookingStatus) error {
	err := s.repo.Update(ctx, booking, from)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStaleBooking) {
		return common.NewConflictError("booking was changed by a concurrent request")
	}
	return fmt.Errorf("update booking: %w", err)
}

func (s *Service) getForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, common.NewNotFoundError("booking not found", err)
		}
		return nil, err
	}
	return booking, nil
}

func authorizeBookingRead(booking *Booking, scope AccessScope) error {
	switch scope.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if booking.CustomerID == scope.UserID {
			return nil
		}
	case models.RolePartner:
		if scope.PartnerID != nil && booking.PartnerID != nil && *booking.PartnerID == *scope.PartnerID {
			return nil
		}
	}
	return common.NewAuthorizationError("not allowed to access this booking")
}

func (s *Service) publish(ctx context.Context, subject, eventType string, data interface{}) {
	if s.bus == nil {
		return
	}

	event, err := eventbus.NewEvent(eventType, "bookings", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build booking event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish booking event",
			zap.String("subject", subject), zap.Error(err))
	}
}

func bookingEventData(b *Booking) map[string]interface{} {
	return map[string]interface{}{
		"booking_id": b.ID,
		"reference":  b.Reference,
		"status":     b.BookingStatus,
		"updated_at": b.UpdatedAt,
	}
}

// generateBookingReference creates a unique booking reference
func generateBookingReference() string {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	ref := make([]byte, 10)
	for i := range ref {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		ref[i] = chars[n.Int64()]
	}
	return fmt.Sprintf("BK-%s", string(ref))
}
