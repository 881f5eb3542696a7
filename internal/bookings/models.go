package bookings

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the fulfillment state of a booking
type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusInAuction      BookingStatus = "in_auction"
	StatusAuctionAwarded BookingStatus = "auction_awarded"
	StatusAssigned       BookingStatus = "assigned"
	StatusInProgress     BookingStatus = "in_progress"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
)

// PaymentStatus tracks the money axis independently of fulfillment
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// IsTerminal reports whether no further fulfillment transitions are allowed
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Booking represents a single customer transport request
type Booking struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	Reference           string        `json:"reference" db:"reference"`
	CustomerID          uuid.UUID     `json:"customer_id" db:"customer_id"`
	PartnerID           *uuid.UUID    `json:"partner_id,omitempty" db:"partner_id"`
	PickupAddress       string        `json:"pickup_address" db:"pickup_address"`
	DropoffAddress      string        `json:"dropoff_address" db:"dropoff_address"`
	ScheduledPickupTime time.Time     `json:"scheduled_pickup_time" db:"scheduled_pickup_time"`
	ActualPickupTime    *time.Time    `json:"actual_pickup_time,omitempty" db:"actual_pickup_time"`
	ActualDropoffTime   *time.Time    `json:"actual_dropoff_time,omitempty" db:"actual_dropoff_time"`
	DriverID            *uuid.UUID    `json:"driver_id,omitempty" db:"driver_id"`
	VehicleID           *uuid.UUID    `json:"vehicle_id,omitempty" db:"vehicle_id"`
	Price               float64       `json:"price" db:"price"`
	Currency            string        `json:"currency" db:"currency"`
	ActualDistanceKm    *float64      `json:"actual_distance_km,omitempty" db:"actual_distance_km"`
	BookingStatus       BookingStatus `json:"booking_status" db:"booking_status"`
	PaymentStatus       PaymentStatus `json:"payment_status" db:"payment_status"`
	Instructions        string        `json:"instructions" db:"instructions"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
}

// ========================================
// REQUEST/RESPONSE TYPES
// ========================================

// CreateBookingRequest creates a new booking in pending status
type CreateBookingRequest struct {
	PickupAddress       string     `json:"pickup_address" binding:"required,min=5,max=500"`
	DropoffAddress      string     `json:"dropoff_address" binding:"required,min=5,max=500"`
	ScheduledPickupTime time.Time  `json:"scheduled_pickup_time" binding:"required"`
	PartnerID           *uuid.UUID `json:"partner_id,omitempty"`
	Price               float64    `json:"price" binding:"required,gt=0"`
	Currency            string     `json:"currency"`
	Instructions        string     `json:"instructions" binding:"max=1000"`
}

// AssignBookingRequest assigns a driver and vehicle pair
type AssignBookingRequest struct {
	DriverID  *uuid.UUID `json:"driver_id"`
	VehicleID *uuid.UUID `json:"vehicle_id"`
}

// AwardAuctionRequest hands an auctioned booking to the winning partner
type AwardAuctionRequest struct {
	PartnerID uuid.UUID `json:"partner_id" binding:"required"`
}

// CompleteTripRequest finishes a trip
type CompleteTripRequest struct {
	ActualDistanceKm *float64 `json:"actual_distance_km,omitempty"`
}

// CancelBookingRequest cancels a booking with an optional reason
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// SetPaymentStatusRequest updates the payment axis
type SetPaymentStatusRequest struct {
	Status PaymentStatus `json:"status" binding:"required,oneof=unpaid paid refunded"`
}

// Filters narrows booking listings
type Filters struct {
	CustomerID    *uuid.UUID
	PartnerID     *uuid.UUID
	Status        *BookingStatus
	PaymentStatus *PaymentStatus
	From          *time.Time
	To            *time.Time
	Search        string
}

// StatusCount is one bucket of a grouped count
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Total  float64 `json:"total"`
}

// Stats summarizes bookings by status and payment status
type Stats struct {
	ByStatus        []StatusCount `json:"by_status"`
	ByPaymentStatus []StatusCount `json:"by_payment_status"`
	TotalBookings   int64         `json:"total_bookings"`
	TotalRevenue    float64       `json:"total_revenue"`
}
