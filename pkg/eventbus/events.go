package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// BookingCreatedData is emitted when a customer places a booking.
type BookingCreatedData struct {
	BookingID      uuid.UUID  `json:"booking_id"`
	Reference      string     `json:"reference"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	PartnerID      *uuid.UUID `json:"partner_id,omitempty"`
	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	Price          float64    `json:"price"`
	Currency       string     `json:"currency"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BookingAssignedData is emitted when a partner and driver are assigned.
type BookingAssignedData struct {
	BookingID  uuid.UUID `json:"booking_id"`
	Reference  string    `json:"reference"`
	PartnerID  uuid.UUID `json:"partner_id"`
	DriverName string    `json:"driver_name"`
	AssignedAt time.Time `json:"assigned_at"`
}

// BookingCompletedData is emitted when the transfer finishes.
type BookingCompletedData struct {
	BookingID   uuid.UUID `json:"booking_id"`
	Reference   string    `json:"reference"`
	CustomerID  uuid.UUID `json:"customer_id"`
	PartnerID   uuid.UUID `json:"partner_id"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

// BookingCancelledData is emitted when a booking is cancelled.
type BookingCancelledData struct {
	BookingID   uuid.UUID  `json:"booking_id"`
	Reference   string     `json:"reference"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	PartnerID   *uuid.UUID `json:"partner_id,omitempty"`
	Reason      string     `json:"reason"`
	CancelledAt time.Time  `json:"cancelled_at"`
}

// PaymentCompletedData is consumed when the payment provider confirms a
// booking was paid. It drives commission earning creation.
type PaymentCompletedData struct {
	BookingID   uuid.UUID `json:"booking_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	CompletedAt time.Time `json:"completed_at"`
}

// EarningCreatedData is emitted when an earning is recorded.
type EarningCreatedData struct {
	EarningID   uuid.UUID  `json:"earning_id"`
	Reference   string     `json:"reference"`
	PartnerID   uuid.UUID  `json:"partner_id"`
	BookingID   *uuid.UUID `json:"booking_id,omitempty"`
	Type        string     `json:"earnings_type"`
	NetEarnings float64    `json:"net_earnings"`
	Currency    string     `json:"currency"`
}

// PayoutRequestedData is emitted when a partner requests a payout.
type PayoutRequestedData struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	Reference     string    `json:"reference"`
	PartnerID     uuid.UUID `json:"partner_id"`
	Amount        float64   `json:"amount"`
	Fee           float64   `json:"fee"`
	NetAmount     float64   `json:"net_amount"`
	Currency      string    `json:"currency"`
	Method        string    `json:"method"`
	EarningsCount int       `json:"earnings_count"`
	RequestedAt   time.Time `json:"requested_at"`
}

// PayoutPaidData is emitted when a payout reaches its terminal paid state.
type PayoutPaidData struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	Reference string    `json:"reference"`
	PartnerID uuid.UUID `json:"partner_id"`
	NetAmount float64   `json:"net_amount"`
	Currency  string    `json:"currency"`
	PaidAt    time.Time `json:"paid_at"`
}

// PayoutFailedData is emitted when a payout fails and its earnings are released.
type PayoutFailedData struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	Reference string    `json:"reference"`
	PartnerID uuid.UUID `json:"partner_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}
