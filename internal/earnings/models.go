package earnings

import (
	"time"

	"github.com/google/uuid"
)

// EarningType represents the type of earning
type EarningType string

const (
	TypeBookingCommission EarningType = "booking_commission"
	TypeAuctionWin        EarningType = "auction_win"
	TypeReferralBonus     EarningType = "referral_bonus"
	TypePlatformBonus     EarningType = "platform_bonus"
)

// EarningStatus represents the settlement state of an earning
type EarningStatus string

const (
	StatusPending   EarningStatus = "pending"
	StatusProcessed EarningStatus = "processed"
	StatusPaid      EarningStatus = "paid"
	StatusCancelled EarningStatus = "cancelled"
)

// Earning is one ledger entry of a partner's revenue share
type Earning struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Reference        string        `json:"reference" db:"reference"`
	PartnerID        uuid.UUID     `json:"partner_id" db:"partner_id"`
	BookingID        *uuid.UUID    `json:"booking_id,omitempty" db:"booking_id"`
	PaymentID        *uuid.UUID    `json:"payment_id,omitempty" db:"payment_id"`
	PayoutID         *uuid.UUID    `json:"payout_id,omitempty" db:"payout_id"`
	Type             EarningType   `json:"earnings_type" db:"earnings_type"`
	GrossAmount      float64       `json:"gross_amount" db:"gross_amount"`
	CommissionRate   float64       `json:"commission_rate" db:"commission_rate"`
	CommissionAmount float64       `json:"commission_amount" db:"commission_amount"`
	NetEarnings      float64       `json:"net_earnings" db:"net_earnings"`
	PlatformFee      float64       `json:"platform_fee" db:"platform_fee"`
	TaxAmount        float64       `json:"tax_amount" db:"tax_amount"`
	Currency         string        `json:"currency" db:"currency"`
	Status           EarningStatus `json:"status" db:"status"`
	EarnedAt         time.Time     `json:"earned_at" db:"earned_at"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
	PaidAt           *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// ========================================
// REQUEST/RESPONSE TYPES
// ========================================

// CreateEarningRequest records a new ledger entry (administrative path)
type CreateEarningRequest struct {
	PartnerID      uuid.UUID   `json:"partner_id" binding:"required"`
	BookingID      *uuid.UUID  `json:"booking_id,omitempty"`
	PaymentID      *uuid.UUID  `json:"payment_id,omitempty"`
	Type           EarningType `json:"earnings_type" binding:"required,oneof=booking_commission auction_win referral_bonus platform_bonus"`
	GrossAmount    float64     `json:"gross_amount" binding:"required,gt=0"`
	CommissionRate float64     `json:"commission_rate"`
	PlatformFee    float64     `json:"platform_fee"`
	TaxAmount      float64     `json:"tax_amount"`
	Currency       string      `json:"currency"`
	EarnedAt       *time.Time  `json:"earned_at,omitempty"`
}

// UpdateEarningRequest patches a mutable ledger entry. Nil fields are left
// unchanged.
type UpdateEarningRequest struct {
	Type           *EarningType   `json:"earnings_type,omitempty"`
	GrossAmount    *float64       `json:"gross_amount,omitempty"`
	CommissionRate *float64       `json:"commission_rate,omitempty"`
	PlatformFee    *float64       `json:"platform_fee,omitempty"`
	TaxAmount      *float64       `json:"tax_amount,omitempty"`
	Status         *EarningStatus `json:"status,omitempty"`
	// AdminUnwind is the only path allowed to touch a paid earning: it
	// reverts the record to processed and clears paid_at.
	AdminUnwind bool `json:"admin_unwind,omitempty"`
}

// Filters narrows earnings listings
type Filters struct {
	PartnerID *uuid.UUID
	Status    *EarningStatus
	Type      *EarningType
	From      *time.Time
	To        *time.Time
	Search    string
}

// GroupCount is one bucket of a grouped aggregate
type GroupCount struct {
	Key   string  `json:"key"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// MonthlyTrend is one month of the rolling earnings trend
type MonthlyTrend struct {
	Month       string  `json:"month"`
	GrossAmount float64 `json:"gross_amount"`
	NetEarnings float64 `json:"net_earnings"`
	Count       int64   `json:"count"`
}

// Stats summarizes the ledger
type Stats struct {
	ByStatus      []GroupCount   `json:"by_status"`
	ByType        []GroupCount   `json:"by_type"`
	MonthlyTrend  []MonthlyTrend `json:"monthly_trend"`
	TotalEarnings float64        `json:"total_earnings"`
	TotalCount    int64          `json:"total_count"`
}

// PartnerTotals summarizes one partner's balance position
type PartnerTotals struct {
	PartnerID       uuid.UUID `json:"partner_id"`
	PendingAmount   float64   `json:"pending_amount"`
	ProcessedAmount float64   `json:"processed_amount"`
	PaidAmount      float64   `json:"paid_amount"`
	TotalCount      int64     `json:"total_count"`
}
