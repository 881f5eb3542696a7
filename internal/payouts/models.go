package payouts

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the settlement state of a payout
type PayoutStatus string

const (
	StatusPending    PayoutStatus = "pending"
	StatusRequested  PayoutStatus = "requested"
	StatusApproved   PayoutStatus = "approved"
	StatusProcessing PayoutStatus = "processing"
	StatusPaid       PayoutStatus = "paid"
	StatusFailed     PayoutStatus = "failed"
	StatusCancelled  PayoutStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s PayoutStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

// activeStatuses are the states that block another payout from covering an
// overlapping period for the same partner.
var activeStatuses = []PayoutStatus{StatusPending, StatusRequested, StatusApproved, StatusProcessing}

// Payout is a batched disbursement covering a set of earnings for one
// partner over a settlement period. Its monetary totals are a snapshot
// taken at creation and are never recomputed.
type Payout struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Reference     string       `json:"reference" db:"reference"`
	PartnerID     uuid.UUID    `json:"partner_id" db:"partner_id"`
	TotalAmount   float64      `json:"total_amount" db:"total_amount"`
	FeeAmount     float64      `json:"fee_amount" db:"fee_amount"`
	NetAmount     float64      `json:"net_amount" db:"net_amount"`
	Currency      string       `json:"currency" db:"currency"`
	Method        PayoutMethod `json:"method" db:"method"`
	Status        PayoutStatus `json:"status" db:"status"`
	PeriodStart   time.Time    `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time    `json:"period_end" db:"period_end"`
	EarningsCount int          `json:"earnings_count" db:"earnings_count"`
	BankDetails   *string      `json:"bank_details,omitempty" db:"bank_details"`
	ExternalTxnID *string      `json:"external_txn_id,omitempty" db:"external_txn_id"`
	FailureReason *string      `json:"failure_reason,omitempty" db:"failure_reason"`
	RequestedAt   *time.Time   `json:"requested_at,omitempty" db:"requested_at"`
	ApprovedAt    *time.Time   `json:"approved_at,omitempty" db:"approved_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
	PaidAt        *time.Time   `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// ========================================
// REQUEST/RESPONSE TYPES
// ========================================

// RequestPayoutRequest opens a payout for a settlement period
type RequestPayoutRequest struct {
	PartnerID   uuid.UUID    `json:"partner_id"`
	PeriodStart time.Time    `json:"period_start" binding:"required"`
	PeriodEnd   time.Time    `json:"period_end" binding:"required"`
	Method      PayoutMethod `json:"method" binding:"required"`
	BankDetails *string      `json:"bank_details,omitempty"`
}

// ProcessPayoutRequest hands the payout to the disbursement provider
type ProcessPayoutRequest struct {
	ExternalTxnID string `json:"external_txn_id" binding:"required"`
}

// FailPayoutRequest records a failed disbursement
type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// Filters narrows payout listings
type Filters struct {
	PartnerID *uuid.UUID
	Status    *PayoutStatus
	Method    *PayoutMethod
	From      *time.Time
	To        *time.Time
}

// StatusCount is one bucket of the grouped payout aggregate
type StatusCount struct {
	Status PayoutStatus `json:"status"`
	Count  int64        `json:"count"`
	Total  float64      `json:"total"`
}

// Stats summarizes payouts
type Stats struct {
	ByStatus     []StatusCount `json:"by_status"`
	TotalPayouts int64         `json:"total_payouts"`
	TotalPaidOut float64       `json:"total_paid_out"`
}
