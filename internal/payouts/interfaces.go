package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/citytransfer/platform/pkg/eventbus"
)

var (
	ErrPayoutNotFound  = errors.New("payout not found")
	ErrPeriodOverlap   = errors.New("payout period overlaps an active payout")
	ErrNoEligibleFunds = errors.New("no eligible earnings in period")
	ErrBelowMinimum    = errors.New("eligible total below minimum payout amount")
	// ErrPayoutStale reports a guarded write that found the payout in a
	// different status than it was read at.
	ErrPayoutStale = errors.New("payout changed since it was read")
)

// RepositoryInterface defines the payout data access contract.
// CreateWithEarnings and the settlement mutators are atomic: either the
// payout and every linked earning change together, or nothing does.
type RepositoryInterface interface {
	// CreateWithEarnings runs the full aggregation inside one
	// transaction: overlap check, eligible-earnings selection, payout
	// insert, and earning linkage. The fee function is applied to the
	// selected total before insert. Returns ErrPeriodOverlap,
	// ErrNoEligibleFunds, or ErrBelowMinimum when a guard fails.
	CreateWithEarnings(ctx context.Context, payout *Payout, minTotal float64, feeFn func(total float64) float64) error

	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	GetByReference(ctx context.Context, reference string) (*Payout, error)

	// Update writes the payout only while its stored status still equals
	// from. Returns ErrPayoutStale when the guard misses.
	Update(ctx context.Context, payout *Payout, from PayoutStatus) error

	// ProcessWithEarnings writes the payout guarded on from and flips
	// every linked earning to paid, in one transaction.
	ProcessWithEarnings(ctx context.Context, payout *Payout, from PayoutStatus, paidAt time.Time) error

	// ReleaseWithEarnings writes the payout guarded on from and returns
	// its earnings to processed so a later payout can pick them up, in
	// one transaction.
	ReleaseWithEarnings(ctx context.Context, payout *Payout, from PayoutStatus) error

	List(ctx context.Context, filters Filters, limit, offset int) ([]Payout, int64, error)
	GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error)
}

// EventPublisher publishes domain events. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
