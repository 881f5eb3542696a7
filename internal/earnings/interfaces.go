package earnings

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/pkg/eventbus"
)

var (
	ErrEarningNotFound = errors.New("earning not found")
	// ErrEarningStale reports a guarded write that found the row in a
	// different status than it was read at.
	ErrEarningStale = errors.New("earning changed since it was read")
)

// RepositoryInterface defines the earnings data access contract
type RepositoryInterface interface {
	Create(ctx context.Context, earning *Earning) error
	GetByID(ctx context.Context, id uuid.UUID) (*Earning, error)
	GetByReference(ctx context.Context, reference string) (*Earning, error)
	Update(ctx context.Context, earning *Earning, from EarningStatus) error
	Delete(ctx context.Context, id uuid.UUID, from EarningStatus) error
	List(ctx context.Context, filters Filters, limit, offset int) ([]Earning, int64, error)
	HasCommissionForBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)
	GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error)
	GetPartnerTotals(ctx context.Context, partnerID uuid.UUID) (*PartnerTotals, error)
}

// BookingReader is the booking lookup the payment consumer needs.
// Narrowed to reads so the consumer cannot mutate bookings.
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
}

// EventPublisher publishes domain events. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
