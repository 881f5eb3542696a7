package bookings

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/citytransfer/platform/pkg/eventbus"
)

// Error definitions for the bookings repository
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrStaleBooking    = errors.New("booking changed since it was read")
)

// RepositoryInterface defines the interface for the bookings repository.
// This enables mocking in tests.
type RepositoryInterface interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetByReference(ctx context.Context, reference string) (*Booking, error)

	// Update writes the booking only while its stored status still equals
	// from, so two transitions loaded from the same snapshot cannot both
	// apply. Returns ErrStaleBooking when the guard misses.
	Update(ctx context.Context, b *Booking, from BookingStatus) error
	List(ctx context.Context, filters Filters, limit, offset int) ([]Booking, int64, error)
	GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error)
}

// EventPublisher publishes lifecycle events. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
