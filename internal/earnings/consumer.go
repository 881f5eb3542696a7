package earnings

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/pkg/eventbus"
	"github.com/citytransfer/platform/pkg/logger"
)

// Consumer derives commission earnings from confirmed payments.
type Consumer struct {
	service  *Service
	bookings BookingReader
	bus      *eventbus.Bus
}

// NewConsumer creates a new payment event consumer
func NewConsumer(service *Service, bookingReader BookingReader, bus *eventbus.Bus) *Consumer {
	return &Consumer{service: service, bookings: bookingReader, bus: bus}
}

// Start subscribes to payment completion events. The durable consumer
// name keeps delivery position across restarts.
func (c *Consumer) Start(ctx context.Context) error {
	return c.bus.Subscribe(ctx, eventbus.SubjectPaymentCompleted, "earnings-payment-completed", c.handlePaymentCompleted)
}

func (c *Consumer) handlePaymentCompleted(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.PaymentCompletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal payment completed event: %w", err)
	}

	booking, err := c.bookings.GetByID(ctx, data.BookingID)
	if err != nil {
		if err == bookings.ErrBookingNotFound {
			// Payment for an unknown booking is not retryable.
			logger.WarnContext(ctx, "payment event for unknown booking",
				zap.String("booking_id", data.BookingID.String()))
			return nil
		}
		return fmt.Errorf("load booking for payment event: %w", err)
	}

	// Commission is only due once the transfer has been carried out by a
	// partner and the customer has actually paid.
	if booking.PartnerID == nil || booking.BookingStatus != bookings.StatusCompleted || booking.PaymentStatus != bookings.PaymentPaid {
		logger.InfoContext(ctx, "skipping commission for booking",
			zap.String("booking_id", booking.ID.String()),
			zap.String("booking_status", string(booking.BookingStatus)),
			zap.String("payment_status", string(booking.PaymentStatus)))
		return nil
	}

	exists, err := c.service.repo.HasCommissionForBooking(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("check existing commission: %w", err)
	}
	if exists {
		return nil
	}

	rate := defaultCommissionRate
	if c.service.rates != nil {
		if r, err := c.service.rates.DefaultCommissionRate(ctx, *booking.PartnerID); err == nil {
			rate = r
		} else {
			logger.WarnContext(ctx, "falling back to default commission rate",
				zap.String("partner_id", booking.PartnerID.String()), zap.Error(err))
		}
	}

	_, err = c.service.CreateEarning(ctx, &CreateEarningRequest{
		PartnerID:      *booking.PartnerID,
		BookingID:      &booking.ID,
		Type:           TypeBookingCommission,
		GrossAmount:    data.Amount,
		CommissionRate: rate,
		Currency:       data.Currency,
		EarnedAt:       &data.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("create commission earning: %w", err)
	}

	logger.InfoContext(ctx, "commission earning recorded",
		zap.String("booking_id", booking.ID.String()),
		zap.String("partner_id", booking.PartnerID.String()))
	return nil
}
