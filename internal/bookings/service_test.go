package bookings

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/models"
)

// ========================================
// INTERNAL MOCK (implements RepositoryInterface within this package)
// ========================================

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, b *Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *mockRepo) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, b *Booking, from BookingStatus) error {
	args := m.Called(ctx, b, from)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, filters Filters, limit, offset int) ([]Booking, int64, error) {
	args := m.Called(ctx, filters, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]Booking), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stats), args.Error(1)
}

// ========================================
// TEST HELPERS
// ========================================

func testBooking(status BookingStatus) *Booking {
	now := time.Now().UTC()
	return &Booking{
		ID:                  uuid.New(),
		Reference:           "BK-TEST234567",
		CustomerID:          uuid.New(),
		PickupAddress:       "Airport Terminal 2, Arrivals",
		DropoffAddress:      "12 Harbour Street, City Centre",
		ScheduledPickupTime: now.Add(24 * time.Hour),
		Price:               80,
		Currency:            "EUR",
		BookingStatus:       status,
		PaymentStatus:       PaymentUnpaid,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func assigned(b *Booking) *Booking {
	driverID := uuid.New()
	vehicleID := uuid.New()
	b.DriverID = &driverID
	b.VehicleID = &vehicleID
	return b
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := err.(*common.AppError)
	require.True(t, ok, "expected *common.AppError, got %T", err)
	return appErr.ErrorCode
}

// ========================================
// TESTS: CreateBooking
// ========================================

func TestCreateBooking(t *testing.T) {
	customerID := uuid.New()

	t.Run("creates pending booking with generated reference", func(t *testing.T) {
		repo := new(mockRepo)
		repo.On("Create", mock.Anything, mock.AnythingOfType("*bookings.Booking")).Return(nil)

		svc := NewService(repo, nil)
		booking, err := svc.CreateBooking(context.Background(), customerID, &CreateBookingRequest{
			PickupAddress:       "Airport Terminal 2, Arrivals",
			DropoffAddress:      "12 Harbour Street, City Centre",
			ScheduledPickupTime: time.Now().Add(48 * time.Hour),
			Price:               120.50,
		})

		require.NoError(t, err)
		assert.Equal(t, StatusPending, booking.BookingStatus)
		assert.Equal(t, PaymentUnpaid, booking.PaymentStatus)
		assert.True(t, strings.HasPrefix(booking.Reference, "BK-"))
		assert.Equal(t, "EUR", booking.Currency)
		repo.AssertExpectations(t)
	})

	t.Run("rejects non-positive price", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)

		_, err := svc.CreateBooking(context.Background(), customerID, &CreateBookingRequest{
			PickupAddress:       "Airport Terminal 2, Arrivals",
			DropoffAddress:      "12 Harbour Street, City Centre",
			ScheduledPickupTime: time.Now().Add(48 * time.Hour),
			Price:               0,
		})

		require.Error(t, err)
		assert.Equal(t, common.CodeValidation, appErrorCode(t, err))
		repo.AssertNotCalled(t, "Create")
	})
}

// ========================================
// TESTS: state machine
// ========================================

func TestTransitionGraph(t *testing.T) {
	tests := []struct {
		name      string
		from      BookingStatus
		operation func(svc *Service, id uuid.UUID) error
		wantCode  string
	}{
		{
			name: "confirm from pending succeeds",
			from: StatusPending,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.ConfirmBooking(context.Background(), id)
				return err
			},
		},
		{
			name: "confirm from assigned rejected",
			from: StatusAssigned,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.ConfirmBooking(context.Background(), id)
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
		{
			name: "start trip from confirmed rejected",
			from: StatusConfirmed,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.StartTrip(context.Background(), id)
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
		{
			name: "complete from pending rejected",
			from: StatusPending,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.CompleteTrip(context.Background(), id, nil)
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
		{
			name: "cancel completed booking rejected",
			from: StatusCompleted,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.CancelBooking(context.Background(), id, "late")
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
		{
			name: "cancel cancelled booking rejected",
			from: StatusCancelled,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.CancelBooking(context.Background(), id, "")
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
		{
			name: "open auction from pending succeeds",
			from: StatusPending,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.OpenAuction(context.Background(), id)
				return err
			},
		},
		{
			name: "award auction from confirmed rejected",
			from: StatusConfirmed,
			operation: func(svc *Service, id uuid.UUID) error {
				_, err := svc.AwardAuction(context.Background(), id, uuid.New())
				return err
			},
			wantCode: common.CodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := testBooking(tt.from)
			if tt.from == StatusAssigned || tt.from == StatusInProgress || tt.from == StatusCompleted {
				assigned(booking)
			}

			repo := new(mockRepo)
			repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
			repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), mock.Anything).Return(nil).Maybe()

			svc := NewService(repo, nil)
			err := tt.operation(svc, booking.ID)

			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, appErrorCode(t, err))
			}
		})
	}
}

func TestAssignBooking(t *testing.T) {
	driverID := uuid.New()
	vehicleID := uuid.New()

	t.Run("requires both driver and vehicle", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)

		_, err := svc.AssignBooking(context.Background(), uuid.New(), &AssignBookingRequest{
			DriverID: &driverID,
		})

		require.Error(t, err)
		assert.Equal(t, common.CodeValidation, appErrorCode(t, err))
		repo.AssertNotCalled(t, "GetByID")
	})

	t.Run("assigns from confirmed", func(t *testing.T) {
		booking := testBooking(StatusConfirmed)
		repo := new(mockRepo)
		repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
		repo.On("Update", mock.Anything, mock.MatchedBy(func(b *Booking) bool {
			return b.BookingStatus == StatusAssigned && b.DriverID != nil && b.VehicleID != nil
		}), StatusConfirmed).Return(nil)

		svc := NewService(repo, nil)
		updated, err := svc.AssignBooking(context.Background(), booking.ID, &AssignBookingRequest{
			DriverID:  &driverID,
			VehicleID: &vehicleID,
		})

		require.NoError(t, err)
		assert.Equal(t, StatusAssigned, updated.BookingStatus)
		repo.AssertExpectations(t)
	})

	t.Run("assigns from auction_awarded", func(t *testing.T) {
		booking := testBooking(StatusAuctionAwarded)
		partnerID := uuid.New()
		booking.PartnerID = &partnerID

		repo := new(mockRepo)
		repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
		repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), mock.Anything).Return(nil)

		svc := NewService(repo, nil)
		updated, err := svc.AssignBooking(context.Background(), booking.ID, &AssignBookingRequest{
			DriverID:  &driverID,
			VehicleID: &vehicleID,
		})

		require.NoError(t, err)
		assert.Equal(t, StatusAssigned, updated.BookingStatus)
	})
}

func TestFullLifecycle(t *testing.T) {
	// create → confirm → assign → start → complete, with timestamps recorded
	booking := testBooking(StatusPending)
	driverID := uuid.New()
	vehicleID := uuid.New()
	distance := 24.5

	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), mock.Anything).Return(nil)

	svc := NewService(repo, nil)
	ctx := context.Background()

	b, err := svc.ConfirmBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.BookingStatus)

	b, err = svc.AssignBooking(ctx, booking.ID, &AssignBookingRequest{DriverID: &driverID, VehicleID: &vehicleID})
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, b.BookingStatus)

	b, err = svc.StartTrip(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, b.BookingStatus)
	require.NotNil(t, b.ActualPickupTime)

	b, err = svc.CompleteTrip(ctx, booking.ID, &CompleteTripRequest{ActualDistanceKm: &distance})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, b.BookingStatus)
	require.NotNil(t, b.ActualDropoffTime)
	require.NotNil(t, b.ActualDistanceKm)
	assert.Equal(t, 24.5, *b.ActualDistanceKm)
	assert.NotNil(t, b.DriverID)
	assert.NotNil(t, b.VehicleID)
}

func TestStartTripRequiresAssignment(t *testing.T) {
	// status says assigned but the references are gone: precondition failure,
	// not an invalid transition
	booking := testBooking(StatusAssigned)

	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)

	svc := NewService(repo, nil)
	_, err := svc.StartTrip(context.Background(), booking.ID)

	require.Error(t, err)
	assert.Equal(t, common.CodePreconditionFailed, appErrorCode(t, err))
}

func TestSetPaymentStatusOrthogonal(t *testing.T) {
	// payment status changes regardless of fulfillment state
	for _, status := range []BookingStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled} {
		booking := testBooking(status)

		repo := new(mockRepo)
		repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
		repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), mock.Anything).Return(nil)

		svc := NewService(repo, nil)
		updated, err := svc.SetPaymentStatus(context.Background(), booking.ID, PaymentPaid)

		require.NoError(t, err, "status %s", status)
		assert.Equal(t, PaymentPaid, updated.PaymentStatus)
		assert.Equal(t, status, updated.BookingStatus, "fulfillment state must not change")
	}
}

func TestCancelAppendsReason(t *testing.T) {
	booking := testBooking(StatusConfirmed)
	booking.Instructions = "Ring on arrival"

	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), mock.Anything).Return(nil)

	svc := NewService(repo, nil)
	updated, err := svc.CancelBooking(context.Background(), booking.ID, "flight diverted")

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.BookingStatus)
	assert.Contains(t, updated.Instructions, "Ring on arrival")
	assert.Contains(t, updated.Instructions, "flight diverted")
}

func TestConcurrentTransitionLosesOnStaleWrite(t *testing.T) {
	// A cancel reads the booking at in_progress while a complete lands in
	// between. The guarded write misses and the cancel must surface a
	// conflict instead of dragging the booking out of its terminal state.
	booking := assigned(testBooking(StatusInProgress))

	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*bookings.Booking"), StatusInProgress).
		Return(ErrStaleBooking)

	svc := NewService(repo, nil)
	_, err := svc.CancelBooking(context.Background(), booking.ID, "no show")

	require.Error(t, err)
	assert.Equal(t, common.CodeConflict, appErrorCode(t, err))
	repo.AssertExpectations(t)
}

// ========================================
// TESTS: scoping
// ========================================

func TestGetBookingScope(t *testing.T) {
	booking := testBooking(StatusPending)
	partnerID := uuid.New()
	booking.PartnerID = &partnerID

	tests := []struct {
		name    string
		scope   AccessScope
		wantErr bool
	}{
		{
			name:  "owning customer allowed",
			scope: AccessScope{Role: models.RoleCustomer, UserID: booking.CustomerID},
		},
		{
			name:    "other customer denied",
			scope:   AccessScope{Role: models.RoleCustomer, UserID: uuid.New()},
			wantErr: true,
		},
		{
			name:  "owning partner allowed",
			scope: AccessScope{Role: models.RolePartner, UserID: uuid.New(), PartnerID: &partnerID},
		},
		{
			name: "other partner denied",
			scope: AccessScope{Role: models.RolePartner, UserID: uuid.New(), PartnerID: func() *uuid.UUID {
				id := uuid.New()
				return &id
			}()},
			wantErr: true,
		},
		{
			name:  "admin allowed",
			scope: AccessScope{Role: models.RoleAdmin, UserID: uuid.New()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			repo.On("GetByID", mock.Anything, booking.ID).Return(booking, nil)

			svc := NewService(repo, nil)
			_, err := svc.GetBooking(context.Background(), booking.ID, tt.scope)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, common.CodeAuthorization, appErrorCode(t, err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestListBookingsForcesScope(t *testing.T) {
	partnerID := uuid.New()

	repo := new(mockRepo)
	repo.On("List", mock.Anything, mock.MatchedBy(func(f Filters) bool {
		return f.PartnerID != nil && *f.PartnerID == partnerID
	}), 20, 0).Return([]Booking{}, int64(0), nil)

	svc := NewService(repo, nil)

	// even if the caller passes a different partner filter, their own scope wins
	otherPartner := uuid.New()
	_, _, err := svc.ListBookings(context.Background(), Filters{PartnerID: &otherPartner},
		AccessScope{Role: models.RolePartner, UserID: uuid.New(), PartnerID: &partnerID}, 20, 0)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
