//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/internal/earnings"
	"github.com/citytransfer/platform/internal/payouts"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/models"
	"github.com/citytransfer/platform/test/helpers"
)

func adminScope() bookings.AccessScope {
	return bookings.AccessScope{Role: models.RoleAdmin, UserID: uuid.New()}
}

func seedProcessedEarning(t *testing.T, pool *pgxpool.Pool, svc *earnings.Service, partnerID uuid.UUID, gross float64, earnedAt time.Time) *earnings.Earning {
	t.Helper()

	earning, err := svc.CreateEarning(context.Background(), &earnings.CreateEarningRequest{
		PartnerID:      partnerID,
		Type:           earnings.TypeBookingCommission,
		GrossAmount:    gross,
		CommissionRate: 0,
		EarnedAt:       &earnedAt,
	})
	require.NoError(t, err)

	processed, err := svc.ProcessEarning(context.Background(), earning.ID)
	require.NoError(t, err)
	return processed
}

// TestIntegration_SettlementFlow walks an earning from creation through a
// fully settled payout.
func TestIntegration_SettlementFlow(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	ctx := context.Background()
	earningSvc := earnings.NewService(earnings.NewRepository(pool), nil, nil)
	payoutSvc := payouts.NewService(payouts.NewRepository(pool), nil, nil, 0)

	partnerID := uuid.New()
	earnedAt := time.Now().UTC().Add(-24 * time.Hour)

	// Commission derivation: 100.00 at 15% leaves 85.00 net.
	created, err := earningSvc.CreateEarning(ctx, &earnings.CreateEarningRequest{
		PartnerID:      partnerID,
		Type:           earnings.TypeBookingCommission,
		GrossAmount:    100,
		CommissionRate: 15,
		EarnedAt:       &earnedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, created.CommissionAmount)
	assert.Equal(t, 85.0, created.NetEarnings)

	_, err = earningSvc.ProcessEarning(ctx, created.ID)
	require.NoError(t, err)

	payout, err := payoutSvc.RequestPayout(ctx, &payouts.RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: earnedAt.Add(-time.Hour),
		PeriodEnd:   time.Now().UTC(),
		Method:      payouts.MethodBankTransfer,
	}, adminScope())
	require.NoError(t, err)
	assert.Equal(t, 85.0, payout.TotalAmount)
	assert.Equal(t, 0.85, payout.FeeAmount) // 1% bank transfer fee
	assert.Equal(t, 84.15, payout.NetAmount)
	assert.Equal(t, 1, payout.EarningsCount)

	payout, err = payoutSvc.SubmitPayout(ctx, payout.ID)
	require.NoError(t, err)
	payout, err = payoutSvc.ApprovePayout(ctx, payout.ID)
	require.NoError(t, err)

	payout, err = payoutSvc.ProcessPayout(ctx, payout.ID, "ext-123")
	require.NoError(t, err)
	assert.Equal(t, payouts.StatusProcessing, payout.Status)

	// Processing flips the linked earning to paid.
	settled, err := earningSvc.GetEarning(ctx, created.ID, adminScope())
	require.NoError(t, err)
	assert.Equal(t, earnings.StatusPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)
	require.NotNil(t, settled.PayoutID)
	assert.Equal(t, payout.ID, *settled.PayoutID)

	payout, err = payoutSvc.CompletePayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, payouts.StatusPaid, payout.Status)
}

// TestIntegration_PayoutPeriodOverlap verifies a second payout over an
// overlapping window is rejected while the first is active.
func TestIntegration_PayoutPeriodOverlap(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	ctx := context.Background()
	earningSvc := earnings.NewService(earnings.NewRepository(pool), nil, nil)
	payoutSvc := payouts.NewService(payouts.NewRepository(pool), nil, nil, 0)

	partnerID := uuid.New()
	now := time.Now().UTC()
	seedProcessedEarning(t, pool, earningSvc, partnerID, 100, now.Add(-48*time.Hour))
	seedProcessedEarning(t, pool, earningSvc, partnerID, 50, now.Add(-24*time.Hour))

	_, err := payoutSvc.RequestPayout(ctx, &payouts.RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: now.Add(-72 * time.Hour),
		PeriodEnd:   now.Add(-36 * time.Hour),
		Method:      payouts.MethodBankTransfer,
	}, adminScope())
	require.NoError(t, err)

	// The second window overlaps the first by twelve hours.
	_, err = payoutSvc.RequestPayout(ctx, &payouts.RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: now.Add(-48 * time.Hour),
		PeriodEnd:   now,
		Method:      payouts.MethodBankTransfer,
	}, adminScope())
	require.Error(t, err)
	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, common.CodeConflict, appErr.ErrorCode)
}

// TestIntegration_PayoutNoEligibleFunds verifies an empty period is
// rejected without creating anything.
func TestIntegration_PayoutNoEligibleFunds(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	payoutSvc := payouts.NewService(payouts.NewRepository(pool), nil, nil, 0)

	now := time.Now().UTC()
	_, err := payoutSvc.RequestPayout(context.Background(), &payouts.RequestPayoutRequest{
		PartnerID:   uuid.New(),
		PeriodStart: now.Add(-24 * time.Hour),
		PeriodEnd:   now,
		Method:      payouts.MethodCheck,
	}, adminScope())

	require.Error(t, err)
	appErr, ok := err.(*common.AppError)
	require.True(t, ok)
	assert.Equal(t, common.CodeNoEligibleFunds, appErr.ErrorCode)

	var count int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM payouts`).Scan(&count))
	assert.Zero(t, count)
}

// TestIntegration_ConcurrentPayoutRequests fires two requests for the
// same partner and period in parallel; exactly one may win.
func TestIntegration_ConcurrentPayoutRequests(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	earningSvc := earnings.NewService(earnings.NewRepository(pool), nil, nil)
	payoutSvc := payouts.NewService(payouts.NewRepository(pool), nil, nil, 0)

	partnerID := uuid.New()
	now := time.Now().UTC()
	seedProcessedEarning(t, pool, earningSvc, partnerID, 100, now.Add(-24*time.Hour))

	req := func() error {
		_, err := payoutSvc.RequestPayout(context.Background(), &payouts.RequestPayoutRequest{
			PartnerID:   partnerID,
			PeriodStart: now.Add(-48 * time.Hour),
			PeriodEnd:   now,
			Method:      payouts.MethodBankTransfer,
		}, adminScope())
		return err
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = req()
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent request may create a payout")

	var count int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM payouts`).Scan(&count))
	assert.Equal(t, 1, count)

	// The single payout owns the earning; no double-linking occurred.
	var linked int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM earnings WHERE payout_id IS NOT NULL`).Scan(&linked))
	assert.Equal(t, 1, linked)
}

// TestIntegration_StaleBookingWriteIsRefused verifies the guarded update
// at the database level: a write based on a stale read must not drag a
// booking out of the state it has since moved to.
func TestIntegration_StaleBookingWriteIsRefused(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	ctx := context.Background()
	repo := bookings.NewRepository(pool)
	svc := bookings.NewService(repo, nil)

	booking, err := svc.CreateBooking(ctx, uuid.New(), &bookings.CreateBookingRequest{
		PickupAddress:       "Airport Terminal 1",
		DropoffAddress:      "Harbor Cruise Port",
		ScheduledPickupTime: time.Now().UTC().Add(2 * time.Hour),
		Price:               60,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmBooking(ctx, booking.ID)
	require.NoError(t, err)
	driverID, vehicleID := uuid.New(), uuid.New()
	_, err = svc.AssignBooking(ctx, booking.ID, &bookings.AssignBookingRequest{DriverID: &driverID, VehicleID: &vehicleID})
	require.NoError(t, err)
	_, err = svc.StartTrip(ctx, booking.ID)
	require.NoError(t, err)

	// Snapshot at in_progress, then let a completion land first.
	stale, err := repo.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	_, err = svc.CompleteTrip(ctx, booking.ID, nil)
	require.NoError(t, err)

	stale.BookingStatus = bookings.StatusCancelled
	stale.UpdatedAt = time.Now().UTC()
	err = repo.Update(ctx, stale, bookings.StatusInProgress)
	require.ErrorIs(t, err, bookings.ErrStaleBooking)

	current, err := repo.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, current.BookingStatus)
}

// TestIntegration_FailedPayoutReleasesEarnings verifies the recovery
// path: failing a payout returns its earnings to the eligible pool.
func TestIntegration_FailedPayoutReleasesEarnings(t *testing.T) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, "earnings", "payouts", "bookings")

	ctx := context.Background()
	earningSvc := earnings.NewService(earnings.NewRepository(pool), nil, nil)
	payoutSvc := payouts.NewService(payouts.NewRepository(pool), nil, nil, 0)

	partnerID := uuid.New()
	now := time.Now().UTC()
	earning := seedProcessedEarning(t, pool, earningSvc, partnerID, 100, now.Add(-24*time.Hour))

	payout, err := payoutSvc.RequestPayout(ctx, &payouts.RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: now.Add(-48 * time.Hour),
		PeriodEnd:   now,
		Method:      payouts.MethodBankTransfer,
	}, adminScope())
	require.NoError(t, err)

	payout, err = payoutSvc.SubmitPayout(ctx, payout.ID)
	require.NoError(t, err)
	payout, err = payoutSvc.ApprovePayout(ctx, payout.ID)
	require.NoError(t, err)
	payout, err = payoutSvc.ProcessPayout(ctx, payout.ID, "ext-456")
	require.NoError(t, err)

	payout, err = payoutSvc.FailPayout(ctx, payout.ID, "provider rejected the transfer")
	require.NoError(t, err)
	assert.Equal(t, payouts.StatusFailed, payout.Status)

	released, err := earningSvc.GetEarning(ctx, earning.ID, adminScope())
	require.NoError(t, err)
	assert.Equal(t, earnings.StatusProcessed, released.Status)
	assert.Nil(t, released.PayoutID)
	assert.Nil(t, released.PaidAt)

	// The released earning is eligible again.
	second, err := payoutSvc.RequestPayout(ctx, &payouts.RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: now.Add(-48 * time.Hour),
		PeriodEnd:   now,
		Method:      payouts.MethodBankTransfer,
	}, adminScope())
	require.NoError(t, err)
	assert.Equal(t, 1, second.EarningsCount)
}
