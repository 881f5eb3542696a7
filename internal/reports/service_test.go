package reports

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/citytransfer/platform/pkg/cache"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/models"
	redisclient "github.com/citytransfer/platform/pkg/redis"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetOverview(ctx context.Context, partnerID *uuid.UUID) (*Overview, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Overview), args.Error(1)
}

func (m *mockRepo) GetMonthlyTrends(ctx context.Context, partnerID *uuid.UUID, months int) ([]MonthlyTrend, error) {
	args := m.Called(ctx, partnerID, months)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MonthlyTrend), args.Error(1)
}

func (m *mockRepo) GetTopRoutes(ctx context.Context, windowDays, limit int) ([]TopRoute, error) {
	args := m.Called(ctx, windowDays, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TopRoute), args.Error(1)
}

func adminScope() AccessScope {
	return AccessScope{Role: models.RoleAdmin, UserID: uuid.New()}
}

func partnerScope(partnerID uuid.UUID) AccessScope {
	return AccessScope{Role: models.RolePartner, UserID: uuid.New(), PartnerID: &partnerID}
}

func sampleOverview() *Overview {
	return &Overview{
		BookingsByStatus:  []Bucket{{Key: "completed", Count: 4, Total: 480}},
		BookingsByPayment: []Bucket{{Key: "paid", Count: 4, Total: 480}},
		EarningsByStatus:  []Bucket{{Key: "processed", Count: 4, Total: 384}},
		EarningsByType:    []Bucket{{Key: "booking_commission", Count: 4, Total: 384}},
		PayoutsByStatus:   []Bucket{},
		TotalRevenue:      480,
		TotalNetEarnings:  384,
	}
}

// ========================================
// TESTS
// ========================================

func TestGetOverview(t *testing.T) {
	t.Run("cache miss hits the repository and populates cache", func(t *testing.T) {
		repo := new(mockRepo)
		db, redisMock := redismock.NewClientMock()
		svc := NewService(repo, cache.NewManager(redisclient.NewFromClient(db)))

		overview := sampleOverview()
		repo.On("GetOverview", mock.Anything, (*uuid.UUID)(nil)).Return(overview, nil)

		key := cache.Keys.Overview("all")
		payload, err := json.Marshal(overview)
		require.NoError(t, err)
		redisMock.ExpectGet(key).RedisNil()
		redisMock.ExpectSet(key, string(payload), cache.TTL.Short()).SetVal("OK")

		got, err := svc.GetOverview(context.Background(), nil, adminScope())

		require.NoError(t, err)
		assert.Equal(t, overview.TotalRevenue, got.TotalRevenue)
		assert.NoError(t, redisMock.ExpectationsWereMet())
		repo.AssertExpectations(t)
	})

	t.Run("cache hit skips the repository", func(t *testing.T) {
		repo := new(mockRepo)
		db, redisMock := redismock.NewClientMock()
		svc := NewService(repo, cache.NewManager(redisclient.NewFromClient(db)))

		payload, err := json.Marshal(sampleOverview())
		require.NoError(t, err)
		redisMock.ExpectGet(cache.Keys.Overview("all")).SetVal(string(payload))

		got, err := svc.GetOverview(context.Background(), nil, adminScope())

		require.NoError(t, err)
		assert.Equal(t, 480.0, got.TotalRevenue)
		repo.AssertNotCalled(t, "GetOverview", mock.Anything, mock.Anything)
	})

	t.Run("partner scope overrides requested partner", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)
		partnerID := uuid.New()
		otherID := uuid.New()

		repo.On("GetOverview", mock.Anything, &partnerID).Return(&Overview{}, nil)

		_, err := svc.GetOverview(context.Background(), &otherID, partnerScope(partnerID))

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("customers are rejected", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil)

		_, err := svc.GetOverview(context.Background(), nil, AccessScope{Role: models.RoleCustomer, UserID: uuid.New()})

		require.Error(t, err)
		appErr, ok := err.(*common.AppError)
		require.True(t, ok)
		assert.Equal(t, common.CodeAuthorization, appErr.ErrorCode)
	})

	t.Run("empty dataset yields zeroed aggregates", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)
		repo.On("GetOverview", mock.Anything, (*uuid.UUID)(nil)).Return(&Overview{
			BookingsByStatus:  []Bucket{},
			BookingsByPayment: []Bucket{},
			EarningsByStatus:  []Bucket{},
			EarningsByType:    []Bucket{},
			PayoutsByStatus:   []Bucket{},
		}, nil)

		got, err := svc.GetOverview(context.Background(), nil, adminScope())

		require.NoError(t, err)
		assert.Empty(t, got.BookingsByStatus)
		assert.Zero(t, got.TotalRevenue)
	})
}

func TestGetMonthlyTrends(t *testing.T) {
	t.Run("clamps months to the maximum", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)
		repo.On("GetMonthlyTrends", mock.Anything, (*uuid.UUID)(nil), maxTrendMonths).Return([]MonthlyTrend{}, nil)

		_, err := svc.GetMonthlyTrends(context.Background(), nil, 120, adminScope())

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("defaults months when unset", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)
		repo.On("GetMonthlyTrends", mock.Anything, (*uuid.UUID)(nil), defaultTrendMonths).Return([]MonthlyTrend{
			{Month: "2026-07", Bookings: 3, Revenue: 300, NetEarnings: 240},
		}, nil)

		trends, err := svc.GetMonthlyTrends(context.Background(), nil, 0, adminScope())

		require.NoError(t, err)
		require.Len(t, trends, 1)
		assert.Equal(t, "2026-07", trends[0].Month)
	})
}

func TestGetTopRoutes(t *testing.T) {
	t.Run("admin only", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil)

		_, err := svc.GetTopRoutes(context.Background(), 90, 10, partnerScope(uuid.New()))

		require.Error(t, err)
		appErr, ok := err.(*common.AppError)
		require.True(t, ok)
		assert.Equal(t, common.CodeAuthorization, appErr.ErrorCode)
	})

	t.Run("clamps window and limit", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil)
		repo.On("GetTopRoutes", mock.Anything, maxRouteWindow, maxRouteLimit).Return([]TopRoute{}, nil)

		routes, err := svc.GetTopRoutes(context.Background(), 1000, 500, adminScope())

		require.NoError(t, err)
		assert.Empty(t, routes)
		repo.AssertExpectations(t)
	})
}
