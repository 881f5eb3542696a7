package reports

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/pkg/cache"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/models"
)

const (
	defaultTrendMonths = 12
	maxTrendMonths     = 36
	defaultRouteWindow = 90
	maxRouteWindow     = 365
	defaultRouteLimit  = 10
	maxRouteLimit      = 50

	globalScopeCacheKey = "all"
)

// AccessScope mirrors the caller's identity for authorization decisions
type AccessScope = bookings.AccessScope

// Service serves cached reporting rollups. With a nil cache every call
// goes straight to the repository.
type Service struct {
	repo  RepositoryInterface
	cache *cache.Manager
}

// NewService creates a new reports service
func NewService(repo RepositoryInterface, cacheManager *cache.Manager) *Service {
	return &Service{repo: repo, cache: cacheManager}
}

// GetOverview returns the dashboard snapshot. Partner callers always get
// their own partner's slice.
func (s *Service) GetOverview(ctx context.Context, partnerID *uuid.UUID, scope AccessScope) (*Overview, error) {
	partnerID, err := resolvePartnerScope(partnerID, scope)
	if err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.repo.GetOverview(ctx, partnerID)
	}

	var overview Overview
	key := cache.Keys.Overview(partnerCacheKey(partnerID))
	err = s.cache.GetOrSet(ctx, key, cache.TTL.Short(), &overview, func() (interface{}, error) {
		return s.repo.GetOverview(ctx, partnerID)
	})
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// GetMonthlyTrends returns the trailing revenue/earnings trend
func (s *Service) GetMonthlyTrends(ctx context.Context, partnerID *uuid.UUID, months int, scope AccessScope) ([]MonthlyTrend, error) {
	partnerID, err := resolvePartnerScope(partnerID, scope)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = defaultTrendMonths
	}
	if months > maxTrendMonths {
		months = maxTrendMonths
	}

	if s.cache == nil {
		return s.repo.GetMonthlyTrends(ctx, partnerID, months)
	}

	var trends []MonthlyTrend
	key := cache.Keys.MonthlyTrends(partnerCacheKey(partnerID), months)
	err = s.cache.GetOrSet(ctx, key, cache.TTL.Medium(), &trends, func() (interface{}, error) {
		return s.repo.GetMonthlyTrends(ctx, partnerID, months)
	})
	if err != nil {
		return nil, err
	}
	if trends == nil {
		trends = []MonthlyTrend{}
	}
	return trends, nil
}

// GetTopRoutes returns the most-booked routes over the trailing window.
// Admin only: route volume is platform-wide competitive data.
func (s *Service) GetTopRoutes(ctx context.Context, windowDays, limit int, scope AccessScope) ([]TopRoute, error) {
	if scope.Role != models.RoleAdmin {
		return nil, common.NewAuthorizationError("insufficient permissions")
	}
	if windowDays <= 0 {
		windowDays = defaultRouteWindow
	}
	if windowDays > maxRouteWindow {
		windowDays = maxRouteWindow
	}
	if limit <= 0 {
		limit = defaultRouteLimit
	}
	if limit > maxRouteLimit {
		limit = maxRouteLimit
	}

	if s.cache == nil {
		return s.repo.GetTopRoutes(ctx, windowDays, limit)
	}

	var routes []TopRoute
	key := cache.Keys.TopRoutes(windowDays, limit)
	err := s.cache.GetOrSet(ctx, key, cache.TTL.Medium(), &routes, func() (interface{}, error) {
		return s.repo.GetTopRoutes(ctx, windowDays, limit)
	})
	if err != nil {
		return nil, err
	}
	if routes == nil {
		routes = []TopRoute{}
	}
	return routes, nil
}

func resolvePartnerScope(partnerID *uuid.UUID, scope AccessScope) (*uuid.UUID, error) {
	switch scope.Role {
	case models.RolePartner:
		if scope.PartnerID == nil {
			return nil, common.NewAuthorizationError("partner scope required")
		}
		return scope.PartnerID, nil
	case models.RoleAdmin:
		return partnerID, nil
	}
	return nil, common.NewAuthorizationError("insufficient permissions")
}

func partnerCacheKey(partnerID *uuid.UUID) string {
	if partnerID == nil {
		return globalScopeCacheKey
	}
	return partnerID.String()
}

// parsePositiveInt is shared by the handler's query parsing
func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
