package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the read-only rollup queries
type RepositoryInterface interface {
	GetOverview(ctx context.Context, partnerID *uuid.UUID) (*Overview, error)
	GetMonthlyTrends(ctx context.Context, partnerID *uuid.UUID, months int) ([]MonthlyTrend, error)
	GetTopRoutes(ctx context.Context, windowDays, limit int) ([]TopRoute, error)
}

// Repository runs aggregate queries across bookings, earnings, and
// payouts. It never writes.
type Repository struct {
	db *pgxpool.Pool
}

var _ RepositoryInterface = (*Repository)(nil)

// NewRepository creates a new reports repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) groupQuery(ctx context.Context, query string, args []interface{}) ([]Bucket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count, &b.Total); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetOverview returns grouped counts and totals across all three ledgers
func (r *Repository) GetOverview(ctx context.Context, partnerID *uuid.UUID) (*Overview, error) {
	scope := ""
	args := []interface{}{}
	if partnerID != nil {
		scope = " WHERE partner_id = $1"
		args = append(args, *partnerID)
	}

	overview := &Overview{}
	var err error

	overview.BookingsByStatus, err = r.groupQuery(ctx, `
		SELECT booking_status, COUNT(*), COALESCE(SUM(price), 0)
		FROM bookings`+scope+` GROUP BY booking_status`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group bookings by status: %w", err)
	}

	overview.BookingsByPayment, err = r.groupQuery(ctx, `
		SELECT payment_status, COUNT(*), COALESCE(SUM(price), 0)
		FROM bookings`+scope+` GROUP BY payment_status`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group bookings by payment: %w", err)
	}

	overview.EarningsByStatus, err = r.groupQuery(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(net_earnings), 0)
		FROM earnings`+scope+` GROUP BY status`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group earnings by status: %w", err)
	}

	overview.EarningsByType, err = r.groupQuery(ctx, `
		SELECT earnings_type, COUNT(*), COALESCE(SUM(net_earnings), 0)
		FROM earnings`+scope+` GROUP BY earnings_type`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group earnings by type: %w", err)
	}

	overview.PayoutsByStatus, err = r.groupQuery(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(net_amount), 0)
		FROM payouts`+scope+` GROUP BY status`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group payouts by status: %w", err)
	}

	for _, b := range overview.BookingsByPayment {
		if b.Key == "paid" {
			overview.TotalRevenue += b.Total
		}
	}
	for _, b := range overview.EarningsByStatus {
		overview.TotalNetEarnings += b.Total
	}
	for _, b := range overview.PayoutsByStatus {
		if b.Key == "paid" {
			overview.TotalPaidOut += b.Total
		}
	}

	return overview, nil
}

// GetMonthlyTrends returns the revenue and earnings trend over the
// trailing months. Months with no activity are simply absent.
func (r *Repository) GetMonthlyTrends(ctx context.Context, partnerID *uuid.UUID, months int) ([]MonthlyTrend, error) {
	since := time.Now().AddDate(0, -months, 0)

	scope := ""
	earningScope := ""
	args := []interface{}{since}
	if partnerID != nil {
		args = append(args, *partnerID)
		scope = " AND partner_id = $2"
		earningScope = scope
	}

	bookingQuery := `
		SELECT TO_CHAR(DATE_TRUNC('month', created_at), 'YYYY-MM'),
		       COUNT(*),
		       COALESCE(SUM(price) FILTER (WHERE payment_status = 'paid'), 0)
		FROM bookings
		WHERE created_at >= $1` + scope + `
		GROUP BY DATE_TRUNC('month', created_at)`

	trend := map[string]*MonthlyTrend{}
	rows, err := r.db.Query(ctx, bookingQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking trend: %w", err)
	}
	for rows.Next() {
		var m MonthlyTrend
		if err := rows.Scan(&m.Month, &m.Bookings, &m.Revenue); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking trend: %w", err)
		}
		trend[m.Month] = &m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	earningQuery := `
		SELECT TO_CHAR(DATE_TRUNC('month', earned_at), 'YYYY-MM'),
		       COALESCE(SUM(net_earnings), 0)
		FROM earnings
		WHERE earned_at >= $1` + earningScope + `
		GROUP BY DATE_TRUNC('month', earned_at)`

	rows, err = r.db.Query(ctx, earningQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get earning trend: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var month string
		var net float64
		if err := rows.Scan(&month, &net); err != nil {
			return nil, fmt.Errorf("failed to scan earning trend: %w", err)
		}
		if m, ok := trend[month]; ok {
			m.NetEarnings = net
		} else {
			trend[month] = &MonthlyTrend{Month: month, NetEarnings: net}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]MonthlyTrend, 0, len(trend))
	for _, m := range trend {
		result = append(result, *m)
	}
	// YYYY-MM sorts lexicographically in chronological order.
	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })
	return result, nil
}

// GetTopRoutes returns the most-booked pickup/dropoff pairs within the
// trailing window
func (r *Repository) GetTopRoutes(ctx context.Context, windowDays, limit int) ([]TopRoute, error) {
	since := time.Now().AddDate(0, 0, -windowDays)

	query := `
		SELECT pickup_address, dropoff_address, COUNT(*)
		FROM bookings
		WHERE created_at >= $1 AND booking_status != 'cancelled'
		GROUP BY pickup_address, dropoff_address
		ORDER BY COUNT(*) DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top routes: %w", err)
	}
	defer rows.Close()

	routes := []TopRoute{}
	for rows.Next() {
		var route TopRoute
		if err := rows.Scan(&route.PickupAddress, &route.DropoffAddress, &route.Bookings); err != nil {
			return nil, fmt.Errorf("failed to scan top route: %w", err)
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}
