package earnings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles earnings data access
type Repository struct {
	db *pgxpool.Pool
}

var _ RepositoryInterface = (*Repository)(nil)

// NewRepository creates a new earnings repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const earningColumns = `
	id, reference, partner_id, booking_id, payment_id, payout_id,
	earnings_type, gross_amount, commission_rate, commission_amount,
	net_earnings, platform_fee, tax_amount, currency, status,
	earned_at, processed_at, paid_at, created_at, updated_at`

func scanEarning(row pgx.Row) (*Earning, error) {
	var e Earning
	err := row.Scan(
		&e.ID, &e.Reference, &e.PartnerID, &e.BookingID, &e.PaymentID, &e.PayoutID,
		&e.Type, &e.GrossAmount, &e.CommissionRate, &e.CommissionAmount,
		&e.NetEarnings, &e.PlatformFee, &e.TaxAmount, &e.Currency, &e.Status,
		&e.EarnedAt, &e.ProcessedAt, &e.PaidAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEarningNotFound
		}
		return nil, fmt.Errorf("failed to scan earning: %w", err)
	}
	return &e, nil
}

// Create inserts a new earning
func (r *Repository) Create(ctx context.Context, earning *Earning) error {
	query := `
		INSERT INTO earnings (
			id, reference, partner_id, booking_id, payment_id, payout_id,
			earnings_type, gross_amount, commission_rate, commission_amount,
			net_earnings, platform_fee, tax_amount, currency, status,
			earned_at, processed_at, paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`

	_, err := r.db.Exec(ctx, query,
		earning.ID, earning.Reference, earning.PartnerID, earning.BookingID,
		earning.PaymentID, earning.PayoutID, earning.Type, earning.GrossAmount,
		earning.CommissionRate, earning.CommissionAmount, earning.NetEarnings,
		earning.PlatformFee, earning.TaxAmount, earning.Currency, earning.Status,
		earning.EarnedAt, earning.ProcessedAt, earning.PaidAt,
		earning.CreatedAt, earning.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create earning: %w", err)
	}
	return nil
}

// GetByID retrieves an earning by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Earning, error) {
	query := `SELECT` + earningColumns + ` FROM earnings WHERE id = $1`
	return scanEarning(r.db.QueryRow(ctx, query, id))
}

// GetByReference retrieves an earning by its human-readable reference
func (r *Repository) GetByReference(ctx context.Context, reference string) (*Earning, error) {
	query := `SELECT` + earningColumns + ` FROM earnings WHERE reference = $1`
	return scanEarning(r.db.QueryRow(ctx, query, reference))
}

// Update persists all mutable fields of an earning. The status guard makes
// the write a compare-and-swap: a row no longer in from is left untouched
// and ErrEarningStale is returned.
func (r *Repository) Update(ctx context.Context, earning *Earning, from EarningStatus) error {
	query := `
		UPDATE earnings SET
			booking_id = $2, payment_id = $3, payout_id = $4, earnings_type = $5,
			gross_amount = $6, commission_rate = $7, commission_amount = $8,
			net_earnings = $9, platform_fee = $10, tax_amount = $11,
			currency = $12, status = $13, earned_at = $14,
			processed_at = $15, paid_at = $16, updated_at = $17
		WHERE id = $1 AND status = $18`

	result, err := r.db.Exec(ctx, query,
		earning.ID, earning.BookingID, earning.PaymentID, earning.PayoutID,
		earning.Type, earning.GrossAmount, earning.CommissionRate,
		earning.CommissionAmount, earning.NetEarnings, earning.PlatformFee,
		earning.TaxAmount, earning.Currency, earning.Status, earning.EarnedAt,
		earning.ProcessedAt, earning.PaidAt, earning.UpdatedAt,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update earning: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEarningStale
	}
	return nil
}

// Delete removes an earning, guarded on the status it was read at
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, from EarningStatus) error {
	result, err := r.db.Exec(ctx, `DELETE FROM earnings WHERE id = $1 AND status = $2`, id, from)
	if err != nil {
		return fmt.Errorf("failed to delete earning: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEarningStale
	}
	return nil
}

func buildEarningFilters(filters Filters) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	add := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filters.PartnerID != nil {
		add("partner_id = $%d", *filters.PartnerID)
	}
	if filters.Status != nil {
		add("status = $%d", *filters.Status)
	}
	if filters.Type != nil {
		add("earnings_type = $%d", *filters.Type)
	}
	if filters.From != nil {
		add("earned_at >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("earned_at <= $%d", *filters.To)
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(reference ILIKE $%d OR booking_id IN (SELECT id FROM bookings WHERE reference ILIKE $%d))", n, n))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List retrieves earnings matching the filters, newest earned first
func (r *Repository) List(ctx context.Context, filters Filters, limit, offset int) ([]Earning, int64, error) {
	where, args := buildEarningFilters(filters)

	var total int64
	countQuery := `SELECT COUNT(*) FROM earnings` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count earnings: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT`+earningColumns+` FROM earnings%s ORDER BY earned_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	earnings := []Earning{}
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, 0, err
		}
		earnings = append(earnings, *e)
	}
	return earnings, total, rows.Err()
}

// HasCommissionForBooking reports whether a commission earning already
// exists for the booking. Used to keep event redelivery idempotent.
func (r *Repository) HasCommissionForBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM earnings
			WHERE booking_id = $1 AND earnings_type = 'booking_commission' AND status != 'cancelled'
		)`
	if err := r.db.QueryRow(ctx, query, bookingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check commission existence: %w", err)
	}
	return exists, nil
}

// GetStats aggregates the ledger by status and type plus a rolling
// 12-month trend. A non-nil partnerID scopes every aggregate.
func (r *Repository) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	scope := ""
	args := []interface{}{}
	if partnerID != nil {
		scope = " WHERE partner_id = $1"
		args = append(args, *partnerID)
	}

	stats := &Stats{
		ByStatus:     []GroupCount{},
		ByType:       []GroupCount{},
		MonthlyTrend: []MonthlyTrend{},
	}

	statusQuery := `
		SELECT status, COUNT(*), COALESCE(SUM(net_earnings), 0)
		FROM earnings` + scope + `
		GROUP BY status`
	rows, err := r.db.Query(ctx, statusQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get status stats: %w", err)
	}
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count, &g.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status stats: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, g)
		stats.TotalCount += g.Count
		stats.TotalEarnings += g.Total
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeQuery := `
		SELECT earnings_type, COUNT(*), COALESCE(SUM(net_earnings), 0)
		FROM earnings` + scope + `
		GROUP BY earnings_type`
	rows, err = r.db.Query(ctx, typeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get type stats: %w", err)
	}
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count, &g.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan type stats: %w", err)
		}
		stats.ByType = append(stats.ByType, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trendArgs := append([]interface{}{}, args...)
	trendArgs = append(trendArgs, time.Now().AddDate(0, -12, 0))
	trendScope := scope
	if trendScope == "" {
		trendScope = fmt.Sprintf(" WHERE earned_at >= $%d", len(trendArgs))
	} else {
		trendScope += fmt.Sprintf(" AND earned_at >= $%d", len(trendArgs))
	}
	trendQuery := `
		SELECT TO_CHAR(DATE_TRUNC('month', earned_at), 'YYYY-MM'),
		       COALESCE(SUM(gross_amount), 0),
		       COALESCE(SUM(net_earnings), 0),
		       COUNT(*)
		FROM earnings` + trendScope + `
		GROUP BY DATE_TRUNC('month', earned_at)
		ORDER BY DATE_TRUNC('month', earned_at)`
	rows, err = r.db.Query(ctx, trendQuery, trendArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly trend: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m MonthlyTrend
		if err := rows.Scan(&m.Month, &m.GrossAmount, &m.NetEarnings, &m.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly trend: %w", err)
		}
		stats.MonthlyTrend = append(stats.MonthlyTrend, m)
	}
	return stats, rows.Err()
}

// GetPartnerTotals returns one partner's balance broken down by status
func (r *Repository) GetPartnerTotals(ctx context.Context, partnerID uuid.UUID) (*PartnerTotals, error) {
	query := `
		SELECT
			COALESCE(SUM(net_earnings) FILTER (WHERE status = 'pending'), 0),
			COALESCE(SUM(net_earnings) FILTER (WHERE status = 'processed'), 0),
			COALESCE(SUM(net_earnings) FILTER (WHERE status = 'paid'), 0),
			COUNT(*)
		FROM earnings
		WHERE partner_id = $1`

	totals := &PartnerTotals{PartnerID: partnerID}
	err := r.db.QueryRow(ctx, query, partnerID).Scan(
		&totals.PendingAmount, &totals.ProcessedAmount, &totals.PaidAmount, &totals.TotalCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get partner totals: %w", err)
	}
	return totals, nil
}
