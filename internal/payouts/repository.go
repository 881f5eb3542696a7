package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles payout data access
type Repository struct {
	db *pgxpool.Pool
}

var _ RepositoryInterface = (*Repository)(nil)

// NewRepository creates a new payout repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const payoutColumns = `
	id, reference, partner_id, total_amount, fee_amount, net_amount,
	currency, method, status, period_start, period_end, earnings_count,
	bank_details, external_txn_id, failure_reason,
	requested_at, approved_at, processed_at, paid_at, created_at, updated_at`

func scanPayout(row pgx.Row) (*Payout, error) {
	var p Payout
	err := row.Scan(
		&p.ID, &p.Reference, &p.PartnerID, &p.TotalAmount, &p.FeeAmount, &p.NetAmount,
		&p.Currency, &p.Method, &p.Status, &p.PeriodStart, &p.PeriodEnd, &p.EarningsCount,
		&p.BankDetails, &p.ExternalTxnID, &p.FailureReason,
		&p.RequestedAt, &p.ApprovedAt, &p.ProcessedAt, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to scan payout: %w", err)
	}
	return &p, nil
}

// CreateWithEarnings performs the full payout aggregation atomically. The
// advisory lock serializes concurrent requests for the same partner, so
// the overlap check and the earnings selection see a consistent state.
func (r *Repository) CreateWithEarnings(ctx context.Context, payout *Payout, minTotal float64, feeFn func(total float64) float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin payout transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Per-partner serialization for the lifetime of this transaction.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, payout.PartnerID.String()); err != nil {
		return fmt.Errorf("failed to acquire partner lock: %w", err)
	}

	statuses := make([]string, len(activeStatuses))
	for i, s := range activeStatuses {
		statuses[i] = string(s)
	}

	var overlaps bool
	overlapQuery := `
		SELECT EXISTS (
			SELECT 1 FROM payouts
			WHERE partner_id = $1
			  AND status = ANY($2)
			  AND period_start <= $4
			  AND period_end >= $3
		)`
	if err := tx.QueryRow(ctx, overlapQuery, payout.PartnerID, statuses, payout.PeriodStart, payout.PeriodEnd).Scan(&overlaps); err != nil {
		return fmt.Errorf("failed to check period overlap: %w", err)
	}
	if overlaps {
		return ErrPeriodOverlap
	}

	// Row locks keep a concurrent payout (for a different, overlapping
	// window) from double-selecting these earnings before we link them.
	var total float64
	var count int
	var currency string
	selectQuery := `
		SELECT COALESCE(SUM(net_earnings), 0), COUNT(*), COALESCE(MAX(currency), 'EUR')
		FROM (
			SELECT net_earnings, currency FROM earnings
			WHERE partner_id = $1
			  AND status = 'processed'
			  AND payout_id IS NULL
			  AND earned_at >= $2
			  AND earned_at <= $3
			FOR UPDATE
		) eligible`
	if err := tx.QueryRow(ctx, selectQuery, payout.PartnerID, payout.PeriodStart, payout.PeriodEnd).Scan(&total, &count, &currency); err != nil {
		return fmt.Errorf("failed to select eligible earnings: %w", err)
	}
	if count == 0 {
		return ErrNoEligibleFunds
	}
	if total < minTotal {
		return ErrBelowMinimum
	}

	payout.TotalAmount = total
	payout.FeeAmount = feeFn(total)
	payout.NetAmount = total - payout.FeeAmount
	payout.EarningsCount = count
	payout.Currency = currency

	insertQuery := `
		INSERT INTO payouts (
			id, reference, partner_id, total_amount, fee_amount, net_amount,
			currency, method, status, period_start, period_end, earnings_count,
			bank_details, external_txn_id, failure_reason,
			requested_at, approved_at, processed_at, paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21
		)`
	_, err = tx.Exec(ctx, insertQuery,
		payout.ID, payout.Reference, payout.PartnerID, payout.TotalAmount,
		payout.FeeAmount, payout.NetAmount, payout.Currency, payout.Method,
		payout.Status, payout.PeriodStart, payout.PeriodEnd, payout.EarningsCount,
		payout.BankDetails, payout.ExternalTxnID, payout.FailureReason,
		payout.RequestedAt, payout.ApprovedAt, payout.ProcessedAt, payout.PaidAt,
		payout.CreatedAt, payout.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	linkQuery := `
		UPDATE earnings SET payout_id = $1, updated_at = $2
		WHERE partner_id = $3
		  AND status = 'processed'
		  AND payout_id IS NULL
		  AND earned_at >= $4
		  AND earned_at <= $5`
	result, err := tx.Exec(ctx, linkQuery, payout.ID, time.Now(), payout.PartnerID, payout.PeriodStart, payout.PeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to link earnings: %w", err)
	}
	if int(result.RowsAffected()) != count {
		return fmt.Errorf("earnings selection changed during aggregation: selected %d, linked %d", count, result.RowsAffected())
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a payout by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Payout, error) {
	query := `SELECT` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, id))
}

// GetByReference retrieves a payout by its human-readable reference
func (r *Repository) GetByReference(ctx context.Context, reference string) (*Payout, error) {
	query := `SELECT` + payoutColumns + ` FROM payouts WHERE reference = $1`
	return scanPayout(r.db.QueryRow(ctx, query, reference))
}

const updatePayoutQuery = `
	UPDATE payouts SET
		status = $2, bank_details = $3, external_txn_id = $4,
		failure_reason = $5, requested_at = $6, approved_at = $7,
		processed_at = $8, paid_at = $9, updated_at = $10
	WHERE id = $1 AND status = $11`

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// updatePayout writes the settlement fields guarded on the status the
// payout was read at. A row that has already moved past from is left
// untouched and ErrPayoutStale is returned.
func updatePayout(ctx context.Context, db execer, payout *Payout, from PayoutStatus) error {
	result, err := db.Exec(ctx, updatePayoutQuery,
		payout.ID, payout.Status, payout.BankDetails, payout.ExternalTxnID,
		payout.FailureReason, payout.RequestedAt, payout.ApprovedAt,
		payout.ProcessedAt, payout.PaidAt, payout.UpdatedAt,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutStale
	}
	return nil
}

// Update persists the mutable settlement fields of a payout, guarded on
// the status it was read at
func (r *Repository) Update(ctx context.Context, payout *Payout, from PayoutStatus) error {
	return updatePayout(ctx, r.db, payout, from)
}

// ProcessWithEarnings writes the payout and settles its linked earnings
// in one transaction, so a crash between the two cannot leave earnings
// behind a processing payout unpaid.
func (r *Repository) ProcessWithEarnings(ctx context.Context, payout *Payout, from PayoutStatus, paidAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updatePayout(ctx, tx, payout, from); err != nil {
		return err
	}

	query := `
		UPDATE earnings SET status = 'paid', paid_at = $2, updated_at = $2
		WHERE payout_id = $1 AND status = 'processed'`
	if _, err := tx.Exec(ctx, query, payout.ID, paidAt); err != nil {
		return fmt.Errorf("failed to mark earnings paid: %w", err)
	}

	return tx.Commit(ctx)
}

// ReleaseWithEarnings writes the payout and returns its earnings to
// processed in one transaction, unlinking them so a later payout can
// pick them up.
func (r *Repository) ReleaseWithEarnings(ctx context.Context, payout *Payout, from PayoutStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin release transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updatePayout(ctx, tx, payout, from); err != nil {
		return err
	}

	query := `
		UPDATE earnings
		SET status = 'processed', paid_at = NULL, payout_id = NULL, updated_at = $2
		WHERE payout_id = $1`
	if _, err := tx.Exec(ctx, query, payout.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to release earnings: %w", err)
	}

	return tx.Commit(ctx)
}

func buildPayoutFilters(filters Filters) (string, []interface{}) {
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
	if filters.Method != nil {
		add("method = $%d", *filters.Method)
	}
	if filters.From != nil {
		add("period_start >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("period_end <= $%d", *filters.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List retrieves payouts matching the filters, newest first
func (r *Repository) List(ctx context.Context, filters Filters, limit, offset int) ([]Payout, int64, error) {
	where, args := buildPayoutFilters(filters)

	var total int64
	countQuery := `SELECT COUNT(*) FROM payouts` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT`+payoutColumns+` FROM payouts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	payouts := []Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, total, rows.Err()
}

// GetStats aggregates payouts by status. A non-nil partnerID scopes the
// aggregate to that partner.
func (r *Repository) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	scope := ""
	args := []interface{}{}
	if partnerID != nil {
		scope = " WHERE partner_id = $1"
		args = append(args, *partnerID)
	}

	query := `
		SELECT status, COUNT(*), COALESCE(SUM(net_amount), 0)
		FROM payouts` + scope + `
		GROUP BY status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByStatus: []StatusCount{}}
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Total); err != nil {
			return nil, fmt.Errorf("failed to scan payout stats: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, sc)
		stats.TotalPayouts += sc.Count
		if sc.Status == StatusPaid {
			stats.TotalPaidOut += sc.Total
		}
	}
	return stats, rows.Err()
}
