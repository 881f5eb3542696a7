package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles booking data access
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new bookings repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ RepositoryInterface = (*Repository)(nil)

const bookingColumns = `
	id, reference, customer_id, partner_id,
	pickup_address, dropoff_address, scheduled_pickup_time,
	actual_pickup_time, actual_dropoff_time,
	driver_id, vehicle_id, price, currency, actual_distance_km,
	booking_status, payment_status, instructions,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	b := &Booking{}
	err := row.Scan(
		&b.ID, &b.Reference, &b.CustomerID, &b.PartnerID,
		&b.PickupAddress, &b.DropoffAddress, &b.ScheduledPickupTime,
		&b.ActualPickupTime, &b.ActualDropoffTime,
		&b.DriverID, &b.VehicleID, &b.Price, &b.Currency, &b.ActualDistanceKm,
		&b.BookingStatus, &b.PaymentStatus, &b.Instructions,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// Create inserts a new booking
func (r *Repository) Create(ctx context.Context, b *Booking) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bookings (
			id, reference, customer_id, partner_id,
			pickup_address, dropoff_address, scheduled_pickup_time,
			driver_id, vehicle_id, price, currency,
			booking_status, payment_status, instructions,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.Reference, b.CustomerID, b.PartnerID,
		b.PickupAddress, b.DropoffAddress, b.ScheduledPickupTime,
		b.DriverID, b.VehicleID, b.Price, b.Currency,
		b.BookingStatus, b.PaymentStatus, b.Instructions,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// GetByID returns a single booking by id
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// GetByReference returns a single booking by its human-readable reference
func (r *Repository) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference = $1`, reference)
	return scanBooking(row)
}

// Update persists the current state of a booking. The status guard makes
// the write a compare-and-swap: a row that has already moved past from is
// left untouched and ErrStaleBooking is returned.
func (r *Repository) Update(ctx context.Context, b *Booking, from BookingStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings SET
			partner_id = $2,
			actual_pickup_time = $3,
			actual_dropoff_time = $4,
			driver_id = $5,
			vehicle_id = $6,
			actual_distance_km = $7,
			booking_status = $8,
			payment_status = $9,
			instructions = $10,
			updated_at = $11
		WHERE id = $1 AND booking_status = $12`,
		b.ID, b.PartnerID, b.ActualPickupTime, b.ActualDropoffTime,
		b.DriverID, b.VehicleID, b.ActualDistanceKm,
		b.BookingStatus, b.PaymentStatus, b.Instructions, b.UpdatedAt,
		from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleBooking
	}
	return nil
}

// List returns bookings matching the filters, newest first, with the total count
func (r *Repository) List(ctx context.Context, filters Filters, limit, offset int) ([]Booking, int64, error) {
	where, args := buildBookingFilters(filters)

	var total int64
	countQuery := `SELECT COUNT(*) FROM bookings` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Booking
	for rows.Next() {
		b := Booking{}
		if err := rows.Scan(
			&b.ID, &b.Reference, &b.CustomerID, &b.PartnerID,
			&b.PickupAddress, &b.DropoffAddress, &b.ScheduledPickupTime,
			&b.ActualPickupTime, &b.ActualDropoffTime,
			&b.DriverID, &b.VehicleID, &b.Price, &b.Currency, &b.ActualDistanceKm,
			&b.BookingStatus, &b.PaymentStatus, &b.Instructions,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// GetStats returns grouped booking counts, optionally scoped to one partner
func (r *Repository) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	stats := &Stats{
		ByStatus:        []StatusCount{},
		ByPaymentStatus: []StatusCount{},
	}

	scope := ""
	args := []interface{}{}
	if partnerID != nil {
		scope = " WHERE partner_id = $1"
		args = append(args, *partnerID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT booking_status, COUNT(*), COALESCE(SUM(price), 0)
		FROM bookings`+scope+`
		GROUP BY booking_status
		ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		sc := StatusCount{}
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Total); err != nil {
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, sc)
		stats.TotalBookings += sc.Count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	payRows, err := r.db.Query(ctx, `
		SELECT payment_status, COUNT(*), COALESCE(SUM(price), 0)
		FROM bookings`+scope+`
		GROUP BY payment_status
		ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()

	for payRows.Next() {
		sc := StatusCount{}
		if err := payRows.Scan(&sc.Status, &sc.Count, &sc.Total); err != nil {
			return nil, err
		}
		stats.ByPaymentStatus = append(stats.ByPaymentStatus, sc)
		if sc.Status == string(PaymentPaid) {
			stats.TotalRevenue = sc.Total
		}
	}
	return stats, payRows.Err()
}

func buildBookingFilters(filters Filters) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filters.CustomerID != nil {
		add("customer_id = $%d", *filters.CustomerID)
	}
	if filters.PartnerID != nil {
		add("partner_id = $%d", *filters.PartnerID)
	}
	if filters.Status != nil {
		add("booking_status = $%d", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		add("payment_status = $%d", *filters.PaymentStatus)
	}
	if filters.From != nil {
		add("scheduled_pickup_time >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("scheduled_pickup_time < $%d", *filters.To)
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(reference ILIKE $%d OR pickup_address ILIKE $%d OR dropoff_address ILIKE $%d)", n, n, n))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
