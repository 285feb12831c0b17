package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/dispatch/libs/db"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/availability"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts the booking on the caller's transaction so the confirmed
// event lands in the outbox atomically with the row.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings
			(id, category, bedrooms, square_feet, customer_name, scheduled_at, duration_minutes, lat, lng, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.Category, b.Bedrooms, b.SquareFeet, b.CustomerName,
		b.ScheduledAt, b.DurationMinutes, b.Lat, b.Lng, b.Status)
	return err
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	var resourceID *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, category, bedrooms, square_feet, customer_name, scheduled_at,
			duration_minutes, lat, lng, resource_id, status, cancelled_at, created_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(
		&b.ID,
		&b.Category,
		&b.Bedrooms,
		&b.SquareFeet,
		&b.CustomerName,
		&b.ScheduledAt,
		&b.DurationMinutes,
		&b.Lat,
		&b.Lng,
		&resourceID,
		&b.Status,
		&b.CancelledAt,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	if resourceID != nil {
		b.ResourceID = *resourceID
	}
	return b, nil
}

// BindResource attaches the accepted resource to the booking.
func (r *BookingRepository) BindResource(ctx context.Context, tx pgx.Tx, bookingID, resourceID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET resource_id = $2
		WHERE id = $1 AND status = 'booked'
	`, bookingID, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// / Cancel runs on the caller's transaction for the same reason Create does:
// the cancelled event commits with the status change or not at all.
func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, bookingID string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now()
		WHERE id = $1 AND status = 'booked'
		RETURNING cancelled_at
	`, bookingID).Scan(&cancelledAt)
	return cancelledAt, err
}

// ListBookedIntervals returns the raw occupied spans for a resource in
// [from, to). Conflict records are derived per query, never cached, so a
// cancellation or reschedule is reflected on the next call with no
// invalidation step. The post-job buffer is applied by the caller.
func (r *BookingRepository) ListBookedIntervals(ctx context.Context, resourceID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at, scheduled_at + make_interval(mins => duration_minutes)
		FROM bookings
		WHERE resource_id = $1
			AND status = 'booked'
			AND scheduled_at < $3
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at
	`, resourceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
