package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gymbooking/internal/model"
)

const bookingColumns = `id, reference, member_id, trainer_id, service_id, date, start_time, end_time,
	status, price_minor, COALESCE(member_note, ''), COALESCE(trainer_note, ''), COALESCE(cancel_reason, ''),
	created_at, updated_at, version`

// BookingCheck runs inside the create transaction against the trainer's live
// bookings for the day. A non-nil error aborts the insert and is returned as is.
type BookingCheck func(existing []model.Booking) error

func scanBooking(s scanner) (model.Booking, error) {
	var b model.Booking
	var updatedAt sql.NullTime
	err := s.Scan(&b.ID, &b.Reference, &b.MemberID, &b.TrainerID, &b.ServiceID, &b.Date, &b.Start, &b.End,
		&b.Status, &b.PriceMinor, &b.MemberNote, &b.TrainerNote, &b.CancelReason,
		&b.CreatedAt, &updatedAt, &b.Version)
	if err != nil {
		return b, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		b.UpdatedAt = &t
	}
	return b, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryBookings(ctx context.Context, q queryer, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const liveBookingsQuery = `SELECT ` + bookingColumns + `
	FROM bookings
	WHERE trainer_id = ? AND date = ? AND status != 'cancelled'
	ORDER BY start_time`

// GetBookings returns the trainer's bookings on date that still occupy time,
// ordered by start.
func (db *DB) GetBookings(ctx context.Context, trainerID int64, date model.Date) ([]model.Booking, error) {
	out, err := queryBookings(ctx, db, liveBookingsQuery, trainerID, date)
	if err != nil {
		return nil, fmt.Errorf("get bookings for trainer %d on %s: %w", trainerID, date, err)
	}
	return out, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return &b, nil
}

// CreateBooking inserts b after check accepts the trainer's live bookings for
// that day. The read, the check and the insert share one immediate
// transaction, so two requests for the same trainer cannot both pass the check.
// On success b.ID and b.Version are set.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking, check BookingCheck) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create booking: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if check != nil {
		existing, err := queryBookings(ctx, tx, liveBookingsQuery, b.TrainerID, b.Date)
		if err != nil {
			return fmt.Errorf("load bookings for trainer %d on %s: %w", b.TrainerID, b.Date, err)
		}
		if err := check(existing); err != nil {
			return err
		}
	}

	if b.Version == 0 {
		b.Version = 1
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (reference, member_id, trainer_id, service_id, date, start_time, end_time,
			status, price_minor, member_note, trainer_note, cancel_reason, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.MemberID, b.TrainerID, b.ServiceID, b.Date, b.Start, b.End,
		b.Status, b.PriceMinor, b.MemberNote, b.TrainerNote, b.CancelReason, b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	b.ID = id
	return nil
}

// UpdateBooking persists the mutable fields of b if its version still matches
// the stored row, then bumps b.Version.
func (db *DB) UpdateBooking(ctx context.Context, b *model.Booking) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, trainer_note = ?, cancel_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		b.Status, b.TrainerNote, b.CancelReason, b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConcurrentModification
	}

	b.Version++
	return nil
}

// ListBookings returns bookings matching f, ordered by date and start time.
func (db *DB) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var where []string
	var args []any

	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.TrainerID > 0 {
		where = append(where, "trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.MemberID != "" {
		where = append(where, "member_id = ?")
		args = append(args, f.MemberID)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, start_time, id`

	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, max(f.Offset, 0))
	}

	out, err := queryBookings(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

// MemberBookings returns the member's bookings, newest first.
func (db *DB) MemberBookings(ctx context.Context, memberID string) ([]model.Booking, error) {
	out, err := queryBookings(ctx, db, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE member_id = ?
		ORDER BY date DESC, start_time DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("member bookings: %w", err)
	}
	return out, nil
}
