package database

import (
	"context"
	"time"

	"gymbooking/internal/model"
)

// GetAvailability returns the trainer's usable windows for a weekday, ordered
// by start time. Windows flagged unavailable are left out.
func (db *DB) GetAvailability(ctx context.Context, trainerID int64, day time.Weekday) ([]model.AvailabilityWindow, error) {
	return db.queryWindows(ctx, `
		SELECT id, trainer_id, day_of_week, start_time, end_time, is_available, COALESCE(note, '')
		FROM availability_windows
		WHERE trainer_id = ? AND day_of_week = ? AND is_available = 1
		ORDER BY start_time, end_time`,
		trainerID, model.ISOWeekday(day),
	)
}

// ListWindows returns every window of the trainer for the whole week.
func (db *DB) ListWindows(ctx context.Context, trainerID int64) ([]model.AvailabilityWindow, error) {
	return db.queryWindows(ctx, `
		SELECT id, trainer_id, day_of_week, start_time, end_time, is_available, COALESCE(note, '')
		FROM availability_windows
		WHERE trainer_id = ?
		ORDER BY day_of_week, start_time`,
		trainerID,
	)
}

func (db *DB) queryWindows(ctx context.Context, query string, args ...any) ([]model.AvailabilityWindow, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var day int
		if err := rows.Scan(&w.ID, &w.TrainerID, &day, &w.Start, &w.End, &w.Available, &w.Note); err != nil {
			return nil, err
		}
		w.Weekday = model.WeekdayFromISO(day)
		out = append(out, w)
	}
	return out, rows.Err()
}
