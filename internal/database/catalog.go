package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gymbooking/internal/config"
	"gymbooking/internal/model"
)

const trainerColumns = `id, first_name, last_name, COALESCE(email, ''), COALESCE(specialties, ''),
	session_fee_minor, work_start, work_end, is_active, created_at, updated_at`

const serviceColumns = `id, name, COALESCE(description, ''), category, duration_minutes,
	price_minor, max_participants, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrainer(s scanner) (model.Trainer, error) {
	var t model.Trainer
	err := s.Scan(&t.ID, &t.FirstName, &t.LastName, &t.Email, &t.Specialties,
		&t.SessionFeeMinor, &t.WorkStart, &t.WorkEnd, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanService(s scanner) (model.Service, error) {
	var svc model.Service
	err := s.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Category, &svc.DurationMinutes,
		&svc.PriceMinor, &svc.MaxParticipants, &svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt)
	return svc, err
}

// GetTrainer returns the trainer regardless of its active flag.
func (db *DB) GetTrainer(ctx context.Context, id int64) (*model.Trainer, error) {
	row := db.QueryRowContext(ctx, `SELECT `+trainerColumns+` FROM trainers WHERE id = ?`, id)
	t, err := scanTrainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trainer %d: %w", id, err)
	}
	return &t, nil
}

// GetService returns the service regardless of its active flag.
func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return &svc, nil
}

// ListTrainers returns trainers ordered by id, optionally only active ones.
func (db *DB) ListTrainers(ctx context.Context, activeOnly bool) ([]model.Trainer, error) {
	query := `SELECT ` + trainerColumns + ` FROM trainers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListServices returns services ordered by id, optionally only active ones.
func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// ServicesForTrainer returns the active services the trainer offers.
func (db *DB) ServicesForTrainer(ctx context.Context, trainerID int64) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE is_active = 1
		  AND id IN (SELECT service_id FROM trainer_services WHERE trainer_id = ?)
		ORDER BY name, id`,
		trainerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// SyncCatalog applies catalog.yaml to the database in one transaction. It
// upserts trainers and services, replaces trainer links and windows, and
// deactivates rows that disappeared from the file.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	seenServices := make([]any, 0, len(cat.Services))
	for _, sc := range cat.Services {
		s := sc.Service()
		// Keep created_at of existing rows.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, description, category, duration_minutes, price_minor,
				max_participants, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM services WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				category = excluded.category,
				duration_minutes = excluded.duration_minutes,
				price_minor = excluded.price_minor,
				max_participants = excluded.max_participants,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Description, s.Category, s.DurationMinutes, s.PriceMinor,
			s.MaxParticipants, s.IsActive, s.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %d: %w", s.ID, err)
		}
		seenServices = append(seenServices, s.ID)
	}

	seenTrainers := make([]any, 0, len(cat.Trainers))
	for _, tc := range cat.Trainers {
		t := tc.Trainer()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trainers (id, first_name, last_name, email, specialties, session_fee_minor,
				work_start, work_end, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM trainers WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				email = excluded.email,
				specialties = excluded.specialties,
				session_fee_minor = excluded.session_fee_minor,
				work_start = excluded.work_start,
				work_end = excluded.work_end,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			t.ID, t.FirstName, t.LastName, t.Email, t.Specialties, t.SessionFeeMinor,
			t.WorkStart, t.WorkEnd, t.IsActive, t.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync trainer %d: %w", t.ID, err)
		}
		seenTrainers = append(seenTrainers, t.ID)

		if _, err := tx.ExecContext(ctx, `DELETE FROM trainer_services WHERE trainer_id = ?`, t.ID); err != nil {
			return fmt.Errorf("sync trainer %d services: %w", t.ID, err)
		}
		for _, sid := range tc.Services {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trainer_services (trainer_id, service_id) VALUES (?, ?)`, t.ID, sid,
			); err != nil {
				return fmt.Errorf("link trainer %d to service %d: %w", t.ID, sid, err)
			}
		}

		if err := replaceWindows(ctx, tx, t.ID, tc.AvailabilityWindows()); err != nil {
			return fmt.Errorf("sync trainer %d windows: %w", t.ID, err)
		}
	}

	if err := deactivateMissing(ctx, tx, "services", seenServices, now); err != nil {
		return err
	}
	if err := deactivateMissing(ctx, tx, "trainers", seenTrainers, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.Info().Int("trainers", len(cat.Trainers)).Int("services", len(cat.Services)).Msg("catalog synced")
	return nil
}

func replaceWindows(ctx context.Context, tx *sql.Tx, trainerID int64, windows []model.AvailabilityWindow) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE trainer_id = ?`, trainerID); err != nil {
		return err
	}
	for _, w := range windows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO availability_windows (trainer_id, day_of_week, start_time, end_time, is_available, note)
			VALUES (?, ?, ?, ?, ?, ?)`,
			trainerID, model.ISOWeekday(w.Weekday), w.Start, w.End, w.Available, w.Note,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []any, now time.Time) error {
	query := `UPDATE ` + table + ` SET is_active = 0, updated_at = ? WHERE is_active = 1`
	args := []any{now}
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate missing %s: %w", table, err)
	}
	return nil
}
