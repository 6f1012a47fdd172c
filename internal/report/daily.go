// Package report builds the daily booking summary and its spreadsheet export.
package report

import (
	"cmp"
	"slices"

	"gymbooking/internal/model"
)

type StatusCount struct {
	Status model.Status `json:"status"`
	Count  int          `json:"count"`
}

type TrainerLine struct {
	TrainerID   int64  `json:"trainer_id"`
	Name        string `json:"name"`
	Bookings    int    `json:"bookings"`
	BookedMinor int64  `json:"booked_minor"`
}

type ServiceLine struct {
	ServiceID int64  `json:"service_id"`
	Name      string `json:"name"`
	Bookings  int    `json:"bookings"`
}

// Daily summarises every booking on one date. RevenueMinor sums completed
// bookings only; per trainer BookedMinor sums every booking.
type Daily struct {
	Date         model.Date      `json:"date"`
	Weekday      string          `json:"weekday"`
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Confirmed    int             `json:"confirmed"`
	Cancelled    int             `json:"cancelled"`
	Completed    int             `json:"completed"`
	RevenueMinor int64           `json:"revenue_minor"`
	ByStatus     []StatusCount   `json:"by_status"`
	ByTrainer    []TrainerLine   `json:"by_trainer"`
	ByService    []ServiceLine   `json:"by_service"`
	Bookings     []model.Booking `json:"bookings"`
}

// Build aggregates bookings dated on date. Trainers and services supply
// display names; unknown ids are reported with an empty name.
func Build(date model.Date, bookings []model.Booking, trainers []model.Trainer, services []model.Service) Daily {
	trainerNames := make(map[int64]string, len(trainers))
	for _, t := range trainers {
		trainerNames[t.ID] = t.FullName()
	}
	serviceNames := make(map[int64]string, len(services))
	for _, s := range services {
		serviceNames[s.ID] = s.Name
	}

	d := Daily{
		Date:     date,
		Weekday:  date.Weekday().String(),
		Bookings: []model.Booking{},
	}
	statusCounts := make(map[model.Status]int)
	byTrainer := make(map[int64]*TrainerLine)
	byService := make(map[int64]*ServiceLine)

	for _, b := range bookings {
		if b.Date != date {
			continue
		}
		d.Total++
		d.Bookings = append(d.Bookings, b)
		statusCounts[b.Status]++

		switch b.Status {
		case model.StatusPending:
			d.Pending++
		case model.StatusConfirmed:
			d.Confirmed++
		case model.StatusCancelled:
			d.Cancelled++
		case model.StatusCompleted:
			d.Completed++
			d.RevenueMinor += b.PriceMinor
		}

		tl, ok := byTrainer[b.TrainerID]
		if !ok {
			tl = &TrainerLine{TrainerID: b.TrainerID, Name: trainerNames[b.TrainerID]}
			byTrainer[b.TrainerID] = tl
		}
		tl.Bookings++
		tl.BookedMinor += b.PriceMinor

		sl, ok := byService[b.ServiceID]
		if !ok {
			sl = &ServiceLine{ServiceID: b.ServiceID, Name: serviceNames[b.ServiceID]}
			byService[b.ServiceID] = sl
		}
		sl.Bookings++
	}

	for _, s := range model.Statuses {
		if n := statusCounts[s]; n > 0 {
			d.ByStatus = append(d.ByStatus, StatusCount{Status: s, Count: n})
		}
	}

	for _, tl := range byTrainer {
		d.ByTrainer = append(d.ByTrainer, *tl)
	}
	slices.SortFunc(d.ByTrainer, func(a, b TrainerLine) int {
		return cmp.Or(cmp.Compare(b.Bookings, a.Bookings), cmp.Compare(a.TrainerID, b.TrainerID))
	})

	for _, sl := range byService {
		d.ByService = append(d.ByService, *sl)
	}
	slices.SortFunc(d.ByService, func(a, b ServiceLine) int {
		return cmp.Or(cmp.Compare(b.Bookings, a.Bookings), cmp.Compare(a.ServiceID, b.ServiceID))
	})

	slices.SortStableFunc(d.Bookings, func(a, b model.Booking) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.TrainerID, b.TrainerID))
	})

	return d
}
