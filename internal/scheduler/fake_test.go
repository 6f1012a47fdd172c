package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gymbooking/internal/database"
	"gymbooking/internal/model"

	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory catalog, availability and booking store.
type memStore struct {
	mu       sync.Mutex
	trainers map[int64]model.Trainer
	services map[int64]model.Service
	links    map[int64][]int64
	windows  map[int64][]model.AvailabilityWindow
	bookings []model.Booking
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		trainers: make(map[int64]model.Trainer),
		services: make(map[int64]model.Service),
		links:    make(map[int64][]int64),
		windows:  make(map[int64][]model.AvailabilityWindow),
	}
}

func (m *memStore) GetTrainer(_ context.Context, id int64) (*model.Trainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trainers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetService(_ context.Context, id int64) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListTrainers(_ context.Context, activeOnly bool) ([]model.Trainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trainer
	for _, t := range m.trainers {
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Trainer) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memStore) ListServices(_ context.Context, activeOnly bool) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Service
	for _, s := range m.services {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b model.Service) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memStore) ServicesForTrainer(_ context.Context, trainerID int64) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Service
	for _, id := range m.links[trainerID] {
		if s, ok := m.services[id]; ok && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetAvailability(_ context.Context, trainerID int64, day time.Weekday) ([]model.AvailabilityWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.AvailableOn(m.windows[trainerID], day), nil
}

func (m *memStore) live(trainerID int64, date model.Date) []model.Booking {
	var out []model.Booking
	for _, b := range m.bookings {
		if b.TrainerID == trainerID && b.Date == date && b.Blocks() {
			out = append(out, b)
		}
	}
	return out
}

func (m *memStore) GetBookings(_ context.Context, trainerID int64, date model.Date) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(trainerID, date), nil
}

func (m *memStore) GetBooking(_ context.Context, id int64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) CreateBooking(_ context.Context, b *model.Booking, check database.BookingCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if check != nil {
		if err := check(m.live(b.TrainerID, b.Date)); err != nil {
			return err
		}
	}
	m.nextID++
	b.ID = m.nextID
	b.Version = 1
	m.bookings = append(m.bookings, *b)
	return nil
}

func (m *memStore) UpdateBooking(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bookings {
		if m.bookings[i].ID != b.ID {
			continue
		}
		if m.bookings[i].Version != b.Version {
			return database.ErrConcurrentModification
		}
		b.Version++
		m.bookings[i] = *b
		return nil
	}
	return database.ErrNotFound
}

func (m *memStore) ListBookings(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if !f.From.IsZero() && b.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && b.Date.After(f.To) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.TrainerID > 0 && b.TrainerID != f.TrainerID {
			continue
		}
		out = append(out, b)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) MemberBookings(_ context.Context, memberID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for i := len(m.bookings) - 1; i >= 0; i-- {
		if m.bookings[i].MemberID == memberID {
			out = append(out, m.bookings[i])
		}
	}
	return out, nil
}

// mapCache is an in-memory SlotCache with a counter per trainer day as the
// generation.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]model.TimeOfDay
	gens    map[string]int
}

func newMapCache() *mapCache {
	return &mapCache{
		entries: make(map[string][]model.TimeOfDay),
		gens:    make(map[string]int),
	}
}

func dayKey(trainerID int64, date model.Date) string {
	return fmt.Sprintf("%s/%d/", date, trainerID)
}

func cacheKey(trainerID int64, date model.Date, serviceID int64) string {
	return dayKey(trainerID, date) + strconv.FormatInt(serviceID, 10)
}

func (c *mapCache) Get(_ context.Context, trainerID int64, date model.Date, serviceID int64) ([]model.TimeOfDay, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[cacheKey(trainerID, date, serviceID)]
	return v, strconv.Itoa(c.gens[dayKey(trainerID, date)]), ok
}

func (c *mapCache) Set(_ context.Context, trainerID int64, date model.Date, serviceID int64, gen string, s []model.TimeOfDay) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != strconv.Itoa(c.gens[dayKey(trainerID, date)]) {
		return false
	}
	c.entries[cacheKey(trainerID, date, serviceID)] = s
	return true
}

func (c *mapCache) Invalidate(_ context.Context, trainerID int64, date model.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := dayKey(trainerID, date)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.gens[prefix]++
	return nil
}

// mockBookings lets tests inject store failures.
type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) GetBookings(ctx context.Context, trainerID int64, date model.Date) ([]model.Booking, error) {
	args := m.Called(ctx, trainerID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *mockBookings) CreateBooking(ctx context.Context, b *model.Booking, check database.BookingCheck) error {
	args := m.Called(ctx, b, check)
	return args.Error(0)
}

func (m *mockBookings) UpdateBooking(ctx context.Context, b *model.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *mockBookings) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockBookings) MemberBookings(ctx context.Context, memberID string) ([]model.Booking, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}
