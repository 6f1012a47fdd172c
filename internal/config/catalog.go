package config

import (
	"fmt"
	"os"
	"strings"

	"gymbooking/internal/model"

	"gopkg.in/yaml.v3"
)

// TrainerConfig describes one trainer in catalog.yaml.
type TrainerConfig struct {
	ID          int64          `yaml:"id"`
	FirstName   string         `yaml:"first_name"`
	LastName    string         `yaml:"last_name"`
	Email       string         `yaml:"email"`
	Specialties string         `yaml:"specialties"`
	SessionFee  int64          `yaml:"session_fee_minor"`
	WorkStart   string         `yaml:"work_start"` // "09:00"
	WorkEnd     string         `yaml:"work_end"`   // "18:00"
	IsActive    bool           `yaml:"is_active"`
	Services    []int64        `yaml:"services"`
	Windows     []WindowConfig `yaml:"windows,omitempty"`
}

// WindowConfig is a weekly availability window.
type WindowConfig struct {
	Day       int    `yaml:"day"` // 1=Mon, 7=Sun
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Available *bool  `yaml:"available,omitempty"`
	Note      string `yaml:"note,omitempty"`
}

// ServiceConfig describes a bookable service.
type ServiceConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Category        string `yaml:"category"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Price           int64  `yaml:"price_minor"`
	MaxParticipants int    `yaml:"max_participants"`
	IsActive        bool   `yaml:"is_active"`
}

// CatalogDefaults applies to trainers without explicit windows.
type CatalogDefaults struct {
	WorkDays []int `yaml:"work_days"` // 1=Mon, 7=Sun
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Trainers []TrainerConfig `yaml:"trainers"`
	Services []ServiceConfig `yaml:"services"`
	Defaults CatalogDefaults `yaml:"defaults"`
}

// LoadCatalog loads and validates catalog.yaml.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c.applyDefaults()

	return &c, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	serviceIDs := make(map[int64]bool)
	for i, s := range c.Services {
		if s.ID <= 0 {
			return fmt.Errorf("service[%d]: id must be positive, got %d", i, s.ID)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("service[%d]: duplicate id %d", i, s.ID)
		}
		serviceIDs[s.ID] = true

		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if s.DurationMinutes < model.MinServiceMinutes || s.DurationMinutes > model.MaxServiceMinutes {
			return fmt.Errorf("service[%d]: duration must be %d-%d minutes, got %d",
				i, model.MinServiceMinutes, model.MaxServiceMinutes, s.DurationMinutes)
		}
		if s.Price < 0 {
			return fmt.Errorf("service[%d]: price cannot be negative", i)
		}
		if s.MaxParticipants < 0 || s.MaxParticipants > 50 {
			return fmt.Errorf("service[%d]: max_participants must be 1-50", i)
		}
	}

	trainerIDs := make(map[int64]bool)
	for i, t := range c.Trainers {
		prefix := fmt.Sprintf("trainer[%d]", i)
		if t.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, t.ID)
		}
		if trainerIDs[t.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, t.ID)
		}
		trainerIDs[t.ID] = true

		if t.FirstName == "" || t.LastName == "" {
			return fmt.Errorf("%s: first_name and last_name are required", prefix)
		}
		if t.SessionFee < 0 {
			return fmt.Errorf("%s: session_fee_minor cannot be negative", prefix)
		}
		if err := validateRange(t.WorkStart, t.WorkEnd, prefix+".work"); err != nil {
			return err
		}
		for _, id := range t.Services {
			if !serviceIDs[id] {
				return fmt.Errorf("%s: unknown service %d", prefix, id)
			}
		}
		for j, w := range t.Windows {
			wp := fmt.Sprintf("%s.windows[%d]", prefix, j)
			if w.Day < 1 || w.Day > 7 {
				return fmt.Errorf("%s: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", wp, w.Day)
			}
			if err := validateRange(w.Start, w.End, wp); err != nil {
				return err
			}
		}
	}

	for i, d := range c.Defaults.WorkDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.work_days[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}

	return nil
}

func validateRange(start, end, prefix string) error {
	if start == "" || end == "" {
		return fmt.Errorf("%s: start and end are required", prefix)
	}
	s, err := model.ParseTimeOfDay(start)
	if err != nil {
		return fmt.Errorf("%s: invalid start '%s', expected HH:MM", prefix, start)
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil {
		return fmt.Errorf("%s: invalid end '%s', expected HH:MM", prefix, end)
	}
	if e <= s {
		return fmt.Errorf("%s: end must be after start", prefix)
	}
	return nil
}

// applyDefaults gives trainers without windows their working hours on the
// default work days.
func (c *Catalog) applyDefaults() {
	days := c.Defaults.WorkDays
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5}
	}
	for i := range c.Trainers {
		t := &c.Trainers[i]
		if len(t.Windows) > 0 {
			continue
		}
		for _, d := range days {
			t.Windows = append(t.Windows, WindowConfig{Day: d, Start: t.WorkStart, End: t.WorkEnd})
		}
	}
}

// Trainer converts the entry to a model value. Validate must have passed.
func (t TrainerConfig) Trainer() model.Trainer {
	return model.Trainer{
		ID:              t.ID,
		FirstName:       t.FirstName,
		LastName:        t.LastName,
		Email:           t.Email,
		Specialties:     t.Specialties,
		SessionFeeMinor: t.SessionFee,
		WorkStart:       model.MustTimeOfDay(t.WorkStart),
		WorkEnd:         model.MustTimeOfDay(t.WorkEnd),
		IsActive:        t.IsActive,
	}
}

// AvailabilityWindows converts the trainer's windows to model values.
func (t TrainerConfig) AvailabilityWindows() []model.AvailabilityWindow {
	out := make([]model.AvailabilityWindow, 0, len(t.Windows))
	for _, w := range t.Windows {
		available := true
		if w.Available != nil {
			available = *w.Available
		}
		out = append(out, model.AvailabilityWindow{
			TrainerID: t.ID,
			Weekday:   model.WeekdayFromISO(w.Day),
			Start:     model.MustTimeOfDay(w.Start),
			End:       model.MustTimeOfDay(w.End),
			Available: available,
			Note:      w.Note,
		})
	}
	return out
}

func (s ServiceConfig) Service() model.Service {
	category := model.ServiceCategory(s.Category)
	if category == "" {
		category = model.CategoryOther
	}
	maxParticipants := s.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = 1
	}
	return model.Service{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Category:        category,
		DurationMinutes: s.DurationMinutes,
		PriceMinor:      s.Price,
		MaxParticipants: maxParticipants,
		IsActive:        s.IsActive,
	}
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	active := 0
	for _, t := range c.Trainers {
		if t.IsActive {
			active++
		}
	}
	return fmt.Sprintf("Catalog: %d trainers (%d active), %d services",
		len(c.Trainers), active, len(c.Services))
}
