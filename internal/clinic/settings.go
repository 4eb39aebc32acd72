// Package clinic holds clinic-wide scheduling settings and their redis store.
package clinic

import (
	"errors"
	"fmt"
	"time"
)

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "08:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// Minutes returns open and close as minutes after midnight.
func (d DayHours) Minutes() (int, int, error) {
	open, err := time.Parse("15:04", d.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("clinic: invalid open time %q", d.Open)
	}
	closing, err := time.Parse("15:04", d.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("clinic: invalid close time %q", d.Close)
	}
	return open.Hour()*60 + open.Minute(), closing.Hour()*60 + closing.Minute(), nil
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// GetHoursForDay returns the hours for a given weekday (0=Sunday, 6=Saturday).
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours returns true if at least one day has business hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Sunday != nil || b.Monday != nil || b.Tuesday != nil ||
		b.Wednesday != nil || b.Thursday != nil || b.Friday != nil || b.Saturday != nil
}

func (b *BusinessHours) validate() error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		h := b.GetHoursForDay(wd)
		if h == nil {
			continue
		}
		open, closing, err := h.Minutes()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, wd, err)
		}
		if open >= closing {
			return fmt.Errorf("%w: %s closes before it opens", ErrInvalidSettings, wd)
		}
	}
	return nil
}

// ErrInvalidSettings is returned when settings fail validation.
var ErrInvalidSettings = errors.New("clinic: invalid settings")

// Settings is the working-hours template and booking policy of the clinic.
type Settings struct {
	Name            string        `json:"name"`
	Timezone        string        `json:"timezone"`
	SlotMinutes     int           `json:"slot_minutes"`
	LeadTimeMinutes int           `json:"lead_time_minutes"`
	BusinessHours   BusinessHours `json:"business_hours"`
}

// DefaultSettings returns weekday hours 08:00-18:00 with hourly slots.
func DefaultSettings(timezone string, leadTime time.Duration) *Settings {
	if timezone == "" {
		timezone = "America/Sao_Paulo"
	}
	weekday := func() *DayHours { return &DayHours{Open: "08:00", Close: "18:00"} }
	return &Settings{
		Name:            "Clínica Mentalize",
		Timezone:        timezone,
		SlotMinutes:     60,
		LeadTimeMinutes: int(leadTime / time.Minute),
		BusinessHours: BusinessHours{
			Monday:    weekday(),
			Tuesday:   weekday(),
			Wednesday: weekday(),
			Thursday:  weekday(),
			Friday:    weekday(),
		},
	}
}

// Location resolves the timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HoursFor returns the hours for weekday, nil when closed.
func (s *Settings) HoursFor(weekday time.Weekday) *DayHours {
	return s.BusinessHours.GetHoursForDay(weekday)
}

// SlotDuration is the length of one bookable slot.
func (s *Settings) SlotDuration() time.Duration {
	if s.SlotMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.SlotMinutes) * time.Minute
}

// LeadTime is the minimum notice for a booking.
func (s *Settings) LeadTime() time.Duration {
	if s.LeadTimeMinutes < 0 {
		return 0
	}
	return time.Duration(s.LeadTimeMinutes) * time.Minute
}

// Validate checks the timezone, slot length and every day's hours.
func (s *Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
	}
	if s.SlotMinutes <= 0 || s.SlotMinutes > 24*60 {
		return fmt.Errorf("%w: slot_minutes must be between 1 and 1440", ErrInvalidSettings)
	}
	if s.LeadTimeMinutes < 0 {
		return fmt.Errorf("%w: lead_time_minutes must not be negative", ErrInvalidSettings)
	}
	return s.BusinessHours.validate()
}
