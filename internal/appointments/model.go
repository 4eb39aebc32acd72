package appointments

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment is one session between a patient and a psychologist.
// ScheduledAt is stored in UTC.
type Appointment struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PsychologistID uuid.UUID `json:"psychologist_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Row is an appointment joined with participant names for listings.
type Row struct {
	Appointment
	PatientName      string `json:"patient_name"`
	PsychologistName string `json:"psychologist_name"`
	StatusLabel      string `json:"status_label"`
}

// Filter narrows the admin search. DateFrom and DateTo are inclusive calendar
// dates compared against the date of ScheduledAt in Location (UTC when nil).
type Filter struct {
	PsychologistName string
	PatientName      string
	Status           Status
	DateFrom         time.Time
	DateTo           time.Time
	Location         *time.Location
	Limit            int
}

func (f Filter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

const (
	defaultSearchLimit = 200
	maxSearchLimit     = 1000
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultSearchLimit
	case f.Limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return f.Limit
	}
}

func (f Filter) matches(r Row) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !containsFold(r.PsychologistName, f.PsychologistName) || !containsFold(r.PatientName, f.PatientName) {
		return false
	}
	day := dateOf(r.ScheduledAt.In(f.location()))
	if !f.DateFrom.IsZero() && day.Before(dateOf(f.DateFrom)) {
		return false
	}
	if !f.DateTo.IsZero() && day.After(dateOf(f.DateTo)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	sub = strings.TrimSpace(sub)
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// dateOf takes the calendar date of t in its own location, as UTC midnight.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func statusIn(s Status, set []Status) bool {
	return len(set) == 0 || slices.Contains(set, s)
}

func statusStrings(set []Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
