package stats

import (
	"time"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
)

const day = 24 * time.Hour

// Options tunes the dashboard windows. Zero fields take the defaults.
type Options struct {
	Window         time.Duration
	CaseloadWindow time.Duration
	// AvailableHours is the bookable capacity per psychologist over Window.
	AvailableHours float64
}

// DefaultOptions: 180 days, 90 days, 40h/week x 4 weeks x 6 months.
func DefaultOptions() Options {
	return Options{Window: 180 * day, CaseloadWindow: 90 * day, AvailableHours: 960}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Window <= 0 {
		o.Window = def.Window
	}
	if o.CaseloadWindow <= 0 {
		o.CaseloadWindow = def.CaseloadWindow
	}
	if o.AvailableHours <= 0 {
		o.AvailableHours = def.AvailableHours
	}
	return o
}

// Person is a psychologist as the dashboard names them.
type Person struct {
	ID   uuid.UUID
	Name string
}

// Totals are all-time record counts.
type Totals struct {
	Patients      int `json:"patients"`
	Psychologists int `json:"psychologists"`
	Appointments  int `json:"appointments"`
}

// Snapshot is the ledger state a report is computed from: every appointment
// since the window start plus completed appointments of any age.
type Snapshot struct {
	Appointments  []appointments.Appointment
	Psychologists []Person
	Totals        Totals
}

type MonthCount struct {
	Month string `json:"month"`
	Label string `json:"label"`
	Total int    `json:"total"`
}

type MonthRate struct {
	Month string  `json:"month"`
	Label string  `json:"label"`
	Rate  float64 `json:"rate"`
}

type Band struct {
	Band     string `json:"band"`
	Patients int    `json:"patients"`
}

type PsychologistRate struct {
	PsychologistID uuid.UUID `json:"psychologist_id"`
	Name           string    `json:"name"`
	FirstName      string    `json:"first_name"`
	Rate           float64   `json:"rate"`
}

type PsychologistCount struct {
	PsychologistID uuid.UUID `json:"psychologist_id"`
	Name           string    `json:"name"`
	FirstName      string    `json:"first_name"`
	Patients       int       `json:"patients"`
}

// Report is the admin dashboard.
type Report struct {
	GeneratedAt         time.Time           `json:"generated_at"`
	WindowStart         time.Time           `json:"window_start"`
	WindowEnd           time.Time           `json:"window_end"`
	Totals              Totals              `json:"totals"`
	MonthlyAppointments []MonthCount        `json:"monthly_appointments"`
	Retention           []MonthRate         `json:"retention"`
	SessionFrequency    []Band              `json:"session_frequency"`
	Occupancy           []PsychologistRate  `json:"occupancy"`
	NoShow              []MonthRate         `json:"no_show"`
	ActiveCaseload      []PsychologistCount `json:"active_caseload"`
}
