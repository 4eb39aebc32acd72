package events

import "time"

const (
	TypeAppointmentScheduled     = "appointment.scheduled.v1"
	TypeAppointmentStatusChanged = "appointment.status_changed.v1"
)

// AppointmentScheduledV1 is written when a booking commits.
type AppointmentScheduledV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	PsychologistID string    `json:"psychologist_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Notes          string    `json:"notes,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (AppointmentScheduledV1) EventType() string { return TypeAppointmentScheduled }

// AppointmentStatusChangedV1 is written when an appointment moves between statuses.
type AppointmentStatusChangedV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	PsychologistID string    `json:"psychologist_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	ActorID        string    `json:"actor_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (AppointmentStatusChangedV1) EventType() string { return TypeAppointmentStatusChanged }
