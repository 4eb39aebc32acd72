package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side of the ledger.
type Reader interface {
	// ListForPsychologist returns appointments with from <= ScheduledAt < to whose
	// status is in statuses (any status when empty), in chronological order.
	ListForPsychologist(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, statuses ...Status) ([]Appointment, error)
	// Snapshot returns every appointment scheduled at or after since, plus every
	// completed appointment regardless of date.
	Snapshot(ctx context.Context, since time.Time) ([]Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Search(ctx context.Context, filter Filter) ([]Row, error)
}

// StatusChange describes an applied transition.
type StatusChange struct {
	Appointment Appointment
	From        Status
	ActorID     uuid.UUID
}

// Ledger is the appointment store.
type Ledger interface {
	Reader
	Insert(ctx context.Context, appt Appointment) (uuid.UUID, error)
	// UpdateStatus validates the transition against the stored status and persists it.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, actorID uuid.UUID) (*StatusChange, error)
}
