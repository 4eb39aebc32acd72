package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/internal/observability/metrics"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Participants maps an authenticated user to their role record.
type Participants interface {
	PatientForUser(ctx context.Context, userID uuid.UUID) (*users.Patient, error)
	PsychologistForUser(ctx context.Context, userID uuid.UUID) (*users.Psychologist, error)
}

// Actor is the authenticated caller of a status change.
type Actor struct {
	UserID uuid.UUID
	Role   users.Role
}

// Service applies status changes with ownership checks and auditing.
type Service struct {
	ledger       Ledger
	participants Participants
	audit        compliance.Recorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
}

func NewService(ledger Ledger, participants Participants, audit compliance.Recorder, logger *logging.Logger) *Service {
	if ledger == nil {
		panic("appointments: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{ledger: ledger, participants: participants, audit: audit, logger: logger}
}

// WithMetrics records status transitions.
func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// Ledger exposes the read side for handlers.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// ChangeStatus moves an appointment to a new status. Patients may only cancel
// their own appointments; psychologists may act on their own; admins on any.
func (s *Service) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, to Status) (*StatusChange, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, appt, to); err != nil {
		return nil, err
	}
	change, err := s.ledger.UpdateStatus(ctx, id, to, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStatusChange(string(to))
	s.logger.Info("appointment status changed",
		"appointment_id", id, "from", change.From, "to", to, "actor_role", actor.Role)
	if s.audit != nil {
		details := map[string]string{"from": string(change.From), "to": string(to)}
		if err := s.audit.Record(ctx, compliance.EventAppointmentStatusChanged, actor.UserID.String(), id.String(), details); err != nil {
			s.logger.Warn("audit record failed", "appointment_id", id, "error", err)
		}
	}
	return change, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, appt *Appointment, to Status) error {
	switch actor.Role {
	case users.RoleAdmin:
		return nil
	case users.RolePsychologist:
		if s.participants == nil {
			return ErrForbidden
		}
		p, err := s.participants.PsychologistForUser(ctx, actor.UserID)
		if err != nil || p.ID != appt.PsychologistID {
			return ErrForbidden
		}
		return nil
	case users.RolePatient:
		if s.participants == nil {
			return ErrForbidden
		}
		p, err := s.participants.PatientForUser(ctx, actor.UserID)
		if err != nil || p.ID != appt.PatientID {
			return ErrForbidden
		}
		if to != StatusCancelled {
			return fmt.Errorf("%w: patients may only cancel", ErrForbidden)
		}
		return nil
	default:
		return ErrForbidden
	}
}
